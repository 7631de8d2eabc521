// Package broker defines the interface for the durable message transport.
// This abstraction keeps the control plane independent of a specific broker
// implementation (e.g., GCP Pub/Sub, SQS, RabbitMQ); the provisioner and
// router only see idempotent ensure/publish semantics.
package broker

import "context"

// QueueRef identifies a queue: Name is the deterministic control-plane name,
// ID is the backend-assigned identifier injected into worker environments.
type QueueRef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Message is one delivery from a queue.
type Message struct {
	ID       string
	GroupKey string
	Body     []byte
}

// Handler processes one delivery. A non-nil error triggers redelivery under
// the broker's at-least-once policy.
type Handler func(ctx context.Context, msg Message) error

// Broker is the common interface for the message transport.
//
// EnsureQueue must be idempotent: ensuring an existing queue is a no-op
// returning the same ref, which is what makes retried provisioning signals
// converge instead of duplicating resources. GrantConsume attaches a
// consume permission for the given identity and must be additive across
// queues.
type Broker interface {
	EnsureQueue(ctx context.Context, name string) (QueueRef, error)
	GrantConsume(ctx context.Context, ref QueueRef, identity string) error
	Publish(ctx context.Context, ref QueueRef, groupKey string, body []byte) (string, error)
	Receive(ctx context.Context, ref QueueRef, handler Handler) error
	Close() error
}
