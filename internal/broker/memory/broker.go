// Package memory provides an in-memory broker for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mipworks/algo-control-plane/internal/broker"
)

const defaultQueueDepth = 256

// Broker keeps bounded in-memory queues keyed by name.
type Broker struct {
	mu     sync.Mutex
	queues map[string]*queueState
	grants map[string][]string
	depth  int
}

type queueState struct {
	ref broker.QueueRef
	ch  chan broker.Message
}

// New constructs a Broker with the provided per-queue capacity.
func New(depth int) *Broker {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Broker{
		queues: make(map[string]*queueState),
		grants: make(map[string][]string),
		depth:  depth,
	}
}

// EnsureQueue creates the queue if absent; ensuring an existing queue
// returns the previously assigned ref unchanged.
func (b *Broker) EnsureQueue(_ context.Context, name string) (broker.QueueRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q.ref, nil
	}
	q := &queueState{
		ref: broker.QueueRef{Name: name, ID: "mem://" + name},
		ch:  make(chan broker.Message, b.depth),
	}
	b.queues[name] = q
	return q.ref, nil
}

// GrantConsume records the identity grant; repeated grants are collapsed.
func (b *Broker) GrantConsume(_ context.Context, ref broker.QueueRef, identity string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[ref.Name]; !ok {
		return fmt.Errorf("queue %q not found", ref.Name)
	}
	for _, g := range b.grants[ref.Name] {
		if g == identity {
			return nil
		}
	}
	b.grants[ref.Name] = append(b.grants[ref.Name], identity)
	return nil
}

// Grants returns the identities allowed to consume from the named queue.
func (b *Broker) Grants(name string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.grants[name]...)
}

// QueueCount reports how many queues exist.
func (b *Broker) QueueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

// Publish enqueues the body and returns a fresh message id.
func (b *Broker) Publish(ctx context.Context, ref broker.QueueRef, groupKey string, body []byte) (string, error) {
	b.mu.Lock()
	q, ok := b.queues[ref.Name]
	b.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("queue %q not found", ref.Name)
	}
	msg := broker.Message{
		ID:       uuid.NewString(),
		GroupKey: groupKey,
		Body:     append([]byte(nil), body...),
	}
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("publish canceled: %w", ctx.Err())
	case q.ch <- msg:
		return msg.ID, nil
	}
}

// Receive delivers messages to the handler until the context finishes.
// A handler error re-enqueues the message (at-least-once).
func (b *Broker) Receive(ctx context.Context, ref broker.QueueRef, handler broker.Handler) error {
	b.mu.Lock()
	q, ok := b.queues[ref.Name]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("queue %q not found", ref.Name)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q.ch:
			if err := handler(ctx, msg); err != nil {
				select {
				case q.ch <- msg:
				default:
					// queue full, redelivery dropped
				}
			}
		}
	}
}

// Close is a no-op for the in-memory broker.
func (b *Broker) Close() error { return nil }
