// Package pubsub implements the broker interface on Google Cloud Pub/Sub.
// Each control-plane queue maps to a topic plus a single ordered
// subscription; the subscription IAM policy carries the consume grants.
package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/iam"
	gcps "cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mipworks/algo-control-plane/internal/broker"
)

const (
	subscriberRole = "roles/pubsub.subscriber"
	ackDeadline    = 600 * time.Second
)

// Config controls the Pub/Sub broker.
type Config struct {
	ProjectID string
	// MaxOutstanding bounds concurrent handler invocations during Receive.
	MaxOutstanding int
}

// Broker wraps a Pub/Sub client. Authentication uses Application Default
// Credentials, matching the rest of the GCP providers.
type Broker struct {
	client *gcps.Client
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*gcps.Topic
}

// New connects a Pub/Sub client for the configured project.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Broker, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("broker.project_id is required")
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := gcps.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Broker{
		client: client,
		cfg:    cfg,
		logger: logger,
		topics: make(map[string]*gcps.Topic),
	}, nil
}

func subscriptionID(name string) string {
	return name + "-consumer"
}

// EnsureQueue creates the topic and its ordered subscription if absent.
// AlreadyExists from the backend is the idempotent success branch, which is
// what makes retried provisioning signals converge on the same resources.
func (b *Broker) EnsureQueue(ctx context.Context, name string) (broker.QueueRef, error) {
	topic, err := b.client.CreateTopic(ctx, name)
	if status.Code(err) == codes.AlreadyExists {
		topic = b.client.Topic(name)
	} else if err != nil {
		return broker.QueueRef{}, fmt.Errorf("create topic %q: %w", name, err)
	}

	_, err = b.client.CreateSubscription(ctx, subscriptionID(name), gcps.SubscriptionConfig{
		Topic:                 topic,
		AckDeadline:           ackDeadline,
		EnableMessageOrdering: true,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return broker.QueueRef{}, fmt.Errorf("create subscription for %q: %w", name, err)
	}

	b.rememberTopic(name, topic)
	return broker.QueueRef{Name: name, ID: topic.String()}, nil
}

// GrantConsume adds the identity to the subscription's subscriber role.
// The read-modify-write keeps existing bindings for other identities.
func (b *Broker) GrantConsume(ctx context.Context, ref broker.QueueRef, identity string) error {
	handle := b.client.Subscription(subscriptionID(ref.Name)).IAM()
	policy, err := handle.Policy(ctx)
	if err != nil {
		return fmt.Errorf("read subscription policy for %q: %w", ref.Name, err)
	}
	policy.Add(identity, iam.RoleName(subscriberRole))
	if err := handle.SetPolicy(ctx, policy); err != nil {
		return fmt.Errorf("set subscription policy for %q: %w", ref.Name, err)
	}
	return nil
}

// Publish sends the body with the grouping key as the ordering key and
// blocks until the broker acknowledges the message.
func (b *Broker) Publish(ctx context.Context, ref broker.QueueRef, groupKey string, body []byte) (string, error) {
	topic := b.topicFor(ref.Name)
	result := topic.Publish(ctx, &gcps.Message{
		Data:        body,
		OrderingKey: groupKey,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %q: %w", ref.Name, err)
	}
	return id, nil
}

// Receive consumes from the queue's subscription until the context ends.
// Handler errors nack the message so the broker redelivers it.
func (b *Broker) Receive(ctx context.Context, ref broker.QueueRef, handler broker.Handler) error {
	sub := b.client.Subscription(subscriptionID(ref.Name))
	sub.ReceiveSettings.MaxOutstandingMessages = b.cfg.MaxOutstanding
	err := sub.Receive(ctx, func(ctx context.Context, m *gcps.Message) {
		msg := broker.Message{ID: m.ID, GroupKey: m.OrderingKey, Body: m.Data}
		if err := handler(ctx, msg); err != nil {
			b.logger.Warn("message handler failed, nacking",
				zap.String("queue", ref.Name), zap.String("message_id", m.ID), zap.Error(err))
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive from %q: %w", ref.Name, err)
	}
	return nil
}

// Close stops the cached publishers and the underlying client.
func (b *Broker) Close() error {
	b.mu.Lock()
	for _, t := range b.topics {
		t.Stop()
	}
	b.mu.Unlock()
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func (b *Broker) rememberTopic(name string, t *gcps.Topic) {
	t.EnableMessageOrdering = true
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.topics[name]; ok && old != t {
		old.Stop()
	}
	b.topics[name] = t
}

func (b *Broker) topicFor(name string) *gcps.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = b.client.Topic(name)
		t.EnableMessageOrdering = true
		b.topics[name] = t
	}
	return t
}
