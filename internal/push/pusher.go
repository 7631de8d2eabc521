// Package push consumes the shared result queue and forwards each message
// to the connection registered for its client. Results for clients without
// a live connection are dropped and counted; the queue is not a mailbox.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/broker"
	"github.com/mipworks/algo-control-plane/internal/connections"
	"github.com/mipworks/algo-control-plane/internal/metrics"
)

// ErrGone is returned by a Transport when the connection it was asked to
// write to no longer exists.
var ErrGone = errors.New("connection gone")

// Transport writes a payload to a specific connection.
type Transport interface {
	Post(ctx context.Context, connectionRef string, payload []byte) error
}

// envelope is the part of a result message the pusher needs; the rest of
// the payload is forwarded untouched.
type envelope struct {
	ClientID string `json:"client_id"`
}

// Pusher drains the result queue into the transport.
type Pusher struct {
	broker      broker.Broker
	queue       broker.QueueRef
	connections connections.Store
	transport   Transport
	logger      *zap.Logger
}

// New creates a Pusher.
func New(b broker.Broker, queue broker.QueueRef, store connections.Store, transport Transport, logger *zap.Logger) *Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pusher{
		broker:      b,
		queue:       queue,
		connections: store,
		transport:   transport,
		logger:      logger,
	}
}

// Run consumes the result queue until the context finishes.
func (p *Pusher) Run(ctx context.Context) error {
	err := p.broker.Receive(ctx, p.queue, p.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume result queue: %w", err)
	}
	return nil
}

// handle delivers one result message. Only transient transport failures
// return an error (triggering redelivery); malformed messages, unknown
// recipients and gone connections are terminal for the message.
func (p *Pusher) handle(ctx context.Context, msg broker.Message) error {
	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil || env.ClientID == "" {
		p.logger.Warn("dropping result without client_id",
			zap.String("message_id", msg.ID))
		metrics.ObservePushFailure()
		return nil
	}

	conn, err := p.connections.GetByClient(ctx, env.ClientID)
	if errors.Is(err, connections.ErrNotFound) {
		p.logger.Info("no connection for client, dropping result",
			zap.String("client_id", env.ClientID))
		metrics.ObservePushFailure()
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up connection for %q: %w", env.ClientID, err)
	}

	err = p.transport.Post(ctx, conn.ConnectionRef, msg.Body)
	switch {
	case errors.Is(err, ErrGone):
		// The registry row is stale; clean it up and drop the message.
		if delErr := p.connections.DeleteByClient(ctx, env.ClientID); delErr != nil {
			p.logger.Warn("delete stale connection",
				zap.String("client_id", env.ClientID), zap.Error(delErr))
		}
		metrics.ObserveDisconnected()
		return nil
	case err != nil:
		metrics.ObservePushFailure()
		return fmt.Errorf("post to connection %q: %w", conn.ConnectionRef, err)
	}

	metrics.ObservePush()
	return nil
}
