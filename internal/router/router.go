// Package router routes job submissions to per-algorithm request queues.
// A job is accepted only while its algorithm is ACTIVE; every other
// lifecycle state looks identical to a missing algorithm from the caller's
// side.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
	"github.com/mipworks/algo-control-plane/internal/broker"
	"github.com/mipworks/algo-control-plane/internal/metrics"
	"github.com/mipworks/algo-control-plane/internal/registry"
)

// ErrNotRoutable is returned when the algorithm does not exist or is not
// currently accepting jobs. The two cases are deliberately indistinguishable.
var ErrNotRoutable = errors.New("algorithm not found or not active")

// defaultGroupKey orders jobs that carry no job_id behind one another.
const defaultGroupKey = "default"

// Receipt acknowledges an accepted job.
type Receipt struct {
	Message        string `json:"message"`
	QueueMessageID string `json:"queue_message_id"`
}

// Router resolves algorithms and publishes jobs to their request queues.
type Router struct {
	store  registry.Store
	broker broker.Broker
	logger *zap.Logger
}

// New creates a Router.
func New(store registry.Store, b broker.Broker, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: store, broker: b, logger: logger}
}

// Route publishes the payload to the algorithm's request queue. The payload
// is forwarded byte-for-byte; only its job_id field is read, as the
// ordering group key.
func (r *Router) Route(ctx context.Context, algorithmID string, payload []byte) (Receipt, error) {
	rec, err := r.store.Get(ctx, algorithmID)
	if errors.Is(err, algorithm.ErrNotFound) {
		metrics.ObserveRoute("not_found")
		return Receipt{}, ErrNotRoutable
	}
	if err != nil {
		metrics.ObserveRoute("error")
		return Receipt{}, fmt.Errorf("read algorithm %q: %w", algorithmID, err)
	}
	if rec.Status != algorithm.StatusActive {
		metrics.ObserveRoute("not_active")
		return Receipt{}, ErrNotRoutable
	}

	ref := broker.QueueRef{Name: rec.ResourceStatus.QueueRef, ID: rec.ResourceStatus.QueueID}
	msgID, err := r.broker.Publish(ctx, ref, groupKey(payload), payload)
	if err != nil {
		metrics.ObserveRoute("error")
		return Receipt{}, fmt.Errorf("publish job for %q: %w", algorithmID, err)
	}

	metrics.ObserveRoute("accepted")
	r.logger.Info("job routed",
		zap.String("algorithm_id", algorithmID),
		zap.String("queue_message_id", msgID))
	return Receipt{Message: "Job accepted", QueueMessageID: msgID}, nil
}

// groupKey extracts job_id from the payload, falling back to the shared
// default group for payloads without one or that are not JSON objects.
func groupKey(payload []byte) string {
	var probe struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.JobID == "" {
		return defaultGroupKey
	}
	return probe.JobID
}
