// Package dispatch delivers provisioning requests to the controller
// asynchronously. API handlers enqueue and return immediately; a worker
// pool drains the channel and runs the controller, retrying failed
// invocations a bounded number of times.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/provisioner"
)

const (
	defaultDepth    = 128
	defaultWorkers  = 2
	defaultAttempts = 3
)

// Handler processes one provisioning request.
type Handler interface {
	Handle(ctx context.Context, req provisioner.Request) error
}

// Options tune the pool; zero values fall back to the defaults.
type Options struct {
	Depth       int
	Workers     int
	MaxAttempts int
}

type job struct {
	req     provisioner.Request
	attempt int
}

// Dispatcher is a bounded in-process invocation queue. It implements
// provisioner.Invoker.
type Dispatcher struct {
	handler Handler
	jobs    chan job
	opts    Options
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(handler Handler, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Depth <= 0 {
		opts.Depth = defaultDepth
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handler: handler,
		jobs:    make(chan job, opts.Depth),
		opts:    opts,
		logger:  logger,
	}
}

// Invoke enqueues a request without waiting for it to run. A full queue is
// reported to the caller rather than blocking the API path.
func (d *Dispatcher) Invoke(ctx context.Context, req provisioner.Request) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("invoke canceled: %w", ctx.Err())
	case d.jobs <- job{req: req, attempt: 1}:
		return nil
	default:
		return fmt.Errorf("dispatch queue full, dropping %s for %q", req.Action, req.AlgorithmID)
	}
}

// Run starts the worker pool and blocks until the context finishes and all
// in-flight invocations have returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.process(ctx, j)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	err := d.handler.Handle(ctx, j.req)
	if err == nil {
		return
	}
	if j.attempt >= d.opts.MaxAttempts {
		d.logger.Error("provisioning request exhausted retries",
			zap.String("action", string(j.req.Action)),
			zap.String("algorithm_id", j.req.AlgorithmID),
			zap.Int("attempts", j.attempt),
			zap.Error(err))
		return
	}
	d.logger.Warn("provisioning request failed, requeueing",
		zap.String("action", string(j.req.Action)),
		zap.String("algorithm_id", j.req.AlgorithmID),
		zap.Int("attempt", j.attempt),
		zap.Error(err))
	select {
	case d.jobs <- job{req: j.req, attempt: j.attempt + 1}:
	default:
		d.logger.Error("dispatch queue full, dropping retry",
			zap.String("algorithm_id", j.req.AlgorithmID))
	}
}
