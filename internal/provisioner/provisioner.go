// Package provisioner reconciles registered algorithms into live broker and
// compute resources. It is the only writer of observed state: status and
// resource_status move through the lifecycle exclusively here.
//
// Every reconciliation step is idempotent, so a retried or overlapping
// invocation for the same algorithm converges on the same resource set.
// The final registry write is the commit point: a failure before it leaves
// the record at its previous status with last_error set, never silently
// ACTIVE.
package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
	"github.com/mipworks/algo-control-plane/internal/broker"
	"github.com/mipworks/algo-control-plane/internal/metrics"
	"github.com/mipworks/algo-control-plane/internal/orchestrator"
	"github.com/mipworks/algo-control-plane/internal/registry"
	"github.com/mipworks/algo-control-plane/internal/storage"
)

// Action selects the reconciliation path for one invocation.
type Action string

const (
	ActionProvision  Action = "provision"
	ActionUpdate     Action = "update"
	ActionScaleDown  Action = "scale_down"
	ActionDeleteHard Action = "delete_hard"
)

// Request is the asynchronous invocation payload.
type Request struct {
	Action      Action `json:"action"`
	AlgorithmID string `json:"algorithm_id"`
}

// Invoker delivers a Request to the provisioner asynchronously. The
// registry service signals through this interface; the caller never waits
// for reconciliation to finish.
type Invoker interface {
	Invoke(ctx context.Context, req Request) error
}

// Environment variables injected into every worker launch spec. User env
// cannot override these: platform keys win on conflict.
const (
	envRequestQueue = "REQUEST_QUEUE"
	envResultQueue  = "RESULT_QUEUE"
	envOutputRef    = "OUTPUT_LOCATION"
	envAlgorithmID  = "ALGORITHM_ID"
	envAPIBase      = "PLATFORM_API_BASE"
	envAPIKey       = "PLATFORM_API_KEY"
)

const defaultLogRetentionDays = 7

// Config carries the platform-wide settings shared by all launch specs.
type Config struct {
	// WorkerIdentity is the shared identity worker services run as; each
	// provisioned queue grants it consume access.
	WorkerIdentity string
	// ResultQueue is the shared queue workers publish results to.
	ResultQueue broker.QueueRef
	// APIBase and APIKey give workers access to the platform API.
	APIBase string
	APIKey  string
	// LogRetentionDays bounds retention of the workload logs provisioned
	// alongside each launch spec.
	LogRetentionDays int
}

// Provisioner drives the algorithm state machine:
//
//	REGISTERED --provision--> ACTIVE --update--> ACTIVE
//	ACTIVE --scale_down--> SCALED_DOWN --provision/update--> ACTIVE
//	ACTIVE|SCALED_DOWN --delete_hard--> DELETED
//	any --(step fails)--> ERROR
type Provisioner struct {
	store     registry.Store
	broker    broker.Broker
	orch      orchestrator.Orchestrator
	artifacts storage.Provider
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Provisioner.
func New(
	store registry.Store,
	b broker.Broker,
	orch orchestrator.Orchestrator,
	artifacts storage.Provider,
	cfg Config,
	logger *zap.Logger,
) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if artifacts == nil {
		artifacts = storage.NoOpProvider{}
	}
	if cfg.LogRetentionDays <= 0 {
		cfg.LogRetentionDays = defaultLogRetentionDays
	}
	return &Provisioner{
		store:     store,
		broker:    b,
		orch:      orch,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger,
	}
}

// QueueName returns the deterministic request-queue name for an algorithm.
func QueueName(algorithmID string) string {
	return "requests-" + algorithmID
}

// ServiceName returns the deterministic compute-service name for an algorithm.
func ServiceName(algorithmID string) string {
	return "algo-" + algorithmID
}

// Handle runs one invocation. An unknown algorithm is a logged no-op; any
// failing step records ERROR with last_error on the algorithm before the
// error is returned, so the invoking mechanism's retry policy applies while
// operators can diagnose from the registry alone.
func (p *Provisioner) Handle(ctx context.Context, req Request) (err error) {
	rec, getErr := p.store.Get(ctx, req.AlgorithmID)
	if errors.Is(getErr, algorithm.ErrNotFound) {
		p.logger.Warn("algorithm not found, skipping",
			zap.String("algorithm_id", req.AlgorithmID),
			zap.String("action", string(req.Action)))
		metrics.ObserveProvision(string(req.Action), "skipped")
		return nil
	}
	if getErr != nil {
		metrics.ObserveProvision(string(req.Action), "error")
		return fmt.Errorf("read algorithm %q: %w", req.AlgorithmID, getErr)
	}

	defer func() {
		if err == nil {
			metrics.ObserveProvision(string(req.Action), "ok")
			return
		}
		metrics.ObserveProvision(string(req.Action), "error")
		if setErr := p.store.SetError(ctx, rec.ID, err.Error()); setErr != nil {
			p.logger.Error("record reconciliation error",
				zap.String("algorithm_id", rec.ID), zap.Error(setErr))
		}
	}()

	switch req.Action {
	case ActionProvision, ActionUpdate:
		err = p.reconcile(ctx, rec)
	case ActionScaleDown:
		err = p.scaleDown(ctx, rec)
	case ActionDeleteHard:
		err = p.deleteHard(ctx, rec)
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}
	return err
}

// reconcile drives provision and update: both converge backend resources on
// the record's desired state and commit ACTIVE last.
func (p *Provisioner) reconcile(ctx context.Context, rec algorithm.Algorithm) error {
	// 1. Request queue, create-if-absent.
	ref, err := p.broker.EnsureQueue(ctx, QueueName(rec.ID))
	if err != nil {
		return fmt.Errorf("ensure request queue: %w", err)
	}

	// 2. Consume grant for the shared worker identity, additive across
	// algorithms.
	if err := p.broker.GrantConsume(ctx, ref, p.cfg.WorkerIdentity); err != nil {
		return fmt.Errorf("grant queue consumption: %w", err)
	}

	// 3. Launch spec revision with the platform env overlaid on user env.
	spec := orchestrator.LaunchSpec{
		Family:           ServiceName(rec.ID),
		ImageRef:         rec.ImageRef,
		CPU:              rec.CPU,
		Memory:           rec.Memory,
		Command:          append([]string(nil), rec.Command...),
		Env:              p.launchEnv(rec, ref),
		LogRetentionDays: p.cfg.LogRetentionDays,
	}
	revision, err := p.orch.RegisterLaunchSpec(ctx, spec)
	if err != nil {
		return fmt.Errorf("register launch spec: %w", err)
	}
	p.saveManifest(ctx, rec.ID, revision, spec)

	// 4. Create or update the compute service; a describe miss is the
	// create branch, anything else propagates.
	name := ServiceName(rec.ID)
	_, err = p.orch.Describe(ctx, name)
	switch {
	case errors.Is(err, orchestrator.ErrServiceNotFound):
		if err := p.orch.Create(ctx, name, revision, rec.DesiredCount); err != nil {
			return fmt.Errorf("create service: %w", err)
		}
	case err != nil:
		return fmt.Errorf("describe service: %w", err)
	default:
		if err := p.orch.Update(ctx, name, revision, rec.DesiredCount); err != nil {
			return fmt.Errorf("update service: %w", err)
		}
	}

	// 5. Commit point.
	rs := algorithm.ResourceStatus{
		QueueRef:   ref.Name,
		QueueID:    ref.ID,
		ServiceRef: name,
	}
	if err := p.store.SetProvisioned(ctx, rec.ID, rs); err != nil {
		return fmt.Errorf("persist observed state: %w", err)
	}
	p.logger.Info("algorithm reconciled",
		zap.String("algorithm_id", rec.ID),
		zap.String("queue", ref.ID),
		zap.String("service", name),
		zap.String("revision", revision))
	return nil
}

// scaleDown drives the service to zero replicas. The queue and service
// survive so a later provision is cheap.
func (p *Provisioner) scaleDown(ctx context.Context, rec algorithm.Algorithm) error {
	if err := p.orch.SetDesiredCount(ctx, ServiceName(rec.ID), 0); err != nil {
		return fmt.Errorf("scale service to zero: %w", err)
	}
	if err := p.store.SetStatus(ctx, rec.ID, algorithm.StatusScaledDown); err != nil {
		return fmt.Errorf("persist scaled_down status: %w", err)
	}
	p.logger.Info("algorithm scaled down", zap.String("algorithm_id", rec.ID))
	return nil
}

// deleteHard tears the service down best-effort. Teardown failures are
// logged and swallowed so the record still reaches DELETED and the id can
// be reused. The request queue and its grants are intentionally kept:
// deleting them would destroy in-flight messages.
func (p *Provisioner) deleteHard(ctx context.Context, rec algorithm.Algorithm) error {
	name := ServiceName(rec.ID)
	if err := p.orch.SetDesiredCount(ctx, name, 0); err != nil {
		p.logger.Warn("scale to zero before delete failed",
			zap.String("algorithm_id", rec.ID), zap.Error(err))
	}
	if err := p.orch.Delete(ctx, name); err != nil {
		p.logger.Warn("delete service failed",
			zap.String("algorithm_id", rec.ID), zap.Error(err))
	}
	if err := p.store.SetStatus(ctx, rec.ID, algorithm.StatusDeleted); err != nil {
		return fmt.Errorf("persist deleted status: %w", err)
	}
	p.logger.Info("algorithm deleted", zap.String("algorithm_id", rec.ID))
	return nil
}

// launchEnv merges the record's env under the platform-injected keys.
func (p *Provisioner) launchEnv(rec algorithm.Algorithm, queue broker.QueueRef) map[string]string {
	env := make(map[string]string, len(rec.Env)+6)
	for k, v := range rec.Env {
		env[k] = v
	}
	env[envRequestQueue] = queue.ID
	env[envResultQueue] = p.cfg.ResultQueue.ID
	env[envOutputRef] = p.artifacts.Ref()
	env[envAlgorithmID] = rec.ID
	env[envAPIBase] = p.cfg.APIBase
	env[envAPIKey] = p.cfg.APIKey
	return env
}

// saveManifest writes an audit snapshot of the launch spec revision to the
// artifact store. Manifest failures do not fail the reconciliation.
func (p *Provisioner) saveManifest(ctx context.Context, algorithmID, revision string, spec orchestrator.LaunchSpec) {
	manifest, err := json.Marshal(struct {
		AlgorithmID  string                  `json:"algorithm_id"`
		Revision     string                  `json:"revision"`
		RegisteredAt time.Time               `json:"registered_at"`
		Spec         orchestrator.LaunchSpec `json:"spec"`
	}{algorithmID, revision, time.Now().UTC(), spec})
	if err != nil {
		p.logger.Warn("marshal launch manifest", zap.Error(err))
		return
	}
	object := fmt.Sprintf("manifests/%s/%s.json", algorithmID, revision)
	if err := p.artifacts.Save(ctx, object, manifest); err != nil {
		p.logger.Warn("save launch manifest",
			zap.String("object", object), zap.Error(err))
	}
}
