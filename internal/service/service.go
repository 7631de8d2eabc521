// Package service implements the algorithm registry operations behind the
// admin and public APIs. Mutations write desired state to the registry and
// signal the provisioning controller; they never wait for reconciliation.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
	"github.com/mipworks/algo-control-plane/internal/provisioner"
	"github.com/mipworks/algo-control-plane/internal/registry"
)

const defaultListLimit = 100

// Service is the admin-facing registry API.
type Service struct {
	store   registry.Store
	invoker provisioner.Invoker
	auth    Authorizer
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Service.
func New(store registry.Store, invoker provisioner.Invoker, auth Authorizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		invoker: invoker,
		auth:    auth,
		logger:  logger,
		now:     time.Now,
	}
}

// Create registers an algorithm and signals provisioning. The conditional
// registry insert makes concurrent registrations of the same id yield
// exactly one winner.
func (s *Service) Create(ctx context.Context, token string, spec algorithm.Spec) (algorithm.Algorithm, error) {
	if err := authorize(s.auth, token, TierWrite); err != nil {
		return algorithm.Algorithm{}, err
	}
	rec, err := algorithm.New(spec, s.now().UTC())
	if err != nil {
		return algorithm.Algorithm{}, err
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return algorithm.Algorithm{}, fmt.Errorf("register algorithm %q: %w", rec.ID, err)
	}
	s.signal(ctx, provisioner.ActionProvision, rec.ID)
	return rec, nil
}

// Get returns the full record, including backend state.
func (s *Service) Get(ctx context.Context, token, id string) (algorithm.Algorithm, error) {
	if err := authorize(s.auth, token, TierRead); err != nil {
		return algorithm.Algorithm{}, err
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return algorithm.Algorithm{}, fmt.Errorf("get algorithm %q: %w", id, err)
	}
	return rec, nil
}

// List returns up to limit records; limit <= 0 applies the default page
// size.
func (s *Service) List(ctx context.Context, token string, limit int) ([]algorithm.Algorithm, error) {
	if err := authorize(s.auth, token, TierRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	recs, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list algorithms: %w", err)
	}
	return recs, nil
}

// Update patches the allow-listed spec fields and signals reconciliation.
func (s *Service) Update(ctx context.Context, token, id string, u algorithm.Update) (algorithm.Algorithm, error) {
	if err := authorize(s.auth, token, TierWrite); err != nil {
		return algorithm.Algorithm{}, err
	}
	if u.IsZero() {
		return algorithm.Algorithm{}, fmt.Errorf("%w: no updatable fields in request", algorithm.ErrNothingToUpdate)
	}
	if err := u.Validate(); err != nil {
		return algorithm.Algorithm{}, err
	}
	rec, err := s.store.UpdateSpec(ctx, id, u)
	if err != nil {
		return algorithm.Algorithm{}, fmt.Errorf("update algorithm %q: %w", id, err)
	}
	s.signal(ctx, provisioner.ActionUpdate, id)
	return rec, nil
}

// Delete tears an algorithm down. hard removes the compute service and
// marks the record DELETED; otherwise the service is scaled to zero and
// the record survives for a later reactivation.
func (s *Service) Delete(ctx context.Context, token, id string, hard bool) error {
	if err := authorize(s.auth, token, TierWrite); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return fmt.Errorf("delete algorithm %q: %w", id, err)
	}
	transitional, action := algorithm.StatusScalingDown, provisioner.ActionScaleDown
	if hard {
		transitional, action = algorithm.StatusDeleting, provisioner.ActionDeleteHard
	}
	if err := s.store.SetStatus(ctx, id, transitional); err != nil {
		return fmt.Errorf("mark algorithm %q %s: %w", id, transitional, err)
	}
	s.signal(ctx, action, id)
	return nil
}

// signal hands the action to the invoker; a failed handoff is logged, the
// record stays in its transitional status for an operator to retry.
func (s *Service) signal(ctx context.Context, action provisioner.Action, id string) {
	err := s.invoker.Invoke(ctx, provisioner.Request{Action: action, AlgorithmID: id})
	if err != nil {
		s.logger.Error("signal provisioner",
			zap.String("action", string(action)),
			zap.String("algorithm_id", id),
			zap.Error(err))
	}
}
