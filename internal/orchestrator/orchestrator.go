// Package orchestrator defines the interface to the compute backend that
// runs worker services. The real backend (ECS, Cloud Run, Nomad, ...) is an
// external collaborator; the control plane only needs launch-spec
// registration and service create/update/delete with a describe-by-name
// existence check.
package orchestrator

import (
	"context"
	"errors"
)

// ErrServiceNotFound is the legal miss from Describe: the reconciler
// branches to Create on it, any other error propagates.
var ErrServiceNotFound = errors.New("service not found")

// LaunchSpec describes one worker service revision. Registering a spec is
// append-only: each call yields a new immutable revision.
type LaunchSpec struct {
	Family           string
	ImageRef         string
	CPU              int
	Memory           int
	Command          []string
	Env              map[string]string
	LogRetentionDays int
}

// Service is the observed state of a deployed worker service.
type Service struct {
	Name         string
	Revision     string
	DesiredCount int
}

// Orchestrator manages long-running worker services.
type Orchestrator interface {
	RegisterLaunchSpec(ctx context.Context, spec LaunchSpec) (revision string, err error)
	Describe(ctx context.Context, name string) (Service, error)
	Create(ctx context.Context, name, revision string, desiredCount int) error
	Update(ctx context.Context, name, revision string, desiredCount int) error
	SetDesiredCount(ctx context.Context, name string, desiredCount int) error
	Delete(ctx context.Context, name string) error
}
