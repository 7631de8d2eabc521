// Package memory provides an in-memory compute orchestrator for
// development and tests. It records launch-spec revisions and services the
// way a real backend would, so reconciliation logic can be exercised
// without cloud credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mipworks/algo-control-plane/internal/orchestrator"
)

// Orchestrator is a mutex-guarded fake compute backend.
type Orchestrator struct {
	mu        sync.Mutex
	revisions map[string][]orchestrator.LaunchSpec
	services  map[string]orchestrator.Service
}

// New constructs an empty Orchestrator.
func New() *Orchestrator {
	return &Orchestrator{
		revisions: make(map[string][]orchestrator.LaunchSpec),
		services:  make(map[string]orchestrator.Service),
	}
}

// RegisterLaunchSpec appends a new immutable revision for the family.
func (o *Orchestrator) RegisterLaunchSpec(_ context.Context, spec orchestrator.LaunchSpec) (string, error) {
	if spec.Family == "" {
		return "", fmt.Errorf("launch spec family is required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revisions[spec.Family] = append(o.revisions[spec.Family], spec)
	return fmt.Sprintf("%s:%d", spec.Family, len(o.revisions[spec.Family])), nil
}

// Describe returns the service or ErrServiceNotFound.
func (o *Orchestrator) Describe(_ context.Context, name string) (orchestrator.Service, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	svc, ok := o.services[name]
	if !ok {
		return orchestrator.Service{}, orchestrator.ErrServiceNotFound
	}
	return svc, nil
}

// Create registers a fresh service.
func (o *Orchestrator) Create(_ context.Context, name, revision string, desiredCount int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.services[name]; ok {
		return fmt.Errorf("service %q already exists", name)
	}
	o.services[name] = orchestrator.Service{Name: name, Revision: revision, DesiredCount: desiredCount}
	return nil
}

// Update points an existing service at a new revision and count.
func (o *Orchestrator) Update(_ context.Context, name, revision string, desiredCount int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	svc, ok := o.services[name]
	if !ok {
		return orchestrator.ErrServiceNotFound
	}
	svc.Revision = revision
	svc.DesiredCount = desiredCount
	o.services[name] = svc
	return nil
}

// SetDesiredCount adjusts replica count only.
func (o *Orchestrator) SetDesiredCount(_ context.Context, name string, desiredCount int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	svc, ok := o.services[name]
	if !ok {
		return orchestrator.ErrServiceNotFound
	}
	svc.DesiredCount = desiredCount
	o.services[name] = svc
	return nil
}

// Delete removes the service; deleting a missing service is an error so
// callers can decide whether to swallow it.
func (o *Orchestrator) Delete(_ context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.services[name]; !ok {
		return orchestrator.ErrServiceNotFound
	}
	delete(o.services, name)
	return nil
}

// RevisionCount reports how many launch-spec revisions exist for a family.
func (o *Orchestrator) RevisionCount(family string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.revisions[family])
}

// LatestSpec returns the most recent launch spec for a family.
func (o *Orchestrator) LatestSpec(family string) (orchestrator.LaunchSpec, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	revs := o.revisions[family]
	if len(revs) == 0 {
		return orchestrator.LaunchSpec{}, false
	}
	return revs[len(revs)-1], true
}

// ServiceCount reports how many services exist.
func (o *Orchestrator) ServiceCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.services)
}
