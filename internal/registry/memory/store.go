// Package memory provides an in-memory registry store for development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
)

// Store keeps Algorithm records in a mutex-guarded map.
type Store struct {
	mu    sync.RWMutex
	algos map[string]algorithm.Algorithm
	now   func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		algos: make(map[string]algorithm.Algorithm),
		now:   time.Now,
	}
}

// Create inserts the record, failing if the id already exists.
func (s *Store) Create(_ context.Context, a algorithm.Algorithm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.algos[a.ID]; exists {
		return algorithm.ErrAlreadyExists
	}
	s.algos[a.ID] = a.Clone()
	return nil
}

// Get fetches a record by id.
func (s *Store) Get(_ context.Context, id string) (algorithm.Algorithm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.algos[id]
	if !ok {
		return algorithm.Algorithm{}, algorithm.ErrNotFound
	}
	return a.Clone(), nil
}

// List returns up to limit records ordered by id.
func (s *Store) List(_ context.Context, limit int) ([]algorithm.Algorithm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]algorithm.Algorithm, 0, len(s.algos))
	for _, a := range s.algos {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateSpec applies the allow-listed fields and returns the new record.
func (s *Store) UpdateSpec(_ context.Context, id string, u algorithm.Update) (algorithm.Algorithm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.algos[id]
	if !ok {
		return algorithm.Algorithm{}, algorithm.ErrNotFound
	}
	u.ApplyTo(&a)
	a.UpdatedAt = s.now()
	s.algos[id] = a
	return a.Clone(), nil
}

// SetStatus overwrites the lifecycle status.
func (s *Store) SetStatus(_ context.Context, id string, status algorithm.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.algos[id]
	if !ok {
		return algorithm.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = s.now()
	s.algos[id] = a
	return nil
}

// SetProvisioned commits ACTIVE status together with the backend identifiers.
func (s *Store) SetProvisioned(_ context.Context, id string, rs algorithm.ResourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.algos[id]
	if !ok {
		return algorithm.ErrNotFound
	}
	a.Status = algorithm.StatusActive
	a.ResourceStatus = rs
	a.LastError = ""
	a.UpdatedAt = s.now()
	s.algos[id] = a
	return nil
}

// SetError records a reconciliation failure.
func (s *Store) SetError(_ context.Context, id string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.algos[id]
	if !ok {
		return algorithm.ErrNotFound
	}
	a.Status = algorithm.StatusError
	a.LastError = msg
	a.UpdatedAt = s.now()
	s.algos[id] = a
	return nil
}
