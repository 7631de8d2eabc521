package service

import (
	"context"
	"fmt"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
)

// PublicStatus is the coarse status exposed to end users.
type PublicStatus string

const (
	PublicActive   PublicStatus = "ACTIVE"
	PublicInactive PublicStatus = "INACTIVE"
	PublicPending  PublicStatus = "PENDING"
	PublicUnknown  PublicStatus = "UNKNOWN"
)

// PublicAlgorithm is the unauthenticated catalog projection. The image
// ref, env, backend resources and errors never leave the admin surface.
type PublicAlgorithm struct {
	ID           string       `json:"algorithm_id"`
	Name         string       `json:"name,omitempty"`
	Description  string       `json:"description,omitempty"`
	Version      string       `json:"version,omitempty"`
	Category     string       `json:"category,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	Status       PublicStatus `json:"status"`
	CPU          int          `json:"cpu"`
	Memory       int          `json:"memory"`
	DesiredCount int          `json:"desired_count"`
}

// PublicList returns the visible catalog entries.
func (s *Service) PublicList(ctx context.Context, limit int) ([]PublicAlgorithm, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	recs, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list algorithms: %w", err)
	}
	out := make([]PublicAlgorithm, 0, len(recs))
	for _, rec := range recs {
		if hiddenStatus(rec.Status) {
			continue
		}
		out = append(out, project(rec))
	}
	return out, nil
}

// PublicGet returns one catalog entry. Hidden records answer exactly like
// missing ones.
func (s *Service) PublicGet(ctx context.Context, id string) (PublicAlgorithm, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return PublicAlgorithm{}, fmt.Errorf("get algorithm %q: %w", id, err)
	}
	if hiddenStatus(rec.Status) {
		return PublicAlgorithm{}, fmt.Errorf("get algorithm %q: %w", id, algorithm.ErrNotFound)
	}
	return project(rec), nil
}

func project(rec algorithm.Algorithm) PublicAlgorithm {
	return PublicAlgorithm{
		ID:           rec.ID,
		Name:         rec.Name,
		Description:  rec.Description,
		Version:      rec.Version,
		Category:     rec.Category,
		Tags:         rec.Tags,
		Status:       normalizeStatus(rec.Status),
		CPU:          rec.CPU,
		Memory:       rec.Memory,
		DesiredCount: rec.DesiredCount,
	}
}

// hiddenStatus marks lifecycle states that should not appear in the public
// catalog at all.
func hiddenStatus(s algorithm.Status) bool {
	switch s {
	case algorithm.StatusError, algorithm.StatusDeleting, algorithm.StatusDeleted:
		return true
	}
	return false
}

// normalizeStatus collapses internal lifecycle states to the public enum.
func normalizeStatus(s algorithm.Status) PublicStatus {
	switch s {
	case algorithm.StatusActive:
		return PublicActive
	case algorithm.StatusRegistered:
		return PublicPending
	case algorithm.StatusScalingDown, algorithm.StatusScaledDown:
		return PublicInactive
	}
	return PublicUnknown
}
