// Package storage defines the interface for the shared artifact store.
// Workers write their outputs here; the control plane only records launch
// manifests and injects the store reference into worker environments, so
// the abstraction stays independent of a specific backend (GCS, S3, local
// disk).
package storage

import "context"

// Provider is the common interface for the artifact store.
type Provider interface {
	// Ref returns the backend identifier injected into worker
	// environments as the shared output location.
	Ref() string

	// Save uploads data to the given object path.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards writes; useful for dry runs and tests that do not
// care about manifests.
type NoOpProvider struct{}

// Ref returns a placeholder reference.
func (NoOpProvider) Ref() string { return "noop://" }

// Save does nothing and always returns nil.
func (NoOpProvider) Save(_ context.Context, _ string, _ []byte) error { return nil }
