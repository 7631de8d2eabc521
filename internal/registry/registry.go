// Package registry defines the durable store for Algorithm records.
// The store carries no business logic: conditional create, reads, and the
// narrow write operations the service and the provisioner need. All
// coordination between concurrent invocations happens through these
// operations, never through in-process locks shared across components.
package registry

import (
	"context"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
)

// Store is the persistence boundary for Algorithm records.
//
// Create is conditional on non-existence and returns
// algorithm.ErrAlreadyExists when the id is taken. SetProvisioned is the
// provisioner's commit point: it writes status=ACTIVE together with the
// backend resource identifiers in a single update.
type Store interface {
	Create(ctx context.Context, a algorithm.Algorithm) error
	Get(ctx context.Context, id string) (algorithm.Algorithm, error)
	List(ctx context.Context, limit int) ([]algorithm.Algorithm, error)
	UpdateSpec(ctx context.Context, id string, u algorithm.Update) (algorithm.Algorithm, error)
	SetStatus(ctx context.Context, id string, status algorithm.Status) error
	SetProvisioned(ctx context.Context, id string, rs algorithm.ResourceStatus) error
	SetError(ctx context.Context, id string, msg string) error
}
