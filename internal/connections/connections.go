// Package connections tracks which push connection, if any, currently
// serves each client. A client has at most one live connection; a
// reconnect overwrites the previous row.
package connections

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no connection is registered for a client.
var ErrNotFound = errors.New("connection not found")

// Connection binds a stable client id to the transport-level connection
// currently serving it.
type Connection struct {
	ClientID      string    `json:"client_id"`
	ConnectionRef string    `json:"connection_ref"`
	ConnectedAt   time.Time `json:"connected_at"`
}

// Store is the connection registry. DeleteByConnection with an unknown ref
// is a no-op: disconnect events can race with reconnects, and the stale
// event must not remove the replacement row.
type Store interface {
	Put(ctx context.Context, c Connection) error
	GetByClient(ctx context.Context, clientID string) (Connection, error)
	DeleteByConnection(ctx context.Context, connectionRef string) error
	DeleteByClient(ctx context.Context, clientID string) error
}
