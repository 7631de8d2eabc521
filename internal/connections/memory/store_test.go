package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mipworks/algo-control-plane/internal/connections"
)

func TestPutOverwritesPreviousConnection(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, connections.Connection{ClientID: "c1", ConnectionRef: "conn-a", ConnectedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, connections.Connection{ClientID: "c1", ConnectionRef: "conn-b", ConnectedAt: time.Now()}))

	got, err := s.GetByClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "conn-b", got.ConnectionRef)
	assert.Equal(t, 1, s.Len())
}

func TestStaleDisconnectDoesNotRemoveReplacement(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, connections.Connection{ClientID: "c1", ConnectionRef: "conn-a"}))
	require.NoError(t, s.Put(ctx, connections.Connection{ClientID: "c1", ConnectionRef: "conn-b"}))

	// Disconnect event for the old connection arrives late.
	require.NoError(t, s.DeleteByConnection(ctx, "conn-a"))

	got, err := s.GetByClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "conn-b", got.ConnectionRef)
}

func TestDeleteByConnection(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, connections.Connection{ClientID: "c1", ConnectionRef: "conn-a"}))
	require.NoError(t, s.DeleteByConnection(ctx, "conn-a"))

	_, err := s.GetByClient(ctx, "c1")
	assert.ErrorIs(t, err, connections.ErrNotFound)
	// Deleting again is a no-op.
	assert.NoError(t, s.DeleteByConnection(ctx, "conn-a"))
}

func TestDeleteByClient(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, connections.Connection{ClientID: "c1", ConnectionRef: "conn-a"}))
	require.NoError(t, s.DeleteByClient(ctx, "c1"))

	_, err := s.GetByClient(ctx, "c1")
	assert.ErrorIs(t, err, connections.ErrNotFound)
	assert.NoError(t, s.DeleteByClient(ctx, "c1"))
}

func TestGetUnknownClient(t *testing.T) {
	t.Parallel()
	s := NewStore()
	_, err := s.GetByClient(context.Background(), "nobody")
	assert.ErrorIs(t, err, connections.ErrNotFound)
}
