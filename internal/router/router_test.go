package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
	"github.com/mipworks/algo-control-plane/internal/broker"
	brokermem "github.com/mipworks/algo-control-plane/internal/broker/memory"
	registrymem "github.com/mipworks/algo-control-plane/internal/registry/memory"
)

func newRouter(t *testing.T) (*Router, *registrymem.Store, *brokermem.Broker) {
	t.Helper()
	store := registrymem.NewStore()
	b := brokermem.New(0)
	return New(store, b, zap.NewNop()), store, b
}

func activate(t *testing.T, store *registrymem.Store, b *brokermem.Broker, id string) broker.QueueRef {
	t.Helper()
	ctx := context.Background()
	rec, err := algorithm.New(algorithm.Spec{ID: id, ImageRef: "registry.example/" + id + ":v1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, rec))
	ref, err := b.EnsureQueue(ctx, "requests-"+id)
	require.NoError(t, err)
	require.NoError(t, store.SetProvisioned(ctx, id, algorithm.ResourceStatus{
		QueueRef: ref.Name,
		QueueID:  ref.ID,
	}))
	return ref
}

func TestRouteToActiveAlgorithm(t *testing.T) {
	t.Parallel()
	r, store, b := newRouter(t)
	ref := activate(t, store, b, "price-fit")
	ctx := context.Background()

	receipt, err := r.Route(ctx, "price-fit", []byte(`{"job_id":"j-42","input":"gs://in/x"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.QueueMessageID)
	assert.Equal(t, "Job accepted", receipt.Message)

	done := make(chan broker.Message, 1)
	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = b.Receive(recvCtx, ref, func(_ context.Context, msg broker.Message) error {
			done <- msg
			cancel()
			return nil
		})
	}()
	select {
	case msg := <-done:
		assert.Equal(t, "j-42", msg.GroupKey)
		assert.JSONEq(t, `{"job_id":"j-42","input":"gs://in/x"}`, string(msg.Body))
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
}

func TestRouteStatusMatrix(t *testing.T) {
	t.Parallel()
	statuses := []algorithm.Status{
		algorithm.StatusRegistered,
		algorithm.StatusError,
		algorithm.StatusScalingDown,
		algorithm.StatusScaledDown,
		algorithm.StatusDeleting,
		algorithm.StatusDeleted,
	}
	for _, status := range statuses {
		status := status
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()
			r, store, b := newRouter(t)
			activate(t, store, b, "price-fit")
			ctx := context.Background()
			require.NoError(t, store.SetStatus(ctx, "price-fit", status))

			_, err := r.Route(ctx, "price-fit", []byte(`{}`))
			assert.ErrorIs(t, err, ErrNotRoutable)
		})
	}
}

func TestRouteUnknownAlgorithm(t *testing.T) {
	t.Parallel()
	r, _, _ := newRouter(t)

	_, err := r.Route(context.Background(), "missing", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotRoutable)
}

func TestGroupKeyFallsBackToDefault(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "default", groupKey([]byte(`{}`)))
	assert.Equal(t, "default", groupKey([]byte(`not json`)))
	assert.Equal(t, "default", groupKey([]byte(`{"job_id":""}`)))
	assert.Equal(t, "j-1", groupKey([]byte(`{"job_id":"j-1"}`)))
}
