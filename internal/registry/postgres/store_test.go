package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
)

func newAlgo(t *testing.T) algorithm.Algorithm {
	t.Helper()
	a, err := algorithm.New(algorithm.Spec{ID: "denoise-v1", ImageRef: "registry/denoise:1"}, time.Unix(1700000000, 0).UTC())
	require.NoError(t, err)
	return a
}

func TestCreateInsertsConditionally(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	a := newAlgo(t)
	record, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO algorithms").
		WithArgs(a.ID, record, string(algorithm.StatusRegistered), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConflictIsAlreadyExists(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	a := newAlgo(t)
	mock.ExpectExec("INSERT INTO algorithms").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.Create(context.Background(), a)
	require.ErrorIs(t, err, algorithm.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnmarshalsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	a := newAlgo(t)
	record, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record FROM algorithms").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(record))

	got, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, algorithm.StatusRegistered, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record FROM algorithms").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"record"}))

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, algorithm.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetProvisionedCommitsStatusAndResources(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	a := newAlgo(t)
	record, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record FROM algorithms").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(record))
	mock.ExpectExec("UPDATE algorithms SET").
		WithArgs(a.ID, pgxmock.AnyArg(), string(algorithm.StatusActive), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rs := algorithm.ResourceStatus{QueueRef: "requests-denoise-v1", QueueID: "q-1", ServiceRef: "algo-denoise-v1"}
	require.NoError(t, store.SetProvisioned(context.Background(), a.ID, rs))
	require.NoError(t, mock.ExpectationsWereMet())
}
