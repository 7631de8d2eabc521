// Package postgres provides the Postgres-backed registry store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
)

// Schema is the DDL the store expects; applied out of band by deploy tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS algorithms (
	algorithm_id TEXT PRIMARY KEY,
	record       JSONB NOT NULL,
	status       TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);`

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists Algorithm records as JSONB rows keyed by algorithm_id.
// The conditional create relies on the primary key plus ON CONFLICT DO
// NOTHING, so concurrent registrations race safely in the database.
type Store struct {
	pool dbConn
	now  func() time.Time
}

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("registry.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool dbConn) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts the record, failing if the id already exists.
func (s *Store) Create(ctx context.Context, a algorithm.Algorithm) error {
	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO algorithms (algorithm_id, record, status, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (algorithm_id) DO NOTHING`,
		a.ID, record, string(a.Status), s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert algorithm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return algorithm.ErrAlreadyExists
	}
	return nil
}

// Get fetches a record by id.
func (s *Store) Get(ctx context.Context, id string) (algorithm.Algorithm, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM algorithms WHERE algorithm_id = $1`, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return algorithm.Algorithm{}, algorithm.ErrNotFound
	}
	if err != nil {
		return algorithm.Algorithm{}, fmt.Errorf("select algorithm: %w", err)
	}
	var a algorithm.Algorithm
	if err := json.Unmarshal(record, &a); err != nil {
		return algorithm.Algorithm{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return a, nil
}

// List returns up to limit records ordered by id.
func (s *Store) List(ctx context.Context, limit int) ([]algorithm.Algorithm, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM algorithms ORDER BY algorithm_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select algorithms: %w", err)
	}
	defer rows.Close()

	var out []algorithm.Algorithm
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var a algorithm.Algorithm
		if err := json.Unmarshal(record, &a); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// UpdateSpec applies the allow-listed fields and returns the new record.
func (s *Store) UpdateSpec(ctx context.Context, id string, u algorithm.Update) (algorithm.Algorithm, error) {
	var updated algorithm.Algorithm
	err := s.mutate(ctx, id, func(a *algorithm.Algorithm) {
		u.ApplyTo(a)
		updated = *a
	})
	if err != nil {
		return algorithm.Algorithm{}, err
	}
	return updated, nil
}

// SetStatus overwrites the lifecycle status.
func (s *Store) SetStatus(ctx context.Context, id string, status algorithm.Status) error {
	return s.mutate(ctx, id, func(a *algorithm.Algorithm) {
		a.Status = status
	})
}

// SetProvisioned commits ACTIVE status together with the backend identifiers.
func (s *Store) SetProvisioned(ctx context.Context, id string, rs algorithm.ResourceStatus) error {
	return s.mutate(ctx, id, func(a *algorithm.Algorithm) {
		a.Status = algorithm.StatusActive
		a.ResourceStatus = rs
		a.LastError = ""
	})
}

// SetError records a reconciliation failure.
func (s *Store) SetError(ctx context.Context, id string, msg string) error {
	return s.mutate(ctx, id, func(a *algorithm.Algorithm) {
		a.Status = algorithm.StatusError
		a.LastError = msg
	})
}

func (s *Store) mutate(ctx context.Context, id string, apply func(*algorithm.Algorithm)) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	apply(&a)
	a.UpdatedAt = s.now().UTC()
	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE algorithms SET record = $2, status = $3, updated_at = $4
WHERE algorithm_id = $1`,
		id, record, string(a.Status), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update algorithm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return algorithm.ErrNotFound
	}
	return nil
}
