// Package store persists user records and rolling conversation summaries in
// PostgreSQL.
//
// Two tables back the whole system: users (id, name unique, prompt) and
// conversations (user_id unique, summary). The schema is created idempotently
// at startup via [Store.Migrate]. All operations are single-statement and
// safe for concurrent use.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no user.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by CreateUser when the name is already taken.
var ErrConflict = errors.New("store: name already exists")

// Schema is the SQL DDL for the users and conversations tables. Execute it
// via [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id     BIGSERIAL PRIMARY KEY,
    name   TEXT NOT NULL UNIQUE,
    prompt TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS conversations (
    user_id BIGINT PRIMARY KEY REFERENCES users(id),
    summary TEXT NOT NULL DEFAULT ''
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store exposes the user and summary persistence operations over a single
// PostgreSQL connection pool.
type Store struct {
	db DB

	// pool is set only when the Store owns its pool (created via New).
	pool *pgxpool.Pool
}

// New establishes a connection pool to the PostgreSQL database at dsn, pings
// it, and runs [Store.Migrate] so the schema exists before the first query.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection or pool without taking ownership.
// The caller is responsible for running [Store.Migrate] and for closing the
// underlying connection.
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL, creating the users and conversations
// tables if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping probes database connectivity. Used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

// Close releases all connections held by the pool, when the Store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
