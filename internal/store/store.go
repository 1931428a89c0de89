// Package store owns alert persistence and the read models the detectors
// and dispatcher consume. All alert mutation goes through the three
// operations here; each is individually atomic at the database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned for operations on an alert id that does
	// not exist.
	ErrNotFound = errors.New("alert not found")
	// ErrAlreadyResolved is returned by Resolve when the alert is
	// already in its terminal state. The original resolution metadata
	// is returned alongside it.
	ErrAlreadyResolved = errors.New("alert already resolved")
)

// Store wraps the Postgres connection.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens the database and verifies the connection.
func New(databaseURL string, log zerolog.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "store").Logger()}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "store").Logger()}
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
