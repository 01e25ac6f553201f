// Package store is the durable verification store: method completions,
// verification attempts, QR tokens, verifier profiles and the append-only
// audit trail, backed by Postgres.
//
// Every write is idempotent so the Temporal activity layer can retry freely.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// Store wraps the Postgres connection with all verification operations.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// New wraps an existing connection. Caller owns the connection lifecycle.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

// Open connects to Postgres and verifies connectivity.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return New(db), nil
}

// Close shuts down the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the verification tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.logger.Println("Schema ensured")
	return nil
}

// Tables lists the tables EnsureSchema manages, for operational checks.
func Tables() []string {
	return []string{
		"method_completions",
		"verification_attempts",
		"qr_tokens",
		"verifier_confirmations",
		"verifier_profiles",
		"audit_events",
	}
}

// TableReady reports whether the named table exists and is queryable.
func (s *Store) TableReady(ctx context.Context, table string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check table %s: %w", table, err)
	}
	if !exists {
		return fmt.Errorf("table %s missing, run the worker once to apply the schema", table)
	}
	return nil
}
