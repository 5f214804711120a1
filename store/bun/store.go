package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/braunsonm/cloud-controller-ng/audit"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ operation.Store = (*Store)(nil)
	_ binding.Store   = (*Store)(nil)
	_ audit.Store     = (*Store)(nil)
)

// Store is a Bun ORM implementation of store.Store using PostgreSQL
// dialect. The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle — the
// Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// migrations are applied in order; each entry runs at most once.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "0001_operations",
		sql: `
		CREATE TABLE IF NOT EXISTS ccng_operations (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			resource_guid TEXT NOT NULL,
			parameters BYTEA,
			actor_guid TEXT NOT NULL DEFAULT '',
			actor_name TEXT NOT NULL DEFAULT '',
			audit_hash TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'pending',
			first_attempt BOOLEAN NOT NULL DEFAULT TRUE,
			broker_operation TEXT NOT NULL DEFAULT '',
			polling_interval BIGINT NOT NULL DEFAULT 0,
			max_duration BIGINT NOT NULL DEFAULT 0,
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			worker_id TEXT NOT NULL DEFAULT '',
			run_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			first_started_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ccng_operations_claim
			ON ccng_operations (run_at) WHERE state = 'pending';
		CREATE INDEX IF NOT EXISTS idx_ccng_operations_resource
			ON ccng_operations (resource_guid)`,
	},
	{
		name: "0002_bindings",
		sql: `
		CREATE TABLE IF NOT EXISTS ccng_bindings (
			guid TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			service_instance_guid TEXT NOT NULL,
			service_id TEXT NOT NULL DEFAULT '',
			plan_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			app_guid TEXT NOT NULL DEFAULT '',
			route_url TEXT NOT NULL DEFAULT '',
			retrievable BOOLEAN NOT NULL DEFAULT FALSE,
			credentials BYTEA,
			route_service_url TEXT NOT NULL DEFAULT '',
			max_polling_duration BIGINT NOT NULL DEFAULT 0,
			last_operation_type TEXT NOT NULL DEFAULT '',
			last_operation_state TEXT NOT NULL DEFAULT 'initial',
			last_operation_description TEXT NOT NULL DEFAULT '',
			last_operation_updated_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	},
	{
		name: "0003_audit_events",
		sql: `
		CREATE TABLE IF NOT EXISTS ccng_audit_events (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			resource_guid TEXT NOT NULL DEFAULT '',
			actor_guid TEXT NOT NULL DEFAULT '',
			actor_name TEXT NOT NULL DEFAULT '',
			actor_hash TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			outcome TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ccng_audit_events_resource
			ON ccng_audit_events (resource_guid, created_at)`,
	},
}

// Migrate applies all pending schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ccng_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ccng/bun: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM ccng_migrations WHERE name = ?)`,
			m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("ccng/bun: check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		if _, execErr := s.db.ExecContext(ctx, m.sql); execErr != nil {
			return fmt.Errorf("ccng/bun: execute migration %s: %w", m.name, execErr)
		}

		if _, recErr := s.db.ExecContext(ctx,
			`INSERT INTO ccng_migrations (name) VALUES (?)`, m.name,
		); recErr != nil {
			return fmt.Errorf("ccng/bun: record migration %s: %w", m.name, recErr)
		}

		s.logger.Info("applied migration", "name", m.name)
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
