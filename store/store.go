// Package store defines the aggregate persistence interface. Each
// subsystem (operation, binding, audit) defines its own store
// interface; the composite Store composes them all. Backends: Bun
// (Postgres), Redis, and Memory.
package store

import (
	"context"

	"github.com/braunsonm/cloud-controller-ng/audit"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (bun, redis, memory) implements all of them.
type Store interface {
	operation.Store
	binding.Store
	audit.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
