package ext

import (
	"context"
	"time"

	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Operation lifecycle hooks
// ──────────────────────────────────────────────────

// OperationEnqueued is called after an operation is accepted and persisted.
type OperationEnqueued interface {
	OnOperationEnqueued(ctx context.Context, op *operation.Operation) error
}

// OperationStarted is called when a worker begins an invocation.
type OperationStarted interface {
	OnOperationStarted(ctx context.Context, op *operation.Operation) error
}

// OperationPolled is called after an invocation that left the operation
// in progress; nextRunAt is when the scheduler will invoke it again.
type OperationPolled interface {
	OnOperationPolled(ctx context.Context, op *operation.Operation, nextRunAt time.Time) error
}

// OperationCompleted is called after an operation reaches its terminal
// success state.
type OperationCompleted interface {
	OnOperationCompleted(ctx context.Context, op *operation.Operation, elapsed time.Duration) error
}

// OperationFailed is called when an operation fails terminally.
type OperationFailed interface {
	OnOperationFailed(ctx context.Context, op *operation.Operation, err error) error
}

// OperationTimedOut is called when an operation exceeds its maximum
// duration and its timeout handling has run.
type OperationTimedOut interface {
	OnOperationTimedOut(ctx context.Context, op *operation.Operation) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// MaintenanceFired is called when a clock maintenance task runs.
type MaintenanceFired interface {
	OnMaintenanceFired(ctx context.Context, task string, affected int64) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
