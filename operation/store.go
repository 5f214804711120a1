package operation

import (
	"context"
	"time"

	"github.com/braunsonm/cloud-controller-ng/id"
)

// ListOpts controls pagination and filtering for operation list queries.
type ListOpts struct {
	// Limit is the maximum number of operations to return. Zero means no limit.
	Limit int
	// Offset is the number of operations to skip.
	Offset int
	// Kind filters by operation kind. Empty means all kinds.
	Kind Kind
}

// CountOpts controls filtering for operation count queries.
type CountOpts struct {
	// Kind filters by operation kind. Empty means all kinds.
	Kind Kind
	// State filters by operation state. Empty means all states.
	State State
}

// Store defines the persistence contract for operation records.
type Store interface {
	// EnqueueOperation persists a new operation in pending state.
	EnqueueOperation(ctx context.Context, op *Operation) error

	// ClaimOperations atomically claims up to limit due pending operations,
	// sets them to running, and returns them ordered by RunAt (ascending).
	// At most one worker wins each claim; this is the at-most-one-in-flight
	// guarantee for an operation record.
	ClaimOperations(ctx context.Context, workerID id.WorkerID, limit int) ([]*Operation, error)

	// GetOperation retrieves an operation by ID.
	GetOperation(ctx context.Context, opID id.OperationID) (*Operation, error)

	// UpdateOperation persists changes to an existing operation.
	UpdateOperation(ctx context.Context, op *Operation) error

	// DeleteOperation removes an operation by ID.
	DeleteOperation(ctx context.Context, opID id.OperationID) error

	// ListOperationsByState returns operations matching the given state.
	ListOperationsByState(ctx context.Context, state State, opts ListOpts) ([]*Operation, error)

	// ExpiredOperations returns non-terminal operations whose deadline
	// (FirstStartedAt + MaxDuration) passed before now. Used by the clock
	// to fire timeout handling for operations no worker will poll again.
	ExpiredOperations(ctx context.Context, now time.Time) ([]*Operation, error)

	// StaleOperations returns running operations not updated for longer
	// than threshold, indicating the claiming worker may have crashed.
	StaleOperations(ctx context.Context, threshold time.Duration) ([]*Operation, error)

	// PruneTerminalOperations removes terminal operations completed before
	// the given time and returns how many were removed.
	PruneTerminalOperations(ctx context.Context, before time.Time) (int64, error)

	// CountOperations returns the number of operations matching the options.
	CountOperations(ctx context.Context, opts CountOpts) (int64, error)
}
