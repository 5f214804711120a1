// Package worker provides the operation execution engine — an Executor
// that drives one invocation of an operation through middleware and its
// job, and a Pool that manages concurrent worker goroutines claiming
// due operations.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/backoff"
	"github.com/braunsonm/cloud-controller-ng/ext"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/middleware"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Job is one invocation-worth of work reconstructed around a persisted
// operation record. Perform mutates the record; the executor persists
// it afterwards. HandleTimeout is invoked instead of Perform once the
// operation's deadline has passed.
type Job interface {
	Perform(ctx context.Context) error
	HandleTimeout(ctx context.Context)
	MaxAttempts() int
	DisplayName() string
}

// Factory reconstructs the job for an operation record. It is called
// on every invocation, so the job carries no state between invocations
// beyond what the record holds.
type Factory func(op *operation.Operation) (Job, error)

// Executor runs a single operation invocation through middleware and
// the job, then handles terminal bookkeeping, rescheduling, and
// lifecycle events.
type Executor struct {
	operations operation.Store
	extensions *ext.Registry
	factory    Factory
	backoff    backoff.Strategy
	cfg        ccng.Config
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	operations operation.Store,
	extensions *ext.Registry,
	factory Factory,
	bo backoff.Strategy,
	cfg ccng.Config,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		operations: operations,
		extensions: extensions,
		factory:    factory,
		backoff:    bo,
		cfg:        cfg,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs one invocation of a claimed operation.
//
// If the operation's deadline has passed, the job's HandleTimeout runs
// instead of Perform and the operation becomes terminal without
// touching the broker. Otherwise Perform runs through the middleware
// chain: an error marks the operation failed (retried only while
// attempts remain under the job's MaxAttempts), a nil return with a
// terminal state completes it, and a nil return with a non-terminal
// state reschedules the next poll.
func (e *Executor) Execute(ctx context.Context, op *operation.Operation) error {
	j, err := e.factory(op)
	if err != nil {
		return fmt.Errorf("no job for operation %s: %w", op.ID, err)
	}

	now := time.Now().UTC()
	if op.FirstStartedAt == nil {
		first := now
		op.FirstStartedAt = &first
	}
	op.StartedAt = &now

	// The deadline is enforced here, between invocations, never inside
	// Perform: a timed-out operation must not reach the broker again.
	if deadline, ok := op.Deadline(); ok && now.After(deadline) {
		return e.handleTimeout(ctx, op, j, now)
	}

	op.Attempts++

	start := time.Now()
	terminal := func(ctx context.Context) error {
		return j.Perform(ctx)
	}
	performErr := e.mw(ctx, op, terminal)
	elapsed := time.Since(start)

	op.Touch()

	if performErr != nil {
		return e.handleFailure(ctx, op, j, performErr, now)
	}

	if op.State.Terminal() {
		return e.handleSuccess(ctx, op, now, elapsed)
	}

	return e.schedulePoll(ctx, op, now)
}

// handleTimeout runs the job's timeout handling and records the
// terminal timed-out state.
func (e *Executor) handleTimeout(ctx context.Context, op *operation.Operation, j Job, now time.Time) error {
	j.HandleTimeout(ctx)

	op.State = operation.StateTimedOut
	op.CompletedAt = &now
	op.WorkerID = id.WorkerID{}
	op.Touch()

	if updateErr := e.operations.UpdateOperation(ctx, op); updateErr != nil {
		e.logger.Error("failed to update operation after timeout",
			slog.String("operation_id", op.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitOperationTimedOut(ctx, op)

	e.logger.Warn("operation timed out",
		slog.String("operation_id", op.ID.String()),
		slog.String("operation", j.DisplayName()),
		slog.Duration("max_duration", op.MaxDuration),
	)

	return nil
}

// handleSuccess marks the operation completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, op *operation.Operation, now time.Time, elapsed time.Duration) error {
	op.CompletedAt = &now
	op.WorkerID = id.WorkerID{}

	if updateErr := e.operations.UpdateOperation(ctx, op); updateErr != nil {
		e.logger.Error("failed to update operation after success",
			slog.String("operation_id", op.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitOperationCompleted(ctx, op, elapsed)
	return nil
}

// handleFailure marks the operation failed, or reschedules it while
// attempts remain under the job's MaxAttempts.
func (e *Executor) handleFailure(ctx context.Context, op *operation.Operation, j Job, performErr error, now time.Time) error {
	op.LastError = performErr.Error()

	if op.Attempts < j.MaxAttempts() {
		return e.scheduleRetry(ctx, op, j, performErr, now)
	}

	op.State = operation.StateFailed
	op.CompletedAt = &now
	op.WorkerID = id.WorkerID{}

	if updateErr := e.operations.UpdateOperation(ctx, op); updateErr != nil {
		e.logger.Error("failed to update operation as failed",
			slog.String("operation_id", op.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitOperationFailed(ctx, op, performErr)

	e.logger.Warn("operation failed",
		slog.String("operation_id", op.ID.String()),
		slog.String("operation", j.DisplayName()),
		slog.Int("attempts", op.Attempts),
		slog.String("error", performErr.Error()),
	)

	return performErr
}

// scheduleRetry sets the operation back to pending with a backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, op *operation.Operation, j Job, performErr error, now time.Time) error {
	delay := backoff.Clamp(e.backoff.Delay(op.Attempts), e.cfg.MinPollingInterval, e.cfg.MaxPollingInterval)
	op.State = operation.StatePending
	op.RunAt = now.Add(delay)
	op.WorkerID = id.WorkerID{}

	if updateErr := e.operations.UpdateOperation(ctx, op); updateErr != nil {
		e.logger.Error("failed to update operation for retry",
			slog.String("operation_id", op.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.logger.Info("operation scheduled for retry",
		slog.String("operation_id", op.ID.String()),
		slog.Int("attempt", op.Attempts),
		slog.Int("max_attempts", j.MaxAttempts()),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("operation %s attempt %d/%d: %w", op.ID, op.Attempts, j.MaxAttempts(), performErr)
}

// schedulePoll returns an in-progress operation to pending with its
// next poll time. The job may have set PollingInterval from the
// broker's Retry-After; otherwise the backoff strategy supplies the
// delay. Either way the interval is clamped to the configured bounds.
func (e *Executor) schedulePoll(ctx context.Context, op *operation.Operation, now time.Time) error {
	delay := op.PollingInterval
	if delay <= 0 {
		delay = e.backoff.Delay(op.Attempts)
	}
	delay = backoff.Clamp(delay, e.cfg.MinPollingInterval, e.cfg.MaxPollingInterval)

	nextRunAt := now.Add(delay)
	op.State = operation.StatePending
	op.RunAt = nextRunAt
	op.WorkerID = id.WorkerID{}

	if updateErr := e.operations.UpdateOperation(ctx, op); updateErr != nil {
		e.logger.Error("failed to update operation for next poll",
			slog.String("operation_id", op.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitOperationPolled(ctx, op, nextRunAt)

	e.logger.Debug("operation poll scheduled",
		slog.String("operation_id", op.ID.String()),
		slog.Duration("delay", delay),
	)

	return nil
}
