package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/broker"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// CreateBindingJob is one resumable binding-create operation. The
// scheduler reconstructs it around the persisted operation record on
// every invocation; Perform mutates the record and the scheduler
// persists it afterwards.
//
// The job is re-entrant but not re-entrant-safe: the scheduler guarantees
// at most one invocation of an operation is in flight at a time.
type CreateBindingJob struct {
	op       *operation.Operation
	backend  binding.Backend
	bindings binding.Store
	logger   *slog.Logger
}

// NewCreateBinding builds the job for one scheduler invocation of op.
func NewCreateBinding(op *operation.Operation, backend binding.Backend, bindings binding.Store, logger *slog.Logger) *CreateBindingJob {
	return &CreateBindingJob{
		op:       op,
		backend:  backend,
		bindings: bindings,
		logger:   logger,
	}
}

// MaxAttempts is always 1: the scheduler must never re-invoke a failed
// Perform. Polling repetition happens only while Perform keeps returning
// nil with the operation still in progress.
func (j *CreateBindingJob) MaxAttempts() int { return 1 }

// DisplayName returns the operation's presentation name.
func (j *CreateBindingJob) DisplayName() string { return j.backend.DisplayName() }

// ResourceType returns the target resource's presentation type.
func (j *CreateBindingJob) ResourceType() string { return j.backend.ResourceType() }

// ResourceGUID returns the GUID of the binding the job operates on.
func (j *CreateBindingJob) ResourceGUID() string { return j.op.ResourceGUID }

// Perform runs one invocation of the operation.
//
// First invocation: load the resource (missing resource fails with
// KindNotFound before any broker call), issue the bind, and either finish
// immediately on a synchronous completion or record the broker's
// operation key and stay in progress. Subsequent invocations: poll the
// broker; a succeeded poll finalizes and finishes, an in-progress poll
// leaves the operation pending with the broker's suggested Retry-After
// (if any) as the next polling interval.
//
// A nil return with a non-terminal operation state means "in progress";
// every non-nil error is a *Failure.
func (j *CreateBindingJob) Perform(ctx context.Context) error {
	b, err := j.bindings.GetBinding(ctx, j.op.ResourceGUID)
	if err != nil {
		if errors.Is(err, ccng.ErrBindingNotFound) {
			return j.fail(ctx, &Failure{Kind: KindNotFound, Operation: j.DisplayName(), Err: err})
		}
		return j.fail(ctx, &Failure{Kind: KindBackendFailure, Operation: j.DisplayName(), Err: err})
	}

	// The maximum duration is read fresh from the plan on every
	// invocation, so a plan update mid-operation takes effect.
	if maxDur, durErr := j.bindings.MaxPollingDuration(ctx, b.GUID); durErr == nil && maxDur > 0 {
		j.op.MaxDuration = maxDur
	}

	if j.op.FirstAttempt {
		return j.bind(ctx, b)
	}
	return j.poll(ctx, b)
}

// bind issues the one-and-only bind call for this operation.
func (j *CreateBindingJob) bind(ctx context.Context, b *binding.Binding) error {
	// Flip the guard before the call: even if this invocation ends in a
	// terminal failure, no later invocation may re-issue the bind.
	j.op.FirstAttempt = false

	res, err := j.backend.Bind(ctx, b, j.op.Parameters)
	if err != nil {
		return j.fail(ctx, j.classify(err))
	}

	if res.Complete {
		// Synchronous completion: the resource is already terminal, no
		// poll will ever run.
		return j.finish(ctx, b)
	}

	j.op.BrokerOperation = res.Operation
	return j.markInProgress(ctx, b)
}

// poll checks the broker once and either finishes or stays in progress.
func (j *CreateBindingJob) poll(ctx context.Context, b *binding.Binding) error {
	res, err := j.backend.Poll(ctx, b, j.op.BrokerOperation)
	if err != nil {
		return j.fail(ctx, j.classify(err))
	}

	if !res.Finished {
		if res.RetryAfter > 0 {
			// The broker's suggestion overrides the scheduler's default
			// delay for the next invocation.
			j.op.PollingInterval = res.RetryAfter
		}
		return nil
	}

	if finErr := j.backend.Finalize(ctx, b); finErr != nil {
		return j.fail(ctx, j.classify(finErr))
	}
	return j.finish(ctx, b)
}

// HandleTimeout persists the timed-out disposition on the binding. It is
// invoked by the scheduler instead of Perform once the deadline passes,
// runs without involving the backend, and never reports an error: it may
// execute on shutdown paths where there is nobody left to handle one.
func (j *CreateBindingJob) HandleTimeout(ctx context.Context) {
	f := &Failure{Kind: KindTimedOut, Operation: j.DisplayName()}
	j.op.State = operation.StateTimedOut
	j.op.LastError = f.Error()

	if err := j.bindings.SaveWithOperation(ctx, j.op.ResourceGUID, binding.LastOperation{
		Type:        "create",
		State:       binding.StateFailed,
		Description: f.Error(),
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		j.logger.Error("failed to persist timeout disposition",
			slog.String("operation_id", j.op.ID.String()),
			slog.String("resource_guid", j.op.ResourceGUID),
			slog.String("error", err.Error()),
		)
	}
}

// classify converts a backend error into the job's stable failure taxonomy.
func (j *CreateBindingJob) classify(err error) *Failure {
	if errors.Is(err, broker.ErrBindingNotRetrievable) {
		return &Failure{Kind: KindBindingNotRetrievable, Operation: j.DisplayName(), Err: err}
	}
	return &Failure{Kind: KindBackendFailure, Operation: j.DisplayName(), Err: err}
}

// finish records the terminal success on both the binding and the
// operation record.
func (j *CreateBindingJob) finish(ctx context.Context, b *binding.Binding) error {
	if err := j.bindings.SaveWithOperation(ctx, b.GUID, binding.LastOperation{
		Type:      "create",
		State:     binding.StateSucceeded,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return j.fail(ctx, &Failure{Kind: KindBackendFailure, Operation: j.DisplayName(), Err: err})
	}

	j.op.State = operation.StateSucceeded
	return nil
}

// markInProgress reflects the accepted-but-pending bind on the binding.
func (j *CreateBindingJob) markInProgress(ctx context.Context, b *binding.Binding) error {
	if err := j.bindings.SaveWithOperation(ctx, b.GUID, binding.LastOperation{
		Type:      "create",
		State:     binding.StateInProgress,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return j.fail(ctx, &Failure{Kind: KindBackendFailure, Operation: j.DisplayName(), Err: err})
	}
	return nil
}

// fail records the failed disposition on the binding (when it still
// exists) and returns the failure. The operation record's state is left
// to the scheduler, which owns terminal bookkeeping for Perform errors.
func (j *CreateBindingJob) fail(ctx context.Context, f *Failure) error {
	j.op.LastError = f.Error()

	if f.Kind != KindNotFound {
		if err := j.bindings.SaveWithOperation(ctx, j.op.ResourceGUID, binding.LastOperation{
			Type:        "create",
			State:       binding.StateFailed,
			Description: f.Error(),
			UpdatedAt:   time.Now().UTC(),
		}); err != nil {
			j.logger.Error("failed to persist failure disposition",
				slog.String("operation_id", j.op.ID.String()),
				slog.String("resource_guid", j.op.ResourceGUID),
				slog.String("error", err.Error()),
			)
		}
	}

	return f
}
