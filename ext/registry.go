package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type operationEnqueuedEntry struct {
	name string
	hook OperationEnqueued
}

type operationStartedEntry struct {
	name string
	hook OperationStarted
}

type operationPolledEntry struct {
	name string
	hook OperationPolled
}

type operationCompletedEntry struct {
	name string
	hook OperationCompleted
}

type operationFailedEntry struct {
	name string
	hook OperationFailed
}

type operationTimedOutEntry struct {
	name string
	hook OperationTimedOut
}

type maintenanceFiredEntry struct {
	name string
	hook MaintenanceFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	operationEnqueued  []operationEnqueuedEntry
	operationStarted   []operationStartedEntry
	operationPolled    []operationPolledEntry
	operationCompleted []operationCompletedEntry
	operationFailed    []operationFailedEntry
	operationTimedOut  []operationTimedOutEntry
	maintenanceFired   []maintenanceFiredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(OperationEnqueued); ok {
		r.operationEnqueued = append(r.operationEnqueued, operationEnqueuedEntry{name, h})
	}
	if h, ok := e.(OperationStarted); ok {
		r.operationStarted = append(r.operationStarted, operationStartedEntry{name, h})
	}
	if h, ok := e.(OperationPolled); ok {
		r.operationPolled = append(r.operationPolled, operationPolledEntry{name, h})
	}
	if h, ok := e.(OperationCompleted); ok {
		r.operationCompleted = append(r.operationCompleted, operationCompletedEntry{name, h})
	}
	if h, ok := e.(OperationFailed); ok {
		r.operationFailed = append(r.operationFailed, operationFailedEntry{name, h})
	}
	if h, ok := e.(OperationTimedOut); ok {
		r.operationTimedOut = append(r.operationTimedOut, operationTimedOutEntry{name, h})
	}
	if h, ok := e.(MaintenanceFired); ok {
		r.maintenanceFired = append(r.maintenanceFired, maintenanceFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Operation event emitters
// ──────────────────────────────────────────────────

// EmitOperationEnqueued notifies all extensions that implement OperationEnqueued.
func (r *Registry) EmitOperationEnqueued(ctx context.Context, op *operation.Operation) {
	for _, e := range r.operationEnqueued {
		if err := e.hook.OnOperationEnqueued(ctx, op); err != nil {
			r.logHookError("OnOperationEnqueued", e.name, err)
		}
	}
}

// EmitOperationStarted notifies all extensions that implement OperationStarted.
func (r *Registry) EmitOperationStarted(ctx context.Context, op *operation.Operation) {
	for _, e := range r.operationStarted {
		if err := e.hook.OnOperationStarted(ctx, op); err != nil {
			r.logHookError("OnOperationStarted", e.name, err)
		}
	}
}

// EmitOperationPolled notifies all extensions that implement OperationPolled.
func (r *Registry) EmitOperationPolled(ctx context.Context, op *operation.Operation, nextRunAt time.Time) {
	for _, e := range r.operationPolled {
		if err := e.hook.OnOperationPolled(ctx, op, nextRunAt); err != nil {
			r.logHookError("OnOperationPolled", e.name, err)
		}
	}
}

// EmitOperationCompleted notifies all extensions that implement OperationCompleted.
func (r *Registry) EmitOperationCompleted(ctx context.Context, op *operation.Operation, elapsed time.Duration) {
	for _, e := range r.operationCompleted {
		if err := e.hook.OnOperationCompleted(ctx, op, elapsed); err != nil {
			r.logHookError("OnOperationCompleted", e.name, err)
		}
	}
}

// EmitOperationFailed notifies all extensions that implement OperationFailed.
func (r *Registry) EmitOperationFailed(ctx context.Context, op *operation.Operation, opErr error) {
	for _, e := range r.operationFailed {
		if err := e.hook.OnOperationFailed(ctx, op, opErr); err != nil {
			r.logHookError("OnOperationFailed", e.name, err)
		}
	}
}

// EmitOperationTimedOut notifies all extensions that implement OperationTimedOut.
func (r *Registry) EmitOperationTimedOut(ctx context.Context, op *operation.Operation) {
	for _, e := range r.operationTimedOut {
		if err := e.hook.OnOperationTimedOut(ctx, op); err != nil {
			r.logHookError("OnOperationTimedOut", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitMaintenanceFired notifies all extensions that implement MaintenanceFired.
func (r *Registry) EmitMaintenanceFired(ctx context.Context, task string, affected int64) {
	for _, e := range r.maintenanceFired {
		if err := e.hook.OnMaintenanceFired(ctx, task, affected); err != nil {
			r.logHookError("OnMaintenanceFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
