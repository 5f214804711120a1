package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/braunsonm/cloud-controller-ng/ext"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.OperationEnqueued  = (*Extension)(nil)
	_ ext.OperationStarted   = (*Extension)(nil)
	_ ext.OperationPolled    = (*Extension)(nil)
	_ ext.OperationCompleted = (*Extension)(nil)
	_ ext.OperationFailed    = (*Extension)(nil)
	_ ext.OperationTimedOut  = (*Extension)(nil)
	_ ext.MaintenanceFired   = (*Extension)(nil)
)

// Extension bridges operation lifecycle events to the audit trail.
// Each lifecycle hook appends a structured audit event to the Store.
type Extension struct {
	store   Store
	enabled map[string]bool // nil = all enabled
	logger  *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithActions restricts the extension to emit only the listed actions.
// By default all actions are enabled. Unknown actions are silently ignored.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithLogger sets a custom logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// NewExtension creates an Extension that appends audit events to the
// provided store.
func NewExtension(store Store, opts ...Option) *Extension {
	e := &Extension{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// ── Operation lifecycle hooks ───────────────────────

// OnOperationEnqueued implements ext.OperationEnqueued.
func (e *Extension) OnOperationEnqueued(ctx context.Context, op *operation.Operation) error {
	return e.record(ctx, ActionOperationEnqueued, SeverityInfo, OutcomeSuccess, op, nil,
		"kind", string(op.Kind),
	)
}

// OnOperationStarted implements ext.OperationStarted.
func (e *Extension) OnOperationStarted(ctx context.Context, op *operation.Operation) error {
	return e.record(ctx, ActionOperationStarted, SeverityInfo, OutcomeSuccess, op, nil,
		"attempts", op.Attempts,
	)
}

// OnOperationPolled implements ext.OperationPolled.
func (e *Extension) OnOperationPolled(ctx context.Context, op *operation.Operation, nextRunAt time.Time) error {
	return e.record(ctx, ActionOperationPolled, SeverityInfo, OutcomeSuccess, op, nil,
		"next_run_at", nextRunAt.Format(time.RFC3339),
		"broker_operation", op.BrokerOperation,
	)
}

// OnOperationCompleted implements ext.OperationCompleted.
func (e *Extension) OnOperationCompleted(ctx context.Context, op *operation.Operation, elapsed time.Duration) error {
	return e.record(ctx, ActionOperationCompleted, SeverityInfo, OutcomeSuccess, op, nil,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnOperationFailed implements ext.OperationFailed.
func (e *Extension) OnOperationFailed(ctx context.Context, op *operation.Operation, opErr error) error {
	return e.record(ctx, ActionOperationFailed, SeverityCritical, OutcomeFailure, op, opErr,
		"attempts", op.Attempts,
	)
}

// OnOperationTimedOut implements ext.OperationTimedOut.
func (e *Extension) OnOperationTimedOut(ctx context.Context, op *operation.Operation) error {
	return e.record(ctx, ActionOperationTimedOut, SeverityWarning, OutcomeFailure, op, nil,
		"max_duration_s", int64(op.MaxDuration.Seconds()),
	)
}

// ── Other lifecycle hooks ───────────────────────────

// OnMaintenanceFired implements ext.MaintenanceFired.
func (e *Extension) OnMaintenanceFired(ctx context.Context, task string, affected int64) error {
	if e.enabled != nil && !e.enabled[ActionMaintenanceFired] {
		return nil
	}

	evt := &Event{
		ID:        id.NewAuditID(),
		Action:    ActionMaintenanceFired,
		Resource:  "clock_task",
		Outcome:   OutcomeSuccess,
		Severity:  SeverityInfo,
		Metadata:  map[string]any{"task": task, "affected": affected},
		CreatedAt: time.Now().UTC(),
	}
	e.append(ctx, evt)
	return nil
}

// ── Internal helpers ────────────────────────────────

// resourceFor maps an operation kind to the presentation resource type.
func resourceFor(kind operation.Kind) string {
	if kind == operation.KindRoute {
		return "service_route_binding"
	}
	return "service_binding"
}

// record builds and appends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	op *operation.Operation,
	opErr error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}
	meta["operation_id"] = op.ID.String()

	var reason string
	if opErr != nil {
		reason = opErr.Error()
		meta["error"] = opErr.Error()
	}

	evt := &Event{
		ID:           id.NewAuditID(),
		Action:       action,
		Resource:     resourceFor(op.Kind),
		ResourceGUID: op.ResourceGUID,
		ActorGUID:    op.AuditInfo.UserGUID,
		ActorName:    op.AuditInfo.UserName,
		ActorHash:    op.AuditHash,
		Metadata:     meta,
		Outcome:      outcome,
		Severity:     severity,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}

	e.append(ctx, evt)
	return nil
}

// append persists the event, logging instead of failing: audit must
// never block the operation pipeline.
func (e *Extension) append(ctx context.Context, evt *Event) {
	if err := e.store.AppendAuditEvent(ctx, evt); err != nil {
		e.logger.Warn("audit: failed to append audit event",
			slog.String("action", evt.Action),
			slog.String("resource_guid", evt.ResourceGUID),
			slog.String("error", err.Error()),
		)
	}
}
