package audit

import (
	"time"

	"github.com/braunsonm/cloud-controller-ng/id"
)

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionOperationEnqueued  = "operation.enqueued"
	ActionOperationStarted   = "operation.started"
	ActionOperationPolled    = "operation.polled"
	ActionOperationCompleted = "operation.completed"
	ActionOperationFailed    = "operation.failed"
	ActionOperationTimedOut  = "operation.timed_out"
	ActionMaintenanceFired   = "maintenance.fired"
)

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AllActions returns every action this package can emit.
func AllActions() []string {
	return []string{
		ActionOperationEnqueued,
		ActionOperationStarted,
		ActionOperationPolled,
		ActionOperationCompleted,
		ActionOperationFailed,
		ActionOperationTimedOut,
		ActionMaintenanceFired,
	}
}

// Event is one immutable audit trail entry.
type Event struct {
	ID id.AuditID `json:"id"`

	// What happened
	Action       string `json:"action"`
	Resource     string `json:"resource"`
	ResourceGUID string `json:"resource_guid,omitempty"`

	// Who did it. Captured at enqueue time from the API caller and
	// carried on the operation record, so events emitted long after the
	// original request still name the right actor.
	ActorGUID string `json:"actor_guid,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	ActorHash string `json:"actor_hash,omitempty"`

	// Details
	Metadata map[string]any `json:"metadata,omitempty"`
	Outcome  string         `json:"outcome"`
	Severity string         `json:"severity"`
	Reason   string         `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
