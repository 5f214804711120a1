package operation

import (
	"encoding/json"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/id"
)

// State represents the lifecycle state of an operation.
type State string

const (
	// StatePending means the operation is waiting for its next invocation.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing an invocation.
	StateRunning State = "running"
	// StateSucceeded means the operation reached its terminal success state.
	StateSucceeded State = "succeeded"
	// StateFailed means the operation failed terminally (broker error,
	// missing resource, or unretrievable binding).
	StateFailed State = "failed"
	// StateTimedOut means the operation exceeded its maximum duration.
	StateTimedOut State = "timed_out"
)

// Terminal reports whether s is a terminal disposition.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// Kind selects which backend drives the operation.
type Kind string

const (
	// KindRoute drives a route-binding operation.
	KindRoute Kind = "route"
	// KindCredential drives a credential-binding operation.
	KindCredential Kind = "credential"
)

// AuditInfo identifies the actor on whose behalf the operation runs.
// It is propagated to audit-event emission and never interpreted by the
// polling protocol itself.
type AuditInfo struct {
	UserGUID string `json:"user_guid"`
	UserName string `json:"user_name"`
}

// Operation is the persisted state of a resumable binding operation.
// The scheduler reloads it on every invocation; the job mutates it during
// an invocation and the worker persists the result.
type Operation struct {
	ccng.Entity

	ID           id.OperationID `json:"id"`
	Kind         Kind           `json:"kind"`
	ResourceGUID string         `json:"resource_guid"`

	// Parameters is the opaque payload passed to the broker at bind time.
	// Immutable after the first attempt.
	Parameters json.RawMessage `json:"parameters,omitempty"`

	AuditInfo AuditInfo `json:"audit_info"`
	AuditHash string    `json:"audit_hash,omitempty"`

	State State `json:"state"`

	// FirstAttempt is true only for the invocation that performs the
	// initial bind call; false for all subsequent polls.
	FirstAttempt bool `json:"first_attempt"`

	// BrokerOperation is the operation key returned by the broker when it
	// accepted the bind asynchronously; passed back on every poll.
	BrokerOperation string `json:"broker_operation,omitempty"`

	// PollingInterval controls the scheduler's next-retry delay. The job
	// overwrites it when the broker suggests a Retry-After.
	PollingInterval time.Duration `json:"polling_interval,omitempty"`

	// MaxDuration bounds total wall-clock time since FirstStartedAt.
	// Recomputed from the plan on every invocation.
	MaxDuration time.Duration `json:"max_duration,omitempty"`

	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	RunAt     time.Time `json:"run_at"`

	// FirstStartedAt is the start of the first invocation; the timeout
	// deadline is measured from it.
	FirstStartedAt *time.Time     `json:"first_started_at,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	WorkerID       id.WorkerID    `json:"worker_id,omitempty"`
}

// Deadline returns the wall-clock instant after which the operation has
// timed out, and false when the first invocation has not started yet.
func (o *Operation) Deadline() (time.Time, bool) {
	if o.FirstStartedAt == nil || o.MaxDuration <= 0 {
		return time.Time{}, false
	}
	return o.FirstStartedAt.Add(o.MaxDuration), true
}

// New creates a pending operation record for the given resource.
func New(kind Kind, resourceGUID string, parameters json.RawMessage, info AuditInfo, hash string) *Operation {
	return &Operation{
		Entity:       ccng.NewEntity(),
		ID:           id.NewOperationID(),
		Kind:         kind,
		ResourceGUID: resourceGUID,
		Parameters:   parameters,
		AuditInfo:    info,
		AuditHash:    hash,
		State:        StatePending,
		FirstAttempt: true,
		RunAt:        time.Now().UTC(),
	}
}
