package binding

import (
	"encoding/json"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// LastOperationState is the user-visible state of a binding's most recent
// operation. API consumers observe the operation's outcome through this
// field, never through the operation record directly.
type LastOperationState string

const (
	// StateInitial means no operation has touched the binding yet.
	StateInitial LastOperationState = "initial"
	// StateInProgress means an operation is underway.
	StateInProgress LastOperationState = "in progress"
	// StateSucceeded means the most recent operation completed.
	StateSucceeded LastOperationState = "succeeded"
	// StateFailed means the most recent operation failed; Description
	// carries the reason.
	StateFailed LastOperationState = "failed"
)

// LastOperation is the operation status persisted on a binding.
type LastOperation struct {
	Type        string             `json:"type"`
	State       LastOperationState `json:"state"`
	Description string             `json:"description,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Binding is the precursor resource a bind operation completes: created by
// the API layer before the operation starts, updated with the terminal
// disposition when it ends.
type Binding struct {
	ccng.Entity

	GUID                string         `json:"guid"`
	Kind                operation.Kind `json:"kind"`
	ServiceInstanceGUID string         `json:"service_instance_guid"`

	// ServiceID and PlanID identify the broker catalog entries the
	// service instance was provisioned from.
	ServiceID string `json:"service_id"`
	PlanID    string `json:"plan_id"`

	// Name is the binding name for credential bindings.
	Name string `json:"name,omitempty"`
	// AppGUID is the bound application for credential bindings.
	AppGUID string `json:"app_guid,omitempty"`
	// RouteURL is the bound route for route bindings.
	RouteURL string `json:"route_url,omitempty"`

	// Retrievable mirrors the offering's bindings_retrievable flag. A
	// broker that accepts a bind asynchronously but whose bindings cannot
	// be fetched afterwards leaves the operation unresolvable.
	Retrievable bool `json:"retrievable"`

	// Credentials holds the broker-issued credentials for credential
	// bindings after a successful bind.
	Credentials json.RawMessage `json:"credentials,omitempty"`
	// RouteServiceURL holds the broker-issued route service URL for route
	// bindings after a successful bind.
	RouteServiceURL string `json:"route_service_url,omitempty"`

	// MaxPollingDuration is the plan's bound on total polling time.
	// Zero means the deployment default applies.
	MaxPollingDuration time.Duration `json:"max_polling_duration,omitempty"`

	LastOperation LastOperation `json:"last_operation"`
}
