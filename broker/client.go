package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrBindingNotRetrievable indicates the broker accepted a bind
// asynchronously but the binding cannot be polled or fetched afterwards.
// It is surfaced to the user as a distinct "binding invalid" error rather
// than a generic broker failure.
var ErrBindingNotRetrievable = errors.New("broker: binding not retrievable")

// ErrConcurrencyConflict indicates the broker rejected the request because
// another operation on the same resource is still in flight.
var ErrConcurrencyConflict = errors.New("broker: concurrent operation in progress")

// LastOperationState is the state reported by the broker's
// last_operation endpoint.
type LastOperationState string

const (
	// OperationInProgress means the broker is still working.
	OperationInProgress LastOperationState = "in progress"
	// OperationSucceeded means the broker finished successfully.
	OperationSucceeded LastOperationState = "succeeded"
	// OperationFailed means the broker finished with an error.
	OperationFailed LastOperationState = "failed"
)

// BindResource carries the bind target the broker needs to know about:
// the application GUID for credential bindings or the route for route
// services.
type BindResource struct {
	AppGUID string `json:"app_guid,omitempty"`
	Route   string `json:"route,omitempty"`
}

// BindRequest is the payload for a bind call.
type BindRequest struct {
	InstanceGUID string `json:"-"`
	BindingGUID  string `json:"-"`

	ServiceID    string          `json:"service_id"`
	PlanID       string          `json:"plan_id"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	BindResource *BindResource   `json:"bind_resource,omitempty"`
}

// BindResponse is the broker's answer to a bind call.
type BindResponse struct {
	// Async is true when the broker accepted the bind with 202 and the
	// caller must poll LastOperation until terminal.
	Async bool `json:"-"`

	// Operation is the broker-chosen operation key to pass on every poll.
	Operation string `json:"operation,omitempty"`

	// Credentials and RouteServiceURL are populated on synchronous
	// completion.
	Credentials     json.RawMessage `json:"credentials,omitempty"`
	RouteServiceURL string          `json:"route_service_url,omitempty"`
}

// LastOperationRequest identifies the operation being polled.
type LastOperationRequest struct {
	InstanceGUID string
	BindingGUID  string
	ServiceID    string
	PlanID       string
	Operation    string
}

// LastOperationResponse is the broker's poll answer.
type LastOperationResponse struct {
	State       LastOperationState `json:"state"`
	Description string             `json:"description,omitempty"`

	// RetryAfter is the broker-suggested delay before the next poll.
	// Zero means the broker made no suggestion.
	RetryAfter time.Duration `json:"-"`
}

// GetBindingRequest identifies the binding to fetch.
type GetBindingRequest struct {
	InstanceGUID string
	BindingGUID  string
}

// GetBindingResponse carries the fetched binding details.
type GetBindingResponse struct {
	Credentials     json.RawMessage `json:"credentials,omitempty"`
	RouteServiceURL string          `json:"route_service_url,omitempty"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
}

// Client is the broker protocol surface the binding backends consume.
type Client interface {
	// Bind issues the bind call with accepts_incomplete=true.
	Bind(ctx context.Context, req BindRequest) (*BindResponse, error)

	// LastOperation polls the status of an asynchronous bind.
	LastOperation(ctx context.Context, req LastOperationRequest) (*LastOperationResponse, error)

	// GetBinding fetches a binding after an asynchronous bind succeeded.
	GetBinding(ctx context.Context, req GetBindingRequest) (*GetBindingResponse, error)
}

// Error is a structured error response from the broker.
type Error struct {
	StatusCode  int    `json:"-"`
	ErrorCode   string `json:"error,omitempty"`
	Description string `json:"description,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("broker: %s (status %d)", e.Description, e.StatusCode)
	}
	return fmt.Sprintf("broker: request failed with status %d", e.StatusCode)
}
