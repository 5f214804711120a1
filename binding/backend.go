package binding

import (
	"context"
	"encoding/json"
	"time"
)

// BindResult reports how the broker answered the initial bind call.
type BindResult struct {
	// Complete is true when the broker finished synchronously and the
	// binding is already in its terminal success state.
	Complete bool

	// Operation is the broker's operation key for subsequent polls. Only
	// meaningful when Complete is false.
	Operation string
}

// PollResult reports the outcome of one poll of an in-flight bind.
type PollResult struct {
	// Finished is true when the broker reports the bind succeeded.
	Finished bool

	// RetryAfter is the broker-suggested delay before the next poll.
	// Zero means no suggestion; the scheduler's default applies.
	RetryAfter time.Duration
}

// Backend is the capability set a binding kind must provide to the
// polling job. The two implementations — route and credential — vary
// what they send to the broker and what they persist on success, but the
// job drives them identically.
type Backend interface {
	// Bind issues the initial bind call with accepts_incomplete=true.
	// Returns broker.ErrBindingNotRetrievable when the broker answered
	// asynchronously but the binding cannot be fetched afterwards.
	Bind(ctx context.Context, b *Binding, parameters json.RawMessage) (BindResult, error)

	// Poll checks the broker's last_operation status for the bind.
	Poll(ctx context.Context, b *Binding, brokerOperation string) (PollResult, error)

	// Finalize runs after an asynchronous bind succeeds: it fetches the
	// binding from the broker and persists the kind-specific outcome
	// (credentials or route service URL).
	Finalize(ctx context.Context, b *Binding) error

	// DisplayName is the presentation name of the operation, e.g.
	// "service_route_bindings.create". No side effects.
	DisplayName() string

	// ResourceType is the presentation type of the target resource. No
	// side effects.
	ResourceType() string
}
