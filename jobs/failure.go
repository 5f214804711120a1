package jobs

import (
	"errors"
	"fmt"
)

// FailureKind is the stable taxonomy for terminal operation failures.
// Callers branch on the kind, never on underlying error types.
type FailureKind string

const (
	// KindNotFound means the target resource was missing at bind time.
	// No broker call was made.
	KindNotFound FailureKind = "not_found"

	// KindBindingNotRetrievable means the broker accepted the operation
	// asynchronously but the binding cannot be polled or fetched.
	KindBindingNotRetrievable FailureKind = "binding_not_retrievable"

	// KindBackendFailure is the catch-all for any other bind or poll error.
	KindBackendFailure FailureKind = "backend_failure"

	// KindTimedOut means the operation exceeded its maximum duration.
	KindTimedOut FailureKind = "timed_out"
)

// Failure is the single error representation leaving a job. Operation is
// the presentation name of the failed operation (e.g.
// "service_bindings.create").
type Failure struct {
	Kind      FailureKind
	Operation string
	Err       error
}

// Error implements the error interface with a user-facing message per kind.
func (f *Failure) Error() string {
	switch f.Kind {
	case KindNotFound:
		return fmt.Sprintf("The binding could not be found for operation %s", f.Operation)
	case KindBindingNotRetrievable:
		return fmt.Sprintf("The broker responded asynchronously to %s but does not support fetching binding data", f.Operation)
	case KindTimedOut:
		return fmt.Sprintf("Service Broker failed to complete %s within the required time", f.Operation)
	default:
		if f.Err != nil {
			return fmt.Sprintf("Unable to perform %s: %s", f.Operation, f.Err.Error())
		}
		return fmt.Sprintf("Unable to perform %s", f.Operation)
	}
}

// Unwrap exposes the underlying error for errors.Is/As.
func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extracts a *Failure from err, reporting whether one was found.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}
