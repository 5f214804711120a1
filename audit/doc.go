// Package audit records an immutable trail of operation lifecycle
// events.
//
// The [Extension] bridges lifecycle hooks to the [Store]: every
// enqueue, poll, completion, failure, and timeout becomes a structured
// audit event carrying the acting user captured when the operation was
// created. Events survive process restarts alongside the operation
// records they describe.
//
// # Selective filtering
//
//	audit.NewExtension(store,
//	    audit.WithActions(
//	        audit.ActionOperationFailed,
//	        audit.ActionOperationTimedOut,
//	    ),
//	)
package audit
