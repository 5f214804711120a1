// Package middleware provides composable middleware for operation
// invocations.
//
// A [Middleware] is a function that wraps an invocation handler.
// Middleware are composed into a chain using [Chain] and applied before
// each invocation executes. They are applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs operation kind, resource, duration, and outcome
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the invocation context after a configured duration
//   - [Tracing] — wraps the invocation in an OpenTelemetry span
//   - [Metrics] — records per-operation duration and outcome counters
//   - [Scope] — restores the acting user from the operation into context
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, op *operation.Operation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
