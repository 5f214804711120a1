package middleware

import (
	"context"

	"github.com/braunsonm/cloud-controller-ng/operation"
	"github.com/braunsonm/cloud-controller-ng/scope"
)

// Scope returns middleware that restores the acting user from the
// operation's audit info into the context. This ensures handlers see
// the same actor as the original API caller.
func Scope() Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) error {
		ctx = scope.Restore(ctx, op.AuditInfo)
		return next(ctx)
	}
}
