package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Timeout returns middleware that bounds a single invocation. This is
// distinct from the operation's overall maximum duration, which the
// scheduler enforces between invocations: Timeout caps one broker round
// trip so a hung connection cannot stall a worker slot. When the
// deadline is exceeded the context is cancelled and the handler should
// return context.DeadlineExceeded.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) error {
		if d > 0 {
			logger.Debug("invocation timeout set",
				slog.String("operation_id", op.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
