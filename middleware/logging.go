package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Logging returns middleware that logs invocation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) error {
		logger.Info("operation invocation started",
			slog.String("operation_id", op.ID.String()),
			slog.String("kind", string(op.Kind)),
			slog.String("resource_guid", op.ResourceGUID),
			slog.Int("attempts", op.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("operation invocation failed",
				slog.String("operation_id", op.ID.String()),
				slog.String("kind", string(op.Kind)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("operation invocation finished",
				slog.String("operation_id", op.ID.String()),
				slog.String("kind", string(op.Kind)),
				slog.String("state", string(op.State)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
