package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/braunsonm/cloud-controller-ng/ext"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/braunsonm/cloud-controller-ng/observability"

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.OperationEnqueued  = (*MetricsExtension)(nil)
	_ ext.OperationPolled    = (*MetricsExtension)(nil)
	_ ext.OperationCompleted = (*MetricsExtension)(nil)
	_ ext.OperationFailed    = (*MetricsExtension)(nil)
	_ ext.OperationTimedOut  = (*MetricsExtension)(nil)
	_ ext.MaintenanceFired   = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OTel.
// Register it as an extension to automatically track enqueue rates,
// poll counts, completion and failure counts, timeouts, and clock
// maintenance sweeps. All counters carry a "kind" attribute.
type MetricsExtension struct {
	enqueued   metric.Int64Counter
	polled     metric.Int64Counter
	completed  metric.Int64Counter
	failed     metric.Int64Counter
	timedOut   metric.Int64Counter
	durationS  metric.Float64Histogram
	maintained metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If none is configured, noop instruments are used.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Use for testing or when multiple providers are in use.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// OTel returns noop instruments on error, so the extension degrades
	// gracefully without nil checks at record time.
	enqueued, _ := meter.Int64Counter("ccng.operations.enqueued",
		metric.WithDescription("Operations accepted and persisted"),
		metric.WithUnit("{operation}"))
	polled, _ := meter.Int64Counter("ccng.operations.polled",
		metric.WithDescription("Broker polls that left an operation in progress"),
		metric.WithUnit("{poll}"))
	completed, _ := meter.Int64Counter("ccng.operations.completed",
		metric.WithDescription("Operations that reached terminal success"),
		metric.WithUnit("{operation}"))
	failed, _ := meter.Int64Counter("ccng.operations.failed",
		metric.WithDescription("Operations that failed terminally"),
		metric.WithUnit("{operation}"))
	timedOut, _ := meter.Int64Counter("ccng.operations.timed_out",
		metric.WithDescription("Operations that exceeded their maximum duration"),
		metric.WithUnit("{operation}"))
	durationS, _ := meter.Float64Histogram("ccng.operations.total_duration",
		metric.WithDescription("Wall-clock time from enqueue to terminal success in seconds"),
		metric.WithUnit("s"))
	maintained, _ := meter.Int64Counter("ccng.maintenance.fired",
		metric.WithDescription("Clock maintenance task executions"),
		metric.WithUnit("{run}"))

	return &MetricsExtension{
		enqueued:   enqueued,
		polled:     polled,
		completed:  completed,
		failed:     failed,
		timedOut:   timedOut,
		durationS:  durationS,
		maintained: maintained,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func kindAttr(op *operation.Operation) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", string(op.Kind)))
}

// ── Operation lifecycle hooks ───────────────────────

// OnOperationEnqueued implements ext.OperationEnqueued.
func (m *MetricsExtension) OnOperationEnqueued(ctx context.Context, op *operation.Operation) error {
	m.enqueued.Add(ctx, 1, kindAttr(op))
	return nil
}

// OnOperationPolled implements ext.OperationPolled.
func (m *MetricsExtension) OnOperationPolled(ctx context.Context, op *operation.Operation, _ time.Time) error {
	m.polled.Add(ctx, 1, kindAttr(op))
	return nil
}

// OnOperationCompleted implements ext.OperationCompleted.
func (m *MetricsExtension) OnOperationCompleted(ctx context.Context, op *operation.Operation, _ time.Duration) error {
	m.completed.Add(ctx, 1, kindAttr(op))
	if op.FirstStartedAt != nil && op.CompletedAt != nil {
		m.durationS.Record(ctx, op.CompletedAt.Sub(*op.FirstStartedAt).Seconds(), kindAttr(op))
	}
	return nil
}

// OnOperationFailed implements ext.OperationFailed.
func (m *MetricsExtension) OnOperationFailed(ctx context.Context, op *operation.Operation, _ error) error {
	m.failed.Add(ctx, 1, kindAttr(op))
	return nil
}

// OnOperationTimedOut implements ext.OperationTimedOut.
func (m *MetricsExtension) OnOperationTimedOut(ctx context.Context, op *operation.Operation) error {
	m.timedOut.Add(ctx, 1, kindAttr(op))
	return nil
}

// ── Other lifecycle hooks ───────────────────────────

// OnMaintenanceFired implements ext.MaintenanceFired.
func (m *MetricsExtension) OnMaintenanceFired(ctx context.Context, task string, affected int64) error {
	m.maintained.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.Int64("affected", affected),
	))
	return nil
}
