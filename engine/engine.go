// Package engine wires all subsystems together. It creates the
// extension registry, binding backends, middleware chain, worker pool,
// and maintenance clock, and provides the CreateBinding entry point.
//
// This package exists to break the import cycle: the root ccng package
// defines Entity and Config (imported by operation, binding, etc.) and
// so cannot import those packages back. The engine package sits above
// all subsystem packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/audit"
	"github.com/braunsonm/cloud-controller-ng/backoff"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/broker"
	"github.com/braunsonm/cloud-controller-ng/clock"
	"github.com/braunsonm/cloud-controller-ng/ext"
	"github.com/braunsonm/cloud-controller-ng/jobs"
	mw "github.com/braunsonm/cloud-controller-ng/middleware"
	"github.com/braunsonm/cloud-controller-ng/observability"
	"github.com/braunsonm/cloud-controller-ng/operation"
	"github.com/braunsonm/cloud-controller-ng/scope"
	"github.com/braunsonm/cloud-controller-ng/store"
	"github.com/braunsonm/cloud-controller-ng/worker"
)

// Engine wraps a Controller with typed subsystem access.
// Use Build() to create one from a Controller.
type Engine struct {
	c          *ccng.Controller
	extensions *ext.Registry
	store      store.Store
	client     broker.Client
	backends   map[operation.Kind]binding.Backend
	bo         backoff.Strategy
	pool       *worker.Pool
	clk        *clock.Clock
	mws        []mw.Middleware
	logger     *slog.Logger

	// invocationTimeout caps one broker round trip; the operation's
	// overall maximum duration is enforced separately by the scheduler.
	invocationTimeout time.Duration

	clockOpts []clock.Option

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithBrokerClient sets the service broker client used by the default
// binding backends.
func WithBrokerClient(c broker.Client) Option {
	return func(eng *Engine) {
		eng.client = c
	}
}

// WithBackend overrides the backend for one binding kind. Kinds without
// an override get the default backend built on the broker client.
func WithBackend(kind operation.Kind, b binding.Backend) Option {
	return func(eng *Engine) {
		eng.backends[kind] = b
	}
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the poll delay strategy used when the broker does
// not suggest one. If not set, a constant strategy at the configured
// default polling interval is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithInvocationTimeout caps a single invocation's broker round trip.
// Zero disables the cap. Default 5 minutes.
func WithInvocationTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		eng.invocationTimeout = d
	}
}

// WithClockOptions passes options through to the maintenance clock.
func WithClockOptions(opts ...clock.Option) Option {
	return func(eng *Engine) {
		eng.clockOpts = append(eng.clockOpts, opts...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Controller.
// The Controller's store must implement store.Store.
func Build(c *ccng.Controller, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	st := c.Store()

	if st == nil {
		return nil, ccng.ErrNoStore
	}

	// Type-assert the store to get the composite store.Store interface.
	cs, ok := st.(store.Store)
	if !ok {
		return nil, fmt.Errorf("ccng: store does not implement store.Store")
	}

	eng := &Engine{
		c:                 c,
		extensions:        ext.NewRegistry(logger),
		store:             cs,
		backends:          make(map[operation.Kind]binding.Backend, 2),
		logger:            logger,
		invocationTimeout: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(eng)
	}

	config := c.Config()

	// Default poll delay strategy if none provided.
	if eng.bo == nil {
		eng.bo = backoff.NewConstant(config.DefaultPollingInterval)
	}

	// Default backends for kinds without an override.
	if eng.client == nil && len(eng.backends) == 0 {
		return nil, fmt.Errorf("ccng: broker client required (use WithBrokerClient)")
	}
	if eng.client != nil {
		if _, ok := eng.backends[operation.KindRoute]; !ok {
			eng.backends[operation.KindRoute] = binding.NewRouteBackend(eng.client, cs)
		}
		if _, ok := eng.backends[operation.KindCredential]; !ok {
			eng.backends[operation.KindCredential] = binding.NewCredentialBackend(eng.client, cs)
		}
	}

	// The factory reconstructs the job around the persisted operation
	// record on every invocation, so operations survive restarts.
	factory := func(op *operation.Operation) (worker.Job, error) {
		be, ok := eng.backends[op.Kind]
		if !ok {
			return nil, fmt.Errorf("ccng: no backend for operation kind %q", op.Kind)
		}
		return jobs.NewCreateBinding(op, be, cs, logger), nil
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/braunsonm/cloud-controller-ng")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/braunsonm/cloud-controller-ng")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/braunsonm/cloud-controller-ng/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Register the audit trail extension over the same store.
	eng.extensions.Register(audit.NewExtension(cs, audit.WithLogger(logger)))

	// Build default middleware stack: recover → tracing → metrics →
	// logging → scope → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
		mw.Timeout(eng.invocationTimeout, logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and pool.
	executor := worker.NewExecutor(cs, eng.extensions, factory, eng.bo, config, logger, allMws...)
	eng.pool = worker.NewPool(
		cs,
		executor,
		eng.extensions,
		logger,
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithClaimInterval(config.ClaimInterval),
	)

	// Create the maintenance clock. Deadline sweeps need the factory so
	// timeout handling runs the same job code the executor runs.
	clockOpts := append(
		[]clock.Option{clock.WithStaleThreshold(config.StaleClaimThreshold)},
		eng.clockOpts...,
	)
	clk, err := clock.New(cs, factory, eng.extensions, logger, clockOpts...)
	if err != nil {
		return nil, fmt.Errorf("ccng: build clock: %w", err)
	}
	eng.clk = clk

	// Wire back into the Controller.
	c.SetPool(eng.pool)
	c.SetExtensions(eng.extensions)

	return eng, nil
}

// CreateBinding enqueues a resumable binding-create operation for the
// resource. The binding record must already exist; the operation's first
// invocation issues the broker bind call. The actor identity is captured
// from the context (see scope.Restore) and persisted with the operation
// so later invocations on other workers act as the original user.
func (eng *Engine) CreateBinding(ctx context.Context, kind operation.Kind, resourceGUID string, parameters json.RawMessage, auditHash string) (*operation.Operation, error) {
	if _, ok := eng.backends[kind]; !ok {
		return nil, fmt.Errorf("ccng: no backend for operation kind %q", kind)
	}

	info, _ := scope.Capture(ctx)

	op := operation.New(kind, resourceGUID, parameters, info, auditHash)
	op.MaxDuration = eng.c.Config().DefaultMaxDuration

	if err := eng.store.EnqueueOperation(ctx, op); err != nil {
		return nil, err
	}

	eng.extensions.EmitOperationEnqueued(ctx, op)
	eng.logger.Info("binding operation enqueued",
		slog.String("operation_id", op.ID.String()),
		slog.String("kind", string(kind)),
		slog.String("resource_guid", resourceGUID),
	)
	return op, nil
}

// Start begins operation processing: the maintenance clock first, so
// stale claims left by a previous process are returned to pending before
// workers start claiming, then the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.clk.Start(ctx); err != nil {
		return fmt.Errorf("start clock: %w", err)
	}
	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.clk.Stop(ctx); err != nil {
		eng.logger.Error("clock stop error", slog.String("error", err.Error()))
	}
	return eng.c.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Controller returns the underlying Controller.
func (eng *Engine) Controller() *ccng.Controller { return eng.c }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Clock returns the maintenance clock.
func (eng *Engine) Clock() *clock.Clock { return eng.clk }

// Store returns the composite store.
func (eng *Engine) Store() store.Store { return eng.store }
