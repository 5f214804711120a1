package ccng

import (
	"context"
	"log/slog"
)

// Option configures a Controller.
type Option func(*Controller) error

// Storer is the minimal store interface held by the Controller.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Controller is the central coordinator for asynchronous binding
// operations. It owns configuration, logging, and the store handle, and
// drives worker pool lifecycle.
//
// Create one with New() and functional options, then wire the subsystems
// together with engine.Build. The Controller holds subsystem components
// via internal interfaces to avoid import cycles.
type Controller struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Controller with the given options.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the controller's logger.
func (c *Controller) Logger() *slog.Logger { return c.logger }

// Store returns the controller's store.
func (c *Controller) Store() Storer { return c.store }

// Config returns a copy of the controller's configuration.
func (c *Controller) Config() Config { return c.config }

// SetPool sets the worker pool (called by the engine package).
func (c *Controller) SetPool(p poolRunner) { c.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (c *Controller) SetExtensions(e extensionEmitter) { c.extensions = e }

// Start begins operation processing.
func (c *Controller) Start(ctx context.Context) error {
	if c.pool == nil {
		return ErrNoStore
	}
	if err := c.pool.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// Stop gracefully shuts down the controller.
func (c *Controller) Stop(ctx context.Context) error {
	if c.pool != nil && c.started {
		if err := c.pool.Stop(ctx); err != nil {
			c.logger.Error("pool stop error", "error", err)
		}
	}
	if c.extensions != nil {
		c.extensions.EmitShutdown(ctx)
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent operation processors.
func WithConcurrency(n int) Option {
	return func(c *Controller) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithLogger sets the structured logger for the controller.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the controller.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(c *Controller) error {
		c.store = s
		return nil
	}
}

// WithConfig replaces the controller's entire configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) error {
		c.config = cfg
		return nil
	}
}
