// Package clock runs scheduled maintenance over the operation store:
// sweeping operations past their maximum duration, returning stale
// worker claims to pending, and pruning old terminal records.
//
// The deadline is otherwise only checked when a worker picks an
// operation up, so the sweep is what bounds operations whose next poll
// is scheduled far beyond the deadline, or that no worker will claim
// again.
package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/braunsonm/cloud-controller-ng/ext"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
	"github.com/braunsonm/cloud-controller-ng/worker"
)

// Maintenance task names, used in logs and lifecycle events.
const (
	TaskSweepExpired  = "sweep_expired"
	TaskResetStale    = "reset_stale"
	TaskPruneTerminal = "prune_terminal"
)

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Clock.
type Option func(*Clock)

// WithTickInterval sets how often the clock checks for due tasks.
func WithTickInterval(d time.Duration) Option {
	return func(c *Clock) { c.tickInterval = d }
}

// WithExpiredSweepSchedule sets the cron expression for the expired
// operation sweep. Default "@every 30s".
func WithExpiredSweepSchedule(expr string) Option {
	return func(c *Clock) { c.schedules[TaskSweepExpired] = expr }
}

// WithStaleResetSchedule sets the cron expression for the stale claim
// reset. Default "@every 1m".
func WithStaleResetSchedule(expr string) Option {
	return func(c *Clock) { c.schedules[TaskResetStale] = expr }
}

// WithPruneSchedule sets the cron expression for terminal record
// pruning. Default "@every 1h".
func WithPruneSchedule(expr string) Option {
	return func(c *Clock) { c.schedules[TaskPruneTerminal] = expr }
}

// WithRetention sets how long terminal operation records are kept
// before pruning. Default 30 days.
func WithRetention(d time.Duration) Option {
	return func(c *Clock) { c.retention = d }
}

// WithStaleThreshold sets how long a running claim may go without an
// update before it is returned to pending. Default 5 minutes.
func WithStaleThreshold(d time.Duration) Option {
	return func(c *Clock) { c.staleThreshold = d }
}

// Clock runs the maintenance tasks on their schedules.
type Clock struct {
	operations operation.Store
	factory    worker.Factory
	extensions *ext.Registry
	logger     *slog.Logger

	tickInterval   time.Duration
	retention      time.Duration
	staleThreshold time.Duration
	schedules      map[string]string

	// next holds the parsed schedule and next fire time per task.
	next map[string]*taskState

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

type taskState struct {
	schedule cronlib.Schedule
	nextAt   time.Time
	run      func(ctx context.Context)
}

// New creates a Clock.
func New(
	operations operation.Store,
	factory worker.Factory,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...Option,
) (*Clock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Clock{
		operations:     operations,
		factory:        factory,
		extensions:     extensions,
		logger:         logger,
		tickInterval:   time.Second,
		retention:      30 * 24 * time.Hour,
		staleThreshold: 5 * time.Minute,
		schedules: map[string]string{
			TaskSweepExpired:  "@every 30s",
			TaskResetStale:    "@every 1m",
			TaskPruneTerminal: "@every 1h",
		},
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	runners := map[string]func(ctx context.Context){
		TaskSweepExpired:  c.sweepExpired,
		TaskResetStale:    c.resetStale,
		TaskPruneTerminal: c.pruneTerminal,
	}

	now := time.Now().UTC()
	c.next = make(map[string]*taskState, len(c.schedules))
	for task, expr := range c.schedules {
		schedule, err := ParseSchedule(expr)
		if err != nil {
			return nil, err
		}
		c.next[task] = &taskState{
			schedule: schedule,
			nextAt:   schedule.Next(now),
			run:      runners[task],
		}
	}

	return c, nil
}

// Start launches the tick goroutine.
func (c *Clock) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true

	c.wg.Add(1)
	go c.tickLoop()

	c.logger.Info("clock started",
		slog.Duration("tick_interval", c.tickInterval),
		slog.Duration("retention", c.retention),
	)
	return nil
}

// Stop signals the clock to stop and waits for the tick goroutine.
func (c *Clock) Stop(_ context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()
	c.logger.Info("clock stopped")
	return nil
}

func (c *Clock) tickLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick(time.Now().UTC())
		}
	}
}

func (c *Clock) tick(now time.Time) {
	for task, st := range c.next {
		if now.Before(st.nextAt) {
			continue
		}
		st.run(context.Background())
		st.nextAt = st.schedule.Next(now)
		c.logger.Debug("maintenance task ran",
			slog.String("task", task),
			slog.Time("next_at", st.nextAt),
		)
	}
}

// ──────────────────────────────────────────────────
// Tasks
// ──────────────────────────────────────────────────

// sweepExpired fires timeout handling for pending operations whose
// deadline has passed. Running claims are left alone: the executor
// performs its own deadline check when it picks an operation up, and a
// crashed claim is first returned to pending by the stale reset.
func (c *Clock) sweepExpired(ctx context.Context) {
	expired, err := c.operations.ExpiredOperations(ctx, time.Now().UTC())
	if err != nil {
		c.logger.Error("expired sweep failed", slog.String("error", err.Error()))
		return
	}

	var swept int64
	for _, op := range expired {
		if op.State != operation.StatePending {
			continue
		}
		if err := c.timeOut(ctx, op); err != nil {
			c.logger.Error("failed to time out expired operation",
				slog.String("operation_id", op.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		swept++
	}

	if swept > 0 {
		c.extensions.EmitMaintenanceFired(ctx, TaskSweepExpired, swept)
		c.logger.Info("swept expired operations", slog.Int64("count", swept))
	}
}

// timeOut runs one operation's timeout handling and records the
// terminal state, mirroring what the executor does when it catches the
// deadline itself.
func (c *Clock) timeOut(ctx context.Context, op *operation.Operation) error {
	j, err := c.factory(op)
	if err != nil {
		return err
	}
	j.HandleTimeout(ctx)

	now := time.Now().UTC()
	op.State = operation.StateTimedOut
	op.CompletedAt = &now
	op.WorkerID = id.WorkerID{}
	op.Touch()

	if err := c.operations.UpdateOperation(ctx, op); err != nil {
		return err
	}

	c.extensions.EmitOperationTimedOut(ctx, op)
	return nil
}

// resetStale returns running claims without recent updates to pending
// so another worker can resume them.
func (c *Clock) resetStale(ctx context.Context) {
	stale, err := c.operations.StaleOperations(ctx, c.staleThreshold)
	if err != nil {
		c.logger.Error("stale reset failed", slog.String("error", err.Error()))
		return
	}

	var reset int64
	for _, op := range stale {
		op.State = operation.StatePending
		op.RunAt = time.Now().UTC()
		op.WorkerID = id.WorkerID{}
		op.Touch()

		if err := c.operations.UpdateOperation(ctx, op); err != nil {
			c.logger.Error("failed to reset stale operation",
				slog.String("operation_id", op.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		reset++

		c.logger.Info("reset stale operation claim",
			slog.String("operation_id", op.ID.String()),
		)
	}

	if reset > 0 {
		c.extensions.EmitMaintenanceFired(ctx, TaskResetStale, reset)
	}
}

// pruneTerminal removes terminal operation records older than the
// retention window.
func (c *Clock) pruneTerminal(ctx context.Context) {
	before := time.Now().UTC().Add(-c.retention)
	pruned, err := c.operations.PruneTerminalOperations(ctx, before)
	if err != nil {
		c.logger.Error("prune failed", slog.String("error", err.Error()))
		return
	}

	if pruned > 0 {
		c.extensions.EmitMaintenanceFired(ctx, TaskPruneTerminal, pruned)
		c.logger.Info("pruned terminal operations", slog.Int64("count", pruned))
	}
}
