package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/braunsonm/cloud-controller-ng/ext"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Pool manages a set of concurrent worker goroutines that claim due
// operations and execute them through the Executor.
type Pool struct {
	store         operation.Store
	executor      *Executor
	extensions    *ext.Registry
	concurrency   int
	claimInterval time.Duration
	workerID      id.WorkerID
	logger        *slog.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
	activeOps map[string]context.CancelFunc
	activeMu  sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithClaimInterval sets how often idle workers check for due operations.
func WithClaimInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.claimInterval = d }
}

// NewPool creates a worker pool.
func NewPool(
	store operation.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:         store,
		executor:      executor,
		extensions:    extensions,
		concurrency:   4,
		claimInterval: time.Second,
		workerID:      id.NewWorkerID(),
		logger:        logger,
		stopCh:        make(chan struct{}),
		activeOps:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active invocations are cancelled when
// time runs out. A claimed operation that is cut off mid-invocation is
// safe: its record still holds everything needed to resume, and the
// stale-claim sweep returns it to pending.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active invocations")
		p.cancelActiveOps()
		p.wg.Wait()
	}

	return nil
}

// claimLoop is run by each worker goroutine.
func (p *Pool) claimLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		ops, err := p.store.ClaimOperations(context.Background(), p.workerID, 1)
		if err != nil {
			p.logger.Error("claim error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if len(ops) == 0 {
			p.sleep()
			continue
		}

		op := ops[0]

		p.extensions.EmitOperationStarted(context.Background(), op)

		ctx, cancel := context.WithCancel(context.Background())
		p.trackOp(op.ID.String(), cancel)

		if execErr := p.executor.Execute(ctx, op); execErr != nil {
			p.logger.Debug("operation invocation failed",
				slog.String("operation_id", op.ID.String()),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackOp(op.ID.String())
		cancel()
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.claimInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackOp(opID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeOps[opID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackOp(opID string) {
	p.activeMu.Lock()
	delete(p.activeOps, opID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveOps() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for opID, cancel := range p.activeOps {
		p.logger.Warn("cancelling active invocation", slog.String("operation_id", opID))
		cancel()
	}
}
