package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// ErrPoolStopped is returned when a task is submitted after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// Task is a unit of blocking work executed on a pool worker.
type Task func(ctx context.Context) error

// Pool runs blocking tasks (metadata extractor calls) on a fixed number of
// workers so they never stall in-flight relays.
type Pool struct {
	workers int
	tasks   chan submission
	logger  *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type submission struct {
	ctx  context.Context
	task Task
	done chan error
}

// Config holds worker pool configuration.
type Config struct {
	Workers   int
	QueueSize int
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan submission, cfg.QueueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Run submits a task and blocks until it completes or ctx is done. The task
// itself receives ctx and should honor cancellation.
func (p *Pool) Run(ctx context.Context, task Task) error {
	if p.ctx.Err() != nil {
		return ErrPoolStopped
	}

	sub := submission{
		ctx:  ctx,
		task: task,
		done: make(chan error, 1),
	}

	select {
	case p.tasks <- sub:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}

	select {
	case err := <-sub.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case sub := <-p.tasks:
			p.runTask(logger, sub)
		}
	}
}

func (p *Pool) runTask(logger *slog.Logger, sub submission) {
	// Caller may have given up while the task was queued.
	if err := sub.ctx.Err(); err != nil {
		sub.done <- err
		return
	}

	start := time.Now()
	err := sub.task(sub.ctx)
	if err != nil {
		logger.Debug("task failed", "error", err, "duration", time.Since(start))
	}
	sub.done <- err
}
