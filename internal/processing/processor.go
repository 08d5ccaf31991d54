// Package processing runs jobs on a fixed pool of goroutines fed by a
// buffered channel.
package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/DocChat/internal/logger"
)

var (
	// ErrQueueFull is returned by Schedule when the buffer is at capacity.
	ErrQueueFull = errors.New("processing queue full")
	// ErrStopped is returned by Schedule after Shutdown or before Start.
	ErrStopped = errors.New("processing pool not running")
)

// ProcessFunc handles one job id. It must record its own failures.
type ProcessFunc func(ctx context.Context, jobID string)

// Pool consumes job ids and runs them with a per-job timeout.
type Pool struct {
	log     *logger.Logger
	workers int
	timeout time.Duration
	queue   chan string

	mu      sync.Mutex
	running bool
	stopped bool
	wg      sync.WaitGroup
}

// New builds a Pool. Non-positive values fall back to one worker, a queue of
// four slots per worker and no timeout.
func New(workers, queueSize int, timeout time.Duration, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		log:     log.With("component", "processing"),
		workers: workers,
		timeout: timeout,
		queue:   make(chan string, queueSize),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Shutdown
// drains the queue. A pool cannot be restarted after Shutdown.
func (p *Pool) Start(ctx context.Context, fn ProcessFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return
	}
	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1, fn)
	}
}

// Schedule queues a job without blocking.
func (p *Pool) Schedule(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrStopped
	}
	select {
	case p.queue <- jobID:
		p.log.Debug("job.queued", "job_id", jobID, "depth", len(p.queue))
		return nil
	default:
		p.log.Warn("job.queue_full", "job_id", jobID)
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for queued jobs to finish or ctx
// to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()
	select {
	case <-done:
		p.log.Info("pool.drained")
		return nil
	case <-ctx.Done():
		p.log.Warn("pool.shutdown_interrupted")
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context, id int, fn ProcessFunc) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(ctx, id, jobID, fn)
		}
	}
}

func (p *Pool) run(ctx context.Context, workerID int, jobID string, fn ProcessFunc) {
	// A panicking job must not take the worker down with it.
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker.panic", "worker_id", workerID, "job_id", jobID, "panic", r)
		}
	}()
	jobCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	fn(jobCtx, jobID)
}
