package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var ErrClosed = errors.New("enrichment scheduler closed")

// Scheduler hands tasks to background enrichment without blocking the caller
// on the analysis itself.
type Scheduler interface {
	Schedule(ctx context.Context, task Task) error
}

// Runner executes one task.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// Pool runs tasks in-process, bounded by a worker count and a request rate.
type Pool struct {
	runner  Runner
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool. ratePerSecond <= 0 disables rate limiting.
func NewPool(runner Runner, workers int, ratePerSecond float64, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	limit := rate.Inf
	burst := workers
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		runner:  runner,
		sem:     semaphore.NewWeighted(int64(workers)),
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule queues task and returns immediately. Tasks run detached from ctx.
func (p *Pool) Schedule(_ context.Context, task Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(task)
	return nil
}

func (p *Pool) run(task Task) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("enrichment task panicked", "image_id", task.ImageID, "panic", r)
		}
	}()

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.log.Warn("enrichment task dropped", "image_id", task.ImageID, "error", err)
		return
	}
	defer p.sem.Release(1)

	if err := p.limiter.Wait(p.ctx); err != nil {
		p.log.Warn("enrichment task dropped", "image_id", task.ImageID, "error", err)
		return
	}
	if err := p.runner.Run(p.ctx, task); err != nil {
		p.log.Debug("enrichment task finished with error", "image_id", task.ImageID, "error", err)
	}
}

// Close stops accepting tasks and waits for queued ones. When ctx expires
// first, in-flight tasks are cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("enrich.Pool.Close: %w", ctx.Err())
	}
}
