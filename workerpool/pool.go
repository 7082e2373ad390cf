// Package workerpool implements C10: a bounded pool of reusable workers
// for CPU-bound transforms (compression, escalation, static analysis),
// with dynamic per-item timeouts and worker recycling.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrShuttingDown is returned for items rejected during/after shutdown.
var ErrShuttingDown = errors.New("workerpool: shutting down")

// WorkItem is a unit of CPU-bound work submitted to the pool.
type WorkItem struct {
	ID    string
	Bytes int // size hint driving the dynamic timeout
	Run   func(ctx context.Context) (any, error)
}

// Result is the outcome of one WorkItem.
type Result struct {
	ID    string
	Value any
	Err   error
}

// Config bounds pool behavior.
type Config struct {
	MinWorkers        int
	MaxWorkers        int
	IdleTimeout       time.Duration
	MaxTasksPerWorker int
	MaxTaskTimeout    time.Duration
	ShutdownWait      time.Duration
}

// DefaultConfig mirrors sane defaults for a general-purpose CPU pool.
func DefaultConfig() Config {
	return Config{
		MinWorkers:        1,
		MaxWorkers:        4,
		IdleTimeout:       30 * time.Second,
		MaxTasksPerWorker: 100,
		MaxTaskTimeout:    60 * time.Second,
		ShutdownWait:      5 * time.Second,
	}
}

// Pool is a bounded pool of persistent workers pulling from a shared
// queue. MinWorkers stay parked on the queue for the pool's lifetime;
// Submit spawns extra workers up to MaxWorkers on demand, and those
// release themselves after sitting idle for IdleTimeout. Any worker,
// permanent or extra, recycles itself after MaxTasksPerWorker items —
// it exits and a replacement takes its place — bounding how long a
// single goroutine accumulates state across unrelated tasks.
type Pool struct {
	cfg   Config
	queue chan submission
	quit  chan struct{}

	mu           sync.Mutex
	workerCount  int
	shuttingDown bool
	wg           sync.WaitGroup

	activeCount    atomic.Int32
	tasksCompleted atomic.Int64
}

// New constructs a Pool and parks MinWorkers workers on the queue
// immediately.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MinWorkers > cfg.MaxWorkers {
		cfg.MinWorkers = cfg.MaxWorkers
	}
	p := &Pool{
		cfg:   cfg,
		queue: make(chan submission),
		quit:  make(chan struct{}),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawnWorker(true)
	}
	return p
}

// dynamicTimeout implements min(5s + floor(bytes/10KiB) s, maxTaskTimeout).
func (p *Pool) dynamicTimeout(bytes int) time.Duration {
	d := 5*time.Second + time.Duration(bytes/10240)*time.Second
	if p.cfg.MaxTaskTimeout > 0 && d > p.cfg.MaxTaskTimeout {
		d = p.cfg.MaxTaskTimeout
	}
	return d
}

// Submit enqueues item and blocks until a worker picks it up and
// returns a result. The queue is unbuffered: an immediate send means
// an idle worker was already parked waiting for it. Only when no
// worker is ready does Submit spawn an extra one, up to MaxWorkers.
func (p *Pool) Submit(ctx context.Context, item WorkItem) Result {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return Result{ID: item.ID, Err: ErrShuttingDown}
	}
	p.mu.Unlock()

	reply := make(chan Result, 1)
	sub := submission{ctx: ctx, item: item, reply: reply}

	select {
	case p.queue <- sub:
	case <-p.quit:
		return Result{ID: item.ID, Err: ErrShuttingDown}
	default:
		p.trySpawnExtra()
		select {
		case p.queue <- sub:
		case <-p.quit:
			return Result{ID: item.ID, Err: ErrShuttingDown}
		case <-ctx.Done():
			return Result{ID: item.ID, Err: ctx.Err()}
		}
	}

	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return Result{ID: item.ID, Err: ctx.Err()}
	}
}

// ExecuteAll submits every item concurrently (bounded by MaxWorkers) and
// returns results in input order once all complete.
func (p *Pool) ExecuteAll(ctx context.Context, items []WorkItem) []Result {
	results := make([]Result, len(items))
	var g errgroup.Group
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = p.Submit(ctx, item)
			return nil
		})
	}
	g.Wait()
	return results
}

// ActiveCount reports how many items are currently executing.
func (p *Pool) ActiveCount() int {
	return int(p.activeCount.Load())
}

// WorkerCount reports how many worker goroutines currently exist,
// including ones parked on the queue waiting for work.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

// Shutdown stops accepting new items, signals every parked worker to
// exit via quit, and waits up to ShutdownWait for in-flight items to
// finish. Items submitted after this call returns are rejected with
// ErrShuttingDown.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.shuttingDown {
		p.shuttingDown = true
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	wait := p.cfg.ShutdownWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(wait):
		return fmt.Errorf("workerpool: shutdown timed out after %s with %d active", wait, p.ActiveCount())
	case <-ctx.Done():
		return ctx.Err()
	}
}
