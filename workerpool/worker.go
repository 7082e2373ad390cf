package workerpool

import (
	"context"
	"time"

	"github.com/vibe-flow/cmc/logger"
)

// submission is one queued WorkItem paired with a reply channel.
type submission struct {
	ctx   context.Context
	item  WorkItem
	reply chan Result
}

// spawnWorker registers and starts one worker goroutine. Callers must
// have already decided the worker is allowed to exist (New's initial
// fill). Recycle replacements bypass it and start runWorker directly,
// since they take over the exiting worker's slot.
func (p *Pool) spawnWorker(permanent bool) {
	p.mu.Lock()
	p.workerCount++
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runWorker(permanent)
}

// trySpawnExtra spawns one non-permanent worker if the pool is below
// MaxWorkers, respecting the cap under lock.
func (p *Pool) trySpawnExtra() {
	p.mu.Lock()
	if p.workerCount >= p.cfg.MaxWorkers {
		p.mu.Unlock()
		return
	}
	p.workerCount++
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runWorker(false)
}

// runWorker loops pulling submissions off the queue until it is
// recycled (MaxTasksPerWorker reached), released (idle past
// IdleTimeout, non-permanent, and above MinWorkers), or the pool shuts
// down (quit closed).
func (p *Pool) runWorker(permanent bool) {
	defer p.wg.Done()

	idle := p.cfg.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}

	tasksHandled := 0
	for {
		var timeoutCh <-chan time.Time
		var timer *time.Timer
		if !permanent {
			timer = time.NewTimer(idle)
			timeoutCh = timer.C
		}

		select {
		case sub := <-p.queue:
			if timer != nil {
				timer.Stop()
			}

			p.runSubmission(sub)
			tasksHandled++

			if p.cfg.MaxTasksPerWorker > 0 && tasksHandled >= p.cfg.MaxTasksPerWorker {
				logger.L().Debug("workerpool: recycling worker after max tasks", "tasks", tasksHandled)
				// One-for-one swap: hand this worker's slot directly to
				// its replacement without touching workerCount, so the
				// pool's size never visibly dips mid-recycle.
				p.wg.Add(1)
				go p.runWorker(permanent)
				return
			}

		case <-timeoutCh:
			p.mu.Lock()
			if p.workerCount > p.cfg.MinWorkers {
				p.workerCount--
				p.mu.Unlock()
				logger.L().Debug("workerpool: releasing idle worker", "idle", idle)
				return
			}
			p.mu.Unlock()

		case <-p.quit:
			if timer != nil {
				timer.Stop()
			}
			p.decrementWorkerCount()
			return
		}
	}
}

func (p *Pool) decrementWorkerCount() {
	p.mu.Lock()
	p.workerCount--
	p.mu.Unlock()
}

func (p *Pool) runSubmission(sub submission) {
	p.activeCount.Add(1)
	defer p.activeCount.Add(-1)

	timeout := p.dynamicTimeout(sub.item.Bytes)
	taskCtx, cancel := context.WithTimeout(sub.ctx, timeout)
	defer cancel()

	value, err := sub.item.Run(taskCtx)
	p.tasksCompleted.Add(1)
	if taskCtx.Err() != nil && err == nil {
		err = taskCtx.Err()
	}
	sub.reply <- Result{ID: sub.item.ID, Value: value, Err: err}
}
