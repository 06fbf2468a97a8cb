package collector

import (
	"context"
	"sync"
	"time"

	"candler/internal/logger"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 5

// Pool runs queued jobs on a fixed set of workers. Shutdown stops intake
// first so a job that already started is never cancelled mid-flight; only
// when the drain deadline passes is the job context cut.
type Pool struct {
	queue   *Queue
	runner  *Runner
	workers int

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup

	stopIntake context.CancelFunc
	stopJobs   context.CancelFunc
}

func NewPool(queue *Queue, runner *Runner, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{queue: queue, runner: runner, workers: workers}
}

// Start launches the workers. Jobs inherit from ctx, so cancelling it
// tears the whole pool down without a graceful drain.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	jobCtx, stopJobs := context.WithCancel(ctx)
	intakeCtx, stopIntake := context.WithCancel(jobCtx)
	p.stopJobs = stopJobs
	p.stopIntake = stopIntake
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i, intakeCtx, jobCtx)
	}
	logger.Infof("[pool] started %d workers", p.workers)
}

func (p *Pool) work(id int, intakeCtx, jobCtx context.Context) {
	defer p.wg.Done()
	for {
		job, ok := p.queue.Pop(intakeCtx)
		if !ok {
			return
		}
		if _, err := p.runner.Run(jobCtx, job); err != nil {
			// Failures are bookkept per pair by the runner; the worker
			// just moves on.
			logger.Warnf("[pool] worker %d: %s %s failed: %v", id, job.Symbol, job.Interval, err)
		}
	}
}

// Shutdown stops intake and waits up to timeout for in-flight jobs. Jobs
// still running after the deadline lose their context and are abandoned.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	stopIntake := p.stopIntake
	stopJobs := p.stopJobs
	p.mu.Unlock()
	if stopIntake == nil {
		return
	}
	stopIntake()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		logger.Infof("[pool] drained cleanly")
	case <-time.After(timeout):
		logger.Warnf("[pool] drain timeout after %s, cancelling in-flight jobs", timeout)
		stopJobs()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Errorf("[pool] workers still running after cancel, abandoning")
		}
	}
}
