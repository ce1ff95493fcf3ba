package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
)

// Job represents a work item to be processed
type Job func(ctx context.Context) error

// Pool runs jobs on a fixed number of workers. The first failing job
// cancels the pool context so queued jobs are skipped; Wait reports it.
type Pool struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	errOnce    sync.Once
	err        error
	logger     arbor.ILogger
}

// NewPool creates a pool bound to ctx. maxWorkers <= 0 runs jobs one at a time.
func NewPool(ctx context.Context, maxWorkers int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &Pool{
		jobs:       make(chan Job, maxWorkers*2),
		maxWorkers: maxWorkers,
		ctx:        poolCtx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start begins the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit adds a job to the pool. It fails once the pool has been cancelled.
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool stopped: %w", context.Cause(p.ctx))
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool stopped: %w", context.Cause(p.ctx))
	}
}

// Wait closes the queue, waits for the workers and returns the first job
// error, or the parent context's error if it was cancelled
func (p *Pool) Wait() error {
	close(p.jobs)
	p.wg.Wait()
	defer p.cancel()

	if p.err != nil {
		return p.err
	}
	return p.ctx.Err()
}

func (p *Pool) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		p.cancel()
	})
}

// worker processes jobs from the queue
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		if p.ctx.Err() != nil {
			// drain so Submit never blocks on a full queue
			continue
		}
		if err := p.run(job); err != nil {
			p.logger.Debug().
				Err(err).
				Int("worker_id", id).
				Msg("Job failed")
			p.fail(err)
		}
	}
}

// run executes one job; a panic fails the pool instead of the process
func (p *Pool) run(job Job) (err error) {
	defer common.RecoverPanic(p.logger, "worker", &err)
	return job(p.ctx)
}
