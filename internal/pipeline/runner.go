package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Submit when the runner's queue is at
// capacity.
var ErrQueueFull = errors.New("runner queue full")

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Pipeline *Pipeline
	Logger   *slog.Logger

	// Workers is the number of documents processed concurrently
	// (default 2).
	Workers int

	// QueueSize bounds the submission backlog (default 32).
	QueueSize int
}

// Runner processes submitted jobs on a fixed worker pool. Each worker
// owns one document at a time; page-level concurrency lives inside the
// OCR ensemble.
type Runner struct {
	pipeline *Pipeline
	logger   *slog.Logger
	workers  int
	queue    chan *Job

	mu   sync.Mutex
	jobs map[string]*Job

	wg sync.WaitGroup
}

// NewRunner creates a runner. Call Start before submitting.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("runner requires a pipeline")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Runner{
		pipeline: cfg.Pipeline,
		logger:   logger.With("component", "runner"),
		workers:  workers,
		queue:    make(chan *Job, queueSize),
		jobs:     make(map[string]*Job),
	}, nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
	r.logger.Info("runner started", "workers", r.workers)
}

func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	logger := r.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return
		case job := <-r.queue:
			if err := r.pipeline.Process(ctx, job); err != nil {
				logger.Warn("job failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

// Submit queues a job for processing. Returns ErrQueueFull when the
// backlog is at capacity.
func (r *Runner) Submit(job *Job) error {
	r.mu.Lock()
	if _, ok := r.jobs[job.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("job %s already submitted", job.ID)
	}
	r.jobs[job.ID] = job
	r.mu.Unlock()

	select {
	case r.queue <- job:
		return nil
	default:
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
		return fmt.Errorf("%w: job %s", ErrQueueFull, job.ID)
	}
}

// Job returns a submitted job by ID.
func (r *Runner) Job(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// QueueDepth reports the number of jobs waiting for a worker.
func (r *Runner) QueueDepth() int {
	return len(r.queue)
}

// Wait blocks until all workers have exited after context cancellation.
func (r *Runner) Wait() {
	r.wg.Wait()
}
