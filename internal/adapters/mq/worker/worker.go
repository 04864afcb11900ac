// Package worker runs queued analyses in the background.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/seasonal/internal/domain/model"
	"github.com/okian/seasonal/pkg/logger"
	"github.com/okian/seasonal/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultJobTimeout   = 2 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Job abstracts what workers read off the queue.
type Job = model.Job

// Analyzer runs one analysis job to completion.
type Analyzer interface {
	Analyze(ctx context.Context, j Job) (model.Report, error)
}

// Recorder persists lifecycle transitions of asynchronous analyses.
type Recorder interface {
	MarkRunning(ctx context.Context, id string, at time.Time) error
	Complete(ctx context.Context, id string, rep model.Report, cause error, at time.Time) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs and records their outcome.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for analysis jobs.
type InMemoryWorker struct {
	queue      Queue
	analyzer   Analyzer
	recorder   Recorder
	name       string
	jobTimeout time.Duration
	active     *atomic.Int32

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, a Analyzer, r Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		analyzer:   a,
		recorder:   r,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		active:     new(atomic.Int32),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, j); err != nil {
				w.logger.Warn(ctx, "analysis job failed",
					logger.String("analysis_id", j.ID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs a single job and records its terminal state.
func (w *InMemoryWorker) process(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.recorder.MarkRunning(ctx, j.ID, start); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "record_error")
		return fmt.Errorf("mark %s running: %w", j.ID, err)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	w.logger.Debug(ctx, "analysis started",
		logger.String("analysis_id", j.ID),
		logger.String("mode", string(j.Mode)),
	)
	rep, cause := w.analyzer.Analyze(jobCtx, j)
	if cause != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "analysis_error")
	}

	if err := w.recorder.Complete(ctx, j.ID, rep, cause, time.Now()); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "record_error")
		return fmt.Errorf("complete %s: %w", j.ID, err)
	}
	if cause != nil {
		return fmt.Errorf("analyze %s: %w", j.ID, cause)
	}

	w.logger.Debug(ctx, "analysis finished",
		logger.String("analysis_id", j.ID),
		logger.String("label", rep.Verdict.Label),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int32

	logger logger.Logger
}

// NewPool creates a new worker pool. Options are applied to every worker.
func NewPool(workerCount int, q Queue, a Analyzer, r Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	// The pool logs through the same logger its workers are given.
	base := &InMemoryWorker{}
	for _, opt := range opts {
		opt(base)
	}
	if base.logger == nil {
		base.logger = logger.Get().Named("worker")
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  base.logger.Named("pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i)), WithLogger(base.logger)}, opts...)
		w := NewInMemoryWorker(q, a, r, wopts...)
		w.active = &pool.active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Active returns the number of workers currently running a job.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain pending jobs, and waits for
// them until ctx or the pool timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(shutdownCtx)
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
