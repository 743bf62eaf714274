// Package worker runs report processing jobs on a bounded pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Job represents a unit of work for the pool.
type Job struct {
	// Name is used for logging only.
	Name    string
	Execute func(ctx context.Context) error
}

// Config sizes the pool.
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// DefaultJobTimeout bounds a single job. OCR of a large scan is the slow case.
const DefaultJobTimeout = 2 * time.Minute

type poolMetrics struct {
	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
	completedJobs prometheus.Counter
	droppedJobs   prometheus.Counter
	errorCount    prometheus.Counter
	jobDuration   prometheus.Histogram
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	f := promauto.With(reg)
	return &poolMetrics{
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "medreports_worker_queue_depth",
			Help: "Current number of jobs waiting in queue",
		}),
		activeWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "medreports_worker_active",
			Help: "Current number of workers processing jobs",
		}),
		completedJobs: f.NewCounter(prometheus.CounterOpts{
			Name: "medreports_worker_completed_jobs_total",
			Help: "Total number of completed jobs",
		}),
		droppedJobs: f.NewCounter(prometheus.CounterOpts{
			Name: "medreports_worker_dropped_jobs_total",
			Help: "Total number of jobs dropped due to full queue",
		}),
		errorCount: f.NewCounter(prometheus.CounterOpts{
			Name: "medreports_worker_errors_total",
			Help: "Total number of job execution errors",
		}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medreports_worker_job_duration_seconds",
			Help:    "Time taken to execute jobs",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// Pool manages a bounded set of workers processing jobs from a queue.
type Pool struct {
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger
	metrics  *poolMetrics
	config   Config
	mu       sync.RWMutex
	running  bool
	closed   bool
}

// New creates a pool. Metrics are registered on reg. The pool must be
// started with Start before jobs run.
func New(cfg Config, logger zerolog.Logger, reg prometheus.Registerer) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobQueue: make(chan Job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With().Str("component", "worker-pool").Logger(),
		metrics:  newPoolMetrics(reg),
		config:   cfg,
	}
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.closed {
		return
	}
	p.running = true

	p.logger.Info().
		Int("workers", p.config.Workers).
		Int("queue_size", p.config.QueueSize).
		Msg("starting worker pool")

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobQueue {
		p.executeJob(id, job)
	}
}

func (p *Pool) executeJob(workerID int, job Job) {
	p.metrics.activeWorkers.Inc()
	p.metrics.queueDepth.Dec()
	defer p.metrics.activeWorkers.Dec()

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(p.ctx, p.config.JobTimeout)
	defer cancel()

	err := run(jobCtx, job)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Error().Err(err).
			Str("job", job.Name).
			Int("worker_id", workerID).
			Dur("duration", elapsed).
			Msg("job failed")
		p.metrics.errorCount.Inc()
	} else {
		p.logger.Debug().
			Str("job", job.Name).
			Int("worker_id", workerID).
			Dur("duration", elapsed).
			Msg("job completed")
	}

	p.metrics.jobDuration.Observe(elapsed.Seconds())
	p.metrics.completedJobs.Inc()
}

func run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute(ctx)
}

// Submit queues a job without blocking. It returns false when the queue is
// full or the pool is shut down; the job is dropped.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.metrics.droppedJobs.Inc()
		p.logger.Warn().Str("job", job.Name).Msg("job dropped, pool is shut down")
		return false
	}

	select {
	case p.jobQueue <- job:
		p.metrics.queueDepth.Inc()
		return true
	default:
		p.metrics.droppedJobs.Inc()
		p.logger.Warn().
			Str("job", job.Name).
			Int("queue_size", p.config.QueueSize).
			Msg("job dropped, queue full")
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued and in-flight jobs to
// finish. When ctx expires first, running jobs are cancelled and ctx.Err()
// is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	wasRunning := p.running
	p.running = false
	close(p.jobQueue)
	p.mu.Unlock()

	if !wasRunning {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info().Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn().Msg("worker pool shutdown timed out")
		return ctx.Err()
	}
}

// QueueDepth returns the number of jobs waiting in the queue.
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

// IsRunning reports whether the pool has been started and not shut down.
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// ErrNotRunning is reported by Ping before Start and after Shutdown.
var ErrNotRunning = errors.New("worker pool is not running")

// Ping reports whether the pool can take new work. A full queue is an error.
func (p *Pool) Ping(context.Context) error {
	if !p.IsRunning() {
		return ErrNotRunning
	}
	if depth := p.QueueDepth(); depth >= cap(p.jobQueue) {
		return fmt.Errorf("job queue full (%d/%d)", depth, cap(p.jobQueue))
	}
	return nil
}
