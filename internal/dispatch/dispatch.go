// Package dispatch runs webhook-triggered pipeline jobs on a bounded worker
// pool. Every job is an isolated unit: its own correlation identifier, its
// own token cache and workspace inside the pipeline, and a panic in one job
// never reaches another.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ratemymr/internal/pipeline"
)

// Job is one queued pipeline run.
type Job struct {
	Params pipeline.Params
}

// RunFunc executes one job; production wires pipeline.Run, tests stub it.
type RunFunc func(ctx context.Context, params pipeline.Params) error

// Pool is the in-memory dispatcher behind the webhook receiver.
type Pool struct {
	jobs   chan Job
	run    RunFunc
	logger zerolog.Logger
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewPool sizes the dispatcher. workers and queueSize must be positive.
func NewPool(workers, queueSize int, run RunFunc, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{
		jobs:   make(chan Job, queueSize),
		run:    run,
		logger: logger,
	}
	p.start(workers)
	return p
}

func (p *Pool) start(workers int) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Enqueue hands a job to the pool without blocking; a full queue rejects the
// job so the webhook can answer with backpressure instead of hanging. A pool
// that has begun shutting down rejects too, it never panics on the closed
// channel.
func (p *Pool) Enqueue(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("dispatcher is shut down")
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("dispatch queue is full")
	}
}

// Shutdown stops accepting jobs and waits for in-flight runs to finish.
// Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.runOne(n, job)
	}
}

// runOne isolates a single job: a panicking pipeline is logged and the
// worker keeps serving the queue.
func (p *Pool) runOne(worker int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Str("request_id", job.Params.CorrelationID).
				Str("project", job.Params.ProjectID).
				Int("mr_iid", job.Params.MRIID).
				Msg("Pipeline run panicked")
		}
	}()

	p.logger.Info().
		Int("worker", worker).
		Str("request_id", job.Params.CorrelationID).
		Str("project", job.Params.ProjectID).
		Int("mr_iid", job.Params.MRIID).
		Msg("Pipeline run dequeued")

	if err := p.run(context.Background(), job.Params); err != nil {
		p.logger.Error().
			Err(err).
			Str("request_id", job.Params.CorrelationID).
			Msg("Pipeline run failed")
	}
}
