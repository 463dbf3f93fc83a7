// Package streaming fans a batch of independent capture buffers out
// across a fixed worker pool, each scanned whole by one shared Scanner
// (the batch command passes fixed, pre-built Tables). Every buffer gets its own Stats; there is no
// chunking of a single buffer and no state carried between jobs.
package streaming

import (
	"context"
	"sync"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/resilience"
	"github.com/swarmguard/sigscan/internal/stats"
)

// Scanner is the subset of hotreload.Scanner the pool needs.
type Scanner interface {
	Scan(data []byte, fn engine.MatchFunc) stats.Stats
}

// Job is one capture buffer to scan, identified by id for correlating
// results.
type Job struct {
	ID   string
	Data []byte
}

// Result is one job's outcome.
type Result struct {
	ID      string
	Matches []engine.Match
	Stats   stats.Stats
}

// WorkerPool runs a fixed number of goroutines pulling Jobs and scanning
// each against scanner.
type WorkerPool struct {
	scanner Scanner
	workers int
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup

	admission *resilience.HybridRateLimiter
}

// NewWorkerPool starts workers goroutines (at least 1) reading from an
// internal job queue.
func NewWorkerPool(scanner Scanner, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	wp := &WorkerPool{
		scanner: scanner,
		workers: workers,
		jobs:    make(chan Job, workers*2),
		results: make(chan Result, workers*2),
	}
	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
	return wp
}

// WithAdmissionControl attaches a hybrid token/leaky-bucket limiter that
// smooths bursts of SubmitAdmitted calls ahead of the job queue, so a
// fleet of capture buffers submitted at once doesn't all land on the
// workers in the same instant. Pass nil to disable (the default).
func (wp *WorkerPool) WithAdmissionControl(limiter *resilience.HybridRateLimiter) *WorkerPool {
	wp.admission = limiter
	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for job := range wp.jobs {
		var matches []engine.Match
		st := wp.scanner.Scan(job.Data, func(m engine.Match) bool {
			matches = append(matches, m)
			return true
		})
		wp.results <- Result{ID: job.ID, Matches: matches, Stats: st}
	}
}

// Submit queues a job. It blocks once the internal queue is full.
func (wp *WorkerPool) Submit(id string, data []byte) {
	wp.jobs <- Job{ID: id, Data: data}
}

// SubmitAdmitted queues a job after clearing admission control, if one
// is attached. Without one it behaves like Submit.
func (wp *WorkerPool) SubmitAdmitted(ctx context.Context, id string, data []byte) error {
	if wp.admission != nil {
		if err := wp.admission.AllowOrWait(ctx); err != nil {
			return err
		}
	}
	wp.jobs <- Job{ID: id, Data: data}
	return nil
}

// Results returns the channel to drain for completed jobs.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.results
}

// Close stops accepting jobs and waits for in-flight work to finish,
// then closes the results channel.
func (wp *WorkerPool) Close() {
	close(wp.jobs)
	wp.wg.Wait()
	close(wp.results)
	if wp.admission != nil {
		wp.admission.Stop()
	}
}
