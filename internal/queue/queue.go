// Package queue is the Task Queue of the Service Substrate (spec.md §4.10):
// a bounded FIFO of deferred units run by a fixed worker pool, so that
// long-running stage work (transcription, OCR, report generation) never
// ties up an HTTP request goroutine. Grounded on the teacher's
// services.CommandDispatcher worker-pool idiom (go dispatcher.Start(),
// one goroutine per worker reading a shared channel) generalized from
// "dispatch a command to an agent" to "run an arbitrary Task".
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DTMBX/evident/internal/logger"
)

// Task is a unit of deferred work. It receives the context the caller
// submitted with, so cancellation/deadlines propagate into stage adapters
// and their Cache/DB/Event calls.
type Task func(ctx context.Context) error

// Future is returned by Submit and resolves once the task has run.
type Future struct {
	done chan error
}

// Wait blocks until the task completes or ctx is done, whichever comes
// first. It is safe to call Wait from multiple goroutines.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case err := <-f.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type job struct {
	ctx    context.Context
	task   Task
	future *Future
}

// Queue is a bounded channel of jobs drained by N worker goroutines.
type Queue struct {
	capacity int
	workers  int

	jobs    chan job
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New builds a Queue with the given buffered capacity and worker count.
// Workers are not started until Start is called.
func New(capacity, workers int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		capacity: capacity,
		workers:  workers,
		jobs:     make(chan job, capacity),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the worker pool. It is idempotent; calling it more than
// once has no further effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	log := logger.Queue()
	log.Info().Int("workers", q.workers).Int("capacity", q.capacity).Msg("starting task queue")
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop signals every worker to exit once its current job finishes, and
// waits for them to drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	logger.Queue().Info().Msg("task queue stopped")
}

// Submit enqueues task, failing immediately with an error if the queue is
// full (the default "reject" backpressure policy).
func (q *Queue) Submit(ctx context.Context, task Task) (*Future, error) {
	future := &Future{done: make(chan error, 1)}
	select {
	case q.jobs <- job{ctx: ctx, task: task, future: future}:
		return future, nil
	default:
		return nil, fmt.Errorf("queue: full at capacity %d", q.capacity)
	}
}

// SubmitBlocking enqueues task, waiting up to timeout for room in the
// queue before giving up (the "block-up-to" backpressure policy).
func (q *Queue) SubmitBlocking(ctx context.Context, task Task, timeout time.Duration) (*Future, error) {
	future := &Future{done: make(chan error, 1)}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.jobs <- job{ctx: ctx, task: task, future: future}:
		return future, nil
	case <-timer.C:
		return nil, fmt.Errorf("queue: still full after waiting %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker drains jobs until Stop is called, running each task to completion
// with its own panic recovery so one misbehaving task never takes down the
// worker pool.
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := logger.Queue()

	for {
		select {
		case j := <-q.jobs:
			runJob(log, id, j)
		case <-q.stopCh:
			return
		}
	}
}

// runJob executes a single job, recovering from a panic in the task so one
// misbehaving task never takes down its worker goroutine.
func runJob(log *zerolog.Logger, id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("queue: worker %d recovered from panic: %v", id, r)
			log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
			select {
			case j.future.done <- err:
			default:
			}
		}
	}()

	err := j.task(j.ctx)
	if err != nil {
		log.Error().Int("worker", id).Err(err).Msg("task failed")
	}
	j.future.done <- err
}

// Len reports the number of jobs currently buffered in the queue.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Capacity reports the queue's buffered capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}
