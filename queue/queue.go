/*
Package queue provides the in-process task queue for asynchronous work.

PURPOSE:
  Webhook ingestion, single-line recalculation and the batch import pipeline
  all run as named tasks handed to this queue. Callers fire and forget; the
  queue delivers at least once and retries failures a bounded number of
  times with a fixed delay before declaring the task permanently failed.

DESIGN:
  - Named handlers registered before Start, each with its own retry policy
  - A fixed pool of workers draining one buffered channel
  - Retries happen in-worker (fixed delay, no backoff curve); the work unit
    must therefore be safe to re-run
  - Drain() blocks until every enqueued task and everything it chained has
    finished, which is how callers obtain an observable settling point

NO ORDERING:
  Tasks are independent. The only ordering available is explicit chaining:
  a handler enqueues the follow-up task after its own work succeeded.

SEE ALSO:
  - payroll/tasks.go: recalculation task handlers
  - importer/pipeline.go: the staged import chain
  - hrsync: webhook handlers with 3-attempt retry
*/
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc processes one task payload. A nil return acknowledges the
// task; an error triggers the handler's retry policy.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Options is the per-handler retry policy.
type Options struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Zero means fail immediately.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// OnExhausted, when set, runs once after the final attempt has failed.
	// Handlers use it to surface the failure somewhere observable (the
	// import pipeline writes it into the batch status).
	OnExhausted func(ctx context.Context, payload []byte, err error)
}

type registration struct {
	opts Options
	fn   HandlerFunc
}

// Task is one unit of queued work.
type Task struct {
	ID      string
	Name    string
	Payload []byte
}

// Queue is an in-process task queue with at-least-once delivery and
// bounded retries.
type Queue struct {
	workers  int
	handlers map[string]registration
	tasks    chan Task

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	started bool
	closed  bool

	pending sync.WaitGroup
}

// New creates a queue with the given worker count.
func New(workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		workers:  workers,
		handlers: make(map[string]registration),
		tasks:    make(chan Task, 1024),
	}
}

// Register binds a handler to a task name. Must be called before Start.
func (q *Queue) Register(name string, opts Options, fn HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		panic("queue: Register after Start")
	}
	q.handlers[name] = registration{opts: opts, fn: fn}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.group, _ = errgroup.WithContext(q.ctx)
	for i := 0; i < q.workers; i++ {
		q.group.Go(q.run)
	}
	log.Printf("[Queue] Started %d workers", q.workers)
}

// Enqueue marshals args and submits a task. Fire-and-forget: the caller gets
// an error only when the task name is unknown or the queue is closed.
func (q *Queue) Enqueue(name string, args any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("queue: marshal %s: %w", name, err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue: enqueue %s: queue closed", name)
	}
	if _, ok := q.handlers[name]; !ok {
		q.mu.Unlock()
		return fmt.Errorf("queue: no handler registered for %s", name)
	}
	q.pending.Add(1)
	q.mu.Unlock()

	q.tasks <- Task{ID: uuid.NewString(), Name: name, Payload: payload}
	return nil
}

// Drain blocks until every enqueued task, including tasks chained by
// handlers, has been processed to success or permanent failure.
func (q *Queue) Drain() {
	q.pending.Wait()
}

// Close drains outstanding work and stops the workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed || !q.started {
		q.closed = true
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.pending.Wait()
	q.cancel()
	close(q.tasks)
	_ = q.group.Wait()
	log.Println("[Queue] Stopped")
}

func (q *Queue) run() error {
	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return nil
			}
			q.process(task)
		case <-q.ctx.Done():
			return nil
		}
	}
}

func (q *Queue) process(task Task) {
	defer q.pending.Done()

	reg := q.handlers[task.Name]
	attempts := reg.opts.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		err := reg.fn(q.ctx, task.Payload)
		if err == nil {
			return
		}

		if attempt == attempts {
			log.Printf("[Queue] Task %s (%s) permanently failed after %d attempts: %v",
				task.Name, task.ID, attempt, err)
			if reg.opts.OnExhausted != nil {
				reg.opts.OnExhausted(q.ctx, task.Payload, err)
			}
			return
		}

		log.Printf("[Queue] Task %s (%s) attempt %d failed, retrying in %v: %v",
			task.Name, task.ID, attempt, reg.opts.RetryDelay, err)

		select {
		case <-time.After(reg.opts.RetryDelay):
		case <-q.ctx.Done():
			return
		}
	}
}
