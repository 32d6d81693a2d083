// Package settlement runs deferred provider settlements in-process.
//
// The queue only holds timers and workers. The durable record of a scheduled
// settlement is its settlement_jobs row; pending rows are handed to the queue
// again on startup and by the periodic sweep, so a restart loses nothing.
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"remittance_system/internal/tenant"

	"github.com/sirupsen/logrus"
)

// Job identifies one settlement_jobs row in one tenant store.
type Job struct {
	ID     uint
	Tenant tenant.Context
	DueAt  time.Time
}

func (j Job) key() string {
	return fmt.Sprintf("%s:%d", j.Tenant.Code, j.ID)
}

// HandlerFunc completes a due job.
type HandlerFunc func(ctx context.Context, job Job) error

// Queue fires jobs at their due time on a fixed pool of workers.
// A job already waiting or running is not scheduled twice.
type Queue struct {
	log     logrus.FieldLogger
	workers int
	now     func() time.Time

	ready  chan Job
	quit   chan struct{}
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer
	started bool
	stopped bool
}

// NewQueue builds a queue with the given number of workers (at least one).
func NewQueue(log logrus.FieldLogger, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Queue{
		log:     log.WithField("component", "settlement_queue"),
		workers: workers,
		now:     time.Now,
		ready:   make(chan Job),
		quit:    make(chan struct{}),
		runCtx:  runCtx,
		cancel:  cancel,
		pending: make(map[string]*time.Timer),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start(handler HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(handler)
	}
	q.log.WithField("workers", q.workers).Info("Settlement queue started")
}

// Schedule arms a timer for job. It reports false when the job is already
// queued or the queue is stopped.
func (q *Queue) Schedule(job Job) bool {
	key := job.key()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	if _, ok := q.pending[key]; ok {
		return false
	}
	delay := job.DueAt.Sub(q.now())
	if delay < 0 {
		delay = 0
	}
	q.pending[key] = time.AfterFunc(delay, func() {
		select {
		case q.ready <- job:
		case <-q.quit:
		}
	})
	return true
}

// Pending returns the number of jobs waiting or running
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) work(handler HandlerFunc) {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case job := <-q.ready:
			q.run(handler, job)
		}
	}
}

func (q *Queue) run(handler HandlerFunc, job Job) {
	fields := logrus.Fields{"tenant": job.Tenant.Code, "job_id": job.ID}
	defer func() {
		if rec := recover(); rec != nil {
			q.log.WithFields(fields).WithField("panic", rec).Error("Settlement handler panicked")
		}
		q.mu.Lock()
		delete(q.pending, job.key())
		q.mu.Unlock()
	}()
	if err := handler(q.runCtx, job); err != nil {
		// the row stays PENDING and the next sweep retries it
		q.log.WithFields(fields).WithField("error", err.Error()).Warn("Settlement job failed")
	}
}

// Stop cancels armed timers and waits for running jobs to finish. When ctx
// expires first, running jobs see their context cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	for key, t := range q.pending {
		if t.Stop() {
			delete(q.pending, key)
		}
	}
	q.mu.Unlock()
	close(q.quit)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		q.log.Info("Settlement queue stopped")
		return nil
	case <-ctx.Done():
		q.cancel()
		return fmt.Errorf("settlement queue stop: %w", ctx.Err())
	}
}
