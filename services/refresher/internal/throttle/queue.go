// Package throttle serializes outbound catalog requests: one in flight at a
// time, FIFO, with a fixed pause after each task settles.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/metrics"
)

// ErrStopped is returned for tasks submitted to, or still pending in, a
// stopped queue.
var ErrStopped = errors.New("throttle: queue stopped")

type task struct {
	ctx      context.Context
	fn       func(context.Context) error
	done     chan error
	enqueued time.Time
}

// Queue is a single-worker FIFO. The pause between tasks is measured from
// when a task settles (success or failure) to when the next one starts.
type Queue struct {
	delay time.Duration
	log   *zap.Logger

	mu      sync.Mutex
	pending []*task
	started bool
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	finished chan struct{}
}

// Option configures the Queue.
type Option func(*Queue)

func WithLogger(log *zap.Logger) Option {
	return func(q *Queue) { q.log = log }
}

func New(delay time.Duration, opts ...Option) *Queue {
	if delay < 0 {
		delay = 0
	}
	q := &Queue{
		delay:    delay,
		log:      zap.NewNop(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Start launches the worker. Tasks submitted before Start wait for it.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.loop()
}

// Stop rejects new tasks, fails pending ones with ErrStopped and waits for the
// task in flight, if any, to settle.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	started := q.started
	pending := q.pending
	q.pending = nil
	close(q.stop)
	q.mu.Unlock()

	for _, t := range pending {
		t.done <- ErrStopped
	}
	metrics.ThrottleQueueDepth.Set(0)
	if started {
		<-q.finished
	}
}

// Submit enqueues fn and blocks until it settles, returning fn's error. If ctx
// ends while the task is still queued, Submit returns ctx.Err() and the task
// is skipped when reached.
func (q *Queue) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1), enqueued: time.Now()}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	q.pending = append(q.pending, t)
	metrics.ThrottleQueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn through q and returns its result.
func Do[T any](ctx context.Context, q *Queue, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := q.Submit(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Len reports the number of queued tasks, excluding the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) loop() {
	defer close(q.finished)
	for {
		t, ok := q.next()
		if !ok {
			return
		}
		if err := t.ctx.Err(); err != nil {
			t.done <- err
			continue
		}
		metrics.ThrottleWait.Observe(time.Since(t.enqueued).Seconds())
		t.done <- q.run(t)

		if q.delay == 0 {
			continue
		}
		timer := time.NewTimer(q.delay)
		select {
		case <-timer.C:
		case <-q.stop:
			timer.Stop()
			return
		}
	}
}

func (q *Queue) next() (*task, bool) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.pending) > 0 {
			t := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			metrics.ThrottleQueueDepth.Set(float64(len(q.pending)))
			q.mu.Unlock()
			return t, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
			return nil, false
		}
	}
}

func (q *Queue) run(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("throttle: task panicked", zap.Any("panic", r))
			err = fmt.Errorf("throttle: task panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}
