// Package loop provides the single cooperative event loop that drives a
// garage session, together with schedulers that deliver timer callbacks onto
// it. Everything that mutates session state runs on the loop, one callback
// at a time, so the session itself needs no locks.
package loop

import (
	"context"
	"sync"
)

// DefaultBuffer is the number of callbacks that can be queued before Post blocks
const DefaultBuffer = 64

// Loop runs posted callbacks sequentially on the goroutine that calls Run
type Loop struct {
	events    chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a loop with room for buffer queued callbacks
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Loop{
		events: make(chan func(), buffer),
		done:   make(chan struct{}),
	}
}

// Post queues fn to run on the loop. After Close, callbacks are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.events <- fn:
	case <-l.done:
	}
}

// Run processes callbacks until ctx is cancelled or Close is called.
// It returns ctx.Err() when the context ends the loop, nil otherwise.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.events:
			fn()
		}
	}
}

// Close stops the loop. Callbacks still queued are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop has been closed
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// PosterFunc adapts a function to the Poster interface
type PosterFunc func(fn func())

// Post calls f(fn)
func (f PosterFunc) Post(fn func()) {
	f(fn)
}

// Queue is a Poster that collects callbacks until Drain runs them. It lets
// tests decide exactly when asynchronous completions are delivered.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	signal  chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Post appends fn to the queue
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued callbacks
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs every queued callback, including ones posted while draining,
// and returns how many ran.
func (q *Queue) Drain() int {
	ran := 0
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return ran
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
		ran++
	}
}

// Wait blocks until at least one callback is queued or ctx ends
func (q *Queue) Wait(ctx context.Context) error {
	for {
		if q.Len() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.signal:
		}
	}
}
