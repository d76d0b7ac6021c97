// Package runloop serializes all replica mutation onto one goroutine.
//
// Transport completions, push frames and download results are posted here as
// callbacks, so apply operations never interleave and the total order of
// mutation is exactly the order in which the underlying operations completed.
package runloop

import (
	"context"
	"sync"
)

// Loop is a single-goroutine cooperative scheduler. Post enqueues a callback
// in FIFO order; Defer schedules one for the next idle point, after the
// currently queued batch has drained. Defer is the coalescing primitive:
// work deferred several times within one batch still observes everything
// that batch did before it runs.
type Loop struct {
	mu       sync.Mutex
	queue    []func()
	deferred []func()
	wake     chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped loop. Call Start to begin dispatching.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start runs the dispatch goroutine until Stop or ctx cancellation.
func (l *Loop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Stop cancels the dispatch goroutine and waits for it to exit.
// Queued callbacks that have not run yet are discarded.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
}

// Post enqueues fn for execution on the loop goroutine. Safe to call from any
// goroutine, including from inside a running callback.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.poke()
}

// Defer enqueues fn to run at the next idle point: after every callback
// queued before the current batch finishes has executed.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	l.deferred = append(l.deferred, fn)
	l.mu.Unlock()
	l.poke()
}

func (l *Loop) poke() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		l.drain(ctx)
	}
}

// drain runs the posted batch to completion, then the deferred batch.
// Callbacks posted while draining extend the current batch; callbacks
// deferred while draining wait for the following idle point.
func (l *Loop) drain(ctx context.Context) {
	for {
		l.mu.Lock()
		var fn func()
		if len(l.queue) > 0 {
			fn = l.queue[0]
			l.queue = l.queue[1:]
		} else if len(l.deferred) > 0 {
			fn = l.deferred[0]
			l.deferred = l.deferred[1:]
		}
		l.mu.Unlock()

		if fn == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		fn()
	}
}
