// Package loop provides the single-threaded cooperative loop that owns the
// async thumbnail bookkeeping.
//
// Functions posted to a Loop run one at a time, in post order, on the
// goroutine that called Run. Code that only ever runs on that goroutine may
// share state without further synchronization.
package loop

import (
	"context"
	"sync"
)

// Loop is a FIFO of functions executed on one goroutine.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post schedules fn to run on the loop. It never blocks and is safe to call
// from any goroutine, including the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending executes every function posted so far, plus any they post in
// turn, and returns when the backlog is empty.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			fn()
			ran++
		}
	}
}

// Call runs fn on the loop and waits for it to return. It must not be called
// from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
