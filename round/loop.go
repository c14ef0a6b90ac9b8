package round

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("round: loop closed")

// Loop is the single owner of an engine's state. Every request and every
// timer callback runs on its goroutine, one at a time, in arrival order.
type Loop struct {
	reqs chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewLoop() *Loop {
	l := &Loop{
		reqs: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.reqs:
			fn()
		case <-l.quit:
			return
		}
	}
}

// Do runs fn on the loop and waits for it. Once fn has been handed to the
// loop it always runs to completion, even if ctx is cancelled meanwhile.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.reqs <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.quit:
		return ErrClosed
	}
	<-finished
	return nil
}

// Post hands fn to the loop without waiting for it to run. It reports false
// when the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case l.reqs <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Close stops the loop after the in-flight callback returns.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
