package sched

import (
	"context"
	"sync"
)

// Deferrer runs a callback once, at the next idle point of an event loop.
type Deferrer interface {
	Defer(fn func())
}

// Scheduler is the part of Loop client code depends on.
type Scheduler interface {
	Deferrer
	Post(fn func())
}

// Loop is a single-threaded cooperative event loop. Post and Defer may be called
// from any goroutine; queued work only ever runs on the goroutine calling Step.
type Loop struct {
	mu       sync.Mutex
	tasks    []func()
	deferred []func()
	wake     chan struct{}
}

func MakeLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn to run in the next Step, ahead of deferred callbacks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.notify()
}

// Defer queues fn to run after the tasks of the current Step.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	l.deferred = append(l.deferred, fn)
	l.mu.Unlock()
	l.notify()
}

// Step runs every queued task, then every deferred callback queued so far, and
// reports how many ran. Work queued by those callbacks waits for the next Step.
func (l *Loop) Step() int {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}

	l.mu.Lock()
	deferred := l.deferred
	l.deferred = nil
	l.mu.Unlock()
	for _, fn := range deferred {
		fn()
	}
	return len(tasks) + len(deferred)
}

// Drain steps until nothing is left queued.
func (l *Loop) Drain() int {
	total := 0
	for l.Pending() > 0 {
		total += l.Step()
	}
	return total
}

func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) + len(l.deferred)
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		if l.Step() > 0 {
			continue
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
