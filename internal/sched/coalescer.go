package sched

import "sync"

// Coalescer collapses every Trigger between two idle points into one call of
// flush carrying the last triggered value.
type Coalescer[T any] struct {
	deferrer Deferrer
	flush    func(T)

	mu      sync.Mutex
	pending bool
	last    T
}

func MakeCoalescer[T any](d Deferrer, flush func(T)) *Coalescer[T] {
	return &Coalescer[T]{deferrer: d, flush: flush}
}

func (c *Coalescer[T]) Trigger(v T) {
	c.mu.Lock()
	c.last = v
	if c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = true
	c.mu.Unlock()
	c.deferrer.Defer(c.fire)
}

func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Coalescer[T]) fire() {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	v := c.last
	c.mu.Unlock()
	c.flush(v)
}
