package common

import "sync"

// Trove collects cleanups for a scope and runs them together.
type Trove struct {
	mu       sync.Mutex
	cleanups []func()
}

func (t *Trove) Add(cleanup func()) {
	t.mu.Lock()
	t.cleanups = append(t.cleanups, cleanup)
	t.mu.Unlock()
}

func (t *Trove) AddConnection(c *Connection) {
	t.Add(c.Disconnect)
}

// Clean runs every cleanup in reverse order of addition and empties the trove.
// Cleanups added while cleaning run in the next Clean.
func (t *Trove) Clean() {
	t.mu.Lock()
	cleanups := t.cleanups
	t.cleanups = nil
	t.mu.Unlock()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func (t *Trove) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cleanups)
}
