package common

import "sync"

// Connection is the unsubscribe handle returned by Signal.Connect.
type Connection struct {
	mu         sync.Mutex
	connected  bool
	disconnect func()
}

// Disconnect stops delivery to the listener. Safe to call more than once.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	fn := c.disconnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

type slot[T any] struct {
	conn *Connection
	fn   func(T)
}

// Signal is an explicit subscriber list. Listeners run synchronously on Fire,
// in connection order.
type Signal[T any] struct {
	mu    sync.Mutex
	slots []*slot[T]
}

func (s *Signal[T]) Connect(fn func(T)) *Connection {
	sl := &slot[T]{fn: fn}
	sl.conn = &Connection{connected: true, disconnect: func() { s.remove(sl) }}
	s.mu.Lock()
	s.slots = append(s.slots, sl)
	s.mu.Unlock()
	return sl.conn
}

// Fire delivers v to every listener connected when Fire was called. A listener
// disconnected by an earlier listener in the same Fire is skipped.
func (s *Signal[T]) Fire(v T) {
	s.mu.Lock()
	snapshot := append([]*slot[T](nil), s.slots...)
	s.mu.Unlock()
	for _, sl := range snapshot {
		if sl.conn.Connected() {
			sl.fn(v)
		}
	}
}

func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// DisconnectAll drops every listener.
func (s *Signal[T]) DisconnectAll() {
	s.mu.Lock()
	snapshot := s.slots
	s.slots = nil
	s.mu.Unlock()
	for _, sl := range snapshot {
		sl.conn.Disconnect()
	}
}

func (s *Signal[T]) remove(target *slot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sl := range s.slots {
		if sl == target {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return
		}
	}
}
