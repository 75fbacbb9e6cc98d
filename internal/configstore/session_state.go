package configstore

// Per-user cache record state machine.
//
// Connecting   = session registered, durable load in flight
// Loaded       = load finished (or failed and fell back to an empty entry), waiters released
// Disconnected = session ended, record flushed and evicted
//
// Connecting ---> Loaded ---> Disconnected
type SessionState int

const (
	Connecting SessionState = iota
	Loaded
	Disconnected
)

func (s SessionState) String() string {
	return [...]string{"connecting", "loaded", "disconnected"}[s]
}
