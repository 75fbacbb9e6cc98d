package input

import "github.com/Shopify/touchbuttons/internal/layout"

type EventType int

const (
	MouseButton1 EventType = iota
	Touch
	MouseMovement
)

func (t EventType) String() string {
	return [...]string{"mouse_button1", "touch", "mouse_movement"}[t]
}

type EventState int

const (
	Begin EventState = iota
	Change
	End
)

func (s EventState) String() string {
	return [...]string{"begin", "change", "end"}[s]
}

// Event is one pointer input in viewport pixels.
type Event struct {
	Type     EventType
	State    EventState
	Position layout.Vector2
}

func (e Event) isPrimary() bool {
	return e.Type == MouseButton1 || e.Type == Touch
}

// IsPrimaryPress is a mouse button or touch going down.
func (e Event) IsPrimaryPress() bool {
	return e.isPrimary() && e.State == Begin
}

// IsMove is a pointer or touch moving.
func (e Event) IsMove() bool {
	return e.Type == MouseMovement || e.Type == Touch
}

func (e Event) IsPrimaryRelease() bool {
	return e.isPrimary()
}
