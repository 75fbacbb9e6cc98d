package input

import (
	"github.com/Shopify/touchbuttons/internal/common"
	"github.com/Shopify/touchbuttons/internal/layout"
)

// Target is anything that receives pointer-down events.
type Target interface {
	InputBegan() *common.Signal[Event]
}

// Service is the process-wide pointer source. InputChanged and InputEnded fire for
// every pointer regardless of which element it went down on.
type Service struct {
	InputChanged common.Signal[Event]
	InputEnded   common.Signal[Event]

	pointerType EventType
	position    layout.Vector2
	down        bool
}

func MakeService() *Service {
	return &Service{pointerType: Touch}
}

// UsePointer selects the event type Press/Move/Release emit: Touch or MouseButton1.
func (s *Service) UsePointer(t EventType) {
	s.pointerType = t
}

// Press puts the pointer down on target.
func (s *Service) Press(target Target, pos layout.Vector2) {
	s.position = pos
	s.down = true
	target.InputBegan().Fire(Event{Type: s.pointerType, State: Begin, Position: pos})
}

// Move reports the pointer at pos. Mouse pointers report MouseMovement.
func (s *Service) Move(pos layout.Vector2) {
	s.position = pos
	t := s.pointerType
	if t == MouseButton1 {
		t = MouseMovement
	}
	s.InputChanged.Fire(Event{Type: t, State: Change, Position: pos})
}

// Release lifts the pointer at pos.
func (s *Service) Release(pos layout.Vector2) {
	s.position = pos
	s.down = false
	s.InputEnded.Fire(Event{Type: s.pointerType, State: End, Position: pos})
}

// Drag is Press, one Move per step, then Release at the final step.
func (s *Service) Drag(target Target, from layout.Vector2, steps ...layout.Vector2) {
	s.Press(target, from)
	last := from
	for _, p := range steps {
		s.Move(p)
		last = p
	}
	s.Release(last)
}

func (s *Service) Position() layout.Vector2 {
	return s.position
}

func (s *Service) IsDown() bool {
	return s.down
}
