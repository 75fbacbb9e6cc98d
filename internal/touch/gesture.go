package touch

// At most one gesture runs per button.
//
// GestureNone ---press button---> GestureDragging ---release / editing off---> GestureNone
// GestureNone ---press handle---> GestureResizing ---release / editing off---> GestureNone
type Gesture int

const (
	GestureNone Gesture = iota
	GestureDragging
	GestureResizing
)

func (g Gesture) String() string {
	return [...]string{"none", "dragging", "resizing"}[g]
}
