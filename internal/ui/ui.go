package ui

import (
	"github.com/Shopify/touchbuttons/internal/common"
	"github.com/Shopify/touchbuttons/internal/input"
	"github.com/Shopify/touchbuttons/internal/layout"
)

type Color struct {
	R, G, B uint8
}

var (
	IdleTint    = Color{255, 255, 255}
	PressedTint = Color{200, 200, 200}
	EditingTint = Color{15, 143, 255}
)

// Element is one visual rectangle. Positions and sizes are relative to the
// element's parent; absolute values are in viewport pixels.
type Element interface {
	Name() string

	Position() layout.UDim2
	SetPosition(layout.UDim2)
	Size() layout.UDim2
	SetSize(layout.UDim2)

	Icon() string
	SetIcon(string)
	Tint() Color
	SetTint(Color)

	// Active elements sink input; inactive ones let it through to the scene.
	Active() bool
	SetActive(bool)

	AbsoluteSize() layout.Vector2
	AbsolutePosition() layout.Vector2
	ParentAbsoluteSize() layout.Vector2

	InputBegan() *common.Signal[input.Event]

	Destroy()
	Destroyed() bool
}

type Factory interface {
	// NewButton creates a touch button inside the shared button container.
	NewButton(name string) Element
	// NewResizeHandle creates the small drag handle at the corner of parent.
	NewResizeHandle(parent Element) Element
	// NewResetButton creates the centred "Reset Buttons" affordance.
	NewResetButton() Element
}
