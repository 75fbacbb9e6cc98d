package impl

import (
	"github.com/Shopify/touchbuttons/internal/common"
	"github.com/Shopify/touchbuttons/internal/input"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/ui"
)

// HeadlessElement keeps element state in memory and resolves absolute geometry
// against its parent chain. It is driven from a single event loop.
type HeadlessElement struct {
	name   string
	parent *HeadlessElement
	root   *HeadlessFactory

	position layout.UDim2
	size     layout.UDim2
	anchor   layout.Vector2

	icon      string
	tint      ui.Color
	active    bool
	destroyed bool

	children []*HeadlessElement
	began    common.Signal[input.Event]
}

func (e *HeadlessElement) Name() string { return e.name }

func (e *HeadlessElement) Position() layout.UDim2 { return e.position }

func (e *HeadlessElement) SetPosition(p layout.UDim2) { e.position = p }

func (e *HeadlessElement) Size() layout.UDim2 { return e.size }

func (e *HeadlessElement) SetSize(s layout.UDim2) { e.size = s }

func (e *HeadlessElement) Icon() string { return e.icon }

func (e *HeadlessElement) SetIcon(icon string) { e.icon = icon }

func (e *HeadlessElement) Tint() ui.Color { return e.tint }

func (e *HeadlessElement) SetTint(c ui.Color) { e.tint = c }

func (e *HeadlessElement) Active() bool { return e.active }

func (e *HeadlessElement) SetActive(active bool) { e.active = active }

func (e *HeadlessElement) InputBegan() *common.Signal[input.Event] { return &e.began }

func (e *HeadlessElement) Parent() *HeadlessElement { return e.parent }

func (e *HeadlessElement) Children() []*HeadlessElement {
	return append([]*HeadlessElement(nil), e.children...)
}

func (e *HeadlessElement) ParentAbsoluteSize() layout.Vector2 {
	if e.parent == nil {
		return e.root.viewport
	}
	return e.parent.AbsoluteSize()
}

func (e *HeadlessElement) AbsoluteSize() layout.Vector2 {
	return e.size.Resolve(e.ParentAbsoluteSize())
}

// AbsolutePosition is the top-left corner in viewport pixels.
func (e *HeadlessElement) AbsolutePosition() layout.Vector2 {
	var origin layout.Vector2
	if e.parent != nil {
		origin = e.parent.AbsolutePosition()
	}
	size := e.AbsoluteSize()
	offset := e.position.Resolve(e.ParentAbsoluteSize())
	return layout.Vector2{
		X: origin.X + offset.X - e.anchor.X*size.X,
		Y: origin.Y + offset.Y - e.anchor.Y*size.Y,
	}
}

// Centre is the midpoint of the element in viewport pixels.
func (e *HeadlessElement) Centre() layout.Vector2 {
	pos, size := e.AbsolutePosition(), e.AbsoluteSize()
	return layout.Vector2{X: pos.X + size.X/2, Y: pos.Y + size.Y/2}
}

func (e *HeadlessElement) Contains(p layout.Vector2) bool {
	pos, size := e.AbsolutePosition(), e.AbsoluteSize()
	return p.X >= pos.X && p.X <= pos.X+size.X && p.Y >= pos.Y && p.Y <= pos.Y+size.Y
}

// Destroy removes the element and its descendants and drops their listeners.
func (e *HeadlessElement) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	for _, c := range e.children {
		c.Destroy()
	}
	e.children = nil
	e.began.DisconnectAll()
	if e.parent != nil {
		e.parent.removeChild(e)
	}
}

func (e *HeadlessElement) Destroyed() bool { return e.destroyed }

func (e *HeadlessElement) addChild(c *HeadlessElement) {
	c.parent = e
	c.root = e.root
	e.children = append(e.children, c)
}

func (e *HeadlessElement) removeChild(c *HeadlessElement) {
	for i, child := range e.children {
		if child == c {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}
