package impl

import (
	"github.com/Shopify/touchbuttons/internal/input"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/ui"
)

const (
	buttonImage       = "images/touch_button.png"
	resizeHandleImage = "images/resize_handle.png"
)

var centreAnchor = layout.Vector2{X: 0.5, Y: 0.5}

// HeadlessFactory builds elements into an in-memory screen: a full-viewport gui
// holding the button container, which is laid out where the jump button sits.
type HeadlessFactory struct {
	viewport layout.Vector2
	input    *input.Service

	gui       *HeadlessElement
	container *HeadlessElement

	lastInputType    input.EventType
	characterPresent bool
}

func MakeHeadlessFactory(viewport layout.Vector2, in *input.Service) *HeadlessFactory {
	f := &HeadlessFactory{viewport: viewport, input: in, lastInputType: input.Touch, characterPresent: true}
	f.gui = &HeadlessElement{name: "CustomTouchGui", root: f, size: layout.FromScale(1, 1), tint: ui.IdleTint}
	f.container = &HeadlessElement{name: "Jump", tint: ui.IdleTint}
	f.gui.addChild(f.container)
	f.applyContainerLayout()
	return f
}

func (f *HeadlessFactory) NewButton(name string) ui.Element {
	e := &HeadlessElement{
		name:   name,
		size:   layout.FromScale(1, 1),
		anchor: centreAnchor,
		icon:   buttonImage,
		tint:   ui.IdleTint,
	}
	f.container.addChild(e)
	return e
}

func (f *HeadlessFactory) NewResizeHandle(parent ui.Element) ui.Element {
	e := &HeadlessElement{
		name:     "ResizeHandle",
		position: layout.FromScale(0.82, 0.82),
		size:     layout.FromOffset(18, 18),
		anchor:   centreAnchor,
		icon:     resizeHandleImage,
		tint:     ui.IdleTint,
		active:   true,
	}
	if p, ok := parent.(*HeadlessElement); ok {
		p.addChild(e)
	} else {
		f.gui.addChild(e)
	}
	return e
}

func (f *HeadlessFactory) NewResetButton() ui.Element {
	e := &HeadlessElement{
		name:     "Reset",
		position: layout.FromScale(0.5, 0.5),
		size:     layout.FromOffset(120, 32),
		anchor:   centreAnchor,
		tint:     ui.Color{},
		active:   true,
	}
	f.gui.addChild(e)
	return e
}

// SetViewport resizes the screen and re-lays the button container.
func (f *HeadlessFactory) SetViewport(v layout.Vector2) {
	f.viewport = v
	f.applyContainerLayout()
}

func (f *HeadlessFactory) Viewport() layout.Vector2 { return f.viewport }

func (f *HeadlessFactory) Container() *HeadlessElement { return f.container }

func (f *HeadlessFactory) Gui() *HeadlessElement { return f.gui }

func (f *HeadlessFactory) SetLastInputType(t input.EventType) { f.lastInputType = t }

func (f *HeadlessFactory) SetCharacterPresent(present bool) { f.characterPresent = present }

// Enabled reports whether the touch gui is shown: only for touch input while the
// user has a character.
func (f *HeadlessFactory) Enabled() bool {
	return f.lastInputType == input.Touch && f.characterPresent
}

// Find returns the first live element with the given name, searching depth first.
func (f *HeadlessFactory) Find(name string) (*HeadlessElement, bool) {
	return find(f.gui, name)
}

// HitTest returns the deepest element under p. Later siblings are on top.
func (f *HeadlessFactory) HitTest(p layout.Vector2) (*HeadlessElement, bool) {
	return hit(f.gui, p)
}

// PressAt puts the pointer down on whatever element is under p.
func (f *HeadlessFactory) PressAt(p layout.Vector2) (*HeadlessElement, bool) {
	target, ok := f.HitTest(p)
	if !ok {
		return nil, false
	}
	f.input.Press(target, p)
	return target, true
}

func (f *HeadlessFactory) applyContainerLayout() {
	l := ui.JumpButtonLayout(f.viewport)
	f.container.position = l.Position
	f.container.size = l.Size
}

func find(e *HeadlessElement, name string) (*HeadlessElement, bool) {
	if e.name == name && !e.destroyed {
		return e, true
	}
	for _, c := range e.children {
		if found, ok := find(c, name); ok {
			return found, true
		}
	}
	return nil, false
}

func hit(e *HeadlessElement, p layout.Vector2) (*HeadlessElement, bool) {
	for i := len(e.children) - 1; i >= 0; i-- {
		if found, ok := hit(e.children[i], p); ok {
			return found, true
		}
	}
	if e.parent != nil && e.Contains(p) {
		return e, true
	}
	return nil, false
}
