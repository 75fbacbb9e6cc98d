package touch

import (
	"context"
	"math"

	"github.com/Shopify/touchbuttons/internal/common"
	"github.com/Shopify/touchbuttons/internal/input"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/metrics"
	"github.com/Shopify/touchbuttons/internal/sched"
	"github.com/Shopify/touchbuttons/internal/ui"

	"github.com/rs/zerolog/log"
)

// MinResize is the smallest absolute side length, in pixels, a resize can produce.
const MinResize = 40.0

type Options struct {
	Name     string
	Icon     string
	Size     layout.UDim2
	Position layout.UDim2

	OnPress   func()
	OnRelease func()
}

// Button is one on-screen touch button. All methods must be called from the
// coordinator's event loop.
type Button struct {
	coord    *Coordinator
	name     string
	defaults layout.ButtonConfig
	options  Options

	element ui.Element
	sync    *sched.Coalescer[layout.ButtonConfig]

	gesture      Gesture
	gestureTrove common.Trove
	editingTrove common.Trove
	lifeTrove    common.Trove

	pressRelease *common.Connection
	destroyed    bool
}

func (b *Button) Name() string { return b.name }

func (b *Button) Element() ui.Element { return b.element }

func (b *Button) Gesture() Gesture { return b.gesture }

func (b *Button) Defaults() layout.ButtonConfig { return b.defaults }

// Config is what the button currently shows.
func (b *Button) Config() layout.ButtonConfig {
	return layout.ButtonConfig{Position: b.element.Position(), Size: b.element.Size()}
}

func (b *Button) SetIcon(icon string) {
	if b.destroyed {
		return
	}
	b.element.SetIcon(icon)
}

// SetSize applies immediately and schedules one sync for the current tick.
func (b *Button) SetSize(size layout.UDim2) {
	if b.destroyed {
		return
	}
	b.element.SetSize(size)
	b.sync.Trigger(b.Config())
}

func (b *Button) SetPosition(position layout.UDim2) {
	if b.destroyed {
		return
	}
	b.element.SetPosition(position)
	b.sync.Trigger(b.Config())
}

func (b *Button) SetConfig(cfg layout.ButtonConfig) {
	b.SetPosition(cfg.Position)
	b.SetSize(cfg.Size)
}

// Reset restores the options the button was built with.
func (b *Button) Reset() {
	b.SetConfig(b.defaults)
}

// Destroy detaches every listener and removes the button. A sync already scheduled
// this tick still goes out.
func (b *Button) Destroy() {
	if b.destroyed {
		return
	}
	b.endGesture()
	b.editingTrove.Clean()
	b.releasePress()
	b.lifeTrove.Clean()
	b.element.Destroy()
	b.destroyed = true
	b.coord.unregister(b)
}

func (b *Button) Destroyed() bool { return b.destroyed }

func (b *Button) pushConfig(cfg layout.ButtonConfig) {
	if err := b.coord.remote.SetConfig(b.name, cfg); err != nil {
		log.Warn().Err(err).Str("button", b.name).Msg("[TOUCH BUTTONS] failed to send config update")
		metrics.Incr("client.sync", []string{"result:failure"})
		return
	}
	metrics.Incr("client.sync", []string{"result:success"})
}

func (b *Button) fetchConfig(ctx context.Context) {
	cfg, found, err := b.coord.remote.GetConfig(ctx, b.name)
	if err != nil {
		log.Warn().Err(err).Str("button", b.name).Msg("[TOUCH BUTTONS] failed to fetch saved config")
		return
	}
	if !found {
		return
	}
	b.coord.loop.Post(func() {
		b.SetConfig(cfg)
	})
}

func (b *Button) onPressBegan(e input.Event) {
	if !e.IsPrimaryPress() || b.coord.editing || b.pressRelease != nil {
		return
	}
	b.element.SetTint(ui.PressedTint)
	if b.options.OnPress != nil {
		b.options.OnPress()
	}
	b.pressRelease = b.coord.input.InputEnded.Connect(func(end input.Event) {
		if !end.IsPrimaryRelease() {
			return
		}
		b.releasePress()
		if !b.coord.editing {
			b.element.SetTint(ui.IdleTint)
		}
		if b.options.OnRelease != nil {
			b.options.OnRelease()
		}
	})
}

func (b *Button) releasePress() {
	if b.pressRelease != nil {
		b.pressRelease.Disconnect()
		b.pressRelease = nil
	}
}

func (b *Button) applyEditing(editing bool) {
	if b.destroyed {
		return
	}
	if !editing {
		b.endGesture()
		b.editingTrove.Clean()
		b.element.SetActive(false)
		b.element.SetTint(ui.IdleTint)
		return
	}

	b.element.SetActive(true)
	b.element.SetTint(ui.EditingTint)

	handle := b.coord.factory.NewResizeHandle(b.element)
	b.editingTrove.Add(handle.Destroy)
	b.editingTrove.AddConnection(handle.InputBegan().Connect(b.beginResize))
	b.editingTrove.AddConnection(b.element.InputBegan().Connect(b.beginDrag))
}

func (b *Button) beginDrag(e input.Event) {
	if !e.IsPrimaryPress() || b.gesture != GestureNone {
		return
	}
	parent := b.element.ParentAbsoluteSize()
	if parent.X <= 0 || parent.Y <= 0 {
		return
	}
	startPointer := e.Position
	startPos := b.element.Position()

	b.startGesture(GestureDragging, func(move input.Event) {
		delta := move.Position.Sub(startPointer)
		b.SetPosition(layout.FromScale(
			startPos.X.Scale+delta.X/parent.X,
			startPos.Y.Scale+delta.Y/parent.Y,
		))
	})
}

func (b *Button) beginResize(e input.Event) {
	if !e.IsPrimaryPress() || b.gesture != GestureNone {
		return
	}
	parent := b.element.ParentAbsoluteSize()
	if parent.X <= 0 {
		return
	}
	startPointer := e.Position
	startAbs := b.element.AbsoluteSize()

	b.startGesture(GestureResizing, func(move input.Event) {
		delta := move.Position.Sub(startPointer).MaxAxis()
		abs := math.Max(MinResize, startAbs.X+delta)
		scale := abs / parent.X
		b.SetSize(layout.FromScale(scale, scale))
	})
}

func (b *Button) startGesture(g Gesture, onMove func(input.Event)) {
	b.gesture = g
	in := b.coord.input
	b.gestureTrove.AddConnection(in.InputChanged.Connect(func(move input.Event) {
		if move.IsMove() {
			onMove(move)
		}
	}))
	b.gestureTrove.AddConnection(in.InputEnded.Connect(func(end input.Event) {
		if end.IsPrimaryRelease() {
			b.endGesture()
		}
	}))
	log.Debug().Str("button", b.name).Str("gesture", g.String()).Msg("gesture started")
}

func (b *Button) endGesture() {
	b.gestureTrove.Clean()
	b.gesture = GestureNone
}
