package touch

import (
	"context"
	"sync"
	"time"

	"github.com/Shopify/touchbuttons/internal/common"
	"github.com/Shopify/touchbuttons/internal/input"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/metrics"
	"github.com/Shopify/touchbuttons/internal/remotes"
	"github.com/Shopify/touchbuttons/internal/sched"
	"github.com/Shopify/touchbuttons/internal/ui"

	"github.com/pkg/errors"
)

const defaultFetchTimeout = 10 * time.Second

var ErrDuplicateName = errors.New("touch: a touch button with this name already exists")

// Coordinator owns the button registry and the editing-mode flag for one client.
// Apart from the config fetches, everything runs on loop.
type Coordinator struct {
	loop    sched.Scheduler
	remote  remotes.Remote
	factory ui.Factory
	input   *input.Service

	FetchTimeout time.Duration

	editing        bool
	editingChanged common.Signal[bool]
	editingTrove   common.Trove
	resetButton    ui.Element

	buttons []*Button
	fetches sync.WaitGroup
}

func MakeCoordinator(loop sched.Scheduler, remote remotes.Remote, factory ui.Factory, in *input.Service) *Coordinator {
	return &Coordinator{
		loop:         loop,
		remote:       remote,
		factory:      factory,
		input:        in,
		FetchTimeout: defaultFetchTimeout,
	}
}

// NewButton builds and registers a button, then asks the server for its saved
// config. Names must be unique within the coordinator.
func (c *Coordinator) NewButton(opts Options) (*Button, error) {
	if _, exists := c.Lookup(opts.Name); exists {
		return nil, errors.Wrap(ErrDuplicateName, opts.Name)
	}

	b := &Button{
		coord:    c,
		name:     opts.Name,
		defaults: layout.ButtonConfig{Position: opts.Position, Size: opts.Size},
		options:  opts,
		element:  c.factory.NewButton(opts.Name),
	}
	b.sync = sched.MakeCoalescer(c.loop, b.pushConfig)
	b.lifeTrove.AddConnection(b.element.InputBegan().Connect(b.onPressBegan))
	b.lifeTrove.AddConnection(c.OnEditingChanged(b.applyEditing))

	// Initial values are not synced; only a fetched or user-made change is.
	b.element.SetIcon(opts.Icon)
	b.element.SetSize(opts.Size)
	b.element.SetPosition(opts.Position)
	if c.editing {
		b.applyEditing(true)
	}
	c.buttons = append(c.buttons, b)
	metrics.Gauge("client.buttons", float64(len(c.buttons)), nil)

	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.FetchTimeout)
		defer cancel()
		b.fetchConfig(ctx)
	}()
	return b, nil
}

// WaitForFetches blocks until every config fetch started so far has answered and
// posted its result to the loop.
func (c *Coordinator) WaitForFetches() {
	c.fetches.Wait()
}

func (c *Coordinator) Editing() bool {
	return c.editing
}

// SetEditing toggles editing mode for every button. While on, a reset affordance
// is shown that resets every button when pressed.
func (c *Coordinator) SetEditing(editing bool) {
	if c.editing == editing {
		return
	}
	c.editing = editing
	if editing {
		reset := c.factory.NewResetButton()
		c.editingTrove.Add(reset.Destroy)
		c.editingTrove.AddConnection(reset.InputBegan().Connect(func(e input.Event) {
			if e.IsPrimaryPress() {
				c.ResetAll()
			}
		}))
		c.resetButton = reset
	} else {
		c.editingTrove.Clean()
		c.resetButton = nil
	}
	c.editingChanged.Fire(editing)
}

// ResetButton is the reset affordance, nil outside editing mode.
func (c *Coordinator) ResetButton() ui.Element {
	return c.resetButton
}

func (c *Coordinator) OnEditingChanged(fn func(editing bool)) *common.Connection {
	return c.editingChanged.Connect(fn)
}

func (c *Coordinator) ResetAll() {
	for _, b := range c.Buttons() {
		b.Reset()
	}
}

// Buttons returns the registered buttons in registration order.
func (c *Coordinator) Buttons() []*Button {
	return append([]*Button(nil), c.buttons...)
}

func (c *Coordinator) Lookup(name string) (*Button, bool) {
	for _, b := range c.buttons {
		if b.name == name {
			return b, true
		}
	}
	return nil, false
}

func (c *Coordinator) unregister(b *Button) {
	for i, other := range c.buttons {
		if other == b {
			c.buttons = append(c.buttons[:i], c.buttons[i+1:]...)
			break
		}
	}
	metrics.Gauge("client.buttons", float64(len(c.buttons)), nil)
}
