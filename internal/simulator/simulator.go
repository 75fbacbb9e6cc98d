package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/Shopify/touchbuttons/internal/codec"
	"github.com/Shopify/touchbuttons/internal/configstore"
	"github.com/Shopify/touchbuttons/internal/datastore"
	"github.com/Shopify/touchbuttons/internal/input"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/metrics"
	"github.com/Shopify/touchbuttons/internal/remotes"
	"github.com/Shopify/touchbuttons/internal/sched"
	"github.com/Shopify/touchbuttons/internal/server"
	"github.com/Shopify/touchbuttons/internal/touch"
	uiimpl "github.com/Shopify/touchbuttons/internal/ui/impl"

	"github.com/rs/zerolog/log"
)

const (
	maxDragPixels   = 20
	maxResizePixels = 15
	pointerSteps    = 4
)

// DefaultButtons is the button set every simulated client builds.
func DefaultButtons() []touch.Options {
	return []touch.Options{
		{Name: "jump", Icon: "icons/jump.png", Position: layout.FromScale(0.5, 0.5), Size: layout.FromOffset(80, 80)},
		{Name: "sprint", Icon: "icons/sprint.png", Position: layout.FromScale(-0.4, 0.5), Size: layout.FromOffset(60, 60)},
		{Name: "crouch", Icon: "icons/crouch.png", Position: layout.FromScale(0.5, -0.4), Size: layout.FromOffset(60, 60)},
	}
}

// SimulationDriver connects one scripted client per user to a Server, has each
// rearrange its buttons in editing mode, disconnects, then checks what was saved.
type SimulationDriver struct {
	Ctx           context.Context
	CtxCancelFunc context.CancelFunc

	Server    *server.Server
	DataStore datastore.DataStore

	Viewport          layout.Vector2
	UserIDs           []int64
	Buttons           []touch.Options
	GesturesPerButton int
	Seed              int64

	ClientsFinishedWaitGroup sync.WaitGroup

	mu      sync.Mutex
	results map[int64]clientResult
}

type clientResult struct {
	final    layout.ConfigEntry
	gestures int
	err      error
}

type Report struct {
	Users      int
	Failed     int
	Mismatched int
	Gestures   int
}

func (r Report) String() string {
	return fmt.Sprintf(
		"\nnum_users=%d\nnum_failed_users=%d\nnum_mismatched_users=%d\nnum_gestures=%d\n",
		r.Users, r.Failed, r.Mismatched, r.Gestures,
	)
}

func (d *SimulationDriver) StartSimulation() Report {
	d.results = make(map[int64]clientResult, len(d.UserIDs))
	d.ClientsFinishedWaitGroup.Add(len(d.UserIDs))
	for _, id := range d.UserIDs {
		go d.runClientWorker(id)
	}
	d.ClientsFinishedWaitGroup.Wait()
	// Sessions flush after their connection finishes; wait for every flush.
	d.Server.Wait()
	return d.aggregateResults()
}

func (d *SimulationDriver) runClientWorker(userID int64) {
	defer d.ClientsFinishedWaitGroup.Done()
	final, gestures, err := d.runClient(userID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("simulated client failed")
	}
	d.mu.Lock()
	d.results[userID] = clientResult{final: final, gestures: gestures, err: err}
	d.mu.Unlock()
}

func (d *SimulationDriver) runClient(userID int64) (layout.ConfigEntry, int, error) {
	conn, err := d.Server.Connect(d.Ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	defer func() { conn.Close(); <-conn.Finished() }()

	loop := sched.MakeLoop()
	in := input.MakeService()
	factory := uiimpl.MakeHeadlessFactory(d.Viewport, in)
	coord := touch.MakeCoordinator(loop, conn, factory, in)
	for _, opts := range d.Buttons {
		if _, err := coord.NewButton(opts); err != nil {
			return nil, 0, err
		}
	}
	coord.WaitForFetches()
	loop.Drain()

	rng := rand.New(rand.NewSource(d.Seed + userID))
	gestures := 0
	coord.SetEditing(true)
	for _, b := range coord.Buttons() {
		for g := 0; g < d.GesturesPerButton; g++ {
			if err := d.Ctx.Err(); err != nil {
				return nil, gestures, err
			}
			el := b.Element().(*uiimpl.HeadlessElement)
			if rng.Intn(2) == 0 {
				delta := randomDelta(rng, maxDragPixels)
				in.Drag(el, el.Centre(), path(el.Centre(), delta)...)
			} else {
				handle := el.Children()[0]
				delta := randomDelta(rng, maxResizePixels)
				in.Drag(handle, handle.Centre(), path(handle.Centre(), delta)...)
			}
			loop.Drain()
			gestures++
		}
	}
	coord.SetEditing(false)
	loop.Drain()

	final := layout.ConfigEntry{}
	for _, b := range coord.Buttons() {
		final[b.Name()] = b.Config()
	}
	return final, gestures, nil
}

func randomDelta(rng *rand.Rand, max float64) layout.Vector2 {
	return layout.Vector2{X: (rng.Float64()*2 - 1) * max, Y: (rng.Float64()*2 - 1) * max}
}

func path(from, delta layout.Vector2) []layout.Vector2 {
	steps := make([]layout.Vector2, 0, pointerSteps)
	for i := 1; i <= pointerSteps; i++ {
		f := float64(i) / pointerSteps
		steps = append(steps, from.Add(layout.Vector2{X: delta.X * f, Y: delta.Y * f}))
	}
	return steps
}

// aggregateResults compares each client's final layout to what was persisted for it.
func (d *SimulationDriver) aggregateResults() Report {
	report := Report{Users: len(d.UserIDs)}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, res := range d.results {
		report.Gestures += res.gestures
		if res.err != nil {
			report.Failed++
			continue
		}
		if !d.persistedMatches(id, res.final) {
			report.Mismatched++
		}
	}

	metrics.Gauge("simulation.users", float64(report.Users), nil)
	metrics.Gauge("simulation.failed_users", float64(report.Failed), nil)
	metrics.Gauge("simulation.mismatched_users", float64(report.Mismatched), nil)
	metrics.Count("simulation.gestures", int64(report.Gestures), nil)
	return report
}

func (d *SimulationDriver) persistedMatches(userID int64, final layout.ConfigEntry) bool {
	key := configstore.KeyForUser(remotes.Identity{UserID: userID})
	blob, ok, err := d.DataStore.Read(d.Ctx, key)
	if err != nil || !ok {
		log.Warn().Err(err).Str("key", key).Msg("no persisted record for simulated user")
		return false
	}
	persisted, err := codec.DecodeBlob(blob)
	if err != nil {
		return false
	}
	for name, cfg := range final {
		if !d.Server.Store.IsValidButtonName(name) {
			continue
		}
		if persisted[name] != cfg {
			log.Warn().Str("key", key).Str("button", name).Msg("persisted config differs from client")
			return false
		}
	}
	return true
}
