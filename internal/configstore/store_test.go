package configstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Shopify/touchbuttons/internal/codec"
	"github.com/Shopify/touchbuttons/internal/datastore/impl"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/remotes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = remotes.Identity{UserID: 1}
	bob   = remotes.Identity{UserID: 2}

	jumpCfg = layout.ButtonConfig{
		Position: layout.NewUDim2(0.6, 0, 0.5, 0),
		Size:     layout.FromOffset(80, 80),
	}
)

// gatedReads holds each key's read until its gate is opened.
type gatedReads struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedReads) gate(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]chan struct{})
	}
	ch, ok := g.gates[key]
	if !ok {
		ch = make(chan struct{})
		g.gates[key] = ch
	}
	return ch
}

func (g *gatedReads) hook(ctx context.Context, key string) {
	select {
	case <-g.gate(key):
	case <-ctx.Done():
	}
}

func (g *gatedReads) open(key string) {
	close(g.gate(key))
}

func newStore(t *testing.T) (*Store, *impl.MemoryStore) {
	t.Helper()
	ds := impl.MakeMemoryStore()
	s := MakeStore(ds)
	require.NoError(t, s.Init([]string{"jump", "sprint"}))
	return s, ds
}

func seed(t *testing.T, ds *impl.MemoryStore, id remotes.Identity, e layout.ConfigEntry) {
	t.Helper()
	blob, err := codec.EncodeBlob(e)
	require.NoError(t, err)
	ds.Put(KeyForUser(id), blob)
}

func TestKeyForUser(t *testing.T) {
	assert.Equal(t, "Player1234", KeyForUser(remotes.Identity{UserID: 1234}))
}

func TestInitOnlyOnce(t *testing.T) {
	s := MakeStore(impl.MakeMemoryStore())
	require.NoError(t, s.Init([]string{"jump"}))
	assert.Equal(t, ErrAlreadyInitialized, s.Init([]string{"jump"}))
}

func TestStartSessionRequiresInit(t *testing.T) {
	s := MakeStore(impl.MakeMemoryStore())
	assert.Equal(t, ErrNotInitialized, s.StartSession(context.Background(), alice))
	assert.Equal(t, ErrNotInitialized, s.Set(context.Background(), alice, "jump", jumpCfg))
}

func TestDuplicateSessionRejected(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))
	err := s.StartSession(ctx, alice)
	assert.True(t, errors.Is(err, ErrSessionExists))
}

func TestLoadsSeededEntry(t *testing.T) {
	s, ds := newStore(t)
	seed(t, ds, alice, layout.ConfigEntry{"jump": jumpCfg})
	ctx := context.Background()

	require.NoError(t, s.StartSession(ctx, alice))
	got, found, err := s.Get(ctx, alice, "jump")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, jumpCfg, got)

	state, ok := s.Snapshot(alice)
	assert.True(t, ok)
	assert.Equal(t, Loaded, state)
}

func TestAbsentBlobIsEmptyEntry(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))

	entry, err := s.WaitForEntry(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, entry)

	_, found, err := s.Get(ctx, alice, "jump")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetWaitsForPendingLoad(t *testing.T) {
	s, ds := newStore(t)
	seed(t, ds, alice, layout.ConfigEntry{"jump": jumpCfg})
	gates := &gatedReads{}
	ds.SetBeforeRead(gates.hook)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))

	type result struct {
		cfg   layout.ButtonConfig
		found bool
		err   error
	}
	done := make(chan result, 1)
	go func() {
		cfg, found, err := s.Get(ctx, alice, "jump")
		done <- result{cfg, found, err}
	}()

	select {
	case <-done:
		t.Fatal("get returned before the load settled")
	case <-time.After(20 * time.Millisecond):
	}
	state, _ := s.Snapshot(alice)
	assert.Equal(t, Connecting, state)

	gates.open(KeyForUser(alice))
	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.found)
	assert.Equal(t, jumpCfg, res.cfg)
}

func TestWaitIgnoresOtherUsersLoads(t *testing.T) {
	s, ds := newStore(t)
	bobCfg := layout.ButtonConfig{Position: layout.FromScale(0.1, 0.9), Size: layout.FromOffset(70, 70)}
	seed(t, ds, alice, layout.ConfigEntry{"jump": jumpCfg})
	seed(t, ds, bob, layout.ConfigEntry{"jump": bobCfg})
	gates := &gatedReads{}
	ds.SetBeforeRead(gates.hook)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))
	require.NoError(t, s.StartSession(ctx, bob))

	aliceDone := make(chan layout.ButtonConfig, 1)
	go func() {
		cfg, _, err := s.Get(ctx, alice, "jump")
		assert.NoError(t, err)
		aliceDone <- cfg
	}()

	gates.open(KeyForUser(bob))
	got, _, err := s.Get(ctx, bob, "jump")
	require.NoError(t, err)
	assert.Equal(t, bobCfg, got)

	select {
	case <-aliceDone:
		t.Fatal("alice was released by bob's load")
	case <-time.After(20 * time.Millisecond):
	}

	gates.open(KeyForUser(alice))
	assert.Equal(t, jumpCfg, <-aliceDone)
}

func TestWaitForEntryHonoursContext(t *testing.T) {
	s, ds := newStore(t)
	gates := &gatedReads{}
	ds.SetBeforeRead(gates.hook)
	require.NoError(t, s.StartSession(context.Background(), alice))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.WaitForEntry(ctx, alice)
	assert.Equal(t, context.DeadlineExceeded, err)
	gates.open(KeyForUser(alice))
}

func TestUnknownUser(t *testing.T) {
	s, _ := newStore(t)
	_, _, err := s.Get(context.Background(), alice, "jump")
	assert.True(t, errors.Is(err, ErrNoSession))
	assert.True(t, errors.Is(s.EndSession(context.Background(), alice), ErrNoSession))
}

func TestSetRejectsNamesOutsideAllowList(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))

	err := s.Set(ctx, alice, "not_in_allowlist", jumpCfg)
	assert.True(t, errors.Is(err, ErrInvalidButtonName))

	entry, err := s.WaitForEntry(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, entry)
}

func TestSetReplacesWholesale(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))

	require.NoError(t, s.Set(ctx, alice, "jump", jumpCfg))
	moved := layout.ButtonConfig{Position: layout.FromScale(0.2, 0.2), Size: layout.FromScale(0.1, 0.1)}
	require.NoError(t, s.Set(ctx, alice, "jump", moved))

	got, _, err := s.Get(ctx, alice, "jump")
	require.NoError(t, err)
	assert.Equal(t, moved, got)
}

func TestWaitForEntryReturnsCopy(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))
	require.NoError(t, s.Set(ctx, alice, "jump", jumpCfg))

	entry, err := s.WaitForEntry(ctx, alice)
	require.NoError(t, err)
	delete(entry, "jump")

	_, found, err := s.Get(ctx, alice, "jump")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUsersAreIsolated(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))
	require.NoError(t, s.StartSession(ctx, bob))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			cfg := layout.ButtonConfig{Position: layout.FromScale(float64(i), 1)}
			assert.NoError(t, s.Set(ctx, alice, "jump", cfg))
		}(i)
		go func(i int) {
			defer wg.Done()
			cfg := layout.ButtonConfig{Position: layout.FromScale(float64(i), 2)}
			assert.NoError(t, s.Set(ctx, bob, "sprint", cfg))
		}(i)
	}
	wg.Wait()

	aliceEntry, err := s.WaitForEntry(ctx, alice)
	require.NoError(t, err)
	bobEntry, err := s.WaitForEntry(ctx, bob)
	require.NoError(t, err)

	require.Len(t, aliceEntry, 1)
	require.Len(t, bobEntry, 1)
	assert.Equal(t, 1.0, aliceEntry["jump"].Position.Y.Scale)
	assert.Equal(t, 2.0, bobEntry["sprint"].Position.Y.Scale)
}

func TestEndSessionFlushesOnceAndEvicts(t *testing.T) {
	s, ds := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))
	require.NoError(t, s.Set(ctx, alice, "jump", jumpCfg))

	require.NoError(t, s.EndSession(ctx, alice))

	writes := ds.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "Player1", writes[0].Key)
	assert.Equal(t, []int64{1}, writes[0].OwnerTags)
	decoded, err := codec.DecodeBlob(writes[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, layout.ConfigEntry{"jump": jumpCfg}, decoded)

	_, ok := s.Snapshot(alice)
	assert.False(t, ok)
	assert.True(t, errors.Is(s.Set(ctx, alice, "jump", jumpCfg), ErrNoSession))
}

// heldWrites parks every Write until release is closed.
type heldWrites struct {
	*impl.MemoryStore
	entered chan string
	release chan struct{}
}

func (h *heldWrites) Write(ctx context.Context, key string, blob []byte, ownerTags []int64) error {
	h.entered <- key
	<-h.release
	return h.MemoryStore.Write(ctx, key, blob, ownerTags)
}

func TestReconnectLoadsAfterPreviousFlush(t *testing.T) {
	ds := &heldWrites{MemoryStore: impl.MakeMemoryStore(), entered: make(chan string, 1), release: make(chan struct{})}
	s := MakeStore(ds)
	require.NoError(t, s.Init([]string{"jump", "sprint"}))
	ctx := context.Background()

	require.NoError(t, s.StartSession(ctx, alice))
	require.NoError(t, s.Set(ctx, alice, "jump", jumpCfg))
	ended := make(chan error, 1)
	go func() { ended <- s.EndSession(ctx, alice) }()
	assert.Equal(t, KeyForUser(alice), <-ds.entered)

	require.NoError(t, s.StartSession(ctx, alice))
	state, ok := s.Snapshot(alice)
	require.True(t, ok)
	assert.Equal(t, Connecting, state)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	_, err := s.WaitForEntry(waitCtx, alice)
	cancel()
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(ds.release)
	require.NoError(t, <-ended)

	cfg, found, err := s.Get(ctx, alice, "jump")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, jumpCfg, cfg)

	sprint := layout.ButtonConfig{Position: layout.FromScale(0.2, 0.8), Size: layout.FromOffset(70, 70)}
	require.NoError(t, s.Set(ctx, alice, "sprint", sprint))
	go func() { ended <- s.EndSession(ctx, alice) }()
	<-ds.entered
	require.NoError(t, <-ended)

	writes := ds.Writes()
	require.Len(t, writes, 2)
	decoded, err := codec.DecodeBlob(writes[1].Blob)
	require.NoError(t, err)
	assert.Equal(t, layout.ConfigEntry{"jump": jumpCfg, "sprint": sprint}, decoded)
}

func TestEndSessionWaitsForPendingLoad(t *testing.T) {
	s, ds := newStore(t)
	seed(t, ds, alice, layout.ConfigEntry{"jump": jumpCfg})
	gates := &gatedReads{}
	ds.SetBeforeRead(gates.hook)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))

	done := make(chan error, 1)
	go func() { done <- s.EndSession(ctx, alice) }()
	gates.open(KeyForUser(alice))
	require.NoError(t, <-done)

	writes := ds.Writes()
	require.Len(t, writes, 1)
	decoded, err := codec.DecodeBlob(writes[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, layout.ConfigEntry{"jump": jumpCfg}, decoded)
}

func TestFailedLoadFallsBackToEmptyAndSkipsCleanFlush(t *testing.T) {
	s, ds := newStore(t)
	seed(t, ds, alice, layout.ConfigEntry{"jump": jumpCfg})
	ds.SetFailReads(true)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))

	entry, err := s.WaitForEntry(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, entry)

	require.NoError(t, s.EndSession(ctx, alice))
	assert.Empty(t, ds.Writes())
}

func TestFailedLoadStillFlushesChanges(t *testing.T) {
	s, ds := newStore(t)
	ds.SetFailReads(true)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))
	require.NoError(t, s.Set(ctx, alice, "jump", jumpCfg))

	require.NoError(t, s.EndSession(ctx, alice))
	assert.Len(t, ds.Writes(), 1)
}

func TestCorruptBlobFallsBackToEmpty(t *testing.T) {
	s, ds := newStore(t)
	ds.Put(KeyForUser(alice), []byte("{nope"))
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))

	entry, err := s.WaitForEntry(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, entry)
}

func TestFlushFailureIsReportedNotRetried(t *testing.T) {
	s, ds := newStore(t)
	ds.SetFailWrites(true)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx, alice))
	require.NoError(t, s.Set(ctx, alice, "jump", jumpCfg))

	err := s.EndSession(ctx, alice)
	assert.Error(t, err)
	assert.Empty(t, ds.Writes())
	_, ok := s.Snapshot(alice)
	assert.False(t, ok)
}

func TestObserveSessionTeardownFlushes(t *testing.T) {
	s, ds := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	teardown, err := s.ObserveSession(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, alice, "sprint", jumpCfg))
	cancel()

	require.NoError(t, teardown())
	require.Len(t, ds.Writes(), 1)
	assert.Equal(t, "Player1", ds.Writes()[0].Key)
}

func TestManyUsersConcurrentLifecycle(t *testing.T) {
	s, ds := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			identity := remotes.Identity{UserID: id}
			assert.NoError(t, s.StartSession(ctx, identity))
			cfg := layout.ButtonConfig{Position: layout.FromScale(float64(id), 0)}
			assert.NoError(t, s.Set(ctx, identity, "jump", cfg))
			assert.NoError(t, s.EndSession(ctx, identity))
		}(int64(i))
	}
	wg.Wait()

	writes := ds.Writes()
	require.Len(t, writes, 20)
	for _, w := range writes {
		e, err := codec.DecodeBlob(w.Blob)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("Player%d", w.OwnerTags[0]), w.Key)
		assert.Equal(t, float64(w.OwnerTags[0]), e["jump"].Position.X.Scale)
	}
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "loaded", Loaded.String())
	assert.Equal(t, "disconnected", Disconnected.String())
}
