package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shopify/touchbuttons/internal/codec"
	"github.com/Shopify/touchbuttons/internal/configstore"
	"github.com/Shopify/touchbuttons/internal/datastore/impl"
	"github.com/Shopify/touchbuttons/internal/input"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/remotes"
	"github.com/Shopify/touchbuttons/internal/sched"
	"github.com/Shopify/touchbuttons/internal/touch"
	uiimpl "github.com/Shopify/touchbuttons/internal/ui/impl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jumpCfg = layout.ButtonConfig{Position: layout.FromScale(0.6, 0.5), Size: layout.FromOffset(80, 80)}

func newServer(t *testing.T) (*Server, *impl.MemoryStore) {
	t.Helper()
	ds := impl.MakeMemoryStore()
	store := configstore.MakeStore(ds)
	require.NoError(t, store.Init(DefaultButtonNames()))
	return MakeServer(store), ds
}

func seed(t *testing.T, ds *impl.MemoryStore, userID int64, e layout.ConfigEntry) {
	t.Helper()
	blob, err := codec.EncodeBlob(e)
	require.NoError(t, err)
	ds.Put(configstore.KeyForUser(remotes.Identity{UserID: userID}), blob)
}

func closeAndWait(s *Server, conns ...*remotes.Conn) {
	for _, c := range conns {
		c.Close()
	}
	s.Wait()
}

func TestGetWaitsForStorageLoad(t *testing.T) {
	s, ds := newServer(t)
	seed(t, ds, 1, layout.ConfigEntry{"jump": jumpCfg})
	release := make(chan struct{})
	ds.SetBeforeRead(func(ctx context.Context, key string) { <-release })

	conn, err := s.Connect(context.Background(), 1)
	require.NoError(t, err)

	got := make(chan layout.ButtonConfig, 1)
	go func() {
		cfg, found, err := conn.GetConfig(context.Background(), "jump")
		assert.NoError(t, err)
		assert.True(t, found)
		got <- cfg
	}()
	select {
	case <-got:
		t.Fatal("answered before the load finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, jumpCfg, <-got)
	closeAndWait(s, conn)
}

func TestSetsAppliedInReceiptOrderAndFlushedOnClose(t *testing.T) {
	s, ds := newServer(t)
	conn, err := s.Connect(context.Background(), 9)
	require.NoError(t, err)

	for i := 1; i <= 25; i++ {
		cfg := layout.ButtonConfig{Position: layout.FromScale(float64(i), 0)}
		require.NoError(t, conn.SetConfig("jump", cfg))
	}
	closeAndWait(s, conn)

	writes := ds.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "Player9", writes[0].Key)
	assert.Equal(t, []int64{9}, writes[0].OwnerTags)
	entry, err := codec.DecodeBlob(writes[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, 25.0, entry["jump"].Position.X.Scale)
}

func TestUnknownButtonNameIsDroppedWithoutEndingSession(t *testing.T) {
	s, ds := newServer(t)
	conn, err := s.Connect(context.Background(), 3)
	require.NoError(t, err)

	require.NoError(t, conn.SetConfig("not_in_allowlist", jumpCfg))
	require.NoError(t, conn.SetConfig("jump", jumpCfg))
	got, found, err := conn.GetConfig(context.Background(), "jump")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, jumpCfg, got)

	_, found, err = conn.GetConfig(context.Background(), "not_in_allowlist")
	require.NoError(t, err)
	assert.False(t, found)
	closeAndWait(s, conn)

	entry, err := codec.DecodeBlob(ds.Writes()[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, layout.ConfigEntry{"jump": jumpCfg}, entry)
}

func TestUsersAreIsolated(t *testing.T) {
	s, ds := newServer(t)
	a, err := s.Connect(context.Background(), 1)
	require.NoError(t, err)
	b, err := s.Connect(context.Background(), 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, c := range []*remotes.Conn{a, b} {
		wg.Add(1)
		go func(c *remotes.Conn) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				cfg := layout.ButtonConfig{Position: layout.FromScale(float64(c.Identity().UserID), float64(i))}
				assert.NoError(t, c.SetConfig("sprint", cfg))
			}
		}(c)
	}
	wg.Wait()
	closeAndWait(s, a, b)

	require.Len(t, ds.Writes(), 2)
	for _, w := range ds.Writes() {
		entry, err := codec.DecodeBlob(w.Blob)
		require.NoError(t, err)
		assert.Equal(t, float64(w.OwnerTags[0]), entry["sprint"].Position.X.Scale)
		assert.Equal(t, 19.0, entry["sprint"].Position.Y.Scale)
	}
}

func TestDuplicateConnectRejected(t *testing.T) {
	s, _ := newServer(t)
	conn, err := s.Connect(context.Background(), 5)
	require.NoError(t, err)

	_, err = s.Connect(context.Background(), 5)
	assert.True(t, errors.Is(err, configstore.ErrSessionExists))
	closeAndWait(s, conn)
}

func TestContextEndsSession(t *testing.T) {
	s, ds := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := s.Connect(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, conn.SetConfig("crouch", jumpCfg))

	cancel()
	s.Wait()
	<-conn.Finished()
	assert.Equal(t, remotes.ErrConnClosed, conn.SetConfig("crouch", jumpCfg))
	require.Len(t, ds.Writes(), 1)
	_, ok := s.Repo.FetchSessionById(4)
	assert.False(t, ok)
}

func TestShutdownFlushesEverySession(t *testing.T) {
	s, ds := newServer(t)
	for id := int64(1); id <= 5; id++ {
		conn, err := s.Connect(context.Background(), id)
		require.NoError(t, err)
		require.NoError(t, conn.SetConfig("jump", jumpCfg))
	}
	require.Len(t, s.Repo.Sessions(), 5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Len(t, ds.Writes(), 5)
	assert.Empty(t, s.Repo.Sessions())

	_, err := s.Connect(context.Background(), 6)
	assert.Equal(t, ErrServerClosed, err)
}

func TestFailedFlushIsOnlyLogged(t *testing.T) {
	s, ds := newServer(t)
	ds.SetFailWrites(true)
	conn, err := s.Connect(context.Background(), 8)
	require.NoError(t, err)
	require.NoError(t, conn.SetConfig("jump", jumpCfg))

	closeAndWait(s, conn)
	assert.Empty(t, ds.Writes())
	_, ok := s.Store.Snapshot(remotes.Identity{UserID: 8})
	assert.False(t, ok)
}

type countingRemote struct {
	remotes.Remote
	mu   sync.Mutex
	sets []layout.ButtonConfig
}

func (r *countingRemote) SetConfig(name string, cfg layout.ButtonConfig) error {
	r.mu.Lock()
	r.sets = append(r.sets, cfg)
	r.mu.Unlock()
	return r.Remote.SetConfig(name, cfg)
}

func TestDragIsPersistedOnDisconnect(t *testing.T) {
	s, ds := newServer(t)
	conn, err := s.Connect(context.Background(), 1234)
	require.NoError(t, err)
	remote := &countingRemote{Remote: conn}

	loop := sched.MakeLoop()
	in := input.MakeService()
	factory := uiimpl.MakeHeadlessFactory(layout.Vector2{X: 1920, Y: 1080}, in)
	coord := touch.MakeCoordinator(loop, remote, factory, in)

	b, err := coord.NewButton(touch.Options{
		Name:     "jump",
		Position: layout.NewUDim2(0.5, 0, 0.5, 0),
		Size:     layout.NewUDim2(0, 80, 0, 80),
	})
	require.NoError(t, err)
	coord.WaitForFetches()
	loop.Drain()
	assert.Empty(t, remote.sets)

	coord.SetEditing(true)
	start := b.Element().(*uiimpl.HeadlessElement).Centre()
	in.Press(b.Element(), start)
	for dx := 1.0; dx <= 12; dx++ {
		in.Move(start.Add(layout.Vector2{X: dx}))
	}
	in.Release(start.Add(layout.Vector2{X: 12}))
	loop.Drain()

	final := layout.ButtonConfig{Position: layout.NewUDim2(0.6, 0, 0.5, 0), Size: layout.NewUDim2(0, 80, 0, 80)}
	require.Len(t, remote.sets, 1)
	assert.Equal(t, final, remote.sets[0])

	conn.Close()
	<-conn.Finished()
	s.Wait()

	writes := ds.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "Player1234", writes[0].Key)
	assert.Equal(t, []int64{1234}, writes[0].OwnerTags)

	var persisted map[string]map[string][]float64
	require.NoError(t, json.Unmarshal(writes[0].Blob, &persisted))
	assert.Equal(t, map[string]map[string][]float64{
		"jump": {"position": {0.6, 0, 0.5, 0}, "size": {0, 80, 0, 80}},
	}, persisted)
}

func TestSessionRepo(t *testing.T) {
	r := MakeSimpleSessionRepo(make(map[int64]*Session))
	r.WriteSession(&Session{Identity: remotes.Identity{UserID: 1}})

	got, ok := r.FetchSessionById(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Identity.UserID)

	r.RemoveSession(1)
	_, ok = r.FetchSessionById(1)
	assert.False(t, ok)
}
