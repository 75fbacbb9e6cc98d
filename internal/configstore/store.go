package configstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/touchbuttons/internal/codec"
	"github.com/Shopify/touchbuttons/internal/datastore"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/metrics"
	"github.com/Shopify/touchbuttons/internal/remotes"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultFlushTimeout = 10 * time.Second

var (
	ErrAlreadyInitialized = errors.New("configstore: already initialized")
	ErrNotInitialized     = errors.New("configstore: not initialized")
	ErrInvalidButtonName  = errors.New("configstore: not a valid savable touch button name")
	ErrNoSession          = errors.New("configstore: no session for user")
	ErrSessionExists      = errors.New("configstore: session already started for user")
	ErrSessionClosed      = errors.New("configstore: session closed")
)

// KeyForUser is the durable-storage key of a user's record.
func KeyForUser(identity remotes.Identity) string {
	return fmt.Sprintf("Player%d", identity.UserID)
}

type record struct {
	mu       sync.Mutex
	identity remotes.Identity
	state    SessionState
	entry    layout.ConfigEntry

	// Closed exactly once when the load settles, successful or not.
	loaded chan struct{}
	// Closed once EndSession has written (or skipped) the final flush.
	flushed chan struct{}
	// Previous session of the same user whose flush this load must not overtake.
	prev *record

	loadFailed bool
	dirty      bool
}

// Store is the per-user cache of button configs backed by a DataStore. Each
// connected user owns exactly one record from StartSession until EndSession.
type Store struct {
	ds datastore.DataStore

	FlushTimeout time.Duration

	mu          sync.Mutex
	initialized bool
	validNames  map[string]struct{}
	records     map[int64]*record
	flushing    map[int64]*record
}

func MakeStore(ds datastore.DataStore) *Store {
	return &Store{
		ds:           ds,
		FlushTimeout: defaultFlushTimeout,
		records:      make(map[int64]*record),
		flushing:     make(map[int64]*record),
	}
}

// Init sets the allow-list of savable button names. It may be called once.
func (s *Store) Init(validButtonNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return ErrAlreadyInitialized
	}
	s.validNames = make(map[string]struct{}, len(validButtonNames))
	for _, name := range validButtonNames {
		s.validNames[name] = struct{}{}
	}
	s.initialized = true
	return nil
}

func (s *Store) IsValidButtonName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.validNames[name]
	return ok
}

// StartSession registers the user and loads their record in the background. If
// the user's previous session is still flushing, the load reads only after that
// flush lands.
func (s *Store) StartSession(ctx context.Context, identity remotes.Identity) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if _, exists := s.records[identity.UserID]; exists {
		s.mu.Unlock()
		return errors.Wrap(ErrSessionExists, identity.String())
	}
	rec := &record{
		identity: identity,
		state:    Connecting,
		loaded:   make(chan struct{}),
		flushed:  make(chan struct{}),
		prev:     s.flushing[identity.UserID],
	}
	s.records[identity.UserID] = rec
	s.mu.Unlock()

	log.Info().Int64("user_id", identity.UserID).Msg("touch button session started")
	go s.load(ctx, rec)
	return nil
}

// A failed load still settles the record with an empty entry so waiters are never starved.
func (s *Store) load(ctx context.Context, rec *record) {
	defer metrics.BenchmarkMethod(time.Now(), "store.load", nil)
	key := KeyForUser(rec.identity)

	entry := layout.ConfigEntry{}
	failed := false
	blob, ok, err := s.readAfterFlush(ctx, rec, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("[TOUCH BUTTONS] failed to load datastore entry")
		failed = true
	} else if ok {
		decoded, decodeErr := codec.DecodeBlob(blob)
		if decodeErr != nil {
			log.Warn().Err(decodeErr).Str("key", key).Msg("[TOUCH BUTTONS] failed to decode datastore entry")
			failed = true
		} else {
			entry = decoded
		}
	}
	if failed {
		metrics.Incr("store.load", []string{"result:failure"})
	} else {
		metrics.Incr("store.load", []string{"result:success"})
	}

	rec.mu.Lock()
	rec.entry = entry
	rec.loadFailed = failed
	rec.state = Loaded
	rec.mu.Unlock()
	close(rec.loaded)
}

func (s *Store) readAfterFlush(ctx context.Context, rec *record, key string) ([]byte, bool, error) {
	if prev := rec.prev; prev != nil {
		rec.prev = nil
		select {
		case <-prev.flushed:
		case <-ctx.Done():
			return nil, false, errors.Wrap(ctx.Err(), "waiting for previous session flush")
		}
	}
	return s.ds.Read(ctx, key)
}

// WaitForEntry returns a copy of the user's record, blocking until its load settles.
func (s *Store) WaitForEntry(ctx context.Context, identity remotes.Identity) (layout.ConfigEntry, error) {
	rec, err := s.waitForRecord(ctx, identity)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state == Disconnected {
		return nil, ErrSessionClosed
	}
	return rec.entry.Clone(), nil
}

func (s *Store) Get(ctx context.Context, identity remotes.Identity, buttonName string) (layout.ButtonConfig, bool, error) {
	rec, err := s.waitForRecord(ctx, identity)
	if err != nil {
		return layout.ButtonConfig{}, false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state == Disconnected {
		return layout.ButtonConfig{}, false, ErrSessionClosed
	}
	cfg, ok := rec.entry[buttonName]
	return cfg, ok, nil
}

// Set replaces the config for buttonName in the user's record. Names outside the
// allow-list are rejected without touching the record.
func (s *Store) Set(ctx context.Context, identity remotes.Identity, buttonName string, config layout.ButtonConfig) error {
	s.mu.Lock()
	initialized := s.initialized
	_, valid := s.validNames[buttonName]
	s.mu.Unlock()
	if !initialized {
		return ErrNotInitialized
	}
	if !valid {
		log.Warn().Int64("user_id", identity.UserID).Str("button", buttonName).
			Msg("[TOUCH BUTTONS] rejected config for unknown button name")
		metrics.Incr("store.rejected_name", nil)
		return errors.Wrap(ErrInvalidButtonName, buttonName)
	}

	rec, err := s.waitForRecord(ctx, identity)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state == Disconnected {
		return ErrSessionClosed
	}
	rec.entry[buttonName] = config
	rec.dirty = true
	metrics.Incr("store.set", nil)
	return nil
}

// EndSession flushes the user's record to durable storage once and evicts it.
// Write failures are logged and returned; they are not retried. Until the flush
// returns, a new session for the same user holds its load back.
func (s *Store) EndSession(ctx context.Context, identity remotes.Identity) error {
	s.mu.Lock()
	rec, ok := s.records[identity.UserID]
	if !ok {
		s.mu.Unlock()
		return errors.Wrap(ErrNoSession, identity.String())
	}
	delete(s.records, identity.UserID)
	s.flushing[identity.UserID] = rec
	s.mu.Unlock()
	defer s.settleFlush(rec)

	waitErr := waitLoaded(ctx, rec)

	rec.mu.Lock()
	rec.state = Disconnected
	entry := rec.entry.Clone()
	skipFlush := rec.loadFailed && !rec.dirty
	rec.mu.Unlock()
	log.Info().Int64("user_id", identity.UserID).Msg("touch button session ended")

	if waitErr != nil {
		return errors.Wrap(waitErr, "session ended before its load settled")
	}
	if skipFlush {
		log.Warn().Int64("user_id", identity.UserID).
			Msg("[TOUCH BUTTONS] skipping flush of unchanged record whose load failed")
		return nil
	}
	return s.flush(ctx, identity, entry)
}

func (s *Store) settleFlush(rec *record) {
	s.mu.Lock()
	if s.flushing[rec.identity.UserID] == rec {
		delete(s.flushing, rec.identity.UserID)
	}
	s.mu.Unlock()
	close(rec.flushed)
}

func (s *Store) flush(ctx context.Context, identity remotes.Identity, entry layout.ConfigEntry) error {
	defer metrics.BenchmarkMethod(time.Now(), "store.flush", nil)
	key := KeyForUser(identity)
	blob, err := codec.EncodeBlob(entry)
	if err == nil {
		err = s.ds.Write(ctx, key, blob, []int64{identity.UserID})
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("[TOUCH BUTTONS] failed to save datastore entry")
		metrics.Incr("store.flush", []string{"result:failure"})
		return err
	}
	metrics.Incr("store.flush", []string{"result:success"})
	return nil
}

// ObserveSession starts a session and returns its teardown, matching the shape of a
// player-lifecycle observer. The teardown flushes with its own timeout since the
// session context is usually already cancelled by the time it runs.
func (s *Store) ObserveSession(ctx context.Context, identity remotes.Identity) (func() error, error) {
	if err := s.StartSession(ctx, identity); err != nil {
		return nil, err
	}
	return func() error {
		flushCtx, cancel := context.WithTimeout(context.Background(), s.FlushTimeout)
		defer cancel()
		return s.EndSession(flushCtx, identity)
	}, nil
}

// Snapshot reports the state of a user's record, if one exists.
func (s *Store) Snapshot(identity remotes.Identity) (SessionState, bool) {
	rec, err := s.lookup(identity)
	if err != nil {
		return Disconnected, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state, true
}

func (s *Store) lookup(identity remotes.Identity) (*record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identity.UserID]
	if !ok {
		return nil, errors.Wrap(ErrNoSession, identity.String())
	}
	return rec, nil
}

func (s *Store) waitForRecord(ctx context.Context, identity remotes.Identity) (*record, error) {
	rec, err := s.lookup(identity)
	if err != nil {
		return nil, err
	}
	if err := waitLoaded(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func waitLoaded(ctx context.Context, rec *record) error {
	select {
	case <-rec.loaded:
		return nil
	default:
	}
	select {
	case <-rec.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
