package server

import (
	"context"
	"sync"
	"time"

	"github.com/Shopify/touchbuttons/internal/configstore"
	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/metrics"
	"github.com/Shopify/touchbuttons/internal/remotes"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultBacklog        = 256
	defaultRequestTimeout = 30 * time.Second
)

var ErrServerClosed = errors.New("server: shut down")

// DefaultButtonNames is the allow-list used when none is configured.
func DefaultButtonNames() []string {
	return []string{"jump", "sprint", "crouch", "interact", "ability"}
}

// Server answers the touch button endpoints for every connected user. Each
// connection gets one worker, so a user's requests are handled in receipt order
// while different users are served in parallel.
type Server struct {
	Store *configstore.Store
	Repo  SessionRepo

	Backlog        int
	RequestTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	workers sync.WaitGroup
}

func MakeServer(store *configstore.Store) *Server {
	return &Server{
		Store:          store,
		Repo:           MakeSimpleSessionRepo(make(map[int64]*Session)),
		Backlog:        defaultBacklog,
		RequestTimeout: defaultRequestTimeout,
	}
}

// Connect starts userID's session and returns the client end of its connection.
// The session ends, and its record is flushed, once the connection is closed or
// ctx is done.
func (s *Server) Connect(ctx context.Context, userID int64) (*remotes.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServerClosed
	}

	identity := remotes.Identity{UserID: userID}
	teardown, err := s.Store.ObserveSession(ctx, identity)
	if err != nil {
		return nil, err
	}
	session := &Session{
		Identity:  identity,
		Conn:      remotes.MakeConn(identity, s.Backlog),
		StartedAt: time.Now(),
		teardown:  teardown,
	}
	s.Repo.WriteSession(session)
	metrics.Incr("server.connections", nil)

	s.workers.Add(1)
	go s.runSessionWorker(ctx, session)
	return session.Conn, nil
}

func (s *Server) runSessionWorker(ctx context.Context, session *Session) {
	defer s.workers.Done()
	conn := session.Conn
	for { // loop until the connection goes away
		select {
		case req := <-conn.Requests():
			s.handle(req)
		case <-conn.Closed():
			s.endSession(session)
			return
		case <-ctx.Done():
			conn.Close()
			s.endSession(session)
			return
		}
	}
}

// endSession serves whatever is still queued, then flushes the user's record.
func (s *Server) endSession(session *Session) {
	conn := session.Conn
	for drained := false; !drained; {
		select {
		case req := <-conn.Requests():
			s.handle(req)
		default:
			drained = true
		}
	}
	conn.Finish()
	s.Repo.RemoveSession(session.Identity.UserID)

	if err := session.teardown(); err != nil {
		log.Error().Err(err).Int64("user_id", session.Identity.UserID).Msg("session ended without saving")
	}
	metrics.Distribution("server.session_seconds", time.Since(session.StartedAt).Seconds(), nil)
}

func (s *Server) handle(req *remotes.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), s.RequestTimeout)
	defer cancel()
	if err := remotes.Dispatch(ctx, s, req); err != nil {
		log.Debug().Err(err).Int64("user_id", req.Identity.UserID).Str("endpoint", req.Endpoint.String()).
			Msg("request failed")
		metrics.Incr("server.request_errors", []string{"endpoint:" + req.Endpoint.String()})
	}
}

func (s *Server) HandleGetConfig(ctx context.Context, identity remotes.Identity, buttonName string) (layout.ButtonConfig, bool, error) {
	return s.Store.Get(ctx, identity, buttonName)
}

func (s *Server) HandleSetConfig(ctx context.Context, identity remotes.Identity, buttonName string, config layout.ButtonConfig) error {
	return s.Store.Set(ctx, identity, buttonName, config)
}

// Wait blocks until every session worker has flushed and exited.
func (s *Server) Wait() {
	s.workers.Wait()
}

// Shutdown refuses new connections, closes the open ones and waits for their
// flushes, or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, session := range s.Repo.Sessions() {
		session.Conn.Close()
	}
	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()
	select {
	case <-done:
		log.Info().Msg("server shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
