package server

import (
	"sync"
	"time"

	"github.com/Shopify/touchbuttons/internal/remotes"
)

// Session is one connected user as the server tracks it.
type Session struct {
	Identity  remotes.Identity
	Conn      *remotes.Conn
	StartedAt time.Time

	teardown func() error
}

type SessionRepo interface {
	WriteSession(s *Session)
	FetchSessionById(userID int64) (*Session, bool)
	RemoveSession(userID int64)
	Sessions() []*Session
}

type SimpleSessionRepo struct {
	sync.Mutex
	dict map[int64]*Session
}

func MakeSimpleSessionRepo(d map[int64]*Session) *SimpleSessionRepo {
	return &SimpleSessionRepo{dict: d}
}

func (r *SimpleSessionRepo) WriteSession(s *Session) {
	r.Lock()
	r.dict[s.Identity.UserID] = s
	r.Unlock()
}

func (r *SimpleSessionRepo) FetchSessionById(userID int64) (*Session, bool) {
	r.Lock()
	s, ok := r.dict[userID]
	r.Unlock()
	return s, ok
}

func (r *SimpleSessionRepo) RemoveSession(userID int64) {
	r.Lock()
	delete(r.dict, userID)
	r.Unlock()
}

func (r *SimpleSessionRepo) Sessions() []*Session {
	r.Lock()
	defer r.Unlock()
	out := make([]*Session, 0, len(r.dict))
	for _, s := range r.dict {
		out = append(out, s)
	}
	return out
}
