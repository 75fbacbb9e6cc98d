package impl

import (
	"context"
	"sync"

	"github.com/Shopify/touchbuttons/internal/datastore"

	"github.com/pkg/errors"
)

var (
	errInjectedRead  = errors.New("injected read failure")
	errInjectedWrite = errors.New("injected write failure")
)

// MemoryWrite records one Write call as the backend saw it.
type MemoryWrite struct {
	Key       string
	Blob      []byte
	OwnerTags []int64
}

// MemoryStore is an in-process DataStore intended for tests and simulations.
type MemoryStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	owners map[string][]int64
	writes []MemoryWrite

	FailReads  bool
	FailWrites bool

	// BeforeRead runs ahead of every read; tests use it to hold a load in flight.
	BeforeRead func(ctx context.Context, key string)
}

func (s *MemoryStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if hook := s.readHook(); hook != nil {
		hook(ctx, key)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, datastore.Fail("read", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads {
		return nil, false, datastore.Fail("read", key, errInjectedRead)
	}
	blob, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (s *MemoryStore) Write(ctx context.Context, key string, blob []byte, ownerTags []int64) error {
	if err := ctx.Err(); err != nil {
		return datastore.Fail("write", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return datastore.Fail("write", key, errInjectedWrite)
	}
	dup := append([]byte(nil), blob...)
	tags := append([]int64(nil), ownerTags...)
	s.blobs[key] = dup
	s.owners[key] = tags
	s.writes = append(s.writes, MemoryWrite{Key: key, Blob: dup, OwnerTags: tags})
	return nil
}

// Put seeds a blob without recording a write.
func (s *MemoryStore) Put(key string, blob []byte) {
	s.mu.Lock()
	s.blobs[key] = append([]byte(nil), blob...)
	s.mu.Unlock()
}

func (s *MemoryStore) Writes() []MemoryWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MemoryWrite(nil), s.writes...)
}

func (s *MemoryStore) Owners(key string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.owners[key]...)
}

func (s *MemoryStore) SetFailReads(fail bool) {
	s.mu.Lock()
	s.FailReads = fail
	s.mu.Unlock()
}

func (s *MemoryStore) SetFailWrites(fail bool) {
	s.mu.Lock()
	s.FailWrites = fail
	s.mu.Unlock()
}

func (s *MemoryStore) SetBeforeRead(hook func(ctx context.Context, key string)) {
	s.mu.Lock()
	s.BeforeRead = hook
	s.mu.Unlock()
}

func (s *MemoryStore) readHook() func(context.Context, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BeforeRead
}
