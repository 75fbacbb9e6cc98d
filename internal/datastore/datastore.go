package datastore

import (
	"context"

	"github.com/pkg/errors"
)

// ErrStorage marks every failure surfaced by a DataStore backend.
var ErrStorage = errors.New("datastore: storage error")

// DataStore is the durable key-value collaborator. Read reports ok=false for an absent key.
type DataStore interface {
	Read(ctx context.Context, key string) (blob []byte, ok bool, err error)
	Write(ctx context.Context, key string, blob []byte, ownerTags []int64) error
}

type storageError struct {
	op  string
	key string
	err error
}

func (e *storageError) Error() string {
	return e.op + " " + e.key + ": " + e.err.Error()
}

func (e *storageError) Unwrap() error { return e.err }

func (e *storageError) Is(target error) bool { return target == ErrStorage }

// Fail wraps err so that errors.Is(err, ErrStorage) holds.
func Fail(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &storageError{op: op, key: key, err: err}
}
