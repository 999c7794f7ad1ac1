package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by a Backend when a key is absent.
var ErrKeyNotFound = errors.New("key not found")

// Backend is an ordered byte key space with atomic batched writes. It holds
// the committed state of an authenticated store.
type Backend interface {
	// Get returns a copy of the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Scan calls fn for every key starting with prefix, in ascending key
	// order. Returning an error from fn stops the scan.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
	// Update executes fn atomically. On error, none of its writes are kept.
	Update(ctx context.Context, fn func(w BatchWriter) error) error
	Close() error
}

// BatchWriter stages writes inside Backend.Update.
type BatchWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}
