// Package memory provides a thread-safe in-memory storage.Backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

// Backend is a thread-safe in-memory implementation of storage.Backend.
// Suitable for testing, demos, and single-process use cases.
type Backend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Backend = (*Backend)(nil)

// New creates a new empty in-memory Backend.
func New() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

func (b *Backend) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[string(key)]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return util.CopyBytes(v), nil
}

func (b *Backend) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	p := string(prefix)
	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = util.CopyBytes(b.data[k])
	}
	b.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Update executes fn within a batch. On error, all writes are rolled back.
func (b *Backend) Update(ctx context.Context, fn func(w storage.BatchWriter) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := b.snapshot()
	if err := fn(&batchWriter{b: b}); err != nil {
		b.data = snapshot
		return err
	}
	return nil
}

func (b *Backend) snapshot() map[string][]byte {
	cp := make(map[string][]byte, len(b.data))
	for k, v := range b.data {
		cp[k] = v
	}
	return cp
}

// Len returns the number of stored keys.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

func (b *Backend) Close() error { return nil }

type batchWriter struct {
	b *Backend
}

func (w *batchWriter) Put(key, value []byte) error {
	w.b.data[string(key)] = util.CopyBytes(value)
	return nil
}

func (w *batchWriter) Delete(key []byte) error {
	delete(w.b.data, string(key))
	return nil
}
