// Package bbolt provides a BBolt-backed storage.Backend.
package bbolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
	"go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// Backend implements storage.Backend backed by a BBolt database. All keys
// live in a single bucket so cursor order matches encoded key order.
type Backend struct {
	db *bbolt.DB
}

var _ storage.Backend = (*Backend)(nil)

// New returns a Backend backed by the given BBolt database.
func New(db *bbolt.DB) (*Backend, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating state bucket: %w", err)
	}
	return &Backend{db: db}, nil
}

// NewFromFile opens a BBolt database at the given path and returns a new Backend.
func NewFromFile(path string, options *bbolt.Options) (*Backend, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	b, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying BBolt database.
func (s *Backend) Close() error {
	return s.db.Close()
}

func (s *Backend) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(stateBucket).Get(key)
		if data == nil {
			return fmt.Errorf("%x: %w", key, storage.ErrKeyNotFound)
		}
		value = util.CopyBytes(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Backend) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(stateBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(util.CopyBytes(k), util.CopyBytes(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Backend) Update(ctx context.Context, fn func(w storage.BatchWriter) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltBatchTx{bucket: tx.Bucket(stateBucket)})
	})
}

type boltBatchTx struct {
	bucket *bbolt.Bucket
}

func (tx *boltBatchTx) Put(key, value []byte) error {
	return tx.bucket.Put(key, value)
}

func (tx *boltBatchTx) Delete(key []byte) error {
	return tx.bucket.Delete(key)
}
