// Package storage defines the narrow contract between the drive layer and an
// authenticated, versioned key-value store, together with the error taxonomy
// shared by every layer above it.
package storage

import (
	"context"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/fees"
)

// WriteOptions controls how a mutation reaches the store.
type WriteOptions struct {
	// Apply commits the mutation. When false the store only evaluates it and
	// reports the would-be cost.
	Apply bool
	// Transaction scopes the mutation to an open transaction. Nil writes
	// straight to committed state.
	Transaction *Transaction
}

// DocumentStore is the set of document operations the drive layer needs from
// an authenticated store.
//
// CreateDocument fails with ErrAlreadyExists when the identity is taken.
// UpdateDocument fails with *NotFoundError or *RevisionConflictError; the
// supplied revision must be the stored one plus one. DeleteDocument fails
// with *NotFoundError. Query failures are reported as *BackendError.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *document.Document, block document.BlockInfo, opts WriteOptions) (fees.Signal, error)
	UpdateDocument(ctx context.Context, doc *document.Document, block document.BlockInfo, opts WriteOptions) (fees.Signal, error)
	DeleteDocument(ctx context.Context, id document.Identifier, block document.BlockInfo, opts WriteOptions) (fees.Signal, error)
	QueryDocuments(ctx context.Context, plan QueryPlan, tx *Transaction) ([]*document.Document, fees.Signal, error)
	ProveDocumentsQuery(ctx context.Context, plan QueryPlan, tx *Transaction) ([]byte, fees.Signal, error)
	ProveQueryMany(ctx context.Context, queries []PathQuery, tx *Transaction) ([]byte, fees.Signal, error)
	RootHash(ctx context.Context, tx *Transaction) ([]byte, error)
}

// Transactor opens and closes transactions. All operations tagged with the
// same transaction commit or abort together.
type Transactor interface {
	BeginTransaction(ctx context.Context) (*Transaction, error)
	CommitTransaction(ctx context.Context, tx *Transaction) error
	RollbackTransaction(ctx context.Context, tx *Transaction) error
}

// RawStore reads and writes opaque values such as serialized data contracts
// and identities.
type RawStore interface {
	Insert(ctx context.Context, path Path, key, value []byte, tx *Transaction) error
	Get(ctx context.Context, path Path, key []byte, tx *Transaction) ([]byte, error)
}

// Store is the full surface of an authenticated store.
type Store interface {
	DocumentStore
	Transactor
	RawStore
}
