// Package authstore is a reference authenticated store: a key-value state
// committed to by a Merkle root, with overlay transactions, dry-run
// evaluation, fee metering and inclusion proofs.
package authstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/fees"
	"github.com/jmcleod/docproof/internal/merkle"
	"github.com/jmcleod/docproof/storage"
)

// Store implements storage.Store over any storage.Backend. It serializes all
// operations with a single mutex.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	logger  *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transaction events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Store persisting committed state to backend.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "authstore")
	return s
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

type txState struct {
	owner   *Store
	overlay *overlay
}

func (s *Store) txState(tx *storage.Transaction) (*txState, error) {
	if tx == nil {
		return nil, nil
	}
	if tx.Closed() {
		return nil, storage.ErrTransactionClosed
	}
	state, ok := tx.Handle().(*txState)
	if !ok || state.owner != s {
		return nil, errors.New("transaction does not belong to this store")
	}
	return state, nil
}

// viewFor returns the state visible to tx with an extra writable layer on
// top.
func (s *Store) viewFor(state *txState) (*view, *overlay) {
	op := newOverlay()
	v := &view{backend: s.backend}
	if state != nil {
		v.layers = append(v.layers, state.overlay)
	}
	v.layers = append(v.layers, op)
	return v, op
}

func (s *Store) BeginTransaction(ctx context.Context) (*storage.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx := storage.NewTransaction(&txState{owner: s, overlay: newOverlay()})
	s.logger.Debug("transaction started", "tx", tx.ID())
	return tx, nil
}

func (s *Store) CommitTransaction(ctx context.Context, tx *storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.txState(tx)
	if err != nil {
		return err
	}
	if state == nil {
		return errors.New("commit: nil transaction")
	}
	if err := tx.Close(); err != nil {
		return err
	}
	if state.overlay.empty() {
		s.logger.Debug("transaction committed", "tx", tx.ID(), "writes", 0)
		return nil
	}
	if err := s.backend.Update(ctx, state.overlay.flush); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.logger.Debug("transaction committed", "tx", tx.ID(),
		"writes", len(state.overlay.puts)+len(state.overlay.dels))
	return nil
}

func (s *Store) RollbackTransaction(ctx context.Context, tx *storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.txState(tx)
	if err != nil {
		return err
	}
	if state == nil {
		return errors.New("rollback: nil transaction")
	}
	if err := tx.Close(); err != nil {
		return err
	}
	state.overlay = newOverlay()
	s.logger.Debug("transaction rolled back", "tx", tx.ID())
	return nil
}

// apply routes the writes collected in op according to opts: discarded for a
// dry run, merged into the transaction, or flushed to the backend.
func (s *Store) apply(ctx context.Context, state *txState, op *overlay, opts storage.WriteOptions) error {
	switch {
	case !opts.Apply:
		return nil
	case state != nil:
		state.overlay.merge(op)
		return nil
	default:
		return s.backend.Update(ctx, op.flush)
	}
}

// RootHash returns the Merkle root of the state visible to tx.
func (s *Store) RootHash(ctx context.Context, tx *storage.Transaction) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.txState(tx)
	if err != nil {
		return nil, err
	}
	v, _ := s.viewFor(state)
	tree, err := s.buildTree(ctx, v)
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	return root[:], nil
}

func (s *Store) buildTree(ctx context.Context, v *view) (*merkle.Tree, error) {
	entries, err := v.scan(ctx, nil)
	if err != nil {
		return nil, err
	}
	leaves := make([]merkle.Leaf, len(entries))
	for i, e := range entries {
		leaves[i] = merkle.Leaf{Key: e.key, Value: e.value}
	}
	return merkle.Build(leaves)
}

// Insert stores an opaque value under path.
func (s *Store) Insert(ctx context.Context, path storage.Path, key, value []byte, tx *storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.txState(tx)
	if err != nil {
		return err
	}
	v, op := s.viewFor(state)
	v.put(path.Key(key), value)
	return s.apply(ctx, state, op, storage.WriteOptions{Apply: true, Transaction: tx})
}

// Get reads an opaque value stored under path.
func (s *Store) Get(ctx context.Context, path storage.Path, key []byte, tx *storage.Transaction) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.txState(tx)
	if err != nil {
		return nil, err
	}
	v, _ := s.viewFor(state)
	value, err := v.get(ctx, path.Key(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, &storage.NotFoundError{What: fmt.Sprintf("key %x under %s", key, path)}
	}
	return value, err
}

// RegisterContract stores a serialized data contract. Documents can only be
// written for registered contracts.
func (s *Store) RegisterContract(ctx context.Context, contractID document.ID, contract []byte, tx *storage.Transaction) error {
	return s.Insert(ctx, storage.ContractPath(contractID), storage.ContractStorageKey, contract, tx)
}

func (s *Store) requireContract(ctx context.Context, v *view, m *fees.Meter, contractID document.ID) error {
	m.Seek(1)
	ok, err := v.has(ctx, storage.ContractPath(contractID).Key(storage.ContractStorageKey))
	if err != nil {
		return err
	}
	if !ok {
		return &storage.BackendError{
			Kind:    storage.KindContract,
			Message: fmt.Sprintf("data contract %s not found", contractID),
		}
	}
	return nil
}
