package authstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/fees"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

func documentKey(id document.Identifier) []byte {
	return storage.DocumentsPath(id.ContractID, id.Type).Key(id.DocumentID.Bytes())
}

// mutate runs fn against a fresh writable layer and routes its writes
// according to opts. The returned signal is the cost of fn whether or not
// the writes were applied.
func (s *Store) mutate(ctx context.Context, opts storage.WriteOptions, fn func(v *view, m *fees.Meter) error) (fees.Signal, error) {
	if err := ctx.Err(); err != nil {
		return fees.Signal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.txState(opts.Transaction)
	if err != nil {
		return fees.Signal{}, err
	}
	v, op := s.viewFor(state)
	var m fees.Meter
	if err := fn(v, &m); err != nil {
		return fees.Signal{}, err
	}
	if err := s.apply(ctx, state, op, opts); err != nil {
		return fees.Signal{}, err
	}
	return m.Signal(), nil
}

type record struct {
	env *storage.Envelope
	doc *document.Document
	raw []byte
}

// loadRecord reads and opens the envelope stored under key. It returns a nil
// record when the key is absent.
func loadRecord(ctx context.Context, v *view, m *fees.Meter, key []byte) (*record, error) {
	m.Seek(1)
	raw, err := v.get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Load(len(raw))
	env, doc, err := storage.OpenRecord(raw)
	if err != nil {
		return nil, &storage.BackendError{
			Kind:    storage.KindProtocol,
			Message: fmt.Sprintf("decoding document at %s: %v", util.HexEncode(key), err),
		}
	}
	return &record{env: env, doc: doc, raw: raw}, nil
}

func writeRecord(v *view, m *fees.Meter, key, raw []byte) {
	v.put(key, raw)
	m.Write(len(raw))
	m.Hash(len(key) + len(raw))
}

func (s *Store) CreateDocument(ctx context.Context, doc *document.Document, block document.BlockInfo, opts storage.WriteOptions) (fees.Signal, error) {
	return s.mutate(ctx, opts, func(v *view, m *fees.Meter) error {
		if err := s.requireContract(ctx, v, m, doc.ContractID); err != nil {
			return err
		}
		key := documentKey(doc.Identifier())
		existing, err := loadRecord(ctx, v, m, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrAlreadyExists
		}

		stored := doc.Clone()
		stored.Revision = document.InitialRevision
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = block.Time
		}
		if stored.UpdatedAt.IsZero() {
			stored.UpdatedAt = stored.CreatedAt
		}
		raw, err := storage.SealRecord(stored, doc.OwnerID)
		if err != nil {
			return err
		}
		writeRecord(v, m, key, raw)
		m.AddStorage(len(key) + len(raw))
		return nil
	})
}

func (s *Store) UpdateDocument(ctx context.Context, doc *document.Document, block document.BlockInfo, opts storage.WriteOptions) (fees.Signal, error) {
	return s.mutate(ctx, opts, func(v *view, m *fees.Meter) error {
		if err := s.requireContract(ctx, v, m, doc.ContractID); err != nil {
			return err
		}
		id := doc.Identifier()
		key := documentKey(id)
		existing, err := loadRecord(ctx, v, m, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return &storage.NotFoundError{What: "document " + id.String()}
		}
		if doc.Revision != existing.env.Revision+1 {
			return &storage.RevisionConflictError{ID: id, Stored: existing.env.Revision, Supplied: doc.Revision}
		}

		stored := doc.Clone()
		stored.CreatedAt = existing.doc.CreatedAt
		if stored.UpdatedAt.IsZero() {
			stored.UpdatedAt = block.Time
		}
		raw, err := storage.SealRecord(stored, existing.env.Payer)
		if err != nil {
			return err
		}
		writeRecord(v, m, key, raw)
		if delta := len(raw) - len(existing.raw); delta > 0 {
			m.AddStorage(delta)
		} else {
			m.RemoveStorage(existing.env.Payer, -delta)
		}
		return nil
	})
}

func (s *Store) DeleteDocument(ctx context.Context, id document.Identifier, block document.BlockInfo, opts storage.WriteOptions) (fees.Signal, error) {
	return s.mutate(ctx, opts, func(v *view, m *fees.Meter) error {
		if err := s.requireContract(ctx, v, m, id.ContractID); err != nil {
			return err
		}
		key := documentKey(id)
		existing, err := loadRecord(ctx, v, m, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return &storage.NotFoundError{What: "document " + id.String()}
		}
		v.del(key)
		m.Hash(len(key))
		m.RemoveStorage(existing.env.Payer, len(key)+len(existing.raw))
		return nil
	})
}

// decodeDocument opens a stored envelope, reporting corruption as a protocol
// error.
func decodeDocument(key, raw []byte) (*document.Document, error) {
	_, doc, err := storage.OpenRecord(raw)
	if err != nil {
		return nil, &storage.BackendError{
			Kind:    storage.KindProtocol,
			Message: fmt.Sprintf("decoding document at %s: %v", util.HexEncode(key), err),
		}
	}
	return doc, nil
}
