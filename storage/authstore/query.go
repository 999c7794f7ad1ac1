package authstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/fees"
	"github.com/jmcleod/docproof/storage"
)

type match struct {
	key []byte
	doc *document.Document
}

// execute walks the plan's leaf tree and returns the selected documents in
// result order.
func (s *Store) execute(ctx context.Context, v *view, m *fees.Meter, plan storage.QueryPlan) ([]match, error) {
	if err := checkConditions(plan.Conditions); err != nil {
		return nil, err
	}
	if len(plan.Path) == 0 {
		plan.Path = storage.DocumentsPath(plan.ContractID, plan.DocumentType)
	}
	if err := s.requireContract(ctx, v, m, plan.ContractID); err != nil {
		return nil, err
	}

	m.Seek(1)
	entries, err := v.scan(ctx, plan.Path.Prefix())
	if err != nil {
		return nil, err
	}

	var out []match
	for _, e := range entries {
		m.Load(len(e.key) + len(e.value))
		doc, err := decodeDocument(e.key, e.value)
		if err != nil {
			return nil, err
		}
		if matches(doc, plan.Conditions) {
			out = append(out, match{key: e.key, doc: doc})
		}
	}

	if len(plan.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, ob := range plan.OrderBy {
				a, aok := fieldValue(out[i].doc, ob.Field)
				b, bok := fieldValue(out[j].doc, ob.Field)
				c := compareValues(a, aok, b, bok)
				if ob.Descending {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	if len(plan.Start) > 0 {
		idx := -1
		for i, mt := range out {
			if bytes.Equal(mt.doc.ID[:], plan.Start) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, queryError("start document %x not found", plan.Start)
		}
		if !plan.StartInclusive {
			idx++
		}
		out = out[idx:]
	}

	if plan.Limit > 0 && uint32(len(out)) > plan.Limit {
		out = out[:plan.Limit]
	}
	return out, nil
}

func (s *Store) readView(ctx context.Context, tx *storage.Transaction) (*view, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state, err := s.txState(tx)
	if err != nil {
		return nil, err
	}
	v, _ := s.viewFor(state)
	return v, nil
}

func (s *Store) QueryDocuments(ctx context.Context, plan storage.QueryPlan, tx *storage.Transaction) ([]*document.Document, fees.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.readView(ctx, tx)
	if err != nil {
		return nil, fees.Signal{}, err
	}
	var m fees.Meter
	found, err := s.execute(ctx, v, &m, plan)
	if err != nil {
		return nil, fees.Signal{}, err
	}
	docs := make([]*document.Document, len(found))
	for i, mt := range found {
		docs[i] = mt.doc
	}
	return docs, m.Signal(), nil
}

func (s *Store) ProveDocumentsQuery(ctx context.Context, plan storage.QueryPlan, tx *storage.Transaction) ([]byte, fees.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.readView(ctx, tx)
	if err != nil {
		return nil, fees.Signal{}, err
	}
	var scratch fees.Meter
	found, err := s.execute(ctx, v, &scratch, plan)
	if err != nil {
		return nil, fees.Signal{}, err
	}
	keys := make([][]byte, len(found))
	for i, mt := range found {
		keys[i] = mt.key
	}
	return s.prove(ctx, v, keys)
}

func (s *Store) ProveQueryMany(ctx context.Context, queries []storage.PathQuery, tx *storage.Transaction) ([]byte, fees.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.readView(ctx, tx)
	if err != nil {
		return nil, fees.Signal{}, err
	}
	keys := make([][]byte, len(queries))
	for i, q := range queries {
		key := q.Path.Key(q.Key)
		ok, err := v.has(ctx, key)
		if err != nil {
			return nil, fees.Signal{}, err
		}
		if !ok {
			return nil, fees.Signal{}, &storage.NotFoundError{What: fmt.Sprintf("key %x under %s", q.Key, q.Path)}
		}
		keys[i] = key
	}
	return s.prove(ctx, v, keys)
}

// prove builds inclusion proofs for keys against the root of v. Proof cost is
// hashing plus the bytes of the emitted proof.
func (s *Store) prove(ctx context.Context, v *view, keys [][]byte) ([]byte, fees.Signal, error) {
	tree, err := s.buildTree(ctx, v)
	if err != nil {
		return nil, fees.Signal{}, err
	}
	root := tree.Root()
	p := Proof{Root: root[:]}
	var m fees.Meter
	for _, key := range keys {
		ip, err := tree.Prove(key)
		if err != nil {
			return nil, fees.Signal{}, &storage.NotFoundError{What: fmt.Sprintf("key %x", key)}
		}
		m.Hash(ip.Size())
		p.Entries = append(p.Entries, *ip)
	}
	raw, err := p.Marshal()
	if err != nil {
		return nil, fees.Signal{}, err
	}
	m.Emit(len(raw))
	return raw, m.Signal(), nil
}
