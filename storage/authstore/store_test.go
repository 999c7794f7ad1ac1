package authstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/storage"
	boltbackend "github.com/jmcleod/docproof/storage/bbolt"
	"github.com/jmcleod/docproof/storage/memory"
)

var (
	contractID = document.ID{0xc0}
	ownerID    = document.ID{0x0a}
	blockTime  = time.UnixMilli(1_700_000_000_000).UTC()
	block      = document.BlockInfo{Height: 10, Epoch: 1, Time: blockTime}
	apply      = storage.WriteOptions{Apply: true}
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(memory.New())
	require.NoError(t, s.RegisterContract(context.Background(), contractID, []byte("contract"), nil))
	return s
}

func newDoc(id byte, props map[string]any) *document.Document {
	return &document.Document{
		ID:         document.ID{id},
		ContractID: contractID,
		Type:       "note",
		OwnerID:    ownerID,
		Properties: props,
	}
}

func allNotes() storage.QueryPlan {
	return storage.QueryPlan{ContractID: contractID, DocumentType: "note"}
}

func TestCreateAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sig, err := s.CreateDocument(ctx, newDoc(1, map[string]any{"n": 1}), block, apply)
	require.NoError(t, err)
	assert.NotZero(t, sig.StorageFee)
	assert.NotZero(t, sig.ProcessingFee)

	docs, qsig, err := s.QueryDocuments(ctx, allNotes(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, document.InitialRevision, docs[0].Revision)
	assert.Equal(t, blockTime, docs[0].CreatedAt)
	assert.Zero(t, qsig.StorageFee)
	assert.NotZero(t, qsig.ProcessingFee)

	_, err = s.CreateDocument(ctx, newDoc(1, nil), block, apply)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestUnknownContract(t *testing.T) {
	s := New(memory.New())
	_, err := s.CreateDocument(context.Background(), newDoc(1, nil), block, apply)
	var be *storage.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, storage.KindContract, be.Kind)
}

func TestUpdateRevisions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.CreateDocument(ctx, newDoc(1, map[string]any{"n": 1}), block, apply)
	require.NoError(t, err)

	later := document.BlockInfo{Height: 11, Time: blockTime.Add(time.Minute)}
	upd := newDoc(1, map[string]any{"n": 2, "extra": "grown"})
	upd.Revision = 3
	_, err = s.UpdateDocument(ctx, upd, later, apply)
	var rc *storage.RevisionConflictError
	require.ErrorAs(t, err, &rc)
	assert.Equal(t, uint64(1), rc.Stored)

	upd.Revision = 2
	sig, err := s.UpdateDocument(ctx, upd, later, apply)
	require.NoError(t, err)
	assert.NotZero(t, sig.StorageFee, "growing a document charges for the new bytes")

	docs, _, err := s.QueryDocuments(ctx, allNotes(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, uint64(2), docs[0].Revision)
	assert.Equal(t, blockTime, docs[0].CreatedAt)
	assert.Equal(t, later.Time, docs[0].UpdatedAt)

	missing := newDoc(9, nil)
	missing.Revision = 2
	_, err = s.UpdateDocument(ctx, missing, later, apply)
	var nf *storage.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestShrinkRefundsOriginalPayer(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.CreateDocument(ctx, newDoc(1, map[string]any{"body": "a long body that will be removed later"}), block, apply)
	require.NoError(t, err)

	upd := newDoc(1, map[string]any{})
	upd.OwnerID = document.ID{0x0b}
	upd.Revision = 2
	sig, err := s.UpdateDocument(ctx, upd, block, apply)
	require.NoError(t, err)
	assert.Zero(t, sig.StorageFee)
	assert.NotZero(t, sig.Refunds[ownerID])
	assert.Zero(t, sig.Refunds[document.ID{0x0b}])

	sig, err = s.DeleteDocument(ctx, upd.Identifier(), block, apply)
	require.NoError(t, err)
	assert.NotZero(t, sig.Refunds[ownerID])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	doc := newDoc(1, nil)
	_, err := s.CreateDocument(ctx, doc, block, apply)
	require.NoError(t, err)

	_, err = s.DeleteDocument(ctx, doc.Identifier(), block, apply)
	require.NoError(t, err)

	docs, _, err := s.QueryDocuments(ctx, allNotes(), nil)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = s.DeleteDocument(ctx, doc.Identifier(), block, apply)
	var nf *storage.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDryRunLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	before, err := s.RootHash(ctx, nil)
	require.NoError(t, err)

	sig, err := s.CreateDocument(ctx, newDoc(1, map[string]any{"n": 1}), block, storage.WriteOptions{Apply: false})
	require.NoError(t, err)
	assert.NotZero(t, sig.StorageFee)

	after, err := s.RootHash(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	docs, _, err := s.QueryDocuments(ctx, allNotes(), nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	committedRoot, err := s.RootHash(ctx, nil)
	require.NoError(t, err)

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, newDoc(1, nil), block, storage.WriteOptions{Apply: true, Transaction: tx})
	require.NoError(t, err)

	inTx, _, err := s.QueryDocuments(ctx, allNotes(), tx)
	require.NoError(t, err)
	assert.Len(t, inTx, 1)

	outside, _, err := s.QueryDocuments(ctx, allNotes(), nil)
	require.NoError(t, err)
	assert.Empty(t, outside)

	txRoot, err := s.RootHash(ctx, tx)
	require.NoError(t, err)
	assert.NotEqual(t, committedRoot, txRoot)

	require.NoError(t, s.CommitTransaction(ctx, tx))
	root, err := s.RootHash(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, txRoot, root)

	assert.ErrorIs(t, s.CommitTransaction(ctx, tx), storage.ErrTransactionClosed)
	_, err = s.CreateDocument(ctx, newDoc(2, nil), block, storage.WriteOptions{Apply: true, Transaction: tx})
	assert.ErrorIs(t, err, storage.ErrTransactionClosed)

	rb, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, newDoc(3, nil), block, storage.WriteOptions{Apply: true, Transaction: rb})
	require.NoError(t, err)
	require.NoError(t, s.RollbackTransaction(ctx, rb))
	docs, _, err := s.QueryDocuments(ctx, allNotes(), nil)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestForeignTransaction(t *testing.T) {
	ctx := context.Background()
	a, b := newStore(t), newStore(t)
	tx, err := a.BeginTransaction(ctx)
	require.NoError(t, err)
	_, _, err = b.QueryDocuments(ctx, allNotes(), tx)
	assert.Error(t, err)
}

func TestQueryPlan(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i, name := range []string{"carol", "alice", "bob", "dave"} {
		_, err := s.CreateDocument(ctx, newDoc(byte(i+1), map[string]any{"name": name, "age": 20 + i}), block, apply)
		require.NoError(t, err)
	}
	names := func(docs []*document.Document) []string {
		var out []string
		for _, d := range docs {
			out = append(out, d.Properties["name"].(string))
		}
		return out
	}

	plan := allNotes()
	plan.OrderBy = []storage.OrderBy{{Field: "name"}}
	docs, _, err := s.QueryDocuments(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, names(docs))

	plan.Conditions = []storage.Condition{{Field: "age", Operator: storage.OpGreaterOrEqual, Value: 21}}
	docs, _, err = s.QueryDocuments(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "dave"}, names(docs))

	plan.Conditions = []storage.Condition{{Field: "name", Operator: storage.OpIn, Value: []any{"bob", "dave"}}}
	plan.OrderBy = []storage.OrderBy{{Field: "name", Descending: true}}
	docs, _, err = s.QueryDocuments(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "bob"}, names(docs))

	plan = allNotes()
	plan.Conditions = []storage.Condition{{Field: "name", Operator: storage.OpStartsWith, Value: "c"}}
	docs, _, err = s.QueryDocuments(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, names(docs))

	plan = allNotes()
	plan.OrderBy = []storage.OrderBy{{Field: "name"}}
	plan.Start = document.ID{3}.Bytes() // bob
	plan.Limit = 1
	docs, _, err = s.QueryDocuments(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, names(docs))

	plan.StartInclusive = true
	docs, _, err = s.QueryDocuments(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names(docs))

	plan.Start = document.ID{0x99}.Bytes()
	_, _, err = s.QueryDocuments(ctx, plan, nil)
	var be *storage.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, storage.KindQuery, be.Kind)

	plan = allNotes()
	plan.Conditions = []storage.Condition{{Field: "name", Operator: "~=", Value: "x"}}
	_, _, err = s.QueryDocuments(ctx, plan, nil)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, storage.KindQuery, be.Kind)
}

func TestCorruptedDocumentIsProtocolError(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := New(backend)
	require.NoError(t, s.RegisterContract(ctx, contractID, []byte("contract"), nil))
	require.NoError(t, backend.Update(ctx, func(w storage.BatchWriter) error {
		return w.Put(storage.DocumentsPath(contractID, "note").Key([]byte("bad")), []byte{0xff})
	}))

	_, _, err := s.QueryDocuments(ctx, allNotes(), nil)
	var be *storage.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, storage.KindProtocol, be.Kind)
}

func TestProofs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i := 1; i <= 3; i++ {
		_, err := s.CreateDocument(ctx, newDoc(byte(i), map[string]any{"i": i}), block, apply)
		require.NoError(t, err)
	}
	root, err := s.RootHash(ctx, nil)
	require.NoError(t, err)

	raw, sig, err := s.ProveDocumentsQuery(ctx, allNotes(), nil)
	require.NoError(t, err)
	assert.Zero(t, sig.StorageFee)
	assert.NotZero(t, sig.ProcessingFee)

	p, err := DecodeProof(raw)
	require.NoError(t, err)
	entries, err := p.Verify(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = p.Verify(make([]byte, 32))
	assert.ErrorIs(t, err, ErrInvalidProof)

	p.Entries[0].Value = []byte("forged")
	_, err = p.Verify(root)
	assert.ErrorIs(t, err, ErrInvalidProof)

	many, _, err := s.ProveQueryMany(ctx, []storage.PathQuery{
		{Path: storage.DocumentsPath(contractID, "note"), Key: document.ID{1}.Bytes()},
		{Path: storage.ContractPath(contractID), Key: storage.ContractStorageKey},
	}, nil)
	require.NoError(t, err)
	mp, err := DecodeProof(many)
	require.NoError(t, err)
	verified, err := mp.Verify(root)
	require.NoError(t, err)
	require.Len(t, verified, 2)
	assert.Equal(t, []byte("contract"), verified[1].Value)

	_, _, err = s.ProveQueryMany(ctx, []storage.PathQuery{
		{Path: storage.DocumentsPath(contractID, "note"), Key: document.ID{1}.Bytes()},
		{Path: storage.DocumentsPath(contractID, "note"), Key: document.ID{42}.Bytes()},
	}, nil)
	var nf *storage.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRawInsertGet(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	id := document.ID{5}
	require.NoError(t, s.Insert(ctx, storage.IdentitiesPath(), id.Bytes(), []byte("identity"), nil))

	got, err := s.Get(ctx, storage.IdentitiesPath(), id.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("identity"), got)

	_, err = s.Get(ctx, storage.IdentitiesPath(), document.ID{6}.Bytes(), nil)
	var nf *storage.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRootHashDeterministicAcrossBackends(t *testing.T) {
	ctx := context.Background()
	bolt, err := boltbackend.NewFromFile(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	defer bolt.Close()

	run := func(s *Store) []byte {
		require.NoError(t, s.RegisterContract(ctx, contractID, []byte("contract"), nil))
		for i := 1; i <= 5; i++ {
			_, err := s.CreateDocument(ctx, newDoc(byte(i), map[string]any{"i": i}), block, apply)
			require.NoError(t, err)
		}
		upd := newDoc(2, map[string]any{"i": 20})
		upd.Revision = 2
		_, err := s.UpdateDocument(ctx, upd, block, apply)
		require.NoError(t, err)
		_, err = s.DeleteDocument(ctx, document.Identifier{ContractID: contractID, Type: "note", DocumentID: document.ID{4}}, block, apply)
		require.NoError(t, err)
		root, err := s.RootHash(ctx, nil)
		require.NoError(t, err)
		return root
	}

	memRoot := run(New(memory.New()))
	boltRoot := run(New(bolt))
	assert.Equal(t, memRoot, boltRoot)
	assert.Len(t, memRoot, 32)
}

func TestCancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CreateDocument(ctx, newDoc(1, nil), block, apply)
	assert.True(t, errors.Is(err, context.Canceled))
}
