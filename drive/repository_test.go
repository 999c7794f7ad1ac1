package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/fees"
	"github.com/jmcleod/docproof/query"
	"github.com/jmcleod/docproof/storage"
	"github.com/jmcleod/docproof/storage/authstore"
	"github.com/jmcleod/docproof/storage/memory"
)

var (
	contractID = document.ID{0xc0}
	ownerID    = document.ID{0x0a}
	t0         = time.UnixMilli(1_700_000_000_000).UTC()
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func newRepo(t *testing.T) (*Repository, *syncBuffer) {
	t.Helper()
	store := authstore.New(memory.New())
	require.NoError(t, store.RegisterContract(context.Background(), contractID, []byte("contract"), nil))
	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(store, WithLogger(logger)), logs
}

func note(id byte, props map[string]any) *document.Document {
	return &document.Document{
		ID:         document.ID{id},
		ContractID: contractID,
		Type:       "note",
		OwnerID:    ownerID,
		Properties: props,
	}
}

func blockAt(h uint64, ts time.Time) document.BlockInfo {
	return document.BlockInfo{Height: h, Time: ts}
}

func findAll(t *testing.T, r *Repository, opts Options, q query.Query) []*document.Document {
	t.Helper()
	res, err := r.Find(context.Background(), contractID, "note", q, opts)
	require.NoError(t, err)
	return res.Value
}

func TestRevisionIncrementsOnUpdate(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)

	res, err := r.Create(ctx, note(1, map[string]any{"v": "a"}), blockAt(1, t0), Options{})
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, fees.KindCreate, res.Operations[0].Kind)

	stored := findAll(t, r, Options{}, query.Query{})[0]
	require.Equal(t, uint64(1), stored.Revision)

	for i := 0; i < 3; i++ {
		prev := stored.Revision
		next := stored.Clone()
		next.Revision = prev + 1
		next.Properties["v"] = strings.Repeat("b", i+1)
		_, err := r.Update(ctx, next, blockAt(uint64(2+i), t0.Add(time.Duration(i+1)*time.Second)), Options{})
		require.NoError(t, err)

		stored = findAll(t, r, Options{}, query.Query{})[0]
		assert.Equal(t, prev+1, stored.Revision)
		assert.False(t, stored.UpdatedAt.Before(stored.CreatedAt))
		assert.Equal(t, t0, stored.CreatedAt)
	}

	stale := stored.Clone()
	_, err = r.Update(ctx, stale, blockAt(9, t0), Options{})
	var rc *storage.RevisionConflictError
	assert.ErrorAs(t, err, &rc, "the read revision itself is rejected")

	ahead := stored.Clone()
	ahead.Revision = stored.Revision + 2
	_, err = r.Update(ctx, ahead, blockAt(9, t0), Options{})
	assert.ErrorAs(t, err, &rc, "skipping a revision is rejected")
}

func TestCreateDuplicateIsWriteError(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)
	_, err := r.Create(ctx, note(1, nil), blockAt(1, t0), Options{})
	require.NoError(t, err)

	_, err = r.Create(ctx, note(1, nil), blockAt(2, t0), Options{})
	var we *storage.StoreWriteError
	require.ErrorAs(t, err, &we)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestCreateRejectsInvalidDocument(t *testing.T) {
	r, _ := newRepo(t)
	bad := note(1, nil)
	bad.Type = "a/b"
	_, err := r.Create(context.Background(), bad, blockAt(1, t0), Options{})
	var ve *document.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestDeleteThenFind(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)
	doc := note(1, map[string]any{"v": 1})
	_, err := r.Create(ctx, doc, blockAt(1, t0), Options{})
	require.NoError(t, err)

	res, err := r.Delete(ctx, doc.Identifier(), blockAt(2, t0), Options{})
	require.NoError(t, err)
	assert.NotZero(t, res.TotalFee().Refunds[ownerID])

	assert.Empty(t, findAll(t, r, Options{}, query.Query{
		Where: []query.WhereClause{{Field: document.FieldID, Operator: "==", Value: doc.ID.Bytes()}},
	}))

	_, err = r.Delete(ctx, doc.Identifier(), blockAt(3, t0), Options{})
	var nf *storage.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDryRunCreate(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)
	before, err := r.Store().RootHash(ctx, nil)
	require.NoError(t, err)

	res, err := r.Create(ctx, note(1, map[string]any{"v": 1}), blockAt(1, t0), Options{DryRun: true})
	require.NoError(t, err)
	fee := res.TotalFee()
	assert.NotZero(t, fee.StorageFee+fee.ProcessingFee)

	after, err := r.Store().RootHash(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, findAll(t, r, Options{}, query.Query{}))
}

func TestFindReadsZeroStorageFee(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)
	_, err := r.Create(ctx, note(1, nil), blockAt(1, t0), Options{})
	require.NoError(t, err)

	res, err := r.Find(ctx, contractID, "note", query.Query{}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)
	assert.Zero(t, res.Operations[0].Fee.StorageFee)
	assert.NotZero(t, res.Operations[0].Fee.ProcessingFee)
}

func TestFindErrors(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)

	_, err := r.Find(ctx, contractID, "note", query.Query{
		StartAt:    document.ID{1}.Bytes(),
		StartAfter: document.ID{2}.Bytes(),
	}, Options{})
	var iq *storage.InvalidQueryError
	require.ErrorAs(t, err, &iq)

	// Backend query errors are reclassified.
	_, err = r.Find(ctx, document.ID{0xee}, "note", query.Query{}, Options{})
	require.ErrorAs(t, err, &iq)
	assert.Contains(t, iq.Message, "data contract")

	_, err = r.Find(ctx, contractID, "note", query.Query{UseTransaction: true}, Options{})
	assert.ErrorAs(t, err, &iq)
}

func TestTransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)

	tx, err := r.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = r.Create(ctx, note(1, nil), blockAt(1, t0), Options{Transaction: tx})
	require.NoError(t, err)

	assert.Len(t, findAll(t, r, Options{Transaction: tx}, query.Query{UseTransaction: true}), 1)
	assert.Empty(t, findAll(t, r, Options{Transaction: tx}, query.Query{}))

	require.NoError(t, r.CommitTransaction(ctx, tx))
	assert.Len(t, findAll(t, r, Options{}, query.Query{}), 1)

	_, err = r.Create(ctx, note(2, nil), blockAt(2, t0), Options{Transaction: tx})
	assert.ErrorIs(t, err, storage.ErrTransactionClosed)
	assert.ErrorIs(t, r.RollbackTransaction(ctx, tx), storage.ErrTransactionClosed)

	rb, err := r.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = r.Create(ctx, note(3, nil), blockAt(3, t0), Options{Transaction: rb})
	require.NoError(t, err)
	require.NoError(t, r.RollbackTransaction(ctx, rb))
	assert.Len(t, findAll(t, r, Options{}, query.Query{}), 1)
}

func TestTransactionBusy(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)
	tx, err := r.BeginTransaction(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Acquire())
	_, err = r.Create(ctx, note(1, nil), blockAt(1, t0), Options{Transaction: tx})
	assert.ErrorIs(t, err, storage.ErrTransactionBusy)
	tx.Release()

	_, err = r.Create(ctx, note(1, nil), blockAt(1, t0), Options{Transaction: tx})
	assert.NoError(t, err)
}

func TestProve(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepo(t)
	for i := byte(1); i <= 3; i++ {
		_, err := r.Create(ctx, note(i, map[string]any{"i": int(i)}), blockAt(uint64(i), t0), Options{})
		require.NoError(t, err)
	}

	res, err := r.Prove(ctx, contractID, "note", query.Query{DryRun: true}, Options{DryRun: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Value)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, fees.KindProve, res.Operations[0].Kind)
	assert.Zero(t, res.Operations[0].Fee.StorageFee)

	root, err := r.Store().RootHash(ctx, nil)
	require.NoError(t, err)
	p, err := authstore.DecodeProof(res.Value)
	require.NoError(t, err)
	entries, err := p.Verify(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestLogsEveryExit(t *testing.T) {
	ctx := context.Background()
	r, logs := newRepo(t)

	_, err := r.Create(ctx, note(1, nil), blockAt(1, t0), Options{DryRun: true})
	require.NoError(t, err)
	_, err = r.Delete(ctx, note(9, nil).Identifier(), blockAt(1, t0), Options{})
	require.Error(t, err)

	recs := logs.records(t)
	require.Len(t, recs, 2)

	ok := recs[0]
	assert.Equal(t, "create", ok["operation"])
	assert.Equal(t, "drive", ok["component"])
	assert.Equal(t, true, ok["dry_run"])
	assert.Equal(t, false, ok["use_transaction"])
	assert.NotEmpty(t, ok["content_hash"])
	assert.Len(t, ok["root_hash"], 64)
	assert.Equal(t, contractID.String(), ok["contract_id"])

	failed := recs[1]
	assert.Equal(t, "delete", failed["operation"])
	assert.Equal(t, "WARN", failed["level"])
	assert.Contains(t, failed["error"], "not found")
}

type failingRootStore struct {
	storage.Store
}

func (failingRootStore) RootHash(context.Context, *storage.Transaction) ([]byte, error) {
	return nil, errors.New("root unavailable")
}

func TestRootHashFailureDoesNotMaskResult(t *testing.T) {
	ctx := context.Background()
	store := authstore.New(memory.New())
	require.NoError(t, store.RegisterContract(ctx, contractID, []byte("contract"), nil))
	logs := &syncBuffer{}
	r := New(failingRootStore{store}, WithLogger(slog.New(slog.NewJSONHandler(logs, nil))))

	_, err := r.Create(ctx, note(1, nil), blockAt(1, t0), Options{})
	require.NoError(t, err)

	recs := logs.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "root unavailable", recs[0]["root_hash_error"])
	assert.NotContains(t, recs[0], "error")
}
