// Package drive is the document repository: it turns document mutations and
// queries into transactional, fee-metered store operations.
package drive

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/fees"
	"github.com/jmcleod/docproof/query"
	"github.com/jmcleod/docproof/storage"
)

// Repository creates, updates, deletes, finds and proves documents against
// an authenticated store. It holds no state of its own beyond configuration;
// callers serialize writes per identity.
type Repository struct {
	store      storage.Store
	translator *query.Translator
	logger     *slog.Logger
	log        *opLogger
}

// New returns a Repository over store.
func New(store storage.Store, opts ...Option) *Repository {
	r := &Repository{
		store:      store,
		translator: query.NewTranslator(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = newOpLogger(r.logger)
	return r
}

// Store returns the underlying store.
func (r *Repository) Store() storage.Store {
	return r.store
}

// acquire takes the transaction token for the duration of one operation.
func acquire(tx *storage.Transaction) (func(), error) {
	if tx == nil {
		return func() {}, nil
	}
	if err := tx.Acquire(); err != nil {
		return nil, err
	}
	return tx.Release, nil
}

func writeOptions(opts Options) storage.WriteOptions {
	return storage.WriteOptions{Apply: !opts.DryRun, Transaction: opts.Transaction}
}

// isTransactionError reports errors about the token itself, which are
// returned as is rather than as write failures.
func isTransactionError(err error) bool {
	return errors.Is(err, storage.ErrTransactionBusy) || errors.Is(err, storage.ErrTransactionClosed)
}

// Create stores a new document. The store assigns the initial revision.
// It fails with *storage.StoreWriteError when the identity already exists or
// the write cannot be committed.
func (r *Repository) Create(ctx context.Context, doc *document.Document, block document.BlockInfo, opts Options) (res fees.StorageResult[struct{}], err error) {
	rec := r.log.begin(OpCreate, opts)
	rec.document(doc)
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	if err := document.Validate(doc); err != nil {
		return res, err
	}
	release, err := acquire(opts.Transaction)
	if err != nil {
		return res, err
	}
	defer release()

	sig, err := r.store.CreateDocument(ctx, doc, block, writeOptions(opts))
	if err != nil {
		if isTransactionError(err) || errors.Is(err, context.Canceled) {
			return res, err
		}
		return res, &storage.StoreWriteError{Op: string(OpCreate), Err: err}
	}
	return fees.NewResult(struct{}{}, fees.FromSignal(fees.KindCreate, sig)), nil
}

// Update replaces a stored document. UpdatedAt is set to the block time and
// CreatedAt is kept from the stored document.
//
// Callers pass the revision the document will have after the update, not the
// one they read: doc.Revision must equal the stored revision plus one. A
// document read at revision r is therefore updated with doc.Revision = r+1,
// and any other value fails with *storage.RevisionConflictError.
func (r *Repository) Update(ctx context.Context, doc *document.Document, block document.BlockInfo, opts Options) (res fees.StorageResult[struct{}], err error) {
	rec := r.log.begin(OpUpdate, opts)
	rec.document(doc)
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	if err := document.Validate(doc); err != nil {
		return res, err
	}
	release, err := acquire(opts.Transaction)
	if err != nil {
		return res, err
	}
	defer release()

	next := doc.Clone()
	next.UpdatedAt = block.Time
	sig, err := r.store.UpdateDocument(ctx, next, block, writeOptions(opts))
	if err != nil {
		return res, mutationError(OpUpdate, err)
	}
	return fees.NewResult(struct{}{}, fees.FromSignal(fees.KindUpdate, sig)), nil
}

// Delete removes a stored document.
func (r *Repository) Delete(ctx context.Context, id document.Identifier, block document.BlockInfo, opts Options) (res fees.StorageResult[struct{}], err error) {
	rec := r.log.begin(OpDelete, opts)
	rec.identifier(id)
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	release, err := acquire(opts.Transaction)
	if err != nil {
		return res, err
	}
	defer release()

	sig, err := r.store.DeleteDocument(ctx, id, block, writeOptions(opts))
	if err != nil {
		return res, mutationError(OpDelete, err)
	}
	return fees.NewResult(struct{}{}, fees.FromSignal(fees.KindDelete, sig)), nil
}

// mutationError passes through the typed outcomes callers act on and wraps
// everything else as a write failure.
func mutationError(op Operation, err error) error {
	var (
		nf *storage.NotFoundError
		rc *storage.RevisionConflictError
	)
	switch {
	case errors.As(err, &nf), errors.As(err, &rc), isTransactionError(err), errors.Is(err, context.Canceled):
		return err
	}
	return &storage.StoreWriteError{Op: string(op), Err: err}
}

// readTransaction resolves which transaction a read runs in. A query only
// reads uncommitted state when it asks to.
func readTransaction(q query.Query, opts Options) (*storage.Transaction, error) {
	if !q.UseTransaction {
		return nil, nil
	}
	if opts.Transaction == nil {
		return nil, &storage.InvalidQueryError{Message: "useTransaction is set but no transaction is open"}
	}
	return opts.Transaction, nil
}

// Find returns the documents of docType matching q.
func (r *Repository) Find(ctx context.Context, contractID document.ID, docType string, q query.Query, opts Options) (res fees.StorageResult[[]*document.Document], err error) {
	rec := r.log.begin(OpFind, opts)
	rec.add(slog.String("contract_id", contractID.String()), slog.String("document_type", docType))
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	tx, err := readTransaction(q, opts)
	if err != nil {
		return res, err
	}
	plan, err := r.translator.Translate(contractID.Bytes(), docType, q)
	if err != nil {
		return res, err
	}
	release, err := acquire(tx)
	if err != nil {
		return res, err
	}
	defer release()

	docs, sig, err := r.store.QueryDocuments(ctx, plan, tx)
	if err != nil {
		return res, storage.Classify(err, storage.ReclassifyFind)
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	rec.add(slog.Int("results", len(docs)))
	return fees.NewResult(docs, fees.FromSignal(fees.KindQuery, sig)), nil
}

// Prove returns a proof of the documents of docType matching q. Dry-run has
// no meaning for proofs and is ignored.
func (r *Repository) Prove(ctx context.Context, contractID document.ID, docType string, q query.Query, opts Options) (res fees.StorageResult[[]byte], err error) {
	q.DryRun = false
	opts.DryRun = false
	rec := r.log.begin(OpProve, opts)
	rec.add(slog.String("contract_id", contractID.String()), slog.String("document_type", docType))
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	tx, err := readTransaction(q, opts)
	if err != nil {
		return res, err
	}
	plan, err := r.translator.Translate(contractID.Bytes(), docType, q)
	if err != nil {
		return res, err
	}
	release, err := acquire(tx)
	if err != nil {
		return res, err
	}
	defer release()

	proof, sig, err := r.store.ProveDocumentsQuery(ctx, plan, tx)
	if err != nil {
		return res, storage.Classify(err, storage.ReclassifyProve)
	}
	return fees.NewResult(proof, fees.FromSignal(fees.KindProve, sig)), nil
}

// BeginTransaction opens a transaction owned by the caller.
func (r *Repository) BeginTransaction(ctx context.Context) (tx *storage.Transaction, err error) {
	rec := r.log.begin(OpBegin, Options{})
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	tx, err = r.store.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	rec.tx = tx
	return tx, nil
}

// CommitTransaction applies every operation made in tx.
func (r *Repository) CommitTransaction(ctx context.Context, tx *storage.Transaction) (err error) {
	rec := r.log.begin(OpCommit, Options{Transaction: tx})
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	release, err := acquire(tx)
	if err != nil {
		return err
	}
	defer release()
	return r.store.CommitTransaction(ctx, tx)
}

// RollbackTransaction discards every operation made in tx.
func (r *Repository) RollbackTransaction(ctx context.Context, tx *storage.Transaction) (err error) {
	rec := r.log.begin(OpRollback, Options{Transaction: tx})
	defer func() { r.log.finish(ctx, rec, r.store, err) }()

	release, err := acquire(tx)
	if err != nil {
		return err
	}
	defer release()
	return r.store.RollbackTransaction(ctx, tx)
}
