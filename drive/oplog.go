package drive

import (
	"context"
	"log/slog"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

// Operation names a repository operation in log records.
type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpFind     Operation = "find"
	OpProve    Operation = "prove"
	OpBegin    Operation = "begin_transaction"
	OpCommit   Operation = "commit_transaction"
	OpRollback Operation = "rollback_transaction"
)

// opLogger writes one structured record per repository operation, on every
// exit path.
type opLogger struct {
	logger *slog.Logger
}

func newOpLogger(logger *slog.Logger) *opLogger {
	return &opLogger{logger: logger.With("component", "drive")}
}

// opRecord collects the attributes of one operation while it runs.
type opRecord struct {
	op     Operation
	level  slog.Level
	tx     *storage.Transaction
	dryRun bool
	attrs  []slog.Attr
}

func (l *opLogger) begin(op Operation, opts Options) *opRecord {
	level := slog.LevelInfo
	if op == OpFind || op == OpProve {
		level = slog.LevelDebug
	}
	return &opRecord{op: op, level: level, tx: opts.Transaction, dryRun: opts.DryRun}
}

func (r *opRecord) identifier(id document.Identifier) {
	r.attrs = append(r.attrs,
		slog.String("contract_id", id.ContractID.String()),
		slog.String("document_type", id.Type),
		slog.String("document_id", id.DocumentID.String()),
	)
}

func (r *opRecord) document(doc *document.Document) {
	if doc == nil {
		return
	}
	r.identifier(doc.Identifier())
	if hash, err := document.ContentHash(doc); err == nil {
		r.attrs = append(r.attrs, slog.String("content_hash", hash))
	}
}

func (r *opRecord) add(attrs ...slog.Attr) {
	r.attrs = append(r.attrs, attrs...)
}

// finish emits the record. The root hash is fetched after the operation; a
// failure to fetch it is logged and never replaces opErr.
func (l *opLogger) finish(ctx context.Context, r *opRecord, store storage.DocumentStore, opErr error) {
	level := r.level
	if opErr != nil && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("operation", string(r.op)),
		slog.Bool("use_transaction", r.tx != nil),
		slog.Bool("dry_run", r.dryRun),
	}
	attrs = append(attrs, r.attrs...)

	tx := r.tx
	if tx != nil && tx.Closed() {
		tx = nil
	}
	if root, err := store.RootHash(ctx, tx); err != nil {
		attrs = append(attrs, slog.String("root_hash_error", err.Error()))
	} else {
		attrs = append(attrs, slog.String("root_hash", util.HexEncode(root)))
	}

	if opErr != nil {
		attrs = append(attrs, slog.String("error", opErr.Error()))
		l.logger.LogAttrs(ctx, level, "operation failed", attrs...)
		return
	}
	l.logger.LogAttrs(ctx, level, "operation completed", attrs...)
}
