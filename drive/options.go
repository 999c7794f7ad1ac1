package drive

import (
	"log/slog"

	"github.com/jmcleod/docproof/query"
	"github.com/jmcleod/docproof/storage"
)

// Options are the per-call controls of a repository operation.
type Options struct {
	// Transaction scopes the operation to an open transaction.
	Transaction *storage.Transaction
	// DryRun evaluates a mutation and reports its cost without applying it.
	DryRun bool
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger for operation records.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTranslator replaces the default query translator.
func WithTranslator(t *query.Translator) Option {
	return func(r *Repository) {
		if t != nil {
			r.translator = t
		}
	}
}
