package query

import (
	"fmt"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

// DefaultMaxLimit is the largest result limit accepted unless configured
// otherwise. It is also the limit applied when a query sets none.
const DefaultMaxLimit uint32 = 100

// Translator turns queries into storage.QueryPlan values. It performs no
// schema lookups.
type Translator struct {
	MaxLimit uint32
}

// NewTranslator returns a Translator with DefaultMaxLimit.
func NewTranslator() *Translator {
	return &Translator{MaxLimit: DefaultMaxLimit}
}

func invalid(format string, args ...any) error {
	return &storage.InvalidQueryError{Message: fmt.Sprintf(format, args...)}
}

// Translate builds the plan for q over the documents of docType in the given
// contract.
func (t *Translator) Translate(contractID []byte, docType string, q Query) (storage.QueryPlan, error) {
	if q.StartAt != nil && q.StartAfter != nil {
		return storage.QueryPlan{}, invalid("startAt and startAfter cannot be used together")
	}
	cid, err := document.IDFromBytes(contractID)
	if err != nil {
		return storage.QueryPlan{}, invalid("contract id: %v", err)
	}
	if err := document.ValidateType(docType); err != nil {
		return storage.QueryPlan{}, invalid("%v", err)
	}

	maxLimit := t.MaxLimit
	if maxLimit == 0 {
		maxLimit = DefaultMaxLimit
	}
	limit := q.Limit
	if limit == 0 {
		limit = maxLimit
	}
	if limit > maxLimit {
		return storage.QueryPlan{}, invalid("limit %d exceeds maximum %d", limit, maxLimit)
	}

	plan := storage.QueryPlan{
		ContractID:   cid,
		DocumentType: docType,
		Path:         storage.DocumentsPath(cid, docType),
		Limit:        limit,
	}

	for _, w := range q.Where {
		field := util.Normalize(w.Field)
		if field == "" {
			return storage.QueryPlan{}, invalid("where clause with empty field")
		}
		op := storage.Operator(w.Operator)
		if !op.Valid() {
			return storage.QueryPlan{}, invalid("unknown operator %q in where clause on %q", w.Operator, field)
		}
		value := w.Value
		if s, ok := value.(string); ok {
			value = util.Normalize(s)
		}
		plan.Conditions = append(plan.Conditions, storage.Condition{Field: field, Operator: op, Value: value})
	}

	for _, ob := range q.OrderBy {
		field := util.Normalize(ob.Field)
		if field == "" {
			return storage.QueryPlan{}, invalid("order by with empty field")
		}
		plan.OrderBy = append(plan.OrderBy, storage.OrderBy{Field: field, Descending: !ob.Ascending})
	}

	switch {
	case q.StartAt != nil:
		if len(q.StartAt) != document.IDSize {
			return storage.QueryPlan{}, invalid("startAt must be a %d byte document id", document.IDSize)
		}
		plan.Start = util.CopyBytes(q.StartAt)
		plan.StartInclusive = true
	case q.StartAfter != nil:
		if len(q.StartAfter) != document.IDSize {
			return storage.QueryPlan{}, invalid("startAfter must be a %d byte document id", document.IDSize)
		}
		plan.Start = util.CopyBytes(q.StartAfter)
	}
	return plan, nil
}
