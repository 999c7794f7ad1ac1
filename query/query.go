// Package query translates declarative document queries into store
// traversal plans.
package query

// WhereClause restricts a field with an operator. On the wire it is the
// triple [field, operator, value].
type WhereClause struct {
	Field    string
	Operator string
	Value    any
}

// OrderBy sorts by a field; on the wire it is [field, "asc"|"desc"].
type OrderBy struct {
	Field     string
	Ascending bool
}

// Query is a declarative document query. UseTransaction and DryRun are
// control flags for the repository and never reach the store.
type Query struct {
	Where      []WhereClause
	OrderBy    []OrderBy
	Limit      uint32
	StartAt    []byte
	StartAfter []byte

	UseTransaction bool
	DryRun         bool
}
