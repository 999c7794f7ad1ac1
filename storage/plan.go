package storage

import (
	"github.com/jmcleod/docproof/document"
)

// Operator is a comparison supported by where clauses.
type Operator string

const (
	OpEqual          Operator = "=="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpIn             Operator = "in"
	OpStartsWith     Operator = "startsWith"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual, OpIn, OpStartsWith:
		return true
	}
	return false
}

// Condition restricts a single document field.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// OrderBy sorts results by a field.
type OrderBy struct {
	Field      string
	Descending bool
}

// QueryPlan is a store-level traversal: the leaf tree to walk, the
// conjunction of conditions every result satisfies, ordering, a limit and an
// optional start cursor. A plan carries no control flags.
type QueryPlan struct {
	ContractID   document.ID
	DocumentType string
	Path         Path
	Conditions   []Condition
	OrderBy      []OrderBy
	Limit        uint32
	// Start is the id of the document the scan starts from, if any.
	Start          []byte
	StartInclusive bool
}
