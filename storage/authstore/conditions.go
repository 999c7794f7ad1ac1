package authstore

import (
	"fmt"
	"reflect"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/storage"
)

var operatorExpressions = map[storage.Operator]string{
	storage.OpEqual:          "field == value",
	storage.OpLess:           "field < value",
	storage.OpLessOrEqual:    "field <= value",
	storage.OpGreater:        "field > value",
	storage.OpGreaterOrEqual: "field >= value",
	storage.OpIn:             "field in value",
	storage.OpStartsWith:     "field startsWith value",
}

var operatorPrograms = make(map[storage.Operator]*exprvm.Program, len(operatorExpressions))

func init() {
	for op, src := range operatorExpressions {
		program, err := exprlang.Compile(src, exprlang.AllowUndefinedVariables())
		if err != nil {
			panic(fmt.Sprintf("compiling %q: %v", src, err))
		}
		operatorPrograms[op] = program
	}
}

func queryError(format string, args ...any) error {
	return &storage.BackendError{Kind: storage.KindQuery, Message: fmt.Sprintf(format, args...)}
}

// checkConditions rejects conditions the engine cannot evaluate.
func checkConditions(conds []storage.Condition) error {
	for _, c := range conds {
		if _, ok := operatorPrograms[c.Operator]; !ok {
			return queryError("unsupported operator %q on field %q", c.Operator, c.Field)
		}
		switch c.Operator {
		case storage.OpIn:
			if c.Value == nil {
				return queryError("operator in on field %q needs a list", c.Field)
			}
			if k := reflect.TypeOf(c.Value).Kind(); k != reflect.Slice && k != reflect.Array {
				return queryError("operator in on field %q needs a list", c.Field)
			}
		case storage.OpStartsWith:
			if _, ok := c.Value.(string); !ok {
				return queryError("operator startsWith on field %q needs a string", c.Field)
			}
		}
	}
	return nil
}

// fieldValue resolves a condition field against a document. System fields use
// their $-prefixed names.
func fieldValue(doc *document.Document, field string) (any, bool) {
	switch field {
	case document.FieldID:
		return doc.ID.Bytes(), true
	case document.FieldOwnerID:
		return doc.OwnerID.Bytes(), true
	case document.FieldRevision:
		return doc.Revision, true
	case document.FieldCreatedAt:
		return uint64(doc.CreatedAt.UnixMilli()), true
	case document.FieldUpdatedAt:
		return uint64(doc.UpdatedAt.UnixMilli()), true
	}
	v, ok := doc.Properties[field]
	return v, ok && v != nil
}

// matches reports whether doc satisfies every condition. Missing fields and
// values of incomparable types never match.
func matches(doc *document.Document, conds []storage.Condition) bool {
	for _, c := range conds {
		v, ok := fieldValue(doc, c.Field)
		if !ok {
			return false
		}
		out, err := exprlang.Run(operatorPrograms[c.Operator], map[string]any{"field": v, "value": c.Value})
		if err != nil {
			return false
		}
		if b, ok := out.(bool); !ok || !b {
			return false
		}
	}
	return true
}

// compareValues orders two field values. Missing values sort first.
func compareValues(a any, aok bool, b any, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if less(a, b) {
		return -1
	}
	if less(b, a) {
		return 1
	}
	return 0
}

func less(a, b any) bool {
	out, err := exprlang.Run(operatorPrograms[storage.OpLess], map[string]any{"field": a, "value": b})
	if err != nil {
		return false
	}
	r, _ := out.(bool)
	return r
}
