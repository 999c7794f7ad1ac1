package authstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/docproof/storage"
)

func TestEveryOperatorCompiles(t *testing.T) {
	require.Len(t, operatorPrograms, len(operatorExpressions))
	for op := range operatorExpressions {
		assert.NotNil(t, operatorPrograms[op], "operator %q", op)
	}
}

func TestMatchesOperators(t *testing.T) {
	doc := newDoc(1, map[string]any{
		"n":     uint64(5),
		"title": "hello world",
		"tag":   "b",
	})

	tests := []struct {
		name string
		cond storage.Condition
		want bool
	}{
		{"equal", storage.Condition{Field: "n", Operator: storage.OpEqual, Value: uint64(5)}, true},
		{"not equal", storage.Condition{Field: "n", Operator: storage.OpEqual, Value: uint64(6)}, false},
		{"less", storage.Condition{Field: "n", Operator: storage.OpLess, Value: uint64(6)}, true},
		{"not less", storage.Condition{Field: "n", Operator: storage.OpLess, Value: uint64(5)}, false},
		{"less or equal", storage.Condition{Field: "n", Operator: storage.OpLessOrEqual, Value: uint64(5)}, true},
		{"greater", storage.Condition{Field: "n", Operator: storage.OpGreater, Value: uint64(4)}, true},
		{"not greater", storage.Condition{Field: "n", Operator: storage.OpGreater, Value: uint64(5)}, false},
		{"greater or equal", storage.Condition{Field: "n", Operator: storage.OpGreaterOrEqual, Value: uint64(5)}, true},
		{"in", storage.Condition{Field: "tag", Operator: storage.OpIn, Value: []any{"a", "b"}}, true},
		{"not in", storage.Condition{Field: "tag", Operator: storage.OpIn, Value: []any{"c"}}, false},
		{"starts with", storage.Condition{Field: "title", Operator: storage.OpStartsWith, Value: "hello"}, true},
		{"does not start with", storage.Condition{Field: "title", Operator: storage.OpStartsWith, Value: "world"}, false},
		{"missing field", storage.Condition{Field: "absent", Operator: storage.OpEqual, Value: uint64(5)}, false},
		{"incomparable types", storage.Condition{Field: "title", Operator: storage.OpLess, Value: uint64(5)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(doc, []storage.Condition{tt.cond}))
		})
	}
}

func TestMatchesSystemFields(t *testing.T) {
	doc := newDoc(1, nil)
	doc.Revision = 3
	assert.True(t, matches(doc, []storage.Condition{
		{Field: "$revision", Operator: storage.OpGreaterOrEqual, Value: uint64(3)},
	}))
}
