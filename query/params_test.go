package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

func TestFromParamsStripsControlKeys(t *testing.T) {
	cid, docType, q, err := FromParams(map[string]any{
		ParamContractID:   contractID.Bytes(),
		ParamDocumentType: "note",
		ParamWhere:        []any{[]any{"name", "==", "bob"}},
		ParamOrderBy:      []any{[]any{"name", "desc"}},
		ParamLimit:        uint64(5),
		ParamStartAfter:   nil,
		"useTransaction":  true,
		"dryRun":          true,
		"blockInfo":       map[string]any{"height": 1},
		"epoch":           uint64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, contractID.Bytes(), cid)
	assert.Equal(t, "note", docType)
	assert.Equal(t, []WhereClause{{Field: "name", Operator: "==", Value: "bob"}}, q.Where)
	assert.Equal(t, []OrderBy{{Field: "name"}}, q.OrderBy)
	assert.Equal(t, uint32(5), q.Limit)
	assert.Nil(t, q.StartAfter)
	assert.False(t, q.UseTransaction)
	assert.False(t, q.DryRun)
}

func TestFromParamsErrors(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{ParamContractID: contractID.Bytes(), ParamDocumentType: "note"}
	}
	cases := map[string]func(m map[string]any){
		"missing contract": func(m map[string]any) { delete(m, ParamContractID) },
		"where shape":      func(m map[string]any) { m[ParamWhere] = []any{[]any{"a", "=="}} },
		"order direction":  func(m map[string]any) { m[ParamOrderBy] = []any{[]any{"a", "up"}} },
		"negative limit":   func(m map[string]any) { m[ParamLimit] = int64(-1) },
		"start type":       func(m map[string]any) { m[ParamStartAt] = "abc" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := base()
			mutate(m)
			_, _, _, err := FromParams(m)
			var iq *storage.InvalidQueryError
			assert.ErrorAs(t, err, &iq)
		})
	}
}

func TestParamsSurviveWireEncoding(t *testing.T) {
	q := Query{
		Where:   []WhereClause{{Field: "age", Operator: ">=", Value: uint64(18)}},
		OrderBy: []OrderBy{{Field: "age", Ascending: true}},
		Limit:   7,
		StartAt: document.ID{4}.Bytes(),
		DryRun:  true,
	}
	params := Params(contractID.Bytes(), "person", q)
	assert.NotContains(t, params, "dryRun")
	assert.NotContains(t, params, ParamStartAfter)

	raw, err := util.MarshalCanonical(params)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, util.UnmarshalCanonical(raw, &decoded))

	cid, docType, got, err := FromParams(decoded)
	require.NoError(t, err)
	assert.Equal(t, contractID.Bytes(), cid)
	assert.Equal(t, "person", docType)
	assert.Equal(t, q.Where, got.Where)
	assert.Equal(t, q.OrderBy, got.OrderBy)
	assert.Equal(t, q.Limit, got.Limit)
	assert.Equal(t, q.StartAt, got.StartAt)
	assert.False(t, got.DryRun)
}
