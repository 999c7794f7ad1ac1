package query

import (
	"fmt"
	"math"

	"github.com/jmcleod/docproof/internal/util"
)

// Wire parameter names of a document query.
const (
	ParamContractID   = "contractId"
	ParamDocumentType = "type"
	ParamWhere        = "where"
	ParamOrderBy      = "orderBy"
	ParamLimit        = "limit"
	ParamStartAt      = "startAt"
	ParamStartAfter   = "startAfter"
)

// controlParams never reach the translator: they are repository flags or
// block context that only the local caller may set.
var controlParams = map[string]bool{
	"useTransaction":        true,
	"dryRun":                true,
	"blockInfo":             true,
	"blockHeight":           true,
	"blockTime":             true,
	"epoch":                 true,
	"coreChainLockedHeight": true,
}

// FromParams parses the parameter map of a remote document query. Control
// and block context keys are stripped and nil values are treated as absent.
func FromParams(params map[string]any) ([]byte, string, Query, error) {
	clean := make(map[string]any, len(params))
	for k, v := range params {
		if controlParams[k] || v == nil {
			continue
		}
		clean[k] = v
	}

	var q Query
	contractID, ok := clean[ParamContractID].([]byte)
	if !ok {
		return nil, "", q, invalid("%s must be a byte string", ParamContractID)
	}
	docType, ok := clean[ParamDocumentType].(string)
	if !ok {
		return nil, "", q, invalid("%s must be a string", ParamDocumentType)
	}

	if raw, ok := clean[ParamWhere]; ok {
		clauses, ok := raw.([]any)
		if !ok {
			return nil, "", q, invalid("%s must be a list", ParamWhere)
		}
		for i, c := range clauses {
			triple, ok := c.([]any)
			if !ok || len(triple) != 3 {
				return nil, "", q, invalid("where clause %d must be [field, operator, value]", i)
			}
			field, fok := triple[0].(string)
			op, ook := triple[1].(string)
			if !fok || !ook {
				return nil, "", q, invalid("where clause %d: field and operator must be strings", i)
			}
			q.Where = append(q.Where, WhereClause{Field: field, Operator: op, Value: triple[2]})
		}
	}

	if raw, ok := clean[ParamOrderBy]; ok {
		clauses, ok := raw.([]any)
		if !ok {
			return nil, "", q, invalid("%s must be a list", ParamOrderBy)
		}
		for i, c := range clauses {
			pair, ok := c.([]any)
			if !ok || len(pair) == 0 || len(pair) > 2 {
				return nil, "", q, invalid("order by clause %d must be [field, direction]", i)
			}
			field, ok := pair[0].(string)
			if !ok {
				return nil, "", q, invalid("order by clause %d: field must be a string", i)
			}
			ob := OrderBy{Field: field, Ascending: true}
			if len(pair) == 2 {
				switch pair[1] {
				case "asc":
				case "desc":
					ob.Ascending = false
				default:
					return nil, "", q, invalid("order by clause %d: direction must be asc or desc", i)
				}
			}
			q.OrderBy = append(q.OrderBy, ob)
		}
	}

	if raw, ok := clean[ParamLimit]; ok {
		limit, err := toUint32(raw)
		if err != nil {
			return nil, "", q, invalid("%s: %v", ParamLimit, err)
		}
		q.Limit = limit
	}

	for _, p := range []struct {
		name string
		dst  *[]byte
	}{{ParamStartAt, &q.StartAt}, {ParamStartAfter, &q.StartAfter}} {
		raw, ok := clean[p.name]
		if !ok {
			continue
		}
		b, ok := raw.([]byte)
		if !ok {
			return nil, "", q, invalid("%s must be a byte string", p.name)
		}
		*p.dst = util.CopyBytes(b)
	}
	return contractID, docType, q, nil
}

// Params renders a query as the parameter map FromParams accepts. Absent
// fields are omitted and control flags are never included.
func Params(contractID []byte, docType string, q Query) map[string]any {
	out := map[string]any{
		ParamContractID:   contractID,
		ParamDocumentType: docType,
	}
	if len(q.Where) > 0 {
		where := make([]any, len(q.Where))
		for i, w := range q.Where {
			where[i] = []any{w.Field, w.Operator, w.Value}
		}
		out[ParamWhere] = where
	}
	if len(q.OrderBy) > 0 {
		orderBy := make([]any, len(q.OrderBy))
		for i, ob := range q.OrderBy {
			dir := "asc"
			if !ob.Ascending {
				dir = "desc"
			}
			orderBy[i] = []any{ob.Field, dir}
		}
		out[ParamOrderBy] = orderBy
	}
	if q.Limit > 0 {
		out[ParamLimit] = q.Limit
	}
	if q.StartAt != nil {
		out[ParamStartAt] = q.StartAt
	}
	if q.StartAfter != nil {
		out[ParamStartAfter] = q.StartAfter
	}
	return out
}

func toUint32(v any) (uint32, error) {
	var n uint64
	switch x := v.(type) {
	case uint64:
		n = x
	case uint32:
		n = uint64(x)
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		n = uint64(x)
	case int:
		if x < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		n = uint64(x)
	default:
		return 0, fmt.Errorf("must be an integer, got %T", v)
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return uint32(n), nil
}
