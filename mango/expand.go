package mango

import (
	"github.com/nonibytes/mango/mango/selector"
)

// Expand rewrites the implicit top-level AND of sel into an explicit
// {"$and": [...]} of single-key selectors, in sorted key order, so callers can
// append extra conditions without knowing the selector's shape. An existing
// top-level $and array is flattened into the result. sel is not modified.
func Expand(sel map[string]any) map[string]any {
	clauses := make([]any, 0, len(sel))
	for _, key := range selector.Keys(sel) {
		val := sel[key]
		if selector.Operator(key) == selector.OpAnd {
			if list, ok := val.([]any); ok && allObjects(list) {
				clauses = append(clauses, list...)
				continue
			}
		}
		clauses = append(clauses, map[string]any{key: val})
	}
	return map[string]any{string(selector.OpAnd): clauses}
}

func allObjects(list []any) bool {
	for _, item := range list {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}
