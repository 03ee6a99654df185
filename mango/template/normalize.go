// Package template separates a selector's structure from its literal values.
//
// Normalize rewrites {"age": {"$gt": 25}} into the shape
// {"age": {"$gt": Placeholder{0}}} plus values [25]. Selectors that differ only
// in their literals share a shape and therefore a Key, which is what lets the
// compiled predicate and the planner analysis be reused across queries.
package template

import (
	"github.com/nonibytes/mango/mango/selector"
)

// Template is a value-free selector shape with its extracted literals.
type Template struct {
	Shape  map[string]any
	Values []any
	Key    string
}

// Normalize extracts every literal of sel into Values, in traversal order,
// and derives the structural Key of the remaining shape.
func Normalize(sel map[string]any) Template {
	n := &normalizer{}
	shape := n.selector(sel)
	return Template{
		Shape:  shape,
		Values: n.values,
		Key:    Key(shape),
	}
}

type normalizer struct {
	values []any
}

func (n *normalizer) param(v any) selector.Placeholder {
	n.values = append(n.values, v)
	return selector.Placeholder{Index: len(n.values) - 1}
}

func (n *normalizer) selector(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for _, key := range selector.Keys(m) {
		val := m[key]
		switch {
		case selector.IsCombination(key):
			out[key] = n.combination(key, val)
		case selector.IsFieldOperator(key):
			out[key] = n.criterion(selector.Operator(key), val)
		default:
			out[key] = n.field(val)
		}
	}
	return out
}

func (n *normalizer) combination(key string, val any) any {
	if selector.Operator(key) == selector.OpNot {
		if sub, ok := val.(map[string]any); ok {
			return n.selector(sub)
		}
		return n.param(val)
	}
	list, ok := val.([]any)
	if !ok {
		return n.param(val)
	}
	out := make([]any, len(list))
	for i, item := range list {
		if sub, ok := item.(map[string]any); ok {
			out[i] = n.selector(sub)
		} else {
			out[i] = n.param(item)
		}
	}
	return out
}

func (n *normalizer) field(val any) any {
	if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
		return n.selector(sub)
	}
	return n.param(val)
}

func (n *normalizer) criterion(op selector.Operator, val any) any {
	if selector.TakesSelector(op) {
		if sub, ok := val.(map[string]any); ok {
			return n.selector(sub)
		}
	}
	return n.param(val)
}

// Substitute rebuilds a concrete selector from a shape and its values. It is
// the inverse of Normalize.
func Substitute(shape map[string]any, values []any) map[string]any {
	return substitute(shape, values).(map[string]any)
}

func substitute(v any, values []any) any {
	switch t := v.(type) {
	case selector.Placeholder:
		return selector.Param(t.Index).Resolve(values)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = substitute(x, values)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = substitute(x, values)
		}
		return out
	}
	return v
}
