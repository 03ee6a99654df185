package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrStructure marks a malformed selector program, as opposed to data that
// merely fails to match.
var ErrStructure = errors.New("malformed selector")

// IsSelector reports whether raw has the shape of a selector.
func IsSelector(raw any) bool {
	_, ok := raw.(map[string]any)
	return ok
}

// FromJSON decodes selector JSON into the generic shape accepted by Parse.
func FromJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode selector: %w", err)
	}
	return v, nil
}

// Keys returns the keys of m in sorted order. Selectors are always walked in
// this order so that templates, values and plans are deterministic.
func Keys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse converts a selector (or a template containing Placeholders) into a
// Node tree. Structural errors in combination operators and unknown operators
// are reported as ErrStructure.
func Parse(raw any) (Node, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: selector must be an object, got %T", ErrStructure, raw)
	}
	return parseSelector(m, nil)
}

// parseSelector parses m relative to prefix: field-operator keys apply to the
// value at prefix, other keys extend it.
func parseSelector(m map[string]any, prefix []string) (Node, error) {
	var (
		children []Node
		local    *Field
		localPos int
	)
	for _, key := range Keys(m) {
		val := m[key]
		switch {
		case IsCombination(key):
			node, err := parseCombination(Operator(key), val, prefix)
			if err != nil {
				return nil, err
			}
			children = append(children, node)

		case IsFieldOperator(key):
			cond, err := parseCondition(Operator(key), val)
			if err != nil {
				return nil, err
			}
			if local == nil {
				local = &Field{Name: strings.Join(prefix, "."), Path: prefix}
				localPos = len(children)
				children = append(children, nil)
			}
			local.Conds = append(local.Conds, cond)

		case strings.HasPrefix(key, "$"):
			return nil, fmt.Errorf("%w: unknown operator %s", ErrStructure, key)

		default:
			node, err := parseField(appendPath(prefix, key), val)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
	}
	if local != nil {
		children[localPos] = *local
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func parseField(path []string, val any) (Node, error) {
	if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
		return parseSelector(sub, path)
	}
	return Field{
		Name:  strings.Join(path, "."),
		Path:  path,
		Conds: []Condition{Comparison{Op: OpEq, Arg: operand(val)}},
	}, nil
}

func parseCombination(op Operator, val any, prefix []string) (Node, error) {
	if op == OpNot {
		sub, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $not must be an object", ErrStructure)
		}
		inner, err := parseSelector(sub, prefix)
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}

	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an array", ErrStructure, op)
	}
	children := make([]Node, 0, len(list))
	for _, item := range list {
		sub, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: elements of %s must be objects", ErrStructure, op)
		}
		child, err := parseSelector(sub, prefix)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	switch op {
	case OpAnd:
		return And{Children: children}, nil
	case OpOr:
		return Or{Children: children}, nil
	default:
		return Nor{Children: children}, nil
	}
}

func parseCondition(op Operator, val any) (Condition, error) {
	arg := operand(val)
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return Comparison{Op: op, Arg: arg}, nil
	case OpIn, OpNin, OpAll:
		return Membership{Op: op, Arg: arg}, nil
	case OpElemMatch, OpAllMatch, OpKeyMapMatch:
		sub, ok := val.(map[string]any)
		if !ok {
			return ElementMatch{Op: op}, nil
		}
		node, err := parseSelector(sub, nil)
		if err != nil {
			return nil, err
		}
		return ElementMatch{Op: op, Sub: node}, nil
	case OpSize:
		return Size{Arg: arg}, nil
	case OpExists:
		return Exists{Arg: arg}, nil
	case OpType:
		return TypeIs{Arg: arg}, nil
	case OpRegex:
		return Regex{Arg: arg}, nil
	case OpBeginsWith:
		return BeginsWith{Arg: arg}, nil
	case OpMod:
		return Mod{Arg: arg}, nil
	}
	return nil, fmt.Errorf("%w: unknown operator %s", ErrStructure, op)
}

func operand(val any) Operand {
	if p, ok := val.(Placeholder); ok {
		return Param(p.Index)
	}
	return Literal(val)
}

func appendPath(prefix []string, key string) []string {
	path := make([]string, 0, len(prefix)+1)
	path = append(path, prefix...)
	return append(path, strings.Split(key, ".")...)
}
