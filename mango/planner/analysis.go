package planner

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nonibytes/mango/mango/compiler"
	"github.com/nonibytes/mango/mango/jsonval"
	"github.com/nonibytes/mango/mango/selector"
)

// location addresses a key inside a template shape: string steps index maps,
// int steps index $and arrays.
type location []any

// candidate is one pushable conjunct of a template. Its operand stays a
// placeholder index; eligibility is decided per binding.
type candidate struct {
	id    int
	op    selector.Operator
	field string
	param int
	loc   location
}

// Analysis is the value-independent part of planning, cached per template key.
type Analysis struct {
	Key   string
	Shape map[string]any

	eqs    []candidate
	anyOf  []candidate
	lowers []candidate
	uppers []candidate
	single []candidate
	prefix []candidate
	count  int

	residuals *xsync.MapOf[string, *residual]
}

// residual is the compiled remainder of a template after a pushdown.
type residual struct {
	shape map[string]any
	fn    compiler.Func
}

// Analyze collects the pushable conjuncts of a normalized shape. Only
// conjuncts reachable through implicit and explicit $and are candidates;
// anything under $or, $nor, $not or a sub-selector operator stays residual.
func Analyze(key string, shape map[string]any) *Analysis {
	a := &Analysis{
		Key:       key,
		Shape:     shape,
		residuals: xsync.NewMapOf[string, *residual](),
	}
	a.walk(shape, nil, nil)
	return a
}

func (a *Analysis) walk(m map[string]any, prefix []string, loc location) {
	for _, key := range selector.Keys(m) {
		val := m[key]
		here := extend(loc, key)
		switch {
		case selector.Operator(key) == selector.OpAnd:
			list, _ := val.([]any)
			for i, item := range list {
				if sub, ok := item.(map[string]any); ok {
					a.walk(sub, prefix, extend(here, i))
				}
			}
		case selector.IsFieldOperator(key):
			if len(prefix) == 0 {
				continue
			}
			if ph, ok := val.(selector.Placeholder); ok {
				a.add(selector.Operator(key), strings.Join(prefix, "."), ph.Index, here)
			}
		case strings.HasPrefix(key, "$"):
			// $or, $nor, $not and unknown operators are never pushed.
		default:
			path := appendPath(prefix, key)
			switch v := val.(type) {
			case map[string]any:
				if len(v) > 0 {
					a.walk(v, path, here)
				}
			case selector.Placeholder:
				a.add(selector.OpEq, strings.Join(path, "."), v.Index, here)
			}
		}
	}
}

func (a *Analysis) add(op selector.Operator, field string, param int, loc location) {
	c := candidate{id: a.count, op: op, field: field, param: param, loc: loc}
	switch op {
	case selector.OpEq:
		a.eqs = append(a.eqs, c)
	case selector.OpIn:
		a.anyOf = append(a.anyOf, c)
	case selector.OpGt, selector.OpGte:
		a.lowers = append(a.lowers, c)
		a.single = append(a.single, c)
	case selector.OpLt, selector.OpLte:
		a.uppers = append(a.uppers, c)
		a.single = append(a.single, c)
	case selector.OpNe:
		a.single = append(a.single, c)
	case selector.OpBeginsWith:
		a.prefix = append(a.prefix, c)
	default:
		return
	}
	a.count++
}

// choice is a bound pushdown: the decision and the candidates it consumes.
type choice struct {
	decision Decision
	used     []candidate
}

// choose picks the highest-priority candidate whose bound operands can be
// answered exactly by an index: multi-equality, then $in, then a range on
// one field, then a single comparator, then $beginsWith.
func (a *Analysis) choose(values []any) (choice, bool) {
	if ch, ok := a.chooseEquals(values); ok {
		return ch, true
	}
	for _, c := range a.anyOf {
		list, ok := scalarList(bind(c, values))
		if !ok {
			continue
		}
		return choice{
			decision: Decision{Strategy: StrategyAnyOf, Field: c.field, Values: list},
			used:     []candidate{c},
		}, true
	}
	if ch, ok := a.chooseBetween(values); ok {
		return ch, true
	}
	for _, c := range a.single {
		v := bind(c, values)
		if !jsonval.IsScalarKey(v) {
			continue
		}
		return choice{
			decision: Decision{Strategy: comparatorStrategy[c.op], Field: c.field, Value: v},
			used:     []candidate{c},
		}, true
	}
	for _, c := range a.prefix {
		if s, ok := bind(c, values).(string); ok {
			return choice{
				decision: Decision{Strategy: StrategyStartsWith, Field: c.field, Value: s},
				used:     []candidate{c},
			}, true
		}
	}
	return choice{}, false
}

func (a *Analysis) chooseEquals(values []any) (choice, bool) {
	var ch choice
	for _, c := range a.eqs {
		v := bind(c, values)
		if !jsonval.IsScalarKey(v) {
			continue
		}
		if ch.decision.Fields == nil {
			ch.decision = Decision{Strategy: StrategyMultiEq, Fields: map[string]any{}}
		}
		if _, dup := ch.decision.Fields[c.field]; dup {
			continue
		}
		ch.decision.Fields[c.field] = v
		ch.used = append(ch.used, c)
	}
	return ch, len(ch.used) > 0
}

func (a *Analysis) chooseBetween(values []any) (choice, bool) {
	for _, lo := range a.lowers {
		lv := bind(lo, values)
		if !jsonval.IsScalarKey(lv) {
			continue
		}
		for _, hi := range a.uppers {
			if hi.field != lo.field {
				continue
			}
			hv := bind(hi, values)
			if !jsonval.IsScalarKey(hv) {
				continue
			}
			return choice{
				decision: Decision{
					Strategy:     StrategyBetween,
					Field:        lo.field,
					Lower:        lv,
					Upper:        hv,
					IncludeLower: lo.op == selector.OpGte,
					IncludeUpper: hi.op == selector.OpLte,
				},
				used: []candidate{lo, hi},
			}, true
		}
	}
	return choice{}, false
}

var comparatorStrategy = map[selector.Operator]Strategy{
	selector.OpGt:  StrategyGt,
	selector.OpGte: StrategyGte,
	selector.OpLt:  StrategyLt,
	selector.OpLte: StrategyLte,
	selector.OpNe:  StrategyNe,
}

func bind(c candidate, values []any) any {
	return selector.Param(c.param).Resolve(values)
}

// scalarList accepts a $in operand only when every element is an index key.
func scalarList(v any) ([]any, bool) {
	list, ok := jsonval.List(v)
	if !ok {
		return nil, false
	}
	for _, x := range list {
		if !jsonval.IsScalarKey(x) {
			return nil, false
		}
	}
	return list, true
}

func extend(loc location, step any) location {
	out := make(location, len(loc), len(loc)+1)
	copy(out, loc)
	return append(out, step)
}

func appendPath(prefix []string, key string) []string {
	path := make([]string, 0, len(prefix)+1)
	path = append(path, prefix...)
	return append(path, strings.Split(key, ".")...)
}
