package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/template"
)

// Strategy names the index access a plan starts from.
type Strategy string

const (
	StrategyMultiEq    Strategy = "multiEq"
	StrategyAnyOf      Strategy = "anyOf"
	StrategyBetween    Strategy = "between"
	StrategyEq         Strategy = "eq"
	StrategyGt         Strategy = "gt"
	StrategyGte        Strategy = "gte"
	StrategyLt         Strategy = "lt"
	StrategyLte        Strategy = "lte"
	StrategyNe         Strategy = "ne"
	StrategyStartsWith Strategy = "startsWith"
	StrategyOrderBy    Strategy = "orderBy"
	StrategyNone       Strategy = "none"
)

// Decision is a pushdown choice with its operands bound.
type Decision struct {
	Strategy Strategy
	Field    string

	// Fields holds the equalities of a multiEq decision.
	Fields map[string]any
	// Value is the operand of single comparators and startsWith.
	Value any
	// Values is the operand list of anyOf.
	Values []any

	Lower, Upper               any
	IncludeLower, IncludeUpper bool

	// Desc is set on an orderBy decision that reads in descending order.
	Desc bool
}

// String renders the decision as the table call it issues.
func (d Decision) String() string {
	switch d.Strategy {
	case StrategyMultiEq:
		return whereEqualsString(d.Fields)
	case StrategyAnyOf:
		return fmt.Sprintf("where(%q).anyOf(%s)", d.Field, jsonList(d.Values))
	case StrategyBetween:
		return fmt.Sprintf("where(%q).between(%s, %s, %t, %t)", d.Field,
			template.JSONString(d.Lower), template.JSONString(d.Upper), d.IncludeLower, d.IncludeUpper)
	case StrategyEq, StrategyGt, StrategyGte, StrategyLt, StrategyLte, StrategyNe, StrategyStartsWith:
		return fmt.Sprintf("where(%q).%s(%s)", d.Field, whereMethod[d.Strategy], template.JSONString(d.Value))
	case StrategyOrderBy:
		if d.Desc {
			return fmt.Sprintf("orderBy(%q).reverse()", d.Field)
		}
		return fmt.Sprintf("orderBy(%q)", d.Field)
	}
	return "filter(all)"
}

var whereMethod = map[Strategy]string{
	StrategyEq:         "equals",
	StrategyGt:         "above",
	StrategyGte:        "aboveOrEqual",
	StrategyLt:         "below",
	StrategyLte:        "belowOrEqual",
	StrategyNe:         "notEqual",
	StrategyStartsWith: "startsWith",
}

func whereEqualsString(fields map[string]any) string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, f := range names {
		parts[i] = fmt.Sprintf("%q: %s", f, template.JSONString(fields[f]))
	}
	return "where({" + strings.Join(parts, ", ") + "})"
}

func jsonList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = template.JSONString(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// open issues the decision's index call against t. StrategyNone and
// StrategyOrderBy are handled by the caller.
func (d Decision) open(t storage.Table) storage.Collection {
	switch d.Strategy {
	case StrategyMultiEq:
		return t.WhereEquals(d.Fields)
	case StrategyAnyOf:
		return t.Where(d.Field).AnyOf(d.Values)
	case StrategyBetween:
		return t.Where(d.Field).Between(d.Lower, d.Upper, d.IncludeLower, d.IncludeUpper)
	case StrategyEq:
		return t.Where(d.Field).Equals(d.Value)
	case StrategyGt:
		return t.Where(d.Field).Above(d.Value)
	case StrategyGte:
		return t.Where(d.Field).AboveOrEqual(d.Value)
	case StrategyLt:
		return t.Where(d.Field).Below(d.Value)
	case StrategyLte:
		return t.Where(d.Field).BelowOrEqual(d.Value)
	case StrategyNe:
		return t.Where(d.Field).NotEqual(d.Value)
	case StrategyStartsWith:
		prefix, _ := d.Value.(string)
		return t.Where(d.Field).StartsWith(prefix)
	}
	return nil
}
