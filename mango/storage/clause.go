package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nonibytes/mango/mango/jsonval"
)

// ClauseKind identifies the index lookup a Collection starts from.
type ClauseKind string

const (
	ClauseAll          ClauseKind = "all"
	ClauseOrderBy      ClauseKind = "orderBy"
	ClauseCompound     ClauseKind = "whereEquals"
	ClauseEquals       ClauseKind = "equals"
	ClauseAbove        ClauseKind = "above"
	ClauseBelow        ClauseKind = "below"
	ClauseAboveOrEqual ClauseKind = "aboveOrEqual"
	ClauseBelowOrEqual ClauseKind = "belowOrEqual"
	ClauseNotEqual     ClauseKind = "notEqual"
	ClauseAnyOf        ClauseKind = "anyOf"
	ClauseStartsWith   ClauseKind = "startsWith"
	ClauseBetween      ClauseKind = "between"
)

// Clause is the backend-independent description of a lookup.
type Clause struct {
	Kind  ClauseKind
	Field string
	Path  []string

	// Value is the operand of single-value clauses and the prefix of StartsWith.
	Value any
	// Values is the operand of AnyOf.
	Values []any
	// Fields holds the compound equality of ClauseCompound.
	Fields map[string]any

	Lower, Upper               any
	IncludeLower, IncludeUpper bool
}

// FieldClause returns a clause of kind on field.
func FieldClause(kind ClauseKind, field string) Clause {
	return Clause{Kind: kind, Field: field, Path: jsonval.SplitPath(field)}
}

// CompoundFields returns the compound equality fields sorted by name.
func (c Clause) CompoundFields() []string {
	names := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Match evaluates the clause against doc. Backends use it for scans and it
// defines the semantics their index lookups must reproduce.
func (c Clause) Match(doc Document) bool {
	switch c.Kind {
	case ClauseAll, ClauseOrderBy:
		return true
	case ClauseCompound:
		for name, want := range c.Fields {
			v, ok := jsonval.Lookup(doc, jsonval.SplitPath(name))
			if !ok || !sameScalar(v, want) {
				return false
			}
		}
		return true
	}

	v, ok := jsonval.Lookup(doc, c.Path)
	if !ok {
		return false
	}
	switch c.Kind {
	case ClauseEquals:
		return sameScalar(v, c.Value)
	case ClauseNotEqual:
		return !sameScalar(v, c.Value)
	case ClauseAbove:
		return compares(v, c.Value, func(n int) bool { return n > 0 })
	case ClauseAboveOrEqual:
		return compares(v, c.Value, func(n int) bool { return n >= 0 })
	case ClauseBelow:
		return compares(v, c.Value, func(n int) bool { return n < 0 })
	case ClauseBelowOrEqual:
		return compares(v, c.Value, func(n int) bool { return n <= 0 })
	case ClauseAnyOf:
		for _, want := range c.Values {
			if sameScalar(v, want) {
				return true
			}
		}
		return false
	case ClauseStartsWith:
		s, ok := v.(string)
		prefix, pok := c.Value.(string)
		return ok && pok && strings.HasPrefix(s, prefix)
	case ClauseBetween:
		return c.inRange(v)
	}
	return false
}

func (c Clause) inRange(v any) bool {
	lo, ok := jsonval.Compare(v, c.Lower)
	if !ok || lo < 0 || (lo == 0 && !c.IncludeLower) {
		return false
	}
	hi, ok := jsonval.Compare(v, c.Upper)
	if !ok || hi > 0 || (hi == 0 && !c.IncludeUpper) {
		return false
	}
	return true
}

func (c Clause) String() string {
	switch c.Kind {
	case ClauseAll:
		return "all()"
	case ClauseOrderBy:
		return fmt.Sprintf("orderBy(%q)", c.Field)
	case ClauseCompound:
		parts := make([]string, 0, len(c.Fields))
		for _, name := range c.CompoundFields() {
			parts = append(parts, fmt.Sprintf("%q: %v", name, c.Fields[name]))
		}
		return "where({" + strings.Join(parts, ", ") + "})"
	case ClauseAnyOf:
		return fmt.Sprintf("where(%q).anyOf(%v)", c.Field, c.Values)
	case ClauseBetween:
		return fmt.Sprintf("where(%q).between(%v, %v, %t, %t)", c.Field, c.Lower, c.Upper, c.IncludeLower, c.IncludeUpper)
	}
	return fmt.Sprintf("where(%q).%s(%v)", c.Field, c.Kind, c.Value)
}

// sameScalar is equality restricted to values of one comparable type.
func sameScalar(v, want any) bool {
	n, ok := jsonval.Compare(v, want)
	return ok && n == 0
}

func compares(v, want any, accept func(int) bool) bool {
	n, ok := jsonval.Compare(v, want)
	return ok && accept(n)
}
