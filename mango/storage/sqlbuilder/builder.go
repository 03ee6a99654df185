// Package sqlbuilder assembles SQL fragments and their bind arguments for the
// "?" and "$n" placeholder styles.
package sqlbuilder

import (
	"strconv"
	"strings"
)

type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota
	PlaceholderDollar
)

// FalseCond is a condition no row satisfies, valid in every dialect.
const FalseCond = "1=0"

type Builder struct {
	Style PlaceholderStyle
	args  []any
	conds []string
}

func New(style PlaceholderStyle) *Builder {
	return &Builder{Style: style}
}

// Arg binds v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	if b.Style == PlaceholderDollar {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

// List binds every value and returns "(p1, p2, ...)".
func (b *Builder) List(values []any) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = b.Arg(v)
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

// Where adds a condition joined with AND.
func (b *Builder) Where(cond string) {
	b.conds = append(b.conds, cond)
}

// WhereSQL renders " WHERE ..." or "" when no condition was added.
func (b *Builder) WhereSQL() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (b *Builder) Args() []any { return b.args }
func (b *Builder) Len() int    { return len(b.args) }

// Or joins conditions with OR, or returns FalseCond when there are none.
func Or(conds ...string) string {
	switch len(conds) {
	case 0:
		return FalseCond
	case 1:
		return conds[0]
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

// QuoteString renders s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
