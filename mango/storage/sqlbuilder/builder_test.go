package sqlbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderPlaceholders(t *testing.T) {
	q := New(PlaceholderQuestion)
	assert.Equal(t, "?", q.Arg(1))
	assert.Equal(t, "(?, ?)", q.List([]any{"a", "b"}))
	assert.Equal(t, []any{1, "a", "b"}, q.Args())

	d := New(PlaceholderDollar)
	assert.Equal(t, "$1", d.Arg(1))
	assert.Equal(t, "($2, $3)", d.List([]any{"a", "b"}))
	assert.Equal(t, 3, d.Len())
}

func TestBuilderWhere(t *testing.T) {
	b := New(PlaceholderDollar)
	assert.Equal(t, "", b.WhereSQL())

	b.Where("a = " + b.Arg(1))
	b.Where(Or("b = "+b.Arg(2), "c = "+b.Arg(3)))
	assert.Equal(t, " WHERE a = $1 AND (b = $2 OR c = $3)", b.WhereSQL())
}

func TestOrAndQuote(t *testing.T) {
	assert.Equal(t, FalseCond, Or())
	assert.Equal(t, "x", Or("x"))
	assert.Equal(t, `'it''s'`, QuoteString("it's"))
}
