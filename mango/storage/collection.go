package storage

import (
	"context"
	"fmt"
	"strings"
)

// FetchRequest is what a Collection asks its Source for.
type FetchRequest struct {
	Clause  Clause
	Reverse bool
	// Limit caps the result when >= 0. It is only set when no in-memory
	// filter follows, so the source may apply it directly.
	Limit int
}

// Source is the part a backend implements. Fetch returns the documents
// selected by the clause in the table's natural order, or in collation order
// of the field for ClauseOrderBy, honoring Reverse and Limit.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Document, error)
}

// lazyCollection records a query context and runs it on ToArray. The order
// of Reverse, Limit and filter calls does not matter: filters always apply
// before the limit, and the smallest limit wins.
type lazyCollection struct {
	src     Source
	clause  Clause
	reverse bool
	filters []Predicate
	limit   int
}

// NewCollection returns a lazy Collection over src starting from clause.
func NewCollection(src Source, clause Clause) Collection {
	return &lazyCollection{src: src, clause: clause, limit: -1}
}

func (c *lazyCollection) clone() *lazyCollection {
	out := *c
	out.filters = append([]Predicate(nil), c.filters...)
	return &out
}

func (c *lazyCollection) Reverse() Collection {
	out := c.clone()
	out.reverse = !out.reverse
	return out
}

func (c *lazyCollection) Limit(n int) Collection {
	if n < 0 {
		n = 0
	}
	out := c.clone()
	if out.limit < 0 || n < out.limit {
		out.limit = n
	}
	return out
}

func (c *lazyCollection) And(pred Predicate) Collection {
	return c.Filter(pred)
}

func (c *lazyCollection) Filter(pred Predicate) Collection {
	out := c.clone()
	out.filters = append(out.filters, pred)
	return out
}

func (c *lazyCollection) ToArray(ctx context.Context) ([]Document, error) {
	req := FetchRequest{Clause: c.clause, Reverse: c.reverse, Limit: -1}
	if len(c.filters) == 0 {
		req.Limit = c.limit
	}
	docs, err := c.src.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.clause, err)
	}

	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if c.limit >= 0 && len(out) >= c.limit {
			break
		}
		if c.accept(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *lazyCollection) accept(doc Document) bool {
	for _, f := range c.filters {
		if !f(doc) {
			return false
		}
	}
	return true
}

// String renders the collection chain for explain output.
func (c *lazyCollection) String() string {
	var b strings.Builder
	b.WriteString(c.clause.String())
	if c.reverse {
		b.WriteString(".reverse()")
	}
	for range c.filters {
		b.WriteString(".and(fn)")
	}
	if c.limit >= 0 {
		fmt.Fprintf(&b, ".limit(%d)", c.limit)
	}
	return b.String()
}

// SourceTable implements Table over a Source.
type SourceTable struct {
	Source Source
}

func (t SourceTable) OrderBy(field string) Collection {
	return NewCollection(t.Source, FieldClause(ClauseOrderBy, field))
}

func (t SourceTable) Where(field string) WhereClause {
	return whereClause{src: t.Source, field: field}
}

func (t SourceTable) WhereEquals(fields map[string]any) Collection {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return NewCollection(t.Source, Clause{Kind: ClauseCompound, Fields: copied})
}

func (t SourceTable) Filter(pred Predicate) Collection {
	return NewCollection(t.Source, Clause{Kind: ClauseAll}).Filter(pred)
}

// All returns every document in natural order.
func (t SourceTable) All() Collection {
	return NewCollection(t.Source, Clause{Kind: ClauseAll})
}

type whereClause struct {
	src   Source
	field string
}

func (w whereClause) with(kind ClauseKind, v any) Collection {
	c := FieldClause(kind, w.field)
	c.Value = v
	return NewCollection(w.src, c)
}

func (w whereClause) Equals(v any) Collection       { return w.with(ClauseEquals, v) }
func (w whereClause) Above(v any) Collection        { return w.with(ClauseAbove, v) }
func (w whereClause) Below(v any) Collection        { return w.with(ClauseBelow, v) }
func (w whereClause) AboveOrEqual(v any) Collection { return w.with(ClauseAboveOrEqual, v) }
func (w whereClause) BelowOrEqual(v any) Collection { return w.with(ClauseBelowOrEqual, v) }
func (w whereClause) NotEqual(v any) Collection     { return w.with(ClauseNotEqual, v) }
func (w whereClause) StartsWith(p string) Collection {
	return w.with(ClauseStartsWith, p)
}

func (w whereClause) AnyOf(values []any) Collection {
	c := FieldClause(ClauseAnyOf, w.field)
	c.Values = append([]any(nil), values...)
	return NewCollection(w.src, c)
}

func (w whereClause) Between(lower, upper any, includeLower, includeUpper bool) Collection {
	c := FieldClause(ClauseBetween, w.field)
	c.Lower, c.Upper = lower, upper
	c.IncludeLower, c.IncludeUpper = includeLower, includeUpper
	return NewCollection(w.src, c)
}
