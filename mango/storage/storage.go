// Package storage defines the index-store collaborator the planner drives and
// the durable key-value store used for persisted templates.
//
// A Table hands out lazy Collections. Nothing touches the backend until
// ToArray is called, and every backend only has to implement Source: the
// shared collection in this package handles reverse, filters and limit.
package storage

import (
	"context"
)

// IDField holds a document's primary key.
const IDField = "_id"

// Document is a JSON object as produced by encoding/json.
type Document = map[string]any

// Predicate selects documents in memory.
type Predicate func(Document) bool

// Table is an index-capable document table.
type Table interface {
	// OrderBy yields every document ordered by field in collation order.
	OrderBy(field string) Collection
	// Where starts a single-field clause.
	Where(field string) WhereClause
	// WhereEquals matches documents equal on every listed field.
	WhereEquals(fields map[string]any) Collection
	// Filter scans the table with pred.
	Filter(pred Predicate) Collection
}

// WhereClause narrows a table on one field. Comparisons only hold between a
// field value and an operand of the same type (number or string); backends
// without an index on the field fall back to a scan with the same semantics.
type WhereClause interface {
	Equals(v any) Collection
	Above(v any) Collection
	Below(v any) Collection
	AboveOrEqual(v any) Collection
	BelowOrEqual(v any) Collection
	NotEqual(v any) Collection
	AnyOf(values []any) Collection
	StartsWith(prefix string) Collection
	Between(lower, upper any, includeLower, includeUpper bool) Collection
}

// Collection is a lazy query over a Table.
type Collection interface {
	Reverse() Collection
	Limit(n int) Collection
	// And adds a filter; it is an alias of Filter.
	And(pred Predicate) Collection
	Filter(pred Predicate) Collection
	ToArray(ctx context.Context) ([]Document, error)
}

// Writer stores documents. Put assigns a UUID _id when the document has none
// and returns the id used.
type Writer interface {
	Put(ctx context.Context, doc Document) (string, error)
	Delete(ctx context.Context, id string) error
}

// DocumentStore is a Table that can also be written to.
type DocumentStore interface {
	Table
	Writer
	Close() error
}

// KV is durable string storage.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}
