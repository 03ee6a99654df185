// Package memtable is an in-memory document table with B-tree secondary
// indexes. It is the reference implementation of storage.Table.
package memtable

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/nonibytes/mango/mango/jsonval"
	"github.com/nonibytes/mango/mango/storage"
)

const degree = 32

// Options configures a Table.
type Options struct {
	// Indexes lists the dotted field paths to index.
	Indexes []string
	// NewID generates ids for documents stored without one.
	NewID func() string
}

// DefaultOptions returns options with no indexes and UUID ids.
func DefaultOptions() Options {
	return Options{NewID: uuid.NewString}
}

type record struct {
	id  string
	doc storage.Document
}

type indexItem struct {
	key any
	id  string
}

type index struct {
	path []string
	tree *btree.BTreeG[indexItem]
}

// Table stores documents ordered by _id. Index keys are string and number
// field values only; every other lookup falls back to a scan.
type Table struct {
	storage.SourceTable

	newID func() string

	mu      sync.RWMutex
	docs    *btree.BTreeG[record]
	indexes map[string]*index
}

var (
	_ storage.DocumentStore = (*Table)(nil)
	_ storage.Source        = (*Table)(nil)
)

// New creates an empty Table.
func New(opts Options) *Table {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	t := &Table{
		newID:   opts.NewID,
		docs:    btree.NewG[record](degree, func(a, b record) bool { return a.id < b.id }),
		indexes: make(map[string]*index, len(opts.Indexes)),
	}
	for _, field := range opts.Indexes {
		t.indexes[field] = &index{
			path: jsonval.SplitPath(field),
			tree: btree.NewG[indexItem](degree, lessItem),
		}
	}
	t.SourceTable = storage.SourceTable{Source: t}
	return t
}

func lessItem(a, b indexItem) bool {
	if c := jsonval.Collate(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

// Indexed reports whether field has an index.
func (t *Table) Indexed(field string) bool {
	_, ok := t.indexes[field]
	return ok
}

// Put stores a shallow copy of doc and returns its _id.
func (t *Table) Put(_ context.Context, doc storage.Document) (string, error) {
	stored := make(storage.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	id, ok := stored[storage.IDField].(string)
	if !ok || id == "" {
		id = t.newID()
		stored[storage.IDField] = id
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, found := t.docs.Get(record{id: id}); found {
		t.unindex(old)
	}
	rec := record{id: id, doc: stored}
	t.docs.ReplaceOrInsert(rec)
	t.index(rec)
	return id, nil
}

func (t *Table) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, found := t.docs.Delete(record{id: id}); found {
		t.unindex(old)
	}
	return nil
}

// Get returns the document stored under id.
func (t *Table) Get(id string) (storage.Document, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.docs.Get(record{id: id})
	return rec.doc, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.docs.Len()
}

func (t *Table) Close() error { return nil }

func (t *Table) index(rec record) {
	for _, idx := range t.indexes {
		if v, ok := jsonval.Lookup(rec.doc, idx.path); ok && jsonval.IsScalarKey(v) {
			idx.tree.ReplaceOrInsert(indexItem{key: v, id: rec.id})
		}
	}
}

func (t *Table) unindex(rec record) {
	for _, idx := range t.indexes {
		if v, ok := jsonval.Lookup(rec.doc, idx.path); ok && jsonval.IsScalarKey(v) {
			idx.tree.Delete(indexItem{key: v, id: rec.id})
		}
	}
}

// Fetch implements storage.Source.
func (t *Table) Fetch(ctx context.Context, req storage.FetchRequest) ([]storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	docs := t.fetch(req.Clause)
	t.mu.RUnlock()

	if req.Clause.Kind == storage.ClauseOrderBy {
		path := req.Clause.Path
		sort.SliceStable(docs, func(i, j int) bool {
			a, aok := jsonval.Lookup(docs[i], path)
			b, bok := jsonval.Lookup(docs[j], path)
			return jsonval.CollateField(a, aok, b, bok) < 0
		})
	}
	if req.Reverse {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}
	if req.Limit >= 0 && len(docs) > req.Limit {
		docs = docs[:req.Limit]
	}
	return docs, nil
}

// fetch returns the documents matching c in _id order. Callers hold mu.
func (t *Table) fetch(c storage.Clause) []storage.Document {
	if ids, ok := t.lookup(c); ok {
		sort.Strings(ids)
		out := make([]storage.Document, 0, len(ids))
		for _, id := range ids {
			rec, found := t.docs.Get(record{id: id})
			if found && c.Match(rec.doc) {
				out = append(out, rec.doc)
			}
		}
		return out
	}

	var out []storage.Document
	t.docs.Ascend(func(rec record) bool {
		if c.Match(rec.doc) {
			out = append(out, rec.doc)
		}
		return true
	})
	return out
}

// lookup answers c from an index. ok is false when c needs a scan.
func (t *Table) lookup(c storage.Clause) (ids []string, ok bool) {
	switch c.Kind {
	case storage.ClauseCompound:
		for _, name := range c.CompoundFields() {
			if idx, found := t.indexes[name]; found {
				return idx.equal(c.Fields[name]), true
			}
		}
		return nil, false
	case storage.ClauseAll, storage.ClauseOrderBy, storage.ClauseNotEqual:
		return nil, false
	}

	idx, found := t.indexes[c.Field]
	if !found {
		return nil, false
	}
	switch c.Kind {
	case storage.ClauseEquals:
		return idx.equal(c.Value), true
	case storage.ClauseAnyOf:
		seen := make(map[string]struct{})
		for _, v := range c.Values {
			for _, id := range idx.equal(v) {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		return ids, true
	case storage.ClauseAbove, storage.ClauseAboveOrEqual:
		return idx.scan(c.Value, func(any) bool { return true }), true
	case storage.ClauseBelow, storage.ClauseBelowOrEqual:
		limit := c.Value
		return idx.scan(minKey(c.Value), func(k any) bool { return jsonval.Collate(k, limit) <= 0 }), true
	case storage.ClauseBetween:
		upper := c.Upper
		return idx.scan(c.Lower, func(k any) bool { return jsonval.Collate(k, upper) <= 0 }), true
	case storage.ClauseStartsWith:
		prefix, isStr := c.Value.(string)
		if !isStr {
			return nil, true
		}
		return idx.scan(prefix, func(k any) bool {
			s, _ := k.(string)
			return strings.HasPrefix(s, prefix)
		}), true
	}
	return nil, false
}

// equal returns the ids whose key collates equal to v.
func (idx *index) equal(v any) []string {
	return idx.scan(v, func(k any) bool { return jsonval.Collate(k, v) == 0 })
}

// scan walks keys of the same type as from, starting at from, while more
// holds. It returns nil when from is not an index key.
func (idx *index) scan(from any, more func(any) bool) []string {
	if !jsonval.IsScalarKey(from) {
		return nil
	}
	rank := jsonval.Rank(from, true)
	var ids []string
	idx.tree.AscendGreaterOrEqual(indexItem{key: from}, func(it indexItem) bool {
		if jsonval.Rank(it.key, true) != rank || !more(it.key) {
			return false
		}
		ids = append(ids, it.id)
		return true
	})
	return ids
}

// minKey is the smallest index key of v's type.
func minKey(v any) any {
	if _, ok := v.(string); ok {
		return ""
	}
	return math.Inf(-1)
}
