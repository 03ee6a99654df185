package planner_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/nonibytes/mango/mango/planner"
	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/storage/memtable"
	"github.com/nonibytes/mango/mango/storage/sqlite"
	"github.com/nonibytes/mango/mango/storage/sqltable"
	"github.com/nonibytes/mango/mango/template"
)

var indexes = []string{"age", "city", "name", "meta.score"}

func people() []storage.Document {
	return []storage.Document{
		{"name": "Ada", "age": 36, "city": "London", "active": true, "tags": []any{"math"}, "meta": map[string]any{"score": 9}},
		{"name": "Alan", "age": 41, "city": "Wilmslow", "active": false, "meta": map[string]any{"score": 7}},
		{"name": "Barbara", "age": 30, "city": "NYC", "meta": map[string]any{"score": "high"}},
		{"name": "Bob", "age": "30", "city": "NYC"},
		{"name": "Carol", "age": 30.5, "city": "LA", "active": true},
		{"name": "Dennis", "age": nil, "city": 5},
		{"name": "Edsger", "city": "Austin", "tags": []any{"graphs", "math"}},
		{"name": "Grace", "age": 85, "city": "NYC", "meta": map[string]any{"score": 10}},
		{"name": "Ünal", "age": 22, "city": "Izmir"},
		{"age": []any{30}, "city": []any{"NYC"}},
	}
}

func selectors() []map[string]any {
	return []map[string]any{
		{},
		{"age": 30},
		{"age": "30"},
		{"city": "NYC", "age": 30},
		{"age": map[string]any{"$gt": 25}, "city": "NYC"},
		{"age": map[string]any{"$gte": 30, "$lt": 41}},
		{"age": map[string]any{"$gt": 30, "$lte": 85}},
		{"$and": []any{map[string]any{"age": map[string]any{"$gt": 20}}, map[string]any{"age": map[string]any{"$lt": 40}}}},
		{"age": map[string]any{"$lt": 36}},
		{"age": map[string]any{"$ne": 30}},
		{"age": map[string]any{"$gt": "29"}},
		{"name": map[string]any{"$beginsWith": "A"}},
		{"name": map[string]any{"$beginsWith": "Ü"}},
		{"city": map[string]any{"$in": []any{"NYC", 5}}},
		{"city": map[string]any{"$in": []any{"NYC", nil}}},
		{"city": map[string]any{"$in": []any{"LA"}}, "age": map[string]any{"$gte": 30}},
		{"active": true},
		{"active": map[string]any{"$ne": true}},
		{"meta": map[string]any{"score": map[string]any{"$lte": 9}}},
		{"meta.score": map[string]any{"$gte": 9}, "name": map[string]any{"$regex": "^G"}},
		{"$or": []any{map[string]any{"age": 30}, map[string]any{"city": "LA"}}},
		{"age": 30, "$and": []any{map[string]any{"age": 31}}},
		{"tags": map[string]any{"$all": []any{"math"}}, "name": map[string]any{"$gt": "B"}},
		{"city": "NYC", "age": map[string]any{"$in": []any{30, 85}}, "name": map[string]any{"$regex": "^B"}},
		{"age": map[string]any{"$exists": false}},
		{"$not": map[string]any{"city": "NYC"}},
	}
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%03d", n)
	}
}

type table interface {
	storage.Table
	Put(ctx context.Context, doc storage.Document) (string, error)
}

func load(t *testing.T, tbl table) {
	t.Helper()
	for _, d := range people() {
		_, err := tbl.Put(context.Background(), d)
		require.NoError(t, err)
	}
}

func ids(docs []storage.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d[storage.IDField].(string)
	}
	return out
}

// scan evaluates sel with the full compiled predicate and no index use.
func scan(t *testing.T, tbl storage.Table, sel map[string]any) []string {
	t.Helper()
	tmpl := template.Normalize(sel)
	fn, err := planner.CompileShape(tmpl.Shape)
	require.NoError(t, err)
	docs, err := tbl.Filter(func(d storage.Document) bool { return fn(d, tmpl.Values) }).ToArray(context.Background())
	require.NoError(t, err)
	return ids(docs)
}

func TestPlannedResultsEqualFullScan(t *testing.T) {
	ctx := context.Background()

	mem := memtable.New(memtable.Options{Indexes: indexes, NewID: seqIDs()})
	load(t, mem)

	opts := sqltable.DefaultOptions()
	opts.Indexes = indexes
	opts.NewID = seqIDs()
	lite, err := sqlite.New(filepath.Join(t.TempDir(), "planner.db")).Open(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	load(t, lite)

	tables := map[string]storage.Table{"memtable": mem, "sqlite": lite}
	p := planner.New(planner.DefaultOptions())

	for _, sel := range selectors() {
		want := scan(t, mem, sel)
		for name, tbl := range tables {
			t.Run(fmt.Sprintf("%s/%s", name, template.JSONString(sel)), func(t *testing.T) {
				plan, err := p.Plan(tbl, planner.Query{Selector: sel})
				require.NoError(t, err)
				docs, err := plan.Collection.ToArray(ctx)
				require.NoError(t, err)
				assert.ElementsMatch(t, want, ids(docs), "plan %v", plan.Steps)
			})
		}
	}
}

func TestSortedPlanOrdersLikeCollation(t *testing.T) {
	ctx := context.Background()
	mem := memtable.New(memtable.Options{Indexes: indexes, NewID: seqIDs()})
	load(t, mem)

	limit := 4
	plan, err := planner.New(planner.DefaultOptions()).Plan(mem, planner.Query{
		Selector: map[string]any{"city": map[string]any{"$in": []any{"NYC", "LA", "London"}}},
		Sort:     []planner.SortField{{Field: "age"}},
		Limit:    &limit,
	})
	require.NoError(t, err)
	docs, err := plan.Collection.ToArray(ctx)
	require.NoError(t, err)

	// numbers before strings: 30, 30.5, 36, 85, then "30"
	assert.Equal(t, []string{"id003", "id005", "id001", "id008"}, ids(docs))
}
