package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/storage/memtable"
	"github.com/nonibytes/mango/mango/storage/sqlite"
	"github.com/nonibytes/mango/mango/storage/sqltable"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%03d", n)
	}
}

func fixtureDocs() []storage.Document {
	return []storage.Document{
		{"n": 5, "s": "pear", "flag": true, "meta": map[string]any{"k": "x"}},
		{"n": 1.5, "s": "apple", "meta": map[string]any{"k": 2}},
		{"n": "7", "s": "apricot"},
		{"n": nil, "s": "ünïcode"},
		{"s": "banana", "n": 3},
		{"n": []any{1}, "s": 9},
		{"n": -2, "s": "Zebra"},
		{"other": "x"},
	}
}

func newSQLiteTable(t *testing.T, indexes ...string) *sqltable.Table {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	opts := sqltable.DefaultOptions()
	opts.Indexes = indexes
	opts.NewID = seqIDs()
	tbl, err := sqlite.New(path).Open(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })

	for _, d := range fixtureDocs() {
		_, err := tbl.Put(ctx, d)
		require.NoError(t, err)
	}
	return tbl
}

func newMemTable(t *testing.T) *memtable.Table {
	t.Helper()
	tbl := memtable.New(memtable.Options{NewID: seqIDs()})
	for _, d := range fixtureDocs() {
		_, err := tbl.Put(context.Background(), d)
		require.NoError(t, err)
	}
	return tbl
}

func ids(docs []storage.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d[storage.IDField].(string)
	}
	return out
}

func queries() map[string]func(storage.Table) storage.Collection {
	return map[string]func(storage.Table) storage.Collection{
		"all":              func(tb storage.Table) storage.Collection { return tb.Filter(func(storage.Document) bool { return true }) },
		"equals":           func(tb storage.Table) storage.Collection { return tb.Where("n").Equals(3) },
		"equals float":     func(tb storage.Table) storage.Collection { return tb.Where("n").Equals(1.5) },
		"equals string":    func(tb storage.Table) storage.Collection { return tb.Where("n").Equals("7") },
		"equals bool":      func(tb storage.Table) storage.Collection { return tb.Where("flag").Equals(true) },
		"nested equals":    func(tb storage.Table) storage.Collection { return tb.Where("meta.k").Equals("x") },
		"above":            func(tb storage.Table) storage.Collection { return tb.Where("n").Above(1.5) },
		"aboveOrEqual":     func(tb storage.Table) storage.Collection { return tb.Where("n").AboveOrEqual(1.5) },
		"below":            func(tb storage.Table) storage.Collection { return tb.Where("n").Below(5) },
		"belowOrEqual":     func(tb storage.Table) storage.Collection { return tb.Where("n").BelowOrEqual(5) },
		"string below":     func(tb storage.Table) storage.Collection { return tb.Where("s").Below("b") },
		"string above":     func(tb storage.Table) storage.Collection { return tb.Where("s").Above("Zebra") },
		"notEqual":         func(tb storage.Table) storage.Collection { return tb.Where("n").NotEqual(5) },
		"notEqual bool":    func(tb storage.Table) storage.Collection { return tb.Where("n").NotEqual(false) },
		"anyOf":            func(tb storage.Table) storage.Collection { return tb.Where("n").AnyOf([]any{5, "7", -2}) },
		"anyOf empty":      func(tb storage.Table) storage.Collection { return tb.Where("n").AnyOf(nil) },
		"between":          func(tb storage.Table) storage.Collection { return tb.Where("n").Between(-2, 5, false, true) },
		"between incl":     func(tb storage.Table) storage.Collection { return tb.Where("n").Between(-2, 5, true, true) },
		"between mixed":    func(tb storage.Table) storage.Collection { return tb.Where("n").Between(1, "z", true, true) },
		"startsWith":       func(tb storage.Table) storage.Collection { return tb.Where("s").StartsWith("ap") },
		"startsWith utf8":  func(tb storage.Table) storage.Collection { return tb.Where("s").StartsWith("ün") },
		"compound":         func(tb storage.Table) storage.Collection { return tb.WhereEquals(map[string]any{"n": 3, "s": "banana"}) },
		"orderBy":          func(tb storage.Table) storage.Collection { return tb.OrderBy("n") },
		"orderBy reversed": func(tb storage.Table) storage.Collection { return tb.OrderBy("s").Reverse().Limit(3) },
		"reverse limit":    func(tb storage.Table) storage.Collection { return tb.Where("n").Above(-10).Reverse().Limit(2) },
	}
}

func TestSQLiteMatchesMemTable(t *testing.T) {
	ctx := context.Background()
	mem := newMemTable(t)
	plain := newSQLiteTable(t)
	indexed := newSQLiteTable(t, "n", "s", "meta.k")

	for name, q := range queries() {
		t.Run(name, func(t *testing.T) {
			want, err := q(mem).ToArray(ctx)
			require.NoError(t, err)

			got, err := q(plain).ToArray(ctx)
			require.NoError(t, err)
			assert.Equal(t, ids(want), ids(got))

			got, err = q(indexed).ToArray(ctx)
			require.NoError(t, err)
			assert.Equal(t, ids(want), ids(got))
		})
	}
}

func TestSQLitePutReplaceDelete(t *testing.T) {
	ctx := context.Background()
	tbl := newSQLiteTable(t)

	_, err := tbl.Put(ctx, storage.Document{storage.IDField: "id001", "n": 42})
	require.NoError(t, err)

	docs, err := tbl.Where("n").Equals(42).ToArray(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, float64(42), docs[0]["n"])

	require.NoError(t, tbl.Delete(ctx, "id001"))
	docs, err = tbl.Where("n").Equals(42).ToArray(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	tbl := newSQLiteTable(t)
	kv := sqltable.NewKV(tbl.DB(), tbl.Dialect())

	_, found, err := kv.Get(ctx, "mango:templates")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, "mango:templates", `{"v":1,"e":[]}`))
	require.NoError(t, kv.Set(ctx, "mango:templates", `{"v":1,"e":[["k",{}]]}`))
	v, found, err := kv.Get(ctx, "mango:templates")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"v":1,"e":[["k",{}]]}`, v)
}

func TestSQLiteRejectsBadTableName(t *testing.T) {
	opts := sqltable.DefaultOptions()
	opts.Table = "docs; DROP TABLE x"
	_, err := sqlite.New(filepath.Join(t.TempDir(), "bad.db")).Open(context.Background(), opts)
	require.Error(t, err)
}
