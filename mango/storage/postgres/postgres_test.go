package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/storage/memtable"
	"github.com/nonibytes/mango/mango/storage/postgres"
	"github.com/nonibytes/mango/mango/storage/sqltable"
)

func pgDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MANGO_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MANGO_TEST_PG_DSN not set")
	}
	return dsn
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%03d", n)
	}
}

func docs() []storage.Document {
	return []storage.Document{
		{"n": 5, "s": "pear"},
		{"n": 1.5, "s": "apple"},
		{"n": "7", "s": "Apricot"},
		{"n": nil},
		{"n": 3, "s": "ünïcode"},
	}
}

func ids(docs []storage.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d[storage.IDField].(string)
	}
	return out
}

func TestPostgresMatchesMemTable(t *testing.T) {
	dsn := pgDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := sqltable.DefaultOptions()
	opts.Table = fmt.Sprintf("docs_%d", time.Now().UnixNano())
	opts.Indexes = []string{"n", "s"}
	opts.NewID = seqIDs()
	pg, err := postgres.New(dsn, "mango_test").Open(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pg.DB().ExecContext(context.Background(), "DROP TABLE IF EXISTS "+opts.Table)
		_ = pg.Close()
	})

	mem := memtable.New(memtable.Options{NewID: seqIDs()})
	for _, d := range docs() {
		_, err := pg.Put(ctx, d)
		require.NoError(t, err)
		_, err = mem.Put(ctx, d)
		require.NoError(t, err)
	}

	queries := map[string]func(storage.Table) storage.Collection{
		"equals":     func(tb storage.Table) storage.Collection { return tb.Where("n").Equals(3) },
		"above":      func(tb storage.Table) storage.Collection { return tb.Where("n").Above(1.5) },
		"text below": func(tb storage.Table) storage.Collection { return tb.Where("s").Below("b") },
		"notEqual":   func(tb storage.Table) storage.Collection { return tb.Where("n").NotEqual(5) },
		"anyOf":      func(tb storage.Table) storage.Collection { return tb.Where("n").AnyOf([]any{5, "7"}) },
		"between":    func(tb storage.Table) storage.Collection { return tb.Where("n").Between(1, 5, true, false) },
		"startsWith": func(tb storage.Table) storage.Collection { return tb.Where("s").StartsWith("ün") },
		"compound":   func(tb storage.Table) storage.Collection { return tb.WhereEquals(map[string]any{"n": 5, "s": "pear"}) },
		"orderBy":    func(tb storage.Table) storage.Collection { return tb.OrderBy("n").Reverse() },
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			want, err := q(mem).ToArray(ctx)
			require.NoError(t, err)
			got, err := q(pg).ToArray(ctx)
			require.NoError(t, err)
			assert.Equal(t, ids(want), ids(got))
		})
	}

	kv := sqltable.NewKV(pg.DB(), pg.Dialect())
	require.NoError(t, kv.Set(ctx, "mango:test", "x"))
	v, found, err := kv.Get(ctx, "mango:test")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "x", v)
}

func TestConnectRejectsBadSchema(t *testing.T) {
	_, err := postgres.New("postgres://localhost/db", "bad-schema").Connect(context.Background())
	require.Error(t, err)
}
