package sqltable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nonibytes/mango/mango/jsonval"
	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/storage/sqlbuilder"
)

// Options configures a Table.
type Options struct {
	Table   string
	Indexes []string
	NewID   func() string
	Logger  *zap.Logger
}

// DefaultOptions stores documents in table "documents" with UUID ids.
func DefaultOptions() Options {
	return Options{Table: "documents", NewID: uuid.NewString}
}

// Table is a storage.DocumentStore over database/sql.
type Table struct {
	storage.SourceTable

	db      *sql.DB
	dialect Dialect
	sql     SQL
	newID   func() string
	log     *zap.Logger
}

var (
	_ storage.DocumentStore = (*Table)(nil)
	_ storage.Source        = (*Table)(nil)
)

// Open migrates the schema and returns a Table. The Table owns db.
func Open(ctx context.Context, db *sql.DB, d Dialect, opts Options) (*Table, error) {
	def := DefaultOptions()
	if opts.Table == "" {
		opts.Table = def.Table
	}
	if opts.NewID == nil {
		opts.NewID = def.NewID
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	indexes := make(map[string][]string, len(opts.Indexes))
	for _, f := range opts.Indexes {
		indexes[f] = jsonval.SplitPath(f)
	}
	if err := Migrate(ctx, db, d, opts.Table, indexes); err != nil {
		return nil, err
	}

	t := &Table{
		db:      db,
		dialect: d,
		sql:     d.SQL(opts.Table),
		newID:   opts.NewID,
		log:     opts.Logger.With(zap.String("backend", string(d.Backend())), zap.String("table", opts.Table)),
	}
	t.SourceTable = storage.SourceTable{Source: t}
	return t, nil
}

// DB exposes the underlying handle, e.g. for a KV sharing the database.
func (t *Table) DB() *sql.DB { return t.db }

func (t *Table) Dialect() Dialect { return t.dialect }

func (t *Table) Close() error { return t.db.Close() }

func (t *Table) Put(ctx context.Context, doc storage.Document) (string, error) {
	stored := make(storage.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	id, ok := stored[storage.IDField].(string)
	if !ok || id == "" {
		id = t.newID()
		stored[storage.IDField] = id
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode document %s: %w", id, err)
	}
	if _, err := t.db.ExecContext(ctx, t.sql.UpsertDoc, id, string(data)); err != nil {
		return "", fmt.Errorf("put %s: %w", id, err)
	}
	return id, nil
}

func (t *Table) Delete(ctx context.Context, id string) error {
	if _, err := t.db.ExecContext(ctx, t.sql.DeleteDoc, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Fetch implements storage.Source. Collation ordering for OrderBy happens in
// Go since SQL cannot order mixed JSON types the same way.
func (t *Table) Fetch(ctx context.Context, req storage.FetchRequest) ([]storage.Document, error) {
	b := sqlbuilder.New(t.dialect.PlaceholderStyle())
	if cond := t.where(b, req.Clause); cond != "" {
		b.Where(cond)
	}
	q := t.sql.SelectDocs + b.WhereSQL() + " ORDER BY " + t.sql.OrderByID

	ordered := req.Clause.Kind == storage.ClauseOrderBy
	if req.Reverse && !ordered {
		q += " DESC"
	}
	if req.Limit >= 0 && !ordered {
		q += " LIMIT " + b.Arg(req.Limit)
	}
	t.log.Debug("fetch", zap.String("sql", q), zap.Int("args", b.Len()))

	docs, err := t.query(ctx, q, b.Args())
	if err != nil {
		return nil, err
	}
	if !ordered {
		return docs, nil
	}

	path := req.Clause.Path
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := jsonval.Lookup(docs[i], path)
		b, bok := jsonval.Lookup(docs[j], path)
		return jsonval.CollateField(a, aok, b, bok) < 0
	})
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

func (t *Table) query(ctx context.Context, q string, args []any) ([]storage.Document, error) {
	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var docs []storage.Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var doc storage.Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// where renders the SQL condition for c, or "" when every row qualifies.
func (t *Table) where(b *sqlbuilder.Builder, c storage.Clause) string {
	d := t.dialect
	switch c.Kind {
	case storage.ClauseAll, storage.ClauseOrderBy:
		return ""

	case storage.ClauseCompound:
		conds := make([]string, 0, len(c.Fields))
		for _, name := range c.CompoundFields() {
			conds = append(conds, t.compare(b, jsonval.SplitPath(name), "=", c.Fields[name]))
		}
		if len(conds) == 0 {
			return ""
		}
		return joinAnd(conds)

	case storage.ClauseEquals:
		return t.compare(b, c.Path, "=", c.Value)
	case storage.ClauseAbove:
		return t.compare(b, c.Path, ">", c.Value)
	case storage.ClauseAboveOrEqual:
		return t.compare(b, c.Path, ">=", c.Value)
	case storage.ClauseBelow:
		return t.compare(b, c.Path, "<", c.Value)
	case storage.ClauseBelowOrEqual:
		return t.compare(b, c.Path, "<=", c.Value)

	case storage.ClauseNotEqual:
		present := d.Present(c.Path)
		if _, ok := kindOf(c.Value); !ok {
			return present
		}
		return "(" + present + " AND (" + t.compare(b, c.Path, "=", c.Value) + ") IS NOT TRUE)"

	case storage.ClauseAnyOf:
		var nums, strs []any
		for _, v := range c.Values {
			k, ok := kindOf(v)
			switch {
			case !ok:
			case k == KindNumber:
				f, _ := jsonval.Number(v)
				nums = append(nums, f)
			default:
				strs = append(strs, v)
			}
		}
		var conds []string
		if len(nums) > 0 {
			conds = append(conds, d.Compare(c.Path, KindNumber, "IN", b.List(nums)))
		}
		if len(strs) > 0 {
			conds = append(conds, d.Compare(c.Path, KindText, "IN", b.List(strs)))
		}
		return sqlbuilder.Or(conds...)

	case storage.ClauseStartsWith:
		prefix, ok := c.Value.(string)
		if !ok {
			return sqlbuilder.FalseCond
		}
		return d.HasPrefix(c.Path, b.Arg(utf8.RuneCountInString(prefix)), b.Arg(prefix))

	case storage.ClauseBetween:
		lk, lok := kindOf(c.Lower)
		uk, uok := kindOf(c.Upper)
		if !lok || !uok || lk != uk {
			return sqlbuilder.FalseCond
		}
		lo, hi := ">", "<"
		if c.IncludeLower {
			lo = ">="
		}
		if c.IncludeUpper {
			hi = "<="
		}
		return joinAnd([]string{
			t.compare(b, c.Path, lo, c.Lower),
			t.compare(b, c.Path, hi, c.Upper),
		})
	}
	return sqlbuilder.FalseCond
}

// compare renders a type-guarded comparison; operands that are not index
// keys match nothing.
func (t *Table) compare(b *sqlbuilder.Builder, path []string, op string, v any) string {
	kind, ok := kindOf(v)
	if !ok {
		return sqlbuilder.FalseCond
	}
	if kind == KindNumber {
		f, _ := jsonval.Number(v)
		return t.dialect.Compare(path, kind, op, b.Arg(f))
	}
	return t.dialect.Compare(path, kind, op, b.Arg(v))
}

func kindOf(v any) (Kind, bool) {
	if !jsonval.IsScalarKey(v) {
		return 0, false
	}
	if _, ok := v.(string); ok {
		return KindText, true
	}
	return KindNumber, true
}

func joinAnd(conds []string) string {
	if len(conds) == 1 {
		return conds[0]
	}
	out := "(" + conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out + ")"
}
