// Package postgres is the PostgreSQL dialect of sqltable, connected through
// pgx's database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nonibytes/mango/mango/storage/sqlbuilder"
	"github.com/nonibytes/mango/mango/storage/sqltable"
)

// Adapter opens PostgreSQL databases.
type Adapter struct {
	DSN    string
	Schema string // used as dedicated schema via search_path
}

func New(dsn, schema string) *Adapter {
	return &Adapter{DSN: dsn, Schema: schema}
}

func quoteIdent(ident string) string {
	// ident is validated to contain no quotes
	return `"` + ident + `"`
}

// Connect ensures the schema exists and returns a handle whose search_path
// starts with it. An empty Schema uses the server default.
func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	if a.Schema == "" {
		return ping(ctx, stdlib.OpenDB(*cfg))
	}
	if err := sqltable.ValidateIdent(a.Schema); err != nil {
		return nil, err
	}

	db0, err := ping(ctx, stdlib.OpenDB(*cfg))
	if err != nil {
		return nil, err
	}
	_, err = db0.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(a.Schema))
	_ = db0.Close()
	if err != nil {
		return nil, err
	}

	cfg, err = pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = make(map[string]string)
	}
	cfg.RuntimeParams["search_path"] = fmt.Sprintf("%s,public", quoteIdent(a.Schema))
	return ping(ctx, stdlib.OpenDB(*cfg))
}

func ping(ctx context.Context, db *sql.DB) (*sql.DB, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects and returns a migrated table.
func (a *Adapter) Open(ctx context.Context, opts sqltable.Options) (*sqltable.Table, error) {
	db, err := a.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	t, err := sqltable.Open(ctx, db, Dialect{}, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// Dialect implements sqltable.Dialect over JSONB.
type Dialect struct{}

var _ sqltable.Dialect = Dialect{}

const metaTable = "mango_meta"

func (Dialect) Backend() sqltable.Backend { return sqltable.BackendPostgres }

func (Dialect) PlaceholderStyle() sqlbuilder.PlaceholderStyle {
	return sqlbuilder.PlaceholderDollar
}

func (Dialect) DDL(table string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
  id   TEXT PRIMARY KEY,
  data JSONB NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + metaTable + ` (
  key   TEXT PRIMARY KEY,
  value TEXT
)`,
	}
}

// IndexDDL indexes the exact expressions Compare renders, one per kind.
func (d Dialect) IndexDDL(table, field string, path []string) []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS " + sqltable.IndexName(table, field, "_num") +
			" ON " + table + " ((" + numberExpr(path) + "))",
		"CREATE INDEX IF NOT EXISTS " + sqltable.IndexName(table, field, "_text") +
			" ON " + table + " ((" + textExpr(path) + "))",
	}
}

func (Dialect) SQL(table string) sqltable.SQL {
	return sqltable.SQL{
		GetMeta:    "SELECT value FROM " + metaTable + " WHERE key = $1",
		SetMeta:    "INSERT INTO " + metaTable + "(key,value) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value",
		SelectDocs: "SELECT id, data::text FROM " + table,
		OrderByID:  `id COLLATE "C"`,
		UpsertDoc:  "INSERT INTO " + table + "(id, data) VALUES($1, $2::jsonb) ON CONFLICT(id) DO UPDATE SET data=EXCLUDED.data",
		DeleteDoc:  "DELETE FROM " + table + " WHERE id = $1",
	}
}

func (Dialect) Compare(path []string, kind sqltable.Kind, op, rhs string) string {
	if kind == sqltable.KindText {
		return "(" + textExpr(path) + " " + op + " " + rhs + ")"
	}
	if op != "IN" {
		rhs += "::float8"
	}
	return "(" + numberExpr(path) + " " + op + " " + rhs + ")"
}

func (Dialect) Present(path []string) string {
	return "(data #> " + pathLiteral(path) + ") IS NOT NULL"
}

func (Dialect) HasPrefix(path []string, n, prefix string) string {
	return "(left(" + textExpr(path) + ", " + n + "::int) = " + prefix + ")"
}

// numberExpr is the field as float8 when it is a JSON number, else NULL.
func numberExpr(path []string) string {
	p := pathLiteral(path)
	return "CASE WHEN jsonb_typeof(data #> " + p + ") = 'number' THEN (data #>> " + p + ")::float8 END"
}

// textExpr is the field as byte-ordered text when it is a JSON string, else NULL.
func textExpr(path []string) string {
	p := pathLiteral(path)
	return "(CASE WHEN jsonb_typeof(data #> " + p + ") = 'string' THEN data #>> " + p + ` END) COLLATE "C"`
}

// pathLiteral renders path as a text[] literal such as '{"a","b"}'::text[].
func pathLiteral(path []string) string {
	quoted := make([]string, len(path))
	for i, seg := range path {
		seg = strings.ReplaceAll(seg, `\`, `\\`)
		seg = strings.ReplaceAll(seg, `"`, `\"`)
		quoted[i] = `"` + seg + `"`
	}
	return sqlbuilder.QuoteString("{"+strings.Join(quoted, ",")+"}") + "::text[]"
}
