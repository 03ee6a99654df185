// Package sqlite is the SQLite dialect of sqltable. It works with both
// modernc.org/sqlite (driver "sqlite") and mattn/go-sqlite3 (driver
// "sqlite3"); callers import the driver they want.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nonibytes/mango/mango/storage/sqlbuilder"
	"github.com/nonibytes/mango/mango/storage/sqltable"
)

const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// Adapter opens SQLite databases.
type Adapter struct {
	Path       string
	DriverName string
}

func New(path string) *Adapter {
	return &Adapter{Path: path, DriverName: DriverModernc}
}

func NewWithDriver(path, driver string) *Adapter {
	return &Adapter{Path: path, DriverName: driver}
}

// Connect opens and pings the database with a busy timeout set.
func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	param := "_pragma=busy_timeout(5000)"
	if a.DriverName == DriverMattn {
		param = "_busy_timeout=5000"
	}
	dsn := a.Path
	if strings.Contains(dsn, "?") {
		dsn += "&" + param
	} else {
		dsn += "?" + param
	}
	db, err := sql.Open(a.DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(a.Path, ":memory:") {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	return db, nil
}

// Open connects and returns a migrated table.
func (a *Adapter) Open(ctx context.Context, opts sqltable.Options) (*sqltable.Table, error) {
	db, err := a.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite %s: %w", a.Path, err)
	}
	t, err := sqltable.Open(ctx, db, Dialect{}, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// Dialect implements sqltable.Dialect with the JSON1 functions.
type Dialect struct{}

var _ sqltable.Dialect = Dialect{}

func (Dialect) Backend() sqltable.Backend { return sqltable.BackendSQLite }

func (Dialect) PlaceholderStyle() sqlbuilder.PlaceholderStyle {
	return sqlbuilder.PlaceholderQuestion
}

func (Dialect) DDL(table string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
  id   TEXT PRIMARY KEY,
  data TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + metaTable + ` (
  key   TEXT PRIMARY KEY,
  value TEXT
)`,
	}
}

func (Dialect) IndexDDL(table, field string, path []string) []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS " + sqltable.IndexName(table, field, "") +
			" ON " + table + "(json_extract(data, " + jsonPath(path) + "))",
	}
}

const metaTable = "mango_meta"

func (Dialect) SQL(table string) sqltable.SQL {
	return sqltable.SQL{
		GetMeta:    "SELECT value FROM " + metaTable + " WHERE key = ?1",
		SetMeta:    "INSERT INTO " + metaTable + "(key,value) VALUES(?1,?2) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		SelectDocs: "SELECT id, data FROM " + table,
		OrderByID:  "id",
		UpsertDoc:  "INSERT INTO " + table + "(id, data) VALUES(?1, ?2) ON CONFLICT(id) DO UPDATE SET data=excluded.data",
		DeleteDoc:  "DELETE FROM " + table + " WHERE id = ?1",
	}
}

// Compare keeps the json_extract expression bare so the expression index
// created by IndexDDL applies.
func (Dialect) Compare(path []string, kind sqltable.Kind, op, rhs string) string {
	p := jsonPath(path)
	guard := "json_type(data, " + p + ") IN ('integer','real')"
	if kind == sqltable.KindText {
		guard = "json_type(data, " + p + ") = 'text'"
	}
	return "(" + guard + " AND json_extract(data, " + p + ") " + op + " " + rhs + ")"
}

func (Dialect) Present(path []string) string {
	return "json_type(data, " + jsonPath(path) + ") IS NOT NULL"
}

func (Dialect) HasPrefix(path []string, n, prefix string) string {
	p := jsonPath(path)
	return "(json_type(data, " + p + ") = 'text' AND substr(json_extract(data, " + p + "), 1, " + n + ") = " + prefix + ")"
}

// jsonPath renders path as a quoted JSON path literal such as '$."a"."b"'.
func jsonPath(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range path {
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return sqlbuilder.QuoteString(b.String())
}
