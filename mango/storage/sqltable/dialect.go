// Package sqltable stores documents as JSON in a SQL table and answers
// storage clauses with SQL, parameterised by a Dialect.
//
// Every comparison is guarded by the JSON type of the field, so a number
// clause never matches a string value and vice versa. That keeps SQL results
// identical to storage.Clause.Match.
package sqltable

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/nonibytes/mango/mango/storage/sqlbuilder"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Kind is the JSON type a comparison is restricted to.
type Kind int

const (
	KindNumber Kind = iota
	KindText
)

// Dialect is the backend-specific part of a SQL table.
type Dialect interface {
	Backend() Backend
	PlaceholderStyle() sqlbuilder.PlaceholderStyle

	// DDL returns the statements creating the document and meta tables.
	DDL(table string) []string
	// IndexDDL returns the statements indexing field of table.
	IndexDDL(table, field string, path []string) []string
	SQL(table string) SQL

	// Compare renders "value at path <op> rhs", false unless the value has kind.
	Compare(path []string, kind Kind, op, rhs string) string
	// Present renders a condition true when path exists in the document.
	Present(path []string) string
	// HasPrefix renders a condition true when the string at path starts with
	// the bound prefix; n binds its length in characters.
	HasPrefix(path []string, n, prefix string) string
}

// SQL holds the statement templates of one table.
type SQL struct {
	GetMeta string
	SetMeta string

	SelectDocs string
	OrderByID  string
	UpsertDoc  string
	DeleteDoc  string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdent rejects table names that would need quoting.
func ValidateIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q (must match %s)", name, identRe.String())
	}
	return nil
}

// IndexName derives a stable index name for field.
func IndexName(table, field string, suffix string) string {
	name := []byte("idx_" + table + "_")
	for _, r := range []byte(field) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			name = append(name, r)
		} else {
			name = append(name, '_')
		}
	}
	return string(name) + suffix
}

// Migrate creates the tables of a dialect and the indexes listed.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, table string, indexes map[string][]string) error {
	if err := ValidateIdent(table); err != nil {
		return err
	}
	for _, stmt := range d.DDL(table) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	for field, path := range indexes {
		for _, stmt := range d.IndexDDL(table, field, path) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("index %s.%s: %w", table, field, err)
			}
		}
	}
	return nil
}
