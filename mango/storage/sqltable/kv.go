package sqltable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nonibytes/mango/mango/storage"
)

// KV stores string values in the meta table created by Migrate.
type KV struct {
	db  *sql.DB
	sql SQL
}

var _ storage.KV = (*KV)(nil)

// NewKV returns a KV over the meta table of d. Migrate must have run.
func NewKV(db *sql.DB, d Dialect) *KV {
	return &KV{db: db, sql: d.SQL("")}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := k.db.QueryRowContext(ctx, k.sql.GetMeta, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value.String, true, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	if _, err := k.db.ExecContext(ctx, k.sql.SetMeta, key, value); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}
