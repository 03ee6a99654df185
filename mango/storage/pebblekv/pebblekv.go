// Package pebblekv is a durable storage.KV on a Pebble database, used for the
// persisted template store of the CLI and long-running services.
package pebblekv

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/nonibytes/mango/mango/storage"
)

// keyPrefix namespaces engine keys inside a shared database.
const keyPrefix = "mango/kv/"

type KV struct {
	db    *pebble.DB
	owned bool
}

var _ storage.KV = (*KV)(nil)

// Open opens or creates a database in dir.
func Open(dir string) (*KV, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &KV{db: db, owned: true}, nil
}

// Wrap uses an existing database; Close leaves it open.
func Wrap(db *pebble.DB) *KV {
	return &KV{db: db}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	val, closer, err := k.db.Get([]byte(keyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	// val is only valid until closer.Close.
	return string(val), true, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := k.db.Set([]byte(keyPrefix+key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (k *KV) Close() error {
	if !k.owned {
		return nil
	}
	return k.db.Close()
}
