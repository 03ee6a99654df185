package mango

import (
	"context"
	"sync"

	"github.com/nonibytes/mango/mango/cache"
	"github.com/nonibytes/mango/mango/storage"
)

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Default returns the process-wide engine used by the package-level
// functions, creating an in-memory one on first use.
func Default() *Engine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		defaultEngine = NewEngine(DefaultOptions())
	}
	return defaultEngine
}

// SetDefault replaces the process-wide engine. Tests use it to isolate cache
// state; services use it to install an engine with persistence.
func SetDefault(e *Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = e
}

func Compile(sel any) (Predicate, error) {
	return Default().Compile(sel)
}

func PlanQuery(t storage.Table, q Query) (storage.Collection, error) {
	return Default().PlanQuery(t, q)
}

func Warm(ctx context.Context) (WarmReport, error) {
	return Default().Warm(ctx)
}

func Stats(prefix string) cache.Stats {
	return Default().Stats(prefix)
}

func ClearByPrefix(prefix string) int {
	return Default().ClearByPrefix(prefix)
}

func ClearAll() {
	Default().ClearAll()
}
