package mango

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nonibytes/mango/mango/cache"
	"github.com/nonibytes/mango/mango/compiler"
	"github.com/nonibytes/mango/mango/planner"
	"github.com/nonibytes/mango/mango/storage"
)

// Predicate reports whether a document matches a compiled selector.
type Predicate func(doc any) bool

// Query is a find request: selector, optional single-field sort, optional limit.
type Query = planner.Query

// SortField is one field of a sort.
type SortField = planner.SortField

// Options configures an Engine
type Options struct {
	Expiry time.Duration // sliding TTL of both cache partitions, default 5m
	Now    func() time.Time

	// KV enables cross-session template persistence. Nil disables it.
	KV           storage.KV
	PersistKey   string
	PersistDelay time.Duration
	MaxPersisted int

	RegexCacheSize int
	WarmWorkers    int

	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// DefaultOptions returns an in-memory engine configuration
func DefaultOptions() Options {
	return Options{
		Expiry:         cache.DefaultExpiry,
		Now:            time.Now,
		PersistKey:     cache.StorageKey,
		PersistDelay:   cache.DefaultPersistDelay,
		MaxPersisted:   cache.DefaultMaxPersisted,
		RegexCacheSize: compiler.DefaultOptions().RegexCacheSize,
		WarmWorkers:    runtime.GOMAXPROCS(0),
	}
}

// Explanation describes how a query would run.
type Explanation struct {
	TemplateKey string         `json:"template_key,omitempty"`
	Strategy    string         `json:"strategy"`
	Pushdown    string         `json:"pushdown"`
	Residual    map[string]any `json:"residual,omitempty"`
	Steps       []string       `json:"steps"`
}

// WarmReport summarizes one Warm call.
type WarmReport struct {
	Predicates int `json:"predicates"`
	Analyses   int `json:"analyses"`
	Failed     int `json:"failed"`
}
