// Package mango compiles Mango selectors into reusable predicates and plans
// them against index-capable document tables.
//
// Selectors are split into a value-free template and a values slice. The
// compiled predicate and the planner analysis are cached per template, so
// queries that differ only in their literals compile once. With a KV store
// configured, templates also survive restarts: Warm restores them before the
// first query.
package mango

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/nonibytes/mango/mango/cache"
	"github.com/nonibytes/mango/mango/compiler"
	"github.com/nonibytes/mango/mango/metrics"
	"github.com/nonibytes/mango/mango/planner"
	"github.com/nonibytes/mango/mango/selector"
	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/template"
)

// Engine owns the caches shared by every query it compiles or plans. It is
// safe for concurrent use.
type Engine struct {
	opts      Options
	cache     *cache.QueryCache
	persister *cache.Persister
	compiler  *compiler.Compiler
	planner   *planner.Planner
	metrics   *metrics.Metrics
	log       *zap.Logger

	warmMu sync.Mutex
}

// NewEngine creates an Engine. Missing options fall back to DefaultOptions.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.WarmWorkers <= 0 {
		opts.WarmWorkers = def.WarmWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := metrics.New(opts.Registerer)
	e := &Engine{
		opts: opts,
		cache: cache.New(cache.Options{
			Expiry:  opts.Expiry,
			Now:     opts.Now,
			Metrics: m,
		}),
		compiler: compiler.New(compiler.Options{RegexCacheSize: opts.RegexCacheSize}),
		metrics:  m,
		log:      opts.Logger.Named("mango"),
	}
	if opts.KV != nil {
		e.persister = cache.NewPersister(opts.KV, cache.PersistOptions{
			Key:          opts.PersistKey,
			Delay:        opts.PersistDelay,
			MaxPersisted: opts.MaxPersisted,
			Logger:       e.log,
			Metrics:      m,
		})
	}

	popts := planner.Options{
		Cache:   e.cache,
		Compile: e.compileShape,
		Logger:  e.log.Named("planner"),
		Metrics: m,
	}
	if e.persister != nil {
		popts.Persist = e.persister.Schedule
	}
	e.planner = planner.New(popts)
	return e
}

// Compile returns a predicate for sel. A non-object selector yields a
// predicate that never matches; an empty one matches everything and is not
// cached. Malformed combinations ($or without an array, $not without an
// object) are reported as ErrQueryStructure.
func (e *Engine) Compile(sel any) (Predicate, error) {
	m, ok := sel.(map[string]any)
	if !ok {
		return func(any) bool { return false }, nil
	}
	if len(m) == 0 {
		return func(any) bool { return true }, nil
	}

	tmpl := template.Normalize(m)
	fn, err := e.CompileShape(tmpl.Key, tmpl.Shape)
	if err != nil {
		return nil, err
	}
	values := tmpl.Values
	return func(doc any) bool { return fn(doc, values) }, nil
}

// CompileShape returns the compiled predicate of a template, compiling and
// caching it under cache.PrefixPredicate on a miss.
func (e *Engine) CompileShape(key string, shape map[string]any) (compiler.Func, error) {
	ck := cache.PrefixPredicate + key
	if v, ok := e.cache.Get(ck); ok {
		if fn, ok := v.(compiler.Func); ok {
			return fn, nil
		}
	}

	node, err := selector.Parse(shape)
	if err != nil {
		return nil, classify("compile selector", err)
	}
	fn := e.compiler.Compile(node)
	e.metrics.Compiled()
	e.cache.Set(ck, fn)
	if e.persister != nil {
		e.persister.Schedule(ck, shape)
	}
	return fn, nil
}

func (e *Engine) compileShape(shape map[string]any) (compiler.Func, error) {
	return e.CompileShape(template.Key(shape), shape)
}

// Expand rewrites sel as an explicit $and of single-key selectors.
func (e *Engine) Expand(sel map[string]any) map[string]any {
	return Expand(sel)
}

// PlanQuery plans q against t and returns the lazy result collection.
func (e *Engine) PlanQuery(t storage.Table, q Query) (storage.Collection, error) {
	plan, err := e.planner.Plan(t, q)
	if err != nil {
		return nil, classify("plan query", err)
	}
	return plan.Collection, nil
}

// Explain plans q against t without reading it.
func (e *Engine) Explain(t storage.Table, q Query) (*Explanation, error) {
	plan, err := e.planner.Plan(t, q)
	if err != nil {
		return nil, classify("plan query", err)
	}
	return &Explanation{
		TemplateKey: plan.Key,
		Strategy:    string(plan.Decision.Strategy),
		Pushdown:    plan.Decision.String(),
		Residual:    plan.Residual,
		Steps:       plan.Steps,
	}, nil
}

// Warm restores persisted templates into both cache partitions. Predicates
// are compiled on a bounded worker pool. Persistence is suspended while
// warming, and running Warm again leaves the cache unchanged.
func (e *Engine) Warm(ctx context.Context) (WarmReport, error) {
	var report WarmReport
	if e.persister == nil {
		return report, nil
	}
	e.warmMu.Lock()
	defer e.warmMu.Unlock()

	e.persister.SetWarming(true)
	defer e.persister.SetWarming(false)

	preds, err := e.persister.Load(ctx, cache.PrefixPredicate)
	if err != nil {
		return report, Wrap(ErrPersist, "load persisted predicates", err)
	}
	analyses, err := e.persister.Load(ctx, cache.PrefixAnalysis)
	if err != nil {
		return report, Wrap(ErrPersist, "load persisted analyses", err)
	}

	pool, err := ants.NewPool(e.opts.WarmWorkers, ants.WithPanicHandler(func(v any) {
		e.log.Error("warm worker panic", zap.Any("panic", v))
	}))
	if err != nil {
		return report, Wrap(ErrConfig, "create warm pool", err)
	}
	defer pool.Release()

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for _, p := range preds {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			key := strings.TrimPrefix(p.Key, cache.PrefixPredicate)
			if _, err := e.CompileShape(key, p.Shape); err != nil {
				failed.Add(1)
				e.log.Warn("skip persisted template", zap.String("key", p.Key), zap.Error(err))
			}
		})
		if err != nil {
			wg.Done()
			failed.Add(1)
		}
	}
	wg.Wait()

	for _, p := range analyses {
		e.planner.Analysis(strings.TrimPrefix(p.Key, cache.PrefixAnalysis), p.Shape)
	}

	report.Predicates = len(preds) - int(failed.Load())
	report.Analyses = len(analyses)
	report.Failed = int(failed.Load())
	e.log.Info("cache warmed",
		zap.Int("predicates", report.Predicates),
		zap.Int("analyses", report.Analyses),
		zap.Int("failed", report.Failed))
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// Stats describes the live cache entries whose key starts with prefix.
func (e *Engine) Stats(prefix string) cache.Stats {
	return e.cache.Stats(prefix)
}

func (e *Engine) ClearByPrefix(prefix string) int {
	return e.cache.ClearByPrefix(prefix)
}

func (e *Engine) ClearAll() {
	e.cache.Clear()
}

// Flush writes any templates waiting for the persist delay.
func (e *Engine) Flush(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	if err := e.persister.Flush(ctx); err != nil {
		return Wrap(ErrPersist, "flush templates", err)
	}
	return nil
}

// Close flushes pending templates and drops every cache entry.
func (e *Engine) Close(ctx context.Context) error {
	defer e.cache.Clear()
	if e.persister == nil {
		return nil
	}
	if err := e.persister.Close(ctx); err != nil {
		return Wrap(ErrPersist, "close persister", err)
	}
	return nil
}
