// Package planner turns a selector, a sort and a limit into a lazy query
// against an index-capable table.
//
// Planning is split the same way compilation is. The value-independent
// Analysis of a template (which conjuncts could be pushed into an index, and
// where they sit in the shape) is computed once per template key and cached.
// Each query then binds its values, picks the highest-priority candidate
// whose operands an index can answer exactly, and filters the rest through a
// residual predicate compiled from the shape minus the pushed conjuncts.
package planner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nonibytes/mango/mango/cache"
	"github.com/nonibytes/mango/mango/compiler"
	"github.com/nonibytes/mango/mango/metrics"
	"github.com/nonibytes/mango/mango/selector"
	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/template"
)

// CompileFunc compiles a template shape. The engine supplies one backed by
// its predicate cache so that residuals share compiled predicates with
// ordinary queries.
type CompileFunc func(shape map[string]any) (compiler.Func, error)

// CompileShape parses and compiles shape without caching.
func CompileShape(shape map[string]any) (compiler.Func, error) {
	node, err := selector.Parse(shape)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(node), nil
}

// Query is a Mango find request.
type Query struct {
	// Selector is normally a map[string]any. Any other value matches nothing.
	Selector any
	Sort     []SortField
	// Limit caps the result after filtering. Negative limits are treated as 0.
	Limit *int
}

// Plan is a planned query. Collection is lazy; nothing has been read yet.
type Plan struct {
	// Key is the template key the analysis was cached under.
	Key      string
	Decision Decision
	// Residual is the bound selector still evaluated in memory, nil when the
	// pushdown answers the whole selector.
	Residual   map[string]any
	Steps      []string
	Collection storage.Collection
}

type Options struct {
	// Cache holds analyses under cache.PrefixAnalysis. Nil disables caching.
	Cache   cache.Cache
	Compile CompileFunc
	// Persist, when set, is called with the cache key and shape of every
	// newly computed analysis.
	Persist func(key string, shape map[string]any)
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		Compile: CompileShape,
		Logger:  zap.NewNop(),
	}
}

type Planner struct {
	opts Options
}

func New(opts Options) *Planner {
	if opts.Compile == nil {
		opts.Compile = CompileShape
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Planner{opts: opts}
}

// Plan builds the lazy collection for q over t.
func (p *Planner) Plan(t storage.Table, q Query) (*Plan, error) {
	if len(q.Sort) > 1 {
		return nil, fmt.Errorf("%w: %d fields", ErrUnsupportedSort, len(q.Sort))
	}

	var (
		plan *Plan
		err  error
	)
	sel, ok := q.Selector.(map[string]any)
	switch {
	case !ok:
		plan = &Plan{
			Decision:   Decision{Strategy: StrategyNone},
			Collection: t.Filter(func(storage.Document) bool { return false }),
			Steps:      []string{fmt.Sprintf("filter(never) selector is %T", q.Selector)},
		}
	case len(q.Sort) == 1:
		plan, err = p.planSorted(t, template.Normalize(sel), q.Sort[0])
	default:
		plan, err = p.planPushdown(t, template.Normalize(sel))
	}
	if err != nil {
		return nil, err
	}

	if q.Limit != nil {
		n := max(*q.Limit, 0)
		plan.Collection = plan.Collection.Limit(n)
		plan.Steps = append(plan.Steps, fmt.Sprintf("limit(%d)", n))
	}

	p.opts.Metrics.Planned(string(plan.Decision.Strategy))
	p.opts.Logger.Debug("query planned",
		zap.String("strategy", string(plan.Decision.Strategy)),
		zap.Strings("steps", plan.Steps))
	return plan, nil
}

// planSorted reads the index ordering of the sort field and filters every
// document through the full predicate.
func (p *Planner) planSorted(t storage.Table, tmpl template.Template, sf SortField) (*Plan, error) {
	d := Decision{Strategy: StrategyOrderBy, Field: sf.Field, Desc: sf.Desc}
	plan := &Plan{Key: tmpl.Key, Decision: d, Steps: []string{fmt.Sprintf("orderBy(%q)", sf.Field)}}

	coll := t.OrderBy(sf.Field)
	if sf.Desc {
		coll = coll.Reverse()
		plan.Steps = append(plan.Steps, "reverse()")
	}
	if len(tmpl.Shape) > 0 {
		fn, err := p.opts.Compile(tmpl.Shape)
		if err != nil {
			return nil, err
		}
		coll = coll.Filter(bound(fn, tmpl.Values))
		plan.Residual = template.Substitute(tmpl.Shape, tmpl.Values)
		plan.Steps = append(plan.Steps, "filter("+template.JSONString(plan.Residual)+")")
	}
	plan.Collection = coll
	return plan, nil
}

func (p *Planner) planPushdown(t storage.Table, tmpl template.Template) (*Plan, error) {
	a := p.Analysis(tmpl.Key, tmpl.Shape)
	ch, ok := a.choose(tmpl.Values)
	if !ok {
		fn, err := p.opts.Compile(tmpl.Shape)
		if err != nil {
			return nil, err
		}
		plan := &Plan{
			Key:        tmpl.Key,
			Decision:   Decision{Strategy: StrategyNone},
			Collection: t.Filter(bound(fn, tmpl.Values)),
		}
		if len(tmpl.Shape) > 0 {
			plan.Residual = template.Substitute(tmpl.Shape, tmpl.Values)
			plan.Steps = []string{"filter(" + template.JSONString(plan.Residual) + ")"}
		} else {
			plan.Steps = []string{"filter(all)"}
		}
		return plan, nil
	}

	r, err := p.residual(a, ch.used)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Key:        tmpl.Key,
		Decision:   ch.decision,
		Collection: ch.decision.open(t),
		Steps:      []string{ch.decision.String()},
	}
	if r.shape != nil {
		plan.Collection = plan.Collection.And(bound(r.fn, tmpl.Values))
		plan.Residual = template.Substitute(r.shape, tmpl.Values)
		plan.Steps = append(plan.Steps, "and("+template.JSONString(plan.Residual)+")")
	}
	return plan, nil
}

// Analysis returns the cached analysis of a template, computing it on a miss.
func (p *Planner) Analysis(key string, shape map[string]any) *Analysis {
	if p.opts.Cache == nil {
		return Analyze(key, shape)
	}
	ck := cache.PrefixAnalysis + key
	if v, ok := p.opts.Cache.Get(ck); ok {
		if a, ok := v.(*Analysis); ok {
			return a
		}
	}
	a := Analyze(key, shape)
	p.opts.Cache.Set(ck, a)
	if p.opts.Persist != nil {
		p.opts.Persist(ck, shape)
	}
	return a
}

func (p *Planner) residual(a *Analysis, used []candidate) (*residual, error) {
	key := residualKey(used)
	if r, ok := a.residuals.Load(key); ok {
		return r, nil
	}
	locs := make([]location, len(used))
	for i, c := range used {
		locs[i] = c.loc
	}
	r := &residual{shape: Residual(a.Shape, locs)}
	if r.shape != nil {
		fn, err := p.opts.Compile(r.shape)
		if err != nil {
			return nil, err
		}
		r.fn = fn
	}
	r, _ = a.residuals.LoadOrStore(key, r)
	return r, nil
}

func bound(fn compiler.Func, values []any) storage.Predicate {
	return func(doc storage.Document) bool {
		return fn(doc, values)
	}
}
