// Package compiler turns a parsed selector into a predicate over documents.
//
// Compilation happens once per selector template. The resulting Func reads
// every literal through the values slice it is called with, so one compiled
// Func serves all queries that share a template.
package compiler

import (
	"strings"

	"github.com/nonibytes/mango/mango/jsonval"
	"github.com/nonibytes/mango/mango/selector"
)

// Func reports whether doc matches under the given bindings.
type Func func(doc any, values []any) bool

// condFunc tests one condition against a resolved field value.
type condFunc func(v any, present bool, values []any) bool

// Options configures a Compiler.
type Options struct {
	// RegexCacheSize bounds the number of compiled $regex patterns kept.
	RegexCacheSize int
}

// DefaultOptions returns the options used by the package-level Compile.
func DefaultOptions() Options {
	return Options{RegexCacheSize: 512}
}

// Compiler compiles selector trees. It is safe for concurrent use.
type Compiler struct {
	regexps *regexCache
}

// New creates a Compiler.
func New(opts Options) *Compiler {
	return &Compiler{regexps: newRegexCache(opts.RegexCacheSize)}
}

var std = New(DefaultOptions())

// Compile compiles node with the shared default Compiler.
func Compile(node selector.Node) Func {
	return std.Compile(node)
}

// Always matches every document.
func Always(any, []any) bool { return true }

// Never matches no document.
func Never(any, []any) bool { return false }

// Compile compiles node into a Func.
func (c *Compiler) Compile(node selector.Node) Func {
	switch n := node.(type) {
	case selector.And:
		if len(n.Children) == 0 {
			return Always
		}
		fns := c.compileAll(n.Children)
		return func(doc any, values []any) bool {
			for _, fn := range fns {
				if !fn(doc, values) {
					return false
				}
			}
			return true
		}

	case selector.Or:
		fns := c.compileAll(n.Children)
		return func(doc any, values []any) bool {
			for _, fn := range fns {
				if fn(doc, values) {
					return true
				}
			}
			return false
		}

	case selector.Nor:
		fns := c.compileAll(n.Children)
		return func(doc any, values []any) bool {
			for _, fn := range fns {
				if fn(doc, values) {
					return false
				}
			}
			return true
		}

	case selector.Not:
		inner := c.Compile(n.Inner)
		return func(doc any, values []any) bool {
			return !inner(doc, values)
		}

	case selector.Field:
		return c.compileField(n)
	}
	return Never
}

func (c *Compiler) compileAll(nodes []selector.Node) []Func {
	fns := make([]Func, len(nodes))
	for i, n := range nodes {
		fns[i] = c.Compile(n)
	}
	return fns
}

func (c *Compiler) compileField(f selector.Field) Func {
	path := f.Path
	conds := make([]condFunc, len(f.Conds))
	for i, cond := range f.Conds {
		conds[i] = c.compileCondition(cond)
	}
	return func(doc any, values []any) bool {
		v, present := jsonval.Lookup(doc, path)
		for _, cond := range conds {
			if !cond(v, present, values) {
				return false
			}
		}
		return true
	}
}

func (c *Compiler) compileCondition(cond selector.Condition) condFunc {
	switch cd := cond.(type) {
	case selector.Comparison:
		return compileComparison(cd)
	case selector.Membership:
		return compileMembership(cd)
	case selector.ElementMatch:
		return c.compileElementMatch(cd)

	case selector.Size:
		arg := cd.Arg
		return func(v any, present bool, values []any) bool {
			n, ok := jsonval.Number(arg.Resolve(values))
			if !ok || !present {
				return false
			}
			list, ok := jsonval.List(v)
			return ok && float64(len(list)) == n
		}

	case selector.Exists:
		arg := cd.Arg
		return func(_ any, present bool, values []any) bool {
			want, ok := arg.Resolve(values).(bool)
			return ok && present == want
		}

	case selector.TypeIs:
		arg := cd.Arg
		return func(v any, present bool, values []any) bool {
			want, ok := arg.Resolve(values).(string)
			return ok && present && jsonval.TypeName(v) == want
		}

	case selector.Regex:
		return c.compileRegex(cd)

	case selector.BeginsWith:
		arg := cd.Arg
		return func(v any, present bool, values []any) bool {
			prefix, ok := arg.Resolve(values).(string)
			if !ok || !present {
				return false
			}
			s, ok := v.(string)
			return ok && strings.HasPrefix(s, prefix)
		}

	case selector.Mod:
		arg := cd.Arg
		return func(v any, present bool, values []any) bool {
			if !present {
				return false
			}
			return matchMod(v, arg.Resolve(values))
		}
	}
	return func(any, bool, []any) bool { return false }
}

func compileComparison(cd selector.Comparison) condFunc {
	arg := cd.Arg
	switch cd.Op {
	case selector.OpEq:
		return func(v any, present bool, values []any) bool {
			return present && jsonval.Equal(v, arg.Resolve(values))
		}
	case selector.OpNe:
		return func(v any, present bool, values []any) bool {
			return present && !jsonval.Equal(v, arg.Resolve(values))
		}
	}

	var accept func(int) bool
	switch cd.Op {
	case selector.OpGt:
		accept = func(c int) bool { return c > 0 }
	case selector.OpGte:
		accept = func(c int) bool { return c >= 0 }
	case selector.OpLt:
		accept = func(c int) bool { return c < 0 }
	default:
		accept = func(c int) bool { return c <= 0 }
	}
	return func(v any, present bool, values []any) bool {
		if !present {
			return false
		}
		c, ok := jsonval.Compare(v, arg.Resolve(values))
		return ok && accept(c)
	}
}

func compileMembership(cd selector.Membership) condFunc {
	arg := cd.Arg
	switch cd.Op {
	case selector.OpIn:
		return func(v any, present bool, values []any) bool {
			list, ok := jsonval.List(arg.Resolve(values))
			return ok && present && contains(list, v)
		}
	case selector.OpNin:
		return func(v any, present bool, values []any) bool {
			list, ok := jsonval.List(arg.Resolve(values))
			return ok && present && !contains(list, v)
		}
	}
	return func(v any, present bool, values []any) bool {
		want, ok := jsonval.List(arg.Resolve(values))
		if !ok || !present {
			return false
		}
		have, ok := jsonval.List(v)
		if !ok {
			return false
		}
		for _, w := range want {
			if !contains(have, w) {
				return false
			}
		}
		return true
	}
}

func (c *Compiler) compileElementMatch(cd selector.ElementMatch) condFunc {
	if cd.Sub == nil {
		return func(any, bool, []any) bool { return false }
	}
	sub := c.Compile(cd.Sub)
	switch cd.Op {
	case selector.OpElemMatch:
		return func(v any, present bool, values []any) bool {
			list, ok := jsonval.List(v)
			if !ok || !present {
				return false
			}
			for _, el := range list {
				if sub(el, values) {
					return true
				}
			}
			return false
		}
	case selector.OpAllMatch:
		return func(v any, present bool, values []any) bool {
			list, ok := jsonval.List(v)
			if !ok || !present || len(list) == 0 {
				return false
			}
			for _, el := range list {
				if !sub(el, values) {
					return false
				}
			}
			return true
		}
	}
	return func(v any, present bool, values []any) bool {
		m, ok := v.(map[string]any)
		if !ok || !present {
			return false
		}
		for k := range m {
			if sub(k, values) {
				return true
			}
		}
		return false
	}
}

func (c *Compiler) compileRegex(cd selector.Regex) condFunc {
	arg := cd.Arg
	if !arg.IsParam() {
		pattern, ok := arg.Value.(string)
		if !ok {
			return func(any, bool, []any) bool { return false }
		}
		re := c.regexps.get(pattern)
		return func(v any, present bool, _ []any) bool {
			s, ok := v.(string)
			return ok && present && re != nil && re.MatchString(s)
		}
	}
	return func(v any, present bool, values []any) bool {
		pattern, ok := arg.Resolve(values).(string)
		if !ok || !present {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		re := c.regexps.get(pattern)
		return re != nil && re.MatchString(s)
	}
}

// matchMod applies [divisor, remainder] to an integer field value.
func matchMod(v, operand any) bool {
	args, ok := jsonval.List(operand)
	if !ok || len(args) != 2 {
		return false
	}
	divisor, ok := jsonval.Integer(args[0])
	if !ok || divisor == 0 {
		return false
	}
	remainder, ok := jsonval.Integer(args[1])
	if !ok {
		return false
	}
	n, ok := jsonval.Integer(v)
	return ok && n%divisor == remainder
}

func contains(list []any, v any) bool {
	for _, x := range list {
		if jsonval.Equal(x, v) {
			return true
		}
	}
	return false
}
