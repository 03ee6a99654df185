package planner

import (
	"strconv"
	"strings"
)

// tombstone marks an $and element emptied by a pushdown until compaction.
type tombstone struct{}

// Residual returns the part of shape left after removing the conjuncts at
// locs. Placeholder indices are preserved so the residual binds against the
// values of the original template. A nil result means nothing is left.
func Residual(shape map[string]any, locs []location) map[string]any {
	out := cloneShape(shape).(map[string]any)
	for _, loc := range locs {
		removeAt(out, loc)
	}
	compacted, gone := compact(out)
	if gone {
		return nil
	}
	m := compacted.(map[string]any)
	if len(m) == 0 {
		return nil
	}
	return m
}

// removeAt deletes the key loc points at. Containers emptied on the way are
// removed as well; only containers on the path are touched.
func removeAt(node any, loc location) bool {
	switch n := node.(type) {
	case map[string]any:
		key, ok := loc[0].(string)
		if !ok {
			return false
		}
		if len(loc) == 1 {
			delete(n, key)
		} else if removeAt(n[key], loc[1:]) {
			delete(n, key)
		}
		return len(n) == 0
	case []any:
		i, ok := loc[0].(int)
		if !ok || i >= len(n) || len(loc) == 1 {
			return false
		}
		if removeAt(n[i], loc[1:]) {
			n[i] = tombstone{}
		}
		return false
	}
	return false
}

// compact drops tombstones. A container emptied by compaction reports gone
// so its parent drops it too.
func compact(node any) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		dropped := false
		for k, v := range n {
			c, gone := compact(v)
			if gone {
				delete(n, k)
				dropped = true
				continue
			}
			n[k] = c
		}
		return n, dropped && len(n) == 0
	case []any:
		out := n[:0]
		dropped := false
		for _, v := range n {
			if _, ok := v.(tombstone); ok {
				dropped = true
				continue
			}
			c, gone := compact(v)
			if gone {
				dropped = true
				continue
			}
			out = append(out, c)
		}
		return out, dropped && len(out) == 0
	}
	return node, false
}

func cloneShape(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = cloneShape(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneShape(x)
		}
		return out
	}
	return v
}

// residualKey identifies the residual left by a set of used candidates.
func residualKey(used []candidate) string {
	ids := make([]string, len(used))
	for i, c := range used {
		ids[i] = strconv.Itoa(c.id)
	}
	return strings.Join(ids, ",")
}
