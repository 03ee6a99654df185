// Package jsonval implements the value model shared by the selector compiler and
// the index stores.
//
// Documents are the shapes produced by encoding/json (map[string]any, []any,
// string, float64, bool, nil). Go integer and float kinds and json.Number are
// accepted wherever a number is expected so that hand-built documents behave
// like decoded ones.
package jsonval

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Type names reported by TypeName and accepted by $type.
const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeArray   = "array"
	TypeObject  = "object"
)

// SplitPath splits a dotted field path into its segments.
func SplitPath(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Split(field, ".")
}

// Lookup resolves path against doc. It stops at the first segment whose parent
// is missing or is not an object.
func Lookup(doc any, path []string) (any, bool) {
	cur := doc
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Number converts any numeric kind to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Integer reports whether v is a number with no fractional part.
func Integer(v any) (int64, bool) {
	f, ok := Number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// List returns v as []any. Typed slices built by Go callers are converted.
func List(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// IsScalarKey reports whether v can serve as an index key: a string or a
// finite number. Booleans, null and composite values are never index keys.
func IsScalarKey(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	f, ok := Number(v)
	return ok && !math.IsNaN(f)
}

// TypeName returns the $type name of v. Arrays are never reported as objects.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case string:
		return TypeString
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	}
	if _, ok := Number(v); ok {
		return TypeNumber
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map, reflect.Struct:
		return TypeObject
	case reflect.Ptr:
		if reflect.ValueOf(v).IsNil() {
			return TypeNull
		}
	}
	return TypeObject
}

// Equal reports deep equality with numeric kinds compared by value.
func Equal(a, b any) bool {
	if fa, ok := Number(a); ok {
		fb, ok := Number(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values of the same comparable type (numbers or strings).
// ok is false when the values are not mutually comparable.
func Compare(a, b any) (c int, ok bool) {
	if fa, isNum := Number(a); isNum {
		fb, isNum := Number(b)
		if !isNum || math.IsNaN(fa) || math.IsNaN(fb) {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, isStr := a.(string)
	if !isStr {
		return 0, false
	}
	sb, isStr := b.(string)
	if !isStr {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

// Rank is the collation class of a value; a missing value ranks lowest.
func Rank(v any, present bool) int {
	if !present {
		return 0
	}
	switch TypeName(v) {
	case TypeNull:
		return 1
	case TypeBoolean:
		return 2
	case TypeNumber:
		return 3
	case TypeString:
		return 4
	case TypeArray:
		return 5
	}
	return 6
}

// Collate is a total order over present values:
// null < booleans < numbers < strings < arrays < objects.
func Collate(a, b any) int {
	ra, rb := Rank(a, true), Rank(b, true)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 2:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case 3, 4:
		c, _ := Compare(a, b)
		return c
	case 5:
		aa, _ := a.([]any)
		ba, _ := b.([]any)
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := Collate(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(aa), len(ba))
	case 6:
		ma, _ := a.(map[string]any)
		mb, _ := b.(map[string]any)
		ka, kb := sortedKeys(ma), sortedKeys(mb)
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if c := strings.Compare(ka[i], kb[i]); c != 0 {
				return c
			}
			if c := Collate(ma[ka[i]], mb[kb[i]]); c != 0 {
				return c
			}
		}
		return compareInts(len(ka), len(kb))
	}
	return 0
}

// CollateField orders two lookup results, placing missing values first.
func CollateField(a any, aok bool, b any, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	return Collate(a, b)
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
