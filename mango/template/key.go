package template

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/nonibytes/mango/mango/selector"
)

// Key hashes the structure of a shape: operators, field paths and placeholder
// positions, never values. Keys are 16 lowercase hex digits.
func Key(shape map[string]any) string {
	d := xxhash.New()
	writeShape(d, shape)
	return fmt.Sprintf("%016x", d.Sum64())
}

func writeShape(d *xxhash.Digest, v any) {
	switch t := v.(type) {
	case selector.Placeholder:
		_, _ = d.WriteString("?")
		_, _ = d.WriteString(strconv.Itoa(t.Index))
	case map[string]any:
		_, _ = d.WriteString("{")
		for i, k := range selector.Keys(t) {
			if i > 0 {
				_, _ = d.WriteString(",")
			}
			_, _ = d.WriteString(strconv.Quote(k))
			_, _ = d.WriteString(":")
			writeShape(d, t[k])
		}
		_, _ = d.WriteString("}")
	case []any:
		_, _ = d.WriteString("[")
		for i, x := range t {
			if i > 0 {
				_, _ = d.WriteString(",")
			}
			writeShape(d, x)
		}
		_, _ = d.WriteString("]")
	default:
		// Shapes only hold literals when built by hand; keep them distinct.
		_, _ = d.WriteString("!")
		_, _ = d.WriteString(strconv.Quote(JSONString(t)))
	}
}
