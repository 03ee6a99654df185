package template

import (
	"encoding/json"
	"fmt"

	"github.com/nonibytes/mango/mango/selector"
)

// placeholderKey tags an encoded placeholder: {"$$ph": 3}.
const placeholderKey = "$$ph"

// EncodeShape serializes a shape for the persisted template store.
func EncodeShape(shape map[string]any) (json.RawMessage, error) {
	b, err := json.Marshal(encode(shape))
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return b, nil
}

// DecodeShape parses a shape written by EncodeShape.
func DecodeShape(data []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	shape, ok := decode(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode template: expected object, got %T", v)
	}
	return shape, nil
}

func encode(v any) any {
	switch t := v.(type) {
	case selector.Placeholder:
		return map[string]any{placeholderKey: t.Index}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = encode(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = encode(x)
		}
		return out
	}
	return v
}

func decode(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if idx, ok := t[placeholderKey].(float64); ok && idx >= 0 && idx == float64(int(idx)) {
				return selector.Placeholder{Index: int(idx)}
			}
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = decode(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = decode(x)
		}
		return out
	}
	return v
}

// JSONString renders v as compact JSON, falling back to %v for values
// encoding/json rejects.
func JSONString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
