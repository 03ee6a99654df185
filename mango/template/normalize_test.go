package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/mango/mango/selector"
)

func roundTripSelectors() []map[string]any {
	return []map[string]any{
		{},
		{"city": "NYC"},
		{"score": map[string]any{"$gte": 50, "$lte": 70}},
		{"a": 1, "b": "x", "c": nil, "d": true},
		{"status": map[string]any{"$in": []any{1, 2, 3}, "$gte": 2}},
		{"$or": []any{map[string]any{"a": 1}, map[string]any{"b": map[string]any{"$ne": 2}}}},
		{"$not": map[string]any{"a": map[string]any{"$exists": true}}},
		{"$nor": []any{map[string]any{"x": []any{1, 2}}}},
		{"tags": map[string]any{"$elemMatch": map[string]any{"$eq": "go"}}},
		{"tags": map[string]any{"$allMatch": map[string]any{"n": map[string]any{"$gt": 1}}}},
		{"m": map[string]any{"$keyMapMatch": map[string]any{"$beginsWith": "k"}}},
		{"n": map[string]any{"$mod": []any{3, 1}, "$size": 2}},
		{"imdb": map[string]any{"rating": 8, "votes": map[string]any{"$gt": 100}}},
		{"obj": map[string]any{}},
		{"$or": "not-an-array"},
		{"$and": []any{map[string]any{"a": 1}, "junk"}},
		{"a": map[string]any{"$elemMatch": 7}},
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	for _, sel := range roundTripSelectors() {
		tmpl := Normalize(sel)
		assert.Equal(t, sel, Substitute(tmpl.Shape, tmpl.Values), "selector %v", sel)
	}
}

func TestNormalizeExtractsValuesInOrder(t *testing.T) {
	tmpl := Normalize(map[string]any{
		"b":      "x",
		"a":      1,
		"status": map[string]any{"$in": []any{1, 2, 3}, "$gte": 2},
	})

	assert.Equal(t, []any{1, "x", 2, []any{1, 2, 3}}, tmpl.Values)
	assert.Equal(t, selector.Placeholder{Index: 0}, tmpl.Shape["a"])
	assert.Equal(t, map[string]any{
		"$gte": selector.Placeholder{Index: 2},
		"$in":  selector.Placeholder{Index: 3},
	}, tmpl.Shape["status"])
}

func TestNormalizeSameShapeSameKey(t *testing.T) {
	a := Normalize(map[string]any{"city": "NYC", "age": map[string]any{"$gt": 30}})
	b := Normalize(map[string]any{"city": "LA", "age": map[string]any{"$gt": 99}})
	c := Normalize(map[string]any{"city": "LA", "age": map[string]any{"$lt": 99}})
	d := Normalize(map[string]any{"town": "LA", "age": map[string]any{"$gt": 99}})

	assert.Equal(t, a.Key, b.Key)
	assert.NotEqual(t, a.Key, c.Key, "operators are part of the shape")
	assert.NotEqual(t, a.Key, d.Key, "field paths are part of the shape")
	assert.Len(t, a.Key, 16)
}

func TestNormalizeArrayLiteralIsOneValue(t *testing.T) {
	a := Normalize(map[string]any{"s": map[string]any{"$in": []any{1}}})
	b := Normalize(map[string]any{"s": map[string]any{"$in": []any{1, 2, 3, 4}}})
	assert.Equal(t, a.Key, b.Key)
	assert.Len(t, b.Values, 1)
}

func TestKeyDistinguishesPlaceholderPositions(t *testing.T) {
	a := map[string]any{"x": selector.Placeholder{Index: 0}}
	b := map[string]any{"x": selector.Placeholder{Index: 1}}
	assert.NotEqual(t, Key(a), Key(b))
}

func TestShapeCodecRoundTrip(t *testing.T) {
	for _, sel := range roundTripSelectors() {
		tmpl := Normalize(sel)
		raw, err := EncodeShape(tmpl.Shape)
		require.NoError(t, err)

		shape, err := DecodeShape(raw)
		require.NoError(t, err)
		assert.Equal(t, tmpl.Key, Key(shape), "selector %v", sel)
	}
}

func TestDecodeShapeRejectsNonObject(t *testing.T) {
	_, err := DecodeShape([]byte(`[1]`))
	assert.Error(t, err)
	_, err = DecodeShape([]byte(`{`))
	assert.Error(t, err)
}
