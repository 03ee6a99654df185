package planner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedSort is returned for sorts on more than one field. Only a
// single sort field can be pushed into an index ordering.
var ErrUnsupportedSort = errors.New("multi-field sort is not supported")

// SortField is one field of a Mango sort.
type SortField struct {
	Field string
	Desc  bool
}

func (s SortField) String() string {
	if s.Desc {
		return s.Field + " desc"
	}
	return s.Field + " asc"
}

// ParseSort reads Mango sort syntax: ["f"], [{"f": "asc"}] or [{"f": "desc"}].
// A nil or empty sort yields no fields.
func ParseSort(raw any) ([]SortField, error) {
	var items []any
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	case []SortField:
		if len(t) > 1 {
			return nil, fmt.Errorf("%w: %d fields", ErrUnsupportedSort, len(t))
		}
		return t, nil
	default:
		return nil, fmt.Errorf("sort must be an array, got %T", raw)
	}

	fields := make([]SortField, 0, len(items))
	for _, item := range items {
		f, err := parseSortItem(item)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if len(fields) > 1 {
		return nil, fmt.Errorf("%w: %d fields", ErrUnsupportedSort, len(fields))
	}
	return fields, nil
}

func parseSortItem(item any) (SortField, error) {
	switch t := item.(type) {
	case string:
		if t == "" {
			return SortField{}, errors.New("sort field must not be empty")
		}
		return SortField{Field: t}, nil
	case map[string]any:
		if len(t) != 1 {
			return SortField{}, fmt.Errorf("sort object must have exactly one field, got %d", len(t))
		}
		for field, dir := range t {
			d, _ := dir.(string)
			switch strings.ToLower(d) {
			case "asc":
				return SortField{Field: field}, nil
			case "desc":
				return SortField{Field: field, Desc: true}, nil
			}
			return SortField{}, fmt.Errorf("sort direction for %q must be asc or desc", field)
		}
	}
	return SortField{}, fmt.Errorf("invalid sort item %T", item)
}
