package mango

import (
	"errors"

	"github.com/nonibytes/mango/mango/planner"
)

// ParseSort reads Mango sort syntax. Sorts on more than one field fail with
// ErrUnsupportedSort; any other malformed sort is ErrQueryStructure.
func ParseSort(raw any) ([]SortField, error) {
	fields, err := planner.ParseSort(raw)
	switch {
	case err == nil:
		return fields, nil
	case errors.Is(err, planner.ErrUnsupportedSort):
		return nil, SortError("", err)
	}
	return nil, StructureError("parse sort", err)
}
