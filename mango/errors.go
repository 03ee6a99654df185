package mango

import (
	"errors"
	"fmt"

	"github.com/nonibytes/mango/mango/planner"
	"github.com/nonibytes/mango/mango/selector"
)

type ErrorKind string

const (
	ErrQueryStructure  ErrorKind = "query_structure"
	ErrUnsupportedSort ErrorKind = "unsupported_sort"
	ErrStorage         ErrorKind = "storage"
	ErrPersist         ErrorKind = "persist"
	ErrConfig          ErrorKind = "config"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func StructureError(msg string, cause error) *Error {
	return &Error{Kind: ErrQueryStructure, Message: msg, Cause: cause}
}

func SortError(field string, cause error) *Error {
	return &Error{Kind: ErrUnsupportedSort, Message: "sort rejected", Field: field, Cause: cause}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// classify maps errors from the lower packages onto an ErrorKind.
func classify(msg string, err error) error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return err
	case errors.Is(err, selector.ErrStructure):
		return StructureError(msg, err)
	case errors.Is(err, planner.ErrUnsupportedSort):
		return SortError("", err)
	}
	return Wrap(ErrStorage, msg, err)
}
