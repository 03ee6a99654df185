package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/nonibytes/mango/internal/cliopt"
	"github.com/nonibytes/mango/internal/cliutil"
	"github.com/nonibytes/mango/mango"
	"github.com/nonibytes/mango/mango/selector"
	"github.com/nonibytes/mango/mango/storage"
)

// Env carries the global options and streams shared by every command.
type Env struct {
	G   *cliopt.GlobalOptions
	In  io.Reader
	Out io.Writer
	Err io.Writer
	Log *zap.Logger
}

// UsageError marks errors caused by bad input rather than a failing backend.
type UsageError struct{ Err error }

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

func usagef(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// IsUsage reports whether err should exit with status 2.
func IsUsage(err error) bool {
	var u *UsageError
	return errors.As(err, &u) ||
		mango.IsKind(err, mango.ErrQueryStructure) ||
		mango.IsKind(err, mango.ErrUnsupportedSort)
}

// open connects the configured runtime and restores persisted templates.
func (e *Env) open(ctx context.Context) (*cliutil.Runtime, error) {
	rt, err := cliutil.Open(ctx, e.G.Config, e.Log)
	if err != nil {
		return nil, err
	}
	if _, err := rt.Engine.Warm(ctx); err != nil {
		// A broken store must not keep queries from running.
		e.Log.Warn("template warm failed", zap.Error(err))
	}
	return rt, nil
}

func (e *Env) close(ctx context.Context, rt *cliutil.Runtime) {
	if err := rt.Close(ctx); err != nil {
		e.Log.Error("close runtime", zap.Error(err))
	}
}

func (e *Env) format() cliutil.OutputFormat {
	return cliutil.ParseOutputFormat(e.G.Format)
}

func parseSelector(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	sel, err := selector.FromJSON([]byte(raw))
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	return sel, nil
}

// parseSort accepts Mango sort JSON (["f"], [{"f":"desc"}]) or the shorthand
// "f" / "-f".
func parseSort(raw string) ([]mango.SortField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var sortSpec any
	if strings.HasPrefix(raw, "[") {
		v, err := selector.FromJSON([]byte(raw))
		if err != nil {
			return nil, &UsageError{Err: fmt.Errorf("decode sort: %w", err)}
		}
		sortSpec = v
	} else {
		var items []any
		for _, f := range strings.Split(raw, ",") {
			f = strings.TrimSpace(f)
			if name, ok := strings.CutPrefix(f, "-"); ok {
				items = append(items, map[string]any{name: "desc"})
			} else {
				items = append(items, f)
			}
		}
		sortSpec = items
	}
	return mango.ParseSort(sortSpec)
}

// importDocs stores every JSON line of r and returns how many were written.
func importDocs(ctx context.Context, w storage.Writer, r io.Reader) (int, error) {
	count := 0
	err := cliutil.ReadJSONLines(r, func(_ []byte, doc storage.Document) error {
		if _, err := w.Put(ctx, doc); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func importFile(ctx context.Context, w storage.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &UsageError{Err: err}
	}
	defer f.Close()
	return importDocs(ctx, w, f)
}
