package cliutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nonibytes/mango/mango/storage"
)

type OutputFormat string

const (
	FormatJSONL  OutputFormat = "jsonl"
	FormatJSON   OutputFormat = "json"
	FormatPretty OutputFormat = "pretty"
	FormatIDs    OutputFormat = "ids"
)

func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatJSONL, FormatJSON, FormatPretty, FormatIDs:
		return OutputFormat(s)
	default:
		return FormatJSONL
	}
}

func PrintJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// WriteDocs prints docs in the requested format.
func WriteDocs(w io.Writer, format OutputFormat, docs []storage.Document) error {
	switch format {
	case FormatJSON:
		if docs == nil {
			docs = []storage.Document{}
		}
		PrintJSON(w, docs)
	case FormatPretty:
		for _, d := range docs {
			PrintJSON(w, d)
		}
	case FormatIDs:
		for _, d := range docs {
			fmt.Fprintln(w, d[storage.IDField])
		}
	default:
		enc := json.NewEncoder(w)
		for _, d := range docs {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxLine bounds a single JSON line.
const maxLine = 16 << 20

// ReadJSONLines calls fn for every non-blank line of r with the line and its
// decoded object. Lines that are not JSON objects fail with their line number.
func ReadJSONLines(r io.Reader, fn func(line []byte, doc storage.Document) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var doc storage.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if doc == nil {
			return fmt.Errorf("line %d: not a JSON object", n)
		}
		if err := fn(line, doc); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}
