package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const people = `{"_id":"a","name":"ann","age":31,"city":"NYC"}
{"_id":"b","name":"bob","age":25,"city":"LA"}

{"_id":"c","name":"cid","age":40,"city":"NYC"}
`

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

// sqliteArgs points every command at one database in a temp dir.
func sqliteArgs(t *testing.T) []string {
	t.Helper()
	t.Chdir(t.TempDir())
	return []string{"--sqlite-path", filepath.Join(t.TempDir(), "docs.db"), "--index", "age,city"}
}

func TestPutAndQuery(t *testing.T) {
	base := sqliteArgs(t)

	res := run(t, people, append(base, "put")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "imported 3\n", res.stdout)

	res = run(t, "", append(base, "--format", "ids", "query", "-w", `{"age":{"$gte":30}}`, "-s", "-age")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "c\na\n", res.stdout)

	res = run(t, "", append(base, "query", "-w", `{"city":"NYC","name":{"$regex":"^a"}}`)...)
	require.Equal(t, 0, res.code, res.stderr)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.Equal(t, "ann", doc["name"])

	res = run(t, "", append(base, "--format", "json", "query", "-w", `{"age":{"$gt":100}}`)...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.JSONEq(t, `[]`, res.stdout)
}

func TestPutSingleDocument(t *testing.T) {
	base := sqliteArgs(t)
	res := run(t, "", append(base, "put", "--doc", `{"_id":"x","v":1}`)...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "x\n", res.stdout)

	res = run(t, "", append(base, "put", "--doc", `[1]`)...)
	assert.Equal(t, 2, res.code)
}

func TestTemplatesPersistAcrossRuns(t *testing.T) {
	base := sqliteArgs(t)
	require.Equal(t, 0, run(t, people, append(base, "put")...).code)

	res := run(t, "", append(base, "query", "-w", `{"age":{"$gt":1},"city":"NYC"}`)...)
	require.Equal(t, 0, res.code, res.stderr)

	res = run(t, "", append(base, "cache", "warm")...)
	require.Equal(t, 0, res.code, res.stderr)
	var report struct {
		Predicates int `json:"predicates"`
		Analyses   int `json:"analyses"`
		Failed     int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, 1, report.Analyses)
	assert.GreaterOrEqual(t, report.Predicates, 1)
	assert.Zero(t, report.Failed)

	res = run(t, "", append(base, "cache", "stats", "--keys")...)
	require.Equal(t, 0, res.code, res.stderr)
	var stats struct {
		Analyses struct {
			Size int      `json:"size"`
			Keys []string `json:"keys"`
		} `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	assert.Equal(t, 1, stats.Analyses.Size)
	require.Len(t, stats.Analyses.Keys, 1)
	assert.True(t, strings.HasPrefix(stats.Analyses.Keys[0], "td:"))
}

func TestExplain(t *testing.T) {
	t.Chdir(t.TempDir())
	res := run(t, "", "--backend", "memory", "--store", "none", "--index", "status",
		"explain", "-w", `{"status":{"$in":[1,2]},"owner":{"$exists":true}}`, "-n", "5")
	require.Equal(t, 0, res.code, res.stderr)

	var ex struct {
		Strategy string         `json:"strategy"`
		Pushdown string         `json:"pushdown"`
		Residual map[string]any `json:"residual"`
		Steps    []string       `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &ex))
	assert.Equal(t, "anyOf", ex.Strategy)
	assert.Equal(t, `where("status").anyOf([1, 2])`, ex.Pushdown)
	assert.Equal(t, map[string]any{"owner": map[string]any{"$exists": true}}, ex.Residual)
	assert.Equal(t, "limit(5)", ex.Steps[len(ex.Steps)-1])
}

func TestQueryMemoryImport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "people.jsonl")
	require.NoError(t, os.WriteFile(file, []byte(people), 0o644))

	res := run(t, "", "--backend", "memory", "--store", "none", "--format", "ids",
		"query", "--import", file, "-w", `{"city":"NYC"}`, "-s", `[{"name":"asc"}]`)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "a\nc\n", res.stdout)
}

func TestFilter(t *testing.T) {
	t.Chdir(t.TempDir())
	mem := []string{"--backend", "memory", "--store", "none"}

	res := run(t, people, append(mem, "filter", "-w", `{"city":{"$ne":"LA"}}`)...)
	require.Equal(t, 0, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Equal(t, []string{
		`{"_id":"a","name":"ann","age":31,"city":"NYC"}`,
		`{"_id":"c","name":"cid","age":40,"city":"NYC"}`,
	}, lines)

	res = run(t, people, append(mem, "filter", "-c", "-w", `{"age":{"$lt":35}}`)...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "2\n", res.stdout)

	res = run(t, "not json\n", append(mem, "filter")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "line 1")
}

func TestDelete(t *testing.T) {
	base := sqliteArgs(t)
	require.Equal(t, 0, run(t, people, append(base, "put")...).code)

	res := run(t, "", append(base, "delete")...)
	assert.Equal(t, 2, res.code)

	res = run(t, "", append(base, "delete", "-w", `{"city":"NYC"}`)...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "deleted 2\n", res.stdout)

	res = run(t, "", append(base, "--format", "ids", "query")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "b\n", res.stdout)
}

func TestExitCodes(t *testing.T) {
	t.Chdir(t.TempDir())
	mem := []string{"--backend", "memory", "--store", "none"}
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"help", []string{"--help"}, 0},
		{"unknown command", []string{"frobnicate"}, 2},
		{"unknown flag", []string{"query", "--nope"}, 2},
		{"bad selector json", append(mem, "query", "-w", "{"), 2},
		{"structural selector error", append(mem, "query", "-w", `{"$or":"x"}`), 2},
		{"multi-field sort", append(mem, "query", "-s", "a,b"), 2},
		{"bad backend", []string{"--backend", "redis", "query"}, 2},
		{"unreachable postgres", []string{"--backend", "postgres", "--pg-dsn", "postgres://u@127.0.0.1:1/db?connect_timeout=1", "query"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, "", tt.args...)
			assert.Equal(t, tt.code, res.code, res.stderr)
		})
	}
}
