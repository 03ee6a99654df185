package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/mango/mango/metrics"
	"github.com/nonibytes/mango/mango/selector"
	"github.com/nonibytes/mango/mango/storage"
)

// countingKV wraps MemoryKV and counts writes.
type countingKV struct {
	*storage.MemoryKV
	mu     sync.Mutex
	writes int
	fail   error
}

func newCountingKV() *countingKV {
	return &countingKV{MemoryKV: storage.NewMemoryKV()}
}

func (k *countingKV) Set(ctx context.Context, key, value string) error {
	k.mu.Lock()
	k.writes++
	fail := k.fail
	k.mu.Unlock()
	if fail != nil {
		return fail
	}
	return k.MemoryKV.Set(ctx, key, value)
}

func (k *countingKV) Writes() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.writes
}

func shape(field string) map[string]any {
	return map[string]any{field: selector.Placeholder{Index: 0}}
}

func TestPersisterDebouncesBursts(t *testing.T) {
	kv := newCountingKV()
	p := NewPersister(kv, PersistOptions{Delay: 20 * time.Millisecond})

	p.Schedule("tp:a", shape("a"))
	p.Schedule("tp:b", shape("b"))
	p.Schedule("tp:a", shape("a"))

	require.Eventually(t, func() bool { return kv.Writes() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, kv.Writes())

	got, err := p.Load(context.Background(), "tp:")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tp:b", got[0].Key)
	assert.Equal(t, "tp:a", got[1].Key)
	assert.Equal(t, shape("a"), got[1].Shape)
}

func TestPersisterMergesWithStoredBlob(t *testing.T) {
	ctx := context.Background()
	kv := newCountingKV()
	p := NewPersister(kv, PersistOptions{Delay: time.Hour})

	p.Schedule("tp:a", shape("a"))
	require.NoError(t, p.Flush(ctx))

	other := NewPersister(kv, PersistOptions{Delay: time.Hour})
	other.Schedule("td:b", shape("b"))
	require.NoError(t, other.Flush(ctx))

	all, err := p.Load(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	predicates, err := p.Load(ctx, PrefixPredicate)
	require.NoError(t, err)
	require.Len(t, predicates, 1)
	assert.Equal(t, "tp:a", predicates[0].Key)
}

func TestPersisterBlobFormat(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	p := NewPersister(kv, PersistOptions{})

	p.Schedule("tp:x", shape("x"))
	require.NoError(t, p.Flush(ctx))

	raw, found, err := kv.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"v":1,"e":[["tp:x",{"x":{"$$ph":0}}]]}`, raw)
}

func TestPersisterDiscardsBadBlobs(t *testing.T) {
	tests := []struct {
		name   string
		blob   string
		reason string
	}{
		{"version mismatch", `{"v":2,"e":[["tp:x",{"x":{"$$ph":0}}]]}`, "version"},
		{"missing version", `{"e":[]}`, "version"},
		{"unparsable", `{"v":1,"e":[`, "corrupt"},
		{"bad pair", `{"v":1,"e":[["tp:x"]]}`, "corrupt"},
		{"bad template", `{"v":1,"e":[["tp:ok",{"a":{"$$ph":0}}],["tp:x",[1]]]}`, "corrupt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := storage.NewMemoryKV()
			require.NoError(t, kv.Set(ctx, StorageKey, tt.blob))
			m := metrics.New(prometheus.NewRegistry())
			p := NewPersister(kv, PersistOptions{Metrics: m})

			got, err := p.Load(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistDiscards.WithLabelValues(tt.reason)))

			// The next write starts from an empty blob.
			p.Schedule("tp:y", shape("y"))
			require.NoError(t, p.Flush(ctx))
			got, err = p.Load(ctx, "")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "tp:y", got[0].Key)
		})
	}
}

func TestPersisterWarmingSuppressesSchedule(t *testing.T) {
	ctx := context.Background()
	kv := newCountingKV()
	p := NewPersister(kv, PersistOptions{Delay: time.Hour})

	p.SetWarming(true)
	assert.True(t, p.Warming())
	p.Schedule("tp:a", shape("a"))
	p.SetWarming(false)

	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, 0, kv.Writes())
}

func TestPersisterKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	p := NewPersister(kv, PersistOptions{Delay: time.Hour, MaxPersisted: 2})

	p.Schedule("tp:1", shape("a"))
	p.Schedule("tp:2", shape("b"))
	p.Schedule("tp:3", shape("c"))
	require.NoError(t, p.Flush(ctx))

	got, err := p.Load(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tp:2", got[0].Key)
	assert.Equal(t, "tp:3", got[1].Key)
}

func TestPersisterWriteFailure(t *testing.T) {
	ctx := context.Background()
	kv := newCountingKV()
	kv.fail = errors.New("disk full")
	m := metrics.New(prometheus.NewRegistry())
	p := NewPersister(kv, PersistOptions{Delay: time.Hour, Metrics: m})

	p.Schedule("tp:a", shape("a"))
	err := p.Flush(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistErrors))
}

func TestPersisterCloseFlushesAndStops(t *testing.T) {
	ctx := context.Background()
	kv := newCountingKV()
	p := NewPersister(kv, PersistOptions{Delay: time.Hour})

	p.Schedule("tp:a", shape("a"))
	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 1, kv.Writes())

	p.Schedule("tp:b", shape("b"))
	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, 1, kv.Writes())
}

func TestDecodeBlobRoundTrip(t *testing.T) {
	data, err := encodeBlob([]persistedEntry{{key: "tp:a", shape: json.RawMessage(`{"a":{"$$ph":0}}`)}})
	require.NoError(t, err)

	entries, reason, err := decodeBlob(data)
	require.NoError(t, err)
	assert.Empty(t, reason)
	require.Len(t, entries, 1)
	assert.Equal(t, "tp:a", entries[0].key)
}
