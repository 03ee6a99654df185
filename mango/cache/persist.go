package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nonibytes/mango/mango/metrics"
	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/template"
)

const (
	// StorageKey is the single KV key holding the persisted template blob.
	StorageKey = "mango:templates"
	// SchemaVersion is written as "v"; blobs with any other version are dropped.
	SchemaVersion = 1

	DefaultPersistDelay = 300 * time.Millisecond
	DefaultMaxPersisted = 256
)

// PersistOptions configures a Persister.
type PersistOptions struct {
	Key          string
	Delay        time.Duration
	MaxPersisted int
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// DefaultPersistOptions returns the options used when none are given.
func DefaultPersistOptions() PersistOptions {
	return PersistOptions{
		Key:          StorageKey,
		Delay:        DefaultPersistDelay,
		MaxPersisted: DefaultMaxPersisted,
	}
}

// Persisted is one template read back from storage.
type Persisted struct {
	Key   string
	Shape map[string]any
}

// blob is the stored form: {"v": 1, "e": [[key, template], ...]}.
type blob struct {
	V int               `json:"v"`
	E []json.RawMessage `json:"e"`
}

type persistedEntry struct {
	key   string
	shape json.RawMessage
}

// Persister writes template shapes to a KV store, coalescing every Schedule
// call inside one delay window into a single read-merge-write.
type Persister struct {
	kv      storage.KV
	opts    PersistOptions
	log     *zap.Logger
	metrics *metrics.Metrics

	warming atomic.Bool

	mu      sync.Mutex
	pending []persistedEntry
	timer   *time.Timer
	closed  bool

	// writeMu serializes read-merge-write cycles.
	writeMu sync.Mutex
}

// NewPersister creates a Persister over kv.
func NewPersister(kv storage.KV, opts PersistOptions) *Persister {
	def := DefaultPersistOptions()
	if opts.Key == "" {
		opts.Key = def.Key
	}
	if opts.Delay <= 0 {
		opts.Delay = def.Delay
	}
	if opts.MaxPersisted <= 0 {
		opts.MaxPersisted = def.MaxPersisted
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Persister{
		kv:      kv,
		opts:    opts,
		log:     log.Named("persist"),
		metrics: opts.Metrics,
	}
}

// SetWarming toggles the warming flag. While set, Schedule is a no-op so that
// restoring the cache does not write back what it just read.
func (p *Persister) SetWarming(on bool) {
	p.warming.Store(on)
}

func (p *Persister) Warming() bool {
	return p.warming.Load()
}

// Schedule queues shape under key for the next write.
func (p *Persister) Schedule(key string, shape map[string]any) {
	if p.warming.Load() {
		return
	}
	raw, err := template.EncodeShape(shape)
	if err != nil {
		p.log.Warn("skip unencodable template", zap.String("key", key), zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending = appendEntry(p.pending, persistedEntry{key: key, shape: raw})
	if p.timer == nil {
		p.timer = time.AfterFunc(p.opts.Delay, func() {
			if err := p.Flush(context.Background()); err != nil {
				p.log.Warn("persist templates", zap.Error(err))
			}
		})
	}
}

// Flush writes pending templates now. Storage failures are counted and
// returned; they never affect the in-memory cache.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	existing, err := p.read(ctx)
	if err != nil {
		p.metrics.PersistError()
		return fmt.Errorf("read %s: %w", p.opts.Key, err)
	}
	merged := existing
	for _, e := range pending {
		merged = appendEntry(merged, e)
	}
	if over := len(merged) - p.opts.MaxPersisted; over > 0 {
		merged = merged[over:]
	}

	data, err := encodeBlob(merged)
	if err != nil {
		p.metrics.PersistError()
		return err
	}
	if err := p.kv.Set(ctx, p.opts.Key, string(data)); err != nil {
		p.metrics.PersistError()
		return fmt.Errorf("write %s: %w", p.opts.Key, err)
	}
	p.metrics.PersistWrite()
	p.log.Debug("persisted templates", zap.Int("written", len(pending)), zap.Int("total", len(merged)))
	return nil
}

// Load returns the persisted templates whose key starts with prefix. A blob
// with the wrong version or unparsable content is discarded and yields none.
func (p *Persister) Load(ctx context.Context, prefix string) ([]Persisted, error) {
	entries, err := p.read(ctx)
	if err != nil {
		p.metrics.PersistError()
		return nil, fmt.Errorf("read %s: %w", p.opts.Key, err)
	}
	var out []Persisted
	for _, e := range entries {
		if !strings.HasPrefix(e.key, prefix) {
			continue
		}
		shape, err := template.DecodeShape(e.shape)
		if err != nil {
			// read already validated every shape.
			continue
		}
		out = append(out, Persisted{Key: e.key, Shape: shape})
	}
	return out, nil
}

// Close flushes pending templates and stops accepting new ones.
func (p *Persister) Close(ctx context.Context) error {
	err := p.Flush(ctx)
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return err
}

// read loads and validates the stored blob. Only KV errors are returned;
// a bad blob is logged and treated as empty.
func (p *Persister) read(ctx context.Context) ([]persistedEntry, error) {
	raw, ok, err := p.kv.Get(ctx, p.opts.Key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	entries, reason, err := decodeBlob([]byte(raw))
	if err != nil {
		p.metrics.PersistDiscard(reason)
		p.log.Warn("discard persisted templates",
			zap.String("key", p.opts.Key),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

func decodeBlob(data []byte) ([]persistedEntry, string, error) {
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, "corrupt", err
	}
	if b.V != SchemaVersion {
		return nil, "version", fmt.Errorf("schema version %d, want %d", b.V, SchemaVersion)
	}
	entries := make([]persistedEntry, 0, len(b.E))
	for i, raw := range b.E {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return nil, "corrupt", fmt.Errorf("entry %d is not a [key, template] pair", i)
		}
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return nil, "corrupt", fmt.Errorf("entry %d key: %w", i, err)
		}
		if _, err := template.DecodeShape(pair[1]); err != nil {
			return nil, "corrupt", fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, persistedEntry{key: key, shape: pair[1]})
	}
	return entries, "", nil
}

func encodeBlob(entries []persistedEntry) ([]byte, error) {
	b := blob{V: SchemaVersion, E: make([]json.RawMessage, 0, len(entries))}
	for _, e := range entries {
		pair, err := json.Marshal([]any{e.key, e.shape})
		if err != nil {
			return nil, fmt.Errorf("encode entry %s: %w", e.key, err)
		}
		b.E = append(b.E, pair)
	}
	return json.Marshal(b)
}

// appendEntry adds e as the most recent entry, replacing an older one with the same key.
func appendEntry(entries []persistedEntry, e persistedEntry) []persistedEntry {
	for i := range entries {
		if entries[i].key == e.key {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	return append(entries, e)
}
