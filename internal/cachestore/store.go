// Package cachestore implements the durable asset cache: a mapping from
// catalog item id to encoded image payload that survives restarts, degrades to
// session-only memory when storage refuses a write, and is cleared only by an
// explicit invalidation.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l0p7/worryhero/internal/metrics"
	"github.com/l0p7/worryhero/internal/storage"
)

// RecordKey names the durable record holding the asset mapping.
const RecordKey = "asset_cache"

const recordVersion = 1

// PutOutcome reports where a written payload ended up.
type PutOutcome string

const (
	// Persisted means the payload reached durable storage.
	Persisted PutOutcome = "persisted"
	// Degraded means storage refused the write; the payload is visible for
	// this session only.
	Degraded PutOutcome = "degraded"
	// Unchanged means the same payload was already cached.
	Unchanged PutOutcome = "unchanged"
)

var (
	// ErrUnknownItem rejects ids that do not name a catalog item.
	ErrUnknownItem = errors.New("cachestore: unknown item")
	// ErrEmptyPayload rejects writes without an asset.
	ErrEmptyPayload = errors.New("cachestore: empty payload")
	// ErrImmutable rejects a different payload for an id that is already cached.
	ErrImmutable = errors.New("cachestore: entry already cached")
)

// Catalog is the membership check the store uses to keep its keys valid.
type Catalog interface {
	Has(id string) bool
}

type record struct {
	Version int               `json:"version"`
	Assets  map[string]string `json:"assets"`
}

type state struct {
	// view is what readers see, including degraded entries.
	view map[string]string
	// durable is the subset known to be persisted; it is what gets written.
	durable map[string]string
}

// Options wires a Store to its collaborators.
type Options struct {
	Backend storage.Backend
	Catalog Catalog
	Metrics *metrics.Recorder
}

// Store is the process-wide durable cache. Readers see immutable snapshots
// swapped atomically; writers are serialized.
type Store struct {
	backend storage.Backend
	catalog Catalog
	logger  *slog.Logger
	metrics *metrics.Recorder

	writeMu sync.Mutex
	current atomic.Pointer[state]
}

// New builds a store with an empty mapping. Call Load to hydrate it.
func New(logger *slog.Logger, opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, errors.New("cachestore: backend required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("cachestore: catalog required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: opts.Backend,
		catalog: opts.Catalog,
		logger:  logger.With(slog.String("agent", "cache_store")),
		metrics: opts.Metrics,
	}
	s.current.Store(&state{view: map[string]string{}, durable: map[string]string{}})
	return s, nil
}

// Load replaces the in-memory mapping with the persisted one and returns a
// copy of it. Missing, unreadable or corrupt state yields an empty mapping.
func (s *Store) Load(ctx context.Context) map[string]string {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	loaded, result := s.read(ctx)
	s.metrics.ObserveCache(metrics.CacheOperationLoad, result, time.Since(start))

	s.current.Store(&state{view: loaded, durable: maps.Clone(loaded)})
	s.logger.Info("asset cache loaded", slog.Int("entries", len(loaded)), slog.String("result", string(result)))
	return maps.Clone(loaded)
}

func (s *Store) read(ctx context.Context) (map[string]string, metrics.CacheResult) {
	empty := map[string]string{}
	data, err := s.backend.Get(ctx, RecordKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return empty, metrics.CacheResultEmpty
		}
		s.logger.Warn("asset cache unreadable, starting empty", slog.Any("error", err))
		return empty, metrics.CacheResultError
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("asset cache corrupt, starting empty", slog.Any("error", err))
		return empty, metrics.CacheResultCorrupt
	}
	if rec.Version != recordVersion {
		s.logger.Warn("asset cache version unsupported, starting empty", slog.Int("version", rec.Version))
		return empty, metrics.CacheResultCorrupt
	}
	out := make(map[string]string, len(rec.Assets))
	for id, payload := range rec.Assets {
		if payload == "" || !s.catalog.Has(id) {
			s.logger.Debug("dropping stale asset cache entry", slog.String("item_id", id))
			continue
		}
		out[id] = payload
	}
	return out, metrics.CacheResultLoaded
}

// Put caches payload under id and tries to persist it. Storage failures never
// surface as errors: the entry stays visible for the session and the outcome
// is Degraded. Errors are returned only for invalid input.
func (s *Store) Put(ctx context.Context, id, payload string) (PutOutcome, error) {
	if !s.catalog.Has(id) {
		return "", fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}
	if payload == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyPayload, id)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current.Load()
	if existing, ok := cur.view[id]; ok {
		if existing == payload {
			s.metrics.ObserveCache(metrics.CacheOperationPut, metrics.CacheResultUnchanged, 0)
			return Unchanged, nil
		}
		return "", fmt.Errorf("%w: %q", ErrImmutable, id)
	}

	start := time.Now()
	next := &state{view: maps.Clone(cur.view), durable: cur.durable}
	next.view[id] = payload

	durable := maps.Clone(cur.durable)
	durable[id] = payload
	if err := s.persist(ctx, durable); err != nil {
		s.current.Store(next)
		s.metrics.ObserveCache(metrics.CacheOperationPut, metrics.CacheResultDegraded, time.Since(start))
		attrs := []any{slog.String("item_id", id), slog.Any("error", err)}
		if errors.Is(err, storage.ErrCapacityExceeded) {
			s.logger.Warn("storage capacity exceeded, asset kept in memory for this session", attrs...)
		} else {
			s.logger.Error("asset cache write failed, asset kept in memory for this session", attrs...)
		}
		return Degraded, nil
	}
	next.durable = durable
	s.current.Store(next)
	s.metrics.ObserveCache(metrics.CacheOperationPut, metrics.CacheResultPersisted, time.Since(start))
	return Persisted, nil
}

func (s *Store) persist(ctx context.Context, assets map[string]string) error {
	data, err := json.Marshal(record{Version: recordVersion, Assets: assets})
	if err != nil {
		return fmt.Errorf("cachestore: encode: %w", err)
	}
	return s.backend.Set(ctx, RecordKey, data)
}

// Clear removes the durable record and then empties the in-memory mapping.
// When storage refuses the delete nothing changes and the error is returned.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	if err := s.backend.Delete(ctx, RecordKey); err != nil {
		s.metrics.ObserveCache(metrics.CacheOperationClear, metrics.CacheResultError, time.Since(start))
		return fmt.Errorf("cachestore: clear: %w", err)
	}
	s.current.Store(&state{view: map[string]string{}, durable: map[string]string{}})
	s.metrics.ObserveCache(metrics.CacheOperationClear, metrics.CacheResultPersisted, time.Since(start))
	s.logger.Info("asset cache cleared")
	return nil
}

// Snapshot returns a copy of every cached asset, degraded ones included.
func (s *Store) Snapshot() map[string]string {
	return maps.Clone(s.current.Load().view)
}

// Get returns the cached payload for id.
func (s *Store) Get(id string) (string, bool) {
	payload, ok := s.current.Load().view[id]
	return payload, ok
}

// Has reports whether id has a cached asset.
func (s *Store) Has(id string) bool {
	_, ok := s.current.Load().view[id]
	return ok
}

// Len reports how many assets are cached.
func (s *Store) Len() int {
	return len(s.current.Load().view)
}

// Degraded lists, sorted, the ids that are cached for this session only.
func (s *Store) Degraded() []string {
	cur := s.current.Load()
	var out []string
	for id := range cur.view {
		if _, ok := cur.durable[id]; !ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
