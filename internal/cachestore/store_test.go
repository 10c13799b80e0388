package cachestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/l0p7/worryhero/internal/catalog"
	"github.com/l0p7/worryhero/internal/metrics"
	"github.com/l0p7/worryhero/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testCatalog() *catalog.Catalog {
	return catalog.MustNew(
		catalog.Item{ID: "A", Kind: catalog.KindHero},
		catalog.Item{ID: "B", Kind: catalog.KindHero},
		catalog.Item{ID: "C", Kind: catalog.KindWorry},
		catalog.Item{ID: "D", Kind: catalog.KindWorry},
	)
}

// rejectingBackend refuses writes whose value contains any marker.
type rejectingBackend struct {
	storage.Backend

	mu        sync.Mutex
	markers   []string
	err       error
	deleteErr error
	getErr    error
}

func (r *rejectingBackend) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.markers {
		if strings.Contains(string(value), m) {
			return r.err
		}
	}
	return r.Backend.Set(ctx, key, value)
}

func (r *rejectingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Backend.Get(ctx, key)
}

func (r *rejectingBackend) Delete(ctx context.Context, key string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.Backend.Delete(ctx, key)
}

func newStore(t *testing.T, backend storage.Backend) *Store {
	t.Helper()
	s, err := New(newTestLogger(), Options{Backend: backend, Catalog: testCatalog(), Metrics: metrics.NewRecorder(nil)})
	require.NoError(t, err)
	return s
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, Options{Catalog: testCatalog()})
	require.Error(t, err)
	_, err = New(nil, Options{Backend: storage.NewMemory(0)})
	require.Error(t, err)
}

func TestLoadAbsentStateIsEmpty(t *testing.T) {
	s := newStore(t, storage.NewMemory(0))
	loaded := s.Load(context.Background())
	require.Empty(t, loaded)
	require.Zero(t, s.Len())
}

func TestLoadCorruptStateIsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, raw := range map[string]string{
		"not json":      "{{{",
		"wrong version": `{"version":99,"assets":{"A":"x"}}`,
		"wrong shape":   `["A","B"]`,
	} {
		t.Run(name, func(t *testing.T) {
			backend := storage.NewMemory(0)
			require.NoError(t, backend.Set(ctx, RecordKey, []byte(raw)))
			s := newStore(t, backend)
			require.Empty(t, s.Load(ctx))
		})
	}
}

func TestLoadUnreadableStateIsEmpty(t *testing.T) {
	backend := &rejectingBackend{Backend: storage.NewMemory(0), getErr: errors.New("disk on fire")}
	s := newStore(t, backend)
	require.Empty(t, s.Load(context.Background()))
}

func TestLoadDropsUnknownAndEmptyEntries(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory(0)
	require.NoError(t, backend.Set(ctx, RecordKey, []byte(`{"version":1,"assets":{"A":"img-a","Z":"img-z","B":""}}`)))

	s := newStore(t, backend)
	require.Equal(t, map[string]string{"A": "img-a"}, s.Load(ctx))
}

func TestPutPersistsAndSurvivesReload(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory(0)
	s := newStore(t, backend)
	s.Load(ctx)

	outcome, err := s.Put(ctx, "A", "img-a")
	require.NoError(t, err)
	require.Equal(t, Persisted, outcome)

	fresh := newStore(t, backend)
	require.Equal(t, map[string]string{"A": "img-a"}, fresh.Load(ctx))
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemory(0))

	_, err := s.Put(ctx, "A", "img-a")
	require.NoError(t, err)
	before := s.Snapshot()

	outcome, err := s.Put(ctx, "A", "img-a")
	require.NoError(t, err)
	require.Equal(t, Unchanged, outcome)
	require.Equal(t, before, s.Snapshot())
}

func TestPutRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemory(0))

	_, err := s.Put(ctx, "Z", "img")
	require.ErrorIs(t, err, ErrUnknownItem)

	_, err = s.Put(ctx, "A", "")
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = s.Put(ctx, "A", "img-a")
	require.NoError(t, err)
	_, err = s.Put(ctx, "A", "img-other")
	require.ErrorIs(t, err, ErrImmutable)
	payload, ok := s.Get("A")
	require.True(t, ok)
	require.Equal(t, "img-a", payload)
}

func TestPutDegradesWhenCapacityExceeded(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory(0)
	backend := &rejectingBackend{Backend: mem, markers: []string{"img-c"}, err: storage.ErrCapacityExceeded}
	s := newStore(t, backend)
	s.Load(ctx)

	outcome, err := s.Put(ctx, "A", "img-a")
	require.NoError(t, err)
	require.Equal(t, Persisted, outcome)

	outcome, err = s.Put(ctx, "C", "img-c")
	require.NoError(t, err)
	require.Equal(t, Degraded, outcome)

	outcome, err = s.Put(ctx, "D", "img-d")
	require.NoError(t, err)
	require.Equal(t, Persisted, outcome)

	// Session view includes the degraded entry.
	require.Equal(t, map[string]string{"A": "img-a", "C": "img-c", "D": "img-d"}, s.Snapshot())
	require.Equal(t, []string{"C"}, s.Degraded())

	// A fresh run only sees what reached storage.
	fresh := newStore(t, mem)
	require.Equal(t, map[string]string{"A": "img-a", "D": "img-d"}, fresh.Load(ctx))
}

func TestPutDegradesOnRealCapacityBound(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory(80)
	s := newStore(t, backend)

	outcome, err := s.Put(ctx, "A", "a")
	require.NoError(t, err)
	require.Equal(t, Persisted, outcome)

	outcome, err = s.Put(ctx, "B", strings.Repeat("b", 200))
	require.NoError(t, err)
	require.Equal(t, Degraded, outcome)
	require.True(t, s.Has("B"))
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory(0)
	s := newStore(t, backend)
	for _, id := range []string{"A", "B", "C"} {
		_, err := s.Put(ctx, id, "img-"+id)
		require.NoError(t, err)
	}

	require.NoError(t, s.Clear(ctx))
	require.Zero(t, s.Len())
	for _, id := range []string{"A", "B", "C", "D"} {
		require.False(t, s.Has(id))
	}

	fresh := newStore(t, backend)
	require.Empty(t, fresh.Load(ctx))
}

func TestClearIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	backend := &rejectingBackend{Backend: storage.NewMemory(0), deleteErr: errors.New("read-only")}
	s := newStore(t, backend)
	_, err := s.Put(ctx, "A", "img-a")
	require.NoError(t, err)

	require.Error(t, s.Clear(ctx))
	require.Equal(t, 1, s.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemory(0))
	_, err := s.Put(ctx, "A", "img-a")
	require.NoError(t, err)

	snap := s.Snapshot()
	snap["A"] = "tampered"
	snap["B"] = "injected"

	payload, _ := s.Get("A")
	require.Equal(t, "img-a", payload)
	require.False(t, s.Has("B"))
}

func TestConcurrentPutsAllLand(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory(0)
	s := newStore(t, backend)

	var wg sync.WaitGroup
	for _, id := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Put(ctx, id, "img-"+id)
			require.NoError(t, err)
		}(id)
	}
	wg.Wait()

	require.Equal(t, 4, s.Len())
	fresh := newStore(t, backend)
	require.Len(t, fresh.Load(ctx), 4)
}
