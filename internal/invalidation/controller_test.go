package invalidation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/worryhero/internal/cachestore"
	"github.com/l0p7/worryhero/internal/catalog"
	"github.com/l0p7/worryhero/internal/generator"
	"github.com/l0p7/worryhero/internal/profile"
	"github.com/l0p7/worryhero/internal/storage"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingRestarter struct {
	calls int
	err   error
}

func (r *recordingRestarter) Restart(ctx context.Context, prepare func(context.Context) error) error {
	r.calls++
	if err := prepare(ctx); err != nil {
		return err
	}
	return r.err
}

type deleteFailingBackend struct {
	storage.Backend
	err error
}

func (d *deleteFailingBackend) Delete(context.Context, string) error { return d.err }

type fixture struct {
	backend   storage.Backend
	store     *cachestore.Store
	profile   *profile.Profile
	restarter *recordingRestarter
	ctrl      *Controller
}

func newFixture(t *testing.T, backend storage.Backend) *fixture {
	t.Helper()
	ctx := context.Background()
	if backend == nil {
		backend = storage.NewMemory(0)
	}
	cat := catalog.MustNew(
		catalog.Item{ID: "A", Kind: catalog.KindHero},
		catalog.Item{ID: "B", Kind: catalog.KindWorry},
	)
	store, err := cachestore.New(newTestLogger(), cachestore.Options{Backend: backend, Catalog: cat})
	require.NoError(t, err)
	p, err := profile.New(newTestLogger(), backend)
	require.NoError(t, err)

	_, err = store.Put(ctx, "A", "payload-A")
	require.NoError(t, err)
	_, err = store.Put(ctx, "B", "payload-B")
	require.NoError(t, err)
	_, err = p.Save(ctx, []string{generator.DataURI("image/png", []byte{1, 2, 3})})
	require.NoError(t, err)

	restarter := &recordingRestarter{}
	ctrl, err := New(newTestLogger(), Options{Identity: p, Assets: store, Restarter: restarter})
	require.NoError(t, err)
	return &fixture{backend: backend, store: store, profile: p, restarter: restarter, ctrl: ctrl}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestResetIdentityDeclined(t *testing.T) {
	f := newFixture(t, nil)

	var asked string
	ok, step, err := f.ctrl.ResetIdentity(context.Background(), ConfirmFunc(func(_ context.Context, prompt string) bool {
		asked = prompt
		return false
	}))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, IdentityPrompt, asked)
	require.Equal(t, profile.StepWorrySelect, step)
	require.Len(t, f.profile.Photos(), 1)
}

func TestResetIdentityWithoutConfirmerIsDeclined(t *testing.T) {
	f := newFixture(t, nil)
	ok, _, err := f.ctrl.ResetIdentity(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, f.profile.Photos(), 1)
}

func TestResetIdentityConfirmed(t *testing.T) {
	f := newFixture(t, nil)

	ok, step, err := f.ctrl.ResetIdentity(context.Background(), Answer(true))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, profile.StepPhotoUpload, step)
	require.Empty(t, f.profile.Photos())

	_, err = f.backend.Get(context.Background(), profile.RecordKey)
	require.ErrorIs(t, err, storage.ErrNotFound)
	// Assets survive an identity reset.
	require.Equal(t, 2, f.store.Len())
	require.Zero(t, f.restarter.calls)
}

func TestResetAssetsDeclined(t *testing.T) {
	f := newFixture(t, nil)

	ok, err := f.ctrl.ResetAssets(context.Background(), Answer(false))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, f.store.Len())
	require.Zero(t, f.restarter.calls)
}

func TestResetAssetsConfirmed(t *testing.T) {
	f := newFixture(t, nil)

	ok, err := f.ctrl.ResetAssets(context.Background(), Answer(true))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, f.restarter.calls)
	require.Zero(t, f.store.Len())

	_, err = f.backend.Get(context.Background(), cachestore.RecordKey)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Len(t, f.profile.Photos(), 1)
}

func TestResetAssetsReportsStorageFailure(t *testing.T) {
	backend := &deleteFailingBackend{Backend: storage.NewMemory(0)}
	f := newFixture(t, backend)
	backend.err = errors.New("read-only")

	ok, err := f.ctrl.ResetAssets(context.Background(), Answer(true))
	require.True(t, ok)
	require.Error(t, err)
	require.Equal(t, 2, f.store.Len())
}

func TestResetAssetsReportsRestartFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.restarter.err = errors.New("closed")

	ok, err := f.ctrl.ResetAssets(context.Background(), Answer(true))
	require.True(t, ok)
	require.ErrorContains(t, err, "closed")
}
