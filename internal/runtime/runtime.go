// Package runtime owns the acquisition subsystem for the life of the process:
// it hydrates the caches at start, runs the batch scheduler in the background,
// restarts it after an asset reset, and resolves what the presentation layer
// should show for each catalog item.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l0p7/worryhero/internal/cachestore"
	"github.com/l0p7/worryhero/internal/catalog"
	"github.com/l0p7/worryhero/internal/inflight"
	"github.com/l0p7/worryhero/internal/profile"
	"github.com/l0p7/worryhero/internal/scheduler"
)

var (
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("runtime: closed")
	// ErrNotStarted is returned by Restart before Start.
	ErrNotStarted = errors.New("runtime: not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("runtime: already started")
)

// Runner runs one acquisition pass.
type Runner interface {
	Run(ctx context.Context) scheduler.Report
}

// Options wires a Runtime.
type Options struct {
	Catalog    *catalog.Catalog
	Store      *cachestore.Store
	Tracker    *inflight.Tracker
	Scheduler  Runner
	Profile    *profile.Profile
	StartDelay time.Duration
}

// Runtime coordinates the subsystem's owned state.
type Runtime struct {
	catalog    *catalog.Catalog
	store      *cachestore.Store
	tracker    *inflight.Tracker
	scheduler  Runner
	profile    *profile.Profile
	startDelay time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	started    bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}
	generation atomic.Int64

	last atomic.Pointer[scheduler.Report]
}

// New validates opts and returns an idle Runtime.
func New(logger *slog.Logger, opts Options) (*Runtime, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("runtime: catalog required")
	case opts.Store == nil:
		return nil, errors.New("runtime: cache store required")
	case opts.Tracker == nil:
		return nil, errors.New("runtime: tracker required")
	case opts.Scheduler == nil:
		return nil, errors.New("runtime: scheduler required")
	case opts.Profile == nil:
		return nil, errors.New("runtime: profile required")
	}
	if opts.StartDelay < 0 {
		return nil, fmt.Errorf("runtime: start delay invalid: %s", opts.StartDelay)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		catalog:    opts.Catalog,
		store:      opts.Store,
		tracker:    opts.Tracker,
		scheduler:  opts.Scheduler,
		profile:    opts.Profile,
		startDelay: opts.StartDelay,
		logger:     logger.With(slog.String("agent", "runtime")),
	}, nil
}

// Start hydrates the profile and asset cache from durable storage and then
// schedules the first acquisition run after the configured delay. It returns
// without waiting for the run.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}
	r.hydrate(ctx)
	r.started = true
	r.launch()
	return nil
}

// Restart stops dispatching in the active run, waits for its dispatched
// fetches to settle, runs prepare, reloads state from durable storage and
// begins a fresh run. When prepare fails the fresh run still starts from the
// current state and the error is returned. When ctx ends before the active run
// settles, prepare is skipped and a fresh run is queued behind the old one.
func (r *Runtime) Restart(ctx context.Context, prepare func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if !r.started {
		return ErrNotStarted
	}
	if err := r.stop(ctx); err != nil {
		// The cancelled run drops its undispatched items; queue a replacement.
		r.logger.Warn("restart aborted while waiting for active run, acquisition resumes after it settles", slog.Any("error", err))
		r.launch()
		return err
	}

	var prepErr error
	if prepare != nil {
		prepErr = prepare(ctx)
	}
	if prepErr != nil {
		r.logger.Error("restart preparation failed, resuming with current state", slog.Any("error", prepErr))
	} else {
		r.hydrate(ctx)
	}
	r.launch()
	if prepErr != nil {
		return fmt.Errorf("runtime: restart: %w", prepErr)
	}
	return nil
}

// Wait blocks until the current run has finished or ctx is done.
func (r *Runtime) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops dispatching and waits for in-flight fetches to settle.
// Subsequent calls are no-ops.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.stop(ctx)
}

// LastReport returns the report of the most recently finished run.
func (r *Runtime) LastReport() (scheduler.Report, bool) {
	rep := r.last.Load()
	if rep == nil {
		return scheduler.Report{}, false
	}
	return *rep, true
}

// Generation counts the runs launched so far; it increases on every restart.
func (r *Runtime) Generation() int64 {
	return r.generation.Load()
}

// Profile exposes the personalization record.
func (r *Runtime) Profile() *profile.Profile { return r.profile }

// Store exposes the asset cache.
func (r *Runtime) Store() *cachestore.Store { return r.store }

func (r *Runtime) hydrate(ctx context.Context) {
	photos := r.profile.Load(ctx)
	assets := r.store.Load(ctx)
	r.logger.Info("state hydrated",
		slog.Int("photos", len(photos)),
		slog.Int("assets", len(assets)),
		slog.Int("catalog", r.catalog.Len()))
}

// launch starts a background run. The run waits for the previous one to
// finish first, and its done channel closes only after both have. Callers
// hold r.mu.
func (r *Runtime) launch() {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	prev := r.done
	r.cancel = cancel
	r.done = done
	gen := r.generation.Add(1)
	delay := r.startDelay
	logger := r.logger.With(slog.Int64("generation", gen))

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			defer func() { <-prev }()
			select {
			case <-prev:
			case <-runCtx.Done():
				logger.Debug("run cancelled while waiting for previous run")
				return
			}
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-runCtx.Done():
				timer.Stop()
				logger.Debug("run cancelled before start")
				return
			}
		}
		report := r.scheduler.Run(runCtx)
		if r.generation.Load() == gen {
			r.last.Store(&report)
		}
		logger.Debug("run finished", slog.String("run_id", report.RunID))
	}()
}

// stop cancels the active run and waits for it. Callers hold r.mu.
func (r *Runtime) stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runtime: waiting for active run: %w", ctx.Err())
	}
}
