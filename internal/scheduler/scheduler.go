// Package scheduler drives asset acquisition: it computes which catalog items
// lack a cached asset and fetches them in sequential batches of concurrent
// requests, isolating every item's failure from the rest of the run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/l0p7/worryhero/internal/cachestore"
	"github.com/l0p7/worryhero/internal/catalog"
	"github.com/l0p7/worryhero/internal/generator"
	"github.com/l0p7/worryhero/internal/metrics"
)

// DefaultBatchSize bounds concurrent outbound requests.
const DefaultBatchSize = 3

// Cache is the slice of the durable cache store the scheduler writes to.
type Cache interface {
	Has(id string) bool
	Put(ctx context.Context, id, payload string) (cachestore.PutOutcome, error)
}

// Tracker is the in-flight set.
type Tracker interface {
	Add(ids ...string) []string
	Remove(id string)
}

// Prompts turns a catalog item into a generation description.
type Prompts interface {
	Build(item catalog.Item) (string, error)
}

// Options wires a Scheduler.
type Options struct {
	Catalog   *catalog.Catalog
	Cache     Cache
	Tracker   Tracker
	Generator generator.Generator
	Prompts   Prompts
	BatchSize int
	Metrics   *metrics.Recorder
}

// Scheduler runs the batch fetch pipeline. A single Scheduler may be run
// repeatedly; concurrent runs never dispatch the same id twice because ids
// are claimed through the tracker.
type Scheduler struct {
	catalog   *catalog.Catalog
	cache     Cache
	tracker   Tracker
	generator generator.Generator
	prompts   Prompts
	batchSize int
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// New validates opts and returns a Scheduler.
func New(logger *slog.Logger, opts Options) (*Scheduler, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("scheduler: catalog required")
	case opts.Cache == nil:
		return nil, errors.New("scheduler: cache required")
	case opts.Tracker == nil:
		return nil, errors.New("scheduler: tracker required")
	case opts.Generator == nil:
		return nil, errors.New("scheduler: generator required")
	case opts.Prompts == nil:
		return nil, errors.New("scheduler: prompt builder required")
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("scheduler: batch size invalid: %d", opts.BatchSize)
	}
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		catalog:   opts.Catalog,
		cache:     opts.Cache,
		tracker:   opts.Tracker,
		generator: opts.Generator,
		prompts:   opts.Prompts,
		batchSize: batchSize,
		metrics:   opts.Metrics,
		logger:    logger.With(slog.String("agent", "scheduler")),
	}, nil
}

// BatchSize reports the effective batch size.
func (s *Scheduler) BatchSize() int { return s.batchSize }

// Run fetches every missing asset once. It never returns an error: each item
// settles as success, empty or failure, and the report says which.
//
// Cancelling ctx stops further batches from being dispatched. Fetches already
// dispatched always run to completion.
func (s *Scheduler) Run(ctx context.Context) Report {
	start := time.Now()
	report := Report{RunID: uuid.NewString(), BatchSize: s.batchSize}
	logger := s.logger.With(slog.String("run_id", report.RunID))

	var missing []catalog.Item
	for _, item := range s.catalog.Items() {
		if !s.cache.Has(item.ID) {
			missing = append(missing, item)
		}
	}
	report.Missing = len(missing)
	if len(missing) == 0 {
		report.Duration = time.Since(start)
		logger.Debug("no missing assets")
		s.metrics.ObserveSchedulerRun(string(RunNoop))
		return report
	}

	// Claim every missing id before the first request goes out so readers see
	// all pending items as loading, not just the first batch.
	ids := make([]string, len(missing))
	for i, item := range missing {
		ids[i] = item.ID
	}
	claimed := s.tracker.Add(ids...)
	report.Skipped = len(missing) - len(claimed)
	pending := claimedItems(missing, claimed)

	batches := partition(pending, s.batchSize)
	logger.Info("asset generation started",
		slog.Int("missing", report.Missing),
		slog.Int("skipped_in_flight", report.Skipped),
		slog.Int("batches", len(batches)),
		slog.Int("batch_size", s.batchSize))

	for i, batch := range batches {
		if ctx.Err() != nil {
			for _, rest := range batches[i:] {
				for _, item := range rest {
					s.tracker.Remove(item.ID)
					report.Undispatched++
				}
			}
			report.Cancelled = true
			logger.Warn("asset generation stopped before dispatching remaining batches",
				slog.Int("undispatched", report.Undispatched), slog.Any("error", ctx.Err()))
			break
		}
		report.Batches++
		report.Items = append(report.Items, s.runBatch(ctx, logger, i, batch)...)
	}

	report.tally()
	report.Duration = time.Since(start)
	result := RunCompleted
	if report.Cancelled {
		result = RunCancelled
	}
	s.metrics.ObserveSchedulerRun(string(result))
	logger.Info("asset generation finished",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("degraded", report.Degraded),
		slog.Int("empty", report.Empty),
		slog.Int("failed", report.Failed),
		slog.Int("undispatched", report.Undispatched),
		slog.Duration("duration", report.Duration))
	return report
}

// runBatch dispatches every item of a batch concurrently and waits for all of
// them to settle.
func (s *Scheduler) runBatch(ctx context.Context, logger *slog.Logger, index int, batch []catalog.Item) []ItemResult {
	results := make([]ItemResult, len(batch))
	var g errgroup.Group
	for j, item := range batch {
		g.Go(func() error {
			results[j] = s.fetch(ctx, logger, index, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fetch settles one item. The in-flight mark is removed exactly once on every
// path, panics included.
func (s *Scheduler) fetch(ctx context.Context, logger *slog.Logger, batch int, item catalog.Item) (res ItemResult) {
	start := time.Now()
	res = ItemResult{ID: item.ID, Kind: item.Kind, Batch: batch}
	itemLogger := logger.With(slog.String("item_id", item.ID), slog.Int("batch", batch))

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = generator.OutcomeFailure
			res.Err = fmt.Errorf("scheduler: generation panicked: %v", r)
			itemLogger.Error("asset generation panicked", slog.Any("panic", r))
		}
		res.Duration = time.Since(start)
		s.tracker.Remove(item.ID)
		s.metrics.ObserveGeneration(string(item.Kind), string(res.Outcome), res.Duration)
	}()

	// Dispatched work is never cancelled; the generator owns its own timeout.
	fetchCtx := context.WithoutCancel(ctx)

	prompt, err := s.prompts.Build(item)
	if err != nil {
		res.Outcome = generator.OutcomeFailure
		res.Err = err
		itemLogger.Error("asset prompt failed", slog.Any("error", err))
		return res
	}

	out := s.generator.Generate(fetchCtx, generator.Request{ItemID: item.ID, Prompt: prompt})
	res.Outcome = out.Outcome
	switch {
	case out.OK():
		outcome, err := s.cache.Put(fetchCtx, item.ID, out.Payload)
		if err != nil {
			res.Outcome = generator.OutcomeFailure
			res.Err = err
			itemLogger.Error("asset cache rejected payload", slog.Any("error", err))
			return res
		}
		res.Cache = outcome
		itemLogger.Info("asset generated", slog.String("cache", string(outcome)))
	case out.Outcome == generator.OutcomeFailure:
		res.Err = out.Err
		itemLogger.Warn("asset generation failed", slog.Any("error", out.Err))
	default:
		res.Outcome = generator.OutcomeEmpty
		itemLogger.Warn("asset generation returned no image")
	}
	return res
}

func claimedItems(items []catalog.Item, claimed []string) []catalog.Item {
	keep := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		keep[id] = struct{}{}
	}
	out := make([]catalog.Item, 0, len(claimed))
	for _, item := range items {
		if _, ok := keep[item.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}

func partition(items []catalog.Item, size int) [][]catalog.Item {
	if len(items) == 0 {
		return nil
	}
	batches := make([][]catalog.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}
