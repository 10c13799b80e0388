package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/l0p7/worryhero/internal/cachestore"
	"github.com/l0p7/worryhero/internal/catalog"
	"github.com/l0p7/worryhero/internal/config"
	"github.com/l0p7/worryhero/internal/generator"
	"github.com/l0p7/worryhero/internal/inflight"
	"github.com/l0p7/worryhero/internal/invalidation"
	"github.com/l0p7/worryhero/internal/metrics"
	"github.com/l0p7/worryhero/internal/profile"
	"github.com/l0p7/worryhero/internal/runtime"
	"github.com/l0p7/worryhero/internal/scheduler"
	"github.com/l0p7/worryhero/internal/server"
	"github.com/l0p7/worryhero/internal/storage"
)

// app is the assembled service.
type app struct {
	backend storage.Backend
	runtime *runtime.Runtime
	handler http.Handler
}

func newApp(ctx context.Context, logger *slog.Logger, cfg config.Config, rec *metrics.Recorder) (*app, error) {
	cat := catalog.Default()
	backend := buildStorage(logger.With(slog.String("agent", "storage_factory")), cfg.Server.Storage)

	store, err := cachestore.New(logger, cachestore.Options{Backend: backend, Catalog: cat, Metrics: rec})
	if err != nil {
		return nil, errors.Join(err, backend.Close(ctx))
	}
	photos, err := profile.New(logger, backend)
	if err != nil {
		return nil, errors.Join(err, backend.Close(ctx))
	}
	prompts, err := generator.NewPromptBuilder(cfg.Server.Generator.PromptTemplate)
	if err != nil {
		return nil, errors.Join(err, backend.Close(ctx))
	}
	tracker := inflight.New(rec.SetInFlight)

	sched, err := scheduler.New(logger, scheduler.Options{
		Catalog:   cat,
		Cache:     store,
		Tracker:   tracker,
		Generator: buildGenerator(ctx, logger.With(slog.String("agent", "generator_factory")), cfg.Server.Generator),
		Prompts:   prompts,
		BatchSize: cfg.Server.Scheduler.BatchSize,
		Metrics:   rec,
	})
	if err != nil {
		return nil, errors.Join(err, backend.Close(ctx))
	}

	rt, err := runtime.New(logger, runtime.Options{
		Catalog:    cat,
		Store:      store,
		Tracker:    tracker,
		Scheduler:  sched,
		Profile:    photos,
		StartDelay: cfg.Server.Scheduler.StartDelay(),
	})
	if err != nil {
		return nil, errors.Join(err, backend.Close(ctx))
	}

	ctrl, err := invalidation.New(logger, invalidation.Options{Identity: photos, Assets: store, Restarter: rt})
	if err != nil {
		return nil, errors.Join(err, backend.Close(ctx))
	}
	api, err := server.NewAPI(logger, rt, photos, ctrl)
	if err != nil {
		return nil, errors.Join(err, backend.Close(ctx))
	}

	return &app{
		backend: backend,
		runtime: rt,
		handler: server.NewHandler(api, rec.Handler()),
	}, nil
}

// Close stops acquisition and then releases storage.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.backend.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}
	return errors.Join(errs...)
}

// buildStorage falls back to memory when the configured backend cannot be
// opened, so the service still runs with a session-only cache.
func buildStorage(logger *slog.Logger, cfg config.StorageConfig) storage.Backend {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	fallback := func(err error) storage.Backend {
		if logger != nil {
			logger.Error("storage initialization failed", slog.String("backend", backend), slog.Any("error", err))
			logger.Info("falling back to memory storage")
		}
		return storage.NewMemory(cfg.MaxBytes)
	}

	switch backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory storage", slog.Int64("max_bytes", cfg.MaxBytes))
		}
		return storage.NewMemory(cfg.MaxBytes)
	case "file":
		b, err := storage.NewFile(cfg.File.Directory, cfg.MaxBytes)
		if err != nil {
			return fallback(err)
		}
		if logger != nil {
			logger.Info("using file storage", slog.String("directory", cfg.File.Directory))
		}
		return b
	case "sqlite":
		b, err := storage.NewSQLite(cfg.SQLite.Path, cfg.MaxBytes)
		if err != nil {
			return fallback(err)
		}
		if logger != nil {
			logger.Info("using sqlite storage", slog.String("path", cfg.SQLite.Path))
		}
		return b
	case "redis":
		b, err := storage.NewRedis(storage.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: storage.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
			Namespace: cfg.Redis.Namespace,
			MaxBytes:  cfg.MaxBytes,
		})
		if err != nil {
			return fallback(err)
		}
		if logger != nil {
			logger.Info("using redis storage", slog.String("address", cfg.Redis.Address))
		}
		return b
	default:
		if logger != nil {
			logger.Warn("unsupported storage backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return storage.NewMemory(cfg.MaxBytes)
	}
}

// buildGenerator never fails: without a usable remote service every fetch
// settles as a failure and items render as placeholders.
func buildGenerator(ctx context.Context, logger *slog.Logger, cfg config.GeneratorConfig) generator.Generator {
	switch strings.TrimSpace(strings.ToLower(cfg.Backend)) {
	case "disabled":
		logger.Info("remote generation disabled")
		return generator.Unavailable{}
	case "", "genai":
	default:
		logger.Warn("unsupported generator backend, generation disabled", slog.String("backend", cfg.Backend))
		return generator.Unavailable{}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("no generator api key configured, generation disabled")
		return generator.Unavailable{}
	}
	g, err := generator.NewGenAI(ctx, generator.GenAIConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		logger.Error("generator initialization failed, generation disabled", slog.Any("error", err))
		return generator.Unavailable{}
	}
	logger.Info("using genai generator", slog.String("model", cfg.Model))
	return g
}
