package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.storage.maxbytes":          "server.storage.maxBytes",
			"server.storage.redis.tls.cafile":  "server.storage.redis.tls.caFile",
			"server.generator.apikey":          "server.generator.apiKey",
			"server.generator.baseurl":         "server.generator.baseURL",
			"server.generator.timeoutseconds":  "server.generator.timeoutSeconds",
			"server.generator.prompttemplate":  "server.generator.promptTemplate",
			"server.scheduler.batchsize":       "server.scheduler.batchSize",
			"server.scheduler.startdelaymillis": "server.scheduler.startDelayMillis",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported config file extension %s", ext)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"storage": map[string]any{
				"backend":  cfg.Server.Storage.Backend,
				"maxBytes": cfg.Server.Storage.MaxBytes,
				"file": map[string]any{
					"directory": cfg.Server.Storage.File.Directory,
				},
				"sqlite": map[string]any{
					"path": cfg.Server.Storage.SQLite.Path,
				},
				"redis": map[string]any{
					"address":  cfg.Server.Storage.Redis.Address,
					"username": cfg.Server.Storage.Redis.Username,
					"password": cfg.Server.Storage.Redis.Password,
					"db":       cfg.Server.Storage.Redis.DB,
					"tls": map[string]any{
						"enabled": cfg.Server.Storage.Redis.TLS.Enabled,
						"caFile":  cfg.Server.Storage.Redis.TLS.CAFile,
					},
					"namespace": cfg.Server.Storage.Redis.Namespace,
				},
			},
			"generator": map[string]any{
				"backend":        cfg.Server.Generator.Backend,
				"apiKey":         cfg.Server.Generator.APIKey,
				"model":          cfg.Server.Generator.Model,
				"baseURL":        cfg.Server.Generator.BaseURL,
				"timeoutSeconds": cfg.Server.Generator.TimeoutSeconds,
				"promptTemplate": cfg.Server.Generator.PromptTemplate,
			},
			"scheduler": map[string]any{
				"batchSize":        cfg.Server.Scheduler.BatchSize,
				"startDelayMillis": cfg.Server.Scheduler.StartDelayMillis,
			},
		},
	}
}
