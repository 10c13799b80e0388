package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/l0p7/worryhero/internal/generator"
)

// Config holds every server-level option consumed at process start.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs for the asset service.
type ServerConfig struct {
	Listen    ListenConfig    `koanf:"listen"`
	Logging   LoggingConfig   `koanf:"logging"`
	Storage   StorageConfig   `koanf:"storage"`
	Generator GeneratorConfig `koanf:"generator"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig selects the durable backend that holds the asset cache and
// personalization records.
type StorageConfig struct {
	Backend  string              `koanf:"backend"`
	MaxBytes int64               `koanf:"maxBytes"`
	File     StorageFileConfig   `koanf:"file"`
	SQLite   StorageSQLiteConfig `koanf:"sqlite"`
	Redis    StorageRedisConfig  `koanf:"redis"`
}

type StorageFileConfig struct {
	Directory string `koanf:"directory"`
}

type StorageSQLiteConfig struct {
	Path string `koanf:"path"`
}

type StorageRedisConfig struct {
	Address  string                `koanf:"address"`
	Username string                `koanf:"username"`
	Password string                `koanf:"password"`
	DB       int                   `koanf:"db"`
	TLS      StorageRedisTLSConfig `koanf:"tls"`
	// Namespace prefixes every key; empty means "worryhero".
	Namespace string `koanf:"namespace"`
}

type StorageRedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// GeneratorConfig describes how icons are requested from the remote image model.
type GeneratorConfig struct {
	Backend        string `koanf:"backend"`
	APIKey         string `koanf:"apiKey"`
	Model          string `koanf:"model"`
	BaseURL        string `koanf:"baseURL"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
	PromptTemplate string `koanf:"promptTemplate"`
}

// Timeout converts TimeoutSeconds into a duration; zero means no limit.
func (g GeneratorConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// SchedulerConfig shapes the batch fetch pipeline run at start and after an
// asset reset.
type SchedulerConfig struct {
	BatchSize        int `koanf:"batchSize"`
	StartDelayMillis int `koanf:"startDelayMillis"`
}

// StartDelay converts StartDelayMillis into a duration.
func (s SchedulerConfig) StartDelay() time.Duration {
	if s.StartDelayMillis <= 0 {
		return 0
	}
	return time.Duration(s.StartDelayMillis) * time.Millisecond
}

// DefaultPromptTemplate is the prompt used when none is configured.
const DefaultPromptTemplate = generator.DefaultPromptTemplate

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Server.Storage.MaxBytes < 0 {
		return fmt.Errorf("config: server.storage.maxBytes invalid: %d", c.Server.Storage.MaxBytes)
	}
	switch strings.TrimSpace(strings.ToLower(c.Server.Storage.Backend)) {
	case "", "memory":
	case "file":
		if strings.TrimSpace(c.Server.Storage.File.Directory) == "" {
			return errors.New("config: server.storage.file.directory required for file backend")
		}
	case "sqlite":
		if strings.TrimSpace(c.Server.Storage.SQLite.Path) == "" {
			return errors.New("config: server.storage.sqlite.path required for sqlite backend")
		}
	case "redis":
		if strings.TrimSpace(c.Server.Storage.Redis.Address) == "" {
			return errors.New("config: server.storage.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.storage.backend unsupported: %s", c.Server.Storage.Backend)
	}

	gen := c.Server.Generator
	switch strings.TrimSpace(strings.ToLower(gen.Backend)) {
	case "", "genai":
		if strings.TrimSpace(gen.Model) == "" {
			return errors.New("config: server.generator.model required for genai backend")
		}
	case "disabled":
	default:
		return fmt.Errorf("config: server.generator.backend unsupported: %s", gen.Backend)
	}
	if gen.TimeoutSeconds < 0 {
		return fmt.Errorf("config: server.generator.timeoutSeconds invalid: %d", gen.TimeoutSeconds)
	}
	if strings.TrimSpace(gen.PromptTemplate) == "" {
		return errors.New("config: server.generator.promptTemplate required")
	}
	if _, err := generator.NewPromptBuilder(gen.PromptTemplate); err != nil {
		return fmt.Errorf("config: server.generator.promptTemplate invalid: %w", err)
	}

	if c.Server.Scheduler.BatchSize < 1 {
		return fmt.Errorf("config: server.scheduler.batchSize invalid: %d", c.Server.Scheduler.BatchSize)
	}
	if c.Server.Scheduler.StartDelayMillis < 0 {
		return fmt.Errorf("config: server.scheduler.startDelayMillis invalid: %d", c.Server.Scheduler.StartDelayMillis)
	}
	return nil
}

// DefaultConfig returns the baseline values that align with the design defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Storage: StorageConfig{
				Backend:  "memory",
				MaxBytes: 5 * 1024 * 1024,
			},
			Generator: GeneratorConfig{
				Backend:        "genai",
				Model:          "gemini-2.5-flash-image",
				TimeoutSeconds: 120,
				PromptTemplate: DefaultPromptTemplate,
			},
			Scheduler: SchedulerConfig{
				BatchSize:        3,
				StartDelayMillis: 500,
			},
		},
	}
}
