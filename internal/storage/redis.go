package storage

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      RedisTLSConfig
	// Namespace prefixes every key so several deployments can share a database.
	Namespace string
	MaxBytes  int64
}

type redisBackend struct {
	client    valkey.Client
	namespace string
	maxBytes  int64
}

// NewRedis connects to a Redis-compatible server through valkey-go and pings
// it before returning.
func NewRedis(cfg RedisConfig) (Backend, error) {
	if cfg.Address == "" {
		return nil, errors.New("storage: redis address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("storage: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("storage: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("storage: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("storage: redis ping: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "worryhero"
	}
	return &redisBackend{client: client, namespace: namespace, maxBytes: cfg.MaxBytes}, nil
}

func (r *redisBackend) key(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return r.namespace + ":" + key, nil
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, err
	}
	resp := r.client.Do(ctx, r.client.B().Get().Key(k).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: redis get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("storage: redis get bytes: %w", err)
	}
	return payload, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if r.maxBytes > 0 && int64(len(k)+len(value)) > r.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes", ErrCapacityExceeded, len(k)+len(value), r.maxBytes)
	}
	cmd := r.client.B().Set().Key(k).Value(valkey.BinaryString(value)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if isOutOfMemory(err) {
			return fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
		}
		return fmt.Errorf("storage: redis set: %w", err)
	}
	return nil
}

func (r *redisBackend) Delete(ctx context.Context, key string) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if err := r.client.Do(ctx, r.client.B().Del().Key(k).Build()).Error(); err != nil {
		return fmt.Errorf("storage: redis del: %w", err)
	}
	return nil
}

func (r *redisBackend) Close(context.Context) error {
	r.client.Close()
	return nil
}

// isOutOfMemory matches the error reply a server sends once maxmemory is hit
// under a noeviction policy.
func isOutOfMemory(err error) bool {
	if ve, ok := valkey.IsValkeyErr(err); ok {
		return strings.HasPrefix(ve.Error(), "OOM")
	}
	return false
}
