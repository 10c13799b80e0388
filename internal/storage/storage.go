// Package storage provides the process-local, capacity-bounded key/value byte
// stores that back the durable asset cache and the personalization record.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no record exists under the key.
	ErrNotFound = errors.New("storage: record not found")
	// ErrCapacityExceeded signals that a write was rejected because the
	// backend has no room left. It is never used for corrupt data.
	ErrCapacityExceeded = errors.New("storage: capacity exceeded")
	// ErrInvalidKey rejects empty keys and keys that could escape a namespace.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Backend is a synchronous byte store with single-key atomicity.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
