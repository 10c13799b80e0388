package storage

import (
	"context"
	"fmt"
	"sync"
)

type memoryBackend struct {
	maxBytes int64

	mu      sync.RWMutex
	records map[string][]byte
	used    int64
}

// NewMemory returns an in-process backend. maxBytes bounds the summed size of
// keys and values; zero disables the bound.
func NewMemory(maxBytes int64) Backend {
	return &memoryBackend{maxBytes: maxBytes, records: make(map[string][]byte)}
}

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value []byte) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used
	if old, ok := m.records[key]; ok {
		used -= int64(len(key) + len(old))
	}
	used += int64(len(key) + len(value))
	if m.maxBytes > 0 && used > m.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes", ErrCapacityExceeded, used, m.maxBytes)
	}
	m.records[key] = append([]byte(nil), value...)
	m.used = used
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.records[key]; ok {
		m.used -= int64(len(key) + len(old))
		delete(m.records, key)
	}
	return nil
}

func (m *memoryBackend) Close(context.Context) error {
	return nil
}
