package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileRecordExt = ".record"

type fileBackend struct {
	dir      string
	maxBytes int64

	// Serializes capacity accounting with the write that depends on it.
	mu sync.Mutex
}

// NewFile stores each record as one file under dir. Writes go through a
// temporary file and a rename so readers never see a torn record.
func NewFile(dir string, maxBytes int64) (Backend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: file directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory %s: %w", dir, err)
	}
	return &fileBackend{dir: dir, maxBytes: maxBytes}, nil
}

func (f *fileBackend) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, key+fileRecordExt), nil
}

func (f *fileBackend) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

func (f *fileBackend) Set(ctx context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxBytes > 0 {
		used, err := f.usage(p)
		if err != nil {
			return err
		}
		if total := used + int64(len(value)); total > f.maxBytes {
			return fmt.Errorf("%w: %d of %d bytes", ErrCapacityExceeded, total, f.maxBytes)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("storage: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return fmt.Errorf("storage: rename %s: %w", key, err)
	}
	return nil
}

// usage sums the record sizes in the directory, excluding the record about to
// be replaced.
func (f *fileBackend) usage(replacing string) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("storage: list %s: %w", f.dir, err)
	}
	var used int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileRecordExt) {
			continue
		}
		if filepath.Join(f.dir, entry.Name()) == replacing {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("storage: stat %s: %w", entry.Name(), err)
		}
		used += info.Size()
	}
	return used, nil
}

func (f *fileBackend) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", p, err)
	}
	return nil
}

func (f *fileBackend) Close(context.Context) error {
	return nil
}
