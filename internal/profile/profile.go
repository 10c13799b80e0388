// Package profile keeps the user's personalization photos. They are the
// identity data an identity reset discards.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/l0p7/worryhero/internal/cachestore"
	"github.com/l0p7/worryhero/internal/generator"
	"github.com/l0p7/worryhero/internal/storage"
)

// RecordKey names the durable photos record.
const RecordKey = "user_photos"

// MaxPhotos caps how many photos are kept; extra uploads are dropped.
const MaxPhotos = 3

const recordVersion = 1

// Step is the data-collection step the presentation layer should show.
type Step string

const (
	StepPhotoUpload Step = "photo-upload"
	StepWorrySelect Step = "worry-select"
)

// ErrInvalidPhoto rejects anything that is not a base64 image data URI.
var ErrInvalidPhoto = errors.New("profile: photo must be a base64 image data uri")

type record struct {
	Version int      `json:"version"`
	Photos  []string `json:"photos"`
}

// Profile holds the photos in memory and mirrors them to storage when it can.
type Profile struct {
	backend storage.Backend
	logger  *slog.Logger

	mu       sync.RWMutex
	photos   []string
	degraded bool
}

// New returns an empty profile bound to backend.
func New(logger *slog.Logger, backend storage.Backend) (*Profile, error) {
	if backend == nil {
		return nil, errors.New("profile: backend required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Profile{backend: backend, logger: logger.With(slog.String("agent", "profile"))}, nil
}

// Load replaces the in-memory photos with the persisted ones. Absent or
// unreadable state yields no photos.
func (p *Profile) Load(ctx context.Context) []string {
	photos := p.read(ctx)
	p.mu.Lock()
	p.photos = photos
	p.degraded = false
	p.mu.Unlock()
	return append([]string(nil), photos...)
}

func (p *Profile) read(ctx context.Context) []string {
	data, err := p.backend.Get(ctx, RecordKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("profile unreadable, starting empty", slog.Any("error", err))
		}
		return nil
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Version != recordVersion {
		p.logger.Warn("profile corrupt, starting empty", slog.Any("error", err), slog.Int("version", rec.Version))
		return nil
	}
	var photos []string
	for _, photo := range rec.Photos {
		if validPhoto(photo) == nil && len(photos) < MaxPhotos {
			photos = append(photos, photo)
		}
	}
	return photos
}

// Save replaces the photo set. Only the first MaxPhotos are kept. A storage
// failure keeps the photos for this session and reports Degraded.
func (p *Profile) Save(ctx context.Context, photos []string) (cachestore.PutOutcome, error) {
	if len(photos) > MaxPhotos {
		photos = photos[:MaxPhotos]
	}
	for i, photo := range photos {
		if err := validPhoto(photo); err != nil {
			return "", fmt.Errorf("%w: photo %d: %v", ErrInvalidPhoto, i, err)
		}
	}
	next := append([]string(nil), photos...)

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.Marshal(record{Version: recordVersion, Photos: next})
	if err == nil {
		err = p.backend.Set(ctx, RecordKey, data)
	}
	p.photos = next
	if err != nil {
		p.degraded = true
		attrs := []any{slog.Int("photos", len(next)), slog.Any("error", err)}
		if errors.Is(err, storage.ErrCapacityExceeded) {
			p.logger.Warn("storage capacity exceeded, photos kept in memory for this session", attrs...)
		} else {
			p.logger.Error("profile write failed, photos kept in memory for this session", attrs...)
		}
		return cachestore.Degraded, nil
	}
	p.degraded = false
	p.logger.Info("profile saved", slog.Int("photos", len(next)))
	return cachestore.Persisted, nil
}

// Clear deletes the persisted record and then forgets the photos. A storage
// failure leaves everything as it was.
func (p *Profile) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.backend.Delete(ctx, RecordKey); err != nil {
		return fmt.Errorf("profile: clear: %w", err)
	}
	p.photos = nil
	p.degraded = false
	p.logger.Info("profile cleared")
	return nil
}

// Photos returns a copy of the current photos.
func (p *Profile) Photos() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.photos...)
}

// Degraded reports whether the current photos exist only in memory.
func (p *Profile) Degraded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.degraded
}

// Step reports where the user is in data collection.
func (p *Profile) Step() Step {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.photos) == 0 {
		return StepPhotoUpload
	}
	return StepWorrySelect
}

func validPhoto(photo string) error {
	mimeType, data, err := generator.DecodeDataURI(photo)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("unsupported media type %q", mimeType)
	}
	if len(data) == 0 {
		return errors.New("empty image")
	}
	return nil
}
