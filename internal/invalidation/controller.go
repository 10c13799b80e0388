// Package invalidation implements the two user-initiated resets: discarding
// identity data, and discarding every cached asset followed by a restart of
// the acquisition pipeline. Both ask for confirmation first.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/l0p7/worryhero/internal/profile"
)

const (
	IdentityPrompt = "Reset your hero profile? Your photos will be removed."
	AssetsPrompt   = "Regenerate all icons? Cached images will be deleted and the app will restart."
)

// ErrNotCleared reports storage that still holds data after a reset.
var ErrNotCleared = errors.New("invalidation: state not cleared")

// Confirmer asks the user a yes/no question and blocks until answered.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Answer returns a Confirmer with a fixed reply.
func Answer(yes bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) bool { return yes })
}

// Identity is the personalization record.
type Identity interface {
	Clear(ctx context.Context) error
	Photos() []string
	Step() profile.Step
}

// Assets is the durable asset cache.
type Assets interface {
	Clear(ctx context.Context) error
	Len() int
}

// Restarter stops acquisition, runs prepare, then starts acquisition again
// from durable state.
type Restarter interface {
	Restart(ctx context.Context, prepare func(context.Context) error) error
}

// Options wires a Controller.
type Options struct {
	Identity  Identity
	Assets    Assets
	Restarter Restarter
}

// Controller performs confirmed resets.
type Controller struct {
	identity  Identity
	assets    Assets
	restarter Restarter
	logger    *slog.Logger
}

// New validates opts and returns a Controller.
func New(logger *slog.Logger, opts Options) (*Controller, error) {
	if opts.Identity == nil || opts.Assets == nil || opts.Restarter == nil {
		return nil, errors.New("invalidation: identity, assets and restarter required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		identity:  opts.Identity,
		assets:    opts.Assets,
		restarter: opts.Restarter,
		logger:    logger.With(slog.String("agent", "invalidation")),
	}, nil
}

// ResetIdentity discards the user's photos once confirmed and returns the
// data-collection step to resume from. A declined confirmation changes
// nothing and reports false.
func (c *Controller) ResetIdentity(ctx context.Context, confirm Confirmer) (bool, profile.Step, error) {
	if !confirmed(ctx, confirm, IdentityPrompt) {
		c.logger.Info("identity reset declined")
		return false, c.identity.Step(), nil
	}
	if err := c.identity.Clear(ctx); err != nil {
		return true, c.identity.Step(), fmt.Errorf("invalidation: reset identity: %w", err)
	}
	if n := len(c.identity.Photos()); n != 0 {
		return true, c.identity.Step(), fmt.Errorf("%w: %d photos remain", ErrNotCleared, n)
	}
	c.logger.Info("identity reset")
	return true, c.identity.Step(), nil
}

// ResetAssets deletes every cached asset once confirmed and restarts
// acquisition so every catalog item is fetched again. The cache is verified
// empty before the new run begins.
func (c *Controller) ResetAssets(ctx context.Context, confirm Confirmer) (bool, error) {
	if !confirmed(ctx, confirm, AssetsPrompt) {
		c.logger.Info("asset reset declined")
		return false, nil
	}
	prepare := func(ctx context.Context) error {
		if err := c.assets.Clear(ctx); err != nil {
			return err
		}
		if n := c.assets.Len(); n != 0 {
			return fmt.Errorf("%w: %d assets remain", ErrNotCleared, n)
		}
		return nil
	}
	if err := c.restarter.Restart(ctx, prepare); err != nil {
		return true, fmt.Errorf("invalidation: reset assets: %w", err)
	}
	c.logger.Info("asset cache reset, acquisition restarted")
	return true, nil
}

func confirmed(ctx context.Context, confirm Confirmer, prompt string) bool {
	if confirm == nil {
		return false
	}
	return confirm.Confirm(ctx, prompt)
}
