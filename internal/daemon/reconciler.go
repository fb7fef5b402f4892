package daemon

import (
	"context"
	"time"

	"github.com/1broseidon/alttab/internal/platform"
	"github.com/rs/zerolog"
)

// WindowSet reports whether a window is still registered.
type WindowSet interface {
	Get(id platform.WindowID) (platform.Window, bool)
}

// PreviewCache drops cached previews for windows that no longer exist.
type PreviewCache interface {
	Prune(alive func(platform.WindowID) bool)
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *zerolog.Logger
}

// Reconciler periodically drops preview state for closed windows so the
// cache does not grow with every window ever seen.
type Reconciler struct {
	interval time.Duration
	windows  WindowSet
	cache    PreviewCache
	logger   *zerolog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, windows WindowSet, cache PreviewCache) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &Reconciler{
		interval: interval,
		windows:  windows,
		cache:    cache,
		logger:   cfg.Logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug().Dur("interval", r.interval).Msg("Reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("Reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile() {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Msg("Reconciler panic recovered")
		}
	}()

	r.cache.Prune(func(id platform.WindowID) bool {
		_, ok := r.windows.Get(id)
		return ok
	})
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow() {
	r.reconcile()
}
