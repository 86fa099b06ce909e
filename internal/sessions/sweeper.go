package sessions

import (
	"context"
	"time"
)

// Sweeper periodically evicts sessions that have been idle longer than the
// configured threshold. It handles calls whose terminal status webhook was
// never delivered.
type Sweeper struct {
	store     *Store
	threshold time.Duration
	interval  time.Duration
	onSwept   func(count int)
}

// NewSweeper creates a sweeper for the given store. threshold is the idle
// duration after which a session is reclaimed; interval is how often the
// sweep runs.
func NewSweeper(store *Store, threshold, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		threshold: threshold,
		interval:  interval,
	}
}

// OnSwept registers a hook invoked after each sweep that removed at least one
// session. Used for logging and metrics.
func (w *Sweeper) OnSwept(fn func(count int)) {
	w.onSwept = fn
}

// Run sweeps on a fixed interval until the context is canceled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := w.store.SweepExpired(now, w.threshold); n > 0 && w.onSwept != nil {
				w.onSwept(n)
			}
		}
	}
}
