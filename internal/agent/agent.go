// Package agent runs one decision agent: a polling loop that claims
// intake items and pushes each through the approval gate. Multiple
// agents on different machines race over the same intake directory; the
// claim manager guarantees each item is decided exactly once.
package agent

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/drover-sh/drover/internal/claim"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/gate"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/workitem"
)

// DefaultInterval is the fallback poll interval.
const DefaultInterval = 10 * time.Second

// Runner drives one agent's claim-and-decide loop.
type Runner struct {
	claims   *claim.Manager
	gate     *gate.Gate
	store    *store.Store
	logger   *logging.Logger
	interval time.Duration

	// wake is signaled by the intake watcher so a new file is picked up
	// before the next tick.
	wake chan struct{}

	watcher *fsnotify.Watcher
}

// NewRunner creates a Runner. An interval of zero uses DefaultInterval.
func NewRunner(claims *claim.Manager, g *gate.Gate, st *store.Store, interval time.Duration, logger *logging.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		claims:   claims,
		gate:     g,
		store:    st,
		logger:   logger.WithAgent(claims.Agent()),
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Watch starts an intake-directory watcher that wakes the loop as soon
// as a new item lands, instead of waiting out the poll interval. The
// watcher is best-effort: polling alone is always sufficient, and a
// watch failure only costs latency.
func (r *Runner) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.store.Dir(store.StateIntake)); err != nil {
		_ = w.Close()
		return err
	}
	r.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if _, ok := workitem.IDFromFilename(filepath.Base(ev.Name)); !ok {
					continue
				}
				select {
				case r.wake <- struct{}{}:
				default:
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("intake watcher error", "error", werr)
			}
		}
	}()
	return nil
}

// RunOnce drains the intake once: claim and process items until the
// intake is empty or every remaining item is lost to another agent.
// Each identity is considered at most once per cycle, so an item the
// gate returns to intake after an error waits for the next cycle
// instead of spinning. The item in flight always finishes before a
// cancellation is honored.
func (r *Runner) RunOnce(ctx context.Context) error {
	attempted := make(map[string]bool)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		id, ok, err := r.claims.Next(attempted)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		attempted[id] = true

		won, err := r.claims.Claim(id)
		if err != nil {
			if errors.IsRace(err) {
				continue
			}
			return err
		}
		if !won {
			// Lost the race. Back off for this cycle; the other agent
			// is draining the same intake.
			return nil
		}

		if err := r.gate.Process(ctx, id); err != nil {
			r.logger.Error("processing failed", "item", id, "error", err)
		}
	}
}

// Run polls until the context is cancelled, waking early when the
// intake watcher reports a new file.
func (r *Runner) Run(ctx context.Context) error {
	defer r.close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("agent started", "interval", r.interval.String())
	for {
		if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("agent cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("agent stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

func (r *Runner) close() {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
}
