package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bond-inventory/src/interfaces"
	"bond-inventory/src/logger"
	"bond-inventory/src/models"
	"bond-inventory/src/store"
)

// -----------------------------------------------------------------------------
// RefreshScheduler
//
// Drives fetch+merge cycles: once at startup, then on a fixed interval, and
// on demand when a read path finds the cache empty. All trigger sources go
// through TryRefresh, which holds a compare-and-swap flag so at most one
// refresh executes system-wide; a trigger arriving while one is in flight is
// coalesced, not queued.
// -----------------------------------------------------------------------------

type RefreshScheduler struct {
	Config *models.MConfig
	Source interfaces.IInventorySource
	Store  *store.SeriesStore
	Logger *logger.Logger

	// OnRefresh, if set, receives the post-merge snapshot after every
	// successful refresh (used for the WebSocket push).
	OnRefresh func(*models.MInventoryCache)

	startOnce  sync.Once
	refreshing atomic.Bool
	interval   atomic.Int64 // nanoseconds, live-reloadable
	seedErr    error
}

// -----------------------------------------------------------------------------

func NewRefreshScheduler(cfg *models.MConfig, source interfaces.IInventorySource, st *store.SeriesStore) *RefreshScheduler {
	rs := &RefreshScheduler{
		Config: cfg,
		Source: source,
		Store:  st,
		Logger: logger.NewLogger(cfg.LogLevel, "RefreshScheduler"),
	}
	rs.interval.Store(int64(time.Duration(cfg.Source.RefreshIntervalSeconds) * time.Second))
	return rs
}

// -----------------------------------------------------------------------------

// Start seeds the store from persistence, runs the initial refresh, and
// launches the timer loop. It is an idempotent, synchronized gate: any
// number of concurrent callers results in exactly one seed-load and exactly
// one timer start. Every call reports the seed outcome.
func (rs *RefreshScheduler) Start(ctx context.Context, wg *sync.WaitGroup) error {
	rs.startOnce.Do(func() {
		if err := rs.Store.Load(); err != nil {
			rs.seedErr = err
			return
		}

		rs.TryRefresh(ctx)

		wg.Add(1)
		go rs.runLoop(ctx, wg)
		rs.Logger.Info("Scheduler started (interval %s)", rs.Interval())
	})
	return rs.seedErr
}

// -----------------------------------------------------------------------------

// runLoop fires TryRefresh on the configured interval until ctx is
// cancelled. The interval is re-read each cycle so SetInterval takes effect
// on the next tick without restarting the loop.
func (rs *RefreshScheduler) runLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		timer := time.NewTimer(rs.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			rs.Logger.Info("Scheduler stopped")
			return
		case <-timer.C:
			rs.TryRefresh(ctx)
		}
	}
}

// -----------------------------------------------------------------------------

// TryRefresh runs one fetch+merge cycle unless one is already in flight, in
// which case it reports false and does nothing. A failed fetch or merge is
// recorded on the store and leaves the previous snapshot fully intact; the
// next tick retries naturally, never in a tight loop.
func (rs *RefreshScheduler) TryRefresh(ctx context.Context) bool {
	if !rs.refreshing.CompareAndSwap(false, true) {
		rs.Logger.Debug("Refresh already in flight, coalescing trigger")
		return false
	}
	defer rs.refreshing.Store(false)

	// Bound the whole cycle by the source timeout plus a small margin so a
	// stalled fetch can never wedge the scheduler.
	timeout := time.Duration(rs.Config.Source.RequestTimeoutSeconds)*time.Second + 2*time.Second
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records, fetchedAt, err := rs.Source.Fetch(fetchCtx)
	if err != nil {
		rs.Logger.Error("Refresh fetch failed: %v", err)
		rs.Store.RecordFailure(err)
		return true
	}

	if err := rs.Store.Merge(records, fetchedAt); err != nil {
		rs.Logger.Error("Refresh merge failed: %v", err)
		rs.Store.RecordFailure(err)
		return true
	}

	if rs.OnRefresh != nil {
		rs.OnRefresh(rs.Store.Snapshot())
	}
	return true
}

// -----------------------------------------------------------------------------

// SetInterval updates the tick interval; takes effect on the next cycle.
func (rs *RefreshScheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	rs.interval.Store(int64(d))
	rs.Logger.Info("Refresh interval set to %s", d)
}

// -----------------------------------------------------------------------------

func (rs *RefreshScheduler) Interval() time.Duration {
	return time.Duration(rs.interval.Load())
}

// -----------------------------------------------------------------------------

// Refreshing reports whether a fetch+merge cycle is currently in flight.
func (rs *RefreshScheduler) Refreshing() bool {
	return rs.refreshing.Load()
}
