package store

import (
	"sort"
	"sync"
	"time"

	"bond-inventory/src/helpers"
	"bond-inventory/src/interfaces"
	"bond-inventory/src/logger"
	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// SeriesStore
//
// Owns the in-memory inventory series and is the sole mutator of persistent
// state. A merge builds an isolated working copy, persists it, and only then
// swaps it in: readers see either the fully-old or fully-new snapshot, never
// a mix, and a failed persist leaves the visible state untouched.
//
// Locking: mergeMu serializes the whole read-modify-persist-swap critical
// section across merges and prunes; mu guards the cache pointer so Snapshot
// never observes a half-applied swap.
// -----------------------------------------------------------------------------

type SeriesStore struct {
	Config      *models.MConfig
	Logger      *logger.Logger
	Persistence interfaces.IPersistence

	granularity models.Granularity

	mergeMu sync.Mutex
	mu      sync.RWMutex
	cache   *models.MInventoryCache

	now func() time.Time // injectable for deterministic tests
}

// -----------------------------------------------------------------------------

func NewSeriesStore(cfg *models.MConfig, persistence interfaces.IPersistence, log *logger.Logger) *SeriesStore {
	g, _ := models.ParseGranularity(cfg.Source.Granularity)
	return &SeriesStore{
		Config:      cfg,
		Logger:      log,
		Persistence: persistence,
		granularity: g,
		cache:       models.NewInventoryCache(),
		now:         time.Now,
	}
}

// -----------------------------------------------------------------------------

// Load seeds the store from the persistence adapter's last saved snapshot,
// pruning points older than the retention horizon. Called once at startup.
func (s *SeriesStore) Load() error {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	loaded, err := s.Persistence.Load()
	if err != nil {
		return &helpers.InitializationError{InventoryError: helpers.InventoryError{
			Message: "loading persisted snapshot failed", Cause: err}}
	}
	if loaded == nil {
		loaded = models.NewInventoryCache()
	}

	dropped := pruneSeries(loaded, s.retentionCutoff())
	if dropped > 0 {
		s.Logger.Info("Pruned %d points past the retention horizon on load", dropped)
	}

	s.mu.Lock()
	s.cache = loaded
	s.mu.Unlock()

	s.Logger.Info("Seeded store from %s backend: %d keys, %d points",
		s.Persistence.Backend(), len(loaded.Series), loaded.PointCount())
	return nil
}

// -----------------------------------------------------------------------------

// Merge folds one fetch batch into the series and durably saves the result.
// Per key the point is appended (instant granularity) or upserts the day's
// point (day granularity); the aggregate point is recomputed from this batch
// alone, so a garbled previous aggregate can never compound.
func (s *SeriesStore) Merge(records []models.MInventoryRecord, fetchedAt time.Time) error {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	ts := s.granularity.Truncate(fetchedAt)

	s.mu.RLock()
	working := s.cache.Clone()
	s.mu.RUnlock()

	// A well-formed batch reports each key once; if a key repeats, the last
	// record wins so the aggregate stays the sum of the values applied.
	batch := make(map[string]float64, len(records))
	for _, rec := range records {
		batch[rec.ChainID] = rec.Value
	}

	total := 0.0
	for key, value := range batch {
		working.Series[key] = applyPoint(working.Series[key], ts, value, s.granularity)
		total += value
	}
	working.Series[models.AggregateKey] = applyPoint(working.Series[models.AggregateKey], ts, total, s.granularity)

	pruneSeries(working, s.retentionCutoff())
	working.LastRefreshedAt = fetchedAt.UTC()
	working.LastError = ""

	if err := s.Persistence.Save(working); err != nil {
		return &helpers.PersistenceError{InventoryError: helpers.InventoryError{
			Message: "persisting merged snapshot failed", Cause: err}}
	}

	s.mu.Lock()
	s.cache = working
	s.mu.Unlock()

	s.Logger.Info("Merged %d records at %s (total %.2f)", len(batch), s.granularity.Format(ts), total)
	return nil
}

// -----------------------------------------------------------------------------

// applyPoint folds one point into a series, keeping timestamps strictly
// increasing. A new timestamp is inserted at its sorted position; an
// already-present timestamp is never rewritten in instant granularity and is
// upserted by the newer fetch in day granularity (ts arrives truncated, so
// same-day points compare equal).
func applyPoint(series []models.MSeriesPoint, ts time.Time, value float64, g models.Granularity) []models.MSeriesPoint {
	idx := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(ts)
	})

	if idx < len(series) && series[idx].Timestamp.Equal(ts) {
		if g == models.GranularityDay {
			series[idx].Value = value
		}
		return series
	}

	series = append(series, models.MSeriesPoint{})
	copy(series[idx+1:], series[idx:])
	series[idx] = models.MSeriesPoint{Timestamp: ts, Value: value}
	return series
}

// -----------------------------------------------------------------------------

// Snapshot returns a deep copy of the current state. Callers own the result
// and may iterate it while merges continue.
func (s *SeriesStore) Snapshot() *models.MInventoryCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Clone()
}

// -----------------------------------------------------------------------------

// Empty reports whether the store has never been populated.
func (s *SeriesStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Empty()
}

// -----------------------------------------------------------------------------

// RecordFailure notes the most recent failed refresh. The series data is
// left untouched: a failed refresh never blanks a previously good cache.
func (s *SeriesStore) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.LastError = err.Error()
}

// -----------------------------------------------------------------------------

// Prune removes points older than now minus horizon from every key,
// including the aggregate, and persists the pruned snapshot.
func (s *SeriesStore) Prune(horizon time.Duration) error {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	cutoff := s.now().UTC().Add(-horizon)

	s.mu.RLock()
	working := s.cache.Clone()
	s.mu.RUnlock()

	dropped := pruneSeries(working, cutoff)
	if dropped == 0 {
		return nil
	}

	if err := s.Persistence.Save(working); err != nil {
		return &helpers.PersistenceError{InventoryError: helpers.InventoryError{
			Message: "persisting pruned snapshot failed", Cause: err}}
	}

	s.mu.Lock()
	s.cache = working
	s.mu.Unlock()

	s.Logger.Info("Pruned %d points older than %s", dropped, cutoff.Format(time.RFC3339))
	return nil
}

// -----------------------------------------------------------------------------

// pruneSeries drops points strictly older than cutoff in place and returns
// how many were removed. Keys are kept even when all their points age out,
// so a key that stops being reported retains its identity.
func pruneSeries(cache *models.MInventoryCache, cutoff time.Time) int {
	dropped := 0
	for key, points := range cache.Series {
		idx := 0
		for idx < len(points) && points[idx].Timestamp.Before(cutoff) {
			idx++
		}
		if idx > 0 {
			cache.Series[key] = points[idx:]
			dropped += idx
		}
	}
	return dropped
}

// -----------------------------------------------------------------------------

func (s *SeriesStore) retentionCutoff() time.Time {
	days := s.Config.Source.RetentionDays
	if days <= 0 {
		// Retention disabled; nothing is ever older than the zero time.
		return time.Time{}
	}
	return s.now().UTC().AddDate(0, 0, -days)
}

// -----------------------------------------------------------------------------

// Granularity exposes the store's timestamp policy to view builders.
func (s *SeriesStore) Granularity() models.Granularity {
	return s.granularity
}
