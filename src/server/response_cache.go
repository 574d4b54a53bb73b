package server

import (
	"sync"
	"sync/atomic"
	"time"

	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// ResponseCache
//
// Short-TTL memoization in front of the HTTP read path, keyed by endpoint.
// Entries expire purely by TTL; a merge completing mid-TTL does not
// force-invalidate them. That staleness window is a deliberate latency
// tradeoff, independent of the series store's own freshness.
// -----------------------------------------------------------------------------

type cacheEntry struct {
	payload   *models.MDataResponse
	expiresAt time.Time
}

type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     atomic.Int64 // nanoseconds; <= 0 disables caching

	now func() time.Time // injectable for deterministic tests
}

// -----------------------------------------------------------------------------

func NewResponseCache(ttl time.Duration) *ResponseCache {
	rc := &ResponseCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
	rc.ttl.Store(int64(ttl))
	return rc
}

// -----------------------------------------------------------------------------

// Get returns the memoized payload for key if it has not expired.
func (rc *ResponseCache) Get(key string) (*models.MDataResponse, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	entry, ok := rc.entries[key]
	if !ok {
		return nil, false
	}
	if rc.now().After(entry.expiresAt) {
		delete(rc.entries, key)
		return nil, false
	}
	return entry.payload, true
}

// -----------------------------------------------------------------------------

// Set memoizes payload under key for the configured TTL. A non-positive TTL
// disables memoization entirely.
func (rc *ResponseCache) Set(key string, payload *models.MDataResponse) {
	ttl := time.Duration(rc.ttl.Load())
	if ttl <= 0 {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[key] = cacheEntry{
		payload:   payload,
		expiresAt: rc.now().Add(ttl),
	}
}

// -----------------------------------------------------------------------------

// SetTTL updates the TTL for future Set calls; existing entries keep the
// expiry they were stored with.
func (rc *ResponseCache) SetTTL(ttl time.Duration) {
	rc.ttl.Store(int64(ttl))
}

// -----------------------------------------------------------------------------

func (rc *ResponseCache) TTL() time.Duration {
	return time.Duration(rc.ttl.Load())
}
