package models

import (
	"sort"
	"time"
)

// AggregateKey is the reserved series holding the per-timestamp sum across
// all other keys. It is maintained by the store only, never by a source.
const AggregateKey = "aggregate"

// -----------------------------------------------------------------------------
// Fetch Batch
// -----------------------------------------------------------------------------

// MInventoryRecord is one normalized (key, value) record from a fetch batch.
type MInventoryRecord struct {
	ChainID string  `json:"chainId"`
	Value   float64 `json:"totalRemainingValue"`
}

// -----------------------------------------------------------------------------
// Time Series
// -----------------------------------------------------------------------------

type MSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MInventoryCache is the full series state plus refresh metadata. It is the
// unit of atomic replacement on each merge; LastError is runtime-only and is
// never persisted.
type MInventoryCache struct {
	Series          map[string][]MSeriesPoint
	LastRefreshedAt time.Time
	LastError       string
}

// -----------------------------------------------------------------------------

func NewInventoryCache() *MInventoryCache {
	return &MInventoryCache{
		Series: make(map[string][]MSeriesPoint),
	}
}

// -----------------------------------------------------------------------------

// Clone returns a deep copy. Points are values, so copying the slices is
// enough to fully detach the result from the receiver.
func (c *MInventoryCache) Clone() *MInventoryCache {
	out := &MInventoryCache{
		Series:          make(map[string][]MSeriesPoint, len(c.Series)),
		LastRefreshedAt: c.LastRefreshedAt,
		LastError:       c.LastError,
	}
	for key, points := range c.Series {
		cp := make([]MSeriesPoint, len(points))
		copy(cp, points)
		out.Series[key] = cp
	}
	return out
}

// -----------------------------------------------------------------------------

// Empty reports whether the cache holds no series at all.
func (c *MInventoryCache) Empty() bool {
	return len(c.Series) == 0
}

// -----------------------------------------------------------------------------

// PointCount returns the total number of points across all keys.
func (c *MInventoryCache) PointCount() int {
	n := 0
	for _, points := range c.Series {
		n += len(points)
	}
	return n
}

// -----------------------------------------------------------------------------
// Timestamp Granularity
// -----------------------------------------------------------------------------

// Granularity fixes how fetch timestamps are keyed: full RFC3339 instants
// (strict append-only) or calendar days (a day's point is upserted by the
// latest fetch that day).
type Granularity string

const (
	GranularityInstant Granularity = "instant"
	GranularityDay     Granularity = "day"
)

const dayLayout = "2006-01-02"

// -----------------------------------------------------------------------------

// ParseGranularity maps a config string to a Granularity, defaulting to
// instant for the empty string.
func ParseGranularity(s string) (Granularity, bool) {
	switch s {
	case "", string(GranularityInstant):
		return GranularityInstant, true
	case string(GranularityDay):
		return GranularityDay, true
	}
	return GranularityInstant, false
}

// -----------------------------------------------------------------------------

// Truncate normalizes a fetch timestamp to the granularity's resolution.
func (g Granularity) Truncate(t time.Time) time.Time {
	if g == GranularityDay {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return t.UTC()
}

// -----------------------------------------------------------------------------

// Format renders a timestamp the way it is keyed in persisted documents and
// API payloads.
func (g Granularity) Format(t time.Time) string {
	if g == GranularityDay {
		return t.UTC().Format(dayLayout)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// -----------------------------------------------------------------------------

// ParseStamp parses a persisted timestamp string, accepting both layouts so a
// store written under one granularity loads under the other.
func ParseStamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// -----------------------------------------------------------------------------
// Persisted Document Layout
// -----------------------------------------------------------------------------

// ToDocument flattens the series into the persisted JSON shape:
// key -> {timestamp-string -> value}, including the aggregate key.
func (c *MInventoryCache) ToDocument(g Granularity) map[string]map[string]float64 {
	doc := make(map[string]map[string]float64, len(c.Series))
	for key, points := range c.Series {
		m := make(map[string]float64, len(points))
		for _, p := range points {
			m[g.Format(p.Timestamp)] = p.Value
		}
		doc[key] = m
	}
	return doc
}

// -----------------------------------------------------------------------------

// CacheFromDocument rebuilds an MInventoryCache from a persisted document.
// Points are sorted ascending per key and LastRefreshedAt is reconstructed as
// the maximum timestamp present. Unparsable stamps are dropped, not fatal.
func CacheFromDocument(doc map[string]map[string]float64) *MInventoryCache {
	cache := NewInventoryCache()
	var latest time.Time
	for key, stamps := range doc {
		points := make([]MSeriesPoint, 0, len(stamps))
		for stamp, value := range stamps {
			ts, err := ParseStamp(stamp)
			if err != nil {
				continue
			}
			points = append(points, MSeriesPoint{Timestamp: ts, Value: value})
			if ts.After(latest) {
				latest = ts
			}
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].Timestamp.Before(points[j].Timestamp)
		})
		cache.Series[key] = points
	}
	cache.LastRefreshedAt = latest
	return cache
}
