package analysis

import (
	"sort"

	"bond-inventory/src/helpers"
	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// View Builders
//
// Pure functions over a store snapshot. They never mutate their input and
// hold no state of their own.
// -----------------------------------------------------------------------------

// LatestPerKey returns, for each non-aggregate key, the point with the
// maximum timestamp. A key present with zero points is an EmptySeriesError:
// it should not occur in a well-formed snapshot, but it is handled, not
// assumed away.
func LatestPerKey(cache *models.MInventoryCache, g models.Granularity) (map[string]models.MLatestEntry, error) {
	latest := make(map[string]models.MLatestEntry, len(cache.Series))
	for key, points := range cache.Series {
		if key == models.AggregateKey {
			continue
		}
		if len(points) == 0 {
			return nil, &helpers.EmptySeriesError{Key: key}
		}

		best := points[0]
		for _, p := range points[1:] {
			if p.Timestamp.After(best.Timestamp) {
				best = p
			}
		}
		latest[key] = models.MLatestEntry{
			Value: best.Value,
			Date:  g.Format(best.Timestamp),
		}
	}
	return latest, nil
}

// -----------------------------------------------------------------------------

// PercentageBreakdown maps each key to its share of the summed latest
// values, in percent. A zero total yields 0.0 for every key: never a divide
// by zero, never a NaN.
func PercentageBreakdown(latest map[string]models.MLatestEntry) map[string]float64 {
	total := 0.0
	for _, entry := range latest {
		total += entry.Value
	}

	breakdown := make(map[string]float64, len(latest))
	for key, entry := range latest {
		if total == 0 {
			breakdown[key] = 0.0
			continue
		}
		breakdown[key] = 100 * entry.Value / total
	}
	return breakdown
}

// -----------------------------------------------------------------------------

// AggregateSeries returns the reserved aggregate series sorted ascending by
// timestamp. A missing aggregate key yields an empty slice.
func AggregateSeries(cache *models.MInventoryCache) []models.MSeriesPoint {
	points := cache.Series[models.AggregateKey]
	out := make([]models.MSeriesPoint, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// -----------------------------------------------------------------------------

// Historical flattens every series, aggregate included, into the
// {key: {timestamp-string: value}} shape the dashboard charts consume.
func Historical(cache *models.MInventoryCache, g models.Granularity) map[string]map[string]float64 {
	return cache.ToDocument(g)
}

// -----------------------------------------------------------------------------

// BuildDataResponse assembles the full GET /data payload from one snapshot.
func BuildDataResponse(cache *models.MInventoryCache, g models.Granularity) (*models.MDataResponse, error) {
	latest, err := LatestPerKey(cache, g)
	if err != nil {
		return nil, err
	}
	return &models.MDataResponse{
		Latest:     latest,
		PieData:    PercentageBreakdown(latest),
		Historical: Historical(cache, g),
	}, nil
}
