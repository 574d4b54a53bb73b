package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bond-inventory/src/logger"
	"bond-inventory/src/models"
	"bond-inventory/src/scheduler"
	"bond-inventory/src/storage"
	"bond-inventory/src/store"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

type scriptedSource struct {
	records []models.MInventoryRecord
	err     error
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(ctx context.Context) ([]models.MInventoryRecord, time.Time, error) {
	if s.err != nil {
		return nil, time.Time{}, s.err
	}
	return s.records, time.Now().UTC(), nil
}

func serverConfig(ttlSeconds int) *models.MConfig {
	return &models.MConfig{
		Name:     "test",
		Host:     "127.0.0.1",
		Port:     18080,
		LogLevel: "ERROR",
		Storage:  models.MStorageConfig{Backend: "memory"},
		Source: models.MSourceConfig{
			Endpoint:               "http://example.invalid/inventory",
			RequestTimeoutSeconds:  1,
			RefreshIntervalSeconds: 3600,
			Granularity:            "instant",
		},
		Cache: models.MCacheConfig{TTLSeconds: ttlSeconds},
	}
}

func newTestServer(src *scriptedSource, ttlSeconds int) (*APIServer, *store.SeriesStore) {
	cfg := serverConfig(ttlSeconds)
	log := logger.NewLogger("ERROR", "test")
	st := store.NewSeriesStore(cfg, storage.NewMemoryStorage(), log)
	sched := scheduler.NewRefreshScheduler(cfg, src, st)
	return NewAPIServer(cfg, log, st, sched), st
}

func doRequest(s *APIServer, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", w.Body.String(), err)
	}
	return body
}

// -----------------------------------------------------------------------------
// GET /health
// -----------------------------------------------------------------------------

func TestHealth_AlwaysHealthy(t *testing.T) {
	srv, _ := newTestServer(&scriptedSource{err: errors.New("upstream down")}, 0)

	w := doRequest(srv, http.MethodGet, "/health")
	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if got := decodeBody(t, w)["status"]; got != "healthy" {
		t.Errorf("status field: got %v, want healthy", got)
	}
}

// -----------------------------------------------------------------------------
// GET /data
// -----------------------------------------------------------------------------

func TestData_EmptyStoreFailingSourceIs404(t *testing.T) {
	srv, _ := newTestServer(&scriptedSource{err: errors.New("upstream down")}, 0)

	w := doRequest(srv, http.MethodGet, "/data")
	if w.Code != 404 {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
	if got := decodeBody(t, w)["error"]; got != "No data available" {
		t.Errorf("error field: got %v", got)
	}
}

func TestData_EmptyStoreFallbackFetch(t *testing.T) {
	src := &scriptedSource{records: []models.MInventoryRecord{
		{ChainID: "1", Value: 60},
		{ChainID: "56", Value: 140},
	}}
	srv, _ := newTestServer(src, 0)

	w := doRequest(srv, http.MethodGet, "/data")
	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200 via fallback fetch, body %s", w.Code, w.Body.String())
	}

	var resp models.MDataResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if resp.Latest["1"].Value != 60 {
		t.Errorf("latest[1]: got %v, want 60", resp.Latest["1"].Value)
	}
	if resp.PieData["56"] != 70 {
		t.Errorf("pie_data[56]: got %v, want 70", resp.PieData["56"])
	}
	if _, ok := resp.Historical[models.AggregateKey]; !ok {
		t.Errorf("historical missing aggregate series")
	}
	if _, ok := resp.Latest[models.AggregateKey]; ok {
		t.Errorf("latest includes aggregate key")
	}
}

func TestData_ServesCachedPayloadWithinTTL(t *testing.T) {
	src := &scriptedSource{records: []models.MInventoryRecord{{ChainID: "1", Value: 60}}}
	srv, st := newTestServer(src, 3600)

	first := doRequest(srv, http.MethodGet, "/data")
	if first.Code != 200 {
		t.Fatalf("first request: got %d, want 200", first.Code)
	}

	// New data lands mid-TTL; the memoized payload is served regardless.
	if err := st.Merge([]models.MInventoryRecord{{ChainID: "1", Value: 999}}, time.Now().UTC()); err != nil {
		t.Fatalf("merge: %v", err)
	}

	second := doRequest(srv, http.MethodGet, "/data")
	if second.Code != 200 {
		t.Fatalf("second request: got %d, want 200", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("cached response changed within TTL")
	}
}

func TestData_DisabledCacheServesFreshPayload(t *testing.T) {
	src := &scriptedSource{records: []models.MInventoryRecord{{ChainID: "1", Value: 60}}}
	srv, st := newTestServer(src, 0)

	doRequest(srv, http.MethodGet, "/data")

	if err := st.Merge([]models.MInventoryRecord{{ChainID: "1", Value: 999}}, time.Now().UTC().Add(time.Second)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	w := doRequest(srv, http.MethodGet, "/data")
	var resp models.MDataResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if resp.Latest["1"].Value != 999 {
		t.Errorf("latest[1]: got %v, want fresh 999", resp.Latest["1"].Value)
	}
}

// -----------------------------------------------------------------------------
// GET /api/status
// -----------------------------------------------------------------------------

func TestStatus_ReportsStoreState(t *testing.T) {
	src := &scriptedSource{records: []models.MInventoryRecord{{ChainID: "1", Value: 60}}}
	srv, st := newTestServer(src, 0)

	fetchedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := st.Merge(src.records, fetchedAt); err != nil {
		t.Fatalf("merge: %v", err)
	}

	w := doRequest(srv, http.MethodGet, "/api/status")
	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	body := decodeBody(t, w)

	if body["backend"] != "memory" {
		t.Errorf("backend: got %v", body["backend"])
	}
	if body["keys"].(float64) != 2 {
		t.Errorf("keys: got %v, want 2 (key 1 + aggregate)", body["keys"])
	}
	if body["points"].(float64) != 2 {
		t.Errorf("points: got %v, want 2", body["points"])
	}
	if body["last_refreshed_at"] != "2026-08-30T12:00:00Z" {
		t.Errorf("last_refreshed_at: got %v", body["last_refreshed_at"])
	}
	if body["last_error"] != "" {
		t.Errorf("last_error: got %v, want empty", body["last_error"])
	}
	if body["refreshing"] != false {
		t.Errorf("refreshing: got %v, want false", body["refreshing"])
	}
	if body["connections"].(float64) != 0 {
		t.Errorf("connections: got %v, want 0", body["connections"])
	}
}

// -----------------------------------------------------------------------------
// GET /api/aggregate
// -----------------------------------------------------------------------------

func TestAggregate_SortedSeries(t *testing.T) {
	src := &scriptedSource{}
	srv, st := newTestServer(src, 0)

	t1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(4 * time.Hour)
	if err := st.Merge([]models.MInventoryRecord{{ChainID: "1", Value: 100.5}, {ChainID: "2", Value: 0}}, t1); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if err := st.Merge([]models.MInventoryRecord{{ChainID: "1", Value: 50}}, t2); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	w := doRequest(srv, http.MethodGet, "/api/aggregate")
	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var body struct {
		Aggregate []models.MLatestEntry `json:"aggregate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Aggregate) != 2 {
		t.Fatalf("points: got %d, want 2", len(body.Aggregate))
	}
	if body.Aggregate[0].Value != 100.5 || body.Aggregate[1].Value != 50 {
		t.Errorf("values: got %v, want 100.5 then 50", body.Aggregate)
	}
	if body.Aggregate[0].Date >= body.Aggregate[1].Date {
		t.Errorf("series not ascending: %q then %q", body.Aggregate[0].Date, body.Aggregate[1].Date)
	}
}

func TestAggregate_EmptyStore(t *testing.T) {
	srv, _ := newTestServer(&scriptedSource{}, 0)

	w := doRequest(srv, http.MethodGet, "/api/aggregate")
	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if got := decodeBody(t, w)["aggregate"]; got == nil {
		t.Errorf("aggregate: got nil, want empty list")
	}
}

// -----------------------------------------------------------------------------
// POST /api/refresh
// -----------------------------------------------------------------------------

func TestRefresh_TriggersFetchAndMerge(t *testing.T) {
	src := &scriptedSource{records: []models.MInventoryRecord{{ChainID: "1", Value: 60}}}
	srv, st := newTestServer(src, 0)

	w := doRequest(srv, http.MethodPost, "/api/refresh")
	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["refreshed"] != true {
		t.Errorf("refreshed: got %v, want true", body["refreshed"])
	}
	if st.Empty() {
		t.Error("store empty after manual refresh")
	}
}

func TestRefresh_FailureSurfacesLastError(t *testing.T) {
	srv, _ := newTestServer(&scriptedSource{err: errors.New("upstream down")}, 0)

	w := doRequest(srv, http.MethodPost, "/api/refresh")
	body := decodeBody(t, w)
	if body["refreshed"] != true {
		t.Errorf("refreshed: got %v, want true (a cycle ran and failed)", body["refreshed"])
	}
	if body["last_error"] == "" {
		t.Error("last_error empty after failed refresh")
	}
}
