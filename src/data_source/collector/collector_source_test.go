package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bond-inventory/src/helpers"
	"bond-inventory/src/logger"
	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func sourceFor(t *testing.T, handler http.HandlerFunc) (*CollectorSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &models.MConfig{
		Name:     "test",
		LogLevel: "ERROR",
		Source: models.MSourceConfig{
			Endpoint:              srv.URL,
			RequestTimeoutSeconds: 2,
			Granularity:           "instant",
		},
	}
	src := NewCollectorSource(cfg)
	src.Logger = logger.NewLogger("ERROR", "CollectorSource")
	return src, srv
}

func jsonHandler(payload string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}
}

// -----------------------------------------------------------------------------
// Fetch
// -----------------------------------------------------------------------------

func TestFetch_NormalizesRecords(t *testing.T) {
	payload := `[
		{"chainId": 1, "totalRemainingValue": 100.5, "extra": "ignored"},
		{"chainId": "56", "totalRemainingValue": "250.75"},
		{"chainId": 137, "totalRemainingValue": null},
		{"chainId": 42161}
	]`
	src, _ := sourceFor(t, jsonHandler(payload))

	records, fetchedAt, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetchedAt.IsZero() {
		t.Error("fetchedAt is zero")
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}

	want := []models.MInventoryRecord{
		{ChainID: "1", Value: 100.5},
		{ChainID: "56", Value: 250.75},
		{ChainID: "137", Value: 0.0},
		{ChainID: "42161", Value: 0.0},
	}
	for i, rec := range records {
		if rec != want[i] {
			t.Errorf("record %d: got %+v, want %+v", i, rec, want[i])
		}
	}
}

func TestFetch_FetchedAtIsUTC(t *testing.T) {
	src, _ := sourceFor(t, jsonHandler(`[{"chainId": 1, "totalRemainingValue": 1}]`))
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	src.now = func() time.Time { return fixed }

	_, fetchedAt, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetchedAt.Location() != time.UTC {
		t.Errorf("fetchedAt zone: got %v, want UTC", fetchedAt.Location())
	}
	if !fetchedAt.Equal(fixed) {
		t.Errorf("fetchedAt: got %v, want %v", fetchedAt, fixed)
	}
}

// -----------------------------------------------------------------------------
// Failure Modes
// -----------------------------------------------------------------------------

func TestFetch_NonSuccessStatus(t *testing.T) {
	src, _ := sourceFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _, err := src.Fetch(context.Background())
	var serr *helpers.HTTPStatusError
	if !errors.As(err, &serr) {
		t.Fatalf("error type: got %T (%v), want *helpers.HTTPStatusError", err, err)
	}
	if serr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", serr.StatusCode)
	}
}

func TestFetch_EmptyArrayIsDecodeError(t *testing.T) {
	for _, payload := range []string{`[]`, `null`} {
		src, _ := sourceFor(t, jsonHandler(payload))
		_, _, err := src.Fetch(context.Background())
		var derr *helpers.DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("payload %s: got %T (%v), want *helpers.DecodeError", payload, err, err)
		}
	}
}

func TestFetch_MalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":        `{not json`,
		"object not list": `{"chainId": 1}`,
		"missing chainId": `[{"totalRemainingValue": 10}]`,
		"bad value":       `[{"chainId": 1, "totalRemainingValue": "abc"}]`,
		"bool value":      `[{"chainId": 1, "totalRemainingValue": true}]`,
	}
	for name, payload := range cases {
		src, _ := sourceFor(t, jsonHandler(payload))
		_, _, err := src.Fetch(context.Background())
		var derr *helpers.DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("%s: got %T (%v), want *helpers.DecodeError", name, err, err)
		}
	}
}

func TestFetch_NetworkError(t *testing.T) {
	src, srv := sourceFor(t, jsonHandler(`[]`))
	srv.Close()

	_, _, err := src.Fetch(context.Background())
	var nerr *helpers.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("error type: got %T (%v), want *helpers.NetworkError", err, err)
	}
}

func TestFetch_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	src, _ := sourceFor(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	t.Cleanup(func() { close(block) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := src.Fetch(ctx)
	var nerr *helpers.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("error type: got %T (%v), want *helpers.NetworkError", err, err)
	}
}
