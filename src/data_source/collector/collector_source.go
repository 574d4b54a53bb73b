package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bond-inventory/src/helpers"
	"bond-inventory/src/logger"
	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// CollectorSource
//
// Pulls one inventory snapshot per call from the collector endpoint and
// normalizes it into (key, value) records. Stateless: no retries (scheduler
// policy) and no series knowledge (store policy).
// -----------------------------------------------------------------------------

type CollectorSource struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	HttpClient *http.Client

	now func() time.Time // injectable for deterministic tests
}

// -----------------------------------------------------------------------------

func NewCollectorSource(cfg *models.MConfig) *CollectorSource {
	return &CollectorSource{
		Config: cfg,
		Logger: logger.NewLogger(cfg.LogLevel, "CollectorSource"),
		HttpClient: &http.Client{
			Timeout: time.Duration(cfg.Source.RequestTimeoutSeconds) * time.Second,
		},
		now: time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *CollectorSource) Name() string {
	return "collector"
}

// -----------------------------------------------------------------------------

// Fetch performs one bounded GET against the inventory endpoint and returns
// the normalized batch plus the fetch timestamp.
func (s *CollectorSource) Fetch(ctx context.Context) ([]models.MInventoryRecord, time.Time, error) {
	url := s.Config.Source.Endpoint
	s.Logger.Debug("Fetching inventory from %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, time.Time{}, &helpers.NetworkError{InventoryError: helpers.InventoryError{
			Message: "building inventory request failed", Cause: err}}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HttpClient.Do(req)
	if err != nil {
		return nil, time.Time{}, &helpers.NetworkError{InventoryError: helpers.InventoryError{
			Message: "inventory request failed", Cause: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, time.Time{}, &helpers.HTTPStatusError{
			InventoryError: helpers.InventoryError{
				Message: fmt.Sprintf("inventory endpoint returned status %d", resp.StatusCode)},
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, time.Time{}, &helpers.NetworkError{InventoryError: helpers.InventoryError{
			Message: "reading inventory response failed", Cause: err}}
	}

	records, err := s.parseInventoryResponse(body)
	if err != nil {
		return nil, time.Time{}, err
	}

	fetchedAt := s.now().UTC()
	s.Logger.Info("Fetched %d inventory records", len(records))
	return records, fetchedAt, nil
}

// -----------------------------------------------------------------------------

// parseInventoryResponse validates and normalizes the raw payload. An empty
// or null top-level array is a decode failure: empty is a signal, never
// silently accepted as zero inventory everywhere.
func (s *CollectorSource) parseInventoryResponse(body []byte) ([]models.MInventoryRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, &helpers.DecodeError{InventoryError: helpers.InventoryError{
			Message: "inventory payload is not a JSON array", Cause: err}}
	}
	if len(raw) == 0 {
		return nil, &helpers.DecodeError{InventoryError: helpers.InventoryError{
			Message: "inventory payload is empty"}}
	}

	records := make([]models.MInventoryRecord, 0, len(raw))
	for i, item := range raw {
		key, err := normalizeKey(item["chainId"])
		if err != nil {
			return nil, &helpers.DecodeError{InventoryError: helpers.InventoryError{
				Message: fmt.Sprintf("record %d has no usable chainId", i), Cause: err}}
		}

		value, err := normalizeValue(item["totalRemainingValue"])
		if err != nil {
			return nil, &helpers.DecodeError{InventoryError: helpers.InventoryError{
				Message: fmt.Sprintf("record %d (%s) has an unparsable totalRemainingValue", i, key), Cause: err}}
		}

		records = append(records, models.MInventoryRecord{ChainID: key, Value: value})
	}

	return records, nil
}

// -----------------------------------------------------------------------------

// normalizeKey stringifies chainId whether the source sends it as a JSON
// number or a string.
func normalizeKey(v interface{}) (string, error) {
	switch val := v.(type) {
	case json.Number:
		return val.String(), nil
	case string:
		if val == "" {
			return "", fmt.Errorf("chainId is empty")
		}
		return val, nil
	case nil:
		return "", fmt.Errorf("chainId is missing")
	default:
		return "", fmt.Errorf("chainId has unexpected type %T", v)
	}
}

// -----------------------------------------------------------------------------

// normalizeValue coerces totalRemainingValue to float64. Missing and null
// are 0.0; a present value that cannot be parsed is an error.
func normalizeValue(v interface{}) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0.0, nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("totalRemainingValue has unexpected type %T", v)
	}
}
