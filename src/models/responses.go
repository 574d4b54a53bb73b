package models

// -----------------------------------------------------------------------------
// API Payload Shapes
// -----------------------------------------------------------------------------

// MLatestEntry is the freshest point of one key, as served to dashboards.
type MLatestEntry struct {
	Value float64 `json:"value"`
	Date  string  `json:"date"`
}

// MDataResponse is the GET /data body.
type MDataResponse struct {
	Latest     map[string]MLatestEntry       `json:"latest"`
	PieData    map[string]float64            `json:"pie_data"`
	Historical map[string]map[string]float64 `json:"historical"`
}

// -----------------------------------------------------------------------------
// WebSocket Push
// -----------------------------------------------------------------------------

// MPushMessage is broadcast to connected dashboard clients after each
// successful refresh. Type is "INITIAL" on connect, "UPDATE" afterwards.
type MPushMessage struct {
	Type      string                  `json:"type"`
	Latest    map[string]MLatestEntry `json:"latest"`
	PieData   map[string]float64      `json:"pie_data"`
	Timestamp int64                   `json:"timestamp"`
}
