package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bond-inventory/src/helpers"
	"bond-inventory/src/logger"
	"bond-inventory/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------
// SQLiteStorage
//
// Table-backed variant: every Save appends an immutable full-snapshot row and
// Load reads the most recent one. The append-only log trades storage size for
// an audit trail and sidesteps partial-update bugs entirely; trimming old
// rows is an external retention job's concern.
// -----------------------------------------------------------------------------

type SQLiteStorage struct {
	Config      *models.MConfig
	DB          *sql.DB
	Logger      *logger.Logger
	granularity models.Granularity
}

// -----------------------------------------------------------------------------

func NewSQLiteStorage(cfg *models.MConfig, log *logger.Logger) (*SQLiteStorage, error) {
	g, _ := models.ParseGranularity(cfg.Source.Granularity)
	s := &SQLiteStorage{
		Config:      cfg,
		Logger:      log,
		granularity: g,
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStorage) initialize() error {
	db, err := sql.Open("sqlite", s.Config.Storage.DBPath)
	if err != nil {
		return err
	}

	if err := helpers.RetryWithBackoff("sqlite ping", 3, time.Second, db.Ping); err != nil {
		db.Close()
		return err
	}

	s.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		s.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		s.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS inventory_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			document TEXT NOT NULL
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create inventory_snapshots: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStorage) Backend() string {
	return "sqlite"
}

// -----------------------------------------------------------------------------

// Load reads the most recent snapshot row. An empty table yields an empty
// cache; a corrupt document is logged and treated the same way.
func (s *SQLiteStorage) Load() (*models.MInventoryCache, error) {
	var raw string
	var createdAt int64
	row := s.DB.QueryRow("SELECT created_at, document FROM inventory_snapshots ORDER BY id DESC LIMIT 1")
	if err := row.Scan(&createdAt, &raw); err != nil {
		if err == sql.ErrNoRows {
			return models.NewInventoryCache(), nil
		}
		return nil, fmt.Errorf("failed to read latest snapshot row: %w", err)
	}

	var doc map[string]map[string]float64
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		s.Logger.Warning("Latest snapshot row is corrupt, starting empty: %v", err)
		return models.NewInventoryCache(), nil
	}

	cache := models.CacheFromDocument(doc)
	cache.LastRefreshedAt = time.Unix(createdAt, 0).UTC()
	return cache, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStorage) Save(cache *models.MInventoryCache) error {
	data, err := json.Marshal(cache.ToDocument(s.granularity))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	createdAt := cache.LastRefreshedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.DB.Exec(
		"INSERT INTO inventory_snapshots (created_at, document) VALUES (?, ?)",
		createdAt.Unix(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot row: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// SnapshotCount returns the number of rows in the append-only log.
func (s *SQLiteStorage) SnapshotCount() (int, error) {
	var n int
	if err := s.DB.QueryRow("SELECT COUNT(*) FROM inventory_snapshots").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStorage) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
