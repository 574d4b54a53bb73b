package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bond-inventory/src/helpers"
	"bond-inventory/src/logger"
	"bond-inventory/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// PostgresStorage
//
// Same append-only snapshot log as the SQLite variant, for hosts that already
// run Postgres. Selected by the "postgres" backend with a connection string.
// -----------------------------------------------------------------------------

type PostgresStorage struct {
	Config      *models.MConfig
	DB          *sql.DB
	Logger      *logger.Logger
	granularity models.Granularity
}

// -----------------------------------------------------------------------------

func NewPostgresStorage(cfg *models.MConfig, log *logger.Logger) (*PostgresStorage, error) {
	g, _ := models.ParseGranularity(cfg.Source.Granularity)
	p := &PostgresStorage{
		Config:      cfg,
		Logger:      log,
		granularity: g,
	}
	if err := p.initialize(); err != nil {
		return nil, err
	}
	return p, nil
}

// -----------------------------------------------------------------------------

func (p *PostgresStorage) initialize() error {
	db, err := sql.Open("postgres", p.Config.Storage.DBConnectionString)
	if err != nil {
		return err
	}

	if err := helpers.RetryWithBackoff("postgres ping", 3, time.Second, db.Ping); err != nil {
		db.Close()
		return err
	}

	p.DB = db

	query := `
		CREATE TABLE IF NOT EXISTS inventory_snapshots (
			id BIGSERIAL PRIMARY KEY,
			created_at BIGINT NOT NULL,
			document JSONB NOT NULL
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create inventory_snapshots: %w", err)
	}

	p.Logger.Info("PostgresStorage initialized")
	return nil
}

// -----------------------------------------------------------------------------

func (p *PostgresStorage) Backend() string {
	return "postgres"
}

// -----------------------------------------------------------------------------

func (p *PostgresStorage) Load() (*models.MInventoryCache, error) {
	var raw []byte
	var createdAt int64
	row := p.DB.QueryRow("SELECT created_at, document FROM inventory_snapshots ORDER BY id DESC LIMIT 1")
	if err := row.Scan(&createdAt, &raw); err != nil {
		if err == sql.ErrNoRows {
			return models.NewInventoryCache(), nil
		}
		return nil, fmt.Errorf("failed to read latest snapshot row: %w", err)
	}

	var doc map[string]map[string]float64
	if err := json.Unmarshal(raw, &doc); err != nil {
		p.Logger.Warning("Latest snapshot row is corrupt, starting empty: %v", err)
		return models.NewInventoryCache(), nil
	}

	cache := models.CacheFromDocument(doc)
	cache.LastRefreshedAt = time.Unix(createdAt, 0).UTC()
	return cache, nil
}

// -----------------------------------------------------------------------------

func (p *PostgresStorage) Save(cache *models.MInventoryCache) error {
	data, err := json.Marshal(cache.ToDocument(p.granularity))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	createdAt := cache.LastRefreshedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = p.DB.Exec(
		"INSERT INTO inventory_snapshots (created_at, document) VALUES ($1, $2)",
		createdAt.Unix(), data,
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot row: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (p *PostgresStorage) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}
