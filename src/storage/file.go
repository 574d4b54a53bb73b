package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bond-inventory/src/logger"
	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// FileStorage
//
// Serializes the full snapshot to a single JSON document mapping
// key -> {timestamp-string -> value}, aggregate included. Save writes a temp
// file in the same directory and renames it over the target, so a crash
// mid-write can never leave a half-written, unparsable file.
// -----------------------------------------------------------------------------

type FileStorage struct {
	Config      *models.MConfig
	Logger      *logger.Logger
	granularity models.Granularity
}

// -----------------------------------------------------------------------------

func NewFileStorage(cfg *models.MConfig, log *logger.Logger) *FileStorage {
	g, _ := models.ParseGranularity(cfg.Source.Granularity)
	return &FileStorage{
		Config:      cfg,
		Logger:      log,
		granularity: g,
	}
}

// -----------------------------------------------------------------------------

func (f *FileStorage) Backend() string {
	return "file"
}

// -----------------------------------------------------------------------------

// Load reads the last saved document. A missing or corrupt file yields an
// empty cache rather than failing the process.
func (f *FileStorage) Load() (*models.MInventoryCache, error) {
	data, err := os.ReadFile(f.Config.Storage.FilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			f.Logger.Warning("Reading %s failed, starting empty: %v", f.Config.Storage.FilePath, err)
		}
		return models.NewInventoryCache(), nil
	}

	var doc map[string]map[string]float64
	if err := json.Unmarshal(data, &doc); err != nil {
		f.Logger.Warning("Persisted file %s is corrupt, starting empty: %v", f.Config.Storage.FilePath, err)
		return models.NewInventoryCache(), nil
	}

	return models.CacheFromDocument(doc), nil
}

// -----------------------------------------------------------------------------

func (f *FileStorage) Save(cache *models.MInventoryCache) error {
	data, err := json.Marshal(cache.ToDocument(f.granularity))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	target := f.Config.Storage.FilePath
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace '%s': %w", target, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (f *FileStorage) Close() error {
	return nil
}
