package storage

import "bond-inventory/src/models"

// -----------------------------------------------------------------------------
// MemoryStorage
//
// No durability: Load always returns empty and Save is a no-op. Selected
// when the host explicitly does not require state to survive a restart.
// -----------------------------------------------------------------------------

type MemoryStorage struct{}

// -----------------------------------------------------------------------------

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// -----------------------------------------------------------------------------

func (m *MemoryStorage) Backend() string {
	return "memory"
}

// -----------------------------------------------------------------------------

func (m *MemoryStorage) Load() (*models.MInventoryCache, error) {
	return models.NewInventoryCache(), nil
}

// -----------------------------------------------------------------------------

func (m *MemoryStorage) Save(cache *models.MInventoryCache) error {
	return nil
}

// -----------------------------------------------------------------------------

func (m *MemoryStorage) Close() error {
	return nil
}
