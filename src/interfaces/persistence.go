package interfaces

import "bond-inventory/src/models"

// -----------------------------------------------------------------------------
// IPersistence defines the contract for durable snapshot storage.
//
// Variants make no concurrency guarantees of their own: the series store is
// the sole mutator and serializes all Save calls.
// -----------------------------------------------------------------------------

type IPersistence interface {

	// Backend returns the selector name of this variant ("memory", "file", ...)
	Backend() string

	// -----------------------------------------------------------------------------

	// Load returns the last saved snapshot, or an empty cache when nothing
	// usable was saved before (missing or corrupt state is empty, not fatal).
	Load() (*models.MInventoryCache, error)

	// -----------------------------------------------------------------------------

	// Save durably writes the full snapshot. A failed Save must leave the
	// previously saved snapshot readable.
	Save(cache *models.MInventoryCache) error

	// -----------------------------------------------------------------------------

	// Close releases the underlying resources
	Close() error
}
