package interfaces

import (
	"context"
	"time"

	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// IInventorySource interface for fetching inventory snapshots from external sources.
// -----------------------------------------------------------------------------

type IInventorySource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Fetch retrieves one full inventory snapshot: a batch of normalized
	// (key, value) records plus the fetch timestamp. The call is bounded by
	// the source's configured timeout and performs no retries of its own;
	// retry policy belongs to the scheduler.
	Fetch(ctx context.Context) ([]models.MInventoryRecord, time.Time, error)
}
