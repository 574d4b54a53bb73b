package helpers

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type InventoryError struct {
	Message string
	Cause   error
}

func (e *InventoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InventoryError) Unwrap() error {
	return e.Cause
}

// Fetch failures: the transport failed, the source answered non-2xx, or the
// body could not be decoded into a usable batch.
type NetworkError struct{ InventoryError }
type DecodeError struct{ InventoryError }

type HTTPStatusError struct {
	InventoryError
	StatusCode int
}

// PersistenceError aborts a merge's visible effect; the prior snapshot stays.
type PersistenceError struct{ InventoryError }

// InitializationError wraps a startup seed failure.
type InitializationError struct{ InventoryError }

// -----------------------------------------------------------------------------

// EmptySeriesError reports a key that exists with zero points.
type EmptySeriesError struct {
	Key string
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("series %q has no points", e.Key)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		fmt.Printf("Warning: Attempt %d/%d failed for %s: %v. Retrying in %v\n", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return lastErr
}
