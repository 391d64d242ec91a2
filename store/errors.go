package store

import "github.com/lifetrack/lifetrack/internal/apperr"

var (
	// ErrQuotaExceeded is returned when a write would push the storage past
	// its byte quota. The write is not applied.
	ErrQuotaExceeded = &apperr.Error{
		Message: "local storage quota exceeded: writing %d bytes would exceed the %d byte limit",
	}

	// ErrStoreBusy is returned when the bolt database stays locked by
	// another process past the open timeout.
	ErrStoreBusy = &apperr.Error{
		Message: "local store is locked by another lifetrack process",
	}

	errInvalidKey = &apperr.Error{
		Message: "invalid storage key %q",
	}
)
