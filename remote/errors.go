package remote

import "github.com/lifetrack/lifetrack/internal/apperr"

var (
	// ErrSessionActive is returned when starting a session while another of
	// the same kind is still running.
	ErrSessionActive = &apperr.Error{
		Message: "a %s session is already running",
	}

	// ErrRecordNotFound is returned when the record to change does not exist
	// or has already ended.
	ErrRecordNotFound = &apperr.Error{
		Message: "no running %s session with id %q",
	}

	errUnknownKind = &apperr.Error{
		Message: "unknown session kind %q",
	}

	errOpen = &apperr.Error{
		Message: "opening the session database",
	}
)
