package lifecycle

import "github.com/lifetrack/lifetrack/internal/apperr"

var (
	// ErrNotRunning is returned when an operation needs a running session
	// of the tracker's kind.
	ErrNotRunning = &apperr.Error{
		Message: "no %s session is running",
	}

	// ErrAlreadyRunning is returned when starting while the local slot is
	// taken.
	ErrAlreadyRunning = &apperr.Error{
		Message: "a %s session is already running; end it first",
	}
)
