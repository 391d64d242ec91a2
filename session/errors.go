package session

import "github.com/lifetrack/lifetrack/internal/apperr"

var (
	errUnknownKind = &apperr.Error{
		Message: "cannot start a session of unknown kind %q",
	}

	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = &apperr.Error{
		Message: "no active session",
	}

	errRestore = &apperr.Error{
		Message: "restoring the session from backup",
	}

	errClear = &apperr.Error{
		Message: "clearing the stored session",
	}
)
