package app

import "github.com/lifetrack/lifetrack/internal/apperr"

var (
	errOpenStorage = &apperr.Error{
		Message: "opening the session storage failed",
	}

	errOpenBroadcast = &apperr.Error{
		Message: "starting the %s broadcaster failed",
	}

	errWatchNeedsDir = &apperr.Error{
		Message: "the fsnotify broadcast mode needs the file storage backend, not %q",
	}

	errReconcile = &apperr.Error{
		Message: "checking the %s session against the remote store failed",
	}

	errDecisionNeeded = &apperr.Error{
		Message: "the %s session has expired: pass --yes-continue or --yes-end to decide",
	}

	errUnknownKind = &apperr.Error{
		Message: "unknown session kind %q (must be workout or study)",
	}

	errEmptyNote = &apperr.Error{
		Message: "the note is empty",
	}
)
