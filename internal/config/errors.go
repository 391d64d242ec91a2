package config

import "github.com/lifetrack/lifetrack/internal/apperr"

var (
	errConfigOption = &apperr.Error{
		Message: "config option error",
	}

	errConfigValidation = &apperr.Error{
		Message: "config validation error",
	}

	errReadConfig = &apperr.Error{
		Message: "reading config file failed",
	}

	errWriteConfig = &apperr.Error{
		Message: "writing default config failed",
	}

	errInvalidMaxAge = &apperr.Error{
		Message: "session max age must be positive, got %v",
	}

	errInvalidDebounce = &apperr.Error{
		Message: "reconcile debounce must be between 0 and %v, got %v",
	}

	errUnknownBackend = &apperr.Error{
		Message: "unknown storage backend %q (must be one of %s)",
	}

	errUnknownMode = &apperr.Error{
		Message: "unknown broadcast mode %q (must be one of %s)",
	}

	errInvalidQuota = &apperr.Error{
		Message: "storage quota must be positive, got %d",
	}

	errUnknownLogLevel = &apperr.Error{
		Message: "unknown log level %q",
	}

	errInvalidSince = &apperr.Error{
		Message: "invalid start time %q",
	}

	errConflictingDecision = &apperr.Error{
		Message: "--yes-continue and --yes-end cannot be used together",
	}
)
