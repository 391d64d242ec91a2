package persist

import "github.com/lifetrack/lifetrack/internal/apperr"

var (
	errSchema = &apperr.Error{
		Message: "compiling the session metadata schema",
	}

	errWrite = &apperr.Error{
		Message: "unable to persist the active session",
	}

	errUnknownKind = &apperr.Error{
		Message: "unknown session kind %q",
	}

	errMalformedJSON = &apperr.Error{
		Message: "stored value is not valid JSON",
	}

	errSchemaMismatch = &apperr.Error{
		Message: "stored metadata does not match the session schema",
	}
)
