package workout

import "github.com/lifetrack/lifetrack/internal/apperr"

var errNotLinked = &apperr.Error{
	Message: "the workout is not linked to a remote record yet",
}
