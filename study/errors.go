package study

import "github.com/lifetrack/lifetrack/internal/apperr"

var errNoBucket = &apperr.Error{
	Message: "a study session needs a bucket",
}
