package reconcile

import "github.com/lifetrack/lifetrack/internal/apperr"

var errNoDecisionPending = &apperr.Error{
	Message: "no expired session awaits a decision (engine is %s)",
}
