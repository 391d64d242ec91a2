package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifetrack/lifetrack/internal/apperr"
)

var errTemplate = &apperr.Error{Message: "key %s is broken"}

func TestFmtMatchesTemplate(t *testing.T) {
	err := errTemplate.Fmt("meta")

	assert.Equal(t, "key meta is broken", err.Error())
	assert.ErrorIs(t, err, errTemplate)
	assert.False(t, errors.Is(err, &apperr.Error{Message: "key %s is broken"}))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("saving: %w", errTemplate.Fmt("meta").Wrap(cause))

	assert.ErrorIs(t, err, errTemplate)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "saving: key meta is broken: disk full", err.Error())
}
