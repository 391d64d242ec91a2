package canon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetrack/lifetrack/internal/canon"
)

func TestDigestIgnoresFormatting(t *testing.T) {
	a, err := canon.Digest([]byte(`{"b":1,"a":[1,2]}`))
	require.NoError(t, err)

	b, err := canon.Digest([]byte("{ \"a\": [1, 2],\n  \"b\": 1.0 }"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := canon.Digest([]byte(`{"a":[2,1],"b":1}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDigestRejectsInvalidJSON(t *testing.T) {
	_, err := canon.Digest([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestDigestOf(t *testing.T) {
	a, err := canon.DigestOf(map[string]int{"x": 1, "y": 2})
	require.NoError(t, err)

	b, err := canon.Digest([]byte(`{"y":2,"x":1}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
