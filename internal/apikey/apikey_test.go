package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateHasExpectedForm(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, prefix))
	assert.Len(t, key, len(prefix)+secretLen)
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	hash, err := Hash(key)
	require.NoError(t, err)

	assert.True(t, Verify(hash, key))
	assert.False(t, Verify(hash, key+"x"))
}

// TestMaskOfHashHasDocumentedForm checks the mask(hash(k)) round-trip
// property: the masked form is prefix + stars + the hash's own last 4
// characters.
func TestMaskOfHashHasDocumentedForm(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	hash, err := Hash(key)
	require.NoError(t, err)

	masked := Mask(hash)
	assert.True(t, strings.HasPrefix(masked, prefix))
	assert.Equal(t, hash[len(hash)-4:], masked[len(masked)-4:])
}

func TestLookupIsDeterministic(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)
	assert.Equal(t, Lookup(key), Lookup(key))

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, Lookup(key), Lookup(other))
}
