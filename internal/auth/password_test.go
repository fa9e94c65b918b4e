package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	first, err := h.Hash("Passw0rd!")
	require.NoError(t, err)
	second, err := h.Hash("Passw0rd!")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "fresh salt per call")
	assert.NotContains(t, first, "Passw0rd!")
	assert.True(t, h.Verify("Passw0rd!", first))
	assert.True(t, h.Verify("Passw0rd!", second))
	assert.False(t, h.Verify("passw0rd!", first))
	assert.False(t, h.Verify("", first))
}

func TestHasherMalformedDigest(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	assert.False(t, h.Verify("Passw0rd!", ""))
	assert.False(t, h.Verify("Passw0rd!", "not-a-bcrypt-digest"))
	assert.False(t, h.Verify("Passw0rd!", "$2a$10$short"))
}

func TestHasherCostRange(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost - 1)
	assert.Error(t, err)
	_, err = NewHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}

func TestHasherDummyNeverMatches(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, h.verifyDummy("not-a-real-password"))
}
