package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	b := Bcrypt{Cost: bcrypt.MinCost}

	hash, err := b.Hash("abc123")
	require.NoError(t, err)
	assert.NotEqual(t, "abc123", hash)

	assert.True(t, b.Verify("abc123", hash))
	assert.False(t, b.Verify("wrong", hash))
	assert.False(t, b.Verify("", hash))
	assert.False(t, b.Verify("abc123", "not-a-bcrypt-hash"))
}

func TestHashIsSalted(t *testing.T) {
	b := Bcrypt{Cost: bcrypt.MinCost}

	h1, err := b.Hash("same")
	require.NoError(t, err)
	h2, err := b.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestOneTimePassword(t *testing.T) {
	otp, err := OneTimePassword()
	require.NoError(t, err)
	assert.Len(t, otp, OneTimePasswordLength)
	assert.Regexp(t, `^[0-9]{6}$`, otp)
}
