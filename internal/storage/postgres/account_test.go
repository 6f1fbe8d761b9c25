package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, CheckPassword("correct horse battery staple", hash))
	assert.False(t, CheckPassword("correct horse battery stapl", hash))
	assert.False(t, CheckPassword("", hash))
}

func TestCheckPasswordGarbageHash(t *testing.T) {
	assert.False(t, CheckPassword("anything", "not-a-bcrypt-hash"))
}

// Property: every hash verifies against the password it was derived from.
func TestPropertyHashAlwaysVerifies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// bcrypt rejects inputs over 72 bytes, so cap the generator below that.
		password := rapid.StringMatching(`[ -~]{1,64}`).Draw(t, "password")
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword(%q): %v", password, err)
		}
		if !CheckPassword(password, hash) {
			t.Fatalf("hash of %q does not verify", password)
		}
	})
}
