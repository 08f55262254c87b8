package keycrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	k1 := DeriveKey("secret-password")
	k2 := DeriveKey("secret-password")

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, DeriveKey("other-password"))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey("pw")

	sealed, err := Seal(key, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	plain, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestSeal_FreshNonce(t *testing.T) {
	key := DeriveKey("pw")

	a, err := Seal(key, "same")
	require.NoError(t, err)
	b, err := Seal(key, "same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKey(t *testing.T) {
	sealed, err := Seal(DeriveKey("old"), "value")
	require.NoError(t, err)

	_, err = Open(DeriveKey("new"), sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestOpen_Malformed(t *testing.T) {
	key := DeriveKey("pw")

	_, err := Open(key, "%%%not-base64")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Open(key, "c2hvcnQ=")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestSeal_BadKeyLength(t *testing.T) {
	_, err := Seal([]byte("short"), "x")
	require.Error(t, err)
}
