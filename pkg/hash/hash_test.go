package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NotEqual(t, "correct horse", h)
	assert.True(t, CheckPasswordHash("correct horse", h))
	assert.False(t, CheckPasswordHash("wrong horse", h))
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := HashPassword("same")
	require.NoError(t, err)
	h2, err := HashPassword("same")
	require.NoError(t, err)

	// 同一密码两次哈希结果不同（随机盐）
	assert.NotEqual(t, h1, h2)
}
