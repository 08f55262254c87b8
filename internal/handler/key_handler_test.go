package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyData struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Value *string `json:"value"`
}

func TestKeys_RequireUnlock(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "locked@example.com")

	w, env := s.do(t, http.MethodPost, "/keys", tok, gin.H{"label": "github", "value": "ghp_x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, http.StatusForbidden, env.Code)

	w, env = s.do(t, http.MethodGet, "/keys/status", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unlocked":false}`, string(env.Data))

	w, _ = s.do(t, http.MethodPost, "/keys/unlock", tok, gin.H{"password": "not-my-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/keys/unlock", tok, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKeys_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "vault@example.com")

	w, env := s.do(t, http.MethodPost, "/keys/unlock", tok, gin.H{"password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Unlocked  bool   `json:"unlocked"`
		ExpiresAt string `json:"expires_at"`
	}
	decode(t, env.Data, &status)
	assert.True(t, status.Unlocked)
	assert.NotEmpty(t, status.ExpiresAt)

	// 新建
	w, env = s.do(t, http.MethodPost, "/keys", tok, gin.H{"label": "github", "value": "ghp_secret"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created keyData
	decode(t, env.Data, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "github", created.Label)
	assert.Nil(t, created.Value)

	// 读取明文
	w, env = s.do(t, http.MethodGet, "/keys/"+created.ID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got keyData
	decode(t, env.Data, &got)
	require.NotNil(t, got.Value)
	assert.Equal(t, "ghp_secret", *got.Value)

	// 更新
	w, _ = s.do(t, http.MethodPut, "/keys/"+created.ID, tok, gin.H{"value": "ghp_rotated"})
	require.Equal(t, http.StatusOK, w.Code)
	_, env = s.do(t, http.MethodGet, "/keys/"+created.ID, tok, nil)
	decode(t, env.Data, &got)
	assert.Equal(t, "github", got.Label)
	assert.Equal(t, "ghp_rotated", *got.Value)

	// 列表不含秘密值
	w, env = s.do(t, http.MethodGet, "/keys", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	decode(t, env.Data, &list)
	require.Len(t, list, 1)
	assert.NotContains(t, list[0], "value")
	assert.NotContains(t, list[0], "ciphertext")

	// 上锁后读取被拒绝，删除仍可进行
	w, env = s.do(t, http.MethodPost, "/keys/lock", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unlocked":false}`, string(env.Data))

	w, _ = s.do(t, http.MethodGet, "/keys/"+created.ID, tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/keys/"+created.ID, tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/keys/"+created.ID, tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeys_ForeignSecret(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice@example.com")
	bob := s.signup(t, "bob@example.com")

	s.do(t, http.MethodPost, "/keys/unlock", alice, gin.H{"password": testPassword})
	_, env := s.do(t, http.MethodPost, "/keys", alice, gin.H{"label": "aws", "value": "AKIA"})
	var created keyData
	decode(t, env.Data, &created)

	s.do(t, http.MethodPost, "/keys/unlock", bob, gin.H{"password": testPassword})
	w, _ := s.do(t, http.MethodGet, "/keys/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPut, "/keys/"+created.ID, bob, gin.H{"label": "mine"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/keys/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
