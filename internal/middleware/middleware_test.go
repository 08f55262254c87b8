package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatvault-go/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticAuth map[string]*model.User

func (a staticAuth) Authenticate(_ context.Context, token string) (*model.User, error) {
	if u, ok := a[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	auth := staticAuth{"good": {Email: "u@example.com"}}
	r.GET("/me", AuthMiddleware(auth, "session_token"), func(c *gin.Context) {
		user := c.MustGet("user").(*model.User)
		c.String(http.StatusOK, user.Email+"|"+c.GetString("token"))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter()

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "u@example.com|good"},
		{"lowercase scheme", func(req *http.Request) { req.Header.Set("Authorization", "bearer good") }, http.StatusOK, "u@example.com|good"},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "session_token", Value: "good"}) }, http.StatusOK, "u@example.com|good"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"bad token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, ""},
		{"wrong scheme", func(req *http.Request) { req.Header.Set("Authorization", "Basic good") }, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("BEARER  abc "))
	assert.Equal(t, "", BearerToken("Bearer "))
	assert.Equal(t, "", BearerToken("abc"))
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, isSensitive("/auth/login"))
	assert.True(t, isSensitive("/keys"))
	assert.True(t, isSensitive("/keys/123"))
	assert.False(t, isSensitive("/keysmith"))
	assert.False(t, isSensitive("/c/list"))
	assert.False(t, isSensitive("/qa"))
}

func TestRequestLogger_PreservesBody(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/auth/login", func(c *gin.Context) {
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, body["password"])
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hunter2", w.Body.String())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173/"}))
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
