package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatvault-go/internal/config"
	"chatvault-go/internal/repository"
	"chatvault-go/internal/service"
	"chatvault-go/internal/testutil"
	"chatvault-go/internal/unlock"
	"chatvault-go/pkg/keycrypt"
	"chatvault-go/pkg/llm"
	"chatvault-go/pkg/token"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse"

func init() {
	gin.SetMode(gin.TestMode)
}

// stubLLM 对流式调用依次返回 deltas，对非流式调用返回它们的拼接。
type stubLLM struct {
	deltas []string
}

func (s *stubLLM) Generate(context.Context, []llm.Message) (string, error) {
	var buf bytes.Buffer
	for _, d := range s.deltas {
		buf.WriteString(d)
	}
	return buf.String(), nil
}

func (s *stubLLM) GenerateStream(context.Context, []llm.Message) (llm.Stream, error) {
	return &stubStream{deltas: append([]string(nil), s.deltas...)}, nil
}

type stubStream struct{ deltas []string }

func (s *stubStream) Recv() (string, error) {
	if len(s.deltas) == 0 {
		return "", io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *stubStream) Close() error { return nil }

type testServer struct {
	router *gin.Engine
}

func fastDerive(password string) []byte {
	key := make([]byte, keycrypt.KeySize)
	copy(key, password)
	return key
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.OpenTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	convRepo := repository.NewConversationRepository(db)
	userService := service.NewUserService(
		repository.NewUserRepository(db),
		repository.NewTokenBlacklist(rdb),
		token.NewJWTManager("handler-test", 24),
	)
	cache := unlock.New(userService, unlock.WithDeriveFunc(fastDerive))
	llmClient := &stubLLM{deltas: []string{"Hi ", "there"}}

	router := NewRouter(Services{
		User:         userService,
		Key:          service.NewKeyService(repository.NewKeyRepository(db), cache),
		Conversation: service.NewConversationService(convRepo),
		Search:       service.NewSearchService(convRepo, nil),
		Chat:         service.NewChatService(convRepo, llmClient, service.NewNoopIndexer(), config.ChatConfig{TitleMaxRunes: 60}),
	}, RouterOptions{CookieName: "session_token", AllowedOrigins: []string{"http://localhost:5173"}})
	return &testServer{router: router}
}

// envelope 是统一响应格式。
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// signup 注册并登录，返回 token。
func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	w, _ := s.do(t, http.MethodPost, "/auth/register", "", gin.H{"email": email, "password": testPassword})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}
