package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"chatvault-go/internal/chat"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) chat.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev chat.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocket_StreamsAnswer(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "ws@example.com")
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dialWS(t, srv, "token="+url.QueryEscape(tok), nil)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "query", "message": "hello"}))

	var chunks []string
	var done chat.Event
	for {
		ev := readEvent(t, conn)
		if ev.Type == chat.TypeChunk {
			chunks = append(chunks, ev.Content)
			continue
		}
		done = ev
		break
	}
	assert.Equal(t, []string{"Hi ", "there"}, chunks)
	require.Equal(t, chat.TypeDone, done.Type)
	assert.Equal(t, "Hi there", done.Content)
	assert.NotEmpty(t, done.ConversationID)
	assert.NotEmpty(t, done.QueryID)

	_, err := time.Parse(time.RFC3339Nano, done.CreatedAt)
	assert.NoError(t, err)

	// 同一连接上的第二个问题
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "query", "conversation_id": done.ConversationID, "message": "again"}))
	for {
		ev := readEvent(t, conn)
		if ev.Type == chat.TypeDone {
			assert.Equal(t, done.ConversationID, ev.ConversationID)
			assert.NotEqual(t, done.QueryID, ev.QueryID)
			break
		}
		require.Equal(t, chat.TypeChunk, ev.Type)
	}

	// 通过 HTTP 能看到两轮对话
	w, env := s.do(t, http.MethodGet, "/c/"+done.ConversationID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Messages []map[string]interface{} `json:"messages"`
	}
	decode(t, env.Data, &detail)
	assert.Len(t, detail.Messages, 4)
}

func TestWebSocket_CookieCredential(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "cookie-ws@example.com")
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	header := http.Header{}
	header.Set("Cookie", "session_token="+tok)
	conn := dialWS(t, srv, "", header)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev := readEvent(t, conn)
	assert.Equal(t, chat.TypeError, ev.Type)
	assert.Empty(t, ev.QueryID)
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dialWS(t, srv, "token=bogus", nil)
	ev := readEvent(t, conn)
	assert.Equal(t, chat.TypeError, ev.Type)
	assert.Equal(t, "authentication failed", ev.Content)

	// 服务端随后关闭连接
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
