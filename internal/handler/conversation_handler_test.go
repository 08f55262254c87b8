package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answerData struct {
	ConversationID   string `json:"conversation_id"`
	Title            string `json:"title"`
	AssistantMessage struct {
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
	} `json:"assistant_message"`
}

func (s *testServer) ask(t *testing.T, tok string, body gin.H) answerData {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/qa", tok, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ans answerData
	decode(t, env.Data, &ans)
	return ans
}

func TestQA_CreatesConversation(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "qa@example.com")

	ans := s.ask(t, tok, gin.H{"message": "  Hello Paris  ", "entities": []gin.H{{"start": 8, "end": 13, "id": "Paris"}}})
	assert.NotEmpty(t, ans.ConversationID)
	assert.Equal(t, "Hello Paris", ans.Title)
	assert.Equal(t, "Hi there", ans.AssistantMessage.Text)
	assert.NotEmpty(t, ans.AssistantMessage.CreatedAt)

	// 同一会话继续追问
	again := s.ask(t, tok, gin.H{"conversation_id": ans.ConversationID, "message": "and Rome?"})
	assert.Equal(t, ans.ConversationID, again.ConversationID)
	assert.Equal(t, "Hello Paris", again.Title)

	w, env := s.do(t, http.MethodGet, "/c/"+ans.ConversationID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		ID       string `json:"id"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	decode(t, env.Data, &detail)
	require.Len(t, detail.Messages, 4)
	assert.Equal(t, "user", detail.Messages[0].Role)
	assert.Equal(t, "assistant", detail.Messages[1].Role)
	assert.Equal(t, "and Rome?", detail.Messages[2].Content)
}

func TestQA_Validation(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "bad@example.com")

	w, _ := s.do(t, http.MethodPost, "/qa", tok, gin.H{"message": "hello", "entities": []gin.H{{"start": 0, "end": 3, "id": "xyz"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/qa", tok, gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/qa", tok, gin.H{"conversation_id": "not-a-uuid", "message": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/qa", "", gin.H{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConversations_Isolation(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice@example.com")
	bob := s.signup(t, "bob@example.com")

	ans := s.ask(t, alice, gin.H{"message": "alice's secret question"})

	w, _ := s.do(t, http.MethodGet, "/c/"+ans.ConversationID, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/c/"+ans.ConversationID, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 向他人的会话追问同样视为不存在
	w, _ = s.do(t, http.MethodPost, "/qa", bob, gin.H{"conversation_id": ans.ConversationID, "message": "hijack"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env := s.do(t, http.MethodGet, "/c/list", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	decode(t, env.Data, &list)
	assert.Empty(t, list)
}

func TestConversations_ListAndHide(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "lister@example.com")

	first := s.ask(t, tok, gin.H{"message": "first topic"})
	second := s.ask(t, tok, gin.H{"message": "second topic"})

	w, env := s.do(t, http.MethodGet, "/c/list", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	}
	decode(t, env.Data, &list)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{first.ConversationID, second.ConversationID}, ids)

	w, _ = s.do(t, http.MethodDelete, "/c/"+first.ConversationID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/c/"+first.ConversationID, tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, env = s.do(t, http.MethodGet, "/c/list", tok, nil)
	decode(t, env.Data, &list)
	require.Len(t, list, 1)
	assert.Equal(t, second.ConversationID, list[0].ID)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)
	tok := s.signup(t, "finder@example.com")
	other := s.signup(t, "other@example.com")

	ans := s.ask(t, tok, gin.H{"message": "Where is the Eiffel tower?"})
	s.ask(t, other, gin.H{"message": "eiffel for someone else"})

	w, env := s.do(t, http.MethodGet, "/c/search?q=eiffel", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var hits []struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}
	decode(t, env.Data, &hits)
	require.Len(t, hits, 1)
	assert.Equal(t, ans.ConversationID, hits[0].ConversationID)

	w, _ = s.do(t, http.MethodGet, "/c/search?q=", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
