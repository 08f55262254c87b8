package service

import (
	"context"
	"testing"

	"chatvault-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationService_ListGetHide(t *testing.T) {
	ctx := context.Background()
	chat, f, _ := newTestChatService(t, &fakeLLM{reply: "answer"}, config.ChatConfig{})
	svc := NewConversationService(f.convs)
	alice := f.seedUser(t, "a@example.com")
	bob := f.seedUser(t, "b@example.com")

	first, err := chat.Ask(ctx, alice, QueryRequest{Message: "first"})
	require.NoError(t, err)
	second, err := chat.Ask(ctx, alice, QueryRequest{Message: "second"})
	require.NoError(t, err)
	_, err = chat.Ask(ctx, bob, QueryRequest{Message: "bob"})
	require.NoError(t, err)

	list, err := svc.List(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ConversationID, list[0].ID)
	assert.Equal(t, first.ConversationID, list[1].ID)

	detail, err := svc.Get(ctx, "a@example.com", first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "first", detail.Title)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "first", detail.Messages[0].Content)
	assert.Equal(t, "answer", detail.Messages[1].Content)

	_, err = svc.Get(ctx, "b@example.com", first.ConversationID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Hide(ctx, "b@example.com", first.ConversationID), ErrNotFound)

	require.NoError(t, svc.Hide(ctx, "a@example.com", first.ConversationID))
	_, err = svc.Get(ctx, "a@example.com", first.ConversationID)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err = svc.List(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Get(ctx, "a@example.com", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
