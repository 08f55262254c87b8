package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatvault-go/internal/config"
	"chatvault-go/internal/model"
	"chatvault-go/internal/repository"
	"chatvault-go/pkg/fulltext"
	"chatvault-go/pkg/llm"
	"chatvault-go/pkg/log"

	"gorm.io/gorm"
)

// QueryRequest 是一次提问，WebSocket 与 /qa 共用。
type QueryRequest struct {
	ConversationID string   `json:"conversation_id"`
	Message        string   `json:"message"`
	Entities       []Entity `json:"entities"`
}

// Turn 是一轮已提交用户消息、等待助手回复的对话。
type Turn struct {
	Owner          string
	ConversationID string
	Conversation   *model.Conversation
	// Created 表示会话在本轮中新建。
	Created     bool
	UserMessage *model.Message
	// History 为送入模型的完整上下文，最后一条是本轮的用户消息。
	History []llm.Message
}

// Answer 是单次问答的结果。
type Answer struct {
	ConversationID   string          `json:"conversation_id"`
	Title            string          `json:"title"`
	AssistantMessage AssistantAnswer `json:"assistant_message"`
}

// AssistantAnswer 是助手回复的正文与创建时间。
type AssistantAnswer struct {
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// ChatService 定义了一轮对话的处理流程。
type ChatService interface {
	// PrepareTurn 校验请求、检查会话归属、重建历史，并在调用模型之前提交用户消息。
	PrepareTurn(ctx context.Context, user *model.User, req QueryRequest) (*Turn, error)
	// OpenStream 以流式模式调用模型。
	OpenStream(ctx context.Context, turn *Turn) (llm.Stream, error)
	// CompleteTurn 提交助手回复。
	CompleteTurn(ctx context.Context, turn *Turn, reply string) (*model.Message, error)
	// Ask 以非流式模式完成一整轮对话。
	Ask(ctx context.Context, user *model.User, req QueryRequest) (*Answer, error)
}

type chatService struct {
	repo      repository.ConversationRepository
	llmClient llm.Client
	indexer   MessageIndexer
	cfg       config.ChatConfig
	now       func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(repo repository.ConversationRepository, llmClient llm.Client, indexer MessageIndexer, cfg config.ChatConfig) ChatService {
	if indexer == nil {
		indexer = NewNoopIndexer()
	}
	return &chatService{
		repo:      repo,
		llmClient: llmClient,
		indexer:   indexer,
		cfg:       cfg,
		now:       time.Now,
	}
}

// FormatTimestamp 返回对外使用的 RFC 3339 时间字符串。
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestamp 返回截断到毫秒的 UTC 时间，与 MySQL datetime(3) 的精度一致。
func (s *chatService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *chatService) PrepareTurn(ctx context.Context, user *model.User, req QueryRequest) (*Turn, error) {
	// 1. 校验输入
	if strings.TrimSpace(req.Message) == "" {
		return nil, invalid("message", "must not be empty")
	}
	convID, err := NormalizeConversationID(req.ConversationID)
	if err != nil {
		return nil, err
	}
	// 2. 校验标注
	if err := ValidateEntities(req.Message, req.Entities); err != nil {
		return nil, err
	}

	// 3. 加载会话并检查归属
	conv, err := s.repo.GetByID(ctx, convID)
	created := false
	switch {
	case err == nil:
		if !conv.VisibleTo(user.Email) {
			return nil, ErrNotFound
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		created = true
	default:
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	// 4. 重建历史
	var history []llm.Message
	if !created {
		msgs, err := s.repo.ListMessages(ctx, convID)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		history = s.toHistory(msgs)
	}

	now := s.timestamp()
	userMsg := &model.Message{
		ConversationID: convID,
		Role:           model.RoleUser,
		Content:        req.Message,
		ContentSearch:  fulltext.Project(req.Message),
		CreatedAt:      now,
	}
	if created {
		conv = &model.Conversation{
			ID:        convID,
			UserEmail: user.Email,
			Title:     DeriveTitle(req.Message, s.cfg.TitleMaxRunes),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	// 5、6. 新建会话并提交用户消息
	err = s.repo.Transaction(ctx, func(tx repository.ConversationRepository) error {
		if created {
			if err := tx.Create(ctx, conv); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// 并发请求已用同一 ID 建立了会话，归属无法确认
					return ErrNotFound
				}
				return err
			}
		}
		return tx.AppendMessage(ctx, userMsg)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	conv.UpdatedAt = now
	publishIndex(ctx, s.indexer, user.Email, userMsg)

	history = append(history, llm.Message{Role: model.RoleUser, Content: req.Message})
	return &Turn{
		Owner:          user.Email,
		ConversationID: convID,
		Conversation:   conv,
		Created:        created,
		UserMessage:    userMsg,
		History:        history,
	}, nil
}

// toHistory 将已有消息转为模型上下文，HistoryLimit 大于 0 时只保留最近的若干条。
func (s *chatService) toHistory(msgs []model.Message) []llm.Message {
	if limit := s.cfg.HistoryLimit; limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	history := make([]llm.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

func (s *chatService) OpenStream(ctx context.Context, turn *Turn) (llm.Stream, error) {
	stream, err := s.llmClient.GenerateStream(ctx, turn.History)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return stream, nil
}

func (s *chatService) CompleteTurn(ctx context.Context, turn *Turn, reply string) (*model.Message, error) {
	msg := &model.Message{
		ConversationID: turn.ConversationID,
		Role:           model.RoleAssistant,
		Content:        reply,
		ContentSearch:  fulltext.Project(reply),
		CreatedAt:      s.timestamp(),
	}
	err := s.repo.Transaction(ctx, func(tx repository.ConversationRepository) error {
		return tx.AppendMessage(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	turn.Conversation.UpdatedAt = msg.CreatedAt
	publishIndex(ctx, s.indexer, turn.Owner, msg)
	return msg, nil
}

func (s *chatService) Ask(ctx context.Context, user *model.User, req QueryRequest) (*Answer, error) {
	turn, err := s.PrepareTurn(ctx, user, req)
	if err != nil {
		return nil, err
	}
	reply, err := s.llmClient.Generate(ctx, turn.History)
	if err != nil {
		log.Errorw("[ChatService] 模型调用失败", "user", user.Email, "conversation_id", turn.ConversationID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	msg, err := s.CompleteTurn(ctx, turn, reply)
	if err != nil {
		return nil, err
	}
	return &Answer{
		ConversationID: turn.ConversationID,
		Title:          turn.Conversation.Title,
		AssistantMessage: AssistantAnswer{
			Text:      msg.Content,
			CreatedAt: FormatTimestamp(msg.CreatedAt),
		},
	}, nil
}
