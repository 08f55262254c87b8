package service

import (
	"context"
	"errors"
	"time"

	"chatvault-go/internal/model"
	"chatvault-go/internal/repository"

	"gorm.io/gorm"
)

// ConversationSummary 是会话列表中的一项。
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Snippet   string    `json:"snippet"`
}

// ConversationDetail 是会话及其按顺序排列的消息。
type ConversationDetail struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []model.Message `json:"messages"`
}

// ConversationService 定义了会话查询与隐藏的业务操作。
type ConversationService interface {
	List(ctx context.Context, email string) ([]ConversationSummary, error)
	Get(ctx context.Context, email, id string) (*ConversationDetail, error)
	// Hide 软删除会话，之后该会话不再出现在列表和查询中。
	Hide(ctx context.Context, email, id string) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// List 返回用户可见的会话，最近更新的在前。
func (s *conversationService) List(ctx context.Context, email string) ([]ConversationSummary, error) {
	convs, err := s.repo.ListByOwner(ctx, email)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, ConversationSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt})
	}
	return out, nil
}

// visible 加载会话，不存在、不属于 email 或已隐藏时返回 ErrNotFound。
func (s *conversationService) visible(ctx context.Context, email, id string) (*model.Conversation, error) {
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !conv.VisibleTo(email) {
		return nil, ErrNotFound
	}
	return conv, nil
}

// Get 返回会话详情与完整消息记录。
func (s *conversationService) Get(ctx context.Context, email, id string) (*ConversationDetail, error) {
	conv, err := s.visible(ctx, email, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &ConversationDetail{
		ID:        conv.ID,
		Title:     conv.Title,
		UpdatedAt: conv.UpdatedAt,
		Messages:  msgs,
	}, nil
}

// Hide 将会话标记为隐藏。
func (s *conversationService) Hide(ctx context.Context, email, id string) error {
	conv, err := s.visible(ctx, email, id)
	if err != nil {
		return err
	}
	return s.repo.SetHidden(ctx, conv.ID, true)
}
