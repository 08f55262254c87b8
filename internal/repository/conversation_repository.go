// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"strings"

	"chatvault-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了会话与消息记录的操作接口。
type ConversationRepository interface {
	// Transaction 在一个事务中执行 fn，fn 返回错误时回滚，否则提交。
	Transaction(ctx context.Context, fn func(repo ConversationRepository) error) error

	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Conversation, error)
	ListByOwner(ctx context.Context, email string) ([]model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	SetHidden(ctx context.Context, id string, hidden bool) error

	// AppendMessage 追加一条消息，并把会话的 updated_at 推进到消息的创建时间。
	AppendMessage(ctx context.Context, msg *model.Message) error
	// ListMessages 按插入顺序返回会话的全部消息。
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// SearchMessages 在所有者可见的会话中按检索投影匹配全部词元。
	SearchMessages(ctx context.Context, email string, tokens []string, limit int) ([]model.Message, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Transaction 使用 GORM 事务包裹 fn，任何错误或 panic 都会回滚。
func (r *conversationRepository) Transaction(ctx context.Context, fn func(repo ConversationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&conversationRepository{db: tx})
	})
}

// GetByID 根据 ID 获取会话，不存在时返回 gorm.ErrRecordNotFound。
func (r *conversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByIDs 批量获取会话。
func (r *conversationRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Conversation, error) {
	var convs []model.Conversation
	if len(ids) == 0 {
		return convs, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&convs).Error
	return convs, err
}

// ListByOwner 返回用户未隐藏的会话，最近更新的在前。
func (r *conversationRepository) ListByOwner(ctx context.Context, email string) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_email = ? AND hidden = ?", email, false).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

// Create 插入一条新会话。
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// SetHidden 设置会话的隐藏标记。
func (r *conversationRepository) SetHidden(ctx context.Context, id string, hidden bool) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("hidden", hidden).Error
}

// AppendMessage 插入消息并更新会话时间戳。
func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(msg).Error; err != nil {
		return err
	}
	return db.Model(&model.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Update("updated_at", msg.CreatedAt).Error
}

// ListMessages 按 created_at、id 升序返回消息。
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// minFullTextToken 是 InnoDB FULLTEXT 默认的最短词元长度，更短的词元不会进入索引。
const minFullTextToken = 3

// searchFilter 为每个词元生成匹配条件。MySQL 下走 FULLTEXT 索引（布尔模式前缀匹配），
// 过短的词元与其他方言退回 LIKE。
func searchFilter(dialect string, tokens []string) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	var fullText []string
	for _, tok := range tokens {
		if dialect == "mysql" && len(tok) >= minFullTextToken {
			// 词元只含字母和数字，不会与布尔模式的运算符冲突
			fullText = append(fullText, "+"+tok+"*")
			continue
		}
		clauses = append(clauses, "messages.content_search LIKE ?")
		args = append(args, "%"+tok+"%")
	}
	if len(fullText) > 0 {
		clauses = append([]string{"MATCH(messages.content_search) AGAINST(? IN BOOLEAN MODE)"}, clauses...)
		args = append([]interface{}{strings.Join(fullText, " ")}, args...)
	}
	return strings.Join(clauses, " AND "), args
}

// SearchMessages 在检索投影上匹配全部词元，用于未启用 Elasticsearch 时的检索。
func (r *conversationRepository) SearchMessages(ctx context.Context, email string, tokens []string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	if len(tokens) == 0 {
		return msgs, nil
	}
	cond, args := searchFilter(r.db.Dialector.Name(), tokens)
	q := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.user_email = ? AND conversations.hidden = ?", email, false).
		Where(cond, args...)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("messages.created_at DESC").Find(&msgs).Error
	return msgs, err
}
