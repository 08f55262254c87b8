// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色。角色交替只是约定，不做校验。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation 对应 conversations 表，每个会话只有一个所有者。
type Conversation struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserEmail string `gorm:"type:varchar(255);not null;index" json:"-"`
	Title     string `gorm:"type:varchar(255)" json:"title"`
	// Hidden 为软删除标记，隐藏的会话不出现在列表与查询中。
	Hidden    bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// VisibleTo 判断会话对给定用户是否可见。
func (c *Conversation) VisibleTo(email string) bool {
	return c != nil && !c.Hidden && c.UserEmail == email
}

// Message 对应 messages 表。同一会话内的消息按 (created_at, id) 全序排列。
type Message struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string `gorm:"type:varchar(36);not null;index:idx_messages_conversation_id,priority:1" json:"conversation_id"`
	Role           string `gorm:"type:varchar(16);not null" json:"role"`
	Content        string `gorm:"type:longtext;not null" json:"content"`
	// ContentSearch 是写入时计算的可检索文本投影。
	ContentSearch string    `gorm:"type:longtext" json:"-"`
	CreatedAt     time.Time `gorm:"index:idx_messages_conversation_id,priority:2" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}
