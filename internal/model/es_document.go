// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// MessageDocument 定义了存储在 Elasticsearch 中的消息文档结构。
type MessageDocument struct {
	MessageID      uint      `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserEmail      string    `json:"user_email"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// SearchHit 定义了返回给前端的消息检索结果。
type SearchHit struct {
	ConversationID    string    `json:"conversation_id"`
	ConversationTitle string    `json:"conversation_title"`
	MessageID         uint      `json:"message_id"`
	Role              string    `json:"role"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
	Score             float64   `json:"score"`
}
