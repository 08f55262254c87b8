// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// MessageIndexTask represents a committed message that should be written into the search index.
type MessageIndexTask struct {
	MessageID      uint      `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserEmail      string    `json:"user_email"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Key 用作 Kafka 消息 key 与重试计数 key，同一会话的任务落在同一分区。
func (t MessageIndexTask) Key() string {
	return t.ConversationID
}
