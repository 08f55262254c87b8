package service

import (
	"context"
	"time"

	"chatvault-go/internal/model"
	"chatvault-go/pkg/kafka"
	"chatvault-go/pkg/log"
	"chatvault-go/pkg/tasks"
)

// indexTimeout 单次发布索引任务的超时时间。
const indexTimeout = 5 * time.Second

// MessageIndexer 在消息提交后发布检索索引任务。
type MessageIndexer interface {
	Index(ctx context.Context, owner string, msg *model.Message) error
}

type kafkaIndexer struct{}

// NewKafkaIndexer 创建一个通过 Kafka 发布索引任务的 MessageIndexer。
func NewKafkaIndexer() MessageIndexer {
	return kafkaIndexer{}
}

func (kafkaIndexer) Index(ctx context.Context, owner string, msg *model.Message) error {
	return kafka.ProduceIndexTask(ctx, tasks.MessageIndexTask{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		UserEmail:      owner,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	})
}

type noopIndexer struct{}

// NewNoopIndexer 创建一个不做任何事的 MessageIndexer，用于未启用检索索引时。
func NewNoopIndexer() MessageIndexer {
	return noopIndexer{}
}

func (noopIndexer) Index(context.Context, string, *model.Message) error { return nil }

// publishIndex 在后台发布索引任务。失败只记录日志，不影响调用方。
func publishIndex(ctx context.Context, indexer MessageIndexer, owner string, msg *model.Message) {
	snapshot := *msg
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
		defer cancel()
		if err := indexer.Index(ctx, owner, &snapshot); err != nil {
			log.Warnw("[ChatService] 发布索引任务失败", "message_id", snapshot.ID, "conversation_id", snapshot.ConversationID, "error", err)
		}
	}()
}
