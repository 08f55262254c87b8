// Package pipeline 定义了消息检索索引的处理流程。
package pipeline

import (
	"context"
	"fmt"

	"chatvault-go/internal/model"
	"chatvault-go/pkg/log"
	"chatvault-go/pkg/tasks"
)

// DocumentIndexer 写入消息文档，由 es.MessageIndex 实现。
type DocumentIndexer interface {
	IndexMessage(ctx context.Context, doc model.MessageDocument) error
}

// Processor 封装了索引任务处理的所有依赖和逻辑。
type Processor struct {
	indexer DocumentIndexer
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(indexer DocumentIndexer) *Processor {
	return &Processor{indexer: indexer}
}

// Process 把一个索引任务写入 Elasticsearch。
func (p *Processor) Process(ctx context.Context, task tasks.MessageIndexTask) error {
	if task.MessageID == 0 || task.ConversationID == "" || task.UserEmail == "" {
		// 缺少关键字段的任务无法重试成功
		log.Warnw("[Processor] 丢弃不完整的索引任务", "message_id", task.MessageID, "conversation_id", task.ConversationID)
		return nil
	}

	doc := model.MessageDocument{
		MessageID:      task.MessageID,
		ConversationID: task.ConversationID,
		UserEmail:      task.UserEmail,
		Role:           task.Role,
		Content:        task.Content,
		CreatedAt:      task.CreatedAt,
	}
	if err := p.indexer.IndexMessage(ctx, doc); err != nil {
		log.Errorf("[Processor] 索引消息失败, message_id: %d, Error: %v", task.MessageID, err)
		return fmt.Errorf("索引消息 %d 到 Elasticsearch 失败: %w", task.MessageID, err)
	}
	log.Debugw("[Processor] 消息索引成功", "message_id", task.MessageID, "conversation_id", task.ConversationID)
	return nil
}
