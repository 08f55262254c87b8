// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatvault-go/internal/config"
	"chatvault-go/pkg/log"
	"chatvault-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// MaxAttempts 单条任务的最大处理次数，超过后提交 offset 放弃重试。
const MaxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.MessageIndexTask) error
}

var producer *kafka.Writer

func brokers(cfg config.KafkaConfig) []string {
	return strings.Split(cfg.Brokers, ",")
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者并刷新未发送的消息。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// ProduceIndexTask 发送一个消息索引任务到 Kafka。
func ProduceIndexTask(ctx context.Context, task tasks.MessageIndexTask) error {
	if producer == nil {
		return errors.New("kafka producer not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(task.Key()),
			Value: taskBytes,
		},
	)
}

// attemptsKey 是任务失败计数在 Redis 中的 key。
func attemptsKey(task tasks.MessageIndexTask) string {
	return fmt.Sprintf("kafka:attempts:%s:%d", task.ConversationID, task.MessageID)
}

// handleMessage 处理一条 Kafka 消息，返回是否应提交 offset。
func handleMessage(ctx context.Context, rdb *redis.Client, processor TaskProcessor, value []byte) bool {
	var task tasks.MessageIndexTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		// 消息格式错误，直接提交，避免阻塞队列
		return true
	}

	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理索引任务失败: message_id=%d, Error: %v", task.MessageID, err)
		// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
		key := attemptsKey(task)
		attempts, incErr := rdb.Incr(ctx, key).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		_ = rdb.Expire(ctx, key, 24*time.Hour).Err()
		if attempts >= MaxAttempts {
			log.Errorf("索引任务多次失败(>=%d)，提交 offset 终止重试: message_id=%d", MaxAttempts, task.MessageID)
			return true
		}
		// attempts < MaxAttempts 时，不提交 offset 让 Kafka 自动重试
		return false
	}

	// 清理失败计数
	_ = rdb.Del(ctx, attemptsKey(task)).Err()
	return true
}

// retryBackoff 同一条任务两次处理之间的基础等待时间，第 n 次重试等待 n 倍。
const retryBackoff = time.Second

// processWithRetry 在当前协程内重复处理同一条消息，直到 handleMessage 允许提交或本地尝试次数达到 MaxAttempts。
// 返回 false 表示 ctx 已取消，此时不应提交 offset。
func processWithRetry(ctx context.Context, rdb *redis.Client, processor TaskProcessor, value []byte, backoff time.Duration) bool {
	for attempt := 1; ; attempt++ {
		if handleMessage(ctx, rdb, processor, value) {
			return true
		}
		if attempt >= MaxAttempts {
			// Redis 计数不可用时由本地次数兜底
			log.Errorf("索引任务重试 %d 次仍未完成，提交 offset 放弃", attempt)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
}

// StartConsumer 启动一个 Kafka 消费者来处理索引任务，ctx 取消后返回。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		// 读取器的内存 offset 不会回退，失败的任务必须原地重试后再提交
		if !processWithRetry(ctx, rdb, processor, m.Value, retryBackoff) {
			log.Info("Kafka 消费者已停止")
			return
		}
		// 任务处理完成后，手动提交 offset
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
