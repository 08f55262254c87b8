package database

import (
	"context"
	"time"

	"chatvault-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 保存 token 黑名单与 Kafka 任务重试计数。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接，连接失败时退出进程。
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Infow("Redis client connected", "addr", addr, "db", db)
}
