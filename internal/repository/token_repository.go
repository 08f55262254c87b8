package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist 记录已登出但尚未过期的 token。
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

type redisTokenBlacklist struct {
	redisClient *redis.Client
}

// NewTokenBlacklist 创建一个基于 Redis 的 TokenBlacklist。
func NewTokenBlacklist(redisClient *redis.Client) TokenBlacklist {
	return &redisTokenBlacklist{redisClient: redisClient}
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

// Add 将 token 加入黑名单，token 的剩余有效期作为 key 的过期时间。
func (r *redisTokenBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// 已过期的 token 本身就无法通过校验
		return nil
	}
	return r.redisClient.Set(ctx, blacklistKey(token), "true", ttl).Err()
}

// Contains 判断 token 是否已被加入黑名单。
func (r *redisTokenBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
