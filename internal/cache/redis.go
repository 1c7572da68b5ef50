package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/syncbridge/internal/config"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client
var redisPrefix string
var redisEnabled bool

// InitRedis 初始化 Redis 客户端
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		redisEnabled = false
		return nil
	}
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	redisPrefix = strings.TrimSpace(cfg.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sb"
	}

	redisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	redisEnabled = true
	return nil
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return redisEnabled && redisClient != nil
}

// Client 获取 Redis 客户端
func Client() *redis.Client {
	if !Enabled() {
		return nil
	}
	return redisClient
}

// Close 关闭 Redis 客户端
func Close() error {
	if redisClient == nil {
		return nil
	}
	return redisClient.Close()
}

// MarkEventSeen 标记事件ID已处理；返回 true 表示首次出现，false 表示重放。
// 缓存不可用时放行（回源由编排器的回声检测兜底）。
func MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if !Enabled() || strings.TrimSpace(eventID) == "" {
		return true, nil
	}
	key := buildKey("event_seen:" + eventID)
	ok, err := redisClient.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

// UnmarkEventSeen 释放事件ID标记，令商城重试不被当作重放丢弃。
// 处理失败时调用；删除失败只记录，不影响响应。
func UnmarkEventSeen(ctx context.Context, eventID string) error {
	if !Enabled() || strings.TrimSpace(eventID) == "" {
		return nil
	}
	return redisClient.Del(ctx, buildKey("event_seen:"+eventID)).Err()
}

func buildKey(key string) string {
	return redisPrefix + ":" + key
}
