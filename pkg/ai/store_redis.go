package ai

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix 是会话列表 key 的默认前缀。
const DefaultRedisKeyPrefix = "imbotchat:session:"

// RedisStore 将每个会话保存为一个 Redis list，适合多实例共享历史。
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建 RedisStore。ttl>0 时每次追加都会刷新会话过期时间。
func NewRedisStore(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// NewRedisClient 根据 redis:// URL 创建客户端并做一次连通性检查。
func NewRedisClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// GetHistory 返回会话完整历史。
func (s *RedisStore) GetHistory(ctx context.Context, sessionID string) ([]string, error) {
	lines, err := s.rdb.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, nil
}

// AppendTurn 在一个事务中追加用户行与 AI 行。
func (s *RedisStore) AppendTurn(ctx context.Context, sessionID, userInput, aiOutput string) error {
	key := s.key(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, UserLine(userInput), AILine(aiOutput))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Recent 返回最近 n 条历史。
func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	lines, err := s.rdb.LRange(ctx, s.key(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent history: %w", err)
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, nil
}

// ClearHistory 删除会话 key。
func (s *RedisStore) ClearHistory(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.key(sessionID)).Err()
}

// Ping 实现 Pinger，用于就绪检查。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
