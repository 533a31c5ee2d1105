package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/chris/questd/internal/logger"
)

const memoryListCap = 200

// RedisVector keeps a capped per-user list of recent memory lines in redis
// and answers searches by substring match over that window.
type RedisVector struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisVector returns (nil, nil) when addr is empty so callers can fall
// back to the nop adapter.
func NewRedisVector(addr string, log *logger.Logger) (*RedisVector, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("vector: ping redis: %w", err)
	}
	return &RedisVector{client: client, log: log.With("component", "vector")}, nil
}

func (v *RedisVector) Close() error {
	return v.client.Close()
}

func key(userID string) string {
	return "questd:mem:" + userID
}

func (v *RedisVector) AddMemory(ctx context.Context, userID, text string) error {
	pipe := v.client.TxPipeline()
	pipe.LPush(ctx, key(userID), text)
	pipe.LTrim(ctx, key(userID), 0, memoryListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vector: add memory: %w", err)
	}
	return nil
}

func (v *RedisVector) SearchMemories(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	lines, err := v.client.LRange(ctx, key(userID), 0, memoryListCap-1).Result()
	if err != nil {
		return nil, fmt.Errorf("vector: search memories: %w", err)
	}
	var out []string
	for _, line := range lines {
		if query == "" || strings.Contains(line, query) {
			out = append(out, line)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
