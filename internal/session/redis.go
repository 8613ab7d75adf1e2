package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session history in a Redis list per session, newest at the
// head, trimmed to HistoryLimit.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing Redis client. keyPrefix namespaces the
// session keys alongside the registry's.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, ex Exchange) error {
	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("encode exchange: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key(sessionID), payload)
	pipe.LTrim(ctx, s.key(sessionID), 0, HistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]Exchange, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, HistoryLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	// Stored newest first; return oldest first.
	out := make([]Exchange, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var ex Exchange
		if err := json.Unmarshal([]byte(raw[i]), &ex); err != nil {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return nil
}
