package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/psds-microservice/field-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:session:"

// RedisStore хранит сессию списком JSON-сообщений. RPUSH атомарен,
// поэтому порядок дописывания сохраняется без отдельной блокировки.
type RedisStore struct {
	client  redis.UniversalClient
	idleTTL time.Duration
}

func NewRedisStore(client redis.UniversalClient, idleTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, idleTTL: idleTTL}
}

// NewRedisClient разбирает REDIS_URL и проверяет соединение.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func key(sessionID string) string { return keyPrefix + sessionID }

func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...model.Message) error {
	if err := validate(sessionID, msgs); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, string(b))
	}
	k := key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, values...)
		if s.idleTTL > 0 {
			p.Expire(ctx, k, s.idleTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", k, err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	raw, err := s.client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history: %w", err)
	}
	out := make([]model.Message, 0, len(raw))
	for _, r := range raw {
		var m model.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Del(ctx, key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis clear: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
