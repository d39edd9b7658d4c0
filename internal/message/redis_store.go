package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisListKey = "chat:messages"
	redisSeqKey  = "chat:messages:seq"

	redisTimeout = 2 * time.Second
)

// RedisStore persists messages in a Redis list. IDs come from an INCR
// counter so they stay unique across server restarts.
type RedisStore struct {
	client  redis.Cmdable
	maxSize int64
}

// NewRedisStore creates a RedisStore that retains up to maxSize messages.
// A maxSize of 0 retains everything.
func NewRedisStore(client redis.Cmdable, maxSize int) *RedisStore {
	return &RedisStore{
		client:  client,
		maxSize: int64(maxSize),
	}
}

// Append assigns the next ID to d and pushes it onto the list, trimming to maxSize.
func (s *RedisStore) Append(d Draft) (Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	id, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return Message{}, fmt.Errorf("redis: next id: %w", err)
	}
	m := d.WithID(id)
	data, err := json.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("redis: marshal message: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, redisListKey, data)
	if s.maxSize > 0 {
		pipe.LTrim(ctx, redisListKey, -s.maxSize, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Message{}, fmt.Errorf("redis: append message: %w", err)
	}
	return m, nil
}

// Recent returns the last n messages.
func (s *RedisStore) Recent(n int) ([]Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	vals, err := s.client.LRange(ctx, redisListKey, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read messages: %w", err)
	}
	msgs := make([]Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			log.Warn().Err(err).Msg("redis: skipping undecodable message")
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Count returns the number of stored messages.
func (s *RedisStore) Count() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	n, err := s.client.LLen(ctx, redisListKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count messages: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying client when it supports closing.
func (s *RedisStore) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
