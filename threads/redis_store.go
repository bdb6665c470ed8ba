package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/llmrelay/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "llmrelay:"

// RedisStore stores each thread as a JSON string and keeps a sorted set
// index scored by created_at. Suitable for multi-instance deployments.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStoreFromConfig dials redis and verifies the connection.
func NewRedisStoreFromConfig(cfg config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "thread_store"), zap.String("driver", "redis")),
	}
}

// threadKey returns the Redis key holding one thread
func (s *RedisStore) threadKey(id string) string {
	return s.keyPrefix + "thread:" + id
}

// indexKey returns the sorted set of thread ids
func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "threads"
}

// Save writes the record and its index entry in one transaction.
func (s *RedisStore) Save(ctx context.Context, thread *Thread) error {
	if err := ValidateID(thread.ID); err != nil {
		return err
	}

	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to encode thread: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.threadKey(thread.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  createdScore(thread.CreatedAt),
			Member: thread.ID,
		})
		return nil
	})
	return err
}

// Get loads a thread by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Thread, error) {
	if err := ValidateID(id); err != nil {
		return nil, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.threadKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var thread Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("failed to decode thread %s: %w", id, err)
	}
	return &thread, nil
}

// List reads the index then fetches the records with MGET.
// Index entries whose record has vanished are pruned.
func (s *RedisStore) List(ctx context.Context) ([]Summary, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Summary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.threadKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var thread Thread
		if err := json.Unmarshal([]byte(raw), &thread); err != nil {
			s.logger.Warn("skip corrupt thread record", zap.String("thread_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, thread.Summary())
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			s.logger.Warn("failed to prune thread index", zap.Error(err))
		}
	}

	sortSummaries(out)
	return out, nil
}

// Delete removes the record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return ErrNotFound
	}

	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.threadKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
