package cache

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 200

// RedisStore is the only component touching the cache protocol. Every key is
// prefixed with the application namespace so tenants can share one backing
// store. Read/write/delete degrade to absent/no-op on backing-store failure;
// failures are logged and counted, never returned.
type RedisStore struct {
	client    *redis.Client
	namespace string
	opTimeout time.Duration
	logger    *slog.Logger
	failures  atomic.Int64
}

func NewRedisStore(client *redis.Client, namespace string, opTimeout time.Duration, logger *slog.Logger) *RedisStore {
	if namespace == "" {
		namespace = "orderdesk"
	}
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:    client,
		namespace: namespace,
		opTimeout: opTimeout,
		logger:    logger.With("module", "cache.redis_store", "layer", "adapter"),
	}
}

func (s *RedisStore) key(k string) string {
	return s.namespace + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.degrade(ctx, "get", key, err)
		}
		return nil, false
	}
	return raw, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		s.degrade(ctx, "set", key, err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		s.degrade(ctx, "delete", key, err)
	}
}

// DeletePattern walks the namespaced keyspace with SCAN in bounded batches
// and deletes every match. At-least-once: an interruption mid-scan leaves
// stragglers, and re-running the same pattern is always safe.
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) int {
	match := s.key(pattern)
	deleted := 0
	var cursor uint64
	for {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		keys, next, err := s.client.Scan(opCtx, cursor, match, scanBatchSize).Result()
		cancel()
		if err != nil {
			s.degrade(ctx, "delete_pattern", pattern, err)
			return deleted
		}
		if len(keys) > 0 {
			opCtx, cancel = context.WithTimeout(ctx, s.opTimeout)
			n, delErr := s.client.Del(opCtx, keys...).Result()
			cancel()
			if delErr != nil {
				s.degrade(ctx, "delete_pattern", pattern, delErr)
				return deleted
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted
		}
	}
}

// Clear removes only this namespace's keys, not the whole backing store.
func (s *RedisStore) Clear(ctx context.Context) {
	s.DeletePattern(ctx, "*")
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

var memoryUsedPattern = regexp.MustCompile(`used_memory:(\d+)`)

// MemoryUsedBytes reads the backing store's own memory reporting.
func (s *RedisStore) MemoryUsedBytes(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	m := memoryUsedPattern.FindStringSubmatch(info)
	if len(m) != 2 {
		return 0, nil
	}
	used, err := strconv.ParseInt(strings.TrimSpace(m[1]), 10, 64)
	if err != nil {
		return 0, err
	}
	return used, nil
}

func (s *RedisStore) KeyCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.DBSize(ctx).Result()
}

func (s *RedisStore) FailureCount() int64 {
	return s.failures.Load()
}

func (s *RedisStore) degrade(ctx context.Context, operation, key string, err error) {
	s.failures.Add(1)
	s.logger.WarnContext(ctx, "cache operation degraded",
		"operation", operation,
		"outcome", "degraded",
		"key", key,
		"error", err,
	)
}
