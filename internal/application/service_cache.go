package application

import (
	"context"
	"encoding/json"
	"time"
)

// CacheGet reads a raw value, recording the hit or miss against the given
// endpoint. Disabled cache behaves as a permanent miss.
func (s *Service) CacheGet(ctx context.Context, endpoint, key string) ([]byte, bool) {
	if !s.cfg.Enabled {
		return nil, false
	}
	start := s.nowFn()
	value, ok := s.store.Get(ctx, key)
	elapsed := s.nowFn().Sub(start)
	if ok {
		s.RecordHit(endpoint, elapsed)
		return value, true
	}
	s.RecordMiss(endpoint, elapsed)
	return nil, false
}

// CacheSet writes a raw value under the tier's TTL. A zero ttl falls back to
// the configured default.
func (s *Service) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !s.cfg.Enabled {
		return
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	s.store.Set(ctx, key, value, ttl)
}

// Cached is the read-through path: hit decodes straight from the store, miss
// runs the loader and caches its JSON encoding. Loader errors pass through
// untouched; cache trouble is invisible to the caller.
func Cached[T any](ctx context.Context, s *Service, endpoint, key string, ttl time.Duration, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := s.CacheGet(ctx, endpoint, key); ok {
		var out T
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		// Undecodable entry is treated as absent and overwritten below.
		s.store.Delete(ctx, key)
	}

	out, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	if raw, err := json.Marshal(out); err == nil {
		s.CacheSet(ctx, key, raw, ttl)
	}
	return out, nil
}
