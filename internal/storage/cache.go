package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"echogate/internal/models"
	"echogate/internal/redis"
)

const (
	cacheVersionKey = "chatlogs:version"
	cacheListPrefix = "chatlogs:list:"
)

// Cache is the key/value surface CachedSink needs; *redis.Client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// CachedSink serves listings from a shared cache. Every successful write
// bumps a version counter, which moves all listing keys to a fresh namespace
// so instances sharing the cache never serve pre-write listings.
type CachedSink struct {
	inner Sink
	cache Cache
	ttl   time.Duration
}

func NewCachedSink(inner Sink, cache Cache, ttl time.Duration) *CachedSink {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSink{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedSink) Insert(ctx context.Context, model, userMessage, assistantMessage string) (*models.ChatLog, error) {
	entry, err := s.inner.Insert(ctx, model, userMessage, assistantMessage)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return entry, nil
}

func (s *CachedSink) Delete(ctx context.Context, id int64) (bool, error) {
	removed, err := s.inner.Delete(ctx, id)
	if err != nil || !removed {
		return removed, err
	}
	s.invalidate(ctx)
	return true, nil
}

func (s *CachedSink) List(ctx context.Context, limit int) ([]*models.ChatLog, error) {
	key, ok := s.listKey(ctx, limit)
	if ok {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var logs []*models.ChatLog
			if err := json.Unmarshal([]byte(raw), &logs); err == nil {
				return logs, nil
			}
			logrus.WithField("key", key).Warn("discarding undecodable chat log cache entry")
		case !errors.Is(err, redis.ErrCacheMiss):
			logrus.WithError(err).Warn("chat log cache read failed")
		}
	}

	logs, err := s.inner.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if ok {
		if payload, err := json.Marshal(logs); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
				logrus.WithError(err).Warn("chat log cache write failed")
			}
		}
	}
	return logs, nil
}

func (s *CachedSink) listKey(ctx context.Context, limit int) (string, bool) {
	version, err := s.cache.Get(ctx, cacheVersionKey)
	switch {
	case errors.Is(err, redis.ErrCacheMiss):
		version = "0"
	case err != nil:
		logrus.WithError(err).Warn("chat log cache version read failed")
		return "", false
	}
	return fmt.Sprintf("%s%s:%d", cacheListPrefix, version, limit), true
}

func (s *CachedSink) invalidate(ctx context.Context) {
	if _, err := s.cache.Incr(ctx, cacheVersionKey); err != nil {
		logrus.WithError(err).Error("chat log cache invalidation failed; listings may be stale until ttl")
	}
}
