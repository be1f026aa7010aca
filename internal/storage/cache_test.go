package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echogate/internal/models"
	"echogate/internal/redis"
)

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	gets   int
	fail   bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return "", errors.New("cache down")
	}
	v, ok := c.values[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	switch v := value.(type) {
	case []byte:
		c.values[key] = string(v)
	case string:
		c.values[key] = v
	}
	return nil
}

func (c *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return 0, errors.New("cache down")
	}
	n, _ := strconv.ParseInt(c.values[key], 10, 64)
	n++
	c.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

type countingSink struct {
	Sink
	lists int
}

func (s *countingSink) List(ctx context.Context, limit int) ([]*models.ChatLog, error) {
	s.lists++
	return s.Sink.List(ctx, limit)
}

func TestCachedSinkServesRepeatedListsFromCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingSink{Sink: newTestStore(t)}
	sink := NewCachedSink(inner, newMemoryCache(), time.Minute)

	_, err := sink.Insert(ctx, "m", "q1", "a1")
	require.NoError(t, err)

	first, err := sink.List(ctx, 20)
	require.NoError(t, err)
	second, err := sink.List(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.lists)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, "q1", second[0].UserMessage)
}

func TestCachedSinkInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	inner := &countingSink{Sink: newTestStore(t)}
	sink := NewCachedSink(inner, newMemoryCache(), time.Minute)

	entry, err := sink.Insert(ctx, "m", "q1", "a1")
	require.NoError(t, err)
	_, err = sink.List(ctx, 20)
	require.NoError(t, err)

	_, err = sink.Insert(ctx, "m", "q2", "a2")
	require.NoError(t, err)
	logs, err := sink.List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "q2", logs[0].UserMessage)

	removed, err := sink.Delete(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	logs, err = sink.List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, inner.lists)

	removed, err = sink.Delete(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCachedSinkFallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	cache := newMemoryCache()
	cache.fail = true
	inner := &countingSink{Sink: newTestStore(t)}
	sink := NewCachedSink(inner, cache, time.Minute)

	_, err := sink.Insert(ctx, "m", "q", "a")
	require.NoError(t, err)
	logs, err := sink.List(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, inner.lists)
}
