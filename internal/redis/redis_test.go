package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echogate/internal/config"
)

func TestNewRedisClientDisabled(t *testing.T) {
	client, err := NewRedisClient(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = client.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NoError(t, client.Close())

	_, err = NewRedisClient(nil)
	assert.Error(t, err)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	host, portStr, _ := strings.Cut(addr, ":")
	port, _ := strconv.Atoi(portStr)
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: true, Host: host, Port: port}}
	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("echogate:test:%d:", time.Now().UnixNano())

	_, err := client.Get(ctx, prefix+"missing")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	require.NoError(t, client.Set(ctx, prefix+"k", "v", time.Minute))
	got, err := client.Get(ctx, prefix+"k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	n, err := client.Incr(ctx, prefix+"counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = client.Incr(ctx, prefix+"counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
