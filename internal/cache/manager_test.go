package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_ConnectionFailure(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestManager_SetNX(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "msg:1", "1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "msg:1", "1", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 过期后可再次写入
	mr.FastForward(6 * time.Minute)
	ok, err = m.SetNX(ctx, "msg:1", "1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_Delete(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	_, err := m.SetNX(ctx, "a", "1", 0)
	require.NoError(t, err)
	// ttl 为 0 时使用 DefaultTTL
	assert.Equal(t, time.Minute, mr.TTL("a"))
	require.NoError(t, m.Delete(ctx, "a"))
	assert.False(t, mr.Exists("a"))
	assert.NoError(t, m.Delete(ctx))
}

func TestManager_ServerDown(t *testing.T) {
	mr, m := setupTestRedis(t)
	mr.Close()

	_, err := m.SetNX(context.Background(), "k", "v", time.Second)
	assert.Error(t, err)
	assert.Error(t, m.Ping(context.Background()))
}

func TestManager_Close(t *testing.T) {
	_, m := setupTestRedis(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	ctx := context.Background()
	_, err := m.SetNX(ctx, "k", "v", time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
}

func TestManager_HealthCheckLoopStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := NewManager(Config{Addr: mr.Addr(), HealthCheckInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Close())
}
