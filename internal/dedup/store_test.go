package dedup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/defensoria-civil/divorcios/internal/cache"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, NewRedisStore(m, "divorcios:msg:", 5*time.Minute, nil)
}

func TestRedisStore_Claim(t *testing.T) {
	mr, s := newRedisStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("divorcios:msg:wamid.1"))
	assert.Equal(t, 5*time.Minute, mr.TTL("divorcios:msg:wamid.1"))

	ok, err = s.Claim(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(5*time.Minute + time.Second)
	ok, err = s.Claim(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Release(t *testing.T) {
	_, s := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Claim(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "a"))

	ok, err := s.Claim(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Errors(t *testing.T) {
	mr, s := newRedisStore(t)
	_, err := s.Claim(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyMessageID)

	mr.Close()
	_, err = s.Claim(context.Background(), "x")
	assert.Error(t, err)
}

func TestRedisStore_ConcurrentClaimsOnlyOneWins(t *testing.T) {
	_, s := newRedisStore(t)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.Claim(context.Background(), "same"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_ClaimAndExpire(t *testing.T) {
	s := NewMemoryStore(time.Minute, 0)
	defer s.Close()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := s.Claim(ctx, "m1")
	assert.True(t, ok)
	ok, _ = s.Claim(ctx, "m1")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = s.Claim(ctx, "m1")
	assert.True(t, ok)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	s := NewMemoryStore(time.Minute, 0)
	defer s.Close()
	now := time.Now()
	s.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		_, _ = s.Claim(context.Background(), fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, 5, s.Len())
	now = now.Add(2 * time.Minute)
	s.cleanup()
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Millisecond)
	s.Close()
	s.Close()
}

// 任意消息序列：每个消息 ID 在 TTL 内恰好被认领一次
func TestProperty_MemoryStoreClaimsEachIDOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOf(rapid.StringMatching(`[a-c][0-9]`)).Draw(t, "ids")
		s := NewMemoryStore(time.Hour, 0)
		defer s.Close()

		seen := map[string]bool{}
		for _, id := range ids {
			ok, err := s.Claim(context.Background(), id)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if ok == seen[id] {
				t.Fatalf("id %q: claimed=%v seen=%v", id, ok, seen[id])
			}
			seen[id] = true
		}
	})
}
