package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/internal/cache"
)

// Store 按消息标识去重。Claim 返回 true 表示首次见到该消息，
// 调用方获得处理权；TTL 内的重复投递返回 false。
type Store interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// ErrEmptyMessageID 消息标识为空
var ErrEmptyMessageID = errors.New("dedup: empty message id")

// =============================================================================
// 🗄️ Redis 实现
// =============================================================================

type setNXer interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// RedisStore 基于 SET NX + TTL，多副本共享
type RedisStore struct {
	cache  setNXer
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ setNXer = (*cache.Manager)(nil)

// NewRedisStore 创建 Redis 去重存储
func NewRedisStore(manager *cache.Manager, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "dedup:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		cache:  manager,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "dedup")),
	}
}

// Key 返回消息在 Redis 中的键
func (s *RedisStore) Key(messageID string) string {
	return s.prefix + messageID
}

// Claim implements Store.
func (s *RedisStore) Claim(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, ErrEmptyMessageID
	}
	ok, err := s.cache.SetNX(ctx, s.Key(messageID), "1", s.ttl)
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	if !ok {
		s.logger.Debug("duplicate message", zap.String("message_id", messageID))
	}
	return ok, nil
}

// Release 删除去重键，使同一消息可被重新处理
func (s *RedisStore) Release(ctx context.Context, messageID string) error {
	return s.cache.Delete(ctx, s.Key(messageID))
}

// =============================================================================
// 🧠 内存实现（单副本 / 测试）
// =============================================================================

// MemoryStore 进程内去重存储，后台定期清理过期键
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore 创建内存去重存储；cleanupInterval 为 0 时不启动清理协程
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, ErrEmptyMessageID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.entries[messageID]; ok && now.Before(exp) {
		return false, nil
	}
	s.entries[messageID] = now.Add(s.ttl)
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, messageID string) error {
	s.mu.Lock()
	delete(s.entries, messageID)
	s.mu.Unlock()
	return nil
}

// Len 返回当前记录数（含未清理的过期项）
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close 停止清理协程
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
}
