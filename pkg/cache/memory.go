package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache 内存缓存实现，单实例部署与测试使用
type memoryCache struct {
	cache      *gocache.Cache
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration

	// mu 保护集合与计数的读改写
	mu sync.Mutex
}

// newMemoryCache 创建内存缓存实例
func newMemoryCache(cfg *Config) (Cache, error) {
	if cfg.Memory == nil {
		cfg.Memory = DefaultMemoryConfig()
	}

	return &memoryCache{
		cache:      gocache.New(cfg.Memory.DefaultExpiration, cfg.Memory.CleanupInterval),
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// buildKey 构建完整的键名
func (m *memoryCache) buildKey(key string) string {
	if m.keyPrefix == "" {
		return key
	}
	return m.keyPrefix + key
}

// Get 获取缓存
func (m *memoryCache) Get(ctx context.Context, key string, value any) error {
	data, found := m.cache.Get(m.buildKey(key))
	if !found {
		return ErrCacheNotFound
	}

	bytes, ok := data.([]byte)
	if !ok {
		return fmt.Errorf("%w: unexpected value type", ErrCacheSerialization)
	}

	if err := m.serializer.Unmarshal(bytes, value); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}

	return nil
}

// Set 设置缓存
func (m *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	bytes, err := m.serializer.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}

	if ttl == 0 {
		ttl = m.defaultTTL
	}

	m.cache.Set(m.buildKey(key), bytes, ttl)
	return nil
}

// Delete 删除缓存
func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(m.buildKey(key))
	}
	return nil
}

// Exists 检查键是否存在
func (m *memoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, found := m.cache.Get(m.buildKey(key))
	return found, nil
}

// TTL 获取键的剩余生存时间
func (m *memoryCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	_, expireAt, found := m.cache.GetWithExpiration(m.buildKey(key))
	if !found {
		return 0, ErrCacheNotFound
	}
	if expireAt.IsZero() {
		return -1, nil // 永不过期
	}
	return time.Until(expireAt), nil
}

// Expire 设置键的过期时间
func (m *memoryCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	fullKey := m.buildKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	data, found := m.cache.Get(fullKey)
	if !found {
		return ErrCacheNotFound
	}
	m.cache.Set(fullKey, data, ttl)
	return nil
}

// Incr 自增
func (m *memoryCache) Incr(ctx context.Context, key string) (int64, error) {
	fullKey := m.buildKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	data, found := m.cache.Get(fullKey)
	if !found {
		m.cache.Set(fullKey, int64(1), gocache.NoExpiration)
		return 1, nil
	}

	count, ok := data.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: value is not a counter", ErrCacheOperation)
	}
	count++
	m.cache.Set(fullKey, count, gocache.NoExpiration)
	return count, nil
}

// SAdd 向集合添加成员
func (m *memoryCache) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	fullKey := m.buildKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.getSetLocked(fullKey)
	if set == nil {
		set = make(map[string]struct{}, len(members))
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	m.cache.Set(fullKey, set, gocache.NoExpiration)
	return nil
}

// SRem 从集合移除成员
func (m *memoryCache) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	fullKey := m.buildKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.getSetLocked(fullKey)
	if set == nil {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		m.cache.Delete(fullKey)
		return nil
	}
	m.cache.Set(fullKey, set, gocache.NoExpiration)
	return nil
}

// SMembers 获取集合全部成员
func (m *memoryCache) SMembers(ctx context.Context, key string) ([]string, error) {
	fullKey := m.buildKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.getSetLocked(fullKey)
	if set == nil {
		return nil, nil
	}
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}

// SCard 获取集合成员数
func (m *memoryCache) SCard(ctx context.Context, key string) (int64, error) {
	fullKey := m.buildKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.getSetLocked(fullKey)
	return int64(len(set)), nil
}

// getSetLocked 取出集合值，调用方必须持有 mu
func (m *memoryCache) getSetLocked(fullKey string) map[string]struct{} {
	data, found := m.cache.Get(fullKey)
	if !found {
		return nil
	}
	set, ok := data.(map[string]struct{})
	if !ok {
		return nil
	}
	return set
}

// Ping 检查连接，内存实现恒为可用
func (m *memoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close 关闭缓存
func (m *memoryCache) Close() error {
	m.cache.Flush()
	return nil
}
