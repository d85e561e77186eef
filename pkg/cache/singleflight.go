package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// SingleflightCache 防击穿缓存装饰器。
// 同一 key 的并发未命中只会执行一次回源。
type SingleflightCache struct {
	Cache
	group singleflight.Group
}

// NewSingleflightCache 创建防击穿缓存装饰器
func NewSingleflightCache(c Cache) *SingleflightCache {
	return &SingleflightCache{Cache: c}
}

// Do 读缓存，未命中时回源并写回。
// 多个相同 key 的并发请求只执行一次 fn，共享同一结果。
func (s *SingleflightCache) Do(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fn func() (any, error),
) (any, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		var r any
		if checkErr := s.Cache.Get(ctx, key, &r); checkErr == nil {
			return r, nil
		}
		r, loadErr := fn()
		if loadErr != nil {
			return nil, loadErr
		}
		_ = s.Cache.Set(ctx, key, r, ttl)
		return r, nil
	})
	return v, err
}

// Forget 清除回源去重状态，下次请求重新执行 fn
func (s *SingleflightCache) Forget(key string) {
	s.group.Forget(key)
}

// Remember 读缓存，未命中时回源并写回（不防击穿）
func Remember[T any](
	ctx context.Context,
	c Cache,
	key string,
	ttl time.Duration,
	fn func() (T, error),
) (T, error) {
	var result T
	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}
	result, err := fn()
	if err != nil {
		return result, err
	}
	_ = c.Set(ctx, key, result, ttl)
	return result, nil
}
