package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	cacheTracerName = "realtime.cache"
)

// tracedCache 链路追踪缓存装饰器
type tracedCache struct {
	Cache
	tracer trace.Tracer
}

// NewTracing 创建带链路追踪的缓存实例
func NewTracing(c Cache) Cache {
	return &tracedCache{
		Cache:  c,
		tracer: otel.Tracer(cacheTracerName),
	}
}

// wrap 包装一次缓存操作为 Span
func (t *tracedCache) wrap(ctx context.Context, operation, key string, fn func(ctx context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "cache."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.operation", operation),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Int64("cache.duration_ms", time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (t *tracedCache) Get(ctx context.Context, key string, value any) error {
	return t.wrap(ctx, "get", key, func(ctx context.Context) error {
		return t.Cache.Get(ctx, key, value)
	})
}

func (t *tracedCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return t.wrap(ctx, "set", key, func(ctx context.Context) error {
		return t.Cache.Set(ctx, key, value, ttl)
	})
}

func (t *tracedCache) Delete(ctx context.Context, keys ...string) error {
	key := ""
	if len(keys) > 0 {
		key = keys[0]
	}
	return t.wrap(ctx, "delete", key, func(ctx context.Context) error {
		return t.Cache.Delete(ctx, keys...)
	})
}

func (t *tracedCache) SAdd(ctx context.Context, key string, members ...string) error {
	return t.wrap(ctx, "sadd", key, func(ctx context.Context) error {
		return t.Cache.SAdd(ctx, key, members...)
	})
}

func (t *tracedCache) SRem(ctx context.Context, key string, members ...string) error {
	return t.wrap(ctx, "srem", key, func(ctx context.Context) error {
		return t.Cache.SRem(ctx, key, members...)
	})
}

func (t *tracedCache) SMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := t.wrap(ctx, "smembers", key, func(ctx context.Context) error {
		var opErr error
		members, opErr = t.Cache.SMembers(ctx, key)
		return opErr
	})
	return members, err
}
