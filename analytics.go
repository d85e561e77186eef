package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/request"
	regexputil "github.com/tokmz/realtime/utils/regexp"
)

// LogAnalytics 把行为事件写进结构化日志，适合开发环境与小规模部署
type LogAnalytics struct {
	log logger.Logger
}

// NewLogAnalytics 创建日志上报器
func NewLogAnalytics(log logger.Logger) *LogAnalytics {
	if log == nil {
		log = logger.Default()
	}
	return &LogAnalytics{log: log}
}

// Record 记录一条行为事件
func (a *LogAnalytics) Record(ctx context.Context, event *AnalyticsEvent) error {
	a.log.InfoContext(ctx, "analytics",
		zap.String("event", event.Event),
		zap.String("user_id", event.UserID),
		zap.String("channel_id", event.ChannelID),
		zap.String("server_id", event.ServerID),
		zap.Int64("ts", event.Timestamp))
	return nil
}

// HTTPAnalytics 把行为事件上报到采集服务。
// 上报走熔断网关，采集服务故障不影响业务路径。
type HTTPAnalytics struct {
	client *request.Client
	path   string
}

// NewHTTPAnalytics 创建上报客户端，endpoint 是采集服务根地址
func NewHTTPAnalytics(endpoint string, opts ...request.Option) (*HTTPAnalytics, error) {
	if !regexputil.IsMatchURL(endpoint) {
		return nil, fmt.Errorf("realtime: invalid analytics endpoint %q", endpoint)
	}
	opts = append([]request.Option{request.WithBaseURL(endpoint)}, opts...)
	return &HTTPAnalytics{
		client: request.New(opts...),
		path:   "/v1/events",
	}, nil
}

// Record 上报一条行为事件
func (a *HTTPAnalytics) Record(ctx context.Context, event *AnalyticsEvent) error {
	resp, err := a.client.Post(a.path).SetContext(ctx).SetBody(event).Do()
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("realtime: analytics endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// RecordBatch 批量上报行为事件
func (a *HTTPAnalytics) RecordBatch(ctx context.Context, events []*AnalyticsEvent) error {
	resp, err := a.client.Post(a.path + "/batch").SetContext(ctx).SetBody(events).Do()
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("realtime: analytics endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// BatchSink 支持批量上报的接收端
type BatchSink interface {
	RecordBatch(ctx context.Context, events []*AnalyticsEvent) error
}

// syncRecordTimeout 退化为同步上报时的超时
const syncRecordTimeout = 5 * time.Second

// analyticsItem 待上报事件，spanCtx 用于把批量刷新关联回原始请求
type analyticsItem struct {
	event   *AnalyticsEvent
	spanCtx trace.SpanContext
}

// BatchAnalytics 批量上报装饰器。事件先入队，按条数或周期成批
// 转发给底层接收端，压低高峰期的上报频率；队列满或已停止时
// 退化为同步转发，事件不静默丢失。
type BatchAnalytics struct {
	sink      AnalyticsSink
	batchSink BatchSink // 接收端支持批量操作时使用
	log       logger.Logger

	batchSize     int
	flushInterval time.Duration

	queue    chan analyticsItem
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

// NewBatchAnalytics 创建批量上报装饰器
func NewBatchAnalytics(sink AnalyticsSink, log logger.Logger, batchSize int, flushInterval time.Duration) *BatchAnalytics {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}

	b := &BatchAnalytics{
		sink:          sink,
		log:           log,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		queue:         make(chan analyticsItem, batchSize*2),
		stopChan:      make(chan struct{}),
	}
	if bs, ok := sink.(BatchSink); ok {
		b.batchSink = bs
	}

	b.wg.Add(1)
	go b.process()
	return b
}

// Record 接收一条行为事件，入队即视为接收成功
func (b *BatchAnalytics) Record(ctx context.Context, event *AnalyticsEvent) error {
	spanCtx := trace.SpanContextFromContext(ctx)

	if b.stopped.Load() {
		return b.recordSync(spanCtx, event)
	}

	select {
	case b.queue <- analyticsItem{event: event, spanCtx: spanCtx}:
		return nil
	default:
		// 队列已满，同步转发
		return b.recordSync(spanCtx, event)
	}
}

// recordSync 绕过队列直接转发
func (b *BatchAnalytics) recordSync(spanCtx trace.SpanContext, event *AnalyticsEvent) error {
	ctx, cancel := context.WithTimeout(trace.ContextWithSpanContext(context.Background(), spanCtx), syncRecordTimeout)
	defer cancel()
	return b.sink.Record(ctx, event)
}

// Stop 停止后台刷新并排空队列，重复调用无操作
func (b *BatchAnalytics) Stop() {
	if !b.stopped.CompareAndSwap(false, true) {
		return
	}
	close(b.stopChan)
	b.wg.Wait()
}

// process 后台批量刷新循环
func (b *BatchAnalytics) process() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	batch := make([]analyticsItem, 0, b.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		// 批量刷新自成一个 span，link 关联回每个事件的来源请求
		links := make([]trace.Link, 0, len(batch))
		for _, item := range batch {
			if item.spanCtx.IsValid() {
				links = append(links, trace.Link{SpanContext: item.spanCtx})
			}
		}
		tracer := otel.Tracer("realtime.analytics")
		ctx, span := tracer.Start(context.Background(), "analytics.flush", trace.WithLinks(links...))
		ctx, cancel := context.WithTimeout(ctx, syncRecordTimeout)
		defer cancel()
		defer span.End()

		events := make([]*AnalyticsEvent, len(batch))
		for i, item := range batch {
			events[i] = item.event
		}

		if b.batchSink != nil {
			if err := b.batchSink.RecordBatch(ctx, events); err != nil {
				b.log.Warn("行为事件批量上报失败",
					zap.Int("count", len(events)),
					zap.Error(err))
			}
		} else {
			for _, event := range events {
				if err := b.sink.Record(ctx, event); err != nil {
					b.log.Warn("行为事件上报失败",
						zap.String("event", event.Event),
						zap.Error(err))
				}
			}
		}

		batch = batch[:0]
	}

	for {
		select {
		case <-b.stopChan:
			// 排空队列中剩余的事件
			for {
				select {
				case item := <-b.queue:
					batch = append(batch, item)
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case item := <-b.queue:
			batch = append(batch, item)
			if len(batch) >= b.batchSize {
				flush()
			}
		}
	}
}
