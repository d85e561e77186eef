package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink 逐条记录收到的事件
type captureSink struct {
	mu     sync.Mutex
	events []*AnalyticsEvent
}

func (s *captureSink) Record(_ context.Context, event *AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// captureBatchSink 额外记录每次批量刷新的条数
type captureBatchSink struct {
	captureSink
	batches []int
}

func (s *captureBatchSink) RecordBatch(_ context.Context, events []*AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	s.batches = append(s.batches, len(events))
	return nil
}

func (s *captureBatchSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.batches))
	copy(out, s.batches)
	return out
}

func analyticsEvent(name string) *AnalyticsEvent {
	return &AnalyticsEvent{
		UserID:    "u1",
		Event:     name,
		ServerID:  "srv-test",
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestBatchAnalytics(t *testing.T) {
	t.Run("按条数触发批量刷新", func(t *testing.T) {
		sink := &captureBatchSink{}
		b := NewBatchAnalytics(sink, nil, 3, time.Hour)
		defer b.Stop()

		for i := 0; i < 3; i++ {
			require.NoError(t, b.Record(context.Background(), analyticsEvent("message_sent")))
		}

		require.Eventually(t, func() bool {
			return sink.count() == 3
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, []int{3}, sink.batchSizes())
	})

	t.Run("按周期触发刷新", func(t *testing.T) {
		sink := &captureBatchSink{}
		b := NewBatchAnalytics(sink, nil, 50, 20*time.Millisecond)
		defer b.Stop()

		require.NoError(t, b.Record(context.Background(), analyticsEvent("user_online")))
		require.NoError(t, b.Record(context.Background(), analyticsEvent("user_offline")))

		require.Eventually(t, func() bool {
			return sink.count() == 2
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("停止时排空队列", func(t *testing.T) {
		sink := &captureBatchSink{}
		b := NewBatchAnalytics(sink, nil, 100, time.Hour)

		for i := 0; i < 5; i++ {
			require.NoError(t, b.Record(context.Background(), analyticsEvent("message_sent")))
		}
		b.Stop()

		assert.Equal(t, 5, sink.count())
	})

	t.Run("停止后退化为同步转发", func(t *testing.T) {
		sink := &captureBatchSink{}
		b := NewBatchAnalytics(sink, nil, 10, time.Hour)
		b.Stop()

		require.NoError(t, b.Record(context.Background(), analyticsEvent("message_sent")))
		assert.Equal(t, 1, sink.count())
	})

	t.Run("不支持批量的接收端逐条转发", func(t *testing.T) {
		sink := &captureSink{}
		b := NewBatchAnalytics(sink, nil, 2, time.Hour)
		defer b.Stop()

		require.NoError(t, b.Record(context.Background(), analyticsEvent("message_sent")))
		require.NoError(t, b.Record(context.Background(), analyticsEvent("message_edited")))

		require.Eventually(t, func() bool {
			return sink.count() == 2
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("重复停止无副作用", func(t *testing.T) {
		b := NewBatchAnalytics(&captureSink{}, nil, 10, time.Hour)
		b.Stop()
		assert.NotPanics(t, func() { b.Stop() })
	})
}

func TestLogAnalytics(t *testing.T) {
	a := NewLogAnalytics(nil)
	assert.NoError(t, a.Record(context.Background(), analyticsEvent("message_sent")))
}
