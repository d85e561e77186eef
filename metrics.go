package realtime

import (
	"sync/atomic"
	"time"
)

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	ConnectionOpened()
	ConnectionClosed(reason string)
	ConnectionRejected(reason string)

	// 事件指标
	EventReceived(event string)
	EventHandled(event string, elapsed time.Duration)
	EventRejected(event string, code string)
	PanicRecovered(event string)

	// 投递指标
	BroadcastSent(event string, receivers int)
	PushDropped(event string, count int)
	InvalidFrame()
}

// NoopMetrics 空实现
type NoopMetrics struct{}

func (m *NoopMetrics) ConnectionOpened()                          {}
func (m *NoopMetrics) ConnectionClosed(reason string)             {}
func (m *NoopMetrics) ConnectionRejected(reason string)           {}
func (m *NoopMetrics) EventReceived(event string)                 {}
func (m *NoopMetrics) EventHandled(event string, d time.Duration) {}
func (m *NoopMetrics) EventRejected(event string, code string)    {}
func (m *NoopMetrics) PanicRecovered(event string)                {}
func (m *NoopMetrics) BroadcastSent(event string, receivers int)  {}
func (m *NoopMetrics) PushDropped(event string, count int)        {}
func (m *NoopMetrics) InvalidFrame()                              {}

// MetricsSnapshot 内置计数器快照
type MetricsSnapshot struct {
	ConnectionsOpened   int64 `json:"connections_opened"`
	ConnectionsClosed   int64 `json:"connections_closed"`
	ConnectionsRejected int64 `json:"connections_rejected"`
	EventsReceived      int64 `json:"events_received"`
	EventsHandled       int64 `json:"events_handled"`
	EventsRejected      int64 `json:"events_rejected"`
	PanicsRecovered     int64 `json:"panics_recovered"`
	BroadcastsSent      int64 `json:"broadcasts_sent"`
	PushesDropped       int64 `json:"pushes_dropped"`
	InvalidFrames       int64 `json:"invalid_frames"`
}

// basicMetrics 内置计数器实现，供健康检查接口展示
type basicMetrics struct {
	opened    atomic.Int64
	closed    atomic.Int64
	rejected  atomic.Int64
	received  atomic.Int64
	handled   atomic.Int64
	errored   atomic.Int64
	panics    atomic.Int64
	broadcast atomic.Int64
	dropped   atomic.Int64
	invalid   atomic.Int64
}

func newBasicMetrics() *basicMetrics {
	return &basicMetrics{}
}

func (m *basicMetrics) ConnectionOpened()                          { m.opened.Add(1) }
func (m *basicMetrics) ConnectionClosed(reason string)             { m.closed.Add(1) }
func (m *basicMetrics) ConnectionRejected(reason string)           { m.rejected.Add(1) }
func (m *basicMetrics) EventReceived(event string)                 { m.received.Add(1) }
func (m *basicMetrics) EventHandled(event string, d time.Duration) { m.handled.Add(1) }
func (m *basicMetrics) EventRejected(event string, code string)    { m.errored.Add(1) }
func (m *basicMetrics) PanicRecovered(event string)                { m.panics.Add(1) }
func (m *basicMetrics) BroadcastSent(event string, receivers int)  { m.broadcast.Add(1) }
func (m *basicMetrics) PushDropped(event string, count int)        { m.dropped.Add(int64(count)) }
func (m *basicMetrics) InvalidFrame()                              { m.invalid.Add(1) }

// Snapshot 返回当前计数
func (m *basicMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionsOpened:   m.opened.Load(),
		ConnectionsClosed:   m.closed.Load(),
		ConnectionsRejected: m.rejected.Load(),
		EventsReceived:      m.received.Load(),
		EventsHandled:       m.handled.Load(),
		EventsRejected:      m.errored.Load(),
		PanicsRecovered:     m.panics.Load(),
		BroadcastsSent:      m.broadcast.Load(),
		PushesDropped:       m.dropped.Load(),
		InvalidFrames:       m.invalid.Load(),
	}
}
