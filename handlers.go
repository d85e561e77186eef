package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/breaker"
	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/tracing"
)

// 熔断器按依赖命名，同名调用共享状态机
const (
	breakerDatabase  = "database"
	breakerCache     = "cache"
	breakerAnalytics = "analytics"
)

var (
	errInvalidFrame = errors.ErrInvalidInput.WithMessage("malformed frame")
	errUnknownEvent = errors.ErrInvalidInput.WithMessage("unknown event")
)

// handlerFunc 事件处理函数
type handlerFunc func(ctx context.Context, c *Conn, f *Frame)

// registerHandlers 登记全部客户端命令
func (s *Service) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		EventMessageSend:    s.handleMessageSend,
		EventMessageEdit:    s.handleMessageEdit,
		EventMessageDelete:  s.handleMessageDelete,
		EventTypingStart:    s.handleTypingStart,
		EventTypingStop:     s.handleTypingStop,
		EventChannelJoin:    s.handleChannelJoin,
		EventChannelLeave:   s.handleChannelLeave,
		EventPresenceUpdate: s.handlePresenceUpdate,
		EventVoiceJoin:      s.handleVoiceJoin,
		EventVoiceLeave:     s.handleVoiceLeave,
		EventVoiceUpdate:    s.handleVoiceUpdate,
	}
}

// dispatch 事件入口。处理器内的任何崩溃都在这里兜底，
// 回执内部错误后连接继续存活。
func (s *Service) dispatch(c *Conn, f *Frame) {
	started := time.Now()

	ctx := logger.WithConnID(logger.WithUserID(c.ctx, c.UserID), c.ID)
	ctx, span := tracing.StartEventSpan(ctx, f.Event, c.UserID, c.ID)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.PanicRecovered(f.Event)
			s.logger.Error("事件处理器崩溃",
				zap.Any("panic", r),
				zap.String("event", f.Event),
				zap.String("user_id", c.UserID),
				zap.String("conn_id", c.ID),
				zap.Stack("stack"))
			c.sendAckError(f, errors.ErrInternal)
		}
		s.metrics.EventHandled(f.Event, time.Since(started))
	}()

	c.touch()
	s.metrics.EventReceived(f.Event)

	handler, ok := s.handlers[f.Event]
	if !ok {
		s.metrics.EventRejected(f.Event, errors.CodeInvalidInput)
		c.sendAckError(f, errUnknownEvent)
		return
	}
	handler(ctx, c, f)
}

// reject 关键事件失败，回执结构化错误
func (s *Service) reject(c *Conn, f *Frame, err error) {
	s.metrics.EventRejected(f.Event, errors.CodeOf(err))
	c.sendAckError(f, err)
}

// drop 尽力而为事件失败，静默丢弃只留痕迹
func (s *Service) drop(ctx context.Context, f *Frame, err error) {
	s.metrics.EventRejected(f.Event, errors.CodeOf(err))
	s.logger.DebugContext(ctx, "事件被丢弃",
		zap.String("event", f.Event),
		zap.Error(err))
}

// allow 事件限流。关键事件超限时回执 RATE_LIMITED，
// 尽力而为事件静默丢弃。
func (s *Service) allow(c *Conn, f *Frame, critical bool) bool {
	if s.limiter.Allow(c.UserID, f.Event) {
		return true
	}
	s.metrics.EventRejected(f.Event, errors.CodeRateLimited)
	if critical {
		c.sendAckError(f, errors.ErrRateLimited)
	}
	return false
}

// storeQuery 熔断包装的存储查询
func storeQuery[T any](ctx context.Context, s *Service, op func(ctx context.Context) (T, error)) (T, error) {
	return breaker.Do(ctx, s.breakers.Breaker(breakerDatabase), op)
}

// storeExec 熔断包装的存储写入
func (s *Service) storeExec(ctx context.Context, op func(ctx context.Context) error) error {
	return s.breakers.Execute(ctx, breakerDatabase, op)
}

// checkMembership 频道成员资格查询，错误代表依赖故障
func (s *Service) checkMembership(ctx context.Context, userID, channelID string) (bool, error) {
	return breaker.Do(ctx, s.breakers.Breaker(breakerDatabase), func(ctx context.Context) (bool, error) {
		return s.store.IsMember(ctx, userID, channelID)
	})
}

// recordAnalytics 上报行为事件，失败只记日志
func (s *Service) recordAnalytics(ctx context.Context, userID, event, channelID string) {
	if s.analytics == nil {
		return
	}
	e := &AnalyticsEvent{
		UserID:    userID,
		Event:     event,
		ChannelID: channelID,
		ServerID:  s.config.ServerID,
		Timestamp: nowMillis(),
	}
	if err := s.breakers.Execute(ctx, breakerAnalytics, func(ctx context.Context) error {
		return s.analytics.Record(ctx, e)
	}); err != nil {
		s.logger.DebugContext(ctx, "行为事件上报失败",
			zap.String("event", event),
			zap.Error(err))
	}
}
