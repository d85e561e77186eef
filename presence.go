package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/utils/array"
)

// TypingPayload 输入指示广播
type TypingPayload struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

// userPresenceKey 用户状态的缓存键
func userPresenceKey(userID string) string {
	return "presence:user:" + userID
}

// typingTimerName 输入指示到期定时器在清理注册表里的名称
func typingTimerName(channelID string) string {
	return "typing:" + channelID
}

// handleTypingStart 开始输入。尽力而为信号，任何失败静默丢弃。
// 服务端同时挂一个到期定时器，客户端忘发 stop 也会被强制停止。
func (s *Service) handleTypingStart(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, false) {
		return
	}
	var in ChannelInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.drop(ctx, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.drop(ctx, f, err)
		return
	}

	member, err := s.checkMembership(ctx, c.UserID, in.ChannelID)
	if err != nil {
		s.drop(ctx, f, err)
		return
	}
	if !member {
		return
	}

	previousConn, fresh := s.typing.start(c.UserID, in.ChannelID, c.ID)
	if previousConn != "" && previousConn != c.ID {
		// 指示器换了设备，旧连接的到期定时器作废
		s.timers.cancel(previousConn, typingTimerName(in.ChannelID))
	}
	channelID := in.ChannelID
	s.timers.schedule(c.ID, typingTimerName(channelID), s.config.TypingTTL, func() {
		s.expireTyping(c, channelID)
	})

	if fresh {
		s.broadcastTyping(ctx, EventTypingStart, c.UserID, in.ChannelID, c.ID)
	}
	c.sendAck(f, nil)
}

// handleTypingStop 停止输入。没有指示器时是纯粹的空操作。
func (s *Service) handleTypingStop(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, false) {
		return
	}
	var in ChannelInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.drop(ctx, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.drop(ctx, f, err)
		return
	}

	s.stopTyping(ctx, c, in.ChannelID)
	c.sendAck(f, nil)
}

// stopTyping 停止指示器并广播，返回之前是否存在。
// 定时器归属状态里记录的连接，不一定是发起停止的连接。
func (s *Service) stopTyping(ctx context.Context, c *Conn, channelID string) bool {
	connID, ok := s.typing.stop(c.UserID, channelID)
	if !ok {
		return false
	}
	s.timers.cancel(connID, typingTimerName(channelID))
	s.broadcastTyping(ctx, EventTypingStop, c.UserID, channelID, c.ID)
	return true
}

// expireTyping 输入指示到期，强制停止并广播
func (s *Service) expireTyping(c *Conn, channelID string) {
	if !s.typing.stopIfOwner(c.UserID, channelID, c.ID) {
		return
	}
	s.broadcastTyping(context.Background(), EventTypingStop, c.UserID, channelID, "")
}

func (s *Service) broadcastTyping(ctx context.Context, event, userID, channelID, exclude string) {
	s.broadcast(ctx, channelID, event, &TypingPayload{UserID: userID, ChannelID: channelID}, exclude)
}

// handlePresenceUpdate 更新在线状态。并发更新后写优先，
// 新状态推给好友与本人的全部设备。
func (s *Service) handlePresenceUpdate(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, false) {
		return
	}
	var in PresenceInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.drop(ctx, f, errInvalidFrame)
		return
	}
	if err := in.normalize(s.config); err != nil {
		s.drop(ctx, f, err)
		return
	}

	entry := &PresenceEntry{
		UserID:     c.UserID,
		Status:     PresenceStatus(in.Status),
		Activity:   in.Activity,
		DeviceType: in.DeviceType,
		UpdatedAt:  nowMillis(),
		receivedAt: time.Now(),
	}
	if !s.presence.update(entry) {
		// 已有更新的记录，本次更新作废
		c.sendAck(f, nil)
		return
	}

	s.cachePresence(ctx, entry)
	s.touchLastSeen(ctx, c.UserID)
	s.fanoutPresence(ctx, entry)
	c.sendAck(f, nil)
}

// fanoutPresence 把状态推给好友与本人的其他设备，跨实例走定向投递
func (s *Service) fanoutPresence(ctx context.Context, entry *PresenceEntry) {
	data, err := json.Marshal(NewPush(EventPresenceUpdate, entry))
	if err != nil {
		s.logger.ErrorContext(ctx, "状态广播编码失败", zap.Error(err))
		return
	}

	friends, err := storeQuery(ctx, s, func(ctx context.Context) ([]string, error) {
		return s.store.FriendIDs(ctx, entry.UserID)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "好友列表查询失败",
			zap.String("user_id", entry.UserID),
			zap.Error(err))
		friends = nil
	}

	recipients := array.SliceUnique(append(friends, entry.UserID))
	for _, userID := range recipients {
		s.sendToUser(userID, data)
	}
	s.publishDirect(ctx, recipients, data)
}

// cachePresence 把用户状态写入缓存供其他服务查询，失败只记日志
func (s *Service) cachePresence(ctx context.Context, entry *PresenceEntry) {
	if s.cache == nil {
		return
	}
	if err := s.breakers.Execute(ctx, breakerCache, func(ctx context.Context) error {
		return s.cache.Set(ctx, userPresenceKey(entry.UserID), entry, s.config.PresenceTTL)
	}); err != nil {
		s.logger.DebugContext(ctx, "用户状态缓存写入失败",
			zap.String("user_id", entry.UserID),
			zap.Error(err))
	}
}

// clearPresenceCache 离线后清除缓存里的用户状态
func (s *Service) clearPresenceCache(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.breakers.Execute(ctx, breakerCache, func(ctx context.Context) error {
		return s.cache.Delete(ctx, userPresenceKey(userID))
	}); err != nil {
		s.logger.DebugContext(ctx, "用户状态缓存清除失败",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// touchLastSeen 更新最后在线时间，失败只记日志
func (s *Service) touchLastSeen(ctx context.Context, userID string) {
	if err := s.storeExec(ctx, func(ctx context.Context) error {
		return s.store.TouchLastSeen(ctx, userID, time.Now())
	}); err != nil {
		s.logger.DebugContext(ctx, "最后在线时间更新失败",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
