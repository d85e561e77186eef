package realtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/breaker"
	"github.com/tokmz/realtime/pkg/errors"
)

// MemberCountPayload 频道在线人数广播
type MemberCountPayload struct {
	ChannelID string `json:"channel_id"`
	Count     int64  `json:"count"`
}

// channelPresenceKey 频道在线用户集合的缓存键
func channelPresenceKey(channelID string) string {
	return "presence:channel:" + channelID
}

// handleChannelJoin 加入频道。频道存在且具备成员资格才放行，
// 查询依赖故障回执 JOIN_FAILED。重复加入幂等，直接回执当前人数。
func (s *Service) handleChannelJoin(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, true) {
		return
	}
	var in ChannelInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.reject(c, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.reject(c, f, err)
		return
	}

	channel, err := storeQuery(ctx, s, func(ctx context.Context) (*Channel, error) {
		return s.store.GetChannel(ctx, in.ChannelID)
	})
	if err != nil {
		s.reject(c, f, errors.ErrJoinFailed.WithError(err))
		return
	}
	if channel == nil {
		s.reject(c, f, errors.ErrNotFound.WithMessage("channel not found"))
		return
	}

	member, err := s.checkMembership(ctx, c.UserID, in.ChannelID)
	if err != nil {
		s.reject(c, f, errors.ErrJoinFailed.WithError(err))
		return
	}
	if !member {
		s.reject(c, f, errors.ErrForbidden.WithMessage("no access to this channel"))
		return
	}

	fresh := s.rooms.join(c, in.ChannelID)
	s.cacheJoin(ctx, c.UserID, in.ChannelID)

	count := s.channelMemberCount(ctx, in.ChannelID)
	if fresh {
		s.broadcast(ctx, in.ChannelID, EventMemberCount, &MemberCountPayload{
			ChannelID: in.ChannelID,
			Count:     count,
		}, "")
	}
	c.sendAck(f, map[string]any{"channel_id": in.ChannelID, "member_count": count})

	s.recordAnalytics(ctx, c.UserID, f.Event, in.ChannelID)
}

// handleChannelLeave 离开频道。本地移除无条件执行，
// 清理动作不应因任何校验被拒绝。
func (s *Service) handleChannelLeave(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, true) {
		return
	}
	var in ChannelInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.reject(c, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.reject(c, f, err)
		return
	}

	if s.rooms.leave(c, in.ChannelID) {
		s.stopTyping(ctx, c, in.ChannelID)
		if !s.rooms.userInRoom(c.UserID, in.ChannelID, c.ID) {
			s.cacheLeave(ctx, c.UserID, in.ChannelID)
		}
		count := s.channelMemberCount(ctx, in.ChannelID)
		s.broadcast(ctx, in.ChannelID, EventMemberCount, &MemberCountPayload{
			ChannelID: in.ChannelID,
			Count:     count,
		}, "")
	}
	c.sendAck(f, map[string]any{"channel_id": in.ChannelID})

	s.recordAnalytics(ctx, c.UserID, f.Event, in.ChannelID)
}

// cacheJoin 把用户写入频道在线集合并刷新 TTL，失败只记日志
func (s *Service) cacheJoin(ctx context.Context, userID, channelID string) {
	if s.cache == nil {
		return
	}
	key := channelPresenceKey(channelID)
	if err := s.breakers.Execute(ctx, breakerCache, func(ctx context.Context) error {
		if err := s.cache.SAdd(ctx, key, userID); err != nil {
			return err
		}
		return s.cache.Expire(ctx, key, s.config.PresenceTTL)
	}); err != nil {
		s.logger.DebugContext(ctx, "频道在线集合写入失败",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

// cacheLeave 把用户移出频道在线集合，失败只记日志
func (s *Service) cacheLeave(ctx context.Context, userID, channelID string) {
	if s.cache == nil {
		return
	}
	if err := s.breakers.Execute(ctx, breakerCache, func(ctx context.Context) error {
		return s.cache.SRem(ctx, channelPresenceKey(channelID), userID)
	}); err != nil {
		s.logger.DebugContext(ctx, "频道在线集合移除失败",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

// channelMemberCount 频道在线用户数。优先取分布式集合基数，
// 缓存不可用时退回本实例去重统计。
func (s *Service) channelMemberCount(ctx context.Context, channelID string) int64 {
	if s.cache != nil {
		count, err := breaker.Do(ctx, s.breakers.Breaker(breakerCache), func(ctx context.Context) (int64, error) {
			return s.cache.SCard(ctx, channelPresenceKey(channelID))
		})
		if err == nil {
			return count
		}
		s.logger.DebugContext(ctx, "在线人数缓存查询失败",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
	return int64(s.rooms.userCount(channelID))
}
