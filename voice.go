package realtime

import (
	"context"
	"encoding/json"
)

// 语音状态广播的动作类型
const (
	voiceActionJoin   = "join"
	voiceActionUpdate = "update"
	voiceActionLeave  = "leave"
)

// VoiceStatePayload 语音状态广播
type VoiceStatePayload struct {
	Action string     `json:"action"`
	State  VoiceState `json:"state"`
}

// handleVoiceJoin 加入语音频道。尽力而为信号，校验不过静默丢弃。
// 已在频道内时退化为媒体标记更新。
func (s *Service) handleVoiceJoin(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, false) {
		return
	}
	var in VoiceInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.drop(ctx, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.drop(ctx, f, err)
		return
	}

	channel, err := storeQuery(ctx, s, func(ctx context.Context) (*Channel, error) {
		return s.store.GetChannel(ctx, in.ChannelID)
	})
	if err != nil {
		s.drop(ctx, f, err)
		return
	}
	if channel == nil || channel.Kind != ChannelVoice {
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

	state, fresh := s.voice.join(&VoiceState{
		UserID:    c.UserID,
		ChannelID: in.ChannelID,
		Muted:     in.Muted,
		Deafened:  in.Deafened,
		Streaming: in.Streaming,
	})
	action := voiceActionJoin
	if !fresh {
		action = voiceActionUpdate
	}
	s.broadcast(ctx, in.ChannelID, EventVoiceState, &VoiceStatePayload{Action: action, State: state}, "")
	c.sendAck(f, nil)

	s.recordAnalytics(ctx, c.UserID, f.Event, in.ChannelID)
}

// handleVoiceUpdate 更新媒体标记，未加入语音频道时静默丢弃
func (s *Service) handleVoiceUpdate(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, false) {
		return
	}
	var in VoiceInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.drop(ctx, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.drop(ctx, f, err)
		return
	}

	state, ok := s.voice.update(c.UserID, in.ChannelID, in.Muted, in.Deafened, in.Streaming)
	if !ok {
		return
	}
	s.broadcast(ctx, in.ChannelID, EventVoiceState, &VoiceStatePayload{Action: voiceActionUpdate, State: state}, "")
	c.sendAck(f, nil)
}

// handleVoiceLeave 离开语音频道。清理动作不做资格校验，
// 未加入时是空操作。
func (s *Service) handleVoiceLeave(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, false) {
		return
	}
	var in VoiceInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.drop(ctx, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.drop(ctx, f, err)
		return
	}

	state, ok := s.voice.leave(c.UserID, in.ChannelID)
	if !ok {
		c.sendAck(f, nil)
		return
	}
	s.broadcast(ctx, in.ChannelID, EventVoiceState, &VoiceStatePayload{Action: voiceActionLeave, State: state}, "")
	c.sendAck(f, nil)

	s.recordAnalytics(ctx, c.UserID, f.Event, in.ChannelID)
}
