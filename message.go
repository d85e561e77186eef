package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/sanitize"
)

// AuthorInfo 消息载荷里附带的作者档案
type AuthorInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// MessagePayload 新消息广播，消息记录平铺并附作者信息
type MessagePayload struct {
	*Message
	Author AuthorInfo `json:"author"`
}

// MessageEditPayload 消息编辑广播
type MessageEditPayload struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	EditedAt  int64  `json:"edited_at"`
}

// MessageDeletePayload 消息删除广播
type MessageDeletePayload struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
}

// MentionPayload 提及通知，推送给被提及用户的所有连接
type MentionPayload struct {
	MessageID string     `json:"message_id"`
	ChannelID string     `json:"channel_id"`
	Author    AuthorInfo `json:"author"`
	Preview   string     `json:"preview"`
}

// mentionPreviewLength 提及通知里的内容摘要长度
const mentionPreviewLength = 128

func (c *Conn) authorInfo() AuthorInfo {
	return AuthorInfo{
		ID:          c.UserID,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		Avatar:      c.Avatar,
	}
}

// handleMessageSend 发送消息。校验通过后落库、广播完整记录、
// 回执消息 ID，提及通知与行为上报尽力而为。
func (s *Service) handleMessageSend(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, true) {
		return
	}
	var in SendMessageInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.reject(c, f, errInvalidFrame)
		return
	}
	if err := in.normalize(s.config); err != nil {
		s.reject(c, f, err)
		return
	}

	member, err := s.checkMembership(ctx, c.UserID, in.ChannelID)
	if err != nil {
		s.reject(c, f, errors.ErrDatabase.WithError(err))
		return
	}
	if !member {
		s.reject(c, f, errors.ErrForbidden.WithMessage("no access to this channel"))
		return
	}

	if in.ReplyToID != "" {
		parent, err := storeQuery(ctx, s, func(ctx context.Context) (*Message, error) {
			return s.store.GetMessage(ctx, in.ReplyToID)
		})
		if err != nil {
			s.reject(c, f, errors.ErrDatabase.WithError(err))
			return
		}
		if parent == nil || parent.ChannelID != in.ChannelID {
			s.reject(c, f, errors.ErrNotFound.WithMessage("reply target not found in this channel"))
			return
		}
	}

	msg := &Message{
		ID:          newID(),
		ChannelID:   in.ChannelID,
		AuthorID:    c.UserID,
		Content:     in.Content,
		ReplyToID:   in.ReplyToID,
		Attachments: in.Attachments,
		Mentions:    in.Mentions,
		Embeds:      in.Embeds,
		CreatedAt:   time.Now(),
	}
	if err := s.storeExec(ctx, func(ctx context.Context) error {
		return s.store.CreateMessage(ctx, msg)
	}); err != nil {
		s.reject(c, f, errors.ErrDatabase.WithError(err))
		return
	}

	s.broadcast(ctx, in.ChannelID, EventMessageNew, &MessagePayload{Message: msg, Author: c.authorInfo()}, "")
	c.sendAck(f, map[string]any{"message_id": msg.ID})

	s.notifyMentions(ctx, c, msg)
	s.recordAnalytics(ctx, c.UserID, f.Event, in.ChannelID)
}

// handleMessageEdit 编辑消息。仅作者本人可改，超出时限拒绝。
func (s *Service) handleMessageEdit(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, true) {
		return
	}
	var in EditMessageInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.reject(c, f, errInvalidFrame)
		return
	}
	if err := in.normalize(s.config); err != nil {
		s.reject(c, f, err)
		return
	}

	msg, err := storeQuery(ctx, s, func(ctx context.Context) (*Message, error) {
		return s.store.GetMessage(ctx, in.MessageID)
	})
	if err != nil {
		s.reject(c, f, errors.ErrDatabase.WithError(err))
		return
	}
	if msg == nil {
		s.reject(c, f, errors.ErrNotFound.WithMessage("message not found"))
		return
	}
	if msg.AuthorID != c.UserID {
		s.reject(c, f, errors.ErrForbidden.WithMessage("only the author can edit a message"))
		return
	}
	if time.Since(msg.CreatedAt) > s.config.EditWindow {
		s.reject(c, f, errors.ErrMessageTooOld)
		return
	}

	editedAt := time.Now()
	if err := s.storeExec(ctx, func(ctx context.Context) error {
		return s.store.UpdateMessageContent(ctx, msg.ID, in.Content, editedAt)
	}); err != nil {
		s.reject(c, f, errors.ErrDatabase.WithError(err))
		return
	}

	s.broadcast(ctx, msg.ChannelID, EventMessageEdited, &MessageEditPayload{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Content:   in.Content,
		EditedAt:  editedAt.UnixMilli(),
	}, "")
	c.sendAck(f, map[string]any{"message_id": msg.ID})

	s.recordAnalytics(ctx, c.UserID, f.Event, msg.ChannelID)
}

// handleMessageDelete 删除消息。作者本人或频道管理员可删。
func (s *Service) handleMessageDelete(ctx context.Context, c *Conn, f *Frame) {
	if !s.allow(c, f, true) {
		return
	}
	var in DeleteMessageInput
	if err := json.Unmarshal(f.Data, &in); err != nil {
		s.reject(c, f, errInvalidFrame)
		return
	}
	if err := in.normalize(); err != nil {
		s.reject(c, f, err)
		return
	}

	msg, err := storeQuery(ctx, s, func(ctx context.Context) (*Message, error) {
		return s.store.GetMessage(ctx, in.MessageID)
	})
	if err != nil {
		s.reject(c, f, errors.ErrDatabase.WithError(err))
		return
	}
	if msg == nil {
		s.reject(c, f, errors.ErrNotFound.WithMessage("message not found"))
		return
	}
	if msg.AuthorID != c.UserID {
		moderator, err := storeQuery(ctx, s, func(ctx context.Context) (bool, error) {
			return s.store.CanModerate(ctx, c.UserID, msg.ChannelID)
		})
		if err != nil {
			s.reject(c, f, errors.ErrDatabase.WithError(err))
			return
		}
		if !moderator {
			s.reject(c, f, errors.ErrForbidden.WithMessage("no permission to delete this message"))
			return
		}
	}

	if err := s.storeExec(ctx, func(ctx context.Context) error {
		return s.store.DeleteMessage(ctx, msg.ID)
	}); err != nil {
		s.reject(c, f, errors.ErrDatabase.WithError(err))
		return
	}

	s.broadcast(ctx, msg.ChannelID, EventMessageDeleted, &MessageDeletePayload{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
	}, "")
	c.sendAck(f, map[string]any{"message_id": msg.ID})

	s.recordAnalytics(ctx, c.UserID, f.Event, msg.ChannelID)
}

// notifyMentions 给被提及用户逐个落通知并推送。
// 单个提及失败只记日志，不影响其余提及，更不影响已完成的发送。
func (s *Service) notifyMentions(ctx context.Context, c *Conn, msg *Message) {
	if len(msg.Mentions) == 0 {
		return
	}
	payload := &MentionPayload{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Author:    c.authorInfo(),
		Preview:   sanitize.Truncate(msg.Content, mentionPreviewLength),
	}
	data, err := json.Marshal(NewPush(EventMention, payload))
	if err != nil {
		s.logger.ErrorContext(ctx, "提及通知编码失败", zap.Error(err))
		return
	}

	for _, target := range msg.Mentions {
		if target == c.UserID {
			continue
		}
		n := &Notification{
			ID:        newID(),
			UserID:    target,
			Kind:      NotificationMention,
			ActorID:   c.UserID,
			ChannelID: msg.ChannelID,
			MessageID: msg.ID,
			CreatedAt: time.Now(),
		}
		if err := s.storeExec(ctx, func(ctx context.Context) error {
			return s.store.CreateNotification(ctx, n)
		}); err != nil {
			s.logger.WarnContext(ctx, "提及通知落库失败",
				zap.String("target", target),
				zap.Error(err))
			continue
		}
		s.sendToUser(target, data)
		s.publishDirect(ctx, []string{target}, data)
	}
}
