package gormstore

import (
	"encoding/json"
	"time"

	"github.com/tokmz/realtime"
)

// 成员角色
const (
	roleMember    = "member"
	roleModerator = "moderator"
)

// MessageModel 消息表
type MessageModel struct {
	ID          string            `gorm:"primaryKey;size:64"`
	ChannelID   string            `gorm:"size:64;index:idx_messages_channel_created,priority:1"`
	AuthorID    string            `gorm:"size:64;index"`
	Content     string            `gorm:"type:text"`
	ReplyToID   string            `gorm:"size:64"`
	Attachments []string          `gorm:"serializer:json"`
	Mentions    []string          `gorm:"serializer:json"`
	Embeds      []json.RawMessage `gorm:"serializer:json"`
	CreatedAt   time.Time         `gorm:"index:idx_messages_channel_created,priority:2"`
	EditedAt    *time.Time
}

// TableName 表名
func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) toMessage() *realtime.Message {
	return &realtime.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.AuthorID,
		Content:     m.Content,
		ReplyToID:   m.ReplyToID,
		Attachments: m.Attachments,
		Mentions:    m.Mentions,
		Embeds:      m.Embeds,
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
	}
}

func fromMessage(m *realtime.Message) *MessageModel {
	return &MessageModel{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.AuthorID,
		Content:     m.Content,
		ReplyToID:   m.ReplyToID,
		Attachments: m.Attachments,
		Mentions:    m.Mentions,
		Embeds:      m.Embeds,
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
	}
}

// UserModel 用户表
type UserModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Username    string `gorm:"size:64;uniqueIndex"`
	DisplayName string `gorm:"size:128"`
	Avatar      string `gorm:"size:512"`
	LastSeenAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 表名
func (UserModel) TableName() string { return "users" }

func (m *UserModel) toUser() *realtime.User {
	return &realtime.User{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Avatar:      m.Avatar,
		LastSeenAt:  m.LastSeenAt,
	}
}

// ChannelModel 频道表
type ChannelModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128"`
	Kind      string `gorm:"size:16"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 表名
func (ChannelModel) TableName() string { return "channels" }

func (m *ChannelModel) toChannel() *realtime.Channel {
	return &realtime.Channel{
		ID:   m.ID,
		Name: m.Name,
		Kind: realtime.ChannelKind(m.Kind),
	}
}

// MemberModel 频道成员表
type MemberModel struct {
	ChannelID string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64;index"`
	Role      string `gorm:"size:16"`
	CreatedAt time.Time
}

// TableName 表名
func (MemberModel) TableName() string { return "channel_members" }

// FriendModel 好友关系表，按单向边存储
type FriendModel struct {
	UserID    string `gorm:"primaryKey;size:64"`
	FriendID  string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

// TableName 表名
func (FriendModel) TableName() string { return "friends" }

// NotificationModel 通知表
type NotificationModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"size:64;index:idx_notifications_user_created,priority:1"`
	Kind      string `gorm:"size:32"`
	ActorID   string `gorm:"size:64"`
	ChannelID string `gorm:"size:64"`
	MessageID string `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index:idx_notifications_user_created,priority:2"`
	ReadAt    *time.Time
}

// TableName 表名
func (NotificationModel) TableName() string { return "notifications" }

func fromNotification(n *realtime.Notification) *NotificationModel {
	return &NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      n.Kind,
		ActorID:   n.ActorID,
		ChannelID: n.ChannelID,
		MessageID: n.MessageID,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}
