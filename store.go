package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// Message 频道消息
type Message struct {
	ID          string            `json:"id"`
	ChannelID   string            `json:"channel_id"`
	AuthorID    string            `json:"author_id"`
	Content     string            `json:"content"`
	ReplyToID   string            `json:"reply_to_id,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
	Mentions    []string          `json:"mentions,omitempty"`
	Embeds      []json.RawMessage `json:"embeds,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	EditedAt    *time.Time        `json:"edited_at,omitempty"`
}

// User 用户档案
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	Avatar      string     `json:"avatar,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// ChannelKind 频道类型
type ChannelKind string

const (
	// ChannelText 文字频道
	ChannelText ChannelKind = "text"
	// ChannelVoice 语音频道
	ChannelVoice ChannelKind = "voice"
)

// Channel 频道
type Channel struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Kind ChannelKind `json:"kind"`
}

// Notification 站内通知
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	ActorID   string     `json:"actor_id,omitempty"`
	ChannelID string     `json:"channel_id,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// NotificationMention 提及通知类型
const NotificationMention = "mention"

/*
	查询类方法的约定：目标不存在返回 (nil, nil) 而不是错误。
	存储层错误只代表依赖故障，由熔断器统计；业务上的"查无此物"
	不应计入失败。
*/

// MessageStore 消息读写
type MessageStore interface {
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, id string) error
}

// MembershipStore 频道成员与权限关系
type MembershipStore interface {
	IsMember(ctx context.Context, userID, channelID string) (bool, error)
	CanModerate(ctx context.Context, userID, channelID string) (bool, error)
}

// UserStore 用户档案
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// ChannelStore 频道档案
type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (*Channel, error)
}

// SocialStore 社交关系
type SocialStore interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// NotificationStore 通知写入
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
}

// Store 聚合存储接口
type Store interface {
	MessageStore
	MembershipStore
	UserStore
	ChannelStore
	SocialStore
	NotificationStore
}

// AnalyticsEvent 行为分析事件
type AnalyticsEvent struct {
	UserID    string `json:"user_id"`
	Event     string `json:"event"`
	ChannelID string `json:"channel_id,omitempty"`
	ServerID  string `json:"server_id"`
	Timestamp int64  `json:"timestamp"`
}

// AnalyticsSink 行为分析接收端。上报失败只记录日志，不影响业务链路。
type AnalyticsSink interface {
	Record(ctx context.Context, event *AnalyticsEvent) error
}
