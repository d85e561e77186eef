// Package gormstore 提供基于 GORM 的持久化存储实现，
// 支持 pkg/orm 覆盖的全部数据库，档案读取可选地穿透共享缓存。
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tokmz/realtime"
	"github.com/tokmz/realtime/pkg/cache"
)

var _ realtime.Store = (*Store)(nil)

// Store GORM 存储
type Store struct {
	db       *gorm.DB
	cache    cache.Cache
	cacheTTL time.Duration
}

// Option 存储选项
type Option func(*Store)

// WithCache 启用档案读穿透缓存。
// 用户与频道档案先查缓存，未命中回源数据库并回填；
// 缓存故障静默回源，不影响读取结果。
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// New 创建 GORM 存储
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, cacheTTL: 5 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate 建表与索引迁移
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MessageModel{},
		&UserModel{},
		&ChannelModel{},
		&MemberModel{},
		&FriendModel{},
		&NotificationModel{},
	)
}

// userCacheKey 用户档案缓存键
func userCacheKey(id string) string { return "store:user:" + id }

// channelCacheKey 频道档案缓存键
func channelCacheKey(id string) string { return "store:channel:" + id }

// CreateMessage 写入消息
func (s *Store) CreateMessage(ctx context.Context, m *realtime.Message) error {
	return s.db.WithContext(ctx).Create(fromMessage(m)).Error
}

// GetMessage 按标识取消息，不存在返回 (nil, nil)
func (s *Store) GetMessage(ctx context.Context, id string) (*realtime.Message, error) {
	var model MessageModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toMessage(), nil
}

// UpdateMessageContent 更新消息内容与编辑时间，不存在时无操作
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content":   content,
			"edited_at": editedAt,
		}).Error
}

// DeleteMessage 删除消息，不存在时无操作
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&MessageModel{}).Error
}

// IsMember 判断用户是否为频道成员
func (s *Store) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&MemberModel{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&count).Error
	return count > 0, err
}

// CanModerate 判断用户是否有频道管理权限
func (s *Store) CanModerate(ctx context.Context, userID, channelID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&MemberModel{}).
		Where("channel_id = ? AND user_id = ? AND role = ?", channelID, userID, roleModerator).
		Count(&count).Error
	return count > 0, err
}

// GetUser 按标识取用户，不存在返回 (nil, nil)
func (s *Store) GetUser(ctx context.Context, id string) (*realtime.User, error) {
	if s.cache != nil {
		var cached realtime.User
		if err := s.cache.Get(ctx, userCacheKey(id), &cached); err == nil {
			return &cached, nil
		}
	}

	var model UserModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user := model.toUser()
	if s.cache != nil {
		_ = s.cache.Set(ctx, userCacheKey(id), user, s.cacheTTL)
	}
	return user, nil
}

// TouchLastSeen 更新用户最近活跃时间并失效缓存
func (s *Store) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, userCacheKey(id))
	}
	return nil
}

// GetChannel 按标识取频道，不存在返回 (nil, nil)
func (s *Store) GetChannel(ctx context.Context, id string) (*realtime.Channel, error) {
	if s.cache != nil {
		var cached realtime.Channel
		if err := s.cache.Get(ctx, channelCacheKey(id), &cached); err == nil {
			return &cached, nil
		}
	}

	var model ChannelModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	channel := model.toChannel()
	if s.cache != nil {
		_ = s.cache.Set(ctx, channelCacheKey(id), channel, s.cacheTTL)
	}
	return channel, nil
}

// FriendIDs 返回用户的好友标识列表
func (s *Store) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&FriendModel{}).
		Where("user_id = ?", userID).
		Pluck("friend_id", &ids).Error
	return ids, err
}

// CreateNotification 写入通知
func (s *Store) CreateNotification(ctx context.Context, n *realtime.Notification) error {
	return s.db.WithContext(ctx).Create(fromNotification(n)).Error
}
