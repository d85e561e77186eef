// Package memory 提供线程安全的内存存储实现，
// 用于开发环境、示例与测试，进程退出后数据即消失。
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tokmz/realtime"
)

var _ realtime.Store = (*Store)(nil)

// Store 内存存储
type Store struct {
	mu            sync.RWMutex
	users         map[string]*realtime.User
	channels      map[string]*realtime.Channel
	messages      map[string]*realtime.Message
	members       map[string]map[string]bool // channelID -> userID
	moderators    map[string]map[string]bool
	friends       map[string][]string
	notifications []*realtime.Notification
	writes        int
}

// New 创建内存存储
func New() *Store {
	return &Store{
		users:      make(map[string]*realtime.User),
		channels:   make(map[string]*realtime.Channel),
		messages:   make(map[string]*realtime.Message),
		members:    make(map[string]map[string]bool),
		moderators: make(map[string]map[string]bool),
		friends:    make(map[string][]string),
	}
}

// AddUser 写入用户档案
func (s *Store) AddUser(u *realtime.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *u
	s.users[u.ID] = &copied
}

// AddChannel 写入频道
func (s *Store) AddChannel(ch *realtime.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ch
	s.channels[ch.ID] = &copied
}

// AddMember 把用户加入频道
func (s *Store) AddMember(channelID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[channelID] == nil {
		s.members[channelID] = make(map[string]bool)
	}
	s.members[channelID][userID] = true
}

// AddModerator 把用户设为频道管理员，同时授予成员身份
func (s *Store) AddModerator(channelID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[channelID] == nil {
		s.members[channelID] = make(map[string]bool)
	}
	s.members[channelID][userID] = true
	if s.moderators[channelID] == nil {
		s.moderators[channelID] = make(map[string]bool)
	}
	s.moderators[channelID][userID] = true
}

// SetFriends 设置用户的好友列表
func (s *Store) SetFriends(userID string, friendIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[userID] = append([]string(nil), friendIDs...)
}

// Writes 返回消息与通知的累计写入次数，
// 测试据此断言被拒绝的请求没有触达持久层。
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Notifications 返回已写入的通知快照
func (s *Store) Notifications() []*realtime.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*realtime.Notification, len(s.notifications))
	for i, n := range s.notifications {
		copied := *n
		out[i] = &copied
	}
	return out
}

// CreateMessage 写入消息
func (s *Store) CreateMessage(ctx context.Context, m *realtime.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.messages[m.ID] = &copied
	s.writes++
	return nil
}

// GetMessage 按标识取消息，不存在返回 (nil, nil)
func (s *Store) GetMessage(ctx context.Context, id string) (*realtime.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

// UpdateMessageContent 更新消息内容，不存在时无操作
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		m.Content = content
		at := editedAt
		m.EditedAt = &at
		s.writes++
	}
	return nil
}

// DeleteMessage 删除消息，不存在时无操作
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; ok {
		delete(s.messages, id)
		s.writes++
	}
	return nil
}

// IsMember 判断用户是否为频道成员
func (s *Store) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[channelID][userID], nil
}

// CanModerate 判断用户是否有频道管理权限
func (s *Store) CanModerate(ctx context.Context, userID, channelID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.moderators[channelID][userID], nil
}

// GetUser 按标识取用户，不存在返回 (nil, nil)
func (s *Store) GetUser(ctx context.Context, id string) (*realtime.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

// TouchLastSeen 更新用户最近活跃时间，档案不存在时无操作
func (s *Store) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		t := at
		u.LastSeenAt = &t
	}
	return nil
}

// GetChannel 按标识取频道，不存在返回 (nil, nil)
func (s *Store) GetChannel(ctx context.Context, id string) (*realtime.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, nil
	}
	copied := *ch
	return &copied, nil
}

// FriendIDs 返回用户的好友标识列表
func (s *Store) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.friends[userID]...), nil
}

// CreateNotification 写入通知
func (s *Store) CreateNotification(ctx context.Context, n *realtime.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *n
	s.notifications = append(s.notifications, &copied)
	s.writes++
	return nil
}
