package realtime

import (
	"sync"
	"time"
)

// room 一个频道在本实例的在线连接集合
type room struct {
	id string

	mu         sync.RWMutex
	conns      map[string]*Conn
	emptySince time.Time
}

// add 加入房间，重复加入返回 false
func (r *room) add(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; ok {
		return false
	}
	r.conns[c.ID] = c
	r.emptySince = time.Time{}
	return true
}

// remove 离开房间，连接不在房间内返回 false
func (r *room) remove(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return false
	}
	delete(r.conns, connID)
	if len(r.conns) == 0 {
		r.emptySince = time.Now()
	}
	return true
}

// members 返回成员快照，发送时不持房间锁
func (r *room) members() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// expired 房间是否已空置超过 ttl
func (r *room) expired(ttl time.Duration, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns) == 0 && !r.emptySince.IsZero() && now.Sub(r.emptySince) > ttl
}

// roomSet 房间注册表，房间按需创建，空置后由清理任务回收
type roomSet struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func newRoomSet() *roomSet {
	return &roomSet{rooms: make(map[string]*room)}
}

// join 把连接加入房间，房间不存在时创建。重复加入返回 false。
// 成员写入发生在注册表锁内，避免与空房间回收交错。
func (s *roomSet) join(c *Conn, roomID string) bool {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{id: roomID, conns: make(map[string]*Conn)}
		s.rooms[roomID] = r
	}
	added := r.add(c)
	s.mu.Unlock()

	if !added {
		return false
	}
	c.trackRoom(roomID)
	return true
}

// leave 把连接移出房间
func (s *roomSet) leave(c *Conn, roomID string) bool {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if !r.remove(c.ID) {
		return false
	}
	c.untrackRoom(roomID)
	return true
}

// leaveAll 把连接移出其所有房间，返回离开的房间列表
func (s *roomSet) leaveAll(c *Conn) []string {
	roomIDs := c.roomIDs()
	left := make([]string, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		if s.leave(c, roomID) {
			left = append(left, roomID)
		}
	}
	return left
}

// broadcast 向房间内全部连接投递原始数据，返回投递与丢弃的连接数。
// 发送永不阻塞，队列已满的慢连接被跳过。
func (s *roomSet) broadcast(roomID string, data []byte, exclude string) (delivered, dropped int) {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return 0, 0
	}

	for _, c := range r.members() {
		if c.ID == exclude {
			continue
		}
		if c.trySendBytes(data) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// memberCount 房间内的本实例连接数
func (s *roomSet) memberCount(roomID string) int {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return r.size()
}

// userCount 房间内的本实例去重用户数，多端登录只计一次
func (s *roomSet) userCount(roomID string) int {
	return len(s.roomUsers(roomID))
}

// roomUsers 房间内去重后的用户标识
func (s *roomSet) roomUsers(roomID string) []string {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var users []string
	for _, c := range r.members() {
		if _, ok := seen[c.UserID]; ok {
			continue
		}
		seen[c.UserID] = struct{}{}
		users = append(users, c.UserID)
	}
	return users
}

// userInRoom 用户是否还有其他连接留在房间内
func (s *roomSet) userInRoom(userID, roomID, excludeConnID string) bool {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	for _, c := range r.members() {
		if c.ID != excludeConnID && c.UserID == userID {
			return true
		}
	}
	return false
}

// count 当前房间数
func (s *roomSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ids 返回全部房间标识
func (s *roomSet) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// sweep 回收空置超过 ttl 的房间，返回回收数量
func (s *roomSet) sweep(ttl time.Duration) int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.rooms {
		if r.expired(ttl, now) {
			delete(s.rooms, id)
			removed++
		}
	}
	return removed
}
