package realtime

import "sync"

// pool 连接池。主索引按连接标识，辅助索引按用户标识，
// 两个索引在同一把锁下更新，支持同一用户多端在线。
type pool struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
	max    int
}

func newPool(max int) *pool {
	return &pool{
		conns:  make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
		max:    max,
	}
}

// add 注册连接，达到上限返回 ErrTooManyConnections
func (p *pool) add(c *Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.conns) >= p.max {
		return ErrTooManyConnections
	}
	p.conns[c.ID] = c

	user := p.byUser[c.UserID]
	if user == nil {
		user = make(map[string]*Conn, 1)
		p.byUser[c.UserID] = user
	}
	user[c.ID] = c
	return nil
}

// remove 注销连接，返回该用户是否还有其他在线连接
func (p *pool) remove(c *Conn) (stillOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.conns, c.ID)
	if user, ok := p.byUser[c.UserID]; ok {
		delete(user, c.ID)
		if len(user) == 0 {
			delete(p.byUser, c.UserID)
			return false
		}
		return true
	}
	return false
}

// get 按连接标识查找
func (p *pool) get(connID string) (*Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[connID]
	return c, ok
}

// userConns 返回某用户的全部在线连接
func (p *pool) userConns(userID string) []*Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	user := p.byUser[userID]
	if len(user) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(user))
	for _, c := range user {
		out = append(out, c)
	}
	return out
}

// userOnline 某用户是否有在线连接
func (p *pool) userOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

// count 当前连接数
func (p *pool) count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// users 当前在线用户数，多端登录只计一次
func (p *pool) users() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

// snapshot 返回全部连接的副本，遍历时不持锁
func (p *pool) snapshot() []*Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c)
	}
	return out
}
