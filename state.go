package realtime

import (
	"sync"
	"time"
)

// PresenceStatus 在线状态
type PresenceStatus string

const (
	// PresenceOnline 在线
	PresenceOnline PresenceStatus = "online"
	// PresenceIdle 离开
	PresenceIdle PresenceStatus = "idle"
	// PresenceDnd 勿扰
	PresenceDnd PresenceStatus = "dnd"
	// PresenceInvisible 隐身
	PresenceInvisible PresenceStatus = "invisible"
	// PresenceOffline 离线，只由服务端在宽限期满后写入
	PresenceOffline PresenceStatus = "offline"
)

// ValidPresenceStatus 客户端可设置的状态枚举检查
func ValidPresenceStatus(s string) bool {
	switch PresenceStatus(s) {
	case PresenceOnline, PresenceIdle, PresenceDnd, PresenceInvisible:
		return true
	default:
		return false
	}
}

// PresenceEntry 用户在线状态
type PresenceEntry struct {
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	Activity   string         `json:"activity,omitempty"`
	DeviceType string         `json:"device_type,omitempty"`
	UpdatedAt  int64          `json:"updated_at"`

	// receivedAt 服务端接收时间，并发更新时后到者胜
	receivedAt time.Time
}

// presenceMap 用户状态表。多端并发更新按服务端接收时间取后写，
// 离线宽限定时器按用户维护，重连即取消。
type presenceMap struct {
	mu      sync.Mutex
	entries map[string]*PresenceEntry
	offline map[string]*time.Timer
}

func newPresenceMap() *presenceMap {
	return &presenceMap{
		entries: make(map[string]*PresenceEntry),
		offline: make(map[string]*time.Timer),
	}
}

// update 写入状态，比已有记录更早的更新被丢弃
func (p *presenceMap) update(entry *PresenceEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.entries[entry.UserID]; ok && existing.receivedAt.After(entry.receivedAt) {
		return false
	}
	p.entries[entry.UserID] = entry
	return true
}

// get 返回状态副本
func (p *presenceMap) get(userID string) (PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userID]
	if !ok {
		return PresenceEntry{}, false
	}
	return *entry, true
}

// markOffline 把用户置为离线并返回广播用副本。
// 离线用户的记录随即移除，重连后从零写入。
func (p *presenceMap) markOffline(userID string) PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	entry, ok := p.entries[userID]
	if !ok {
		entry = &PresenceEntry{UserID: userID}
	} else {
		delete(p.entries, userID)
	}
	entry.Status = PresenceOffline
	entry.Activity = ""
	entry.UpdatedAt = now.UnixMilli()
	entry.receivedAt = now
	return *entry
}

// scheduleOffline 设置离线宽限定时器，已有定时器被重置
func (p *presenceMap) scheduleOffline(userID string, grace time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.offline[userID]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(grace, func() {
		p.mu.Lock()
		current, ok := p.offline[userID]
		if !ok || current != t {
			// 宽限期内用户重连过，放弃
			p.mu.Unlock()
			return
		}
		delete(p.offline, userID)
		p.mu.Unlock()
		fn()
	})
	p.offline[userID] = t
}

// cancelOffline 取消离线宽限定时器
func (p *presenceMap) cancelOffline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.offline[userID]
	if !ok {
		return false
	}
	t.Stop()
	delete(p.offline, userID)
	return true
}

// stopTimers 停止全部离线定时器，关机时调用
func (p *presenceMap) stopTimers() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for userID, t := range p.offline {
		t.Stop()
		delete(p.offline, userID)
	}
}

func (p *presenceMap) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// stateKey 用户在某频道内的状态键
type stateKey struct {
	userID    string
	channelID string
}

// typingState 输入指示器，connID 记录最近一次续期的连接
type typingState struct {
	connID    string
	startedAt time.Time
}

// typingMap 输入指示器表
type typingMap struct {
	mu      sync.Mutex
	entries map[stateKey]*typingState
}

func newTypingMap() *typingMap {
	return &typingMap{entries: make(map[stateKey]*typingState)}
}

// start 开始或续期输入指示。返回之前持有指示器的连接与是否新建。
func (t *typingMap) start(userID, channelID, connID string) (previousConn string, fresh bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := stateKey{userID: userID, channelID: channelID}
	if existing, ok := t.entries[key]; ok {
		previousConn = existing.connID
		existing.connID = connID
		existing.startedAt = time.Now()
		return previousConn, false
	}
	t.entries[key] = &typingState{connID: connID, startedAt: time.Now()}
	return "", true
}

// stop 停止输入指示，不存在时返回 false
func (t *typingMap) stop(userID, channelID string) (connID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := stateKey{userID: userID, channelID: channelID}
	existing, ok := t.entries[key]
	if !ok {
		return "", false
	}
	delete(t.entries, key)
	return existing.connID, true
}

// stopIfOwner 仅当指示器仍由该连接持有时停止。
// 到期回调用它避免误删已被其他连接接管的指示器。
func (t *typingMap) stopIfOwner(userID, channelID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := stateKey{userID: userID, channelID: channelID}
	existing, ok := t.entries[key]
	if !ok || existing.connID != connID {
		return false
	}
	delete(t.entries, key)
	return true
}

// stopAllForConn 停止该连接持有的全部指示器，返回涉及的频道
func (t *typingMap) stopAllForConn(userID, connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var channels []string
	for key, state := range t.entries {
		if key.userID == userID && state.connID == connID {
			delete(t.entries, key)
			channels = append(channels, key.channelID)
		}
	}
	return channels
}

func (t *typingMap) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// VoiceState 用户在语音频道内的状态
type VoiceState struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Muted     bool   `json:"muted"`
	Deafened  bool   `json:"deafened"`
	Streaming bool   `json:"streaming"`
	JoinedAt  int64  `json:"joined_at"`
}

// voiceMap 语音状态表
type voiceMap struct {
	mu      sync.Mutex
	entries map[stateKey]*VoiceState
}

func newVoiceMap() *voiceMap {
	return &voiceMap{entries: make(map[stateKey]*VoiceState)}
}

// join 加入语音频道。已在频道内时只更新媒体标记并返回 false。
func (v *voiceMap) join(state *VoiceState) (VoiceState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := stateKey{userID: state.UserID, channelID: state.ChannelID}
	if existing, ok := v.entries[key]; ok {
		existing.Muted = state.Muted
		existing.Deafened = state.Deafened
		existing.Streaming = state.Streaming
		return *existing, false
	}
	state.JoinedAt = time.Now().UnixMilli()
	v.entries[key] = state
	return *state, true
}

// update 更新媒体标记，未加入时返回 false
func (v *voiceMap) update(userID, channelID string, muted, deafened, streaming bool) (VoiceState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := stateKey{userID: userID, channelID: channelID}
	existing, ok := v.entries[key]
	if !ok {
		return VoiceState{}, false
	}
	existing.Muted = muted
	existing.Deafened = deafened
	existing.Streaming = streaming
	return *existing, true
}

// leave 离开语音频道，未加入时返回 false
func (v *voiceMap) leave(userID, channelID string) (VoiceState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := stateKey{userID: userID, channelID: channelID}
	existing, ok := v.entries[key]
	if !ok {
		return VoiceState{}, false
	}
	delete(v.entries, key)
	return *existing, true
}

// leaveAll 离开该用户的全部语音频道，返回被移除的状态
func (v *voiceMap) leaveAll(userID string) []VoiceState {
	v.mu.Lock()
	defer v.mu.Unlock()

	var removed []VoiceState
	for key, state := range v.entries {
		if key.userID == userID {
			removed = append(removed, *state)
			delete(v.entries, key)
		}
	}
	return removed
}

func (v *voiceMap) size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// timerRegistry 连接级清理定时器注册表。每个定时器按连接与名称
// 登记，断开连接时一次性取消，保证清理的确定性。
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]map[string]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]map[string]*time.Timer)}
}

// schedule 登记定时器，同名定时器被重置
func (r *timerRegistry) schedule(connID, name string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.timers[connID]
	if conns == nil {
		conns = make(map[string]*time.Timer)
		r.timers[connID] = conns
	}
	if old, ok := conns[name]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		current, ok := r.timers[connID][name]
		if !ok || current != t {
			// 已被取消或重设
			r.mu.Unlock()
			return
		}
		delete(r.timers[connID], name)
		if len(r.timers[connID]) == 0 {
			delete(r.timers, connID)
		}
		r.mu.Unlock()
		fn()
	})
	conns[name] = t
}

// cancel 取消指定定时器
func (r *timerRegistry) cancel(connID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.timers[connID]
	if !ok {
		return false
	}
	t, ok := conns[name]
	if !ok {
		return false
	}
	t.Stop()
	delete(conns, name)
	if len(conns) == 0 {
		delete(r.timers, connID)
	}
	return true
}

// cancelAll 取消连接的全部定时器，返回取消数量
func (r *timerRegistry) cancelAll(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.timers[connID]
	if !ok {
		return 0
	}
	cancelled := len(conns)
	for _, t := range conns {
		t.Stop()
	}
	delete(r.timers, connID)
	return cancelled
}

// count 当前活跃定时器总数
func (r *timerRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, conns := range r.timers {
		total += len(conns)
	}
	return total
}
