package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/breaker"
	"github.com/tokmz/realtime/pkg/cache"
	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/pubsub"
	"github.com/tokmz/realtime/pkg/ratelimit"
	"github.com/tokmz/realtime/utils/datetime"
)

// eventDirect 跨实例定向投递的保留事件名
const eventDirect = "internal:direct"

// DirectPayload 定向投递信封。房间字段为空的信封携带它，
// 收到的实例把整帧转发给指定用户的本地连接。
type DirectPayload struct {
	Recipients []string        `json:"recipients"`
	Data       json.RawMessage `json:"data"`
}

// ReadyPayload 连接就绪推送
type ReadyPayload struct {
	ConnID            string `json:"conn_id"`
	UserID            string `json:"user_id"`
	ServerID          string `json:"server_id"`
	HeartbeatInterval int64  `json:"heartbeat_interval"`
	ServerTime        int64  `json:"server_time"`
}

// HealthStatus 运行状态汇总
type HealthStatus struct {
	Status      string             `json:"status"`
	ServerID    string             `json:"server_id"`
	Uptime      string             `json:"uptime"`
	Connections int                `json:"connections"`
	Users       int                `json:"users"`
	Rooms       int                `json:"rooms"`
	Presence    int                `json:"presence"`
	Typing      int                `json:"typing"`
	Voice       int                `json:"voice"`
	Timers      int                `json:"timers"`
	Bridge      *pubsub.Stats      `json:"bridge,omitempty"`
	Breakers    []breaker.Snapshot `json:"breakers"`
}

// Service 实时消息服务。持有连接池、房间注册表与各状态表，
// 业务处理器通过熔断网关访问存储与缓存，跨实例事件经桥接器转发。
type Service struct {
	config    *Config
	logger    logger.Logger
	metrics   Metrics
	store     Store
	cache     cache.Cache
	bridge    *pubsub.Bridge
	analytics AnalyticsSink

	limiter  ratelimit.Limiter
	breakers *breaker.Gateway
	authn    *authenticator
	upgrader *websocket.Upgrader

	pool     *pool
	rooms    *roomSet
	presence *presenceMap
	typing   *typingMap
	voice    *voiceMap
	timers   *timerRegistry

	handlers map[string]handlerFunc

	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	startedAt time.Time
}

// NewService 创建服务
func NewService(opts ...Option) (*Service, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Store == nil {
		return nil, ErrStoreRequired
	}
	if config.Auth.Secret == "" {
		return nil, ErrAuthRequired
	}
	if config.ServerID == "" {
		config.ServerID = uuid.NewString()
	}

	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = newBasicMetrics()
	}

	limiter, err := ratelimit.New(config.RateLimit)
	if err != nil {
		return nil, err
	}
	breakers, err := breaker.NewGateway(config.Breaker)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		config:    config,
		logger:    log,
		metrics:   metrics,
		store:     config.Store,
		cache:     config.Cache,
		bridge:    config.Bridge,
		analytics: config.Analytics,
		limiter:   limiter,
		breakers:  breakers,
		authn:     newAuthenticator(config.Auth),
		upgrader:  newUpgrader(config),
		pool:      newPool(config.MaxConnections),
		rooms:     newRoomSet(),
		presence:  newPresenceMap(),
		typing:    newTypingMap(),
		voice:     newVoiceMap(),
		timers:    newTimerRegistry(),
		cron:      cron.New(cron.WithSeconds()),
		ctx:       ctx,
		cancel:    cancel,
		startedAt: time.Now(),
	}
	s.registerHandlers()

	if err := s.registerMaintenance(); err != nil {
		cancel()
		limiter.Close()
		return nil, err
	}
	return s, nil
}

// registerMaintenance 登记后台维护任务
func (s *Service) registerMaintenance() error {
	jobs := []struct {
		every time.Duration
		fn    func()
	}{
		{s.config.ReapInterval, s.reapStale},
		{s.config.PresenceTTL / 2, s.refreshPresenceSets},
		{s.config.Room.SweepInterval, s.sweepRooms},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", job.every), job.fn); err != nil {
			return fmt.Errorf("realtime: register maintenance job: %w", err)
		}
	}
	return nil
}

// Start 启动跨实例订阅与维护任务
func (s *Service) Start() error {
	if s.bridge != nil {
		if err := s.bridge.Start(s.onEnvelope); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("实时服务启动",
		zap.String("server_id", s.config.ServerID),
		zap.Int("max_connections", s.config.MaxConnections))
	return nil
}

// Shutdown 停机。关闭存量连接、停掉维护任务并释放资源，
// 摘除升级路由由上层负责。
func (s *Service) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("实时服务停机", zap.Int("connections", s.pool.count()))

		cronCtx := s.cron.Stop()
		for _, c := range s.pool.snapshot() {
			c.Close()
		}
		s.presence.stopTimers()
		s.limiter.Close()
		s.cancel()

		if s.bridge != nil {
			if err := s.bridge.Close(); err != nil {
				s.logger.Warn("桥接器关闭失败", zap.Error(err))
			}
		}

		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	})
	return nil
}

// HandleUpgrade 握手入口。鉴权失败拒绝升级，容量满时
// 升级后立即按协议关闭。升级成功后阻塞到连接结束。
func (s *Service) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authn.Authenticate(r)
	if err != nil {
		s.metrics.ConnectionRejected("unauthorized")
		s.logger.Debug("握手鉴权失败",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写入 HTTP 错误响应
		s.metrics.ConnectionRejected("upgrade")
		return
	}

	s.hydrateIdentity(r.Context(), identity)

	c := newConn(s, sock, identity)
	if err := s.pool.add(c); err != nil {
		s.metrics.ConnectionRejected("capacity")
		s.logger.Warn("连接数达到上限",
			zap.String("user_id", identity.UserID),
			zap.Int("max", s.config.MaxConnections))
		deadline := time.Now().Add(time.Second)
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"), deadline)
		_ = sock.Close()
		return
	}

	s.metrics.ConnectionOpened()
	c.setState(StateActive)
	s.handleConnect(c)
	c.Run()
}

// hydrateIdentity 用存储里的档案补全令牌缺失的字段，查询尽力而为
func (s *Service) hydrateIdentity(ctx context.Context, identity *Identity) {
	if identity.Username != identity.UserID && identity.DisplayName != "" {
		return
	}
	user, err := storeQuery(ctx, s, func(ctx context.Context) (*User, error) {
		return s.store.GetUser(ctx, identity.UserID)
	})
	if err != nil || user == nil {
		return
	}
	if user.Username != "" && identity.Username == identity.UserID {
		identity.Username = user.Username
	}
	if identity.DisplayName == "" {
		identity.DisplayName = user.DisplayName
	}
	if identity.Avatar == "" {
		identity.Avatar = user.Avatar
	}
}

// handleConnect 连接建立后的收尾。取消离线宽限、补写在线状态、
// 推送就绪事件。重连时保留用户已选的状态。
func (s *Service) handleConnect(c *Conn) {
	ctx := logger.WithConnID(logger.WithUserID(c.ctx, c.UserID), c.ID)

	s.presence.cancelOffline(c.UserID)

	existing, ok := s.presence.get(c.UserID)
	if !ok || existing.Status == PresenceOffline {
		entry := &PresenceEntry{
			UserID:     c.UserID,
			Status:     PresenceOnline,
			UpdatedAt:  nowMillis(),
			receivedAt: time.Now(),
		}
		if s.presence.update(entry) {
			s.cachePresence(ctx, entry)
			s.fanoutPresence(ctx, entry)
		}
	}
	s.touchLastSeen(ctx, c.UserID)

	if err := c.sendPush(EventReady, &ReadyPayload{
		ConnID:            c.ID,
		UserID:            c.UserID,
		ServerID:          s.config.ServerID,
		HeartbeatInterval: s.config.HeartbeatInterval.Milliseconds(),
		ServerTime:        nowMillis(),
	}); err != nil {
		s.logger.WarnContext(ctx, "就绪推送失败", zap.Error(err))
	}

	s.logger.InfoContext(ctx, "连接建立",
		zap.String("remote", c.RemoteAddr()),
		zap.Int("online", s.pool.count()))
}

// handleDisconnect 连接关闭后的确定性清理。取消全部定时器、
// 停掉遗留的输入指示、退出房间并广播人数，最后一条连接断开时
// 再清语音状态并挂离线宽限定时器。
func (s *Service) handleDisconnect(c *Conn) {
	// 连接自身的上下文已取消，清理用独立上下文
	ctx := logger.WithConnID(logger.WithUserID(context.Background(), c.UserID), c.ID)

	s.timers.cancelAll(c.ID)

	for _, channelID := range s.typing.stopAllForConn(c.UserID, c.ID) {
		s.broadcastTyping(ctx, EventTypingStop, c.UserID, channelID, c.ID)
	}

	left := s.rooms.leaveAll(c)
	stillOnline := s.pool.remove(c)

	for _, roomID := range left {
		if !s.rooms.userInRoom(c.UserID, roomID, c.ID) {
			s.cacheLeave(ctx, c.UserID, roomID)
		}
		count := s.channelMemberCount(ctx, roomID)
		s.broadcast(ctx, roomID, EventMemberCount, &MemberCountPayload{
			ChannelID: roomID,
			Count:     count,
		}, "")
	}

	if !stillOnline {
		for _, state := range s.voice.leaveAll(c.UserID) {
			s.broadcast(ctx, state.ChannelID, EventVoiceState, &VoiceStatePayload{
				Action: voiceActionLeave,
				State:  state,
			}, "")
		}
		userID := c.UserID
		s.presence.scheduleOffline(userID, s.config.OfflineGrace, func() {
			s.finalizeOffline(userID)
		})
	}

	s.logger.InfoContext(ctx, "连接断开",
		zap.String("reason", c.closeReason),
		zap.Int("online", s.pool.count()))
}

// finalizeOffline 宽限期满仍未重连，正式转为离线并通知好友
func (s *Service) finalizeOffline(userID string) {
	ctx := logger.WithUserID(context.Background(), userID)

	entry := s.presence.markOffline(userID)
	s.clearPresenceCache(ctx, userID)
	s.touchLastSeen(ctx, userID)
	s.fanoutPresence(ctx, &entry)
}

// broadcast 向本实例房间成员推送事件并转发到其他实例。
// 投递永不阻塞，慢连接被跳过并计数。
func (s *Service) broadcast(ctx context.Context, roomID, event string, payload any, exclude string) {
	data, err := json.Marshal(NewPush(event, payload))
	if err != nil {
		s.logger.ErrorContext(ctx, "广播编码失败",
			zap.String("event", event),
			zap.Error(err))
		return
	}

	delivered, dropped := s.rooms.broadcast(roomID, data, exclude)
	s.metrics.BroadcastSent(event, delivered)
	if dropped > 0 {
		s.metrics.PushDropped(event, dropped)
		s.logger.WarnContext(ctx, "慢连接被跳过",
			zap.String("event", event),
			zap.String("room", roomID),
			zap.Int("dropped", dropped))
	}

	s.publish(ctx, roomID, event, payload)
}

// publish 跨实例转发，桥接器离线时进入积压队列，失败不回传
func (s *Service) publish(ctx context.Context, room, event string, payload any) {
	if s.bridge == nil {
		return
	}
	err := s.bridge.Publish(ctx, room, event, payload)
	switch {
	case err == nil:
	case errors.Is(err, pubsub.ErrQueued):
		s.logger.DebugContext(ctx, "跨实例广播进入积压队列", zap.String("event", event))
	default:
		s.logger.WarnContext(ctx, "跨实例广播失败",
			zap.String("event", event),
			zap.Error(err))
	}
}

// sendToUser 把数据投给该用户在本实例的全部连接
func (s *Service) sendToUser(userID string, data []byte) int {
	sent := 0
	for _, c := range s.pool.userConns(userID) {
		if c.trySendBytes(data) {
			sent++
		}
	}
	return sent
}

// publishDirect 跨实例定向投递，数据是已编码的完整推送帧
func (s *Service) publishDirect(ctx context.Context, recipients []string, data []byte) {
	if s.bridge == nil || len(recipients) == 0 {
		return
	}
	s.publish(ctx, "", eventDirect, &DirectPayload{Recipients: recipients, Data: data})
}

// onEnvelope 处理来自其他实例的信封。带房间的信封重放给本地
// 房间成员，定向信封拆开后逐个投给收件人。
func (s *Service) onEnvelope(ctx context.Context, env *pubsub.Envelope) {
	if env.Room == "" {
		if env.Event != eventDirect {
			return
		}
		var direct DirectPayload
		if err := json.Unmarshal(env.Payload, &direct); err != nil {
			s.logger.WarnContext(ctx, "定向信封解析失败",
				zap.String("origin", env.Origin),
				zap.Error(err))
			return
		}
		for _, userID := range direct.Recipients {
			s.sendToUser(userID, direct.Data)
		}
		return
	}

	data, err := json.Marshal(&Push{
		Type:      FrameTypeEvent,
		Event:     env.Event,
		Data:      env.Payload,
		Timestamp: env.Timestamp,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "跨实例事件编码失败", zap.Error(err))
		return
	}
	delivered, dropped := s.rooms.broadcast(env.Room, data, "")
	s.metrics.BroadcastSent(env.Event, delivered)
	if dropped > 0 {
		s.metrics.PushDropped(env.Event, dropped)
	}
}

// Health 运行状态汇总，桥接器掉线时整体降级
func (s *Service) Health() *HealthStatus {
	h := &HealthStatus{
		Status:      "ok",
		ServerID:    s.config.ServerID,
		Uptime:      datetime.FormatDuration(time.Since(s.startedAt)),
		Connections: s.pool.count(),
		Users:       s.pool.users(),
		Rooms:       s.rooms.count(),
		Presence:    s.presence.size(),
		Typing:      s.typing.size(),
		Voice:       s.voice.size(),
		Timers:      s.timers.count(),
		Breakers:    s.breakers.Status(),
	}
	if s.bridge != nil {
		stats := s.bridge.Stats()
		h.Bridge = &stats
		if !stats.Connected {
			h.Status = "degraded"
		}
	}
	return h
}

// Metrics 返回指标收集器，供上层暴露抓取端点
func (s *Service) Metrics() Metrics {
	return s.metrics
}

// reapStale 回收心跳超时仍未被读检测发现的失联连接
func (s *Service) reapStale() {
	cutoff := time.Now().Add(-2 * s.config.ClientTimeout)
	reaped := 0
	for _, c := range s.pool.snapshot() {
		if c.IdleSince().Before(cutoff) {
			c.close("stale")
			reaped++
		}
	}
	if reaped > 0 {
		s.logger.Warn("回收失联连接", zap.Int("count", reaped))
	}
}

// refreshPresenceSets 续期频道在线集合。把本实例的在线用户
// 重新写入集合，缓存故障恢复后数据自动回填。
func (s *Service) refreshPresenceSets() {
	if s.cache == nil {
		return
	}
	ctx := context.Background()
	for _, roomID := range s.rooms.ids() {
		users := s.rooms.roomUsers(roomID)
		if len(users) == 0 {
			continue
		}
		key := channelPresenceKey(roomID)
		if err := s.breakers.Execute(ctx, breakerCache, func(ctx context.Context) error {
			if err := s.cache.SAdd(ctx, key, users...); err != nil {
				return err
			}
			return s.cache.Expire(ctx, key, s.config.PresenceTTL)
		}); err != nil {
			s.logger.Debug("频道在线集合续期失败",
				zap.String("room", roomID),
				zap.Error(err))
			return
		}
	}
}

// sweepRooms 回收空置房间
func (s *Service) sweepRooms() {
	if removed := s.rooms.sweep(s.config.Room.EmptyRoomTTL); removed > 0 {
		s.logger.Debug("回收空置房间", zap.Int("count", removed))
	}
}
