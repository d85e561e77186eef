package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ConnState 连接生命周期状态
type ConnState int32

const (
	// StateConnecting 握手中
	StateConnecting ConnState = iota
	// StateAuthenticated 鉴权通过，尚未注册进连接池
	StateAuthenticated
	// StateActive 可收发事件
	StateActive
	// StateDisconnecting 清理中
	StateDisconnecting
	// StateClosed 已关闭
	StateClosed
)

// String 返回状态名称
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn 一条客户端连接
type Conn struct {
	ID string
	Identity

	svc  *Service
	sock *websocket.Conn

	// 发送队列，回执与错误通知走高优先级队列
	send     chan []byte
	sendHigh chan []byte

	// rooms 本连接加入的房间，roomID -> bool
	rooms sync.Map

	connectedAt  time.Time
	lastPong     atomic.Int64
	lastActivity atomic.Int64

	// flood 单连接帧速率限制
	flood *rate.Limiter

	state         atomic.Int32
	invalidFrames atomic.Int32

	ctx         context.Context
	cancel      context.CancelFunc
	closed      atomic.Bool
	closeOnce   sync.Once
	closeReason string
	writeDone   chan struct{}
}

// newConn 创建连接，调用方已完成握手鉴权
func newConn(svc *Service, sock *websocket.Conn, identity *Identity) *Conn {
	ctx, cancel := context.WithCancel(svc.ctx)

	c := &Conn{
		ID:          newID(),
		Identity:    *identity,
		svc:         svc,
		sock:        sock,
		send:        make(chan []byte, svc.config.SendQueueSize),
		sendHigh:    make(chan []byte, svc.config.AckQueueSize),
		connectedAt: time.Now(),
		flood:       rate.NewLimiter(rate.Limit(svc.config.FloodRate), svc.config.FloodBurst),
		ctx:         ctx,
		cancel:      cancel,
		writeDone:   make(chan struct{}),
	}
	c.state.Store(int32(StateAuthenticated))

	now := time.Now()
	c.lastPong.Store(now.Unix())
	c.lastActivity.Store(now.UnixMilli())
	return c
}

// State 返回当前生命周期状态
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// touch 记录活动时间
func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixMilli())
}

// IdleSince 最近一次心跳应答时间
func (c *Conn) IdleSince() time.Time {
	return time.Unix(c.lastPong.Load(), 0)
}

// Run 启动读写泵，任一退出即关闭连接，调用方阻塞到连接结束
func (c *Conn) Run() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.readPump()
	}()

	go func() {
		defer wg.Done()
		c.writePump()
	}()

	wg.Wait()
	c.close("client")
}

// readPump 读取并分发入站帧
func (c *Conn) readPump() {
	defer c.close("client")

	config := c.svc.config
	c.sock.SetReadLimit(config.MaxMessageSize)
	if err := c.sock.SetReadDeadline(time.Now().Add(config.ClientTimeout)); err != nil {
		return
	}
	c.sock.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().Unix())
		return c.sock.SetReadDeadline(time.Now().Add(config.ClientTimeout))
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, data, err := c.sock.ReadMessage()
			if err != nil {
				return
			}

			// 速率超限的帧直接丢弃，也计入无效帧
			if !c.flood.Allow() {
				if c.countInvalid() {
					return
				}
				continue
			}

			var frame Frame
			if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
				c.svc.metrics.InvalidFrame()
				if c.countInvalid() {
					return
				}
				c.sendErrorEvent("", errInvalidFrame)
				continue
			}

			c.invalidFrames.Store(0)
			c.svc.dispatch(c, &frame)
		}
	}
}

// countInvalid 累计无效帧，达到阈值返回 true 并由调用方断开
func (c *Conn) countInvalid() bool {
	return c.invalidFrames.Add(1) > c.svc.config.MaxInvalidFrames
}

// writePump 写出队列消息并维持心跳
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.svc.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
		close(c.writeDone)
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.sendHigh:
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeMessage(message); err != nil {
				return
			}

		case message, ok := <-c.send:
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeMessage(message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.sock.SetWriteDeadline(time.Now().Add(c.svc.config.WriteTimeout)); err != nil {
				return
			}
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeMessage(message []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.svc.config.WriteTimeout)); err != nil {
		return err
	}
	return c.sock.WriteMessage(websocket.TextMessage, message)
}

// SendBytes 投递原始数据（非阻塞）
func (c *Conn) SendBytes(data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// trySendBytes 投递原始数据，丢弃时返回 false
func (c *Conn) trySendBytes(data []byte) bool {
	return c.SendBytes(data) == nil
}

// sendBytesHigh 高优先级投递，用于回执与错误通知
func (c *Conn) sendBytesHigh(data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	select {
	case c.sendHigh <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// sendJSON 序列化并投递
func (c *Conn) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendBytes(data)
}

// sendJSONHigh 序列化并高优先级投递
func (c *Conn) sendJSONHigh(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.sendBytesHigh(data)
}

// sendAck 发送成功回执，未携带 request_id 时不发送
func (c *Conn) sendAck(f *Frame, data any) {
	if f.RequestID == "" {
		return
	}
	_ = c.sendJSONHigh(NewAck(f.RequestID, data))
}

// sendAckError 发送失败回执，未携带 request_id 时退化为旁路错误通知
func (c *Conn) sendAckError(f *Frame, err error) {
	if f.RequestID == "" {
		_ = c.sendJSONHigh(NewErrorEvent(f.Event, err))
		return
	}
	_ = c.sendJSONHigh(NewErrorAck(f.RequestID, err))
}

// sendErrorEvent 发送旁路错误通知
func (c *Conn) sendErrorEvent(event string, err error) {
	_ = c.sendJSONHigh(NewErrorEvent(event, err))
}

// sendPush 发送服务端推送
func (c *Conn) sendPush(event string, data any) error {
	return c.sendJSON(NewPush(event, data))
}

// trackRoom 记录已加入的房间
func (c *Conn) trackRoom(roomID string) {
	c.rooms.Store(roomID, true)
}

// untrackRoom 移除房间记录
func (c *Conn) untrackRoom(roomID string) {
	c.rooms.Delete(roomID)
}

// roomIDs 返回本连接加入的全部房间
func (c *Conn) roomIDs() []string {
	out := make([]string, 0, 8)
	c.rooms.Range(func(key, _ any) bool {
		if roomID, ok := key.(string); ok {
			out = append(out, roomID)
		}
		return true
	})
	return out
}

// inRoom 是否已加入房间
func (c *Conn) inRoom(roomID string) bool {
	_, ok := c.rooms.Load(roomID)
	return ok
}

// Close 关闭连接
func (c *Conn) Close() {
	c.close("server")
}

// close 关闭连接并触发断开清理，只有首次调用生效
func (c *Conn) close(reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeReason = reason
		c.setState(StateDisconnecting)
		c.cancel()

		// 断开清理：离开房间、取消定时器、广播离线
		c.svc.handleDisconnect(c)

		// 关闭底层连接，writePump 随之退出
		c.sock.Close()

		// 等 writePump 退出后再关闭通道，超时兜底防止永久阻塞
		go func() {
			select {
			case <-c.writeDone:
			case <-time.After(5 * time.Second):
			}
			close(c.send)
			close(c.sendHigh)
		}()

		c.setState(StateClosed)
		c.svc.metrics.ConnectionClosed(reason)
	})
}

// IsClosed 是否已关闭
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// RemoteAddr 远端地址
func (c *Conn) RemoteAddr() string {
	return c.sock.RemoteAddr().String()
}
