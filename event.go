package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tokmz/realtime/pkg/errors"
)

// 客户端命令事件
const (
	// EventMessageSend 发送消息
	EventMessageSend = "message:send"
	// EventMessageEdit 编辑消息
	EventMessageEdit = "message:edit"
	// EventMessageDelete 删除消息
	EventMessageDelete = "message:delete"
	// EventTypingStart 开始输入
	EventTypingStart = "typing:start"
	// EventTypingStop 停止输入
	EventTypingStop = "typing:stop"
	// EventChannelJoin 加入频道
	EventChannelJoin = "channel:join"
	// EventChannelLeave 离开频道
	EventChannelLeave = "channel:leave"
	// EventPresenceUpdate 更新在线状态
	EventPresenceUpdate = "presence:update"
	// EventVoiceJoin 加入语音
	EventVoiceJoin = "voice:join"
	// EventVoiceLeave 离开语音
	EventVoiceLeave = "voice:leave"
	// EventVoiceUpdate 更新语音状态（静音、耳聋、推流）
	EventVoiceUpdate = "voice:update"
)

// 服务端推送事件。typing 与 presence 的广播复用命令事件名。
const (
	// EventMessageNew 新消息
	EventMessageNew = "message:new"
	// EventMessageEdited 消息已编辑
	EventMessageEdited = "message:edited"
	// EventMessageDeleted 消息已删除
	EventMessageDeleted = "message:deleted"
	// EventMemberCount 频道在线人数变更
	EventMemberCount = "channel:members"
	// EventVoiceState 语音状态变更
	EventVoiceState = "voice:state"
	// EventMention 被提及通知
	EventMention = "notification:mention"
	// EventReady 连接就绪，鉴权通过后的首个推送
	EventReady = "connection:ready"
)

// FrameType 帧类型
type FrameType string

const (
	// FrameTypeEvent 事件帧，客户端命令与服务端推送共用
	FrameTypeEvent FrameType = "event"
	// FrameTypeAck 确认回执，与携带 request_id 的命令配对
	FrameTypeAck FrameType = "ack"
	// FrameTypeError 旁路错误通知
	FrameTypeError FrameType = "error"
)

// Frame 入站事件帧
type Frame struct {
	// Type 帧类型，客户端命令恒为 event
	Type FrameType `json:"type"`

	// Event 事件名称（如 "message:send"）
	Event string `json:"event"`

	// RequestID 请求 ID，客户端要求回执时携带
	RequestID string `json:"request_id,omitempty"`

	// Data 事件载荷（JSON）
	Data json.RawMessage `json:"data,omitempty"`

	// Timestamp 客户端时间戳（毫秒），仅供诊断，服务端不信任
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Unmarshal 解析帧载荷
func (f *Frame) Unmarshal(v any) error {
	return json.Unmarshal(f.Data, v)
}

// Push 服务端推送帧
type Push struct {
	// Type 固定为 event
	Type FrameType `json:"type"`

	// Event 事件名称
	Event string `json:"event"`

	// Data 事件载荷
	Data any `json:"data,omitempty"`

	// Timestamp 服务端时间戳（毫秒）
	Timestamp int64 `json:"timestamp"`
}

// Ack 确认回执
type Ack struct {
	// Type 固定为 ack
	Type FrameType `json:"type"`

	// RequestID 对应的请求 ID
	RequestID string `json:"request_id"`

	// Success 操作是否成功
	Success bool `json:"success"`

	// Code 失败时的错误码
	Code string `json:"code,omitempty"`

	// Error 失败时的错误信息
	Error string `json:"error,omitempty"`

	// Data 成功时的附加数据
	Data any `json:"data,omitempty"`

	// Timestamp 服务端时间戳（毫秒）
	Timestamp int64 `json:"timestamp"`
}

// ErrorEvent 旁路错误通知，发给未携带 request_id 的失败命令
type ErrorEvent struct {
	// Type 固定为 error
	Type FrameType `json:"type"`

	// Event 触发错误的事件名称
	Event string `json:"event,omitempty"`

	// Code 错误码
	Code string `json:"code"`

	// Message 错误信息
	Message string `json:"message"`

	// Timestamp 服务端时间戳（毫秒）
	Timestamp int64 `json:"timestamp"`
}

// NewPush 创建推送帧
func NewPush(event string, data any) *Push {
	return &Push{
		Type:      FrameTypeEvent,
		Event:     event,
		Data:      data,
		Timestamp: nowMillis(),
	}
}

// NewAck 创建成功回执
func NewAck(requestID string, data any) *Ack {
	return &Ack{
		Type:      FrameTypeAck,
		RequestID: requestID,
		Success:   true,
		Data:      data,
		Timestamp: nowMillis(),
	}
}

// NewErrorAck 创建失败回执，错误码与信息取自错误链上的业务错误
func NewErrorAck(requestID string, err error) *Ack {
	return &Ack{
		Type:      FrameTypeAck,
		RequestID: requestID,
		Success:   false,
		Code:      errors.CodeOf(err),
		Error:     errors.MessageOf(err),
		Timestamp: nowMillis(),
	}
}

// NewErrorEvent 创建旁路错误通知
func NewErrorEvent(event string, err error) *ErrorEvent {
	return &ErrorEvent{
		Type:      FrameTypeError,
		Event:     event,
		Code:      errors.CodeOf(err),
		Message:   errors.MessageOf(err),
		Timestamp: nowMillis(),
	}
}

// nowMillis 当前服务端时间戳（毫秒）
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// newID 生成连接与消息的唯一标识
func newID() string {
	return uuid.NewString()
}
