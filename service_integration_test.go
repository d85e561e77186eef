package realtime_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/realtime"
	"github.com/tokmz/realtime/pkg/ratelimit"
	"github.com/tokmz/realtime/store/memory"
)

const gatewaySecret = "gateway-test-secret"

var requestSeq atomic.Int64

func nextRequestID() string {
	return fmt.Sprintf("req-%d", requestSeq.Add(1))
}

// newGatewayStore 预置两名互为好友的用户、一个文字频道与一个语音频道
func newGatewayStore() *memory.Store {
	st := memory.New()
	st.AddUser(&realtime.User{ID: "alice", Username: "alice", DisplayName: "Alice"})
	st.AddUser(&realtime.User{ID: "bob", Username: "bob", DisplayName: "Bob"})
	st.AddChannel(&realtime.Channel{ID: "general", Name: "general", Kind: realtime.ChannelText})
	st.AddChannel(&realtime.Channel{ID: "lobby", Name: "lobby", Kind: realtime.ChannelVoice})
	for _, ch := range []string{"general", "lobby"} {
		st.AddMember(ch, "alice")
		st.AddMember(ch, "bob")
	}
	st.AddModerator("general", "alice")
	st.SetFriends("alice", "bob")
	st.SetFriends("bob", "alice")
	return st
}

// gateway 跑在 httptest 上的完整服务实例
type gateway struct {
	svc *realtime.Service
	srv *httptest.Server
}

func newGateway(t *testing.T, store realtime.Store, opts ...realtime.Option) *gateway {
	t.Helper()

	base := []realtime.Option{
		realtime.WithStore(store),
		realtime.WithAuth(gatewaySecret, ""),
		realtime.WithServerID("srv-test"),
	}
	svc, err := realtime.NewService(append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", svc.HandleUpgrade)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &gateway{svc: svc, srv: srv}
}

func (g *gateway) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func mintGatewayToken(t *testing.T, userID string) string {
	t.Helper()
	claims := &realtime.Claims{
		Username: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(gatewaySecret))
	require.NoError(t, err)
	return token
}

// wireFrame 线上帧的通用形态，回执、推送与旁路错误共用
type wireFrame struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Code      string          `json:"code"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

func (f *wireFrame) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, v))
}

// wsClient 测试客户端。帧到达顺序取决于服务端的广播与回执交错，
// 等待目标帧时把途经的其他帧留在积压队列里供后续匹配。
type wsClient struct {
	t       *testing.T
	conn    *websocket.Conn
	backlog []*wireFrame
}

func (g *gateway) dial(t *testing.T, userID string) *wsClient {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(g.wsURL(mintGatewayToken(t, userID)), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	c := &wsClient{t: t, conn: conn}
	t.Cleanup(func() { conn.Close() })

	ready := c.awaitEvent(realtime.EventReady)
	var payload realtime.ReadyPayload
	ready.decode(t, &payload)
	require.Equal(t, userID, payload.UserID)
	require.Equal(t, "srv-test", payload.ServerID)
	require.NotEmpty(t, payload.ConnID)
	require.Positive(t, payload.HeartbeatInterval)
	return c
}

func (c *wsClient) readFrame() (*wireFrame, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return nil, err
	}
	var f wireFrame
	if err := c.conn.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *wsClient) await(desc string, match func(*wireFrame) bool) *wireFrame {
	c.t.Helper()
	for i, f := range c.backlog {
		if match(f) {
			c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
			return f
		}
	}
	for {
		f, err := c.readFrame()
		require.NoError(c.t, err, "等待 %s 超时", desc)
		if match(f) {
			return f
		}
		c.backlog = append(c.backlog, f)
	}
}

func (c *wsClient) awaitAck(requestID string) *wireFrame {
	c.t.Helper()
	return c.await("回执 "+requestID, func(f *wireFrame) bool {
		return f.Type == "ack" && f.RequestID == requestID
	})
}

func (c *wsClient) awaitEvent(event string) *wireFrame {
	c.t.Helper()
	return c.await("推送 "+event, func(f *wireFrame) bool {
		return f.Type == "event" && f.Event == event
	})
}

func (c *wsClient) awaitError() *wireFrame {
	c.t.Helper()
	return c.await("旁路错误", func(f *wireFrame) bool {
		return f.Type == "error"
	})
}

// awaitPresence 等待指定用户出现指定状态，途中其他状态变更会被跳过
func (c *wsClient) awaitPresence(userID, status string) *wireFrame {
	c.t.Helper()
	return c.await(fmt.Sprintf("%s 的 %s 状态", userID, status), func(f *wireFrame) bool {
		if f.Type != "event" || f.Event != realtime.EventPresenceUpdate {
			return false
		}
		var p struct {
			UserID string `json:"user_id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return false
		}
		return p.UserID == userID && p.Status == status
	})
}

func (c *wsClient) send(event, requestID string, data any) {
	c.t.Helper()
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		require.NoError(c.t, err)
		raw = payload
	}
	require.NoError(c.t, c.conn.WriteJSON(&realtime.Frame{
		Type:      realtime.FrameTypeEvent,
		Event:     event,
		RequestID: requestID,
		Data:      raw,
	}))
}

// command 发送命令并等待配对回执
func (c *wsClient) command(event string, data any) *wireFrame {
	c.t.Helper()
	id := nextRequestID()
	c.send(event, id, data)
	return c.awaitAck(id)
}

// join 加入频道并断言成功
func (c *wsClient) join(channelID string) *wireFrame {
	c.t.Helper()
	ack := c.command(realtime.EventChannelJoin, map[string]string{"channel_id": channelID})
	require.True(c.t, ack.Success, "加入频道失败: %s %s", ack.Code, ack.Error)
	return ack
}

func TestGatewayMessageFlow(t *testing.T) {
	st := newGatewayStore()
	gw := newGateway(t, st)

	alice := gw.dial(t, "alice")
	bob := gw.dial(t, "bob")
	alice.join("general")
	bob.join("general")

	// 发送：回执带消息 ID，频道成员收到完整记录，提及者收到通知
	ack := alice.command(realtime.EventMessageSend, map[string]any{
		"channel_id": "general",
		"content":    "  hello <b>world</b>  ",
		"mentions":   []string{"bob"},
	})
	require.True(t, ack.Success, "发送失败: %s %s", ack.Code, ack.Error)
	var sent struct {
		MessageID string `json:"message_id"`
	}
	ack.decode(t, &sent)
	require.NotEmpty(t, sent.MessageID)

	push := bob.awaitEvent(realtime.EventMessageNew)
	var msg struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		AuthorID  string `json:"author_id"`
		Content   string `json:"content"`
		Author    struct {
			Username    string `json:"username"`
			DisplayName string `json:"display_name"`
		} `json:"author"`
	}
	push.decode(t, &msg)
	assert.Equal(t, sent.MessageID, msg.ID)
	assert.Equal(t, "general", msg.ChannelID)
	assert.Equal(t, "alice", msg.AuthorID)
	assert.Equal(t, "hello <b>world</b>", msg.Content)
	assert.Equal(t, "Alice", msg.Author.DisplayName)

	mention := bob.awaitEvent(realtime.EventMention)
	var note struct {
		MessageID string `json:"message_id"`
		Preview   string `json:"preview"`
	}
	mention.decode(t, &note)
	assert.Equal(t, sent.MessageID, note.MessageID)
	assert.Contains(t, note.Preview, "hello")

	stored, err := st.GetMessage(context.Background(), sent.MessageID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hello <b>world</b>", stored.Content)
	require.Len(t, st.Notifications(), 1)
	assert.Equal(t, "bob", st.Notifications()[0].UserID)

	// 编辑：作者本人在时限内修改，成员收到编辑广播
	editAck := alice.command(realtime.EventMessageEdit, map[string]string{
		"message_id": sent.MessageID,
		"content":    "hello edited",
	})
	require.True(t, editAck.Success)
	edited := bob.awaitEvent(realtime.EventMessageEdited)
	var edit struct {
		MessageID string `json:"message_id"`
		Content   string `json:"content"`
		EditedAt  int64  `json:"edited_at"`
	}
	edited.decode(t, &edit)
	assert.Equal(t, sent.MessageID, edit.MessageID)
	assert.Equal(t, "hello edited", edit.Content)
	assert.Positive(t, edit.EditedAt)

	// 删除：作者本人删除，成员收到删除广播，存储里随之消失
	delAck := alice.command(realtime.EventMessageDelete, map[string]string{
		"message_id": sent.MessageID,
	})
	require.True(t, delAck.Success)
	deleted := bob.awaitEvent(realtime.EventMessageDeleted)
	var del struct {
		MessageID string `json:"message_id"`
		ChannelID string `json:"channel_id"`
	}
	deleted.decode(t, &del)
	assert.Equal(t, sent.MessageID, del.MessageID)
	assert.Equal(t, "general", del.ChannelID)

	gone, err := st.GetMessage(context.Background(), sent.MessageID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestGatewayMessageValidation(t *testing.T) {
	st := newGatewayStore()
	gw := newGateway(t, st)
	alice := gw.dial(t, "alice")
	alice.join("general")

	t.Run("非成员发送被拒", func(t *testing.T) {
		carol := gw.dial(t, "carol")
		ack := carol.command(realtime.EventMessageSend, map[string]string{
			"channel_id": "general",
			"content":    "let me in",
		})
		require.False(t, ack.Success)
		assert.Equal(t, "FORBIDDEN", ack.Code)
	})

	t.Run("超长内容被拒", func(t *testing.T) {
		ack := alice.command(realtime.EventMessageSend, map[string]string{
			"channel_id": "general",
			"content":    strings.Repeat("a", 2001),
		})
		require.False(t, ack.Success)
		assert.Equal(t, "INVALID_INPUT", ack.Code)
	})

	t.Run("净化后为空的内容被拒", func(t *testing.T) {
		ack := alice.command(realtime.EventMessageSend, map[string]string{
			"channel_id": "general",
			"content":    "<script>alert(1)</script>",
		})
		require.False(t, ack.Success)
		assert.Equal(t, "INVALID_INPUT", ack.Code)
	})

	t.Run("回复目标不存在", func(t *testing.T) {
		ack := alice.command(realtime.EventMessageSend, map[string]string{
			"channel_id":  "general",
			"content":     "replying into the void",
			"reply_to_id": "no-such-message",
		})
		require.False(t, ack.Success)
		assert.Equal(t, "NOT_FOUND", ack.Code)
	})

	t.Run("未知事件", func(t *testing.T) {
		ack := alice.command("message:unknown", map[string]string{"channel_id": "general"})
		require.False(t, ack.Success)
		assert.Equal(t, "INVALID_INPUT", ack.Code)
	})

	t.Run("格式错误的帧收到旁路错误且连接存活", func(t *testing.T) {
		require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		errFrame := alice.awaitError()
		assert.Equal(t, "INVALID_INPUT", errFrame.Code)

		ack := alice.command(realtime.EventTypingStop, map[string]string{"channel_id": "general"})
		assert.True(t, ack.Success)
	})

	// 以上用例全部以拒绝收场，消息持久层不应发生任何写入
	assert.Zero(t, st.Writes())
}

func TestGatewayEditWindow(t *testing.T) {
	gw := newGateway(t, newGatewayStore(), realtime.WithEditWindow(50*time.Millisecond))
	alice := gw.dial(t, "alice")
	alice.join("general")

	ack := alice.command(realtime.EventMessageSend, map[string]string{
		"channel_id": "general",
		"content":    "catch me if you can",
	})
	require.True(t, ack.Success)
	var sent struct {
		MessageID string `json:"message_id"`
	}
	ack.decode(t, &sent)

	time.Sleep(80 * time.Millisecond)

	editAck := alice.command(realtime.EventMessageEdit, map[string]string{
		"message_id": sent.MessageID,
		"content":    "too late",
	})
	require.False(t, editAck.Success)
	assert.Equal(t, "MESSAGE_TOO_OLD", editAck.Code)
}

func TestGatewayModeration(t *testing.T) {
	gw := newGateway(t, newGatewayStore())
	alice := gw.dial(t, "alice")
	bob := gw.dial(t, "bob")
	alice.join("general")
	bob.join("general")

	sendFrom := func(c *wsClient, content string) string {
		t.Helper()
		ack := c.command(realtime.EventMessageSend, map[string]string{
			"channel_id": "general",
			"content":    content,
		})
		require.True(t, ack.Success)
		var sent struct {
			MessageID string `json:"message_id"`
		}
		ack.decode(t, &sent)
		return sent.MessageID
	}

	t.Run("管理员可删他人消息", func(t *testing.T) {
		msgID := sendFrom(bob, "please moderate me")
		ack := alice.command(realtime.EventMessageDelete, map[string]string{"message_id": msgID})
		require.True(t, ack.Success, "删除失败: %s %s", ack.Code, ack.Error)

		deleted := bob.awaitEvent(realtime.EventMessageDeleted)
		var del struct {
			MessageID string `json:"message_id"`
		}
		deleted.decode(t, &del)
		assert.Equal(t, msgID, del.MessageID)
	})

	t.Run("普通成员不能删他人消息", func(t *testing.T) {
		msgID := sendFrom(alice, "untouchable")
		ack := bob.command(realtime.EventMessageDelete, map[string]string{"message_id": msgID})
		require.False(t, ack.Success)
		assert.Equal(t, "FORBIDDEN", ack.Code)
	})
}

func TestGatewayTyping(t *testing.T) {
	gw := newGateway(t, newGatewayStore(), realtime.WithTypingTTL(100*time.Millisecond))
	alice := gw.dial(t, "alice")
	bob := gw.dial(t, "bob")
	alice.join("general")
	bob.join("general")

	t.Run("输入指示广播给频道成员", func(t *testing.T) {
		ack := alice.command(realtime.EventTypingStart, map[string]string{"channel_id": "general"})
		require.True(t, ack.Success)

		push := bob.awaitEvent(realtime.EventTypingStart)
		var typing struct {
			UserID    string `json:"user_id"`
			ChannelID string `json:"channel_id"`
		}
		push.decode(t, &typing)
		assert.Equal(t, "alice", typing.UserID)
		assert.Equal(t, "general", typing.ChannelID)
	})

	t.Run("客户端不发停止也会到期强停", func(t *testing.T) {
		push := bob.awaitEvent(realtime.EventTypingStop)
		var typing struct {
			UserID string `json:"user_id"`
		}
		push.decode(t, &typing)
		assert.Equal(t, "alice", typing.UserID)
	})

	t.Run("显式停止立即广播", func(t *testing.T) {
		require.True(t, alice.command(realtime.EventTypingStart, map[string]string{"channel_id": "general"}).Success)
		bob.awaitEvent(realtime.EventTypingStart)

		require.True(t, alice.command(realtime.EventTypingStop, map[string]string{"channel_id": "general"}).Success)
		push := bob.awaitEvent(realtime.EventTypingStop)
		var typing struct {
			UserID string `json:"user_id"`
		}
		push.decode(t, &typing)
		assert.Equal(t, "alice", typing.UserID)
	})
}

func TestGatewayPresence(t *testing.T) {
	gw := newGateway(t, newGatewayStore(), realtime.WithOfflineGrace(50*time.Millisecond))
	alice := gw.dial(t, "alice")

	// 好友上线
	bob := gw.dial(t, "bob")
	alice.awaitPresence("bob", "online")

	// 好友改状态
	ack := bob.command(realtime.EventPresenceUpdate, map[string]string{
		"status":   "dnd",
		"activity": "在开会",
	})
	require.True(t, ack.Success)
	push := alice.awaitPresence("bob", "dnd")
	var p struct {
		Activity string `json:"activity"`
	}
	push.decode(t, &p)
	assert.Equal(t, "在开会", p.Activity)

	// 好友断开，宽限期满转离线
	bob.conn.Close()
	alice.awaitPresence("bob", "offline")
}

func TestGatewayVoice(t *testing.T) {
	gw := newGateway(t, newGatewayStore())
	alice := gw.dial(t, "alice")
	bob := gw.dial(t, "bob")
	alice.join("lobby")
	bob.join("lobby")

	type voicePush struct {
		Action string `json:"action"`
		State  struct {
			UserID    string `json:"user_id"`
			ChannelID string `json:"channel_id"`
			Muted     bool   `json:"muted"`
			Streaming bool   `json:"streaming"`
		} `json:"state"`
	}

	t.Run("加入语音", func(t *testing.T) {
		ack := alice.command(realtime.EventVoiceJoin, map[string]any{
			"channel_id": "lobby",
			"muted":      true,
		})
		require.True(t, ack.Success)

		var v voicePush
		bob.awaitEvent(realtime.EventVoiceState).decode(t, &v)
		assert.Equal(t, "join", v.Action)
		assert.Equal(t, "alice", v.State.UserID)
		assert.Equal(t, "lobby", v.State.ChannelID)
		assert.True(t, v.State.Muted)
	})

	t.Run("更新媒体标记", func(t *testing.T) {
		ack := alice.command(realtime.EventVoiceUpdate, map[string]any{
			"channel_id": "lobby",
			"streaming":  true,
		})
		require.True(t, ack.Success)

		var v voicePush
		bob.awaitEvent(realtime.EventVoiceState).decode(t, &v)
		assert.Equal(t, "update", v.Action)
		assert.True(t, v.State.Streaming)
		assert.False(t, v.State.Muted)
	})

	t.Run("离开语音", func(t *testing.T) {
		ack := alice.command(realtime.EventVoiceLeave, map[string]string{"channel_id": "lobby"})
		require.True(t, ack.Success)

		var v voicePush
		bob.awaitEvent(realtime.EventVoiceState).decode(t, &v)
		assert.Equal(t, "leave", v.Action)
		assert.Equal(t, "alice", v.State.UserID)
	})

	t.Run("未加入时离开仍然回执", func(t *testing.T) {
		ack := alice.command(realtime.EventVoiceLeave, map[string]string{"channel_id": "lobby"})
		assert.True(t, ack.Success)
	})
}

func TestGatewayChannelMembers(t *testing.T) {
	gw := newGateway(t, newGatewayStore())
	alice := gw.dial(t, "alice")
	bob := gw.dial(t, "bob")

	ack := alice.join("general")
	var joined struct {
		ChannelID   string `json:"channel_id"`
		MemberCount int64  `json:"member_count"`
	}
	ack.decode(t, &joined)
	assert.Equal(t, "general", joined.ChannelID)
	assert.EqualValues(t, 1, joined.MemberCount)

	// 自己的加入广播也会推给自己，先消费掉
	var count struct {
		ChannelID string `json:"channel_id"`
		Count     int64  `json:"count"`
	}
	alice.awaitEvent(realtime.EventMemberCount).decode(t, &count)
	assert.EqualValues(t, 1, count.Count)

	bob.join("general")
	alice.awaitEvent(realtime.EventMemberCount).decode(t, &count)
	assert.Equal(t, "general", count.ChannelID)
	assert.EqualValues(t, 2, count.Count)

	leaveAck := bob.command(realtime.EventChannelLeave, map[string]string{"channel_id": "general"})
	require.True(t, leaveAck.Success)
	alice.await("人数降为 1", func(f *wireFrame) bool {
		if f.Type != "event" || f.Event != realtime.EventMemberCount {
			return false
		}
		var c struct {
			Count int64 `json:"count"`
		}
		return json.Unmarshal(f.Data, &c) == nil && c.Count == 1
	})
}

// flakyStore 包装内存存储，特定频道的成员查询直接崩溃
type flakyStore struct {
	realtime.Store
}

func (s *flakyStore) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	if channelID == "haunted" {
		panic("membership lookup exploded")
	}
	return s.Store.IsMember(ctx, userID, channelID)
}

func TestGatewayPanicRecovery(t *testing.T) {
	st := newGatewayStore()
	st.AddChannel(&realtime.Channel{ID: "haunted", Name: "haunted", Kind: realtime.ChannelText})
	gw := newGateway(t, &flakyStore{Store: st})

	alice := gw.dial(t, "alice")

	// 处理器崩溃换成内部错误回执，连接不受牵连
	ack := alice.command(realtime.EventChannelJoin, map[string]string{"channel_id": "haunted"})
	require.False(t, ack.Success)
	assert.Equal(t, "INTERNAL_ERROR", ack.Code)

	alice.join("general")
	sendAck := alice.command(realtime.EventMessageSend, map[string]string{
		"channel_id": "general",
		"content":    "still alive",
	})
	assert.True(t, sendAck.Success)
}

func TestGatewayRateLimit(t *testing.T) {
	gw := newGateway(t, newGatewayStore(), realtime.WithRateLimit(&ratelimit.Config{
		Default: ratelimit.Rule{Limit: 100, Window: time.Minute},
		Rules: map[string]ratelimit.Rule{
			"message:send": {Limit: 1, Window: time.Minute},
		},
	}))
	alice := gw.dial(t, "alice")
	alice.join("general")

	first := alice.command(realtime.EventMessageSend, map[string]string{
		"channel_id": "general",
		"content":    "one",
	})
	require.True(t, first.Success)

	second := alice.command(realtime.EventMessageSend, map[string]string{
		"channel_id": "general",
		"content":    "two",
	})
	require.False(t, second.Success)
	assert.Equal(t, "RATE_LIMITED", second.Code)
}

func TestGatewayCapacity(t *testing.T) {
	gw := newGateway(t, newGatewayStore(), realtime.WithMaxConnections(1))
	gw.dial(t, "alice")

	// 超出容量的连接先完成升级，随后按协议收到稍后重试关闭帧
	conn, resp, err := websocket.DefaultDialer.Dial(gw.wsURL(mintGatewayToken(t, "bob")), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "期望 1013 关闭帧, got %v", err)
}

func TestGatewayHandshakeAuth(t *testing.T) {
	gw := newGateway(t, newGatewayStore())

	t.Run("缺少令牌拒绝升级", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(gw.wsURL(""), nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Nil(t, conn)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("伪造令牌拒绝升级", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &realtime.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "mallory",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString([]byte("wrong-secret"))
		require.NoError(t, err)

		conn, resp, dialErr := websocket.DefaultDialer.Dial(gw.wsURL(forged), nil)
		require.ErrorIs(t, dialErr, websocket.ErrBadHandshake)
		require.Nil(t, conn)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("头部携带令牌可以升级", func(t *testing.T) {
		header := http.Header{"Authorization": {"Bearer " + mintGatewayToken(t, "alice")}}
		conn, resp, err := websocket.DefaultDialer.Dial(gw.wsURL(""), header)
		require.NoError(t, err)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		conn.Close()
	})
}
