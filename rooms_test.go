package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomSet(t *testing.T) {
	t.Run("加入与重复加入", func(t *testing.T) {
		rooms := newRoomSet()
		c := stubConn("c1", "u1", 1)

		assert.True(t, rooms.join(c, "ch1"))
		assert.False(t, rooms.join(c, "ch1"), "重复加入应返回 false")
		assert.Equal(t, 1, rooms.memberCount("ch1"))
		assert.True(t, c.inRoom("ch1"))
	})

	t.Run("离开", func(t *testing.T) {
		rooms := newRoomSet()
		c := stubConn("c1", "u1", 1)
		rooms.join(c, "ch1")

		assert.True(t, rooms.leave(c, "ch1"))
		assert.False(t, rooms.leave(c, "ch1"))
		assert.False(t, rooms.leave(c, "missing"))
		assert.False(t, c.inRoom("ch1"))
	})

	t.Run("退出全部房间", func(t *testing.T) {
		rooms := newRoomSet()
		c := stubConn("c1", "u1", 1)
		rooms.join(c, "ch1")
		rooms.join(c, "ch2")

		left := rooms.leaveAll(c)
		assert.ElementsMatch(t, []string{"ch1", "ch2"}, left)
		assert.Zero(t, rooms.memberCount("ch1"))
		assert.Zero(t, rooms.memberCount("ch2"))
	})

	t.Run("多端用户去重统计", func(t *testing.T) {
		rooms := newRoomSet()
		rooms.join(stubConn("c1", "u1", 1), "ch1")
		rooms.join(stubConn("c2", "u1", 1), "ch1")
		rooms.join(stubConn("c3", "u2", 1), "ch1")

		assert.Equal(t, 3, rooms.memberCount("ch1"))
		assert.Equal(t, 2, rooms.userCount("ch1"))
		assert.ElementsMatch(t, []string{"u1", "u2"}, rooms.roomUsers("ch1"))
	})

	t.Run("用户是否还有其他连接在房间", func(t *testing.T) {
		rooms := newRoomSet()
		phone := stubConn("c-phone", "u1", 1)
		laptop := stubConn("c-laptop", "u1", 1)
		rooms.join(phone, "ch1")
		rooms.join(laptop, "ch1")

		assert.True(t, rooms.userInRoom("u1", "ch1", phone.ID))
		rooms.leave(laptop, "ch1")
		assert.False(t, rooms.userInRoom("u1", "ch1", phone.ID))
	})

	t.Run("广播跳过排除连接与慢连接", func(t *testing.T) {
		rooms := newRoomSet()
		sender := stubConn("c-sender", "u1", 4)
		healthy := stubConn("c-healthy", "u2", 4)
		slow := stubConn("c-slow", "u3", 1)
		rooms.join(sender, "ch1")
		rooms.join(healthy, "ch1")
		rooms.join(slow, "ch1")

		// 塞满慢连接的队列
		require.NoError(t, slow.SendBytes([]byte("backlog")))

		delivered, dropped := rooms.broadcast("ch1", []byte("hello"), sender.ID)
		assert.Equal(t, 1, delivered)
		assert.Equal(t, 1, dropped)

		select {
		case data := <-healthy.send:
			assert.Equal(t, "hello", string(data))
		default:
			t.Fatal("健康连接未收到广播")
		}
		select {
		case <-sender.send:
			t.Fatal("排除的连接不应收到广播")
		default:
		}
	})

	t.Run("不存在的房间广播无事发生", func(t *testing.T) {
		rooms := newRoomSet()
		delivered, dropped := rooms.broadcast("missing", []byte("x"), "")
		assert.Zero(t, delivered)
		assert.Zero(t, dropped)
	})

	t.Run("空置房间回收", func(t *testing.T) {
		rooms := newRoomSet()
		c := stubConn("c1", "u1", 1)
		rooms.join(c, "ch1")
		rooms.join(stubConn("c2", "u2", 1), "ch2")

		rooms.leave(c, "ch1")
		time.Sleep(20 * time.Millisecond)

		assert.Equal(t, 1, rooms.sweep(10*time.Millisecond))
		assert.Equal(t, 1, rooms.count(), "有人的房间不应被回收")
		assert.ElementsMatch(t, []string{"ch2"}, rooms.ids())
	})

	t.Run("重新有人的房间不回收", func(t *testing.T) {
		rooms := newRoomSet()
		c := stubConn("c1", "u1", 1)
		rooms.join(c, "ch1")
		rooms.leave(c, "ch1")
		time.Sleep(20 * time.Millisecond)

		// 回收前又有人进来，空置计时被清零
		rooms.join(stubConn("c2", "u2", 1), "ch1")
		assert.Zero(t, rooms.sweep(10*time.Millisecond))
	})
}
