package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func presenceAt(userID string, status PresenceStatus, at time.Time) *PresenceEntry {
	return &PresenceEntry{
		UserID:     userID,
		Status:     status,
		UpdatedAt:  at.UnixMilli(),
		receivedAt: at,
	}
}

func TestPresenceMap(t *testing.T) {
	t.Run("并发更新后写优先", func(t *testing.T) {
		p := newPresenceMap()
		now := time.Now()

		assert.True(t, p.update(presenceAt("u1", PresenceOnline, now)))
		assert.True(t, p.update(presenceAt("u1", PresenceDnd, now.Add(time.Second))))

		// 迟到的旧更新被丢弃
		assert.False(t, p.update(presenceAt("u1", PresenceIdle, now.Add(-time.Second))))

		entry, ok := p.get("u1")
		require.True(t, ok)
		assert.Equal(t, PresenceDnd, entry.Status)
	})

	t.Run("离线移除记录", func(t *testing.T) {
		p := newPresenceMap()
		require.True(t, p.update(presenceAt("u1", PresenceDnd, time.Now())))

		entry := p.markOffline("u1")
		assert.Equal(t, PresenceOffline, entry.Status)
		assert.Empty(t, entry.Activity)

		_, ok := p.get("u1")
		assert.False(t, ok, "离线后记录应被移除")
		assert.Zero(t, p.size())
	})

	t.Run("未知用户直接标记离线", func(t *testing.T) {
		p := newPresenceMap()
		entry := p.markOffline("ghost")
		assert.Equal(t, "ghost", entry.UserID)
		assert.Equal(t, PresenceOffline, entry.Status)
	})

	t.Run("宽限定时器到期触发", func(t *testing.T) {
		p := newPresenceMap()
		fired := make(chan struct{})
		p.scheduleOffline("u1", 10*time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("宽限定时器未触发")
		}
	})

	t.Run("重连取消宽限定时器", func(t *testing.T) {
		p := newPresenceMap()
		var mu sync.Mutex
		fired := false
		p.scheduleOffline("u1", 20*time.Millisecond, func() {
			mu.Lock()
			fired = true
			mu.Unlock()
		})

		assert.True(t, p.cancelOffline("u1"))
		assert.False(t, p.cancelOffline("u1"), "重复取消应返回 false")

		time.Sleep(60 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		assert.False(t, fired, "已取消的定时器不应触发")
	})

	t.Run("重设宽限定时器只触发最后一次", func(t *testing.T) {
		p := newPresenceMap()
		first := make(chan struct{}, 1)
		second := make(chan struct{}, 1)
		p.scheduleOffline("u1", 20*time.Millisecond, func() { first <- struct{}{} })
		p.scheduleOffline("u1", 40*time.Millisecond, func() { second <- struct{}{} })

		select {
		case <-second:
		case <-time.After(time.Second):
			t.Fatal("重设后的定时器未触发")
		}
		select {
		case <-first:
			t.Fatal("被重设的定时器不应触发")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestValidPresenceStatus(t *testing.T) {
	for _, status := range []string{"online", "idle", "dnd", "invisible"} {
		assert.True(t, ValidPresenceStatus(status), status)
	}
	// offline 只能由服务端写入
	assert.False(t, ValidPresenceStatus("offline"))
	assert.False(t, ValidPresenceStatus("busy"))
	assert.False(t, ValidPresenceStatus(""))
}

func TestTypingMap(t *testing.T) {
	t.Run("开始与续期", func(t *testing.T) {
		tm := newTypingMap()

		prev, fresh := tm.start("u1", "ch1", "conn-a")
		assert.True(t, fresh)
		assert.Empty(t, prev)

		// 同一连接续期不算新指示
		prev, fresh = tm.start("u1", "ch1", "conn-a")
		assert.False(t, fresh)
		assert.Equal(t, "conn-a", prev)

		// 换设备接管，返回旧连接供调用方取消其定时器
		prev, fresh = tm.start("u1", "ch1", "conn-b")
		assert.False(t, fresh)
		assert.Equal(t, "conn-a", prev)
	})

	t.Run("停止", func(t *testing.T) {
		tm := newTypingMap()
		tm.start("u1", "ch1", "conn-a")

		connID, ok := tm.stop("u1", "ch1")
		assert.True(t, ok)
		assert.Equal(t, "conn-a", connID)

		_, ok = tm.stop("u1", "ch1")
		assert.False(t, ok, "重复停止应返回 false")
	})

	t.Run("到期回调只清理属主连接", func(t *testing.T) {
		tm := newTypingMap()
		tm.start("u1", "ch1", "conn-a")
		tm.start("u1", "ch1", "conn-b")

		// conn-a 的到期回调晚到，指示器已被 conn-b 接管
		assert.False(t, tm.stopIfOwner("u1", "ch1", "conn-a"))
		assert.Equal(t, 1, tm.size())

		assert.True(t, tm.stopIfOwner("u1", "ch1", "conn-b"))
		assert.Zero(t, tm.size())
	})

	t.Run("断开清理连接持有的全部指示器", func(t *testing.T) {
		tm := newTypingMap()
		tm.start("u1", "ch1", "conn-a")
		tm.start("u1", "ch2", "conn-a")
		tm.start("u1", "ch3", "conn-b")
		tm.start("u2", "ch1", "conn-c")

		channels := tm.stopAllForConn("u1", "conn-a")
		assert.ElementsMatch(t, []string{"ch1", "ch2"}, channels)
		assert.Equal(t, 2, tm.size())
	})
}

func TestVoiceMap(t *testing.T) {
	t.Run("加入与重复加入", func(t *testing.T) {
		vm := newVoiceMap()

		state, fresh := vm.join(&VoiceState{UserID: "u1", ChannelID: "voice1", Muted: true})
		assert.True(t, fresh)
		assert.True(t, state.Muted)
		assert.NotZero(t, state.JoinedAt)

		// 重复加入退化为媒体标记更新，入场时间保持不变
		again, fresh := vm.join(&VoiceState{UserID: "u1", ChannelID: "voice1", Streaming: true})
		assert.False(t, fresh)
		assert.False(t, again.Muted)
		assert.True(t, again.Streaming)
		assert.Equal(t, state.JoinedAt, again.JoinedAt)
	})

	t.Run("未加入时更新失败", func(t *testing.T) {
		vm := newVoiceMap()
		_, ok := vm.update("u1", "voice1", true, false, false)
		assert.False(t, ok)
	})

	t.Run("离开", func(t *testing.T) {
		vm := newVoiceMap()
		vm.join(&VoiceState{UserID: "u1", ChannelID: "voice1"})

		state, ok := vm.leave("u1", "voice1")
		assert.True(t, ok)
		assert.Equal(t, "voice1", state.ChannelID)

		_, ok = vm.leave("u1", "voice1")
		assert.False(t, ok, "重复离开应返回 false")
	})

	t.Run("清理用户的全部语音状态", func(t *testing.T) {
		vm := newVoiceMap()
		vm.join(&VoiceState{UserID: "u1", ChannelID: "voice1"})
		vm.join(&VoiceState{UserID: "u1", ChannelID: "voice2"})
		vm.join(&VoiceState{UserID: "u2", ChannelID: "voice1"})

		removed := vm.leaveAll("u1")
		assert.Len(t, removed, 2)
		assert.Equal(t, 1, vm.size())
	})
}

func TestTimerRegistry(t *testing.T) {
	t.Run("到期触发并自动清账", func(t *testing.T) {
		r := newTimerRegistry()
		fired := make(chan struct{})
		r.schedule("conn-a", "typing:ch1", 10*time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("定时器未触发")
		}
		assert.Eventually(t, func() bool { return r.count() == 0 },
			time.Second, 5*time.Millisecond, "触发后的定时器应从注册表移除")
	})

	t.Run("取消", func(t *testing.T) {
		r := newTimerRegistry()
		r.schedule("conn-a", "typing:ch1", time.Hour, func() {})

		assert.True(t, r.cancel("conn-a", "typing:ch1"))
		assert.False(t, r.cancel("conn-a", "typing:ch1"))
		assert.Zero(t, r.count())
	})

	t.Run("同名重设只保留最后一个", func(t *testing.T) {
		r := newTimerRegistry()
		first := make(chan struct{}, 1)
		second := make(chan struct{}, 1)
		r.schedule("conn-a", "typing:ch1", 20*time.Millisecond, func() { first <- struct{}{} })
		r.schedule("conn-a", "typing:ch1", 40*time.Millisecond, func() { second <- struct{}{} })
		assert.Equal(t, 1, r.count())

		select {
		case <-second:
		case <-time.After(time.Second):
			t.Fatal("重设后的定时器未触发")
		}
		select {
		case <-first:
			t.Fatal("被重设的定时器不应触发")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("断开一次性取消全部", func(t *testing.T) {
		r := newTimerRegistry()
		r.schedule("conn-a", "typing:ch1", time.Hour, func() {})
		r.schedule("conn-a", "typing:ch2", time.Hour, func() {})
		r.schedule("conn-b", "typing:ch1", time.Hour, func() {})

		assert.Equal(t, 2, r.cancelAll("conn-a"))
		assert.Equal(t, 1, r.count())
		assert.Zero(t, r.cancelAll("conn-a"))
	})
}
