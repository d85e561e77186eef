package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile 写入临时配置文件并返回路径
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "realtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9000"
  max_connections: 500
log:
  level: debug
`)

	c := New(WithConfigFile(path))
	require.NoError(t, c.Load())

	assert.Equal(t, ":9000", c.GetString("server.addr"))
	assert.Equal(t, 500, c.GetInt("server.max_connections"))
	assert.Equal(t, "debug", c.GetString("log.level"))
	assert.True(t, c.IsSet("server.addr"))
	assert.False(t, c.IsSet("server.bogus"))
}

func TestLoadMissingFile(t *testing.T) {
	c := New(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml")))
	err := c.Load()
	require.Error(t, err)
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeConfigFile(t, `server: {addr: ":9000"}`)

	c := New(
		WithConfigFile(path),
		WithDefaults(map[string]any{"server.heartbeat_interval": "45s"}),
	)
	require.NoError(t, c.Load())

	assert.Equal(t, 45*time.Second, c.GetDuration("server.heartbeat_interval"))
}

func TestLoadSettings(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9000"
  heartbeat_interval: 10s
  client_timeout: 25s
auth:
  jwt_secret: sekrit
pubsub:
  driver: redis
  topic: chat:events
limits:
  default: {limit: 50, window: 10s}
  rules:
    "message:send": {limit: 5, window: 10s}
`)

	settings, c, err := LoadSettings(path)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Equal(t, ":9000", settings.Server.Addr)
	assert.Equal(t, 10*time.Second, settings.Server.HeartbeatInterval)
	assert.Equal(t, "sekrit", settings.Auth.JWTSecret)
	assert.Equal(t, "redis", settings.PubSub.Driver)
	assert.Equal(t, "chat:events", settings.PubSub.Topic)
	assert.Equal(t, 5, settings.Limits.Rules["message:send"].Limit)

	// 未出现在文件中的键应保持默认值
	assert.Equal(t, 15*time.Minute, settings.Server.EditWindow)
	assert.Equal(t, 5, settings.Breaker.FailureThreshold)
}

func TestSettingsValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"默认配置有效", func(s *Settings) {}, false},
		{"缺少监听地址", func(s *Settings) { s.Server.Addr = "" }, true},
		{"心跳为零", func(s *Settings) { s.Server.HeartbeatInterval = 0 }, true},
		{"超时不大于心跳", func(s *Settings) {
			s.Server.HeartbeatInterval = 30 * time.Second
			s.Server.ClientTimeout = 30 * time.Second
		}, true},
		{"未知pubsub驱动", func(s *Settings) { s.PubSub.Driver = "carrier-pigeon" }, true},
		{"未知数据库驱动", func(s *Settings) { s.Database.Driver = "dbase" }, true},
		{"数据库驱动可留空", func(s *Settings) { s.Database.Driver = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(s)
			err := s.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `server: {addr: ":9000"}`)
	t.Setenv("REALTIME_LOG_LEVEL", "error")

	settings, c, err := LoadSettings(path)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Equal(t, "error", settings.Log.Level)
}

func TestWatchSettings(t *testing.T) {
	path := writeConfigFile(t, `
server: {addr: ":9000"}
log: {level: info}
`)

	settings, c, err := LoadSettings(path)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.Equal(t, "info", settings.Log.Level)

	changed := make(chan *Settings, 1)
	require.NoError(t, c.WatchSettings(func(s *Settings) {
		select {
		case changed <- s:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte(`
server: {addr: ":9000"}
log: {level: debug}
`), 0o644))

	select {
	case s := <-changed:
		assert.Equal(t, "debug", s.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("配置变更回调未触发")
	}
}

func TestStopWatch(t *testing.T) {
	path := writeConfigFile(t, `server: {addr: ":9000"}`)

	c := New(WithConfigFile(path), WithAutoWatch(true))
	require.NoError(t, c.Load())
	assert.True(t, c.IsWatching())

	c.StopWatch()
	assert.False(t, c.IsWatching())
}
