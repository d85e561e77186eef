package realtime_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/realtime"
)

// startServer 把完整服务器挂到 httptest 上，复用内置路由与中间件
func startServer(t *testing.T, svcOpts []realtime.Option, srvOpts ...realtime.ServerOption) *httptest.Server {
	t.Helper()

	base := []realtime.Option{
		realtime.WithStore(newGatewayStore()),
		realtime.WithAuth(gatewaySecret, ""),
		realtime.WithServerID("srv-http"),
	}
	svc, err := realtime.NewService(append(base, svcOpts...)...)
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	srv := realtime.NewServer(svc, append([]realtime.ServerOption{
		realtime.WithServerMode(gin.TestMode),
		realtime.WithoutBanner(),
	}, srvOpts...)...)

	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return ts
}

func TestServerHealth(t *testing.T) {
	ts := startServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var h realtime.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "srv-http", h.ServerID)
	assert.Zero(t, h.Connections)
}

func TestServerMetrics(t *testing.T) {
	t.Run("内置计数器输出快照", func(t *testing.T) {
		ts := startServer(t, nil)

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var snap realtime.MetricsSnapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.Zero(t, snap.ConnectionsOpened)
	})

	t.Run("Prometheus按抓取协议输出", func(t *testing.T) {
		ts := startServer(t, []realtime.Option{
			realtime.WithMetrics(realtime.NewPrometheusMetrics("rt_test")),
		})

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "rt_test_socket_connections_open")
	})
}

func TestServerWebSocketRoute(t *testing.T) {
	ts := startServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + mintGatewayToken(t, "alice")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wireFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "event", f.Type)
	assert.Equal(t, realtime.EventReady, f.Event)

	var payload realtime.ReadyPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "alice", payload.UserID)
	assert.Equal(t, "srv-http", payload.ServerID)
}
