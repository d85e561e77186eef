// Package realtime provides a crash-isolated realtime messaging gateway
// built on WebSocket, covering channel messaging, presence, typing
// indicators and voice room state for chat-style applications.
//
// # Features
//
//   - Connection pooling with per-user multi-device registration
//   - Room-based broadcasting with exclude support
//   - Panic isolation per event so one bad frame never kills the process
//   - Presence, typing and voice state with TTL-driven expiry sweeps
//   - Cross-instance fanout bridge (Redis, Kafka or RabbitMQ)
//   - Circuit breaker in front of the persistence store
//   - Per-user per-event rate limiting plus a connection flood guard
//   - JWT handshake authentication (query token or Authorization header)
//   - Pluggable metrics with a Prometheus implementation included
//
// # Basic Usage
//
// Create a service, start its background sweeps, and mount the HTTP
// surface:
//
//	svc, err := realtime.NewService(
//	    realtime.WithStore(memory.New()),
//	    realtime.WithAuth(os.Getenv("JWT_SECRET"), "realtime"),
//	    realtime.WithMaxConnections(10000),
//	    realtime.WithHeartbeatInterval(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	srv := realtime.NewServer(svc)
//	if err := srv.Run(":8080"); err != nil {
//	    log.Fatal(err)
//	}
//
// The server exposes GET /ws for upgrades, /healthz for liveness and
// /metrics for scraping. To mount the upgrade endpoint on an existing
// mux instead, call Service.HandleUpgrade directly:
//
//	mux.HandleFunc("/ws", svc.HandleUpgrade)
//
// # Wire Protocol
//
// Clients send JSON event frames and receive acks keyed by request_id:
//
//	→ {"type":"event","event":"message:send","request_id":"r1",
//	   "data":{"channel_id":"c1","content":"hello"}}
//	← {"type":"ack","request_id":"r1","success":true,
//	   "data":{"message_id":"..."}}
//
// Server-initiated pushes reuse the event frame shape without a
// request_id, such as message:new, presence:update, channel:members
// and voice:state. Frames that fail validation are acked with a coded
// error (INVALID_INPUT, FORBIDDEN, RATE_LIMITED, ...); frames that are
// not valid JSON at all receive an out-of-band error frame, and the
// connection is closed after repeated offenses.
//
// # Multi-Instance Deployment
//
// A single instance fans out locally. To run several instances behind a
// load balancer, wire a pubsub bridge so broadcasts reach sockets homed
// on other instances:
//
//	driver, err := pubsub.NewRedisDriver(&pubsub.RedisConfig{
//	    Addrs: []string{"redis:6379"},
//	    Topic: "realtime:events",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg := pubsub.DefaultConfig()
//	cfg.Origin = serverID
//	bridge, err := pubsub.New(cfg, driver)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := realtime.NewService(
//	    realtime.WithStore(st),
//	    realtime.WithServerID(serverID),
//	    realtime.WithBridge(bridge),
//	)
//
// The bridge deduplicates by envelope ID, drops own-origin traffic and
// buffers publishes while the broker is unreachable.
//
// # Monitoring
//
// Pass a Metrics implementation to observe connection, message, room
// and rate-limit activity:
//
//	m := realtime.NewPrometheusMetrics("realtime")
//	svc, err := realtime.NewService(
//	    realtime.WithStore(st),
//	    realtime.WithMetrics(m),
//	)
//
// When the server detects a Prometheus-backed Metrics it serves the
// scrape protocol on /metrics; the built-in counter implementation is
// exposed as a JSON snapshot instead.
//
// # Graceful Shutdown
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	if err := svc.Shutdown(ctx); err != nil {
//	    log.Printf("shutdown: %v", err)
//	}
//
// Shutdown closes every connection with a close frame, stops the
// maintenance sweeps and detaches the bridge.
package realtime
