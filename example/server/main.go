package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tokmz/realtime"
	"github.com/tokmz/realtime/middleware"
	"github.com/tokmz/realtime/pkg/cache"
	"github.com/tokmz/realtime/pkg/config"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/orm"
	"github.com/tokmz/realtime/pkg/pubsub"
	"github.com/tokmz/realtime/pkg/tracing"
	"github.com/tokmz/realtime/store/gormstore"
	"github.com/tokmz/realtime/store/memory"
)

var configFile = flag.String("config", "config.yaml", "配置文件路径")

func main() {
	flag.Parse()

	// 1. 加载配置，文件不存在时使用内置默认值
	st, cfg, err := loadSettings(*configFile)
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}
	if st.Auth.JWTSecret == "" {
		st.Auth.JWTSecret = "demo-secret-change-me"
	}
	serverID := st.Server.ID
	if serverID == "" {
		serverID = "gw-" + uuid.NewString()[:8]
		st.Server.ID = serverID
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:   logger.ParseLevel(st.Log.Level),
		Format:  logger.Format(st.Log.Format),
		Console: st.Log.Console,
		File:    st.Log.File,
	})
	if err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}
	defer func() { _ = log.Sync() }()

	// 3. 初始化链路追踪
	if st.Tracing.Enabled {
		exporter := "stdout"
		if st.Tracing.Endpoint != "" {
			exporter = "otlp-grpc"
		}
		if _, err := tracing.NewTracerProvider(&tracing.Config{
			ServiceName:      st.Tracing.ServiceName,
			ServiceVersion:   realtime.Version,
			ExporterType:     exporter,
			ExporterEndpoint: st.Tracing.Endpoint,
			Insecure:         true,
			SamplingRate:     st.Tracing.SampleRate,
			SamplingType:     "parent_based",
			Enabled:          true,
		}); err != nil {
			panic(fmt.Sprintf("初始化链路追踪失败: %v", err))
		}
		defer shutdownTracing()
	}

	// 4. 初始化缓存，未配置 Redis 时退化为进程内缓存
	cacheConfig := &cache.Config{Driver: cache.DriverMemory, KeyPrefix: "rt:"}
	if st.Redis.Addr != "" {
		cacheConfig = &cache.Config{
			Driver: cache.DriverRedis,
			Redis: &cache.RedisConfig{
				Addr:     st.Redis.Addr,
				Password: st.Redis.Password,
				DB:       st.Redis.DB,
				PoolSize: st.Redis.PoolSize,
			},
			KeyPrefix: "rt:",
		}
	}
	c, err := cache.New(cacheConfig)
	if err != nil {
		panic(fmt.Sprintf("初始化缓存失败: %v", err))
	}
	defer func() { _ = c.Close() }()

	// 5. 初始化存储，未配置数据库时使用内存存储跑演示数据
	store, err := buildStore(st, c)
	if err != nil {
		panic(fmt.Sprintf("初始化存储失败: %v", err))
	}

	// 6. 初始化跨实例广播
	bridge, err := buildBridge(st, serverID, log)
	if err != nil {
		panic(fmt.Sprintf("初始化广播桥接失败: %v", err))
	}

	// 7. 行为分析走日志上报，批量压平高峰
	analytics := realtime.NewBatchAnalytics(realtime.NewLogAnalytics(log), log, 50, 5*time.Second)
	defer analytics.Stop()

	// 8. 装配服务
	opts := append(realtime.FromSettings(st),
		realtime.WithLogger(log),
		realtime.WithMetrics(realtime.NewPrometheusMetrics("realtime")),
		realtime.WithStore(store),
		realtime.WithCache(c),
		realtime.WithBridge(bridge),
		realtime.WithAnalytics(analytics),
	)
	svc, err := realtime.NewService(opts...)
	if err != nil {
		panic(fmt.Sprintf("装配服务失败: %v", err))
	}

	// 9. 配置热加载，只接管可在线调整的部分
	if cfg != nil {
		if err := cfg.WatchSettings(func(next *config.Settings) {
			log.Info("配置已更新，连接层参数在新连接上生效")
		}); err != nil {
			log.Warn(fmt.Sprintf("配置监听未启用: %v", err))
		}
	}

	printDemoTokens(st.Auth.JWTSecret, st.Auth.Issuer)

	// 10. 启动 HTTP 服务
	serverOpts := []realtime.ServerOption{
		realtime.WithServerAddr(st.Server.Addr),
		realtime.WithCORS(middleware.DefaultCORSConfig()),
		realtime.WithHandshakeLimit(&middleware.RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		}),
	}
	if st.Tracing.Enabled {
		serverOpts = append(serverOpts, realtime.WithTracingMiddleware())
	}
	srv := realtime.NewServer(svc, serverOpts...)
	if err := srv.Run(); err != nil {
		log.Error(fmt.Sprintf("服务异常退出: %v", err))
		os.Exit(1)
	}
}

// loadSettings 加载配置文件，文件缺失不视为错误
func loadSettings(file string) (*config.Settings, *config.Config, error) {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return config.DefaultSettings(), nil, nil
	}
	return config.LoadSettings(file)
}

// buildStore 按配置选择持久层
func buildStore(st *config.Settings, c cache.Cache) (realtime.Store, error) {
	if st.Database.Driver == "" {
		return seedDemoStore(), nil
	}

	ormConfig := orm.DefaultConfig()
	ormConfig.Type = orm.DBType(st.Database.Driver)
	ormConfig.DSN = st.Database.DSN
	if st.Database.MaxOpenConns > 0 {
		ormConfig.MaxOpenConns = st.Database.MaxOpenConns
	}
	if st.Database.MaxIdleConns > 0 {
		ormConfig.MaxIdleConns = st.Database.MaxIdleConns
	}
	if st.Database.ConnMaxLifetime > 0 {
		ormConfig.ConnMaxLifetime = st.Database.ConnMaxLifetime
	}
	if len(st.Database.Replicas) > 0 {
		ormConfig.ReadWriteSplit = &orm.ReadWriteSplitConfig{
			Sources: st.Database.Replicas,
			Policy:  "round_robin",
		}
	}

	db, err := orm.New(ormConfig)
	if err != nil {
		return nil, err
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return nil, err
	}
	return gormstore.New(db, gormstore.WithCache(c, 5*time.Minute)), nil
}

// buildBridge 按配置选择广播驱动
func buildBridge(st *config.Settings, serverID string, log logger.Logger) (*pubsub.Bridge, error) {
	var (
		driver pubsub.Driver
		err    error
	)
	switch st.PubSub.Driver {
	case "redis":
		driver, err = pubsub.NewRedisDriver(&pubsub.RedisConfig{
			Addrs:    []string{st.Redis.Addr},
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
			Topic:    st.PubSub.Topic,
		})
	case "kafka":
		driver, err = pubsub.NewKafkaDriver(&pubsub.KafkaConfig{
			Brokers: st.PubSub.Brokers,
			Topic:   st.PubSub.Topic,
			GroupID: "realtime-" + serverID,
		})
	case "rabbitmq":
		driver, err = pubsub.NewRabbitDriver(&pubsub.RabbitConfig{
			URL:      st.PubSub.URL,
			Exchange: st.PubSub.Topic,
		})
	default:
		driver = pubsub.NewMemoryDriver(pubsub.NewMemoryBroker())
	}
	if err != nil {
		return nil, err
	}

	bridgeConfig := pubsub.DefaultConfig()
	bridgeConfig.Origin = serverID
	bridgeConfig.Topic = st.PubSub.Topic
	bridgeConfig.OnError = func(err error) {
		log.Warn(fmt.Sprintf("广播桥接错误: %v", err))
	}
	return pubsub.New(bridgeConfig, driver)
}

// seedDemoStore 构造一套可直接体验的演示数据
func seedDemoStore() *memory.Store {
	st := memory.New()
	st.AddUser(&realtime.User{ID: "alice", Username: "alice", DisplayName: "Alice"})
	st.AddUser(&realtime.User{ID: "bob", Username: "bob", DisplayName: "Bob"})
	st.AddChannel(&realtime.Channel{ID: "general", Name: "general", Kind: realtime.ChannelText})
	st.AddChannel(&realtime.Channel{ID: "lobby", Name: "lobby", Kind: realtime.ChannelVoice})
	st.AddMember("general", "alice")
	st.AddMember("general", "bob")
	st.AddMember("lobby", "alice")
	st.AddMember("lobby", "bob")
	st.AddModerator("general", "alice")
	st.SetFriends("alice", "bob")
	st.SetFriends("bob", "alice")
	return st
}

// printDemoTokens 打印演示账号的握手令牌
func printDemoTokens(secret, issuer string) {
	for _, user := range []string{"alice", "bob"} {
		token, err := signToken(secret, issuer, user)
		if err != nil {
			continue
		}
		fmt.Printf("demo token (%s): %s\n", user, token)
	}
}

// signToken 给演示用户签发令牌
func signToken(secret, issuer, userID string) (string, error) {
	claims := realtime.Claims{
		Username: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// shutdownTracing 停止追踪导出器
func shutdownTracing() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(ctx); err != nil {
		fmt.Printf("关闭链路追踪失败: %v\n", err)
	}
}
