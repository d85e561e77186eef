package breaker

import (
	"context"
	"sort"
	"sync"
)

// Snapshot 单个熔断器的运行快照
type Snapshot struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Calls    int64  `json:"calls"`
	Failures int64  `json:"failures"`
	Rejected int64  `json:"rejected"`
}

// Gateway 按依赖名称管理一组熔断器。同名调用共享同一状态机，
// 不同依赖（数据库、缓存、外部服务）互不影响。
type Gateway struct {
	base      *Config
	overrides map[string]*Config

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// GatewayOption 网关配置选项
type GatewayOption func(*Gateway)

// WithService 为指定依赖设置独立的熔断配置
func WithService(name string, config *Config) GatewayOption {
	return func(g *Gateway) {
		if name != "" && config != nil {
			g.overrides[name] = config
		}
	}
}

// NewGateway 创建熔断网关，base 为未单独配置的依赖使用的基础配置
func NewGateway(base *Config, opts ...GatewayOption) (*Gateway, error) {
	if base == nil {
		base = DefaultConfig()
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	g := &Gateway{
		base:      base,
		overrides: make(map[string]*Config),
		breakers:  make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(g)
	}
	for name, config := range g.overrides {
		if config.Name == "" {
			config.Name = name
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Breaker 返回指定依赖的熔断器，不存在时按需创建
func (g *Gateway) Breaker(name string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[name]; ok {
		return b
	}
	config, ok := g.overrides[name]
	if !ok {
		clone := *g.base
		clone.Name = name
		config = &clone
	}
	// 配置在入口处已校验过，这里不会失败
	b, _ = New(config)
	g.breakers[name] = b
	return b
}

// Execute 将一次调用包进指定依赖的熔断器
func (g *Gateway) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return g.Breaker(name).Execute(ctx, op)
}

// Status 返回全部熔断器的快照，按名称排序
func (g *Gateway) Status() []Snapshot {
	g.mu.RLock()
	snapshots := make([]Snapshot, 0, len(g.breakers))
	for name, b := range g.breakers {
		counts := b.Counts()
		snapshots = append(snapshots, Snapshot{
			Name:     name,
			State:    b.State().String(),
			Calls:    counts.Calls,
			Failures: counts.Failures,
			Rejected: counts.Rejected,
		})
	}
	g.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name < snapshots[j].Name
	})
	return snapshots
}
