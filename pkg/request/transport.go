package request

import (
	"crypto/tls"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// newTransport 构建带连接池参数的底层传输
func (c *Config) newTransport() http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.PoolMaxIdle,
		MaxIdleConnsPerHost: c.PoolMaxIdlePerHost,
		IdleConnTimeout:     c.PoolIdleTimeout,
	}
	if c.InsecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return t
}

// propagatingTransport 把当前调用链上下文注入传播头，
// 接收端据此把投递挂回网关的调用链
type propagatingTransport struct {
	base http.RoundTripper
}

func (t *propagatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return t.base.RoundTrip(req)
}
