package adapter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/llmweaver/gateway/internal/domain"
)

// Pool hands out one tuned *http.Client per provider kind: each provider
// gets its own connection pool so a slow Anthropic upstream can't starve
// OpenAI connections of idle sockets.
type Pool struct {
	mu      sync.Mutex
	clients map[domain.ProviderKind]*http.Client
	timeout time.Duration
}

// NewPool builds a Pool whose clients use timeout as the per-request
// deadline (callers still pass a context with its own deadline; this is
// the transport-level ceiling).
func NewPool(timeout time.Duration) *Pool {
	return &Pool{
		clients: make(map[domain.ProviderKind]*http.Client),
		timeout: timeout,
	}
}

func (p *Pool) Client(kind domain.ProviderKind) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[kind]; ok {
		return c
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
	}
	p.clients[kind] = client
	return client
}

// StreamClient returns a client with no overall request timeout — SSE
// bodies are long-lived and are instead bounded by the caller's context.
func (p *Pool) StreamClient(kind domain.ProviderKind) *http.Client {
	base := p.Client(kind)
	streaming := *base
	streaming.Timeout = 0
	return &streaming
}
