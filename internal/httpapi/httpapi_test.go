package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/llmweaver/gateway/internal/channelstore"
	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/loadbalancer"
	"github.com/llmweaver/gateway/internal/metrics"
	"github.com/llmweaver/gateway/internal/pipeline"
)

// staticAdmin authenticates a single fixed admin token, the simplest
// AdminAuthenticator implementation, without a separate table.
type staticAdmin struct{ token string }

func (a staticAdmin) AuthenticateAdmin(rawToken string) bool { return rawToken == a.token }

type testEnv struct {
	server   *Server
	store    *channelstore.Store
	upstream *httptest.Server
	rawKey   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := channelstore.New(db)
	require.NoError(t, err)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	t.Cleanup(upstream.Close)

	require.NoError(t, db.Exec(`INSERT INTO channels (id, provider, api_base, api_key, weight, priority, status, is_system) VALUES (1, ?, ?, ?, 1, 1, ?, false)`,
		string(domain.ProviderOpenAI), upstream.URL, "sk-up", string(domain.ChannelActive)).Error)
	require.NoError(t, db.Exec(`INSERT INTO model_mappings (channel_id, public_model_id, upstream_model) VALUES (1, 'gpt-3.5-turbo', 'gpt-3.5-turbo-0613')`).Error)

	rawKey, _, err := store.CreateCredential(context.Background(), 1, []string{"gpt-3.5-turbo"}, 100.0)
	require.NoError(t, err)

	metricsStore, err := metrics.NewStore(nil, 10, time.Hour)
	require.NoError(t, err)
	lb := loadbalancer.New(metricsStore, loadbalancer.Config{DefaultStrategy: domain.StrategyWeightedRandom})
	p := pipeline.New(store, store, lb, store, metricsStore, pipeline.Config{})

	s := New(p, lb, store, channelstore.StaticCatalog{}, staticAdmin{token: "admin-secret"}, true)

	return &testEnv{server: s, store: store, upstream: upstream, rawKey: rawKey}
}
