// Package pipeline implements the per-request routing sequence:
// authenticate, authorize, budget-check, select, adapt, invoke upstream
// (unary or streaming), record. No semantic-cache branch is implemented.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jinzhu/copier"

	"github.com/llmweaver/gateway/internal/adapter"
	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/gatewayerr"
	"github.com/llmweaver/gateway/internal/loadbalancer"
	"github.com/llmweaver/gateway/internal/logging"
	"github.com/llmweaver/gateway/internal/metrics"
)

// Authenticator resolves an opaque bearer token to a caller credential.
type Authenticator interface {
	Authenticate(ctx context.Context, rawAPIKey string) (domain.CallerCredential, error)
}

// ChannelSource supplies the current set of routable channels.
type ChannelSource interface {
	ActiveChannels(ctx context.Context) ([]domain.Channel, error)
}

// BudgetLedger atomically increments a caller's spend.
type BudgetLedger interface {
	IncrementBudget(ctx context.Context, credentialID int64, delta float64) error
}

// Selector is the subset of *loadbalancer.LoadBalancer the pipeline needs.
type Selector interface {
	Select(ctx context.Context, model string, callerOwnerID int64, channels []domain.Channel, strategy domain.Strategy, preferSticky bool) loadbalancer.SelectResult
	Record(channelID int64, model string, callerOwnerID int64, success bool, latencyMS int64, cacheSuspected bool)
}

// ChunkSink receives normalized streaming chunks. Implementations write
// SSE frames to the client; Close is called exactly once, after the
// final chunk (success) or after an in-band error chunk (failure).
type ChunkSink interface {
	WriteChunk(chunk *adapter.ChatCompletionChunk) error
	WriteError(message string) error
	Close() error
}

// Pipeline wires authentication, routing, adaptation, and outcome
// recording together.
type Pipeline struct {
	auth      Authenticator
	channels  ChannelSource
	selector  Selector
	budget    BudgetLedger
	store     *metrics.Store
	pool      *adapter.Pool
	timeout   time.Duration
}

// Config is the set of pipeline-wide tunables.
type Config struct {
	UpstreamTimeout time.Duration
}

// New builds a Pipeline. All dependencies are narrow interfaces so tests
// can substitute fakes without touching the database or the network.
func New(auth Authenticator, channels ChannelSource, selector Selector, budget BudgetLedger, store *metrics.Store, cfg Config) *Pipeline {
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 120 * time.Second
	}
	return &Pipeline{
		auth:     auth,
		channels: channels,
		selector: selector,
		budget:   budget,
		store:    store,
		pool:     adapter.NewPool(cfg.UpstreamTimeout),
		timeout:  cfg.UpstreamTimeout,
	}
}

// route is the shared authenticate -> authorize -> budget -> select
// sequence, used by both Unary and Stream.
type route struct {
	cred          domain.CallerCredential
	channel       domain.Channel
	mapping       domain.ModelMapping
	upstreamModel string
	requestStart  time.Time
}

func (p *Pipeline) route(ctx context.Context, rawAPIKey, model string, strategy domain.Strategy) (route, *gatewayerr.Error) {
	cred, err := p.auth.Authenticate(ctx, rawAPIKey)
	if err != nil {
		return route{}, gatewayerr.Wrap(gatewayerr.Unauthenticated, err, "authentication failed")
	}
	if !cred.Active {
		return route{}, gatewayerr.New(gatewayerr.Unauthenticated, "credential is not active")
	}

	if !cred.AllowsModel(model) {
		return route{}, gatewayerr.New(gatewayerr.Forbidden, "model not allowed for this credential")
	}

	if cred.OverBudget() {
		return route{}, gatewayerr.New(gatewayerr.BudgetExceeded, "budget exhausted")
	}

	channels, err := p.channels.ActiveChannels(ctx)
	if err != nil {
		return route{}, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "failed to load channels")
	}

	result := p.selector.Select(ctx, model, cred.OwnerID, channels, strategy, true)
	if !result.Found {
		return route{}, gatewayerr.New(gatewayerr.NoUpstream, "no channel supports the requested model")
	}

	upstreamModel := result.Mapping.UpstreamModel
	if upstreamModel == "" {
		upstreamModel = model
	}

	// Shallow-copy the selector's Channel/ModelMapping into pipeline-local
	// values (per DESIGN NOTES §9, the core never touches these through
	// anything but flat, already-hydrated structs) rather than aliasing
	// the Load Balancer's own result in place.
	var ch domain.Channel
	var mapping domain.ModelMapping
	_ = copier.Copy(&ch, &result.Channel)
	_ = copier.Copy(&mapping, &result.Mapping)

	return route{
		cred:          cred,
		channel:       ch,
		mapping:       mapping,
		upstreamModel: upstreamModel,
		requestStart:  time.Now(),
	}, nil
}

// Unary runs a full non-streaming request: route, invoke the upstream
// once, parse the response, and record the outcome.
func (p *Pipeline) Unary(ctx context.Context, requestID, rawAPIKey string, req adapter.ChatRequest, strategy domain.Strategy) (*adapter.ChatCompletion, *gatewayerr.Error) {
	r, gerr := p.route(ctx, rawAPIKey, req.Model, strategy)
	if gerr != nil {
		return nil, gerr
	}

	tokensIn := estimateInputTokens(r.channel.Provider, r.upstreamModel, req)

	ad := adapter.ForProvider(r.channel.Provider)
	if ad == nil {
		gerr := gatewayerr.New(gatewayerr.UpstreamError, "no adapter for provider")
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		return nil, gerr
	}

	httpReq, err := ad.BuildUnaryRequest(ctx, req, r.upstreamModel, r.channel.Config)
	if err != nil {
		gerr := gatewayerr.Wrap(gatewayerr.UpstreamError, err, "failed to build upstream request")
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		return nil, gerr
	}

	client := p.pool.Client(r.channel.Provider)
	resp, err := client.Do(httpReq)
	latency := time.Since(r.requestStart)
	if err != nil {
		gerr := gatewayerr.Wrap(gatewayerr.UpstreamError, err, "upstream request failed")
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		return nil, gerr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		gerr := gatewayerr.New(gatewayerr.UpstreamError, upstreamErrorMessage(resp))
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		return nil, gerr
	}

	completion, err := ad.ParseUnaryResponse(resp)
	if err != nil {
		gerr := gatewayerr.Wrap(gatewayerr.UpstreamError, err, "failed to parse upstream response")
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		return nil, gerr
	}

	tokensOut := completion.Usage.CompletionTokens
	if tokensOut == 0 {
		tokensOut = adapter.EstimateTokens(completionText(completion))
	}
	tokensInFinal := completion.Usage.PromptTokens
	if tokensInFinal == 0 {
		tokensInFinal = tokensIn
	}

	cacheSuspected := latency < 50*time.Millisecond
	p.recordSuccess(ctx, requestID, r, req.Model, tokensInFinal, tokensOut, latency, cacheSuspected)
	return completion, nil
}

// StreamRoute is the result of a completed authenticate/authorize/
// budget/select pass, ready to be handed to RunStream. Splitting routing
// from execution lets the HTTP layer commit SSE response headers only
// after it knows routing succeeded — once those headers are sent, a
// failure can no longer be reported as an HTTP status code.
type StreamRoute struct {
	r route
}

// BeginStream runs the authenticate/authorize/budget/select sequence for
// a streaming request without touching the upstream connection.
func (p *Pipeline) BeginStream(ctx context.Context, rawAPIKey string, req adapter.ChatRequest, strategy domain.Strategy) (*StreamRoute, *gatewayerr.Error) {
	r, gerr := p.route(ctx, rawAPIKey, req.Model, strategy)
	if gerr != nil {
		return nil, gerr
	}
	return &StreamRoute{r: r}, nil
}

// RunStream invokes the upstream and streams chunks through sink for an
// already-routed request, then records the outcome.
func (p *Pipeline) RunStream(ctx context.Context, requestID string, sr *StreamRoute, req adapter.ChatRequest, sink ChunkSink) *gatewayerr.Error {
	req.Stream = true
	r := sr.r

	tokensIn := estimateInputTokens(r.channel.Provider, r.upstreamModel, req)

	ad := adapter.ForProvider(r.channel.Provider)
	if ad == nil {
		gerr := gatewayerr.New(gatewayerr.UpstreamError, "no adapter for provider")
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		_ = sink.WriteError(gerr.Message)
		_ = sink.Close()
		return gerr
	}

	httpReq, err := ad.BuildStreamRequest(ctx, req, r.upstreamModel, r.channel.Config)
	if err != nil {
		gerr := gatewayerr.Wrap(gatewayerr.UpstreamError, err, "failed to build upstream stream request")
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		_ = sink.WriteError(gerr.Message)
		_ = sink.Close()
		return gerr
	}

	client := p.pool.StreamClient(r.channel.Provider)
	resp, err := client.Do(httpReq)
	if err != nil {
		gerr := gatewayerr.Wrap(gatewayerr.UpstreamError, err, "upstream stream request failed")
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		_ = sink.WriteError(gerr.Message)
		_ = sink.Close()
		return gerr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		gerr := gatewayerr.New(gatewayerr.UpstreamError, upstreamErrorMessage(resp))
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, gerr.Message)
		_ = sink.WriteError(gerr.Message)
		_ = sink.Close()
		return gerr
	}

	tokensOut, streamErr := pumpStream(ctx, ad, resp.Body, sink)
	latency := time.Since(r.requestStart)

	if streamErr != nil {
		logging.Warnf(ctx, "stream %s terminated early: %v", requestID, streamErr)
		_ = sink.WriteError(streamErr.Error())
		_ = sink.Close()
		p.recordFailure(ctx, requestID, r, req.Model, tokensIn, streamErr.Error())
		return nil
	}

	_ = sink.Close()
	cacheSuspected := latency < 50*time.Millisecond
	p.recordSuccess(ctx, requestID, r, req.Model, tokensIn, tokensOut, latency, cacheSuspected)
	return nil
}

// pumpStream reads raw lines from body, normalizing each through ad, and
// writes every non-nil chunk to sink. It returns the accumulated output
// token estimate and the first error encountered (context cancellation
// from a client disconnect, or a body read failure).
func pumpStream(ctx context.Context, ad adapter.Adapter, body io.Reader, sink ChunkSink) (int, error) {
	scanner := newLineScanner(body)
	var outputText string

	for scanner.Scan() {
		if ctx.Err() != nil {
			return adapter.EstimateTokens(outputText), ctx.Err()
		}

		chunk, done, err := ad.ParseStreamChunk(scanner.Bytes())
		if err != nil {
			return adapter.EstimateTokens(outputText), err
		}
		if done {
			break
		}
		if chunk == nil {
			continue
		}
		for _, c := range chunk.Choices {
			outputText += c.Delta.Content
		}
		if err := sink.WriteChunk(chunk); err != nil {
			return adapter.EstimateTokens(outputText), err
		}
	}
	if err := scanner.Err(); err != nil {
		return adapter.EstimateTokens(outputText), err
	}
	return adapter.EstimateTokens(outputText), nil
}

func estimateInputTokens(kind domain.ProviderKind, model string, req adapter.ChatRequest) int {
	var text string
	for _, m := range req.Messages {
		text += m.Content
	}
	return adapter.CountTokens(kind, model, text)
}

func completionText(c *adapter.ChatCompletion) string {
	var text string
	for _, ch := range c.Choices {
		text += ch.Message.Content
	}
	return text
}

func upstreamErrorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(body) == 0 {
		return "upstream returned status " + resp.Status
	}
	return "upstream returned status " + resp.Status + ": " + string(body)
}
