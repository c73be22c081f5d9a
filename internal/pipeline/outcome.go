package pipeline

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/logging"
)

func (p *Pipeline) recordSuccess(ctx context.Context, requestID string, r route, publicModel string, tokensIn, tokensOut int, latency time.Duration, cacheSuspected bool) {
	cost := computeCost(publicModel, tokensIn, tokensOut)

	p.store.Append(ctx, domain.RequestOutcome{
		RequestID: requestID,
		CallerID:  r.cred.ID,
		OwnerID:   r.cred.OwnerID,
		ChannelID: r.channel.ID,
		Model:     publicModel,
		Status:    domain.OutcomeSuccess,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      cost,
		LatencyMS: latency.Milliseconds(),
		Timestamp: time.Now(),
	})

	if p.budget != nil && cost > 0 {
		if err := p.budget.IncrementBudget(ctx, r.cred.ID, cost); err != nil {
			// A lost increment would let a caller exceed budget
			// undetected; this is the one outcome path that must surface
			// loudly even though the request itself already succeeded.
			logging.Errorf(ctx, "budget increment failed for credential %d: %v", r.cred.ID, err)
		}
	}

	p.selector.Record(r.channel.ID, publicModel, r.cred.OwnerID, true, latency.Milliseconds(), cacheSuspected)
}

func (p *Pipeline) recordFailure(ctx context.Context, requestID string, r route, publicModel string, tokensIn int, errMessage string) {
	p.store.Append(ctx, domain.RequestOutcome{
		RequestID:    requestID,
		CallerID:     r.cred.ID,
		OwnerID:      r.cred.OwnerID,
		ChannelID:    r.channel.ID,
		Model:        publicModel,
		Status:       domain.OutcomeError,
		TokensIn:     tokensIn,
		ErrorMessage: errMessage,
		LatencyMS:    time.Since(r.requestStart).Milliseconds(),
		Timestamp:    time.Now(),
	})

	p.selector.Record(r.channel.ID, publicModel, r.cred.OwnerID, false, time.Since(r.requestStart).Milliseconds(), false)
}

// newLineScanner drives a bufio.Scanner over an upstream stream body,
// used for the OpenAI-family SSE framing as well as Anthropic's native
// SSE and Gemini's JSON-array elements.
func newLineScanner(body io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
