package scrape

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/resilience"
	"github.com/sells-group/brand-cli/pkg/jina"
)

// JinaAdapter wraps a Jina Reader client as a Scraper with a circuit breaker.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client. A nil breaker
// gets a private one that opens after 3 consecutive failures and probes
// again after 60s; while open the chain skips straight to the next scraper.
func NewJinaAdapter(client jina.Client, breaker *resilience.CircuitBreaker) *JinaAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     60 * time.Second,
		})
	}
	return &JinaAdapter{client: client, breaker: breaker}
}

// Name implements Scraper.
func (j *JinaAdapter) Name() string { return SourceJina }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	return resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*Result, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			var apiErr *jina.APIError
			if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
				return nil, resilience.NewTransientError(err, apiErr.StatusCode)
			}
			return nil, err
		}

		if reason := readerBlockReason(resp); reason != BlockNone {
			return nil, eris.Wrap(&BlockedError{URL: targetURL, Reason: reason}, "jina")
		}

		pageURL := resp.Data.URL
		if pageURL == "" {
			pageURL = targetURL
		}
		return &Result{
			Page: model.CrawledPage{
				URL:        pageURL,
				Title:      resp.Data.Title,
				Markdown:   resp.Data.Content,
				StatusCode: 200,
			},
			Source: SourceJina,
		}, nil
	})
}

// Short Reader output that matches one of these is the gate page itself.
var readerChallengeMarkers = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// Reader output at or above this length is real content even when it
// mentions a challenge phrase.
const readerChallengeLimit = 1000

// readerBlockReason classifies a Reader response that cannot be used.
func readerBlockReason(resp *jina.ReadResponse) BlockReason {
	if resp == nil || (resp.Code != 0 && resp.Code != 200) {
		return BlockChallenge
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < minContentLen {
		return BlockEmpty
	}

	lower := strings.ToLower(content)
	if containsAny(lower, parkedMarkers) {
		return BlockParked
	}
	if len(content) < readerChallengeLimit && containsAny(lower, readerChallengeMarkers) {
		return BlockChallenge
	}
	return BlockNone
}
