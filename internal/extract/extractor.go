// Package extract turns a brand's public website into a raw brand document
// with channel-level provenance.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/provenance"
	"github.com/sells-group/brand-cli/internal/resilience"
	"github.com/sells-group/brand-cli/internal/scrape"
	"github.com/sells-group/brand-cli/pkg/anthropic"
)

// ChannelNone is the channel reported when no page content was fetched.
const ChannelNone = "none"

// Result is the raw output of one extraction.
type Result struct {
	Document   model.Document
	Provenance []model.ProvenanceRecord
	Channel    string
	Confidence int
	SourceURL  string
	Pages      int
	FromCache  bool
	Usage      anthropic.TokenUsage
}

// Extractor produces a brand document from a brand name and website.
// Implementations may be slow and must honor ctx.
type Extractor interface {
	Extract(ctx context.Context, name, url string) (*Result, error)
}

// Crawler fetches the conventional pages of a brand site.
type Crawler interface {
	CrawlSite(ctx context.Context, baseURL string, pageTypes []model.PageType, maxConcurrent int) ([]model.CrawledPage, error)
}

// CrawlCache stores crawled pages between extractions.
type CrawlCache interface {
	GetCachedCrawl(ctx context.Context, url string) (*model.CrawlCache, error)
	SetCachedCrawl(ctx context.Context, url string, pages []model.CrawledPage, ttl time.Duration) error
}

// Config tunes a WebExtractor.
type Config struct {
	Model         string
	MaxTokens     int64
	MaxPageChars  int
	MaxTotalChars int
	MaxConcurrent int
	CacheTTL      time.Duration // zero disables the crawl cache
	PageTypes     []model.PageType
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5-20250929"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8192
	}
	if c.MaxPageChars <= 0 {
		c.MaxPageChars = 12000
	}
	if c.MaxTotalChars <= 0 {
		c.MaxTotalChars = 80000
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if len(c.PageTypes) == 0 {
		c.PageTypes = model.AllPageTypes()
	}
	return c
}

// WebExtractor crawls a brand site and asks the model to fill the brand
// document schema from the fetched pages.
type WebExtractor struct {
	crawler Crawler
	ai      anthropic.Client
	cache   CrawlCache
	schema  *Schema
	limiter *rate.Limiter
	policy  resilience.Policy
	cfg     Config
	now     func() time.Time
}

// Option configures a WebExtractor.
type Option func(*WebExtractor)

// WithCache enables the crawl cache.
func WithCache(c CrawlCache) Option {
	return func(e *WebExtractor) { e.cache = c }
}

// WithLimiter paces model calls.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *WebExtractor) { e.limiter = l }
}

// WithPolicy sets the retry and circuit breaker policy for model calls.
func WithPolicy(p resilience.Policy) Option {
	return func(e *WebExtractor) { e.policy = p }
}

// WithClock overrides the time source used for provenance timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *WebExtractor) { e.now = now }
}

// NewWebExtractor creates a WebExtractor.
func NewWebExtractor(crawler Crawler, ai anthropic.Client, schema *Schema, cfg Config, opts ...Option) *WebExtractor {
	e := &WebExtractor{
		crawler: crawler,
		ai:      ai,
		schema:  schema,
		cfg:     cfg.withDefaults(),
		policy: resilience.Policy{
			Service: "anthropic",
			Retry:   resilience.DefaultRetryConfig(),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract implements Extractor.
func (e *WebExtractor) Extract(ctx context.Context, name, rawURL string) (*Result, error) {
	siteURL, err := scrape.SiteRoot(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "extract: site url")
	}

	pages, fromCache, err := e.pages(ctx, siteURL)
	if err != nil {
		return nil, err
	}
	channel, confidence := Channel(pages)

	log := zap.L().With(
		zap.String("brand", name),
		zap.String("url", siteURL),
		zap.String("channel", channel),
		zap.Int("pages", len(pages)),
		zap.Bool("from_cache", fromCache),
	)
	log.Info("extract: pages ready")

	text, usage, err := e.complete(ctx, name, siteURL, pages)
	if err != nil {
		return nil, err
	}
	usage.LogCost(e.cfg.Model, name)

	doc, err := e.parse(text)
	if err != nil {
		return nil, err
	}

	now := e.now()
	res := &Result{
		Document:   doc,
		Provenance: provenance.FromDocument(doc, siteURL, confidence, now),
		Channel:    channel,
		Confidence: confidence,
		SourceURL:  siteURL,
		Pages:      len(pages),
		FromCache:  fromCache,
		Usage:      usage,
	}
	log.Info("extract: document ready",
		zap.Int("sections", len(doc)),
		zap.Int("fields", len(res.Provenance)),
	)
	return res, nil
}

// pages returns cached pages when fresh, otherwise crawls and caches.
func (e *WebExtractor) pages(ctx context.Context, siteURL string) ([]model.CrawledPage, bool, error) {
	if e.cache != nil && e.cfg.CacheTTL > 0 {
		cached, err := e.cache.GetCachedCrawl(ctx, siteURL)
		if err != nil {
			zap.L().Warn("extract: cache lookup failed", zap.String("url", siteURL), zap.Error(err))
		}
		if cached != nil && len(cached.Pages) > 0 {
			return cached.Pages, true, nil
		}
	}

	pages, err := e.crawler.CrawlSite(ctx, siteURL, e.cfg.PageTypes, e.cfg.MaxConcurrent)
	if err != nil {
		return nil, false, eris.Wrap(err, "extract: crawl")
	}

	if e.cache != nil && e.cfg.CacheTTL > 0 && len(pages) > 0 {
		if err := e.cache.SetCachedCrawl(ctx, siteURL, pages, e.cfg.CacheTTL); err != nil {
			zap.L().Warn("extract: cache store failed", zap.String("url", siteURL), zap.Error(err))
		}
	}
	return pages, false, nil
}

// Channel picks the channel the extraction is attributed to and its
// confidence. The homepage decides when it was fetched; otherwise the first
// page does.
func Channel(pages []model.CrawledPage) (string, int) {
	if len(pages) == 0 {
		return ChannelNone, provenance.ConfidenceNoContent
	}
	source := pages[0].Source
	for _, p := range pages {
		if p.PageType == model.PageTypeHomepage {
			source = p.Source
			break
		}
	}
	switch source {
	case scrape.SourceJina, scrape.SourceFirecrawl:
		return source, provenance.ConfidenceHighFidelity
	default:
		return source, provenance.ConfidenceLowFidelity
	}
}

func (e *WebExtractor) complete(ctx context.Context, name, siteURL string, pages []model.CrawledPage) (string, anthropic.TokenUsage, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", anthropic.TokenUsage{}, eris.Wrap(err, "extract: rate limit wait")
		}
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt(e.schema)),
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt(name, siteURL, pages, e.cfg.MaxPageChars, e.cfg.MaxTotalChars)},
		},
		Temperature: &temp,
	}

	resp, err := resilience.Call(ctx, e.policy, "create_message", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := e.ai.CreateMessage(ctx, req)
		if err != nil {
			if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
				return nil, resilience.NewTransientError(err, code)
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return "", anthropic.TokenUsage{}, eris.Wrap(err, "extract: model call")
	}
	if resp.StopReason == "max_tokens" {
		return "", resp.Usage, eris.Errorf("extract: model output truncated at %d tokens", e.cfg.MaxTokens)
	}
	return resp.Text(), resp.Usage, nil
}

// parse decodes the model output and keeps only schema sections that match
// their shape. Invalid sections are dropped, not fatal.
func (e *WebExtractor) parse(text string) (model.Document, error) {
	raw := cleanJSON(text)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, eris.Wrap(err, "extract: decode model output")
	}

	doc := model.Document{}
	for key, value := range decoded {
		sec, ok := e.schema.Section(key)
		if !ok || value == nil {
			continue
		}
		value = sec.Coerce(value)
		if err := sec.Validate(value); err != nil {
			zap.L().Warn("extract: dropping invalid section", zap.String("section", key), zap.Error(err))
			continue
		}
		doc[key] = prune(value)
	}
	return doc, nil
}

// prune removes null fields so that missing values are absent rather than
// null in the stored document.
func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if child == nil {
				delete(t, k)
				continue
			}
			t[k] = prune(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = prune(child)
		}
		return t
	default:
		return v
	}
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func systemPrompt(schema *Schema) string {
	return `You extract brand profiles from company websites.

Return a single JSON object. Its keys are section names from the schema
below. Object sections map field names to values; array sections are lists
of objects. Use only information stated on the provided pages. Leave a field
out when the pages do not support it; never guess. Quote short phrases
verbatim where the schema asks for phrases. Colors are hex codes.

Schema:
` + schema.Describe()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func userPrompt(name, siteURL string, pages []model.CrawledPage, maxPageChars, maxTotalChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s\nWebsite: %s\n\n", name, siteURL)

	if len(pages) == 0 {
		b.WriteString("No page content could be retrieved. Fill only fields that are " +
			"unambiguous from the brand name and website address; leave the rest out.\n")
		return b.String()
	}

	budget := maxTotalChars
	for _, p := range pages {
		if budget <= 0 {
			break
		}
		content := p.Markdown
		content = truncate(content, maxPageChars)
		content = truncate(content, budget)
		budget -= len(content)
		fmt.Fprintf(&b, "--- %s: %s (%s) ---\n%s\n\n", p.PageType, p.Title, p.URL, content)
	}
	return b.String()
}

// SeedExtractor returns a fixed document, for profiles seeded by hand when
// automated extraction is unavailable.
type SeedExtractor struct {
	Document   model.Document
	Confidence int
}

// Extract implements Extractor.
func (s SeedExtractor) Extract(_ context.Context, _ string, url string) (*Result, error) {
	doc := document.CloneDoc(s.Document)
	conf := s.Confidence
	if conf == 0 {
		conf = provenance.ConfidenceLowFidelity
	}
	return &Result{
		Document:   doc,
		Provenance: provenance.FromDocument(doc, url, conf, time.Now().UTC()),
		Channel:    "seed",
		Confidence: conf,
		SourceURL:  url,
	}, nil
}
