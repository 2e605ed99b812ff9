// Package scrape fetches brand site pages through a chain of readers,
// falling back from one to the next when a page is blocked or empty.
package scrape

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/brand-cli/internal/model"
)

// Names of the scrapers, recorded as the channel a page came through.
const (
	SourceJina      = "jina"
	SourceFirecrawl = "firecrawl"
	SourceLocal     = "local_http"
)

// Result holds a scraped page with the name of the scraper that fetched it.
type Result struct {
	Page   model.CrawledPage
	Source string
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	filter   *URLFilter
	scrapers []Scraper
}

// NewChain creates a Chain that fetches only URLs filter allows. A nil
// filter uses the default excludes.
func NewChain(filter *URLFilter, scrapers ...Scraper) *Chain {
	if filter == nil {
		filter = NewURLFilter(nil)
	}
	return &Chain{
		filter:   filter,
		scrapers: scrapers,
	}
}

// Scrape tries each scraper in order for a single URL.
// Returns the first successful result, or an error if all fail.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if !c.filter.Allows(targetURL) {
		return nil, eris.Errorf("scrape: url excluded: %s", targetURL)
	}

	var lastErr error
	for _, s := range c.scrapers {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: context done")
		}
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			result.Page.Source = result.Source
			return result, nil
		}
		if err != nil {
			fields := []zap.Field{
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			}
			var blocked *BlockedError
			if eris.As(err, &blocked) {
				fields = append(fields, zap.String("block_reason", string(blocked.Reason)))
			}
			zap.L().Debug("scrape: scraper failed, trying next", fields...)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// ScrapeAll fetches multiple URLs in parallel using the chain.
// maxConcurrent controls the concurrency limit. The result slice is indexed
// like urls; a URL that is excluded or fails on every scraper leaves nil.
func (c *Chain) ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) []*Result {
	results := make([]*Result, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}

	for i, u := range urls {
		g.Go(func() error {
			if !c.filter.Allows(u) {
				return nil
			}
			result, err := c.Scrape(gCtx, u)
			if err != nil {
				zap.L().Debug("scrape: chain failed for url",
					zap.String("url", u),
					zap.Error(err),
				)
				return nil
			}
			results[i] = result
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// CrawlSite fetches the conventional page for each page type under baseURL.
// Pages that no scraper could fetch are skipped; the rest keep the order of
// pageTypes and carry their page type and source.
func (c *Chain) CrawlSite(ctx context.Context, baseURL string, pageTypes []model.PageType, maxConcurrent int) ([]model.CrawledPage, error) {
	base, err := SiteRoot(baseURL)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(pageTypes))
	for i, pt := range pageTypes {
		urls[i] = base + model.PagePath(pt)
	}

	results := c.ScrapeAll(ctx, urls, maxConcurrent)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scrape: crawl site")
	}

	pages := make([]model.CrawledPage, 0, len(results))
	for i, r := range results {
		if r == nil {
			continue
		}
		page := r.Page
		page.PageType = pageTypes[i]
		page.Source = r.Source
		if page.URL == "" {
			page.URL = urls[i]
		}
		pages = append(pages, page)
	}

	zap.L().Info("scrape: crawled brand site",
		zap.String("url", base),
		zap.Int("requested", len(urls)),
		zap.Int("fetched", len(pages)),
	)
	return pages, nil
}

// SiteRoot normalizes a brand URL to scheme://host. A missing scheme
// defaults to https.
func SiteRoot(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", eris.New("scrape: empty site url")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: parse site url %q", rawURL)
	}
	if u.Host == "" {
		return "", eris.Errorf("scrape: site url has no host: %q", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
