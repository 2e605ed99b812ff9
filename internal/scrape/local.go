package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/brand-cli/internal/model"
)

const (
	// minContentLen is the shortest page body treated as real content.
	minContentLen = 100
	maxBodyBytes  = 2 << 20
	userAgent     = "Mozilla/5.0 (compatible; BrandProfileBot/1.0)"
)

// noiseSelector matches page chrome that never carries brand content.
const noiseSelector = "script, style, noscript, iframe, svg, nav, footer, header nav, form, [aria-hidden=true], .cookie-banner, #cookie-banner"

// metaNames are the <meta> tags kept ahead of the page body. They carry the
// tagline, site name and theme color that the visual identity and seo
// sections draw on.
var metaNames = []string{
	"description",
	"keywords",
	"og:site_name",
	"og:title",
	"og:description",
	"og:image",
	"twitter:site",
	"theme-color",
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// LocalScraper fetches HTML via net/http, detects blocks, and converts the
// page body to markdown. Free, no API calls; falls through to Jina or
// Firecrawl when blocked.
type LocalScraper struct {
	client *http.Client
	md     *converter.Converter
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper() *LocalScraper {
	return &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Name implements Scraper.
func (l *LocalScraper) Name() string { return SourceLocal }

// Supports implements Scraper.
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks, and converts the body to markdown.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if reason := detectBlock(resp.StatusCode, resp.Header, body); reason != BlockNone {
		return nil, eris.Wrap(&BlockedError{URL: targetURL, Reason: reason}, "local_http")
	}

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	if len(body) < minContentLen {
		return nil, eris.New("local_http: empty page")
	}

	title, markdown, err := l.render(body, targetURL)
	if err != nil {
		return nil, err
	}
	if len(markdown) < minContentLen {
		return nil, eris.New("local_http: empty page")
	}

	return &Result{
		Page: model.CrawledPage{
			URL:        targetURL,
			Title:      title,
			Markdown:   markdown,
			StatusCode: resp.StatusCode,
		},
		Source: SourceLocal,
	}, nil
}

// render extracts the title and meta tags, strips page chrome, and converts
// what is left of the body to markdown.
func (l *LocalScraper) render(body []byte, pageURL string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: parse html")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	meta := pageMeta(doc)

	doc.Find(noiseSelector).Remove()

	main := doc.Find("main").First()
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}
	html, err := main.Html()
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: render body")
	}

	md, err := l.md.ConvertString(html, converter.WithDomain(pageURL))
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: convert to markdown")
	}
	md = blankLinesRe.ReplaceAllString(strings.TrimSpace(md), "\n\n")

	if meta != "" {
		md = meta + "\n\n" + md
	}
	return title, md, nil
}

// pageMeta renders the interesting <meta> tags as "name: content" lines.
func pageMeta(doc *goquery.Document) string {
	found := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			name, _ = s.Attr("property")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if name == "" || content == "" {
			return
		}
		if _, seen := found[name]; !seen {
			found[name] = content
		}
	})

	var lines []string
	for _, name := range metaNames {
		if v, ok := found[name]; ok {
			lines = append(lines, name+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
