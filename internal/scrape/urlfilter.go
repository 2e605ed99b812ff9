package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip sections of a brand site that describe
// articles or openings rather than the brand. Press pages are kept: they
// feed the proof section.
var defaultExcludePatterns = []string{
	"/blog/*",
	"/news/*",
	"/careers/*",
	"/jobs/*",
}

// assetExts are never pages, wherever they sit in the path.
var assetExts = map[string]bool{
	".pdf": true, ".zip": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".svg": true, ".webp": true, ".mp4": true, ".mov": true,
	".css": true, ".js": true, ".xml": true,
}

// URLFilter decides which URLs of a brand site are worth fetching.
type URLFilter struct {
	patterns []string
}

// NewURLFilter builds a filter from glob path patterns such as "/blog/*".
// A nil or empty list selects the defaults. "/blog/*" also matches deeper
// paths like "/blog/2024/post".
func NewURLFilter(patterns []string) *URLFilter {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &URLFilter{patterns: lowered}
}

// Patterns returns the exclude patterns in lower case.
func (f *URLFilter) Patterns() []string {
	return f.patterns
}

// Allows reports whether rawURL is an http(s) page outside every excluded
// path. Unparseable URLs are refused.
func (f *URLFilter) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	p := strings.ToLower(u.Path)
	if assetExts[path.Ext(p)] {
		return false
	}
	for _, pattern := range f.patterns {
		if matchSegmented(pattern, p) {
			return false
		}
	}
	return true
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		return urlPath == dir || strings.HasPrefix(urlPath, dir+"/")
	}
	return false
}
