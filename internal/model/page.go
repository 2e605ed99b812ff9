package model

import "time"

// PageType represents the role a brand site page plays during extraction.
type PageType string

const (
	PageTypeHomepage     PageType = "homepage"
	PageTypeAbout        PageType = "about"
	PageTypeProducts     PageType = "products"
	PageTypeServices     PageType = "services"
	PageTypePricing      PageType = "pricing"
	PageTypeCustomers    PageType = "customers"
	PageTypeTestimonials PageType = "testimonials"
	PageTypePress        PageType = "press"
	PageTypeBrand        PageType = "brand"
	PageTypeLegal        PageType = "legal"
)

// AllPageTypes returns the page types probed on a brand site, homepage first.
func AllPageTypes() []PageType {
	return []PageType{
		PageTypeHomepage,
		PageTypeAbout,
		PageTypeProducts,
		PageTypeServices,
		PageTypePricing,
		PageTypeCustomers,
		PageTypeTestimonials,
		PageTypePress,
		PageTypeBrand,
		PageTypeLegal,
	}
}

// PagePath returns the conventional URL path for a page type.
func PagePath(pt PageType) string {
	switch pt {
	case PageTypeHomepage:
		return ""
	case PageTypeBrand:
		return "/brand"
	case PageTypeLegal:
		return "/terms"
	default:
		return "/" + string(pt)
	}
}

// CrawledPage represents a page fetched during crawling.
type CrawledPage struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Markdown   string   `json:"markdown"`
	StatusCode int      `json:"status_code"`
	PageType   PageType `json:"page_type,omitempty"`
	Source     string   `json:"source,omitempty"` // scraper that produced it, e.g. "jina"
}

// CrawlCache holds the pages fetched for a brand URL until they expire.
type CrawlCache struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Pages     []CrawledPage `json:"pages"`
	CrawledAt time.Time     `json:"crawled_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}
