package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLFilter_Allows(t *testing.T) {
	t.Parallel()
	f := NewURLFilter([]string{"/blog/*", "/Careers/*", "/*.aspx"})

	tests := []struct {
		name    string
		url     string
		allowed bool
	}{
		{"homepage", "https://acme.com/", true},
		{"about", "https://acme.com/about", true},
		{"press kept", "https://acme.com/press/2024", true},
		{"blog root", "https://acme.com/blog", false},
		{"blog deep path", "https://acme.com/blog/2024/01/post", false},
		{"pattern case ignored", "https://acme.com/careers/designer", false},
		{"root level glob", "https://acme.com/default.aspx", false},
		{"nested glob not matched", "https://acme.com/shop/default.aspx", true},
		{"asset anywhere", "https://acme.com/media/logo.PNG", false},
		{"brochure pdf", "https://acme.com/docs/brochure.pdf", false},
		{"mailto", "mailto:hello@acme.com", false},
		{"no host", "/about", false},
		{"bad url", "http://acme.com/%zz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.allowed, f.Allows(tt.url))
		})
	}
}

func TestURLFilter_Defaults(t *testing.T) {
	f := NewURLFilter(nil)

	assert.Equal(t, []string{"/blog/*", "/news/*", "/careers/*", "/jobs/*"}, f.Patterns())
	assert.False(t, f.Allows("https://acme.com/news/launch"))
	assert.False(t, f.Allows("https://acme.com/jobs"))
	assert.True(t, f.Allows("https://acme.com/brand"))
	assert.True(t, f.Allows("https://acme.com/contact"))
}
