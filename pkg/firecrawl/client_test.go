package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-api-key", WithBaseURL(srv.URL+"/"))
}

func TestPageRequest(t *testing.T) {
	t.Parallel()
	req := PageRequest("https://acme.com/about")
	assert.Equal(t, "https://acme.com/about", req.URL)
	assert.Equal(t, []string{"markdown"}, req.Formats)
	assert.True(t, req.OnlyMainContent)
	assert.Contains(t, req.ExcludeTags, "nav")
	assert.Positive(t, req.WaitFor)
}

func TestScrape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "https://acme.com/about", raw["url"])
		assert.Equal(t, true, raw["onlyMainContent"])
		assert.Equal(t, float64(1000), raw["waitFor"])

		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# About Acme","metadata":{
			"title":"About Acme","language":"en","sourceURL":"https://acme.com/about",
			"url":"https://www.acme.com/about","statusCode":200}}}`))
	})

	resp, err := c.Scrape(context.Background(), PageRequest("https://acme.com/about"))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "# About Acme", resp.Data.Markdown)
	assert.Equal(t, "About Acme", resp.Data.Metadata.Title)
	assert.Equal(t, "en", resp.Data.Metadata.Language)
	assert.Equal(t, 200, resp.Data.Metadata.StatusCode)
	assert.Equal(t, "https://www.acme.com/about", resp.Data.Metadata.PageURL())
}

func TestScrape_Unsuccessful(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"site blocked"}`))
	})

	resp, err := c.Scrape(context.Background(), PageRequest("https://acme.com"))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "site blocked", resp.Error)
}

func TestScrape_APIErrorTruncatesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	})

	_, err := c.Scrape(context.Background(), PageRequest("https://acme.com"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestScrape_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := c.Scrape(context.Background(), PageRequest("https://acme.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestScrape_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("request should not reach the server")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Scrape(ctx, PageRequest("https://acme.com"))
	require.Error(t, err)
}

func TestMetadata_PageURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://acme.com", Metadata{SourceURL: "https://acme.com"}.PageURL())
	assert.Empty(t, Metadata{}.PageURL())
}

func TestOptions(t *testing.T) {
	t.Parallel()
	custom := &http.Client{}
	hc := NewClient("key", WithHTTPClient(custom), WithBaseURL("")).(*httpClient)
	assert.Same(t, custom, hc.http)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
}
