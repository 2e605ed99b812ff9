package scrape

import (
	"fmt"
	"net/http"
	"strings"
)

// BlockReason names why a fetched page is not the brand's real content.
type BlockReason string

const (
	BlockNone      BlockReason = ""
	BlockChallenge BlockReason = "bot_challenge" // Cloudflare, Akamai and similar interstitials
	BlockCaptcha   BlockReason = "captcha"
	BlockJSShell   BlockReason = "js_shell"
	BlockParked    BlockReason = "parked_domain"
	BlockEmpty     BlockReason = "empty"
)

// BlockedError reports a page that was fetched but held no usable content.
// The chain treats it like any other scraper failure and moves on.
type BlockedError struct {
	URL    string
	Reason BlockReason
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked (%s): %s", e.Reason, e.URL)
}

// Pages at or above this size may embed a captcha widget on a contact
// form without being gated by it.
const captchaPageLimit = 20 * 1024

const jsShellLimit = 2000

var challengeHeaders = []string{"cf-ray", "cf-cache-status", "cf-mitigated", "x-akamai-transformed"}

var challengeMarkers = []string{
	"checking your browser",
	"cf-browser-verification",
	"just a moment...",
	"attention required! | cloudflare",
	"access denied</title>",
}

var captchaMarkers = []string{"g-recaptcha-response", "h-captcha-response"}

var parkedMarkers = []string{
	"this domain is for sale",
	"buy this domain",
	"domain is parked",
	"parkingcrew",
	"sedoparking",
}

// detectBlock inspects a response for anti-bot gates and placeholder pages.
func detectBlock(status int, header http.Header, body []byte) BlockReason {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		for _, h := range challengeHeaders {
			if header.Get(h) != "" {
				return BlockChallenge
			}
		}
		if strings.EqualFold(header.Get("Server"), "cloudflare") {
			return BlockChallenge
		}
	}

	lower := strings.ToLower(string(body))
	if containsAny(lower, challengeMarkers) {
		return BlockChallenge
	}
	if containsAny(lower, captchaMarkers) || (len(body) < captchaPageLimit && strings.Contains(lower, "captcha")) {
		return BlockCaptcha
	}
	if containsAny(lower, parkedMarkers) {
		return BlockParked
	}
	if len(body) < jsShellLimit {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}
	return BlockNone
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
