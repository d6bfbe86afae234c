package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// BlockKind classifies the anti-bot measure a response ran into.
type BlockKind string

const (
	BlockCloudflare BlockKind = "cloudflare"
	BlockCaptcha    BlockKind = "captcha"
	BlockJSShell    BlockKind = "js_shell"
)

// BlockError reports that a host served an anti-bot challenge instead of
// content. Retrying immediately is pointless, so the fetcher surfaces it as
// a terminal error for the URL.
type BlockError struct {
	URL  string
	Kind BlockKind
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("fetcher: %s blocked by %s challenge", e.URL, e.Kind)
}

// IsBlocked reports whether err is a BlockError.
func IsBlocked(err error) bool {
	var be *BlockError
	return errors.As(err, &be)
}

// detectBlock inspects a response for signs of anti-bot protection. Listing
// portals front with Cloudflare; government endpoints generally do not.
func detectBlock(resp *http.Response, body []byte) (BlockKind, bool) {
	if resp == nil {
		return "", false
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			resp.Header.Get("server") == "cloudflare" {
			return BlockCloudflare, true
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return BlockCloudflare, true
	}

	if strings.Contains(lower, "recaptcha") || strings.Contains(lower, "hcaptcha") ||
		strings.Contains(lower, "captcha") {
		return BlockCaptcha, true
	}

	// A tiny body that only boots a JS app carries nothing worth parsing.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell, true
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return BlockJSShell, true
		}
	}

	return "", false
}
