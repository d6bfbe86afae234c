package fetcher

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func respWith(status int, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Header: h}
}

func TestDetectBlock_CloudflareHeaders(t *testing.T) {
	kind, blocked := detectBlock(respWith(403, map[string]string{"cf-ray": "abc123"}), nil)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)

	kind, blocked = detectBlock(respWith(503, map[string]string{"server": "cloudflare"}), nil)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)
}

func TestDetectBlock_ChallengeBody(t *testing.T) {
	body := []byte(`<html><body>Checking your browser before accessing propertyguru.com.sg</body></html>`)
	kind, blocked := detectBlock(respWith(200, nil), body)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)
}

func TestDetectBlock_Captcha(t *testing.T) {
	body := []byte(`<div class="g-recaptcha" data-sitekey="x"></div>`)
	kind, blocked := detectBlock(respWith(200, nil), body)
	assert.True(t, blocked)
	assert.Equal(t, BlockCaptcha, kind)
}

func TestDetectBlock_JSShell(t *testing.T) {
	body := []byte(`<html><noscript>enable javascript</noscript><div id="app"></div></html>`)
	kind, blocked := detectBlock(respWith(200, nil), body)
	assert.True(t, blocked)
	assert.Equal(t, BlockJSShell, kind)
}

func TestDetectBlock_CleanResponse(t *testing.T) {
	body := []byte(`<html><body><h1>Lentoria</h1><p>1040 units across two towers.</p></body></html>`)
	_, blocked := detectBlock(respWith(200, nil), body)
	assert.False(t, blocked)
}

func TestIsBlocked(t *testing.T) {
	err := &BlockError{URL: "https://x.sg", Kind: BlockCaptcha}
	assert.True(t, IsBlocked(err))
	assert.False(t, IsBlocked(assert.AnError))
	assert.Contains(t, err.Error(), "captcha")
}
