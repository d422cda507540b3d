package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockAkamai     BlockType = "akamai"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// challengeBodyLimit caps the body size inspected for challenge markers.
// Real listing pages are far larger and may embed captcha widgets in forms.
const challengeBodyLimit = 16 * 1024

// DetectBlock inspects a response for signs that the session headers were
// rejected. It returns BlockNone for a normal page.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
		if strings.Contains(strings.ToLower(resp.Header.Get("server")), "akamai") {
			return BlockAkamai
		}
	}

	if len(body) > challengeBodyLimit {
		return BlockNone
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"):
		return BlockCloudflare
	case strings.Contains(lower, "access denied") && strings.Contains(lower, "reference #"):
		return BlockAkamai
	case strings.Contains(lower, "captcha"):
		return BlockCaptcha
	case strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") && len(body) < 2000,
		strings.Contains(lower, `meta http-equiv="refresh"`):
		return BlockJSShell
	}
	return BlockNone
}
