// Package session harvests browser session headers (cookies plus the
// response header set) so plain HTTP requests look like they come from the
// same browser.
package session

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/cache"
)

// Provider returns the headers to send when requesting url.
type Provider interface {
	Headers(ctx context.Context, url string) (http.Header, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, url string) (http.Header, error)

// Headers calls f.
func (f ProviderFunc) Headers(ctx context.Context, url string) (http.Header, error) {
	return f(ctx, url)
}

// CachedProvider memoizes another Provider by exact URL. Concurrent first
// requests for one URL share a single underlying call.
type CachedProvider struct {
	next  Provider
	cache *cache.Cache[http.Header]
}

// NewCachedProvider wraps next with c.
func NewCachedProvider(next Provider, c *cache.Cache[http.Header]) *CachedProvider {
	return &CachedProvider{next: next, cache: c}
}

// Headers returns a copy of the cached headers for url, harvesting them on a miss.
func (p *CachedProvider) Headers(ctx context.Context, url string) (http.Header, error) {
	h, err := p.cache.GetOrLoad(ctx, url, func(ctx context.Context) (http.Header, error) {
		zap.L().Debug("session: harvesting headers", zap.String("url", url))
		return p.next.Headers(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return h.Clone(), nil
}

// responseOnly lists harvested headers that must not be replayed on a request.
var responseOnly = map[string]bool{
	"Connection":        true,
	"Content-Encoding":  true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
}

// ParseHeaderBlock parses the output of XMLHttpRequest.getAllResponseHeaders:
// "name: value" lines separated by CRLF. Lines without ": " are skipped.
func ParseHeaderBlock(raw string) http.Header {
	h := http.Header{}
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		key = http.CanonicalHeaderKey(strings.TrimSpace(key))
		if responseOnly[key] {
			continue
		}
		h.Set(key, value)
	}
	return h
}

// CookieHeader renders name=value pairs as a Cookie header value, sorted by
// name so the output is stable.
func CookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+cookies[name])
	}
	return strings.Join(pairs, "; ")
}

// Merge layers each header set over the previous one; later values replace
// earlier values for the same key.
func Merge(layers ...http.Header) http.Header {
	out := http.Header{}
	for _, layer := range layers {
		for k, vals := range layer {
			out[http.CanonicalHeaderKey(k)] = append([]string(nil), vals...)
		}
	}
	return out
}
