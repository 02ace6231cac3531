// Package qr renders QR codes for event links as base64 PNG data URIs by
// calling an external image API. Rendering is strictly best-effort: any
// failure yields an empty data URI, never an error to the caller.
package qr

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/pkg/httpretry"
	"github.com/bracketline/eventserve/internal/pkg/logger"
)

// Renderer produces a QR data URI for a target URL. Implementations must
// return "" on failure rather than an error.
type Renderer interface {
	DataURI(ctx context.Context, target string) string
}

// HTTPRenderer fetches QR images from an external API and caches the data
// URIs by URL hash so repeated creates do not refetch.
type HTTPRenderer struct {
	baseURL string
	client  httpretry.HTTPDoer
	cache   cache.Cache
	timeout time.Duration
}

const (
	cacheTTL    = time.Hour
	maxImageLen = 512 * 1024
)

// NewHTTPRenderer creates a renderer against the given QR API base URL.
func NewHTTPRenderer(baseURL string, timeout time.Duration, c cache.Cache) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRenderer{
		baseURL: baseURL,
		client:  httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
		cache:   c,
		timeout: timeout,
	}
}

// DataURI returns a base64 PNG data URI for target, or "" on any failure.
func (r *HTTPRenderer) DataURI(ctx context.Context, target string) string {
	if target == "" {
		return ""
	}

	key := cacheKey(target)
	if v, found, err := r.cache.Get(ctx, key); err == nil && found {
		return v
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s?size=300x300&format=png&data=%s", r.baseURL, url.QueryEscape(target))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Warn("qr fetch failed", "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("qr api status", "status", fmt.Sprintf("%d", resp.StatusCode))
		return ""
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageLen))
	if err != nil || len(img) == 0 {
		return ""
	}

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
	r.cache.Set(ctx, key, uri, cacheTTL)
	return uri
}

func cacheKey(target string) string {
	sum := sha256.Sum256([]byte(target))
	return "qr:" + hex.EncodeToString(sum[:])
}

// Null renders nothing; used where QR codes are skipped (list hydration) and
// in tests.
type Null struct{}

func (Null) DataURI(context.Context, string) string { return "" }
