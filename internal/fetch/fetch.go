// Package fetch is the HTTP layer behind page sessions and document
// downloads: bounded retry on transient failures, a per-client concurrency
// gate, redirect limits, conditional revalidation against the disk cache and
// charset decoding of HTML.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/hyperifyio/goradar/internal/cache"
)

var (
	// ErrTransient marks failures worth retrying: 5xx, timeouts, refused or
	// reset connections.
	ErrTransient = errors.New("transient failure")
	// ErrTooLarge is returned when a body exceeds the caller's byte ceiling.
	ErrTooLarge = errors.New("response exceeds size limit")
	// ErrUndecodable is returned when a page cannot be decoded to UTF-8.
	ErrUndecodable = errors.New("undecodable content")
)

// StatusError carries a non-2xx HTTP status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL) }

// Client wraps http.Client with timeouts, retry and caching.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Zero means 3.
	MaxAttempts int
	// Retry backoff bounds. Zero means 4s initial, 10s max.
	RetryInitial time.Duration
	RetryMax     time.Duration
	// PerRequestTimeout bounds each attempt.
	PerRequestTimeout time.Duration
	// Optional on-disk cache for GET pages.
	Cache *cache.HTTPCache
	// BypassCache fetches fresh without conditional headers but still saves.
	BypassCache bool
	// RedirectMaxHops caps redirects. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests for this client. Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

// Response is one successful exchange.
type Response struct {
	Body        []byte
	ContentType string
	URL         string
	FromCache   bool
}

type request struct {
	method   string
	url      string
	form     url.Values
	maxBytes int64
	accept   func(string) bool
	useCache bool
}

// Get fetches an HTML page and returns its body decoded to UTF-8.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := c.Page(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.ContentType, nil
}

// Page is Get with the final URL and cache provenance.
func (c *Client) Page(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: rawURL, accept: isHTMLContentType, useCache: true})
	if err != nil {
		return nil, err
	}
	return decodeHTML(resp)
}

// PostForm submits a form and returns the resulting HTML page.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	resp, err := c.do(ctx, request{method: http.MethodPost, url: rawURL, form: form, accept: isHTMLContentType})
	if err != nil {
		return nil, err
	}
	return decodeHTML(resp)
}

// Download fetches any content type, failing with ErrTooLarge once more
// than maxBytes would be read. maxBytes <= 0 disables the ceiling.
func (c *Client) Download(ctx context.Context, rawURL string, maxBytes int64) (*Response, error) {
	return c.do(ctx, request{method: http.MethodGet, url: rawURL, maxBytes: maxBytes})
}

// WithHTTPClient returns a copy of c's settings bound to hc, e.g. one with a
// cookie jar owned by a single session. The concurrency gate is not shared.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	return &Client{
		HTTPClient:        hc,
		UserAgent:         c.UserAgent,
		MaxAttempts:       c.MaxAttempts,
		RetryInitial:      c.RetryInitial,
		RetryMax:          c.RetryMax,
		PerRequestTimeout: c.PerRequestTimeout,
		Cache:             c.Cache,
		BypassCache:       c.BypassCache,
		RedirectMaxHops:   c.RedirectMaxHops,
		MaxConcurrent:     c.MaxConcurrent,
	}
}

func (c *Client) do(ctx context.Context, req request) (*Response, error) {
	u, err := url.Parse(req.url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, fmt.Errorf("unsupported URL scheme: %q", req.url)
	}
	var etag, lastMod string
	if req.useCache && c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, req.url); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}
	policy := RetryPolicy{Attempts: c.MaxAttempts, Initial: c.RetryInitial, Max: c.RetryMax}
	return Retry(ctx, policy, func() (*Response, error) {
		resp, status, err := c.tryOnce(ctx, req, etag, lastMod)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotModified && c.Cache != nil {
			body, err := c.Cache.LoadBody(ctx, req.url)
			if err == nil {
				meta, _ := c.Cache.LoadMeta(ctx, req.url)
				if meta != nil {
					resp.ContentType = meta.ContentType
				}
				resp.Body = body
				resp.FromCache = true
				return resp, nil
			}
			// lost body: drop the validators and retry unconditionally
			etag, lastMod = "", ""
			return nil, fmt.Errorf("%w: cached body missing for %s", ErrTransient, req.url)
		}
		return resp, nil
	})
}

func (c *Client) tryOnce(ctx context.Context, r request, etag, lastMod string) (*Response, int, error) {
	c.acquire()
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	var body io.Reader
	if r.form != nil {
		body = strings.NewReader(r.form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	if r.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	finalURL := r.url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, fmt.Errorf("%w: server error %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode == http.StatusNotModified:
		return &Response{URL: finalURL}, resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode, URL: r.url}
	}

	ct := resp.Header.Get("Content-Type")
	if r.accept != nil && !r.accept(ct) {
		return nil, resp.StatusCode, fmt.Errorf("unsupported content type: %s", ct)
	}
	if r.maxBytes > 0 && resp.ContentLength > r.maxBytes {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, r.maxBytes)
	}
	reader := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if r.maxBytes > 0 && int64(len(b)) > r.maxBytes {
		return nil, resp.StatusCode, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, r.maxBytes)
	}
	if r.useCache && c.Cache != nil {
		_ = c.Cache.Save(ctx, r.url, ct, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), b)
	}
	return &Response{Body: b, ContentType: ct, URL: finalURL}, resp.StatusCode, nil
}

func decodeHTML(resp *Response) (*Response, error) {
	rd, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	resp.Body = b
	return resp, nil
}

func (c *Client) httpClient() *http.Client {
	base := http.Client{Timeout: c.PerRequestTimeout}
	if c.HTTPClient != nil {
		// copy so the redirect policy does not leak into the caller's client
		base = *c.HTTPClient
	}
	base.CheckRedirect = c.checkRedirectFunc()
	return &base
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return ct == "" || strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	<-c.limiter
}
