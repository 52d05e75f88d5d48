// Package http is the egress HTTP client shared by the YouTube providers.
// It classifies responses into typed errors, paces requests per host and
// fails fast when a host keeps failing. It never retries on its own.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultUserAgent is a desktop browser user agent; the watch page serves a
// reduced document to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxBodySize caps response bodies read into memory.
const maxBodySize = 32 << 20

// Client wraps an HTTP client with rate limiting and circuit breaking.
type Client struct {
	base           *http.Client
	config         *Config
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	session        *Session
}

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests
	Timeout time.Duration

	// UserAgent is used when neither the caller nor the session sets one
	UserAgent string

	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig

	// MaxIdleConnsPerHost bounds the connection pool. Default: 10
	MaxIdleConnsPerHost int
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	cbConfig := DefaultCircuitBreakerConfig()
	cbConfig.IsTransientError = IsTransientHTTPError
	return &Config{
		Timeout:             30 * time.Second,
		UserAgent:           DefaultUserAgent,
		RateLimiter:         DefaultRateLimiterConfig(),
		CircuitBreaker:      cbConfig,
		MaxIdleConnsPerHost: 10,
	}
}

// New creates a client. A nil session sends requests without cookies or proxy.
func New(cfg *Config, session *Session) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	if session != nil {
		base.Jar = session.Jar()
		if proxy := session.Proxy(); proxy != nil {
			transport.Proxy = http.ProxyURL(proxy)
		}
	}

	return &Client{
		base:           base,
		config:         cfg,
		rateLimiter:    NewRateLimiter(cfg.RateLimiter),
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreaker),
		session:        session,
	}
}

// Response represents an HTTP response with status code and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// PostJSON posts body with a JSON content type.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return c.Do(ctx, http.MethodPost, url, body, h)
}

// Do performs one HTTP request. Rate limits surface as *RateLimitError, other
// non-2xx statuses as *HTTPError, and an open circuit as ErrCircuitOpen.
func (c *Client) Do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	host := hostOf(urlStr)

	if err := c.circuitBreaker.Allow(host); err != nil {
		return nil, err
	}
	if err := c.rateLimiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, method, urlStr, body, headers)
	if err != nil {
		if _, ok := err.(*RateLimitError); ok {
			c.rateLimiter.RecordRateLimit(host)
		}
		c.circuitBreaker.RecordFailure(host, err)
		return nil, err
	}

	c.rateLimiter.RecordSuccess(host)
	c.circuitBreaker.RecordSuccess(host)
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.session != nil {
		for k, v := range c.session.Headers() {
			if req.Header.Get(k) == "" {
				req.Header.Set(k, v)
			}
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusForbidden:
		return nil, &RateLimitError{
			StatusCode:     resp.StatusCode,
			RetryAfter:     parseRetryAfter(resp.Header),
			IsBotDetection: resp.StatusCode == http.StatusForbidden,
		}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: urlStr, Body: respBody}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// parseRetryAfter extracts the Retry-After header value, 0 if absent.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}
	return 0
}

// hostOf returns the host without port, or "unknown".
func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

// CircuitState returns the breaker state for the host of urlStr.
func (c *Client) CircuitState(urlStr string) CircuitState {
	return c.circuitBreaker.State(hostOf(urlStr))
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
