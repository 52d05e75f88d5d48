package http

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// SessionConfig configures cookies, proxy and default headers.
type SessionConfig struct {
	// CookieFile is a Netscape-format cookie export (the format yt-dlp reads).
	CookieFile string
	// ProxyURL routes all requests through an HTTP(S) or SOCKS proxy.
	ProxyURL string
	// AcceptLanguage is sent on every request. Default: "en-US,en;q=0.9"
	AcceptLanguage string
}

// Session holds the cookie jar and proxy shared by every request of one client.
type Session struct {
	jar     http.CookieJar
	proxy   *url.URL
	headers map[string]string
	cookies int
}

// NewSession builds a session, loading cookies from cfg.CookieFile when set.
// A missing cookie file is an error: a configured but absent file is a deployment mistake.
func NewSession(cfg SessionConfig) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	s := &Session{
		jar: jar,
		headers: map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		},
	}
	if cfg.AcceptLanguage != "" {
		s.headers["Accept-Language"] = cfg.AcceptLanguage
	}

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", cfg.ProxyURL)
		}
		s.proxy = u
	}

	if cfg.CookieFile != "" {
		f, err := os.Open(cfg.CookieFile)
		if err != nil {
			return nil, fmt.Errorf("open cookie file: %w", err)
		}
		defer f.Close()

		cookies, err := ParseNetscapeCookies(f)
		if err != nil {
			return nil, fmt.Errorf("parse cookie file: %w", err)
		}
		s.setCookies(cookies)
	}

	return s, nil
}

// Jar returns the session cookie jar.
func (s *Session) Jar() http.CookieJar { return s.jar }

// Proxy returns the configured proxy or nil.
func (s *Session) Proxy() *url.URL { return s.proxy }

// CookieCount returns how many cookies were loaded from the cookie file.
func (s *Session) CookieCount() int { return s.cookies }

// Headers returns a copy of the default request headers.
func (s *Session) Headers() map[string]string {
	out := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		out[k] = v
	}
	return out
}

func (s *Session) setCookies(cookies []*http.Cookie) {
	byHost := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		byHost[host] = append(byHost[host], c)
	}
	for host, cs := range byHost {
		s.jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, cs)
		s.cookies += len(cs)
	}
}

// ParseNetscapeCookies reads the tab-separated cookies.txt format:
// domain, include-subdomains, path, secure, expiry, name, value.
// Expired cookies are skipped.
func ParseNetscapeCookies(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	now := time.Now()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")

		httpOnly := false
		if strings.HasPrefix(text, "#HttpOnly_") {
			text = strings.TrimPrefix(text, "#HttpOnly_")
			httpOnly = true
		}
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: expected 7 fields, got %d", line, len(fields))
		}

		c := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
			if c.Expires.Before(now) {
				continue
			}
		}
		cookies = append(cookies, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}
