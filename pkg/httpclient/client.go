// Package httpclient provides the outbound HTTP client for upstream requests.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"anime1-proxy-go/pkg/config"
	"anime1-proxy-go/pkg/logging"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// userAgents is the pool of client identities rotated per request.
// Rotation is cosmetic, not security relevant.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Client wraps http.Client for upstream traffic. All outbound requests share
// one cookie jar (the resolution endpoint sets session cookies the media CDN
// expects back), one bounded connection pool, and one rate limiter.
type Client struct {
	pages   *http.Client // finite overall timeout, page and API requests
	media   *http.Client // header timeout only, bodies are relayed to players
	limiter *rate.Limiter
	log     *logging.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates the upstream client from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = transport
	if cfg.UpstreamUTLS {
		rt = newUTLSRoundTripper()
		log.Debug("upstream TLS fingerprinting enabled")
	}

	c := &Client{
		pages: &http.Client{
			Transport: rt,
			Jar:       jar,
			Timeout:   cfg.FetchTimeout,
		},
		media: &http.Client{
			Transport: rt,
			Jar:       jar,
			// No overall timeout: media bodies stream for as long as the
			// player keeps reading. Header latency is still bounded by the
			// transport's ResponseHeaderTimeout.
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), max(cfg.UpstreamBurst, 1)),
		log:     log.WithComponent("httpclient"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return c, nil
}

// buildTransport constructs the shared upstream transport with a bounded
// per-host connection cap and optional outbound proxy.
func buildTransport(cfg *config.Config) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		MaxConnsPerHost:       cfg.UpstreamConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{},
	}

	if cfg.UpstreamProxy == "" {
		return transport, nil
	}

	parsed, err := url.Parse(cfg.UpstreamProxy)
	if err != nil {
		return nil, fmt.Errorf("parse upstream proxy %q: %w", cfg.UpstreamProxy, err)
	}
	switch parsed.Scheme {
	case "socks5", "socks5h":
		d, err := proxy.FromURL(parsed, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.Dial = d.Dial
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
	return transport, nil
}

// UserAgent returns a random identity from the pool.
func (c *Client) UserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return userAgents[c.rng.Intn(len(userAgents))]
}

// Do executes a page or API request, honoring the outbound rate limit.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.pages.Do(req)
}

// DoMedia executes a media request whose body will be relayed to the caller.
// Rate limited like page requests; not bounded by the page timeout.
func (c *Client) DoMedia(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.media.Do(req)
}

// Cookies returns the jar's cookies for the given URL.
func (c *Client) Cookies(u *url.URL) []*http.Cookie {
	if c.pages.Jar == nil {
		return nil
	}
	return c.pages.Jar.Cookies(u)
}
