package portal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// maxRedirects bounds redirect chains on login and submit.
const maxRedirects = 10

// ClientOptions configures the portal HTTP client.
type ClientOptions struct {
	// Timeout bounds each request.
	Timeout time.Duration

	// UserAgent is set on requests that do not carry one.
	UserAgent string

	// ProxyURL routes traffic through a socks5:// or http(s):// proxy.
	ProxyURL string

	// RateLimit is requests per second; 0 disables pacing.
	RateLimit float64

	// RateBurst is the limiter burst.
	RateBurst int
}

// NewHTTPClient creates the HTTP client used for the portal.
//
// Design decisions:
//   - A cookie jar keeps the session cookie so the form submission and any
//     redirect after it stay on the session that the captcha was solved for.
//   - Requests are paced by a token bucket because the portal is shared and
//     batch runs would otherwise hit it in bursts.
//   - Redirects are capped to stop login loops.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	if opts.ProxyURL != "" {
		if err := applyProxy(transport, opts.ProxyURL); err != nil {
			return nil, err
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}

	return &http.Client{
		Transport: &pacedTransport{
			base:      transport,
			limiter:   limiter,
			userAgent: opts.UserAgent,
		},
		Timeout: opts.Timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// applyProxy configures transport for a socks5 or http proxy.
func applyProxy(transport *http.Transport, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}

// pacedTransport waits on the rate limiter and sets the User-Agent
// before delegating to the base transport.
type pacedTransport struct {
	base      http.RoundTripper
	limiter   *rate.Limiter
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	return t.base.RoundTrip(req)
}
