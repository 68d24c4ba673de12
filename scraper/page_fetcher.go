package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent with every page fetch and API call.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) PriceTracker/1.0"

// ContentSource returns the raw text behind a URL. Plain fetches and headless
// renders both satisfy it; extraction only ever sees text.
type ContentSource interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// PageFetcher performs a single polite GET per call using colly, with a
// per-host rate limit so one cycle does not hammer a shop.
type PageFetcher struct {
	userAgent string
	timeout   time.Duration
	hostRate  rate.Limit
	hostBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// PageFetcherOptions tunes PageFetcher. Zero values pick defaults.
type PageFetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
	// HostInterval is the minimum spacing between requests to one host.
	HostInterval time.Duration
	HostBurst    int
}

// NewPageFetcher creates a fetcher.
func NewPageFetcher(opts PageFetcherOptions) *PageFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.HostInterval <= 0 {
		opts.HostInterval = time.Second
	}
	if opts.HostBurst <= 0 {
		opts.HostBurst = 2
	}
	return &PageFetcher{
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		hostRate:  rate.Every(opts.HostInterval),
		hostBurst: opts.HostBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Fetch returns the response body for rawURL. There is no retry; the next
// scheduled cycle is the retry.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: cannot fetch %q", ErrInvalidURLShape, rawURL)
	}
	if err := f.limiterFor(u.Hostname()).Wait(ctx); err != nil {
		return "", &RequestError{URL: rawURL, Err: err}
	}

	c := colly.NewCollector(colly.UserAgent(f.userAgent), colly.AllowURLRevisit())
	c.SetRequestTimeout(f.timeout)

	var (
		body   string
		status int
		reqErr error
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	if err := c.Visit(u.String()); err != nil && reqErr == nil {
		reqErr = err
	}
	if ctx.Err() != nil {
		return "", &RequestError{URL: rawURL, Status: status, Err: ctx.Err()}
	}
	if reqErr != nil {
		return "", &RequestError{URL: rawURL, Status: status, Err: reqErr}
	}
	if status >= http.StatusBadRequest {
		return "", &RequestError{URL: rawURL, Status: status, Err: errors.New(http.StatusText(status))}
	}
	return body, nil
}

func (f *PageFetcher) limiterFor(host string) *rate.Limiter {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(f.hostRate, f.hostBurst)
	f.limiters[host] = l
	return l
}
