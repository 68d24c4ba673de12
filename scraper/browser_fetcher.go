package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// systemChromium is used when present (container images ship it there).
const systemChromium = "/usr/bin/chromium-browser"

// BrowserFetcher renders JavaScript-heavy pages in headless Chromium and
// returns the resulting HTML. The browser is launched lazily on first use.
type BrowserFetcher struct {
	bin       string
	userAgent string
	timeout   time.Duration
	settle    time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// BrowserFetcherOptions tunes BrowserFetcher. Zero values pick defaults.
type BrowserFetcherOptions struct {
	// Bin is an explicit Chromium path; empty auto-detects.
	Bin       string
	UserAgent string
	Timeout   time.Duration
	// Settle is how long to wait after load for late XHR-driven content.
	Settle time.Duration
}

// NewBrowserFetcher creates a fetcher without launching the browser.
func NewBrowserFetcher(opts BrowserFetcherOptions, logger *slog.Logger) *BrowserFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 1500 * time.Millisecond
	}
	return &BrowserFetcher{
		bin:       opts.Bin,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		settle:    opts.Settle,
		logger:    logger.With(slog.String("component", "browser_fetcher")),
	}
}

func (b *BrowserFetcher) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)

	switch {
	case b.bin != "":
		l = l.Bin(b.bin)
	default:
		if _, err := os.Stat(systemChromium); err == nil {
			l = l.Bin(systemChromium)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect chromium: %w", err)
	}
	b.logger.Info("headless browser started", slog.String("control_url", controlURL))
	b.browser = browser
	return browser, nil
}

// Fetch navigates to rawURL, waits for load plus the settle delay and returns
// the rendered document.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	browser, err := b.connect()
	if err != nil {
		return "", &RequestError{URL: rawURL, Err: err}
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", &RequestError{URL: rawURL, Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Debug("close page", slog.String("error", err.Error()))
		}
	}()

	p := page.Timeout(b.timeout)
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent}); err != nil {
		return "", &RequestError{URL: rawURL, Err: fmt.Errorf("set user agent: %w", err)}
	}
	if err := p.Navigate(rawURL); err != nil {
		return "", &RequestError{URL: rawURL, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := p.WaitLoad(); err != nil {
		return "", &RequestError{URL: rawURL, Err: fmt.Errorf("wait load: %w", err)}
	}

	timer := time.NewTimer(b.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", &RequestError{URL: rawURL, Err: ctx.Err()}
	case <-timer.C:
	}

	html, err := p.HTML()
	if err != nil {
		return "", &RequestError{URL: rawURL, Err: fmt.Errorf("read html: %w", err)}
	}
	return html, nil
}

// Close shuts the browser down if it was started.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
