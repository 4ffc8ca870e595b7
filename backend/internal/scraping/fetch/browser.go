package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures a BrowserSource.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local browser.
	RemoteURL string
	Headful   bool
	Timeout   time.Duration
	// Settle is the pause after load for scripts to render results.
	Settle time.Duration
	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserSource renders pages in a stealth Chrome tab and parses the
// resulting DOM with goquery. The browser starts lazily on first use.
type BrowserSource struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

func NewBrowserSource(cfg BrowserConfig) *BrowserSource {
	cfg.defaults()
	return &BrowserSource{cfg: cfg}
}

func (s *BrowserSource) connect() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return s.browser, nil
	}

	wsURL := s.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(!s.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("fetch: launch browser: %w", err)
		}
		s.lnch = l
		wsURL = u
		s.cfg.Logger.Info("fetch: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("fetch: connect browser: %w", err)
	}
	s.browser = b
	return b, nil
}

// Document opens url in a fresh stealth tab and returns the rendered DOM.
func (s *BrowserSource) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	b, err := s.connect()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("fetch: open tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("fetch: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		s.cfg.Logger.Warn("fetch: wait load", "url", pageURL, "error", err)
	}
	if err := Sleep(ctx, s.cfg.Settle); err != nil {
		return nil, err
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("fetch: read DOM %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("fetch: parse %s: %w", pageURL, err)
	}
	if u, err := url.Parse(pageURL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

// Close shuts the browser down.
func (s *BrowserSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return err
}
