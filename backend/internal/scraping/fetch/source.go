// Package fetch loads HTML pages for the collectors, either with a plain
// HTTP GET or through a headless browser for pages rendered by JavaScript.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
)

// PageSource returns the parsed document at a URL.
type PageSource interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code error: %d (%s)", e.Code, e.URL)
}

// Is lets errors.Is(err, domain.ErrNotFound) match 404 and 410.
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrNotFound && (e.Code == http.StatusNotFound || e.Code == http.StatusGone)
}

func (e *StatusError) temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
	// MaxAttempts bounds retries of transient failures. Default: 1.
	MaxAttempts int
	Backoff     time.Duration
	// Sleep waits between attempts. Default honours ctx.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTPSource fetches pages with net/http and parses them with goquery.
type HTTPSource struct {
	cfg HTTPConfig
}

func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	cfg.defaults()
	return &HTTPSource{cfg: cfg}
}

// Document GETs url, retrying network errors, 429 and 5xx responses.
func (s *HTTPSource) Document(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		doc, err := s.get(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		var status *StatusError
		if errors.As(err, &status) && !status.temporary() {
			return nil, err
		}
		if ctx.Err() != nil || attempt == s.cfg.MaxAttempts {
			break
		}
		s.cfg.Logger.Warn("fetch: retrying", "url", url, "attempt", attempt, "error", err)
		if err := s.cfg.Sleep(ctx, s.cfg.Backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *HTTPSource) get(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := s.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: get %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
		return nil, &StatusError{URL: url, Code: res.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch: parse %s: %w", url, err)
	}
	doc.Url = res.Request.URL
	return doc, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
