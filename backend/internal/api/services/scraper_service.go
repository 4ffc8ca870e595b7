// Package services adapts the scraping service to HTTP-triggered runs.
package services

import (
	"context"
	"sync"

	"github.com/ps-vitor/lettings-watch/backend/internal/cursor"
	scraping "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
)

// Scraper runs the next cursor batch. *scraping.ScraperService implements it.
type Scraper interface {
	ScrapeNext(ctx context.Context, keyList []string, count int) (*scraping.Summary, error)
}

// ScrapeTrigger serialises API-triggered runs within the process. A
// trigger while a run is active fails with scraping.ErrRunInProgress.
type ScrapeTrigger struct {
	mu      sync.Mutex
	scraper Scraper
	keyList string
	count   int
}

// NewScrapeTrigger reads keyList on every trigger so edits take effect
// without a restart. count is the default batch size.
func NewScrapeTrigger(scraper Scraper, keyList string, count int) *ScrapeTrigger {
	if count < 1 {
		count = 1
	}
	return &ScrapeTrigger{scraper: scraper, keyList: keyList, count: count}
}

// Trigger runs count keys, or the default batch size when count is 0.
func (t *ScrapeTrigger) Trigger(ctx context.Context, count int) (*scraping.Summary, error) {
	if !t.mu.TryLock() {
		return nil, scraping.ErrRunInProgress
	}
	defer t.mu.Unlock()

	keys, err := cursor.LoadKeys(t.keyList)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		count = t.count
	}
	return t.scraper.ScrapeNext(ctx, keys, count)
}
