// Package services drives the scrape of a batch of postcodes: every
// extractor runs for each key, its records go to the snapshot store, and the
// cursor moves past a key only once that key completed without failure.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/snapshot"
)

// ErrRunInProgress is returned when another process holds the state lock.
var ErrRunInProgress = errors.New("scraping: another run holds the state lock")

// Saver persists one entity record. *snapshot.Store implements it.
type Saver interface {
	Save(entityID string, rec domain.Record) (snapshot.Result, error)
}

// Cursor plans and records round-robin progress. *cursor.Cursor implements it.
type Cursor interface {
	NextKeys(keys []string, count int) ([]string, error)
	Advance(key string) error
}

// RunRecorder keeps a ledger of runs. Failures to record are logged only.
type RunRecorder interface {
	StartRun(ctx context.Context, runID string, keys []string, startedAt time.Time) error
	RecordKey(ctx context.Context, runID string, res KeyResult) error
	FinishRun(ctx context.Context, summary *Summary) error
}

// Pipeline pairs an extractor with the store of its entity namespace.
type Pipeline struct {
	Extractor domain.Extractor
	Store     Saver
}

type Config struct {
	// Delay is the fixed pause between two keys.
	Delay time.Duration
	// Sleep waits between keys. Default honours ctx; tests pass a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
	// LockPath, when set, is locked exclusively for the duration of a run.
	LockPath string
	Recorder RunRecorder
	Now      func() time.Time
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type ScraperService struct {
	pipelines []Pipeline
	cursor    Cursor
	cfg       Config
}

func NewScraperService(pipelines []Pipeline, cur Cursor, cfg Config) *ScraperService {
	cfg.defaults()
	return &ScraperService{pipelines: pipelines, cursor: cur, cfg: cfg}
}

// ScrapeNext processes the next count keys of keyList after the cursor and
// advances the cursor after each completed key, up to the first failed key
// of the batch. An empty key list
// is an *domain.InputError returned before any I/O.
func (s *ScraperService) ScrapeNext(ctx context.Context, keyList []string, count int) (*Summary, error) {
	keys, err := s.cursor.NextKeys(keyList, count)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, keys, true)
}

// ScrapeAndStore processes explicit keys. The cursor is left untouched.
func (s *ScraperService) ScrapeAndStore(ctx context.Context, keys []string) (*Summary, error) {
	if len(keys) == 0 {
		return nil, &domain.InputError{Msg: "scrape", Err: domain.ErrEmptyKeyList}
	}
	return s.run(ctx, keys, false)
}

func (s *ScraperService) run(ctx context.Context, keys []string, advance bool) (*Summary, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := s.cfg.Logger
	summary := &Summary{
		RunID:     newRunID(),
		StartedAt: s.cfg.Now().UTC(),
		Keys:      make([]KeyResult, 0, len(keys)),
	}
	if rec := s.cfg.Recorder; rec != nil {
		if err := rec.StartRun(ctx, summary.RunID, keys, summary.StartedAt); err != nil {
			log.Warn("scraping: record run start", "run", summary.RunID, "error", err)
		}
	}
	log.Info("scraping: run started", "run", summary.RunID, "keys", keys)

	var (
		runErr error
		// Once a key fails the cursor stays on the key before it, so the
		// next run starts with the failed key. Later keys are still scraped.
		held bool
	)
	for i, key := range keys {
		if i > 0 {
			if err := s.cfg.Sleep(ctx, s.cfg.Delay); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		res := s.processKey(ctx, key)
		if res.Status == StatusFailed && advance && !held {
			held = true
			log.Warn("scraping: cursor held before failed key", "key", key)
		}
		if advance && !held {
			if err := s.cursor.Advance(key); err != nil {
				log.Error("scraping: advance cursor", "key", key, "error", err)
				res.Errors = append(res.Errors, fmt.Errorf("advance cursor: %w", err))
				held = true
			} else {
				res.Advanced = true
			}
		}
		summary.Keys = append(summary.Keys, res)

		if rec := s.cfg.Recorder; rec != nil {
			if err := rec.RecordKey(ctx, summary.RunID, res); err != nil {
				log.Warn("scraping: record key", "run", summary.RunID, "key", key, "error", err)
			}
		}
	}

	summary.FinishedAt = s.cfg.Now().UTC()
	if rec := s.cfg.Recorder; rec != nil {
		// The ledger entry is closed even when ctx was cancelled.
		if err := rec.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			log.Warn("scraping: record run finish", "run", summary.RunID, "error", err)
		}
	}
	summary.Log(log)
	return summary, runErr
}

// processKey runs every pipeline for key: PENDING → FETCHING → SAVED |
// SAVE_SKIPPED | FAILED. One failing pipeline or record does not stop the
// others but fails the key.
func (s *ScraperService) processKey(ctx context.Context, key string) KeyResult {
	log := s.cfg.Logger.With("key", key)
	res := KeyResult{Key: key}

	for _, p := range s.pipelines {
		src := p.Extractor.Source()
		entities, err := p.Extractor.Fetch(ctx, key)
		if err != nil {
			var extractErr *domain.ExtractionError
			if !errors.As(err, &extractErr) {
				err = &domain.ExtractionError{Source: src, Key: key, Err: err}
			}
			log.Warn("scraping: extraction failed", "source", src, "error", err)
			res.Errors = append(res.Errors, err)
			continue
		}
		log.Debug("scraping: fetched", "source", src, "records", len(entities))

		for _, e := range entities {
			r, err := p.Store.Save(e.EntityID(), e.Record())
			if err != nil {
				log.Error("scraping: save failed", "source", src, "entity", e.EntityID(), "error", err)
				res.Errors = append(res.Errors, err)
				res.StorageFailures++
				continue
			}
			res.Records++
			if r.Created {
				res.Created++
			} else {
				res.Unchanged++
			}
		}
	}

	switch {
	case len(res.Errors) > 0:
		res.Status = StatusFailed
	case res.Created > 0:
		res.Status = StatusSaved
	default:
		res.Status = StatusSkipped
	}
	return res
}

func (s *ScraperService) lock() (func(), error) {
	if s.cfg.LockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.LockPath), 0o755); err != nil {
		return nil, fmt.Errorf("scraping: lock dir: %w", err)
	}
	fl := flock.New(s.cfg.LockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("scraping: lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.cfg.Logger.Warn("scraping: unlock", "error", err)
		}
	}, nil
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func sleep(ctx context.Context, d time.Duration) error {
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
