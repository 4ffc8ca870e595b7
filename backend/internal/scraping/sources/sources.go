// Package sources turns configuration into scraping pipelines: one
// extractor and one snapshot namespace per source.
package sources

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ps-vitor/lettings-watch/backend/internal/config"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/collectors/register"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/collectors/rightmove"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/fetch"
	services "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
	"github.com/ps-vitor/lettings-watch/backend/internal/snapshot"
)

// File naming per namespace: rightmove_{id}-{n}.json for listings and
// {licence}_{n}.json for licences.
const (
	ListingPrefix    = "rightmove_"
	LicenceSeparator = "_"
)

// Set is the pipelines built for one run. Close releases browser sessions.
type Set struct {
	Pipelines []services.Pipeline
	Stores    map[domain.Source]*snapshot.Store
	closers   []io.Closer
}

func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Names parses source names; "all" or an empty list selects every source
// enabled in cfg.Schedule.Sources.
func Names(cfg *config.Config, names []string) ([]domain.Source, error) {
	if len(names) == 0 || (len(names) == 1 && names[0] == "all") {
		names = cfg.Schedule.Sources
	}
	seen := map[domain.Source]bool{}
	var out []domain.Source
	for _, n := range names {
		src, err := domain.ParseSource(n)
		if err != nil {
			return nil, &domain.InputError{Msg: "source", Err: err}
		}
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return out, nil
}

// Store opens the snapshot namespace of src.
func Store(cfg *config.Config, src domain.Source, log *slog.Logger) (*snapshot.Store, error) {
	if log == nil {
		log = slog.Default()
	}
	sc := snapshot.Config{Logger: log.With("source", string(src))}
	switch src {
	case domain.SourceRightmove:
		sc.Dir, sc.Prefix = cfg.ListingsPath(), ListingPrefix
	case domain.SourceRegister:
		sc.Dir, sc.Separator = cfg.LicencesPath(), LicenceSeparator
	default:
		return nil, fmt.Errorf("sources: unknown source %q", src)
	}
	return snapshot.New(sc)
}

// Stores opens every namespace, for readers that do not scrape.
func Stores(cfg *config.Config, log *slog.Logger) (map[domain.Source]*snapshot.Store, error) {
	out := map[domain.Source]*snapshot.Store{}
	for _, src := range []domain.Source{domain.SourceRightmove, domain.SourceRegister} {
		st, err := Store(cfg, src, log)
		if err != nil {
			return nil, err
		}
		out[src] = st
	}
	return out, nil
}

// Extractor builds the extractor of src. The closer is nil unless the
// extractor holds a browser.
func Extractor(cfg *config.Config, src domain.Source, log *slog.Logger) (domain.Extractor, io.Closer, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("source", string(src))
	switch src {
	case domain.SourceRightmove:
		rm := cfg.Scraping.Rightmove
		c, err := rightmove.NewCollector(rightmove.Config{
			BaseURL:             rm.BaseURL,
			SearchPath:          rm.SearchPath,
			LocationCodes:       rm.LocationCodes,
			DefaultLocationCode: rm.DefaultLocationCode,
			MaxPages:            rm.MaxPages,
			UserAgent:           rm.UserAgent,
			Delay:               rm.RateLimit.Delay,
			RandomDelay:         rm.RateLimit.RandomDelay,
			Timeout:             rm.Timeout,
			Logger:              log,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil

	case domain.SourceRegister:
		rg := cfg.Scraping.Register
		var (
			page   fetch.PageSource
			closer io.Closer
		)
		switch rg.Fetcher {
		case "browser":
			b := fetch.NewBrowserSource(fetch.BrowserConfig{
				RemoteURL: rg.Browser.RemoteURL,
				Headful:   rg.Browser.Headful,
				Timeout:   rg.Timeout,
				Logger:    log,
			})
			page, closer = b, b
		case "http":
			page = fetch.NewHTTPSource(fetch.HTTPConfig{
				UserAgent:   rg.UserAgent,
				Timeout:     rg.Timeout,
				MaxAttempts: rg.RetryPolicy.MaxAttempts,
				Backoff:     rg.RetryPolicy.Backoff,
				Logger:      log,
			})
		default:
			return nil, nil, fmt.Errorf("sources: unknown register fetcher %q", rg.Fetcher)
		}
		c := register.NewCollector(page, register.Config{
			BaseURL:     rg.BaseURL,
			SearchPath:  rg.SearchPath,
			DetailDelay: rg.DetailDelay,
			Logger:      log,
		})
		return c, closer, nil
	}
	return nil, nil, fmt.Errorf("sources: unknown source %q", src)
}

// Build creates one pipeline per source, in the given order.
func Build(cfg *config.Config, srcs []domain.Source, log *slog.Logger) (*Set, error) {
	if log == nil {
		log = slog.Default()
	}
	set := &Set{Stores: map[domain.Source]*snapshot.Store{}}
	for _, src := range srcs {
		ex, closer, err := Extractor(cfg, src, log)
		if err != nil {
			set.Close()
			return nil, err
		}
		if closer != nil {
			set.closers = append(set.closers, closer)
		}
		st, err := Store(cfg, src, log)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.Stores[src] = st
		set.Pipelines = append(set.Pipelines, services.Pipeline{Extractor: ex, Store: st})
	}
	return set, nil
}
