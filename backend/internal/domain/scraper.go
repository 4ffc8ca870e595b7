// backend/internal/domain/scraper.go

package domain

import (
	"context"
	"fmt"
)

// Source tags the site an extractor scrapes.
type Source string

const (
	SourceRightmove Source = "rightmove"
	SourceRegister  Source = "register"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceRightmove, SourceRegister:
		return Source(s), nil
	}
	return "", fmt.Errorf("domain: unknown source %q", s)
}

// Extractor fetches the entities published for one key (a postcode).
// An empty result is not an error. Failures are reported as
// *ExtractionError so callers can tell them apart from storage errors.
type Extractor interface {
	Source() Source
	Fetch(ctx context.Context, key string) ([]Entity, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc struct {
	Src Source
	Fn  func(ctx context.Context, key string) ([]Entity, error)
}

func (f ExtractorFunc) Source() Source { return f.Src }

func (f ExtractorFunc) Fetch(ctx context.Context, key string) ([]Entity, error) {
	return f.Fn(ctx, key)
}
