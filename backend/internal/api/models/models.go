// Package models holds the JSON bodies served by the HTTP API.
package models

import (
	"time"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	scraping "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
)

type Error struct {
	Error string `json:"error"`
}

type Health struct {
	Status string `json:"status"`
	App    string `json:"app"`
}

// Version is one stored version of an entity.
type Version struct {
	Ordinal int           `json:"ordinal"`
	Record  domain.Record `json:"record"`
}

type Cursor struct {
	LastPostcode *string  `json:"last_postcode"`
	Next         []string `json:"next,omitempty"`
}

// KeyResult is one key of a scrape run.
type KeyResult struct {
	Key             string   `json:"key"`
	Status          string   `json:"status"`
	Records         int      `json:"records"`
	Created         int      `json:"created"`
	Unchanged       int      `json:"unchanged"`
	StorageFailures int      `json:"storage_failures"`
	Advanced        bool     `json:"advanced"`
	Errors          []string `json:"errors,omitempty"`
}

// RunSummary reports a run triggered through the API.
type RunSummary struct {
	RunID       string      `json:"run_id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Saved       []string    `json:"saved"`
	Skipped     []string    `json:"skipped"`
	Failed      []string    `json:"failed"`
	NewVersions int         `json:"new_versions"`
	Unchanged   int         `json:"unchanged"`
	Keys        []KeyResult `json:"keys"`
}

func NewRunSummary(s *scraping.Summary) RunSummary {
	created, unchanged := s.Versions()
	out := RunSummary{
		RunID:       s.RunID,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		Saved:       nonNil(s.Saved()),
		Skipped:     nonNil(s.Skipped()),
		Failed:      nonNil(s.Failed()),
		NewVersions: created,
		Unchanged:   unchanged,
		Keys:        make([]KeyResult, 0, len(s.Keys)),
	}
	for _, k := range s.Keys {
		kr := KeyResult{
			Key:             k.Key,
			Status:          string(k.Status),
			Records:         k.Records,
			Created:         k.Created,
			Unchanged:       k.Unchanged,
			StorageFailures: k.StorageFailures,
			Advanced:        k.Advanced,
		}
		for _, err := range k.Errors {
			kr.Errors = append(kr.Errors, err.Error())
		}
		out.Keys = append(out.Keys, kr)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
