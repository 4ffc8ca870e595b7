package services

import (
	"log/slog"
	"time"
)

// Status is the outcome of one key.
type Status string

const (
	StatusSaved   Status = "saved"
	StatusSkipped Status = "save_skipped"
	StatusFailed  Status = "failed"
)

// KeyResult aggregates every pipeline's outcome for one key.
type KeyResult struct {
	Key             string
	Status          Status
	Records         int
	Created         int
	Unchanged       int
	StorageFailures int
	Advanced        bool
	Errors          []error
}

// Summary is the result of a run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Keys       []KeyResult
}

func (s *Summary) keysWith(st Status) []string {
	var out []string
	for _, k := range s.Keys {
		if k.Status == st {
			out = append(out, k.Key)
		}
	}
	return out
}

// Saved lists keys that produced at least one new version.
func (s *Summary) Saved() []string { return s.keysWith(StatusSaved) }

// Skipped lists keys whose records were all unchanged.
func (s *Summary) Skipped() []string { return s.keysWith(StatusSkipped) }

// Failed lists keys to be retried on the next run.
func (s *Summary) Failed() []string { return s.keysWith(StatusFailed) }

// Versions returns the number of new versions and unchanged records.
func (s *Summary) Versions() (created, unchanged int) {
	for _, k := range s.Keys {
		created += k.Created
		unchanged += k.Unchanged
	}
	return created, unchanged
}

// Log writes the end-of-run summary.
func (s *Summary) Log(log *slog.Logger) {
	created, unchanged := s.Versions()
	log.Info("scraping: run completed",
		"run", s.RunID,
		"processed", len(s.Keys),
		"saved", s.Saved(),
		"skipped", s.Skipped(),
		"failed", s.Failed(),
		"new_versions", created,
		"unchanged", unchanged,
		"duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String())
	if failed := s.Failed(); len(failed) > 0 {
		log.Warn("scraping: failed keys will be retried next run", "keys", failed)
	}
}
