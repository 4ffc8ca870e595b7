package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	services "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one scrape run as recorded in the ledger.
type Run struct {
	ID          string     `json:"id"`
	Keys        []string   `json:"keys"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Saved       int        `json:"saved"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	NewVersions int        `json:"new_versions"`
	Unchanged   int        `json:"unchanged"`
}

// KeyOutcome is the recorded result of one key within a run.
type KeyOutcome struct {
	Key             string `json:"key"`
	Status          string `json:"status"`
	Records         int    `json:"records"`
	Created         int    `json:"created"`
	Unchanged       int    `json:"unchanged"`
	StorageFailures int    `json:"storage_failures"`
	Advanced        bool   `json:"advanced"`
	Error           string `json:"error,omitempty"`
}

// RunRepository reads and writes the run ledger. The writing half matches
// the scraping service's recorder hook.
type RunRepository interface {
	services.RunRecorder
	Recent(ctx context.Context, limit int) ([]Run, error)
	Get(ctx context.Context, id string) (*Run, []KeyOutcome, error)
	KeyHistory(ctx context.Context, key string, limit int) ([]KeyOutcome, error)
}

type SQLiteRunRepository struct {
	db *sql.DB
}

var _ RunRepository = (*SQLiteRunRepository)(nil)

func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

func (r *SQLiteRunRepository) StartRun(ctx context.Context, runID string, keys []string, startedAt time.Time) error {
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("repositories: encode keys: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, keys_json, started_at) VALUES (?, ?, ?)`,
		runID, string(keysJSON), startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("repositories: insert run: %w", err)
	}
	return nil
}

func (r *SQLiteRunRepository) RecordKey(ctx context.Context, runID string, res services.KeyResult) error {
	msgs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		msgs = append(msgs, e.Error())
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO run_keys (run_id, seq, key, status, records, created, unchanged,
		storage_failures, advanced, error)
		VALUES (?, (SELECT COUNT(*) FROM run_keys WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, runID, res.Key, string(res.Status), res.Records, res.Created, res.Unchanged,
		res.StorageFailures, res.Advanced, strings.Join(msgs, "; "))
	if err != nil {
		return fmt.Errorf("repositories: insert key: %w", err)
	}
	return nil
}

func (r *SQLiteRunRepository) FinishRun(ctx context.Context, s *services.Summary) error {
	created, unchanged := s.Versions()
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, saved = ?, skipped = ?, failed = ?,
		new_versions = ?, unchanged = ? WHERE id = ?`,
		s.FinishedAt.UnixMilli(), len(s.Saved()), len(s.Skipped()), len(s.Failed()),
		created, unchanged, s.RunID)
	if err != nil {
		return fmt.Errorf("repositories: finish run: %w", err)
	}
	return nil
}

const runColumns = `id, keys_json, started_at, finished_at, saved, skipped, failed, new_versions, unchanged`

// Recent returns the latest runs, newest first.
func (r *SQLiteRunRepository) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("repositories: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// Get returns a run and its key outcomes in processing order.
func (r *SQLiteRunRepository) Get(ctx context.Context, id string) (*Run, []KeyOutcome, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	keys, err := r.queryKeys(ctx,
		`SELECT key, status, records, created, unchanged, storage_failures, advanced, error
		FROM run_keys WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, nil, err
	}
	return run, keys, nil
}

// KeyHistory returns the outcomes recorded for one postcode, newest first.
func (r *SQLiteRunRepository) KeyHistory(ctx context.Context, key string, limit int) ([]KeyOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.queryKeys(ctx,
		`SELECT k.key, k.status, k.records, k.created, k.unchanged, k.storage_failures, k.advanced, k.error
		FROM run_keys k JOIN runs r ON r.id = k.run_id
		WHERE k.key = ? ORDER BY r.started_at DESC, k.seq DESC LIMIT ?`, key, limit)
}

func (r *SQLiteRunRepository) queryKeys(ctx context.Context, query string, args ...any) ([]KeyOutcome, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repositories: query keys: %w", err)
	}
	defer rows.Close()

	var out []KeyOutcome
	for rows.Next() {
		var k KeyOutcome
		if err := rows.Scan(&k.Key, &k.Status, &k.Records, &k.Created, &k.Unchanged,
			&k.StorageFailures, &k.Advanced, &k.Error); err != nil {
			return nil, fmt.Errorf("repositories: scan key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run      Run
		keysJSON string
		started  int64
		finished sql.NullInt64
	)
	err := sc.Scan(&run.ID, &keysJSON, &started, &finished,
		&run.Saved, &run.Skipped, &run.Failed, &run.NewVersions, &run.Unchanged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(keysJSON), &run.Keys); err != nil {
		return nil, fmt.Errorf("repositories: decode keys of %s: %w", run.ID, err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}
