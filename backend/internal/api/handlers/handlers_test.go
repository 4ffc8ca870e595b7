package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/lettings-watch/backend/internal/api/models"
	apiservices "github.com/ps-vitor/lettings-watch/backend/internal/api/services"
	"github.com/ps-vitor/lettings-watch/backend/internal/cursor"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/repositories"
	property "github.com/ps-vitor/lettings-watch/backend/internal/services/property"
	scraping "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
	"github.com/ps-vitor/lettings-watch/backend/internal/snapshot"
	"github.com/ps-vitor/lettings-watch/backend/pkg/logger"
)

type fakeScraper struct {
	calls []int
	err   error
}

func (f *fakeScraper) ScrapeNext(_ context.Context, keys []string, count int) (*scraping.Summary, error) {
	f.calls = append(f.calls, count)
	if f.err != nil {
		return nil, f.err
	}
	return &scraping.Summary{
		RunID: "run-1",
		Keys: []scraping.KeyResult{
			{Key: keys[0], Status: scraping.StatusSaved, Records: 1, Created: 1, Advanced: true},
		},
	}, nil
}

type testAPI struct {
	router  *mux.Router
	store   *snapshot.Store
	state   *cursor.MemoryStore
	scraper *fakeScraper
	runs    *repositories.SQLiteRunRepository
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	store, err := snapshot.New(snapshot.Config{Dir: filepath.Join(dir, "listings"), Prefix: "rightmove_", Logger: logger.Discard()})
	require.NoError(t, err)

	keyList := filepath.Join(dir, "postcodes.txt")
	require.NoError(t, os.WriteFile(keyList, []byte("N7\nN19\nE1\n"), 0o644))

	db, err := repositories.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := &testAPI{
		router:  mux.NewRouter(),
		store:   store,
		state:   &cursor.MemoryStore{},
		scraper: &fakeScraper{},
		runs:    repositories.NewSQLiteRunRepository(db),
	}
	props := property.NewPropertyService(map[domain.Source]property.VersionStore{domain.SourceRightmove: store})
	NewAPIHandler(props, Options{
		App:     "lettings-watch",
		Cursor:  cursor.New(a.state),
		KeyList: keyList,
		Batch:   2,
		Runs:    a.runs,
		Logger:  logger.Discard(),
	}).RegisterRoutes(a.router)
	trigger := apiservices.NewScrapeTrigger(a.scraper, keyList, 2)
	NewScrapingHandler(trigger, logger.Discard()).RegisterRoutes(a.router)
	return a
}

func (a *testAPI) do(t *testing.T, method, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	var h models.Health
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", &h))
	require.Equal(t, "ok", h.Status)
}

func TestEntitiesAndVersions(t *testing.T) {
	a := newTestAPI(t)
	_, err := a.store.Save("155000001", domain.Record{"price": "£2,100 pcm"})
	require.NoError(t, err)
	_, err = a.store.Save("155000001", domain.Record{"price": "£2,000 pcm"})
	require.NoError(t, err)

	var all []property.Property
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/rightmove/entities", &all))
	require.Len(t, all, 1)
	require.Equal(t, 2, all[0].Versions)

	var versions []models.Version
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/rightmove/entities/155000001/versions", &versions))
	require.Len(t, versions, 2)

	var v models.Version
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/rightmove/entities/155000001/versions/0", &v))
	require.Equal(t, "£2,100 pcm", v.Record["price"])

	var e models.Error
	require.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/rightmove/entities/999/versions/0", &e))
	require.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/register/entities", &e))
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/zoopla/entities", &e))
}

func TestCursor(t *testing.T) {
	a := newTestAPI(t)
	last := "N7"
	a.state.State = cursor.State{LastPostcode: &last}

	var c models.Cursor
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/cursor", &c))
	require.Equal(t, "N7", *c.LastPostcode)
	require.Equal(t, []string{"N19", "E1"}, c.Next)
}

func TestScrapeTrigger(t *testing.T) {
	a := newTestAPI(t)

	var sum models.RunSummary
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/scrape", &sum))
	require.Equal(t, "run-1", sum.RunID)
	require.Equal(t, []string{"N7"}, sum.Saved)
	require.Empty(t, sum.Failed)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/scrape?count=5", &sum))
	require.Equal(t, []int{2, 5}, a.scraper.calls)

	var e models.Error
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/scrape?count=0", &e))
	require.Equal(t, http.StatusMethodNotAllowed, a.do(t, http.MethodGet, "/api/scrape", nil))

	a.scraper.err = scraping.ErrRunInProgress
	require.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/api/scrape", &e))
}

func TestRuns(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, a.runs.StartRun(ctx, "r1", []string{"N7"}, started))
	require.NoError(t, a.runs.RecordKey(ctx, "r1", scraping.KeyResult{Key: "N7", Status: scraping.StatusSkipped, Advanced: true}))
	require.NoError(t, a.runs.FinishRun(ctx, &scraping.Summary{
		RunID: "r1", StartedAt: started, FinishedAt: started.Add(time.Second),
		Keys: []scraping.KeyResult{{Key: "N7", Status: scraping.StatusSkipped}},
	}))

	var runs []repositories.Run
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/runs", &runs))
	require.Len(t, runs, 1)
	require.Equal(t, 1, runs[0].Skipped)

	var run struct {
		ID       string                    `json:"id"`
		Outcomes []repositories.KeyOutcome `json:"outcomes"`
	}
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/runs/r1", &run))
	require.Equal(t, "r1", run.ID)
	require.Len(t, run.Outcomes, 1)

	var hist []repositories.KeyOutcome
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/keys/N7/runs", &hist))
	require.Len(t, hist, 1)

	var e models.Error
	require.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/runs/nope", &e))
}
