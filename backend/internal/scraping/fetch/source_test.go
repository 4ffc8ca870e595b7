package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestHTTPSourceDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1 class="heading-large">Hello</h1><p id="ua">` + r.UserAgent() + `</p></body></html>`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{UserAgent: "test-agent"})
	doc, err := src.Document(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Hello", doc.Find("h1.heading-large").Text())
	require.Equal(t, "test-agent", doc.Find("#ua").Text())
	require.NotNil(t, doc.Url)
}

func TestHTTPSourceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`<p>ok</p>`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{MaxAttempts: 3, Sleep: noSleep})
	doc, err := src.Document(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", doc.Find("p").Text())
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPSourceNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{MaxAttempts: 3, Sleep: noSleep})
	_, err := src.Document(context.Background(), srv.URL)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, int32(1), calls.Load())
}

func TestHTTPSourceGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{MaxAttempts: 2, Sleep: noSleep})
	_, err := src.Document(context.Background(), srv.URL)
	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusServiceUnavailable, status.Code)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, Sleep(context.Background(), 0))
}
