package register

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/fetch"
)

const searchPage = `<html><body>
<div class="results">
  <h2><a href="/public-register/property/101?ref=search">Flat 1, 10 Example Road, London N19 4JN</a></h2>
  <h2><a href="/public-register/property/102">12 Example Road, London N19 4JN</a></h2>
  <h2><a href="/public-register/property/101?ref=search">Flat 1, 10 Example Road, London N19 4JN</a></h2>
</div></body></html>`

const detailPage = `<html><body><div class="grid-row"><div class="column-full">
<h1 class="heading-large">Flat 1, 10 Example Road, London N19 4JN</h1>
<h2 class="heading-medium">Licence number ISL-403549725326</h2>
<div>
  <p><span class="bold">Licence type</span><br>Selective licence</p>
  <p>
    Year built
    1890
  </p>
  <p><span class="bold">Licence holder name</span> A Landlord</p>
  <p><span class="bold">Licence start date</span> 01/04/2023</p>
  <p><span class="bold">Favourite colour</span> Blue</p>
</div>
<a href="/public-register/property/101/additional">Additional details</a>
</div></div></body></html>`

const additionalPage = `<html><body><div class="grid-row"><div class="column-full"><div>
<p><span class="bold">No. of storeys</span> 3</p>
<p><span class="bold">Maximum occupants</span> 5</p>
</div></div></div></body></html>`

const detailNoLicence = `<html><body><div class="grid-row"><div class="column-full">
<h1 class="heading-large">12 Example Road, London N19 4JN</h1>
<div><p><span class="bold">UPRN</span> 5300012345</p></div>
</div></div></body></html>`

func newServer(t *testing.T, detailStatus, additionalStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/public-register", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search_query") != "N19 4JN" {
			fmt.Fprint(w, `<html><body><p>No results</p></body></html>`)
			return
		}
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/public-register/property/101", func(w http.ResponseWriter, r *http.Request) {
		if detailStatus != http.StatusOK {
			w.WriteHeader(detailStatus)
			return
		}
		fmt.Fprint(w, detailPage)
	})
	mux.HandleFunc("/public-register/property/101/additional", func(w http.ResponseWriter, r *http.Request) {
		if additionalStatus != http.StatusOK {
			w.WriteHeader(additionalStatus)
			return
		}
		fmt.Fprint(w, additionalPage)
	})
	mux.HandleFunc("/public-register/property/102", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailNoLicence)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newCollector(srv *httptest.Server, sleeps *int) *Collector {
	return NewCollector(fetch.NewHTTPSource(fetch.HTTPConfig{}), Config{
		BaseURL:     srv.URL,
		DetailDelay: 500 * time.Millisecond,
		Sleep: func(context.Context, time.Duration) error {
			*sleeps++
			return nil
		},
	})
}

func TestFetchLicences(t *testing.T) {
	srv := newServer(t, http.StatusOK, http.StatusOK)
	sleeps := 0
	c := newCollector(srv, &sleeps)

	entities, err := c.Fetch(context.Background(), "N19 4JN")
	require.NoError(t, err)
	require.Len(t, entities, 2)

	first := entities[0].(domain.Licence)
	require.Equal(t, "ISL-403549725326", first.EntityID())
	require.Equal(t, "N19 4JN", first.Postcode)
	require.Equal(t, map[string]string{
		"address":             "Flat 1, 10 Example Road, London N19 4JN",
		"licence_number":      "ISL-403549725326",
		"licence_type":        "Selective licence",
		"year_built":          "1890",
		"licence_holder_name": "A Landlord",
		"licence_start_date":  "01/04/2023",
	}, first.Details)
	require.Equal(t, map[string]string{"no_of_storeys": "3", "maximum_occupants": "5"}, first.AdditionalDetails)

	rec := first.Record()
	require.Equal(t, "register", rec[domain.FieldSource])
	require.Equal(t, "N19 4JN", rec[domain.FieldPostcodeFilter])
	details := rec["details"].(map[string]any)
	require.Equal(t, "3", details["additional_details"].(map[string]any)["no_of_storeys"])

	second := entities[1].(domain.Licence)
	require.Equal(t, "uprn-5300012345", second.EntityID())

	// One pause before the additional page, one between the two properties.
	require.Equal(t, 2, sleeps)
}

func TestFetchNoResults(t *testing.T) {
	srv := newServer(t, http.StatusOK, http.StatusOK)
	sleeps := 0
	entities, err := newCollector(srv, &sleeps).Fetch(context.Background(), "E8 2BB")
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestFetchDetailFailureFailsKey(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, http.StatusOK)
	sleeps := 0
	_, err := newCollector(srv, &sleeps).Fetch(context.Background(), "N19 4JN")

	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.Equal(t, domain.SourceRegister, extractErr.Source)
	require.Equal(t, "N19 4JN", extractErr.Key)
}

func TestFetchAdditionalFailureFailsKey(t *testing.T) {
	srv := newServer(t, http.StatusOK, http.StatusServiceUnavailable)
	sleeps := 0
	entities, err := newCollector(srv, &sleeps).Fetch(context.Background(), "N19 4JN")

	require.Nil(t, entities)
	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.Equal(t, "N19 4JN", extractErr.Key)
	var statusErr *fetch.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}
