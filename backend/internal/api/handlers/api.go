package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ps-vitor/lettings-watch/backend/internal/api/models"
	"github.com/ps-vitor/lettings-watch/backend/internal/cursor"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/repositories"
	property "github.com/ps-vitor/lettings-watch/backend/internal/services/property"
)

// CursorReader exposes the persisted cursor. *cursor.Cursor implements it.
type CursorReader interface {
	State() (cursor.State, error)
	NextKeys(keys []string, count int) ([]string, error)
}

type APIHandler struct {
	app             string
	propertyService *property.PropertyService
	cursor          CursorReader
	keyList         string
	batch           int
	runs            repositories.RunRepository
	log             *slog.Logger
}

type Options struct {
	App     string
	Cursor  CursorReader
	KeyList string
	Batch   int
	// Runs is optional; without it the run endpoints answer 404.
	Runs   repositories.RunRepository
	Logger *slog.Logger
}

func NewAPIHandler(propertyService *property.PropertyService, opts Options) *APIHandler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Batch < 1 {
		opts.Batch = 1
	}
	return &APIHandler{
		app:             opts.App,
		propertyService: propertyService,
		cursor:          opts.Cursor,
		keyList:         opts.KeyList,
		batch:           opts.Batch,
		runs:            opts.Runs,
		log:             opts.Logger,
	}
}

func (h *APIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/{source}/entities", h.handleEntities).Methods(http.MethodGet)
	api.HandleFunc("/{source}/entities/{id}", h.handleEntity).Methods(http.MethodGet)
	api.HandleFunc("/{source}/entities/{id}/versions", h.handleVersions).Methods(http.MethodGet)
	api.HandleFunc("/{source}/entities/{id}/versions/{ordinal:[0-9]+}", h.handleVersion).Methods(http.MethodGet)
	api.HandleFunc("/cursor", h.handleCursor).Methods(http.MethodGet)
	api.HandleFunc("/runs", h.handleRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.handleRun).Methods(http.MethodGet)
	api.HandleFunc("/keys/{key}/runs", h.handleKeyRuns).Methods(http.MethodGet)
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.Health{Status: "ok", App: h.app})
}

func source(r *http.Request) (domain.Source, error) {
	src, err := domain.ParseSource(mux.Vars(r)["source"])
	if err != nil {
		return "", &domain.InputError{Msg: "source", Err: err}
	}
	return src, nil
}

func (h *APIHandler) handleEntities(w http.ResponseWriter, r *http.Request) {
	src, err := source(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	all, err := h.propertyService.FindAll(src)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *APIHandler) handleEntity(w http.ResponseWriter, r *http.Request) {
	src, err := source(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	p, err := h.propertyService.Find(src, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *APIHandler) handleVersions(w http.ResponseWriter, r *http.Request) {
	src, err := source(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	versions, err := h.propertyService.History(src, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]models.Version, 0, len(versions))
	for _, v := range versions {
		out = append(out, models.Version{Ordinal: v.Ordinal, Record: v.Record})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) handleVersion(w http.ResponseWriter, r *http.Request) {
	src, err := source(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	vars := mux.Vars(r)
	ordinal, err := strconv.Atoi(vars["ordinal"])
	if err != nil {
		writeError(w, h.log, &domain.InputError{Msg: "ordinal", Err: err})
		return
	}
	rec, err := h.propertyService.Version(src, vars["id"], ordinal)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Version{Ordinal: ordinal, Record: rec})
}

func (h *APIHandler) handleCursor(w http.ResponseWriter, _ *http.Request) {
	st, err := h.cursor.State()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := models.Cursor{LastPostcode: st.LastPostcode}
	if keys, err := cursor.LoadKeys(h.keyList); err == nil {
		out.Next, _ = cursor.NextKeys(st, keys, h.batch)
	} else {
		h.log.Warn("api: key list unavailable", "path", h.keyList, "error", err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, h.log, repositories.ErrRunNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if runs == nil {
		runs = []repositories.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *APIHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, h.log, repositories.ErrRunNotFound)
		return
	}
	run, keys, err := h.runs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*repositories.Run
		Outcomes []repositories.KeyOutcome `json:"outcomes"`
	}{run, keys})
}

func (h *APIHandler) handleKeyRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, h.log, repositories.ErrRunNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hist, err := h.runs.KeyHistory(r.Context(), mux.Vars(r)["key"], limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if hist == nil {
		hist = []repositories.KeyOutcome{}
	}
	writeJSON(w, http.StatusOK, hist)
}
