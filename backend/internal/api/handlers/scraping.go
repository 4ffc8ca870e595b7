package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ps-vitor/lettings-watch/backend/internal/api/models"
	apiservices "github.com/ps-vitor/lettings-watch/backend/internal/api/services"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
)

type ScrapingHandler struct {
	trigger *apiservices.ScrapeTrigger
	log     *slog.Logger
}

func NewScrapingHandler(trigger *apiservices.ScrapeTrigger, log *slog.Logger) *ScrapingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ScrapingHandler{trigger: trigger, log: log}
}

func (h *ScrapingHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/scrape", h.HandleScrape).Methods(http.MethodPost)
}

// HandleScrape runs the next cursor batch synchronously. ?count=N
// overrides the configured batch size.
func (h *ScrapingHandler) HandleScrape(w http.ResponseWriter, r *http.Request) {
	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, h.log, &domain.InputError{Msg: "count must be a positive integer"})
			return
		}
		count = n
	}

	summary, err := h.trigger.Trigger(r.Context(), count)
	if summary == nil {
		writeError(w, h.log, err)
		return
	}
	if err != nil {
		h.log.Warn("api: scrape interrupted", "run", summary.RunID, "error", err)
	}
	writeJSON(w, http.StatusOK, models.NewRunSummary(summary))
}
