package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ps-vitor/lettings-watch/backend/internal/api/models"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/repositories"
	property "github.com/ps-vitor/lettings-watch/backend/internal/services/property"
	scraping "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("api: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	var inputErr *domain.InputError
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, property.ErrUnknownSource),
		errors.Is(err, repositories.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.As(err, &inputErr):
		status = http.StatusBadRequest
	case errors.Is(err, scraping.ErrRunInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error("api: request failed", "error", err)
	}
	writeJSON(w, status, models.Error{Error: err.Error()})
}
