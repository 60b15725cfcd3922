package http

import (
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"cropyield/db"
)

type modelInfo struct {
	Type         string          `json:"type"`
	Path         string          `json:"path"`
	Loaded       bool            `json:"loaded"`
	LastTraining *db.TrainingLog `json:"last_training"`
}

// handleModelInfo reports the served model and its most recent training run.
func (h *handlers) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info := modelInfo{
		Type:   h.deps.Predictor.Type(),
		Path:   h.deps.Predictor.Path(),
		Loaded: h.deps.Predictor.Loaded(),
	}
	if h.deps.Store != nil {
		entry, err := h.deps.Store.LatestTrainingLog(r.Context(), info.Path)
		switch {
		case err == nil:
			info.LastTraining = &entry
		case errors.Is(err, sql.ErrNoRows):
		default:
			h.logger.Error("Failed to load training log", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load training log")
			return
		}
	}
	writeJSON(w, http.StatusOK, info)
}
