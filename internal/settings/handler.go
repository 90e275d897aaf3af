package settings

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	set, err := h.service.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get settings", "error", err)
		http.Error(w, `{"error":"failed to get settings"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(set); err != nil {
		slog.ErrorContext(ctx, "failed to encode settings", "error", err)
	}
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var set Settings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.service.Update(ctx, &set); err != nil {
		slog.ErrorContext(ctx, "failed to update settings", "error", err)
		http.Error(w, `{"error":"failed to update settings"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
