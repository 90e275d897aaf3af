// Package page accepts page text for indexing and hands it to the async
// indexing worker over NSQ.
package page

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"webrag/internal/middleware"
	"webrag/internal/worker"
)

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Handler struct {
	publisher TaskPublisher
}

func NewHandler(p TaskPublisher) *Handler {
	return &Handler{publisher: p}
}

type submitRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		writeError(w, "MISSING_URL", "url is required", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		writeError(w, "MISSING_TEXT", "text is required", http.StatusBadRequest)
		return
	}

	payload := worker.IndexPagePayload{
		URL:           req.URL,
		Title:         req.Title,
		Text:          req.Text,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, "INTERNAL_ERROR", "failed to encode task", http.StatusInternalServerError)
		return
	}

	if err := h.publisher.Publish(worker.TopicIndexPage, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish index task", "error", err, "url", req.URL)
		writeError(w, "PUBLISH_FAILED", "failed to queue page for indexing", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "page queued for indexing", "url", req.URL)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued", "url": req.URL})
}

func writeError(w http.ResponseWriter, code, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": msg})
}
