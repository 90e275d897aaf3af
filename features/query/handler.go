// Package query is the thin JSON binding over the retrieval core and the
// RAG pipeline. It only translates requests and responses; no ranking or
// assembly logic lives here.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"webrag/internal/index"
	"webrag/internal/pipeline"
	"webrag/internal/retrieval"
)

type Retriever interface {
	FindRelevantContext(ctx context.Context, query string, topK int) (*retrieval.Result, error)
	SearchByKeywords(ctx context.Context, keywords []string, topK int) (*retrieval.Result, error)
	GetSimilarDocuments(ctx context.Context, documentID string, topK int) ([]retrieval.SearchHit, error)
	CollectionInfo(ctx context.Context) (*retrieval.CollectionInfo, error)
}

type Asker interface {
	Ask(ctx context.Context, query string, topK int) pipeline.Answer
}

type Handler struct {
	retriever Retriever
	pipeline  Asker
}

func NewHandler(r Retriever, p Asker) *Handler {
	return &Handler{retriever: r, pipeline: p}
}

type searchRequest struct {
	Query    string   `json:"query"`
	Keywords []string `json:"keywords"`
	TopK     int      `json:"top_k"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.retriever.FindRelevantContext(ctx, req.Query, req.TopK)
	if err != nil {
		h.writeRetrievalError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) SearchKeywords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.retriever.SearchByKeywords(ctx, req.Keywords, req.TopK)
	if err != nil {
		h.writeRetrievalError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	// Ask always yields a structured answer; errors are folded inside.
	answer := h.pipeline.Ask(ctx, req.Query, req.TopK)
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			topK = parsed
		}
	}

	hits, err := h.retriever.GetSimilarDocuments(ctx, id, topK)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			writeError(w, "NOT_FOUND", "document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "similar documents lookup failed", "error", err, "id", id)
		writeError(w, "INTERNAL_ERROR", "similar documents lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"similar_documents": hits,
		"total_found":       len(hits),
	})
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.retriever.CollectionInfo(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "collection info failed", "error", err)
		writeError(w, "INTERNAL_ERROR", "failed to get collection info", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) writeRetrievalError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery):
		writeError(w, "EMPTY_QUERY", "query must not be empty", http.StatusBadRequest)
	case errors.Is(err, retrieval.ErrNoKeywords):
		writeError(w, "NO_KEYWORDS", "keywords must not be empty", http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "retrieval failed", "error", err)
		writeError(w, "SEARCH_FAILED", err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code, msg string, status int) {
	writeJSON(w, status, map[string]string{"code": code, "error": msg})
}
