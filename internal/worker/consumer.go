// Package worker consumes page-indexing tasks from NSQ. Indexing runs
// asynchronously so page submission stays cheap for the caller.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"webrag/internal/indexer"
	"webrag/internal/middleware"
)

const (
	TopicIndexPage = "page.index"
	Channel        = "webrag"

	// Covers the batch embedding call for a large page.
	indexTimeout = 120 * time.Second
)

type IndexPagePayload struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type PageIndexer interface {
	IndexPage(ctx context.Context, page indexer.Page) (int, error)
}

type IndexConsumer struct {
	indexer PageIndexer
}

func NewIndexConsumer(ix PageIndexer) *IndexConsumer {
	return &IndexConsumer{indexer: ix}
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IndexPagePayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	count, err := h.indexer.IndexPage(ctx, indexer.Page{
		URL:   payload.URL,
		Title: payload.Title,
		Text:  payload.Text,
	})
	if err != nil {
		slog.ErrorContext(ctx, "page indexing failed", "error", err, "url", payload.URL)
		return err // Retry
	}

	slog.InfoContext(ctx, "page indexing task done", "url", payload.URL, "chunks", count)
	return nil
}
