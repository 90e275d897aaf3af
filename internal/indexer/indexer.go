// Package indexer turns page text into embedded chunks in the vector
// index. Chunk ids are derived from the page URL and chunk position, so
// re-indexing a URL replaces its prior chunks.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"webrag/internal/text"
)

// minContentLength filters out pages whose extracted text is too thin to
// be worth embedding.
const minContentLength = 50

type Page struct {
	URL   string
	Title string
	Text  string
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []map[string]interface{}) error
}

type URLDeleter interface {
	DeleteByURL(ctx context.Context, url string) error
}

type Indexer struct {
	embedder     Embedder
	index        Index
	deleter      URLDeleter
	chunkSize    int
	chunkOverlap int
}

func New(e Embedder, idx Index, d URLDeleter, chunkSize, chunkOverlap int) *Indexer {
	return &Indexer{
		embedder:     e,
		index:        idx,
		deleter:      d,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// IndexPage cleans, chunks, and embeds the page, then stores the chunks.
// Prior chunks for the same URL are deleted first so a shorter re-crawl
// doesn't leave stale tail chunks behind. Returns the stored chunk count.
func (ix *Indexer) IndexPage(ctx context.Context, page Page) (int, error) {
	if page.URL == "" {
		return 0, fmt.Errorf("page url is required")
	}

	content := text.Clean(page.Text)
	if len(content) < minContentLength {
		return 0, fmt.Errorf("page %s: content too short to index", page.URL)
	}

	chunks, err := text.Split(content, ix.chunkSize, ix.chunkOverlap)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("page %s: no chunks produced", page.URL)
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}

	ids := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("%s_%d", page.URL, i)
		metadatas[i] = map[string]interface{}{
			"url":          page.URL,
			"title":        page.Title,
			"chunk_index":  i,
			"total_chunks": len(chunks),
		}
	}

	if err := ix.deleter.DeleteByURL(ctx, page.URL); err != nil {
		return 0, fmt.Errorf("deleting stale chunks: %w", err)
	}

	if err := ix.index.Add(ctx, ids, vectors, chunks, metadatas); err != nil {
		return 0, fmt.Errorf("storing chunks: %w", err)
	}

	slog.InfoContext(ctx, "page indexed", "url", page.URL, "chunks", len(chunks))
	return len(chunks), nil
}
