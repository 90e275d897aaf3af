// Package retrieval turns a query into ranked chunks, an assembled context
// string, and a deduplicated source list. It is stateless and safe for
// concurrent use as long as the embedder and index are.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"webrag/internal/index"
	"webrag/internal/settings"
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrNoKeywords = errors.New("no keywords provided")
)

const (
	// contextSeparator joins chunk blocks in the assembled context.
	contextSeparator = "\n\n---\n\n"
	untitled         = "Untitled"
	fallbackTopK     = 5
)

// SearchHit is one retrieved chunk with its provenance and score.
// Similarity is 1 - distance, which assumes the index returns cosine
// distances over normalized vectors.
type SearchHit struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	SourceURL   string  `json:"url"`
	Title       string  `json:"title"`
	ChunkIndex  int     `json:"chunk_index"`
	TotalChunks int     `json:"total_chunks"`
	Similarity  float32 `json:"similarity"`
	Distance    float32 `json:"distance"`
	Rank        int     `json:"rank"`
}

// Result is a successful retrieval. Context is not length-capped here;
// trimming is the generation stage's concern.
type Result struct {
	Query   string      `json:"query"`
	Context string      `json:"context"`
	Chunks  []SearchHit `json:"chunks"`
	Sources []string    `json:"sources"`
}

// CollectionInfo summarizes the backing collection.
type CollectionInfo struct {
	TotalChunks int      `json:"total_chunks"`
	SampleURLs  []string `json:"sample_urls"`
	Name        string   `json:"collection_name"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Retriever struct {
	embedder    Embedder
	index       index.Index
	settings    *settings.Service
	logger      *QueryLogger
	strictOrder bool
}

type Option func(*Retriever)

// WithStrictOrdering makes the retriever verify that the index returned
// ascending distances instead of trusting it, failing the query otherwise.
func WithStrictOrdering() Option {
	return func(r *Retriever) { r.strictOrder = true }
}

func NewRetriever(e Embedder, idx index.Index, set *settings.Service, l *QueryLogger, opts ...Option) *Retriever {
	r := &Retriever{embedder: e, index: idx, settings: set, logger: l}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindRelevantContext embeds the query, fetches the topK nearest chunks,
// and assembles them into a context string in the index's rank order.
// topK <= 0 means "use the configured default". Embedding and index
// failures come back as errors for the caller to fold into a graceful
// message; they never panic or terminate anything.
func (r *Retriever) FindRelevantContext(ctx context.Context, query string, topK int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	k := r.resolveTopK(ctx, topK)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.index.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}

	if r.strictOrder {
		if err := checkAscending(hits); err != nil {
			return nil, err
		}
	}

	chunks := make([]SearchHit, 0, len(hits))
	var sources []string
	seen := make(map[string]bool)
	blocks := make([]string, 0, len(hits))

	// The index order is trusted as-is: rank is just the 1-based position.
	for i, hit := range hits {
		chunk := toSearchHit(hit)
		chunk.Rank = i + 1
		chunks = append(chunks, chunk)

		if chunk.SourceURL != "" && !seen[chunk.SourceURL] {
			seen[chunk.SourceURL] = true
			sources = append(sources, chunk.SourceURL)
		}

		title := chunk.Title
		if title == "" {
			title = untitled
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", title, chunk.Text))
	}

	result := &Result{
		Query:   query,
		Context: strings.Join(blocks, contextSeparator),
		Chunks:  chunks,
		Sources: sources,
	}

	if r.logger != nil {
		r.logger.Log(QueryLogEntry{
			Query:      query,
			TopK:       k,
			NumResults: len(chunks),
			Duration:   time.Since(start),
		})
	}

	return result, nil
}

// SearchByKeywords joins the keywords into a single query and delegates to
// FindRelevantContext. This stays a dense-vector search: there are no
// boolean AND/OR semantics across keywords.
func (r *Retriever) SearchByKeywords(ctx context.Context, keywords []string, topK int) (*Result, error) {
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	return r.FindRelevantContext(ctx, strings.Join(keywords, " "), topK)
}

// GetSimilarDocuments returns the chunks nearest to the stored chunk with
// the given id, excluding the chunk itself. The self row is removed by id
// rather than by position: the backend is not guaranteed to return the
// queried vector's own chunk first.
func (r *Retriever) GetSimilarDocuments(ctx context.Context, documentID string, topK int) ([]SearchHit, error) {
	k := r.resolveTopK(ctx, topK)

	rec, err := r.index.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	// k+1 leaves room for the self row that usually comes back on top.
	hits, err := r.index.Query(ctx, rec.Vector, k+1)
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}

	similar := make([]SearchHit, 0, k)
	for _, hit := range hits {
		if hit.ID == documentID {
			continue
		}
		chunk := toSearchHit(hit)
		chunk.Rank = len(similar) + 1
		similar = append(similar, chunk)
		if len(similar) == k {
			break
		}
	}
	return similar, nil
}

// CollectionInfo reports the chunk count, the collection name, and a
// deduplicated sample of up to 5 source URLs. Deduplication keeps the
// first-appearance order of the sampled records and drops duplicates.
func (r *Retriever) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	count, err := r.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("collection count: %w", err)
	}

	records, err := r.index.Sample(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("collection sample: %w", err)
	}

	var urls []string
	seen := make(map[string]bool)
	for _, rec := range records {
		if url, ok := rec.Metadata["url"].(string); ok && url != "" && !seen[url] {
			seen[url] = true
			urls = append(urls, url)
		}
	}

	return &CollectionInfo{
		TotalChunks: count,
		SampleURLs:  urls,
		Name:        r.index.Name(),
	}, nil
}

func (r *Retriever) resolveTopK(ctx context.Context, topK int) int {
	if topK > 0 {
		return topK
	}
	if r.settings != nil {
		if cfg, err := r.settings.Get(ctx); err == nil && cfg.SearchTopK > 0 {
			return cfg.SearchTopK
		}
	}
	return fallbackTopK
}

func toSearchHit(hit index.Hit) SearchHit {
	chunk := SearchHit{
		ID:         hit.ID,
		Text:       hit.Document,
		Distance:   hit.Distance,
		Similarity: 1 - hit.Distance,
	}
	if url, ok := hit.Metadata["url"].(string); ok {
		chunk.SourceURL = url
	}
	if title, ok := hit.Metadata["title"].(string); ok {
		chunk.Title = title
	}
	if idx, ok := hit.Metadata["chunk_index"].(int); ok {
		chunk.ChunkIndex = idx
	}
	if total, ok := hit.Metadata["total_chunks"].(int); ok {
		chunk.TotalChunks = total
	}
	return chunk
}

func checkAscending(hits []index.Hit) error {
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			return fmt.Errorf("index returned unordered distances: %f before %f at position %d",
				hits[i-1].Distance, hits[i].Distance, i)
		}
	}
	return nil
}
