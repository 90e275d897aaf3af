// Package index defines the capability interface the retrieval core needs
// from a vector search engine. No ranking logic lives here; implementations
// pass results through in the backend's order.
package index

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetByID when the id has no stored chunk.
var ErrNotFound = errors.New("document not found")

// Hit is a single nearest-neighbor match.
type Hit struct {
	ID       string
	Document string
	Metadata map[string]interface{}
	Distance float32
}

// Record is a stored chunk fetched by id.
type Record struct {
	Document string
	Vector   []float32
	Metadata map[string]interface{}
}

// Index is implemented by the backing vector search engine.
//
// Preconditions the retriever relies on: Query returns hits ordered
// ascending by distance, and distances are cosine distances in [0,1] over
// L2-normalized vectors (so similarity = 1 - distance holds).
type Index interface {
	// Add stores vectors with their documents and metadata. All four slices
	// must have equal length. Re-adding an existing id overwrites it.
	Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []map[string]interface{}) error

	// Query returns up to k nearest hits for the vector, ascending by distance.
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// GetByID fetches a stored chunk with its vector, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Record, error)

	// Sample returns up to limit stored records, order unspecified.
	Sample(ctx context.Context, limit int) ([]Record, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Name identifies the backing collection.
	Name() string
}
