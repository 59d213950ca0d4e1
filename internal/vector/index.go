// Package vector provides the in-memory nearest-neighbour index behind each collection.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Upsert inserts vectors, replacing any existing vector with the same id in place.
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns at most k hits ranked by score. When allow is non-nil only ids it
	// accepts are considered.
	Search(ctx context.Context, query []float32, k int, allow func(id string) bool) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit (ID is the document id).
type VectorResult struct {
	ID    string
	Score float64 // Inner product (cosine similarity for normalized vectors)
}
