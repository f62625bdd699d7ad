package interfaces

import (
	"context"

	"localanswer/rag/types"
)

// Embedder maps text to fixed-length vectors. Implementations return one
// vector per input, in input order, and fail explicitly on provider errors
// rather than returning an empty result.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is a vector store. Query returns up to k matches nearest-first with
// the index's native distance; an empty index yields an empty slice, not an
// error.
type Index interface {
	Upsert(ctx context.Context, docs []types.Document) error
	Query(ctx context.Context, vector []float32, k int) ([]types.Match, error)
	Count() int
	Reset() error
}

// Generator produces text from a prompt in a single blocking call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
