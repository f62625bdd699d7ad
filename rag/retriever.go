package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudler/xlog"

	"localanswer/rag/interfaces"
	"localanswer/rag/types"
)

// MetricCosine is the only supported distance metric. The similarity
// conversion 1 - distance is only meaningful for metrics bounded in [0, 1].
const MetricCosine = "cosine"

// Retriever turns a query string into a ranked, scored list of passages by
// embedding the query and asking the index for nearest neighbors. The index
// is trusted to return nearest-first; the retriever only converts distances
// to similarities and filters, it never re-sorts.
type Retriever struct {
	embedder interfaces.Embedder
	index    interfaces.Index
}

// NewRetriever wires an embedder and an index under the given distance
// metric. Only cosine is accepted.
func NewRetriever(embedder interfaces.Embedder, index interfaces.Index, metric string) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if metric != MetricCosine {
		return nil, fmt.Errorf("unsupported distance metric %q, only %q is supported", metric, MetricCosine)
	}
	return &Retriever{embedder: embedder, index: index}, nil
}

// Retrieve returns up to topK passages with similarity >= minScore, in the
// order the index returned them, with 1-based ranks assigned after
// filtering. An empty or whitespace-only query and an empty index both
// yield an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minScore float64) ([]types.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrieval, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector for query", ErrRetrieval)
	}

	matches, err := r.index.Query(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndex, err)
	}

	passages := make([]types.Passage, 0, len(matches))
	for _, m := range matches {
		similarity := 1 - m.Distance
		if similarity < minScore {
			continue
		}
		passages = append(passages, types.Passage{
			ID:         m.ID,
			Content:    m.Content,
			Metadata:   m.Metadata,
			Similarity: similarity,
			Rank:       len(passages) + 1,
		})
	}

	xlog.Debug("retrieved passages", "query", query, "matches", len(matches), "kept", len(passages))

	return passages, nil
}
