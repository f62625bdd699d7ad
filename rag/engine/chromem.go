package engine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"localanswer/rag/interfaces"
	"localanswer/rag/types"
)

// ChromemIndex is an embedded, persistent vector index backed by chromem-go.
// chromem reports cosine similarity per result; the adapter converts it back
// to cosine distance so the retriever owns the single distance-to-score
// conversion.
type ChromemIndex struct {
	collectionName string
	collection     *chromem.Collection
	db             *chromem.DB
	embedder       interfaces.Embedder
}

// NewChromemIndex opens (or creates) a persistent collection at path.
func NewChromemIndex(collection, path string, embedder interfaces.Embedder) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, err
	}
	return newChromemIndex(db, collection, embedder)
}

// NewMemoryChromemIndex creates a non-persistent index, useful for tests
// and scratch sessions.
func NewMemoryChromemIndex(collection string, embedder interfaces.Embedder) (*ChromemIndex, error) {
	return newChromemIndex(chromem.NewDB(), collection, embedder)
}

func newChromemIndex(db *chromem.DB, collection string, embedder interfaces.Embedder) (*ChromemIndex, error) {
	idx := &ChromemIndex{
		collectionName: collection,
		db:             db,
		embedder:       embedder,
	}
	c, err := db.GetOrCreateCollection(collection, nil, idx.embeddingFunc())
	if err != nil {
		return nil, err
	}
	idx.collection = c
	return idx, nil
}

// embeddingFunc adapts the configured embedder to chromem's callback, used
// when a document arrives without a precomputed vector.
func (c *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := c.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) == 0 {
			return nil, fmt.Errorf("no embedding returned")
		}
		return vectors[0], nil
	}
}

func (c *ChromemIndex) Upsert(ctx context.Context, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	documents := make([]chromem.Document, len(docs))
	for i, d := range docs {
		documents[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		}
	}

	return c.collection.AddDocuments(ctx, documents, runtime.NumCPU())
}

// Query returns up to k matches nearest-first. chromem errors when asked
// for more results than documents, so k is clamped to the collection size.
func (c *ChromemIndex) Query(ctx context.Context, vector []float32, k int) ([]types.Match, error) {
	count := c.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := c.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, err
	}

	matches := make([]types.Match, len(results))
	for i, r := range results {
		matches[i] = types.Match{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Distance: 1 - float64(r.Similarity),
		}
	}
	return matches, nil
}

func (c *ChromemIndex) Count() int {
	return c.collection.Count()
}

func (c *ChromemIndex) Reset() error {
	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("error deleting collection: %v", err)
	}
	collection, err := c.db.GetOrCreateCollection(c.collectionName, nil, c.embeddingFunc())
	if err != nil {
		return fmt.Errorf("error creating collection: %v", err)
	}
	c.collection = collection
	return nil
}
