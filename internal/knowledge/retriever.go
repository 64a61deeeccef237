package knowledge

import (
	"context"
	"fmt"
)

const DefaultTopK = 4

type Retriever struct {
	store    VectorStore
	embedder Embedder
	topK     int
}

func NewRetriever(store VectorStore, embedder Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{store: store, embedder: embedder, topK: topK}
}

// Retrieve returns the k chunks most similar to query. k <= 0 uses the
// retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if r.store == nil || r.embedder == nil {
		return nil, ErrNotConfigured
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if k <= 0 {
		k = r.topK
	}
	chunks, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	return chunks, nil
}
