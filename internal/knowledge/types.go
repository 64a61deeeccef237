// Package knowledge builds and queries the vector index over the advisory
// PDF corpus.
package knowledge

import (
	"context"
	"errors"
)

var (
	ErrEmptyCorpus   = errors.New("no documents found in corpus")
	ErrDimension     = errors.New("embedding dimension mismatch")
	ErrNotConfigured = errors.New("vector store not configured")
)

// Document is one page of source text.
type Document struct {
	Source string
	Page   int
	Text   string
}

// Chunk is a piece of a document stored in the vector index.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Page   int    `json:"page"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// Embedder turns text into vectors. Documents and queries may be embedded
// with different task hints.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int) error
	Count(ctx context.Context) (uint64, error)
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)
	Reset(ctx context.Context) error
}

type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]Document, error)
}
