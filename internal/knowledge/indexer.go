package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultEmbedBatch = 64

var chunkNamespace = uuid.MustParse("6f2d7c1e-3b8a-4f0e-9d55-0c1a2b3c4d5e")

type IndexReport struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Skipped   bool          `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

type Indexer struct {
	store     VectorStore
	embedder  Embedder
	loader    DocumentLoader
	splitter  Splitter
	batchSize int
	log       *logrus.Logger
}

type IndexerOption func(*Indexer)

func WithSplitter(s Splitter) IndexerOption {
	return func(i *Indexer) {
		i.splitter = s
	}
}

func WithLoader(l DocumentLoader) IndexerOption {
	return func(i *Indexer) {
		if l != nil {
			i.loader = l
		}
	}
}

func WithEmbedBatch(n int) IndexerOption {
	return func(i *Indexer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

func NewIndexer(store VectorStore, embedder Embedder, log *logrus.Logger, opts ...IndexerOption) *Indexer {
	i := &Indexer{
		store:     store,
		embedder:  embedder,
		loader:    PDFDirectoryLoader{},
		splitter:  NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
		batchSize: defaultEmbedBatch,
		log:       log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Build indexes the corpus in dir. An already populated index is left alone
// unless force is set, in which case it is rebuilt from scratch.
func (i *Indexer) Build(ctx context.Context, dir string, force bool) (IndexReport, error) {
	start := time.Now()
	var report IndexReport

	if i.store == nil || i.embedder == nil {
		return report, ErrNotConfigured
	}

	existing, err := i.store.Count(ctx)
	if err != nil {
		return report, fmt.Errorf("count indexed chunks: %w", err)
	}
	if existing > 0 && !force {
		i.log.WithFields(logrus.Fields{
			"chunks": existing,
		}).Info("Vector index already populated, skipping build")
		report.Skipped = true
		report.Chunks = int(existing)
		return report, nil
	}
	docs, err := i.loader.Load(ctx, dir)
	if err != nil {
		return report, err
	}
	if len(docs) == 0 {
		return report, fmt.Errorf("%w: %s", ErrEmptyCorpus, dir)
	}
	report.Documents = len(docs)

	chunks := i.chunk(docs)
	i.log.WithFields(logrus.Fields{
		"dir":    dir,
		"pages":  len(docs),
		"chunks": len(chunks),
	}).Info("Embedding corpus")

	for lo := 0; lo < len(chunks); lo += i.batchSize {
		hi := min(lo+i.batchSize, len(chunks))
		batch := chunks[lo:hi]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vectors, err := i.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("embed chunks %d-%d: %w", lo, hi, err)
		}
		if len(vectors) != len(batch) {
			return report, fmt.Errorf("embed chunks %d-%d: got %d vectors", lo, hi, len(vectors))
		}
		if lo == 0 {
			// The old index is only dropped once the new corpus has loaded and
			// its first batch embedded.
			if existing > 0 {
				if err := i.store.Reset(ctx); err != nil {
					return report, fmt.Errorf("reset vector index: %w", err)
				}
			}
			if err := i.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
				return report, fmt.Errorf("prepare vector collection: %w", err)
			}
		}
		if err := i.store.Upsert(ctx, batch, vectors); err != nil {
			return report, fmt.Errorf("store chunks %d-%d: %w", lo, hi, err)
		}
		report.Chunks += len(batch)
	}

	report.Duration = time.Since(start)
	i.log.WithFields(logrus.Fields{
		"chunks":      report.Chunks,
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Vector index built")

	return report, nil
}

func (i *Indexer) chunk(docs []Document) []Chunk {
	var chunks []Chunk
	for _, d := range docs {
		for n, text := range i.splitter.Split(d.Text) {
			id := uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d#%d", d.Source, d.Page, n)))
			chunks = append(chunks, Chunk{
				ID:     id.String(),
				Source: d.Source,
				Page:   d.Page,
				Index:  n,
				Text:   text,
			})
		}
	}
	return chunks
}
