package knowledge

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type staticLoader []Document

func (l staticLoader) Load(context.Context, string) ([]Document, error) {
	return l, nil
}

// letterEmbedder embeds text as counts of a, e, i, o, u.
type letterEmbedder struct {
	calls int
}

func (e *letterEmbedder) vector(text string) []float32 {
	v := make([]float32, 5)
	for _, r := range strings.ToLower(text) {
		if i := strings.IndexRune("aeiou", r); i >= 0 {
			v[i]++
		}
	}
	return v
}

func (e *letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestIndexerBuildAndSkip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	embedder := &letterEmbedder{}
	docs := staticLoader{
		{Source: "rice.pdf", Page: 1, Text: "aaaa bbbb cccc dddd eeee ffff gggg"},
		{Source: "wheat.pdf", Page: 1, Text: "uuuu oooo"},
	}

	idx := NewIndexer(store, embedder, quietLogger(),
		WithLoader(docs),
		WithSplitter(NewSplitter(20, 5)),
		WithEmbedBatch(2),
	)

	report, err := idx.Build(ctx, "Data", false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Skipped || report.Documents != 2 || report.Chunks != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if embedder.calls != 2 {
		t.Errorf("expected 2 embedding batches, got %d", embedder.calls)
	}

	again, err := idx.Build(ctx, "Data", false)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !again.Skipped {
		t.Fatalf("populated index should be skipped")
	}
	if embedder.calls != 2 {
		t.Errorf("skipped build should not embed, got %d calls", embedder.calls)
	}

	forced, err := idx.Build(ctx, "Data", true)
	if err != nil {
		t.Fatalf("forced build: %v", err)
	}
	if forced.Skipped || forced.Chunks != 3 {
		t.Fatalf("unexpected forced report %+v", forced)
	}
	if n, _ := store.Count(ctx); n != 3 {
		t.Errorf("forced rebuild should not duplicate chunks, got %d", n)
	}
}

func TestIndexerEmptyCorpus(t *testing.T) {
	idx := NewIndexer(NewMemoryStore(), &letterEmbedder{}, quietLogger(), WithLoader(staticLoader{}))

	if _, err := idx.Build(context.Background(), "Data", false); !errors.Is(err, ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
}

type failingLoader struct{}

func (failingLoader) Load(context.Context, string) ([]Document, error) {
	return nil, errors.New("read corpus dir: permission denied")
}

func TestIndexerForcedRebuildKeepsIndexWhenLoadFails(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	embedder := &letterEmbedder{}
	docs := staticLoader{{Source: "rice.pdf", Page: 1, Text: "aaaa eeee"}}

	if _, err := NewIndexer(store, embedder, quietLogger(), WithLoader(docs)).Build(ctx, "Data", false); err != nil {
		t.Fatal(err)
	}

	for name, loader := range map[string]DocumentLoader{
		"load error":   failingLoader{},
		"empty corpus": staticLoader{},
	} {
		_, err := NewIndexer(store, embedder, quietLogger(), WithLoader(loader)).Build(ctx, "Data", true)
		if err == nil {
			t.Fatalf("%s: forced build should fail", name)
		}
		if n, _ := store.Count(ctx); n != 1 {
			t.Fatalf("%s: index has %d chunks after a failed rebuild, want 1", name, n)
		}
	}
}

func TestRetrieverReturnsClosestChunk(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	embedder := &letterEmbedder{}
	docs := staticLoader{
		{Source: "rice.pdf", Page: 3, Text: "aaaa"},
		{Source: "wheat.pdf", Page: 7, Text: "uuuu"},
	}
	if _, err := NewIndexer(store, embedder, quietLogger(), WithLoader(docs)).Build(ctx, "Data", false); err != nil {
		t.Fatalf("build: %v", err)
	}

	got, err := NewRetriever(store, embedder, 0).Retrieve(ctx, "uu", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Source != "wheat.pdf" || got[0].Page != 7 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestRetrieverNotConfigured(t *testing.T) {
	if _, err := NewRetriever(nil, nil, 0).Retrieve(context.Background(), "q", 0); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
