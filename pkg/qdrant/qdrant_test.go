package qdrant

import (
	"context"
	"errors"
	"io"
	"testing"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/knowledge"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// fakeClient answers like a Qdrant server with at most one collection.
type fakeClient struct {
	exists  bool
	points  []*qdrant.ScoredPoint
	queries int
}

func (f *fakeClient) CollectionExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeClient) GetCollectionInfo(context.Context, string) (*qdrant.CollectionInfo, error) {
	return &qdrant.CollectionInfo{}, nil
}

func (f *fakeClient) ListCollections(context.Context) ([]string, error) { return nil, nil }

func (f *fakeClient) CreateCollection(context.Context, *qdrant.CreateCollection) error {
	f.exists = true
	return nil
}

func (f *fakeClient) DeleteCollection(context.Context, string) error {
	f.exists = false
	return nil
}

func (f *fakeClient) Upsert(context.Context, *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Count(context.Context, *qdrant.CountPoints) (uint64, error) {
	return uint64(len(f.points)), nil
}

func (f *fakeClient) Query(context.Context, *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries++
	if !f.exists {
		return nil, errors.New("rpc error: code = NotFound desc = Collection `crop_advisories` doesn't exist!")
	}
	return f.points, nil
}

func (f *fakeClient) Close() error { return nil }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type unitEmbedder struct{}

func (unitEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (unitEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestSearchMissingCollectionReturnsNothing(t *testing.T) {
	client := &fakeClient{}
	store := NewWithClient(client, "", quietLogger())

	chunks, err := store.Search(context.Background(), []float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("got %d chunks, want none", len(chunks))
	}
	if client.queries != 0 {
		t.Fatalf("query sent to a missing collection")
	}
}

func TestSearchMapsPayload(t *testing.T) {
	client := &fakeClient{exists: true, points: []*qdrant.ScoredPoint{{
		Id:    qdrant.NewID("5d1c1a3e-0000-4000-8000-000000000001"),
		Score: 0.9,
		Payload: qdrant.NewValueMap(map[string]any{
			"source": "rice.pdf",
			"page":   3,
			"index":  1,
			"text":   "Drain the field",
		}),
	}}}
	store := NewWithClient(client, "advisories", quietLogger())

	chunks, err := store.Search(context.Background(), []float32{1, 0}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Source != "rice.pdf" || chunks[0].Page != 3 || chunks[0].Text != "Drain the field" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}

func TestEmptyCorpusAdviceIsCachedAsUnknown(t *testing.T) {
	store := NewWithClient(&fakeClient{}, "", quietLogger())
	generated := 0
	rag := advisory.NewRAG(
		knowledge.NewRetriever(store, unitEmbedder{}, 4),
		advisory.GeneratorFunc(func(context.Context, string, string) (string, error) {
			generated++
			return "Spray fungicide", nil
		}),
		4, quietLogger(),
	)

	fetches := 0
	fetch := func(ctx context.Context, crop entity.Crop, label string) (advisory.Answer, error) {
		fetches++
		return rag.Fetch(ctx, crop, label)
	}

	cache := advisory.NewSolutionCache()
	key := advisory.KeyByCropAndLabel.Key(entity.CropWheat, "Yellow_Rust")
	for i := 0; i < 3; i++ {
		entry, _, err := cache.GetOrFetch(context.Background(), key, entity.CropWheat, fetch)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if entry.Known || entry.Text != advisory.UnknownText {
			t.Fatalf("frame %d: entry %+v, want unknown", i, entry)
		}
	}
	if fetches != 1 || generated != 0 {
		t.Fatalf("fetches = %d, generated = %d; want 1 and 0", fetches, generated)
	}
}
