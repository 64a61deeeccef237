package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"MinoriAI/internal/classifier"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/knowledge"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestParseLabels(t *testing.T) {
	got, err := ParseLabels(" Healthy, Leaf_Blight ,Brown_Spot ")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1] != "Leaf_Blight" {
		t.Fatalf("labels = %v", got)
	}

	path := filepath.Join(t.TempDir(), "class_indices.json")
	if err := os.WriteFile(path, []byte(`{"Yellow_Rust": 1, "Healthy": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = ParseLabels(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "Healthy" || got[1] != "Yellow_Rust" {
		t.Fatalf("labels from file = %v", got)
	}

	if _, err := ParseLabels(" , "); err == nil {
		t.Fatal("empty label list should fail")
	}
}

func TestClassifierFactoryRequiresLabels(t *testing.T) {
	env := Env{
		ClassifierBackend: ClassifierRemote,
		ClassifierURLs:    map[entity.Crop]string{},
		ClassifierLabels:  map[entity.Crop]string{},
	}
	_, err := NewClassifierFactory(env, nil, quietLogger())(context.Background(), entity.CropRice)
	if !errors.Is(err, classifier.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}

	env.ClassifierBackend = ClassifierGemini
	env.ClassifierLabels[entity.CropRice] = "Healthy,Blast"
	_, err = NewClassifierFactory(env, nil, quietLogger())(context.Background(), entity.CropRice)
	if !errors.Is(err, classifier.ErrModelUnavailable) {
		t.Fatalf("gemini backend without a client: err = %v", err)
	}
}

type constantEmbedder struct{}

func (constantEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constantEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestMemoryVectorStoreAndEmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	env := Env{
		VectorBackend:  VectorMemory,
		VectorSnapshot: filepath.Join(dir, "vectors.json"),
		KnowledgeDir:   dir,
	}

	store, err := NewVectorStore(context.Background(), env, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.VectorStore.(*knowledge.MemoryStore); !ok {
		t.Fatalf("store = %T, want memory", store.VectorStore)
	}

	report, err := BuildIndex(context.Background(), env, store, constantEmbedder{}, false, quietLogger())
	if err != nil {
		t.Fatalf("empty corpus should not fail startup: %v", err)
	}
	if report.Chunks != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestMemoryVectorStoreRestoresSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "vectors.json")

	seed := knowledge.NewMemoryStore()
	ctx := context.Background()
	if err := seed.EnsureCollection(ctx, 2); err != nil {
		t.Fatal(err)
	}
	chunk := knowledge.Chunk{ID: "c1", Source: "rice.pdf", Page: 2, Text: "Drain the field"}
	if err := seed.Upsert(ctx, []knowledge.Chunk{chunk}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := seed.Save(snapshot); err != nil {
		t.Fatal(err)
	}

	store, err := NewVectorStore(ctx, Env{VectorBackend: VectorMemory, VectorSnapshot: snapshot}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	n, err := store.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("restored count = %d, %v", n, err)
	}
}
