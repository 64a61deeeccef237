package classifier

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"MinoriAI/internal/entity"
)

type stubGemini struct {
	answer string
	prompt string
	mime   string
}

func (s *stubGemini) AnalyzeImage(_ context.Context, img []byte, mime, prompt string) (string, error) {
	if len(img) == 0 {
		return "", errors.New("empty image")
	}
	s.mime = mime
	s.prompt = prompt
	return s.answer, nil
}

func (s *stubGemini) GenerateText(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}

func (s *stubGemini) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (s *stubGemini) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("not used")
}

func (s *stubGemini) Close() {}

func TestGeminiClassifyMatchesVocabulary(t *testing.T) {
	client := &stubGemini{answer: "Brown spot\n"}
	g, err := NewGemini(entity.CropRice, Vocabulary{"Bacterial_Leaf_Blight", "Brown_Spot", "Healthy"}, client)
	if err != nil {
		t.Fatal(err)
	}

	label, err := g.Classify(context.Background(), image.NewRGBA(image.Rect(0, 0, 16, 16)))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if label != "Brown_Spot" {
		t.Errorf("label = %q", label)
	}
	if !strings.Contains(client.prompt, "Bacterial_Leaf_Blight, Brown_Spot, Healthy") {
		t.Errorf("prompt does not list labels: %q", client.prompt)
	}
}

func TestGeminiClassifyRejectsUnknownLabel(t *testing.T) {
	g, err := NewGemini(entity.CropRice, Vocabulary{"Healthy"}, &stubGemini{answer: "Powdery mildew"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Classify(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(err, ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}
