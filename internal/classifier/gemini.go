package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"MinoriAI/internal/entity"
	"MinoriAI/pkg/gemini"
)

const geminiPrompt = "You are a plant pathologist. The photo shows a %s leaf. " +
	"Answer with exactly one label from this list and nothing else: %s."

// Gemini classifies with a multimodal model constrained to the crop's
// vocabulary. Answers outside the vocabulary are classification failures.
type Gemini struct {
	crop   entity.Crop
	labels Vocabulary
	client gemini.IGemini
}

func NewGemini(crop entity.Crop, labels Vocabulary, client gemini.IGemini) (*Gemini, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: gemini client not configured", ErrModelUnavailable)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no labels configured for %s", ErrModelUnavailable, crop)
	}
	return &Gemini{crop: crop, labels: labels, client: client}, nil
}

func (g *Gemini) Crop() entity.Crop {
	return g.crop
}

func (g *Gemini) Labels() []string {
	return g.labels
}

func (g *Gemini) Classify(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: empty image", ErrClassification)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("%w: encode image: %w", ErrClassification, err)
	}

	prompt := fmt.Sprintf(geminiPrompt, g.crop, strings.Join(g.labels, ", "))
	answer, err := g.client.AnalyzeImage(ctx, buf.Bytes(), "jpeg", prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrClassification, err)
	}

	label, ok := g.labels.Lookup(firstLine(answer))
	if !ok {
		return "", fmt.Errorf("%w: answer %q is not a %s label", ErrClassification, answer, g.crop)
	}
	return label, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
