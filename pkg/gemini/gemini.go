package gemini

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrEmptyResponse = errors.New("no response from Gemini API")

type IGemini interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error)
	GenerateText(ctx context.Context, system string, prompt string) (string, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Close()
}

type geminiClient struct {
	modelName      string
	embeddingModel string
	client         *genai.Client
}

// NewGeminiClient reads GEMINI_API_KEY, GEMINI_MODEL_NAME and
// GEMINI_EMBEDDING_MODEL.
func NewGeminiClient() (IGemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	modelName := os.Getenv("GEMINI_MODEL_NAME")
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	embeddingModel := os.Getenv("GEMINI_EMBEDDING_MODEL")
	if embeddingModel == "" {
		embeddingModel = "embedding-001"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &geminiClient{
		modelName:      modelName,
		embeddingModel: embeddingModel,
		client:         client,
	}, nil
}

func (g *geminiClient) AnalyzeImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty image data")
	}
	if mimeType == "" {
		mimeType = "jpeg"
	}
	mimeType = strings.TrimPrefix(mimeType, "image/")

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)

	res, err := model.GenerateContent(ctx, genai.Text(prompt), genai.ImageData(mimeType, image))
	if err != nil {
		return "", err
	}
	return firstText(res)
}

func (g *geminiClient) GenerateText(ctx context.Context, system string, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return firstText(res)
}

func (g *geminiClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.embeddingModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, ErrEmptyResponse
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

func (g *geminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.embeddingModel)
	em.TaskType = genai.TaskTypeRetrievalQuery

	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil {
		return nil, ErrEmptyResponse
	}
	return res.Embedding.Values, nil
}

func (g *geminiClient) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

func firstText(res *genai.GenerateContentResponse) (string, error) {
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("unexpected response format from Gemini API")
	}
	return b.String(), nil
}
