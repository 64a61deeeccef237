package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MinoriAI/internal/entity"
	"MinoriAI/internal/knowledge"

	"github.com/sirupsen/logrus"
)

const systemPrompt = "You are an expert agriculture consultant. Use the provided context to answer the question accurately. " +
	"If the context does not contain relevant information, respond with 'I don't know'."

const userPromptTemplate = "Based on the following context, please provide information about the crop and disease. " +
	"If the context does not contain relevant information, respond with 'I don't know'.\n\n" +
	"Context: %s\n\nQuestion: %s"

const questionTemplate = "Please tell the solution according to the official methods present in the context " +
	"for the following crop and disease. Crop: %s, Disease: %s"

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]knowledge.ScoredChunk, error)
}

// Generator completes a prompt with a chat model.
type Generator interface {
	Complete(ctx context.Context, system string, user string) (string, error)
}

type GeneratorFunc func(ctx context.Context, system string, user string) (string, error)

func (f GeneratorFunc) Complete(ctx context.Context, system string, user string) (string, error) {
	return f(ctx, system, user)
}

// RAG answers advisory questions from the indexed corpus.
type RAG struct {
	retriever Retriever
	generator Generator
	topK      int
	log       *logrus.Logger
}

func NewRAG(retriever Retriever, generator Generator, topK int, log *logrus.Logger) *RAG {
	if topK <= 0 {
		topK = knowledge.DefaultTopK
	}
	return &RAG{retriever: retriever, generator: generator, topK: topK, log: log}
}

// Question builds the retrieval question for a crop and disease label.
func Question(crop entity.Crop, disease string) string {
	return fmt.Sprintf(questionTemplate, crop.Title(), HumanizeLabel(disease))
}

func (r *RAG) Fetch(ctx context.Context, crop entity.Crop, disease string) (Answer, error) {
	start := time.Now()
	question := Question(crop, disease)

	chunks, err := r.retriever.Retrieve(ctx, question, r.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	if len(chunks) == 0 {
		r.log.WithFields(logrus.Fields{
			"crop":    crop,
			"disease": disease,
		}).Warn("No advisory context retrieved")
		return Answer{Text: UnknownText, Known: false, Latency: time.Since(start)}, nil
	}

	contexts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contexts = append(contexts, c.Text)
	}

	text, err := r.generator.Complete(ctx, systemPrompt, fmt.Sprintf(userPromptTemplate, strings.Join(contexts, "\n\n"), question))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}, ErrEmptyAnswer
	}

	answer := Answer{
		Text:    text,
		Known:   !IsUnknownAnswer(text),
		Sources: sources(chunks),
		Latency: time.Since(start),
	}

	r.log.WithFields(logrus.Fields{
		"crop":       crop,
		"disease":    disease,
		"known":      answer.Known,
		"chunks":     len(chunks),
		"latency_ms": answer.Latency.Milliseconds(),
	}).Info("Advisory answered")

	return answer, nil
}

func sources(chunks []knowledge.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var out []string
	for _, c := range chunks {
		s := fmt.Sprintf("%s p.%d", c.Source, c.Page)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
