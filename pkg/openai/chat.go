package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "openai/gpt-oss-120b"
)

var ErrEmptyCompletion = errors.New("no response from chat completion API")

// IChat is an OpenAI-compatible chat completion client. Groq serves the
// same API under its own base URL.
type IChat interface {
	Complete(ctx context.Context, system string, user string) (string, error)
	Model() string
}

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

type chatService struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// ConfigFromEnv reads LLM_API_KEY, LLM_BASE_URL and LLM_MODEL. GROQ_API_KEY
// is accepted when LLM_API_KEY is unset.
func ConfigFromEnv() Config {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = DefaultModel
	}
	return Config{APIKey: apiKey, BaseURL: baseURL, Model: model}
}

func NewChat(cfg Config) (IChat, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("LLM API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &chatService{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (c *chatService) Model() string {
	return c.model
}

func (c *chatService) Complete(ctx context.Context, system string, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: messages,
			// zero is dropped by omitempty
			Temperature: math.SmallestNonzeroFloat32,
			MaxTokens:   c.maxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("chat completion API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
