package factory

import (
	"context"
	"fmt"
	"time"

	"studykit-be/pkg/llm"
	"studykit-be/pkg/llm/gemini"
	"studykit-be/pkg/llm/huggingface"
	"studykit-be/pkg/llm/ollama"
)

type Settings struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

func NewGateway(ctx context.Context, s Settings) (llm.Gateway, error) {
	switch s.Provider {
	case "", "gemini":
		return gemini.NewGeminiProvider(ctx, s.APIKey, s.Model, s.Timeout)
	case "ollama":
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, s.Model, s.Timeout), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(s.APIKey, s.BaseURL, s.Model, s.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}
