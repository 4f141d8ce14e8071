package generation

import (
	"context"
	"fmt"
	"strings"

	"newsrag/internal/config"
)

// Supported providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// NewGenerator creates the configured generation backend.
func NewGenerator(ctx context.Context, cfg *config.Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIURL, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
