package generation

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient generates answers with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client for the given model.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// GenerateStream streams the model's answer fragment by fragment.
func (c *GeminiClient) GenerateStream(ctx context.Context, prompt string, callback ChunkCallback) error {
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, genai.Text(prompt), nil) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := callback(text); err != nil {
			return err
		}
	}
	return nil
}

// Generate produces the full answer in one call.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	var sb strings.Builder
	err := c.GenerateStream(ctx, prompt, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
