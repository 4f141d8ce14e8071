package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient generates answers with an OpenAI-compatible chat API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a client for the given model. A non-empty baseURL points
// the client at an OpenAI-compatible endpoint.
func NewOpenAI(apiKey, baseURL, model string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// GenerateStream streams the model's answer fragment by fragment.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, callback ChunkCallback) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return fmt.Errorf("create chat completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive stream chunk: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := callback(delta); err != nil {
			return err
		}
	}
}

// Generate produces the full answer in one call.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
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
