// Package generation produces grounded answers, optionally as an ordered
// stream of text fragments.
package generation

import "context"

// ChunkCallback is called for each fragment of a streaming response, in
// production order. Returning an error aborts the stream.
type ChunkCallback func(chunk string) error

// Generator defines the interface for answer-producing backends.
type Generator interface {
	// GenerateStream produces the answer as a finite sequence of fragments,
	// invoking the callback once per fragment in order.
	GenerateStream(ctx context.Context, prompt string, callback ChunkCallback) error

	// Generate produces the full answer in one call.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Ensure backends implement the Generator interface.
var (
	_ Generator = (*GeminiClient)(nil)
	_ Generator = (*OpenAIClient)(nil)
)
