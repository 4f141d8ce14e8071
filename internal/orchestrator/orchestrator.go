// Package orchestrator runs the retrieval and generation pipeline for one
// query and streams the answer back to the originating connection.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsrag/internal/generation"
	"newsrag/internal/history"
	"newsrag/internal/retrieval"
)

// ErrorChunk is the single user-visible chunk emitted when a gateway call
// fails during a query.
const ErrorChunk = "Error processing your query"

// promptTemplate grounds the model's answer in the retrieved context.
const promptTemplate = "Based on this news context: %s\n\nAnswer the query: %s"

// errEmit marks failures delivering events to the client, as opposed to
// gateway failures. No error chunk is sent for these: the client is gone.
var errEmit = errors.New("emit failed")

// Emitter delivers outbound stream events to the originating connection.
type Emitter interface {
	// Chunk delivers one ordered answer fragment.
	Chunk(sessionID, chunk string) error

	// Done marks the end of the query's chunk stream.
	Done(sessionID string) error
}

// Orchestrator turns one inbound query into an ordered chunk stream and a
// committed conversation turn pair.
type Orchestrator struct {
	store     history.Store
	retriever retrieval.Retriever
	generator generation.Generator
	logger    *slog.Logger
	topK      int
	timeout   time.Duration
}

// Config contains the orchestrator's collaborators and tuning.
type Config struct {
	Store     history.Store
	Retriever retrieval.Retriever
	Generator generation.Generator
	Logger    *slog.Logger
	TopK      int           // retrieval result count
	Timeout   time.Duration // per-gateway-call budget
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     cfg.Store,
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		logger:    logger,
		topK:      topK,
		timeout:   timeout,
	}
}

// HandleQuery runs the pipeline for one query. All gateway failures are
// converted into a single error chunk on the stream; the returned error is
// non-nil only when events could not be delivered to the client.
//
// The user turn is committed before generation starts. The bot turn is
// buffered during streaming and committed in a single append after the
// stream completes, so concurrent history readers never observe a torn
// answer. History-store failures are logged and never fail the interaction.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID, query string, emit Emitter) error {
	logger := o.logger.With("session_id", sessionID)
	logger.Info("handling query", "query_len", len(query))

	if err := o.store.Append(ctx, sessionID, history.Turn{Role: history.RoleUser, Content: query}); err != nil {
		logger.Warn("failed to append user turn", "error", err)
	}

	passages, err := o.retrieve(ctx, query)
	if err != nil {
		logger.Error("retrieval failed", "error", err)
		return o.emitError(sessionID, emit)
	}

	prompt := buildPrompt(passages, query)

	answer, err := o.generate(ctx, sessionID, prompt, emit)
	if err != nil {
		if errors.Is(err, errEmit) {
			logger.Warn("client unreachable mid-stream", "error", err)
			return err
		}
		logger.Error("generation failed", "error", err)
		return o.emitError(sessionID, emit)
	}

	if err := o.store.Append(ctx, sessionID, history.Turn{Role: history.RoleBot, Content: answer}); err != nil {
		logger.Warn("failed to commit bot turn", "error", err)
	}

	if err := emit.Done(sessionID); err != nil {
		return fmt.Errorf("%w: %v", errEmit, err)
	}
	logger.Info("query completed", "answer_len", len(answer))
	return nil
}

// retrieve fetches the top-k passages within the gateway call budget.
func (o *Orchestrator) retrieve(ctx context.Context, query string) ([]retrieval.Passage, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.retriever.Retrieve(ctx, query, o.topK)
}

// generate streams the answer, emitting each fragment as produced and
// accumulating the full text for the history commit.
func (o *Orchestrator) generate(ctx context.Context, sessionID, prompt string, emit Emitter) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var full strings.Builder
	err := o.generator.GenerateStream(ctx, prompt, func(chunk string) error {
		full.WriteString(chunk)
		if err := emit.Chunk(sessionID, chunk); err != nil {
			return fmt.Errorf("%w: %v", errEmit, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}

// emitError sends the single error chunk and the stream-end marker.
func (o *Orchestrator) emitError(sessionID string, emit Emitter) error {
	if err := emit.Chunk(sessionID, ErrorChunk); err != nil {
		return fmt.Errorf("%w: %v", errEmit, err)
	}
	if err := emit.Done(sessionID); err != nil {
		return fmt.Errorf("%w: %v", errEmit, err)
	}
	return nil
}

// buildPrompt joins the passage texts with blank lines, in relevance order,
// and embeds them with the literal query text.
func buildPrompt(passages []retrieval.Passage, query string) string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), query)
}
