package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/internal/generation"
	"newsrag/internal/history"
	"newsrag/internal/retrieval"
)

type stubRetriever struct {
	passages []retrieval.Passage
	err      error
	gotQuery string
	gotK     int
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int) ([]retrieval.Passage, error) {
	s.gotQuery = query
	s.gotK = k
	return s.passages, s.err
}

// stubGenerator emits the configured fragments in order, then fails with err
// if set.
type stubGenerator struct {
	fragments []string
	err       error
	gotPrompt string
}

func (s *stubGenerator) GenerateStream(ctx context.Context, prompt string, callback generation.ChunkCallback) error {
	s.gotPrompt = prompt
	for _, f := range s.fragments {
		if err := callback(f); err != nil {
			return err
		}
	}
	return s.err
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return strings.Join(s.fragments, ""), s.err
}

// recordingEmitter captures the outbound event stream.
type recordingEmitter struct {
	chunks   []string
	done     int
	chunkErr error
}

func (r *recordingEmitter) Chunk(sessionID, chunk string) error {
	if r.chunkErr != nil {
		return r.chunkErr
	}
	r.chunks = append(r.chunks, chunk)
	return nil
}

func (r *recordingEmitter) Done(sessionID string) error {
	r.done++
	return nil
}

func newTestStore(t *testing.T) history.Store {
	t.Helper()
	store, err := history.NewSQLiteStore(":memory:", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestOrchestrator(t *testing.T, ret *stubRetriever, gen *stubGenerator) (*Orchestrator, history.Store) {
	t.Helper()
	store := newTestStore(t)
	o := New(Config{Store: store, Retriever: ret, Generator: gen})
	return o, store
}

func TestHandleQueryEndToEnd(t *testing.T) {
	ret := &stubRetriever{passages: []retrieval.Passage{
		{Text: "Article A text", Score: 0.9},
		{Text: "Article B text", Score: 0.8},
	}}
	gen := &stubGenerator{fragments: []string{"The", " answer", " is X."}}
	o, store := newTestOrchestrator(t, ret, gen)
	emit := &recordingEmitter{}

	err := o.HandleQuery(context.Background(), "s1", "What happened today?", emit)
	require.NoError(t, err)

	// Chunks arrive in generation order and concatenate to the full answer.
	assert.Equal(t, []string{"The", " answer", " is X."}, emit.chunks)
	assert.Equal(t, 1, emit.done)

	// The prompt embeds the passages in relevance order, blank-line separated,
	// with the literal query text.
	assert.Equal(t,
		"Based on this news context: Article A text\n\nArticle B text\n\nAnswer the query: What happened today?",
		gen.gotPrompt)
	assert.Equal(t, 5, ret.gotK)

	turns, err := store.ReadAll(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, history.Turn{Role: history.RoleUser, Content: "What happened today?"}, turns[0])
	assert.Equal(t, history.Turn{Role: history.RoleBot, Content: "The answer is X."}, turns[1])
}

func TestHandleQueryCommitsPairMatchingEmittedChunks(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"A", "B", "C"}}
	o, store := newTestOrchestrator(t, &stubRetriever{}, gen)
	emit := &recordingEmitter{}

	require.NoError(t, o.HandleQuery(context.Background(), "s1", "q", emit))

	turns, err := store.ReadAll(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, strings.Join(emit.chunks, ""), turns[1].Content)
}

func TestHandleQueryRetrievalFailure(t *testing.T) {
	ret := &stubRetriever{err: errors.New("vector index unreachable")}
	gen := &stubGenerator{fragments: []string{"should not run"}}
	o, store := newTestOrchestrator(t, ret, gen)
	emit := &recordingEmitter{}

	err := o.HandleQuery(context.Background(), "s1", "q", emit)
	require.NoError(t, err)

	// Exactly one error chunk, then stream end.
	assert.Equal(t, []string{ErrorChunk}, emit.chunks)
	assert.Equal(t, 1, emit.done)

	// User turn is durable; no bot turn for the failed attempt.
	turns, err := store.ReadAll(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, history.RoleUser, turns[0].Role)
}

func TestHandleQueryMidStreamGenerationFailure(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"partial"}, err: errors.New("model hung up")}
	o, store := newTestOrchestrator(t, &stubRetriever{}, gen)
	emit := &recordingEmitter{}

	err := o.HandleQuery(context.Background(), "s1", "q", emit)
	require.NoError(t, err)

	// The delivered fragment stays on the wire, followed by exactly one
	// error chunk.
	assert.Equal(t, []string{"partial", ErrorChunk}, emit.chunks)
	assert.Equal(t, 1, emit.done)

	// The partial answer is discarded, never persisted.
	turns, err := store.ReadAll(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, history.RoleUser, turns[0].Role)
}

func TestHandleQueryEmitterFailureSkipsErrorChunk(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"A", "B"}}
	o, store := newTestOrchestrator(t, &stubRetriever{}, gen)
	emit := &recordingEmitter{chunkErr: errors.New("connection closed")}

	err := o.HandleQuery(context.Background(), "s1", "q", emit)
	require.Error(t, err)

	// Nothing reached the client and no bot turn was committed.
	assert.Empty(t, emit.chunks)
	turns, readErr := store.ReadAll(context.Background(), "s1")
	require.NoError(t, readErr)
	require.Len(t, turns, 1)
}

func TestHandleQueryHistoryFailureIsNonFatal(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"ok"}}
	o := New(Config{
		Store:     failingStore{},
		Retriever: &stubRetriever{},
		Generator: gen,
	})
	emit := &recordingEmitter{}

	// History durability failures must not fail the user-facing interaction.
	err := o.HandleQuery(context.Background(), "s1", "q", emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, emit.chunks)
	assert.Equal(t, 1, emit.done)
}

func TestHandleQuerySuccessiveQueriesKeepPairInvariant(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"answer"}}
	o, store := newTestOrchestrator(t, &stubRetriever{}, gen)

	for i := 0; i < 3; i++ {
		require.NoError(t, o.HandleQuery(context.Background(), "s1", "q", &recordingEmitter{}))
	}

	turns, err := store.ReadAll(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 6)
	for i, turn := range turns {
		want := history.RoleUser
		if i%2 == 1 {
			want = history.RoleBot
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
}

type failingStore struct{}

func (failingStore) Append(ctx context.Context, sessionID string, turn history.Turn) error {
	return errors.New("store down")
}

func (failingStore) ReadAll(ctx context.Context, sessionID string) ([]history.Turn, error) {
	return nil, errors.New("store down")
}

func (failingStore) Clear(ctx context.Context, sessionID string) error {
	return errors.New("store down")
}

func (failingStore) Close() error { return nil }
