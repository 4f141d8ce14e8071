// Package retrieval finds the passages most relevant to a query text.
package retrieval

import "context"

// Passage is one retrieved context snippet, ranked by relevance.
type Passage struct {
	Text  string
	Score float32
}

// Retriever returns the top-k passages most relevant to the query, in
// relevance order.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the top-k nearest passages for a query vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]Passage, error)
}

// Remote composes an Embedder and a Searcher into a Retriever.
type Remote struct {
	embedder Embedder
	searcher Searcher
}

// NewRemote creates a Retriever backed by a remote embedding service and a
// remote vector index.
func NewRemote(embedder Embedder, searcher Searcher) *Remote {
	return &Remote{embedder: embedder, searcher: searcher}
}

// Retrieve embeds the query and searches the index with the resulting vector.
func (r *Remote) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.searcher.Search(ctx, vector, k)
}
