package retrieval

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// Embedded is a Retriever over a chromem-go collection persisted on disk.
// It serves deployments without a remote vector index; populating the
// collection is an offline concern.
type Embedded struct {
	collection *chromem.Collection
}

// NewEmbedded opens (or creates) the persistent index at dir and binds the
// named collection to the given embedder.
func NewEmbedded(dir, collection string, embedder Embedder) (*Embedded, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	col, err := db.GetOrCreateCollection(collection, nil, embeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &Embedded{collection: col}, nil
}

// embeddingFunc adapts an Embedder to chromem's embedding callback.
func embeddingFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.Embed(ctx, text)
	}
}

// Add indexes (or re-indexes) one passage under the given id.
func (e *Embedded) Add(ctx context.Context, id, text string) error {
	return e.collection.AddDocument(ctx, chromem.Document{ID: id, Content: text})
}

// Retrieve returns the top-k passages most similar to the query.
func (e *Embedded) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	count := e.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := e.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, Passage{Text: r.Content, Score: r.Similarity})
	}
	return passages, nil
}
