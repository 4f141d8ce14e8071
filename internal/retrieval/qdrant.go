package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QdrantClient is an HTTP client for the Qdrant points-search API.
type QdrantClient struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

// NewQdrantClient creates a Qdrant search client for one collection.
func NewQdrantClient(baseURL, collection string, timeout time.Duration) *QdrantClient {
	return &QdrantClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []struct {
		Score   float32 `json:"score"`
		Payload struct {
			Content string `json:"content"`
		} `json:"payload"`
	} `json:"result"`
}

// Search returns the top-k passages nearest to the query vector, in the
// index's relevance order.
func (c *QdrantClient) Search(ctx context.Context, vector []float32, k int) ([]Passage, error) {
	body, err := json.Marshal(searchRequest{Vector: vector, Limit: k, WithPayload: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vector index returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	passages := make([]Passage, 0, len(searchResp.Result))
	for _, hit := range searchResp.Result {
		passages = append(passages, Passage{Text: hit.Payload.Content, Score: hit.Score})
	}
	return passages, nil
}
