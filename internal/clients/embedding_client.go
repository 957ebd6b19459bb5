/**
 * Embedding Client
 *
 * Generates embeddings for normalized dish names. The vectors feed the
 * Qdrant dish index used for similar-dish lookups; they play no part in the
 * translation chain itself.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/menulens/menuscan-worker/internal/logging"
)

// EmbeddingClient handles embedding generation for dish names.
type EmbeddingClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// EmbeddingRequest is a batch embedding request.
type EmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// EmbeddingResponse is the embedding service response.
type EmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewEmbeddingClient creates a new embedding client.
func NewEmbeddingClient(baseURL, apiKey string) (*EmbeddingClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedding service URL is required")
	}

	return &EmbeddingClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("EmbeddingClient"),
	}, nil
}

// EmbedDishNames generates one embedding per dish name, in input order.
func (e *EmbeddingClient) EmbedDishNames(ctx context.Context, names []string) ([][]float32, error) {
	if len(names) == 0 {
		return nil, nil
	}

	reqBody := EmbeddingRequest{Input: names, Model: "voyage-3"}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embResp EmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Data) != len(names) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(names), len(embResp.Data))
	}

	vectors := make([][]float32, len(names))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(names) {
			return nil, fmt.Errorf("embedding index out of range: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	e.logger.Debug("embeddings generated", "count", len(vectors), "model", embResp.Model)
	return vectors, nil
}
