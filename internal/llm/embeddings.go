package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrEmbedding is returned when the embedding collaborator fails. A failed
// batch fails the whole call; partial results are never returned.
var ErrEmbedding = errors.New("embedding failed")

// EmbeddingsClient talks to an OpenAI-compatible embeddings API. It batches
// large inputs into bounded-size requests and guarantees that output order
// matches input order, so callers can zip vectors back onto their texts by
// position.
type EmbeddingsClient struct {
	BaseURL string
	APIKey  string
	Model   string
	// Dimension is the expected vector size; every returned vector is
	// validated against it.
	Dimension int
	// BatchSize bounds how many texts go into a single API call.
	BatchSize int
	client    *http.Client
}

// NewEmbeddingsClient creates a new embeddings client.
// dimension must match the configured index dimension; batchSize bounds the
// number of texts per request.
func NewEmbeddingsClient(baseURL, apiKey, model string, dimension, batchSize int) *EmbeddingsClient {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &EmbeddingsClient{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     model,
		Dimension: dimension,
		BatchSize: batchSize,
		client:    http.DefaultClient,
	}
}

// EmbeddingsRequest represents the request payload for the embeddings API.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// EmbedTexts generates embeddings for the given texts, one vector per input,
// in input order. Inputs larger than BatchSize are split into consecutive
// batches; any batch failure fails the whole call with ErrEmbedding.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrEmbedding)
	}

	result := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += c.BatchSize {
		hi := lo + c.BatchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		vectors, err := c.embedBatch(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("%w: texts[%d:%d]: %w", ErrEmbedding, lo, hi, err)
		}
		result = append(result, vectors...)
	}
	return result, nil
}

// EmbedQuery generates a single embedding for a search query.
func (c *EmbeddingsClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatch performs one embeddings API call and validates count and
// dimension of the response.
func (c *EmbeddingsClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	payload := EmbeddingsRequest{
		Model: c.Model,
		Input: texts,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embeddingsResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddingsResp.Data))
	}

	result := make([][]float32, len(embeddingsResp.Data))
	for i, data := range embeddingsResp.Data {
		if len(data.Embedding) != c.Dimension {
			return nil, fmt.Errorf("embedding %d has size %d, expected %d", i, len(data.Embedding), c.Dimension)
		}
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}

	return result, nil
}
