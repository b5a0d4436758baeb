package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// newEmbeddingsServer returns a test server answering /v1/embeddings with a
// deterministic vector per input text: [len(text), dim-1 zeros...].
func newEmbeddingsServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if calls != nil {
			calls.Add(1)
		}

		var req EmbeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		resp := EmbeddingsResponse{Data: make([]EmbeddingData, len(req.Input))}
		for i, text := range req.Input {
			vec := make([]float64, dim)
			vec[0] = float64(len(text))
			resp.Data[i] = EmbeddingData{Embedding: vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedTexts_OrderPreserved(t *testing.T) {
	const dim = 4
	server := newEmbeddingsServer(t, dim, nil)
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "model", dim, 32)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts() unexpected error: %v", err)
	}

	if len(vectors) != len(texts) {
		t.Fatalf("EmbedTexts() = %d vectors, want %d", len(vectors), len(texts))
	}
	for i, text := range texts {
		if got := vectors[i][0]; got != float32(len(text)) {
			t.Errorf("vectors[%d][0] = %v, want %v (order not preserved)", i, got, len(text))
		}
	}
}

func TestEmbedTexts_BatchesBoundedAndOrdered(t *testing.T) {
	const dim = 2
	var calls atomic.Int32
	server := newEmbeddingsServer(t, dim, &calls)
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "model", dim, 2)

	texts := []string{"1", "22", "333", "4444", "55555"}
	vectors, err := client.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts() unexpected error: %v", err)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3 (batch size 2, 5 texts)", got)
	}
	for i, text := range texts {
		if got := vectors[i][0]; got != float32(len(text)) {
			t.Errorf("vectors[%d][0] = %v, want %v", i, got, len(text))
		}
	}
}

func TestEmbedTexts_FailFastOnBatchFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First batch succeeds, everything after fails.
		if calls.Add(1) > 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		var req EmbeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := EmbeddingsResponse{Data: make([]EmbeddingData, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = EmbeddingData{Embedding: []float64{0, 0}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "model", 2, 2)

	vectors, err := client.EmbedTexts(context.Background(), []string{"a", "b", "c", "d"})
	if err == nil {
		t.Fatal("EmbedTexts() expected error when a batch fails, got nil")
	}
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("EmbedTexts() error = %v, want ErrEmbedding", err)
	}
	if vectors != nil {
		t.Errorf("EmbedTexts() = %d vectors, want nil on failure (no partial results)", len(vectors))
	}
}

func TestEmbedTexts_DimensionMismatch(t *testing.T) {
	server := newEmbeddingsServer(t, 3, nil)
	defer server.Close()

	// Client expects 5, server returns 3.
	client := NewEmbeddingsClient(server.URL, "key", "model", 5, 32)

	if _, err := client.EmbedTexts(context.Background(), []string{"hello"}); err == nil {
		t.Error("EmbedTexts() expected dimension mismatch error, got nil")
	}
}

func TestEmbedTexts_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(EmbeddingsResponse{
			Data: []EmbeddingData{{Embedding: []float64{0, 0}}},
		})
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "model", 2, 32)

	if _, err := client.EmbedTexts(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("EmbedTexts() expected count mismatch error, got nil")
	}
}

func TestEmbedTexts_EmptyInput(t *testing.T) {
	client := NewEmbeddingsClient("http://localhost:1", "key", "model", 2, 32)
	if _, err := client.EmbedTexts(context.Background(), nil); err == nil {
		t.Error("EmbedTexts() expected error for empty input, got nil")
	}
}

func TestEmbedQuery(t *testing.T) {
	const dim = 3
	server := newEmbeddingsServer(t, dim, nil)
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "model", dim, 32)

	vec, err := client.EmbedQuery(context.Background(), "question")
	if err != nil {
		t.Fatalf("EmbedQuery() unexpected error: %v", err)
	}
	if len(vec) != dim {
		t.Errorf("EmbedQuery() vector size = %d, want %d", len(vec), dim)
	}
	if vec[0] != float32(len("question")) {
		t.Errorf("EmbedQuery() vec[0] = %v, want %v", vec[0], len("question"))
	}
}
