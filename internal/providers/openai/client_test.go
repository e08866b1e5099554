package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.OpenAIConfig{
		APIKey:         "sk-test",
		BaseURL:        baseURL,
		EmbeddingModel: "text-embedding-3-small",
		ChatModel:      "gpt-4o-mini",
		MaxTokens:      256,
	}, zap.NewNop())
}

func TestEmbedBatchUnconfigured(t *testing.T) {
	client := NewClient(config.OpenAIConfig{}, zap.NewNop())

	_, err := client.EmbedBatch(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}

		// Answer out of order; the client must reassemble by index.
		type item struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float64{float64(i)}})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.NoError(t, err)
	assert.Equal(t, [][]float64{{0}, {1}, {2}}, vectors)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	client := newTestClient("http://unreachable.invalid")

	vectors, err := client.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini-2024-07-18",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "pong"}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	completion, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "ping"}})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "pong", completion.Content)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", completion.Model)
	assert.Equal(t, 12, completion.Usage.TotalTokens)
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "ping"}})

	var providerErr *ProviderError
	assert.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusBadRequest, providerErr.Status)
	assert.Equal(t, 1, attempts)
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})

	var providerErr *ProviderError
	assert.ErrorAs(t, err, &providerErr)
}
