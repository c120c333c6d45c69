package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"resume-match-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *AliyunEmbedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	embedder, err := NewAliyunEmbedder(config.EmbeddingConfig{
		APIKey:     "test-key",
		Model:      "text-embedding-v3",
		Dimensions: 4,
		BaseURL:    server.URL,
	})
	require.NoError(t, err)
	return embedder
}

func TestEmbedStrings(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req aliyunEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-v3", req.Model)
		assert.Equal(t, 4, req.Dimensions)

		// 故意乱序返回，验证按Index归位
		resp := aliyunEmbeddingResponse{
			Object: "list",
			Data: []aliyunEmbeddingEntry{
				{Object: "embedding", Embedding: []float64{0, 1, 0, 0}, Index: 1},
				{Object: "embedding", Embedding: []float64{1, 0, 0, 0}, Index: 0},
			},
			Model: "text-embedding-v3",
		}
		json.NewEncoder(w).Encode(resp)
	})

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"chunk one", "chunk two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0, 0, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1, 0, 0}, vectors[1])
}

func TestEmbedStringsEmptyInput(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("空输入不应发起HTTP请求")
	})

	vectors, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedStringsAPIError(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"message": "rate limited", "type": "rate_limit"})
	})

	_, err := embedder.EmbedStrings(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedStringsCountMismatch(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(aliyunEmbeddingResponse{
			Data: []aliyunEmbeddingEntry{{Embedding: []float64{1}, Index: 0}},
		})
	})

	_, err := embedder.EmbedStrings(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewAliyunEmbedderRequiresKey(t *testing.T) {
	_, err := NewAliyunEmbedder(config.EmbeddingConfig{})
	assert.Error(t, err)
}
