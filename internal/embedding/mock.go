package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEngine produces deterministic pseudo-embeddings from a text hash.
// Identical texts map to identical vectors, so similarity behaves sanely
// in tests without a backend.
type MockEngine struct {
	dims int
}

// NewMockEngine creates a mock engine. dims defaults to 16.
func NewMockEngine(dims int) *MockEngine {
	if dims <= 0 {
		dims = 16
	}
	return &MockEngine{dims: dims}
}

// Embed generates a deterministic vector for the text.
func (e *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11)) / float64(1<<52)
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *MockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured dimensionality.
func (e *MockEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *MockEngine) Name() string {
	return "mock"
}
