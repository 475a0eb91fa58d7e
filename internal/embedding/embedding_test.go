package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evai/internal/config"
	"evai/internal/store"
	"evai/internal/types"
)

func TestMockEngineIsDeterministic(t *testing.T) {
	e := NewMockEngine(16)
	ctx := context.Background()

	a, err := e.Embed(ctx, "ik voel me alleen")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "ik voel me alleen")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	c, err := e.Embed(ctx, "heel andere tekst")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMockEngineVectorsAreNormalized(t *testing.T) {
	e := NewMockEngine(8)

	vec, err := e.Embed(context.Background(), "tekst")
	require.NoError(t, err)

	sim, err := CosineSimilarity(vec, vec)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestCosineSimilarityErrors(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1})
	assert.Error(t, err)

	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, sim)
}

func TestFloat64s(t *testing.T) {
	assert.Equal(t, []float64{0.5, 1}, Float64s([]float32{0.5, 1}))
	assert.Empty(t, Float64s(nil))
}

func TestNewEngineFactory(t *testing.T) {
	engine, err := NewEngine(config.EmbeddingConfig{Provider: "mock", Dimensions: 8})
	require.NoError(t, err)
	assert.Equal(t, "mock", engine.Name())
	assert.Equal(t, 8, engine.Dimensions())

	_, err = NewEngine(config.EmbeddingConfig{Provider: "zeppelin"})
	assert.Error(t, err)

	_, err = NewEngine(config.EmbeddingConfig{Provider: "genai"})
	assert.Error(t, err, "genai without API key")
}

func TestOllamaEngineConfigDefaults(t *testing.T) {
	e, err := NewOllamaEngine(config.EmbeddingConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ollama:embeddinggemma", e.Name())
	assert.Equal(t, 768, e.Dimensions())

	e, err = NewOllamaEngine(config.EmbeddingConfig{Model: "nomic-embed-text", Dimensions: 384, Timeout: "5s"})
	require.NoError(t, err)
	assert.Equal(t, "ollama:nomic-embed-text", e.Name())
	assert.Equal(t, 384, e.Dimensions())

	_, err = NewOllamaEngine(config.EmbeddingConfig{Timeout: "soon"})
	assert.Error(t, err, "unparseable timeout")
}

func TestOllamaEngineEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embeddinggemma", req.Model)
		fmt.Fprint(w, `{"embedding":[0.1,0.2]}`)
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(config.EmbeddingConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hallo")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestGenAIEngineMetadata(t *testing.T) {
	_, err := NewGenAIEngine("", "gemini-embedding-001")
	assert.Error(t, err, "API key is required")

	e := &GenAIEngine{model: "gemini-embedding-001"}
	assert.Equal(t, "genai:gemini-embedding-001", e.Name())
	assert.Equal(t, 768, e.Dimensions())
	assert.NoError(t, e.Close())
}

func TestIndexerRoundTrip(t *testing.T) {
	st, err := store.NewLocalStore(filepath.Join(t.TempDir(), "evai.db"))
	require.NoError(t, err)
	defer st.Close()

	seeds := []types.KnowledgeSeed{
		{ID: "seed-1", Type: "validation", ResponseText: "Dat klinkt eenzaam.", Emotions: []string{"eenzaam"}},
		{ID: "seed-2", Type: "reflection", ResponseText: "Wat speelt er op je werk?", Emotions: []string{"stress"}},
	}
	for _, seed := range seeds {
		require.NoError(t, st.UpsertSeed(seed))
	}

	ix := NewIndexer(NewMockEngine(16), st)
	ctx := context.Background()
	require.NoError(t, ix.IndexLibrary(ctx))

	sims, err := ix.QuerySimilarities(ctx, "Dat klinkt eenzaam.\neenzaam")
	require.NoError(t, err)
	require.Len(t, sims, 2)
	assert.InDelta(t, 1.0, sims["seed-1"], 1e-6, "query identical to seed text")
	assert.Less(t, sims["seed-2"], sims["seed-1"])
}
