package embedding

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"evai/internal/logging"
	"evai/internal/store"
	"evai/internal/types"
)

// Indexer keeps the seed library's embeddings current. Seeds are embedded
// on their response text plus emotion tags so a user message about the
// same feeling lands near the seed even with different wording.
type Indexer struct {
	engine Engine
	store  *store.LocalStore
}

// NewIndexer creates an indexer over the given engine and store.
func NewIndexer(engine Engine, st *store.LocalStore) *Indexer {
	return &Indexer{engine: engine, store: st}
}

// seedText builds the text a seed is embedded on.
func seedText(seed types.KnowledgeSeed) string {
	parts := []string{seed.ResponseText}
	if len(seed.Emotions) > 0 {
		parts = append(parts, strings.Join(seed.Emotions, " "))
	}
	return strings.Join(parts, "\n")
}

// IndexSeed embeds one seed and stores its vector.
func (ix *Indexer) IndexSeed(ctx context.Context, seed types.KnowledgeSeed) error {
	vec, err := ix.engine.Embed(ctx, seedText(seed))
	if err != nil {
		return fmt.Errorf("embed seed %s: %w", seed.ID, err)
	}
	if err := ix.store.StoreEmbedding(seed.ID, Float64s(vec)); err != nil {
		return fmt.Errorf("store embedding for %s: %w", seed.ID, err)
	}
	logging.EmbeddingDebug("indexed seed %s (%d dims)", seed.ID, len(vec))
	return nil
}

// IndexLibrary embeds every seed in the store, at most 4 in flight.
func (ix *Indexer) IndexLibrary(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryEmbedding, "IndexLibrary")
	defer timer.Stop()

	seeds, err := ix.store.ListSeeds()
	if err != nil {
		return fmt.Errorf("list seeds: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, seed := range seeds {
		g.Go(func() error {
			return ix.IndexSeed(gctx, seed)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logging.Embedding("indexed %d seeds", len(seeds))
	return nil
}

// QuerySimilarities embeds the user message and returns per-seed cosine
// similarity. An empty map (not an error) when the library has no vectors.
func (ix *Indexer) QuerySimilarities(ctx context.Context, message string) (map[string]float64, error) {
	vec, err := ix.engine.Embed(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.store.Similarities(Float64s(vec))
}
