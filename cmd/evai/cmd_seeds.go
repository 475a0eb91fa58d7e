package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"evai/internal/embedding"
	"evai/internal/types"
)

var (
	seedType       string
	seedTriggers   []string
	seedEmotions   []string
	seedConfidence float64
)

// seedsCmd manages the knowledge seed library.
var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Manage the knowledge seed library",
}

var seedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all seeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		seeds, err := rt.store.ListSeeds()
		if err != nil {
			return err
		}
		if len(seeds) == 0 {
			fmt.Println("no seeds in the library")
			return nil
		}
		for _, s := range seeds {
			origin := "curated"
			if s.Learned {
				origin = "learned"
			}
			fmt.Printf("%s  [%s/%s]  conf=%.2f  used=%d  %s\n",
				s.ID, s.Type, origin, s.BaseConfidence, s.UsageCount, s.ResponseText)
		}
		return nil
	},
}

var seedsAddCmd = &cobra.Command{
	Use:   "add [response text]",
	Short: "Add a curated seed",
	Long: `Adds a curated seed to the library and indexes its embedding.

Example:
  evai seeds add "Dat klinkt zwaar. Fijn dat je het deelt." \
    --type validation --triggers zwaar,moeilijk --emotions verdrietig`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		seed := types.KnowledgeSeed{
			ID:             uuid.NewString(),
			Type:           seedType,
			Label:          labelForType(seedType),
			Triggers:       seedTriggers,
			Emotions:       seedEmotions,
			ResponseText:   strings.TrimSpace(args[0]),
			BaseConfidence: seedConfidence,
			CreatedAt:      time.Now(),
		}
		if seed.ResponseText == "" {
			return fmt.Errorf("seed response text is empty")
		}
		if err := rt.store.UpsertSeed(seed); err != nil {
			return err
		}
		if err := indexSeed(cmd.Context(), rt, seed); err != nil {
			fmt.Printf("seed stored but not indexed: %v\n", err)
		}
		fmt.Printf("added seed %s\n", seed.ID)
		return nil
	},
}

var seedsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a seed and its embedding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.store.DeleteSeed(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted seed %s\n", args[0])
		return nil
	},
}

var seedsIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Recompute embeddings for the whole library",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		engine, err := embedding.NewEngine(rt.cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding engine: %w", err)
		}
		indexer := embedding.NewIndexer(engine, rt.store)
		if err := indexer.IndexLibrary(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("library indexed")
		return nil
	},
}

func labelForType(seedType string) string {
	switch seedType {
	case "reflection":
		return types.LabelReflectievraag
	case "suggestion":
		return types.LabelSuggestie
	default:
		return types.LabelValideren
	}
}

func indexSeed(ctx context.Context, rt *runtime, seed types.KnowledgeSeed) error {
	engine, err := embedding.NewEngine(rt.cfg.Embedding)
	if err != nil {
		return err
	}
	return embedding.NewIndexer(engine, rt.store).IndexSeed(ctx, seed)
}

func init() {
	seedsAddCmd.Flags().StringVar(&seedType, "type", "validation", "seed type: validation, reflection, suggestion")
	seedsAddCmd.Flags().StringSliceVar(&seedTriggers, "triggers", nil, "trigger words")
	seedsAddCmd.Flags().StringSliceVar(&seedEmotions, "emotions", nil, "emotion labels")
	seedsAddCmd.Flags().Float64Var(&seedConfidence, "confidence", 0.7, "base confidence 0..1")

	seedsCmd.AddCommand(seedsListCmd)
	seedsCmd.AddCommand(seedsAddCmd)
	seedsCmd.AddCommand(seedsDeleteCmd)
	seedsCmd.AddCommand(seedsIndexCmd)
}
