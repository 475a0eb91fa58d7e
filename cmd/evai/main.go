package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"evai/internal/config"
	"evai/internal/embedding"
	"evai/internal/llm"
	"evai/internal/logging"
	"evai/internal/orchestrator"
	"evai/internal/store"
	"evai/internal/trace"
)

var (
	// Global flags
	debug      bool
	configPath string
	workspace  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "evai",
	Short: "EvAI - neurosymbolic decision and safety orchestrator",
	Long: `EvAI runs the per-turn decision pipeline of a Dutch-language support app.

Every turn passes a safety guard, therapeutic rubric scoring, an EAA profile,
a deterministic policy table and the governance gates (TD-Matrix and E_AI
rules) before a response leaves the system. The LLM rewrites and plans;
the symbolic layer decides.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if debug {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize category logs: %w", err)
		}
		if err := logging.InitAudit(); err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runtime bundles the wired pipeline for one CLI invocation.
type runtime struct {
	cfg   *config.Config
	store *store.LocalStore
	orch  *orchestrator.Orchestrator
	bus   *trace.Bus
}

func (r *runtime) close() {
	r.bus.Close()
	if err := r.store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
}

// buildRuntime loads configuration and wires the pipeline.
func buildRuntime() (*runtime, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := store.NewLocalStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	var indexer *embedding.Indexer
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logger.Warn("embedding engine unavailable, similarity scoring disabled", zap.Error(err))
	} else {
		indexer = embedding.NewIndexer(engine, st)
	}

	bus := trace.NewBus()
	if debug {
		bus.Enable()
	}

	return &runtime{
		cfg:   cfg,
		store: st,
		orch:  orchestrator.New(cfg, client, st, indexer, bus),
		bus:   bus,
	}, nil
}

// configCmd shows or writes configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		fmt.Printf("name: %s %s\n", cfg.Name, cfg.Version)
		fmt.Printf("llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Printf("embedding: %s (%s)\n", cfg.Embedding.Provider, cfg.Embedding.Model)
		fmt.Printf("store: %s\n", cfg.Store.DatabasePath)
		fmt.Printf("crisis threshold: %.0f\n", cfg.Policy.CrisisThreshold)
		fmt.Printf("seed match threshold: %.2f\n", cfg.Policy.SeedMatchThreshold)
		fmt.Printf("td bands: balanced<=%.2f dominant<=%.2f\n", cfg.TDMatrix.BalancedMax, cfg.TDMatrix.DominantMax)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if err := cfg.Save(args[0]); err != nil {
			return err
		}
		fmt.Printf("wrote default configuration to %s\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		stats, err := rt.store.GetStats()
		if err != nil {
			return err
		}
		for name, value := range stats {
			fmt.Printf("%-20s %d\n", name, value)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging and trace output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory for logs")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(seedsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
