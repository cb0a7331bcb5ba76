package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codevolve/internal/config"
	"codevolve/internal/logging"
)

var (
	// Global flags
	verbose   bool
	apiKey    string
	workspace string
	timeout   time.Duration
	dryRun    bool

	// Loaded per invocation in PersistentPreRunE
	cfg config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codevolve",
	Short: "codevolve - reflective code evolution engine",
	Long: `codevolve plans, applies and validates code modifications against a
target project, with budget-gated LLM reasoning at every step.

Each run walks the full pipeline:
  1. Analyze:  infer system type and architectural constraints
  2. Retrieve: pull grounding knowledge from the local vector store
  3. Plan:     produce a validated step-by-step modification plan
  4. Modify:   execute steps concurrently with syntax sanitation
  5. Validate: quality and operational gates over the changed files
  6. Heal:     one recovery round when a gate fails
  7. Decide:   approve (write to disk) or reject (leave untouched)

Rejected runs never touch the project on disk.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}
			workspace = wd
		}

		var err error
		cfg, err = config.Load(workspace)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if apiKey != "" {
			cfg.LLM.APIKey = apiKey
			cfg.Embedding.APIKey = apiKey
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}

		return logging.Initialize(logging.Options{
			Workspace: workspace,
			Debug:     cfg.Logging.DebugMode,
			Console:   cfg.Logging.Console,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY env)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Target project directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall run timeout")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Use a scripted provider instead of the live API")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
