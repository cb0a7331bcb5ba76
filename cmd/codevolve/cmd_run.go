package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"codevolve/internal/budget"
	"codevolve/internal/config"
	"codevolve/internal/cost"
	"codevolve/internal/embedding"
	"codevolve/internal/llm"
	"codevolve/internal/orchestrator"
	"codevolve/internal/store"
)

var (
	runConstraints []string
	runGates       []string
	runLanguage    string
	runIdea        string
	runBudget      float64
)

// runCmd executes one modification objective end to end
var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Plan, apply and validate a modification objective",
	Long: `Runs the full pipeline for a natural-language task against the
workspace and prints the operation record as JSON.

Changes reach disk only when every validation gate passes; a rejected
run leaves the project exactly as it was.

Examples:
  codevolve run "add input validation to the signup endpoint"
  codevolve run -w ./myapp --constraint "no new dependencies" "speed up the CSV importer"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runObjective,
}

func init() {
	runCmd.Flags().StringArrayVar(&runConstraints, "constraint", nil, "Goal constraint (repeatable)")
	runCmd.Flags().StringArrayVar(&runGates, "gate", nil, "Extra quality gate (repeatable)")
	runCmd.Flags().StringVar(&runLanguage, "language", "", "Primary project language (default: inferred)")
	runCmd.Flags().StringVar(&runIdea, "idea", "", "Original product idea for architectural analysis")
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "Session cost ceiling in USD (unset = config value)")
}

func runObjective(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	if cmd.Flags().Changed("budget") {
		cfg.Budget.SessionBudget = &runBudget
	}

	client, err := buildClient()
	if err != nil {
		return err
	}

	st := openStoreIfPresent()
	if st != nil {
		defer st.Close()
	}

	agent, err := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Client:   client,
		Store:    st,
		Approver: buildApprover(),
	})
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	go printEvents(agent.Events())

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, timeout)
	defer cancel()

	res := agent.Execute(ctx, orchestrator.Objective{
		Task:         task,
		ProjectPath:  workspace,
		Constraints:  runConstraints,
		QualityGates: runGates,
		Language:     runLanguage,
		OriginalIdea: runIdea,
	})

	out, err := json.MarshalIndent(res.Sanitized(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))

	if res.Decision != orchestrator.DecisionApprove {
		return fmt.Errorf("operation rejected: %s", res.Reason)
	}
	return nil
}

// buildClient resolves the LLM provider. Dry runs use a scripted
// client that plans zero steps, so the pipeline completes without a
// single provider call.
func buildClient() (llm.Client, error) {
	if dryRun {
		return llm.NewScriptedClient("[]", "CLEAN"), nil
	}

	switch cfg.LLM.Provider {
	case "genai", "gemini":
		return llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:     cfg.LLM.APIKey,
			Timeout:    cfg.LLM.CallTimeout,
			MaxRetries: cfg.LLM.MaxRetries,
		})
	case "mock":
		return llm.NewScriptedClient("[]", "CLEAN"), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (use 'genai' or 'mock')", cfg.LLM.Provider)
	}
}

// buildApprover prompts on stdin when interactive budgeting is on.
func buildApprover() budget.Approver {
	if !cfg.Budget.Interactive {
		return nil
	}
	reader := bufio.NewReader(os.Stdin)
	return budget.ApproverFunc(func(description string, estimated cost.Cost) bool {
		fmt.Printf("Approve %q for ~$%.4f (%d tokens)? [y/N] ", description, estimated.Amount, estimated.Tokens)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	})
}

// openStoreIfPresent opens the workspace knowledge store when the
// database file exists. A missing store just disables retrieval.
func openStoreIfPresent() *store.Store {
	path := storePath(cfg)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	st, err := store.Open(path, buildEmbedder())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: knowledge store unavailable: %v\n", err)
		return nil
	}
	return st
}

func storePath(cfg config.Config) string {
	return filepath.Join(workspace, ".codevolve", cfg.Knowledge.DBPath)
}

// buildEmbedder falls back to the deterministic hash engine when the
// configured backend cannot be constructed (typically a missing key).
func buildEmbedder() embedding.Engine {
	if dryRun {
		return embedding.NewHashEngine(cfg.Embedding.Dimensions)
	}
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; using hash embeddings\n", err)
		return embedding.NewHashEngine(cfg.Embedding.Dimensions)
	}
	return engine
}

func printEvents(events <-chan orchestrator.Event) {
	for ev := range events {
		if verbose {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Type, ev.Message)
		}
	}
}
