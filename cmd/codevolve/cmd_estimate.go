package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codevolve/internal/config"
	"codevolve/internal/cost"
)

var (
	estimateModel string
	estimateTier  string
	estimateFile  string
)

// estimateCmd prices a prompt without calling any provider
var estimateCmd = &cobra.Command{
	Use:   "estimate [prompt]",
	Short: "Estimate tokens and cost for a prompt",
	Long: `Counts tokens and prices a prompt against a model without making a
provider call. The prompt comes from arguments, --file, or stdin.

Examples:
  codevolve estimate "refactor the auth module"
  codevolve estimate --tier highest --file prompt.txt
  cat prompt.txt | codevolve estimate --model gemini-2.5-flash`,
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().StringVar(&estimateModel, "model", "", "Model identifier to price against")
	estimateCmd.Flags().StringVar(&estimateTier, "tier", "middle", "Model tier when --model is not set")
	estimateCmd.Flags().StringVar(&estimateFile, "file", "", "Read the prompt from a file")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	prompt, err := resolvePrompt(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("empty prompt")
	}

	model := estimateModel
	if model == "" {
		model = cfg.LLM.Models[config.ModelTier(estimateTier)]
		if model == "" {
			return fmt.Errorf("unknown tier %q", estimateTier)
		}
	}

	estimator := cost.NewEstimator()
	c := estimator.Estimate(prompt, model)

	fmt.Printf("model:   %s\n", model)
	fmt.Printf("tokens:  %d\n", c.Tokens)
	fmt.Printf("cost:    $%.6f\n", c.Amount)
	fmt.Printf("per 1K:  $%.6f\n", cost.PricePer1K(model))
	return nil
}

func resolvePrompt(args []string) (string, error) {
	if estimateFile != "" {
		data, err := os.ReadFile(estimateFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
