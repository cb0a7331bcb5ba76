package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"codevolve/internal/config"
)

var version = "0.3.0"

// statusCmd summarizes workspace state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace configuration and recent operations",
	RunE:  showStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the codevolve version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("codevolve", version)
	},
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("workspace:  %s\n", workspace)
	fmt.Printf("provider:   %s\n", cfg.LLM.Provider)
	for _, tier := range []config.ModelTier{config.TierHighest, config.TierMiddle, config.TierSmall, config.TierXS} {
		fmt.Printf("  %-8s %s\n", tier, cfg.LLM.Models[tier])
	}
	if cfg.Budget.SessionBudget != nil {
		fmt.Printf("budget:     $%.4f per session\n", *cfg.Budget.SessionBudget)
	} else {
		fmt.Printf("budget:     unlimited\n")
	}

	if info, err := os.Stat(storePath(cfg)); err == nil {
		fmt.Printf("knowledge:  %s (%d KB)\n", storePath(cfg), info.Size()/1024)
	} else {
		fmt.Printf("knowledge:  not initialized\n")
	}

	return printRecentOperations(filepath.Join(workspace, ".codevolve", "operations"))
}

// operationSummary is the slice of the persisted record status cares about.
type operationSummary struct {
	OperationID    string `json:"operation_id"`
	OperationType  string `json:"operation_type"`
	OverallSuccess *bool  `json:"overall_success"`
}

func printRecentOperations(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		fmt.Println("operations: none")
		return nil
	}
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) > 10 {
		names = names[len(names)-10:]
	}

	fmt.Printf("operations: %d recent\n", len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var op operationSummary
		if err := json.Unmarshal(data, &op); err != nil {
			continue
		}
		outcome := "unknown"
		if op.OverallSuccess != nil {
			if *op.OverallSuccess {
				outcome = "approved"
			} else {
				outcome = "rejected"
			}
		}
		fmt.Printf("  %s  %-14s %s\n", op.OperationID, op.OperationType, outcome)
	}
	return nil
}
