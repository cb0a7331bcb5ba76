// Package logging provides config-driven categorized logging for codevolve.
// Logs are written to .codevolve/logs/ with a separate file per category.
// When debug mode is off, category loggers degrade to console warnings only.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup and initialization
	CategoryBudget       Category = "budget"       // Budget manager and scopes
	CategoryTrace        Category = "trace"        // Phase cost tracking
	CategoryLLM          Category = "llm"          // LLM provider calls
	CategoryEmbedding    Category = "embedding"    // Embedding engine
	CategoryStore        Category = "store"        // Vector store operations
	CategoryKnowledge    Category = "knowledge"    // Retrieval and scoring
	CategoryArch         Category = "arch"         // Architectural context engine
	CategoryPlan         Category = "plan"         // Plan generation
	CategoryModify       Category = "modify"       // Step execution and sanitation
	CategoryValidate     Category = "validate"     // Quality and operational validation
	CategoryHeal         Category = "heal"         // Self-healing controller
	CategoryOrchestrator Category = "orchestrator" // Top-level state machine
)

// Options controls logger construction.
type Options struct {
	Workspace string // Project root; logs go under <workspace>/.codevolve/logs
	Debug     bool   // Debug mode enables file sinks and debug level
	Console   bool   // Mirror warnings and errors to stderr
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*zap.SugaredLogger)
	opts    Options
	ready   bool
)

// Initialize sets up the logging directory. Safe to call once at startup;
// loggers requested before Initialize are no-op.
func Initialize(o Options) error {
	mu.Lock()
	defer mu.Unlock()

	if o.Workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	opts = o
	ready = true

	if !o.Debug {
		return nil
	}

	logsDir := filepath.Join(o.Workspace, ".codevolve", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := getLocked(CategoryBoot)
	boot.Infof("codevolve logging initialized")
	boot.Infof("workspace: %s", o.Workspace)
	boot.Infof("logs directory: %s", logsDir)
	return nil
}

// Get returns the logger for a category, creating it on first use.
func Get(c Category) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return getLocked(c)
}

func getLocked(c Category) *zap.SugaredLogger {
	if lg, ok := loggers[c]; ok {
		return lg
	}

	lg := build(c)
	loggers[c] = lg
	return lg
}

func build(c Category) *zap.SugaredLogger {
	if !ready {
		return zap.NewNop().Sugar()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	if opts.Debug {
		path := filepath.Join(opts.Workspace, ".codevolve", "logs", string(c)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encCfg),
				zapcore.AddSync(f),
				zapcore.DebugLevel,
			))
		}
	}

	if opts.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(os.Stderr),
			zapcore.WarnLevel,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop().Sugar()
	}

	return zap.New(zapcore.NewTee(cores...)).
		Named(string(c)).
		Sugar()
}

// Sync flushes all category loggers. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, lg := range loggers {
		_ = lg.Sync()
	}
}

// Reset drops all loggers. Used by tests to isolate workspaces.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	loggers = make(map[Category]*zap.SugaredLogger)
	ready = false
	opts = Options{}
}
