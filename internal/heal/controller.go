package heal

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"codevolve/internal/arch"
	"codevolve/internal/knowledge"
	"codevolve/internal/logging"
	"codevolve/internal/modify"
	"codevolve/internal/plan"
	"codevolve/internal/project"
)

// NotesFile is where fix_test_logic leaves its regeneration notes,
// relative to the workspace data directory.
const NotesFile = ".codevolve/heal_notes.md"

// Outcome describes what one healing round did. ModifiedFiles carries
// the (possibly rewritten) file bodies the caller should proceed with.
type Outcome struct {
	Analysis       Analysis          `json:"analysis"`
	Applied        bool              `json:"applied"`
	ModifiedFiles  map[string]string `json:"-"`
	RewrittenFiles []string          `json:"rewritten_files,omitempty"`
	NewPlan        *plan.Plan        `json:"new_plan,omitempty"`
	Escalation     string            `json:"escalation,omitempty"`
	NotesPath      string            `json:"notes_path,omitempty"`
}

// Request is everything a healing round may need.
type Request struct {
	Task          string
	ProjectPath   string
	Language      string
	Arch          arch.Context
	ModifiedFiles map[string]string
	Issues        []string
}

// Controller dispatches recovery strategies. The generator and
// retriever are optional; strategies that need a missing collaborator
// degrade to an unapplied outcome.
type Controller struct {
	generator *plan.Generator
	retriever *knowledge.Retriever
	log       *zap.SugaredLogger
}

func NewController(generator *plan.Generator, retriever *knowledge.Retriever) *Controller {
	return &Controller{
		generator: generator,
		retriever: retriever,
		log:       logging.Get(logging.CategoryHeal),
	}
}

// ExecuteSelfHealing analyzes the issues and runs the selected
// strategy once. It never loops; the orchestrator owns the single
// re-validation that follows.
func (c *Controller) ExecuteSelfHealing(ctx context.Context, req Request) (Outcome, error) {
	analysis := AnalyzeFailurePatterns(req.Issues)
	out := Outcome{Analysis: analysis, ModifiedFiles: req.ModifiedFiles}

	c.log.Infow("self-healing strategy selected",
		"strategy", analysis.Strategy,
		"confidence", analysis.Confidence,
		"auto_recoverable", analysis.AutoRecoverable,
		"issues", len(req.Issues))

	switch analysis.Strategy {
	case StrategyNoAction:
		return out, nil

	case StrategyAutoFixSyntax:
		c.autoFixSyntax(&out, req)
		return out, nil

	case StrategyFixTestLogic:
		return out, c.flagTestFiles(&out, req)

	case StrategyReplanPerf:
		return out, c.replan(ctx, &out, req, c.performanceTask(ctx, req))

	case StrategyGenericRetry:
		task := fmt.Sprintf("%s\n\nThe previous attempt was rejected for these issues:\n- %s",
			req.Task, strings.Join(req.Issues, "\n- "))
		return out, c.replan(ctx, &out, req, task)

	case StrategyHumanEscalation:
		out.Escalation = fmt.Sprintf(
			"ESCALATION: human review required before these changes can ship.\nIssues:\n- %s",
			strings.Join(req.Issues, "\n- "))
		out.Applied = true
		return out, nil
	}

	return out, fmt.Errorf("unknown healing strategy %q", analysis.Strategy)
}

// autoFixSyntax re-sanitizes every modified file; files the auto-fix
// pass actually changed are reported as rewritten.
func (c *Controller) autoFixSyntax(out *Outcome, req Request) {
	fixed := make(map[string]string, len(req.ModifiedFiles))
	for f, body := range req.ModifiedFiles {
		res := modify.Sanitize(fileLanguage(f, req.Language), body)
		if res.AutoFixed || res.FallbackApplied {
			fixed[f] = res.Content
			out.RewrittenFiles = append(out.RewrittenFiles, f)
		} else {
			fixed[f] = body
		}
	}
	sort.Strings(out.RewrittenFiles)
	out.ModifiedFiles = fixed
	out.Applied = len(out.RewrittenFiles) > 0
}

// flagTestFiles records which test files need regeneration without
// regenerating them here; cascading regeneration is how healing loops
// start.
func (c *Controller) flagTestFiles(out *Outcome, req Request) error {
	var flagged []string
	for f := range req.ModifiedFiles {
		base := filepath.Base(f)
		if strings.HasPrefix(base, "test_") || strings.Contains(base, ".test.") || strings.HasSuffix(base, "_test.py") {
			flagged = append(flagged, f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Healing notes (%s)\n\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("Test logic failures were detected. Regenerate these test files:\n\n")
	if len(flagged) == 0 {
		b.WriteString("- (no test files among the modifications; review the issues below)\n")
	}
	for _, f := range flagged {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("\nIssues:\n")
	for _, issue := range req.Issues {
		b.WriteString("- " + issue + "\n")
	}

	notesPath := filepath.Join(req.ProjectPath, filepath.FromSlash(NotesFile))
	if err := project.WriteFileAtomic(notesPath, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to write healing notes: %w", err)
	}
	out.NotesPath = notesPath
	out.Applied = true
	return nil
}

func (c *Controller) performanceTask(ctx context.Context, req Request) string {
	task := fmt.Sprintf("%s\n\nRework the plan to fix these performance problems:\n- %s",
		req.Task, strings.Join(req.Issues, "\n- "))

	if c.retriever != nil {
		if chunks := c.retriever.RetrieveContext(ctx, "performance optimization "+strings.Join(req.Issues, " "), 3); chunks != "" {
			task += "\n\nRelevant performance guidance:\n" + chunks
		}
	}
	return task
}

func (c *Controller) replan(ctx context.Context, out *Outcome, req Request, task string) error {
	if c.generator == nil {
		c.log.Warnw("no plan generator wired; healing strategy not applied", "strategy", out.Analysis.Strategy)
		return nil
	}

	p, err := c.generator.Generate(ctx, plan.Request{
		Task:        task,
		Language:    req.Language,
		ProjectPath: req.ProjectPath,
		Arch:        req.Arch,
	})
	if err != nil {
		return fmt.Errorf("healing replan failed: %w", err)
	}
	out.NewPlan = &p
	out.Applied = true
	return nil
}

func fileLanguage(file, projectLanguage string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".jsx":
		return "jsx"
	case ".go":
		return "go"
	}
	return projectLanguage
}
