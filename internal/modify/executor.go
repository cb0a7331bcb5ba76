package modify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codevolve/internal/knowledge"
	"codevolve/internal/logging"
	"codevolve/internal/operator"
	"codevolve/internal/plan"
)

// Result is everything the executor produced: new file bodies keyed by
// relative path and the deletion list, deferred until after writes.
type Result struct {
	ModifiedFiles map[string]string `json:"modified_files"`
	FilesToDelete []string          `json:"files_to_delete"`
	FallbackFiles []string          `json:"fallback_files,omitempty"`
	FailedStep    *plan.Step        `json:"failed_step,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Executor runs plan steps in dispatch order, funding each modifier
// call through the operator. Steps touching distinct files run
// concurrently inside a wave; results commit in plan order and the
// first hard failure stops everything after it.
type Executor struct {
	op        *operator.Operator
	retriever *knowledge.Retriever
	workers   int
	log       *zap.SugaredLogger
}

// NewExecutor builds an executor with a pool of workers; a
// non-positive count derives one from the CPU count.
func NewExecutor(op *operator.Operator, retriever *knowledge.Retriever, workers int) *Executor {
	if workers <= 0 {
		workers = workerCount()
	}
	return &Executor{
		op:        op,
		retriever: retriever,
		workers:   workers,
		log:       logging.Get(logging.CategoryModify),
	}
}

func workerCount() int {
	p := runtime.NumCPU()
	if p < 2 {
		p = 2
	}
	if p > 16 {
		p = 16
	}
	return p
}

type stepOutcome struct {
	content  string
	fallback bool
	err      error
}

// Execute runs the modification phase over the plan. The returned
// error is non-nil only for failures outside step execution; a failed
// step is reported through Result.FailedStep with a partial result.
func (e *Executor) Execute(ctx context.Context, p plan.Plan, projectPath, language string) (Result, error) {
	res := Result{ModifiedFiles: map[string]string{}}

	if err := e.op.StartPhase("modification", "execute modification plan"); err != nil {
		return res, fmt.Errorf("modification failed: %w", err)
	}

	var work []plan.Step
	for _, s := range p.Steps {
		if s.Action == "delete" {
			res.FilesToDelete = append(res.FilesToDelete, s.File)
			continue
		}
		work = append(work, s)
	}

	stepNo := 0
	for _, wave := range buildWaves(work) {
		outcomes := make([]stepOutcome, len(wave))

		g, waveCtx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for i, s := range wave {
			stepNo++
			i, s, id := i, s, fmt.Sprintf("modify-%d", stepNo)
			g.Go(func() error {
				outcomes[i] = e.runStep(waveCtx, id, s, projectPath, language, res.ModifiedFiles)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			e.endPhase(false, nil, err.Error())
			return res, fmt.Errorf("modification failed: %w", err)
		}

		for i, out := range outcomes {
			if out.err != nil {
				step := wave[i]
				res.FailedStep = &step
				res.Error = out.err.Error()
				e.log.Errorw("plan step failed", "file", step.File, "error", out.err)
				e.endPhase(false, res, out.err.Error())
				return res, nil
			}
			res.ModifiedFiles[wave[i].File] = out.content
			if out.fallback {
				res.FallbackFiles = append(res.FallbackFiles, wave[i].File)
			}
		}
	}

	e.endPhase(true, res, "")
	return res, nil
}

func (e *Executor) endPhase(success bool, result any, feedback string) {
	if err := e.op.EndPhase(&success, result, feedback); err != nil {
		e.log.Warnw("failed to end modification phase", "error", err)
	}
}

// buildWaves splits steps into maximal runs of distinct files.
// Consecutive steps on the same file land in separate waves so the
// second sees the first's output.
func buildWaves(steps []plan.Step) [][]plan.Step {
	var waves [][]plan.Step
	var current []plan.Step
	inWave := map[string]struct{}{}

	for _, s := range steps {
		if _, clash := inWave[s.File]; clash {
			waves = append(waves, current)
			current = nil
			inWave = map[string]struct{}{}
		}
		current = append(current, s)
		inWave[s.File] = struct{}{}
	}
	if len(current) > 0 {
		waves = append(waves, current)
	}
	return waves
}

func (e *Executor) runStep(ctx context.Context, stepID string, s plan.Step, projectPath, language string, prior map[string]string) stepOutcome {
	var stepContext string
	if e.retriever != nil {
		stepContext = e.retriever.RetrieveContext(ctx, s.What+" "+s.How, 3)
	}

	current, exists := prior[s.File]
	if !exists {
		if raw, err := os.ReadFile(filepath.Join(projectPath, filepath.FromSlash(s.File))); err == nil {
			current = string(raw)
			exists = true
		}
	}

	result, err := e.op.ExecuteReasoningStep(ctx, "modification", stepID, modifierSystem,
		e.buildPrompt(s, language, current, exists, stepContext), "")
	if err != nil {
		return stepOutcome{err: fmt.Errorf("step %q on %s: %w", s.What, s.File, err)}
	}

	body := StripFences(result.Response)
	if exists && LooksLikePatch(body) {
		patched, err := ApplyPatch(current, body)
		if err != nil {
			return stepOutcome{err: fmt.Errorf("step %q on %s: %w", s.What, s.File, err)}
		}
		body = patched
	}

	sanitized := Sanitize(languageFor(s.File, language), body)
	if sanitized.FallbackApplied {
		e.log.Warnw("fallback applied", "file", s.File, "step", stepID)
	}
	return stepOutcome{content: sanitized.Content, fallback: sanitized.FallbackApplied}
}

const modifierSystem = `You are a code modifier. You receive one modification step and answer with the complete new file body. For small edits to an existing file you may instead answer with a patch in @@ hunk format. No prose, no markdown fences.`

func (e *Executor) buildPrompt(s plan.Step, language, current string, exists bool, stepContext string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "FILE: %s\nACTION: %s\nWHAT: %s\nHOW: %s\n", s.File, s.Action, s.What, s.How)
	if s.ArchitecturalNote != "" {
		fmt.Fprintf(&b, "NOTE: %s\n", s.ArchitecturalNote)
	}
	fmt.Fprintf(&b, "LANGUAGE: %s\n", orUnknown(language))

	if exists {
		fmt.Fprintf(&b, "\nCURRENT CONTENT:\n%s\n", current)
	} else {
		b.WriteString("\nCURRENT CONTENT: (new file)\n")
	}

	if stepContext != "" {
		fmt.Fprintf(&b, "\nREFERENCE CONTEXT:\n%s\n", stepContext)
	} else {
		b.WriteString("\nREFERENCE CONTEXT: none available\n")
	}
	return b.String()
}

// languageFor prefers the file extension over the project default.
func languageFor(file, projectLanguage string) string {
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

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
