package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"codevolve/internal/arch"
	"codevolve/internal/config"
	"codevolve/internal/hooks"
	"codevolve/internal/logging"
	"codevolve/internal/operator"
	"codevolve/internal/project"
)

const planHookID = "plan-step-array"

// Generator turns an objective plus context into a validated
// modification plan.
type Generator struct {
	op  *operator.Operator
	log *zap.SugaredLogger
}

func NewGenerator(op *operator.Operator) (*Generator, error) {
	g := &Generator{op: op, log: logging.Get(logging.CategoryPlan)}
	err := op.RegisterHook(hooks.Hook{
		ID:       planHookID,
		Type:     hooks.TypeSchema,
		Priority: 10,
		Validate: func(data any) (bool, string) {
			text, _ := data.(string)
			if _, err := ParseSteps(text); err != nil {
				return false, err.Error()
			}
			return true, ""
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register plan hook: %w", err)
	}
	return g, nil
}

// Request carries everything the planner prompt needs.
type Request struct {
	Task             string
	Language         string
	ProjectPath      string
	KnowledgeContext string
	Arch             arch.Context
}

// Generate runs the planning phase: enumerate files, prompt the
// highest-tier model, parse and validate the step array, resolve file
// references, then apply architectural placement.
func (g *Generator) Generate(ctx context.Context, req Request) (Plan, error) {
	files, err := project.ListFiles(req.ProjectPath)
	if err != nil {
		return Plan{}, fmt.Errorf("planning failed: %w", err)
	}

	if err := g.op.StartPhase("planning", "generate modification plan"); err != nil {
		return Plan{}, fmt.Errorf("planning failed: %w", err)
	}

	result, passed, err := g.op.RunReflectiveLoop(ctx, "planning", "plan",
		func(i int, feedback []string) (string, string) {
			return plannerSystem, g.buildPrompt(req, files, feedback)
		}, config.TierHighest, hooks.TypeSchema)
	if err != nil {
		g.endPhase(false, nil, err.Error())
		return Plan{}, fmt.Errorf("planning failed: %w", err)
	}
	if !passed {
		g.endPhase(false, nil, "planner output never validated")
		return Plan{}, fmt.Errorf("%w: planner output never validated", ErrInvalidPlan)
	}

	steps, err := ParseSteps(result.Response)
	if err != nil {
		g.endPhase(false, nil, err.Error())
		return Plan{}, fmt.Errorf("planning failed: %w", err)
	}

	p := g.resolveFiles(steps, files)
	g.applyPlacement(&p, req.Arch)

	g.endPhase(true, p, "")
	g.log.Infow("plan generated", "steps", len(p.Steps), "warnings", len(p.Warnings))
	return p, nil
}

func (g *Generator) endPhase(success bool, result any, feedback string) {
	if err := g.op.EndPhase(&success, result, feedback); err != nil {
		g.log.Warnw("failed to end planning phase", "error", err)
	}
}

// resolveFiles checks non-create steps against the real file list. A
// missing file is rematched by case-insensitive basename; a modify
// that still misses is demoted to create, a delete is dropped.
func (g *Generator) resolveFiles(steps []Step, files []string) Plan {
	existing := make(map[string]struct{}, len(files))
	for _, f := range files {
		existing[f] = struct{}{}
	}

	var p Plan
	for _, s := range steps {
		if s.Action == "create" {
			p.Steps = append(p.Steps, s)
			continue
		}
		if _, ok := existing[s.File]; ok {
			p.Steps = append(p.Steps, s)
			continue
		}

		if match := project.FindByBasename(files, s.File); match != "" {
			warn := fmt.Sprintf("step file %q rematched to %q", s.File, match)
			g.log.Warnf("%s", warn)
			s.File = match
			p.Steps = append(p.Steps, s)
			p.Warnings = append(p.Warnings, warn)
			continue
		}

		switch s.Action {
		case "modify":
			warn := fmt.Sprintf("step file %q does not exist; demoting modify to create", s.File)
			g.log.Warnf("%s", warn)
			s.Action = "create"
			p.Steps = append(p.Steps, s)
			p.Warnings = append(p.Warnings, warn)
		case "delete":
			warn := fmt.Sprintf("step file %q does not exist; dropping delete", s.File)
			g.log.Warnf("%s", warn)
			p.Warnings = append(p.Warnings, warn)
		}
	}
	return p
}

func (g *Generator) applyPlacement(p *Plan, archCtx arch.Context) {
	for i, s := range p.Steps {
		file, note := archCtx.ValidatePlacement(s.File, s.What)
		if note != "" {
			p.Steps[i].File = file
			p.Steps[i].ArchitecturalNote = note
		}
	}
}

const plannerSystem = `You are a software modification planner. You answer with a JSON array only; no prose outside the array.`

func (g *Generator) buildPrompt(req Request, files []string, feedback []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PROJECT: %s (language: %s)\n\n", req.ProjectPath, orUnknown(req.Language))

	b.WriteString("EXISTING FILES:\n")
	if len(files) == 0 {
		b.WriteString("(empty project)\n")
	}
	for _, f := range files {
		b.WriteString("  " + f + "\n")
	}

	fmt.Fprintf(&b, "\nUSER REQUEST:\n%s\n", req.Task)

	if req.KnowledgeContext != "" {
		fmt.Fprintf(&b, "\nREFERENCE CONTEXT:\n%s\n", req.KnowledgeContext)
	} else {
		b.WriteString("\nREFERENCE CONTEXT: none available\n")
	}

	if req.Arch.SystemType != "" {
		fmt.Fprintf(&b, "\nARCHITECTURE: system type %s, pattern %s\n", req.Arch.SystemType, req.Arch.Pattern)
		roles := make([]string, 0, len(req.Arch.FileRules))
		for role := range req.Arch.FileRules {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			fmt.Fprintf(&b, "  place %s under %s/\n", role, req.Arch.FileRules[role])
		}
		for _, c := range req.Arch.Constraints {
			b.WriteString("  constraint: " + c + "\n")
		}
	}

	b.WriteString(`
RULES:
- Respect the module layout and placement rules above.
- Output a JSON array of objects, each with exactly these string fields:
  "file", "action", "what", "how".
- "action" is one of "create", "modify", "delete".
- Reference existing files by their paths above.
`)

	if len(feedback) > 0 {
		b.WriteString("\nYOUR PREVIOUS ANSWER WAS REJECTED:\n")
		for _, f := range feedback {
			b.WriteString("  - " + f + "\n")
		}
		b.WriteString("Fix these problems and answer again.\n")
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
