package arch

import (
	"path"
	"strings"

	"go.uber.org/zap"

	"codevolve/internal/logging"
)

// Module is one architectural unit of the target system.
type Module struct {
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Languages  []string `json:"languages"`
	BasePath   string   `json:"base_path"`
	Subfolders []string `json:"subfolders,omitempty"`
}

// Context is the inferred architectural shape of a project. FileRules
// maps a file role to the base path files of that role must live under.
type Context struct {
	SystemType  string            `json:"system_type"`
	Pattern     string            `json:"architecture_pattern"`
	Modules     []Module          `json:"modules"`
	FileRules   map[string]string `json:"file_organization_rules"`
	Constraints []string          `json:"constraints"`
	Fallback    bool              `json:"fallback,omitempty"`
}

var patternByType = map[string]string{
	"fullstack_web_app": "frontend_backend_split",
	"cli_tool":          "command_pipeline",
	"api_service":       "layered_api",
	"library":           "modular_package",
	"web_app":           "monolithic_web",
}

var constraintsByType = map[string][]string{
	"fullstack_web_app": {
		"never mix frontend and backend code in the same file",
		"frontend code lives under frontend/, backend code under backend/",
	},
	"cli_tool": {
		"keep the entry point thin; put logic in importable modules",
	},
	"api_service": {
		"every endpoint handler validates its inputs before use",
	},
	"library": {
		"no side effects at import time",
	},
}

// Engine derives architectural context from the task text and the
// project's existing files.
type Engine struct {
	log *zap.SugaredLogger
}

func NewEngine() *Engine {
	return &Engine{log: logging.Get(logging.CategoryArch)}
}

// Analyze infers system type, pattern, modules and placement rules.
// It never fails: any internal panic yields the fallback context.
func (e *Engine) Analyze(task, originalIdea string, projectFiles []string) (ctx Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warnw("architectural analysis failed, using fallback", "panic", r)
			ctx = FallbackContext()
		}
	}()

	systemType := DetectSystemType(task + " " + originalIdea)
	ctx = Context{
		SystemType:  systemType,
		Pattern:     patternByType[systemType],
		Modules:     synthesizeModules(systemType),
		Constraints: append([]string(nil), constraintsByType[systemType]...),
	}
	ctx.FileRules = fileRules(ctx.Modules)

	e.log.Infow("architectural context inferred",
		"system_type", ctx.SystemType,
		"pattern", ctx.Pattern,
		"modules", len(ctx.Modules),
		"existing_files", len(projectFiles))
	return ctx
}

// FallbackContext is the deterministic context used when analysis
// cannot run.
func FallbackContext() Context {
	return Context{
		SystemType: "web_app",
		Pattern:    patternByType["web_app"],
		Modules: []Module{
			{Name: "core", Role: "core", Languages: []string{"python"}, BasePath: "."},
		},
		FileRules:   map[string]string{},
		Constraints: nil,
		Fallback:    true,
	}
}

// DetectSystemType classifies the combined task text by keyword.
// Web-stack tokens take precedence, then CLI, API and library tokens.
// Matching is word-bounded, so "client" never reads as "cli", and the
// bare token "api" stays out of the web list so an API-only service is
// not swept into fullstack.
func DetectSystemType(text string) string {
	t := strings.ToLower(text)

	webTokens := []string{"web app", "webapp", "frontend", "backend", "react", "fastapi", "flask", "express", "vue", "angular"}
	cliTokens := []string{"cli", "command line", "command-line", "script", "terminal"}
	apiTokens := []string{"api", "rest", "endpoint", "endpoints", "microservice"}
	libTokens := []string{"library", "package", "module"}

	switch {
	case containsAny(t, webTokens):
		return "fullstack_web_app"
	case containsAny(t, cliTokens):
		return "cli_tool"
	case containsAny(t, apiTokens):
		return "api_service"
	case containsAny(t, libTokens):
		return "library"
	}
	return "web_app"
}

func synthesizeModules(systemType string) []Module {
	if systemType == "fullstack_web_app" {
		return []Module{
			{
				Name:       "frontend",
				Role:       "ui_layer",
				Languages:  []string{"javascript", "jsx"},
				BasePath:   "frontend",
				Subfolders: []string{"src/components", "src/pages", "src/services", "public"},
			},
			{
				Name:       "backend",
				Role:       "api_layer",
				Languages:  []string{"python"},
				BasePath:   "backend",
				Subfolders: []string{"api", "services", "models", "tests"},
			},
		}
	}
	return []Module{
		{Name: "core", Role: "core", Languages: nil, BasePath: "."},
	}
}

func fileRules(modules []Module) map[string]string {
	rules := make(map[string]string)
	for _, m := range modules {
		switch m.Role {
		case "ui_layer":
			rules["ui_components"] = m.BasePath + "/src/components"
		case "api_layer":
			rules["api_routes"] = m.BasePath + "/api"
			rules["business_logic"] = m.BasePath + "/services"
			rules["data_models"] = m.BasePath + "/models"
		}
	}
	return rules
}

// roleTokens maps keywords found in a step's description to file roles.
var roleTokens = []struct {
	role   string
	tokens []string
}{
	{"ui_components", []string{"component", "ui", "page", "view", "jsx"}},
	{"api_routes", []string{"route", "endpoint", "api", "handler"}},
	{"data_models", []string{"model", "schema", "table", "entity"}},
	{"business_logic", []string{"service", "logic", "business", "workflow"}},
}

// ValidatePlacement checks a planned file path against the placement
// rules keyed by role words in the step description. When the path
// does not live under the matched rule's base path it is rewritten
// there; the returned note carries the original path, or "" when no
// rewrite happened.
func (c Context) ValidatePlacement(file, what string) (string, string) {
	if len(c.FileRules) == 0 {
		return file, ""
	}

	w := strings.ToLower(what)
	for _, rt := range roleTokens {
		base, ok := c.FileRules[rt.role]
		if !ok || !containsAny(w, rt.tokens) {
			continue
		}
		clean := path.Clean(strings.ReplaceAll(file, "\\", "/"))
		if clean == base || strings.HasPrefix(clean, base+"/") {
			return file, ""
		}
		rewritten := path.Join(base, path.Base(clean))
		return rewritten, "moved from " + file + " to satisfy " + rt.role + " placement"
	}
	return file, ""
}

// InjectConstraints appends the context's mandatory constraints to the
// goal's constraint list, skipping duplicates.
func (c Context) InjectConstraints(goal []string) []string {
	seen := make(map[string]struct{}, len(goal))
	for _, g := range goal {
		seen[g] = struct{}{}
	}
	out := append([]string(nil), goal...)
	for _, mc := range c.Constraints {
		if _, dup := seen[mc]; dup {
			continue
		}
		out = append(out, mc)
	}
	return out
}

func containsAny(text string, tokens []string) bool {
	for _, tok := range tokens {
		if containsToken(text, tok) {
			return true
		}
	}
	return false
}

// containsToken requires word boundaries for single-word tokens so
// that "api" does not match inside "fastapi" or "cli" inside "client".
func containsToken(text, tok string) bool {
	if strings.ContainsAny(tok, " -") {
		return strings.Contains(text, tok)
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], tok)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(tok)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
