package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSystemType(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"build a web app with React frontend", "fullstack_web_app"},
		{"FastAPI backend for todos", "fullstack_web_app"},
		{"a CLI to rename files", "cli_tool"},
		{"command line tool for backups", "cli_tool"},
		{"REST API microservice for billing", "api_service"},
		{"a reusable library for date math", "library"},
		{"improve the thing", "web_app"},
		// "client" must not read as "cli", nor "fastapi" alone as "api".
		{"client sync helper for the fastapi service", "fullstack_web_app"},
		{"add a script for the frontend build", "fullstack_web_app"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectSystemType(tc.text), tc.text)
	}
}

func TestAnalyzeFullstack(t *testing.T) {
	e := NewEngine()
	ctx := e.Analyze("build a web app", "todo tracker with React", nil)

	assert.Equal(t, "fullstack_web_app", ctx.SystemType)
	assert.Equal(t, "frontend_backend_split", ctx.Pattern)
	require.Len(t, ctx.Modules, 2)
	assert.Equal(t, "frontend", ctx.Modules[0].Name)
	assert.Equal(t, "backend/api", ctx.FileRules["api_routes"])
	assert.Equal(t, "frontend/src/components", ctx.FileRules["ui_components"])
	assert.Contains(t, ctx.Constraints, "never mix frontend and backend code in the same file")
	assert.False(t, ctx.Fallback)
}

func TestFallbackContextIsDeterministic(t *testing.T) {
	a, b := FallbackContext(), FallbackContext()
	assert.Equal(t, a, b)
	assert.True(t, a.Fallback)
	assert.Equal(t, "web_app", a.SystemType)
}

func TestValidatePlacementRewrites(t *testing.T) {
	e := NewEngine()
	ctx := e.Analyze("web app with React and FastAPI", "", nil)

	file, note := ctx.ValidatePlacement("TodoList.jsx", "create the todo list UI component")
	assert.Equal(t, "frontend/src/components/TodoList.jsx", file)
	assert.Contains(t, note, "TodoList.jsx")

	file, note = ctx.ValidatePlacement("backend/api/todos.py", "add the todos endpoint")
	assert.Equal(t, "backend/api/todos.py", file)
	assert.Empty(t, note, "compliant paths are untouched")

	file, note = ctx.ValidatePlacement("README.md", "document the setup steps")
	assert.Equal(t, "README.md", file)
	assert.Empty(t, note, "steps without a role keyword are untouched")
}

func TestValidatePlacementNoRules(t *testing.T) {
	ctx := FallbackContext()
	file, note := ctx.ValidatePlacement("anything.py", "create the api endpoint")
	assert.Equal(t, "anything.py", file)
	assert.Empty(t, note)
}

func TestInjectConstraints(t *testing.T) {
	e := NewEngine()
	ctx := e.Analyze("web app", "", nil)

	goal := []string{"use sqlite", "never mix frontend and backend code in the same file"}
	out := ctx.InjectConstraints(goal)

	assert.Equal(t, "use sqlite", out[0])
	assert.Equal(t, 1, countOf(out, "never mix frontend and backend code in the same file"))
}

func countOf(xs []string, want string) int {
	n := 0
	for _, x := range xs {
		if x == want {
			n++
		}
	}
	return n
}
