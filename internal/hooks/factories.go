package hooks

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/xeipuuv/gojsonschema"

	"codevolve/internal/cost"
)

// SyntaxHook validates that step output parses in the given language.
// Python and JavaScript go through tree-sitter; Go uses go/parser.
// Unknown languages pass with a note rather than blocking the pipeline.
func SyntaxHook(language string) Hook {
	return Hook{
		ID:       "syntax_" + language,
		Type:     TypeSyntax,
		Priority: 100,
		Validate: func(data any) (bool, string) {
			source, ok := data.(string)
			if !ok {
				return false, "syntax hook expects string input"
			}
			return CheckSyntax(language, source)
		},
	}
}

// CheckSyntax parses source in the given language and reports validity.
func CheckSyntax(language, source string) (bool, string) {
	switch normalizeLanguage(language) {
	case "python":
		return treeSitterParse(python.GetLanguage(), source)
	case "javascript":
		return treeSitterParse(javascript.GetLanguage(), source)
	case "go":
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, "generated.go", source, 0); err != nil {
			return false, fmt.Sprintf("syntax error: %v", err)
		}
		return true, ""
	default:
		return true, fmt.Sprintf("no parser for language %q; skipped", language)
	}
}

func treeSitterParse(lang *sitter.Language, source string) (bool, string) {
	p := sitter.NewParser()
	p.SetLanguage(lang)

	tree, err := p.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil {
		return false, fmt.Sprintf("syntax error: parse failed: %v", err)
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return false, fmt.Sprintf("syntax error near: %s", firstErrorSnippet(tree.RootNode(), source))
	}
	return true, ""
}

// firstErrorSnippet walks to the first ERROR node and returns its text.
func firstErrorSnippet(node *sitter.Node, source string) string {
	if node.Type() == "ERROR" || node.IsMissing() {
		start, end := node.StartByte(), node.EndByte()
		if int(end) > len(source) {
			end = uint32(len(source))
		}
		snippet := source[start:end]
		if len(snippet) > 80 {
			snippet = snippet[:80]
		}
		return strings.TrimSpace(snippet)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if s := firstErrorSnippet(node.Child(i), source); s != "" {
			return s
		}
	}
	return ""
}

func normalizeLanguage(language string) string {
	switch strings.ToLower(language) {
	case "python", "py":
		return "python"
	case "javascript", "js", "jsx":
		return "javascript"
	case "go", "golang":
		return "go"
	default:
		return strings.ToLower(language)
	}
}

// SchemaHook validates step output (a JSON string or Go value) against a
// JSON schema document.
func SchemaHook(id string, schemaJSON string) Hook {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)

	return Hook{
		ID:       id,
		Type:     TypeSchema,
		Priority: 90,
		Validate: func(data any) (bool, string) {
			var docLoader gojsonschema.JSONLoader
			switch v := data.(type) {
			case string:
				docLoader = gojsonschema.NewStringLoader(v)
			default:
				docLoader = gojsonschema.NewGoLoader(v)
			}

			result, err := gojsonschema.Validate(schemaLoader, docLoader)
			if err != nil {
				return false, fmt.Sprintf("schema validation failed: %v", err)
			}
			if !result.Valid() {
				msgs := make([]string, 0, len(result.Errors()))
				for _, e := range result.Errors() {
					msgs = append(msgs, e.String())
				}
				return false, "schema violations: " + strings.Join(msgs, "; ")
			}
			return true, ""
		},
	}
}

// CostBoundHook fails when the estimated cost of the output exceeds
// maxCost for the given model.
func CostBoundHook(maxCost float64, estimator *cost.Estimator, modelID string) Hook {
	return Hook{
		ID:       "cost_bound",
		Type:     TypeBudget,
		Priority: 80,
		Validate: func(data any) (bool, string) {
			text, ok := data.(string)
			if !ok {
				text = fmt.Sprintf("%v", data)
			}
			c := estimator.Estimate(text, modelID)
			if c.Amount > maxCost {
				return false, fmt.Sprintf("estimated cost %.6f exceeds bound %.6f", c.Amount, maxCost)
			}
			return true, ""
		},
	}
}
