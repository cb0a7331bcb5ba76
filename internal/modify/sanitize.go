package modify

import (
	"fmt"
	"strings"

	"codevolve/internal/hooks"
)

// SanitizeResult reports what the sanitation pass did to a generated
// file body.
type SanitizeResult struct {
	Content         string
	AutoFixed       bool
	FallbackApplied bool
}

// Sanitize turns raw model output into a parseable file body: strip
// markdown fences, attempt a parse, run a language auto-fix pass on
// failure, and substitute a minimal template when the code still does
// not parse. Sanitize is idempotent.
func Sanitize(language, raw string) SanitizeResult {
	content := StripFences(raw)

	if ok, _ := hooks.CheckSyntax(language, content); ok {
		return SanitizeResult{Content: content}
	}

	fixed := autoFix(language, content)
	if ok, _ := hooks.CheckSyntax(language, fixed); ok {
		return SanitizeResult{Content: fixed, AutoFixed: true}
	}

	return SanitizeResult{Content: minimalTemplate(language), FallbackApplied: true}
}

// StripFences removes a surrounding markdown code fence and its
// language tag, leaving inner text untouched.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	body := text[3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if len(firstLine) <= 20 && !strings.ContainsAny(firstLine, " {}()") {
			body = body[nl+1:]
		}
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func autoFix(language, content string) string {
	switch language {
	case "python", "py":
		return fixPython(content)
	default:
		return strings.ReplaceAll(content, "\t", "    ")
	}
}

var pythonBlockPrefixes = []string{
	"def ", "class ", "if ", "elif ", "for ", "while ", "with ", "except ",
}

var pythonBareHeaders = map[string]struct{}{
	"try": {}, "except": {}, "finally": {}, "else": {},
}

// fixPython normalizes tabs to four spaces, repairs odd-width
// indentation and appends missing colons to block headers.
func fixPython(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		line = strings.ReplaceAll(line, "\t", "    ")

		indent := 0
		for indent < len(line) && line[indent] == ' ' {
			indent++
		}
		if rem := indent % 4; rem != 0 {
			line = strings.Repeat(" ", indent+4-rem) + line[indent:]
		}

		trimmed := strings.TrimSpace(line)
		if needsColon(trimmed) {
			line = strings.TrimRight(line, " ") + ":"
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func needsColon(trimmed string) bool {
	if trimmed == "" || strings.HasSuffix(trimmed, ":") || strings.Contains(trimmed, "#") {
		return false
	}
	if _, bare := pythonBareHeaders[trimmed]; bare {
		return true
	}
	for _, kw := range pythonBlockPrefixes {
		if strings.HasPrefix(trimmed, kw) {
			// Continuation lines (open parens) are not headers.
			if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
				return false
			}
			return true
		}
	}
	return false
}

func minimalTemplate(language string) string {
	switch language {
	case "python", "py":
		return "def main():\n    pass\n"
	case "javascript", "js", "jsx":
		return "export default function main() {}\n"
	case "go", "golang":
		return "package main\n\nfunc main() {}\n"
	default:
		return fmt.Sprintf("// generated placeholder (%s)\n", language)
	}
}
