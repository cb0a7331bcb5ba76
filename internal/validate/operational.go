package validate

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"codevolve/internal/hooks"
	"codevolve/internal/logging"
)

// Operational checks that modified code would actually run: declared
// dependencies, parseable sources and resolvable first-party imports.
type Operational struct {
	log *zap.SugaredLogger
}

func NewOperational() *Operational {
	return &Operational{log: logging.Get(logging.CategoryValidate)}
}

// Validate runs the operational gates. projectFiles is the full
// relative-path listing of the project, used alongside the modified
// set for first-party resolution.
func (o *Operational) Validate(_ context.Context, modified map[string]string, projectFiles []string, projectPath, language string) Report {
	r := newReport()
	files := sortedKeys(modified)

	// Sandbox syntax runs first and fails fast; nothing else is
	// trustworthy over an unparseable file.
	for _, f := range files {
		if ok, feedback := hooks.CheckSyntax(fileLanguage(f, language), modified[f]); !ok {
			r.fail("sandbox_syntax", fmt.Sprintf("syntax error in %s: %s", f, feedback))
			r.Summary["check_results"] = r.GateResults
			return r
		}
	}
	r.pass("sandbox_syntax")

	o.checkDependencies(&r, modified, files, projectFiles, projectPath, language)
	o.checkIntegration(&r, modified, files, language)

	r.Summary["check_results"] = r.GateResults
	r.Summary["files_checked"] = len(files)
	return r
}

func (o *Operational) checkDependencies(r *Report, modified map[string]string, files, projectFiles []string, projectPath, language string) {
	firstParty := firstPartyModules(files, projectFiles)

	manifests := map[string]Manifest{}
	for _, f := range files {
		lang := normalizeLang(fileLanguage(f, language))
		m, cached := manifests[lang]
		if !cached {
			m = LoadManifest(projectPath, lang)
			manifests[lang] = m
		}
		for _, imp := range ExtractImports(lang, modified[f]) {
			if !KnownDependency(m, firstParty, imp) {
				r.fail("dependencies", fmt.Sprintf(
					"%s imports %q which is neither declared in the %s manifest nor standard library",
					f, imp.Module, lang))
			}
		}
	}
	r.pass("dependencies")
}

// checkIntegration resolves names imported from first-party modules
// against that module's defined names.
func (o *Operational) checkIntegration(r *Report, modified map[string]string, files []string, language string) {
	defined := map[string]map[string]struct{}{}
	for _, f := range files {
		lang := normalizeLang(fileLanguage(f, language))
		if lang != "python" {
			continue
		}
		defined[moduleName(f)] = definedNames(modified[f])
	}

	for _, f := range files {
		lang := normalizeLang(fileLanguage(f, language))
		if lang != "python" {
			continue
		}
		for _, imp := range ExtractImports(lang, modified[f]) {
			names, firstParty := defined[imp.Module]
			if !firstParty || imp.Module == moduleName(f) {
				continue
			}
			for _, n := range imp.Names {
				if _, ok := names[n]; !ok {
					r.fail("integration", fmt.Sprintf(
						"%s imports %q from first-party module %q but it is not defined there",
						f, n, imp.Module))
				}
			}
		}
	}
	r.pass("integration")
}

func firstPartyModules(modified, projectFiles []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range modified {
		out[moduleName(f)] = struct{}{}
	}
	for _, f := range projectFiles {
		out[moduleName(f)] = struct{}{}
	}
	return out
}

// moduleName maps "backend/api/todos.py" to "todos".
func moduleName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var pyDefRe = regexp.MustCompile(`(?m)^(?:def|class)\s+([A-Za-z_][A-Za-z0-9_]*)|^([A-Za-z_][A-Za-z0-9_]*)\s*=`)

// definedNames collects module-level def, class and assignment names.
func definedNames(source string) map[string]struct{} {
	names := map[string]struct{}{}
	for _, match := range pyDefRe.FindAllStringSubmatch(source, -1) {
		if match[1] != "" {
			names[match[1]] = struct{}{}
		} else if match[2] != "" {
			names[match[2]] = struct{}{}
		}
	}
	return names
}
