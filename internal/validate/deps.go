package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// pythonStdlib is the subset of the standard library generated code
// actually reaches for. Unknown imports outside this set must appear
// in requirements.txt.
var pythonStdlib = map[string]struct{}{
	"abc": {}, "argparse": {}, "asyncio": {}, "base64": {}, "collections": {},
	"contextlib": {}, "copy": {}, "csv": {}, "dataclasses": {}, "datetime": {},
	"decimal": {}, "enum": {}, "functools": {}, "hashlib": {}, "heapq": {},
	"html": {}, "http": {}, "io": {}, "itertools": {}, "json": {}, "logging": {},
	"math": {}, "os": {}, "pathlib": {}, "pickle": {}, "platform": {}, "queue": {},
	"random": {}, "re": {}, "shutil": {}, "socket": {}, "sqlite3": {}, "string": {},
	"subprocess": {}, "sys": {}, "tempfile": {}, "threading": {}, "time": {},
	"typing": {}, "unittest": {}, "urllib": {}, "uuid": {}, "xml": {},
}

var nodeBuiltins = map[string]struct{}{
	"assert": {}, "buffer": {}, "child_process": {}, "crypto": {}, "events": {},
	"fs": {}, "http": {}, "https": {}, "net": {}, "os": {}, "path": {},
	"process": {}, "stream": {}, "url": {}, "util": {}, "zlib": {},
}

// Manifest is the declared dependency set of one language ecosystem.
type Manifest struct {
	Language string
	Packages map[string]struct{}
	Found    bool
}

// LoadManifest reads the project's dependency manifest for the given
// language. A missing manifest yields Found=false rather than an
// error.
func LoadManifest(projectPath, language string) Manifest {
	switch normalizeLang(language) {
	case "python":
		return loadRequirements(filepath.Join(projectPath, "requirements.txt"))
	case "javascript":
		return loadPackageJSON(filepath.Join(projectPath, "package.json"))
	case "go":
		return loadGoMod(filepath.Join(projectPath, "go.mod"))
	}
	return Manifest{Language: language, Packages: map[string]struct{}{}}
}

func loadRequirements(path string) Manifest {
	m := Manifest{Language: "python", Packages: map[string]struct{}{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	m.Found = true
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name := requirementNameRe.FindString(line)
		if name != "" {
			m.Packages[normalizePyPackage(name)] = struct{}{}
		}
	}
	return m
}

// normalizePyPackage maps distribution names to their import form.
func normalizePyPackage(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", "_"))
}

func loadPackageJSON(path string) Manifest {
	m := Manifest{Language: "javascript", Packages: map[string]struct{}{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	var doc struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return m
	}
	m.Found = true
	for name := range doc.Dependencies {
		m.Packages[name] = struct{}{}
	}
	for name := range doc.DevDependencies {
		m.Packages[name] = struct{}{}
	}
	return m
}

func loadGoMod(path string) Manifest {
	m := Manifest{Language: "go", Packages: map[string]struct{}{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	m.Found = true
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "require ") {
			line = strings.TrimPrefix(line, "require ")
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.Contains(fields[0], "/") && strings.HasPrefix(fields[1], "v") {
			m.Packages[fields[0]] = struct{}{}
		}
	}
	return m
}

var requirementNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+`)

var (
	pyImportRe   = regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z0-9_.]+)`)
	pyFromRe     = regexp.MustCompile(`(?m)^\s*from\s+([A-Za-z0-9_.]+)\s+import\s+(.+)$`)
	jsImportRe   = regexp.MustCompile(`(?m)(?:import\s+(?:.+?\s+from\s+)?|require\()\s*['"]([^'"]+)['"]`)
	goImportRe   = regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:[A-Za-z0-9_]+\s+)?"([^"]+)"`)
	goImportDecl = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
)

// ImportedModule is one import found in a modified source file.
type ImportedModule struct {
	Module string   // top-level module or package
	Names  []string // imported names for "from X import a, b"
}

// ExtractImports pulls imported module references out of a source
// body. Relative imports are reported with their leading dots
// stripped.
func ExtractImports(language, source string) []ImportedModule {
	var out []ImportedModule
	switch normalizeLang(language) {
	case "python":
		for _, match := range pyImportRe.FindAllStringSubmatch(source, -1) {
			out = append(out, ImportedModule{Module: topLevel(match[1])})
		}
		for _, match := range pyFromRe.FindAllStringSubmatch(source, -1) {
			names := []string{}
			for _, n := range strings.Split(match[2], ",") {
				n = strings.TrimSpace(strings.Split(strings.TrimSpace(n), " as ")[0])
				if n != "" && n != "*" && n != "(" {
					names = append(names, strings.Trim(n, "()"))
				}
			}
			out = append(out, ImportedModule{Module: topLevel(match[1]), Names: names})
		}
	case "javascript":
		for _, match := range jsImportRe.FindAllStringSubmatch(source, -1) {
			out = append(out, ImportedModule{Module: jsPackage(match[1])})
		}
	case "go":
		if block := goImportDecl.FindStringSubmatch(source); block != nil {
			for _, match := range goImportRe.FindAllStringSubmatch(block[1], -1) {
				out = append(out, ImportedModule{Module: match[1]})
			}
		}
	}
	return out
}

func topLevel(dotted string) string {
	dotted = strings.TrimLeft(dotted, ".")
	if i := strings.Index(dotted, "."); i >= 0 {
		return dotted[:i]
	}
	return dotted
}

// jsPackage reduces an import path to its package name, keeping scoped
// package prefixes.
func jsPackage(path string) string {
	if strings.HasPrefix(path, ".") || strings.HasPrefix(path, "/") {
		return path
	}
	parts := strings.Split(path, "/")
	if strings.HasPrefix(path, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// KnownDependency reports whether an imported module is satisfied by
// the manifest, the language's standard library, or a first-party
// file.
func KnownDependency(m Manifest, firstParty map[string]struct{}, imp ImportedModule) bool {
	if strings.HasPrefix(imp.Module, ".") || strings.HasPrefix(imp.Module, "/") {
		return true // relative import, checked by integration instead
	}
	if _, ok := firstParty[imp.Module]; ok {
		return true
	}
	switch m.Language {
	case "python":
		if _, ok := pythonStdlib[imp.Module]; ok {
			return true
		}
		_, ok := m.Packages[normalizePyPackage(imp.Module)]
		return ok
	case "javascript":
		if _, ok := nodeBuiltins[strings.TrimPrefix(imp.Module, "node:")]; ok {
			return true
		}
		_, ok := m.Packages[imp.Module]
		return ok
	case "go":
		if !strings.Contains(strings.Split(imp.Module, "/")[0], ".") {
			return true // no dot in the first segment means standard library
		}
		for pkg := range m.Packages {
			if imp.Module == pkg || strings.HasPrefix(imp.Module, pkg+"/") {
				return true
			}
		}
		return false
	}
	return true
}

func normalizeLang(language string) string {
	switch strings.ToLower(language) {
	case "python", "py":
		return "python"
	case "javascript", "js", "jsx", "typescript", "ts":
		return "javascript"
	case "go", "golang":
		return "go"
	}
	return strings.ToLower(language)
}

func fileLanguage(file, projectLanguage string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".go":
		return "go"
	}
	return projectLanguage
}
