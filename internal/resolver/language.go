package resolver

import (
	"path"
	"strings"
)

// NameOnlyResolver treats the import text as a bare FQN candidate, nothing
// more — the resolver fallback for languages without a dedicated adapter:
// still linked by name, just without module-path rewriting.
type NameOnlyResolver struct{}

func (NameOnlyResolver) CandidateFQNs(_, importText string) []string {
	return []string{lastSegment(importText)}
}

func lastSegment(s string) string {
	s = strings.Trim(s, `"'`)
	if i := strings.LastIndexAny(s, "./\\"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// GoResolver resolves Go import paths: package-path imports map to the
// last path segment as the FQN candidate. The structural builder roots Go
// FQNs at the file's base name, not the package clause, so the candidate
// matches a file whose base name equals that segment.
type GoResolver struct {
	ModulePath string // the go.mod module path; CandidateFQNs does not read it
}

func (g GoResolver) CandidateFQNs(_, importText string) []string {
	p := strings.Trim(importText, `"`)
	pkg := path.Base(p)
	// A same-module import keeps its local package name as the FQN root;
	// a third-party import still gets a best-effort FQN candidate built
	// from its last path segment, which only resolves if that package also
	// happens to be part of this snapshot (otherwise it becomes External,
	// correctly modeling an out-of-repo dependency).
	return []string{pkg}
}

// PythonResolver resolves `import x.y.z` / `from x.y import z` module
// paths; relative imports (leading dots) resolve against the importing
// file's own package directory.
type PythonResolver struct{}

func (PythonResolver) CandidateFQNs(importerFile, importText string) []string {
	importText = strings.TrimSpace(importText)
	if strings.HasPrefix(importText, ".") {
		return relativePythonCandidates(importerFile, importText)
	}
	parts := strings.Split(importText, ".")
	// Try the full dotted path first, then progressively shorter suffixes —
	// "from pkg.sub import name" may bind either pkg.sub.name or just name
	// depending on how the exporting module re-exports it.
	var out []string
	for i := 0; i < len(parts); i++ {
		out = append(out, strings.Join(parts[i:], "."))
	}
	return out
}

func relativePythonCandidates(importerFile, importText string) []string {
	dots := 0
	for dots < len(importText) && importText[dots] == '.' {
		dots++
	}
	rest := importText[dots:]
	dir := importerFile
	for i := 0; i < dots; i++ {
		dir = path.Dir(dir)
	}
	if rest == "" {
		return []string{path.Base(dir)}
	}
	return []string{path.Base(rest), rest}
}

// JSResolver resolves ES module specifiers: relative specifiers ("./foo",
// "../bar") resolve against the importing file's directory; bare
// specifiers are treated as external packages.
type JSResolver struct{}

func (JSResolver) CandidateFQNs(importerFile, importText string) []string {
	spec := strings.Trim(importText, `"'`)
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		dir := path.Dir(importerFile)
		joined := path.Clean(path.Join(dir, spec))
		joined = strings.TrimSuffix(joined, path.Ext(joined))
		dotted := strings.ReplaceAll(strings.TrimPrefix(joined, "/"), "/", ".")
		return []string{dotted, path.Base(joined)}
	}
	return []string{lastSegment(spec)}
}
