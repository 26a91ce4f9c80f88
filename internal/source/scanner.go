// Package source discovers the files an analysis run covers: it walks a
// repository root, filters candidates through include/exclude globs and
// .gitignore patterns, admits them through the security validator, and
// produces the types.SourceFile list the rest of the pipeline consumes.
package source

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/parser"
	"github.com/standardbeagle/codegraph-core/internal/security"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Scanner discovers source files under a root.
type Scanner struct {
	cfg       *config.Config
	validator *security.FileValidator
	gitignore []string
}

// NewScanner builds a Scanner for the configured project root, loading
// .gitignore patterns if the file exists.
func NewScanner(cfg *config.Config) *Scanner {
	s := &Scanner{
		cfg:       cfg,
		validator: security.NewFileValidator(security.DefaultMaxFileSize, security.SymlinkSkip),
	}
	s.gitignore = loadGitignore(cfg.Project.Root)
	return s
}

// loadGitignore reads root/.gitignore into doublestar-compatible patterns.
// Negations and directory-only rules are simplified: a trailing slash
// becomes "dir/**"; "!" re-inclusions are not supported.
func loadGitignore(root string) []string {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.TrimPrefix(line, "/")
		if strings.HasSuffix(line, "/") {
			line += "**"
		}
		patterns = append(patterns, line)
		if !strings.ContainsRune(line, '/') {
			// A bare name matches at any depth, per gitignore semantics.
			patterns = append(patterns, "**/"+line)
		}
	}
	return patterns
}

func (s *Scanner) ignored(rel string) bool {
	for _, p := range s.gitignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	for _, p := range s.cfg.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	// Include globs select files; directories (rel ending in "/") are
	// always descended into unless gitignore or Exclude rules them out.
	if len(s.cfg.Include) > 0 && !strings.HasSuffix(rel, "/") {
		for _, p := range s.cfg.Include {
			if ok, _ := doublestar.Match(p, rel); ok {
				return false
			}
		}
		return true
	}
	return false
}

// Scan walks the root and returns every admitted source file with its
// content and BLAKE3 hash. Per-file admission failures are logged and
// skipped — discovery never fails the run over one unreadable file.
func (s *Scanner) Scan() ([]types.SourceFile, error) {
	root := s.cfg.Project.Root
	if root == "" {
		root = "."
	}

	var files []types.SourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			obslog.Warnf("source", "walk %s: %v", path, err)
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" || s.ignored(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if s.ignored(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		admission, admErr := s.validator.Validate(path, info)
		if admErr != nil || admission.Skip {
			if admission.Reason != "" {
				obslog.Debugf("source", "skipping %s: %s", rel, admission.Reason)
			}
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			obslog.Warnf("source", "read %s: %v", rel, readErr)
			return nil
		}
		lang := parser.DetectLanguage(rel, content)
		files = append(files, types.SourceFile{
			Path:        rel,
			Language:    string(lang),
			Content:     content,
			ContentHash: idcodec.ContentHash(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
