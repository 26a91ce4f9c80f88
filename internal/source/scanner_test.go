package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph-core/internal/config"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func scanPaths(t *testing.T, cfg *config.Config) map[string]string {
	t.Helper()
	files, err := NewScanner(cfg).Scan()
	require.NoError(t, err)
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f.Path] = f.Language
	}
	return out
}

func TestScan_DiscoversAndHashes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", "def main(): pass\n")
	writeFile(t, root, "pkg/util.go", "package pkg\n\nfunc Util() {}\n")

	cfg := config.Default()
	cfg.Project.Root = root
	files, err := NewScanner(cfg).Scan()
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.NotEmpty(t, f.ContentHash)
		assert.NotEmpty(t, f.Content)
	}
}

func TestScan_RespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "build/\n*.gen.py\n")
	writeFile(t, root, "main.py", "def main(): pass\n")
	writeFile(t, root, "api.gen.py", "def generated(): pass\n")
	writeFile(t, root, "build/out.py", "def out(): pass\n")

	cfg := config.Default()
	cfg.Project.Root = root
	paths := scanPaths(t, cfg)
	assert.Contains(t, paths, "main.py")
	assert.NotContains(t, paths, "api.gen.py")
	assert.NotContains(t, paths, "build/out.py")
}

func TestScan_ExcludeAndIncludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def a(): pass\n")
	writeFile(t, root, "b.js", "function b() {}\n")
	writeFile(t, root, "vendor/c.py", "def c(): pass\n")

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Include = []string{"**/*.py"}
	cfg.Exclude = []string{"vendor/**"}

	paths := scanPaths(t, cfg)
	assert.Contains(t, paths, "a.py")
	assert.NotContains(t, paths, "b.js")
	assert.NotContains(t, paths, "vendor/c.py")
}

func TestScan_SkipsGitDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "main.py", "def main(): pass\n")

	cfg := config.Default()
	cfg.Project.Root = root
	paths := scanPaths(t, cfg)
	assert.NotContains(t, paths, ".git/config")
	assert.Contains(t, paths, "main.py")
}

func TestScan_DetectsLanguage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "script", "#!/usr/bin/env python\nprint('hi')\n")
	writeFile(t, root, "mod.rs", "fn main() {}\n")

	cfg := config.Default()
	cfg.Project.Root = root
	paths := scanPaths(t, cfg)
	assert.Equal(t, "python", paths["script"], "shebang overrides the missing extension")
	assert.Equal(t, "rust", paths["mod.rs"])
}
