package incremental

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestDetect_AddModifyDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def a(): pass\n")
	writeFile(t, root, "b.py", "def b(): pass\n")

	d := NewDetector(root)
	cs, manifest, err := d.Detect(NewManifest(), []string{"a.py", "b.py"})
	require.NoError(t, err)
	assert.True(t, cs.Added["a.py"])
	assert.True(t, cs.Added["b.py"])

	// Modify a, delete b, add c. c's size is far enough from b's that the
	// rename detector's ±10% size filter never pairs them.
	writeFile(t, root, "a.py", "def a(): return 1\n")
	writeFile(t, root, "c.py", "def c():\n    value = compute_something()\n    return value\n")
	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))

	cs2, _, err := d.Detect(manifest, []string{"a.py", "c.py"})
	require.NoError(t, err)
	assert.True(t, cs2.Modified["a.py"])
	assert.True(t, cs2.Deleted["b.py"])
	assert.True(t, cs2.Added["c.py"])
	assert.False(t, cs2.IsEmpty())
}

func TestDetect_UnchangedFileSkipsHashing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def a(): pass\n")

	d := NewDetector(root)
	_, m1, err := d.Detect(NewManifest(), []string{"a.py"})
	require.NoError(t, err)

	cs, m2, err := d.Detect(m1, []string{"a.py"})
	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
	assert.Equal(t, m1.Files["a.py"].Hash, m2.Files["a.py"].Hash)
}

// Deleting a.py and adding b.py with identical content reports a rename,
// not an add+delete pair.
func TestDetect_RenameByIdenticalContent(t *testing.T) {
	root := t.TempDir()
	content := "def f():\n    return 42\n"
	writeFile(t, root, "a.py", content)

	d := NewDetector(root)
	_, m1, err := d.Detect(NewManifest(), []string{"a.py"})
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(root, "a.py"), filepath.Join(root, "b.py")))
	cs, _, err := d.Detect(m1, []string{"b.py"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a.py": "b.py"}, cs.Renamed)
	assert.Empty(t, cs.Added)
	assert.Empty(t, cs.Deleted)
	assert.Equal(t, map[string]bool{"b.py": true}, cs.AllChanged())
}

func TestRename_DifferentExtensionNeverPairs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "content\n")

	d := NewDetector(root)
	_, m1, err := d.Detect(NewManifest(), []string{"a.py"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.py")))
	writeFile(t, root, "a.go", "content\n")

	cs, _, err := d.Detect(m1, []string{"a.go"})
	require.NoError(t, err)
	assert.Empty(t, cs.Renamed)
	assert.True(t, cs.Added["a.go"])
	assert.True(t, cs.Deleted["a.py"])
}

func TestClassify(t *testing.T) {
	cases := []struct {
		delta SymbolDelta
		want  Impact
	}{
		{SymbolDelta{}, NoImpact},
		{SymbolDelta{ASTHashChanged: true}, IRLocal},
		{SymbolDelta{ASTHashChanged: true, SigHashChanged: true}, SignatureChange},
		{SymbolDelta{ImportsChanged: true}, StructuralChange},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.delta), c.want.String())
	}
}

func TestClassifyFile_StrongestWins(t *testing.T) {
	got := ClassifyFile([]SymbolDelta{
		{ASTHashChanged: true},
		{SigHashChanged: true},
	})
	assert.Equal(t, SignatureChange, got)
}

func buildDeps(edges map[string][]string) *types.DependencyGraph {
	g := types.NewDependencyGraph()
	for from, tos := range edges {
		for _, to := range tos {
			g.AddEdge(from, to)
		}
	}
	return g
}

// A body-only change must not expand past the file itself.
func TestAffectedSet_BodyOnlyChangeStaysLocal(t *testing.T) {
	deps := buildDeps(map[string][]string{
		"caller.py": {"lib.py"}, // caller depends on lib
	})
	cs := types.NewChangeSet()
	cs.Modified["lib.py"] = true

	affected := AffectedSet(cs, map[string]Impact{"lib.py": IRLocal}, deps, config.IncrementalBalanced)
	assert.Equal(t, map[string]bool{"lib.py": true}, affected)
}

func TestAffectedSet_SignatureChangePropagates(t *testing.T) {
	deps := buildDeps(map[string][]string{
		"caller.py":   {"lib.py"},
		"indirect.py": {"caller.py"},
	})
	cs := types.NewChangeSet()
	cs.Modified["lib.py"] = true

	affected := AffectedSet(cs, map[string]Impact{"lib.py": SignatureChange}, deps, config.IncrementalDeep)
	assert.True(t, affected["lib.py"])
	assert.True(t, affected["caller.py"])
	assert.True(t, affected["indirect.py"])
}

func TestAffectedSet_FastModeBoundsHops(t *testing.T) {
	deps := buildDeps(map[string][]string{
		"caller.py":   {"lib.py"},
		"indirect.py": {"caller.py"},
	})
	cs := types.NewChangeSet()
	cs.Modified["lib.py"] = true

	affected := AffectedSet(cs, map[string]Impact{"lib.py": SignatureChange}, deps, config.IncrementalFast)
	assert.True(t, affected["caller.py"])
	assert.False(t, affected["indirect.py"], "fast mode follows one hop only")
}

func TestOverlay_CommitAndDiscard(t *testing.T) {
	base := types.NewGlobalContext()
	base.SymbolIndex["pkg.f"] = 1
	docs := map[string]*types.IRDocument{"a.py": {File: "a.py"}}
	o := NewOverlay(base, docs)

	delta := NewGraphDelta()
	delta.SymbolUpserts["pkg.g"] = 2
	delta.SymbolDeletes["pkg.f"] = true
	delta.Docs["a.py"] = &types.IRDocument{File: "a.py", Degraded: true}
	o.Apply(delta)

	// The merged view sees the delta; the base does not.
	_, ok := o.LookupSymbol("pkg.f")
	assert.False(t, ok)
	id, ok := o.LookupSymbol("pkg.g")
	assert.True(t, ok)
	assert.Equal(t, types.NodeID(2), id)
	doc, _ := o.Document("a.py")
	assert.True(t, doc.Degraded)
	assert.Contains(t, base.SymbolIndex, "pkg.f")

	o.Discard()
	_, ok = o.LookupSymbol("pkg.g")
	assert.False(t, ok)
	doc, _ = o.Document("a.py")
	assert.False(t, doc.Degraded)

	// Commit folds in atomically.
	o.Apply(delta)
	o.Commit()
	assert.NotContains(t, base.SymbolIndex, "pkg.f")
	assert.Equal(t, types.NodeID(2), base.SymbolIndex["pkg.g"])
}
