package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// mod_a.py defines foo(); mod_b.py does `from mod_a import foo; foo()`.
// The import edge target must become the concrete function node, not
// External.
func TestResolveDocument_CrossFileImport(t *testing.T) {
	repo := "repo1"
	fooID := idcodec.NewNodeID(repo, "mod_a.foo", 1, 1)
	docA := &types.IRDocument{
		File: "mod_a.py",
		Nodes: []types.Node{
			{ID: fooID, Kind: types.NodeFunction, FQN: "mod_a.foo", Name: "foo", File: "mod_a.py"},
		},
	}

	externalID := idcodec.NewNodeID(repo, "external:mod_a.foo", 0, 0)
	importID := idcodec.NewNodeID(repo, "mod_b.import:mod_a", 1, 1)
	docB := &types.IRDocument{
		File: "mod_b.py",
		Nodes: []types.Node{
			{ID: importID, Kind: types.NodeImport, FQN: "mod_b.import:mod_a", Name: "foo", File: "mod_b.py"},
			{ID: externalID, Kind: types.NodeExternal, FQN: "mod_a.foo", Name: "mod_a.foo"},
		},
		Edges: []types.Edge{
			{FromID: importID, ToID: externalID, Kind: types.EdgeImports},
		},
	}

	r := New(map[string]LanguageResolver{"python": PythonResolver{}}, nil)
	r.AccumulateDocument(docA)
	r.AccumulateDocument(docB)
	ctx := r.Finalize()

	require.Equal(t, fooID, ctx.SymbolIndex["mod_a.foo"])

	unresolved := r.ResolveDocument(docB, ctx, "python")
	assert.Equal(t, 0, unresolved)
	assert.Equal(t, fooID, docB.Edges[0].ToID)
	assert.False(t, docB.Edges[0].Ambiguous())
}

func TestResolveDocument_UnresolvedStaysExternal(t *testing.T) {
	repo := "repo1"
	externalID := idcodec.NewNodeID(repo, "external:nosuch", 0, 0)
	importID := idcodec.NewNodeID(repo, "mod_b.import:nosuch", 1, 1)
	doc := &types.IRDocument{
		File: "mod_b.py",
		Nodes: []types.Node{
			{ID: importID, Kind: types.NodeImport, FQN: "mod_b.import:nosuch", Name: "nosuch", File: "mod_b.py"},
			{ID: externalID, Kind: types.NodeExternal, FQN: "nosuch", Name: "nosuch"},
		},
		Edges: []types.Edge{
			{FromID: importID, ToID: externalID, Kind: types.EdgeImports},
		},
	}
	r := New(nil, nil)
	ctx := r.Finalize()
	unresolved := r.ResolveDocument(doc, ctx, "python")
	assert.Equal(t, 1, unresolved)
	assert.Equal(t, externalID, doc.Edges[0].ToID)
}

func TestCloseInheritance_TransitiveClosure(t *testing.T) {
	ctx := types.NewGlobalContext()
	a, b, c := types.NodeID(1), types.NodeID(2), types.NodeID(3)
	edges := []types.Edge{
		{FromID: a, ToID: b, Kind: types.EdgeInherits},
		{FromID: b, ToID: c, Kind: types.EdgeInherits},
	}
	CloseInheritance(ctx, edges)
	assert.ElementsMatch(t, []types.NodeID{b, c}, ctx.InheritanceIndex[a])
}

func TestPrefixTieBreak_PrefersImporterPackage(t *testing.T) {
	r := New(map[string]LanguageResolver{"js": JSResolver{}}, nil)
	idA := idcodec.NewNodeID("r", "pkg.a.util", 1, 1)
	idB := idcodec.NewNodeID("r", "pkg.b.util", 1, 1)
	docA := &types.IRDocument{File: "pkg/a/util.js", Nodes: []types.Node{
		{ID: idA, Kind: types.NodeFunction, FQN: "pkg.a.util", Name: "util", File: "pkg/a/util.js"},
	}}
	docB := &types.IRDocument{File: "pkg/b/util.js", Nodes: []types.Node{
		{ID: idB, Kind: types.NodeFunction, FQN: "pkg.b.util", Name: "util", File: "pkg/b/util.js"},
	}}
	r.AccumulateDocument(docA)
	r.AccumulateDocument(docB)
	ctx := r.Finalize()

	resolved, ambiguous := r.resolveName(JSResolver{}, "pkg/a/caller.js", "./util", ctx)
	assert.True(t, ambiguous || resolved == idA)
}
