package structural

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

const jsFallbackSource = `function outer() {
  var inner = function() { return 1; };
  return inner;
}
var counter = 0;
`

func fallbackDoc(t *testing.T, preseed ...types.Node) *types.IRDocument {
	t.Helper()
	b := NewBuilder("repo")
	fileID := idcodec.NewNodeID(b.RepoID, "file:app", 0, 0)
	doc := &types.IRDocument{
		File:     "app.js",
		Degraded: true,
		Nodes: append([]types.Node{
			{ID: fileID, Kind: types.NodeFile, FQN: "app", Name: "app.js", File: "app.js"},
		}, preseed...),
	}
	b.supplementJavaScript(doc, "app.js", []byte(jsFallbackSource), fileID)
	return doc
}

func TestSupplementJavaScript_RecoversDeclarations(t *testing.T) {
	doc := fallbackDoc(t)

	byFQN := make(map[string]types.Node)
	for _, n := range doc.Nodes {
		byFQN[n.FQN] = n
	}

	outer, ok := byFQN["app.outer"]
	require.True(t, ok, "top-level function recovered")
	assert.Equal(t, types.NodeFunction, outer.Kind)
	assert.Equal(t, 1, outer.Span.StartLine)

	inner, ok := byFQN["app.outer.inner"]
	require.True(t, ok, "function-expression binding recovered inside the outer scope")
	assert.Equal(t, types.NodeFunction, inner.Kind)

	counter, ok := byFQN["app.counter"]
	require.True(t, ok)
	assert.Equal(t, types.NodeVariable, counter.Kind)

	// Every recovered node is contained and has a definition occurrence.
	contained := make(map[types.NodeID]bool)
	for _, e := range doc.Edges {
		if e.Kind == types.EdgeContains {
			contained[e.ToID] = true
		}
	}
	defs := make(map[types.NodeID]bool)
	for _, occ := range doc.Occurrences {
		if occ.Role == types.RoleDefinition {
			defs[occ.SymbolID] = true
		}
	}
	for _, fqn := range []string{"app.outer", "app.outer.inner", "app.counter"} {
		assert.True(t, contained[byFQN[fqn].ID], fqn)
		assert.True(t, defs[byFQN[fqn].ID], fqn)
	}
}

func TestSupplementJavaScript_SkipsAlreadyExtractedFQNs(t *testing.T) {
	existing := types.Node{
		ID: idcodec.NewNodeID("repo", "app.outer", 1, 1), Kind: types.NodeFunction,
		FQN: "app.outer", Name: "outer", File: "app.js",
	}
	doc := fallbackDoc(t, existing)

	count := 0
	for _, n := range doc.Nodes {
		if n.FQN == "app.outer" {
			count++
		}
	}
	assert.Equal(t, 1, count, "go-fast must not duplicate symbols the degraded tree already produced")
}
