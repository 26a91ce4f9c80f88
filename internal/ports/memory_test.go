package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph-core/internal/types"
)

func TestMemoryGraphStore_TransactionVisibility(t *testing.T) {
	g := NewMemoryGraphStore()
	ctx := context.Background()

	tx, err := g.Transaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertNodes([]types.Node{{ID: 1, Kind: types.NodeFunction, File: "a.py"}}))
	require.NoError(t, tx.UpsertEdges([]types.Edge{{FromID: 1, ToID: 2, Kind: types.EdgeCalls}}))

	// Nothing visible before commit.
	assert.Empty(t, g.Nodes())
	assert.Empty(t, g.Edges())

	require.NoError(t, tx.Commit())
	assert.Len(t, g.Nodes(), 1)
	assert.Len(t, g.Edges(), 1)
}

func TestMemoryGraphStore_Rollback(t *testing.T) {
	g := NewMemoryGraphStore()
	tx, err := g.Transaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.UpsertNodes([]types.Node{{ID: 1}}))
	require.NoError(t, tx.Rollback())
	assert.Empty(t, g.Nodes())

	// A closed transaction rejects further use.
	assert.Error(t, tx.Commit())
	assert.Error(t, tx.UpsertNodes(nil))
}

func TestMemoryGraphStore_DeleteOutboundEdgesByFilePaths(t *testing.T) {
	g := NewMemoryGraphStore()
	ctx := context.Background()

	tx, _ := g.Transaction(ctx)
	tx.UpsertNodes([]types.Node{
		{ID: 1, File: "a.py"},
		{ID: 2, File: "b.py"},
	})
	tx.UpsertEdges([]types.Edge{
		{FromID: 1, ToID: 2, Kind: types.EdgeCalls},
		{FromID: 2, ToID: 1, Kind: types.EdgeCalls},
	})
	require.NoError(t, tx.Commit())

	tx2, _ := g.Transaction(ctx)
	require.NoError(t, tx2.DeleteOutboundEdgesByFilePaths([]string{"a.py"}))
	require.NoError(t, tx2.Commit())

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, types.NodeID(2), edges[0].FromID)
}

func TestMemoryVectorStore_SoftDeleteAndCompaction(t *testing.T) {
	v := NewMemoryVectorStore(2)
	ctx := context.Background()

	require.NoError(t, v.Upsert(ctx, []VectorRecord{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "beta"},
		{ID: "c", Text: "gamma"},
	}))

	// Soft-delete hides from search but keeps the record.
	require.NoError(t, v.Delete(ctx, []string{"a"}))
	hits, err := v.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 1, v.InactiveCount())

	// Crossing the threshold triggers compaction on the next upsert.
	require.NoError(t, v.Delete(ctx, []string{"b"}))
	require.NoError(t, v.Upsert(ctx, []VectorRecord{{ID: "d", Text: "delta"}}))
	assert.Equal(t, 0, v.InactiveCount())
}

func TestMemoryLexicalStore_SearchByTerm(t *testing.T) {
	l := NewMemoryLexicalStore()
	ctx := context.Background()

	require.NoError(t, l.Index(ctx, []LexicalRecord{
		{ID: "1", Text: "func parseConfig()", Terms: []string{"pars", "config"}},
	}))
	hits, err := l.Search(ctx, "config", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, l.Delete(ctx, []string{"1"}))
	hits, _ = l.Search(ctx, "config", 10)
	assert.Empty(t, hits)
}

func TestMemoryIRStore_RoundTrip(t *testing.T) {
	s := NewMemoryIRStore()
	ctx := context.Background()
	snap := types.RepoSnapshot{RepoID: "r", SnapshotID: "s1"}

	doc := &types.IRDocument{File: "a.py"}
	require.NoError(t, s.Put(ctx, snap, doc))

	got, err := s.Get(ctx, snap, "a.py")
	require.NoError(t, err)
	assert.Same(t, doc, got)

	// Another snapshot is a different namespace.
	_, err = s.Get(ctx, types.RepoSnapshot{RepoID: "r", SnapshotID: "s2"}, "a.py")
	assert.Error(t, err)

	require.NoError(t, s.Delete(ctx, snap, "a.py"))
	_, err = s.Get(ctx, snap, "a.py")
	assert.Error(t, err)
}
