package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/codegraph-core/internal/types"
)

// A function allocates a dict, stores it in a
// closure, and returns the closure. Expected: EscapeInfo[dict] = ReturnEscape,
// is_thread_local = false, is_heap_escape = false.
func TestEscape_ReturnEscapeNotHeapEscape(t *testing.T) {
	info := AnalyzeIntraprocedural(1, []EscapeEvent{
		{Var: "dict", Reaches: types.ArgEscape},
		{Var: "dict", Reaches: types.ReturnEscape},
	})
	state := info.States["dict"]
	assert.Equal(t, types.ReturnEscape, state)
	assert.False(t, state.IsThreadLocal())
	assert.False(t, state.IsHeapEscape())
}

func TestJoinEscape_FieldAndArrayCollideToGlobal(t *testing.T) {
	assert.Equal(t, types.GlobalEscape, types.JoinEscape(types.FieldEscape, types.ArrayEscape))
}

func TestJoinEscape_Monotone(t *testing.T) {
	assert.Equal(t, types.GlobalEscape, types.JoinEscape(types.GlobalEscape, types.NoEscape))
	assert.Equal(t, types.UnknownEscape, types.JoinEscape(types.GlobalEscape, types.UnknownEscape))
}

func TestRefineInterprocedural_UnresolvedCallJoinsUnknown(t *testing.T) {
	callerInfo := &types.EscapeInfo{FunctionNode: 1, States: map[string]types.EscapeState{"buf": types.NoEscape}}
	perFn := map[types.NodeID]*types.EscapeInfo{1: callerInfo}
	RefineInterprocedural(perFn, nil, []CallSite{{Caller: 1, Callee: 2, ArgVars: []string{"buf"}, Unresolved: true}})
	assert.Equal(t, types.UnknownEscape, callerInfo.States["buf"])
}

func TestSolver_AndersenBasicFlow(t *testing.T) {
	s := NewSolver()
	g := s.Solve([]Constraint{
		{Kind: ConstraintAddrOf, Dst: "p", Alloc: 1},
		{Kind: ConstraintCopy, Src: "p", Dst: "q"},
	})
	assert.True(t, g.PointsTo["q"][types.AllocSiteID(1)])
}

func TestSolver_CyclicCopyConverges(t *testing.T) {
	s := NewSolver()
	g := s.Solve([]Constraint{
		{Kind: ConstraintAddrOf, Dst: "a", Alloc: 1},
		{Kind: ConstraintCopy, Src: "a", Dst: "b"},
		{Kind: ConstraintCopy, Src: "b", Dst: "c"},
		{Kind: ConstraintCopy, Src: "c", Dst: "a"}, // cycle a -> b -> c -> a
	})
	for _, v := range []string{"a", "b", "c"} {
		assert.True(t, g.PointsTo[v][types.AllocSiteID(1)], "var %s should see allocation 1", v)
	}
}

func TestSolver_FieldSensitive(t *testing.T) {
	s := NewSolver()
	g := s.Solve([]Constraint{
		{Kind: ConstraintAddrOf, Dst: "a", Alloc: 1},
		{Kind: ConstraintFieldStore, Src: "a", Dst: "obj", Field: "next"},
	})
	assert.True(t, g.PointsTo["obj.next"][types.AllocSiteID(1)])
	assert.False(t, g.PointsTo["obj"][types.AllocSiteID(1)])
}
