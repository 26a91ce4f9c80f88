package taint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/codegraph-core/internal/types"
)

func occ(file string, line int, role types.OccurrenceRole) types.Occurrence {
	return types.Occurrence{File: file, Span: types.Span{File: file, StartLine: line, EndLine: line}, Role: role}
}

// `def f(x): return x.value` called as `f(None)`.
// Modeled as a single combined flow graph: the None literal is the source,
// x is the sink-bound variable via its attribute access.
func TestEngine_NullDereference(t *testing.T) {
	catalog := Compile([]*Rule{
		{ID: "py-none-literal", Language: "python", Label: "Null", Category: types.TaintSource},
		{ID: "py-attr-deref", Language: "python", Label: "NullDereference", Category: types.TaintSink, Severity: "medium"},
	})
	sourceOcc := occ("a.py", 3, types.RoleReference)
	sinkOcc := occ("a.py", 2, types.RoleReference)

	fg := &FlowGraph{
		Function: 1,
		Sources: []SourceBinding{
			{Var: "x", Rule: catalog.byFQN[""][0], Occ: sourceOcc},
		},
		Sinks: []SinkBinding{
			{Var: "x", Rule: catalog.byFQN[""][1], Occ: sinkOcc},
		},
	}

	eng := NewEngine(catalog, 2, 64)
	result := eng.Analyze(&Program{
		Functions: map[types.NodeID]*FlowGraph{1: fg},
		CallGraph: map[types.NodeID][]types.NodeID{1: nil},
	})

	if assert.Len(t, result.Findings, 1) {
		f := result.Findings[0]
		assert.Equal(t, "NullDereference", f.Category)
		assert.Equal(t, sourceOcc, f.SourceOccurrence)
		assert.Equal(t, sinkOcc, f.SinkOccurrence)
	}
}

// req.GET["id"] flows through a concatenation into
// db.execute(q). Source = req.GET.__getitem__, sink = db.execute (first
// arg). Expected: one SQLInjection finding, CWE-89, path length 3, no
// sanitizers encountered.
func TestEngine_SQLInjection(t *testing.T) {
	catalog := Compile([]*Rule{
		{ID: "py-req-get", Language: "python", FQN: "req.GET.__getitem__", Label: "SQLInjection", Category: types.TaintSource},
		{ID: "py-db-execute", Language: "python", FQN: "db.execute", Label: "SQLInjection", Category: types.TaintSink, Severity: "high", CWE: "CWE-89", ArgIndex: 0},
	})
	sourceOcc := occ("handler.py", 2, types.RoleReference)
	assignOcc := occ("handler.py", 2, types.RoleReference)
	sinkOcc := occ("handler.py", 3, types.RoleReference)

	fg := &FlowGraph{
		Function: 1,
		Sources: []SourceBinding{
			{Var: "getitem_result", Rule: catalog.byFQN["req.GET.__getitem__"][0], Occ: sourceOcc},
		},
		Edges: []FlowEdge{
			{From: "getitem_result", To: "q", Occ: assignOcc},
		},
		Sinks: []SinkBinding{
			{Var: "q", Rule: catalog.byFQN["db.execute"][0], Occ: sinkOcc},
		},
	}

	eng := NewEngine(catalog, 2, 64)
	result := eng.Analyze(&Program{
		Functions: map[types.NodeID]*FlowGraph{1: fg},
		CallGraph: map[types.NodeID][]types.NodeID{1: nil},
	})

	if assert.Len(t, result.Findings, 1) {
		f := result.Findings[0]
		assert.Equal(t, "SQLInjection", f.Category)
		assert.Equal(t, "CWE-89", f.CWE)
		assert.Len(t, f.Path, 3)
		assert.Empty(t, f.SanitizersEncountered)
	}
}

func TestCatalog_MatchFiltersByBaseType(t *testing.T) {
	c := Compile([]*Rule{
		{ID: "r1", FQN: "db.execute", BaseType: "Cursor", Label: "SQLInjection"},
	})
	assert.Len(t, c.Match("db.execute", "Cursor"), 1)
	assert.Empty(t, c.Match("db.execute", "Connection"))
}

// A sanitizer rule clears its declared label before the sink sees it.
func TestEngine_SanitizerClearsLabel(t *testing.T) {
	catalog := Compile([]*Rule{
		{ID: "src", Label: "SQLInjection", Category: types.TaintSource},
		{ID: "sink", Label: "SQLInjection", Category: types.TaintSink, Severity: "high"},
	})
	fg := &FlowGraph{
		Function: 1,
		Sources: []SourceBinding{{Var: "raw", Rule: catalog.byFQN[""][0], Occ: occ("b.py", 1, types.RoleReference)}},
		Edges:    []FlowEdge{{From: "raw", To: "q"}},
		Sanitizers: []SanitizerBinding{
			{Var: "q", Rule: &Rule{ID: "san", Label: "sanitize"}, Clears: "SQLInjection"},
		},
		Sinks: []SinkBinding{{Var: "q", Rule: catalog.byFQN[""][1], Occ: occ("b.py", 2, types.RoleReference)}},
	}

	eng := NewEngine(catalog, 2, 64)
	result := eng.Analyze(&Program{
		Functions: map[types.NodeID]*FlowGraph{1: fg},
		CallGraph: map[types.NodeID][]types.NodeID{1: nil},
	})
	assert.Empty(t, result.Findings)
}

// An unresolved (dynamically dispatched) call conservatively joins every
// tainted argument straight through to the result.
func TestEngine_UnresolvedCallPropagatesConservatively(t *testing.T) {
	catalog := Compile([]*Rule{
		{ID: "src", Label: "Tainted", Category: types.TaintSource},
		{ID: "sink", Label: "Tainted", Category: types.TaintSink, Severity: "low"},
	})
	callOcc := occ("c.py", 5, types.RoleReference)
	fg := &FlowGraph{
		Function: 1,
		Sources:  []SourceBinding{{Var: "in", Rule: catalog.byFQN[""][0], Occ: occ("c.py", 1, types.RoleReference)}},
		Calls: []CallEdge{
			{Occ: callOcc, ArgVars: []string{"in"}, ResultVar: "out", Unresolved: true},
		},
		Sinks: []SinkBinding{{Var: "out", Rule: catalog.byFQN[""][1], Occ: occ("c.py", 6, types.RoleReference)}},
	}
	eng := NewEngine(catalog, 2, 64)
	result := eng.Analyze(&Program{
		Functions: map[types.NodeID]*FlowGraph{1: fg},
		CallGraph: map[types.NodeID][]types.NodeID{1: nil},
	})
	assert.Len(t, result.Findings, 1)
}

// Cross-function propagation: a wrapper calls a leaf whose single parameter
// reaches its return, so the wrapper's own tainted argument reaches its
// sink through the leaf's summary, computed bottom-up over the call graph's
// SCC condensation.
func TestEngine_InterproceduralSummaryPropagation(t *testing.T) {
	catalog := Compile([]*Rule{
		{ID: "src", Label: "Tainted", Category: types.TaintSource},
		{ID: "sink", Label: "Tainted", Category: types.TaintSink, Severity: "low"},
	})
	leaf := &FlowGraph{
		Function:   2,
		Params:     []string{"p"},
		ReturnVars: []string{"p"},
	}
	callOcc := occ("d.py", 4, types.RoleReference)
	wrapper := &FlowGraph{
		Function: 1,
		Sources:  []SourceBinding{{Var: "tainted_in", Rule: catalog.byFQN[""][0], Occ: occ("d.py", 1, types.RoleReference)}},
		Calls: []CallEdge{
			{Occ: callOcc, Callee: 2, ArgVars: []string{"tainted_in"}, ResultVar: "result"},
		},
		Sinks: []SinkBinding{{Var: "result", Rule: catalog.byFQN[""][1], Occ: occ("d.py", 5, types.RoleReference)}},
	}

	eng := NewEngine(catalog, 2, 64)
	result := eng.Analyze(&Program{
		Functions: map[types.NodeID]*FlowGraph{1: wrapper, 2: leaf},
		CallGraph: map[types.NodeID][]types.NodeID{1: {2}, 2: nil},
	})
	assert.Len(t, result.Findings, 1)
	assert.True(t, result.Summaries[2].ParamToReturn[0])
}
