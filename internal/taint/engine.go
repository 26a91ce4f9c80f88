package taint

import (
	"sort"

	"github.com/standardbeagle/codegraph-core/internal/types"
)

// FlowEdge is one value-flow step inside a single function: a plain copy
// (assignment), a call-argument binding, or a call-result binding. Building
// this graph from a function's DFG def-use chains plus its call-argument/
// result bindings is the pipeline's job (internal/pipeline); the engine
// itself only needs the edges, so it stays testable without a tree-sitter
// fixture per scenario.
type FlowEdge struct {
	From, To string
	// Occ is the defining occurrence this copy happens at (e.g. an
	// assignment statement), mirroring one hop of the DFG's def-use chain.
	// Left zero-valued for edges with no standalone occurrence of their
	// own (e.g. a pass-through synthesized by the pipeline); such edges
	// don't lengthen the reported finding path.
	Occ types.Occurrence
}

// SourceBinding marks a variable as receiving a label from a matched source
// rule at Occ.
type SourceBinding struct {
	Var  string
	Rule *Rule
	Occ  types.Occurrence
}

// SinkBinding marks a variable as the argument position a matched sink rule
// inspects.
type SinkBinding struct {
	Var  string
	Rule *Rule
	Occ  types.Occurrence
}

// SanitizerBinding marks a variable as passing through a matched sanitizer
// rule, clearing the label(s) it sanitizes.
type SanitizerBinding struct {
	Var    string
	Rule   *Rule
	Clears string // the category/label this sanitizer clears; "" clears all
}

// CallEdge is one call site inside a function body, binding caller-side
// argument variables to a callee's parameters and the callee's return value
// to a caller-side result variable.
type CallEdge struct {
	Occ       types.Occurrence
	Callee    types.NodeID
	CalleeFQN string
	BaseType  string
	ArgVars   []string // indexed by parameter position
	ResultVar string
	// Unresolved marks a dynamic-dispatch call site with no known target,
	// conservatively treated as a propagator that passes every argument's
	// taint through to the result.
	Unresolved bool
}

// FlowGraph is one function's taint-relevant structure.
type FlowGraph struct {
	Function types.NodeID
	Params   []string // parameter variable names, in declaration order
	// ReturnVars are the variables the function hands back to its callers
	// (a `return` expression's operand, or an implicit result binding);
	// used only to compute the parameter-to-output summary contract, never
	// the real taint-label propagation a finding is built from.
	ReturnVars []string
	Edges      []FlowEdge
	Sources    []SourceBinding
	Sinks      []SinkBinding
	Sanitizers []SanitizerBinding
	Calls      []CallEdge
}

// Program is the whole-snapshot input to the taint engine: every function's
// flow graph plus the call graph connecting them.
type Program struct {
	Functions map[types.NodeID]*FlowGraph
	CallGraph map[types.NodeID][]types.NodeID // caller -> callees
}

// Summary is a function's bottom-up-computed taint contract, reused
// whenever the function is called rather than re-analyzing the callee.
type Summary struct {
	// ParamToReturn[i] is true if parameter i's taint (any label) reaches
	// some returned/result-bound variable.
	ParamToReturn []bool
	// ParamToParam[i][j] is true if parameter i's taint reaches parameter j
	// of a call this function makes onward (rare but required for
	// multi-hop wrapper functions).
	ParamToParam map[int]map[int]bool
}

// taintState is the per-variable label set for one function's analysis, plus
// provenance (the occurrence chain a label arrived via) for finding paths.
// A variable a sanitizer has cleared for a label becomes a barrier for that
// (var, label) pair: re-adding it is a no-op, which is what makes the
// fixpoint converge when a sanitized variable sits downstream of a tainted
// edge.
type taintState struct {
	labels    map[string]map[string]*types.Occurrence // var -> label -> nil (value unused; provenance is in pathByVar)
	pathByVar map[string][]types.Occurrence           // var -> ordered path of occurrences so far
	sanitized map[string]map[string]bool              // var -> label (or "" for all) cleared by a sanitizer
}

func newTaintState() *taintState {
	return &taintState{
		labels:    make(map[string]map[string]*types.Occurrence),
		pathByVar: make(map[string][]types.Occurrence),
		sanitized: make(map[string]map[string]bool),
	}
}

func (s *taintState) isSanitized(v, label string) bool {
	m, ok := s.sanitized[v]
	if !ok {
		return false
	}
	return m[label] || m[""]
}

func (s *taintState) has(v, label string) bool {
	m, ok := s.labels[v]
	if !ok {
		return false
	}
	_, ok = m[label]
	return ok
}

func (s *taintState) labelsOf(v string) []string {
	m := s.labels[v]
	out := make([]string, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// add records that v carries label, arriving via path (copied); returns
// true if this is new information (drives the worklist's dirty bit).
func (s *taintState) add(v, label string, path []types.Occurrence) bool {
	if s.isSanitized(v, label) {
		return false
	}
	m, ok := s.labels[v]
	if !ok {
		m = make(map[string]*types.Occurrence)
		s.labels[v] = m
	}
	if _, exists := m[label]; exists {
		return false
	}
	m[label] = nil
	cp := make([]types.Occurrence, len(path))
	copy(cp, path)
	s.pathByVar[v] = cp
	return true
}

func (s *taintState) clear(v, label string) {
	b, ok := s.sanitized[v]
	if !ok {
		b = make(map[string]bool)
		s.sanitized[v] = b
	}
	b[label] = true

	m, ok := s.labels[v]
	if !ok {
		return
	}
	if label == "" {
		delete(s.labels, v)
		return
	}
	delete(m, label)
}

// Engine runs the interprocedural worklist fixpoint.
type Engine struct {
	Catalog   *Catalog
	ContextK  int // call-string bound; stored, but Analyze does not read it
	MaxPathLen int
}

func NewEngine(catalog *Catalog, contextK, maxPathLen int) *Engine {
	if contextK <= 0 {
		contextK = 2
	}
	if maxPathLen <= 0 {
		maxPathLen = 64
	}
	return &Engine{Catalog: catalog, ContextK: contextK, MaxPathLen: maxPathLen}
}

// Result is the engine's output: every finding plus the summaries computed
// along the way (exposed so a caller can cache them, e.g. the incremental
// controller reusing a callee's summary across runs when its body fingerprint
// is unchanged).
type Result struct {
	Findings  []types.TaintFinding
	Summaries map[types.NodeID]*Summary
}

// Analyze runs the whole-program fixpoint: condense the call graph into
// SCCs via Tarjan, process bottom-up so every callee is summarized before
// its callers run; within an SCC (mutual recursion), iterate the member
// functions together until none produce new facts.
func (e *Engine) Analyze(p *Program) *Result {
	sccs := tarjanSCC(p.CallGraph)
	order := topoOrderBottomUp(sccs, p.CallGraph)

	summaries := make(map[types.NodeID]*Summary, len(p.Functions))
	states := make(map[types.NodeID]*taintState, len(p.Functions))
	var findings []types.TaintFinding

	for _, scc := range order {
		for _, fn := range scc {
			if _, ok := states[fn]; !ok {
				states[fn] = newTaintState()
			}
		}

		// Parameter->output summaries first: members of an SCC may call
		// each other, so iterate the whole group until no member's summary
		// changes before running the real-label fixpoint that depends on
		// callees already being summarized.
		summaryChanged := true
		for summaryChanged {
			summaryChanged = false
			for _, fn := range scc {
				fg, ok := p.Functions[fn]
				if !ok {
					continue
				}
				next := paramSummaryFixpoint(fg, summaries)
				if !summaryEqual(summaries[fn], next) {
					summaries[fn] = next
					summaryChanged = true
				}
			}
		}

		changed := true
		for changed {
			changed = false
			for _, fn := range scc {
				fg, ok := p.Functions[fn]
				if !ok {
					continue
				}
				if e.propagateOnce(fg, states[fn], summaries) {
					changed = true
				}
			}
		}
		for _, fn := range scc {
			fg, ok := p.Functions[fn]
			if !ok {
				continue
			}
			findings = append(findings, e.collectFindings(fg, states[fn])...)
		}
	}

	return &Result{Findings: findings, Summaries: summaries}
}

// propagateOnce runs one pass of edge/call/sink propagation over fg,
// returning true if any new fact was derived (the worklist's per-function
// dirty bit).
func (e *Engine) propagateOnce(fg *FlowGraph, st *taintState, summaries map[types.NodeID]*Summary) bool {
	changed := false

	for _, sb := range fg.Sources {
		path := []types.Occurrence{sb.Occ}
		if st.add(sb.Var, sb.Rule.Label, path) {
			changed = true
		}
	}

	var zeroOcc types.Occurrence
	for _, edge := range fg.Edges {
		for _, label := range st.labelsOf(edge.From) {
			path := append([]types.Occurrence{}, st.pathByVar[edge.From]...)
			if edge.Occ != zeroOcc {
				path = append(path, edge.Occ)
			}
			if len(path) >= e.MaxPathLen {
				continue
			}
			if st.add(edge.To, label, path) {
				changed = true
			}
		}
	}

	for _, call := range fg.Calls {
		if call.Unresolved {
			// Dynamic dispatch is pessimistic: join every arg's taint
			// straight through to the result.
			for _, arg := range call.ArgVars {
				for _, label := range st.labelsOf(arg) {
					path := append(append([]types.Occurrence{}, st.pathByVar[arg]...), call.Occ)
					if call.ResultVar != "" && st.add(call.ResultVar, label, path) {
						changed = true
					}
				}
			}
			continue
		}
		callee := summaries[call.Callee]
		if callee == nil {
			continue // no summary for the callee here (no flow graph, or its SCC comes later): nothing passes through
		}
		for i, arg := range call.ArgVars {
			if i >= len(callee.ParamToReturn) || !callee.ParamToReturn[i] {
				continue
			}
			for _, label := range st.labelsOf(arg) {
				path := append(append([]types.Occurrence{}, st.pathByVar[arg]...), call.Occ)
				if call.ResultVar != "" && st.add(call.ResultVar, label, path) {
					changed = true
				}
			}
		}
	}

	// Sanitizers run last so taint propagated earlier in this pass is
	// cleared before findings are collected; clearing also erects the
	// (var, label) barrier that keeps the fixpoint from re-deriving the
	// cleared fact forever.
	for _, san := range fg.Sanitizers {
		st.clear(san.Var, san.Clears)
	}

	return changed
}

// collectFindings emits one TaintFinding per (sink, label) pair still active
// on the sink's bound variable after sanitizers have run.
func (e *Engine) collectFindings(fg *FlowGraph, st *taintState) []types.TaintFinding {
	var out []types.TaintFinding
	for _, sink := range fg.Sinks {
		for range st.labelsOf(sink.Var) {
			path := append(append([]types.Occurrence{}, st.pathByVar[sink.Var]...), sink.Occ)
			out = append(out, types.TaintFinding{
				RuleID:           sink.Rule.ID,
				Category:         sink.Rule.Label,
				Severity:         sink.Rule.Severity,
				SourceOccurrence: path[0],
				SinkOccurrence:   sink.Occ,
				Path:             path,
				Confidence:       confidenceFor(path),
				CWE:              sink.Rule.CWE,
			})
		}
	}
	return out
}

// confidenceFor derives a confidence score from witness-path length.
// Branch and summary precision inputs aren't modeled at this layer (they
// require the CFG a flow graph doesn't carry), so this implements the
// path-length term and leaves room for a caller to scale it further once
// branch data is available.
func confidenceFor(path []types.Occurrence) float64 {
	n := len(path)
	if n <= 1 {
		return 0.95
	}
	score := 1.0 - float64(n-1)*0.05
	if score < 0.3 {
		return 0.3
	}
	return score
}

// paramSummaryFixpoint computes fg's callee-facing contract: for each
// parameter, whether a value carrying its
// taint reaches a returned variable, and which onward call-argument
// positions it flows into. Label-agnostic by design — a summary answers
// "does input i reach output" once, for every label, so it can be reused at
// every call site regardless of which labels are live there. A sanitizer
// clearing all labels stops the flow; a label-specific sanitizer does not
// (conservative: the summary must hold for the labels it doesn't clear).
func paramSummaryFixpoint(fg *FlowGraph, summaries map[types.NodeID]*Summary) *Summary {
	out := &Summary{
		ParamToReturn: make([]bool, len(fg.Params)),
		ParamToParam:  make(map[int]map[int]bool),
	}
	returns := make(map[string]bool, len(fg.ReturnVars))
	for _, rv := range fg.ReturnVars {
		returns[rv] = true
	}
	clearsAll := make(map[string]bool)
	for _, san := range fg.Sanitizers {
		if san.Clears == "" {
			clearsAll[san.Var] = true
		}
	}

	for i, param := range fg.Params {
		carried := map[string]bool{param: true}
		changed := true
		for changed {
			changed = false
			for _, e := range fg.Edges {
				if carried[e.From] && !carried[e.To] && !clearsAll[e.To] {
					carried[e.To] = true
					changed = true
				}
			}
			for _, call := range fg.Calls {
				for ai, arg := range call.ArgVars {
					if !carried[arg] {
						continue
					}
					if m := out.ParamToParam[i]; m == nil {
						out.ParamToParam[i] = map[int]bool{ai: true}
					} else {
						m[ai] = true
					}
					through := call.Unresolved
					if !through {
						if s := summaries[call.Callee]; s != nil && ai < len(s.ParamToReturn) && s.ParamToReturn[ai] {
							through = true
						}
					}
					if through && call.ResultVar != "" && !carried[call.ResultVar] && !clearsAll[call.ResultVar] {
						carried[call.ResultVar] = true
						changed = true
					}
				}
			}
		}
		for rv := range returns {
			if carried[rv] {
				out.ParamToReturn[i] = true
				break
			}
		}
	}
	return out
}

func summaryEqual(a, b *Summary) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.ParamToReturn) != len(b.ParamToReturn) {
		return false
	}
	for i := range a.ParamToReturn {
		if a.ParamToReturn[i] != b.ParamToReturn[i] {
			return false
		}
	}
	if len(a.ParamToParam) != len(b.ParamToParam) {
		return false
	}
	for i, m := range a.ParamToParam {
		bm, ok := b.ParamToParam[i]
		if !ok || len(m) != len(bm) {
			return false
		}
		for j, v := range m {
			if bm[j] != v {
				return false
			}
		}
	}
	return true
}
