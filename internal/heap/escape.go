package heap

import "github.com/standardbeagle/codegraph-core/internal/types"

// EscapeEvent is one intraprocedural fact feeding the per-function escape
// lattice join: var escaped at least as far as Reaches.
type EscapeEvent struct {
	Var     string
	Reaches types.EscapeState
}

// AnalyzeIntraprocedural computes the per-function EscapeInfo from a flat
// list of observed events, joining every event for a variable via the fixed
// lattice.
func AnalyzeIntraprocedural(fn types.NodeID, events []EscapeEvent) *types.EscapeInfo {
	info := &types.EscapeInfo{FunctionNode: fn, States: make(map[string]types.EscapeState)}
	for _, e := range events {
		cur, ok := info.States[e.Var]
		if !ok {
			info.States[e.Var] = e.Reaches
			continue
		}
		info.States[e.Var] = types.JoinEscape(cur, e.Reaches)
	}
	return info
}

// CallSite is one call from a caller function to a callee, used to refine
// escape facts interprocedurally.
type CallSite struct {
	Caller    types.NodeID
	Callee    types.NodeID
	ArgVars   []string // caller-side variable passed at each parameter position
	Unresolved bool     // true for a dynamic-dispatch call with no known target
}

// RefineInterprocedural propagates a callee's own escape conclusions about
// its parameters back to the caller's arguments: the caller's argument
// variable at position i is joined with the callee's escape state for
// parameter i, whatever that state is. An unresolved call-site
// joins every argument
// straight to Unknown — the top of the taint lattice's escape analogue,
// rather than guessing a callee.
func RefineInterprocedural(perFunction map[types.NodeID]*types.EscapeInfo, calleeParamEscape map[types.NodeID][]types.EscapeState, sites []CallSite) {
	for _, site := range sites {
		callerInfo, ok := perFunction[site.Caller]
		if !ok {
			continue
		}
		if site.Unresolved {
			for _, v := range site.ArgVars {
				joinVar(callerInfo, v, types.UnknownEscape)
			}
			continue
		}
		params := calleeParamEscape[site.Callee]
		for i, v := range site.ArgVars {
			if i >= len(params) {
				break
			}
			joinVar(callerInfo, v, params[i])
		}
	}
}

func joinVar(info *types.EscapeInfo, v string, state types.EscapeState) {
	cur, ok := info.States[v]
	if !ok {
		info.States[v] = state
		return
	}
	info.States[v] = types.JoinEscape(cur, state)
}
