package semantic

import "github.com/standardbeagle/codegraph-core/internal/types"

// BuildDFG computes def-use chains from the definitions and uses the caller
// harvested from the function's syntax tree (collectDefsUses in builder.go),
// each already tagged with the basic block it falls in. May-reach is
// computed per block first, then propagated across CFG edges until
// fixpoint.
func BuildDFG(cfg types.CFG, defs []types.VarDef, uses []types.VarUse) types.DFG {
	dfg := types.DFG{Defs: defs, Uses: uses, DefUse: make(map[int][]int)}

	// reachIn[b] = set of (var -> def index) definitions live on entry to b;
	// reachOut[b] likewise on exit. Classic reaching-definitions fixpoint.
	reachOut := make(map[types.BlockID]map[string]map[int]bool, len(cfg.Blocks))
	for _, blk := range cfg.Blocks {
		reachOut[blk.ID] = make(map[string]map[int]bool)
	}

	preds := make(map[types.BlockID][]types.BlockID)
	for _, e := range cfg.Edges {
		preds[e.To] = append(preds[e.To], e.From)
	}

	defsByBlock := make(map[types.BlockID][]int)
	for i, d := range defs {
		defsByBlock[d.Block] = append(defsByBlock[d.Block], i)
	}

	changed := true
	for changed {
		changed = false
		for _, blk := range cfg.Blocks {
			in := mergeReach(blk.ID, preds, reachOut)
			out := applyGen(in, defsByBlock[blk.ID], defs)
			if !reachEqual(reachOut[blk.ID], out) {
				reachOut[blk.ID] = out
				changed = true
			}
		}
	}

	// For every use, the reaching definitions are whatever's live for that
	// variable at block entry, narrowed by any same-block definition that
	// precedes the use textually (defs within defsByBlock are in statement
	// order since the builder appends them as it walks).
	for ui, u := range uses {
		in := mergeReach(u.Block, preds, reachOut)
		reaching := reachingForVar(in, u.Var)
		for _, di := range defsByBlock[u.Block] {
			if defs[di].Var == u.Var && defBeforeUse(defs[di], u) {
				reaching = map[int]bool{di: true}
			}
		}
		for di := range reaching {
			dfg.DefUse[di] = append(dfg.DefUse[di], ui)
		}
	}
	return dfg
}

func mergeReach(b types.BlockID, preds map[types.BlockID][]types.BlockID, reachOut map[types.BlockID]map[string]map[int]bool) map[string]map[int]bool {
	merged := make(map[string]map[int]bool)
	for _, p := range preds[b] {
		for v, defset := range reachOut[p] {
			dst, ok := merged[v]
			if !ok {
				dst = make(map[int]bool)
				merged[v] = dst
			}
			for d := range defset {
				dst[d] = true
			}
		}
	}
	return merged
}

func applyGen(in map[string]map[int]bool, blockDefs []int, defs []types.VarDef) map[string]map[int]bool {
	out := make(map[string]map[int]bool, len(in))
	for v, s := range in {
		cp := make(map[int]bool, len(s))
		for d := range s {
			cp[d] = true
		}
		out[v] = cp
	}
	for _, di := range blockDefs {
		v := defs[di].Var
		out[v] = map[int]bool{di: true} // last def in block kills earlier ones
	}
	return out
}

func reachEqual(a, b map[string]map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v, sa := range a {
		sb, ok := b[v]
		if !ok || len(sa) != len(sb) {
			return false
		}
		for d := range sa {
			if !sb[d] {
				return false
			}
		}
	}
	return true
}

func reachingForVar(in map[string]map[int]bool, v string) map[int]bool {
	if s, ok := in[v]; ok {
		return s
	}
	return map[int]bool{}
}

// defBeforeUse orders by (line, col) within the same block — defs and uses
// derived from the same linear statement walk so span order is a faithful
// proxy for execution order inside a straight-line block.
func defBeforeUse(d types.VarDef, u types.VarUse) bool {
	if d.Span.StartLine != u.Span.StartLine {
		return d.Span.StartLine < u.Span.StartLine
	}
	return d.Span.StartCol <= u.Span.StartCol
}
