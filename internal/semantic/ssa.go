package semantic

import "github.com/standardbeagle/codegraph-core/internal/types"

// BuildSSA inserts phi-nodes at the dominance frontier of every definition
// and renames variables via a stack-based walk of the dominator tree, so
// that every use is dominated by exactly one reaching definition, possibly
// a phi.
func BuildSSA(cfg types.CFG, dfg types.DFG, irreducible bool) types.SSA {
	ssa := types.SSA{
		DefVersion:  make(map[int]int),
		UseVersion:  make(map[int]int),
		Irreducible: irreducible,
	}

	varsOf := func() []string {
		seen := map[string]bool{}
		var out []string
		for _, d := range dfg.Defs {
			if !seen[d.Var] {
				seen[d.Var] = true
				out = append(out, d.Var)
			}
		}
		return out
	}()

	// defBlocksOf[v] = blocks containing a definition of v, for phi placement.
	defBlocksOf := make(map[string]map[types.BlockID]bool)
	for _, d := range dfg.Defs {
		m, ok := defBlocksOf[d.Var]
		if !ok {
			m = make(map[types.BlockID]bool)
			defBlocksOf[d.Var] = m
		}
		m[d.Block] = true
	}

	// phiPlaced[block][var] = index into ssa.Phis of the phi placed by the
	// standard iterative dominance-frontier closure (Cytron et al.).
	phiPlaced := make(map[types.BlockID]map[string]int)
	for _, v := range varsOf {
		worklist := make([]types.BlockID, 0, len(defBlocksOf[v]))
		hasDef := map[types.BlockID]bool{}
		for b := range defBlocksOf[v] {
			worklist = append(worklist, b)
			hasDef[b] = true
		}
		placed := map[types.BlockID]bool{}
		for len(worklist) > 0 {
			b := worklist[0]
			worklist = worklist[1:]
			for _, df := range cfg.DF[b] {
				if placed[df] {
					continue
				}
				placed[df] = true
				idx := len(ssa.Phis)
				ssa.Phis = append(ssa.Phis, types.PhiNode{Var: v, Block: df, Version: -1})
				if phiPlaced[df] == nil {
					phiPlaced[df] = make(map[string]int)
				}
				phiPlaced[df][v] = idx
				if !hasDef[df] {
					hasDef[df] = true
					worklist = append(worklist, df)
				}
			}
		}
	}

	// Rename: walk the dominator tree depth-first, maintaining a per-var
	// version counter and a stack of the currently-reaching version.
	version := map[string]int{}
	stack := map[string][]int{}
	push := func(v string) int {
		version[v]++
		ver := version[v]
		stack[v] = append(stack[v], ver)
		return ver
	}
	pop := func(v string) {
		s := stack[v]
		if len(s) > 0 {
			stack[v] = s[:len(s)-1]
		}
	}
	top := func(v string) (int, bool) {
		s := stack[v]
		if len(s) == 0 {
			return 0, false
		}
		return s[len(s)-1], true
	}

	defsByBlock := make(map[types.BlockID][]int)
	for i, d := range dfg.Defs {
		defsByBlock[d.Block] = append(defsByBlock[d.Block], i)
	}
	usesByBlock := make(map[types.BlockID][]int)
	for i, u := range dfg.Uses {
		usesByBlock[u.Block] = append(usesByBlock[u.Block], i)
	}

	var walk func(b types.BlockID)
	walk = func(b types.BlockID) {
		pushedHere := map[string]bool{}

		// Phis defined at this block get a fresh version first — they
		// dominate everything else in the block.
		for v, idx := range phiPlaced[b] {
			ver := push(v)
			ssa.Phis[idx].Version = ver
			pushedHere[v] = true
		}

		// Interleave defs and uses in statement order within the block so a
		// use is renamed to the version reaching it at that point, not the
		// block's final version.
		events := blockEvents(defsByBlock[b], usesByBlock[b], dfg)
		for _, ev := range events {
			if ev.isDef {
				ver := push(ev.varName)
				ssa.DefVersion[ev.index] = ver
				pushedHere[ev.varName] = true
			} else {
				if ver, ok := top(ev.varName); ok {
					ssa.UseVersion[ev.index] = ver
				}
			}
		}

		// Fill phi args in successor blocks for this predecessor.
		for _, e := range cfg.Edges {
			if e.From != b {
				continue
			}
			for v, idx := range phiPlaced[e.To] {
				if ver, ok := top(v); ok {
					ssa.Phis[idx].Args = append(ssa.Phis[idx].Args, ver)
				} else {
					ssa.Phis[idx].Args = append(ssa.Phis[idx].Args, 0)
				}
			}
		}

		for _, child := range cfg.DomTree[b] {
			walk(child)
		}

		for v := range pushedHere {
			pop(v)
		}
	}
	walk(cfg.Entry)

	return ssa
}

type blockEvent struct {
	isDef   bool
	varName string
	index   int
	line    int
	col     int
}

func blockEvents(defIdx, useIdx []int, dfg types.DFG) []blockEvent {
	var out []blockEvent
	for _, i := range defIdx {
		d := dfg.Defs[i]
		out = append(out, blockEvent{isDef: true, varName: d.Var, index: i, line: d.Span.StartLine, col: d.Span.StartCol})
	}
	for _, i := range useIdx {
		u := dfg.Uses[i]
		out = append(out, blockEvent{isDef: false, varName: u.Var, index: i, line: u.Span.StartLine, col: u.Span.StartCol})
	}
	// stable sort by source position so defs/uses interleave correctly
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func less(a, b blockEvent) bool {
	if a.line != b.line {
		return a.line < b.line
	}
	return a.col < b.col
}
