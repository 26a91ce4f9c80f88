package pipeline

import (
	"fmt"

	"github.com/standardbeagle/codegraph-core/internal/errs"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// VerifyInvariants checks the graph's structural invariants — edge
// endpoints exist, definitions are unique, containment forms a tree rooted
// at the file, SSA uses have reaching definitions — against a build result.
// A violation is fatal: the snapshot is poisoned and the caller must abort
// it cleanly, leaving the previous snapshot intact.
//
// Cache equivalence is not checkable from a single build; it is exercised
// by the equivalence tests instead.
func VerifyInvariants(res *BuildResult) error {
	for path, doc := range res.Docs {
		if err := verifyDocument(path, doc); err != nil {
			return err
		}
	}
	if err := verifyDefinitionUniqueness(res); err != nil {
		return err
	}
	return verifySSADominance(res)
}

// verifyDocument checks edge endpoints and containment (every non-root node
// reachable from exactly one File via CONTAINS) within one document. The
// endpoint check only requires at least one endpoint of each edge to be a
// node of this document; the other endpoint is not looked up, so an edge
// whose cross-file target exists nowhere in the snapshot passes.
func verifyDocument(path string, doc *types.IRDocument) error {
	kind := make(map[types.NodeID]types.NodeKind, len(doc.Nodes))
	for _, n := range doc.Nodes {
		kind[n.ID] = n.Kind
	}

	// Cross-file targets rewritten by the resolver land outside this
	// document's node set; an edge is only dangling when neither endpoint
	// is local.
	for _, e := range doc.Edges {
		_, fromOK := kind[e.FromID]
		_, toOK := kind[e.ToID]
		if !fromOK && !toOK {
			return errs.NewInvariantViolation("edge-endpoints",
				fmt.Sprintf("%s: edge %s has no endpoint in its document", path, e.Kind))
		}
	}

	// Walk CONTAINS from the File root; every non-root, non-External node
	// must be visited exactly once.
	var root types.NodeID
	rootCount := 0
	children := make(map[types.NodeID][]types.NodeID)
	containsParents := make(map[types.NodeID]int)
	for _, n := range doc.Nodes {
		if n.Kind == types.NodeFile {
			root = n.ID
			rootCount++
		}
	}
	if rootCount != 1 {
		return errs.NewInvariantViolation("containment",
			fmt.Sprintf("%s: expected exactly one File node, found %d", path, rootCount))
	}
	for _, e := range doc.Edges {
		if e.Kind == types.EdgeContains {
			children[e.FromID] = append(children[e.FromID], e.ToID)
			containsParents[e.ToID]++
		}
	}
	for id, count := range containsParents {
		if count > 1 {
			return errs.NewInvariantViolation("containment",
				fmt.Sprintf("%s: node %d has %d CONTAINS parents", path, id, count))
		}
	}
	reached := make(map[types.NodeID]bool)
	stack := []types.NodeID{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		stack = append(stack, children[cur]...)
	}
	for _, n := range doc.Nodes {
		if n.Kind == types.NodeExternal || n.ID == root {
			continue
		}
		if !reached[n.ID] {
			return errs.NewInvariantViolation("containment",
				fmt.Sprintf("%s: node %s (%s) not reachable from File via CONTAINS", path, n.FQN, n.Kind))
		}
	}
	return nil
}

// verifyDefinitionUniqueness checks that each symbol has at most one
// definition occurrence across the snapshot.
func verifyDefinitionUniqueness(res *BuildResult) error {
	defs := make(map[types.NodeID]string)
	for path, doc := range res.Docs {
		for _, occ := range doc.Occurrences {
			if occ.Role != types.RoleDefinition {
				continue
			}
			if prev, dup := defs[occ.SymbolID]; dup {
				return errs.NewInvariantViolation("unique-definition",
					fmt.Sprintf("symbol %d defined in both %s and %s", occ.SymbolID, prev, path))
			}
			defs[occ.SymbolID] = path
		}
	}
	return nil
}

// verifySSADominance checks that every SSA use is reached by exactly one
// definition version (possibly a phi). The renaming walk guarantees this
// by construction; the check here guards against a builder regression
// feeding unrenamed uses downstream.
func verifySSADominance(res *BuildResult) error {
	for fn, sem := range res.Semantics {
		if sem == nil {
			continue
		}
		// Collect every (var, version) the renaming produced, from both
		// plain definitions and phis.
		defined := make(map[string]map[int]bool)
		record := func(v string, ver int) {
			m, ok := defined[v]
			if !ok {
				m = make(map[int]bool)
				defined[v] = m
			}
			m[ver] = true
		}
		for defIdx, ver := range sem.SSA.DefVersion {
			if defIdx >= 0 && defIdx < len(sem.DFG.Defs) {
				record(sem.DFG.Defs[defIdx].Var, ver)
			}
		}
		for _, phi := range sem.SSA.Phis {
			record(phi.Var, phi.Version)
		}

		for useIdx, ver := range sem.SSA.UseVersion {
			if useIdx < 0 || useIdx >= len(sem.DFG.Uses) {
				continue
			}
			v := sem.DFG.Uses[useIdx].Var
			if ver == 0 {
				continue // initial version: parameter or free variable
			}
			if !defined[v][ver] {
				return errs.NewInvariantViolation("ssa-dominance",
					fmt.Sprintf("function %d: use of %s_%d has no reaching SSA definition", fn, v, ver))
			}
		}
	}
	return nil
}
