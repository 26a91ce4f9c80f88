// Package heap is the heap and points-to stage: an Andersen-style
// subset-constraint solver over allocation sites, plus the escape-state
// lattice built on top of it. Constraints are solved to fixpoint with
// cycles collapsed via Tarjan SCC during propagation.
package heap

import "github.com/standardbeagle/codegraph-core/internal/types"

// ConstraintKind distinguishes the Andersen constraint forms: `p = &a`
// (address-of), `p = q` (copy), and field load/store.
type ConstraintKind uint8

const (
	ConstraintAddrOf ConstraintKind = iota
	ConstraintCopy
	ConstraintFieldStore // *p.f = q
	ConstraintFieldLoad  // p = *q.f
)

// Constraint is one Andersen subset constraint over abstract variables
// (access paths) and allocation sites.
type Constraint struct {
	Kind  ConstraintKind
	Dst   string
	Src   string
	Alloc types.AllocSiteID // only meaningful for ConstraintAddrOf
	Field string            // only meaningful for field constraints
}

// Solver runs the Andersen fixpoint over a constraint set, field-sensitively
// keying points-to facts by (variable, field) access paths.
type Solver struct {
	graph *types.PointsToGraph
	// copyEdges[src] = dsts that must receive src's points-to set whenever
	// it grows — the subset-constraint propagation graph.
	copyEdges map[string][]string
}

func NewSolver() *Solver {
	return &Solver{graph: types.NewPointsToGraph(), copyEdges: make(map[string][]string)}
}

func accessPath(v, field string) string {
	if field == "" {
		return v
	}
	return v + "." + field
}

// Solve runs every constraint to a fixpoint worklist over the copy-edge
// graph, collapsing cycles via Tarjan SCC first so a cyclic chain of copy
// constraints (common in recursive structures) converges in one pass per
// condensed node instead of rediscovering the same fact on every iteration
// around the cycle.
func (s *Solver) Solve(constraints []Constraint) *types.PointsToGraph {
	for _, c := range constraints {
		switch c.Kind {
		case ConstraintAddrOf:
			s.graph.Add(c.Dst, c.Alloc)
		case ConstraintCopy:
			s.copyEdges[c.Src] = append(s.copyEdges[c.Src], c.Dst)
		case ConstraintFieldStore:
			dst := accessPath(c.Dst, c.Field)
			s.copyEdges[c.Src] = append(s.copyEdges[c.Src], dst)
		case ConstraintFieldLoad:
			src := accessPath(c.Src, c.Field)
			s.copyEdges[src] = append(s.copyEdges[src], c.Dst)
		}
	}

	sccs := tarjanSCC(s.copyEdges)
	for _, scc := range sccs {
		if len(scc) > 1 {
			s.collapseSCC(scc)
		}
	}

	worklist := make([]string, 0, len(s.copyEdges))
	inWorklist := map[string]bool{}
	for v := range s.copyEdges {
		worklist = append(worklist, v)
		inWorklist[v] = true
	}
	for len(worklist) > 0 {
		v := worklist[0]
		worklist = worklist[1:]
		inWorklist[v] = false
		for _, dst := range s.copyEdges[v] {
			if s.graph.Union(dst, v) {
				if !inWorklist[dst] {
					worklist = append(worklist, dst)
					inWorklist[dst] = true
				}
			}
		}
	}
	return s.graph
}

// collapseSCC merges every variable in a cycle into a single representative
// (the lexicographically first) so the worklist propagates the union once
// instead of looping around the cycle once per new fact.
func (s *Solver) collapseSCC(scc []string) {
	rep := scc[0]
	for _, v := range scc[1:] {
		if v < rep {
			rep = v
		}
	}
	for _, v := range scc {
		if v == rep {
			continue
		}
		s.graph.Union(rep, v)
		s.copyEdges[rep] = append(s.copyEdges[rep], s.copyEdges[v]...)
		s.copyEdges[v] = []string{rep}
	}
}

// tarjanSCC computes strongly connected components of the copy-edge graph
//.
func tarjanSCC(edges map[string][]string) [][]string {
	index := map[string]int{}
	low := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	counter := 0
	var sccs [][]string

	var visit func(v string)
	visit = func(v string) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] {
				if index[w] < low[v] {
					low[v] = index[w]
				}
			}
		}

		if low[v] == index[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}
	for v := range edges {
		if _, seen := index[v]; !seen {
			visit(v)
		}
	}
	return sccs
}
