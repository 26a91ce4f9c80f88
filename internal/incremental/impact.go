package incremental

import (
	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Impact classifies what a change to a symbol requires of the rest of the
// snapshot.
type Impact uint8

const (
	// NoImpact: comments/formatting only — AST hash and signature hash both
	// unchanged.
	NoImpact Impact = iota
	// IRLocal: body changed, signature unchanged; re-analyze the body only.
	IRLocal
	// SignatureChange: signature changed; invalidate callers transitively.
	SignatureChange
	// StructuralChange: imports/exports changed; invalidate importers.
	StructuralChange
)

func (i Impact) String() string {
	switch i {
	case NoImpact:
		return "NO_IMPACT"
	case IRLocal:
		return "IR_LOCAL"
	case SignatureChange:
		return "SIGNATURE_CHANGE"
	case StructuralChange:
		return "STRUCTURAL_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// SymbolDelta summarizes how one symbol differs between two builds of the
// same file: the hashes the classifier compares.
type SymbolDelta struct {
	FQN              string
	ASTHashChanged   bool
	SigHashChanged   bool
	ImportsChanged   bool
}

// Classify maps a symbol delta to its impact class.
func Classify(d SymbolDelta) Impact {
	switch {
	case d.ImportsChanged:
		return StructuralChange
	case d.SigHashChanged:
		return SignatureChange
	case d.ASTHashChanged:
		return IRLocal
	default:
		return NoImpact
	}
}

// ClassifyFile folds per-symbol impacts into the file's overall impact (the
// strongest wins).
func ClassifyFile(deltas []SymbolDelta) Impact {
	strongest := NoImpact
	for _, d := range deltas {
		if c := Classify(d); c > strongest {
			strongest = c
		}
	}
	return strongest
}

// Expansion bounds per incremental.mode: how many BFS hops the affected-set
// expansion follows before stopping, and the affected-set size at which the
// controller automatically escalates to the next deeper mode.
type Expansion struct {
	MaxHops            int
	EscalationThreshold int
}

func expansionFor(mode config.IncrementalMode) Expansion {
	switch mode {
	case config.IncrementalFast:
		return Expansion{MaxHops: 1, EscalationThreshold: 32}
	case config.IncrementalDeep:
		return Expansion{MaxHops: -1, EscalationThreshold: 0} // unbounded
	default:
		return Expansion{MaxHops: 3, EscalationThreshold: 256}
	}
}

// AffectedSet expands the change set to the files whose artifacts must be
// rebuilt, honoring per-impact propagation: IR_LOCAL changes affect only
// the file itself; SIGNATURE_CHANGE and STRUCTURAL_CHANGE propagate over
// the reverse dependency graph.
func AffectedSet(cs *types.ChangeSet, impacts map[string]Impact, deps *types.DependencyGraph, mode config.IncrementalMode) map[string]bool {
	exp := expansionFor(mode)

	affected := make(map[string]bool)
	var seeds []string
	for path := range cs.AllChanged() {
		impact, ok := impacts[path]
		if !ok {
			impact = StructuralChange // unknown history: be conservative
		}
		if impact == NoImpact {
			continue
		}
		affected[path] = true
		if impact >= SignatureChange {
			seeds = append(seeds, path)
		}
	}
	for old := range cs.Renamed {
		// The old path's dependents referenced symbols that moved files.
		seeds = append(seeds, old)
	}
	for path := range cs.Deleted {
		seeds = append(seeds, path)
	}

	expanded := bfsBounded(deps, seeds, exp.MaxHops)
	for f := range expanded {
		affected[f] = true
	}
	for path := range cs.Deleted {
		delete(affected, path) // nothing left to rebuild at a deleted path
	}

	if exp.EscalationThreshold > 0 && len(affected) > exp.EscalationThreshold && mode != config.IncrementalDeep {
		next := escalate(mode)
		obslog.Infof("incremental", "affected set %d exceeds %s threshold, escalating to %s",
			len(affected), mode, next)
		return AffectedSet(cs, impacts, deps, next)
	}
	return affected
}

func escalate(mode config.IncrementalMode) config.IncrementalMode {
	if mode == config.IncrementalFast {
		return config.IncrementalBalanced
	}
	return config.IncrementalDeep
}

// bfsBounded is DependencyGraph.BFSImpacted with a hop bound; maxHops < 0
// means unbounded. Seeds themselves are included.
func bfsBounded(deps *types.DependencyGraph, seeds []string, maxHops int) map[string]bool {
	visited := make(map[string]bool, len(seeds))
	type item struct {
		path string
		hop  int
	}
	queue := make([]item, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			queue = append(queue, item{s, 0})
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxHops >= 0 && cur.hop >= maxHops {
			continue
		}
		for dep := range deps.Dependents[cur.path] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, item{dep, cur.hop + 1})
			}
		}
	}
	return visited
}
