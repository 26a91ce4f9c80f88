// Package taint is the taint engine: an interprocedural worklist fixpoint
// over a condensed call graph, propagating labels from catalog-declared
// sources to sinks, with sanitizer clearing and per-function summaries.
// Taint is tracked per variable name, with no field paths, and facts are
// not split by calling context: each function has one state for all of
// its call sites.
package taint

import "github.com/standardbeagle/codegraph-core/internal/types"

// RuleCategory is an alias of types.TaintCategory. compileRule maps a
// catalog entry's category string onto it and rejects unknown strings.
type RuleCategory = types.TaintCategory

// Rule is one compiled catalog entry: a matcher keyed by FQN
// with optional base-type specificity, tagged with its category, finding
// label/severity, and CWE.
type Rule struct {
	ID       string
	Language string
	FQN      string
	BaseType string // optional: only matches method calls on this receiver type
	Category RuleCategory
	Label    string // e.g. "SQLInjection", "NullDereference"
	Severity string
	CWE      string
	// ArgIndex is the 0-based argument position a sink/propagator rule
	// inspects; sources and sanitizers ignore it.
	ArgIndex int
}

// Catalog is a loaded, compiled rule set: matchers built once at startup,
// keyed by FQN with an optional base-type filter.
type Catalog struct {
	byFQN map[string][]*Rule
}

// Compile builds a Catalog from raw rules, grouping by exact FQN match first
//.
func Compile(rules []*Rule) *Catalog {
	c := &Catalog{byFQN: make(map[string][]*Rule)}
	for _, r := range rules {
		c.byFQN[r.FQN] = append(c.byFQN[r.FQN], r)
	}
	return c
}

// Match returns every rule whose FQN matches callFQN, narrowed by baseType
// when the rule specifies one.
func (c *Catalog) Match(callFQN, baseType string) []*Rule {
	candidates := c.byFQN[callFQN]
	if len(candidates) == 0 {
		return nil
	}
	out := make([]*Rule, 0, len(candidates))
	for _, r := range candidates {
		if r.BaseType != "" && r.BaseType != baseType {
			continue
		}
		out = append(out, r)
	}
	return out
}
