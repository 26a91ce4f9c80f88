package pipeline

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/codegraph-core/internal/parser"
	"github.com/standardbeagle/codegraph-core/internal/structural"
	"github.com/standardbeagle/codegraph-core/internal/taint"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

type fnSyntax struct {
	id     types.NodeID
	syntax *tree_sitter.Node
}

// functionSyntaxNodes pairs each function/method node in doc with its
// tree-sitter syntax node, matched by span. Used by the semantic builder,
// which needs the live tree.
func functionSyntaxNodes(res *parser.Result, doc *types.IRDocument) []fnSyntax {
	bySpan := make(map[string]types.NodeID)
	for _, n := range doc.Nodes {
		if n.Kind == types.NodeFunction || n.Kind == types.NodeMethod {
			bySpan[spanKey(n.Span)] = n.ID
		}
	}

	var out []fnSyntax
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if structural.IsFunctionKind(res.Language, n.Kind()) {
			if id, ok := bySpan[spanKey(nodeSpan(res.Path, n))]; ok {
				out = append(out, fnSyntax{id: id, syntax: n})
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(res.Tree.RootNode())
	return out
}

// AssembleProgram turns the per-file flow facts into the taint engine's
// whole-program input: rule bindings are matched against the catalog here,
// call targets are resolved through the global symbol index, and the call
// graph is condensed by the engine itself.
func AssembleProgram(facts map[string]*FileFacts, catalog *taint.Catalog, ctx *types.GlobalContext) *taint.Program {
	program := &taint.Program{
		Functions: make(map[types.NodeID]*taint.FlowGraph),
		CallGraph: make(map[types.NodeID][]types.NodeID),
	}
	byName := lastSegmentIndex(ctx)

	for _, ff := range facts {
		for i := range ff.Functions {
			fn := &ff.Functions[i]
			fg := &taint.FlowGraph{
				Function:   fn.Function,
				Params:     fn.Params,
				ReturnVars: fn.ReturnVars,
				Edges:      fn.Copies,
			}

			for _, call := range fn.Calls {
				calleeID, resolved := lookupCallee(ctx, byName, call.CalleeFQN)
				ce := call
				ce.Callee = calleeID
				ce.Unresolved = !resolved
				bindRules(fg, &ce, catalog)
				fg.Calls = append(fg.Calls, ce)
				if resolved {
					program.CallGraph[fn.Function] = append(program.CallGraph[fn.Function], calleeID)
				}
			}

			program.Functions[fn.Function] = fg
			if _, ok := program.CallGraph[fn.Function]; !ok {
				program.CallGraph[fn.Function] = nil
			}
		}
	}
	return program
}

// lastSegmentIndex maps each symbol's final name segment to its node id,
// for resolving unqualified call sites ("foo()" against "mod_a.foo"). An
// ambiguous name (two symbols sharing it) keeps the lexicographically
// smallest FQN's id so resolution stays deterministic across builds.
func lastSegmentIndex(ctx *types.GlobalContext) map[string]types.NodeID {
	if ctx == nil {
		return nil
	}
	winner := make(map[string]string)
	out := make(map[string]types.NodeID)
	for fqn, id := range ctx.SymbolIndex {
		seg := lastIdentifier(fqn)
		if prev, ok := winner[seg]; ok && prev <= fqn {
			continue
		}
		winner[seg] = fqn
		out[seg] = id
	}
	return out
}

// lookupCallee resolves a call-site FQN against the symbol index, trying
// the text as written first and the last name segment as a fallback (an
// imported name called unqualified).
func lookupCallee(ctx *types.GlobalContext, byName map[string]types.NodeID, fqn string) (types.NodeID, bool) {
	if ctx == nil {
		return 0, false
	}
	if id, ok := ctx.SymbolIndex[fqn]; ok {
		return id, true
	}
	if id, ok := byName[lastIdentifier(fqn)]; ok {
		return id, true
	}
	return 0, false
}

// bindRules matches one call site against the catalog and attaches the
// resulting source/sink/sanitizer bindings to the flow graph.
func bindRules(fg *taint.FlowGraph, call *taint.CallEdge, catalog *taint.Catalog) {
	for _, rule := range catalog.Match(call.CalleeFQN, call.BaseType) {
		switch rule.Category {
		case types.TaintSource:
			if call.ResultVar != "" {
				fg.Sources = append(fg.Sources, taint.SourceBinding{
					Var: call.ResultVar, Rule: rule, Occ: call.Occ,
				})
			}
		case types.TaintSink:
			if rule.ArgIndex < len(call.ArgVars) && call.ArgVars[rule.ArgIndex] != "" {
				fg.Sinks = append(fg.Sinks, taint.SinkBinding{
					Var: call.ArgVars[rule.ArgIndex], Rule: rule, Occ: call.Occ,
				})
			}
		case types.TaintSanitizer:
			if call.ResultVar != "" {
				fg.Sanitizers = append(fg.Sanitizers, taint.SanitizerBinding{
					Var: call.ResultVar, Rule: rule, Clears: rule.Label,
				})
			}
		case types.TaintPropagator:
			// Propagators override default call flow: argument taint passes
			// straight through to the result.
			for _, arg := range call.ArgVars {
				if arg != "" && call.ResultVar != "" {
					fg.Edges = append(fg.Edges, taint.FlowEdge{From: arg, To: call.ResultVar, Occ: call.Occ})
				}
			}
		}
	}
}
