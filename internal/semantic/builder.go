package semantic

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/codegraph-core/internal/parser"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Builder constructs the per-function SemanticIR (BFG/CFG/DFG/SSA). It
// runs against the same parse tree the structural builder walked, before
// that tree is closed, so the pipeline must call this stage while the
// tree-sitter.Tree is still open (see internal/pipeline).
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// bodyFieldByLang names the field tree-sitter grammars use for a function's
// body block, since it isn't uniformly "body" everywhere.
var bodyFieldByLang = map[parser.Language]string{
	parser.LangGo:         "body",
	parser.LangPython:     "body",
	parser.LangJavaScript: "body",
	parser.LangTypeScript: "body",
	parser.LangJava:       "body",
	parser.LangRust:       "body",
	parser.LangCPP:        "body",
	parser.LangCSharp:     "body",
	parser.LangPHP:        "body",
}

// functionBody locates fnNode's body block, or nil if the grammar exposes
// none (e.g. an interface method signature with no body).
func functionBody(lang parser.Language, fnNode *tree_sitter.Node) *tree_sitter.Node {
	field, ok := bodyFieldByLang[lang]
	if !ok {
		field = "body"
	}
	return fnNode.ChildByFieldName(field)
}

// Build constructs the SemanticIR for one function. path is the source
// file's path (spans carry it); functionNode is the function's id in the
// structural IR; fnSyntax is the tree-sitter node for that same function.
func (b *Builder) Build(lang parser.Language, path string, content []byte, functionNode types.NodeID, fnSyntax *tree_sitter.Node) *types.SemanticIR {
	body := functionBody(lang, fnSyntax)
	bfg, cfg := BuildBFGAndCFG(lang, path, content, body)

	defs, uses := collectDefsUses(lang, path, content, cfg, body)
	dfg := BuildDFG(cfg, defs, uses)

	irreducible := hasIrreducibleBackEdge(cfg)
	ssa := BuildSSA(cfg, dfg, irreducible)

	return &types.SemanticIR{FunctionNode: functionNode, BFG: bfg, CFG: cfg, DFG: dfg, SSA: ssa}
}

// hasIrreducibleBackEdge is a cheap structural signal for irreducible
// control flow: a CFG_LOOP edge whose
// target does not dominate its source indicates a back-edge into a region
// entered multiple ways (the dominator computation still converges via the
// iterative fallback; this just flags the SSA result as built that way).
func hasIrreducibleBackEdge(cfg types.CFG) bool {
	for _, e := range cfg.Edges {
		if e.Kind == types.EdgeCFGLoop && !cfg.Dominates(e.To, e.From) {
			return true
		}
	}
	return false
}

// identifierKind lists the tree-sitter node kind used for a bare identifier
// reference in each grammar, used to harvest variable reads/writes inside a
// basic block's statement spans without a full per-language expression
// grammar.
var identifierKind = map[parser.Language]string{
	parser.LangGo:         "identifier",
	parser.LangPython:     "identifier",
	parser.LangJavaScript: "identifier",
	parser.LangTypeScript: "identifier",
	parser.LangJava:       "identifier",
	parser.LangRust:       "identifier",
	parser.LangCPP:        "identifier",
	parser.LangCSharp:     "identifier",
	parser.LangPHP:        "variable_name",
}

// assignmentKind lists the node kinds that introduce a definition (write) as
// opposed to a plain reference (read), per grammar.
var assignmentKind = map[parser.Language]map[string]bool{
	parser.LangGo:         {"short_var_declaration": true, "assignment_statement": true, "var_spec": true},
	parser.LangPython:     {"assignment": true},
	parser.LangJavaScript: {"variable_declarator": true, "assignment_expression": true},
	parser.LangTypeScript: {"variable_declarator": true, "assignment_expression": true},
	parser.LangJava:       {"variable_declarator": true, "assignment_expression": true},
	parser.LangRust:       {"let_declaration": true, "assignment_expression": true},
	parser.LangCPP:        {"init_declarator": true, "assignment_expression": true},
	parser.LangCSharp:     {"variable_declarator": true, "assignment_expression": true},
	parser.LangPHP:        {"assignment_expression": true},
}

// collectDefsUses walks the same AST region the CFG was built over and
// buckets every identifier occurrence into the block whose span contains it
//.
func collectDefsUses(lang parser.Language, path string, content []byte, cfg types.CFG, body *tree_sitter.Node) ([]types.VarDef, []types.VarUse) {
	var defs []types.VarDef
	var uses []types.VarUse
	if body == nil {
		return defs, uses
	}
	idKind := identifierKind[lang]
	asnKinds := assignmentKind[lang]

	text := func(n *tree_sitter.Node) string {
		return string(content[n.StartByte():n.EndByte()])
	}

	var walk func(n *tree_sitter.Node, inAssignmentTarget bool)
	walk = func(n *tree_sitter.Node, inAssignmentTarget bool) {
		if n == nil {
			return
		}
		kind := n.Kind()
		isAssignment := asnKinds[kind]

		if kind == idKind {
			span := spanOf(path, n)
			blk := blockContaining(cfg, span)
			name := text(n)
			if inAssignmentTarget {
				defs = append(defs, types.VarDef{Var: name, Block: blk, Span: span})
			} else {
				uses = append(uses, types.VarUse{Var: name, Block: blk, Span: span})
			}
			return
		}

		count := n.ChildCount()
		target := n.ChildByFieldName("left")
		if target == nil {
			target = n.ChildByFieldName("name")
		}
		for i := uint(0); i < count; i++ {
			c := n.Child(i)
			childIsTarget := isAssignment && c == target
			walk(c, inAssignmentTarget || childIsTarget)
		}
	}
	walk(body, false)
	return defs, uses
}

// blockContaining finds the basic block whose recorded statement spans
// contain pos; falls back to the entry block when no block's span matches
// (e.g. an expression nested inside a header statement already attributed
// to its block as a whole).
func blockContaining(cfg types.CFG, pos types.Span) types.BlockID {
	for _, blk := range cfg.Blocks {
		for _, s := range blk.StmtSpans {
			if s.Contains(pos) {
				return blk.ID
			}
		}
	}
	return cfg.Entry
}
