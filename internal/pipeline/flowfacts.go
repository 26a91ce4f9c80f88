package pipeline

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/codegraph-core/internal/heap"
	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/parser"
	"github.com/standardbeagle/codegraph-core/internal/structural"
	"github.com/standardbeagle/codegraph-core/internal/taint"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// FunctionFacts is the cacheable, rule-independent record of one function's
// value flow: copies, calls, returns, plus the heap constraints and escape
// events harvested alongside. Taint rule bindings are re-derived from the
// catalog at analysis time so a catalog change never reads stale bindings
// out of the cache.
type FunctionFacts struct {
	Function   types.NodeID      `json:"function"`
	FQN        string            `json:"fqn"`
	Params     []string          `json:"params"`
	ReturnVars []string          `json:"return_vars"`
	Copies     []taint.FlowEdge  `json:"copies"`
	Calls      []taint.CallEdge  `json:"calls"`
	Escape     []heap.EscapeEvent `json:"escape"`
	Constraints []heap.Constraint `json:"constraints"`
	BodyHash   string            `json:"body_hash"`
	SigHash    string            `json:"sig_hash"`
}

// FileFacts aggregates a file's per-function facts plus the file-level
// hashes the incremental controller classifies impact with.
type FileFacts struct {
	File        string          `json:"file"`
	Functions   []FunctionFacts `json:"functions"`
	ImportsHash string          `json:"imports_hash"`
}

// allocKinds names the grammar node kinds treated as allocation sites per
// language (dict/list/object literals, constructor calls are covered by the
// call path).
var allocKinds = map[parser.Language]map[string]bool{
	parser.LangPython:     {"dictionary": true, "list": true, "set": true},
	parser.LangJavaScript: {"object": true, "array": true, "new_expression": true},
	parser.LangTypeScript: {"object": true, "array": true, "new_expression": true},
	parser.LangGo:         {"composite_literal": true},
	parser.LangJava:       {"object_creation_expression": true, "array_creation_expression": true},
	parser.LangRust:       {"struct_expression": true, "array_expression": true},
	parser.LangCPP:        {"new_expression": true, "initializer_list": true},
	parser.LangCSharp:     {"object_creation_expression": true},
	parser.LangPHP:        {"object_creation_expression": true, "array_creation_expression": true},
}

// Return statements are "return_statement" in every wired grammar except
// Rust, whose grammar names them "return_expression".
const (
	returnKind     = "return_statement"
	rustReturnKind = "return_expression"
)

// factExtractor walks one function body collecting flow facts.
type factExtractor struct {
	lang    parser.Language
	path    string
	content []byte
	facts   *FunctionFacts
}

// ExtractFileFacts walks every function in res's tree and harvests its
// facts. doc supplies the node IDs the facts attach to (matched by span).
func ExtractFileFacts(res *parser.Result, doc *types.IRDocument) *FileFacts {
	ff := &FileFacts{File: res.Path}
	if res.Tree == nil {
		return ff
	}

	fnBySpan := make(map[string]types.Node)
	var importTexts []string
	for _, n := range doc.Nodes {
		switch n.Kind {
		case types.NodeFunction, types.NodeMethod:
			fnBySpan[spanKey(n.Span)] = n
		case types.NodeImport:
			importTexts = append(importTexts, n.Name)
		}
	}
	ff.ImportsHash = idcodec.ContentHash([]byte(strings.Join(importTexts, "\n")))

	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if structural.IsFunctionKind(res.Language, n.Kind()) {
			span := nodeSpan(res.Path, n)
			if fnNode, ok := fnBySpan[spanKey(span)]; ok {
				facts := extractFunction(res, fnNode, n)
				ff.Functions = append(ff.Functions, *facts)
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(res.Tree.RootNode())
	return ff
}

func extractFunction(res *parser.Result, fnNode types.Node, fnSyntax *tree_sitter.Node) *FunctionFacts {
	e := &factExtractor{
		lang:    res.Language,
		path:    res.Path,
		content: res.Content,
		facts:   &FunctionFacts{Function: fnNode.ID, FQN: fnNode.FQN},
	}

	if params := fnSyntax.ChildByFieldName("parameters"); params != nil {
		e.collectParams(params)
	}
	body := fnSyntax.ChildByFieldName("body")
	if body != nil {
		e.facts.BodyHash = idcodec.ContentHash(e.content[body.StartByte():body.EndByte()])
		e.walkBody(body)
	}
	// The signature is everything before the body: name + parameter list.
	sigEnd := fnSyntax.EndByte()
	if body != nil {
		sigEnd = body.StartByte()
	}
	e.facts.SigHash = idcodec.ContentHash(e.content[fnSyntax.StartByte():sigEnd])
	return e.facts
}

func (e *factExtractor) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(e.content[n.StartByte():n.EndByte()])
}

func (e *factExtractor) occAt(n *tree_sitter.Node) types.Occurrence {
	return types.Occurrence{File: e.path, Span: nodeSpan(e.path, n), Role: types.RoleReference}
}

func (e *factExtractor) collectParams(params *tree_sitter.Node) {
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if n.Kind() == "identifier" || n.Kind() == "variable_name" {
			name := e.text(n)
			if name != "self" && name != "this" {
				e.facts.Params = append(e.facts.Params, name)
			}
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(params)
}

// walkBody harvests assignments, calls and returns. Nested function
// definitions are skipped — they get their own FunctionFacts from the outer
// ExtractFileFacts walk.
func (e *factExtractor) walkBody(n *tree_sitter.Node) {
	if n == nil {
		return
	}
	kind := n.Kind()

	if structural.IsFunctionKind(e.lang, kind) {
		return
	}

	switch {
	case isAssignment(e.lang, kind):
		e.handleAssignment(n)
		return
	case structural.IsCallKind(e.lang, kind):
		e.handleCall(n, "")
		return
	case kind == returnKind || kind == rustReturnKind:
		e.handleReturn(n)
		return
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkBody(n.Child(i))
	}
}

var assignmentKinds = map[parser.Language]map[string]bool{
	parser.LangGo:         {"short_var_declaration": true, "assignment_statement": true},
	parser.LangPython:     {"assignment": true, "augmented_assignment": true},
	parser.LangJavaScript: {"variable_declarator": true, "assignment_expression": true},
	parser.LangTypeScript: {"variable_declarator": true, "assignment_expression": true},
	parser.LangJava:       {"variable_declarator": true, "assignment_expression": true},
	parser.LangRust:       {"let_declaration": true, "assignment_expression": true},
	parser.LangCPP:        {"init_declarator": true, "assignment_expression": true},
	parser.LangCSharp:     {"variable_declarator": true, "assignment_expression": true},
	parser.LangPHP:        {"assignment_expression": true},
}

func isAssignment(lang parser.Language, kind string) bool {
	return assignmentKinds[lang][kind]
}

func (e *factExtractor) handleAssignment(n *tree_sitter.Node) {
	lhs := n.ChildByFieldName("left")
	if lhs == nil {
		lhs = n.ChildByFieldName("name")
	}
	rhs := n.ChildByFieldName("right")
	if rhs == nil {
		rhs = n.ChildByFieldName("value")
	}
	if lhs == nil || rhs == nil {
		return
	}

	lhsText := e.text(lhs)
	target := lastIdentifier(lhsText)

	// A store through a field (`a.b = x`) escapes x to the heap.
	if strings.ContainsRune(lhsText, '.') {
		if src := e.rhsIdentifier(rhs); src != "" {
			e.facts.Escape = append(e.facts.Escape, heap.EscapeEvent{Var: src, Reaches: types.FieldEscape})
			base, field := splitAccessPath(lhsText)
			e.facts.Constraints = append(e.facts.Constraints, heap.Constraint{
				Kind: heap.ConstraintFieldStore, Dst: base, Field: field, Src: src,
			})
		}
		return
	}

	switch {
	case structural.IsCallKind(e.lang, rhs.Kind()):
		e.handleCall(rhs, target)
	case isSubscript(e.lang, rhs.Kind()):
		e.handleSubscript(rhs, target)
	case literalKinds[e.lang][rhs.Kind()] != "":
		e.handleLiteral(rhs, target)
	case allocKinds[e.lang][rhs.Kind()]:
		e.facts.Constraints = append(e.facts.Constraints, heap.Constraint{
			Kind:  heap.ConstraintAddrOf,
			Dst:   target,
			Alloc: allocSiteID(e.path, rhs),
		})
	case strings.ContainsRune(e.text(rhs), '.') && rhs.Kind() == attributeKind(e.lang):
		base, field := splitAccessPath(e.text(rhs))
		e.facts.Constraints = append(e.facts.Constraints, heap.Constraint{
			Kind: heap.ConstraintFieldLoad, Dst: target, Src: base, Field: field,
		})
		e.facts.Copies = append(e.facts.Copies, taint.FlowEdge{From: e.text(rhs), To: target, Occ: e.occAt(n)})
		e.handleDeref(rhs)
	default:
		// Every identifier on the RHS flows into the target — binary
		// concatenation, ternaries, plain copies all reduce to this.
		for _, src := range e.identifiersIn(rhs) {
			e.facts.Copies = append(e.facts.Copies, taint.FlowEdge{From: src, To: target, Occ: e.occAt(n)})
			e.facts.Constraints = append(e.facts.Constraints, heap.Constraint{
				Kind: heap.ConstraintCopy, Dst: target, Src: src,
			})
		}
		// Subscript/call expressions nested inside the RHS still bind
		// their results through a synthetic intermediate.
		e.walkNestedAccess(rhs, target)
	}
}

// walkNestedAccess finds subscript, call and literal expressions nested
// inside a larger RHS expression (`"x" + req.GET["id"]`) and binds their
// results to the assignment target so taint introduced by a nested source
// reaches it.
func (e *factExtractor) walkNestedAccess(n *tree_sitter.Node, target string) {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch {
		case isSubscript(e.lang, c.Kind()):
			e.handleSubscript(c, target)
		case structural.IsCallKind(e.lang, c.Kind()):
			e.handleCall(c, target)
		case literalKinds[e.lang][c.Kind()] != "":
			e.handleLiteral(c, target)
		default:
			e.walkNestedAccess(c, target)
		}
	}
}

// literalKinds maps the grammar node kind of a taint-relevant literal to
// the name its pseudo-FQN uses: assigning one binds the target through a
// synthetic call to "literal.<name>", so a catalog source rule on e.g.
// `literal.None` can introduce a label at the assignment site.
var literalKinds = map[parser.Language]map[string]string{
	parser.LangPython:     {"none": "None"},
	parser.LangJavaScript: {"null": "null", "undefined": "undefined"},
	parser.LangTypeScript: {"null": "null", "undefined": "undefined"},
	parser.LangGo:         {"nil": "nil"},
	parser.LangJava:       {"null_literal": "null"},
	parser.LangCSharp:     {"null_literal": "null"},
	parser.LangPHP:        {"null": "null"},
	parser.LangCPP:        {"null": "nullptr"},
}

// handleLiteral models `x = None` as a call to the pseudo-FQN
// "literal.None" whose result binds x. Rule matching stays entirely in the
// catalog: no literal is special-cased by the engine itself.
func (e *factExtractor) handleLiteral(n *tree_sitter.Node, resultVar string) {
	if resultVar == "" {
		return
	}
	name := literalKinds[e.lang][n.Kind()]
	e.facts.Calls = append(e.facts.Calls, taint.CallEdge{
		Occ:       e.occAt(n),
		CalleeFQN: "literal." + name,
		ResultVar: resultVar,
	})
}

// handleDeref models an attribute read (`x.value`) as a call to the
// pseudo-FQN "object.__getattr__" with the base variable as first
// argument, so a sink rule on `object.__getattr__` flags dereferences of a
// labeled base (e.g. a None-assigned variable).
func (e *factExtractor) handleDeref(attr *tree_sitter.Node) {
	base := e.derefBase(attr)
	if base == "" || strings.ContainsRune(base, '.') {
		return
	}
	e.facts.Calls = append(e.facts.Calls, taint.CallEdge{
		Occ:       e.occAt(attr),
		CalleeFQN: "object.__getattr__",
		BaseType:  base,
		ArgVars:   []string{base},
	})
}

func (e *factExtractor) handleCall(n *tree_sitter.Node, resultVar string) {
	fnPart := n.ChildByFieldName("function")
	if fnPart == nil {
		fnPart = n.ChildByFieldName("name")
	}
	if fnPart == nil {
		return
	}
	fqn := e.text(fnPart)

	var argVars []string
	if args := n.ChildByFieldName("arguments"); args != nil {
		for i := uint(0); i < args.ChildCount(); i++ {
			arg := args.Child(i)
			if arg == nil || !arg.IsNamed() {
				continue
			}
			argVars = append(argVars, firstIdentifierIn(e, arg))
		}
	}

	baseType := ""
	if i := strings.LastIndexByte(fqn, '.'); i > 0 {
		baseType = fqn[:i]
	}

	e.facts.Calls = append(e.facts.Calls, taint.CallEdge{
		Occ:       e.occAt(n),
		CalleeFQN: fqn,
		BaseType:  baseType,
		ArgVars:   argVars,
		ResultVar: resultVar,
	})
	// Passing a variable to a call lets it escape at least as far as the
	// callee's frame.
	for _, a := range argVars {
		if a != "" {
			e.facts.Escape = append(e.facts.Escape, heap.EscapeEvent{Var: a, Reaches: types.ArgEscape})
		}
	}
}

// handleSubscript models `x[i]` as a call to `x.__getitem__`, the form
// taint catalogs use for index-read sources (e.g. `req.GET.__getitem__`).
func (e *factExtractor) handleSubscript(n *tree_sitter.Node, resultVar string) {
	value := n.ChildByFieldName("value")
	if value == nil {
		value = n.ChildByFieldName("object")
	}
	if value == nil {
		return
	}
	base := e.text(value)
	e.facts.Calls = append(e.facts.Calls, taint.CallEdge{
		Occ:       e.occAt(n),
		CalleeFQN: base + ".__getitem__",
		BaseType:  base,
		ResultVar: resultVar,
	})
}

func (e *factExtractor) handleReturn(n *tree_sitter.Node) {
	// Attribute reads inside the return expression are dereferences of
	// their base variable; the base (not the attribute name) is what the
	// function hands back for summary purposes.
	var walk func(c *tree_sitter.Node)
	walk = func(c *tree_sitter.Node) {
		if c == nil {
			return
		}
		if c.Kind() == attributeKind(e.lang) {
			e.handleDeref(c)
			if base := e.derefBase(c); base != "" {
				e.recordReturnVar(base)
			}
			return
		}
		if c.Kind() == "identifier" || c.Kind() == "variable_name" {
			e.recordReturnVar(e.text(c))
			return
		}
		for i := uint(0); i < c.ChildCount(); i++ {
			walk(c.Child(i))
		}
	}
	walk(n)
}

func (e *factExtractor) recordReturnVar(v string) {
	e.facts.ReturnVars = append(e.facts.ReturnVars, v)
	e.facts.Escape = append(e.facts.Escape, heap.EscapeEvent{Var: v, Reaches: types.ReturnEscape})
}

func (e *factExtractor) derefBase(attr *tree_sitter.Node) string {
	if v := attr.ChildByFieldName("object"); v != nil {
		return e.text(v)
	}
	if v := attr.ChildByFieldName("value"); v != nil {
		return e.text(v)
	}
	return ""
}

func (e *factExtractor) rhsIdentifier(rhs *tree_sitter.Node) string {
	ids := e.identifiersIn(rhs)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func (e *factExtractor) identifiersIn(n *tree_sitter.Node) []string {
	var out []string
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if n.Kind() == "identifier" || n.Kind() == "variable_name" {
			out = append(out, e.text(n))
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return out
}

func firstIdentifierIn(e *factExtractor, n *tree_sitter.Node) string {
	ids := e.identifiersIn(n)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func isSubscript(lang parser.Language, kind string) bool {
	switch lang {
	case parser.LangPython:
		return kind == "subscript"
	case parser.LangJavaScript, parser.LangTypeScript:
		return kind == "subscript_expression"
	case parser.LangGo:
		return kind == "index_expression"
	default:
		return strings.Contains(kind, "subscript") || strings.Contains(kind, "element_access")
	}
}

func attributeKind(lang parser.Language) string {
	switch lang {
	case parser.LangPython:
		return "attribute"
	case parser.LangGo, parser.LangRust:
		return "field_expression"
	default:
		return "member_expression"
	}
}

func lastIdentifier(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func splitAccessPath(s string) (base, field string) {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func allocSiteID(path string, n *tree_sitter.Node) types.AllocSiteID {
	start := n.StartPosition()
	return types.AllocSiteID(idcodec.NewNodeID("", "alloc:"+path, int(start.Row)+1, int(start.Column)+1))
}

func spanKey(s types.Span) string {
	return s.String()
}

func nodeSpan(path string, n *tree_sitter.Node) types.Span {
	start, end := n.StartPosition(), n.EndPosition()
	return types.Span{
		File:      path,
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}
