package structural

import (
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/parser"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Builder turns one parse Result into an IRDocument:
// `build(file) -> IRDocument`, pure, single pass, never panics.
type Builder struct {
	RepoID string
}

func NewBuilder(repoID string) *Builder {
	return &Builder{RepoID: repoID}
}

// scopeFrame is one entry of the FQN scope stack: the node that opened the
// scope and the name it contributed.
type scopeFrame struct {
	nodeID types.NodeID
	name   string
}

type visitor struct {
	b        *Builder
	path     string
	lang     parser.Language
	content  []byte
	scopes   []scopeFrame
	doc      *types.IRDocument
	anonSeq  int
	// fileNode is the root File node every CONTAINS edge ultimately traces
	// back to.
	fileNode types.NodeID
}

// Build walks res's AST (if any) and emits an IRDocument. A nil or
// unsupported-language tree still returns a valid, mostly-empty document —
// the file is registered, just without structural facts.
func (b *Builder) Build(repoSnapshot types.RepoSnapshot, res *parser.Result) *types.IRDocument {
	doc := &types.IRDocument{
		Snapshot: repoSnapshot,
		File:     res.Path,
	}
	if res.Degraded {
		doc.Degraded = true
		if res.Err != nil {
			doc.Errors = append(doc.Errors, res.Err.Error())
		}
	}

	fileFQN := fileModuleName(res.Path)
	fileSpan := types.Span{File: res.Path}
	fileID := idcodec.NewNodeID(b.RepoID, "file:"+fileFQN, 0, 0)
	doc.Nodes = append(doc.Nodes, types.Node{
		ID: fileID, Kind: types.NodeFile, FQN: fileFQN, Name: filepath.Base(res.Path),
		File: res.Path, Span: fileSpan,
	})

	if res.Tree == nil || res.Tree.RootNode() == nil {
		return doc
	}

	v := &visitor{
		b: b, path: res.Path, lang: res.Language, content: res.Content,
		doc: doc, fileNode: fileID,
		scopes: []scopeFrame{{nodeID: fileID, name: fileFQN}},
	}
	v.visit(res.Tree.RootNode())

	// A degraded JavaScript tree gets a second chance through go-fAST,
	// whose error recovery differs from tree-sitter's.
	if doc.Degraded && res.Language == parser.LangJavaScript {
		b.supplementJavaScript(doc, res.Path, res.Content, fileID)
	}

	doc.Normalize()
	return doc
}

// fileModuleName derives the module-level FQN root for a file: its base
// name without extension. Package declarations (Go, Java) are not read, so
// this is the root for every language.
func fileModuleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (v *visitor) currentScope() scopeFrame {
	return v.scopes[len(v.scopes)-1]
}

func (v *visitor) fqn(name string) string {
	parts := make([]string, 0, len(v.scopes)+1)
	for _, s := range v.scopes {
		if s.name != "" {
			parts = append(parts, s.name)
		}
	}
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

func (v *visitor) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(v.content[n.StartByte():n.EndByte()])
}

func (v *visitor) spanOf(n *tree_sitter.Node) types.Span {
	start, end := n.StartPosition(), n.EndPosition()
	return types.Span{
		File:      v.path,
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

// nameOf extracts a construct's name via the grammar's "name" field, falling
// back to the positional anonymous-scope convention
// (`__closure_L{line}_C{col}`) when the grammar has no name (JS/TS arrow
// functions assigned positionally, anonymous struct literals, etc.).
func (v *visitor) nameOf(n *tree_sitter.Node) string {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		return v.text(nameNode)
	}
	start := n.StartPosition()
	v.anonSeq++
	return fmt.Sprintf("__closure_L%d_C%d", start.Row+1, start.Column+1)
}

func (v *visitor) addNode(n types.Node) {
	v.doc.Nodes = append(v.doc.Nodes, n)
	parent := v.currentScope().nodeID
	n.ParentID = &parent
	v.doc.Nodes[len(v.doc.Nodes)-1] = n
	v.doc.Edges = append(v.doc.Edges, types.Edge{FromID: parent, ToID: n.ID, Kind: types.EdgeContains})
}

// visit is the single-pass recursive walk: classify, emit, optionally push
// a scope frame, recurse into children, then pop. Any tree-sitter-flagged
// error subtree still gets a best-effort node tagged degraded, never a
// panic or early return.
func (v *visitor) visit(n *tree_sitter.Node) {
	if n == nil {
		return
	}
	kind := n.Kind()
	degraded := n.IsError() || n.IsMissing()

	c := classify(v.lang, kind)
	var pushed bool

	switch c {
	case constructImport:
		v.emitImport(n, degraded)
	case constructCall:
		v.emitCall(n, degraded)
	case constructVariable:
		v.emitVariable(n, degraded)
	case constructClass, constructInterface, constructEnum, constructStruct,
		constructFunction, constructMethod, constructConstructor:
		pushed = v.emitScoped(n, c, degraded)
	}

	childCount := n.ChildCount()
	for i := uint(0); i < childCount; i++ {
		v.visit(n.Child(i))
	}

	if pushed {
		v.scopes = v.scopes[:len(v.scopes)-1]
	}
}

func nodeKindFor(c construct) types.NodeKind {
	switch c {
	case constructClass, constructStruct:
		return types.NodeClass
	case constructInterface:
		return types.NodeInterface
	case constructEnum:
		return types.NodeEnum
	case constructFunction:
		return types.NodeFunction
	case constructMethod, constructConstructor:
		return types.NodeMethod
	default:
		return types.NodeFunction
	}
}

func (v *visitor) emitScoped(n *tree_sitter.Node, c construct, degraded bool) bool {
	name := v.nameOf(n)
	fqn := v.fqn(name)
	span := v.spanOf(n)
	id := idcodec.NewNodeID(v.b.RepoID, fqn, span.StartLine, span.StartCol)

	node := types.Node{ID: id, Kind: nodeKindFor(c), FQN: fqn, Name: name, File: v.path, Span: span}
	if degraded {
		node.Attrs = map[string]any{"degraded": true}
	}
	v.addNode(node)
	v.doc.Occurrences = append(v.doc.Occurrences, types.Occurrence{File: v.path, Span: span, SymbolID: id, Role: types.RoleDefinition})

	v.scopes = append(v.scopes, scopeFrame{nodeID: id, name: name})
	return true
}

// importTarget extracts a resolvable target from an import construct:
// grammars with a module_name/source/path field (Python from-imports, ES
// modules, Go import specs) yield "module.name" or the module path alone;
// anything else falls back to the statement text.
func (v *visitor) importTarget(n *tree_sitter.Node) string {
	var module string
	for _, field := range []string{"module_name", "source", "path"} {
		if c := n.ChildByFieldName(field); c != nil {
			module = strings.Trim(v.text(c), `"'`)
			break
		}
	}
	var name string
	if c := n.ChildByFieldName("name"); c != nil {
		name = strings.Trim(v.text(c), `"'`)
	}
	switch {
	case module != "" && name != "":
		return module + "." + name
	case module != "":
		return module
	case name != "":
		return name
	default:
		return strings.Trim(v.text(n), `"'`)
	}
}

func (v *visitor) emitImport(n *tree_sitter.Node, degraded bool) {
	span := v.spanOf(n)
	target := v.importTarget(n)
	fqn := v.fqn("import:" + target)
	id := idcodec.NewNodeID(v.b.RepoID, fqn, span.StartLine, span.StartCol)

	node := types.Node{ID: id, Kind: types.NodeImport, FQN: fqn, Name: target, File: v.path, Span: span}
	if degraded {
		node.Attrs = map[string]any{"degraded": true}
	}
	v.addNode(node)
	// The import target is not resolved here (that's the cross-file
	// resolver's job) — it is registered as an External node so the IMPORTS
	// edge always has a live endpoint until resolution runs.
	extID := idcodec.NewNodeID(v.b.RepoID, "external:"+target, 0, 0)
	v.doc.Nodes = append(v.doc.Nodes, types.Node{ID: extID, Kind: types.NodeExternal, FQN: target, Name: target})
	v.doc.Edges = append(v.doc.Edges, types.Edge{FromID: id, ToID: extID, Kind: types.EdgeImports})
	v.doc.Occurrences = append(v.doc.Occurrences, types.Occurrence{File: v.path, Span: span, SymbolID: id, Role: types.RoleImport})
}

func (v *visitor) emitVariable(n *tree_sitter.Node, degraded bool) {
	name := v.nameOf(n)
	if name == "" {
		return
	}
	span := v.spanOf(n)
	fqn := v.fqn(name)
	id := idcodec.NewNodeID(v.b.RepoID, fqn, span.StartLine, span.StartCol)

	node := types.Node{ID: id, Kind: types.NodeVariable, FQN: fqn, Name: name, File: v.path, Span: span}
	if degraded {
		node.Attrs = map[string]any{"degraded": true}
	}
	v.addNode(node)
	v.doc.Occurrences = append(v.doc.Occurrences, types.Occurrence{File: v.path, Span: span, SymbolID: id, Role: types.RoleWrite})
}

// emitCall records intra-file CALLS when the callee name syntactically
// matches a function/method already defined earlier in this file.
// A callee that doesn't resolve here is left for the cross-file resolver;
// this stage never guesses across files.
func (v *visitor) emitCall(n *tree_sitter.Node, degraded bool) {
	calleeNode := n.ChildByFieldName("function")
	if calleeNode == nil {
		return
	}
	name := v.text(calleeNode)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	for i := len(v.doc.Nodes) - 1; i >= 0; i-- {
		cand := v.doc.Nodes[i]
		if cand.Name == name && (cand.Kind == types.NodeFunction || cand.Kind == types.NodeMethod) {
			span := v.spanOf(n)
			v.doc.Edges = append(v.doc.Edges, types.Edge{FromID: v.currentScope().nodeID, ToID: cand.ID, Kind: types.EdgeCalls})
			v.doc.Occurrences = append(v.doc.Occurrences, types.Occurrence{File: v.path, Span: span, SymbolID: cand.ID, Role: types.RoleReference})
			return
		}
	}
}
