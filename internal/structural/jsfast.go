package structural

import (
	"strings"

	"github.com/t14raptor/go-fast/ast"
	gofast "github.com/t14raptor/go-fast/parser"

	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// go-fAST is the fallback JavaScript extractor: when tree-sitter's JS parse
// comes back degraded, the same source is re-parsed with go-fAST and any
// function/class/variable declarations it recovers that the degraded tree
// missed are added to the document. The two parsers fail differently, so a
// file that trips one parser's error recovery often still yields symbols
// through the other. go-fAST does not handle ES6 modules or TypeScript; a
// parse error here just means the degraded tree-sitter result stands.
type jsFallback struct {
	repoID  string
	doc     *types.IRDocument
	path    string
	content string
	module  string
	known   map[string]bool
}

func (b *Builder) supplementJavaScript(doc *types.IRDocument, path string, content []byte, fileID types.NodeID) {
	program, err := gofast.ParseFile(string(content))
	if err != nil {
		obslog.Debugf("structural", "go-fast fallback for %s: %v", path, err)
		return
	}

	f := &jsFallback{
		repoID:  b.RepoID,
		doc:     doc,
		path:    path,
		content: string(content),
		module:  fileModuleName(path),
		known:   make(map[string]bool, len(doc.Nodes)),
	}
	for _, n := range doc.Nodes {
		f.known[n.FQN] = true
	}

	for _, stmt := range program.Body {
		f.visitStmt(stmt.Stmt, f.module, fileID)
	}
}

func (f *jsFallback) visitStmt(stmt ast.Stmt, scope string, parent types.NodeID) {
	if stmt == nil {
		return
	}
	switch s := stmt.(type) {
	case *ast.FunctionDeclaration:
		if s.Function != nil && s.Function.Name != nil {
			id := f.addNode(types.NodeFunction, s.Function.Name.Name, scope, int(s.Function.Function), parent)
			if id != 0 && s.Function.Body != nil {
				inner := scope + "." + s.Function.Name.Name
				for _, bodyStmt := range s.Function.Body.List {
					f.visitStmt(bodyStmt.Stmt, inner, id)
				}
			}
		}

	case *ast.ClassDeclaration:
		if s.Class != nil && s.Class.Name != nil {
			id := f.addNode(types.NodeClass, s.Class.Name.Name, scope, int(s.Class.Class), parent)
			if id != 0 {
				inner := scope + "." + s.Class.Name.Name
				for _, element := range s.Class.Body {
					f.visitClassElement(element.Element, inner, id)
				}
			}
		}

	case *ast.VariableDeclaration:
		for _, decl := range s.List {
			if decl.Target == nil || decl.Target.Target == nil {
				continue
			}
			name := bindingName(decl.Target.Target)
			if name == "" {
				continue
			}
			kind := types.NodeVariable
			if decl.Initializer != nil && decl.Initializer.Expr != nil {
				switch decl.Initializer.Expr.(type) {
				case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral:
					kind = types.NodeFunction
				}
			}
			f.addNode(kind, name, scope, int(s.Idx), parent)
		}

	case *ast.BlockStatement:
		for _, bodyStmt := range s.List {
			f.visitStmt(bodyStmt.Stmt, scope, parent)
		}
	}
}

func (f *jsFallback) visitClassElement(element ast.Element, scope string, parent types.NodeID) {
	if element == nil {
		return
	}
	switch e := element.(type) {
	case *ast.MethodDefinition:
		if e.Key != nil && e.Key.Expr != nil && e.Body != nil {
			if name := keyName(e.Key.Expr); name != "" {
				f.addNode(types.NodeMethod, name, scope, int(e.Idx), parent)
			}
		}
	case *ast.FieldDefinition:
		if e.Key != nil && e.Key.Expr != nil {
			if name := keyName(e.Key.Expr); name != "" {
				f.addNode(types.NodeField, name, scope, int(e.Idx), parent)
			}
		}
	}
}

// addNode registers one recovered symbol, skipping FQNs the degraded
// tree-sitter walk already produced. Returns the new node's id, or 0 when
// skipped.
func (f *jsFallback) addNode(kind types.NodeKind, name, scope string, idx int, parent types.NodeID) types.NodeID {
	fqn := scope + "." + name
	if f.known[fqn] {
		return 0
	}
	f.known[fqn] = true

	line, col := f.positionOf(idx)
	span := types.Span{File: f.path, StartLine: line, StartCol: col, EndLine: line, EndCol: col}
	id := idcodec.NewNodeID(f.repoID, fqn, line, col)

	node := types.Node{ID: id, Kind: kind, FQN: fqn, Name: name, File: f.path, Span: span}
	node.ParentID = &parent
	f.doc.Nodes = append(f.doc.Nodes, node)
	f.doc.Edges = append(f.doc.Edges, types.Edge{FromID: parent, ToID: id, Kind: types.EdgeContains})
	f.doc.Occurrences = append(f.doc.Occurrences, types.Occurrence{
		File: f.path, Span: span, SymbolID: id, Role: types.RoleDefinition,
	})
	return id
}

// positionOf turns go-fAST's byte index into a 1-based (line, column).
func (f *jsFallback) positionOf(idx int) (int, int) {
	if idx > len(f.content) {
		idx = len(f.content)
	}
	if idx < 0 {
		idx = 0
	}
	prefix := f.content[:idx]
	line := strings.Count(prefix, "\n") + 1
	col := idx - strings.LastIndexByte(prefix, '\n')
	return line, col
}

func bindingName(target ast.Target) string {
	if ident, ok := target.(*ast.Identifier); ok {
		return ident.Name
	}
	return ""
}

func keyName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name
	case *ast.PrivateIdentifier:
		if e.Identifier != nil {
			return "#" + e.Identifier.Name
		}
	case *ast.StringLiteral:
		return e.Value
	}
	return ""
}
