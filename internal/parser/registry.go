package parser

import (
	"fmt"
	"sync"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/standardbeagle/codegraph-core/internal/errs"
)

// Registry owns one tree-sitter parser per language, lazily constructed on
// first use — grammars are relatively expensive to stand up and most runs
// only ever touch a handful of languages.
type Registry struct {
	mu      sync.Mutex
	parsers map[Language]*tree_sitter.Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[Language]*tree_sitter.Parser)}
}

func languagePointer(lang Language) (*tree_sitter.Language, bool) {
	switch lang {
	case LangGo:
		return tree_sitter.NewLanguage(tree_sitter_go.Language()), true
	case LangPython:
		return tree_sitter.NewLanguage(tree_sitter_python.Language()), true
	case LangJavaScript:
		return tree_sitter.NewLanguage(tree_sitter_javascript.Language()), true
	case LangTypeScript:
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()), true
	case LangJava:
		return tree_sitter.NewLanguage(tree_sitter_java.Language()), true
	case LangRust:
		return tree_sitter.NewLanguage(tree_sitter_rust.Language()), true
	case LangCPP:
		return tree_sitter.NewLanguage(tree_sitter_cpp.Language()), true
	case LangCSharp:
		return tree_sitter.NewLanguage(tree_sitter_csharp.Language()), true
	case LangPHP:
		return tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP()), true
	case LangZig:
		return tree_sitter.NewLanguage(tree_sitter_zig.Language()), true
	default:
		return nil, false
	}
}

// parserFor returns the (lazily constructed) parser for lang, or nil if lang
// has no grammar wired.
func (r *Registry) parserFor(lang Language) *tree_sitter.Parser {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.parsers[lang]; ok {
		return p
	}
	tsLang, ok := languagePointer(lang)
	if !ok {
		r.parsers[lang] = nil
		return nil
	}
	p := tree_sitter.NewParser()
	if err := p.SetLanguage(tsLang); err != nil {
		r.parsers[lang] = nil
		return nil
	}
	r.parsers[lang] = p
	return p
}

// Result is the parse outcome: an AST tagged with its language, or a
// degraded/unsupported marker. This is never an error the caller must
// abort on — a ParseError is carried alongside a best-effort (possibly
// nil) tree.
type Result struct {
	Path      string
	Language  Language
	Tree      *tree_sitter.Tree
	Content   []byte
	Degraded  bool
	Supported bool
	Err       error
}

// Close releases the underlying tree-sitter tree. Safe to call on a nil or
// already-closed Result.
func (r *Result) Close() {
	if r != nil && r.Tree != nil {
		r.Tree.Close()
		r.Tree = nil
	}
}

// Parse implements the registry contract: `parse(SourceFile) -> Result<AST,
// ParseError>`. Same bytes always produce the same tree (tree-sitter parsing
// is pure over its input); a file whose language has no grammar wired comes
// back as an UnsupportedLanguage result rather than an error, and a grammar
// parse failure comes back degraded with the partial tree tree-sitter itself
// already produces (it never fails outright — malformed input yields ERROR
// nodes in place).
func (r *Registry) Parse(path string, content []byte) *Result {
	content = stripBOM(content)
	lang := DetectLanguage(path, content)
	if lang == LangUnknown {
		return &Result{Path: path, Language: LangUnknown, Content: content, Supported: false}
	}

	p := r.parserFor(lang)
	if p == nil {
		return &Result{Path: path, Language: lang, Content: content, Supported: false}
	}

	tree := p.Parse(content, nil)
	if tree == nil {
		return &Result{
			Path: path, Language: lang, Content: content, Supported: true, Degraded: true,
			Err: errs.NewParseError(path, fmt.Errorf("tree-sitter returned no tree")),
		}
	}

	res := &Result{Path: path, Language: lang, Tree: tree, Content: content, Supported: true}
	if tree.RootNode().HasError() {
		res.Degraded = true
		res.Err = errs.NewParseError(path, fmt.Errorf("syntax errors in %s source", lang))
	}
	return res
}
