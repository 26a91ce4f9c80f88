// Package parser is the source registry & parser stage: for each
// (path, content) it produces a tree-sitter AST tagged with a detected
// language, or a degraded result when the language is unsupported or the
// parse failed. Contract: parse is deterministic (same bytes, same tree)
// and never aborts the pipeline — a malformed file still gets a partial
// tree with error nodes, never a panic.
package parser

import (
	"bytes"
	"strings"
)

// Language identifies one of the grammars this registry can parse.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangRust       Language = "rust"
	LangCPP        Language = "cpp"
	LangCSharp     Language = "csharp"
	LangPHP        Language = "php"
	LangZig        Language = "zig"
	LangUnknown    Language = ""
)

// extensionLanguages maps a lowercased file extension to the language it
// implies absent stronger evidence (shebang, content sniff).
var extensionLanguages = map[string]Language{
	".go":   LangGo,
	".py":   LangPython,
	".pyi":  LangPython,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".ts":   LangTypeScript,
	".tsx":  LangTypeScript,
	".java": LangJava,
	".rs":   LangRust,
	".c":    LangCPP,
	".h":    LangCPP,
	".cc":   LangCPP,
	".cpp":  LangCPP,
	".cxx":  LangCPP,
	".hpp":  LangCPP,
	".cs":   LangCSharp,
	".php":  LangPHP,
	".zig":  LangZig,
}

// shebangLanguages maps an interpreter name found on a shebang line to the
// language it implies. Shebang detection overrides the extension.
var shebangLanguages = map[string]Language{
	"python":  LangPython,
	"python3": LangPython,
	"node":    LangJavaScript,
	"nodejs":  LangJavaScript,
}

// DetectLanguage infers the language of a file from its path and content,
// in priority order: shebang first, then extension,
// then content sniffing as a last resort.
func DetectLanguage(path string, content []byte) Language {
	content = stripBOM(content)
	if lang, ok := languageFromShebang(content); ok {
		return lang
	}
	if lang, ok := extensionLanguages[strings.ToLower(extOf(path))]; ok {
		return lang
	}
	return sniffLanguage(content)
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}

// stripBOM removes a UTF-8 or UTF-16 byte-order mark, part of the
// "UTF-8/UTF-16 BOM handled" edge case. UTF-16 content is returned as-is
// past the mark: it is not transcoded, here or in Parse, so sniffing and
// the grammar see the UTF-16 bytes unchanged.
func stripBOM(content []byte) []byte {
	switch {
	case bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}):
		return content[3:]
	case bytes.HasPrefix(content, []byte{0xFF, 0xFE}), bytes.HasPrefix(content, []byte{0xFE, 0xFF}):
		return content[2:]
	default:
		return content
	}
}

// HasUTF16BOM reports whether raw (pre-strip) content begins with a UTF-16
// byte-order mark. Parse and DetectLanguage do not call it.
func HasUTF16BOM(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF})
}

func languageFromShebang(content []byte) (Language, bool) {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return LangUnknown, false
	}
	nl := bytes.IndexByte(content, '\n')
	line := content[2:]
	if nl >= 0 {
		line = content[2:nl]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return LangUnknown, false
	}
	// Handle both `#!/usr/bin/python3` and `#!/usr/bin/env python3`.
	interpreter := fields[len(fields)-1]
	interpreter = interpreter[strings.LastIndexByte(interpreter, '/')+1:]
	lang, ok := shebangLanguages[interpreter]
	return lang, ok
}

// sniffLanguage is the content-sniffing fallback for files
// whose extension and shebang gave no answer (e.g. an extensionless script
// lacking one, or a misnamed source file). It looks for a handful of
// near-unambiguous keyword sequences; anything not matched stays
// LangUnknown and becomes an UnsupportedLanguage result, not a guess.
func sniffLanguage(content []byte) Language {
	switch {
	case bytes.Contains(content, []byte("package ")) && bytes.Contains(content, []byte("func ")):
		return LangGo
	case bytes.Contains(content, []byte("def ")) && bytes.Contains(content, []byte(":")):
		return LangPython
	case bytes.Contains(content, []byte("fn ")) && bytes.Contains(content, []byte("let ")):
		return LangRust
	default:
		return LangUnknown
	}
}
