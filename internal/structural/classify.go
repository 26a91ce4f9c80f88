// Package structural is the structural IR builder: a single-pass visitor
// over a parsed AST that emits nodes, edges and occurrences into an
// IRDocument. It is pure — build(file) has no side effects beyond
// allocating the returned document — and never panics: a malformed subtree
// yields a best-effort node tagged attrs["degraded"]=true instead.
package structural

import "github.com/standardbeagle/codegraph-core/internal/parser"

// construct classifies one tree-sitter node kind string into the
// structural role it plays, independent of language. Node type names are
// not unique across grammars (e.g. "class_declaration" appears in several),
// so this table is keyed by (language, kind) rather than kind alone.
type construct uint8

const (
	constructNone construct = iota
	constructImport
	constructClass
	constructInterface
	constructEnum
	constructStruct
	constructFunction
	constructMethod
	constructConstructor
	constructVariable
	constructCall
	constructBlock
)

// nodeTable maps a grammar's node-kind string to the construct it
// represents, trimmed to the constructs that become nodes or edges.
var nodeTable = map[parser.Language]map[string]construct{
	parser.LangGo: {
		"import_spec":          constructImport,
		"type_declaration":     constructStruct,
		"function_declaration": constructFunction,
		"method_declaration":   constructMethod,
		"var_declaration":      constructVariable,
		"const_declaration":    constructVariable,
		"short_var_declaration": constructVariable,
		"call_expression":      constructCall,
		"block":                constructBlock,
	},
	parser.LangPython: {
		"import_statement":      constructImport,
		"import_from_statement": constructImport,
		"class_definition":      constructClass,
		"function_definition":   constructFunction,
		"assignment":            constructVariable,
		"call":                  constructCall,
		"block":                 constructBlock,
	},
	parser.LangJavaScript: {
		"import_statement":     constructImport,
		"class_declaration":    constructClass,
		"function_declaration": constructFunction,
		"method_definition":    constructMethod,
		"variable_declarator":  constructVariable,
		"call_expression":      constructCall,
		"statement_block":      constructBlock,
	},
	parser.LangTypeScript: {
		"import_statement":     constructImport,
		"class_declaration":    constructClass,
		"interface_declaration": constructInterface,
		"function_declaration": constructFunction,
		"method_definition":    constructMethod,
		"variable_declarator":  constructVariable,
		"call_expression":      constructCall,
		"statement_block":      constructBlock,
	},
	parser.LangJava: {
		"import_declaration":    constructImport,
		"class_declaration":     constructClass,
		"interface_declaration": constructInterface,
		"enum_declaration":      constructEnum,
		"method_declaration":    constructMethod,
		"constructor_declaration": constructConstructor,
		"local_variable_declaration": constructVariable,
		"field_declaration":     constructVariable,
		"method_invocation":     constructCall,
		"block":                 constructBlock,
	},
	parser.LangRust: {
		"use_declaration":  constructImport,
		"struct_item":      constructStruct,
		"trait_item":       constructInterface,
		"enum_item":        constructEnum,
		"function_item":    constructFunction,
		"let_declaration":  constructVariable,
		"call_expression":  constructCall,
		"block":            constructBlock,
	},
	parser.LangCPP: {
		"preproc_include":    constructImport,
		"class_specifier":    constructClass,
		"struct_specifier":   constructStruct,
		"function_definition": constructFunction,
		"declaration":        constructVariable,
		"call_expression":    constructCall,
		"compound_statement": constructBlock,
	},
	parser.LangCSharp: {
		"using_directive":        constructImport,
		"class_declaration":      constructClass,
		"interface_declaration":  constructInterface,
		"struct_declaration":     constructStruct,
		"enum_declaration":       constructEnum,
		"method_declaration":     constructMethod,
		"constructor_declaration": constructConstructor,
		"field_declaration":      constructVariable,
		"invocation_expression":  constructCall,
		"block":                  constructBlock,
	},
	parser.LangPHP: {
		"namespace_use_declaration": constructImport,
		"class_declaration":         constructClass,
		"interface_declaration":     constructInterface,
		"trait_declaration":         constructInterface,
		"function_definition":       constructFunction,
		"method_declaration":        constructMethod,
		"function_call_expression":  constructCall,
		"compound_statement":        constructBlock,
	},
}

func classify(lang parser.Language, kind string) construct {
	table, ok := nodeTable[lang]
	if !ok {
		return constructNone
	}
	if c, ok := table[kind]; ok {
		return c
	}
	return constructNone
}

// isScopeConstruct reports whether a construct pushes a new FQN/scope frame
//.
func isScopeConstruct(c construct) bool {
	switch c {
	case constructClass, constructInterface, constructEnum, constructStruct,
		constructFunction, constructMethod, constructConstructor:
		return true
	default:
		return false
	}
}

// IsFunctionKind reports whether a grammar node kind is a function or
// method definition in lang — the granularity the semantic builder and
// taint flow extraction operate at.
func IsFunctionKind(lang parser.Language, kind string) bool {
	switch classify(lang, kind) {
	case constructFunction, constructMethod, constructConstructor:
		return true
	default:
		return false
	}
}

// IsCallKind reports whether a grammar node kind is a call expression in
// lang.
func IsCallKind(lang parser.Language, kind string) bool {
	return classify(lang, kind) == constructCall
}
