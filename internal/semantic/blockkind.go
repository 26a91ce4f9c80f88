// Package semantic is the semantic IR builder: for every function it
// constructs the basic-block flow graph (BFG), the control-flow graph (CFG)
// with its dominator tree, the def-use data-flow graph (DFG), and SSA form
// with phi nodes at dominance frontiers. It runs purely on
// structural IR — no type information is required.
package semantic

import "github.com/standardbeagle/codegraph-core/internal/parser"

// stmtKind classifies one tree-sitter node kind string for the purpose of
// basic-block splitting, independent of the specific grammar. Grounded the
// same way internal/structural/classify.go grounds its construct table: one
// per-language map translating the grammar's own node-kind strings into a
// shared vocabulary.
type stmtKind uint8

const (
	stmtPlain stmtKind = iota
	stmtIf
	stmtLoop
	stmtSwitch
	stmtTry
	stmtReturn
	stmtThrow
	stmtBreak
	stmtContinue
)

// branchTable maps a grammar's statement node-kind string to its stmtKind.
// Only the handful of constructs that affect control flow need an entry;
// anything absent is stmtPlain and stays inside the current block.
var branchTable = map[parser.Language]map[string]stmtKind{
	parser.LangGo: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "switch_statement": stmtSwitch,
		"type_switch_statement": stmtSwitch, "select_statement": stmtSwitch,
		"defer_statement": stmtPlain, "return_statement": stmtReturn,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
	parser.LangPython: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "while_statement": stmtLoop,
		"try_statement": stmtTry, "return_statement": stmtReturn, "raise_statement": stmtThrow,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
	parser.LangJavaScript: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "for_in_statement": stmtLoop,
		"while_statement": stmtLoop, "do_statement": stmtLoop, "switch_statement": stmtSwitch,
		"try_statement": stmtTry, "return_statement": stmtReturn, "throw_statement": stmtThrow,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
	parser.LangTypeScript: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "for_in_statement": stmtLoop,
		"while_statement": stmtLoop, "do_statement": stmtLoop, "switch_statement": stmtSwitch,
		"try_statement": stmtTry, "return_statement": stmtReturn, "throw_statement": stmtThrow,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
	parser.LangJava: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "enhanced_for_statement": stmtLoop,
		"while_statement": stmtLoop, "do_statement": stmtLoop, "switch_expression": stmtSwitch,
		"try_statement": stmtTry, "return_statement": stmtReturn, "throw_statement": stmtThrow,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
	parser.LangRust: {
		"if_expression": stmtIf, "loop_expression": stmtLoop, "for_expression": stmtLoop,
		"while_expression": stmtLoop, "match_expression": stmtSwitch,
		"return_expression": stmtReturn, "break_expression": stmtBreak,
		"continue_expression": stmtContinue,
	},
	parser.LangCPP: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "while_statement": stmtLoop,
		"do_statement": stmtLoop, "switch_statement": stmtSwitch, "try_statement": stmtTry,
		"return_statement": stmtReturn, "throw_statement": stmtThrow,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
	parser.LangCSharp: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "foreach_statement": stmtLoop,
		"while_statement": stmtLoop, "do_statement": stmtLoop, "switch_statement": stmtSwitch,
		"try_statement": stmtTry, "return_statement": stmtReturn, "throw_statement": stmtThrow,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
	parser.LangPHP: {
		"if_statement": stmtIf, "for_statement": stmtLoop, "foreach_statement": stmtLoop,
		"while_statement": stmtLoop, "do_statement": stmtLoop, "switch_statement": stmtSwitch,
		"try_statement": stmtTry, "return_statement": stmtReturn, "throw_statement": stmtThrow,
		"break_statement": stmtBreak, "continue_statement": stmtContinue,
	},
}

func classifyStmt(lang parser.Language, kind string) stmtKind {
	table, ok := branchTable[lang]
	if !ok {
		return stmtPlain
	}
	if k, ok := table[kind]; ok {
		return k
	}
	return stmtPlain
}

// isTerminator reports whether k ends a basic block unconditionally.
func (k stmtKind) isTerminator() bool {
	switch k {
	case stmtIf, stmtLoop, stmtSwitch, stmtTry, stmtReturn, stmtThrow, stmtBreak, stmtContinue:
		return true
	default:
		return false
	}
}
