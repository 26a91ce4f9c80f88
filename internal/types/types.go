// Package types defines the process-wide data model shared by every analysis
// stage: spans, node/edge/occurrence kinds, and the aggregate documents that
// carry them between stages.
package types

import "fmt"

// FileID is a dense per-snapshot file identifier assigned by the source
// registry. It is stable only within one in-memory build; cross-run identity
// is carried by content hashes and FQNs, not FileID.
type FileID uint32

// NodeID is a process-stable identifier derived from (repo, file, fqn, span
// start). Two builds of identical content produce the same
// NodeID.
type NodeID uint64

// SymbolID indexes into the per-snapshot symbol table.
type SymbolID uint64

// Span is a half-open (file, start, end) byte-or-point range.
type Span struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Contains reports whether s fully contains o (same file, inclusive bounds).
func (s Span) Contains(o Span) bool {
	if s.File != o.File {
		return false
	}
	if o.StartLine < s.StartLine || (o.StartLine == s.StartLine && o.StartCol < s.StartCol) {
		return false
	}
	if o.EndLine > s.EndLine || (o.EndLine == s.EndLine && o.EndCol > s.EndCol) {
		return false
	}
	return true
}

// NodeKind enumerates the kinds of code entity a node can represent.
type NodeKind uint8

const (
	NodeFile NodeKind = iota
	NodeModule
	NodeClass
	NodeInterface
	NodeEnum
	NodeFunction
	NodeMethod
	NodeField
	NodeVariable
	NodeParameter
	NodeImport
	NodeCall
	NodeLiteral
	NodeExternal
)

func (k NodeKind) String() string {
	switch k {
	case NodeFile:
		return "File"
	case NodeModule:
		return "Module"
	case NodeClass:
		return "Class"
	case NodeInterface:
		return "Interface"
	case NodeEnum:
		return "Enum"
	case NodeFunction:
		return "Function"
	case NodeMethod:
		return "Method"
	case NodeField:
		return "Field"
	case NodeVariable:
		return "Variable"
	case NodeParameter:
		return "Parameter"
	case NodeImport:
		return "Import"
	case NodeCall:
		return "Call"
	case NodeLiteral:
		return "Literal"
	case NodeExternal:
		return "External"
	default:
		return "Unknown"
	}
}

// EdgeKind enumerates every relationship kind, across the structural,
// semantic, points-to and taint graphs.
type EdgeKind uint8

const (
	EdgeContains EdgeKind = iota
	EdgeImports
	EdgeCalls
	EdgeInherits
	EdgeImplements
	EdgeReferencesType
	EdgeReferencesSymbol
	EdgeReads
	EdgeWrites
	EdgeCFGNext
	EdgeCFGBranch
	EdgeCFGLoop
	EdgeCFGHandler
	EdgeDFGDefUse
	EdgePointsTo
	EdgeTaint
)

func (k EdgeKind) String() string {
	names := [...]string{
		"CONTAINS", "IMPORTS", "CALLS", "INHERITS", "IMPLEMENTS",
		"REFERENCES_TYPE", "REFERENCES_SYMBOL", "READS", "WRITES",
		"CFG_NEXT", "CFG_BRANCH", "CFG_LOOP", "CFG_HANDLER",
		"DFG_DEF_USE", "POINTS_TO", "TAINT",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// OccurrenceRole classifies how a symbol is used at an Occurrence.
type OccurrenceRole uint8

const (
	RoleDefinition OccurrenceRole = iota
	RoleReference
	RoleImport
	RoleWrite
	RoleRead
)

// Node is one entity in the code graph. Attrs is an open map so
// language-specific extractors can attach extra facts (e.g. "degraded",
// "ambiguous") without widening the struct.
type Node struct {
	ID       NodeID         `json:"id"`
	Kind     NodeKind       `json:"kind"`
	FQN      string         `json:"fqn"`
	Name     string         `json:"name"`
	File     string         `json:"file"`
	Span     Span           `json:"span"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	ParentID *NodeID        `json:"parent_id,omitempty"`
}

// Degraded reports whether this node was produced from a malformed subtree
//.
func (n Node) Degraded() bool {
	v, ok := n.Attrs["degraded"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Edge connects two nodes. ToID may reference an External node when the
// target could not be resolved within the snapshot.
type Edge struct {
	FromID NodeID         `json:"from_id"`
	ToID   NodeID         `json:"to_id"`
	Kind   EdgeKind       `json:"kind"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Ambiguous reports whether this edge's target was a tie among candidates
//.
func (e Edge) Ambiguous() bool {
	v, ok := e.Attrs["ambiguous"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Less defines the normalized ordering used before edges are written to
// cache, so artifact equality is by value.
func (e Edge) Less(o Edge) bool {
	if e.FromID != o.FromID {
		return e.FromID < o.FromID
	}
	if e.Kind != o.Kind {
		return e.Kind < o.Kind
	}
	return e.ToID < o.ToID
}

// Occurrence is the atom of go-to-definition / find-references.
type Occurrence struct {
	File     string         `json:"file"`
	Span     Span           `json:"span"`
	SymbolID NodeID         `json:"symbol_id"`
	Role     OccurrenceRole `json:"role"`
}
