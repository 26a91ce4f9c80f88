// Package ports declares the abstract storage and language-server
// interfaces the core depends on. The core emits well-typed
// artifacts through these ports and never persists to remote databases
// itself; concrete backends (Qdrant, Tantivy, PostgreSQL FTS, Pyright,
// gopls, ...) live outside this module and plug in here.
package ports

import (
	"context"

	"github.com/standardbeagle/codegraph-core/internal/types"
)

// IRStore persists IRDocuments keyed by snapshot and file path.
type IRStore interface {
	Put(ctx context.Context, snapshot types.RepoSnapshot, doc *types.IRDocument) error
	Get(ctx context.Context, snapshot types.RepoSnapshot, file string) (*types.IRDocument, error)
	Delete(ctx context.Context, snapshot types.RepoSnapshot, file string) error
}

// GraphTx is one ACID transaction against the graph store: visible only
// after Commit, fully undone by Rollback.
type GraphTx interface {
	UpsertNodes(nodes []types.Node) error
	UpsertEdges(edges []types.Edge) error
	DeleteOutboundEdgesByFilePaths(paths []string) error
	Commit() error
	Rollback() error
}

// GraphStore persists the structural graph.
type GraphStore interface {
	Transaction(ctx context.Context) (GraphTx, error)
}

// VectorRecord is one embedding-input record the core emits for a chunk;
// the embedding itself is computed downstream.
type VectorRecord struct {
	ID       string
	ChunkID  string
	Text     string
	Metadata map[string]string
}

// VectorStore indexes chunk embeddings. Delete is a soft-delete (mark
// inactive); hard removal happens in Compact, which backends run after
// every N soft-deletions.
type VectorStore interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, query string, limit int) ([]VectorRecord, error)
	Compact(ctx context.Context) error
}

// LexicalRecord is one lexical-index input: the chunk text plus its
// pre-stemmed terms.
type LexicalRecord struct {
	ID    string
	Text  string
	Terms []string
}

// LexicalStore indexes chunks for keyword search.
type LexicalStore interface {
	Index(ctx context.Context, records []LexicalRecord) error
	Search(ctx context.Context, query string, limit int) ([]LexicalRecord, error)
	Delete(ctx context.Context, ids []string) error
}

// TypeInfo is one enrichment fact returned by a language server.
type TypeInfo struct {
	Span     types.Span
	TypeName string
}

// Diagnostic is one language-server diagnostic for a file.
type Diagnostic struct {
	Span     types.Span
	Severity string
	Message  string
}

// LangServerAdapter is the language-server port: asynchronous
// type/diagnostic/navigation queries, pluggable per language, safe for
// concurrent use.
type LangServerAdapter interface {
	TypesFor(ctx context.Context, file string, span types.Span) ([]TypeInfo, error)
	DiagnosticsFor(ctx context.Context, file string) ([]Diagnostic, error)
	Hover(ctx context.Context, file string, span types.Span) (string, error)
	DefinitionFor(ctx context.Context, file string, span types.Span) (*types.Occurrence, error)
	ReferencesFor(ctx context.Context, file string, span types.Span) ([]types.Occurrence, error)
}
