package incremental

import (
	"sync"

	"github.com/standardbeagle/codegraph-core/internal/types"
)

// SpeculativePatch describes an uncommitted edit to analyze without
// mutating the base snapshot: the file and its hypothetical new content.
type SpeculativePatch struct {
	File    string
	Content []byte
}

// GraphDelta is the overlay a speculative build produces: replacement
// IRDocuments plus symbol-index adjustments, visible through a merged view
// until committed or discarded.
type GraphDelta struct {
	Docs          map[string]*types.IRDocument // file -> replacement document
	SymbolUpserts map[string]types.NodeID      // fqn -> node id
	SymbolDeletes map[string]bool              // fqn -> removed
}

// NewGraphDelta returns an empty delta.
func NewGraphDelta() *GraphDelta {
	return &GraphDelta{
		Docs:          make(map[string]*types.IRDocument),
		SymbolUpserts: make(map[string]types.NodeID),
		SymbolDeletes: make(map[string]bool),
	}
}

// Overlay is a copy-on-write view over a base GlobalContext plus a pending
// GraphDelta. Queries see the merged state; the base is never mutated until
// Commit.
type Overlay struct {
	mu    sync.RWMutex
	base  *types.GlobalContext
	delta *GraphDelta
	docs  map[string]*types.IRDocument // base documents, read-only
}

// NewOverlay wraps base (context and documents) with an empty delta.
func NewOverlay(base *types.GlobalContext, baseDocs map[string]*types.IRDocument) *Overlay {
	return &Overlay{base: base, delta: NewGraphDelta(), docs: baseDocs}
}

// Apply merges delta into the overlay's pending state. Later applies win on
// conflicting keys.
func (o *Overlay) Apply(delta *GraphDelta) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for f, doc := range delta.Docs {
		o.delta.Docs[f] = doc
	}
	for fqn, id := range delta.SymbolUpserts {
		o.delta.SymbolUpserts[fqn] = id
		delete(o.delta.SymbolDeletes, fqn)
	}
	for fqn := range delta.SymbolDeletes {
		o.delta.SymbolDeletes[fqn] = true
		delete(o.delta.SymbolUpserts, fqn)
	}
}

// Document returns the file's document as the merged view sees it.
func (o *Overlay) Document(file string) (*types.IRDocument, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if doc, ok := o.delta.Docs[file]; ok {
		return doc, true
	}
	doc, ok := o.docs[file]
	return doc, ok
}

// LookupSymbol resolves an FQN through the merged view: delta upserts
// shadow the base; delta deletes hide it.
func (o *Overlay) LookupSymbol(fqn string) (types.NodeID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if id, ok := o.delta.SymbolUpserts[fqn]; ok {
		return id, true
	}
	if o.delta.SymbolDeletes[fqn] {
		return 0, false
	}
	id, ok := o.base.SymbolIndex[fqn]
	return id, ok
}

// Commit folds the pending delta into the base atomically (under the
// overlay's write lock) and resets the delta. The returned context is the
// same base pointer callers already hold; after Commit the overlay reads
// through to the updated base.
func (o *Overlay) Commit() *types.GlobalContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	for f, doc := range o.delta.Docs {
		o.docs[f] = doc
	}
	for fqn, id := range o.delta.SymbolUpserts {
		o.base.SymbolIndex[fqn] = id
	}
	for fqn := range o.delta.SymbolDeletes {
		delete(o.base.SymbolIndex, fqn)
	}
	o.delta = NewGraphDelta()
	return o.base
}

// Discard drops the pending delta without touching the base.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delta = NewGraphDelta()
}
