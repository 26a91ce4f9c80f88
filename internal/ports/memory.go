package ports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/standardbeagle/codegraph-core/internal/errs"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// The in-memory implementations below back the CLI's local mode and every
// test that needs a real port without a remote backend. They honor the
// same contracts required of real backends: transactional visibility,
// soft-delete with threshold-driven compaction.

// MemoryIRStore is an in-memory IRStore.
type MemoryIRStore struct {
	mu   sync.RWMutex
	docs map[string]*types.IRDocument
}

func NewMemoryIRStore() *MemoryIRStore {
	return &MemoryIRStore{docs: make(map[string]*types.IRDocument)}
}

func irKey(s types.RepoSnapshot, file string) string {
	return s.RepoID + "\x00" + s.SnapshotID + "\x00" + file
}

func (m *MemoryIRStore) Put(_ context.Context, snapshot types.RepoSnapshot, doc *types.IRDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[irKey(snapshot, doc.File)] = doc
	return nil
}

func (m *MemoryIRStore) Get(_ context.Context, snapshot types.RepoSnapshot, file string) (*types.IRDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[irKey(snapshot, file)]
	if !ok {
		return nil, errs.NewCacheMiss(file)
	}
	return doc, nil
}

func (m *MemoryIRStore) Delete(_ context.Context, snapshot types.RepoSnapshot, file string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, irKey(snapshot, file))
	return nil
}

// MemoryGraphStore is an in-memory GraphStore with real transaction
// semantics: a transaction stages its writes privately and publishes them
// only on Commit.
type MemoryGraphStore struct {
	mu    sync.RWMutex
	nodes map[types.NodeID]types.Node
	edges []types.Edge
	// fileOf lets DeleteOutboundEdgesByFilePaths find edges by the file
	// their from-node lives in.
	fileOf map[types.NodeID]string
}

func NewMemoryGraphStore() *MemoryGraphStore {
	return &MemoryGraphStore{
		nodes:  make(map[types.NodeID]types.Node),
		fileOf: make(map[types.NodeID]string),
	}
}

// Nodes returns a snapshot copy of the committed node set.
func (g *MemoryGraphStore) Nodes() []types.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns a snapshot copy of the committed edge list.
func (g *MemoryGraphStore) Edges() []types.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

type memoryGraphTx struct {
	store       *MemoryGraphStore
	nodes       []types.Node
	edges       []types.Edge
	deletePaths []string
	done        bool
}

func (g *MemoryGraphStore) Transaction(_ context.Context) (GraphTx, error) {
	return &memoryGraphTx{store: g}, nil
}

func (tx *memoryGraphTx) UpsertNodes(nodes []types.Node) error {
	if tx.done {
		return errs.NewStorageTransactionFailure("upsert_nodes", fmt.Errorf("transaction already closed"))
	}
	tx.nodes = append(tx.nodes, nodes...)
	return nil
}

func (tx *memoryGraphTx) UpsertEdges(edges []types.Edge) error {
	if tx.done {
		return errs.NewStorageTransactionFailure("upsert_edges", fmt.Errorf("transaction already closed"))
	}
	tx.edges = append(tx.edges, edges...)
	return nil
}

func (tx *memoryGraphTx) DeleteOutboundEdgesByFilePaths(paths []string) error {
	if tx.done {
		return errs.NewStorageTransactionFailure("delete_outbound", fmt.Errorf("transaction already closed"))
	}
	tx.deletePaths = append(tx.deletePaths, paths...)
	return nil
}

func (tx *memoryGraphTx) Commit() error {
	if tx.done {
		return errs.NewStorageTransactionFailure("commit", fmt.Errorf("transaction already closed"))
	}
	tx.done = true

	g := tx.store
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(tx.deletePaths) > 0 {
		doomed := make(map[string]bool, len(tx.deletePaths))
		for _, p := range tx.deletePaths {
			doomed[p] = true
		}
		kept := g.edges[:0]
		for _, e := range g.edges {
			if !doomed[g.fileOf[e.FromID]] {
				kept = append(kept, e)
			}
		}
		g.edges = kept
	}
	for _, n := range tx.nodes {
		g.nodes[n.ID] = n
		g.fileOf[n.ID] = n.File
	}
	g.edges = append(g.edges, tx.edges...)
	return nil
}

func (tx *memoryGraphTx) Rollback() error {
	if tx.done {
		return errs.NewStorageTransactionFailure("rollback", fmt.Errorf("transaction already closed"))
	}
	tx.done = true
	tx.nodes, tx.edges, tx.deletePaths = nil, nil, nil
	return nil
}

// MemoryVectorStore is an in-memory VectorStore with the soft-delete
// contract: Delete marks records inactive; Compact hard-removes them. When
// soft-deletions reach the configured threshold, the next Upsert compacts
// automatically.
type MemoryVectorStore struct {
	mu                  sync.Mutex
	records             map[string]VectorRecord
	inactive            map[string]bool
	softDeleteThreshold int
}

func NewMemoryVectorStore(softDeleteThreshold int) *MemoryVectorStore {
	if softDeleteThreshold <= 0 {
		softDeleteThreshold = 1000
	}
	return &MemoryVectorStore{
		records:             make(map[string]VectorRecord),
		inactive:            make(map[string]bool),
		softDeleteThreshold: softDeleteThreshold,
	}
}

func (v *MemoryVectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	v.mu.Lock()
	for _, r := range records {
		v.records[r.ID] = r
		delete(v.inactive, r.ID)
	}
	needCompact := len(v.inactive) >= v.softDeleteThreshold
	v.mu.Unlock()
	if needCompact {
		return v.Compact(ctx)
	}
	return nil
}

func (v *MemoryVectorStore) Delete(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if _, ok := v.records[id]; ok {
			v.inactive[id] = true
		}
	}
	return nil
}

func (v *MemoryVectorStore) Search(_ context.Context, query string, limit int) ([]VectorRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []VectorRecord
	for id, r := range v.records {
		if v.inactive[id] {
			continue
		}
		if strings.Contains(r.Text, query) {
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (v *MemoryVectorStore) Compact(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id := range v.inactive {
		delete(v.records, id)
	}
	v.inactive = make(map[string]bool)
	return nil
}

// InactiveCount reports how many records are soft-deleted but not yet
// compacted away.
func (v *MemoryVectorStore) InactiveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.inactive)
}

// MemoryLexicalStore is an in-memory LexicalStore matching on stemmed
// terms.
type MemoryLexicalStore struct {
	mu      sync.RWMutex
	records map[string]LexicalRecord
}

func NewMemoryLexicalStore() *MemoryLexicalStore {
	return &MemoryLexicalStore{records: make(map[string]LexicalRecord)}
}

func (l *MemoryLexicalStore) Index(_ context.Context, records []LexicalRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		l.records[r.ID] = r
	}
	return nil
}

func (l *MemoryLexicalStore) Search(_ context.Context, query string, limit int) ([]LexicalRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []LexicalRecord
	for _, r := range l.records {
		for _, t := range r.Terms {
			if t == query {
				out = append(out, r)
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLexicalStore) Delete(_ context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.records, id)
	}
	return nil
}
