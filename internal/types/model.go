package types

import "sort"

// RepoSnapshot is the analysis unit: every other entity carries
// (RepoID, SnapshotID).
type RepoSnapshot struct {
	RepoID     string `json:"repo_id"`
	SnapshotID string `json:"snapshot_id"`
	RootPath   string `json:"root_path"`
}

// SourceFile is a single file as discovered by the source registry.
type SourceFile struct {
	Path        string `json:"path"`
	Language    string `json:"language"`
	Content     []byte `json:"-"`
	ContentHash string `json:"content_hash"` // BLAKE3 over Content
}

// IRDocument is the aggregate root produced per (repo, snapshot, file): the
// nodes/edges/occurrences derived from one source file plus its fingerprint.
// IRDocuments are built once and are immutable thereafter.
type IRDocument struct {
	Snapshot    RepoSnapshot  `json:"snapshot"`
	File        string        `json:"file"`
	Nodes       []Node        `json:"nodes"`
	Edges       []Edge        `json:"edges"`
	Occurrences []Occurrence  `json:"occurrences"`
	Fingerprint Fingerprint   `json:"fingerprint"`
	Degraded    bool          `json:"degraded"`
	Errors      []string      `json:"errors,omitempty"`
}

// Normalize sorts edges by (from_id, kind, to_id) so that artifact equality
// is by value across rebuilds.
func (d *IRDocument) Normalize() {
	sort.Slice(d.Edges, func(i, j int) bool { return d.Edges[i].Less(d.Edges[j]) })
	sort.Slice(d.Nodes, func(i, j int) bool { return d.Nodes[i].ID < d.Nodes[j].ID })
	sort.Slice(d.Occurrences, func(i, j int) bool {
		a, b := d.Occurrences[i], d.Occurrences[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Span.StartLine != b.Span.StartLine {
			return a.Span.StartLine < b.Span.StartLine
		}
		return a.Span.StartCol < b.Span.StartCol
	})
}

// NodeByID returns the node with the given id, if present.
func (d *IRDocument) NodeByID(id NodeID) (Node, bool) {
	// Nodes are sorted by ID after Normalize; fall back to linear scan
	// otherwise since documents are small (one file's worth of nodes).
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// GlobalContext is the immutable-after-build cross-file index:
// symbol_index (FQN -> node), file_deps, inheritance_index, package_index.
type GlobalContext struct {
	SymbolIndex      map[string]NodeID            `json:"symbol_index"`
	FileDeps         map[string]map[string]bool   `json:"file_deps"`
	InheritanceIndex map[NodeID][]NodeID          `json:"inheritance_index"`
	PackageIndex     map[string][]string          `json:"package_index"`
}

// NewGlobalContext returns an empty, ready-to-populate context.
func NewGlobalContext() *GlobalContext {
	return &GlobalContext{
		SymbolIndex:      make(map[string]NodeID),
		FileDeps:         make(map[string]map[string]bool),
		InheritanceIndex: make(map[NodeID][]NodeID),
		PackageIndex:     make(map[string][]string),
	}
}

// Fingerprint is the content-derived identifier cached artifacts are
// keyed by.
type Fingerprint struct {
	FileID      FileID `json:"file_id"`
	ContentHash string `json:"content_hash"`
	ASTHash     string `json:"ast_hash,omitempty"`
}

// CacheKey combines a subject (file or symbol) with its fingerprint and the
// stage configuration that produced the cached artifact.
type CacheKey struct {
	ArtifactKind string `json:"artifact_kind"`
	SubjectID    string `json:"subject_id"`
	Fingerprint  string `json:"fingerprint"`
	StageConfig  string `json:"stage_config_hash"`
}

// ChangeSet is the set of files touched between two snapshots.
// Invariant: a path appears in at most one of {Added, Modified, Deleted,
// values(Renamed)}.
type ChangeSet struct {
	Added    map[string]bool   `json:"added"`
	Modified map[string]bool   `json:"modified"`
	Deleted  map[string]bool   `json:"deleted"`
	Renamed  map[string]string `json:"renamed"`
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:    make(map[string]bool),
		Modified: make(map[string]bool),
		Deleted:  make(map[string]bool),
		Renamed:  make(map[string]string),
	}
}

// MarkAsRenamed records that old was renamed to newPath, removing both from
// Added/Deleted if they were provisionally recorded there.
func (c *ChangeSet) MarkAsRenamed(old, newPath string) {
	delete(c.Deleted, old)
	delete(c.Added, newPath)
	c.Renamed[old] = newPath
}

// AllChanged returns added ∪ modified ∪ values(renamed).
func (c *ChangeSet) AllChanged() map[string]bool {
	out := make(map[string]bool, len(c.Added)+len(c.Modified)+len(c.Renamed))
	for p := range c.Added {
		out[p] = true
	}
	for p := range c.Modified {
		out[p] = true
	}
	for _, p := range c.Renamed {
		out[p] = true
	}
	return out
}

// IsEmpty reports whether the change set touches no files at all.
func (c *ChangeSet) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0 && len(c.Renamed) == 0
}

// DependencyGraph maps a file to the set of files that depend on it (the
// reverse of IMPORTS/INHERITS), supporting BFS impact propagation.
type DependencyGraph struct {
	// Dependents[f] = set of files that import/inherit from f.
	Dependents map[string]map[string]bool
}

// NewDependencyGraph returns an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{Dependents: make(map[string]map[string]bool)}
}

// AddEdge records that `from` depends on `to` (from imports/inherits to).
func (g *DependencyGraph) AddEdge(from, to string) {
	set, ok := g.Dependents[to]
	if !ok {
		set = make(map[string]bool)
		g.Dependents[to] = set
	}
	set[from] = true
}

// BFSImpacted returns every file transitively dependent on any file in seeds,
// seeds themselves included. Traversal is breadth-first and terminates since
// the dependent relation forms a DAG in well-formed snapshots (cycles are
// tolerated via the visited set).
func (g *DependencyGraph) BFSImpacted(seeds []string) map[string]bool {
	visited := make(map[string]bool, len(seeds))
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range g.Dependents[cur] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return visited
}
