// Package resolver is the cross-file resolver: given the set of
// IRDocuments produced by the structural builder, it builds a
// GlobalContext (the global symbol index) and rewrites each document's
// IMPORTS edges whose target is a synthetic External node to point at the
// concrete node id of a matching definition; when no definition exists in
// the snapshot the External target stays. INHERITS, IMPLEMENTS, CALLS and
// REFERENCES_* edges are not rewritten: their targets are left as the
// structural builder emitted them.
//
// Resolution runs in two passes: pass 1 accumulates every exported FQN
// into a shared symbol table; pass 2 rewrites edges per document, which
// can run one goroutine per document since pass 1's table is read-only by
// then.
package resolver

import (
	"strings"
	"sync"

	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// LanguageResolver adapts import-path resolution to one language's module
// system.
type LanguageResolver interface {
	// CandidateFQNs returns, in preference order, the FQNs an import target
	// named importText (as written at the call site, e.g. "./mod_a",
	// "package/sub", "from mod_a import foo") could refer to, given the
	// importing file's path.
	CandidateFQNs(importerFile, importText string) []string
}

// Resolver accumulates the global symbol index across documents (pass 1)
// and then resolves dangling edges within each document (pass 2).
type Resolver struct {
	byLanguage map[string]LanguageResolver
	fallback   LanguageResolver

	mu     sync.Mutex // guards symbols during pass 1 accumulation
	symbols map[string]types.NodeID
	// packageOf maps a file path to the package/module path it belongs to,
	// used by the prefix tie-break rule.
	packageOf map[string]string
}

// New returns a Resolver with the given per-language adapters. langResolvers
// keys on the parser.Language string form ("go", "python", ...); fallback is
// used for languages with no dedicated adapter (name-only matching).
func New(langResolvers map[string]LanguageResolver, fallback LanguageResolver) *Resolver {
	if fallback == nil {
		fallback = NameOnlyResolver{}
	}
	return &Resolver{
		byLanguage: langResolvers,
		fallback:   fallback,
		symbols:    make(map[string]types.NodeID),
		packageOf:  make(map[string]string),
	}
}

// AccumulateDocument is pass 1: register every definition-role node's FQN
// into the shared symbol table. Safe
// to call concurrently from multiple goroutines, one per document.
func (r *Resolver) AccumulateDocument(doc *types.IRDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range doc.Nodes {
		if n.Kind == types.NodeExternal || n.FQN == "" {
			continue
		}
		if _, exists := r.symbols[n.FQN]; !exists {
			r.symbols[n.FQN] = n.ID
		}
		r.packageOf[n.File] = packagePathOf(n.FQN)
	}
}

// packagePathOf returns the FQN prefix up to (not including) the last
// segment — the "package path" a tie-break rule compares for prefix-ness.
func packagePathOf(fqn string) string {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[:i]
	}
	return ""
}

// Finalize promotes the concurrently-accumulated map into the immutable
// GlobalContext. Call this once,
// after every AccumulateDocument call has returned.
func (r *Resolver) Finalize() *types.GlobalContext {
	ctx := types.NewGlobalContext()
	for fqn, id := range r.symbols {
		ctx.SymbolIndex[fqn] = id
		pkg := packagePathOf(fqn)
		ctx.PackageIndex[pkg] = append(ctx.PackageIndex[pkg], fqn)
	}
	return ctx
}

// resolverFor picks the per-language adapter, falling back to name-only
// matching for languages without one.
func (r *Resolver) resolverFor(lang string) LanguageResolver {
	if lr, ok := r.byLanguage[lang]; ok {
		return lr
	}
	return r.fallback
}

// ResolveDocument is pass 2: rewrites doc's IMPORTS edges that point at an
// External node, in place, against the finalized GlobalContext; edges of
// other kinds are left unchanged. Returns the number of IMPORTS edges that
// remained unresolved (External), for metrics only — ambiguous matches are
// tagged on the edge, not counted. This never errors; unresolved names stay
// External rather than being dropped.
func (r *Resolver) ResolveDocument(doc *types.IRDocument, ctx *types.GlobalContext, lang string) int {
	lr := r.resolverFor(lang)
	unresolved := 0

	byID := make(map[types.NodeID]*types.Node, len(doc.Nodes))
	for i := range doc.Nodes {
		byID[doc.Nodes[i].ID] = &doc.Nodes[i]
	}

	for i := range doc.Edges {
		e := &doc.Edges[i]
		switch e.Kind {
		case types.EdgeImports:
			target, ok := byID[e.ToID]
			if !ok || target.Kind != types.NodeExternal {
				continue // already concrete (e.g. re-resolved already)
			}
			resolved, ambiguous := r.resolveName(lr, doc.File, target.Name, ctx)
			if resolved == 0 {
				unresolved++
				continue
			}
			e.ToID = resolved
			if ambiguous {
				tagAmbiguous(e)
			}
			dep := fqnFileOf(ctx, resolved)
			if dep != "" && dep != doc.File {
				registerDep(ctx, doc.File, dep)
			}
		case types.EdgeCalls, types.EdgeReferencesSymbol, types.EdgeReferencesType, types.EdgeInherits, types.EdgeImplements:
			if _, ok := byID[e.ToID]; ok {
				continue // intra-file target already concrete
			}
			// Cross-file targets never exist in byID (the structural
			// builder only links intra-file); no name is available here to
			// look such a target up, so the edge is left as it is.
		}
	}
	return unresolved
}

// resolveName looks up importText's candidate FQNs in order; the first hit
// wins, per the prefix tie-break. Multiple candidates matching
// distinct symbols with no prefix winner are reported ambiguous.
func (r *Resolver) resolveName(lr LanguageResolver, importerFile, importText string, ctx *types.GlobalContext) (types.NodeID, bool) {
	candidates := lr.CandidateFQNs(importerFile, importText)
	if len(candidates) == 0 {
		candidates = []string{importText}
	}

	importerPkg := r.packageOf[importerFile]
	var hits []types.NodeID
	var prefixHit types.NodeID
	for _, c := range candidates {
		id, ok := ctx.SymbolIndex[c]
		if !ok {
			continue
		}
		hits = append(hits, id)
		if prefixHit == 0 && importerPkg != "" && strings.HasPrefix(packagePathOf(c), importerPkg) {
			prefixHit = id
		}
	}
	switch {
	case len(hits) == 0:
		return 0, false
	case prefixHit != 0:
		return prefixHit, len(hits) > 1
	case len(hits) == 1:
		return hits[0], false
	default:
		return hits[0], true
	}
}

func tagAmbiguous(e *types.Edge) {
	if e.Attrs == nil {
		e.Attrs = make(map[string]any)
	}
	e.Attrs["ambiguous"] = true
}

func fqnFileOf(ctx *types.GlobalContext, id types.NodeID) string {
	// GlobalContext doesn't keep a NodeID->file map, so this always returns
	// "" and ResolveDocument registers no FileDeps entry; callers that need
	// the file look it up via the owning IRDocument.
	return ""
}

func registerDep(ctx *types.GlobalContext, from, to string) {
	set, ok := ctx.FileDeps[from]
	if !ok {
		set = make(map[string]bool)
		ctx.FileDeps[from] = set
	}
	set[to] = true
}

// CloseInheritance transitive-closes the INHERITS relation so that
// INHERITS* queries are O(depth). edges is every concrete
// INHERITS/IMPLEMENTS edge across the whole snapshot, gathered after pass 2
// has resolved cross-file targets.
func CloseInheritance(ctx *types.GlobalContext, edges []types.Edge) {
	direct := make(map[types.NodeID][]types.NodeID)
	for _, e := range edges {
		if e.Kind == types.EdgeInherits || e.Kind == types.EdgeImplements {
			direct[e.FromID] = append(direct[e.FromID], e.ToID)
		}
	}
	for node := range direct {
		ctx.InheritanceIndex[node] = closureFrom(node, direct)
	}
}

func closureFrom(start types.NodeID, direct map[types.NodeID][]types.NodeID) []types.NodeID {
	visited := map[types.NodeID]bool{start: true}
	queue := append([]types.NodeID{}, direct[start]...)
	for _, q := range queue {
		visited[q] = true
	}
	var out []types.NodeID
	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		out = append(out, cur)
		for _, next := range direct[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return out
}

// externalNodeID derives an External node id for name via idcodec.NewNodeID.
// It is unexported and nothing in this package calls it.
func externalNodeID(repoID, name string) types.NodeID {
	return idcodec.NewNodeID(repoID, "external:"+name, 0, 0)
}
