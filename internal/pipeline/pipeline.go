// Package pipeline wires the analysis stages into one staged run: parse,
// structural IR, cross-file resolution, semantic IR and type enrichment,
// points-to and escape, taint, then chunk emission. Per-file stages run
// data-parallel over the file list; two build modes are exposed: full
// (every file) and incremental (affected files only).
package pipeline

import (
	"context"
	"encoding/json"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/codegraph-core/internal/cache"
	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/enrich"
	"github.com/standardbeagle/codegraph-core/internal/errs"
	"github.com/standardbeagle/codegraph-core/internal/heap"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/parser"
	"github.com/standardbeagle/codegraph-core/internal/ports"
	"github.com/standardbeagle/codegraph-core/internal/resolver"
	"github.com/standardbeagle/codegraph-core/internal/semantic"
	"github.com/standardbeagle/codegraph-core/internal/structural"
	"github.com/standardbeagle/codegraph-core/internal/taint"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Stores groups the storage ports a pipeline emits to. Any member may be
// nil; the corresponding emission is skipped.
type Stores struct {
	IR      ports.IRStore
	Graph   ports.GraphStore
	Vector  ports.VectorStore
	Lexical ports.LexicalStore
}

// Pipeline owns the per-stage components and the artifact cache.
type Pipeline struct {
	cfg      *config.Config
	registry *parser.Registry
	catalog  *taint.Catalog
	enricher *enrich.Enricher
	tiered   *cache.Tiered
	stores   Stores

	// stageCfg fingerprints the config subset cached artifacts depend on.
	stageCfg string
}

// New assembles a Pipeline. catalog may be nil (taint stage emits no
// findings); adapters may be empty (files stay untyped).
func New(cfg *config.Config, catalog *taint.Catalog, adapters map[string]ports.LangServerAdapter, stores Stores) (*Pipeline, error) {
	tiered, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		registry: parser.NewRegistry(),
		catalog:  catalog,
		enricher: enrich.New(cfg.TypeEnrich, adapters),
		tiered:   tiered,
		stores:   stores,
		stageCfg: cache.StageConfigHash(cfg.Chunk.Granularity, cfg.Heap.EnableEscape, cfg.Taint.ContextK, cfg.Taint.MaxPathLen),
	}, nil
}

// Close releases the cache's async writer.
func (p *Pipeline) Close() { p.tiered.Close() }

// fileArtifact is the cached unit per (file, fingerprint): everything
// derived from the file's bytes alone, before cross-file resolution.
type fileArtifact struct {
	Doc       *types.IRDocument   `json:"doc"`
	Semantics []*types.SemanticIR `json:"semantics"`
	Facts     *FileFacts          `json:"facts"`
}

// BuildResult is the full output of one build.
type BuildResult struct {
	Snapshot  types.RepoSnapshot
	Files     []types.SourceFile
	Docs      map[string]*types.IRDocument
	Context   *types.GlobalContext
	Semantics map[types.NodeID]*types.SemanticIR
	Facts     map[string]*FileFacts
	PointsTo  *types.PointsToGraph
	Escapes   map[types.NodeID]*types.EscapeInfo
	Taint     *taint.Result
	Deps      *types.DependencyGraph
	Errors    []error
	Elapsed   time.Duration
}

// ErrorSummary aggregates the run's recoverable errors.
func (r *BuildResult) ErrorSummary() *errs.MultiError {
	if len(r.Errors) == 0 {
		return nil
	}
	return errs.NewMultiError(r.Errors)
}

// FullBuild analyzes every file in files for snapshot. The file list
// usually comes from source.Scanner; passing it in keeps the pipeline
// testable against synthetic files.
func (p *Pipeline) FullBuild(ctx context.Context, snapshot types.RepoSnapshot, files []types.SourceFile) (*BuildResult, error) {
	started := time.Now()
	res := &BuildResult{
		Snapshot:  snapshot,
		Files:     files,
		Docs:      make(map[string]*types.IRDocument, len(files)),
		Semantics: make(map[types.NodeID]*types.SemanticIR),
		Facts:     make(map[string]*FileFacts, len(files)),
		Escapes:   make(map[types.NodeID]*types.EscapeInfo),
		Deps:      types.NewDependencyGraph(),
	}

	// Parse, structural IR and semantic IR: per-file, embarrassingly
	// parallel.
	if err := p.analyzeFiles(ctx, snapshot, files, res); err != nil {
		return res, err
	}

	// Two-pass cross-file resolution.
	p.resolve(res)

	// Async type enrichment, optional.
	p.enrichTypes(ctx, files, res)

	// Points-to + escape.
	p.analyzeHeap(res)

	// Taint fixpoint over the condensed call graph.
	p.analyzeTaint(res)

	// Invariant gate before anything is emitted.
	if err := VerifyInvariants(res); err != nil {
		return res, err
	}

	// Chunking + graph/IR store emission.
	if err := p.emit(ctx, res); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(started)
	obslog.Infof("pipeline", "full build: %d files in %s", len(files), res.Elapsed)
	return res, nil
}

// analyzeFiles runs parse → structural IR → semantic IR → flow facts for
// each file, consulting the artifact cache first. Results land in res under
// a mutex; the files themselves are processed by a bounded worker group.
func (p *Pipeline) analyzeFiles(ctx context.Context, snapshot types.RepoSnapshot, files []types.SourceFile, res *BuildResult) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())

	for i := range files {
		f := files[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errs.NewCancelRequested("analyze")
			}
			art, err := p.analyzeOne(snapshot, types.FileID(i), f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors = append(res.Errors, err)
			}
			if art == nil {
				return nil
			}
			res.Docs[f.Path] = art.Doc
			res.Facts[f.Path] = art.Facts
			for _, sem := range art.Semantics {
				res.Semantics[sem.FunctionNode] = sem
			}
			return nil
		})
	}
	return g.Wait()
}

// analyzeOne builds (or loads from cache) one file's artifact. Returned
// errors are always recoverable; a degraded document still comes back.
func (p *Pipeline) analyzeOne(snapshot types.RepoSnapshot, fileID types.FileID, f types.SourceFile) (*fileArtifact, error) {
	fp := types.Fingerprint{FileID: fileID, ContentHash: f.ContentHash}
	key := cache.Key("file_artifact", f.Path, fp, p.stageCfg)

	if payload, err := p.tiered.Get(key); err == nil {
		var art fileArtifact
		if jsonErr := json.Unmarshal(payload, &art); jsonErr == nil {
			return &art, nil
		}
		p.tiered.Invalidate(key)
	}

	parsed := p.registry.Parse(f.Path, f.Content)
	defer parsed.Close()

	builder := structural.NewBuilder(snapshot.RepoID)
	doc := builder.Build(snapshot, parsed)
	doc.Fingerprint = fp

	art := &fileArtifact{Doc: doc, Facts: ExtractFileFacts(parsed, doc)}

	// Semantic IR is built per function while the tree is still open.
	if parsed.Tree != nil {
		semBuilder := semantic.NewBuilder()
		fnNodes := functionSyntaxNodes(parsed, doc)
		for _, fn := range fnNodes {
			sem := semBuilder.Build(parsed.Language, f.Path, f.Content, fn.id, fn.syntax)
			art.Semantics = append(art.Semantics, sem)
		}
	}

	if payload, err := json.Marshal(art); err == nil {
		p.tiered.Put(key, payload)
	}
	if parsed.Err != nil {
		return art, parsed.Err
	}
	return art, nil
}

// resolve runs the cross-file resolver's two passes plus dependency-graph
// construction and transitive inheritance closure.
func (p *Pipeline) resolve(res *BuildResult) {
	langResolvers := map[string]resolver.LanguageResolver{
		string(parser.LangGo):     resolver.GoResolver{},
		string(parser.LangPython): resolver.PythonResolver{},
		string(parser.LangJavaScript): resolver.JSResolver{},
		string(parser.LangTypeScript): resolver.JSResolver{},
	}
	r := resolver.New(langResolvers, nil)

	for _, doc := range res.Docs {
		r.AccumulateDocument(doc)
	}
	res.Context = r.Finalize()

	fileOf := make(map[types.NodeID]string)
	for _, doc := range res.Docs {
		for _, n := range doc.Nodes {
			if n.Kind != types.NodeExternal {
				fileOf[n.ID] = n.File
			}
		}
	}

	langByFile := make(map[string]string, len(res.Files))
	for _, f := range res.Files {
		langByFile[f.Path] = f.Language
	}

	var allEdges []types.Edge
	for path, doc := range res.Docs {
		unresolved := r.ResolveDocument(doc, res.Context, langByFile[path])
		if unresolved > 0 {
			obslog.Debugf("resolver", "%s: %d unresolved targets", path, unresolved)
		}
		for _, e := range doc.Edges {
			allEdges = append(allEdges, e)
			if e.Kind == types.EdgeImports || e.Kind == types.EdgeInherits {
				if dep, ok := fileOf[e.ToID]; ok && dep != path {
					res.Deps.AddEdge(path, dep)
					registerFileDep(res.Context, path, dep)
				}
			}
		}
	}
	resolver.CloseInheritance(res.Context, allEdges)
}

func registerFileDep(ctx *types.GlobalContext, from, to string) {
	set, ok := ctx.FileDeps[from]
	if !ok {
		set = make(map[string]bool)
		ctx.FileDeps[from] = set
	}
	set[to] = true
}

// enrichTypes runs type enrichment and attaches results; every failure is
// demoted to a warning in the error summary.
func (p *Pipeline) enrichTypes(ctx context.Context, files []types.SourceFile, res *BuildResult) {
	results, err := p.enricher.EnrichAll(ctx, files)
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
	for _, er := range results {
		if er.Warning != nil {
			res.Errors = append(res.Errors, er.Warning)
		}
		if doc, ok := res.Docs[er.File]; ok {
			enrich.Apply(doc, er)
		}
	}
}

// analyzeHeap runs one Andersen solve over every function's
// constraints, then intraprocedural escape joined interprocedurally over
// resolved call sites.
func (p *Pipeline) analyzeHeap(res *BuildResult) {
	var constraints []heap.Constraint
	var sites []heap.CallSite
	calleeParams := make(map[types.NodeID][]types.EscapeState)
	byName := lastSegmentIndex(res.Context)

	for _, ff := range res.Facts {
		for i := range ff.Functions {
			fn := &ff.Functions[i]
			constraints = append(constraints, fn.Constraints...)
			if p.cfg.Heap.EnableEscape {
				res.Escapes[fn.Function] = heap.AnalyzeIntraprocedural(fn.Function, fn.Escape)
			}
		}
	}
	solver := heap.NewSolver()
	res.PointsTo = solver.Solve(constraints)

	if !p.cfg.Heap.EnableEscape {
		return
	}

	// Interprocedural refinement: a callee's conclusion about its
	// parameters joins back into its callers' arguments.
	for _, ff := range res.Facts {
		for i := range ff.Functions {
			fn := &ff.Functions[i]
			info := res.Escapes[fn.Function]
			states := make([]types.EscapeState, len(fn.Params))
			for pi, param := range fn.Params {
				if st, ok := info.States[param]; ok {
					states[pi] = st
				}
			}
			calleeParams[fn.Function] = states
		}
	}
	for _, ff := range res.Facts {
		for i := range ff.Functions {
			fn := &ff.Functions[i]
			for _, call := range fn.Calls {
				callee, ok := lookupCallee(res.Context, byName, call.CalleeFQN)
				sites = append(sites, heap.CallSite{
					Caller:     fn.Function,
					Callee:     callee,
					ArgVars:    call.ArgVars,
					Unresolved: !ok,
				})
			}
		}
	}
	heap.RefineInterprocedural(res.Escapes, calleeParams, sites)
}

// analyzeTaint assembles the whole-program flow graph from cached facts,
// binds catalog rules, and runs the taint engine.
func (p *Pipeline) analyzeTaint(res *BuildResult) {
	if p.catalog == nil {
		res.Taint = &taint.Result{}
		return
	}
	program := AssembleProgram(res.Facts, p.catalog, res.Context)
	engine := taint.NewEngine(p.catalog, p.cfg.Taint.ContextK, p.cfg.Taint.MaxPathLen)
	res.Taint = engine.Analyze(program)
	// Deterministic output order: findings sorted by sink
	// position.
	sort.Slice(res.Taint.Findings, func(i, j int) bool {
		a, b := res.Taint.Findings[i], res.Taint.Findings[j]
		if a.SinkOccurrence.File != b.SinkOccurrence.File {
			return a.SinkOccurrence.File < b.SinkOccurrence.File
		}
		if a.SinkOccurrence.Span.StartLine != b.SinkOccurrence.Span.StartLine {
			return a.SinkOccurrence.Span.StartLine < b.SinkOccurrence.Span.StartLine
		}
		return a.RuleID < b.RuleID
	})
}

// emit runs the chunker and the graph/IR store transaction.
func (p *Pipeline) emit(ctx context.Context, res *BuildResult) error {
	contentByPath := make(map[string][]byte, len(res.Files))
	for _, f := range res.Files {
		contentByPath[f.Path] = f.Content
	}
	if err := p.emitChunks(ctx, res, contentByPath); err != nil {
		return err
	}
	if p.stores.Graph != nil {
		if err := p.commitGraph(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// commitGraph writes all nodes and edges in one transaction, retrying with
// backoff and propagating the failure once retries are exhausted.
func (p *Pipeline) commitGraph(ctx context.Context, res *BuildResult) error {
	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errs.NewCancelRequested("graph_commit")
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		lastErr = p.tryCommitGraph(ctx, res)
		if lastErr == nil {
			return nil
		}
		obslog.Warnf("pipeline", "graph commit attempt %d failed: %v", attempt+1, lastErr)
	}
	return errs.NewStorageTransactionFailure("graph_commit", lastErr)
}

func (p *Pipeline) tryCommitGraph(ctx context.Context, res *BuildResult) error {
	tx, err := p.stores.Graph.Transaction(ctx)
	if err != nil {
		return err
	}
	for _, path := range sortedPaths(res.Docs) {
		doc := res.Docs[path]
		if err := tx.UpsertNodes(doc.Nodes); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.UpsertEdges(doc.Edges); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (p *Pipeline) workers() int {
	n := p.cfg.Parallel.ResolvedWorkers()
	if n > runtime.NumCPU() {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	return n
}

func sortedPaths(docs map[string]*types.IRDocument) []string {
	out := make([]string, 0, len(docs))
	for p := range docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
