package pipeline

import (
	"context"
	"time"

	"github.com/standardbeagle/codegraph-core/internal/chunk"

	"github.com/standardbeagle/codegraph-core/internal/errs"
	"github.com/standardbeagle/codegraph-core/internal/incremental"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/structural"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// IncrementalBuild rebuilds only the files impacted by cs, starting from
// the artifacts of prev. The result is equivalent to a full build of the
// new state: unchanged files keep their previous (immutable) IRDocuments,
// changed files are re-analyzed, and the global stages (resolution, heap,
// taint) re-run over the merged document set.
func (p *Pipeline) IncrementalBuild(ctx context.Context, prev *BuildResult, cs *types.ChangeSet, files []types.SourceFile) (*BuildResult, error) {
	started := time.Now()

	impacts := p.classifyImpacts(prev, cs, files)
	affected := incremental.AffectedSet(cs, impacts, prev.Deps, p.cfg.Incremental.Mode)
	obslog.Infof("incremental", "change set %d paths -> affected set %d files",
		len(cs.AllChanged())+len(cs.Deleted), len(affected))

	res := &BuildResult{
		Snapshot:  prev.Snapshot,
		Files:     files,
		Docs:      make(map[string]*types.IRDocument, len(files)),
		Semantics: make(map[types.NodeID]*types.SemanticIR),
		Facts:     make(map[string]*FileFacts, len(files)),
		Escapes:   make(map[types.NodeID]*types.EscapeInfo),
		Deps:      types.NewDependencyGraph(),
	}

	// Carry forward artifacts of unaffected files; rebuild the rest. Old
	// paths of renames and deletions simply don't appear in files anymore.
	var rebuild []types.SourceFile
	for _, f := range files {
		if affected[f.Path] {
			rebuild = append(rebuild, f)
			continue
		}
		doc, ok := prev.Docs[f.Path]
		if !ok {
			rebuild = append(rebuild, f)
			continue
		}
		res.Docs[f.Path] = doc
		res.Facts[f.Path] = prev.Facts[f.Path]
		for _, ff := range prev.Facts[f.Path].Functions {
			if sem, ok := prev.Semantics[ff.Function]; ok {
				res.Semantics[ff.Function] = sem
			}
		}
	}

	if err := p.analyzeFiles(ctx, prev.Snapshot, rebuild, res); err != nil {
		return res, err
	}

	// Global stages always re-run over the merged set: their outputs are
	// cheap relative to per-file extraction and recomputing them whole
	// keeps full/incremental equivalence trivially true instead of
	// delta-patching fixpoint state.
	p.resolve(res)
	p.enrichTypes(ctx, rebuild, res)
	p.analyzeHeap(res)
	p.analyzeTaint(res)

	if err := VerifyInvariants(res); err != nil {
		return res, err
	}
	if err := p.emitIncremental(ctx, res, cs, affected); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(started)
	obslog.Infof("incremental", "rebuilt %d/%d files in %s", len(rebuild), len(files), res.Elapsed)
	return res, nil
}

// classifyImpacts compares the previous build's per-symbol hashes against
// freshly extracted ones for each changed file.
func (p *Pipeline) classifyImpacts(prev *BuildResult, cs *types.ChangeSet, files []types.SourceFile) map[string]incremental.Impact {
	byPath := make(map[string]types.SourceFile, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	impacts := make(map[string]incremental.Impact)
	for path := range cs.AllChanged() {
		prevFacts, ok := prev.Facts[path]
		if !ok {
			impacts[path] = incremental.StructuralChange
			continue
		}
		f, ok := byPath[path]
		if !ok {
			impacts[path] = incremental.StructuralChange
			continue
		}

		// Extract the new file's facts here for classification only; they
		// are not stored in the cache.
		parsed := p.registry.Parse(f.Path, f.Content)
		builder := structural.NewBuilder(prev.Snapshot.RepoID)
		doc := builder.Build(prev.Snapshot, parsed)
		newFacts := ExtractFileFacts(parsed, doc)
		parsed.Close()

		impacts[path] = incremental.ClassifyFile(symbolDeltas(prevFacts, newFacts))
	}
	return impacts
}

// symbolDeltas lines previous and current function facts up by FQN.
func symbolDeltas(prev, cur *FileFacts) []incremental.SymbolDelta {
	importsChanged := prev.ImportsHash != cur.ImportsHash

	prevByFQN := make(map[string]*FunctionFacts, len(prev.Functions))
	for i := range prev.Functions {
		prevByFQN[prev.Functions[i].FQN] = &prev.Functions[i]
	}

	var deltas []incremental.SymbolDelta
	seen := make(map[string]bool)
	for i := range cur.Functions {
		fn := &cur.Functions[i]
		seen[fn.FQN] = true
		old, existed := prevByFQN[fn.FQN]
		if !existed {
			// A new symbol changes the file's export surface.
			deltas = append(deltas, incremental.SymbolDelta{
				FQN: fn.FQN, ASTHashChanged: true, SigHashChanged: true, ImportsChanged: importsChanged,
			})
			continue
		}
		deltas = append(deltas, incremental.SymbolDelta{
			FQN:            fn.FQN,
			ASTHashChanged: old.BodyHash != fn.BodyHash,
			SigHashChanged: old.SigHash != fn.SigHash,
			ImportsChanged: importsChanged,
		})
	}
	for fqn := range prevByFQN {
		if !seen[fqn] {
			deltas = append(deltas, incremental.SymbolDelta{
				FQN: fqn, ASTHashChanged: true, SigHashChanged: true, ImportsChanged: importsChanged,
			})
		}
	}
	if len(deltas) == 0 && importsChanged {
		deltas = append(deltas, incremental.SymbolDelta{ImportsChanged: true})
	}
	return deltas
}

// emitIncremental re-emits chunks and graph data for affected files only.
// For deleted and renamed-away paths it deletes their IR store entries and
// their outbound graph edges; their vector and lexical records are left as
// they are.
func (p *Pipeline) emitIncremental(ctx context.Context, res *BuildResult, cs *types.ChangeSet, affected map[string]bool) error {
	var gone []string
	for path := range cs.Deleted {
		gone = append(gone, path)
	}
	for old := range cs.Renamed {
		gone = append(gone, old)
	}

	for _, path := range gone {
		if p.stores.IR != nil {
			if err := p.stores.IR.Delete(ctx, res.Snapshot, path); err != nil {
				res.Errors = append(res.Errors, errs.NewStorageTransactionFailure("ir_delete", err))
			}
		}
	}

	partial := &BuildResult{
		Snapshot: res.Snapshot,
		Files:    res.Files,
		Docs:     make(map[string]*types.IRDocument),
		Errors:   res.Errors,
	}
	contentByPath := make(map[string][]byte, len(res.Files))
	for _, f := range res.Files {
		contentByPath[f.Path] = f.Content
	}
	for path, doc := range res.Docs {
		if affected[path] {
			partial.Docs[path] = doc
		}
	}

	if p.stores.Graph != nil {
		tx, err := p.stores.Graph.Transaction(ctx)
		if err != nil {
			return errs.NewStorageTransactionFailure("graph_tx", err)
		}
		if len(gone) > 0 {
			if err := tx.DeleteOutboundEdgesByFilePaths(gone); err != nil {
				tx.Rollback()
				return errs.NewStorageTransactionFailure("graph_delete", err)
			}
		}
		for _, path := range sortedPaths(partial.Docs) {
			doc := partial.Docs[path]
			if err := tx.UpsertNodes(doc.Nodes); err != nil {
				tx.Rollback()
				return errs.NewStorageTransactionFailure("graph_upsert", err)
			}
			if err := tx.UpsertEdges(doc.Edges); err != nil {
				tx.Rollback()
				return errs.NewStorageTransactionFailure("graph_upsert", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return errs.NewStorageTransactionFailure("graph_commit", err)
		}
	}

	return p.emitChunks(ctx, partial, contentByPath)
}

// emitChunks streams chunk output for the given documents.
func (p *Pipeline) emitChunks(ctx context.Context, res *BuildResult, contentByPath map[string][]byte) error {
	chunker := chunk.NewChunker(p.cfg.Chunk.Granularity)
	emitter := chunk.NewEmitter(p.stores.Vector, p.stores.Lexical)
	for _, path := range sortedPaths(res.Docs) {
		doc := res.Docs[path]
		if err := emitter.EmitDocument(ctx, chunker, doc, contentByPath[path]); err != nil {
			return err
		}
		if p.stores.IR != nil {
			if err := p.stores.IR.Put(ctx, res.Snapshot, doc); err != nil {
				res.Errors = append(res.Errors, err)
			}
		}
	}
	return emitter.Flush(ctx)
}
