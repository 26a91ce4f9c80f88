// Package enrich is the type enricher: it consults language-server
// adapters through the ports.LangServerAdapter port and attaches type
// information to nodes. Type info is optional — failures and timeouts
// demote to warnings, never block downstream stages. This is the one
// stage where async I/O pays; concurrency is bounded by a weighted
// semaphore, default 10 outstanding requests.
package enrich

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/errs"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/ports"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Enricher fans file-level enrichment requests out to per-language
// adapters under a global concurrency bound and per-call timeout.
type Enricher struct {
	adapters map[string]ports.LangServerAdapter // keyed by language
	sem      *semaphore.Weighted
	timeout  time.Duration
	failFast bool
}

// Result is the enrichment outcome for one file. Typed=false marks a file
// whose adapter timed out or failed.
type Result struct {
	File        string
	Typed       bool
	Types       []ports.TypeInfo
	Diagnostics []ports.Diagnostic
	Warning     error
}

// New builds an Enricher from the type_enrich config section.
func New(cfg config.TypeEnrich, adapters map[string]ports.LangServerAdapter) *Enricher {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Enricher{
		adapters: adapters,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
		failFast: cfg.FailFast,
	}
}

// EnrichAll runs enrichment for every (file, language, span) request
// concurrently under the bound. It returns one Result per file; the only
// error it can itself return is cancellation (or the first adapter error
// when fail_fast is set).
func (e *Enricher) EnrichAll(ctx context.Context, files []types.SourceFile) ([]Result, error) {
	results := make([]Result, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res := e.enrichOne(gctx, f)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			if res.Warning != nil && e.failFast {
				return res.Warning
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if gctx.Err() != nil && !e.failFast {
			return results, errs.NewCancelRequested("type_enrich")
		}
		return results, err
	}
	if ctx.Err() != nil {
		return results, errs.NewCancelRequested("type_enrich")
	}
	return results, nil
}

func (e *Enricher) enrichOne(ctx context.Context, f types.SourceFile) Result {
	res := Result{File: f.Path}

	adapter, ok := e.adapters[f.Language]
	if !ok {
		// No adapter for this language: not an error, the file just stays
		// untyped.
		return res
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		res.Warning = errs.NewCancelRequested("type_enrich")
		return res
	}
	defer e.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fileSpan := types.Span{File: f.Path}
	typeInfo, err := adapter.TypesFor(callCtx, f.Path, fileSpan)
	if err != nil {
		res.Warning = demote(f.Path, e.timeout, err)
		obslog.Warnf("enrich", "types_for %s: %v", f.Path, err)
		return res
	}
	diags, err := adapter.DiagnosticsFor(callCtx, f.Path)
	if err != nil {
		res.Warning = demote(f.Path, e.timeout, err)
		obslog.Warnf("enrich", "diagnostics_for %s: %v", f.Path, err)
		// Keep the type info already fetched; only diagnostics are lost.
		res.Types = typeInfo
		res.Typed = true
		return res
	}

	res.Types = typeInfo
	res.Diagnostics = diags
	res.Typed = true
	return res
}

// demote turns any adapter failure into the recoverable
// TypeEnrichmentTimeout taxonomy entry. Whether the cause was a literal
// deadline or an adapter crash, the downstream handling is identical: drop
// type info, keep going.
func demote(file string, after time.Duration, _ error) error {
	return errs.NewTypeEnrichmentTimeout(file, after)
}

// Apply attaches enrichment results to a document's nodes: every node whose
// span intersects a returned TypeInfo span gains attrs["type"]. Untyped
// files get attrs-level typed=false on the File node so consumers can tell
// "no types" from "no adapter ran".
func Apply(doc *types.IRDocument, res Result) {
	if !res.Typed {
		for i := range doc.Nodes {
			if doc.Nodes[i].Kind == types.NodeFile {
				if doc.Nodes[i].Attrs == nil {
					doc.Nodes[i].Attrs = make(map[string]any)
				}
				doc.Nodes[i].Attrs["typed"] = false
			}
		}
		return
	}
	for _, ti := range res.Types {
		for i := range doc.Nodes {
			n := &doc.Nodes[i]
			if n.Span.Contains(ti.Span) || ti.Span.Contains(n.Span) {
				if n.Attrs == nil {
					n.Attrs = make(map[string]any)
				}
				n.Attrs["type"] = ti.TypeName
			}
		}
	}
}
