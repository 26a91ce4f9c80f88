package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/ports"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// fakeAdapter counts concurrent calls and can be made slow or failing.
type fakeAdapter struct {
	delay    time.Duration
	fail     bool
	current  atomic.Int64
	peak     atomic.Int64
}

func (f *fakeAdapter) TypesFor(ctx context.Context, file string, span types.Span) ([]ports.TypeInfo, error) {
	cur := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if f.fail {
		return nil, errors.New("adapter down")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}
	return []ports.TypeInfo{{Span: types.Span{File: file}, TypeName: "str"}}, nil
}

func (f *fakeAdapter) DiagnosticsFor(context.Context, string) ([]ports.Diagnostic, error) {
	return nil, nil
}
func (f *fakeAdapter) Hover(context.Context, string, types.Span) (string, error) { return "", nil }
func (f *fakeAdapter) DefinitionFor(context.Context, string, types.Span) (*types.Occurrence, error) {
	return nil, nil
}
func (f *fakeAdapter) ReferencesFor(context.Context, string, types.Span) ([]types.Occurrence, error) {
	return nil, nil
}

func pyFiles(n int) []types.SourceFile {
	files := make([]types.SourceFile, n)
	for i := range files {
		files[i] = types.SourceFile{Path: "f.py", Language: "python"}
	}
	return files
}

func TestEnrichAll_TypesAttached(t *testing.T) {
	adapter := &fakeAdapter{}
	e := New(config.TypeEnrich{MaxConcurrent: 4, TimeoutSec: 5}, map[string]ports.LangServerAdapter{"python": adapter})

	results, err := e.EnrichAll(context.Background(), pyFiles(3))
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Typed)
		assert.Len(t, r.Types, 1)
	}
}

func TestEnrichAll_ConcurrencyBounded(t *testing.T) {
	adapter := &fakeAdapter{delay: 20 * time.Millisecond}
	e := New(config.TypeEnrich{MaxConcurrent: 2, TimeoutSec: 5}, map[string]ports.LangServerAdapter{"python": adapter})

	_, err := e.EnrichAll(context.Background(), pyFiles(8))
	require.NoError(t, err)
	assert.LessOrEqual(t, adapter.peak.Load(), int64(2))
}

func TestEnrichAll_FailureDemotedToWarning(t *testing.T) {
	adapter := &fakeAdapter{fail: true}
	e := New(config.TypeEnrich{MaxConcurrent: 2, TimeoutSec: 5}, map[string]ports.LangServerAdapter{"python": adapter})

	results, err := e.EnrichAll(context.Background(), pyFiles(1))
	require.NoError(t, err, "failures demote to warnings, never fail the stage")
	assert.False(t, results[0].Typed)
	assert.Error(t, results[0].Warning)
}

func TestEnrichAll_FailFastPropagates(t *testing.T) {
	adapter := &fakeAdapter{fail: true}
	e := New(config.TypeEnrich{MaxConcurrent: 2, TimeoutSec: 5, FailFast: true}, map[string]ports.LangServerAdapter{"python": adapter})

	_, err := e.EnrichAll(context.Background(), pyFiles(1))
	assert.Error(t, err)
}

func TestEnrichAll_NoAdapterMeansUntyped(t *testing.T) {
	e := New(config.TypeEnrich{MaxConcurrent: 2, TimeoutSec: 5}, nil)
	results, err := e.EnrichAll(context.Background(), pyFiles(1))
	require.NoError(t, err)
	assert.False(t, results[0].Typed)
	assert.NoError(t, results[0].Warning)
}

func TestApply_MarksUntypedFile(t *testing.T) {
	doc := &types.IRDocument{
		File:  "f.py",
		Nodes: []types.Node{{ID: 1, Kind: types.NodeFile, File: "f.py"}},
	}
	Apply(doc, Result{File: "f.py", Typed: false})
	assert.Equal(t, false, doc.Nodes[0].Attrs["typed"])
}

func TestApply_AttachesTypeAttr(t *testing.T) {
	span := types.Span{File: "f.py", StartLine: 2, StartCol: 1, EndLine: 2, EndCol: 10}
	doc := &types.IRDocument{
		File:  "f.py",
		Nodes: []types.Node{{ID: 1, Kind: types.NodeVariable, File: "f.py", Span: span}},
	}
	Apply(doc, Result{File: "f.py", Typed: true, Types: []ports.TypeInfo{{Span: span, TypeName: "str"}}})
	assert.Equal(t, "str", doc.Nodes[0].Attrs["type"])
}
