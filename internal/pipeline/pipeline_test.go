package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/incremental"
	"github.com/standardbeagle/codegraph-core/internal/ports"
	"github.com/standardbeagle/codegraph-core/internal/taint"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.L2.Path = t.TempDir()
	cfg.Parallel.Workers = 2
	return cfg
}

func srcFile(path, content string) types.SourceFile {
	lang := "python"
	if strings.HasSuffix(path, ".go") {
		lang = "go"
	}
	return types.SourceFile{
		Path:        path,
		Language:    lang,
		Content:     []byte(content),
		ContentHash: idcodec.ContentHash([]byte(content)),
	}
}

func memStores() Stores {
	return Stores{
		IR:      ports.NewMemoryIRStore(),
		Graph:   ports.NewMemoryGraphStore(),
		Vector:  ports.NewMemoryVectorStore(1000),
		Lexical: ports.NewMemoryLexicalStore(),
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, catalog *taint.Catalog) *Pipeline {
	t.Helper()
	p, err := New(cfg, catalog, nil, memStores())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

var snap = types.RepoSnapshot{RepoID: "testrepo", SnapshotID: "s1", RootPath: "/repo"}

const sqlInjectionRules = `
rules:
  - id: py-request-source
    language: python
    fqn: req.GET.__getitem__
    category: source
    label: SQLInjection
    severity: high
  - id: py-sql-sink
    language: python
    fqn: db.execute
    category: sink
    label: SQLInjection
    severity: high
    cwe: CWE-89
    arg_index: 0
`

// The classic string-concatenation SQL injection.
func TestFullBuild_SQLInjection(t *testing.T) {
	catalog, err := taint.ParseCatalog([]byte(sqlInjectionRules))
	require.NoError(t, err)
	p := newTestPipeline(t, testConfig(t), catalog)

	files := []types.SourceFile{srcFile("handler.py", strings.Join([]string{
		"def handler(req):",
		`    q = "SELECT * FROM t WHERE id=" + req.GET["id"]`,
		"    db.execute(q)",
		"",
	}, "\n"))}

	res, err := p.FullBuild(context.Background(), snap, files)
	require.NoError(t, err)
	require.Len(t, res.Taint.Findings, 1)

	f := res.Taint.Findings[0]
	assert.Equal(t, "SQLInjection", f.Category)
	assert.Equal(t, "high", f.Severity)
	assert.Equal(t, "CWE-89", f.CWE)
	assert.Empty(t, f.SanitizersEncountered)
	assert.Equal(t, 2, f.SourceOccurrence.Span.StartLine, "path begins at the subscript read")
	assert.Equal(t, 3, f.SinkOccurrence.Span.StartLine, "and ends at the execute call")
	assert.GreaterOrEqual(t, len(f.Path), 2)
}

// Dereferencing a None-assigned variable: the literal binds the variable
// through the `literal.None` pseudo-source, the attribute read sinks it
// through `object.__getattr__`.
func TestFullBuild_NullDereference(t *testing.T) {
	catalog, err := taint.ParseCatalog([]byte(`
rules:
  - id: py-none-literal
    language: python
    fqn: literal.None
    category: source
    label: NullDereference
    severity: medium
  - id: py-attr-deref
    language: python
    fqn: object.__getattr__
    category: sink
    label: NullDereference
    severity: medium
    cwe: CWE-476
    arg_index: 0
`))
	require.NoError(t, err)
	p := newTestPipeline(t, testConfig(t), catalog)

	files := []types.SourceFile{srcFile("nil.py", strings.Join([]string{
		"def f():",
		"    x = None",
		"    return x.value",
		"",
	}, "\n"))}

	res, err := p.FullBuild(context.Background(), snap, files)
	require.NoError(t, err)
	require.Len(t, res.Taint.Findings, 1)

	f := res.Taint.Findings[0]
	assert.Equal(t, "NullDereference", f.Category)
	assert.Equal(t, "CWE-476", f.CWE)
	assert.Equal(t, 2, f.SourceOccurrence.Span.StartLine, "path begins at the None literal")
	assert.Equal(t, 3, f.SinkOccurrence.Span.StartLine, "and ends at the attribute read")
}

func TestFullBuild_SanitizerClearsLabel(t *testing.T) {
	catalog, err := taint.ParseCatalog([]byte(sqlInjectionRules + `
  - id: py-quote-sanitizer
    language: python
    fqn: db.quote
    category: sanitizer
    label: SQLInjection
`))
	require.NoError(t, err)
	p := newTestPipeline(t, testConfig(t), catalog)

	files := []types.SourceFile{srcFile("handler.py", strings.Join([]string{
		"def handler(req):",
		`    raw = req.GET["id"]`,
		"    q = db.quote(raw)",
		"    db.execute(q)",
		"",
	}, "\n"))}

	res, err := p.FullBuild(context.Background(), snap, files)
	require.NoError(t, err)
	assert.Empty(t, res.Taint.Findings, "sanitized value reaching the sink is not a finding")
}

// Two full builds of identical input produce byte-identical normalized
// artifacts.
func TestFullBuild_Determinism(t *testing.T) {
	files := []types.SourceFile{
		srcFile("mod_a.py", "def foo():\n    return 1\n"),
		srcFile("mod_b.py", "from mod_a import foo\n\ndef bar():\n    return foo()\n"),
	}

	run := func() []byte {
		p := newTestPipeline(t, testConfig(t), nil)
		res, err := p.FullBuild(context.Background(), snap, files)
		require.NoError(t, err)
		payload, err := json.Marshal(res.Docs)
		require.NoError(t, err)
		return payload
	}

	assert.Equal(t, string(run()), string(run()))
}

// Cache tiers change latency, never content.
func TestFullBuild_CacheEquivalence(t *testing.T) {
	files := []types.SourceFile{
		srcFile("mod_a.py", "def foo():\n    x = 1\n    return x\n"),
	}

	build := func(cfg *config.Config) []byte {
		p := newTestPipeline(t, cfg, nil)
		// Build twice with the same pipeline: the second run reads every
		// per-file artifact from cache.
		_, err := p.FullBuild(context.Background(), snap, files)
		require.NoError(t, err)
		res, err := p.FullBuild(context.Background(), snap, files)
		require.NoError(t, err)
		payload, err := json.Marshal(res.Docs)
		require.NoError(t, err)
		return payload
	}

	cached := build(testConfig(t))

	uncachedCfg := testConfig(t)
	uncachedCfg.Cache = config.Cache{} // every tier disabled
	uncached := build(uncachedCfg)

	assert.Equal(t, string(uncached), string(cached))
}

// A body-only edit to one file rebuilds exactly that file and leaves the
// GlobalContext unchanged.
func TestIncrementalBuild_BodyOnlyChange(t *testing.T) {
	lib := srcFile("lib.py", "def helper():\n    return 1\n")
	caller := srcFile("caller.py", "from lib import helper\n\ndef use():\n    return helper()\n")

	p := newTestPipeline(t, testConfig(t), nil)
	prev, err := p.FullBuild(context.Background(), snap, []types.SourceFile{lib, caller})
	require.NoError(t, err)

	libv2 := srcFile("lib.py", "def helper():\n    return 2\n")
	cs := types.NewChangeSet()
	cs.Modified["lib.py"] = true

	res, err := p.IncrementalBuild(context.Background(), prev, cs, []types.SourceFile{libv2, caller})
	require.NoError(t, err)

	// The unaffected file's immutable IRDocument is carried forward, not
	// re-emitted.
	assert.Same(t, prev.Docs["caller.py"], res.Docs["caller.py"])
	assert.NotEqual(t, prev.Docs["lib.py"].Fingerprint.ContentHash, res.Docs["lib.py"].Fingerprint.ContentHash)

	// Same position, same FQN: the symbol index is unchanged.
	assert.Equal(t, prev.Context.SymbolIndex, res.Context.SymbolIndex)
}

func TestIncrementalBuild_DeletedFileDropsOut(t *testing.T) {
	a := srcFile("a.py", "def fa():\n    return 1\n")
	b := srcFile("b.py", "def fb():\n    return 2\n")

	p := newTestPipeline(t, testConfig(t), nil)
	prev, err := p.FullBuild(context.Background(), snap, []types.SourceFile{a, b})
	require.NoError(t, err)

	cs := types.NewChangeSet()
	cs.Deleted["b.py"] = true

	res, err := p.IncrementalBuild(context.Background(), prev, cs, []types.SourceFile{a})
	require.NoError(t, err)
	assert.Contains(t, res.Docs, "a.py")
	assert.NotContains(t, res.Docs, "b.py")
	assert.NotContains(t, res.Context.SymbolIndex, "b.fb")
}

// Moving a file without changing its content or base name keeps every FQN
// and every node id — node identity follows the FQN, never the path.
func TestFullBuild_MovePreservesFQNs(t *testing.T) {
	content := "def stable():\n    return 1\n"

	nodesOf := func(path string) map[string]types.NodeID {
		p := newTestPipeline(t, testConfig(t), nil)
		res, err := p.FullBuild(context.Background(), snap, []types.SourceFile{srcFile(path, content)})
		require.NoError(t, err)
		out := make(map[string]types.NodeID)
		for _, n := range res.Docs[path].Nodes {
			if n.Kind != types.NodeExternal {
				out[n.FQN] = n.ID
			}
		}
		return out
	}

	before := nodesOf("pkg_a/mod.py")
	after := nodesOf("pkg_b/mod.py")
	assert.Equal(t, before, after)
	require.NotEmpty(t, before)
}

func TestFullBuild_ParseErrorIsDegradedNotFatal(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)
	files := []types.SourceFile{
		srcFile("broken.py", "def broken(:\n    ???\n"),
		srcFile("fine.py", "def fine():\n    return 1\n"),
	}
	res, err := p.FullBuild(context.Background(), snap, files)
	require.NoError(t, err, "a file-level failure never fails the whole run")
	assert.True(t, res.Docs["broken.py"].Degraded)
	assert.False(t, res.Docs["fine.py"].Degraded)
	assert.NotNil(t, res.ErrorSummary())
}

func TestFullBuild_EscapeClassification(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, nil)

	// An allocation that is returned escapes via return,
	// which is neither thread-local nor a heap escape.
	files := []types.SourceFile{srcFile("alloc.py", strings.Join([]string{
		"def make():",
		"    d = {}",
		"    return d",
		"",
	}, "\n"))}

	res, err := p.FullBuild(context.Background(), snap, files)
	require.NoError(t, err)

	var state types.EscapeState
	found := false
	for _, info := range res.Escapes {
		if st, ok := info.States["d"]; ok {
			state, found = st, true
		}
	}
	require.True(t, found)
	assert.Equal(t, types.ReturnEscape, state)
	assert.False(t, state.IsThreadLocal())
	assert.False(t, state.IsHeapEscape())
}

func TestFullBuild_InvariantsHold(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)
	files := []types.SourceFile{
		srcFile("mod_a.py", "def foo():\n    return 1\n\nclass C:\n    def m(self):\n        return foo()\n"),
	}
	res, err := p.FullBuild(context.Background(), snap, files)
	require.NoError(t, err)
	assert.NoError(t, VerifyInvariants(res))
}

func TestAssembleProgram_CrossFileCallGraph(t *testing.T) {
	// Cross-file resolution at the call-graph level: mod_b calling foo links to
	// mod_a's definition through the global symbol index.
	p := newTestPipeline(t, testConfig(t), nil)
	files := []types.SourceFile{
		srcFile("mod_a.py", "def foo():\n    return 1\n"),
		srcFile("mod_b.py", "from mod_a import foo\n\ndef bar():\n    x = foo()\n    return x\n"),
	}
	res, err := p.FullBuild(context.Background(), snap, files)
	require.NoError(t, err)

	fooID := res.Context.SymbolIndex["mod_a.foo"]
	require.NotZero(t, fooID)
	barID := res.Context.SymbolIndex["mod_b.bar"]
	require.NotZero(t, barID)

	program := AssembleProgram(res.Facts, taint.Compile(nil), res.Context)
	assert.Contains(t, program.CallGraph[barID], fooID)

	// The import edge in mod_b resolves to the concrete function node, not
	// an External placeholder.
	resolvedImport := false
	for _, e := range res.Docs["mod_b.py"].Edges {
		if e.Kind == types.EdgeImports && e.ToID == fooID {
			resolvedImport = true
		}
	}
	assert.True(t, resolvedImport)

	// And the reverse dependency graph knows mod_b depends on mod_a.
	assert.True(t, res.Deps.Dependents["mod_a.py"]["mod_b.py"])
}

func TestClassifyImpacts_SignatureVsBody(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)
	orig := srcFile("m.py", "def f(a):\n    return a\n")
	prev, err := p.FullBuild(context.Background(), snap, []types.SourceFile{orig})
	require.NoError(t, err)

	cs := types.NewChangeSet()
	cs.Modified["m.py"] = true

	bodyOnly := srcFile("m.py", "def f(a):\n    return a + 1\n")
	impacts := p.classifyImpacts(prev, cs, []types.SourceFile{bodyOnly})
	assert.Equal(t, incremental.IRLocal, impacts["m.py"])

	sigChange := srcFile("m.py", "def f(a, b):\n    return a\n")
	impacts = p.classifyImpacts(prev, cs, []types.SourceFile{sigChange})
	assert.Equal(t, incremental.SignatureChange, impacts["m.py"])
}
