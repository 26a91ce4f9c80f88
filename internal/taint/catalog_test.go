package taint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
rules:
  - id: py-sql-sink
    language: python
    fqn: db.execute
    category: sink
    label: SQLInjection
    severity: high
    cwe: CWE-89
    arg_index: 0
  - id: py-request-source
    language: python
    fqn: req.GET.__getitem__
    category: source
    label: SQLInjection
    severity: high
  - id: broken-rule
    language: python
    fqn: ""
    category: sink
  - id: unknown-category
    language: python
    fqn: something
    category: wat
`

func TestParseCatalog_CompilesValidSkipsInvalid(t *testing.T) {
	catalog, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err, "individually invalid rules are skipped, not fatal")

	sinks := catalog.Match("db.execute", "db")
	require.Len(t, sinks, 1)
	assert.Equal(t, "py-sql-sink", sinks[0].ID)
	assert.Equal(t, "CWE-89", sinks[0].CWE)
	assert.Equal(t, 0, sinks[0].ArgIndex)

	sources := catalog.Match("req.GET.__getitem__", "req.GET")
	require.Len(t, sources, 1)

	assert.Empty(t, catalog.Match("something", ""))
	assert.Empty(t, catalog.Match("", ""))
}

func TestParseCatalog_MalformedYAMLIsFatal(t *testing.T) {
	_, err := ParseCatalog([]byte("rules: ["))
	require.Error(t, err)
}

func TestLoadCatalog_MissingFileIsFatal(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadCatalog_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, catalog.Match("db.execute", ""), 1)
}

func TestCatalog_BaseTypeFilter(t *testing.T) {
	catalog := Compile([]*Rule{
		{ID: "r1", FQN: "cursor.execute", BaseType: "sqlite3.Cursor", Category: "sink"},
	})
	assert.Len(t, catalog.Match("cursor.execute", "sqlite3.Cursor"), 1)
	assert.Empty(t, catalog.Match("cursor.execute", "fake.Cursor"))
}
