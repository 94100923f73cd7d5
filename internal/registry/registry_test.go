package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

const sampleCatalog = `
[[entries]]
name = "fmt-check"
kind = "hooks"
description = "Runs gofmt before every commit"
url = "https://github.com/acme/fmt-check"
tags = ["formatting", "git"]

[[entries]]
name = "pg-mcp"
kind = "mcps"
description = "Postgres MCP server"
url = "https://github.com/acme/pg-mcp"

[[entries]]
name = "acme-tools"
kind = "plugin"
description = "Internal tooling plugin"
url = "https://github.com/acme/tools"
tags = ["internal"]
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndGet(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)
	require.Len(t, c.Entries, 3)

	e, ok := c.Get("pg-mcp")
	require.True(t, ok)
	assert.Equal(t, "mcps", e.Kind)
	assert.Equal(t, "https://github.com/acme/pg-mcp", e.URL)

	_, ok = c.Get("nope")
	assert.False(t, ok)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
	assert.Empty(t, c.Search("anything", ""))
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not toml", "entries = {"},
		{"missing name", "[[entries]]\nkind = \"hooks\"\nurl = \"https://x\""},
		{"unknown kind", "[[entries]]\nname = \"x\"\nkind = \"widget\"\nurl = \"https://x\""},
		{"duplicate", sampleCatalog + "\n[[entries]]\nname = \"fmt-check\"\nkind = \"hooks\"\nurl = \"https://y\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeCatalog(t, tt.content))
			require.Error(t, err)
			assert.True(t, paccerr.IsKind(err, paccerr.KindConfiguration))
		})
	}
}

func TestSearch(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	hits := c.Search("postgres", "")
	require.Len(t, hits, 1)
	assert.Equal(t, "pg-mcp", hits[0].Name)

	// Tag search.
	hits = c.Search("formatting", "")
	require.Len(t, hits, 1)
	assert.Equal(t, "fmt-check", hits[0].Name)

	// Kind narrowing.
	hits = c.Search("", "plugin")
	require.Len(t, hits, 1)
	assert.Equal(t, "acme-tools", hits[0].Name)

	// Empty query lists everything name-sorted.
	all := c.Search("", "")
	require.Len(t, all, 3)
	assert.Equal(t, "acme-tools", all[0].Name)

	// Fuzzy fallback.
	hits = c.Search("fmtchk", "")
	require.NotEmpty(t, hits)
	assert.Equal(t, "fmt-check", hits[0].Name)
}
