package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/manifest"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestManifestDeclarationWinsOverContent(t *testing.T) {
	root := t.TempDir()
	// Front matter screams "agent" (tools + model) but the manifest says command.
	path := writeFile(t, root, "misc/deploy.md",
		"---\nname: deploy\ntools: [Bash]\nmodel: opus\n---\nDeploy with $ARGUMENTS\n")

	ctx := &ProjectContext{
		Root: root,
		Manifest: &manifest.Manifest{Extensions: map[string][]string{
			"commands": {"misc/deploy.md"},
		}},
	}

	require.Equal(t, extension.KindCommands, Detect(path, ctx))
}

func TestDirectoryStructureTier(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		rel  string
		want extension.Kind
	}{
		{"hooks/fmt.json", extension.KindHooks},
		{"hook/fmt.json", extension.KindHooks},
		{"commands/deploy.md", extension.KindCommands},
		{"agents/reviewer.md", extension.KindAgents},
		{"mcp/server.json", extension.KindMCP},
		{"mcps/server.json", extension.KindMCP},
		{"fragments/memo.md", extension.KindFragments},
		{"agents/nested/deep.md", extension.KindAgents},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			path := writeFile(t, root, tt.rel, "irrelevant")
			require.Equal(t, tt.want, Detect(path, &ProjectContext{Root: root}))
		})
	}
}

func TestDirectoryTierStopsAtProjectRoot(t *testing.T) {
	outer := t.TempDir()
	root := filepath.Join(outer, "agents", "proj")
	path := writeFile(t, root, "misc/file.txt", "x")

	// "agents" is above the project root and must not count.
	require.Equal(t, extension.KindNone, Detect(path, &ProjectContext{Root: root}))
}

func TestContentHeuristics(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		rel     string
		content string
		want    extension.Kind
	}{
		{
			"hook json",
			"misc/a.json",
			`{"name": "fmt", "eventTypes": ["PreToolUse"], "commands": ["echo"]}`,
			extension.KindHooks,
		},
		{
			"mcp by sole command",
			"misc/b.json",
			`{"name": "srv", "command": "node"}`,
			extension.KindMCP,
		},
		{
			"mcp by mcpServers",
			"misc/c.json",
			`{"mcpServers": {"srv": {"command": "node"}}}`,
			extension.KindMCP,
		},
		{
			"command by slash name",
			"misc/d.md",
			"---\nname: /deploy\ndescription: Deploys\n---\nRun it\n",
			extension.KindCommands,
		},
		{
			"command by allowed-tools",
			"misc/e.md",
			"---\ndescription: x\nallowed-tools: [Bash]\n---\nBody\n",
			extension.KindCommands,
		},
		{
			"agent by tools and model",
			"misc/f.md",
			"---\nname: reviewer\ntools: [Read]\nmodel: opus\n---\nReview\n",
			extension.KindAgents,
		},
		{
			"fragment by tags",
			"misc/g.md",
			"---\ntitle: Style\ntags: [go]\n---\nProse\n",
			extension.KindFragments,
		},
		{
			"fragment by category",
			"misc/h.md",
			"---\ncategory: conventions\n---\nProse\n",
			extension.KindFragments,
		},
		{
			"plain markdown no signals",
			"misc/i.md",
			"# Just a doc\n",
			extension.KindNone,
		},
		{
			"unrelated json",
			"misc/j.json",
			`{"foo": 1}`,
			extension.KindNone,
		},
		{
			"unknown extension",
			"misc/k.txt",
			"anything",
			extension.KindNone,
		},
		{
			"invalid json",
			"misc/l.json",
			`{broken`,
			extension.KindNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, root, tt.rel, tt.content)
			require.Equal(t, tt.want, Detect(path, &ProjectContext{Root: root}))
		})
	}
}

func TestHooksWinTieOverMCP(t *testing.T) {
	root := t.TempDir()
	// Both eventTypes and command present: hooks ranks first in the fixed order.
	path := writeFile(t, root, "misc/both.json",
		`{"name": "x", "eventTypes": ["PreToolUse"], "command": "echo"}`)

	require.Equal(t, extension.KindHooks, Detect(path, &ProjectContext{Root: root}))
}

func TestDetectWithoutContext(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "hooks/fmt.json", `{}`)

	require.Equal(t, extension.KindHooks, Detect(path, nil))
}

func TestDetectMissingFile(t *testing.T) {
	require.Equal(t, extension.KindNone, Detect(filepath.Join(t.TempDir(), "misc", "nope.json"), nil))
}
