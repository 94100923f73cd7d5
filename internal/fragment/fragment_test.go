package fragment

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/source"
	"github.com/pacc-dev/pacc/internal/validate"
)

const fragmentWithMatter = `---
title: Team conventions
description: How we name branches
tags:
  - git
  - workflow
---

Branches are named feature/<ticket>.
`

func newTestInstaller(t *testing.T) *Installer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	in := New(source.NewResolver(logger), nil, logger)
	in.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	return in
}

func writeFragment(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInstallUpdatesMemoExactly(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	require.NoError(t, os.WriteFile(scope.MemoPath(), []byte("# Proj\n\nBody\n"), 0o644))
	src := writeFragment(t, t.TempDir(), "memo.md", "# Notes\n")

	in := newTestInstaller(t)
	result, err := in.Install(context.Background(), src, scope, Options{})
	require.NoError(t, err)
	require.True(t, result.Success)

	got, err := os.ReadFile(scope.MemoPath())
	require.NoError(t, err)
	want := "# Proj\n\nBody\n\n" +
		MarkerStart + "\n" +
		"@.claude/pacc/fragments/memo.md\n" +
		MarkerEnd + "\n"
	assert.Equal(t, want, string(got))

	assert.FileExists(t, filepath.Join(scope.FragmentsRoot(), "memo.md"))
	assert.NoFileExists(t, scope.MemoPath()+".backup")
}

func TestInstallRecordsManifest(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	src := writeFragment(t, t.TempDir(), "conventions.md", fragmentWithMatter)

	in := newTestInstaller(t)
	result, err := in.Install(context.Background(), src, scope, Options{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Installed, 1)
	assert.Equal(t, "conventions", result.Installed[0].Name)
	assert.Equal(t, "@.claude/pacc/fragments/conventions.md", result.Installed[0].ReferenceLine)

	m, err := manifest.Load(scope.ManifestPath())
	require.NoError(t, err)
	require.NotNil(t, m)
	rec, ok := m.Fragments["conventions"]
	require.True(t, ok)
	assert.Equal(t, "Team conventions", rec.Title)
	assert.Equal(t, "How we name branches", rec.Description)
	assert.Equal(t, []string{"git", "workflow"}, rec.Tags)
	assert.Equal(t, ".claude/pacc/fragments/conventions.md", rec.ReferencePath)
	assert.Equal(t, "file", rec.StorageType)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), rec.InstalledAt)
}

func TestInstallDuplicate(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	src := writeFragment(t, t.TempDir(), "memo.md", "first\n")

	in := newTestInstaller(t)
	_, err := in.Install(context.Background(), src, scope, Options{})
	require.NoError(t, err)

	result, err := in.Install(context.Background(), src, scope, Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, paccerr.IsKind(result.Err, paccerr.KindConflict))
	assert.Equal(t, "name_exists", paccerr.CodeOf(result.Err))

	src2 := writeFragment(t, t.TempDir(), "memo.md", "second\n")
	result, err = in.Install(context.Background(), src2, scope, Options{Force: true})
	require.NoError(t, err)
	assert.True(t, result.Success)

	data, err := os.ReadFile(filepath.Join(scope.FragmentsRoot(), "memo.md"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))

	memo, err := os.ReadFile(scope.MemoPath())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(memo), "@.claude/pacc/fragments/memo.md"))
}

func TestInstallDryRun(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	src := writeFragment(t, t.TempDir(), "memo.md", "notes\n")

	in := newTestInstaller(t)
	result, err := in.Install(context.Background(), src, scope, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.DryRun)
	require.Len(t, result.Installed, 1)

	assert.NoFileExists(t, filepath.Join(scope.FragmentsRoot(), "memo.md"))
	assert.NoFileExists(t, scope.MemoPath())
	assert.NoFileExists(t, scope.ManifestPath())
}

func TestInstallRollsBackArtifactOnMemoFailure(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	// A directory where CLAUDE.md should be makes the memo update fail
	// after the artifact copy.
	require.NoError(t, os.Mkdir(scope.MemoPath(), 0o755))
	src := writeFragment(t, t.TempDir(), "memo.md", "notes\n")

	in := newTestInstaller(t)
	result, err := in.Install(context.Background(), src, scope, Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Error(t, result.Err)

	assert.NoFileExists(t, filepath.Join(scope.FragmentsRoot(), "memo.md"))
	assert.NoFileExists(t, scope.ManifestPath())
}

func TestInstallCollectionRequiresExplicitAll(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	dir := t.TempDir()
	writeFragment(t, dir, "a.md", "alpha\n")
	writeFragment(t, dir, "b.md", "beta\n")

	in := newTestInstaller(t)
	_, err := in.Install(context.Background(), dir, scope, Options{})
	require.Error(t, err)
	assert.Equal(t, "ambiguous_selection", paccerr.CodeOf(err))
}

func TestInstallCollectionAll(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	dir := t.TempDir()
	writeFragment(t, dir, "a.md", "alpha\n")
	writeFragment(t, dir, "b.md", "beta\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, validate.CollectionManifestName), []byte(
		`{"name":"pack","files":["a.md","b.md"]}`), 0o644))

	in := newTestInstaller(t)
	result, err := in.Install(context.Background(), dir, scope, Options{InstallAll: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Installed, 2)

	memo, err := os.ReadFile(scope.MemoPath())
	require.NoError(t, err)
	assert.Contains(t, string(memo), "@.claude/pacc/fragments/a.md")
	assert.Contains(t, string(memo), "@.claude/pacc/fragments/b.md")
}

func TestInstallCollectionInteractiveSubset(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	dir := t.TempDir()
	writeFragment(t, dir, "a.md", "alpha\n")
	writeFragment(t, dir, "b.md", "beta\n")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sel := &prompt.Scripted{Manys: [][]int{{1}}}
	in := New(source.NewResolver(logger), sel, logger)

	result, err := in.Install(context.Background(), dir, scope, Options{Interactive: true})
	require.NoError(t, err)
	require.Len(t, result.Installed, 1)
	assert.Equal(t, "b", result.Installed[0].Name)
}

func TestInstallCollectionContinuesPastFailure(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	dir := t.TempDir()
	writeFragment(t, dir, "a.md", "alpha\n")
	writeFragment(t, dir, "b.md", "beta\n")

	in := newTestInstaller(t)
	// Pre-install "a" so the batch hits a name conflict on it.
	pre := writeFragment(t, t.TempDir(), "a.md", "older\n")
	_, err := in.Install(context.Background(), pre, scope, Options{})
	require.NoError(t, err)

	result, err := in.Install(context.Background(), dir, scope, Options{InstallAll: true})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"a.md"}, result.Failed)
	require.Len(t, result.Installed, 1)
	assert.Equal(t, "b", result.Installed[0].Name)
}

func TestRemoveFragment(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	require.NoError(t, os.WriteFile(scope.MemoPath(), []byte("# Proj\n"), 0o644))
	src := writeFragment(t, t.TempDir(), "memo.md", "notes\n")

	in := newTestInstaller(t)
	_, err := in.Install(context.Background(), src, scope, Options{})
	require.NoError(t, err)

	existed, err := in.Remove(scope, "memo")
	require.NoError(t, err)
	assert.True(t, existed)

	memo, err := os.ReadFile(scope.MemoPath())
	require.NoError(t, err)
	assert.NotContains(t, string(memo), "memo.md")
	assert.Contains(t, string(memo), "# Proj\n")

	assert.NoFileExists(t, filepath.Join(scope.FragmentsRoot(), "memo.md"))
	m, err := manifest.Load(scope.ManifestPath())
	require.NoError(t, err)
	_, ok := m.Fragments["memo"]
	assert.False(t, ok)

	existed, err = in.Remove(scope, "memo")
	require.NoError(t, err)
	assert.False(t, existed)

	// Removal serializes on the same directory lock installs take, and
	// releases it: a fresh install must go through afterwards.
	assert.FileExists(t, filepath.Join(scope.FragmentsRoot(), ".lock"))
	res, err := in.Install(context.Background(), src, scope, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRemoveRejectsSymlink(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	require.NoError(t, os.MkdirAll(scope.FragmentsRoot(), 0o755))
	outside := writeFragment(t, t.TempDir(), "real.md", "data\n")
	require.NoError(t, os.Symlink(outside, filepath.Join(scope.FragmentsRoot(), "evil.md")))

	in := newTestInstaller(t)
	_, err := in.Remove(scope, "evil")
	require.Error(t, err)
	assert.True(t, paccerr.IsKind(err, paccerr.KindSecurity))
	assert.Equal(t, "path_traversal", paccerr.CodeOf(err))
	assert.FileExists(t, outside)
}

func TestCheckName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"plain", "memo", ""},
		{"hyphenated", "team-conventions", ""},
		{"empty", "", "invalid_name"},
		{"slash", "a/b", "path_traversal"},
		{"backslash", `a\b`, "path_traversal"},
		{"dotdot", "..", "path_traversal"},
		{"embedded dotdot", "a..b", "path_traversal"},
		{"nul byte", "a\x00b", "path_traversal"},
		{"device", "con", "invalid_name"},
		{"device with ext", "NUL", "invalid_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckName(tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, paccerr.CodeOf(err))
		})
	}
}

func TestMemoRoundTrip(t *testing.T) {
	original := "# Proj\n\nBody\n\n" +
		MarkerStart + "\n" +
		"@.claude/pacc/fragments/a.md\n" +
		MarkerEnd + "\n\nTrailing prose.\n"
	memo := ParseMemo([]byte(original))
	assert.Equal(t, []string{"@.claude/pacc/fragments/a.md"}, memo.Entries())
	assert.Equal(t, original, string(memo.Render()))

	memo.Add("@.claude/pacc/fragments/b.md")
	memo.Add("@.claude/pacc/fragments/b.md") // dedupe
	assert.Len(t, memo.Entries(), 2)

	assert.True(t, memo.Remove("@.claude/pacc/fragments/a.md"))
	assert.False(t, memo.Remove("@.claude/pacc/fragments/a.md"))
	rendered := string(memo.Render())
	assert.Contains(t, rendered, "b.md")
	assert.NotContains(t, rendered, "a.md")
	assert.Contains(t, rendered, "Trailing prose.\n")
}

func TestMemoUnterminatedBlockLeftAlone(t *testing.T) {
	content := "# Proj\n\n" + MarkerStart + "\n@broken.md\n"
	memo := ParseMemo([]byte(content))
	assert.Empty(t, memo.Entries())

	memo.Add("@.claude/pacc/fragments/x.md")
	rendered := string(memo.Render())
	// The broken opener stays untouched; a fresh block is appended.
	assert.Contains(t, rendered, MarkerStart+"\n@broken.md\n")
	assert.Contains(t, rendered, "@.claude/pacc/fragments/x.md\n"+MarkerEnd+"\n")
}

func TestMemoCreatesBlockWithoutTrailingNewline(t *testing.T) {
	memo := ParseMemo([]byte("# Proj"))
	memo.Add("@x.md")
	want := "# Proj\n\n" + MarkerStart + "\n@x.md\n" + MarkerEnd + "\n"
	assert.Equal(t, want, string(memo.Render()))
}
