package doctor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/settings"
)

func statusOf(t *testing.T, report *Report, name string) Severity {
	t.Helper()
	worst := SeverityPass
	found := false
	for _, res := range report.Results {
		if res.Name == name {
			found = true
			if res.Status > worst {
				worst = res.Status
			}
		}
	}
	require.True(t, found, "no result named %q", name)
	return worst
}

func TestVerifyEmptyScope(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	report := VerifyScope(scope)
	assert.False(t, report.HasErrors())
	assert.Equal(t, SeverityPass, statusOf(t, report, "settings"))
	assert.Equal(t, SeverityPass, statusOf(t, report, "fragments"))
}

func TestVerifyDetectsBrokenSettings(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	require.NoError(t, os.MkdirAll(scope.ConfigDir(), 0o755))
	require.NoError(t, os.WriteFile(scope.SettingsPath(), []byte("{nope"), 0o644))

	report := VerifyScope(scope)
	assert.True(t, report.HasErrors())
	assert.Equal(t, SeverityError, statusOf(t, report, "settings"))
}

func TestVerifyDetectsMissingArtifact(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	s := settings.New()
	require.NoError(t, s.AddRecord(extension.KindHooks, extension.Record{
		Name: "fmt",
		Path: ".claude/hooks/fmt.json",
	}))
	require.NoError(t, settings.NewStore(scope.SettingsPath()).Save(s))

	report := VerifyScope(scope)
	assert.False(t, report.HasErrors())
	assert.Equal(t, SeverityWarning, statusOf(t, report, "artifacts"))
}

func TestVerifyDetectsFragmentDrift(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	memo := "# Proj\n\n<!-- PACC:fragments:START -->\n@.claude/pacc/fragments/ghost.md\n<!-- PACC:fragments:END -->\n"
	require.NoError(t, os.WriteFile(scope.MemoPath(), []byte(memo), 0o644))

	report := VerifyScope(scope)
	assert.Equal(t, SeverityWarning, statusOf(t, report, "fragments"))
}

func TestVerifyFragmentAgreement(t *testing.T) {
	scope := paths.ProjectScopeAt(t.TempDir())
	memo := "<!-- PACC:fragments:START -->\n@.claude/pacc/fragments/memo.md\n<!-- PACC:fragments:END -->\n"
	require.NoError(t, os.WriteFile(scope.MemoPath(), []byte(memo), 0o644))
	manifestJSON := `{"fragments":{"memo":{"installed_at":"2026-03-01T12:00:00Z","reference_path":".claude/pacc/fragments/memo.md"}}}`
	require.NoError(t, os.WriteFile(scope.ManifestPath(), []byte(manifestJSON), 0o644))

	report := VerifyScope(scope)
	assert.False(t, report.HasErrors())
	assert.Equal(t, SeverityPass, statusOf(t, report, "fragments"))
}
