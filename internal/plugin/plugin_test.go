package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/logging"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/settings"
)

// fakeGit resolves and fetches from an in-memory ref table.
type fakeGit struct {
	refs      map[string]string
	failFetch map[string]bool
	fetched   []string
}

func (f *fakeGit) ResolveRef(ctx context.Context, repo, ref string) (string, error) {
	sha, ok := f.refs[repo+"@"+ref]
	if !ok {
		return "", paccerr.Source("unreachable", "ref %q not found on %s", ref, repo)
	}
	return sha, nil
}

func (f *fakeGit) Fetch(ctx context.Context, repo, sha, dest string) error {
	if f.failFetch[repo] {
		return paccerr.Source("unreachable", "fetch %s failed", repo)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	f.fetched = append(f.fetched, repo+"@"+sha)
	return os.WriteFile(filepath.Join(dest, "README.md"), []byte(repo+"\n"), 0o644)
}

func writeManifest(t *testing.T, path string, m *manifest.Manifest) {
	t.Helper()
	require.NoError(t, m.Save(path))
}

func specOf(t *testing.T, s string) manifest.Specifier {
	t.Helper()
	spec, err := manifest.ParseSpecifier(s)
	require.NoError(t, err)
	return spec
}

func newTestEngine(t *testing.T, git GitClient, selector prompt.Selector) (*Engine, paths.Scope) {
	t.Helper()
	scope := paths.ProjectScopeAt(t.TempDir())
	return NewEngine(scope, git, selector, logging.ForTest(t)), scope
}

const shaA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const shaB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func TestDeclaredSpecsPrecedence(t *testing.T) {
	git := &fakeGit{}
	engine, scope := newTestEngine(t, git, nil)

	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
			specOf(t, "team/p@v1.0.0"),
			specOf(t, "team/q@v2.0.0"),
		}},
		Environments: map[string]manifest.PluginsSection{
			"staging": {Repositories: []manifest.Specifier{specOf(t, "team/q@v2.1.0")}},
		},
	})
	writeManifest(t, scope.LocalOverridePath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
			specOf(t, "team/p@v1.1.0"),
		}},
	})

	specs, warnings, err := engine.DeclaredSpecs(Options{Environment: "staging", Policy: PolicyLocal})
	require.NoError(t, err)
	require.Len(t, specs, 2)

	byRepo := map[string]string{}
	for _, s := range specs {
		byRepo[s.Repository] = s.Version
	}
	assert.Equal(t, "v1.1.0", byRepo["team/p"], "local override wins")
	assert.Equal(t, "v2.1.0", byRepo["team/q"], "environment overrides base")
	assert.Len(t, warnings, 2)
}

func TestDeclaredSpecsUnknownEnvironment(t *testing.T) {
	engine, scope := newTestEngine(t, &fakeGit{}, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{})

	_, _, err := engine.DeclaredSpecs(Options{Environment: "prod"})
	require.Error(t, err)
	assert.Equal(t, "unknown_environment", paccerr.CodeOf(err))
}

func TestConflictPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   ConflictPolicy
		selector prompt.Selector
		want     string
	}{
		{"local keeps override", PolicyLocal, nil, "v1.1.0"},
		{"team keeps base", PolicyTeam, nil, "v1.0.0"},
		{"merge takes higher semver", PolicyMerge, nil, "v1.1.0"},
		{"prompt asks the user", PolicyPrompt, &prompt.Scripted{Ones: []int{0}}, "v1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, scope := newTestEngine(t, &fakeGit{}, tt.selector)
			writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
				Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
					specOf(t, "team/p@v1.0.0"),
				}},
			})
			writeManifest(t, scope.LocalOverridePath(), &manifest.Manifest{
				Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
					specOf(t, "team/p@v1.1.0"),
				}},
			})

			specs, warnings, err := engine.DeclaredSpecs(Options{
				Policy:      tt.policy,
				Interactive: tt.selector != nil,
			})
			require.NoError(t, err)
			require.Len(t, specs, 1)
			assert.Equal(t, tt.want, specs[0].Version)
			assert.Len(t, warnings, 1)
		})
	}
}

func TestConflictPolicyMergeNonSemver(t *testing.T) {
	engine, scope := newTestEngine(t, &fakeGit{}, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
			specOf(t, "team/p@" + shaA),
		}},
	})
	writeManifest(t, scope.LocalOverridePath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
			specOf(t, "team/p@main"),
		}},
	})

	specs, _, err := engine.DeclaredSpecs(Options{Policy: PolicyMerge})
	require.NoError(t, err)
	assert.Equal(t, shaA, specs[0].Version, "a commit SHA outranks a branch name")
}

func TestConflictPromptRequiresInteractive(t *testing.T) {
	engine, scope := newTestEngine(t, &fakeGit{}, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{specOf(t, "team/p@v1.0.0")}},
	})
	writeManifest(t, scope.LocalOverridePath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{specOf(t, "team/p@v1.1.0")}},
	})

	_, _, err := engine.DeclaredSpecs(Options{Policy: PolicyPrompt})
	require.Error(t, err)
	assert.Equal(t, "prompt_unavailable", paccerr.CodeOf(err))
}

func TestPlanMergeConflict(t *testing.T) {
	// Declared v1.0.0 in the manifest, v1.1.0 locally, merge policy:
	// expect one install of v1.1.0 and a conflict warning.
	git := &fakeGit{refs: map[string]string{"team/p@v1.1.0": shaB}}
	engine, scope := newTestEngine(t, git, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{specOf(t, "team/p@v1.0.0")}},
	})
	writeManifest(t, scope.LocalOverridePath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{specOf(t, "team/p@v1.1.0")}},
	})

	plan, warnings, err := engine.Plan(context.Background(), Options{Policy: PolicyMerge})
	require.NoError(t, err)
	require.Len(t, plan.Install, 1)
	assert.Equal(t, "v1.1.0", plan.Install[0].Spec.Version)
	assert.Equal(t, shaB, plan.Install[0].SHA)
	assert.Len(t, warnings, 1)
}

func TestPlanInstallUpdateSkip(t *testing.T) {
	git := &fakeGit{refs: map[string]string{
		"team/new@v1.0.0":  shaA,
		"team/stale@":      shaB,
		"team/current@":    shaA,
	}}
	engine, scope := newTestEngine(t, git, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
			specOf(t, "team/new@v1.0.0"),
			specOf(t, "team/stale"),
			specOf(t, "team/current"),
		}},
	})
	seedRepoState(t, scope, map[string]string{
		"team/stale":   shaA,
		"team/current": shaA,
		"team/orphan":  shaB,
	})

	plan, _, err := engine.Plan(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, plan.Install, 1)
	assert.Equal(t, "team/new", plan.Install[0].Spec.Repository)
	require.Len(t, plan.Update, 1)
	assert.Equal(t, "team/stale", plan.Update[0].Spec.Repository)
	assert.Equal(t, shaA, plan.Update[0].OldSHA)
	assert.Equal(t, shaB, plan.Update[0].NewSHA)
	require.Len(t, plan.Skip, 1)
	assert.Equal(t, "team/current", plan.Skip[0].Spec.Repository)
	assert.Empty(t, plan.Remove, "pruning is opt-in")

	plan, _, err = engine.Plan(context.Background(), Options{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"team/orphan"}, plan.Remove)
}

func seedRepoState(t *testing.T, scope paths.Scope, repos map[string]string) {
	t.Helper()
	store := settings.NewStore(scope.PluginConfigPath())
	_, err := store.UpdateAtomic(func(s *settings.Settings) error {
		if s.Repositories == nil {
			s.Repositories = map[string]settings.RepoState{}
		}
		for repo, sha := range repos {
			s.Repositories[repo] = settings.RepoState{CommitSHA: sha, URL: RepoURL(repo)}
			require.NoError(t, os.MkdirAll(filepath.Join(scope.PluginsRoot(), filepath.FromSlash(repo)), 0o755))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSyncApplies(t *testing.T) {
	git := &fakeGit{refs: map[string]string{"team/p@v1.0.0": shaA}}
	engine, scope := newTestEngine(t, git, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{specOf(t, "team/p@v1.0.0")}},
	})

	result := engine.Sync(context.Background(), Options{})
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.InstalledCount)
	assert.Equal(t, []string{"team/p@" + shaA}, git.fetched)
	assert.DirExists(t, filepath.Join(scope.PluginsRoot(), "team", "p"))

	state, err := settings.NewStore(scope.PluginConfigPath()).Load()
	require.NoError(t, err)
	repo, ok := state.Repositories["team/p"]
	require.True(t, ok)
	assert.Equal(t, shaA, repo.CommitSHA)
	assert.Equal(t, "v1.0.0", repo.Version)

	// Re-sync is idempotent: everything skips.
	result = engine.Sync(context.Background(), Options{})
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.InstalledCount)
	assert.Equal(t, 1, result.SkippedCount)
}

func TestSyncPartialFailure(t *testing.T) {
	git := &fakeGit{
		refs: map[string]string{
			"team/good@v1.0.0": shaA,
			"team/bad@v1.0.0":  shaB,
		},
		failFetch: map[string]bool{"team/bad": true},
	}
	engine, scope := newTestEngine(t, git, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{
			specOf(t, "team/good@v1.0.0"),
			specOf(t, "team/bad@v1.0.0"),
		}},
	})

	result := engine.Sync(context.Background(), Options{})
	assert.True(t, result.Success, "one success keeps the sync successful")
	assert.Equal(t, 1, result.InstalledCount)
	assert.Equal(t, []string{"team/bad"}, result.FailedPlugins)
}

func TestSyncAllFail(t *testing.T) {
	git := &fakeGit{
		refs:      map[string]string{"team/bad@v1.0.0": shaA},
		failFetch: map[string]bool{"team/bad": true},
	}
	engine, scope := newTestEngine(t, git, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{specOf(t, "team/bad@v1.0.0")}},
	})

	result := engine.Sync(context.Background(), Options{})
	assert.False(t, result.Success)
	require.Error(t, result.Err)
}

func TestSyncDryRun(t *testing.T) {
	git := &fakeGit{refs: map[string]string{"team/p@v1.0.0": shaA}}
	engine, scope := newTestEngine(t, git, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{
		Plugins: manifest.PluginsSection{Repositories: []manifest.Specifier{specOf(t, "team/p@v1.0.0")}},
	})

	result := engine.Sync(context.Background(), Options{DryRun: true})
	assert.True(t, result.Success)
	assert.True(t, result.DryRun)
	require.NotNil(t, result.Plan)
	assert.Len(t, result.Plan.Install, 1)
	assert.Empty(t, git.fetched)
	assert.NoFileExists(t, scope.PluginConfigPath())
}

func TestSyncRemovesPruned(t *testing.T) {
	git := &fakeGit{}
	engine, scope := newTestEngine(t, git, nil)
	writeManifest(t, scope.ManifestPath(), &manifest.Manifest{})
	seedRepoState(t, scope, map[string]string{"team/orphan": shaA})

	result := engine.Sync(context.Background(), Options{Prune: true})
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RemovedCount)
	assert.NoDirExists(t, filepath.Join(scope.PluginsRoot(), "team", "orphan"))

	state, err := settings.NewStore(scope.PluginConfigPath()).Load()
	require.NoError(t, err)
	_, ok := state.Repositories["team/orphan"]
	assert.False(t, ok)
}

func TestResolveSpecCommitVerbatim(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGit{}, nil)
	sha, err := engine.resolveSpec(context.Background(), specOf(t, fmt.Sprintf("team/p@%s", shaA)))
	require.NoError(t, err)
	assert.Equal(t, shaA, sha)
}

func TestPluginManifestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Manifest
		wantErr string
	}{
		{"valid", Manifest{Name: "code-review", Version: "1.2.0"}, ""},
		{"underscores ok", Manifest{Name: "a_b2"}, ""},
		{"uppercase rejected", Manifest{Name: "Bad"}, "invalid_plugin_name"},
		{"trailing dash rejected", Manifest{Name: "bad-"}, "invalid_plugin_name"},
		{"empty rejected", Manifest{Name: ""}, "invalid_plugin_name"},
		{"bad version", Manifest{Name: "ok", Version: "1.2"}, "invalid_plugin_version"},
		{"major only rejected", Manifest{Name: "ok", Version: "2"}, "invalid_plugin_version"},
		{"prerelease ok", Manifest{Name: "ok", Version: "1.2.0-rc.1"}, ""},
		{"build metadata ok", Manifest{Name: "ok", Version: "1.2.0+build.5"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, paccerr.CodeOf(err))
		})
	}
}
