package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/settings"
)

// Plan computes the differential between the declared plugin set and the
// installed repositories. Resolution failures surface as skips so one
// unreachable remote never blocks planning the rest.
func (e *Engine) Plan(ctx context.Context, opts Options) (*SyncPlan, []string, error) {
	specs, warnings, err := e.DeclaredSpecs(opts)
	if err != nil {
		return nil, nil, err
	}

	state, err := e.store.Load()
	if err != nil {
		return nil, warnings, err
	}

	plan := &SyncPlan{}
	declared := map[string]bool{}
	for _, spec := range specs {
		declared[spec.Repository] = true

		sha, err := e.resolveSpec(ctx, spec)
		if err != nil {
			plan.Skip = append(plan.Skip, SkipStep{Spec: spec, Reason: "resolve failed: " + err.Error()})
			warnings = append(warnings, fmt.Sprintf("%s: %v", spec.Repository, err))
			continue
		}

		installed, ok := state.Repositories[spec.Repository]
		switch {
		case !ok:
			plan.Install = append(plan.Install, InstallStep{Spec: spec, SHA: sha})
		case !sameSHA(installed.CommitSHA, sha):
			plan.Update = append(plan.Update, UpdateStep{Spec: spec, OldSHA: installed.CommitSHA, NewSHA: sha})
		default:
			plan.Skip = append(plan.Skip, SkipStep{Spec: spec, Reason: "up to date"})
		}
	}

	if opts.Prune {
		for repo := range state.Repositories {
			if !declared[repo] {
				plan.Remove = append(plan.Remove, repo)
			}
		}
	}
	return plan, warnings, nil
}

// resolveSpec maps a specifier's version to a commit SHA. Commit refs
// pass through verbatim; everything else consults the remote.
func (e *Engine) resolveSpec(ctx context.Context, spec manifest.Specifier) (string, error) {
	switch manifest.RefKindOf(spec.Version) {
	case manifest.RefCommit:
		return spec.Version, nil
	case manifest.RefFloating:
		return e.git.ResolveRef(ctx, spec.Repository, "")
	default:
		return e.git.ResolveRef(ctx, spec.Repository, spec.Version)
	}
}

func sameSHA(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	// A short spec SHA matches the full installed SHA it prefixes.
	if len(a) < len(b) {
		return b[:len(a)] == a
	}
	if len(b) < len(a) {
		return a[:len(b)] == b
	}
	return a == b
}

// Sync plans and applies in one call. With DryRun the plan is returned
// unapplied.
func (e *Engine) Sync(ctx context.Context, opts Options) *Result {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	plan, warnings, err := e.Plan(ctx, opts)
	if err != nil {
		return &Result{Warnings: warnings, Err: err}
	}

	result := &Result{
		Plan:         plan,
		Warnings:     warnings,
		SkippedCount: len(plan.Skip),
		DryRun:       opts.DryRun,
	}
	if opts.DryRun {
		result.Success = true
		return result
	}

	e.apply(ctx, plan, result)

	planned := len(plan.Install) + len(plan.Update) + len(plan.Remove)
	succeeded := result.InstalledCount + result.UpdatedCount + result.RemovedCount
	result.Success = planned == 0 || succeeded > 0
	if !result.Success {
		result.Err = paccerr.Source("unreachable", "all %d planned plugin operations failed", planned)
	}
	return result
}

// apply executes the plan remove → install → update. Each step is
// isolated: a failure records the repository and moves on.
func (e *Engine) apply(ctx context.Context, plan *SyncPlan, result *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, repo := range plan.Remove {
		if err := e.removeRepo(repo); err != nil {
			result.FailedPlugins = append(result.FailedPlugins, repo)
			result.Warnings = append(result.Warnings, fmt.Sprintf("remove %s: %v", repo, err))
			continue
		}
		result.RemovedCount++
	}

	for _, step := range plan.Install {
		if err := e.installRepo(ctx, step.Spec, step.SHA); err != nil {
			result.FailedPlugins = append(result.FailedPlugins, step.Spec.Repository)
			result.Warnings = append(result.Warnings, fmt.Sprintf("install %s: %v", step.Spec.Repository, err))
			continue
		}
		result.InstalledCount++
	}

	for _, step := range plan.Update {
		if err := e.installRepo(ctx, step.Spec, step.NewSHA); err != nil {
			result.FailedPlugins = append(result.FailedPlugins, step.Spec.Repository)
			result.Warnings = append(result.Warnings, fmt.Sprintf("update %s: %v", step.Spec.Repository, err))
			continue
		}
		result.UpdatedCount++
	}
}

// installRepo materializes the repository at sha and records it. Used
// for both installs and updates; Fetch overwrites the checkout.
func (e *Engine) installRepo(ctx context.Context, spec manifest.Specifier, sha string) error {
	dest := e.repoDir(spec.Repository)
	if err := paths.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	if err := e.git.Fetch(ctx, spec.Repository, sha, dest); err != nil {
		return err
	}

	if err := e.validatePluginManifest(dest); err != nil {
		os.RemoveAll(dest)
		return err
	}

	_, err := e.store.UpdateAtomic(func(s *settings.Settings) error {
		if s.Repositories == nil {
			s.Repositories = map[string]settings.RepoState{}
		}
		s.Repositories[spec.Repository] = settings.RepoState{
			Version:     spec.Version,
			CommitSHA:   sha,
			URL:         RepoURL(spec.Repository),
			LastUpdated: time.Now().UTC(),
			Plugins:     spec.Plugins,
		}
		if len(spec.Plugins) > 0 {
			if s.EnabledPlugins == nil {
				s.EnabledPlugins = map[string][]string{}
			}
			s.EnabledPlugins[spec.Repository] = spec.Plugins
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("plugin synced", "repo", spec.Repository, "sha", sha)
	return nil
}

func (e *Engine) removeRepo(repo string) error {
	dir := e.repoDir(repo)
	if _, err := os.Stat(dir); err == nil {
		if !paths.IsSafeRelative(e.scope.PluginsRoot(), dir) {
			return paccerr.Security("path_traversal", "repository directory %s escapes the plugin root", dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			return paccerr.Filesystem("io", "deleting %s", dir).WithCause(err)
		}
	}
	_, err := e.store.UpdateAtomic(func(s *settings.Settings) error {
		delete(s.Repositories, repo)
		delete(s.EnabledPlugins, repo)
		return nil
	})
	if err == nil {
		e.logger.Info("plugin removed", "repo", repo)
	}
	return err
}

func (e *Engine) repoDir(repo string) string {
	return filepath.Join(e.scope.PluginsRoot(), filepath.FromSlash(repo))
}

// RepoURL expands an "owner/repo" identifier to its clone URL.
func RepoURL(repo string) string {
	return "https://github.com/" + repo + ".git"
}
