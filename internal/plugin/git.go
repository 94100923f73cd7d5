package plugin

import (
	"context"
	"log/slog"
	"os"

	"github.com/pacc-dev/pacc/internal/source"
)

// gitClient is the production GitClient over the system git binary.
type gitClient struct {
	fetcher *source.GitFetcher
}

// NewGitClient returns the GitClient used outside tests.
func NewGitClient(logger *slog.Logger) GitClient {
	return &gitClient{fetcher: source.NewGitFetcher(logger)}
}

// ResolveRef maps ref (tag, branch, or "" for the remote default branch)
// to its commit SHA via ls-remote.
func (g *gitClient) ResolveRef(ctx context.Context, repo, ref string) (string, error) {
	return g.fetcher.LsRemote(ctx, RepoURL(repo), ref)
}

// Fetch checks out repo at sha under dest, replacing any prior checkout.
func (g *gitClient) Fetch(ctx context.Context, repo, sha, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	resolved, err := g.fetcher.Fetch(ctx, RepoURL(repo)+"@"+sha, source.Options{})
	if err != nil {
		return err
	}
	defer resolved.Cleanup()
	if err := os.Rename(resolved.WorkingDir, dest); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		return os.CopyFS(dest, os.DirFS(resolved.WorkingDir))
	}
	return nil
}
