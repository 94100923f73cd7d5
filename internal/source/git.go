package source

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
)

// RefKind distinguishes how a git reference was requested.
type RefKind string

const (
	RefDefault RefKind = ""
	RefBranch  RefKind = "branch"
	RefTag     RefKind = "tag"
	RefCommit  RefKind = "commit"
)

var commitSHAPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// GitRef is a parsed repository reference.
type GitRef struct {
	Provider string
	Owner    string
	Repo     string
	CloneURL string
	Ref      string
	RefKind  RefKind
	Subpath  string
}

// ParseGitURL splits a repository URL into its parts. Reference forms:
// `#branch` selects a branch, `@ref` a tag or commit (commits are 7 to 40
// hex digits). GitHub-style `/tree/<ref>/<subpath>` URLs select a
// subdirectory of the clone.
func ParseGitURL(raw string) (*GitRef, error) {
	ref := &GitRef{}

	// scp-like syntax: git@host:owner/repo.git
	if strings.HasPrefix(raw, "git@") {
		rest := strings.TrimPrefix(raw, "git@")
		host, path, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, paccerr.Source("unrecognized", "malformed git URL %q", raw)
		}
		path, fragment := splitRefSuffix(path)
		owner, repo, ok := splitOwnerRepo(path)
		if !ok {
			return nil, paccerr.Source("unrecognized", "malformed git URL %q", raw)
		}
		ref.Provider = host
		ref.Owner = owner
		ref.Repo = repo
		ref.CloneURL = "git@" + host + ":" + owner + "/" + repo + ".git"
		applyRef(ref, fragment)
		return ref, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, paccerr.Source("unrecognized", "malformed git URL %q", raw).WithCause(err)
	}

	ref.Provider = strings.ToLower(u.Hostname())
	p := strings.Trim(u.Path, "/")
	p, inlineRef := splitRefSuffix(p)

	segments := strings.Split(p, "/")
	if len(segments) < 2 {
		return nil, paccerr.Source("unrecognized", "git URL %q lacks owner/repo", raw)
	}
	ref.Owner = segments[0]
	ref.Repo = strings.TrimSuffix(segments[1], ".git")

	// /owner/repo/tree/<ref>/<subpath...>
	if len(segments) >= 4 && segments[2] == "tree" {
		ref.Ref = segments[3]
		ref.RefKind = classifyRef(ref.Ref)
		if len(segments) > 4 {
			ref.Subpath = strings.Join(segments[4:], "/")
		}
	} else if len(segments) > 2 {
		return nil, paccerr.Source("unrecognized", "git URL %q has an unsupported path", raw)
	}

	scheme := u.Scheme
	if scheme == "ssh" {
		ref.CloneURL = raw
	} else {
		ref.CloneURL = scheme + "://" + u.Host + "/" + ref.Owner + "/" + ref.Repo + ".git"
	}

	// #branch wins over an inline @ref; URL fragments also carry branches.
	if u.Fragment != "" {
		ref.Ref = u.Fragment
		ref.RefKind = RefBranch
	} else if inlineRef != "" {
		applyRef(ref, inlineRef)
	}
	return ref, nil
}

// splitRefSuffix peels a trailing @ref off a repo path. The leading
// git@ user of scp URLs is handled by the caller, so any @ here is a
// reference marker.
func splitRefSuffix(p string) (string, string) {
	if i := strings.LastIndex(p, "@"); i > 0 {
		return p[:i], p[i+1:]
	}
	return p, ""
}

func splitOwnerRepo(p string) (string, string, bool) {
	owner, repo, ok := strings.Cut(strings.Trim(p, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, strings.TrimSuffix(repo, ".git"), true
}

func applyRef(ref *GitRef, value string) {
	if value == "" {
		return
	}
	if strings.HasPrefix(value, "#") {
		ref.Ref = value[1:]
		ref.RefKind = RefBranch
		return
	}
	ref.Ref = value
	ref.RefKind = classifyRef(value)
}

func classifyRef(value string) RefKind {
	if commitSHAPattern.MatchString(value) {
		return RefCommit
	}
	return RefTag
}

// GitFetcher clones repositories using the system git binary.
type GitFetcher struct {
	logger *slog.Logger
}

// NewGitFetcher returns a GitFetcher.
func NewGitFetcher(logger *slog.Logger) *GitFetcher {
	return &GitFetcher{logger: logger}
}

// Fetch clones the repository behind rawURL into a temp directory. Shallow
// clones are used except when a commit SHA is requested.
func (g *GitFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Resolved, error) {
	ref, err := ParseGitURL(rawURL)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "pacc-clone-*")
	if err != nil {
		return nil, paccerr.Filesystem("io", "creating clone directory").WithCause(err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }
	fail := func(err error) (*Resolved, error) {
		os.RemoveAll(dir)
		return nil, err
	}

	switch ref.RefKind {
	case RefCommit:
		// Shallow-fetch the single commit instead of a full clone.
		steps := [][]string{
			{"init", "--quiet", dir},
			{"-C", dir, "remote", "add", "origin", ref.CloneURL},
			{"-C", dir, "fetch", "--quiet", "--depth=1", "origin", ref.Ref},
			{"-C", dir, "checkout", "--quiet", "FETCH_HEAD"},
		}
		for _, args := range steps {
			if err := g.run(ctx, args...); err != nil {
				return fail(err)
			}
		}
	case RefBranch, RefTag:
		if err := g.run(ctx, "clone", "--quiet", "--depth=1", "--branch", ref.Ref, ref.CloneURL, dir); err != nil {
			return fail(err)
		}
	default:
		if err := g.run(ctx, "clone", "--quiet", "--depth=1", ref.CloneURL, dir); err != nil {
			return fail(err)
		}
	}

	sha, err := g.Output(ctx, "-C", dir, "rev-parse", "HEAD")
	if err != nil {
		return fail(err)
	}

	workingDir := dir
	if ref.Subpath != "" {
		if !paths.IsSafeRelative(dir, filepath.Join(dir, filepath.FromSlash(ref.Subpath))) {
			return fail(paccerr.Security("path_traversal", "subpath %q escapes the clone", ref.Subpath))
		}
		workingDir = filepath.Join(dir, filepath.FromSlash(ref.Subpath))
		if info, err := os.Stat(workingDir); err != nil || !info.IsDir() {
			return fail(paccerr.Source("unrecognized", "subpath %q not found in repository", ref.Subpath))
		}
	}

	return &Resolved{
		Kind:       KindGit,
		WorkingDir: workingDir,
		Metadata: Metadata{
			Ref:       rawURL,
			URL:       ref.CloneURL,
			CommitSHA: sha,
			Subpath:   ref.Subpath,
		},
		cleanup: cleanup,
		logger:  g.logger,
	}, nil
}

// LsRemote resolves a symbolic ref on the remote to its commit SHA
// without cloning. An empty ref resolves HEAD.
func (g *GitFetcher) LsRemote(ctx context.Context, cloneURL, ref string) (string, error) {
	args := []string{"ls-remote", cloneURL}
	if ref == "" {
		args = append(args, "HEAD")
	} else {
		args = append(args, ref, ref+"^{}")
	}
	out, err := g.Output(ctx, args...)
	if err != nil {
		return "", err
	}
	// Annotated tags list both the tag object and the peeled commit;
	// the peeled ^{} line, when present, is the one we want.
	sha := ""
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 1 {
			continue
		}
		sha = fields[0]
	}
	if sha == "" {
		return "", paccerr.Source("unreachable", "ref %q not found on %s", ref, cloneURL)
	}
	return sha, nil
}

// run executes git with no captured stdout.
func (g *GitFetcher) run(ctx context.Context, args ...string) error {
	_, err := g.Output(ctx, args...)
	return err
}

// Output executes git and returns trimmed stdout.
func (g *GitFetcher) Output(ctx context.Context, args ...string) (string, error) {
	g.logger.Debug("running git", "args", args)
	cmd := exec.CommandContext(ctx, "git", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", paccerr.Timeout("deadline", "git %s timed out", strings.Join(args, " "))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if strings.Contains(msg, "Authentication failed") || strings.Contains(msg, "could not read Username") {
			return "", paccerr.Source("auth_required", "git: %s", msg)
		}
		return "", paccerr.Source("unreachable", "git %s: %s", args[0], msg).WithCause(err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
