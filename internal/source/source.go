// Package source resolves extension sources into local working directories.
//
// A source reference may be a local path, an archive URL, or a Git
// repository URL. Resolution classifies the reference, fetches it if
// remote, and hands back a working directory plus a cleanup function the
// caller runs on every exit path.
package source

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
)

// Kind classifies a resolved source.
type Kind string

const (
	KindLocal Kind = "local"
	KindURL   Kind = "url"
	KindGit   Kind = "git"
)

// DefaultMaxSizeBytes bounds remote downloads when Options.MaxSizeBytes
// is zero.
const DefaultMaxSizeBytes int64 = 100 << 20

// DefaultTimeout bounds network and clone operations when
// Options.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// knownGitHosts are hosts whose URLs are treated as repositories even
// without a .git suffix.
var knownGitHosts = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
	"codeberg.org":  true,
	"sr.ht":         true,
}

// archiveSuffixes in match order; longer suffixes first so .tar.gz wins
// over .gz classification mistakes.
var archiveSuffixes = []string{".tar.gz", ".tar.bz2", ".tgz", ".tbz2", ".zip", ".tar"}

// Options tune a single Resolve call.
type Options struct {
	MaxSizeBytes int64
	Timeout      time.Duration
	AllowCache   bool

	// AllowedHosts, when non-empty, restricts URL fetches to the listed
	// hosts. BlockedHosts always rejects.
	AllowedHosts []string
	BlockedHosts []string
}

func (o Options) maxSize() int64 {
	if o.MaxSizeBytes > 0 {
		return o.MaxSizeBytes
	}
	return DefaultMaxSizeBytes
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

// Metadata describes how a source was obtained.
type Metadata struct {
	Ref       string `json:"ref"`
	URL       string `json:"url,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Subpath   string `json:"subpath,omitempty"`
	FromCache bool   `json:"from_cache,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Resolved is a source materialized on the local filesystem. Cleanup is
// idempotent and must be called on all exit paths; deletion failures are
// logged, never raised.
type Resolved struct {
	Kind       Kind
	WorkingDir string
	Metadata   Metadata

	cleanupOnce sync.Once
	cleanup     func() error
	logger      *slog.Logger
}

// Cleanup removes any temporary state behind the resolved source.
func (r *Resolved) Cleanup() {
	r.cleanupOnce.Do(func() {
		if r.cleanup == nil {
			return
		}
		if err := r.cleanup(); err != nil {
			r.logger.Warn("source cleanup failed", "dir", r.WorkingDir, "error", err)
		}
	})
}

// Resolver classifies and fetches source references.
type Resolver struct {
	fetcher *Fetcher
	git     *GitFetcher
	cache   *Cache
	logger  *slog.Logger
}

// NewResolver builds a Resolver with a cache rooted at the default
// source cache directory.
func NewResolver(logger *slog.Logger) *Resolver {
	return NewResolverWithCacheDir(paths.SourceCacheDir(), logger)
}

// NewResolverWithCacheDir builds a Resolver caching downloads under dir.
func NewResolverWithCacheDir(dir string, logger *slog.Logger) *Resolver {
	return &Resolver{
		fetcher: NewFetcher(logger),
		git:     NewGitFetcher(logger),
		cache:   NewCache(dir, logger),
		logger:  logger,
	}
}

// Resolve materializes ref as a local working directory.
func (r *Resolver) Resolve(ctx context.Context, ref string, opts Options) (*Resolved, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	switch Classify(ref) {
	case KindLocal:
		return r.resolveLocal(ref)
	case KindGit:
		return r.git.Fetch(ctx, ref, opts)
	case KindURL:
		return r.fetchURL(ctx, ref, opts)
	default:
		return nil, paccerr.Source("unrecognized", "cannot classify source %q", ref).
			WithSuggestion("Use a local path, an archive URL, or a Git repository URL")
	}
}

func (r *Resolver) resolveLocal(ref string) (*Resolved, error) {
	abs, err := paths.Normalize(ref)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, paccerr.Filesystem("not_found", "source %s does not exist", abs)
		}
		return nil, paccerr.Filesystem("io", "reading %s", abs).WithCause(err)
	}
	return &Resolved{
		Kind:       KindLocal,
		WorkingDir: abs,
		Metadata:   Metadata{Ref: ref},
		logger:     r.logger,
	}, nil
}

func (r *Resolver) fetchURL(ctx context.Context, ref string, opts Options) (*Resolved, error) {
	if opts.AllowCache {
		if dir, ok := r.cache.Lookup(ref); ok {
			r.logger.Debug("source cache hit", "url", ref)
			return &Resolved{
				Kind:       KindURL,
				WorkingDir: dir,
				Metadata:   Metadata{Ref: ref, URL: ref, FromCache: true},
				logger:     r.logger,
			}, nil
		}
	}

	res, err := r.fetcher.FetchArchive(ctx, ref, opts)
	if err != nil {
		return nil, err
	}
	if opts.AllowCache {
		if dir, cerr := r.cache.Store(ref, res.WorkingDir); cerr == nil {
			res.Cleanup()
			res = &Resolved{
				Kind:       KindURL,
				WorkingDir: dir,
				Metadata:   res.Metadata,
				logger:     r.logger,
			}
		} else {
			r.logger.Warn("source cache store failed", "url", ref, "error", cerr)
		}
	}
	return res, nil
}

// Classify determines the kind of a source reference without touching
// the network. Local paths win only when they resolve on the filesystem.
func Classify(ref string) Kind {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "git@") {
		return KindGit
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		// Blocked schemes classify as URL so the fetcher reports
		// Security{scheme_blocked} instead of a bare unrecognized.
		// file:// and data: refs carry no authority, so this check
		// cannot sit behind the host guard below.
		if blockedSchemes[strings.ToLower(u.Scheme)] {
			return KindURL
		}
		if u.Host != "" {
			switch u.Scheme {
			case "ssh":
				return KindGit
			case "http", "https":
				if strings.HasSuffix(u.Path, ".git") || knownGitHosts[strings.ToLower(u.Hostname())] {
					return KindGit
				}
				if isArchivePath(u.Path) {
					return KindURL
				}
				return ""
			default:
				return ""
			}
		}
	}
	if _, err := os.Stat(ref); err == nil {
		return KindLocal
	}
	if abs, err := paths.Normalize(ref); err == nil {
		if _, err := os.Stat(abs); err == nil {
			return KindLocal
		}
	}
	return ""
}

func isArchivePath(p string) bool {
	lower := strings.ToLower(p)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// ArchiveSuffix returns the recognized archive suffix of name, or "".
func ArchiveSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return suffix
		}
	}
	return ""
}
