package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

// AppName is the application name used for cache and config directories.
const AppName = "pacc"

// Well-known file and directory names.
const (
	ClaudeDir        = ".claude"
	SettingsFile     = "settings.json"
	PluginsDir       = "plugins"
	PluginConfigFile = "config.json"
	FragmentsDir     = "pacc/fragments"
	ManifestFile     = "pacc.json"
	LocalOverride    = "pacc.local.json"
	MemoFile         = "CLAUDE.md"
)

// DefaultDirPerm is the permission for newly created pacc directories.
const DefaultDirPerm = 0o755

// Sentinel errors for path resolution.
var (
	// ErrHomeDirNotFound indicates the user's home directory could not be determined.
	ErrHomeDirNotFound = errors.New("home directory not found")

	// ErrProjectNotFound indicates no ancestor directory carries a project manifest.
	ErrProjectNotFound = errors.New("project root not found")
)

// ScopeKind selects one of the two storage roots.
type ScopeKind string

const (
	// ScopeUser is the per-host storage root under the home directory.
	ScopeUser ScopeKind = "user"
	// ScopeProject is the per-working-tree storage root.
	ScopeProject ScopeKind = "project"
)

// Scope binds a ScopeKind to its resolved root directory. For ScopeUser the
// root is the home directory; for ScopeProject it is the project root.
type Scope struct {
	Kind ScopeKind
	Root string
}

// UserScope resolves the user scope from the home directory.
func UserScope() (Scope, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Scope{}, errors.Wrap(ErrHomeDirNotFound, err.Error())
	}
	return Scope{Kind: ScopeUser, Root: home}, nil
}

// ProjectScope resolves the project scope by walking upward from dir until a
// directory containing pacc.json or a .claude directory is found.
func ProjectScope(dir string) (Scope, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Scope{}, errors.Wrap(err, "resolving start directory")
	}
	cur := abs
	for {
		if fileExists(filepath.Join(cur, ManifestFile)) || dirExists(filepath.Join(cur, ClaudeDir)) {
			return Scope{Kind: ScopeProject, Root: cur}, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return Scope{}, errors.Wrapf(ErrProjectNotFound, "no %s or %s above %s", ManifestFile, ClaudeDir, abs)
}

// ProjectScopeAt anchors a project scope at dir without searching ancestors.
// Used when the caller already knows the project root (tests, façade).
func ProjectScopeAt(dir string) Scope {
	return Scope{Kind: ScopeProject, Root: dir}
}

// ConfigDir returns the scope's .claude directory.
func (s Scope) ConfigDir() string {
	return filepath.Join(s.Root, ClaudeDir)
}

// SettingsPath returns the scope's settings.json path.
func (s Scope) SettingsPath() string {
	return filepath.Join(s.ConfigDir(), SettingsFile)
}

// PluginConfigPath returns the scope's installed-plugins registry path.
func (s Scope) PluginConfigPath() string {
	return filepath.Join(s.ConfigDir(), PluginsDir, PluginConfigFile)
}

// PluginsRoot returns the directory holding installed plugin repositories.
func (s Scope) PluginsRoot() string {
	return filepath.Join(s.ConfigDir(), PluginsDir, "repos")
}

// FragmentsRoot returns the scope's fragment storage directory.
func (s Scope) FragmentsRoot() string {
	return filepath.Join(s.ConfigDir(), FragmentsDir)
}

// StorageDir returns the storage directory for an extension kind, e.g.
// <root>/.claude/hooks. The kind string is used verbatim.
func (s Scope) StorageDir(kind string) string {
	return filepath.Join(s.ConfigDir(), kind)
}

// ManifestPath returns the project manifest path. Meaningful only for
// project scopes.
func (s Scope) ManifestPath() string {
	return filepath.Join(s.Root, ManifestFile)
}

// LocalOverridePath returns the pacc.local.json path.
func (s Scope) LocalOverridePath() string {
	return filepath.Join(s.Root, LocalOverride)
}

// MemoPath returns the CLAUDE.md path.
func (s Scope) MemoPath() string {
	return filepath.Join(s.Root, MemoFile)
}

// Abs resolves a stored artifact pointer against the scope root. Stored
// pointers are slash-separated and root-relative so settings files stay
// portable across checkouts; absolute inputs pass through unchanged.
func (s Scope) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Root, filepath.FromSlash(p))
}

// RelToRoot converts an absolute path under the scope root into the
// stored slash-separated relative form. Paths outside the root are
// returned unchanged.
func (s Scope) RelToRoot(abs string) string {
	rel, err := filepath.Rel(s.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}

// CacheDir returns the pacc cache directory, honoring the PACC_CACHE_DIR
// override and falling back to the XDG cache home.
func CacheDir() string {
	if dir := os.Getenv("PACC_CACHE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.CacheHome, AppName)
}

// SourceCacheDir returns the content-addressed download cache directory.
func SourceCacheDir() string {
	return filepath.Join(CacheDir(), "sources")
}

// RepoCacheDir returns the directory for cached plugin repository clones.
func RepoCacheDir() string {
	return filepath.Join(CacheDir(), "repos")
}

// ConfigHome returns the XDG config directory for pacc itself.
func ConfigHome() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EnsureDir creates the directory and any parents. Idempotent.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, DefaultDirPerm); err != nil {
		return paccerr.Filesystem("io", "creating directory %s", path).WithCause(err)
	}
	return nil
}

// Normalize expands ~, environment variables, and relative segments, and
// returns an absolute cleaned path.
func Normalize(path string) (string, error) {
	if path == "" {
		return "", paccerr.Filesystem("not_found", "empty path")
	}
	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(ErrHomeDirNotFound, err.Error())
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded[1:], "/"))
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", paccerr.Filesystem("io", "resolving %s", path).WithCause(err)
	}
	return filepath.Clean(abs), nil
}

// IsSafeRelative reports whether candidate, after resolving symlinks,
// lies strictly within root. Both paths may be absolute or relative to the
// current directory. Non-existent candidates are checked lexically against
// the resolved root so callers can vet paths before creating them.
func IsSafeRelative(root, candidate string) bool {
	rootResolved, err := resolveExisting(root)
	if err != nil {
		return false
	}
	candResolved, err := resolveExisting(candidate)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(rootResolved, candResolved)
	if err != nil {
		return false
	}
	if rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting canonicalizes path by resolving symlinks on the longest
// existing prefix and re-joining the remainder lexically.
func resolveExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// Walk up to the nearest existing ancestor, resolve it, re-attach the rest.
	var tail []string
	cur := abs
	for {
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return filepath.Clean(resolved), nil
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
