// Package pacc is the façade external callers use. It binds the scope
// layout, source resolution, validation, installation, plugin sync, and
// fragment handling into one injected environment.
package pacc

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/fragment"
	"github.com/pacc-dev/pacc/internal/installer"
	"github.com/pacc-dev/pacc/internal/logging"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/plugin"
	"github.com/pacc-dev/pacc/internal/query"
	"github.com/pacc-dev/pacc/internal/registry"
	"github.com/pacc-dev/pacc/internal/source"
	"github.com/pacc-dev/pacc/internal/validate"
)

// Environment carries everything the façade touches outside its own
// state. Zero values fall back to the ambient process environment.
type Environment struct {
	// Home is the user-scope root. Defaults to os.UserHomeDir.
	Home string
	// Cwd anchors project-scope discovery. Defaults to os.Getwd.
	Cwd string
	// CacheDir overrides the download cache location.
	CacheDir string
	// RegistryPath overrides the advisory catalog location.
	RegistryPath string
	// Selector answers interactive choices. Nil disables prompting.
	Selector prompt.Selector
	// Git overrides the plugin git transport. Nil uses the system git.
	Git plugin.GitClient

	Clock  func() time.Time
	Logger *slog.Logger
}

// Client executes pacc operations against one Environment.
type Client struct {
	env      Environment
	resolver *source.Resolver
	git      plugin.GitClient
}

// New builds a Client, filling Environment defaults.
func New(env Environment) (*Client, error) {
	if env.Logger == nil {
		env.Logger = logging.NewDiscard()
	}
	if env.Clock == nil {
		env.Clock = time.Now
	}
	if env.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, paccerr.Filesystem("not_found", "home directory not found").WithCause(err)
		}
		env.Home = home
	}
	if env.Cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, paccerr.Filesystem("io", "working directory unavailable").WithCause(err)
		}
		env.Cwd = cwd
	}
	cacheDir := env.CacheDir
	if cacheDir == "" {
		cacheDir = paths.SourceCacheDir()
	} else {
		cacheDir = filepath.Join(cacheDir, "sources")
	}
	git := env.Git
	if git == nil {
		git = plugin.NewGitClient(env.Logger)
	}
	return &Client{
		env:      env,
		resolver: source.NewResolverWithCacheDir(cacheDir, env.Logger),
		git:      git,
	}, nil
}

// Scope resolves a scope kind against the environment. The project
// scope is discovered by walking up from Cwd.
func (c *Client) Scope(kind paths.ScopeKind) (paths.Scope, error) {
	switch kind {
	case paths.ScopeUser:
		return paths.Scope{Kind: paths.ScopeUser, Root: c.env.Home}, nil
	case paths.ScopeProject:
		return paths.ProjectScope(c.env.Cwd)
	default:
		return paths.Scope{}, paccerr.Validation("invalid_scope", "unknown scope %q", kind)
	}
}

// Install resolves ref and installs the extensions it yields.
func (c *Client) Install(ctx context.Context, ref string, scopeKind paths.ScopeKind, opts installer.Options) (*installer.Result, error) {
	scope, err := c.Scope(scopeKind)
	if err != nil {
		return nil, err
	}
	in := installer.New(c.resolver, c.env.Selector, c.env.Logger).WithClock(c.env.Clock)
	return in.Install(ctx, ref, scope, opts)
}

// Remove uninstalls one extension. Returns false when nothing matched.
func (c *Client) Remove(scopeKind paths.ScopeKind, kind extension.Kind, name string) (bool, error) {
	scope, err := c.Scope(scopeKind)
	if err != nil {
		return false, err
	}
	in := installer.New(c.resolver, c.env.Selector, c.env.Logger)
	return in.Remove(scope, kind, name)
}

// List returns the filtered union of the given scopes. With no scopes it
// lists the user scope plus the project scope when one is discoverable.
func (c *Client) List(filter query.Filter, scopeKinds ...paths.ScopeKind) ([]query.ViewRow, error) {
	var scopes []paths.Scope
	if len(scopeKinds) == 0 {
		scopes = append(scopes, paths.Scope{Kind: paths.ScopeUser, Root: c.env.Home})
		if project, err := paths.ProjectScope(c.env.Cwd); err == nil {
			scopes = append(scopes, project)
		}
	} else {
		for _, kind := range scopeKinds {
			scope, err := c.Scope(kind)
			if err != nil {
				return nil, err
			}
			scopes = append(scopes, scope)
		}
	}
	return query.List(scopes, filter)
}

// Info returns one installed extension with its artifact stat.
func (c *Client) Info(scopeKind paths.ScopeKind, kind extension.Kind, name string) (*query.Detail, error) {
	scope, err := c.Scope(scopeKind)
	if err != nil {
		return nil, err
	}
	return query.Info(scope, kind, name)
}

// Validate resolves ref and validates the extension files it yields
// without installing anything.
func (c *Client) Validate(ctx context.Context, ref string, kindHint extension.Kind, srcOpts source.Options) ([]*validate.Result, error) {
	resolved, err := c.resolver.Resolve(ctx, ref, srcOpts)
	if err != nil {
		return nil, err
	}
	defer resolved.Cleanup()

	reg := validate.NewRegistry()
	info, err := os.Stat(resolved.WorkingDir)
	if err != nil {
		return nil, paccerr.Filesystem("io", "reading %s", resolved.WorkingDir).WithCause(err)
	}
	if !info.IsDir() {
		res, err := reg.Single(resolved.WorkingDir, kindHint, nil)
		if err != nil {
			return nil, err
		}
		return []*validate.Result{res}, nil
	}

	grouped, err := reg.Directory(ctx, resolved.WorkingDir, kindHint, nil)
	if err != nil {
		return nil, err
	}
	var results []*validate.Result
	for _, kind := range extension.DetectionOrder {
		results = append(results, grouped[kind]...)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Kind != results[j].Kind {
			return results[i].Kind < results[j].Kind
		}
		return results[i].FilePath < results[j].FilePath
	})
	return results, nil
}

// SyncPlugins reconciles the project's declared plugins with the
// installed state.
func (c *Client) SyncPlugins(ctx context.Context, opts plugin.Options) *plugin.Result {
	scope, err := paths.ProjectScope(c.env.Cwd)
	if err != nil {
		return &plugin.Result{Err: err}
	}
	engine := plugin.NewEngine(scope, c.git, c.env.Selector, c.env.Logger)
	return engine.Sync(ctx, opts)
}

// PlanPlugins computes the sync plan without applying it.
func (c *Client) PlanPlugins(ctx context.Context, opts plugin.Options) (*plugin.SyncPlan, []string, error) {
	scope, err := paths.ProjectScope(c.env.Cwd)
	if err != nil {
		return nil, nil, err
	}
	engine := plugin.NewEngine(scope, c.git, c.env.Selector, c.env.Logger)
	return engine.Plan(ctx, opts)
}

// InstallFragment installs a memory fragment or collection.
func (c *Client) InstallFragment(ctx context.Context, ref string, scopeKind paths.ScopeKind, opts fragment.Options) (*fragment.Result, error) {
	scope, err := c.Scope(scopeKind)
	if err != nil {
		return nil, err
	}
	in := fragment.New(c.resolver, c.env.Selector, c.env.Logger).WithClock(c.env.Clock)
	return in.Install(ctx, ref, scope, opts)
}

// RemoveFragment uninstalls a fragment by name.
func (c *Client) RemoveFragment(scopeKind paths.ScopeKind, name string) (bool, error) {
	scope, err := c.Scope(scopeKind)
	if err != nil {
		return false, err
	}
	in := fragment.New(c.resolver, c.env.Selector, c.env.Logger)
	return in.Remove(scope, name)
}

// SearchRegistry queries the advisory catalog.
func (c *Client) SearchRegistry(q, kind string) ([]registry.Entry, error) {
	cat, err := registry.Load(c.registryPath())
	if err != nil {
		return nil, err
	}
	return cat.Search(q, kind), nil
}

// RegistryEntry looks up one catalog entry by exact name.
func (c *Client) RegistryEntry(name string) (registry.Entry, bool, error) {
	cat, err := registry.Load(c.registryPath())
	if err != nil {
		return registry.Entry{}, false, err
	}
	e, ok := cat.Get(name)
	return e, ok, nil
}

func (c *Client) registryPath() string {
	if c.env.RegistryPath != "" {
		return c.env.RegistryPath
	}
	return filepath.Join(paths.ConfigHome(), registry.DefaultFileName)
}
