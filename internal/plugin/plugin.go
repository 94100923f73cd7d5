// Package plugin reconciles the plugin set declared in the project
// manifest against the repositories installed under the scope's plugin
// root. Declarations merge from three sources in precedence order
// pacc.local.json > environments.<env> > pacc.json, then resolve to
// commit SHAs, and the differential plan applies removals, installs, and
// updates in that order.
package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/settings"
)

// ConflictPolicy selects how differing versions for one repository are
// reconciled across configuration sources.
type ConflictPolicy string

const (
	// PolicyLocal takes the higher-precedence (override) value.
	PolicyLocal ConflictPolicy = "local"
	// PolicyTeam takes the base manifest value.
	PolicyTeam ConflictPolicy = "team"
	// PolicyMerge takes the higher version by semantic comparison.
	PolicyMerge ConflictPolicy = "merge"
	// PolicyPrompt asks the user; interactive mode only.
	PolicyPrompt ConflictPolicy = "prompt"
)

// Options tune a sync run.
type Options struct {
	Environment string
	Policy      ConflictPolicy
	Prune       bool
	DryRun      bool
	Interactive bool
	Timeout     time.Duration
}

func (o Options) policy() ConflictPolicy {
	if o.Policy == "" {
		return PolicyLocal
	}
	return o.Policy
}

// InstallStep is one planned repository install.
type InstallStep struct {
	Spec manifest.Specifier `json:"spec"`
	SHA  string             `json:"sha"`
}

// UpdateStep is one planned repository update.
type UpdateStep struct {
	Spec   manifest.Specifier `json:"spec"`
	OldSHA string             `json:"old_sha"`
	NewSHA string             `json:"new_sha"`
}

// SkipStep records a repository left untouched and why.
type SkipStep struct {
	Spec   manifest.Specifier `json:"spec"`
	Reason string             `json:"reason"`
}

// SyncPlan is the differential between declared and installed state.
type SyncPlan struct {
	Install []InstallStep `json:"install,omitempty"`
	Update  []UpdateStep  `json:"update,omitempty"`
	Skip    []SkipStep    `json:"skip,omitempty"`
	Remove  []string      `json:"remove,omitempty"`
}

// Empty reports whether the plan mutates nothing.
func (p *SyncPlan) Empty() bool {
	return len(p.Install) == 0 && len(p.Update) == 0 && len(p.Remove) == 0
}

// Result summarizes a sync run.
type Result struct {
	Success        bool      `json:"success"`
	InstalledCount int       `json:"installed_count"`
	UpdatedCount   int       `json:"updated_count"`
	SkippedCount   int       `json:"skipped_count"`
	RemovedCount   int       `json:"removed_count"`
	FailedPlugins  []string  `json:"failed_plugins,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	Plan           *SyncPlan `json:"plan,omitempty"`
	DryRun         bool      `json:"dry_run,omitempty"`
	Err            error     `json:"-"`
}

// GitClient is the repository access the engine needs; tests fake it.
type GitClient interface {
	// ResolveRef maps a reference of repo ("owner/repo") to a commit SHA.
	ResolveRef(ctx context.Context, repo, ref string) (string, error)
	// Fetch materializes repo at sha into dest.
	Fetch(ctx context.Context, repo, sha, dest string) error
}

// Engine plans and applies plugin synchronization for one scope.
type Engine struct {
	scope    paths.Scope
	store    *settings.Store
	git      GitClient
	selector prompt.Selector
	logger   *slog.Logger

	// mu serializes apply phases; the plugin config store is the shared
	// resource.
	mu sync.Mutex
}

// NewEngine builds an Engine over the scope's plugin config store.
func NewEngine(scope paths.Scope, git GitClient, selector prompt.Selector, logger *slog.Logger) *Engine {
	return &Engine{
		scope:    scope,
		store:    settings.NewStoreWithLogger(scope.PluginConfigPath(), logger),
		git:      git,
		selector: selector,
		logger:   logger,
	}
}
