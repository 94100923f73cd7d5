// Package installer orchestrates user-initiated extension installs: it
// resolves the source, detects and validates each candidate, copies the
// artifact into the scope's storage tree, and registers the record in the
// scope's settings file.
package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/detect"
	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/settings"
	"github.com/pacc-dev/pacc/internal/source"
	"github.com/pacc-dev/pacc/internal/validate"
	"github.com/pacc-dev/pacc/pkg/fileutil"
)

// Resolver is the part of the source resolver the installer needs.
type Resolver interface {
	Resolve(ctx context.Context, ref string, opts source.Options) (*source.Resolved, error)
}

// Options tune a single install.
type Options struct {
	TypeHint    extension.Kind
	Force       bool
	DryRun      bool
	Interactive bool
	Source      source.Options
}

// Result reports what an install did (or would do, for dry runs).
type Result struct {
	Success     bool               `json:"success"`
	Installed   []extension.Record `json:"installed,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	ChangesMade []string           `json:"changes_made,omitempty"`
	DryRun      bool               `json:"dry_run,omitempty"`
	Err         error              `json:"-"`
}

// Installer wires the resolving, detection, validation and registration
// stages together.
type Installer struct {
	resolver  Resolver
	validator *validate.Registry
	selector  prompt.Selector
	clock     func() time.Time
	logger    *slog.Logger
}

// New builds an Installer. selector may be nil when interactive installs
// are never requested.
func New(resolver Resolver, selector prompt.Selector, logger *slog.Logger) *Installer {
	return &Installer{
		resolver:  resolver,
		validator: validate.NewRegistry(),
		selector:  selector,
		clock:     time.Now,
		logger:    logger,
	}
}

// WithClock substitutes the timestamp source, for tests.
func (in *Installer) WithClock(clock func() time.Time) *Installer {
	in.clock = clock
	return in
}

// Install resolves ref and installs every selected candidate into scope.
// A per-candidate failure does not abort the rest; Success is true only
// when every candidate installed cleanly.
func (in *Installer) Install(ctx context.Context, ref string, scope paths.Scope, opts Options) (*Result, error) {
	resolved, err := in.resolver.Resolve(ctx, ref, opts.Source)
	if err != nil {
		return nil, err
	}
	defer resolved.Cleanup()

	candidates, pctx, err := in.candidates(resolved.WorkingDir, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Success: true, DryRun: opts.DryRun}
	for _, candidate := range candidates {
		if err := in.installOne(candidate, scope, resolved, pctx, opts, result); err != nil {
			result.Success = false
			if result.Err == nil {
				result.Err = err
			}
			in.logger.Warn("install failed", "file", candidate, "error", err)
		}
	}
	return result, nil
}

// candidates expands a directory source into its installable files. A
// single-file source is its own candidate list.
func (in *Installer) candidates(workingDir string, opts Options) ([]string, *detect.ProjectContext, error) {
	info, err := os.Stat(workingDir)
	if err != nil {
		return nil, nil, paccerr.Filesystem("io", "reading %s", workingDir).WithCause(err)
	}
	if !info.IsDir() {
		return []string{workingDir}, nil, nil
	}

	m, err := manifest.Load(filepath.Join(workingDir, paths.ManifestFile))
	if err != nil {
		in.logger.Warn("ignoring unreadable project manifest", "dir", workingDir, "error", err)
	}
	pctx := &detect.ProjectContext{Root: workingDir, Manifest: m}

	files, err := fileutil.ScanAll(workingDir, fileutil.Filter{
		Extensions:    []string{".md", ".markdown", ".json"},
		ExcludeHidden: true,
		MaxSize:       fileutil.DefaultMaxFileSize,
		ExcludeGlobs:  []string{paths.ManifestFile, validate.CollectionManifestName},
	})
	if err != nil {
		return nil, nil, paccerr.Filesystem("io", "scanning %s", workingDir).WithCause(err)
	}

	var candidates []string
	for _, f := range files {
		kind := opts.TypeHint
		if kind == extension.KindNone {
			kind = detect.Detect(f, pctx)
		}
		if kind != extension.KindNone {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, nil, paccerr.Validation("no_candidates", "no installable extensions found in %s", workingDir)
	}

	if len(candidates) > 1 && opts.Interactive && in.selector != nil {
		items := make([]prompt.Item, len(candidates))
		for i, c := range candidates {
			items[i] = prompt.Item{Label: relLabel(workingDir, c)}
		}
		picked, err := in.selector.ChooseMany("Select extensions to install", items)
		if err != nil {
			return nil, nil, err
		}
		selected := make([]string, 0, len(picked))
		for _, idx := range picked {
			selected = append(selected, candidates[idx])
		}
		candidates = selected
	}
	return candidates, pctx, nil
}

func (in *Installer) installOne(path string, scope paths.Scope, resolved *source.Resolved, pctx *detect.ProjectContext, opts Options, result *Result) error {
	kind := opts.TypeHint
	if kind == extension.KindNone {
		kind = detect.Detect(path, pctx)
	}

	vres, err := in.validator.Single(path, kind, pctx)
	if err != nil {
		return err
	}
	for _, w := range vres.Warnings {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s: %s", filepath.Base(path), w.Code, w.Message))
	}
	if !vres.IsValid && !opts.Force {
		d := vres.Errors[0]
		return paccerr.Validation("invalid_extension", "%s: %s: %s", filepath.Base(path), d.Code, d.Message)
	}
	kind = vres.Kind

	name := extensionName(path, vres)
	store := settings.NewStoreWithLogger(scope.SettingsPath(), in.logger)
	current, err := store.Load()
	if err != nil {
		return err
	}
	prior, exists := current.FindRecord(kind, name)
	if exists && !opts.Force {
		return paccerr.Conflict("name_exists", "%s %q already installed in %s scope", kind, name, scope.Kind).
			WithSuggestion("Re-run with --force to overwrite")
	}

	destDir := scope.StorageDir(string(kind))
	destPath := filepath.Join(destDir, filepath.Base(path))

	// Two extensions with distinct names can share a file basename. The
	// record check above keys on the name, so the destination needs its
	// own check before one artifact lands on the other.
	if !exists && !opts.Force {
		if _, serr := os.Stat(destPath); serr == nil {
			return paccerr.Conflict("artifact_exists",
				"artifact %s already present in %s scope", filepath.Base(destPath), scope.Kind).
				WithSuggestion("Re-run with --force to overwrite")
		}
	}

	if opts.DryRun {
		verb := "install"
		if exists {
			verb = "overwrite"
		}
		result.ChangesMade = append(result.ChangesMade,
			fmt.Sprintf("would %s %s %q at %s", verb, kind, name, destPath))
		result.Installed = append(result.Installed, in.record(name, scope.RelToRoot(destPath), resolved, vres))
		return nil
	}

	if err := paths.EnsureDir(destDir); err != nil {
		return err
	}
	if exists && prior.Path != "" {
		if priorAbs := scope.Abs(prior.Path); priorAbs != destPath {
			// Forced overwrite of a record whose artifact lives elsewhere:
			// keep a backup of the old artifact before the new one lands.
			if err := fileutil.CopyFile(priorAbs, priorAbs+fileutil.BackupSuffix); err != nil {
				in.logger.Warn("could not back up prior artifact", "path", priorAbs, "error", err)
			}
		}
	}
	if err := backupExisting(destPath); err != nil {
		return err
	}
	if err := fileutil.CopyFile(path, destPath); err != nil {
		return err
	}

	rec := in.record(name, scope.RelToRoot(destPath), resolved, vres)
	_, err = store.UpdateAtomic(func(s *settings.Settings) error {
		if exists {
			s.ReplaceRecord(kind, rec)
			return nil
		}
		return s.AddRecord(kind, rec)
	})
	if err != nil {
		// Registration failed: the copied artifact must not linger.
		os.Remove(destPath)
		_, _ = fileutil.RestoreBackup(destPath)
		return err
	}
	_ = fileutil.RemoveBackup(destPath)

	result.Installed = append(result.Installed, rec)
	result.ChangesMade = append(result.ChangesMade,
		fmt.Sprintf("installed %s %q at %s", kind, name, destPath))
	in.logger.Info("installed extension", "kind", kind, "name", name, "scope", scope.Kind)
	return nil
}

// Remove deletes a named extension: its settings record and its artifact.
// The artifact is only unlinked when it is contained in the scope's
// storage tree.
func (in *Installer) Remove(scope paths.Scope, kind extension.Kind, name string) (bool, error) {
	store := settings.NewStoreWithLogger(scope.SettingsPath(), in.logger)
	current, err := store.Load()
	if err != nil {
		return false, err
	}
	rec, ok := current.FindRecord(kind, name)
	if !ok {
		return false, nil
	}

	removed, err := store.RemoveRecord(kind, name)
	if err != nil || !removed {
		return removed, err
	}

	if rec.Path != "" {
		artifact := scope.Abs(rec.Path)
		root := scope.StorageDir(string(kind))
		if !paths.IsSafeRelative(root, artifact) {
			in.logger.Warn("artifact outside storage tree left in place", "path", artifact)
			return true, nil
		}
		if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
			in.logger.Warn("could not delete artifact", "path", artifact, "error", err)
		}
	}
	in.logger.Info("removed extension", "kind", kind, "name", name, "scope", scope.Kind)
	return true, nil
}

// record builds the settings entry. relPath is the artifact pointer in
// its stored scope-relative form.
func (in *Installer) record(name, relPath string, resolved *source.Resolved, vres *validate.Result) extension.Record {
	rec := extension.Record{
		Name:        name,
		Path:        relPath,
		Source:      sourceLabel(resolved),
		InstalledAt: in.clock().UTC(),
	}
	if desc, ok := vres.Metadata["description"].(string); ok {
		rec.Description = desc
	}
	if sha := resolved.Metadata.CommitSHA; sha != "" {
		rec.Version = sha
	}
	return rec
}

func backupExisting(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return fileutil.CopyFile(path, path+fileutil.BackupSuffix)
}

func sourceLabel(resolved *source.Resolved) string {
	switch resolved.Kind {
	case source.KindGit:
		return extension.SourceGit
	case source.KindURL:
		return extension.SourceURL
	default:
		return extension.SourceLocal
	}
}

func extensionName(path string, vres *validate.Result) string {
	if name, ok := vres.Metadata["name"].(string); ok && name != "" {
		return name
	}
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func relLabel(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
