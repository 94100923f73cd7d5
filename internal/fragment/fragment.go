// Package fragment installs memory fragments: markdown files stored under
// the scope's fragment directory and cross-referenced from a managed
// marker block in CLAUDE.md. Every mutation is staged so a failure at any
// step rolls the earlier ones back.
package fragment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/source"
	"github.com/pacc-dev/pacc/internal/validate"
	"github.com/pacc-dev/pacc/pkg/fileutil"
)

// Resolver is the slice of the source resolver the installer needs.
type Resolver interface {
	Resolve(ctx context.Context, ref string, opts source.Options) (*source.Resolved, error)
}

// Options tune a fragment install.
type Options struct {
	Force       bool
	DryRun      bool
	Interactive bool

	// InstallAll installs every fragment of a collection without asking.
	// Required for non-interactive collection installs.
	InstallAll bool

	Source source.Options
}

// Installed describes one installed fragment.
type Installed struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	ReferenceLine string `json:"reference_line"`
}

// Result accumulates a single- or collection-install run.
type Result struct {
	Success   bool        `json:"success"`
	Installed []Installed `json:"installed,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	Failed    []string    `json:"failed,omitempty"`
	DryRun    bool        `json:"dry_run,omitempty"`
	Err       error       `json:"-"`
}

// Installer performs fragment installs and removals for a scope.
type Installer struct {
	resolver  Resolver
	validator *validate.Registry
	selector  prompt.Selector
	clock     func() time.Time
	logger    *slog.Logger
}

// New builds a fragment Installer.
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

// Install resolves ref and installs the fragment (or collection) it
// yields into scope.
func (in *Installer) Install(ctx context.Context, ref string, scope paths.Scope, opts Options) (*Result, error) {
	resolved, err := in.resolver.Resolve(ctx, ref, opts.Source)
	if err != nil {
		return nil, err
	}
	defer resolved.Cleanup()

	info, err := os.Stat(resolved.WorkingDir)
	if err != nil {
		return nil, paccerr.Filesystem("io", "reading %s", resolved.WorkingDir).WithCause(err)
	}
	if info.IsDir() {
		return in.installCollection(resolved.WorkingDir, scope, opts)
	}

	result := &Result{Success: true, DryRun: opts.DryRun}
	if err := in.installOne(resolved.WorkingDir, scope, opts, result); err != nil {
		result.Success = false
		result.Err = err
	}
	return result, nil
}

// installCollection selects fragments from a collection directory and
// installs each through the single-fragment path. A per-fragment failure
// is recorded and the batch continues.
func (in *Installer) installCollection(root string, scope paths.Scope, opts Options) (*Result, error) {
	candidates, warnings, err := in.scanCollection(root)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, paccerr.Validation("no_candidates", "no fragments found in %s", root)
	}

	selected := candidates
	switch {
	case len(candidates) == 1:
	case opts.Interactive && in.selector != nil:
		items := make([]prompt.Item, len(candidates))
		for i, c := range candidates {
			items[i] = prompt.Item{Label: filepath.Base(c)}
		}
		picked, err := in.selector.ChooseMany("Select fragments to install", items)
		if err != nil {
			return nil, err
		}
		selected = make([]string, 0, len(picked))
		for _, idx := range picked {
			selected = append(selected, candidates[idx])
		}
	case !opts.InstallAll:
		return nil, paccerr.Newf(paccerr.KindGeneric, "ambiguous_selection",
			"collection has %d fragments; pass install-all or run interactively", len(candidates))
	}

	result := &Result{Success: true, DryRun: opts.DryRun, Warnings: warnings}
	for _, path := range selected {
		if err := in.installOne(path, scope, opts, result); err != nil {
			result.Failed = append(result.Failed, filepath.Base(path))
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			if result.Err == nil {
				result.Err = err
			}
		}
	}
	result.Success = len(result.Failed) == 0
	return result, nil
}

// scanCollection lists the markdown fragments of a collection root,
// honoring its optional manifest.
func (in *Installer) scanCollection(root string) ([]string, []string, error) {
	results, err := in.validator.Collection(root)
	if err != nil {
		return nil, nil, err
	}
	var warnings []string
	manifestResult := results[0]
	for _, d := range append(manifestResult.Errors, manifestResult.Warnings...) {
		warnings = append(warnings, fmt.Sprintf("%s: %s", d.Code, d.Message))
	}
	if !manifestResult.IsValid {
		return nil, nil, paccerr.Validation("invalid_collection",
			"collection manifest is invalid: %s", manifestResult.Errors[0].Message)
	}

	if hasManifest, _ := manifestResult.Metadata["manifest"].(bool); hasManifest {
		files := make([]string, 0, len(results)-1)
		for _, r := range results[1:] {
			files = append(files, r.FilePath)
		}
		return files, warnings, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, paccerr.Filesystem("io", "reading %s", root).WithCause(err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, filepath.Join(root, entry.Name()))
		}
	}
	return files, warnings, nil
}

func (in *Installer) installOne(path string, scope paths.Scope, opts Options, result *Result) error {
	vres, err := in.validator.Single(path, extension.KindFragments, nil)
	if err != nil {
		return err
	}
	for _, w := range vres.Warnings {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s: %s", filepath.Base(path), w.Code, w.Message))
	}
	if !vres.IsValid && !opts.Force {
		d := vres.Errors[0]
		return paccerr.Validation("invalid_fragment", "%s: %s: %s", filepath.Base(path), d.Code, d.Message)
	}

	name := fragmentName(path)
	if err := CheckName(name); err != nil {
		return err
	}

	storageRoot := scope.FragmentsRoot()
	dest := filepath.Join(storageRoot, name+".md")
	refLine, err := referenceLine(scope, dest)
	if err != nil {
		return err
	}

	m, err := manifest.Load(scope.ManifestPath())
	if err != nil {
		return err
	}
	if !opts.Force {
		if _, err := os.Stat(dest); err == nil {
			return paccerr.Conflict("name_exists", "fragment file %s already exists", dest).
				WithSuggestion("Re-run with --force to overwrite")
		}
		if m != nil {
			if _, ok := m.Fragments[name]; ok {
				return paccerr.Conflict("name_exists", "fragment %q already recorded in %s", name, paths.ManifestFile)
			}
		}
	}

	if opts.DryRun {
		result.Installed = append(result.Installed, Installed{Name: name, Path: dest, ReferenceLine: refLine})
		return nil
	}

	if err := paths.EnsureDir(storageRoot); err != nil {
		return err
	}

	// The directory lock serializes concurrent installs into one scope.
	lock := flock.New(filepath.Join(storageRoot, ".lock"))
	if err := lock.Lock(); err != nil {
		return paccerr.Filesystem("io", "locking fragment directory").WithCause(err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := stageCopy(path, dest); err != nil {
		return err
	}

	memoPath := scope.MemoPath()
	if err := in.updateMemo(memoPath, func(memo *Memo) { memo.Add(refLine) }); err != nil {
		os.Remove(dest)
		return err
	}

	if err := in.recordFragment(scope, name, refLine, vres); err != nil {
		// Undo the CLAUDE.md mutation and the artifact copy.
		if _, rerr := fileutil.RestoreBackup(memoPath); rerr != nil {
			in.logger.Warn("could not restore memo backup", "path", memoPath, "error", rerr)
		}
		os.Remove(dest)
		return err
	}
	_ = fileutil.RemoveBackup(memoPath)

	result.Installed = append(result.Installed, Installed{Name: name, Path: dest, ReferenceLine: refLine})
	in.logger.Info("installed fragment", "name", name, "scope", scope.Kind)
	return nil
}

// updateMemo applies mutate to the parsed CLAUDE.md and writes it back
// atomically, leaving a .backup for the caller's rollback window.
func (in *Installer) updateMemo(memoPath string, mutate func(*Memo)) error {
	content, err := os.ReadFile(memoPath)
	if err != nil && !os.IsNotExist(err) {
		return paccerr.Filesystem("io", "reading %s", memoPath).WithCause(err)
	}
	memo := ParseMemo(content)
	mutate(memo)
	return fileutil.AtomicWriteWithBackup(memoPath, memo.Render(), 0o644)
}

// recordFragment registers the install in pacc.json.
func (in *Installer) recordFragment(scope paths.Scope, name, refLine string, vres *validate.Result) error {
	m, err := manifest.Load(scope.ManifestPath())
	if err != nil {
		return err
	}
	if m == nil {
		m = &manifest.Manifest{}
	}
	if m.Fragments == nil {
		m.Fragments = map[string]manifest.FragmentRecord{}
	}
	rec := manifest.FragmentRecord{
		InstalledAt:   in.clock().UTC(),
		StorageType:   "file",
		ReferencePath: strings.TrimPrefix(refLine, "@"),
	}
	if title, ok := vres.Metadata["title"].(string); ok {
		rec.Title = title
	}
	if desc, ok := vres.Metadata["description"].(string); ok {
		rec.Description = desc
	}
	if tags, ok := vres.Metadata["tags"].([]string); ok {
		rec.Tags = tags
	}
	m.Fragments[name] = rec
	return m.Save(scope.ManifestPath())
}

// Remove uninstalls a fragment: its CLAUDE.md reference, its pacc.json
// record, then the artifact. The candidate path is re-canonicalized so a
// symlinked or traversing name can never unlink outside the storage tree.
func (in *Installer) Remove(scope paths.Scope, name string) (bool, error) {
	if err := CheckName(name); err != nil {
		return false, err
	}

	storageRoot := scope.FragmentsRoot()
	dest := filepath.Join(storageRoot, name+".md")

	if info, err := os.Lstat(dest); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return false, paccerr.Security("path_traversal", "fragment %q is a symlink", name)
		}
		if !paths.IsSafeRelative(storageRoot, dest) {
			return false, paccerr.Security("path_traversal", "fragment %q escapes the storage root", name)
		}
	} else if !os.IsNotExist(err) {
		return false, paccerr.Filesystem("io", "reading %s", dest).WithCause(err)
	}

	refLine, err := referenceLine(scope, dest)
	if err != nil {
		return false, err
	}

	// Same directory lock as installs, so a concurrent install and
	// remove cannot interleave on CLAUDE.md.
	if err := paths.EnsureDir(storageRoot); err != nil {
		return false, err
	}
	lock := flock.New(filepath.Join(storageRoot, ".lock"))
	if err := lock.Lock(); err != nil {
		return false, paccerr.Filesystem("io", "locking fragment directory").WithCause(err)
	}
	defer func() { _ = lock.Unlock() }()

	existed := false
	if _, err := os.Stat(scope.MemoPath()); err == nil {
		if err := in.updateMemo(scope.MemoPath(), func(memo *Memo) {
			existed = memo.Remove(refLine) || existed
		}); err != nil {
			return false, err
		}
		_ = fileutil.RemoveBackup(scope.MemoPath())
	}

	m, err := manifest.Load(scope.ManifestPath())
	if err != nil {
		return false, err
	}
	if m != nil {
		if _, ok := m.Fragments[name]; ok {
			delete(m.Fragments, name)
			if err := m.Save(scope.ManifestPath()); err != nil {
				return false, err
			}
			existed = true
		}
	}

	if err := os.Remove(dest); err == nil {
		existed = true
	} else if !os.IsNotExist(err) {
		return false, paccerr.Filesystem("io", "deleting %s", dest).WithCause(err)
	}

	if existed {
		in.logger.Info("removed fragment", "name", name, "scope", scope.Kind)
	}
	return existed, nil
}

// CheckName enforces fragment name hygiene: one plain path segment.
func CheckName(name string) error {
	if name == "" {
		return paccerr.Validation("invalid_name", "fragment name is empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") ||
		strings.ContainsRune(name, 0) || filepath.IsAbs(name) {
		return paccerr.Security("path_traversal", "fragment name %q is not a single path segment", name)
	}
	if isReservedDeviceName(name) {
		return paccerr.Validation("invalid_name", "fragment name %q is a reserved device name", name)
	}
	return nil
}

// Windows device names are rejected everywhere so the storage tree
// stays portable across checkouts.
var reservedDeviceNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
}

func isReservedDeviceName(name string) bool {
	base := strings.ToLower(name)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return reservedDeviceNames[base]
}

// stageCopy copies src to dest via a temp file in the destination
// directory so the final name appears atomically.
func stageCopy(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return paccerr.Filesystem("io", "reading %s", src).WithCause(err)
	}
	return fileutil.AtomicWrite(dest, data, 0o644)
}

func fragmentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// referenceLine builds the "@<relative-path>" line for a stored
// fragment.
func referenceLine(scope paths.Scope, dest string) (string, error) {
	rel, err := filepath.Rel(scope.Root, dest)
	if err != nil {
		return "", paccerr.Filesystem("io", "computing reference path for %s", dest).WithCause(err)
	}
	return "@" + filepath.ToSlash(rel), nil
}
