// Package query lists installed extensions across scopes. It produces
// format-neutral view rows; rendering belongs to the caller.
package query

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/settings"
)

// SortKey selects the primary sort column.
type SortKey string

const (
	SortName        SortKey = "name"
	SortKind        SortKey = "kind"
	SortInstalledAt SortKey = "installed_at"
)

// Filter narrows and orders a listing.
type Filter struct {
	// Kinds restricts the listing; empty means all kinds.
	Kinds []extension.Kind
	// NameGlob is a path.Match pattern applied to record names.
	NameGlob string
	// Search matches name and description, by substring or fuzzy ranking.
	Search string
	// SortBy defaults to SortName. With a Search and no explicit sort the
	// rows come back in match-rank order instead.
	SortBy SortKey
}

// ViewRow is one installed extension in a listing.
type ViewRow struct {
	Scope       paths.ScopeKind `json:"scope"`
	Kind        extension.Kind  `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Source      string          `json:"source,omitempty"`
	Version     string          `json:"version,omitempty"`
	Path        string          `json:"path,omitempty"`
	InstalledAt time.Time       `json:"installed_at,omitempty"`
}

// List unions the records of the given scopes, tags each row with its
// scope, applies the filter, and returns the ordered rows.
func List(scopes []paths.Scope, f Filter) ([]ViewRow, error) {
	if f.NameGlob != "" {
		if _, err := path.Match(f.NameGlob, ""); err != nil {
			return nil, paccerr.Validation("invalid_filter", "bad name pattern %q", f.NameGlob)
		}
	}

	var rows []ViewRow
	for _, scope := range scopes {
		scopeRows, err := collect(scope)
		if err != nil {
			return nil, err
		}
		rows = append(rows, scopeRows...)
	}

	rows = applyKinds(rows, f.Kinds)
	rows = applyGlob(rows, f.NameGlob)

	ranked := false
	if f.Search != "" {
		rows, ranked = applySearch(rows, f.Search)
	}
	if !ranked || f.SortBy != "" {
		sortRows(rows, f.SortBy)
	}
	return rows, nil
}

// Detail is a single row plus the stat of its stored artifact.
type Detail struct {
	ViewRow
	ArtifactExists bool      `json:"artifact_exists"`
	ArtifactSize   int64     `json:"artifact_size,omitempty"`
	ArtifactMTime  time.Time `json:"artifact_mtime,omitempty"`
}

// Info returns the detail view of one installed extension.
func Info(scope paths.Scope, kind extension.Kind, name string) (*Detail, error) {
	rows, err := collect(scope)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Kind != kind || row.Name != name {
			continue
		}
		d := &Detail{ViewRow: row}
		if row.Path != "" {
			if info, err := os.Stat(row.Path); err == nil {
				d.ArtifactExists = true
				d.ArtifactSize = info.Size()
				d.ArtifactMTime = info.ModTime()
			}
		}
		return d, nil
	}
	return nil, paccerr.Filesystem("not_found", "%s %q is not installed in the %s scope", kind, name, scope.Kind)
}

// collect reads one scope: the settings store arrays plus the manifest's
// fragment records.
func collect(scope paths.Scope) ([]ViewRow, error) {
	var rows []ViewRow

	s, err := settings.NewStore(scope.SettingsPath()).Load()
	if err != nil {
		return nil, err
	}
	for _, kind := range extension.StoreKinds {
		for _, rec := range s.Records[kind] {
			rows = append(rows, ViewRow{
				Scope:       scope.Kind,
				Kind:        kind,
				Name:        rec.Name,
				Description: rec.Description,
				Source:      rec.Source,
				Version:     rec.Version,
				Path:        scope.Abs(rec.Path),
				InstalledAt: rec.InstalledAt,
			})
		}
	}

	m, err := manifest.Load(scope.ManifestPath())
	if err != nil {
		return nil, err
	}
	if m != nil {
		for name, rec := range m.Fragments {
			desc := rec.Description
			if desc == "" {
				desc = rec.Title
			}
			rows = append(rows, ViewRow{
				Scope:       scope.Kind,
				Kind:        extension.KindFragments,
				Name:        name,
				Description: desc,
				Source:      extension.SourceLocal,
				Path:        filepath.Join(scope.FragmentsRoot(), name+".md"),
				InstalledAt: rec.InstalledAt,
			})
		}
	}
	return rows, nil
}

func applyKinds(rows []ViewRow, kinds []extension.Kind) []ViewRow {
	if len(kinds) == 0 {
		return rows
	}
	keep := make(map[extension.Kind]bool, len(kinds))
	for _, k := range kinds {
		keep[k] = true
	}
	out := rows[:0]
	for _, row := range rows {
		if keep[row.Kind] {
			out = append(out, row)
		}
	}
	return out
}

func applyGlob(rows []ViewRow, glob string) []ViewRow {
	if glob == "" {
		return rows
	}
	out := rows[:0]
	for _, row := range rows {
		if ok, _ := path.Match(glob, row.Name); ok {
			out = append(out, row)
		}
	}
	return out
}

// applySearch keeps rows whose name or description matches the query:
// case-insensitive substring matches rank first, fuzzy matches follow in
// score order. Reports whether the result is already rank-ordered.
func applySearch(rows []ViewRow, query string) ([]ViewRow, bool) {
	lower := strings.ToLower(query)

	var direct, rest []ViewRow
	var haystack []string
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Name), lower) ||
			strings.Contains(strings.ToLower(row.Description), lower) {
			direct = append(direct, row)
			continue
		}
		rest = append(rest, row)
		haystack = append(haystack, row.Name+" "+row.Description)
	}

	matches := fuzzy.Find(query, haystack)
	out := direct
	for _, m := range matches {
		out = append(out, rest[m.Index])
	}
	return out, true
}

func sortRows(rows []ViewRow, key SortKey) {
	less := func(a, b ViewRow) bool { return a.Name < b.Name }
	switch key {
	case SortKind:
		less = func(a, b ViewRow) bool {
			if a.Kind != b.Kind {
				return a.Kind < b.Kind
			}
			return a.Name < b.Name
		}
	case SortInstalledAt:
		less = func(a, b ViewRow) bool {
			if !a.InstalledAt.Equal(b.InstalledAt) {
				return a.InstalledAt.Before(b.InstalledAt)
			}
			return a.Name < b.Name
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}
