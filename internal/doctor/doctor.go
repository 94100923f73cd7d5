// Package doctor verifies the structural health of a scope: the
// configuration files parse, installed artifacts exist where their
// records claim, and the fragment bookkeeping is consistent.
package doctor

import (
	"fmt"
	"os"
	"time"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/fragment"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paths"
	"github.com/pacc-dev/pacc/internal/settings"
)

// Severity indicates the importance level of a check result.
type Severity int

const (
	// SeverityPass indicates the check passed without issues.
	SeverityPass Severity = iota

	// SeverityWarning indicates a potential issue that doesn't prevent operation.
	SeverityWarning

	// SeverityError indicates a problem that prevents proper operation.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityPass:
		return "pass"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// CheckResult is the outcome of a single verification check.
type CheckResult struct {
	Name    string   `json:"name"`
	Status  Severity `json:"status"`
	Message string   `json:"message"`
}

// Report aggregates the check results for one scope.
type Report struct {
	Scope     paths.ScopeKind `json:"scope"`
	Timestamp time.Time       `json:"timestamp"`
	Results   []*CheckResult  `json:"results"`
}

// HasErrors reports whether any check failed.
func (r *Report) HasErrors() bool {
	for _, res := range r.Results {
		if res.Status == SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) add(name string, status Severity, format string, args ...any) {
	r.Results = append(r.Results, &CheckResult{
		Name:    name,
		Status:  status,
		Message: fmt.Sprintf(format, args...),
	})
}

// VerifyScope runs every check against one scope.
func VerifyScope(scope paths.Scope) *Report {
	report := &Report{Scope: scope.Kind, Timestamp: time.Now().UTC()}
	s := checkSettings(scope, report)
	m := checkManifest(scope, report)
	checkArtifacts(scope, s, report)
	checkFragments(scope, m, report)
	checkPluginConfig(scope, report)
	return report
}

// checkSettings parses and validates settings.json. A missing file is a
// pass: an empty scope is healthy.
func checkSettings(scope paths.Scope, report *Report) *settings.Settings {
	s, err := settings.NewStore(scope.SettingsPath()).Load()
	if err != nil {
		report.add("settings", SeverityError, "settings.json: %v", err)
		return nil
	}
	if err := s.Validate(); err != nil {
		report.add("settings", SeverityError, "settings.json: %v", err)
		return nil
	}
	report.add("settings", SeverityPass, "settings.json is well formed")
	return s
}

func checkManifest(scope paths.Scope, report *Report) *manifest.Manifest {
	m, err := manifest.Load(scope.ManifestPath())
	if err != nil {
		report.add("manifest", SeverityError, "%s: %v", paths.ManifestFile, err)
		return nil
	}
	if m == nil {
		report.add("manifest", SeverityPass, "no %s present", paths.ManifestFile)
		return nil
	}
	report.add("manifest", SeverityPass, "%s is well formed", paths.ManifestFile)
	return m
}

// checkArtifacts verifies that every record's artifact exists inside the
// scope's storage tree.
func checkArtifacts(scope paths.Scope, s *settings.Settings, report *Report) {
	if s == nil {
		return
	}
	missing, escaped := 0, 0
	for _, kind := range extension.StoreKinds {
		for _, rec := range s.Records[kind] {
			if rec.Path == "" {
				continue
			}
			artifact := scope.Abs(rec.Path)
			if _, err := os.Stat(artifact); err != nil {
				missing++
				report.add("artifacts", SeverityWarning, "%s %q: artifact %s is missing", kind, rec.Name, rec.Path)
				continue
			}
			if !paths.IsSafeRelative(scope.ConfigDir(), artifact) {
				escaped++
				report.add("artifacts", SeverityError, "%s %q: artifact %s lies outside the scope", kind, rec.Name, rec.Path)
			}
		}
	}
	if missing == 0 && escaped == 0 {
		report.add("artifacts", SeverityPass, "all recorded artifacts are present")
	}
}

// checkFragments verifies the one-to-one correspondence between the
// CLAUDE.md marker-block entries and the manifest's fragment records.
func checkFragments(scope paths.Scope, m *manifest.Manifest, report *Report) {
	content, err := os.ReadFile(scope.MemoPath())
	if err != nil && !os.IsNotExist(err) {
		report.add("fragments", SeverityError, "%s: %v", paths.MemoFile, err)
		return
	}
	entries := fragment.ParseMemo(content).Entries()

	recorded := map[string]bool{}
	if m != nil {
		for _, rec := range m.Fragments {
			recorded["@"+rec.ReferencePath] = true
		}
	}

	clean := true
	for _, entry := range entries {
		if !recorded[entry] {
			clean = false
			report.add("fragments", SeverityWarning, "%s lists %s but %s has no matching record", paths.MemoFile, entry, paths.ManifestFile)
		}
		delete(recorded, entry)
	}
	for ref := range recorded {
		clean = false
		report.add("fragments", SeverityWarning, "%s records %s but %s does not reference it", paths.ManifestFile, ref, paths.MemoFile)
	}
	if clean {
		report.add("fragments", SeverityPass, "fragment references and records agree")
	}
}

func checkPluginConfig(scope paths.Scope, report *Report) {
	if _, err := settings.NewStore(scope.PluginConfigPath()).Load(); err != nil {
		report.add("plugins", SeverityError, "plugin config: %v", err)
		return
	}
	report.add("plugins", SeverityPass, "plugin registry is well formed")
}
