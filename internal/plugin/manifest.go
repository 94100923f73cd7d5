package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

// ManifestFile is the per-plugin manifest at a repository root.
const ManifestFile = "plugin.json"

var pluginNamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_-]*[a-z0-9])?$`)

// Author identifies a plugin's maintainer.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Manifest is a repository's plugin.json. Unknown keys round-trip
// untouched through Raw.
type Manifest struct {
	Name        string                     `json:"name"`
	Version     string                     `json:"version,omitempty"`
	Description string                     `json:"description,omitempty"`
	Author      *Author                    `json:"author,omitempty"`
	Components  map[string]json.RawMessage `json:"components,omitempty"`

	Raw map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full key set alongside the typed fields.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type plain Manifest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Manifest(p)
	m.Raw = raw
	return nil
}

// Validate enforces the manifest contract: a well-formed name and, when
// present, a semantic version.
func (m *Manifest) Validate() error {
	if !pluginNamePattern.MatchString(m.Name) {
		return paccerr.Validation("invalid_plugin_name",
			"plugin name %q must be lowercase alphanumeric with inner - or _", m.Name)
	}
	if m.Version != "" && !validFullVersion(m.Version) {
		return paccerr.Validation("invalid_plugin_version",
			"plugin version %q is not a MAJOR.MINOR.PATCH semantic version", m.Version)
	}
	return nil
}

func canonicalVersion(v string) string {
	if len(v) > 0 && v[0] != 'v' {
		return "v" + v
	}
	return v
}

// validFullVersion requires all three of MAJOR.MINOR.PATCH. semver.IsValid
// alone accepts shortened forms like "1" or "1.2". Canonical strips build
// metadata, so compare against the input with metadata removed.
func validFullVersion(v string) bool {
	cv := canonicalVersion(v)
	if !semver.IsValid(cv) {
		return false
	}
	base := cv
	if i := strings.IndexByte(base, '+'); i >= 0 {
		base = base[:i]
	}
	return semver.Canonical(cv) == base
}

// LoadManifest reads a repository's plugin.json. Missing files return
// (nil, nil): a manifest is optional.
func LoadManifest(repoDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(repoDir, ManifestFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, paccerr.Filesystem("io", "reading %s", ManifestFile).WithCause(err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, paccerr.Validation("invalid_plugin_manifest",
			"%s is not valid JSON", ManifestFile).WithCause(err)
	}
	return &m, nil
}

// validatePluginManifest checks a freshly fetched repository's manifest,
// when it ships one.
func (e *Engine) validatePluginManifest(repoDir string) error {
	m, err := LoadManifest(repoDir)
	if err != nil || m == nil {
		return err
	}
	return m.Validate()
}
