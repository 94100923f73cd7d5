// Package manifest reads and writes the project manifest (pacc.json) and
// its local override (pacc.local.json), including the plugin specifier
// grammar used by both.
package manifest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/pkg/fileutil"
)

// FragmentRecord is one installed fragment as tracked by the manifest.
type FragmentRecord struct {
	Title         string    `json:"title,omitempty"`
	Description   string    `json:"description,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	InstalledAt   time.Time `json:"installed_at"`
	StorageType   string    `json:"storage_type,omitempty"`
	ReferencePath string    `json:"reference_path"`
}

// PluginsSection declares the plugin set of a manifest or environment.
type PluginsSection struct {
	Repositories []Specifier `json:"repositories,omitempty"`
	Required     []string    `json:"required,omitempty"`
	Optional     []string    `json:"optional,omitempty"`
}

// Manifest is the parsed pacc.json (or pacc.local.json).
type Manifest struct {
	Name        string `json:"name,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`

	Plugins      PluginsSection            `json:"plugins,omitempty"`
	Environments map[string]PluginsSection `json:"environments,omitempty"`
	Fragments    map[string]FragmentRecord `json:"fragments,omitempty"`

	// Extensions maps a kind name to authoritative file paths, consulted by
	// the type detector's highest-priority tier.
	Extensions map[string][]string `json:"extensions,omitempty"`

	extras map[string]json.RawMessage

	// keyOrder remembers every top-level key in encounter order so a
	// load/save cycle does not reshuffle the file. hasPlugins marks a
	// plugins section that was present in the source even when empty.
	keyOrder   []string
	hasPlugins bool
}

var knownManifestKeys = map[string]bool{
	"name": true, "version": true, "description": true,
	"plugins": true, "environments": true, "fragments": true, "extensions": true,
}

// Load reads a manifest file. A missing file returns (nil, nil): the
// manifest is optional. Malformed content is a configuration error.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, paccerr.Filesystem("io", "reading %s", path).WithCause(err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return m, nil
}

// Parse decodes manifest content, preserving unknown top-level keys.
func Parse(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, paccerr.Configuration("invalid_json", "manifest is empty")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, paccerr.Configuration("invalid_json", "parsing manifest").WithCause(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, paccerr.Configuration("invalid_json", "parsing manifest").WithCause(err)
	}
	// Re-scan with a token decoder to recover unknown-key order.
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, paccerr.Configuration("invalid_json", "parsing manifest").WithCause(err)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, paccerr.Configuration("invalid_json", "parsing manifest").WithCause(err)
		}
		key, _ := keyTok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, paccerr.Configuration("invalid_json", "parsing manifest key %q", key).WithCause(err)
		}
		m.keyOrder = append(m.keyOrder, key)
		if key == "plugins" {
			m.hasPlugins = true
		}
		if !knownManifestKeys[key] {
			if m.extras == nil {
				m.extras = make(map[string]json.RawMessage)
			}
			m.extras[key] = skip
		}
	}
	return &m, nil
}

// canonicalKeyOrder places keys never seen in the source file.
var canonicalKeyOrder = []string{
	"name", "version", "description", "plugins", "environments", "fragments", "extensions",
}

// knownValue returns the encodable value for a known top-level key and
// whether the key should appear in the output at all.
func (m *Manifest) knownValue(key string) (any, bool) {
	switch key {
	case "name":
		return m.Name, m.Name != ""
	case "version":
		return m.Version, m.Version != ""
	case "description":
		return m.Description, m.Description != ""
	case "plugins":
		empty := len(m.Plugins.Repositories) == 0 && len(m.Plugins.Required) == 0 && len(m.Plugins.Optional) == 0
		return m.Plugins, m.hasPlugins || !empty
	case "environments":
		return m.Environments, len(m.Environments) > 0
	case "fragments":
		return m.Fragments, len(m.Fragments) > 0
	case "extensions":
		return m.Extensions, len(m.Extensions) > 0
	}
	return nil, false
}

// Encode renders the manifest as 2-space-indented JSON with a trailing
// newline. Top-level keys keep their source order; keys added since the
// load follow in canonical order, unknown keys verbatim.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	first := true

	emit := func(key string, data []byte) {
		if !first {
			buf.WriteString(",")
		}
		first = false
		buf.WriteString("\n  ")
		keyJSON, _ := json.Marshal(key)
		buf.Write(keyJSON)
		buf.WriteString(": ")
		buf.Write(data)
	}
	writeKnown := func(key string) error {
		v, include := m.knownValue(key)
		if !include {
			return nil
		}
		data, err := json.MarshalIndent(v, "  ", "  ")
		if err != nil {
			return errors.Wrapf(err, "encoding manifest key %q", key)
		}
		emit(key, data)
		return nil
	}

	written := make(map[string]bool, len(m.keyOrder))
	for _, key := range m.keyOrder {
		if written[key] {
			continue
		}
		written[key] = true
		if knownManifestKeys[key] {
			if err := writeKnown(key); err != nil {
				return nil, err
			}
			continue
		}
		raw, ok := m.extras[key]
		if !ok {
			continue
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "  ", "  "); err != nil {
			return nil, errors.Wrapf(err, "re-encoding manifest key %q", key)
		}
		emit(key, pretty.Bytes())
	}
	for _, key := range canonicalKeyOrder {
		if written[key] {
			continue
		}
		if err := writeKnown(key); err != nil {
			return nil, err
		}
	}

	if first {
		buf.WriteString("}")
	} else {
		buf.WriteString("\n}")
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Save writes the manifest atomically, re-attaching preserved unknown keys.
func (m *Manifest) Save(path string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return paccerr.Filesystem("io", "creating manifest directory").WithCause(err)
	}
	if err := fileutil.AtomicWrite(path, data, 0o644); err != nil {
		return paccerr.Filesystem("io", "writing %s", path).WithCause(err)
	}
	return nil
}

// Extra returns the raw value of a preserved unknown key.
func (m *Manifest) Extra(key string) (json.RawMessage, bool) {
	v, ok := m.extras[key]
	return v, ok
}

// DeclaredKind returns the kind name the manifest's extensions section
// declares for path, comparing normalized paths relative to projectRoot.
// Returns "" when the path is not declared.
func (m *Manifest) DeclaredKind(projectRoot, path string) string {
	if m == nil || len(m.Extensions) == 0 {
		return ""
	}
	normalize := func(p string) string {
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectRoot, p)
		}
		return filepath.Clean(p)
	}
	target := normalize(path)
	for kind, declared := range m.Extensions {
		for _, p := range declared {
			if normalize(p) == target {
				return kind
			}
		}
	}
	return ""
}
