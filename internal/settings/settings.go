package settings

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
)

// RepoState records one installed plugin repository.
type RepoState struct {
	Version     string    `json:"version,omitempty"`
	CommitSHA   string    `json:"commitSha,omitempty"`
	URL         string    `json:"url,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Plugins     []string  `json:"plugins,omitempty"`
}

// Settings is the parsed form of one scope's settings.json.
type Settings struct {
	// Records holds the ordered extension arrays, one per store kind.
	Records map[extension.Kind][]extension.Record

	// EnabledPlugins maps repository id ("owner/repo") to enabled plugin names.
	EnabledPlugins map[string][]string

	// Repositories maps repository id to its installed state.
	Repositories map[string]RepoState

	// extras holds unknown top-level keys verbatim; extraOrder preserves
	// their original position for byte-stable round trips.
	extras     map[string]json.RawMessage
	extraOrder []string
}

// New returns the empty default settings document.
func New() *Settings {
	return &Settings{
		Records:        make(map[extension.Kind][]extension.Record),
		EnabledPlugins: make(map[string][]string),
		Repositories:   make(map[string]RepoState),
		extras:         make(map[string]json.RawMessage),
	}
}

// ExtraKeys returns the unknown top-level keys in original order.
func (s *Settings) ExtraKeys() []string {
	return append([]string(nil), s.extraOrder...)
}

// Extra returns the raw value of an unknown top-level key.
func (s *Settings) Extra(key string) (json.RawMessage, bool) {
	v, ok := s.extras[key]
	return v, ok
}

// SetExtra stores an unknown top-level key, appending it to the order when new.
func (s *Settings) SetExtra(key string, value json.RawMessage) {
	if _, exists := s.extras[key]; !exists {
		s.extraOrder = append(s.extraOrder, key)
	}
	s.extras[key] = value
}

// FindRecord returns the record with the given name, or false.
func (s *Settings) FindRecord(kind extension.Kind, name string) (extension.Record, bool) {
	for _, rec := range s.Records[kind] {
		if rec.Name == name {
			return rec, true
		}
	}
	return extension.Record{}, false
}

// AddRecord appends a record, rejecting duplicate names within the kind.
func (s *Settings) AddRecord(kind extension.Kind, rec extension.Record) error {
	if _, exists := s.FindRecord(kind, rec.Name); exists {
		return paccerr.Conflict("name_exists", "%s %q already installed", kind, rec.Name).
			WithContext("kind", string(kind)).
			WithContext("name", rec.Name)
	}
	s.Records[kind] = append(s.Records[kind], rec)
	return nil
}

// ReplaceRecord swaps the record with a matching name in place, preserving
// its array position. Returns false when no record matches.
func (s *Settings) ReplaceRecord(kind extension.Kind, rec extension.Record) bool {
	for i, existing := range s.Records[kind] {
		if existing.Name == rec.Name {
			s.Records[kind][i] = rec
			return true
		}
	}
	return false
}

// RemoveRecord deletes the named record. Returns false when absent.
func (s *Settings) RemoveRecord(kind extension.Kind, name string) bool {
	recs := s.Records[kind]
	for i, rec := range recs {
		if rec.Name == name {
			s.Records[kind] = append(recs[:i:i], recs[i+1:]...)
			return true
		}
	}
	return false
}

// Validate checks structural invariants: record names unique per kind,
// enabledPlugins values are string arrays (guaranteed by the type system
// after parse), and every enabled plugin of a repository is listed in that
// repository's plugin set when the repository is known.
func (s *Settings) Validate() error {
	for kind, recs := range s.Records {
		seen := make(map[string]bool, len(recs))
		for _, rec := range recs {
			if rec.Name == "" {
				return paccerr.Configuration("invalid_shape", "%s record with empty name", kind)
			}
			if seen[rec.Name] {
				return paccerr.Configuration("invalid_shape", "duplicate %s record %q", kind, rec.Name)
			}
			seen[rec.Name] = true
		}
	}
	for repoID, enabled := range s.EnabledPlugins {
		state, known := s.Repositories[repoID]
		if !known {
			continue
		}
		available := make(map[string]bool, len(state.Plugins))
		for _, p := range state.Plugins {
			available[p] = true
		}
		for _, p := range enabled {
			if !available[p] {
				return paccerr.Configuration("invalid_shape",
					"plugin %q enabled for %s but not provided by it", p, repoID)
			}
		}
	}
	return nil
}

var knownTopLevel = map[string]bool{
	"hooks": true, "mcps": true, "agents": true, "commands": true,
	"enabledPlugins": true, "repositories": true,
}

// Parse decodes a settings document, preserving unknown top-level keys and
// their order. Empty input and non-object input are invalid.
func Parse(data []byte) (*Settings, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, paccerr.Configuration("invalid_json", "settings file is empty")
	}

	s := New()

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, paccerr.Configuration("invalid_json", "parsing settings").WithCause(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, paccerr.Configuration("invalid_shape", "settings root must be an object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, paccerr.Configuration("invalid_json", "parsing settings").WithCause(err)
		}
		key := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, paccerr.Configuration("invalid_json", "parsing settings key %q", key).WithCause(err)
		}

		switch key {
		case "hooks", "mcps", "agents", "commands":
			var recs []extension.Record
			if err := json.Unmarshal(raw, &recs); err != nil {
				return nil, paccerr.Configuration("invalid_shape", "%s must be an array of records", key).WithCause(err)
			}
			s.Records[extension.Kind(key)] = recs
		case "enabledPlugins":
			if err := json.Unmarshal(raw, &s.EnabledPlugins); err != nil {
				return nil, paccerr.Configuration("invalid_shape", "enabledPlugins must map repository to name arrays").WithCause(err)
			}
		case "repositories":
			if err := json.Unmarshal(raw, &s.Repositories); err != nil {
				return nil, paccerr.Configuration("invalid_shape", "repositories must map repository to state objects").WithCause(err)
			}
		default:
			s.SetExtra(key, raw)
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, paccerr.Configuration("invalid_json", "parsing settings").WithCause(err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode renders the document as 2-space-indented JSON with a trailing
// newline. Known keys come first in canonical order; unknown keys follow in
// their original order.
func (s *Settings) Encode() ([]byte, error) {
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
	writeKey := func(key string, v any) error {
		data, err := json.MarshalIndent(v, "  ", "  ")
		if err != nil {
			return errors.Wrapf(err, "encoding settings key %q", key)
		}
		emit(key, data)
		return nil
	}

	for _, kind := range extension.StoreKinds {
		recs, present := s.Records[kind]
		if !present {
			continue
		}
		if recs == nil {
			recs = []extension.Record{}
		}
		if err := writeKey(string(kind), recs); err != nil {
			return nil, err
		}
	}
	if len(s.EnabledPlugins) > 0 {
		if err := writeKey("enabledPlugins", s.EnabledPlugins); err != nil {
			return nil, err
		}
	}
	if len(s.Repositories) > 0 {
		if err := writeKey("repositories", s.Repositories); err != nil {
			return nil, err
		}
	}
	for _, key := range s.extraOrder {
		raw, ok := s.extras[key]
		if !ok {
			continue
		}
		// Re-indent the stored bytes directly. Decoding into any would
		// sort nested object keys and round large integers through
		// float64.
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "  ", "  "); err != nil {
			return nil, errors.Wrapf(err, "re-encoding settings key %q", key)
		}
		emit(key, pretty.Bytes())
	}

	if first {
		buf.WriteString("}")
	} else {
		buf.WriteString("\n}")
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
