// Package extension defines the extension kinds pacc manages and the record
// type stored in scope configuration files.
package extension

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind identifies the category of an extension.
type Kind string

// Extension kind constants. DetectionOrder fixes the tie-break order used by
// the content-heuristic detector.
const (
	KindHooks     Kind = "hooks"
	KindMCP       Kind = "mcps"
	KindAgents    Kind = "agents"
	KindCommands  Kind = "commands"
	KindFragments Kind = "fragments"
	KindNone      Kind = ""
)

// StoreKinds are the kinds stored as arrays in settings.json, in their
// canonical order.
var StoreKinds = []Kind{KindHooks, KindMCP, KindAgents, KindCommands}

// DetectionOrder is the fixed tie-break order for the content heuristic.
var DetectionOrder = []Kind{KindHooks, KindMCP, KindCommands, KindAgents, KindFragments}

// ParseKind maps user input to a Kind, accepting singular and plural forms.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "hook", "hooks":
		return KindHooks, true
	case "mcp", "mcps":
		return KindMCP, true
	case "agent", "agents":
		return KindAgents, true
	case "command", "commands":
		return KindCommands, true
	case "fragment", "fragments":
		return KindFragments, true
	}
	return KindNone, false
}

// Valid reports whether k is a concrete extension kind.
func (k Kind) Valid() bool {
	_, ok := ParseKind(string(k))
	return ok
}

// Source origin kinds for installed records.
const (
	SourceLocal    = "local"
	SourceURL      = "url"
	SourceGit      = "git"
	SourceRegistry = "registry"
)

// Record is one installed extension as stored in a scope configuration file.
// Kind-specific fields (events, matchers, command, model, ...) and any
// unknown keys live in Extra and survive round trips verbatim.
type Record struct {
	Name        string
	Path        string
	Source      string
	Version     string
	InstalledAt time.Time
	Description string
	Extra       map[string]json.RawMessage
}

// knownRecordKeys are the fields lifted out of Extra.
var knownRecordKeys = map[string]bool{
	"name": true, "path": true, "source": true, "version": true,
	"installed_at": true, "description": true,
}

type recordWire struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	Source      string `json:"source,omitempty"`
	Version     string `json:"version,omitempty"`
	InstalledAt string `json:"installed_at,omitempty"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON decodes a record, keeping unknown keys in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "decoding record")
	}
	r.Name = wire.Name
	r.Path = wire.Path
	r.Source = wire.Source
	r.Version = wire.Version
	r.Description = wire.Description
	if wire.InstalledAt != "" {
		ts, err := time.Parse(time.RFC3339, wire.InstalledAt)
		if err != nil {
			return errors.Wrapf(err, "record %q: invalid installed_at", wire.Name)
		}
		r.InstalledAt = ts
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decoding record fields")
	}
	for k := range raw {
		if knownRecordKeys[k] {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// MarshalJSON encodes the record as a single object with Extra merged in.
// Key order follows encoding/json map ordering (sorted), which keeps output
// deterministic across saves.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, 6+len(r.Extra))

	put := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encoding record field %s", key)
		}
		out[key] = data
		return nil
	}

	if err := put("name", r.Name); err != nil {
		return nil, err
	}
	if r.Path != "" {
		if err := put("path", r.Path); err != nil {
			return nil, err
		}
	}
	if r.Source != "" {
		if err := put("source", r.Source); err != nil {
			return nil, err
		}
	}
	if r.Version != "" {
		if err := put("version", r.Version); err != nil {
			return nil, err
		}
	}
	if !r.InstalledAt.IsZero() {
		if err := put("installed_at", r.InstalledAt.UTC().Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	if r.Description != "" {
		if err := put("description", r.Description); err != nil {
			return nil, err
		}
	}
	for k, v := range r.Extra {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return json.Marshal(out)
}
