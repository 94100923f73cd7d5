package settings

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pacc-dev/pacc/internal/extension"
)

// ConflictKind classifies a merge conflict.
type ConflictKind string

const (
	// ConflictValue means both sides carry different values of the same type.
	ConflictValue ConflictKind = "value"
	// ConflictTypeMismatch means the sides disagree on the value's type.
	// The existing value is always preserved regardless of policy.
	ConflictTypeMismatch ConflictKind = "type_mismatch"
)

// MergeConflict describes one key that could not be merged cleanly.
type MergeConflict struct {
	KeyPath  string       `json:"key_path"`
	Kind     ConflictKind `json:"kind"`
	Existing any          `json:"existing"`
	Incoming any          `json:"incoming"`
}

// MergePolicy selects how scalar conflicts are resolved.
type MergePolicy string

const (
	// PolicyKeepExisting keeps the stored value (the default).
	PolicyKeepExisting MergePolicy = "keep_existing"
	// PolicyTakeIncoming overwrites with the incoming value.
	PolicyTakeIncoming MergePolicy = "take_incoming"
)

// MergeResult reports the outcome of a merge.
type MergeResult struct {
	Merged      *Settings       `json:"-"`
	Conflicts   []MergeConflict `json:"conflicts,omitempty"`
	ChangesMade []string        `json:"changes_made,omitempty"`
	Success     bool            `json:"success"`
}

// Merge deep-merges partial into base and returns the result. base is not
// mutated. Array strategies per kind: extension arrays dedupe by name with
// the existing side winning; enabledPlugins values use set semantics;
// unknown scalar keys follow the policy, with type mismatches always keeping
// the existing value.
func Merge(base, partial *Settings, policy MergePolicy) MergeResult {
	if policy == "" {
		policy = PolicyKeepExisting
	}

	result := MergeResult{Merged: clone(base), Success: true}
	merged := result.Merged

	for _, kind := range extension.StoreKinds {
		incoming := partial.Records[kind]
		if len(incoming) == 0 {
			continue
		}
		for _, rec := range incoming {
			if _, exists := merged.FindRecord(kind, rec.Name); exists {
				// First occurrence wins; the duplicate is dropped silently.
				continue
			}
			merged.Records[kind] = append(merged.Records[kind], rec)
			result.ChangesMade = append(result.ChangesMade, fmt.Sprintf("added %s %q", kind, rec.Name))
		}
	}

	for repoID, names := range partial.EnabledPlugins {
		existing := merged.EnabledPlugins[repoID]
		seen := make(map[string]bool, len(existing))
		for _, n := range existing {
			seen[n] = true
		}
		for _, n := range names {
			if seen[n] {
				continue
			}
			merged.EnabledPlugins[repoID] = append(merged.EnabledPlugins[repoID], n)
			seen[n] = true
			result.ChangesMade = append(result.ChangesMade,
				fmt.Sprintf("enabled plugin %q for %s", n, repoID))
		}
	}

	for repoID, state := range partial.Repositories {
		existing, exists := merged.Repositories[repoID]
		if !exists {
			merged.Repositories[repoID] = state
			result.ChangesMade = append(result.ChangesMade, fmt.Sprintf("added repository %s", repoID))
			continue
		}
		if existing.CommitSHA == state.CommitSHA && existing.Version == state.Version {
			continue
		}
		result.Conflicts = append(result.Conflicts, MergeConflict{
			KeyPath:  "repositories." + repoID,
			Kind:     ConflictValue,
			Existing: existing,
			Incoming: state,
		})
		if policy == PolicyTakeIncoming {
			merged.Repositories[repoID] = state
			result.ChangesMade = append(result.ChangesMade, fmt.Sprintf("updated repository %s", repoID))
		}
	}

	for _, key := range partial.extraOrder {
		incoming := partial.extras[key]
		existing, exists := merged.extras[key]
		if !exists {
			merged.SetExtra(key, incoming)
			result.ChangesMade = append(result.ChangesMade, fmt.Sprintf("added key %q", key))
			continue
		}
		if bytes.Equal(normalizeJSON(existing), normalizeJSON(incoming)) {
			continue
		}
		conflictKind := ConflictValue
		if jsonType(existing) != jsonType(incoming) {
			conflictKind = ConflictTypeMismatch
		}
		result.Conflicts = append(result.Conflicts, MergeConflict{
			KeyPath:  key,
			Kind:     conflictKind,
			Existing: decodeAny(existing),
			Incoming: decodeAny(incoming),
		})
		// Type mismatches always keep the existing value.
		if conflictKind == ConflictValue && policy == PolicyTakeIncoming {
			merged.extras[key] = incoming
			result.ChangesMade = append(result.ChangesMade, fmt.Sprintf("updated key %q", key))
		}
	}

	return result
}

func clone(s *Settings) *Settings {
	out := New()
	for kind, recs := range s.Records {
		out.Records[kind] = append([]extension.Record(nil), recs...)
	}
	for k, v := range s.EnabledPlugins {
		out.EnabledPlugins[k] = append([]string(nil), v...)
	}
	for k, v := range s.Repositories {
		out.Repositories[k] = v
	}
	for _, key := range s.extraOrder {
		out.SetExtra(key, s.extras[key])
	}
	return out
}

// jsonType returns a coarse type tag for a raw JSON value.
func jsonType(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "empty"
	}
	switch trimmed[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "bool"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func normalizeJSON(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

func decodeAny(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
