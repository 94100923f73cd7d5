package manifest

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

// RefKind classifies a plugin version reference.
type RefKind int

const (
	// RefFloating is an empty ref, "latest", or "HEAD": the remote default branch.
	RefFloating RefKind = iota
	// RefCommit is a 7-40 character hex commit SHA.
	RefCommit
	// RefTag is a well-formed semantic version tag, optionally "v"-prefixed.
	RefTag
	// RefBranch is anything else.
	RefBranch
)

var (
	repoPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9][A-Za-z0-9._-]*$`)
	commitPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
	semverPattern = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)
)

// Specifier points to a plugin repository plus an optional version reference.
// It accepts both the string form ("owner/repo", "owner/repo@REF") and the
// mapping form ({repository, version?, plugins?, metadata?}) in JSON.
type Specifier struct {
	// Repository is the "owner/repo" identifier.
	Repository string `json:"repository"`

	// Version is the raw reference: tag, branch, or commit SHA. Empty means
	// the remote default branch.
	Version string `json:"version,omitempty"`

	// Plugins optionally narrows which plugins of the repository to enable.
	Plugins []string `json:"plugins,omitempty"`

	// Metadata carries caller-defined annotations.
	Metadata map[string]any `json:"metadata,omitempty"`

	// mapForm records which JSON shape the specifier was read from, so
	// conflict resolution can report type mismatches.
	mapForm bool
}

// ParseSpecifier parses the string form of the grammar.
func ParseSpecifier(s string) (Specifier, error) {
	repo, ref := s, ""
	if at := strings.LastIndex(s, "@"); at > 0 {
		repo, ref = s[:at], s[at+1:]
	}
	if !repoPattern.MatchString(repo) {
		return Specifier{}, paccerr.Configuration("invalid_specifier",
			"specifier %q is not owner/repo[@ref]", s)
	}
	return Specifier{Repository: repo, Version: ref}, nil
}

// UnmarshalJSON accepts either form of the grammar.
func (sp *Specifier) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		parsed, perr := ParseSpecifier(str)
		if perr != nil {
			return perr
		}
		*sp = parsed
		return nil
	}

	type mapForm Specifier
	var m mapForm
	if err := json.Unmarshal(data, &m); err != nil {
		return paccerr.Configuration("invalid_specifier", "specifier must be a string or mapping").WithCause(err)
	}
	if !repoPattern.MatchString(m.Repository) {
		return paccerr.Configuration("invalid_specifier", "repository %q is not owner/repo", m.Repository)
	}
	*sp = Specifier(m)
	sp.mapForm = true
	return nil
}

// MarshalJSON emits the compact string form when only repository and version
// are set, the mapping form otherwise.
func (sp Specifier) MarshalJSON() ([]byte, error) {
	if !sp.mapForm && len(sp.Plugins) == 0 && len(sp.Metadata) == 0 {
		s := sp.Repository
		if sp.Version != "" {
			s += "@" + sp.Version
		}
		return json.Marshal(s)
	}
	type mapForm Specifier
	return json.Marshal(mapForm(sp))
}

// IsMapForm reports whether the specifier was declared in mapping form.
func (sp Specifier) IsMapForm() bool { return sp.mapForm }

// RefKindOf classifies a raw version reference.
func RefKindOf(ref string) RefKind {
	switch {
	case ref == "" || ref == "latest" || ref == "HEAD":
		return RefFloating
	case commitPattern.MatchString(ref):
		return RefCommit
	case semverPattern.MatchString(ref):
		return RefTag
	default:
		return RefBranch
	}
}

// Locked reports whether the specifier pins a reproducible revision: a
// commit SHA or a well-formed semantic version tag.
func (sp Specifier) Locked() bool {
	k := RefKindOf(sp.Version)
	return k == RefCommit || k == RefTag
}

// CompareRefs orders two version references for the merge conflict policy.
// Two semver refs compare by semantic version (a leading "v" is optional);
// otherwise the ref kinds rank commit > tag > branch > floating. Returns
// -1, 0, or 1.
func CompareRefs(a, b string) int {
	ka, kb := RefKindOf(a), RefKindOf(b)
	if ka == RefTag && kb == RefTag {
		return semver.Compare(canonicalSemver(a), canonicalSemver(b))
	}
	rank := func(k RefKind) int {
		switch k {
		case RefCommit:
			return 3
		case RefTag:
			return 2
		case RefBranch:
			return 1
		default:
			return 0
		}
	}
	ra, rb := rank(ka), rank(kb)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

func canonicalSemver(ref string) string {
	if !strings.HasPrefix(ref, "v") {
		return "v" + ref
	}
	return ref
}
