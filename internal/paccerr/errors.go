package paccerr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failure into one of the taxonomy categories.
type Kind int

const (
	// KindGeneric is the base kind for unclassified failures.
	KindGeneric Kind = iota
	// KindValidation indicates content failed the schema or heuristic for its kind.
	KindValidation
	// KindConfiguration indicates a config file is unparseable or structurally invalid.
	KindConfiguration
	// KindFilesystem indicates an I/O error, permission denial, or missing file.
	KindFilesystem
	// KindSource indicates an unrecognized, unreachable, or oversized source.
	KindSource
	// KindNetwork indicates an HTTP failure, timeout, or redirect loop.
	KindNetwork
	// KindSecurity indicates a blocked scheme, path traversal, or unsafe archive entry.
	KindSecurity
	// KindConflict indicates a name collision or an unresolvable version conflict.
	KindConflict
	// KindTimeout indicates a caller-supplied deadline was exceeded.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindFilesystem:
		return "filesystem"
	case KindSource:
		return "source"
	case KindNetwork:
		return "network"
	case KindSecurity:
		return "security"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// Error is a classified pacc failure. It wraps an optional cause and carries
// a machine-readable code, a context map, and an optional suggestion.
type Error struct {
	kind       Kind
	code       string
	message    string
	context    map[string]string
	suggestion string
	cause      error
}

// New creates a classified error with the given kind and code.
func New(kind Kind, code, message string) *Error {
	return &Error{kind: kind, code: code, message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{kind: kind, code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause yields nil.
func Wrap(cause error, kind Kind, code, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, code: code, message: message, cause: cause}
}

// Convenience constructors, one per taxonomy kind.

// Validation creates a KindValidation error.
func Validation(code, format string, args ...any) *Error {
	return Newf(KindValidation, code, format, args...)
}

// Configuration creates a KindConfiguration error.
func Configuration(code, format string, args ...any) *Error {
	return Newf(KindConfiguration, code, format, args...)
}

// Filesystem creates a KindFilesystem error.
func Filesystem(code, format string, args ...any) *Error {
	return Newf(KindFilesystem, code, format, args...)
}

// Source creates a KindSource error.
func Source(code, format string, args ...any) *Error {
	return Newf(KindSource, code, format, args...)
}

// Network creates a KindNetwork error.
func Network(code, format string, args ...any) *Error {
	return Newf(KindNetwork, code, format, args...)
}

// Security creates a KindSecurity error.
func Security(code, format string, args ...any) *Error {
	return Newf(KindSecurity, code, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(code, format string, args ...any) *Error {
	return Newf(KindConflict, code, format, args...)
}

// Timeout creates a KindTimeout error.
func Timeout(code, format string, args ...any) *Error {
	return Newf(KindTimeout, code, format, args...)
}

// WithContext returns a copy of e with key=value added to its context map.
func (e *Error) WithContext(key, value string) *Error {
	clone := *e
	clone.context = make(map[string]string, len(e.context)+1)
	for k, v := range e.context {
		clone.context[k] = v
	}
	clone.context[key] = value
	return &clone
}

// WithSuggestion returns a copy of e carrying an actionable suggestion.
func (e *Error) WithSuggestion(s string) *Error {
	clone := *e
	clone.suggestion = s
	return &clone
}

// WithCause returns a copy of e wrapping the given cause.
func (e *Error) WithCause(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// Kind returns the taxonomy classification.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the machine-readable failure code, e.g. "path_traversal".
func (e *Error) Code() string { return e.code }

// Suggestion returns the actionable suggestion, if any.
func (e *Error) Suggestion() string { return e.suggestion }

// Context returns the context map. The returned map must not be mutated.
func (e *Error) Context() map[string]string { return e.context }

// Error renders "kind/code: message" plus sorted context pairs.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.kind.String())
	sb.WriteString("/")
	sb.WriteString(e.code)
	sb.WriteString(": ")
	sb.WriteString(e.message)
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%s", k, e.context[k])
		}
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether any error in the chain is a pacc error of kind k.
func IsKind(err error, k Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.kind == k
	}
	return false
}

// CodeOf returns the failure code of the first pacc error in the chain,
// or "" if the chain carries none.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.code
	}
	return ""
}

// SuggestionOf returns the suggestion of the first pacc error in the chain.
func SuggestionOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.suggestion
	}
	return ""
}
