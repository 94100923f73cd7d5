// Package validate implements the per-kind extension validators.
//
// Validators convert every content condition into a [Diagnostic]. They
// never return Go errors for bad content and never mutate their inputs. The
// only failures surfacing as errors are catastrophic I/O (the file vanished
// mid-read).
package validate

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pacc-dev/pacc/internal/detect"
	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/pkg/fileutil"
)

// Severity ranks a diagnostic.
type Severity int

const (
	// SeverityError blocks installation unless forced.
	SeverityError Severity = iota
	// SeverityWarning is reported but non-blocking.
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalJSON encodes the severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Diagnostic codes shared by the validators.
const (
	CodeMissingField  = "MISSING_FIELD"
	CodeWrongType     = "WRONG_TYPE"
	CodeInvalidValue  = "INVALID_VALUE"
	CodeParse         = "PARSE_ERROR"
	CodeEmptyBody     = "EMPTY_BODY"
	CodeDangerousCode = "DANGEROUS_PATTERN"
	CodeUnknownKind   = "UNKNOWN_KIND"
)

// Diagnostic is a single validation finding.
type Diagnostic struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Line       int      `json:"line,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Severity   Severity `json:"severity"`
}

// Result aggregates the diagnostics for one file.
type Result struct {
	IsValid  bool           `json:"is_valid"`
	FilePath string         `json:"file_path"`
	Kind     extension.Kind `json:"kind"`
	Errors   []Diagnostic   `json:"errors,omitempty"`
	Warnings []Diagnostic   `json:"warnings,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func newResult(path string, kind extension.Kind) *Result {
	return &Result{IsValid: true, FilePath: path, Kind: kind, Metadata: map[string]any{}}
}

// AddError records an error-severity diagnostic and marks the result invalid.
func (r *Result) AddError(code, message string) *Diagnostic {
	r.Errors = append(r.Errors, Diagnostic{Code: code, Message: message, Severity: SeverityError})
	r.IsValid = false
	return &r.Errors[len(r.Errors)-1]
}

// AddWarning records a warning-severity diagnostic.
func (r *Result) AddWarning(code, message string) *Diagnostic {
	r.Warnings = append(r.Warnings, Diagnostic{Code: code, Message: message, Severity: SeverityWarning})
	return &r.Warnings[len(r.Warnings)-1]
}

// Validator checks one file of a specific kind.
type Validator interface {
	Kind() extension.Kind
	Validate(path string, content []byte) *Result
}

// Registry maps kinds to their validators.
type Registry struct {
	validators map[extension.Kind]Validator
}

// NewRegistry returns a registry with all built-in validators installed.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[extension.Kind]Validator)}
	for _, v := range []Validator{
		&HookValidator{},
		&MCPValidator{},
		&AgentValidator{},
		&CommandValidator{},
		&FragmentValidator{},
	} {
		r.validators[v.Kind()] = v
	}
	return r
}

// Single validates one file. When kind is KindNone the detector decides;
// an undetectable file yields a result with an UNKNOWN_KIND error.
func (r *Registry) Single(path string, kind extension.Kind, ctx *detect.ProjectContext) (*Result, error) {
	if kind == extension.KindNone {
		kind = detect.Detect(path, ctx)
	}
	v, ok := r.validators[kind]
	if !ok {
		res := newResult(path, extension.KindNone)
		res.AddError(CodeUnknownKind, "could not determine extension kind")
		return res, nil
	}

	content, err := fileutil.ReadFileWithLimit(path, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, paccerr.Filesystem("not_found", "file %s does not exist", path).WithCause(err)
		}
		return nil, paccerr.Filesystem("io", "reading %s", path).WithCause(err)
	}
	return v.Validate(path, content), nil
}

// Batch validates many files concurrently. A failure in one file never
// aborts another: I/O errors become PARSE_ERROR diagnostics on that file's
// result. Results come back in input order.
func (r *Registry) Batch(ctx context.Context, paths []string, kind extension.Kind, pctx *detect.ProjectContext) []*Result {
	results := make([]*Result, len(paths))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			res, err := r.Single(path, kind, pctx)
			if err != nil {
				res = newResult(path, kind)
				res.AddError(CodeParse, err.Error())
			}
			results[i] = res
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()
	return results
}

// Directory validates every candidate file under root, grouped by kind.
func (r *Registry) Directory(ctx context.Context, root string, kind extension.Kind, pctx *detect.ProjectContext) (map[extension.Kind][]*Result, error) {
	paths, err := fileutil.ScanAll(root, fileutil.Filter{
		Extensions:    []string{".md", ".markdown", ".json"},
		ExcludeHidden: true,
		MaxSize:       fileutil.DefaultMaxFileSize,
	})
	if err != nil {
		return nil, paccerr.Filesystem("io", "scanning %s", root).WithCause(err)
	}
	sort.Strings(paths)

	grouped := make(map[extension.Kind][]*Result)
	for _, res := range r.Batch(ctx, paths, kind, pctx) {
		grouped[res.Kind] = append(grouped[res.Kind], res)
	}
	return grouped, nil
}

// relTo returns path relative to root when possible, for stabler messages.
func relTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
