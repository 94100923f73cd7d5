package fileutil

import (
	"io/fs"
	"iter"
	"path/filepath"
	"strings"
)

// Filter selects files during a directory scan. The zero value accepts
// every regular file.
type Filter struct {
	// Extensions is an allow-list of file extensions including the dot
	// (".md", ".json"). Empty accepts all extensions.
	Extensions []string

	// MaxSize excludes files larger than this many bytes. Zero means no bound.
	MaxSize int64

	// ExcludeHidden skips dot-files and descends past dot-directories.
	ExcludeHidden bool

	// ExcludeGlobs skips files whose base name matches any pattern
	// (path.Match syntax).
	ExcludeGlobs []string
}

// Accept reports whether a regular file with the given base name and size
// passes the filter.
func (f Filter) Accept(name string, size int64) bool {
	if f.ExcludeHidden && strings.HasPrefix(name, ".") {
		return false
	}
	if f.MaxSize > 0 && size > f.MaxSize {
		return false
	}
	if len(f.Extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(name))
		ok := false
		for _, allowed := range f.Extensions {
			if ext == strings.ToLower(allowed) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, pattern := range f.ExcludeGlobs {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return false
		}
	}
	return true
}

// Scan lazily walks root and yields the paths of regular files accepted by
// the filter. Symbolic links are not followed, so cyclic trees terminate.
// Errors encountered mid-walk are yielded with an empty path; the caller
// decides whether to continue. Iteration stops when the consumer breaks.
func Scan(root string, filter Filter) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", err) {
					stopped = true
					return fs.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				if filter.ExcludeHidden && path != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !filter.Accept(d.Name(), info.Size()) {
				return nil
			}
			if !yield(path, nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})
		if walkErr != nil && !stopped {
			yield("", walkErr)
		}
	}
}

// ScanAll is Scan materialized into a slice, stopping at the first error.
// Convenient for callers that know the tree is small.
func ScanAll(root string, filter Filter) ([]string, error) {
	var out []string
	for path, err := range Scan(root, filter) {
		if err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}
