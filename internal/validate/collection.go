package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
)

// CollectionManifestName is the optional manifest inside a fragment
// collection directory.
const CollectionManifestName = "collection.json"

// CollectionManifest lists the fragments a collection ships.
type CollectionManifest struct {
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Files         []string `json:"files"`
	OptionalFiles []string `json:"optional_files,omitempty"`
}

// Collection validates a fragment collection directory: its manifest, if
// present, must list only existing fragments contained in the directory.
// Each listed fragment is validated individually and its result appended.
func (r *Registry) Collection(root string) ([]*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, paccerr.Filesystem("not_found", "collection %s does not exist", root)
		}
		return nil, paccerr.Filesystem("io", "reading %s", root).WithCause(err)
	}
	if !info.IsDir() {
		return nil, paccerr.Filesystem("io", "%s is not a directory", root)
	}

	manifestPath := filepath.Join(root, CollectionManifestName)
	res := newResult(manifestPath, extension.KindFragments)
	results := []*Result{res}

	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		// No manifest: every markdown file in the directory is a candidate.
		res.Metadata["manifest"] = false
		return results, nil
	}
	if err != nil {
		return nil, paccerr.Filesystem("io", "reading %s", manifestPath).WithCause(err)
	}
	res.Metadata["manifest"] = true

	var manifest CollectionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		res.AddError(CodeParse, fmt.Sprintf("invalid JSON: %v", err))
		return results, nil
	}
	if manifest.Files == nil {
		res.AddError(CodeMissingField, "files")
		return results, nil
	}

	check := func(rel string, required bool) {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if !paths.IsSafeRelative(root, full) {
			res.AddError(CodeInvalidValue, fmt.Sprintf("%s escapes the collection root", rel))
			return
		}
		if _, err := os.Stat(full); err != nil {
			if required {
				res.AddError(CodeInvalidValue, fmt.Sprintf("listed file %s does not exist", rel))
			} else {
				res.AddWarning(CodeInvalidValue, fmt.Sprintf("optional file %s does not exist", rel))
			}
			return
		}
		fr, err := r.Single(full, extension.KindFragments, nil)
		if err == nil {
			results = append(results, fr)
		}
	}
	for _, f := range manifest.Files {
		check(f, true)
	}
	for _, f := range manifest.OptionalFiles {
		check(f, false)
	}
	return results, nil
}
