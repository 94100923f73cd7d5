// Package detect classifies files into extension kinds.
//
// Three priority tiers are applied in order, first signal wins:
//
//  1. Manifest declaration: the project manifest's extensions section names
//     the file explicitly. This tier exists so content keywords can never
//     misclassify a declared file (a slash command that happens to mention
//     tools is still a command).
//  2. Directory structure: an ancestor directory named after a kind.
//  3. Content heuristic: kind-specific field presence in front matter or
//     top-level JSON keys, ties broken in fixed kind order.
//
// The detector is pure: it reads only the candidate file and, once, the
// project manifest handed to it.
package detect

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/pkg/fileutil"
	"github.com/pacc-dev/pacc/pkg/frontmatter"
)

// ProjectContext supplies the optional project surroundings of a candidate.
type ProjectContext struct {
	// Root is the project root directory.
	Root string
	// Manifest is the parsed project manifest, nil when absent.
	Manifest *manifest.Manifest
}

// Detect classifies the file at path. ctx may be nil when no project
// context is available. Returns KindNone when no tier produces a signal.
func Detect(path string, ctx *ProjectContext) extension.Kind {
	if ctx != nil && ctx.Manifest != nil {
		if declared := ctx.Manifest.DeclaredKind(ctx.Root, path); declared != "" {
			if kind, ok := extension.ParseKind(declared); ok {
				return kind
			}
		}
	}

	if kind := detectByDirectory(path, ctx); kind != extension.KindNone {
		return kind
	}

	return detectByContent(path)
}

// detectByDirectory checks each ancestor directory name up to the project
// root (or the filesystem root without context) against the kind names.
func detectByDirectory(path string, ctx *ProjectContext) extension.Kind {
	stop := ""
	if ctx != nil && ctx.Root != "" {
		stop = filepath.Clean(ctx.Root)
	}

	dir := filepath.Dir(filepath.Clean(path))
	for {
		if kind, ok := extension.ParseKind(filepath.Base(dir)); ok {
			return kind
		}
		parent := filepath.Dir(dir)
		if parent == dir || dir == stop {
			return extension.KindNone
		}
		dir = parent
	}
}

// contentSignals holds the fields extracted for the heuristic tier.
type contentSignals struct {
	topLevelJSON map[string]json.RawMessage
	matter       map[string]any
	isMarkdown   bool
}

func detectByContent(path string) extension.Kind {
	data, err := fileutil.ReadFileWithLimit(path, 0)
	if err != nil {
		return extension.KindNone
	}

	sig := contentSignals{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &sig.topLevelJSON); err != nil {
			return extension.KindNone
		}
	case ".md", ".markdown":
		sig.isMarkdown = true
		var matter map[string]any
		if _, err := frontmatter.Parse(data, &matter); err != nil {
			return extension.KindNone
		}
		sig.matter = matter
	default:
		return extension.KindNone
	}

	for _, kind := range extension.DetectionOrder {
		if sig.matches(kind) {
			return kind
		}
	}
	return extension.KindNone
}

func (s contentSignals) matches(kind extension.Kind) bool {
	switch kind {
	case extension.KindHooks:
		if s.topLevelJSON == nil {
			return false
		}
		_, ok := s.topLevelJSON["eventTypes"]
		return ok
	case extension.KindMCP:
		if s.topLevelJSON == nil {
			return false
		}
		if _, ok := s.topLevelJSON["mcpServers"]; ok {
			return true
		}
		_, hasCommand := s.topLevelJSON["command"]
		_, hasEvents := s.topLevelJSON["eventTypes"]
		return hasCommand && !hasEvents
	case extension.KindCommands:
		if !s.isMarkdown {
			return false
		}
		if name, ok := s.matter["name"].(string); ok && strings.HasPrefix(name, "/") {
			return true
		}
		_, ok := s.matter["allowed-tools"]
		return ok
	case extension.KindAgents:
		if !s.isMarkdown {
			return false
		}
		_, hasTools := s.matter["tools"]
		_, hasModel := s.matter["model"]
		return hasTools && hasModel
	case extension.KindFragments:
		if !s.isMarkdown || s.matter == nil {
			return false
		}
		if _, ok := s.matter["tags"]; ok {
			return true
		}
		_, ok := s.matter["category"]
		return ok
	}
	return false
}
