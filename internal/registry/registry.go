// Package registry reads the advisory catalog: a local TOML file listing
// known extensions and plugins. The catalog is informational, never
// consulted over the network.
package registry

import (
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sahilm/fuzzy"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
)

// DefaultFileName is the catalog file looked up under the pacc config home.
const DefaultFileName = "registry.toml"

// Entry is one catalog listing.
type Entry struct {
	Name        string   `toml:"name" json:"name"`
	Kind        string   `toml:"kind" json:"kind"`
	Description string   `toml:"description,omitempty" json:"description,omitempty"`
	URL         string   `toml:"url" json:"url"`
	Tags        []string `toml:"tags,omitempty" json:"tags,omitempty"`
}

// Catalog is a loaded registry file.
type Catalog struct {
	Entries []Entry `toml:"entries"`

	byName map[string]int
}

// Load reads and indexes a catalog file. A missing file yields an empty
// catalog: having no registry configured is not an error.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{byName: map[string]int{}}, nil
		}
		return nil, paccerr.Filesystem("io", "reading %s", path).WithCause(err)
	}

	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, paccerr.Configuration("invalid_registry", "parsing %s", path).WithCause(err)
	}

	c.byName = make(map[string]int, len(c.Entries))
	for i, e := range c.Entries {
		if e.Name == "" {
			return nil, paccerr.Configuration("invalid_registry", "%s: entry %d has no name", path, i)
		}
		if e.Kind != "plugin" {
			if _, ok := extension.ParseKind(e.Kind); !ok {
				return nil, paccerr.Configuration("invalid_registry", "%s: entry %q has unknown kind %q", path, e.Name, e.Kind)
			}
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, paccerr.Configuration("invalid_registry", "%s: duplicate entry %q", path, e.Name)
		}
		c.byName[e.Name] = i
	}
	return &c, nil
}

// Get returns the entry with the exact name.
func (c *Catalog) Get(name string) (Entry, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	return c.Entries[i], true
}

// Search returns entries matching the query against name, description,
// and tags. Substring matches come first, fuzzy matches after, each group
// name-sorted respectively rank-ordered. kind narrows the result when
// non-empty.
func (c *Catalog) Search(query, kind string) []Entry {
	candidates := c.Entries
	if kind != "" {
		candidates = nil
		for _, e := range c.Entries {
			if e.Kind == kind {
				candidates = append(candidates, e)
			}
		}
	}
	if query == "" {
		out := append([]Entry(nil), candidates...)
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	}

	lower := strings.ToLower(query)
	var direct, rest []Entry
	var haystack []string
	for _, e := range candidates {
		if strings.Contains(strings.ToLower(e.Name), lower) ||
			strings.Contains(strings.ToLower(e.Description), lower) ||
			tagMatch(e.Tags, lower) {
			direct = append(direct, e)
			continue
		}
		rest = append(rest, e)
		haystack = append(haystack, e.Name+" "+e.Description+" "+strings.Join(e.Tags, " "))
	}
	sort.Slice(direct, func(i, j int) bool { return direct[i].Name < direct[j].Name })
	for _, m := range fuzzy.Find(query, haystack) {
		direct = append(direct, rest[m.Index])
	}
	return direct
}

func tagMatch(tags []string, lower string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), lower) {
			return true
		}
	}
	return false
}
