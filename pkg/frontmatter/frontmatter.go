// Package frontmatter parses and formats YAML front matter in markdown files.
package frontmatter

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrMissingFrontmatter is returned by MustParse when no front matter block
// is present.
var ErrMissingFrontmatter = errors.New("missing frontmatter")

var delimiter = []byte("---")

// Document is the result of splitting a markdown file.
type Document struct {
	// Matter is the raw YAML between the delimiters, nil when absent.
	Matter []byte

	// Body is the markdown content after the closing delimiter (or the whole
	// input when no front matter is present).
	Body []byte

	// BodyLine is the 1-based line number where Body starts in the original
	// input. Diagnostics about the body add this offset.
	BodyLine int
}

// HasMatter reports whether a front matter block was found.
func (d Document) HasMatter() bool { return d.Matter != nil }

// Split separates front matter from body without interpreting the YAML.
// The block must start at the first byte of the input with a "---" line and
// end with another "---" line. CRLF input is accepted.
func Split(content []byte) Document {
	lines := bytes.SplitAfter(content, []byte("\n"))
	if len(lines) == 0 || !isDelimiter(lines[0]) {
		return Document{Body: content, BodyLine: 1}
	}

	for i := 1; i < len(lines); i++ {
		if !isDelimiter(lines[i]) {
			continue
		}
		var matter []byte
		for _, l := range lines[1:i] {
			matter = append(matter, l...)
		}
		var body []byte
		for _, l := range lines[i+1:] {
			body = append(body, l...)
		}
		if matter == nil {
			matter = []byte{}
		}
		return Document{Matter: matter, Body: body, BodyLine: i + 2}
	}

	// Opening delimiter with no close: treat the whole input as body.
	return Document{Body: content, BodyLine: 1}
}

func isDelimiter(line []byte) bool {
	trimmed := bytes.TrimRight(line, "\r\n")
	return bytes.Equal(trimmed, delimiter)
}

// Parse splits content and unmarshals the front matter into matter.
// Files without front matter succeed with matter left untouched; this suits
// kinds where the block is optional (commands, fragments).
func Parse[T any](content []byte, matter *T) (Document, error) {
	doc := Split(content)
	if !doc.HasMatter() {
		return doc, nil
	}
	if err := yaml.Unmarshal(doc.Matter, matter); err != nil {
		return doc, errors.Wrap(err, "parsing frontmatter")
	}
	return doc, nil
}

// MustParse is Parse but fails with ErrMissingFrontmatter when the block is
// absent. Use for kinds that require front matter (agents).
func MustParse[T any](content []byte, matter *T) (Document, error) {
	doc := Split(content)
	if !doc.HasMatter() {
		return doc, ErrMissingFrontmatter
	}
	if err := yaml.Unmarshal(doc.Matter, matter); err != nil {
		return doc, errors.Wrap(err, "parsing frontmatter")
	}
	return doc, nil
}

// Format renders matter as a front matter block followed by body.
func Format(matter any, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(matter); err != nil {
		return nil, errors.Wrap(err, "encoding frontmatter")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "closing encoder")
	}

	buf.WriteString("---\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}
