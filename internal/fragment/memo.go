package fragment

import (
	"bytes"
	"strings"
)

// Marker lines delimiting the managed reference block in CLAUDE.md.
const (
	MarkerStart = "<!-- PACC:fragments:START -->"
	MarkerEnd   = "<!-- PACC:fragments:END -->"
)

// Memo is a parsed CLAUDE.md. Only the lines between the markers are
// owned here; every byte of prefix and suffix re-serializes untouched.
type Memo struct {
	prefix   []byte
	suffix   []byte
	entries  []string
	hasBlock bool
}

// ParseMemo splits content around the marker block. A missing block
// yields a Memo whose entire content is prefix.
func ParseMemo(content []byte) *Memo {
	start := indexLine(content, MarkerStart)
	if start < 0 {
		return &Memo{prefix: content}
	}
	afterStart := lineEnd(content, start)
	end := indexLine(content[afterStart:], MarkerEnd)
	if end < 0 {
		// An unterminated block is treated as absent; the broken marker
		// stays in the prefix untouched.
		return &Memo{prefix: content}
	}
	end += afterStart

	m := &Memo{
		prefix:   content[:start],
		suffix:   content[lineEnd(content, end):],
		hasBlock: true,
	}
	inner := string(content[afterStart:end])
	for _, line := range strings.Split(inner, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			m.entries = append(m.entries, trimmed)
		}
	}
	return m
}

// indexLine returns the byte offset of the line equal to marker, or -1.
func indexLine(content []byte, marker string) int {
	offset := 0
	for _, line := range bytes.Split(content, []byte("\n")) {
		if string(bytes.TrimRight(line, "\r")) == marker {
			return offset
		}
		offset += len(line) + 1
	}
	return -1
}

// lineEnd returns the offset just past the newline ending the line that
// starts at start.
func lineEnd(content []byte, start int) int {
	if i := bytes.IndexByte(content[start:], '\n'); i >= 0 {
		return start + i + 1
	}
	return len(content)
}

// Entries returns the reference lines inside the block.
func (m *Memo) Entries() []string {
	out := make([]string, len(m.entries))
	copy(out, m.entries)
	return out
}

// Has reports whether the block contains the reference line.
func (m *Memo) Has(entry string) bool {
	for _, e := range m.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// Add inserts a reference line; duplicates are ignored.
func (m *Memo) Add(entry string) {
	if !m.Has(entry) {
		m.entries = append(m.entries, entry)
	}
}

// Remove drops a reference line, reporting whether it was present.
func (m *Memo) Remove(entry string) bool {
	for i, e := range m.entries {
		if e == entry {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Render serializes the memo. When the block is being created it is
// appended at EOF, separated from existing content by one blank line and
// ending with a single trailing newline.
func (m *Memo) Render() []byte {
	var buf bytes.Buffer

	if m.hasBlock {
		buf.Write(m.prefix)
	} else {
		buf.Write(m.prefix)
		if len(m.prefix) > 0 {
			if m.prefix[len(m.prefix)-1] != '\n' {
				buf.WriteByte('\n')
			}
			buf.WriteByte('\n')
		}
	}

	buf.WriteString(MarkerStart)
	buf.WriteByte('\n')
	for _, entry := range m.entries {
		buf.WriteString(entry)
		buf.WriteByte('\n')
	}
	buf.WriteString(MarkerEnd)
	buf.WriteByte('\n')
	buf.Write(m.suffix)
	return buf.Bytes()
}
