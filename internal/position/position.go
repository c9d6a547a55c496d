// Package position tracks source locations for the translator. Positions
// and spans travel with every parsed and lowered node so diagnostics can
// point back at the Python source.
package position

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Position represents a single point in source code
type Position struct {
	Filename string // Source file name
	Line     int    // 1-based line number
	Column   int    // 1-based column number
	Offset   int    // 0-based byte offset in source
}

// IsValid returns true if the position is valid
func (p Position) IsValid() bool {
	return p.Line > 0 && p.Column > 0 && p.Offset >= 0
}

func (p Position) String() string {
	if p.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", filepath.Base(p.Filename), p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p comes before other in the same file.
func (p Position) Before(other Position) bool {
	if p.Filename != other.Filename {
		return p.Filename < other.Filename
	}
	return p.Offset < other.Offset
}

// Span is a half-open range [Start, End) of source text.
type Span struct {
	Start Position
	End   Position
}

// At returns an empty span located at p.
func At(p Position) Span { return Span{Start: p, End: p} }

// IsValid returns true if the span is valid
func (s Span) IsValid() bool {
	return s.Start.IsValid() && s.End.IsValid() &&
		s.Start.Filename == s.End.Filename &&
		s.Start.Offset <= s.End.Offset
}

func (s Span) String() string {
	if !s.Start.IsValid() {
		return "<unknown>"
	}
	return s.Start.String()
}

// Contains returns true if the span contains the given position
func (s Span) Contains(pos Position) bool {
	if !s.IsValid() || !pos.IsValid() || s.Start.Filename != pos.Filename {
		return false
	}
	return s.Start.Offset <= pos.Offset && pos.Offset < s.End.Offset
}

// Union returns a span that encompasses both s and other.
func (s Span) Union(other Span) Span {
	if !s.IsValid() {
		return other
	}
	if !other.IsValid() || s.Start.Filename != other.Start.Filename {
		return s
	}
	start, end := s.Start, s.End
	if other.Start.Before(start) {
		start = other.Start
	}
	if end.Before(other.End) {
		end = other.End
	}
	return Span{Start: start, End: end}
}

// SourceFile holds file content with a precomputed line index.
type SourceFile struct {
	Filename   string
	Content    string
	lineStarts []int
}

// NewSourceFile creates a new source file from content
func NewSourceFile(filename, content string) *SourceFile {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &SourceFile{Filename: filename, Content: content, lineStarts: starts}
}

// LineCount returns the number of lines in the file.
func (sf *SourceFile) LineCount() int { return len(sf.lineStarts) }

// Line returns the specified line (1-based) without its newline, or ""
// when out of range.
func (sf *SourceFile) Line(n int) string {
	if n < 1 || n > len(sf.lineStarts) {
		return ""
	}
	start := sf.lineStarts[n-1]
	end := len(sf.Content)
	if n < len(sf.lineStarts) {
		end = sf.lineStarts[n] - 1
	}
	return strings.TrimSuffix(sf.Content[start:end], "\r")
}

// PositionFor converts a byte offset to a Position.
func (sf *SourceFile) PositionFor(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(sf.Content) {
		offset = len(sf.Content)
	}
	line := sort.Search(len(sf.lineStarts), func(i int) bool { return sf.lineStarts[i] > offset })
	return Position{
		Filename: sf.Filename,
		Line:     line,
		Column:   offset - sf.lineStarts[line-1] + 1,
		Offset:   offset,
	}
}

// Snippet renders the line under span with a caret marker, for terminal
// diagnostics.
func (sf *SourceFile) Snippet(span Span) string {
	if !span.Start.IsValid() {
		return ""
	}
	line := sf.Line(span.Start.Line)
	if line == "" {
		return ""
	}
	width := 1
	if span.End.Line == span.Start.Line && span.End.Column > span.Start.Column {
		width = span.End.Column - span.Start.Column
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4d | %s\n", span.Start.Line, line)
	b.WriteString("     | ")
	for i := 1; i < span.Start.Column && i <= len(line); i++ {
		if line[i-1] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteString(strings.Repeat("^", width))
	return b.String()
}
