// Package format normalizes emitted Rust source and renders line diffs
// between two translations of the same file.
package format

import (
	"bytes"
	"strings"
)

// Options controls formatting style.
type Options struct {
	// PreserveNewlineStyle: when true, CRLF in input keeps CRLF in output; else LF.
	PreserveNewlineStyle bool
	// MaxBlankLines caps consecutive blank lines. Zero or less leaves runs intact.
	MaxBlankLines int
}

// DefaultOptions returns the settings used for generated code.
func DefaultOptions() Options {
	return Options{PreserveNewlineStyle: false, MaxBlankLines: 1}
}

// FormatText applies the final normalization pass:
//   - trailing spaces and tabs are trimmed on each line
//   - leading blank lines are dropped and blank runs are capped at MaxBlankLines
//   - the text ends with exactly one newline
//   - CRLF is kept only when PreserveNewlineStyle is set and the input used it
func FormatText(text string, opts Options) string {
	useCRLF := opts.PreserveNewlineStyle && strings.Contains(text, "\r\n")

	norm := strings.ReplaceAll(text, "\r\n", "\n")
	norm = strings.ReplaceAll(norm, "\r", "\n")

	sep := "\n"
	if useCRLF {
		sep = "\r\n"
	}

	lines := strings.Split(norm, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if len(out) == 0 || opts.MaxBlankLines > 0 && blank > opts.MaxBlankLines {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return sep
	}

	var buf bytes.Buffer
	for i, ln := range out {
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(ln)
	}
	buf.WriteString(sep)
	return buf.String()
}
