package format

import (
	"fmt"
	"strings"
)

// DiffMode selects how a diff is rendered.
type DiffMode int

const (
	DiffModeUnified    DiffMode = iota // unified hunks (default)
	DiffModeSideBySide                 // two columns, previous | current
)

// DiffOptions controls diff generation.
type DiffOptions struct {
	Mode        DiffMode
	Context     int  // context lines around each change
	IgnoreSpace bool // compare lines with whitespace runs collapsed
	Width       int  // column width in side-by-side mode
}

// DefaultDiffOptions returns default diff options.
func DefaultDiffOptions() DiffOptions {
	return DiffOptions{Mode: DiffModeUnified, Context: 3, Width: 60}
}

// LineType represents the type of a diff line.
type LineType int

const (
	LineTypeContext LineType = iota
	LineTypeAdded
	LineTypeRemoved
)

// Line is a single line in a hunk.
type Line struct {
	Content string
	Type    LineType
}

// Hunk is a contiguous block of changes with surrounding context.
type Hunk struct {
	PrevStart, PrevCount int
	CurStart, CurCount   int
	Lines                []Line
}

// DiffStat counts changed lines.
type DiffStat struct {
	Added   int
	Removed int
}

// DiffResult is the outcome of comparing two translations.
type DiffResult struct {
	Hunks []Hunk
	Stats DiffStat
}

// HasChanges reports whether the inputs differ.
func (r *DiffResult) HasChanges() bool { return len(r.Hunks) > 0 }

type op struct {
	kind LineType
	prev int // index into previous, -1 for additions
	cur  int // index into current, -1 for removals
	text string
}

// Diff compares the previous and current text line by line.
func Diff(previous, current string, opts DiffOptions) *DiffResult {
	a, b := splitLines(previous), splitLines(current)
	ops := editScript(a, b, opts.IgnoreSpace)
	res := &DiffResult{Hunks: hunks(ops, opts.Context)}
	for _, o := range ops {
		switch o.kind {
		case LineTypeAdded:
			res.Stats.Added++
		case LineTypeRemoved:
			res.Stats.Removed++
		}
	}
	return res
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// editScript computes a shortest edit script from a longest common subsequence table.
func editScript(a, b []string, ignoreSpace bool) []op {
	eq := func(i, j int) bool {
		if ignoreSpace {
			return collapse(a[i]) == collapse(b[j])
		}
		return a[i] == b[j]
	}
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if eq(i, j) {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}
	var ops []op
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && eq(i, j):
			ops = append(ops, op{kind: LineTypeContext, prev: i, cur: j, text: b[j]})
			i++
			j++
		case i < n && (j == m || lcs[i+1][j] >= lcs[i][j+1]):
			ops = append(ops, op{kind: LineTypeRemoved, prev: i, cur: -1, text: a[i]})
			i++
		default:
			ops = append(ops, op{kind: LineTypeAdded, prev: -1, cur: j, text: b[j]})
			j++
		}
	}
	return ops
}

func hunks(ops []op, context int) []Hunk {
	if context < 0 {
		context = 0
	}
	var out []Hunk
	for k := 0; k < len(ops); {
		if ops[k].kind == LineTypeContext {
			k++
			continue
		}
		start := max(0, k-context)
		end := k
		// extend while the next change lies within 2*context lines
		for end < len(ops) {
			if ops[end].kind != LineTypeContext {
				end++
				continue
			}
			run := end
			for run < len(ops) && ops[run].kind == LineTypeContext {
				run++
			}
			if run < len(ops) && run-end <= 2*context {
				end = run
				continue
			}
			end = min(len(ops), end+context)
			break
		}
		out = append(out, makeHunk(ops, start, end))
		k = end
	}
	return out
}

func makeHunk(ops []op, start, end int) Hunk {
	h := Hunk{PrevStart: -1, CurStart: -1}
	prevBefore, curBefore := 0, 0
	for _, o := range ops[:start] {
		if o.prev >= 0 {
			prevBefore = o.prev + 1
		}
		if o.cur >= 0 {
			curBefore = o.cur + 1
		}
	}
	for _, o := range ops[start:end] {
		h.Lines = append(h.Lines, Line{Content: o.text, Type: o.kind})
		if o.prev >= 0 {
			if h.PrevStart < 0 {
				h.PrevStart = o.prev + 1
			}
			h.PrevCount++
		}
		if o.cur >= 0 {
			if h.CurStart < 0 {
				h.CurStart = o.cur + 1
			}
			h.CurCount++
		}
	}
	// an empty side is reported at the line it would follow
	if h.PrevStart < 0 {
		h.PrevStart = prevBefore
	}
	if h.CurStart < 0 {
		h.CurStart = curBefore
	}
	return h
}

// Render formats a diff between two labelled versions of the same file.
func Render(label string, res *DiffResult, opts DiffOptions) string {
	if !res.HasChanges() {
		return ""
	}
	var b strings.Builder
	if opts.Mode == DiffModeUnified {
		fmt.Fprintf(&b, "--- %s (previous)\n+++ %s (current)\n", label, label)
	} else {
		fmt.Fprintf(&b, "%s: previous | current\n", label)
	}
	for _, h := range res.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.PrevStart, h.PrevCount, h.CurStart, h.CurCount)
		if opts.Mode == DiffModeSideBySide {
			sideBySide(&b, h, opts.Width)
			continue
		}
		for _, ln := range h.Lines {
			switch ln.Type {
			case LineTypeAdded:
				b.WriteString("+")
			case LineTypeRemoved:
				b.WriteString("-")
			default:
				b.WriteString(" ")
			}
			b.WriteString(ln.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func sideBySide(b *strings.Builder, h Hunk, width int) {
	if width <= 0 {
		width = 60
	}
	for _, ln := range h.Lines {
		left, right, mark := ln.Content, ln.Content, " "
		switch ln.Type {
		case LineTypeAdded:
			left, mark = "", ">"
		case LineTypeRemoved:
			right, mark = "", "<"
		}
		fmt.Fprintf(b, "%-*s %s %s\n", width, truncate(left, width), mark, truncate(right, width))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// Summary is a one-line change count such as "+3 -1".
func (s DiffStat) Summary() string { return fmt.Sprintf("+%d -%d", s.Added, s.Removed) }
