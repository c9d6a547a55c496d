package position

import (
	"strings"
	"testing"
)

func TestPositionFor(t *testing.T) {
	sf := NewSourceFile("a.py", "x = 1\ny = 2\n\nz")

	tests := []struct {
		offset    int
		line, col int
	}{
		{0, 1, 1},
		{4, 1, 5},
		{6, 2, 1},
		{12, 3, 1},
		{13, 4, 1},
		{100, 4, 2},
	}
	for _, tt := range tests {
		p := sf.PositionFor(tt.offset)
		if p.Line != tt.line || p.Column != tt.col {
			t.Fatalf("offset %d: got %d:%d, want %d:%d", tt.offset, p.Line, p.Column, tt.line, tt.col)
		}
	}
}

func TestLine(t *testing.T) {
	sf := NewSourceFile("a.py", "first\r\nsecond\n")
	if got := sf.Line(1); got != "first" {
		t.Fatalf("line 1 = %q", got)
	}
	if got := sf.Line(2); got != "second" {
		t.Fatalf("line 2 = %q", got)
	}
	if got := sf.Line(9); got != "" {
		t.Fatalf("line 9 = %q", got)
	}
}

func TestSpanUnion(t *testing.T) {
	sf := NewSourceFile("a.py", "abcdefgh")
	a := Span{Start: sf.PositionFor(1), End: sf.PositionFor(3)}
	b := Span{Start: sf.PositionFor(2), End: sf.PositionFor(6)}
	u := a.Union(b)
	if u.Start.Offset != 1 || u.End.Offset != 6 {
		t.Fatalf("union = %d..%d", u.Start.Offset, u.End.Offset)
	}
	if !u.Contains(sf.PositionFor(5)) || u.Contains(sf.PositionFor(6)) {
		t.Fatalf("contains is not half-open")
	}
	if got := (Span{}).Union(a); got != a {
		t.Fatalf("union with invalid span should return other")
	}
}

func TestSnippet(t *testing.T) {
	sf := NewSourceFile("a.py", "x = foo(1)\n")
	span := Span{Start: sf.PositionFor(4), End: sf.PositionFor(7)}
	out := sf.Snippet(span)
	if !strings.Contains(out, "x = foo(1)") || !strings.HasSuffix(out, "    ^^^") {
		t.Fatalf("unexpected snippet:\n%s", out)
	}
}
