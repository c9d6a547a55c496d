package diagnostic

import (
	"strings"
	"testing"

	"github.com/pyrite-lang/pyrite/internal/position"
)

func TestBuilderAndList(t *testing.T) {
	sf := position.NewSourceFile("m.py", "x = y\n")
	span := position.Span{Start: sf.PositionFor(4), End: sf.PositionFor(5)}

	var l List
	l.Add(New(CodeUnknownName).Category(CategoryType).Span(span).Message("unknown name %q", "y").Build())
	l.Addf(LevelWarning, CategoryCodegen, CodeUnmapped, position.Span{}, "unmapped call")

	if !l.HasErrors() {
		t.Fatalf("expected errors")
	}
	if l.Count(LevelWarning) != 1 {
		t.Fatalf("warning count = %d", l.Count(LevelWarning))
	}

	out := l.Format(sf)
	if !strings.Contains(out, "E-TYPE-UNKNOWN-NAME") || !strings.Contains(out, "    ^") {
		t.Fatalf("unexpected format:\n%s", out)
	}
	if !strings.Contains(l.Error(), "and 1 more") {
		t.Fatalf("unexpected error string %q", l.Error())
	}
}

func TestSortIsStable(t *testing.T) {
	p := position.Position{Filename: "a.py", Line: 1, Column: 1}
	l := List{
		{Code: "B", Span: position.At(p)},
		{Code: "A", Span: position.At(p)},
		{Code: "A", Message: "second", Span: position.At(p)},
	}
	l.Sort()
	if l[0].Code != "A" || l[0].Message != "" || l[1].Message != "second" || l[2].Code != "B" {
		t.Fatalf("unexpected order: %+v", l)
	}
}
