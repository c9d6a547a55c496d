package format

import (
	"strings"
	"testing"
)

func TestDiff_NoChanges(t *testing.T) {
	res := Diff("a\nb\n", "a\nb\n", DefaultDiffOptions())
	if res.HasChanges() || res.Stats.Added != 0 || res.Stats.Removed != 0 {
		t.Fatalf("identical inputs reported changes: %+v", res)
	}
	if Render("x.rs", res, DefaultDiffOptions()) != "" {
		t.Fatalf("render of empty diff should be empty")
	}
}

func TestDiff_UnifiedReplaceLine(t *testing.T) {
	prev := "fn main() {\n    let x = 1;\n}\n"
	cur := "fn main() {\n    let x = 2;\n}\n"
	res := Diff(prev, cur, DefaultDiffOptions())
	if res.Stats.Summary() != "+1 -1" {
		t.Fatalf("stats = %s", res.Stats.Summary())
	}
	got := Render("main.rs", res, DefaultDiffOptions())
	want := "--- main.rs (previous)\n+++ main.rs (current)\n@@ -1,3 +1,3 @@\n fn main() {\n-    let x = 1;\n+    let x = 2;\n }\n"
	if got != want {
		t.Fatalf("render =\n%s\nwant\n%s", got, want)
	}
}

func TestDiff_SeparateHunks(t *testing.T) {
	var a, b []string
	for i := 0; i < 20; i++ {
		line := string(rune('a' + i))
		a = append(a, line)
		b = append(b, line)
	}
	b[1] = "X"
	b[18] = "Y"
	opts := DiffOptions{Context: 1}
	res := Diff(strings.Join(a, "\n"), strings.Join(b, "\n"), opts)
	if len(res.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(res.Hunks))
	}
	h := res.Hunks[0]
	if h.PrevStart != 1 || h.PrevCount != 3 || h.CurStart != 1 || h.CurCount != 3 {
		t.Fatalf("first hunk = %+v", h)
	}
}

func TestDiff_IgnoreSpace(t *testing.T) {
	res := Diff("let  x = 1;\n", "let x = 1;\n", DiffOptions{IgnoreSpace: true})
	if res.HasChanges() {
		t.Fatalf("whitespace-only change should be ignored")
	}
}

func TestDiff_AppendToEmpty(t *testing.T) {
	res := Diff("", "one\n", DefaultDiffOptions())
	if len(res.Hunks) != 1 {
		t.Fatalf("hunks = %d", len(res.Hunks))
	}
	h := res.Hunks[0]
	if h.PrevStart != 0 || h.PrevCount != 0 || h.CurStart != 1 || h.CurCount != 1 {
		t.Fatalf("hunk = %+v", h)
	}
}

func TestDiff_SideBySide(t *testing.T) {
	opts := DiffOptions{Mode: DiffModeSideBySide, Width: 8}
	out := Render("f", Diff("old\n", "new\n", opts), opts)
	if !strings.Contains(out, "old      <") || !strings.Contains(out, "> new") {
		t.Fatalf("side by side =\n%s", out)
	}
}
