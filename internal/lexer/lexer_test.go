package lexer

import (
	"strings"
	"testing"
)

func types(t *testing.T, src string) string {
	t.Helper()
	toks, err := New(src, "t.py").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	parts := make([]string, len(toks))
	for i, tok := range toks {
		parts[i] = tok.String()
	}
	return strings.Join(parts, " ")
}

func TestIndentation(t *testing.T) {
	src := "if x:\n    y = 1\n\n    # comment\n    z\nw\n"
	got := types(t, src)
	want := `KEYWORD("if") NAME("x") OP(":") NEWLINE INDENT NAME("y") OP("=") INT("1") NEWLINE ` +
		`NAME("z") NEWLINE DEDENT NAME("w") NEWLINE EOF`
	if got != want {
		t.Fatalf("tokens:\n got %s\nwant %s", got, want)
	}
}

func TestImplicitLineJoining(t *testing.T) {
	got := types(t, "f(a,\n  b) + \\\n  c")
	want := `NAME("f") OP("(") NAME("a") OP(",") NAME("b") OP(")") OP("+") NAME("c") NEWLINE EOF`
	if got != want {
		t.Fatalf("tokens:\n got %s\nwant %s", got, want)
	}
}

func TestDedentAtEOF(t *testing.T) {
	got := types(t, "def f():\n    if a:\n        pass")
	if !strings.HasSuffix(got, "NEWLINE DEDENT DEDENT EOF") {
		t.Fatalf("missing dedents: %s", got)
	}
}

func TestStrings(t *testing.T) {
	toks, err := New(`'a\tb' r'\d+' b"x" f"{x}\n" """multi
line"""`, "t.py").Tokenize()
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		lit, prefix string
	}{
		{"a\tb", ""},
		{`\d+`, "r"},
		{"x", "b"},
		{`{x}\n`, "f"},
		{"multi\nline", ""},
	}
	for i, w := range want {
		if toks[i].Type != TokenString || toks[i].Literal != w.lit || toks[i].Prefix != w.prefix {
			t.Fatalf("token %d = %+v, want %q/%q", i, toks[i], w.lit, w.prefix)
		}
	}
}

func TestNumbers(t *testing.T) {
	got := types(t, "1_000 0x1F 3.14 1e9 .5 7")
	want := `INT("1000") INT("0x1F") FLOAT("3.14") FLOAT("1e9") FLOAT(".5") INT("7") NEWLINE EOF`
	if got != want {
		t.Fatalf("tokens:\n got %s\nwant %s", got, want)
	}
}

func TestErrors(t *testing.T) {
	for _, src := range []string{"x = 'open", "if x:\n        a\n    b\n", "x = 3j", "$"} {
		if _, err := New(src, "t.py").Tokenize(); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
}
