package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Module {
	t.Helper()
	mod, err := ParseFile("test.py", src)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return mod
}

func TestParseFunction(t *testing.T) {
	mod := mustParse(t, `
def fib(n: int) -> int:
    if n <= 1: return n
    return fib(n-1) + fib(n-2)
`)
	if len(mod.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(mod.Body))
	}
	fn, ok := mod.Body[0].(*ast.FunctionDef)
	if !ok {
		t.Fatalf("expected FunctionDef, got %T", mod.Body[0])
	}
	if fn.Name != "fib" || len(fn.Params) != 1 || fn.Params[0].Name != "n" {
		t.Fatalf("unexpected signature: %s", spew.Sdump(fn.Params))
	}
	if ann, ok := fn.Params[0].Annotation.(*ast.Name); !ok || ann.ID != "int" {
		t.Fatalf("param annotation = %#v", fn.Params[0].Annotation)
	}
	if len(fn.Body) != 2 {
		t.Fatalf("body has %d statements", len(fn.Body))
	}
	ret := fn.Body[1].(*ast.Return)
	sum, ok := ret.Value.(*ast.BinOp)
	if !ok || sum.Op != "+" {
		t.Fatalf("return value = %s", spew.Sdump(ret.Value))
	}
}

func TestParseParamKinds(t *testing.T) {
	mod := mustParse(t, "def f(a, /, b=1, *args, c, d: str = 'x', **kw): pass\n")
	fn := mod.Body[0].(*ast.FunctionDef)
	want := []ast.ParamKind{
		ast.ParamPositionalOnly, ast.ParamPositional, ast.ParamVarArgs,
		ast.ParamKeywordOnly, ast.ParamKeywordOnly, ast.ParamKwArgs,
	}
	if len(fn.Params) != len(want) {
		t.Fatalf("got %d params", len(fn.Params))
	}
	for i, k := range want {
		if fn.Params[i].Kind != k {
			t.Fatalf("param %d (%s) kind = %d, want %d", i, fn.Params[i].Name, fn.Params[i].Kind, k)
		}
	}
	if fn.Params[1].Default == nil || fn.Params[4].Default == nil {
		t.Fatalf("defaults lost")
	}
}

func TestParseComparisonChain(t *testing.T) {
	e, err := ParseExpr("a < b <= c")
	if err != nil {
		t.Fatal(err)
	}
	cmp, ok := e.(*ast.Compare)
	if !ok || len(cmp.Ops) != 2 || cmp.Ops[0] != "<" || cmp.Ops[1] != "<=" {
		t.Fatalf("unexpected compare: %s", spew.Sdump(e))
	}

	e, err = ParseExpr("x is not None and y not in z")
	if err != nil {
		t.Fatal(err)
	}
	and := e.(*ast.BoolOp)
	if and.Values[0].(*ast.Compare).Ops[0] != "is not" || and.Values[1].(*ast.Compare).Ops[0] != "not in" {
		t.Fatalf("unexpected ops: %s", spew.Sdump(e))
	}
}

func TestParseComprehensions(t *testing.T) {
	tests := []struct {
		src  string
		kind ast.CompKind
		gens int
	}{
		{"[x*x for x in items if x > 0]", ast.ListComp, 1},
		{"{x for x in xs}", ast.SetComp, 1},
		{"{k: v for k, v in d.items()}", ast.DictComp, 1},
		{"(a for row in m for a in row)", ast.GenExp, 2},
		{"sum(x for x in xs)", ast.GenExp, 1},
	}
	for _, tt := range tests {
		e, err := ParseExpr(tt.src)
		if err != nil {
			t.Fatalf("%s: %v", tt.src, err)
		}
		if call, ok := e.(*ast.Call); ok {
			e = call.Args[0]
		}
		comp, ok := e.(*ast.Comp)
		if !ok {
			t.Fatalf("%s: got %T", tt.src, e)
		}
		if comp.Kind != tt.kind || len(comp.Generators) != tt.gens {
			t.Fatalf("%s: kind=%d gens=%d", tt.src, comp.Kind, len(comp.Generators))
		}
	}
}

func TestParseFString(t *testing.T) {
	e, err := ParseExpr(`f"hello {name!r:>10} {{x}} {a + 1=}"`)
	if err != nil {
		t.Fatal(err)
	}
	js, ok := e.(*ast.JoinedStr)
	if !ok {
		t.Fatalf("got %T", e)
	}
	// "hello ", {name}, " {x} a + 1=", {a + 1}
	if len(js.Values) != 4 {
		t.Fatalf("parts: %s", spew.Sdump(js.Values))
	}
	fv := js.Values[1].(*ast.FormattedValue)
	if fv.Conversion != 'r' || fv.FormatSpec != ">10" {
		t.Fatalf("conversion/spec = %q %q", fv.Conversion, fv.FormatSpec)
	}
	if lit := js.Values[2].(*ast.Constant); lit.Str != " {x} a + 1=" {
		t.Fatalf("literal = %q", lit.Str)
	}
	if js.Values[3].(*ast.FormattedValue).Conversion != 'r' {
		t.Fatalf("self-documenting field should default to repr")
	}
}

func TestParseStatements(t *testing.T) {
	mod := mustParse(t, `
import os.path as p, sys
from collections import (defaultdict, Counter)
a = b = 1
x, y = y, x
total += 1
items: list[int] = []
del d["k"], xs[0]
while (n := next_value()) > 0:
    pass
else:
    done = True
for i in range(10):
    if i: break
try:
    risky()
except (ValueError, KeyError) as e:
    raise RuntimeError("bad") from e
else:
    ok()
finally:
    cleanup()
with open("f") as fh, lock:
    fh.read()
class Conn(Base, metaclass=Meta):
    """doc"""
    def __enter__(self): self.open = True; return self
`)
	kinds := make([]string, 0, len(mod.Body))
	for _, s := range mod.Body {
		kinds = append(kinds, strings.TrimPrefix(fmt.Sprintf("%T", s), "*ast."))
	}
	want := "Import ImportFrom Assign Assign AugAssign AnnAssign Delete While For Try With ClassDef"
	if got := strings.Join(kinds, " "); got != want {
		t.Fatalf("statements:\n got %s\nwant %s", got, want)
	}

	assign := mod.Body[2].(*ast.Assign)
	if len(assign.Targets) != 2 {
		t.Fatalf("chained assignment targets = %d", len(assign.Targets))
	}
	del := mod.Body[6].(*ast.Delete)
	if len(del.Targets) != 2 {
		t.Fatalf("del targets = %d", len(del.Targets))
	}
	w := mod.Body[7].(*ast.While)
	if _, ok := w.Test.(*ast.Compare).Left.(*ast.NamedExpr); !ok || len(w.OrElse) != 1 {
		t.Fatalf("walrus while lost: %s", spew.Sdump(w.Test))
	}
	cls := mod.Body[11].(*ast.ClassDef)
	if len(cls.Bases) != 1 || len(cls.Keywords) != 1 || len(cls.Body) != 2 {
		t.Fatalf("class = %s", spew.Sdump(cls))
	}
	enter := cls.Body[1].(*ast.FunctionDef)
	if len(enter.Body) != 2 {
		t.Fatalf("semicolon-separated body has %d statements", len(enter.Body))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"def f(:\n    pass\n",
		"x = (1, 2\n",
		"if x:\npass\n",
		"  x = 1\n",
		"try:\n    pass\n",
		"s = 'unterminated\n",
	}
	for _, src := range tests {
		if _, err := ParseFile("bad.py", src); err == nil {
			t.Fatalf("expected error for %q", src)
		} else if _, ok := err.(*ParseError); !ok {
			t.Fatalf("expected *ParseError for %q, got %T", src, err)
		}
	}
}
