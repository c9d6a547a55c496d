package types

import (
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/astbridge"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/parser"
)

func check(t *testing.T, src string) (*hir.Module, *Info, diagnostic.List) {
	t.Helper()
	file, err := parser.ParseFile("sample.py", src)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	mod, seed, _ := astbridge.Convert(file, astbridge.Options{})
	info, diags := Check(mod, Config{Seed: seed})
	return mod, info, diags
}

func hasCode(diags diagnostic.List, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestLatticeOrder(t *testing.T) {
	lat := NewLattice(map[string][]string{"Dog": {"Animal"}, "Cat": {"Animal"}})
	if !lat.IsSubtype(hir.Int, hir.Float) || lat.IsSubtype(hir.Float, hir.Int) {
		t.Fatalf("int should widen to float only")
	}
	if !lat.IsSubtype(hir.None, hir.OptionalOf(hir.Str)) || !lat.IsSubtype(hir.Str, hir.OptionalOf(hir.Str)) {
		t.Fatalf("optional should admit None and its payload")
	}
	if got := lat.LUB(hir.Int, hir.None); !got.Equal(hir.OptionalOf(hir.Int)) {
		t.Fatalf("LUB(int, None) = %s", got)
	}
	if got := lat.LUB(hir.Int, hir.Float); !got.Equal(hir.Float) {
		t.Fatalf("LUB(int, float) = %s", got)
	}
	if got := lat.LUB(hir.NamedOf("Dog"), hir.NamedOf("Cat")); !got.Equal(hir.NamedOf("Animal")) {
		t.Fatalf("LUB(Dog, Cat) = %s", got)
	}
	if got := lat.Join([]hir.Type{hir.Int, hir.Str}); !got.IsUnknown() {
		t.Fatalf("Join(int, str) = %s, want Unknown", got)
	}
}

func TestSolverBounds(t *testing.T) {
	s := NewSolver(NewLattice(nil))
	v, w := s.Fresh(), s.Fresh()
	s.Add(Constraint{Kind: Sub, Left: hir.Int, Right: v})
	s.Add(Constraint{Kind: Sub, Left: hir.Float, Right: v})
	s.Add(Constraint{Kind: Eq, Left: w, Right: v})
	s.Add(Constraint{Kind: Sub, Left: hir.Str, Right: hir.Int, Reason: "bad"})
	s.Solve()
	if got := s.Resolve(v); !got.Equal(hir.Float) {
		t.Fatalf("v = %s", got)
	}
	if got := s.Resolve(w); !got.Equal(hir.Float) {
		t.Fatalf("w = %s", got)
	}
	if cf := s.Conflicts(); len(cf) != 1 || cf[0].Constraint.Reason != "bad" {
		t.Fatalf("conflicts = %s", spew.Sdump(cf))
	}
}

func TestEmptyListFromAppend(t *testing.T) {
	_, info, _ := check(t, `
def build():
    xs = []
    xs.append(1)
    return xs
`)
	sig := info.Signatures["build"]
	if sig == nil || !sig.Ret.Equal(hir.ListOf(hir.Int)) {
		t.Fatalf("build = %s", spew.Sdump(sig))
	}
}

func TestImplicitReturnIsOptional(t *testing.T) {
	_, info, _ := check(t, `
from typing import List

def find(xs: List[int], target: int):
    for x in xs:
        if x == target:
            return x
`)
	if got := info.Signatures["find"].Ret; !got.Equal(hir.OptionalOf(hir.Int)) {
		t.Fatalf("find returns %s", got)
	}
}

func TestNoneCheckNarrows(t *testing.T) {
	mod, info, diags := check(t, `
from typing import Optional

def inc(x: Optional[int]) -> int:
    if x is None:
        return 0
    return x + 1
`)
	ret := mod.Function("inc").Body[1].(*hir.Return)
	ref := ret.Value.(*hir.BinOp).Left.(*hir.Name)
	if got := info.TypeOf(ref); !got.Equal(hir.Int) {
		t.Fatalf("x after the guard = %s", got)
	}
	nar, ok := info.Narrowed[ref]
	if !ok || !nar.From.Equal(hir.OptionalOf(hir.Int)) {
		t.Fatalf("narrowing = %s", spew.Sdump(nar))
	}
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", spew.Sdump(diags))
	}
}

func TestTypeVarInstantiation(t *testing.T) {
	mod, info, _ := check(t, `
from typing import TypeVar, List

T = TypeVar("T")

def first(xs: List[T]) -> T:
    return xs[0]

def main():
    n = first([1, 2, 3])
`)
	sig := info.Signatures["first"]
	if !sig.IsGeneric() || sig.TypeParams[0].Name != "T" {
		t.Fatalf("first = %s", spew.Sdump(sig.TypeParams))
	}
	hasClone := false
	for _, b := range sig.TypeParams[0].Bounds {
		hasClone = hasClone || b == "Clone"
	}
	if !hasClone {
		t.Fatalf("indexing a list of T should need Clone: %v", sig.TypeParams[0].Bounds)
	}
	n := info.ScopeOf(mod.Function("main")).Lookup("n")
	if n == nil || !n.Type().Equal(hir.Int) {
		t.Fatalf("n = %s", spew.Sdump(n))
	}
}

func TestUnconstrainedParamsPromoted(t *testing.T) {
	_, info, _ := check(t, `
def biggest(a, b):
    if a > b:
        return a
    return b
`)
	sig := info.Signatures["biggest"]
	T := hir.NamedOf("T")
	if !sig.Params[0].Equal(T) || !sig.Params[1].Equal(T) || !sig.Ret.Equal(T) {
		t.Fatalf("biggest = %s", spew.Sdump(sig.Params, sig.Ret))
	}
	want := []TypeParam{{Name: "T", Bounds: []string{"PartialEq", "PartialOrd"}}}
	if !reflect.DeepEqual(sig.TypeParams, want) {
		t.Fatalf("type params = %s", spew.Sdump(sig.TypeParams))
	}
}

func TestCallSiteEvidenceWins(t *testing.T) {
	_, info, _ := check(t, `
def double(x):
    return x * 2

def main():
    print(double(21))
`)
	sig := info.Signatures["double"]
	if !sig.Params[0].Equal(hir.Int) || !sig.Ret.Equal(hir.Int) {
		t.Fatalf("double = %s", spew.Sdump(sig.Params, sig.Ret))
	}
}

func TestConflictingProtocolsWarn(t *testing.T) {
	_, info, diags := check(t, `
def f(x):
    y = x + 1
    return x.upper()
`)
	if !hasCode(diags, diagnostic.CodeProtocol) {
		t.Fatalf("diagnostics = %s", spew.Sdump(diags))
	}
	if got := info.Signatures["f"].Params[0]; !got.IsUnknown() {
		t.Fatalf("x = %s, want Unknown", got)
	}
}

func TestFallibility(t *testing.T) {
	_, info, _ := check(t, `
class ParseError(Exception):
    pass

def parse(s: str) -> int:
    if not s:
        raise ParseError("empty")
    return int(s)

def safe(s: str) -> int:
    try:
        return parse(s)
    except ParseError:
        return 0

def total(s: str) -> int:
    try:
        return parse(s)
    except Exception:
        return 0

def strict(s: str) -> int:
    return parse(s)
`)
	cases := map[string][]string{
		"parse":  {"ParseError", "ValueError"},
		"safe":   {"ValueError"},
		"total":  nil,
		"strict": {"ParseError", "ValueError"},
	}
	for name, want := range cases {
		sig := info.Signatures[name]
		if len(sig.Raises) != len(want) || (len(want) > 0 && !reflect.DeepEqual(sig.Raises, want)) {
			t.Fatalf("%s raises %v, want %v", name, sig.Raises, want)
		}
		if sig.Fallible != (len(want) > 0) {
			t.Fatalf("%s fallible = %v", name, sig.Fallible)
		}
	}
	if len(info.Fallible) == 0 {
		t.Fatalf("no fallible calls recorded")
	}
}

func TestTopLevelRebindingVersions(t *testing.T) {
	// Literal-only reassignments collapse into one constant; a computed
	// rebinding keeps x a versioned top-level variable.
	mod, info, _ := check(t, `
x = 1
x = str(x)
print(x)
`)
	loc := info.Main.Lookup("x")
	if loc == nil || len(loc.Versions) != 2 || !loc.Versions[0].Equal(hir.Int) || !loc.Versions[1].Equal(hir.Str) {
		t.Fatalf("x = %s", spew.Sdump(loc))
	}
	var last *hir.Name
	hir.InspectBlock(mod.Main, func(n hir.Node) bool {
		if name, ok := n.(*hir.Name); ok && name.ID == "x" {
			last = name
		}
		return true
	})
	if last == nil || info.Versions[last] != 1 || !info.TypeOf(last).Equal(hir.Str) {
		t.Fatalf("reference to x sees version %d", info.Versions[last])
	}
}

func TestLoopRebindingWidens(t *testing.T) {
	mod, info, _ := check(t, `
from typing import List

def avg(xs: List[float]) -> float:
    total = 0
    for x in xs:
        total = total + x
    return total
`)
	loc := info.ScopeOf(mod.Function("avg")).Lookup("total")
	if loc == nil || len(loc.Versions) != 1 || !loc.Versions[0].Equal(hir.Float) {
		t.Fatalf("total = %s", spew.Sdump(loc))
	}
}

func TestDiagnostics(t *testing.T) {
	_, _, diags := check(t, `
def f() -> int:
    return "x"

def g():
    return undefined_thing
`)
	for _, code := range []string{diagnostic.CodeTypeMismatch, diagnostic.CodeUnknownName} {
		if !hasCode(diags, code) {
			t.Fatalf("missing %s in %s", code, spew.Sdump(diags))
		}
	}
}
