package astbridge

import (
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/parser"
)

func convert(t *testing.T, src string) (*hir.Module, *TypeSeed, diagnostic.List) {
	t.Helper()
	mod, err := parser.ParseFile("sample.py", src)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return Convert(mod, Options{})
}

func hasCode(diags diagnostic.List, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestParametersKeepVariadicFlags(t *testing.T) {
	m, _, _ := convert(t, `
def f(a, b: int = 2, *rest: str, key, **opts):
    return a
`)
	f := m.Function("f")
	if f == nil || len(f.Params) != 5 {
		t.Fatalf("params = %s", spew.Sdump(f))
	}
	a, b, rest, key, opts := f.Params[0], f.Params[1], f.Params[2], f.Params[3], f.Params[4]
	if !a.Type.IsUnknown() || a.Annotated {
		t.Fatalf("unannotated parameter should start Unknown: %s", a.Type)
	}
	if !b.Type.Equal(hir.Int) || b.Default == nil {
		t.Fatalf("b = %s", spew.Sdump(b))
	}
	if !rest.IsVararg || !rest.Type.Equal(hir.ListOf(hir.Str)) {
		t.Fatalf("rest = %s", spew.Sdump(rest))
	}
	if !key.KeywordOnly {
		t.Fatalf("key should be keyword-only")
	}
	if !opts.IsKwarg || opts.Type.Kind != hir.KindDict {
		t.Fatalf("opts = %s", spew.Sdump(opts))
	}
}

func TestClassFieldsAcrossMethods(t *testing.T) {
	m, seed, _ := convert(t, `
class Account:
    owner: str

    def __init__(self, owner: str, balance: float):
        self.owner = owner
        self.balance = balance

    def close(self):
        self.closed = True
        self.balance = 0.0

    def label(self) -> str:
        return self.owner
`)
	cl := m.Class("Account")
	if cl == nil {
		t.Fatalf("class missing")
	}
	var names []string
	for _, f := range cl.Fields {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "owner,balance,closed" {
		t.Fatalf("fields = %s", got)
	}
	if !cl.Fields[1].Type.Equal(hir.Float) || !cl.Fields[2].Type.Equal(hir.Bool) {
		t.Fatalf("field types = %s", spew.Sdump(cl.Fields))
	}
	if !cl.MutatesSelf {
		t.Fatalf("close() assigns to self, class should be mutating")
	}
	if len(cl.Methods) != 3 || !cl.Methods[0].IsMethod() || len(cl.Methods[0].Params) != 2 {
		t.Fatalf("self should be dropped from method params: %s", spew.Sdump(cl.Methods[0].Params))
	}
	if !seed.Fields["Account"]["owner"].Equal(hir.Str) {
		t.Fatalf("seed fields = %s", spew.Sdump(seed.Fields))
	}
}

func TestExceptionClassDetection(t *testing.T) {
	m, seed, _ := convert(t, `
class AppError(Exception):
    pass

class ConfigError(AppError):
    def __init__(self, msg, code: int):
        self.msg = msg
        self.code = code
`)
	base, derived := m.Class("AppError"), m.Class("ConfigError")
	if !base.IsException || !derived.IsException || !seed.Exceptions["ConfigError"] {
		t.Fatalf("exception classes not detected")
	}
	params := derived.Methods[0].Params
	if !params[0].Type.Equal(hir.Str) || !params[1].Type.Equal(hir.Int) {
		t.Fatalf("exception params = %s", spew.Sdump(params))
	}
	if derived.MutatesSelf {
		t.Fatalf("__init__ assignments alone do not make a class mutating")
	}
}

func TestImportResolution(t *testing.T) {
	m, _, diags := convert(t, `
import os.path
import numpy as np
from datetime import datetime
from typing import List, Optional

def stamp(p: str) -> Optional[str]:
    if os.path.exists(p):
        return datetime.now().isoformat()
    return None

def arr(xs: List[int]):
    return np.array(xs)
`)
	if !hasCode(diags, diagnostic.CodeUnknownImport) {
		t.Fatalf("numpy should be an unknown import: %v", diags)
	}
	for _, im := range m.Imports {
		if im.Module == "numpy" && im.Known {
			t.Fatalf("numpy marked known")
		}
		if im.Name == "Optional" && (!im.Known || im.Target != "") {
			t.Fatalf("typing import = %s", spew.Sdump(im))
		}
	}
	f := m.Function("stamp")
	if !f.Ret.Equal(hir.OptionalOf(hir.Str)) {
		t.Fatalf("return type = %s", f.Ret)
	}
	cond := f.Body[0].(*hir.If).Cond.(*hir.Call)
	if q, ok := cond.Func.(*hir.Qualified); !ok || q.Path != "os.path.exists" {
		t.Fatalf("os.path.exists = %s", spew.Sdump(cond.Func))
	}
	ret := f.Body[0].(*hir.If).Then[0].(*hir.Return)
	iso := ret.Value.(*hir.MethodCall)
	now := iso.Recv.(*hir.Call)
	if q, ok := now.Func.(*hir.Qualified); !ok || q.Path != "datetime.datetime.now" || iso.Method != "isoformat" {
		t.Fatalf("datetime.now().isoformat() = %s", spew.Sdump(ret.Value))
	}
	g := m.Function("arr")
	call := g.Body[0].(*hir.Return).Value.(*hir.Call)
	if q, ok := call.Func.(*hir.Qualified); !ok || q.Path != "numpy.array" {
		t.Fatalf("opaque module call = %s", spew.Sdump(call.Func))
	}
}

func TestLocalsShadowImports(t *testing.T) {
	m, _, _ := convert(t, `
import json

def f(json):
    return json.loads
`)
	ret := m.Function("f").Body[0].(*hir.Return)
	if _, ok := ret.Value.(*hir.Attribute); !ok {
		t.Fatalf("parameter json should shadow the module: %s", spew.Sdump(ret.Value))
	}
}

func TestComprehensionClausesInOrder(t *testing.T) {
	m, _, _ := convert(t, `
def pairs(xs, ys):
    return {x: y for x in xs if x > 0 for y in ys if y != x}
`)
	comp := m.Function("pairs").Body[0].(*hir.Return).Value.(*hir.Comprehension)
	if comp.Kind != hir.CompDict || comp.Key == nil {
		t.Fatalf("kind = %s", comp.Kind)
	}
	want := []hir.ClauseKind{hir.ClauseFor, hir.ClauseIf, hir.ClauseFor, hir.ClauseIf}
	if len(comp.Clauses) != len(want) {
		t.Fatalf("clauses = %s", spew.Sdump(comp.Clauses))
	}
	for i, k := range want {
		if comp.Clauses[i].Kind != k {
			t.Fatalf("clause %d kind = %d, want %d", i, comp.Clauses[i].Kind, k)
		}
	}
	gen, _, _ := convert(t, "def f(xs):\n    return sum(x * x for x in xs)\n")
	call := gen.Function("f").Body[0].(*hir.Return).Value.(*hir.Call)
	if c, ok := call.Args[0].(*hir.Comprehension); !ok || c.Kind != hir.CompGenerator {
		t.Fatalf("generator argument = %s", spew.Sdump(call.Args[0]))
	}
}

func TestAssignmentSplitting(t *testing.T) {
	m, _, _ := convert(t, `
def f(d, xs):
    a = b = make()
    x, y = y, x
    first, *rest = xs
    del d["k"]
    del a
`)
	body := m.Function("f").Body
	// _tmp0 = make(); a = _tmp0; b = _tmp0
	tmp := body[0].(*hir.Assign)
	if tmp.Target.(*hir.Name).ID != "_tmp0" {
		t.Fatalf("shared temporary = %s", spew.Sdump(tmp))
	}
	for _, s := range body[1:3] {
		if ref, ok := s.(*hir.Assign).Value.(*hir.Name); !ok || ref.ID != "_tmp0" {
			t.Fatalf("target should read the temporary: %s", spew.Sdump(s))
		}
	}
	// _unpack1 = (y, x); x = _unpack1[0]; y = _unpack1[1]
	if body[3].(*hir.Assign).Target.(*hir.Name).ID != "_unpack1" {
		t.Fatalf("unpack temporary = %s", spew.Sdump(body[3]))
	}
	second := body[5].(*hir.Assign)
	if idx := second.Value.(*hir.Index); idx.Index.(*hir.Lit).Int != 1 {
		t.Fatalf("second target index = %s", spew.Sdump(second))
	}
	// _unpack2 = xs; first = _unpack2[0]; rest = _unpack2[1:]
	rest := body[8].(*hir.Assign)
	if sl, ok := rest.Value.(*hir.SliceExpr); !ok || sl.Lower.(*hir.Lit).Int != 1 || sl.Upper != nil {
		t.Fatalf("starred target = %s", spew.Sdump(rest))
	}
	if _, ok := body[9].(*hir.ContainerRemove); !ok {
		t.Fatalf("del d[k] = %T", body[9])
	}
	if dv, ok := body[10].(*hir.DeleteVar); !ok || dv.Name != "a" {
		t.Fatalf("del a = %T", body[10])
	}
}

func TestTryAndRaise(t *testing.T) {
	m, _, _ := convert(t, `
import json

def load(text: str):
    try:
        data = json.loads(text)
    except (ValueError, KeyError) as e:
        raise RuntimeError("bad input") from e
    except json.JSONDecodeError:
        raise
    else:
        return data
    finally:
        print("done")
`)
	tr := m.Function("load").Body[0].(*hir.Try)
	if len(tr.Handlers) != 2 || len(tr.Else) != 1 || len(tr.Finally) != 1 {
		t.Fatalf("try = %s", spew.Sdump(tr))
	}
	h0 := tr.Handlers[0]
	if strings.Join(h0.Types, ",") != "ValueError,KeyError" || h0.Name != "e" {
		t.Fatalf("handler 0 = %s", spew.Sdump(h0))
	}
	r := h0.Body[0].(*hir.Raise)
	if r.Exc != "RuntimeError" || len(r.Args) != 1 || r.Cause == nil {
		t.Fatalf("raise = %s", spew.Sdump(r))
	}
	if tr.Handlers[1].Types[0] != "json.JSONDecodeError" || !tr.Handlers[1].Body[0].(*hir.Raise).Reraise {
		t.Fatalf("handler 1 = %s", spew.Sdump(tr.Handlers[1]))
	}
	if !m.Function("load").Props.Raises {
		t.Fatalf("Raises not set")
	}
}

func TestWithTargetMutability(t *testing.T) {
	m, _, _ := convert(t, `
class Counter:
    def __init__(self):
        self.n = 0
    def __enter__(self):
        self.n += 1
        return self
    def __exit__(self, a, b, c):
        pass

class Reader:
    def __init__(self):
        self.path = "x"
    def __enter__(self):
        return self
    def __exit__(self, a, b, c):
        pass

def f():
    with Counter() as c, Reader() as r:
        pass
`)
	w := m.Function("f").Body[0].(*hir.With)
	if len(w.Items) != 2 || !w.Items[0].Mutable || w.Items[1].Mutable {
		t.Fatalf("with items = %s", spew.Sdump(w.Items))
	}
	if w.Items[0].Target.ID != "c" {
		t.Fatalf("target = %s", spew.Sdump(w.Items[0].Target))
	}
}

func TestWalrusLowering(t *testing.T) {
	m, _, _ := convert(t, `
def f(xs):
    if (n := len(xs)) > 3:
        return n
    return 0
`)
	cmp := m.Function("f").Body[0].(*hir.If).Cond.(*hir.Compare)
	w, ok := cmp.Left.(*hir.Walrus)
	if !ok || w.Target.ID != "n" {
		t.Fatalf("walrus = %s", spew.Sdump(cmp.Left))
	}
}

func TestConstantsLastWins(t *testing.T) {
	m, seed, _ := convert(t, `
from typing import Final

LIMIT = 10
NAME: Final[str] = "svc"
LIMIT = 2.5
counter = 0
counter += 1
`)
	if len(m.Constants) != 2 {
		t.Fatalf("constants = %s", spew.Sdump(m.Constants))
	}
	limit := m.Constant("LIMIT")
	if !limit.Type.Equal(hir.Float) || limit.Value.(*hir.Lit).Float != 2.5 {
		t.Fatalf("LIMIT = %s", spew.Sdump(limit))
	}
	if name := m.Constant("NAME"); !name.Final || !name.Type.Equal(hir.Str) {
		t.Fatalf("NAME = %s", spew.Sdump(name))
	}
	if m.Constant("counter") != nil || len(m.Main) != 2 {
		t.Fatalf("rebound names belong to main: %s", spew.Sdump(m.Main))
	}
	if !seed.Globals["LIMIT"].Equal(hir.Float) {
		t.Fatalf("seed LIMIT = %s", seed.Globals["LIMIT"])
	}
}

func TestTypeVarsAliasesAndProtocols(t *testing.T) {
	m, _, _ := convert(t, `
from typing import TypeVar, List, Protocol, Union

T = TypeVar("T")
Vector = List[float]
Number = Union[int, float]

class Shape(Protocol):
    def area(self) -> float: ...

def first(xs: List[T]) -> T:
    return xs[0]

def norm(v: Vector) -> float:
    return 0.0
`)
	if !m.IsTypeVar("T") {
		t.Fatalf("T not registered")
	}
	if len(m.Aliases) != 2 || !m.Aliases[0].Type.Equal(hir.ListOf(hir.Float)) {
		t.Fatalf("aliases = %s", spew.Sdump(m.Aliases))
	}
	if len(m.Protocols) != 1 || m.Protocols[0].Methods[0] != "area" || m.Class("Shape") != nil {
		t.Fatalf("protocols = %s", spew.Sdump(m.Protocols))
	}
	if got := m.Function("first").Ret; !got.Equal(hir.NamedOf("T")) {
		t.Fatalf("first returns %s", got)
	}
	if got := m.Function("norm").Params[0].Type; !got.Equal(hir.ListOf(hir.Float)) {
		t.Fatalf("alias not expanded: %s", got)
	}
}

func TestMainGuardUnwrapped(t *testing.T) {
	m, _, _ := convert(t, `
def main():
    print("hi")

if __name__ == "__main__":
    main()
`)
	if len(m.Main) != 1 {
		t.Fatalf("main = %s", spew.Sdump(m.Main))
	}
	call := m.Main[0].(*hir.ExprStmt).X.(*hir.Call)
	if call.Func.(*hir.Name).ID != "main" {
		t.Fatalf("main call = %s", spew.Sdump(call))
	}
}

func TestUnsupportedConstructsStubbed(t *testing.T) {
	m, _, diags := convert(t, `
def f(x):
    global counter
    y = eval(x)
    return y

def g():
    return 1
`)
	body := m.Function("f").Body
	if _, ok := body[0].(*hir.StubStmt); !ok {
		t.Fatalf("global should be stubbed: %T", body[0])
	}
	if _, ok := body[1].(*hir.Assign).Value.(*hir.Stub); !ok {
		t.Fatalf("eval should be stubbed")
	}
	if m.Function("g") == nil {
		t.Fatalf("conversion should continue after unsupported constructs")
	}
	if !hasCode(diags, diagnostic.CodeUnsupported) || diags.HasErrors() {
		t.Fatalf("diagnostics = %v", diags)
	}
}

func TestValidatorDetection(t *testing.T) {
	m, _, _ := convert(t, `
import argparse

def port(value):
    n = int(value)
    if n <= 0:
        raise argparse.ArgumentTypeError("port must be positive")
    return n

def name(value):
    return value.strip()

def plain(value):
    return value

def build():
    p = argparse.ArgumentParser()
    p.add_argument("--name", type=name)
    return p
`)
	if !m.Function("port").Props.Validator || !m.Function("name").Props.Validator {
		t.Fatalf("validators not detected")
	}
	if m.Function("plain").Props.Validator {
		t.Fatalf("plain is not a validator")
	}
}

func TestFunctionProperties(t *testing.T) {
	m, _, _ := convert(t, `
def add(a: int, b: int) -> int:
    return a + b

def total(xs):
    s = 0
    for x in xs:
        s += x
    return s

def push(xs, v):
    xs.append(v)

def gen(n):
    yield n

def fact(n):
    return 1 if n <= 1 else n * fact(n - 1)

def ratio(a, b):
    return a / b
`)
	add := m.Function("add").Props
	if !add.Pure || !add.Terminates || !add.PanicFree {
		t.Fatalf("add props = %+v", add)
	}
	if m.Function("total").Props.Terminates {
		t.Fatalf("loops are not termination-proven")
	}
	if m.Function("push").Props.Pure {
		t.Fatalf("mutating a parameter is impure")
	}
	if !m.Function("gen").Props.Generator {
		t.Fatalf("generator not detected")
	}
	if m.Function("fact").Props.Terminates {
		t.Fatalf("recursion is not termination-proven")
	}
	if m.Function("ratio").Props.PanicFree {
		t.Fatalf("division may panic")
	}
}

func TestDataclassFields(t *testing.T) {
	m, _, _ := convert(t, `
from dataclasses import dataclass

@dataclass
class Point:
    x: float
    y: float = 0.0
`)
	cl := m.Class("Point")
	if !cl.IsDataclass || len(cl.Fields) != 2 || cl.Fields[1].Default == nil {
		t.Fatalf("dataclass = %s", spew.Sdump(cl))
	}
}

func TestConvertIsDeterministic(t *testing.T) {
	src := `
import re
class Box:
    def __init__(self, v):
        self.v = v
def f(xs):
    a, b = xs
    return [x for x in xs if re.match("a", x)]
`
	m1, _, _ := convert(t, src)
	m2, _, _ := convert(t, src)
	if hir.Fingerprint(m1) != hir.Fingerprint(m2) {
		t.Fatalf("conversion is not deterministic:\n%s\n%s", hir.Print(m1), hir.Print(m2))
	}
}

func TestNestedDefDoesNotLeakProperties(t *testing.T) {
	m, _, _ := convert(t, `
from typing import List

def outer(n: int) -> List[int]:
    def inner(k: int):
        for i in range(k):
            yield i
    def check(k: int) -> int:
        if k < 0:
            raise ValueError("negative")
        return k
    return list(inner(check(n)))
`)
	f := m.Function("outer")
	if f == nil {
		t.Fatalf("outer not converted")
	}
	if f.Props.Generator {
		t.Fatalf("outer marked as generator by a nested def")
	}
	if f.Props.Raises {
		t.Fatalf("outer marked as raising by a nested def")
	}
}
