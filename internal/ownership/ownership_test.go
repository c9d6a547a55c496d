package ownership

import (
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/astbridge"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/parser"
	"github.com/pyrite-lang/pyrite/internal/types"
)

func analyze(t *testing.T, src string) (*hir.Module, *Plan) {
	t.Helper()
	file, err := parser.ParseFile("sample.py", src)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	mod, seed, _ := astbridge.Convert(file, astbridge.Options{})
	info, _ := types.Check(mod, types.Config{Seed: seed})
	return mod, Analyze(mod, info)
}

func mode(t *testing.T, p *Plan, fn, param string) ParamPlan {
	t.Helper()
	fp := p.Func(fn)
	if fp == nil {
		t.Fatalf("no plan for %s", fn)
	}
	pp, ok := fp.Param(param)
	if !ok {
		t.Fatalf("%s has no parameter %s", fn, param)
	}
	return pp
}

// lastUses lists, in source order, whether each reference to id in b is
// a last use.
func lastUseFlags(fp *FuncPlan, b hir.Block, id string) []bool {
	var out []bool
	hir.InspectBlock(b, func(n hir.Node) bool {
		if x, ok := n.(*hir.Name); ok && x.ID == id {
			out = append(out, fp.IsLastUse(x))
		}
		return true
	})
	return out
}

func TestParameterModes(t *testing.T) {
	_, plan := analyze(t, `
from typing import List

def total(xs: List[int]) -> int:
    s = 0
    for x in xs:
        s += x
    return s

def push(xs: List[int], x: int) -> None:
    xs.append(x)

def wrap(s: str) -> List[str]:
    out = []
    out.append(s)
    return out
`)
	cases := []struct {
		fn, param string
		want      Mode
	}{
		{"total", "xs", BorrowShared},
		{"push", "xs", BorrowMut},
		{"push", "x", Moved},
		{"wrap", "s", Moved},
	}
	for _, c := range cases {
		if got := mode(t, plan, c.fn, c.param); got.Mode != c.want {
			t.Fatalf("%s.%s = %s, want %s (%s)", c.fn, c.param, got.Mode, c.want, spew.Sdump(got))
		}
	}
	total := plan.Func("total")
	if !total.Mutable("s") || total.Mutable("x") {
		t.Fatalf("total locals = %s", spew.Sdump(total.Locals))
	}
	if !plan.Func("wrap").Mutable("out") {
		t.Fatalf("appending to out needs a mutable binding")
	}
}

func TestMutatedAndStoredIsCloned(t *testing.T) {
	_, plan := analyze(t, `
from typing import List

def both(xs: List[int], acc: List[List[int]]) -> None:
    xs.append(1)
    acc.append(xs)
`)
	xs := mode(t, plan, "both", "xs")
	if xs.Mode != Cloned || !xs.Mutable {
		t.Fatalf("xs = %s", spew.Sdump(xs))
	}
	if acc := mode(t, plan, "both", "acc"); acc.Mode != BorrowMut {
		t.Fatalf("acc = %s", spew.Sdump(acc))
	}
	found := false
	for _, d := range plan.Diagnostics {
		found = found || d.Code == diagnostic.CodeOwnershipClone
	}
	if !found {
		t.Fatalf("diagnostics = %s", spew.Sdump(plan.Diagnostics))
	}
}

func TestCalleeModesPropagate(t *testing.T) {
	_, plan := analyze(t, `
from typing import List

def fill(xs: List[int]) -> None:
    xs.append(0)

def outer(ys: List[int]) -> None:
    fill(ys)
`)
	if got := mode(t, plan, "outer", "ys"); got.Mode != BorrowMut {
		t.Fatalf("ys = %s", spew.Sdump(got))
	}
}

func TestBorrowedResultSharesLifetime(t *testing.T) {
	_, plan := analyze(t, `
def longer(a: str, b: str) -> str:
    return a if len(a) > len(b) else b

def shout(a: str) -> str:
    return a.upper()
`)
	fp := plan.Func("longer")
	if !fp.ReturnsBorrow || !reflect.DeepEqual(fp.Lifetimes, []string{"'a"}) {
		t.Fatalf("longer = %s", spew.Sdump(fp))
	}
	for _, p := range fp.Params {
		if p.Mode != BorrowShared || p.Lifetime != "'a" {
			t.Fatalf("param %s", spew.Sdump(p))
		}
	}
	if plan.Func("shout").ReturnsBorrow {
		t.Fatalf("a computed result does not borrow")
	}
}

func TestReceiverModes(t *testing.T) {
	_, plan := analyze(t, `
class Tally:
    def __init__(self) -> None:
        self.n = 0

    def bump(self) -> None:
        self.n += 1

    def get(self) -> int:
        return self.n

    def twice(self) -> None:
        self.bump()
        self.bump()
`)
	want := map[string]SelfMode{
		"Tally.__init__": SelfNone,
		"Tally.bump":     SelfMut,
		"Tally.get":      SelfRef,
		"Tally.twice":    SelfMut,
	}
	for name, sm := range want {
		fp := plan.Func(name)
		if fp == nil || fp.SelfMode != sm {
			t.Fatalf("%s = %s", name, spew.Sdump(fp))
		}
	}
}

func TestLastUseInStraightLine(t *testing.T) {
	mod, plan := analyze(t, `
from typing import List

def consume(xs: List[int]) -> List[int]:
    xs.append(1)
    return xs

def main():
    a = [1, 2]
    b = consume(a)
    c = consume(b)
    print(b)
`)
	if got := mode(t, plan, "consume", "xs"); got.Mode != Moved || !got.Mutable {
		t.Fatalf("xs = %s", spew.Sdump(got))
	}
	main := mod.Function("main")
	fp := plan.Of(main)
	if got := lastUseFlags(fp, main.Body, "a"); !reflect.DeepEqual(got, []bool{false, true}) {
		t.Fatalf("a = %v", got)
	}
	if got := lastUseFlags(fp, main.Body, "b"); !reflect.DeepEqual(got, []bool{false, false, true}) {
		t.Fatalf("b = %v", got)
	}
}

func TestLastUseInLoopsAndBranches(t *testing.T) {
	mod, plan := analyze(t, `
from typing import List

def gather(items: List[str]) -> None:
    acc = []
    for it in items:
        name = it
        acc.append(name)
    print(acc)

def pick(flag: bool) -> None:
    s = [1]
    if flag:
        print(s)
    else:
        print(s)
`)
	gather := mod.Function("gather")
	fp := plan.Of(gather)
	if got := lastUseFlags(fp, gather.Body, "name"); !reflect.DeepEqual(got, []bool{false, true}) {
		t.Fatalf("name = %v", got)
	}
	if got := lastUseFlags(fp, gather.Body, "acc"); !reflect.DeepEqual(got, []bool{false, false, true}) {
		t.Fatalf("acc = %v", got)
	}
	pick := mod.Function("pick")
	if got := lastUseFlags(plan.Of(pick), pick.Body, "s"); !reflect.DeepEqual(got, []bool{false, true, true}) {
		t.Fatalf("s = %v", got)
	}
}

func TestRebindingNeedsMut(t *testing.T) {
	_, plan := analyze(t, `
def k() -> int:
    n = 1
    n = 2
    m = 3
    return n + m
`)
	fp := plan.Func("k")
	if !fp.Mutable("n") || fp.Mutable("m") {
		t.Fatalf("locals = %s", spew.Sdump(fp.Locals))
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	src := `
from typing import List

def fill(xs: List[int]) -> None:
    xs.append(0)

def outer(ys: List[int]) -> List[int]:
    fill(ys)
    return ys
`
	_, p1 := analyze(t, src)
	_, p2 := analyze(t, src)
	for name, fp := range p1.Funcs {
		if !reflect.DeepEqual(fp.Params, p2.Funcs[name].Params) {
			t.Fatalf("%s differs: %s vs %s", name, spew.Sdump(fp.Params), spew.Sdump(p2.Funcs[name].Params))
		}
	}
}
