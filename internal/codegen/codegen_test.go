package codegen

import (
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-set/v3"

	"github.com/pyrite-lang/pyrite/internal/astbridge"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/parser"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
	"github.com/pyrite-lang/pyrite/internal/types"
)

func generate(t *testing.T, src string) (string, *Result) {
	t.Helper()
	file, err := parser.ParseFile("sample.py", src)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	mod, seed, _ := astbridge.Convert(file, astbridge.Options{})
	info, _ := types.Check(mod, types.Config{Seed: seed})
	plan := ownership.Analyze(mod, info)
	out, res := Generate(mod, info, plan, stdlib.NewRegistry(stdlib.Options{}), Options{Header: []string{"generated"}})
	return rust.Print(out), res
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"count": "count",
		"type":  "r#type",
		"match": "r#match",
		"self":  "self_",
		"Vec":   "Vec_",
		"2nd":   "_2nd",
		"a-b":   "a_b",
		"":      "unnamed",
		"_":     "_",
	}
	for in, want := range tests {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRustString(t *testing.T) {
	if got := rustString("a\"b\\c\n"); got != `"a\"b\\c\n"` {
		t.Fatalf("rustString = %s", got)
	}
}

func TestPreludeDependenciesResolve(t *testing.T) {
	for name, it := range preludeItems {
		for _, d := range it.deps {
			if _, ok := preludeItems[d]; !ok {
				t.Fatalf("%s depends on unknown helper %s", name, d)
			}
		}
		if strings.TrimSpace(it.text) == "" {
			t.Fatalf("%s has no text", name)
		}
	}
}

func TestHelperPullsDependencies(t *testing.T) {
	out, res := generate(t, "print(1)\n")
	if !strings.Contains(out, "fn main()") {
		t.Fatalf("missing main:\n%s", out)
	}
	g := &generator{}
	g.helpers = set.NewTreeSet[string](strings.Compare)
	g.crates = set.NewTreeSet[string](strings.Compare)
	g.helper("py_from_json")
	got := g.helpers.Slice()
	if len(got) != 2 || got[0] != "PyValue" || got[1] != "py_from_json" {
		t.Fatalf("helpers = %s", spew.Sdump(got))
	}
	if c := g.crates.Slice(); len(c) != 1 || c[0] != "serde_json" {
		t.Fatalf("crates = %v", c)
	}
	if len(res.Helpers) != 0 {
		t.Fatalf("a plain print needs no helpers: %v", res.Helpers)
	}
}

func TestTypedFunction(t *testing.T) {
	out, res := generate(t, `
def add(a: int, b: int) -> int:
    return a + b

def halve(n: int) -> int:
    return n // 2

print(add(1, 2))
`)
	for _, want := range []string{
		"// generated",
		"#![allow(",
		"fn add(a: i64, b: i64) -> i64",
		"fn halve(n: i64) -> i64",
		".div_euclid(2)",
		"fn main()",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if res.Diagnostics.HasErrors() {
		t.Fatalf("unexpected errors: %v", res.Diagnostics)
	}
}

func TestExceptionHierarchyEmitted(t *testing.T) {
	out, res := generate(t, `
class AppError(Exception):
    pass

def check(n: int) -> int:
    if n < 0:
        raise AppError("negative")
    return n
`)
	for _, want := range []string{
		"pub struct PyError",
		"fn py_exc_parent(kind: &str) -> Option<&'static str>",
		`"AppError" => Some("Exception"),`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	found := false
	for _, h := range res.Helpers {
		found = found || h == "PyError"
	}
	if !found {
		t.Fatalf("PyError helper not recorded: %v", res.Helpers)
	}
	if strings.Count(out, `"AppError" =>`) != 1 {
		t.Fatalf("hierarchy arm duplicated:\n%s", out)
	}
}

func TestOutputIsDeterministic(t *testing.T) {
	src := `
from typing import Dict, List

def tally(words: List[str]) -> Dict[str, int]:
    counts: Dict[str, int] = {}
    for w in words:
        counts[w] = counts.get(w, 0) + 1
    return counts

print(tally(["a", "b", "a"]))
`
	first, _ := generate(t, src)
	for i := 0; i < 3; i++ {
		if again, _ := generate(t, src); again != first {
			t.Fatalf("run %d differs:\n%s\n---\n%s", i, first, again)
		}
	}
}

func TestTryBodyThatReturns(t *testing.T) {
	out, _ := generate(t, `
def parse(s: str) -> int:
    try:
        return int(s)
    except ValueError:
        return -1
`)
	if !strings.Contains(out, "Ok(()) => {") || !strings.Contains(out, "unreachable!()") {
		t.Fatalf("a try body that returns must not fall through its Ok arm:\n%s", out)
	}
	if !strings.Contains(out, "return -1") {
		t.Fatalf("handler lost:\n%s", out)
	}

	out, _ = generate(t, `
def bump(x: int) -> int:
    try:
        return x + 1
    except ValueError:
        return 0
`)
	if strings.Contains(out, "'try") || strings.Contains(out, "Result<(), PyError>") {
		t.Fatalf("a body that cannot raise needs no labeled block:\n%s", out)
	}
}

func TestExitParametersArePinned(t *testing.T) {
	out, _ := generate(t, `
class Conn:
    def __enter__(self):
        self.open = True
        return self

    def __exit__(self, exc_type, exc, tb):
        self.open = False

with Conn() as c:
    pass
`)
	if strings.Contains(out, "fn __exit__<") {
		t.Fatalf("__exit__ must not be generic:\n%s", out)
	}
	for _, want := range []string{"exc_type: Option<PyError>", ".__exit__(None, None, None)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	out, _ = generate(t, `
class Quiet:
    def __enter__(self):
        return self

    def __exit__(self, *_):
        pass

with Quiet():
    print("in")
`)
	if !strings.Contains(out, ".__exit__(Vec::<Option<PyError>>::new())") {
		t.Fatalf("variadic __exit__ call:\n%s", out)
	}
}

func TestModuleLevelContainers(t *testing.T) {
	out, _ := generate(t, `
from typing import List

def push(xs: List[int], v: int) -> None:
    xs.append(v)

ys = [1]
push(ys, 2)
d = {}
data = {"items": [1, 2, 3], "tags": ["a", "b"]}
`)
	for _, want := range []string{
		"static YS: std::sync::LazyLock<std::sync::Mutex<Vec<i64>>> = std::sync::LazyLock::new(|| std::sync::Mutex::new(vec![1]));",
		"push(&mut (*YS.lock().unwrap()), 2)",
		"static D: ",
		"static DATA: ",
		"PyValue::from(vec![PyValue::from(1i64)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "from_py(&vec!") || strings.Contains(out, "from_py(&HashMap") {
		t.Fatalf("literal statics must be built at their own type:\n%s", out)
	}
}

func TestAppendIntoUntypedField(t *testing.T) {
	out, _ := generate(t, `
class Acc:
    def __init__(self):
        self.items = []

    def add(self, x: int) -> None:
        self.items.append(x)
`)
	if !strings.Contains(out, "items: Vec<i64>") && !strings.Contains(out, "push(PyValue::from(x))") {
		t.Fatalf("append does not match the field's element type:\n%s", out)
	}
}

func TestZeroDivisionCaught(t *testing.T) {
	out, _ := generate(t, `
def div(a: int, b: int) -> int:
    try:
        return a // b
    except ZeroDivisionError:
        print("zero")
        return 0

def ratio(a: float, b: float) -> float:
    try:
        return a / b
    except ArithmeticError:
        return 0.0

def plain(a: int, b: int) -> int:
    return a // b
`)
	for _, want := range []string{
		"a.checked_div_euclid(b)",
		`PyError::new("ZeroDivisionError", "integer division or modulo by zero".to_string())`,
		"__d if __d == 0.0 =>",
		"a.div_euclid(b)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "a.div_euclid(b)") != 1 {
		t.Fatalf("only the uncaught division stays unchecked:\n%s", out)
	}
}

func TestExceptionClassStruct(t *testing.T) {
	out, _ := generate(t, `
class MyError(Exception):
    def __init__(self, msg: str):
        self.msg = msg

def check(x: int) -> int:
    if x < 0:
        raise MyError("negative")
    return x
`)
	for _, want := range []string{
		"pub struct MyError {",
		"pub message: String,",
		"pub fn new(message: String) -> Self",
		"impl From<MyError> for PyError",
		`PyError::new("MyError", e.message)`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNotOverEmptiness(t *testing.T) {
	out, _ := generate(t, `
from typing import List

def empty(xs: List[int]) -> bool:
    return not xs

def report(xs: List[int]) -> None:
    if not xs:
        print("none")
`)
	if strings.Contains(out, "!(!") || strings.Contains(out, "!!") {
		t.Fatalf("double negation emitted:\n%s", out)
	}
	if strings.Count(out, "xs.is_empty()") < 2 {
		t.Fatalf("expected xs.is_empty() twice:\n%s", out)
	}
	if negate("!a.is_empty()") != "a.is_empty()" || negate("!a || b") != "!(!a || b)" || negate("x") != "!x" {
		t.Fatalf("negate folds the wrong shapes")
	}
}

func TestUnreachableCodeLintStaysOn(t *testing.T) {
	out, _ := generate(t, "print(1)\n")
	if strings.Contains(out, "unreachable_code") {
		t.Fatalf("crate attributes hide unreachable code:\n%s", out)
	}
}
