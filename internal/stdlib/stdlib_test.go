package stdlib

import (
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/hir"
)

func TestLenDispatchesOnType(t *testing.T) {
	r := NewRegistry(Options{})
	tests := []struct {
		arg  hir.Type
		want string
	}{
		{hir.Str, "({0}.chars().count() as i64)"},
		{hir.ListOf(hir.Int), "({0}.len() as i64)"},
		{hir.DictOf(hir.Str, hir.Int), "({0}.len() as i64)"},
		{hir.Unknown, "({0}.len() as i64)"},
	}
	for _, tt := range tests {
		rc, ok := r.Call("len", []hir.Type{tt.arg})
		if !ok {
			t.Fatalf("len(%s) not found", tt.arg)
		}
		if rc.Template != tt.want {
			t.Fatalf("len(%s) template = %q, want %q", tt.arg, rc.Template, tt.want)
		}
		if !rc.ResultType(hir.Unknown, []hir.Type{tt.arg}).Equal(hir.Int) {
			t.Fatalf("len result should be int")
		}
	}
	rc, _ := r.Call("len", []hir.Type{hir.Unknown})
	if len(rc.Helpers) == 0 {
		t.Fatalf("len on a generic value should require the PyValue helper: %s", spew.Sdump(rc))
	}
}

func TestArityVariants(t *testing.T) {
	r := NewRegistry(Options{})
	one, ok1 := r.Call("range", []hir.Type{hir.Int})
	two, ok2 := r.Call("range", []hir.Type{hir.Int, hir.Int})
	three, ok3 := r.Call("range", []hir.Type{hir.Int, hir.Int, hir.Int})
	if !ok1 || !ok2 || !ok3 {
		t.Fatalf("range variants missing")
	}
	if one.Template != "(0..{0})" || two.Template != "({0}..{1})" || three.Special != "range_step" {
		t.Fatalf("range variants = %q %q %q", one.Template, two.Template, three.Special)
	}
	if _, ok := r.Call("range", nil); ok {
		t.Fatalf("range() with no arguments should not match")
	}
}

func TestExpandModes(t *testing.T) {
	lit := Arg{Code: `"a".to_string()`, Own: `"a".to_string()`, Ref: `"a"`, Str: `"a"`, Char: `'a'`, IsStr: true}
	name := Arg{Code: "s", Own: "s.clone()", Ref: "&s", Str: "s.as_str()", IsStr: true}
	num := Arg{Code: "n", Own: "n", Ref: "&n", Str: "n"}

	tests := []struct {
		tpl  string
		call Call
		want string
	}{
		{"{recv}.replace({0:pat}, {1:str})", Call{Recv: &name, Args: []Arg{lit, name}, RecvIsString: true}, `s.replace('a', s.as_str())`},
		{"{recv}.find({0:pat})", Call{Recv: &name, Args: []Arg{name}, RecvIsString: true}, `s.find(s.as_str())`},
		{"{recv}.push({0:own})", Call{Recv: &name, Args: []Arg{name}}, `s.push(s.clone())`},
		{"{recv}.get({0:key})", Call{Recv: &name, Args: []Arg{num}}, `s.get(&n)`},
		{"{recv}.get({0:key})", Call{Recv: &name, Args: []Arg{lit}}, `s.get("a")`},
		{"format!(\"{:0>width$}\", {recv}, width = {0} as usize)", Call{Recv: &name, Args: []Arg{num}}, `format!("{:0>width$}", s, width = n as usize)`},
		{"py_listdir({0:str})", Call{Defaults: []string{`"."`}}, `py_listdir(".")`},
		{"f({args})", Call{Args: []Arg{name, num}}, `f(s.clone(), n)`},
		{"if x { {recv}.clear(); }", Call{Recv: &name}, `if x { s.clear(); }`},
	}
	for _, tt := range tests {
		if got := Expand(tt.tpl, tt.call); got != tt.want {
			t.Fatalf("Expand(%q) = %q, want %q", tt.tpl, got, tt.want)
		}
	}
}

// String methods that take a pattern must never be handed an owned String.
func TestPatternArgumentsAreBorrowed(t *testing.T) {
	r := NewRegistry(Options{})
	owned := Arg{Code: "needle", Own: "needle.clone()", Ref: "&needle", Str: "needle.as_str()", IsStr: true}
	recv := Arg{Code: "hay", Own: "hay.clone()", Ref: "&hay", Str: "hay.as_str()", IsStr: true}
	for _, m := range []string{"startswith", "endswith", "find", "rfind", "count", "replace", "split", "index", "removeprefix"} {
		n := 1
		if m == "replace" {
			n = 2
		}
		rc, ok := r.Method(hir.Str, m, n)
		if !ok {
			t.Fatalf("str.%s missing", m)
		}
		for slot, modes := range Placeholders(rc.Template) {
			if slot < 0 {
				continue
			}
			for _, mode := range modes {
				if mode == "" || mode == "own" {
					t.Fatalf("str.%s passes argument %d as %q", m, slot, mode)
				}
			}
		}
		args := make([]Arg, n)
		for i := range args {
			args[i] = owned
		}
		out := Expand(rc.Template, Call{Recv: &recv, Args: args, RecvIsString: true})
		if strings.Contains(out, "needle.clone()") || strings.Contains(out, "(needle)") {
			t.Fatalf("str.%s expanded to %s", m, out)
		}
	}
}

func TestResolveImport(t *testing.T) {
	r := NewRegistry(Options{})
	tests := []struct {
		module, name string
		target       string
		known        bool
	}{
		{"os.path", "", "std::path", true},
		{"os", "path", "std::path", true},
		{"os.path", "exists", "std::path::exists", true},
		{"re", "", "regex", true},
		{"collections", "defaultdict", "std::collections::defaultdict", true},
		{"typing", "Optional", "", true},
		{"numpy", "", "", false},
		{"os", "no_such_thing", "", false},
	}
	for _, tt := range tests {
		target, known := r.ResolveImport(tt.module, tt.name)
		if known != tt.known || target != tt.target {
			t.Fatalf("ResolveImport(%q, %q) = %q, %t; want %q, %t", tt.module, tt.name, target, known, tt.target, tt.known)
		}
	}
}

func TestMethodLookupAndOverride(t *testing.T) {
	r := NewRegistry(Options{})
	get1, _ := r.Method(hir.DictOf(hir.Str, hir.Int), "get", 1)
	if !get1.ReturnsOption || !get1.ResultType(hir.DictOf(hir.Str, hir.Int), nil).Equal(hir.OptionalOf(hir.Int)) {
		t.Fatalf("dict.get/1 = %s", spew.Sdump(get1))
	}
	get2, _ := r.Method(hir.DictOf(hir.Str, hir.Int), "get", 2)
	if get2.ReturnsOption || !get2.ResultType(hir.DictOf(hir.Str, hir.Int), nil).Equal(hir.Int) {
		t.Fatalf("dict.get/2 should unwrap to the value type")
	}
	if _, ok := r.Method(hir.ListOf(hir.Int), "no_such_method", 0); ok {
		t.Fatalf("unexpected method match")
	}

	r.Override("str.upper", "{recv}.to_ascii_uppercase()")
	up, _ := r.Method(hir.Str, "upper", 0)
	if up.Template != "{recv}.to_ascii_uppercase()" {
		t.Fatalf("override not applied: %q", up.Template)
	}
	if got := r.Overrides(); len(got) != 1 || got[0] != "str.upper" {
		t.Fatalf("Overrides = %v", got)
	}
}

func TestDatetimeModes(t *testing.T) {
	std := NewRegistry(Options{})
	chrono := NewRegistry(Options{Chrono: true})
	a, _ := std.Call("datetime.datetime.now", nil)
	b, _ := chrono.Call("datetime.datetime.now", nil)
	if len(a.Crates) != 0 || !strings.Contains(a.Template, "SystemTime") {
		t.Fatalf("std mode now = %s", spew.Sdump(a))
	}
	if len(b.Crates) != 1 || b.Crates[0] != "chrono" {
		t.Fatalf("chrono mode now = %s", spew.Sdump(b))
	}
}

func TestFallibleRecipes(t *testing.T) {
	r := NewRegistry(Options{})
	rc, ok := r.Call("int", []hir.Type{hir.Str})
	if !ok || !rc.Fallible || rc.ErrorKind != "ValueError" {
		t.Fatalf("int(str) should be fallible with ValueError: %s", spew.Sdump(rc))
	}
	rc, _ = r.Call("int", []hir.Type{hir.Float})
	if rc.Fallible {
		t.Fatalf("int(float) is a plain cast")
	}
	if !IsMutating("append") || IsMutating("upper") {
		t.Fatalf("mutating method set wrong")
	}
	if !r.IsConstructor("collections.deque") || r.IsConstructor("len") {
		t.Fatalf("constructor table wrong")
	}
}
