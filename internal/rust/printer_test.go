package rust

import (
	"strings"
	"testing"
)

func TestPrintFileLayout(t *testing.T) {
	f := &File{
		Header: []string{"#![allow(dead_code)]"},
		Uses:   []Use{{Path: "std::collections::HashMap"}},
		Items: []Item{
			&Fn{Name: "main", Body: NewBlock(&Semi{X: R(`println!("hi")`)})},
		},
	}
	want := "#![allow(dead_code)]\n\nuse std::collections::HashMap;\n\nfn main() {\n    println!(\"hi\");\n}\n"
	if got := Print(f); got != want {
		t.Fatalf("Print =\n%s\nwant\n%s", got, want)
	}
}

func TestPrintFnSignature(t *testing.T) {
	fn := &Fn{
		Doc:      []string{"Adds.", ""},
		Pub:      true,
		Name:     "add",
		Generics: []string{"T: Copy"},
		Params:   []Param{{Name: "self", Type: "&self"}, {Name: "a", Type: "i64", Mut: true}},
		Ret:      "i64",
		Body:     NewBlock(&ExprStmt{X: R("a")}),
	}
	want := "/// Adds.\n///\npub fn add<T: Copy>(&self, mut a: i64) -> i64 {\n    a\n}\n"
	if got := PrintItem(fn); got != want {
		t.Fatalf("PrintItem =\n%s\nwant\n%s", got, want)
	}
	unit := &Fn{Name: "f", Ret: "()", Body: NewBlock()}
	if got := PrintItem(unit); got != "fn f() {}\n" {
		t.Fatalf("unit fn = %q", got)
	}
}

func TestPrintStructEnumImpl(t *testing.T) {
	s := &Struct{Derives: []string{"Debug", "Clone"}, Pub: true, Name: "Point", Fields: []Field{{Name: "x", Type: "f64", Pub: true}}}
	if got := PrintItem(s); got != "#[derive(Debug, Clone)]\npub struct Point {\n    pub x: f64,\n}\n" {
		t.Fatalf("struct = %q", got)
	}
	if got := PrintItem(&Struct{Name: "Unit"}); got != "struct Unit;\n" {
		t.Fatalf("unit struct = %q", got)
	}
	e := &Enum{Name: "Shape", Variants: []Variant{{Name: "Empty"}, {Name: "Pair", Fields: []string{"i64", "String"}}}}
	if got := PrintItem(e); got != "enum Shape {\n    Empty,\n    Pair(i64, String),\n}\n" {
		t.Fatalf("enum = %q", got)
	}
	im := &Impl{Trait: "Default", Type: "Point", Items: []Item{
		&Fn{Name: "default", Ret: "Self", Body: NewBlock(&ExprStmt{X: R("Point { x: 0.0 }")})},
	}}
	want := "impl Default for Point {\n    fn default() -> Self {\n        Point { x: 0.0 }\n    }\n}\n"
	if got := PrintItem(im); got != want {
		t.Fatalf("impl =\n%s\nwant\n%s", got, want)
	}
}

func TestPrintStatic(t *testing.T) {
	st := &Static{Name: "COUNTS", Type: "Mutex<Vec<i64>>", Init: R("Mutex::new(Vec::new())")}
	want := "static COUNTS: std::sync::LazyLock<Mutex<Vec<i64>>> = std::sync::LazyLock::new(|| Mutex::new(Vec::new()));\n"
	if got := PrintItem(st); got != want {
		t.Fatalf("static = %q", got)
	}
	c := &Const{Name: "LIMIT", Type: "i64", Value: R("10")}
	if got := PrintItem(c); got != "const LIMIT: i64 = 10;\n" {
		t.Fatalf("const = %q", got)
	}
}

func TestPrintControlFlow(t *testing.T) {
	body := NewBlock(
		&Let{Mut: true, Pattern: "n", Type: "i64", Value: R("0")},
		&Semi{X: &For{Label: "'outer", Pattern: "i", Iter: R("0..3"), Body: NewBlock(
			&Semi{X: &If{Cond: R("i == 1"), Then: NewBlock(&Semi{X: R("continue 'outer")}), Else: NewBlock(&Semi{X: R("n += i")})}},
		)}},
		&Semi{X: &Match{Value: R("n"), Arms: []Arm{
			{Pattern: "0", Body: R(`println!("zero")`)},
			{Pattern: "x", Guard: "x > 0", Body: NewBlock(&Semi{X: R("println!(\"{}\", x)")})},
			{Pattern: "_", Body: R("()")},
		}}},
	)
	got := PrintItem(&Fn{Name: "run", Body: body})
	want := `fn run() {
    let mut n: i64 = 0;
    'outer: for i in 0..3 {
        if i == 1 {
            continue 'outer;
        } else {
            n += i;
        }
    }
    match n {
        0 => println!("zero"),
        x if x > 0 => {
            println!("{}", x);
        }
        _ => (),
    }
}
`
	if got != want {
		t.Fatalf("control flow =\n%s\nwant\n%s", got, want)
	}
}

func TestPrintElseIfChain(t *testing.T) {
	e := &If{
		Cond: R("a"),
		Then: NewBlock(&ExprStmt{X: R("1")}),
		Else: &If{Cond: R("b"), Then: NewBlock(&ExprStmt{X: R("2")}), Else: NewBlock(&ExprStmt{X: R("3")})},
	}
	want := "if a {\n    1\n} else if b {\n    2\n} else {\n    3\n}"
	if got := ExprString(e); got != want {
		t.Fatalf("else-if =\n%s\nwant\n%s", got, want)
	}
	empty := &If{Cond: R("a"), Then: NewBlock(&Semi{X: R("f()")}), Else: NewBlock()}
	if got := ExprString(empty); strings.Contains(got, "else") {
		t.Fatalf("empty else should be omitted: %q", got)
	}
}

func TestPrintLetElseAndClosure(t *testing.T) {
	b := NewBlock(
		&LetElse{Pattern: "Some(x)", Value: R("opt"), Else: NewBlock(&Semi{X: R("return")})},
		&Let{Pattern: "f", Value: &Closure{Move: true, Params: []string{"a"}, Body: R("a + x")}},
		&Comment{Text: "done"},
	)
	got := PrintItem(&Fn{Name: "g", Body: b})
	want := "fn g() {\n    let Some(x) = opt else {\n        return;\n    };\n    let f = move |a| a + x;\n    // done\n}\n"
	if got != want {
		t.Fatalf("let-else =\n%s\nwant\n%s", got, want)
	}
}

func TestRawReindentsContinuationLines(t *testing.T) {
	inner := ExprString(&Block{Stmts: []Stmt{&ExprStmt{X: R("1")}}})
	got := PrintItem(&Fn{Name: "h", Ret: "i64", Body: NewBlock(&ExprStmt{X: R(inner)})})
	want := "fn h() -> i64 {\n    {\n        1\n    }\n}\n"
	if got != want {
		t.Fatalf("raw =\n%s\nwant\n%s", got, want)
	}
}

func TestRawItemKeepsBlankLines(t *testing.T) {
	it := &RawItem{Text: "fn a() {}\n\nfn b() {}\n"}
	if got := PrintItem(it); got != "fn a() {}\n\nfn b() {}\n" {
		t.Fatalf("raw item = %q", got)
	}
}

func TestBlockLike(t *testing.T) {
	if !IsBlockLike(&Loop{Body: NewBlock()}) || IsBlockLike(R("x")) || IsBlockLike(&Closure{}) {
		t.Fatalf("IsBlockLike misclassified")
	}
	if !(*Block)(nil).Empty() {
		t.Fatalf("nil block should be empty")
	}
}
