package hir

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/position"
)

func TestUnionNormalization(t *testing.T) {
	tests := []struct {
		name string
		got  Type
		want string
	}{
		{"singleton", UnionOf(Int), "int"},
		{"dedupe", UnionOf(Int, Int), "int"},
		{"ordered", UnionOf(Str, Int), "int | str"},
		{"flatten", UnionOf(UnionOf(Str, Bool), Int), "bool | int | str"},
		{"optional", UnionOf(Str, None), "Optional[str]"},
		{"optional of union", UnionOf(Str, Int, None), "Optional[int | str]"},
		{"none only", UnionOf(None, None), "None"},
		{"unknown absorbs", UnionOf(Int, Unknown), "Unknown"},
		{"optional idempotent", OptionalOf(OptionalOf(Int)), "Optional[int]"},
		{"optional none", OptionalOf(None), "None"},
	}
	for _, tt := range tests {
		if got := tt.got.String(); got != tt.want {
			t.Fatalf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
	if !UnionOf(Int, Str).Equal(UnionOf(Str, Int)) {
		t.Fatalf("union equality should not depend on member order")
	}
}

func TestTypeAccessors(t *testing.T) {
	fn := CallableOf([]Type{Int, Str}, ListOf(Bool))
	if len(fn.Params()) != 2 || !fn.Result().Equal(ListOf(Bool)) {
		t.Fatalf("callable split wrong: %s", spew.Sdump(fn))
	}
	d := DictOf(Str, ListOf(Int))
	if !d.KeyType().Equal(Str) || !d.ValueType().Elem().Equal(Int) {
		t.Fatalf("dict accessors wrong: %s", d)
	}
	if !TupleOf(Int, Float).IsCopy() || TupleOf(Int, Str).IsCopy() {
		t.Fatalf("tuple copy classification wrong")
	}
	if VarOf(3).IsGround() || !ListOf(Int).IsGround() {
		t.Fatalf("groundness wrong")
	}
	if got := ListOf(VarOf(1)).Map(func(t Type) Type {
		if t.Kind == KindVar {
			return Int
		}
		return t
	}); !got.Equal(ListOf(Int)) {
		t.Fatalf("Map = %s", got)
	}
}

func sampleFunction(span position.Span) *Function {
	x := &Name{Span: span, ID: "x"}
	return &Function{
		Span:   span,
		Name:   "inc",
		Params: []Param{{Span: span, Name: "x", Type: Int, Annotated: true}},
		Ret:    Int,
		HasRet: true,
		Body: Block{
			&Return{Span: span, Value: &BinOp{Span: span, Op: "+", Left: x, Right: &Lit{Span: span, Kind: LitInt, Int: 1}}},
		},
	}
}

func TestFingerprintIgnoresSpans(t *testing.T) {
	a := sampleFunction(position.Span{Start: position.Position{Line: 1, Column: 1}})
	b := sampleFunction(position.Span{Start: position.Position{Line: 9, Column: 4}})
	if !Equal(a, b) || Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("span should not affect equality:\n%s\n%s", Print(a), Print(b))
	}
	b.Body = append(b.Body, &Pass{})
	if Equal(a, b) {
		t.Fatalf("different bodies compared equal")
	}
}

func TestInspectAndContains(t *testing.T) {
	fn := sampleFunction(position.Span{})
	var names []string
	InspectBlock(fn.Body, func(n Node) bool {
		if nm, ok := n.(*Name); ok {
			names = append(names, nm.ID)
		}
		return true
	})
	if len(names) != 1 || names[0] != "x" {
		t.Fatalf("names = %v", names)
	}

	nested := &FuncDef{Func: &Function{Name: "g", Body: Block{&ExprStmt{X: &Yield{}}}}}
	outer := Block{nested, &Pass{}}
	isYield := func(n Node) bool { _, ok := n.(*Yield); return ok }
	if BlockContains(outer, isYield) {
		t.Fatalf("Contains should not enter nested functions")
	}
	if !BlockContains(nested.Func.Body, isYield) {
		t.Fatalf("yield not found in nested body")
	}
}

func TestTerminates(t *testing.T) {
	ret := &Return{}
	tests := []struct {
		b    Block
		want bool
	}{
		{nil, false},
		{Block{ret}, true},
		{Block{&If{Then: Block{ret}}}, false},
		{Block{&If{Then: Block{ret}, Else: Block{&Raise{Exc: "ValueError"}}}}, true},
		{Block{&Try{Body: Block{ret}, Handlers: []Handler{{Body: Block{ret}}}}}, true},
		{Block{&Try{Body: Block{ret}, Handlers: []Handler{{Body: Block{&Pass{}}}}}}, false},
	}
	for i, tt := range tests {
		if got := Terminates(tt.b); got != tt.want {
			t.Fatalf("case %d: Terminates = %t, want %t", i, got, tt.want)
		}
	}
}

func TestNamesOfTargets(t *testing.T) {
	target := &TupleLit{Elts: []Expr{&Name{ID: "a"}, &TupleLit{Elts: []Expr{&Name{ID: "b"}, &Starred{Value: &Name{ID: "c"}}}}}}
	got := Names(target)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("Names = %v", got)
	}
}
