package codegen

import (
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// Binding strength of Rust operators, used to parenthesize operands.
const (
	precOr    = 2
	precAnd   = 3
	precCmp   = 4
	precBitOr = 5
	precXor   = 6
	precBitAn = 7
	precShift = 8
	precAdd   = 9
	precMul   = 10
	precCast  = 11
)

var opPrec = map[string]int{
	"||": precOr, "&&": precAnd,
	"|": precBitOr, "^": precXor, "&": precBitAn,
	"<<": precShift, ">>": precShift,
	"+": precAdd, "-": precAdd,
	"*": precMul, "/": precMul, "%": precMul,
}

var dunders = map[string]string{
	"+": "__add__", "-": "__sub__", "*": "__mul__", "/": "__truediv__",
	"//": "__floordiv__", "%": "__mod__", "**": "__pow__", "@": "__matmul__",
	"&": "__and__", "|": "__or__", "^": "__xor__", "<<": "__lshift__", ">>": "__rshift__",
}

// operand renders v as an operand of an operator binding with strength
// p. right marks the right operand, which also needs parentheses at
// equal strength.
func operand(v val, p int, right bool) string {
	if v.prec == 0 {
		return atomic(v.code)
	}
	if v.prec < p || right && v.prec == p {
		return "(" + v.code + ")"
	}
	return v.code
}

func infix(l val, op string, r val, t hir.Type) val {
	p := opPrec[op]
	return val{code: operand(l, p, false) + " " + op + " " + operand(r, p, true), t: t, prec: p}
}

// ====== Conditions ======

// cond renders e as a Rust bool.
func (g *generator) cond(e hir.Expr) string {
	switch x := e.(type) {
	case *hir.BinOp:
		if x.Op == "and" || x.Op == "or" {
			op := "&&"
			if x.Op == "or" {
				op = "||"
			}
			l := g.condPart(x.Left, op)
			r := g.scoped(func() string { return g.condPart(x.Right, op) })
			return l + " " + op + " " + r
		}
	case *hir.Unary:
		if x.Op == "not" {
			return negate(g.cond(x.Operand))
		}
	case *hir.Compare:
		return g.compare(x)
	}
	return g.truthy(g.expr(e))
}

// condPart renders one operand of a && or || chain.
func (g *generator) condPart(e hir.Expr, op string) string {
	code := g.cond(e)
	if b, ok := e.(*hir.BinOp); ok && (b.Op == "and" || b.Op == "or") {
		if (b.Op == "and") == (op == "&&") {
			return code
		}
		return "(" + code + ")"
	}
	if strings.HasPrefix(code, "if ") || strings.HasPrefix(code, "match ") || strings.HasPrefix(code, "{") {
		return "(" + code + ")"
	}
	return code
}

// scoped renders an expression whose queued statements must only run
// when it is evaluated, such as the right side of a short-circuit.
func (g *generator) scoped(render func() string) string {
	ctx := g.fn
	saved := ctx.pre
	ctx.pre = nil
	code := render()
	pre := ctx.pre
	ctx.pre = saved
	return withStmts(rust.NewBlock(pre...), code)
}

func letStmt(name, code string) rust.Stmt {
	return &rust.Let{Pattern: name, Value: rust.R(code)}
}

// ====== Binary operators ======

func (g *generator) binOp(e *hir.BinOp) val {
	t := g.typeOf(e)
	switch e.Op {
	case "and", "or":
		return g.logical(e, t)
	case "%":
		if g.typeOf(e.Left).Kind == hir.KindString {
			return g.percentFormat(e)
		}
	case "*":
		if l, ok := e.Left.(*hir.ListLit); ok && len(l.Elts) == 1 && g.typeOf(e.Right).Kind == hir.KindInt {
			elem := elemOr(t)
			return val{code: "vec![" + g.exprAs(l.Elts[0], elem) + "; " + g.usize(g.expr(e.Right)) + "]", t: t}
		}
	}
	return g.binop(e.Op, g.expr(e.Left), g.expr(e.Right), t)
}

// logical lowers and/or. Between bools they are && and ||; otherwise
// the result is one of the operands, chosen by the left one's truth.
func (g *generator) logical(e *hir.BinOp, t hir.Type) val {
	lt, rt := g.typeOf(e.Left), g.typeOf(e.Right)
	if lt.Kind == hir.KindBool && rt.Kind == hir.KindBool || t.Kind == hir.KindBool {
		p := precAnd
		if e.Op == "or" {
			p = precOr
		}
		return val{code: g.cond(e), t: hir.Bool, prec: p}
	}
	if t.IsUnknown() {
		t = lt
	}
	ctx := g.fn
	l := g.expr(e.Left)
	subject := l
	if !l.place || l.ref != refNone && !l.t.IsCopy() {
		tmp := ctx.names.fresh("l")
		ctx.pre = append(ctx.pre, letStmt(tmp, l.code))
		subject = val{code: tmp, t: l.t, ref: l.ref, place: true, last: true}
	}
	r := g.scoped(func() string { return g.exprAs(e.Right, t) })
	// `x or default` on an optional unwraps it.
	if lt.Kind == hir.KindOptional && t.Kind != hir.KindOptional && e.Op == "or" {
		return val{code: "match " + subject.code + " { Some(v) => " + g.coerce(val{code: "v", t: lt.Elem(), last: true}, t) +
			", None => " + r + " }", t: t}
	}
	test := g.truthy(subject)
	keep := g.coerce(subject, t)
	if e.Op == "and" {
		return val{code: "if " + test + " { " + r + " } else { " + keep + " }", t: t}
	}
	return val{code: "if " + test + " { " + keep + " } else { " + r + " }", t: t}
}

// binop applies a non-logical binary operator to rendered operands.
func (g *generator) binop(op string, l, r val, t hir.Type) val {
	lt, rt := l.t, r.t
	if cl := g.classOf(lt); cl != nil {
		if m := g.findMethod(cl, dunders[op]); m != nil {
			return val{code: g.receiver(m, l) + "." + dunders[op] + "(" + g.argOf(m, 0, r) + ")", t: g.sigOf(m).Ret}
		}
	}
	if t.IsUnknown() && !isValue(lt) && !isValue(rt) {
		t = lt
	}
	switch {
	case g.isTypeParam(lt):
		return infix(val{code: g.own(l), t: lt}, rustOp(op), val{code: g.own(r), t: rt}, lt)
	case isValue(lt) || isValue(rt):
		g.helper("PyValue")
		a := g.coerce(l, hir.Unknown)
		b := g.coerce(r, hir.Unknown)
		return val{code: "PyValue::binop(" + rustString(op) + ", " + a + ", " + b + ")", t: hir.Unknown}
	case lt.Kind == hir.KindString || rt.Kind == hir.KindString:
		return g.strOp(op, l, r)
	case lt.Kind == hir.KindList || rt.Kind == hir.KindList:
		return g.listOp(op, l, r, t)
	case lt.Kind == hir.KindTuple && rt.Kind == hir.KindTuple && op == "+":
		return g.tupleConcat(l, r, t)
	case lt.Kind == hir.KindSet:
		if o, ok := map[string]string{"|": "|", "&": "&", "-": "-", "^": "^"}[op]; ok {
			return val{code: "&" + atomic(g.borrowPlain(l)) + " " + o + " &" + atomic(g.borrowPlain(r)), t: lt, prec: opPrec[o]}
		}
	case lt.Kind == hir.KindDict && op == "|":
		return val{code: "{ let mut m = " + g.own(l) + "; m.extend(" + g.intoIter(r) + "); m }", t: lt}
	case lt.Kind == hir.KindNamed && (lt.Name == stdlib.TypeDatetime || lt.Name == stdlib.TypeDuration):
		return g.timeOp(op, l, r, t)
	}
	return g.numOp(op, l, r, t)
}

// borrowPlain renders a value usable where a reference is taken with &.
func (g *generator) borrowPlain(v val) string {
	if v.ref != refNone {
		return "*" + atomic(v.code)
	}
	if v.iter {
		return g.own(v)
	}
	return v.code
}

func (g *generator) isTypeParam(t hir.Type) bool {
	return t.Kind == hir.KindNamed && g.typeParams[t.Name]
}

func rustOp(op string) string {
	if op == "//" {
		return "/"
	}
	return op
}

// receiver renders recv for a call of user method m.
func (g *generator) receiver(m *hir.Function, recv val) string {
	if g.selfMode(m) == ownership.SelfValue {
		return atomic(g.own(recv))
	}
	return atomic(recv.code)
}

func (g *generator) strOp(op string, l, r val) val {
	switch {
	case op == "+":
		return val{code: "format!(\"{}{}\", " + l.code + ", " + r.code + ")", t: hir.Str}
	case op == "*" && l.t.Kind == hir.KindString:
		return val{code: typedLit(l) + ".repeat(" + g.usize(r) + ")", t: hir.Str}
	case op == "*":
		return val{code: typedLit(r) + ".repeat(" + g.usize(l) + ")", t: hir.Str}
	}
	g.helper("PyValue")
	return val{code: "PyValue::binop(" + rustString(op) + ", " + g.coerce(l, hir.Unknown) + ", " + g.coerce(r, hir.Unknown) + ")", t: hir.Unknown}
}

func (g *generator) listOp(op string, l, r val, t hir.Type) val {
	if t.Kind != hir.KindList {
		t = l.t
	}
	switch {
	case op == "+":
		a, b := g.sliceOf(l, t), g.sliceOf(r, t)
		return val{code: "[" + a + ", " + b + "].concat()", t: t}
	case op == "*" && l.t.Kind == hir.KindList:
		return val{code: "vec![" + g.coerce(l, t) + "; " + g.usize(r) + "].concat()", t: t}
	case op == "*":
		return val{code: "vec![" + g.coerce(r, t) + "; " + g.usize(l) + "].concat()", t: t}
	}
	return g.numOp(op, l, r, t)
}

// sliceOf renders v as a &[T] of list type t.
func (g *generator) sliceOf(v val, t hir.Type) string {
	if v.slice {
		return v.code
	}
	if !v.t.Equal(t) && !v.t.Elem().IsUnknown() {
		return "&" + atomic(g.coerce(v, t)) + "[..]"
	}
	if v.iter {
		return "&" + atomic(g.own(v)) + "[..]"
	}
	return "&" + atomic(v.code) + "[..]"
}

func (g *generator) tupleConcat(l, r val, t hir.Type) val {
	ctx := g.fn
	var parts []string
	for _, side := range []val{l, r} {
		src := side
		if !side.place {
			tmp := ctx.names.fresh("t")
			ctx.pre = append(ctx.pre, letStmt(tmp, side.code))
			src = val{code: tmp, t: side.t, place: true, last: true}
		}
		for i, et := range side.t.Elems {
			parts = append(parts, g.own(val{code: atomic(src.code) + "." + strconv.Itoa(i), t: et, place: true, last: src.last}))
		}
	}
	return val{code: "(" + strings.Join(parts, ", ") + ")", t: t}
}

func (g *generator) timeOp(op string, l, r val, t hir.Type) val {
	lt, rt := l.t, r.t
	dt := lt.Name == stdlib.TypeDatetime
	chrono := g.reg.Options().Chrono
	switch {
	case dt && rt.Kind == hir.KindNamed && rt.Name == stdlib.TypeDatetime && op == "-":
		if chrono {
			return val{code: atomic(num(l)) + ".signed_duration_since(" + num(r) + ")", t: t}
		}
		return val{code: atomic(num(l)) + ".duration_since(" + num(r) + ").unwrap_or_default()", t: t}
	case op == "+" || op == "-":
		return infix(val{code: num(l), t: lt}, op, val{code: num(r), t: rt}, t)
	case op == "*" && !chrono:
		return val{code: atomic(num(l)) + ".mul_f64(" + g.coerce(r, hir.Float) + ")", t: t}
	case op == "/" && !chrono:
		return val{code: atomic(num(l)) + ".div_f64(" + g.coerce(r, hir.Float) + ")", t: t}
	case op == "*" || op == "/":
		return infix(val{code: num(l), t: lt}, op, val{code: "(" + atomic(num(r)) + " as i32)", t: hir.Int}, t)
	}
	g.unsupported(position.Span{}, "unsupported %s arithmetic", lt)
	return val{code: num(l), t: lt}
}

// numOp lowers arithmetic and bitwise operators on numbers and bools.
func (g *generator) numOp(op string, l, r val, t hir.Type) val {
	lt, rt := l.t, r.t
	if lt.Kind == hir.KindBool && rt.Kind == hir.KindBool && (op == "&" || op == "|" || op == "^") {
		return infix(val{code: num(l), t: hir.Bool, prec: l.prec}, op, val{code: num(r), t: hir.Bool, prec: r.prec}, hir.Bool)
	}
	float := lt.Kind == hir.KindFloat || rt.Kind == hir.KindFloat
	if op == "/" {
		float = true
	}
	want := hir.Int
	if float {
		want = hir.Float
	}
	a, b := g.numArg(l, want), g.numArg(r, want)
	if v, ok := g.checkedDiv(op, a, b, float); ok {
		return v
	}
	switch op {
	case "//":
		if float {
			return val{code: "(" + operand(a, precMul, false) + " / " + operand(b, precMul, true) + ").floor()", t: hir.Float}
		}
		return val{code: typedLit(a) + ".div_euclid(" + b.code + ")", t: hir.Int}
	case "%":
		return val{code: typedLit(a) + ".rem_euclid(" + b.code + ")", t: want}
	case "**":
		switch {
		case float && isIntLit(b.code):
			return val{code: typedLit(a) + ".powi(" + b.code + ")", t: hir.Float}
		case float:
			return val{code: typedLit(a) + ".powf(" + b.code + ")", t: hir.Float}
		case rt.Kind == hir.KindFloat:
			return val{code: "(" + atomic(a.code) + " as f64).powf(" + b.code + ")", t: hir.Float}
		}
		if isIntLit(b.code) {
			return val{code: typedLit(a) + ".pow(" + b.code + ")", t: hir.Int}
		}
		return val{code: typedLit(a) + ".pow(" + operand(b, precCast, false) + " as u32)", t: hir.Int}
	case "@":
		g.unsupported(position.Span{}, "matrix multiplication has no numeric meaning")
	}
	if _, ok := opPrec[op]; !ok {
		op = "+"
	}
	return infix(a, op, b, want)
}

// checkedDiv lowers a division whose zero divisor an enclosing handler
// catches: the divisor is tested and ZeroDivisionError raised into the try.
func (g *generator) checkedDiv(op string, a, b val, float bool) (val, bool) {
	if op != "/" && op != "//" && op != "%" {
		return val{}, false
	}
	if isIntLit(b.code) && b.code != "0" {
		return val{}, false
	}
	if g.catcher("ZeroDivisionError") == "" {
		return val{}, false
	}
	g.helper("PyError")
	g.raised["ZeroDivisionError"] = true
	msg := "integer division or modulo by zero"
	if float {
		msg = "float division by zero"
	}
	miss := rust.NewBlock()
	g.throw(`PyError::new("ZeroDivisionError", `+rustString(msg)+`.to_string())`, miss)
	if !float {
		method := ".checked_div_euclid("
		if op == "%" {
			method = ".checked_rem_euclid("
		}
		return val{code: "match " + typedLit(a) + method + b.code + ") { Some(__q) => __q, None => " + rust.ExprString(miss) + " }", t: hir.Int}, true
	}
	d := val{code: "__d", t: hir.Float}
	var q string
	switch op {
	case "/":
		q = operand(a, precMul, false) + " / __d"
	case "//":
		q = "(" + operand(a, precMul, false) + " / __d).floor()"
	default:
		q = typedLit(a) + ".rem_euclid(" + d.code + ")"
	}
	return val{code: "match " + b.code + " { __d if __d == 0.0 => " + rust.ExprString(miss) + ", __d => " + q + " }", t: hir.Float}, true
}

// numArg renders a numeric operand converted to want.
func (g *generator) numArg(v val, want hir.Type) val {
	if v.t.Kind == want.Kind {
		return val{code: num(v), t: want, prec: v.prec}
	}
	if v.t.IsUnknown() {
		return val{code: g.fromValue(v, want), t: want}
	}
	return val{code: g.coerce(v, want), t: want}
}

// ====== Unary operators ======

func (g *generator) unary(u *hir.Unary) val {
	switch u.Op {
	case "not":
		return val{code: negate(g.cond(u.Operand)), t: hir.Bool}
	case "+":
		return g.expr(u.Operand)
	}
	v := g.expr(u.Operand)
	if cl := g.classOf(v.t); cl != nil {
		name := "__neg__"
		if u.Op == "~" {
			name = "__invert__"
		}
		if m := g.findMethod(cl, name); m != nil {
			return val{code: g.receiver(m, v) + "." + name + "()", t: g.sigOf(m).Ret}
		}
	}
	switch {
	case u.Op == "-" && (v.t.Kind == hir.KindInt || v.t.Kind == hir.KindFloat):
		return val{code: "-" + operand(val{code: num(v), prec: v.prec}, precCast+1, false), t: v.t}
	case u.Op == "-" && v.t.Kind == hir.KindBool:
		return val{code: "-(" + num(v) + " as i64)", t: hir.Int}
	case u.Op == "~" && v.t.Kind == hir.KindBool:
		return val{code: "!(" + num(v) + " as i64)", t: hir.Int}
	case u.Op == "~":
		return val{code: "!" + operand(val{code: num(v), prec: v.prec}, precCast+1, false), t: v.t}
	case isValue(v.t):
		g.helper("PyValue")
		return val{code: "PyValue::binop(\"-\", PyValue::from(0i64), " + g.coerce(v, hir.Unknown) + ")", t: hir.Unknown}
	}
	if v.t.Kind == hir.KindNamed && v.t.Name == stdlib.TypeDuration || g.isTypeParam(v.t) {
		return val{code: "-" + atomic(g.own(v)), t: v.t}
	}
	return val{code: "-" + atomic(num(v)), t: v.t}
}

// ====== Comparisons ======

// compare renders a comparison chain. Middle operands are evaluated once.
func (g *generator) compare(c *hir.Compare) string {
	ctx := g.fn
	left := g.expr(c.Left)
	leftExpr := c.Left
	var parts []string
	for i, op := range c.Ops {
		re := c.Rights[i]
		right := g.expr(re)
		if i < len(c.Ops)-1 && !right.place && !isSimpleLit(re) {
			tmp := ctx.names.fresh("c")
			ctx.pre = append(ctx.pre, letStmt(tmp, right.code))
			right = val{code: tmp, t: right.t, ref: right.ref, place: true}
		}
		parts = append(parts, g.compareOne(op, left, right, leftExpr, re))
		left, leftExpr = right, re
	}
	if len(parts) == 1 {
		return parts[0]
	}
	for i, p := range parts {
		if strings.Contains(p, "||") {
			parts[i] = "(" + p + ")"
		}
	}
	return strings.Join(parts, " && ")
}

func isSimpleLit(e hir.Expr) bool {
	_, ok := e.(*hir.Lit)
	return ok
}

func (g *generator) compareOne(op string, l, r val, le, re hir.Expr) string {
	switch op {
	case "in":
		return g.contains(l, r, re)
	case "not in":
		return "!" + atomic(g.contains(l, r, re))
	case "is", "is not", "==", "!=":
		if isNoneLit(re) || isNoneLit(le) {
			subject := l
			if isNoneLit(le) {
				subject = r
			}
			neg := op == "is not" || op == "!="
			return g.noneTest(subject, neg)
		}
		if op == "is" {
			op = "=="
		} else if op == "is not" {
			op = "!="
		}
	}
	if cl := g.classOf(l.t); cl != nil {
		if name, ok := cmpDunders[op]; ok {
			if m := g.findMethod(cl, name); m != nil && name != "__eq__" && name != "__lt__" {
				return g.receiver(m, l) + "." + name + "(" + g.argOf(m, 0, r) + ")"
			}
		}
	}
	a, b := g.cmpOperands(l, r)
	return a + " " + op + " " + b
}

var cmpDunders = map[string]string{"==": "__eq__", "!=": "__ne__", "<": "__lt__", "<=": "__le__", ">": "__gt__", ">=": "__ge__"}

// noneTest renders `v is None`, or `v is not None` when neg is set.
func (g *generator) noneTest(v val, neg bool) string {
	switch {
	case v.t.Kind == hir.KindOptional:
		if neg {
			return atomic(v.code) + ".is_some()"
		}
		return atomic(v.code) + ".is_none()"
	case v.t.Kind == hir.KindNone:
		return strconv.FormatBool(!neg)
	case isValue(v.t):
		g.helper("PyValue")
		if neg {
			return "!" + atomic(v.code) + ".is_none()"
		}
		return atomic(v.code) + ".is_none()"
	}
	return strconv.FormatBool(neg)
}

// cmpOperands renders both sides of == or an ordering so their types
// agree.
func (g *generator) cmpOperands(l, r val) (string, string) {
	lt, rt := l.t, r.t
	side := func(v val) string { return operand(v, precCmp, true) }
	switch {
	case lt.IsNumeric() && rt.IsNumeric() || lt.Kind == hir.KindBool && rt.IsNumeric() || lt.IsNumeric() && rt.Kind == hir.KindBool:
		if lt.Kind == rt.Kind {
			return side(val{code: num(l), prec: l.prec}), side(val{code: num(r), prec: r.prec})
		}
		want := hir.Int
		if lt.Kind == hir.KindFloat || rt.Kind == hir.KindFloat {
			want = hir.Float
		}
		return side(g.numArg(l, want)), side(g.numArg(r, want))
	case lt.Kind == hir.KindBool && rt.Kind == hir.KindBool:
		return side(val{code: num(l), prec: l.prec}), side(val{code: num(r), prec: r.prec})
	case lt.Kind == hir.KindString && rt.Kind == hir.KindString:
		if l.ref == refNone && r.ref == refNone && !l.lit && !r.lit && l.place && r.place {
			return l.code, r.code
		}
		return g.exactStr(l), g.exactStr(r)
	case lt.Kind == hir.KindOptional && rt.Kind != hir.KindOptional:
		return atomic(l.code), g.someOf(r, lt)
	case rt.Kind == hir.KindOptional && lt.Kind != hir.KindOptional:
		return g.someOf(l, rt), atomic(r.code)
	case isValue(lt) && !isValue(rt):
		g.helper("PyValue")
		return atomic(l.code), g.coerce(r, hir.Unknown)
	case isValue(rt) && !isValue(lt):
		g.helper("PyValue")
		return g.coerce(l, hir.Unknown), atomic(r.code)
	}
	a, b := atomic(l.code), atomic(r.code)
	if l.ref != refNone && r.ref == refNone {
		a = "*" + a
	}
	if r.ref != refNone && l.ref == refNone {
		b = "*" + b
	}
	if l.iter {
		a = atomic(g.own(l))
	}
	if r.iter {
		b = atomic(g.own(r))
	}
	return a, b
}

// someOf renders v wrapped for comparison with an optional of type opt.
func (g *generator) someOf(v val, opt hir.Type) string {
	inner := opt.Elem()
	if inner.Kind == hir.KindString {
		return "Some(" + g.strView(v) + ")"
	}
	return "Some(" + g.coerce(v, inner) + ")"
}

// contains renders `l in r`.
func (g *generator) contains(l, r val, re hir.Expr) string {
	rt := r.t
	recv := atomic(r.code)
	switch {
	case rt.Kind == hir.KindString:
		if l.char != "" {
			return recv + ".contains(" + l.char + ")"
		}
		return recv + ".contains(" + g.strView(l) + ")"
	case rt.Kind == hir.KindDict, rt.Kind == hir.KindNamed && rt.Name == stdlib.TypeCounter:
		key := rt.KeyType()
		if rt.Kind == hir.KindNamed {
			key = elemOr(rt)
		}
		return recv + ".contains_key(" + g.keyArg(l, key) + ")"
	case rt.Kind == hir.KindSet:
		return recv + ".contains(" + g.keyArg(l, rt.Elem()) + ")"
	case isValue(rt):
		g.helper("PyValue")
		return recv + ".contains(&" + atomic(g.coerce(l, hir.Unknown)) + ")"
	}
	if lits, ok := literalAlternatives(re); ok && (l.t.Kind == hir.KindString || l.t.IsCopy()) {
		subject := num(l)
		if l.t.Kind == hir.KindString {
			subject = g.exactStr(l)
		}
		return "matches!(" + subject + ", " + strings.Join(lits, " | ") + ")"
	}
	if cl := g.classOf(rt); cl != nil {
		if m := g.findMethod(cl, "__contains__"); m != nil {
			return g.receiver(m, r) + ".__contains__(" + g.argOf(m, 0, l) + ")"
		}
	}
	elem := iterElem(rt)
	if r.iter {
		x := "__e"
		if elem.IsCopy() {
			return recv + ".any(|" + x + "| " + x + " == " + g.coerceNum(l, elem) + ")"
		}
		return recv + ".any(|" + x + "| " + x + " == " + g.coerce(l, elem) + ")"
	}
	if l.t.Kind == hir.KindString {
		return recv + ".iter().any(|__e| __e == " + g.exactStr(l) + ")"
	}
	if rt.Kind == hir.KindTuple {
		parts := make([]string, len(rt.Elems))
		for i := range rt.Elems {
			parts[i] = g.cmpLeft(l) + " == " + recv + "." + strconv.Itoa(i)
		}
		if len(parts) == 0 {
			return "false"
		}
		return "(" + strings.Join(parts, " || ") + ")"
	}
	if !l.t.Equal(elem) && !elem.IsUnknown() {
		return recv + ".contains(&" + atomic(g.coerce(l, elem)) + ")"
	}
	return recv + ".contains(" + g.borrow(l) + ")"
}

func (g *generator) cmpLeft(v val) string {
	if v.ref != refNone {
		return "*" + atomic(v.code)
	}
	return atomic(v.code)
}

func (g *generator) coerceNum(v val, to hir.Type) string {
	if v.t.Kind == to.Kind {
		return num(v)
	}
	return g.coerce(v, to)
}

// literalAlternatives renders the elements of a literal tuple or list of
// constants as match patterns.
func literalAlternatives(e hir.Expr) ([]string, bool) {
	var elts []hir.Expr
	switch x := e.(type) {
	case *hir.TupleLit:
		elts = x.Elts
	case *hir.ListLit:
		elts = x.Elts
	case *hir.SetLit:
		elts = x.Elts
	default:
		return nil, false
	}
	if len(elts) == 0 {
		return nil, false
	}
	out := make([]string, len(elts))
	kind := hir.LitNone
	for i, el := range elts {
		l, ok := el.(*hir.Lit)
		if !ok || l.Kind == hir.LitFloat || l.Kind == hir.LitNone || l.Kind == hir.LitBytes {
			return nil, false
		}
		if i > 0 && l.Kind != kind {
			return nil, false
		}
		kind = l.Kind
		switch l.Kind {
		case hir.LitInt:
			out[i] = strconv.FormatInt(l.Int, 10)
		case hir.LitStr:
			out[i] = rustString(l.Str)
		case hir.LitBool:
			out[i] = strconv.FormatBool(l.Bool)
		}
	}
	return out, true
}
