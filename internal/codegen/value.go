package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// refKind says whether an expression denotes a reference.
type refKind int

const (
	refNone refKind = iota
	refShared
	refMut
)

// val is a rendered expression with what codegen knows about how it may
// be used: whether reading it by value needs a clone, a dereference or a
// conversion.
type val struct {
	code string
	t    hir.Type
	ref  refKind
	// place is set for variables, fields and elements.
	place bool
	// last marks the final read of a local, which may be moved.
	last bool
	// lit is a string literal of type &'static str.
	lit bool
	// iter is an iterator chain that has not been collected.
	iter bool
	// slice is a borrowed &[T] view.
	slice bool
	// fn is a closure or function item, boxed when stored.
	fn bool
	// char is set on one-character string literals.
	char string
	// prec is the precedence of the operator at the top of code, zero
	// when code is a single operand.
	prec int
}

func rv(code string, t hir.Type) val { return val{code: code, t: t} }

// ====== Rendering helpers ======

// atomic parenthesizes code unless it is a single operand that can take
// a method call or a prefix operator.
func atomic(code string) string {
	if code == "" || isAtomic(code) {
		return code
	}
	return "(" + code + ")"
}

// negate renders the logical not of a condition, cancelling a leading
// negation instead of stacking a second one.
func negate(code string) string {
	if len(code) > 1 && code[0] == '!' && code[1] != '=' && isAtomic(code[1:]) {
		return code[1:]
	}
	return "!" + atomic(code)
}

func isAtomic(code string) bool {
	switch code[0] {
	case '&', '*', '!', '-', '|':
		return false
	}
	if strings.HasPrefix(code, "match ") || strings.HasPrefix(code, "if ") || strings.HasPrefix(code, "move ") {
		return false
	}
	var stack []byte
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch c {
		case '"':
			for i++; i < len(code) && code[i] != '"'; i++ {
				if code[i] == '\\' {
					i++
				}
			}
			continue
		case '\'':
			if i+2 < len(code) && code[i+2] == '\'' {
				i += 2
				continue
			}
			if i+1 < len(code) && code[i+1] == '\\' {
				if j := strings.IndexByte(code[i+2:], '\''); j >= 0 && j < 10 {
					i += j + 2
					continue
				}
			}
		case '(', '[', '{':
			stack = append(stack, c)
			continue
		case ')', ']', '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		case '<':
			if i >= 2 && code[i-2:i] == "::" {
				stack = append(stack, '<')
				continue
			}
		case '>':
			if len(stack) > 0 && stack[len(stack)-1] == '<' {
				stack = stack[:len(stack)-1]
				continue
			}
		}
		if len(stack) > 0 {
			continue
		}
		switch c {
		case ' ', '+', '-', '*', '/', '%', '<', '>', '=', '|', '^', '&', '!':
			return false
		}
	}
	return true
}

// rustString renders s as a Rust string literal.
func rustString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			b.WriteString(`\0`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u{%x}`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// fmtEscape doubles the braces of literal text placed in a format string.
func fmtEscape(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}

func floatLit(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "f64::INFINITY"
	case math.IsInf(f, -1):
		return "f64::NEG_INFINITY"
	case math.IsNaN(f):
		return "f64::NAN"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// typedLit gives bare numeric literals a suffix so methods can be called
// on them.
func typedLit(v val) string {
	suffix := ""
	if _, err := strconv.ParseInt(v.code, 10, 64); err == nil {
		suffix = "i64"
		if v.t.Kind == hir.KindFloat {
			suffix = "f64"
		}
	} else if _, err := strconv.ParseFloat(v.code, 64); err == nil && strings.Contains(v.code, ".") {
		suffix = "f64"
	}
	switch {
	case suffix == "":
		return atomic(v.code)
	case strings.HasPrefix(v.code, "-"):
		// A method binds tighter than unary minus.
		return "(" + v.code + suffix + ")"
	}
	return v.code + suffix
}

func isIntLit(code string) bool {
	_, err := strconv.ParseInt(code, 10, 64)
	return err == nil
}

// ====== Ownership forms ======

// own renders v as an owned value of its type.
func (g *generator) own(v val) string {
	switch {
	case v.iter:
		return atomic(v.code) + ".collect::<Vec<_>>()"
	case v.lit:
		return v.code + ".to_string()"
	case v.slice:
		return atomic(v.code) + ".to_vec()"
	case v.ref != refNone:
		if v.t.IsCopy() {
			return "*" + atomic(v.code)
		}
		if v.t.Kind == hir.KindString {
			return atomic(v.code) + ".to_string()"
		}
		return atomic(v.code) + ".clone()"
	case v.place && !v.last && !v.t.IsCopy() && !v.fn:
		return atomic(v.code) + ".clone()"
	}
	return v.code
}

// borrow renders a shared reference to v.
func (g *generator) borrow(v val) string {
	switch {
	case v.ref != refNone, v.lit, v.slice:
		return v.code
	case v.iter:
		return "&" + atomic(v.code) + ".collect::<Vec<_>>()"
	}
	return "&" + atomic(v.code)
}

// borrowMut renders a mutable reference to v.
func (g *generator) borrowMut(v val) string {
	if v.ref == refMut {
		return v.code
	}
	return "&mut " + atomic(v.code)
}

// strView renders v as a &str.
func (g *generator) strView(v val) string {
	switch {
	case v.lit, v.ref != refNone && v.t.Kind == hir.KindString:
		return v.code
	case v.t.Kind == hir.KindString:
		return "&" + atomic(v.code)
	}
	return "&" + atomic(v.code) + ".to_string()"
}

// exactStr renders v as an expression of type &str, for generic
// contexts where deref coercion does not apply.
func (g *generator) exactStr(v val) string {
	if v.lit {
		return v.code
	}
	if v.t.Kind == hir.KindString {
		return "&" + atomic(v.code) + "[..]"
	}
	return "&" + atomic(v.code) + ".to_string()[..]"
}

// num renders a Copy operand by value.
func num(v val) string {
	if v.ref != refNone {
		return "*" + atomic(v.code)
	}
	return v.code
}

// arg packages v for template expansion.
func (g *generator) arg(v val) stdlib.Arg {
	a := stdlib.Arg{
		Code:  typedLit(v),
		Own:   g.own(v),
		Ref:   g.borrow(v),
		Str:   g.strView(v),
		IsStr: v.t.Kind == hir.KindString,
	}
	if v.ref != refNone && v.t.IsCopy() {
		a.Code = "(*" + atomic(v.code) + ")"
	}
	if v.char != "" {
		a.Char = v.char
	}
	return a
}

// ====== Coercion ======

// coerce renders v as an owned value of type to, converting between
// numeric kinds, optionals, unions and the generic value sum.
func (g *generator) coerce(v val, to hir.Type) string {
	from := v.t
	switch {
	case to.IsUnknown() && from.IsUnknown():
		return g.own(v)
	case to.Kind == hir.KindVar || from.Kind == hir.KindVar:
		return g.own(v)
	case to.Kind == hir.KindNamed && g.typeParams[to.Name]:
		return g.own(v)
	case isValue(to) && !isValue(from):
		g.helper("PyValue")
		if from.Kind == hir.KindNone {
			return "PyValue::None"
		}
		if isIntLit(v.code) {
			return "PyValue::from(" + typedLit(v) + ")"
		}
		return "PyValue::from(" + g.own(v) + ")"
	case isValue(from) && !isValue(to):
		return g.fromValue(v, to)
	case to.Kind == hir.KindFloat && from.Kind == hir.KindInt:
		if isIntLit(v.code) {
			return v.code + ".0"
		}
		return "(" + atomic(num(v)) + " as f64)"
	case to.Kind == hir.KindInt && from.Kind == hir.KindBool:
		return "(" + atomic(num(v)) + " as i64)"
	case to.Kind == hir.KindOptional && from.Kind == hir.KindNone:
		return "None"
	case to.Kind == hir.KindOptional && from.Kind != hir.KindOptional:
		return "Some(" + g.coerce(v, to.Elem()) + ")"
	case to.Kind == hir.KindUnion && from.Kind != hir.KindUnion:
		if vr, ok := g.variantOf(to, from); ok {
			return g.unionEnum(to) + "::" + vr.name + "(" + g.coerce(v, vr.typ) + ")"
		}
	case to.Kind == hir.KindCallable && v.fn:
		return "Box::new(" + v.code + ")"
	case to.Kind == hir.KindList && from.Kind == hir.KindList:
		te, fe := to.Elem(), from.Elem()
		switch {
		case isValue(te) && !isValue(fe) && !fe.IsUnknown():
			g.helper("PyValue")
			return g.intoIter(v) + ".map(PyValue::from).collect::<Vec<PyValue>>()"
		case te.Kind == hir.KindFloat && fe.Kind == hir.KindInt:
			return g.intoIter(v) + ".map(|x| x as f64).collect::<Vec<f64>>()"
		}
	case to.Kind == hir.KindDict && from.Kind == hir.KindDict:
		if isValue(to.ValueType()) && !isValue(from.ValueType()) && !from.ValueType().IsUnknown() {
			g.helper("PyValue")
			return g.intoIter(v) + ".map(|(k, v)| (k, PyValue::from(v))).collect::<HashMap<_, _>>()"
		}
	case to.Kind == hir.KindString && from.Kind == hir.KindNamed && from.Name == stdlib.TypeBytes:
		return "String::from_utf8_lossy(&" + atomic(v.code) + ").to_string()"
	}
	return g.own(v)
}

// intoIter renders an owning iterator over a container value.
func (g *generator) intoIter(v val) string {
	if v.iter {
		return atomic(v.code)
	}
	return atomic(g.own(v)) + ".into_iter()"
}

// fromValue converts a PyValue into a concrete type.
func (g *generator) fromValue(v val, to hir.Type) string {
	g.helper("PyValue")
	src := g.borrow(v)
	switch to.Kind {
	case hir.KindInt:
		return atomic(v.code) + ".as_int()"
	case hir.KindFloat:
		return atomic(v.code) + ".as_float()"
	case hir.KindBool:
		return atomic(v.code) + ".truthy()"
	case hir.KindString:
		return atomic(v.code) + ".to_string()"
	case hir.KindNone:
		return "()"
	}
	return "<" + g.rustType(to) + " as FromPyValue>::from_py(" + src + ")"
}

// ====== Truthiness ======

// truthy renders v as a bool following Python truth rules.
func (g *generator) truthy(v val) string {
	t := v.t
	switch t.Kind {
	case hir.KindBool:
		return num(v)
	case hir.KindInt:
		return atomic(num(v)) + " != 0"
	case hir.KindFloat:
		return atomic(num(v)) + " != 0.0"
	case hir.KindNone:
		return "false"
	case hir.KindString, hir.KindList, hir.KindDict, hir.KindSet:
		if v.iter {
			return atomic(v.code) + ".next().is_some()"
		}
		return "!" + atomic(v.code) + ".is_empty()"
	case hir.KindOptional:
		return atomic(v.code) + ".is_some()"
	case hir.KindTuple:
		if len(t.Elems) == 0 {
			return "false"
		}
		return "true"
	case hir.KindNamed:
		switch t.Name {
		case stdlib.TypeDeque, stdlib.TypeCounter, stdlib.TypeBytes, stdlib.TypeHash:
			return "!" + atomic(v.code) + ".is_empty()"
		case stdlib.TypeIter:
			return atomic(v.code) + ".into_iter().next().is_some()"
		}
		if cl, ok := g.classes[t.Name]; ok {
			if m := g.findMethod(cl, "__bool__"); m != nil {
				return atomic(v.code) + ".__bool__()"
			}
			if m := g.findMethod(cl, "__len__"); m != nil {
				return atomic(v.code) + ".__len__() != 0"
			}
		}
		if isValue(t) {
			g.helper("PyValue")
			return atomic(v.code) + ".truthy()"
		}
		return "true"
	case hir.KindUnknown, hir.KindVar, hir.KindUnion:
		if t.Kind == hir.KindUnion {
			return "true"
		}
		g.helper("PyValue")
		return atomic(v.code) + ".truthy()"
	}
	return "true"
}

// display picks the format placeholder and argument for printing v the
// way Python's str() would.
func (g *generator) display(v val) (string, string) {
	t := v.t
	switch t.Kind {
	case hir.KindString, hir.KindInt:
		return "{}", v.code
	case hir.KindBool:
		return "{}", "if " + num(v) + " { \"True\" } else { \"False\" }"
	case hir.KindFloat:
		return "{:?}", v.code
	case hir.KindNone:
		return "None", ""
	case hir.KindNamed:
		if g.isException(t.Name) {
			return "{}", v.code
		}
		if cl, ok := g.classes[t.Name]; ok {
			if g.findMethod(cl, "__str__") != nil || g.findMethod(cl, "__repr__") != nil {
				return "{}", v.code
			}
			return "{:?}", v.code
		}
		switch t.Name {
		case stdlib.TypeDatetime:
			if g.reg.Options().Chrono {
				return "{}", v.code
			}
		case stdlib.TypeArgs, stdlib.TypeParser, stdlib.TypeMatch, stdlib.TypeFile, stdlib.TypeRegex:
			return "{:?}", v.code
		}
		if isValue(t) {
			return "{}", v.code
		}
		return "{:?}", v.code
	case hir.KindUnknown, hir.KindVar:
		g.helper("PyValue")
		return "{}", v.code
	}
	if v.iter {
		return "{:?}", g.own(v)
	}
	return "{:?}", v.code
}

// strOf renders v converted to an owned String, as str() does.
func (g *generator) strOf(v val) string {
	switch v.t.Kind {
	case hir.KindString:
		return g.own(v)
	case hir.KindInt:
		return atomic(v.code) + ".to_string()"
	}
	ph, a := g.display(v)
	if a == "" {
		return "String::from(" + rustString(ph) + ")"
	}
	if ph == "{}" && !strings.HasPrefix(a, "if ") {
		return atomic(a) + ".to_string()"
	}
	return "format!(" + rustString(ph) + ", " + a + ")"
}
