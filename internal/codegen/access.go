package codegen

import (
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// keyArg renders v as the borrowed key of a map or set lookup whose keys
// have type keyT.
func (g *generator) keyArg(v val, keyT hir.Type) string {
	switch {
	case keyT.Kind == hir.KindString || keyT.IsUnknown() && v.t.Kind == hir.KindString:
		return g.strView(v)
	case keyT.IsCopy():
		if v.t.Kind != keyT.Kind && !v.t.IsUnknown() {
			return "&" + atomic(g.coerce(v, keyT))
		}
		if v.ref != refNone {
			return v.code
		}
		return "&" + atomic(num(v))
	case !keyT.IsUnknown() && !v.t.Equal(keyT):
		return "&" + atomic(g.coerce(v, keyT))
	}
	return g.borrow(v)
}

// usize renders an index operand as usize.
func (g *generator) usize(v val) string {
	if n, err := strconv.ParseInt(v.code, 10, 64); err == nil && n >= 0 {
		return v.code
	}
	return "(" + operand(val{code: num(v), prec: v.prec}, precCast, false) + " as usize)"
}

// negIndex recognizes a constant negative index and returns its
// magnitude.
func negIndex(e hir.Expr) (int64, bool) {
	switch x := e.(type) {
	case *hir.Lit:
		if x.Kind == hir.LitInt && x.Int < 0 {
			return -x.Int, true
		}
	case *hir.Unary:
		if l, ok := x.Operand.(*hir.Lit); ok && x.Op == "-" && l.Kind == hir.LitInt && l.Int > 0 {
			return l.Int, true
		}
	}
	return 0, false
}

// listIndex renders the position of e in sequence c. Constant negative
// indexes count from the end.
func (g *generator) listIndex(e hir.Expr, c val) string {
	if l, ok := e.(*hir.Lit); ok && l.Kind == hir.LitInt && l.Int >= 0 {
		return strconv.FormatInt(l.Int, 10)
	}
	if n, ok := negIndex(e); ok {
		return atomic(c.code) + ".len() - " + strconv.FormatInt(n, 10)
	}
	v := g.expr(e)
	if v.t.Kind == hir.KindBool {
		return "(" + atomic(num(v)) + " as usize)"
	}
	return g.usize(v)
}

// ====== Subscripts ======

func (g *generator) index(ix *hir.Index) val {
	c := g.expr(ix.Value)
	ct := c.t
	recv := atomic(c.code)
	t := g.typeOf(ix)
	switch {
	case ct.Kind == hir.KindList, ct.Kind == hir.KindNamed && ct.Name == stdlib.TypeDeque, isIter(ct):
		elem := ct.Elem()
		if c.iter {
			return val{code: recv + ".nth(" + g.listIndex(ix.Index, c) + ").unwrap()", t: elem}
		}
		idx := g.listIndex(ix.Index, c)
		if label := g.catcher("IndexError"); label != "" {
			return val{code: g.guardedGet(recv, idx, elem, "IndexError", "list index out of range"), t: elem}
		}
		return val{code: recv + "[" + idx + "]", t: elem, place: true}
	case ct.Kind == hir.KindTuple:
		l, ok := ix.Index.(*hir.Lit)
		if !ok || l.Kind != hir.LitInt {
			if n, neg := negIndex(ix.Index); neg && int(n) <= len(ct.Elems) {
				i := len(ct.Elems) - int(n)
				return val{code: recv + "." + strconv.Itoa(i), t: ct.Elems[i], place: true, last: !c.place || c.last}
			}
			g.unsupported(ix.Span, "tuple index must be a constant")
			return val{code: "todo!()", t: t}
		}
		if int(l.Int) >= len(ct.Elems) {
			g.unsupported(ix.Span, "tuple index %d out of range", l.Int)
			return val{code: "todo!()", t: t}
		}
		return val{code: recv + "." + strconv.FormatInt(l.Int, 10), t: ct.Elems[l.Int], place: true, last: !c.place || c.last}
	case ct.Kind == hir.KindDict:
		key := g.keyArg(g.expr(ix.Index), ct.KeyType())
		vt := ct.ValueType()
		if label := g.catcher("KeyError"); label != "" {
			return val{code: g.guardedGet(recv, key, vt, "KeyError", "key not found"), t: vt}
		}
		return val{code: recv + "[" + key + "]", t: vt, place: true}
	case ct.Kind == hir.KindNamed && ct.Name == stdlib.TypeCounter:
		key := g.keyArg(g.expr(ix.Index), elemOr(ct))
		return val{code: "*" + recv + ".get(" + key + ").unwrap_or(&0)", t: hir.Int, prec: precCast + 1}
	case ct.Kind == hir.KindString:
		g.helper("py_char_at")
		i := g.expr(ix.Index)
		return val{code: "py_char_at(" + g.strView(c) + ", " + g.coerce(i, hir.Int) + ")", t: hir.Str}
	case ct.Kind == hir.KindNamed && (ct.Name == stdlib.TypeBytes || ct.Name == stdlib.TypeHash):
		return val{code: "(" + recv + "[" + g.listIndex(ix.Index, c) + "] as i64)", t: hir.Int}
	case ct.Kind == hir.KindNamed && ct.Name == stdlib.TypeMatch:
		return val{code: recv + ".group(" + g.coerce(g.expr(ix.Index), hir.Int) + ")", t: hir.OptionalOf(hir.Str)}
	}
	if cl := g.classOf(ct); cl != nil {
		if m := g.findMethod(cl, "__getitem__"); m != nil {
			return val{code: g.receiver(m, c) + ".__getitem__(" + g.argOf(m, 0, g.expr(ix.Index)) + ")", t: g.sigOf(m).Ret}
		}
	}
	if isValue(ct) || ct.Kind == hir.KindUnion {
		g.helper("PyValue")
		k := g.coerce(g.expr(ix.Index), hir.Unknown)
		return val{code: recv + ".item(&" + atomic(k) + ")", t: hir.Unknown}
	}
	g.unsupported(ix.Span, "cannot index a value of type %s", ct)
	return val{code: "todo!()", t: t}
}

// guardedGet looks key up in recv and raises kind when it is missing, so
// an enclosing handler sees the error.
func (g *generator) guardedGet(recv, key string, t hir.Type, kind, msg string) string {
	g.helper("PyError")
	g.raised[kind] = true
	miss := rust.NewBlock()
	g.throw("PyError::new("+rustString(kind)+", String::from("+rustString(msg)+"))", miss)
	hit := g.own(val{code: "__v", t: t, ref: refShared})
	return "match " + recv + ".get(" + key + ") { Some(__v) => " + hit + ", None => " + rust.ExprString(miss) + " }"
}

// ====== Slices ======

func (g *generator) slice(s *hir.SliceExpr) val {
	c := g.expr(s.Value)
	ct := c.t
	t := g.typeOf(s)
	if t.IsUnknown() {
		t = ct
	}
	if s.Lower == nil && s.Upper == nil && s.Step != nil {
		if n, ok := negIndex(s.Step); ok && n == 1 {
			switch {
			case ct.Kind == hir.KindString:
				return val{code: atomic(c.code) + ".chars().rev().collect::<String>()", t: hir.Str}
			case ct.Kind == hir.KindList:
				return val{code: g.borrowPlainIter(c) + ".rev().cloned().collect::<Vec<_>>()", t: ct}
			}
		}
	}
	bound := func(e hir.Expr) string {
		if e == nil {
			return "None"
		}
		return "Some(" + g.coerce(g.expr(e), hir.Int) + ")"
	}
	lo, hi, step := bound(s.Lower), bound(s.Upper), bound(s.Step)
	switch {
	case ct.Kind == hir.KindString:
		g.helper("py_str_slice")
		return val{code: "py_str_slice(" + g.strView(c) + ", " + lo + ", " + hi + ", " + step + ")", t: hir.Str}
	case ct.Kind == hir.KindList, ct.Kind == hir.KindNamed && ct.Name == stdlib.TypeBytes:
		g.helper("py_slice")
		return val{code: "py_slice(" + g.sliceOf(c, ct) + ", " + lo + ", " + hi + ", " + step + ")", t: t}
	case ct.Kind == hir.KindTuple:
		g.unsupported(s.Span, "tuple slices are not supported")
		return val{code: "todo!()", t: t}
	case isValue(ct):
		g.helper("PyValue")
		g.helper("py_slice")
		return val{code: "PyValue::List(py_slice(&" + atomic(c.code) + ".to_list(), " + lo + ", " + hi + ", " + step + "))", t: hir.Unknown}
	}
	g.unsupported(s.Span, "cannot slice a value of type %s", ct)
	return val{code: "todo!()", t: t}
}

// borrowPlainIter renders a borrowing iterator over a list value.
func (g *generator) borrowPlainIter(v val) string {
	if v.iter {
		return atomic(g.own(v)) + ".iter()"
	}
	return atomic(v.code) + ".iter()"
}

// ====== f-strings ======

func (g *generator) fstring(f *hir.FString) val {
	var format, plain strings.Builder
	var args []string
	literal := true
	for _, p := range f.Parts {
		if p.Expr == nil {
			format.WriteString(fmtEscape(p.Lit))
			plain.WriteString(p.Lit)
			continue
		}
		literal = false
		v := g.expr(p.Expr)
		ph, a := g.display(v)
		if p.Conv == 'r' {
			ph, a = "{:?}", v.code
			if v.iter {
				a = g.own(v)
			}
		}
		if a == "" {
			format.WriteString(ph)
			continue
		}
		spec, pct := "", false
		if p.Spec != "" {
			var ok bool
			spec, pct, ok = g.formatSpec(p.Spec, f.Span)
			if !ok {
				spec = ""
			}
			if v.t.Kind == hir.KindFloat || pct {
				a = v.code
				if v.ref != refNone {
					a = num(v)
				}
			}
			if pct {
				a = "(" + g.coerce(v, hir.Float) + " * 100.0)"
			}
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(ph, "{"), "}")
		if spec != "" {
			inner = ":" + spec
			if strings.HasPrefix(ph, "{:?") && v.t.Kind != hir.KindFloat {
				inner += "?"
			}
		}
		if isIdent(a) {
			format.WriteString("{" + a + inner + "}")
		} else {
			format.WriteString("{" + inner + "}")
			args = append(args, a)
		}
		if pct {
			format.WriteString("%")
		}
	}
	if literal {
		return val{code: "String::from(" + rustString(plain.String()) + ")", t: hir.Str}
	}
	code := "format!(" + rustString(format.String())
	for _, a := range args {
		code += ", " + a
	}
	return val{code: code + ")", t: hir.Str}
}

// isIdent reports whether code is a plain local that format! can
// capture inline.
func isIdent(code string) bool {
	if code == "" || code == "self" || strings.HasPrefix(code, "r#") {
		return false
	}
	for i, r := range code {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// formatSpec translates a Python format spec to a Rust one. pct is set
// for the percent presentation, whose value must be scaled by 100.
func (g *generator) formatSpec(spec string, span position.Span) (out string, pct bool, ok bool) {
	if strings.ContainsAny(spec, "{}") {
		g.warnf(diagnostic.CodeUnsupported, span, "nested format spec %q is dropped", spec)
		return "", false, false
	}
	i := 0
	var b strings.Builder
	isAlign := func(c byte) bool { return c == '<' || c == '>' || c == '^' || c == '=' }
	if len(spec) >= 2 && isAlign(spec[1]) {
		if spec[1] != '=' {
			b.WriteByte(spec[0])
			b.WriteByte(spec[1])
		}
		i = 2
	} else if len(spec) >= 1 && isAlign(spec[0]) {
		if spec[0] != '=' {
			b.WriteByte(spec[0])
		}
		i = 1
	}
	if i < len(spec) && (spec[i] == '+' || spec[i] == '-' || spec[i] == ' ') {
		if spec[i] == '+' {
			b.WriteByte('+')
		}
		i++
	}
	if i < len(spec) && spec[i] == '#' {
		b.WriteByte('#')
		i++
	}
	if i < len(spec) && spec[i] == '0' {
		b.WriteByte('0')
		i++
	}
	for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
		b.WriteByte(spec[i])
		i++
	}
	if i < len(spec) && (spec[i] == ',' || spec[i] == '_') {
		g.warnf(diagnostic.CodeUnsupported, span, "digit grouping in format spec %q is dropped", spec)
		i++
	}
	prec := ""
	if i < len(spec) && spec[i] == '.' {
		j := i + 1
		for j < len(spec) && spec[j] >= '0' && spec[j] <= '9' {
			j++
		}
		prec = spec[i:j]
		i = j
	}
	kind := ""
	if i < len(spec) {
		kind = spec[i:]
	}
	switch kind {
	case "", "d", "s", "n":
	case "f", "F":
		if prec == "" {
			prec = ".6"
		}
	case "%":
		pct = true
		if prec == "" {
			prec = ".6"
		}
	case "e", "E", "x", "X", "o", "b":
		b.WriteString(prec)
		b.WriteString(kind)
		return b.String(), false, true
	case "g", "G":
		g.warnf(diagnostic.CodeUnsupported, span, "general format %q rendered as plain", spec)
	default:
		g.warnf(diagnostic.CodeUnsupported, span, "format spec %q is dropped", spec)
		return "", false, false
	}
	b.WriteString(prec)
	return b.String(), pct, true
}
