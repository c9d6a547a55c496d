package codegen

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// typeOf is the checked type of e, falling back to what its shape implies.
func (g *generator) typeOf(e hir.Expr) hir.Type {
	if t, ok := g.info.Types[e]; ok {
		return t
	}
	if l, ok := e.(*hir.Lit); ok {
		switch l.Kind {
		case hir.LitInt:
			return hir.Int
		case hir.LitFloat:
			return hir.Float
		case hir.LitStr:
			return hir.Str
		case hir.LitBool:
			return hir.Bool
		case hir.LitBytes:
			return hir.NamedOf(stdlib.TypeBytes)
		}
		return hir.None
	}
	return hir.Unknown
}

// exprAs renders e as an owned value of type t.
func (g *generator) exprAs(e hir.Expr, t hir.Type) string {
	switch e := e.(type) {
	case *hir.Lit:
		switch {
		case e.Kind == hir.LitNone:
			return g.none(t)
		case e.Kind == hir.LitInt && t.Kind == hir.KindFloat:
			return floatLit(float64(e.Int))
		}
	case *hir.ListLit:
		if len(e.Elts) == 0 && t.Kind == hir.KindList {
			return "Vec::<" + g.rustType(t.Elem()) + ">::new()"
		}
		if t.Kind == hir.KindList {
			return g.listOf(e, t).code
		}
	case *hir.DictLit:
		if len(e.Keys) == 0 && t.Kind == hir.KindDict {
			g.use("std::collections::HashMap")
			return "HashMap::<" + g.keyType(t.KeyType()) + ", " + g.rustType(t.ValueType()) + ">::new()"
		}
		if t.Kind == hir.KindDict {
			return g.dictOf(e, t).code
		}
	case *hir.Lambda:
		if t.Kind == hir.KindCallable {
			return "Box::new(" + g.lambda(e, t.Params(), false).code + ")"
		}
	case *hir.IfExpr:
		if !t.IsUnknown() {
			return g.ifExpr(e, t).code
		}
	}
	return g.coerce(g.expr(e), t)
}

// none renders None as a value of type t.
func (g *generator) none(t hir.Type) string {
	switch {
	case t.Kind == hir.KindOptional:
		return "None"
	case isValue(t):
		g.helper("PyValue")
		return "PyValue::None"
	case t.Kind == hir.KindNone:
		return "()"
	}
	return "None"
}

// expr renders e.
func (g *generator) expr(e hir.Expr) val {
	switch e := e.(type) {
	case *hir.Name:
		return g.name(e)
	case *hir.Lit:
		return g.lit(e)
	case *hir.BinOp:
		return g.binOp(e)
	case *hir.Unary:
		return g.unary(e)
	case *hir.Compare:
		return val{code: g.compare(e), t: hir.Bool}
	case *hir.Call:
		return g.call(e)
	case *hir.MethodCall:
		return g.methodCall(e)
	case *hir.Qualified:
		return g.qualified(e)
	case *hir.Attribute:
		return g.attribute(e)
	case *hir.Index:
		return g.index(e)
	case *hir.SliceExpr:
		return g.slice(e)
	case *hir.ListLit:
		return g.listLit(e)
	case *hir.SetLit:
		return g.setLit(e)
	case *hir.TupleLit:
		return g.tupleLit(e)
	case *hir.DictLit:
		return g.dictLit(e)
	case *hir.Comprehension:
		return g.comprehension(e)
	case *hir.Lambda:
		t := g.typeOf(e)
		return g.lambda(e, t.Params(), false)
	case *hir.IfExpr:
		return g.ifExpr(e, g.typeOf(e))
	case *hir.Walrus:
		return g.walrus(e)
	case *hir.FString:
		return g.fstring(e)
	case *hir.Yield:
		g.unsupported(e.Span, "yield is only supported as a statement")
		return val{code: "unreachable!()", t: hir.Unknown}
	case *hir.Await:
		g.unsupported(e.Span, "await is not supported")
		return g.expr(e.Value)
	case *hir.Starred:
		g.unsupported(e.Span, "starred expression outside a call or list")
		return g.expr(e.Value)
	case *hir.Stub:
		g.unsupported(e.Span, "%s", e.Reason)
		return val{code: "todo!(" + rustString(e.Reason) + ")", t: hir.Unknown}
	}
	return val{code: "todo!()", t: hir.Unknown}
}

// ====== Literals ======

func (g *generator) lit(l *hir.Lit) val {
	switch l.Kind {
	case hir.LitInt:
		return val{code: strconv.FormatInt(l.Int, 10), t: hir.Int}
	case hir.LitFloat:
		return val{code: floatLit(l.Float), t: hir.Float}
	case hir.LitStr:
		v := val{code: rustString(l.Str), t: hir.Str, lit: true}
		if utf8.RuneCountInString(l.Str) == 1 {
			v.char = charLit(l.Str)
		}
		return v
	case hir.LitBool:
		if l.Bool {
			return val{code: "true", t: hir.Bool}
		}
		return val{code: "false", t: hir.Bool}
	case hir.LitBytes:
		return val{code: "b" + rustString(l.Str) + ".to_vec()", t: hir.NamedOf(stdlib.TypeBytes)}
	}
	return val{code: "None", t: hir.None}
}

func charLit(s string) string {
	switch s {
	case "'":
		return `'\''`
	case "\\":
		return `'\\'`
	case "\n":
		return `'\n'`
	case "\t":
		return `'\t'`
	case "\r":
		return `'\r'`
	}
	return "'" + s + "'"
}

// ====== Names and attributes ======

func (g *generator) qualified(q *hir.Qualified) val {
	t := g.typeOf(q)
	if rc, ok := g.reg.Value(q.Path); ok {
		g.recipe(rc)
		return val{code: stdlib.Expand(rc.Template, stdlib.Call{}), t: t}
	}
	g.warnf(diagnostic.CodeUnmapped, q.Span, "no mapping for %s", q.Path)
	return val{code: strings.ReplaceAll(q.Path, ".", "::"), t: t}
}

func (g *generator) attribute(a *hir.Attribute) val {
	t := g.typeOf(a)
	if n, ok := a.Value.(*hir.Name); ok && n.ID == "self" && g.fn.ctor == ctorFields {
		if local, ok := g.fn.fields[a.Attr]; ok {
			return val{code: local, t: t, place: true}
		}
	}
	recv := g.expr(a.Value)
	rt := recv.t
	if rt.Kind == hir.KindOptional && g.info.Types[a.Value].Kind != hir.KindOptional {
		rt = rt.Elem()
	}
	if cl := g.classOf(rt); cl != nil {
		if m := g.findMethod(cl, a.Attr); m != nil {
			if isProperty(m) {
				return val{code: atomic(recv.code) + "." + Sanitize(a.Attr) + "()", t: t}
			}
			g.unsupported(a.Span, "bound method %s.%s used as a value", cl.Name, a.Attr)
		}
		return val{code: atomic(recv.code) + "." + Sanitize(a.Attr), t: t, place: true}
	}
	if rt.Kind == hir.KindNamed && rt.Name == stdlib.TypeType && len(rt.Elems) == 1 {
		if cl := g.classOf(rt.Elems[0]); cl != nil {
			for _, f := range g.fieldsOf(cl) {
				if f.name == a.Attr && f.def != nil {
					return val{code: g.exprAs(f.def, f.typ), t: f.typ}
				}
			}
		}
	}
	if rt.Kind == hir.KindNamed && rt.Name == stdlib.TypeArgs {
		g.helper("PyArgParser")
		return val{code: atomic(recv.code) + ".value(" + rustString(a.Attr) + ")", t: hir.Unknown}
	}
	if g.isException(rt.Name) && rt.Kind == hir.KindNamed {
		switch a.Attr {
		case "args":
			return val{code: "vec![" + atomic(recv.code) + ".message.clone()]", t: hir.ListOf(hir.Str)}
		}
	}
	if rc, ok := g.reg.Method(rt, "@"+a.Attr, 0); ok {
		g.recipe(rc)
		r := g.arg(recv)
		return val{code: stdlib.Expand(rc.Template, stdlib.Call{Recv: &r}), t: t}
	}
	if isValue(rt) {
		g.helper("PyValue")
		return val{code: atomic(recv.code) + "[" + rustString(a.Attr) + "]", t: hir.Unknown, place: true}
	}
	g.warnf(diagnostic.CodeUnmapped, a.Span, "no mapping for attribute %s of %s", a.Attr, rt)
	return val{code: atomic(recv.code) + "." + Sanitize(a.Attr), t: t, place: true}
}

// ====== Containers ======

func (g *generator) listLit(l *hir.ListLit) val { return g.listOf(l, g.typeOf(l)) }

// listOf renders l as a list of type t. Elements convert one by one, so
// a literal the checker never typed still gets its target's element type.
func (g *generator) listOf(l *hir.ListLit, t hir.Type) val {
	if t.Kind != hir.KindList {
		t = hir.ListOf(hir.Unknown)
	}
	elem := t.Elem()
	var starred bool
	for _, e := range l.Elts {
		if _, ok := e.(*hir.Starred); ok {
			starred = true
		}
	}
	if starred {
		var parts []string
		for _, e := range l.Elts {
			if s, ok := e.(*hir.Starred); ok {
				v := g.expr(s.Value)
				parts = append(parts, "&"+atomic(g.own(v))+"[..]")
				continue
			}
			parts = append(parts, "&["+g.exprAs(e, elem)+"][..]")
		}
		return val{code: "[" + strings.Join(parts, ", ") + "].concat()", t: t}
	}
	if len(l.Elts) == 0 {
		if t.Kind == hir.KindList && !elem.IsUnknown() {
			return val{code: "Vec::<" + g.rustType(elem) + ">::new()", t: t}
		}
		return val{code: "Vec::new()", t: t}
	}
	parts := make([]string, len(l.Elts))
	for i, e := range l.Elts {
		parts[i] = g.exprAs(e, elem)
	}
	return val{code: "vec![" + strings.Join(parts, ", ") + "]", t: t}
}

func (g *generator) setLit(l *hir.SetLit) val {
	t := g.typeOf(l)
	g.use("std::collections::HashSet")
	elem := t.Elem()
	if t.Kind != hir.KindSet {
		elem = hir.Unknown
	}
	parts := make([]string, len(l.Elts))
	for i, e := range l.Elts {
		parts[i] = g.exprAs(e, elem)
	}
	return val{code: "HashSet::from([" + strings.Join(parts, ", ") + "])", t: t}
}

func (g *generator) tupleLit(l *hir.TupleLit) val {
	t := g.typeOf(l)
	parts := make([]string, len(l.Elts))
	for i, e := range l.Elts {
		et := hir.Unknown
		if t.Kind == hir.KindTuple && i < len(t.Elems) {
			et = t.Elems[i]
		} else {
			et = g.typeOf(e)
		}
		parts[i] = g.exprAs(e, et)
	}
	if len(parts) == 1 {
		return val{code: "(" + parts[0] + ",)", t: t}
	}
	return val{code: "(" + strings.Join(parts, ", ") + ")", t: t}
}

func (g *generator) dictLit(d *hir.DictLit) val { return g.dictOf(d, g.typeOf(d)) }

func (g *generator) dictOf(d *hir.DictLit, t hir.Type) val {
	g.use("std::collections::HashMap")
	kt, vt := hir.Unknown, hir.Unknown
	if t.Kind == hir.KindDict {
		kt, vt = t.KeyType(), t.ValueType()
	}
	if kt.IsUnknown() {
		kt = hir.Str
	}
	if t.Kind != hir.KindDict || t.KeyType().IsUnknown() {
		t = hir.DictOf(kt, vt)
	}
	spread := false
	for _, k := range d.Keys {
		if k == nil {
			spread = true
		}
	}
	if !spread {
		if len(d.Keys) == 0 {
			return val{code: "HashMap::new()", t: t}
		}
		parts := make([]string, len(d.Keys))
		for i := range d.Keys {
			parts[i] = "(" + g.exprAs(d.Keys[i], kt) + ", " + g.exprAs(d.Values[i], vt) + ")"
		}
		return val{code: "HashMap::from([" + strings.Join(parts, ", ") + "])", t: t}
	}
	b := rust.NewBlock(&rust.Let{Mut: true, Pattern: "__m", Type: g.rustType(t), Value: rust.R("HashMap::new()")})
	for i := range d.Keys {
		if d.Keys[i] == nil {
			b.Add(&rust.Semi{X: rust.R("__m.extend(" + g.own(g.expr(d.Values[i])) + ")")})
			continue
		}
		b.Add(&rust.Semi{X: rust.R("__m.insert(" + g.exprAs(d.Keys[i], kt) + ", " + g.exprAs(d.Values[i], vt) + ")")})
	}
	b.Add(&rust.ExprStmt{X: rust.R("__m")})
	return val{code: rust.ExprString(b), t: t}
}

// ====== Conditional, walrus, lambda ======

func (g *generator) ifExpr(e *hir.IfExpr, t hir.Type) val {
	cond := g.cond(e.Cond)
	if t.IsUnknown() {
		t = g.typeOf(e.Then)
	}
	then := g.exprAs(e.Then, t)
	els := g.exprAs(e.Else, t)
	return val{code: "if " + cond + " { " + then + " } else { " + els + " }", t: t}
}

// walrus binds the target ahead of the enclosing statement and reads it
// back.
func (g *generator) walrus(w *hir.Walrus) val {
	ctx := g.fn
	t := g.typeOf(w)
	if t.IsUnknown() {
		t = g.typeOf(w.Value)
	}
	code := g.exprAs(w.Value, t)
	name := Sanitize(w.Target.ID)
	d := ctx.decls[w.Target.ID]
	if d != nil && (d.hoist || d.declared >= 0) {
		ctx.pre = append(ctx.pre, &rust.Semi{X: rust.R(name + " = " + code)})
	} else {
		ctx.pre = append(ctx.pre, &rust.Let{Mut: true, Pattern: name, Type: g.rustType(t), Value: rust.R(code)})
		if d != nil {
			d.declared = g.info.Versions[w.Target]
		}
	}
	return val{code: name, t: t, place: true}
}

// lambda renders a closure. Parameters bind by value unless refArgs is
// set, in which case they receive references.
func (g *generator) lambda(l *hir.Lambda, params []hir.Type, refArgs bool) val {
	ctx := g.fn
	ctx.push()
	ctx.closure++
	defer func() {
		ctx.closure--
		ctx.pop()
	}()
	parts := make([]string, len(l.Params))
	for i, p := range l.Params {
		t := hir.Unknown
		if i < len(params) {
			t = params[i]
		}
		name := Sanitize(p)
		b := binding{code: name, t: t, owned: true}
		ty := g.rustType(t)
		if refArgs {
			b.ref = refShared
			ty = "&" + ty
		}
		ctx.bind(p, b)
		if t.Kind == hir.KindVar {
			parts[i] = name
			continue
		}
		parts[i] = name + ": " + ty
	}
	lt := g.typeOf(l)
	body := g.expr(l.Body)
	code := body.code
	if lt.Kind == hir.KindCallable && !lt.Result().IsUnknown() && lt.Result().Kind != hir.KindNone {
		code = g.coerce(body, lt.Result())
	} else if body.ref != refNone || body.place {
		code = g.own(body)
	}
	return val{code: "|" + strings.Join(parts, ", ") + "| " + code, t: lt, fn: true}
}
