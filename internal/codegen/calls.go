package codegen

import (
	"strings"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// ====== Calls ======

func (g *generator) call(c *hir.Call) val {
	t := g.typeOf(c)
	if sig, ok := g.info.Callees[c]; ok && sig.Func != nil {
		f := sig.Func
		if f.Name == "__init__" && f.Class != "" {
			if cl := g.classes[f.Class]; cl != nil {
				return val{code: g.construct(cl, c, c.Args, c.Keywords), t: hir.NamedOf(cl.Name)}
			}
		}
		name := Sanitize(f.Name)
		if g.funcs[f.Name] == f {
			name = g.fnName(f.Name)
		}
		code := name + "(" + strings.Join(g.userArgs(f, c.Args, c.Keywords), ", ") + ")"
		return g.userResult(code, c, sig)
	}
	if n, ok := c.Func.(*hir.Name); ok {
		if cl, ok := g.classes[n.ID]; ok && !cl.IsException {
			return val{code: g.construct(cl, c, c.Args, c.Keywords), t: hir.NamedOf(cl.Name)}
		}
		if g.isException(n.ID) {
			return val{code: g.newError(n.ID, c.Args), t: hir.NamedOf(n.ID)}
		}
		if n.ID == "super" {
			g.unsupported(c.Span, "super() is only supported as a method receiver")
			return val{code: "self", t: t}
		}
	}
	if rc, ok := g.info.Recipes[c]; ok {
		return g.recipeCall(rc, c, nil, c.Args, c.Keywords, t)
	}
	fv := g.expr(c.Func)
	ft := fv.t
	if ft.Kind == hir.KindNamed && ft.Name == stdlib.TypeType && len(ft.Elems) == 1 {
		if cl := g.classOf(ft.Elems[0]); cl != nil {
			return val{code: g.construct(cl, c, c.Args, c.Keywords), t: ft.Elems[0]}
		}
	}
	params := ft.Params()
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		pt := hir.Unknown
		if i < len(params) {
			pt = params[i]
		}
		args[i] = g.exprAs(a, pt)
	}
	if ft.Kind != hir.KindCallable {
		g.warnf(diagnostic.CodeUnmapped, c.Span, "no mapping for call of %s", hir.Print(c.Func))
	}
	res := t
	if ft.Kind == hir.KindCallable {
		res = ft.Result()
	}
	return val{code: atomic(fv.code) + "(" + strings.Join(args, ", ") + ")", t: res}
}

// newError builds an exception value.
func (g *generator) newError(kind string, args []hir.Expr) string {
	g.helper("PyError")
	g.raised[kind] = true
	msg := "String::new()"
	if len(args) > 0 {
		msg = g.strOf(g.expr(args[0]))
	}
	return "PyError::new(" + rustString(kind) + ", " + msg + ")"
}

// userResult finishes a call of a module function or method.
func (g *generator) userResult(code string, node hir.Node, sig *types.Signature) val {
	f := sig.Func
	v := val{code: code, t: sig.Ret}
	if f.Props.Generator {
		v.iter = true
		v.t = hir.NamedOf(stdlib.TypeIter, sig.Yield)
	}
	if p := g.plan.Of(f); p != nil && p.ReturnsBorrow && !f.Props.Generator && f.Name != "__enter__" {
		v.ref = refShared
	}
	if sig.Fallible {
		v.code = g.propagate(code, node, sig.ErrorType, "")
	}
	return v
}

// userArgs matches call arguments to the parameters of f and renders
// them in parameter order. Missing arguments take the declared default.
func (g *generator) userArgs(f *hir.Function, args []hir.Expr, kws []hir.Keyword) []string {
	sig := g.sigOf(f)
	slots := make([]string, len(f.Params))
	vararg, kwarg := -1, -1
	for i, p := range f.Params {
		if p.IsVararg {
			vararg = i
		}
		if p.IsKwarg {
			kwarg = i
		}
	}
	paramT := func(i int) hir.Type {
		if i < len(sig.Params) {
			return sig.Params[i]
		}
		return hir.Unknown
	}
	var rest []string
	spread := false
	pos := 0
	for _, a := range args {
		for pos < len(f.Params) && (f.Params[pos].KeywordOnly || f.Params[pos].IsKwarg) && pos != vararg {
			pos++
		}
		if star, ok := a.(*hir.Starred); ok && vararg >= 0 && pos >= vararg {
			slots[vararg] = g.coerce(g.expr(star.Value), paramT(vararg))
			spread = true
			continue
		}
		switch {
		case pos == vararg:
			rest = append(rest, g.exprAs(a, stdlib.ElementOf(paramT(vararg))))
		case pos < len(f.Params):
			slots[pos] = g.passArg(f, pos, a)
			pos++
		default:
			g.unsupported(a.GetSpan(), "too many arguments in call of %s", f.Name)
		}
	}
	var extra []string
	for _, k := range kws {
		if k.Name == "" {
			if kwarg >= 0 {
				slots[kwarg] = g.coerce(g.expr(k.Value), paramT(kwarg))
				continue
			}
			g.unsupported(k.Value.GetSpan(), "** arguments need a **kwargs parameter")
			continue
		}
		found := false
		for i, p := range f.Params {
			if p.Name == k.Name && !p.IsVararg && !p.IsKwarg {
				slots[i] = g.passArg(f, i, k.Value)
				found = true
				break
			}
		}
		if !found && kwarg >= 0 {
			vt := paramT(kwarg).ValueType()
			extra = append(extra, "(String::from("+rustString(k.Name)+"), "+g.exprAs(k.Value, vt)+")")
			continue
		}
		if !found {
			g.unsupported(k.Value.GetSpan(), "%s has no parameter %s", f.Name, k.Name)
		}
	}
	if vararg >= 0 && !spread {
		if len(rest) == 0 {
			slots[vararg] = "Vec::<" + g.rustType(stdlib.ElementOf(paramT(vararg))) + ">::new()"
		} else {
			slots[vararg] = "vec![" + strings.Join(rest, ", ") + "]"
		}
	}
	if kwarg >= 0 && slots[kwarg] == "" {
		g.use("std::collections::HashMap")
		if len(extra) == 0 {
			slots[kwarg] = "HashMap::new()"
		} else {
			slots[kwarg] = "HashMap::from([" + strings.Join(extra, ", ") + "])"
		}
	}
	for i, p := range f.Params {
		if slots[i] != "" {
			continue
		}
		if p.Default != nil {
			slots[i] = g.passArg(f, i, p.Default)
			continue
		}
		slots[i] = "Default::default()"
	}
	return slots
}

// passArg renders argument e for parameter i of f.
func (g *generator) passArg(f *hir.Function, i int, e hir.Expr) string {
	sig := g.sigOf(f)
	t := hir.Unknown
	if i < len(sig.Params) {
		t = sig.Params[i]
	}
	if g.closures[f] || i >= len(f.Params) {
		return g.exprAs(e, t)
	}
	pp := g.paramPlan(f, i)
	if l, ok := e.(*hir.Lambda); ok && t.Kind == hir.KindCallable {
		return g.lambda(l, t.Params(), false).code
	}
	if !byRef(t, pp.Mode) {
		return g.exprAs(e, t)
	}
	switch x := e.(type) {
	case *hir.ListLit:
		if len(x.Elts) == 0 {
			return g.refOf(g.exprAs(e, t), pp.Mode)
		}
	case *hir.DictLit:
		if len(x.Keys) == 0 {
			return g.refOf(g.exprAs(e, t), pp.Mode)
		}
	case *hir.Lit:
		if x.Kind == hir.LitNone {
			return g.refOf(g.exprAs(e, t), pp.Mode)
		}
	}
	return g.argOf(f, i, g.expr(e))
}

func (g *generator) refOf(code string, mode ownership.Mode) string {
	if mode == ownership.BorrowMut {
		return "&mut " + atomic(code)
	}
	return "&" + atomic(code)
}

// argOf renders an already evaluated value for parameter i of f.
func (g *generator) argOf(f *hir.Function, i int, v val) string {
	sig := g.sigOf(f)
	t := hir.Unknown
	if i < len(sig.Params) {
		t = sig.Params[i]
	}
	if g.closures[f] || i >= len(f.Params) {
		return g.coerce(v, t)
	}
	pp := g.paramPlan(f, i)
	if t.Kind == hir.KindCallable {
		if v.fn || v.ref != refNone {
			return v.code
		}
		return "&" + atomic(v.code)
	}
	if !byRef(t, pp.Mode) {
		return g.coerce(v, t)
	}
	if pp.Mode == ownership.BorrowMut {
		return g.borrowMut(v)
	}
	switch {
	case t.Kind == hir.KindString:
		return g.strView(v)
	case v.iter || v.slice:
		return "&" + atomic(g.coerce(v, t))
	case !t.IsUnknown() && !v.t.Equal(t) && !g.isTypeParam(t):
		return "&" + atomic(g.coerce(v, t))
	}
	return g.borrow(v)
}

// ====== Method calls ======

func (g *generator) methodCall(m *hir.MethodCall) val {
	t := g.typeOf(m)
	if isSuper(m.Recv) {
		return g.superCall(m)
	}
	if sig, ok := g.info.Callees[m]; ok && sig.Func != nil {
		f := sig.Func
		args := strings.Join(g.userArgs(f, m.Args, m.Keywords), ", ")
		if f.Static || f.ClassMethod {
			owner := typeName(f.Class)
			switch r := m.Recv.(type) {
			case *hir.Name:
				if r.ID == "cls" || r.ID == "self" {
					owner = "Self"
				} else if _, ok := g.classes[r.ID]; ok {
					owner = typeName(r.ID)
				}
			}
			return g.userResult(owner+"::"+Sanitize(f.Name)+"("+args+")", m, sig)
		}
		recv := g.expr(m.Recv)
		return g.userResult(g.receiver(f, recv)+"."+Sanitize(f.Name)+"("+args+")", m, sig)
	}
	if rc, ok := g.info.Recipes[m]; ok {
		recv := g.expr(m.Recv)
		return g.recipeCall(rc, m, &recv, m.Args, m.Keywords, t)
	}
	recv := g.expr(m.Recv)
	if cl := g.classOf(recv.t); cl != nil {
		for _, f := range g.fieldsOf(cl) {
			if f.name == m.Method && f.typ.Kind == hir.KindCallable {
				params := f.typ.Params()
				args := make([]string, len(m.Args))
				for i, a := range m.Args {
					pt := hir.Unknown
					if i < len(params) {
						pt = params[i]
					}
					args[i] = g.exprAs(a, pt)
				}
				return val{code: "(" + atomic(recv.code) + "." + Sanitize(f.name) + ")(" + strings.Join(args, ", ") + ")", t: f.typ.Result()}
			}
		}
	}
	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = g.own(g.expr(a))
	}
	if isValue(recv.t) {
		g.helper("PyValue")
		g.warnf(diagnostic.CodeUnmapped, m.Span, "method %s called on a dynamically typed value", m.Method)
	} else {
		g.warnf(diagnostic.CodeUnmapped, m.Span, "no mapping for method %s of %s", m.Method, recv.t)
	}
	return val{code: atomic(recv.code) + "." + Sanitize(m.Method) + "(" + strings.Join(args, ", ") + ")", t: t}
}

// superCall lowers super().name(args) outside a constructor. When the
// class being emitted overrides name, the base version is emitted under
// a private alias.
func (g *generator) superCall(m *hir.MethodCall) val {
	ctx := g.fn
	base := g.superOf(ctx.class)
	var f *hir.Function
	if base != nil {
		f = g.findMethod(base, m.Method)
	}
	if f == nil {
		g.unsupported(m.Span, "super().%s has no module base to resolve against", m.Method)
		return val{code: "()", t: hir.None}
	}
	name := Sanitize(f.Name)
	if g.impl != nil && g.findMethod(g.impl, m.Method) != f {
		name = superName(f)
		g.superNeeds[g.impl.Name] = append(g.superNeeds[g.impl.Name], f)
	}
	code := ctx.selfCode + "." + name + "(" + strings.Join(g.userArgs(f, m.Args, m.Keywords), ", ") + ")"
	return g.userResult(code, m, g.sigOf(f))
}

// ====== Recipes ======

// slotType is the element type a container method argument must have.
// ok is false when the argument does not land in the container; an
// unknown element type with ok set means the slot holds PyValue.
func slotType(recv hir.Type, method string, i int) (t hir.Type, ok bool) {
	switch recv.Kind {
	case hir.KindList:
		if (method == "append" && i == 0) || (method == "insert" && i == 1) {
			return recv.Elem(), true
		}
		if method == "extend" && i == 0 {
			return recv, true
		}
	case hir.KindSet:
		if method == "add" && i == 0 {
			return recv.Elem(), true
		}
	case hir.KindDict:
		switch method {
		case "setdefault", "get", "pop":
			if i == 1 {
				return recv.ValueType(), true
			}
		}
	case hir.KindNamed:
		if recv.Name == stdlib.TypeDeque && (method == "append" || method == "appendleft") && i == 0 {
			return elemOr(recv), true
		}
	}
	return hir.Unknown, false
}

// recipeCall expands a stdlib recipe. recv is nil for plain calls.
func (g *generator) recipeCall(rc stdlib.Recipe, node hir.Node, recv *val, args []hir.Expr, kws []hir.Keyword, t hir.Type) val {
	g.recipe(rc)
	if rc.Special != "" {
		return g.special(rc, node, recv, args, kws, t)
	}
	slots := append([]hir.Expr(nil), args...)
	for _, k := range kws {
		idx := -1
		for i, name := range rc.Keywords {
			if name == k.Name && name != "" {
				idx = i
			}
		}
		if idx < 0 {
			g.warnf(diagnostic.CodeUnmapped, k.Value.GetSpan(), "keyword %s is not mapped for %s", k.Name, rc.Path)
			continue
		}
		for len(slots) <= idx {
			slots = append(slots, nil)
		}
		slots[idx] = k.Value
	}
	recvT := hir.Unknown
	if recv != nil {
		recvT = recv.t
	}
	call := stdlib.Call{Defaults: rc.Defaults, RecvIsString: recvT.Kind == hir.KindString}
	for i, e := range slots {
		if e == nil {
			code := "Default::default()"
			if i < len(rc.Defaults) && rc.Defaults[i] != "" {
				code = rc.Defaults[i]
			}
			call.Args = append(call.Args, stdlib.Arg{Code: code, Own: code, Ref: code, Str: code})
			continue
		}
		v := g.expr(e)
		a := g.arg(v)
		want := hir.Unknown
		if i < len(rc.Params) {
			want = rc.Params[i]
		}
		slot := false
		if recv != nil {
			if st, ok := slotType(recvT, rc.Path, i); ok {
				want, slot = st, true
			}
		}
		if (slot || !want.IsUnknown()) && !v.t.Equal(want) {
			a.Own = g.exprAs(e, want)
			if want.IsCopy() {
				a.Code = a.Own
			}
		}
		if v.iter {
			a.Code = atomic(a.Own)
		}
		call.Args = append(call.Args, a)
	}
	if recv != nil {
		r := g.arg(*recv)
		if recv.iter {
			r.Code = atomic(g.own(*recv))
		}
		if rc.Mutates && recv.ref == refShared {
			g.warnf(diagnostic.CodeTypeMismatch, node.GetSpan(), "%s mutates a value that is only borrowed", rc.Path)
		}
		call.Recv = &r
	}
	code := stdlib.Expand(rc.Template, call)
	v := val{code: code, t: t}
	if isIter(t) {
		v.iter = true
	}
	if rc.Fallible {
		switch rc.OnError {
		case stdlib.Sentinel:
			v.code = atomic(code) + ".unwrap_or(" + rc.Sentinel + ")"
		default:
			v.code = g.propagate(code, node, "", rc.ErrorKind)
		}
	}
	return v
}

// ====== Error propagation ======

// propagate handles the Result of a fallible call. errType is the
// callee's error type, empty for library errors, which are converted to
// exceptions of kind. Inside a try body the error breaks out to the
// handlers; in a fallible function it is returned; otherwise it panics.
func (g *generator) propagate(code string, node hir.Node, errType, kind string) string {
	ctx := g.fn
	if kind == "" {
		if e, ok := node.(hir.Expr); ok {
			kind = g.info.Fallible[e]
		}
		if kind == "" {
			kind = "Exception"
		}
	}
	toPyError := func(e string) string {
		switch errType {
		case types.ErrorTypePyError:
			return e
		case types.ErrorTypeString:
			g.raised[kind] = true
			return "PyError::new(" + rustString(kind) + ", " + e + ")"
		}
		g.raised[kind] = true
		return "PyError::new(" + rustString(kind) + ", " + e + ".to_string())"
	}
	if label := ctx.tryLabel(); label != "" || ctx.errType != "" && ctx.closure == 0 && len(ctx.finals) > 0 {
		g.helper("PyError")
		miss := rust.NewBlock()
		g.throw(toPyError("e"), miss)
		return "match " + code + " { Ok(__ok) => __ok, Err(e) => " + rust.ExprString(miss) + " }"
	}
	if ctx.errType != "" && ctx.closure == 0 {
		var conv string
		switch {
		case ctx.errType == errType:
			return atomic(code) + "?"
		case ctx.errType == types.ErrorTypeString && errType == types.ErrorTypePyError:
			conv = "e.message"
		case ctx.errType == types.ErrorTypeString:
			conv = "e.to_string()"
		default:
			g.helper("PyError")
			conv = toPyError("e")
		}
		return atomic(code) + ".map_err(|e| " + conv + ")?"
	}
	return atomic(code) + `.unwrap_or_else(|e| panic!("{}", e))`
}
