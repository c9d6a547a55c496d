package codegen

import (
	"strings"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// ====== Functions ======

// paramPlan is the ownership decision for parameter i of f, after the
// caller's overrides.
func (g *generator) paramPlan(f *hir.Function, i int) ownership.ParamPlan {
	p := f.Params[i]
	pp, ok := g.plan.Of(f).Param(p.Name)
	if !ok {
		pp = ownership.ParamPlan{Name: p.Name, Mode: ownership.BorrowShared}
	}
	if g.forceClone[f.QualifiedName()+"."+p.Name] && pp.Mode != ownership.Moved {
		pp.Mode = ownership.Cloned
		pp.Lifetime = ""
	}
	if g.opts.CloneStrings && pp.Mode == ownership.BorrowShared && pp.Lifetime == "" {
		if sig := g.sigOf(f); i < len(sig.Params) && sig.Params[i].Kind == hir.KindString {
			pp.Mode = ownership.Moved
		}
	}
	if p.IsVararg || p.IsKwarg {
		pp.Mode = ownership.Moved
	}
	return pp
}

func (g *generator) newCtx(f *hir.Function, cl *hir.Class) *funcCtx {
	sig := g.sigOf(f)
	ctx := &funcCtx{
		parent:    g.fn,
		fn:        f,
		class:     cl,
		sig:       sig,
		plan:      g.plan.Of(f),
		scope:     g.info.ScopeOf(f),
		names:     &namer{},
		decls:     map[string]*decl{},
		hoists:    map[blockKey][]string{},
		retType:   sig.Ret,
		generator: f.Props.Generator,
		selfCode:  "self",
	}
	if sig.Fallible {
		ctx.errType = sig.ErrorType
		if ctx.errType == "" {
			ctx.errType = types.ErrorTypePyError
		}
	}
	if ctx.plan != nil {
		switch ctx.plan.SelfMode {
		case ownership.SelfRef:
			ctx.selfRef = refShared
		case ownership.SelfMut:
			ctx.selfRef = refMut
		}
	}
	return ctx
}

// function emits a module function or a method of cl.
func (g *generator) function(f *hir.Function, cl *hir.Class) rust.Item {
	return g.fnItem(f, cl, g.itemName(f))
}

func (g *generator) itemName(f *hir.Function) string {
	if f.Class == "" {
		return g.fnName(f.Name)
	}
	return Sanitize(f.Name)
}

func (g *generator) fnItem(f *hir.Function, cl *hir.Class, name string) *rust.Fn {
	prev, prevTP := g.fn, g.typeParams
	ctx := g.newCtx(f, cl)
	ctx.parent = nil
	g.fn = ctx
	defer func() { g.fn, g.typeParams = prev, prevTP }()

	sig := ctx.sig
	out := &rust.Fn{Name: name, Doc: docLines(f.Doc)}
	g.typeParams = map[string]bool{}
	for k := range prevTP {
		g.typeParams[k] = true
	}
	if ctx.plan != nil {
		out.Generics = append(out.Generics, ctx.plan.Lifetimes...)
	}
	for _, tp := range sig.TypeParams {
		g.typeParams[tp.Name] = true
		if len(tp.Bounds) > 0 {
			out.Generics = append(out.Generics, tp.Name+": "+strings.Join(tp.Bounds, " + "))
			continue
		}
		out.Generics = append(out.Generics, tp.Name)
	}
	if f.IsMethod() && ctx.plan != nil {
		switch ctx.plan.SelfMode {
		case ownership.SelfRef:
			out.Params = append(out.Params, rust.Param{Name: "self", Type: "&self"})
		case ownership.SelfMut:
			out.Params = append(out.Params, rust.Param{Name: "self", Type: "&mut self"})
		case ownership.SelfValue:
			out.Params = append(out.Params, rust.Param{Name: "self", Type: "mut self"})
		}
	} else if f.IsMethod() {
		out.Params = append(out.Params, rust.Param{Name: "self", Type: "&self"})
		ctx.selfRef = refShared
	}
	body := rust.NewBlock()
	out.Params = append(out.Params, g.params(f, body)...)
	out.Ret = g.retType(f)
	out.Body = g.body(f.Body, body)
	return out
}

// params spells the parameters of f and adds the prologue that clones
// parameters received by reference but owned in the body.
func (g *generator) params(f *hir.Function, prologue *rust.Block) []rust.Param {
	sig := g.sigOf(f)
	var out []rust.Param
	for i, p := range f.Params {
		t := hir.Unknown
		if i < len(sig.Params) {
			t = sig.Params[i]
		}
		pp := g.paramPlan(f, i)
		name := Sanitize(p.Name)
		out = append(out, rust.Param{Name: name, Type: g.paramType(t, pp), Mut: pp.Mutable && !byRef(t, pp.Mode)})
		if pp.Mode == ownership.Cloned && byRef(t, pp.Mode) {
			v := val{code: name, t: t, ref: refShared}
			prologue.Add(&rust.Let{Mut: true, Pattern: name, Value: rust.R(g.own(v))})
		}
	}
	return out
}

// retType spells the result of f.
func (g *generator) retType(f *hir.Function) string {
	ctx := g.fn
	sig := ctx.sig
	var ret string
	switch {
	case ctx.generator:
		ret = "impl Iterator<Item = " + g.rustType(sig.Yield) + ">"
	case f.Name == "__enter__" && f.IsMethod() && ctx.plan != nil && ctx.plan.ReturnsBorrow:
		ret = "&mut Self"
	case ctx.plan != nil && ctx.plan.ReturnsBorrow && len(ctx.plan.Lifetimes) > 0:
		lt := ctx.plan.Lifetimes[0]
		if sig.Ret.Kind == hir.KindString {
			ret = "&" + lt + " str"
		} else {
			ret = "&" + lt + " " + g.rustType(sig.Ret)
		}
	case sig.Ret.Kind == hir.KindNone:
	default:
		ret = g.rustType(sig.Ret)
	}
	if ctx.errType == "" {
		return ret
	}
	if ret == "" {
		ret = "()"
	}
	if ctx.errType == types.ErrorTypePyError {
		g.helper("PyError")
	}
	return "Result<" + ret + ", " + ctx.errType + ">"
}

func (g *generator) returnsBorrow() bool {
	ctx := g.fn
	return ctx.plan != nil && ctx.plan.ReturnsBorrow && !ctx.generator
}

// body emits a function body into out, adding the implicit result when
// control can fall off the end.
func (g *generator) body(b hir.Block, out *rust.Block) *rust.Block {
	ctx := g.fn
	root := blockKey{ctx.fn, slotBody}
	if ctx.fn == nil {
		root = blockKey{g.mod, slotBody}
	}
	g.planDecls(root, b)
	if ctx.generator {
		out.Add(&rust.Let{Mut: true, Pattern: "__gen", Type: "Vec<" + g.rustType(ctx.sig.Yield) + ">", Value: rust.R("Vec::new()")})
	}
	b = dropDocstring(b)
	var tail *hir.Return
	if n := len(b); n > 0 && !ctx.generator && ctx.ctor == ctorNone {
		if r, ok := b[n-1].(*hir.Return); ok {
			tail = r
			b = b[:n-1]
		}
	}
	ctx.push()
	defer ctx.pop()
	g.stmts(root, b, out)
	switch {
	case tail != nil:
		g.flush(out)
		code := g.returnValue(tail.Value)
		g.flush(out)
		out.Add(&rust.ExprStmt{X: rust.R(code)})
	case !hir.Terminates(b):
		if end := g.implicitEnd(); end != "" {
			out.Add(&rust.ExprStmt{X: rust.R(end)})
		}
	}
	return out
}

// implicitEnd is the value of falling off the end of the current body.
func (g *generator) implicitEnd() string {
	ctx := g.fn
	var v string
	switch {
	case ctx.generator:
		return "__gen.into_iter()"
	case ctx.ctor == ctorDefault:
		v = "this"
	case ctx.ctor == ctorFields:
		v = g.ctorLiteral()
	case ctx.retType.Kind == hir.KindNone || ctx.fn == nil:
		v = "()"
	case ctx.retType.Kind == hir.KindOptional:
		v = "None"
	case ctx.retType.IsUnknown():
		g.helper("PyValue")
		v = "PyValue::None"
	default:
		return "unreachable!()"
	}
	if ctx.errType != "" {
		return "Ok(" + v + ")"
	}
	if v == "()" {
		return ""
	}
	return v
}

// returnValue renders the result expression of `return value`.
func (g *generator) returnValue(value hir.Expr) string {
	ctx := g.fn
	var code string
	switch {
	case ctx.generator:
		return "__gen.into_iter()"
	case ctx.ctor != ctorNone:
		code = g.implicitEnd()
		return code
	case value == nil:
		switch {
		case ctx.retType.Kind == hir.KindOptional:
			code = "None"
		case ctx.retType.IsUnknown():
			g.helper("PyValue")
			code = "PyValue::None"
		default:
			code = "()"
		}
	case ctx.fn != nil && ctx.fn.Name == "__enter__" && g.returnsBorrow():
		code = "self"
	case g.returnsBorrow():
		v := g.expr(value)
		if v.t.Kind == hir.KindString && v.ref == refNone && !v.lit {
			code = "&" + atomic(v.code)
		} else {
			code = g.borrow(v)
		}
	default:
		code = g.exprAs(value, ctx.retType)
	}
	if ctx.errType != "" {
		return "Ok(" + code + ")"
	}
	return code
}

func dropDocstring(b hir.Block) hir.Block {
	if len(b) > 0 {
		if _, ok := b[0].(*hir.Docstring); ok {
			return b[1:]
		}
	}
	return b
}

func docLines(doc string) []string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil
	}
	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// ====== Nested functions ======

// nested emits a function defined inside another body. One that reads
// no enclosing local becomes a nested fn item; others become closures.
func (g *generator) nested(f *hir.Function, out *rust.Block) {
	outer := g.fn
	if !g.captures(f) {
		item := g.fnItem(f, nil, Sanitize(f.Name))
		out.Add(&rust.ExprStmt{X: rust.R(rust.PrintItem(item))})
		return
	}
	g.closures[f] = true
	ctx := g.newCtx(f, outer.class)
	ctx.parent = outer
	ctx.selfCode, ctx.selfRef = outer.selfCode, outer.selfRef
	g.fn = ctx
	var params []string
	for i, p := range f.Params {
		t := hir.Unknown
		if i < len(ctx.sig.Params) {
			t = ctx.sig.Params[i]
		}
		params = append(params, Sanitize(p.Name)+": "+g.rustType(t))
	}
	ret := g.retType(f)
	body := g.body(f.Body, rust.NewBlock())
	g.fn = outer
	head := "|" + strings.Join(params, ", ") + "|"
	if ret != "" {
		head += " -> " + ret
	}
	out.Add(&rust.Let{Mut: g.mutatesCaptures(f), Pattern: Sanitize(f.Name), Value: rust.R(head + " " + rust.ExprString(body))})
}

// captures reports whether f reads a local or parameter of an enclosing
// body.
func (g *generator) captures(f *hir.Function) bool {
	own := g.info.ScopeOf(f)
	params := map[string]bool{}
	for _, p := range f.Params {
		params[p.Name] = true
	}
	bound := compBound(f.Body)
	return hir.BlockContains(f.Body, func(n hir.Node) bool {
		ref, ok := n.(*hir.Name)
		if !ok || params[ref.ID] || bound[ref.ID] || own.Lookup(ref.ID) != nil {
			return false
		}
		for c := g.fn; c != nil; c = c.parent {
			if _, ok := g.localName(c, ref); ok {
				return true
			}
			if _, ok := c.lookup(ref.ID, false); ok {
				return true
			}
		}
		return false
	})
}

// mutatesCaptures reports whether a closure body mutates what it captures.
func (g *generator) mutatesCaptures(f *hir.Function) bool {
	return hir.BlockContains(f.Body, func(n hir.Node) bool {
		switch n := n.(type) {
		case *hir.MethodCall:
			return isNameExpr(n.Recv) && g.mod.Function(f.Name) == nil && g.isMutatingCall(n)
		case *hir.Assign:
			_, isName := n.Target.(*hir.Name)
			return !isName
		case *hir.AugAssign:
			_, isName := n.Target.(*hir.Name)
			return !isName
		}
		return false
	})
}

func isNameExpr(e hir.Expr) bool {
	_, ok := e.(*hir.Name)
	return ok
}

func (g *generator) isMutatingCall(n *hir.MethodCall) bool {
	if rc, ok := g.info.Recipes[n]; ok {
		return rc.Mutates
	}
	if sig, ok := g.info.Callees[n]; ok {
		if p := g.plan.Of(sig.Func); p != nil {
			return p.SelfMode == ownership.SelfMut
		}
	}
	return false
}

// ====== Entry point ======

// mainItems emits the top-level statements as the program entry point.
func (g *generator) mainItems() []rust.Item {
	ctx := &funcCtx{
		scope:    g.info.Main,
		plan:     g.plan.Of(nil),
		names:    &namer{},
		decls:    map[string]*decl{},
		hoists:   map[blockKey][]string{},
		retType:  hir.None,
		selfCode: "self",
		main:     true,
	}
	if g.info.MainFallible {
		ctx.errType = types.ErrorTypePyError
		g.helper("PyError")
	}
	g.fn = ctx
	defer func() { g.fn = nil }()
	body := g.body(g.mod.Main, rust.NewBlock())
	if !g.info.MainFallible {
		return []rust.Item{&rust.Fn{Name: "main", Body: body}}
	}
	return []rust.Item{
		&rust.Fn{Name: "py_main", Ret: "Result<(), PyError>", Body: body},
		g.mainWrapper("py_main"),
	}
}

// mainWrapper reports an escaping error the way the interpreter would and
// exits with status 1.
func (g *generator) mainWrapper(inner string) rust.Item {
	g.helper("PyError")
	body := rust.NewBlock(
		&rust.ExprStmt{X: &rust.IfLet{
			Pattern: "Err(e)",
			Value:   rust.R(inner + "()"),
			Then: rust.NewBlock(
				&rust.Semi{X: rust.R(`eprintln!("{}: {}", e.kind, e.message)`)},
				&rust.Semi{X: rust.R("std::process::exit(1)")},
			),
		}},
	)
	return &rust.Fn{Name: "main", Body: body}
}
