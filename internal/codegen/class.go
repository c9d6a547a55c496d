package codegen

import (
	"strings"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// ====== Classes ======

// class emits the struct of cl, its inherent impl and the trait impls its
// dunder methods ask for.
func (g *generator) class(cl *hir.Class) []rust.Item {
	prevImpl := g.impl
	g.impl = cl
	defer func() { g.impl = prevImpl }()

	name := typeName(cl.Name)
	tr := g.classTraits(cl, nil)
	userEq := g.findMethod(cl, "__eq__") != nil
	if userEq {
		tr.eq = false
	}
	st := &rust.Struct{Doc: docLines(cl.Doc), Derives: derives(tr), Name: name}
	for _, f := range g.fieldsOf(cl) {
		st.Fields = append(st.Fields, rust.Field{Name: Sanitize(f.name), Type: g.rustType(f.typ)})
	}

	impl := &rust.Impl{Type: name}
	impl.Items = append(impl.Items, g.constructor(cl))
	emitted := map[string]bool{"__init__": true}
	for _, m := range cl.Methods {
		if emitted[m.Name] {
			continue
		}
		emitted[m.Name] = true
		impl.Items = append(impl.Items, g.fnItem(m, cl, Sanitize(m.Name)))
	}
	for base, depth := g.superOf(cl), 0; base != nil && depth < 16; base, depth = g.superOf(base), depth+1 {
		for _, m := range base.Methods {
			if emitted[m.Name] {
				continue
			}
			emitted[m.Name] = true
			impl.Items = append(impl.Items, g.fnItem(m, base, Sanitize(m.Name)))
		}
	}
	// Emitting a super method can require further ones.
	done := map[*hir.Function]bool{}
	for i := 0; i < len(g.superNeeds[cl.Name]); i++ {
		m := g.superNeeds[cl.Name][i]
		if done[m] {
			continue
		}
		done[m] = true
		impl.Items = append(impl.Items, g.fnItem(m, g.classes[m.Class], superName(m)))
	}

	items := []rust.Item{st, impl}
	if m := g.strMethod(cl); m != nil {
		items = append(items, g.displayImpl(name, m))
	}
	if userEq {
		items = append(items, g.eqImpl(cl, name))
	}
	if g.findMethod(cl, "__lt__") != nil {
		items = append(items, g.ordImpl(cl, name, userEq || tr.eq))
	}
	return items
}

func superName(m *hir.Function) string {
	return "__super_" + Sanitize(m.Class) + "_" + Sanitize(m.Name)
}

func (g *generator) strMethod(cl *hir.Class) *hir.Function {
	if m := g.findMethod(cl, "__str__"); m != nil {
		return m
	}
	return g.findMethod(cl, "__repr__")
}

func (g *generator) displayImpl(name string, m *hir.Function) rust.Item {
	call := "self." + Sanitize(m.Name) + "()"
	if g.sigOf(m).Fallible {
		call += ".map_err(|_| std::fmt::Error)?"
	}
	return &rust.RawItem{Text: "impl std::fmt::Display for " + name + " {\n" +
		"    fn fmt(&self, f: &mut std::fmt::Formatter<'_>) -> std::fmt::Result {\n" +
		"        write!(f, \"{}\", " + call + ")\n    }\n}"}
}

// eqImpl routes == through a user __eq__.
func (g *generator) eqImpl(cl *hir.Class, name string) rust.Item {
	return &rust.RawItem{Text: "impl PartialEq for " + name + " {\n" +
		"    fn eq(&self, other: &Self) -> bool {\n" +
		"        self.__eq__(" + g.dunderArg(g.findMethod(cl, "__eq__")) + ")\n    }\n}"}
}

// ordImpl derives an ordering from a user __lt__.
func (g *generator) ordImpl(cl *hir.Class, name string, eq bool) rust.Item {
	lt := g.dunderArg(g.findMethod(cl, "__lt__"))
	text := "impl PartialOrd for " + name + " {\n" +
		"    fn partial_cmp(&self, other: &Self) -> Option<std::cmp::Ordering> {\n" +
		"        if self.__lt__(" + lt + ") {\n" +
		"            Some(std::cmp::Ordering::Less)\n" +
		"        } else if other.__lt__(" + strings.Replace(lt, "other", "self", 1) + ") {\n" +
		"            Some(std::cmp::Ordering::Greater)\n" +
		"        } else {\n" +
		"            Some(std::cmp::Ordering::Equal)\n" +
		"        }\n    }\n}"
	items := text
	if !eq {
		items = "impl PartialEq for " + name + " {\n" +
			"    fn eq(&self, other: &Self) -> bool {\n" +
			"        !self.__lt__(" + lt + ") && !other.__lt__(" + strings.Replace(lt, "other", "self", 1) + ")\n    }\n}\n\n" + text
	}
	return &rust.RawItem{Text: items}
}

// dunderArg passes `other` the way a binary dunder method receives it.
func (g *generator) dunderArg(m *hir.Function) string {
	if m == nil || len(m.Params) < 2 {
		return "other"
	}
	pp := g.paramPlan(m, 1)
	t := hir.Unknown
	if sig := g.sigOf(m); len(sig.Params) > 1 {
		t = sig.Params[1]
	}
	switch {
	case isValue(t):
		g.helper("PyValue")
		return "PyValue::None"
	case byRef(t, pp.Mode):
		return "other"
	}
	return "other.clone()"
}

// ====== Constructors ======

// constructor emits `new`. With a user __init__ the body runs either on
// Self::default() held in `this`, or, when some field has no default, on
// one local per field assembled into Self at the end.
func (g *generator) constructor(cl *hir.Class) *rust.Fn {
	init := g.findMethod(cl, "__init__")
	if init == nil {
		return g.fieldConstructor(cl)
	}
	prev := g.fn
	ctx := g.newCtx(init, g.classes[init.Class])
	ctx.parent = nil
	g.fn = ctx
	defer func() { g.fn = prev }()

	out := &rust.Fn{Name: "new", Doc: docLines(init.Doc)}
	body := rust.NewBlock()
	if g.classTraits(cl, nil).dflt {
		ctx.ctor = ctorDefault
		ctx.selfCode = "this"
		ctx.selfRef = refNone
		body.Add(&rust.Let{Mut: true, Pattern: "this", Value: rust.R("Self::default()")})
	} else {
		ctx.ctor = ctorFields
		ctx.fields = map[string]string{}
		for _, f := range g.fieldsOf(cl) {
			local := "__self_" + Sanitize(f.name)
			ctx.fields[f.name] = local
			if f.def != nil {
				body.Add(&rust.Let{Mut: true, Pattern: local, Type: g.rustType(f.typ), Value: rust.R(g.exprAs(f.def, f.typ))})
				continue
			}
			body.Add(&rust.Let{Mut: true, Pattern: local, Type: g.rustType(f.typ)})
		}
	}
	out.Params = g.params(init, body)
	out.Ret = "Self"
	if ctx.errType != "" {
		g.helper("PyError")
		out.Ret = "Result<Self, " + ctx.errType + ">"
	}
	out.Body = g.body(init.Body, body)
	return out
}

// ctorLiteral assembles Self from the per-field locals.
func (g *generator) ctorLiteral() string {
	var parts []string
	for _, f := range g.fieldsOf(g.impl) {
		local, ok := g.fn.fields[f.name]
		if !ok {
			parts = append(parts, Sanitize(f.name)+": Default::default()")
			continue
		}
		parts = append(parts, Sanitize(f.name)+": "+local)
	}
	if len(parts) == 0 {
		return "Self {}"
	}
	return "Self { " + strings.Join(parts, ", ") + " }"
}

// fieldConstructor emits `new` for classes without __init__. Dataclasses
// take every field; other classes start from the field defaults.
func (g *generator) fieldConstructor(cl *hir.Class) *rust.Fn {
	prev := g.fn
	g.fn = g.staticCtx()
	defer func() { g.fn = prev }()
	out := &rust.Fn{Name: "new", Ret: "Self"}
	var parts []string
	for _, f := range g.fieldsOf(cl) {
		name := Sanitize(f.name)
		switch {
		case cl.IsDataclass:
			out.Params = append(out.Params, rust.Param{Name: name, Type: g.rustType(f.typ)})
			parts = append(parts, name)
		case f.def != nil:
			parts = append(parts, name+": "+g.exprAs(f.def, f.typ))
		default:
			parts = append(parts, name+": Default::default()")
		}
	}
	lit := "Self {}"
	if len(parts) > 0 {
		lit = "Self { " + strings.Join(parts, ", ") + " }"
	}
	out.Body = rust.NewBlock(&rust.ExprStmt{X: rust.R(lit)})
	return out
}

// superInit lowers super().__init__(args) inside a constructor: the base
// is built on its own and its fields are copied over.
func (g *generator) superInit(call *hir.MethodCall, out *rust.Block) {
	ctx := g.fn
	base := g.superOf(ctx.class)
	if base == nil {
		return
	}
	tmp := ctx.names.fresh("base")
	code := g.construct(base, call, call.Args, call.Keywords)
	g.flush(out)
	out.Add(&rust.Let{Pattern: tmp, Value: rust.R(code)})
	for _, f := range g.fieldsOf(base) {
		name := Sanitize(f.name)
		target := ctx.selfCode + "." + name
		if ctx.ctor == ctorFields {
			target = ctx.fields[f.name]
		}
		out.Add(&rust.Semi{X: rust.R(target + " = " + tmp + "." + name)})
	}
}

// construct renders a call of class cl.
func (g *generator) construct(cl *hir.Class, node hir.Node, args []hir.Expr, kws []hir.Keyword) string {
	name := typeName(cl.Name)
	if init := g.findMethod(cl, "__init__"); init != nil {
		code := name + "::new(" + strings.Join(g.userArgs(init, args, kws), ", ") + ")"
		if g.sigOf(init).Fallible {
			return g.propagate(code, node, g.sigOf(init).ErrorType, "")
		}
		return code
	}
	if !cl.IsDataclass {
		for _, a := range args {
			g.expr(a)
		}
		return name + "::new()"
	}
	fields := g.fieldsOf(cl)
	slots := make([]string, len(fields))
	for i, a := range args {
		if i < len(fields) {
			slots[i] = g.exprAs(a, fields[i].typ)
		}
	}
	for _, k := range kws {
		for i, f := range fields {
			if f.name == k.Name {
				slots[i] = g.exprAs(k.Value, f.typ)
			}
		}
	}
	for i, f := range fields {
		if slots[i] != "" {
			continue
		}
		if f.def != nil {
			slots[i] = g.exprAs(f.def, f.typ)
		} else {
			slots[i] = "Default::default()"
		}
	}
	return name + "::new(" + strings.Join(slots, ", ") + ")"
}

// selfMode is the receiver form of method m.
func (g *generator) selfMode(m *hir.Function) ownership.SelfMode {
	if p := g.plan.Of(m); p != nil {
		return p.SelfMode
	}
	if m.IsMethod() {
		return ownership.SelfRef
	}
	return ownership.SelfNone
}

// isProperty reports whether m is read as an attribute.
func isProperty(m *hir.Function) bool {
	for _, d := range m.Decorators {
		if d == "property" || strings.HasSuffix(d, ".getter") {
			return true
		}
	}
	return false
}

// ====== Exceptions ======

// excParents lists every exception name the program can raise or catch
// with its parent, for the generated hierarchy lookup.
func (g *generator) excParents() [][2]string {
	var out [][2]string
	for _, b := range types.BuiltinExceptions() {
		if p := g.info.ExceptionParent(b); p != "" {
			out = append(out, [2]string{b, p})
		}
	}
	for _, cl := range g.mod.Classes {
		if !cl.IsException {
			continue
		}
		parent := "Exception"
		if len(cl.Bases) > 0 {
			parent = cl.Bases[0]
		}
		out = append(out, [2]string{cl.Name, parent})
	}
	return out
}
