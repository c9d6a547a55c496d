package codegen

import (
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// iterSpec is a rendered iteration source.
type iterSpec struct {
	code string
	elem hir.Type
	// ref is set when the iterator yields references to the elements.
	ref refKind
	// parts, when set, fix the shape of each item: map entries, enumerate
	// counters and zipped sources. shape is the Rust pattern with one %s
	// per part.
	parts []loopItem
	shape string
	// seq marks a collection rather than an iterator.
	seq bool
}

// loopItem is one component of an iterated item.
type loopItem struct {
	t   hir.Type
	ref refKind
	// counter marks an enumerate index yielded as usize; offset is added
	// after conversion to i64.
	counter bool
	offset  string
}

func (s iterSpec) item() loopItem { return loopItem{t: s.elem, ref: s.ref} }

// chain renders the source as an Iterator.
func (s iterSpec) chain() string {
	if s.seq {
		return atomic(s.code) + ".into_iter()"
	}
	return atomic(s.code)
}

// iterSource renders what a for loop or comprehension iterates over. The
// loop body, when given, decides whether the source must be copied first
// because the body mutates it.
func (g *generator) iterSource(e hir.Expr, body hir.Block) iterSpec {
	switch x := e.(type) {
	case *hir.Call:
		if rc, ok := g.info.Recipes[x]; ok {
			switch rc.Special {
			case "enumerate":
				return g.enumerateSource(x, body)
			case "zip":
				return g.zipSource(x, body)
			}
		}
	case *hir.MethodCall:
		if spec, ok := g.dictView(x, body); ok {
			return spec
		}
	}
	v := g.expr(e)
	return g.iterOf(v, e, body)
}

// iterOf iterates the rendered value v.
func (g *generator) iterOf(v val, e hir.Expr, body hir.Block) iterSpec {
	t := v.t
	elem := iterElem(t)
	mutated := false
	if n, ok := e.(*hir.Name); ok && body != nil {
		mutated = g.mutatesName(body, n.ID) || bindsName(body, n.ID)
	}
	recv := atomic(v.code)
	switch {
	case v.iter:
		return iterSpec{code: v.code, elem: elem}
	case t.Kind == hir.KindString:
		return iterSpec{code: recv + ".chars().map(String::from)", elem: hir.Str}
	case t.Kind == hir.KindList, t.Kind == hir.KindSet, isIter(t),
		t.Kind == hir.KindNamed && t.Name == stdlib.TypeDeque:
		switch {
		case !v.place && !v.slice && v.ref == refNone, v.last && v.ref == refNone && !v.slice:
			return iterSpec{code: recv, elem: elem, seq: true}
		case mutated:
			return iterSpec{code: recv + ".clone()", elem: elem, seq: true}
		case elem.IsCopy():
			return iterSpec{code: recv + ".iter().copied()", elem: elem}
		}
		return iterSpec{code: recv + ".iter()", elem: elem, ref: refShared}
	case t.Kind == hir.KindDict, t.Kind == hir.KindNamed && t.Name == stdlib.TypeCounter:
		key := t.KeyType()
		if t.Kind == hir.KindNamed {
			key = elemOr(t)
		}
		switch {
		case mutated || !v.place:
			return iterSpec{code: recv + ".keys().cloned().collect::<Vec<_>>()", elem: key, seq: true}
		case key.IsCopy():
			return iterSpec{code: recv + ".keys().copied()", elem: key}
		}
		return iterSpec{code: recv + ".keys()", elem: key, ref: refShared}
	case t.Kind == hir.KindTuple:
		parts := make([]string, len(t.Elems))
		for i := range t.Elems {
			parts[i] = g.own(val{code: recv + "." + strconv.Itoa(i), t: elem, place: true})
		}
		return iterSpec{code: "[" + strings.Join(parts, ", ") + "]", elem: elem, seq: true}
	case t.Kind == hir.KindNamed && t.Name == stdlib.TypeFile:
		g.helper("PyFile")
		return iterSpec{code: recv + ".lines()", elem: hir.Str}
	case t.Kind == hir.KindNamed && (t.Name == stdlib.TypeBytes || t.Name == stdlib.TypeHash):
		return iterSpec{code: recv + ".iter().map(|b| *b as i64)", elem: hir.Int}
	case t.Kind == hir.KindOptional:
		g.warnf(diagnostic.CodeUnsupported, e.GetSpan(), "iterating an optional value; None is treated as empty")
		inner := t.Elem()
		return iterSpec{code: recv + ".iter().flatten()", elem: iterElem(inner), ref: refShared}
	}
	if cl := g.classOf(t); cl != nil {
		if m := g.findMethod(cl, "__iter__"); m != nil {
			sig := g.sigOf(m)
			if m.Props.Generator {
				return iterSpec{code: recv + ".__iter__()", elem: sig.Yield}
			}
			return iterSpec{code: recv + ".__iter__()", elem: iterElem(sig.Ret)}
		}
	}
	g.helper("PyValue")
	return iterSpec{code: recv + ".to_list()", elem: hir.Unknown}
}

// dictView iterates d.items(), d.keys() or d.values() without building
// the intermediate list, unless the body mutates the dictionary.
func (g *generator) dictView(m *hir.MethodCall, body hir.Block) (iterSpec, bool) {
	switch m.Method {
	case "items", "keys", "values":
	default:
		return iterSpec{}, false
	}
	if len(m.Args) > 0 || g.typeOf(m.Recv).Kind != hir.KindDict {
		return iterSpec{}, false
	}
	if n, ok := m.Recv.(*hir.Name); ok && body != nil && (g.mutatesName(body, n.ID) || bindsName(body, n.ID)) {
		return iterSpec{}, false
	}
	d := g.expr(m.Recv)
	kt, vt := d.t.KeyType(), d.t.ValueType()
	recv := atomic(d.code)
	switch m.Method {
	case "keys":
		if kt.IsCopy() {
			return iterSpec{code: recv + ".keys().copied()", elem: kt}, true
		}
		return iterSpec{code: recv + ".keys()", elem: kt, ref: refShared}, true
	case "values":
		if vt.IsCopy() {
			return iterSpec{code: recv + ".values().copied()", elem: vt}, true
		}
		return iterSpec{code: recv + ".values()", elem: vt, ref: refShared}, true
	}
	return iterSpec{
		code:  recv + ".iter()",
		elem:  hir.TupleOf(kt, vt),
		parts: []loopItem{{t: kt, ref: refShared}, {t: vt, ref: refShared}},
		shape: "(%s, %s)",
	}, true
}

func (g *generator) enumerateSource(c *hir.Call, body hir.Block) iterSpec {
	inner := g.iterSource(c.Args[0], body)
	offset := ""
	var start hir.Expr
	if len(c.Args) > 1 {
		start = c.Args[1]
	}
	for _, k := range c.Keywords {
		if k.Name == "start" {
			start = k.Value
		}
	}
	if start != nil {
		offset = g.exprAs(start, hir.Int)
		if offset == "0" {
			offset = ""
		}
	}
	return iterSpec{
		code:  inner.chain() + ".enumerate()",
		elem:  hir.TupleOf(hir.Int, inner.elem),
		parts: []loopItem{{t: hir.Int, counter: true, offset: offset}, inner.item()},
		shape: "(%s, %s)",
	}
}

func (g *generator) zipSource(c *hir.Call, body hir.Block) iterSpec {
	var srcs []iterSpec
	for _, a := range c.Args {
		srcs = append(srcs, g.iterSource(a, body))
	}
	code := srcs[0].chain()
	shape := "%s"
	elems := []hir.Type{srcs[0].elem}
	parts := []loopItem{srcs[0].item()}
	for _, s := range srcs[1:] {
		code += ".zip(" + s.code + ")"
		shape = "(" + shape + ", %s)"
		elems = append(elems, s.elem)
		parts = append(parts, s.item())
	}
	return iterSpec{code: code, elem: hir.TupleOf(elems...), parts: parts, shape: shape}
}

// iterOwned renders spec as an iterator of owned elements, for sources
// whose items outlive the loop: collections, sorted copies, enumerate
// and zip values.
func (g *generator) iterOwned(spec iterSpec) string {
	if spec.parts != nil {
		var pats, outs []string
		for i, p := range spec.parts {
			name := "__x" + strconv.Itoa(i)
			pats = append(pats, name)
			v := val{code: name, t: p.t, ref: p.ref, place: true, last: true}
			switch {
			case p.counter && p.offset != "":
				outs = append(outs, "("+name+" as i64 + "+p.offset+")")
			case p.counter:
				outs = append(outs, "("+name+" as i64)")
			default:
				outs = append(outs, g.own(v))
			}
		}
		pat := fillShape(spec.shape, pats)
		return spec.chain() + ".map(|" + pat + "| (" + strings.Join(outs, ", ") + "))"
	}
	if spec.ref == refNone {
		return spec.chain()
	}
	if spec.elem.IsCopy() {
		return spec.chain() + ".copied()"
	}
	return spec.chain() + ".cloned()"
}

func fillShape(shape string, parts []string) string {
	out := shape
	for _, p := range parts {
		out = strings.Replace(out, "%s", p, 1)
	}
	return out
}

// forTarget binds the loop target for each item of src and returns the
// pattern. Targets that outlive the loop are assigned at the top of body.
func (g *generator) forTarget(target hir.Expr, src iterSpec, body *rust.Block) string {
	if src.parts != nil {
		if elts, ok := targetElts(target); ok && len(elts) == len(src.parts) {
			pats := make([]string, len(elts))
			for i, e := range elts {
				pats[i] = g.bindItem(e, src.parts[i], body)
			}
			return fillShape(src.shape, pats)
		}
		names := shapeNames(len(src.parts))
		outs := make([]string, len(names))
		for i, p := range src.parts {
			outs[i] = g.own(g.itemVal(names[i], p))
		}
		tmp := g.fn.names.fresh("it")
		body.Add(&rust.Let{Pattern: tmp, Value: rust.R("(" + strings.Join(outs, ", ") + ")")})
		g.storeTarget(target, val{code: tmp, t: src.elem, place: true, last: true}, body)
		return fillShape(src.shape, names)
	}
	return g.bindItem(target, src.item(), body)
}

func shapeNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "__x" + strconv.Itoa(i)
	}
	return out
}

func targetElts(target hir.Expr) ([]hir.Expr, bool) {
	switch t := target.(type) {
	case *hir.TupleLit:
		return t.Elts, true
	case *hir.ListLit:
		return t.Elts, true
	}
	return nil, false
}

// bindItem returns the pattern for one item component bound to target.
func (g *generator) bindItem(target hir.Expr, it loopItem, body *rust.Block) string {
	ctx := g.fn
	switch t := target.(type) {
	case *hir.Name:
		if t.ID == "_" {
			return "_"
		}
		name := Sanitize(t.ID)
		d := ctx.decls[t.ID]
		_, global := g.globals[t.ID]
		outer := ctx.comp == 0 && (d != nil && !d.loopOnly || ctx.main && global)
		var loopBody hir.Block
		if n := len(ctx.loops); n > 0 && ctx.comp == 0 {
			loopBody = ctx.loops[n-1].body
		}
		rebound := bindsName(loopBody, t.ID) || g.mutatesName(loopBody, t.ID)
		switch {
		case outer:
			tmp := ctx.names.fresh("x")
			v := g.itemVal(tmp, it)
			code := g.coerce(v, g.storeType(t))
			g.store(t, code, body)
			return tmp
		case it.counter:
			value := name + " as i64"
			if it.offset != "" {
				value += " + " + it.offset
			}
			body.Add(&rust.Let{Mut: ctx.plan.Mutable(t.ID), Pattern: name, Value: rust.R(value)})
			ctx.bind(t.ID, binding{code: name, t: hir.Int, owned: true})
			return name
		case it.ref != refNone && rebound:
			tmp := ctx.names.fresh("x")
			body.Add(&rust.Let{Mut: true, Pattern: name, Value: rust.R(g.own(g.itemVal(tmp, it)))})
			ctx.bind(t.ID, binding{code: name, t: it.t, owned: true})
			return tmp
		}
		ctx.bind(t.ID, binding{code: name, t: it.t, ref: it.ref, owned: it.ref == refNone})
		if it.ref == refNone && (ctx.plan.Mutable(t.ID) || rebound) {
			return "mut " + name
		}
		return name
	case *hir.TupleLit, *hir.ListLit:
		elts, _ := targetElts(t)
		if it.t.Kind == hir.KindTuple && len(it.t.Elems) == len(elts) {
			pats := make([]string, len(elts))
			for i, e := range elts {
				pats[i] = g.bindItem(e, loopItem{t: it.t.Elems[i], ref: it.ref}, body)
			}
			if len(pats) == 1 {
				return "(" + pats[0] + ",)"
			}
			return "(" + strings.Join(pats, ", ") + ")"
		}
	}
	tmp := ctx.names.fresh("x")
	g.storeTarget(target, g.itemVal(tmp, it), body)
	return tmp
}

func (g *generator) itemVal(code string, it loopItem) val {
	if it.counter {
		c := "(" + code + " as i64"
		if it.offset != "" {
			c += " + " + it.offset
		}
		return val{code: c + ")", t: hir.Int}
	}
	return val{code: code, t: it.t, ref: it.ref, place: true, last: it.ref == refNone}
}

// ====== Comprehensions ======

// comprehension renders a list, set, dict or generator comprehension. A
// single for clause becomes an iterator chain; nested clauses become
// loops pushing into an accumulator.
func (g *generator) comprehension(c *hir.Comprehension) val {
	t := g.typeOf(c)
	if len(c.Clauses) > 0 && c.Clauses[0].Kind == hir.ClauseFor && allIfs(c.Clauses[1:]) {
		return g.compChain(c, t)
	}
	return g.compLoops(c, t)
}

func allIfs(cs []hir.CompClause) bool {
	for _, c := range cs {
		if c.Kind != hir.ClauseIf {
			return false
		}
	}
	return true
}

// closureBody renders an expression inside a closure: statements it
// queues stay inside the closure.
func (g *generator) closureBody(render func() string) string {
	ctx := g.fn
	saved := ctx.pre
	ctx.pre = nil
	ctx.closure++
	code := render()
	ctx.closure--
	pre := ctx.pre
	ctx.pre = saved
	return withStmts(rust.NewBlock(pre...), code)
}

func (g *generator) compChain(c *hir.Comprehension, t hir.Type) val {
	ctx := g.fn
	first := c.Clauses[0]
	src := g.iterSource(first.Iter, nil)
	ctx.comp++
	code := src.chain()
	if src.parts != nil {
		code = atomic(g.iterOwned(src))
		src = iterSpec{code: code, elem: src.elem}
	}
	conds := c.Clauses[1:]

	// Filters see each item by reference.
	for _, cl := range conds {
		ctx.push()
		pre := rust.NewBlock()
		pat := g.filterPattern(first.Target, src.item(), pre)
		test := g.closureBody(func() string { return g.cond(cl.Cond) })
		ctx.pop()
		code += ".filter(|" + pat + "| " + withStmts(pre, test) + ")"
	}

	ctx.push()
	body := rust.NewBlock()
	pat := g.forTarget(first.Target, src, body)
	elemT, keyT := compElem(t)
	out := g.closureBody(func() string {
		elt := g.exprAs(c.Elt, elemT)
		if c.Kind == hir.CompDict {
			return "(" + g.exprAs(c.Key, keyT) + ", " + elt + ")"
		}
		return elt
	})
	ctx.pop()
	ctx.comp--
	out = withStmts(body, out)
	if out != pat {
		code += ".map(|" + pat + "| " + out + ")"
	}
	return g.collect(code, c.Kind, t)
}

// filterPattern binds the target for a filter closure, which receives a
// reference to the item.
func (g *generator) filterPattern(target hir.Expr, it loopItem, pre *rust.Block) string {
	ctx := g.fn
	n, ok := target.(*hir.Name)
	if !ok {
		return g.forTarget(target, iterSpec{elem: it.t, ref: refShared}, pre)
	}
	name := Sanitize(n.ID)
	if it.ref != refNone || it.t.IsCopy() {
		ctx.bind(n.ID, binding{code: name, t: it.t, ref: it.ref})
		return "&" + name
	}
	ctx.bind(n.ID, binding{code: name, t: it.t, ref: refShared})
	return name
}

// withStmts renders a block expression running b before code.
func withStmts(b *rust.Block, code string) string {
	if b.Empty() {
		return code
	}
	out := rust.NewBlock(b.Stmts...)
	out.Add(&rust.ExprStmt{X: rust.R(code)})
	return rust.ExprString(out)
}

func compElem(t hir.Type) (elem, key hir.Type) {
	switch {
	case t.Kind == hir.KindDict:
		return t.ValueType(), t.KeyType()
	case t.Kind == hir.KindList, t.Kind == hir.KindSet, isIter(t):
		return elemOr(t), hir.Unknown
	}
	return hir.Unknown, hir.Unknown
}

// collect finishes an iterator chain as the comprehension's container.
func (g *generator) collect(code string, kind hir.CompKind, t hir.Type) val {
	switch kind {
	case hir.CompList:
		return val{code: code + ".collect::<" + g.rustType(t) + ">()", t: t}
	case hir.CompSet:
		g.use("std::collections::HashSet")
		return val{code: code + ".collect::<" + g.rustType(t) + ">()", t: t}
	case hir.CompDict:
		g.use("std::collections::HashMap")
		return val{code: code + ".collect::<" + g.rustType(t) + ">()", t: t}
	}
	return val{code: code, t: t, iter: true}
}

// compLoops renders a comprehension with several for clauses as nested
// loops inside a block expression.
func (g *generator) compLoops(c *hir.Comprehension, t hir.Type) val {
	ctx := g.fn
	acc := ctx.names.fresh("c")
	elemT, keyT := compElem(t)
	accT := t
	if isIter(t) {
		accT = hir.ListOf(elemT)
	}
	outer := rust.NewBlock(&rust.Let{Mut: true, Pattern: acc, Type: g.rustType(accT), Value: rust.R(g.emptyOf(accT))})
	saved := ctx.pre
	ctx.pre = nil
	ctx.push()
	ctx.comp++
	var build func(i int, out *rust.Block)
	build = func(i int, out *rust.Block) {
		if i == len(c.Clauses) {
			var push string
			switch c.Kind {
			case hir.CompDict:
				k := g.exprAs(c.Key, keyT)
				push = acc + ".insert(" + k + ", " + g.exprAs(c.Elt, elemT) + ")"
			case hir.CompSet:
				push = acc + ".insert(" + g.exprAs(c.Elt, elemT) + ")"
			default:
				push = acc + ".push(" + g.exprAs(c.Elt, elemT) + ")"
			}
			g.flush(out)
			out.Add(&rust.Semi{X: rust.R(push)})
			return
		}
		cl := c.Clauses[i]
		if cl.Kind == hir.ClauseIf {
			cond := g.cond(cl.Cond)
			g.flush(out)
			then := rust.NewBlock()
			build(i+1, then)
			out.Add(&rust.ExprStmt{X: &rust.If{Cond: rust.R(cond), Then: then}})
			return
		}
		src := g.iterSource(cl.Iter, nil)
		g.flush(out)
		body := rust.NewBlock()
		ctx.push()
		pat := g.forTarget(cl.Target, src, body)
		build(i+1, body)
		ctx.pop()
		out.Add(&rust.ExprStmt{X: &rust.For{Pattern: pat, Iter: rust.R(src.code), Body: body}})
	}
	build(0, outer)
	ctx.comp--
	ctx.pop()
	ctx.pre = saved
	if isIter(t) {
		outer.Add(&rust.ExprStmt{X: rust.R(acc + ".into_iter()")})
		return val{code: rust.ExprString(outer), t: t, iter: true}
	}
	outer.Add(&rust.ExprStmt{X: rust.R(acc)})
	return val{code: rust.ExprString(outer), t: t}
}

// emptyOf is an empty container of type t.
func (g *generator) emptyOf(t hir.Type) string {
	switch t.Kind {
	case hir.KindDict:
		g.use("std::collections::HashMap")
		return "HashMap::new()"
	case hir.KindSet:
		g.use("std::collections::HashSet")
		return "HashSet::new()"
	}
	return "Vec::new()"
}
