package codegen

import (
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// ====== Blocks ======

// block emits one statement list in its own binding frame.
func (g *generator) block(key blockKey, b hir.Block) *rust.Block {
	return g.blockWith(key, b, nil)
}

// blockWith is block with pattern bindings already in scope.
func (g *generator) blockWith(key blockKey, b hir.Block, binds map[string]binding) *rust.Block {
	ctx := g.fn
	out := rust.NewBlock()
	saved := ctx.pre
	ctx.pre = nil
	ctx.push()
	defer func() {
		ctx.pop()
		ctx.pre = saved
	}()
	for name, bd := range binds {
		ctx.bind(name, bd)
	}
	g.stmts(key, b, out)
	return out
}

// stmts emits b into out without opening a frame.
func (g *generator) stmts(key blockKey, b hir.Block, out *rust.Block) {
	g.hoisted(key, out)
	for _, s := range b {
		g.stmt(s, out)
		g.flush(out)
	}
}

// flush moves statements queued by expression rendering into out.
func (g *generator) flush(out *rust.Block) {
	ctx := g.fn
	if len(ctx.pre) == 0 {
		return
	}
	out.Add(ctx.pre...)
	ctx.pre = nil
}

func (g *generator) stmt(s hir.Stmt, out *rust.Block) {
	switch s := s.(type) {
	case *hir.ExprStmt:
		g.exprStmt(s.X, out)
	case *hir.Assign:
		g.assign(s, out)
	case *hir.AugAssign:
		g.augAssign(s, out)
	case *hir.AnnDecl:
		g.annDecl(s, out)
	case *hir.If:
		g.ifStmt(s, out)
	case *hir.While:
		g.whileStmt(s, out)
	case *hir.For:
		g.forStmt(s, out)
	case *hir.Try:
		g.tryStmt(s, out)
	case *hir.With:
		g.withStmt(s, out)
	case *hir.Raise:
		g.raise(s, out)
	case *hir.Return:
		g.ret(s, out)
	case *hir.Break:
		g.loopExit(true, out)
	case *hir.Continue:
		g.loopExit(false, out)
	case *hir.FuncDef:
		g.nested(s.Func, out)
	case *hir.ClassDef:
		g.unsupported(s.Span, "class %s defined inside a function", s.Class.Name)
	case *hir.ContainerRemove:
		g.remove(s, out)
	case *hir.Assert:
		g.assert(s, out)
	case *hir.StubStmt:
		g.unsupported(s.Span, "%s", s.Reason)
		out.Add(&rust.Semi{X: rust.R("todo!(" + rustString(s.Reason) + ")")})
	case *hir.Pass, *hir.Docstring, *hir.ImportStmt, *hir.DeleteVar:
	}
}

func (g *generator) exprStmt(e hir.Expr, out *rust.Block) {
	switch x := e.(type) {
	case *hir.Lit, *hir.Name:
		return
	case *hir.Yield:
		g.yield(x, out)
		return
	case *hir.MethodCall:
		if isSuper(x.Recv) && x.Method == "__init__" && g.fn.ctor != ctorNone {
			g.superInit(x, out)
			return
		}
	}
	v := g.expr(e)
	g.flush(out)
	if v.code == "" || v.code == "()" {
		return
	}
	out.Add(&rust.Semi{X: rust.R(v.code)})
}

func isSuper(e hir.Expr) bool {
	c, ok := e.(*hir.Call)
	if !ok {
		return false
	}
	n, ok := c.Func.(*hir.Name)
	return ok && n.ID == "super"
}

// yield appends to the generator's buffer.
func (g *generator) yield(y *hir.Yield, out *rust.Block) {
	ctx := g.fn
	if !ctx.generator {
		g.unsupported(y.Span, "yield outside a generator function")
		return
	}
	if y.From {
		v := g.expr(y.Value)
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R("__gen.extend(" + g.intoIter(v) + ")")})
		return
	}
	code := "()"
	if y.Value != nil {
		code = g.exprAs(y.Value, ctx.sig.Yield)
	}
	g.flush(out)
	out.Add(&rust.Semi{X: rust.R("__gen.push(" + code + ")")})
}

// ====== Assignment ======

func (g *generator) assign(s *hir.Assign, out *rust.Block) {
	switch t := s.Target.(type) {
	case *hir.Name:
		if gl, ok := g.globals[t.ID]; ok && g.fn.main && !gl.mutex {
			// Initialized by its static.
			return
		}
		code := g.exprAs(s.Value, g.storeType(t))
		g.flush(out)
		g.store(t, code, out)
	case *hir.TupleLit:
		g.assignTuple(t.Elts, s.Value, out)
	case *hir.ListLit:
		g.assignTuple(t.Elts, s.Value, out)
	default:
		v := g.expr(s.Value)
		g.storeTarget(s.Target, v, out)
	}
}

// storeType is the type a store to n must produce.
func (g *generator) storeType(n *hir.Name) hir.Type {
	ctx := g.fn
	if b, ok := ctx.lookup(n.ID, true); ok {
		return b.t
	}
	if gl, ok := g.globals[n.ID]; ok && ctx.main {
		return gl.t
	}
	if d := ctx.decls[n.ID]; d != nil && d.hoist {
		return d.typ
	}
	return g.versionType(n)
}

// versionType is the type of the binding n creates.
func (g *generator) versionType(n *hir.Name) hir.Type {
	ctx := g.fn
	if l := ctx.scope.Lookup(n.ID); l != nil {
		if ver, ok := g.info.Versions[n]; ok && ver < len(l.Versions) {
			return l.Versions[ver]
		}
		if t, ok := g.info.Types[n]; ok {
			return t
		}
		return l.Type()
	}
	return g.typeOf(n)
}

// store assigns rendered code to the variable n, declaring it on its first
// binding.
func (g *generator) store(n *hir.Name, code string, out *rust.Block) {
	ctx := g.fn
	if b, ok := ctx.lookup(n.ID, true); ok {
		target := b.code
		if b.ref == refMut {
			target = "*" + atomic(b.code)
		}
		out.Add(&rust.Semi{X: rust.R(target + " = " + code)})
		return
	}
	if gl, ok := g.globals[n.ID]; ok && ctx.main {
		tmp := ctx.names.fresh("v")
		out.Add(&rust.Let{Pattern: tmp, Value: rust.R(code)})
		out.Add(&rust.Semi{X: rust.R(gl.code + " = " + tmp)})
		return
	}
	name := Sanitize(n.ID)
	t := g.versionType(n)
	d := ctx.decls[n.ID]
	ver := g.info.Versions[n]
	switch {
	case d == nil:
		out.Add(&rust.Let{Mut: true, Pattern: name, Type: g.letType(t), Value: rust.R(code)})
	case d.hoist:
		out.Add(&rust.Semi{X: rust.R(name + " = " + code)})
	case d.declared < 0, !t.IsUnknown() && !t.Equal(d.typ) && d.declared != ver:
		out.Add(&rust.Let{Mut: true, Pattern: name, Type: g.letType(t), Value: rust.R(code)})
		d.declared = ver
		d.typ = t
	default:
		out.Add(&rust.Semi{X: rust.R(name + " = " + code)})
	}
}

// letType is the annotation of a declared local, empty when Rust has to
// infer it.
func (g *generator) letType(t hir.Type) string {
	if isIter(t) || t.Kind == hir.KindVar {
		return ""
	}
	return g.rustType(t)
}

func (g *generator) annDecl(s *hir.AnnDecl, out *rust.Block) {
	ctx := g.fn
	d := ctx.decls[s.Target.ID]
	if d == nil || d.hoist || d.declared >= 0 {
		return
	}
	t := g.versionType(s.Target)
	out.Add(&rust.Let{Mut: true, Pattern: Sanitize(s.Target.ID), Type: g.rustType(t)})
	d.declared = g.info.Versions[s.Target]
	d.typ = t
}

// assignTuple unpacks value into several targets.
func (g *generator) assignTuple(elts []hir.Expr, value hir.Expr, out *rust.Block) {
	ctx := g.fn
	vt := g.typeOf(value)
	if vt.Kind == hir.KindTuple && len(vt.Elems) == len(elts) && g.freshNames(elts) {
		pats := make([]string, len(elts))
		for i, e := range elts {
			n := e.(*hir.Name)
			pats[i] = "mut " + Sanitize(n.ID)
			d := ctx.decls[n.ID]
			d.declared = g.info.Versions[n]
			d.typ = g.versionType(n)
		}
		code := g.own(g.expr(value))
		g.flush(out)
		out.Add(&rust.Let{Pattern: "(" + strings.Join(pats, ", ") + ")", Value: rust.R(code)})
		return
	}
	v := g.expr(value)
	tmp := ctx.names.fresh("t")
	code := g.own(v)
	g.flush(out)
	out.Add(&rust.Let{Pattern: tmp, Value: rust.R(code)})
	g.unpack(elts, val{code: tmp, t: vt, place: true, last: true}, out)
}

// unpack stores the elements of the tuple or list held in v.
func (g *generator) unpack(elts []hir.Expr, v val, out *rust.Block) {
	for i, e := range elts {
		var part val
		switch {
		case v.t.Kind == hir.KindTuple && i < len(v.t.Elems):
			part = val{code: v.code + "." + strconv.Itoa(i), t: v.t.Elems[i], place: true, last: true}
		case v.t.Kind == hir.KindList:
			part = val{code: v.code + "[" + strconv.Itoa(i) + "]", t: v.t.Elem(), place: true}
		default:
			g.helper("PyValue")
			part = val{code: v.code + "[" + strconv.Itoa(i) + "i64]", t: hir.Unknown, place: true}
		}
		g.storeTarget(e, part, out)
	}
}

// freshNames reports whether every target is a local seen here first.
func (g *generator) freshNames(elts []hir.Expr) bool {
	ctx := g.fn
	for _, e := range elts {
		n, ok := e.(*hir.Name)
		if !ok {
			return false
		}
		if _, ok := ctx.lookup(n.ID, true); ok {
			return false
		}
		if _, ok := g.globals[n.ID]; ok && ctx.main {
			return false
		}
		d := ctx.decls[n.ID]
		if d == nil || d.hoist || d.declared >= 0 {
			return false
		}
	}
	return true
}

// storeTarget writes v into any assignable expression.
func (g *generator) storeTarget(target hir.Expr, v val, out *rust.Block) {
	ctx := g.fn
	switch t := target.(type) {
	case *hir.Name:
		code := g.coerce(v, g.storeType(t))
		g.flush(out)
		g.store(t, code, out)
	case *hir.TupleLit, *hir.ListLit:
		var elts []hir.Expr
		if tl, ok := t.(*hir.TupleLit); ok {
			elts = tl.Elts
		} else {
			elts = t.(*hir.ListLit).Elts
		}
		tmp := ctx.names.fresh("t")
		code := g.own(v)
		g.flush(out)
		out.Add(&rust.Let{Pattern: tmp, Value: rust.R(code)})
		g.unpack(elts, val{code: tmp, t: v.t, place: true, last: true}, out)
	case *hir.Attribute:
		g.storeAttr(t, v, out)
	case *hir.Index:
		g.storeIndex(t, v, out)
	case *hir.SliceExpr:
		c := g.expr(t.Value)
		lo, hi := "0", atomic(c.code)+".len()"
		if t.Lower != nil {
			lo = g.usize(g.expr(t.Lower))
		}
		if t.Upper != nil {
			hi = g.usize(g.expr(t.Upper))
		}
		code := g.intoIter(val{code: g.coerce(v, c.t), t: c.t})
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(atomic(c.code) + ".splice(" + lo + ".." + hi + ", " + code + ")")})
	case *hir.Starred:
		g.unsupported(t.Span, "starred assignment target")
	default:
		g.unsupported(target.GetSpan(), "assignment target")
	}
}

func (g *generator) storeAttr(a *hir.Attribute, v val, out *rust.Block) {
	ctx := g.fn
	ft := g.typeOf(a)
	if n, ok := a.Value.(*hir.Name); ok && n.ID == "self" && ctx.ctor == ctorFields {
		if local, ok := ctx.fields[a.Attr]; ok {
			code := g.coerce(v, ft)
			g.flush(out)
			out.Add(&rust.Semi{X: rust.R(local + " = " + code)})
			return
		}
	}
	recv := g.expr(a.Value)
	if cl := g.classOf(recv.t); cl != nil {
		if t, ok := g.info.Field(cl.Name, a.Attr); ok {
			ft = t
		}
	}
	code := g.coerce(v, ft)
	g.flush(out)
	out.Add(&rust.Semi{X: rust.R(atomic(recv.code) + "." + Sanitize(a.Attr) + " = " + code)})
}

func (g *generator) storeIndex(ix *hir.Index, v val, out *rust.Block) {
	c := g.expr(ix.Value)
	ct := c.t
	recv := atomic(c.code)
	switch {
	case ct.Kind == hir.KindList, ct.Kind == hir.KindNamed && ct.Name == stdlib.TypeDeque:
		idx := g.listIndex(ix.Index, c)
		code := g.coerce(v, ct.Elem())
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(recv + "[" + idx + "] = " + code)})
	case ct.Kind == hir.KindDict:
		k := g.exprAs(ix.Index, ct.KeyType())
		code := g.coerce(v, ct.ValueType())
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(recv + ".insert(" + k + ", " + code + ")")})
	case ct.Kind == hir.KindNamed && ct.Name == stdlib.TypeCounter:
		k := g.exprAs(ix.Index, elemOr(ct))
		code := g.coerce(v, hir.Int)
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(recv + ".insert(" + k + ", " + code + ")")})
	default:
		g.helper("PyValue")
		k := g.coerce(g.expr(ix.Index), hir.Unknown)
		code := g.coerce(v, hir.Unknown)
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(recv + ".set_item(" + k + ", " + code + ")")})
	}
}

// ====== Augmented assignment ======

func (g *generator) augAssign(s *hir.AugAssign, out *rust.Block) {
	rhs := g.expr(s.Value)
	switch t := s.Target.(type) {
	case *hir.Name:
		ctx := g.fn
		cur := g.name(t)
		if d := ctx.decls[t.ID]; d != nil && (d.hoist || d.declared >= 0) {
			cur.t = d.typ
		}
		if b, ok := ctx.lookup(t.ID, true); ok {
			cur.t = b.t
		}
		newT := g.versionType(t)
		if newT.IsUnknown() || newT.Equal(cur.t) {
			if code, ok := g.inPlace(cur, s.Op, rhs); ok {
				g.flush(out)
				out.Add(&rust.Semi{X: rust.R(code)})
				return
			}
		}
		cur.last = false
		res := g.binop(s.Op, cur, rhs, newT)
		code := g.coerce(res, newT)
		g.flush(out)
		g.store(t, code, out)
	case *hir.Index:
		c := g.expr(t.Value)
		var place val
		switch {
		case c.t.Kind == hir.KindDict:
			k := g.keyArg(g.expr(t.Index), c.t.KeyType())
			place = val{code: "*" + atomic(c.code) + ".get_mut(" + k + ").unwrap()", t: c.t.ValueType(), place: true}
		case c.t.Kind == hir.KindNamed && c.t.Name == stdlib.TypeCounter:
			k := g.exprAs(t.Index, elemOr(c.t))
			place = val{code: "*" + atomic(c.code) + ".entry(" + k + ").or_insert(0)", t: hir.Int, place: true}
		case c.t.Kind == hir.KindList:
			place = val{code: atomic(c.code) + "[" + g.listIndex(t.Index, c) + "]", t: c.t.Elem(), place: true}
		default:
			v := g.binop(s.Op, g.expr(t), rhs, hir.Unknown)
			g.storeTarget(t, v, out)
			return
		}
		g.augPlace(place, s.Op, rhs, out)
	case *hir.Attribute:
		place := g.attribute(t)
		g.augPlace(place, s.Op, rhs, out)
	default:
		g.unsupported(s.Span, "augmented assignment target")
	}
}

// augPlace updates a field or element in place.
func (g *generator) augPlace(place val, op string, rhs val, out *rust.Block) {
	if code, ok := g.inPlace(place, op, rhs); ok {
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(code)})
		return
	}
	res := g.binop(op, place, rhs, place.t)
	code := g.coerce(res, place.t)
	target := place.code
	if strings.HasPrefix(target, "*") {
		target = "(" + target + ")"
	}
	g.flush(out)
	out.Add(&rust.Semi{X: rust.R(target + " = " + code)})
}

var intAssignOps = map[string]bool{"+": true, "-": true, "*": true, "&": true, "|": true, "^": true, "<<": true, ">>": true}

// inPlace renders `place op= rhs` when Rust has a direct form for it.
func (g *generator) inPlace(place val, op string, rhs val) (string, bool) {
	target := place.code
	if place.ref == refMut && place.t.IsCopy() {
		target = "*" + atomic(place.code)
	}
	pt, rt := place.t, rhs.t
	switch {
	case pt.Kind == hir.KindInt && rt.Kind == hir.KindInt && intAssignOps[op]:
		return target + " " + op + "= " + num(rhs), true
	case pt.Kind == hir.KindInt && rt.Kind == hir.KindBool && (op == "+" || op == "-"):
		return target + " " + op + "= " + g.coerce(rhs, hir.Int), true
	case pt.Kind == hir.KindFloat && rt.IsNumeric() && (op == "+" || op == "-" || op == "*" || op == "/"):
		return target + " " + op + "= " + g.coerce(rhs, hir.Float), true
	case pt.Kind == hir.KindInt && rt.Kind == hir.KindInt && op == "%":
		return target + " = " + atomic(target) + ".rem_euclid(" + num(rhs) + ")", true
	case pt.Kind == hir.KindBool && rt.Kind == hir.KindBool && (op == "&" || op == "|" || op == "^"):
		return target + " " + op + "= " + num(rhs), true
	case pt.Kind == hir.KindString && op == "+":
		if rhs.char != "" {
			return atomic(place.code) + ".push(" + rhs.char + ")", true
		}
		if rt.Kind == hir.KindString {
			return atomic(place.code) + ".push_str(" + g.strView(rhs) + ")", true
		}
	case pt.Kind == hir.KindList && op == "+":
		return atomic(place.code) + ".extend(" + g.intoIter(val{code: g.coerce(rhs, pt), t: pt}) + ")", true
	case pt.Kind == hir.KindSet && op == "|", pt.Kind == hir.KindDict && op == "|":
		return atomic(place.code) + ".extend(" + g.intoIter(rhs) + ")", true
	case pt.Kind == hir.KindSet && op == "-":
		return atomic(place.code) + ".retain(|x| !" + atomic(g.borrow(rhs)) + ".contains(x))", true
	case pt.Kind == hir.KindSet && op == "&":
		return atomic(place.code) + ".retain(|x| " + atomic(g.borrow(rhs)) + ".contains(x))", true
	}
	return "", false
}

// ====== Deletion and assertions ======

func (g *generator) remove(s *hir.ContainerRemove, out *rust.Block) {
	c := g.expr(s.Container)
	recv := atomic(c.code)
	switch {
	case c.t.Kind == hir.KindDict, c.t.Kind == hir.KindNamed && c.t.Name == stdlib.TypeCounter:
		k := g.keyArg(g.expr(s.Key), c.t.KeyType())
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(recv + ".remove(" + k + ")")})
	case c.t.Kind == hir.KindList:
		if sl, ok := s.Key.(*hir.SliceExpr); ok {
			lo, hi := "0", recv+".len()"
			if sl.Lower != nil {
				lo = g.usize(g.expr(sl.Lower))
			}
			if sl.Upper != nil {
				hi = g.usize(g.expr(sl.Upper))
			}
			g.flush(out)
			out.Add(&rust.Semi{X: rust.R(recv + ".drain(" + lo + ".." + hi + ")")})
			return
		}
		idx := g.listIndex(s.Key, c)
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R(recv + ".remove(" + idx + ")")})
	default:
		g.unsupported(s.Span, "del on a value of type %s", c.t)
	}
}

func (g *generator) assert(s *hir.Assert, out *rust.Block) {
	if g.letElse(s.Test, true, out, func() *rust.Block {
		return rust.NewBlock(&rust.Semi{X: rust.R(`panic!("AssertionError")`)})
	}) {
		return
	}
	cond := g.cond(s.Test)
	msg := ""
	if s.Msg != nil {
		ph, a := g.display(g.expr(s.Msg))
		msg = `, "AssertionError: ` + ph + `"`
		if a != "" {
			msg += ", " + a
		}
	}
	g.flush(out)
	out.Add(&rust.Semi{X: rust.R("assert!(" + cond + msg + ")")})
}

// ====== Exits ======

// runFinals emits the cleanup of every final region from index from
// outward.
func (g *generator) runFinals(from int, out *rust.Block) {
	ctx := g.fn
	saved := ctx.finals
	for i := len(saved) - 1; i >= from; i-- {
		f := saved[i]
		ctx.finals = saved[:i]
		if f.code != "" {
			out.Add(&rust.Semi{X: rust.R(f.code)})
			continue
		}
		out.Add(&rust.ExprStmt{X: g.block(blockKey{f.owner, slotFinally}, f.body)})
	}
	ctx.finals = saved
}

func (g *generator) ret(s *hir.Return, out *rust.Block) {
	ctx := g.fn
	code := g.returnValue(s.Value)
	g.flush(out)
	if len(ctx.finals) > 0 {
		tmp := ctx.names.fresh("ret")
		out.Add(&rust.Let{Pattern: tmp, Value: rust.R(code)})
		g.runFinals(0, out)
		code = tmp
	}
	out.Add(&rust.Semi{X: rust.R("return " + code)})
}

// loopExit emits break or continue.
func (g *generator) loopExit(isBreak bool, out *rust.Block) {
	ctx := g.fn
	if len(ctx.loops) == 0 {
		return
	}
	lf := ctx.loops[len(ctx.loops)-1]
	g.runFinals(lf.finals, out)
	kw := "continue"
	if isBreak {
		kw = "break"
		if lf.didBreak != "" {
			out.Add(&rust.Semi{X: rust.R(lf.didBreak + " = true")})
		}
	}
	if lf.label != "" {
		kw += " " + lf.label
	}
	out.Add(&rust.Semi{X: rust.R(kw)})
}

// raise lowers raise: a break out of the enclosing try body, an error
// return, or a panic where nothing can catch it.
func (g *generator) raise(s *hir.Raise, out *rust.Block) {
	ctx := g.fn
	g.helper("PyError")
	if s.Exc == "SystemExit" {
		code := "0"
		if len(s.Args) > 0 {
			v := g.expr(s.Args[0])
			if v.t.Kind == hir.KindInt {
				code = atomic(num(v)) + " as i32"
			} else {
				ph, a := g.display(v)
				g.flush(out)
				out.Add(&rust.Semi{X: rust.R("eprintln!(" + rustString(ph) + ", " + a + ")")})
				code = "1"
			}
		}
		g.flush(out)
		out.Add(&rust.Semi{X: rust.R("std::process::exit(" + code + ")")})
		return
	}
	kind, msg := s.Exc, ""
	var errCode string
	switch {
	case s.Reraise:
		if n := len(ctx.errs); n > 0 {
			errCode = ctx.errs[n-1] + ".clone()"
		} else {
			kind, msg = "RuntimeError", `String::from("No active exception to reraise")`
		}
	case s.Exc == "":
		v := g.expr(s.Args[0])
		if v.t.Kind == hir.KindNamed && g.isException(v.t.Name) {
			errCode = g.own(v)
		} else {
			kind, msg = "Exception", g.strOf(v)
		}
	default:
		msg = "String::new()"
		if len(s.Args) > 0 {
			msg = g.strOf(g.expr(s.Args[0]))
		}
	}
	if s.Cause != nil {
		g.expr(s.Cause)
	}
	g.flush(out)
	if errCode == "" {
		g.raised[kind] = true
		if ctx.errType == types.ErrorTypeString && ctx.tryLabel() == "" && ctx.closure == 0 {
			g.runFinals(0, out)
			out.Add(&rust.Semi{X: rust.R("return Err(" + msg + ")")})
			return
		}
		errCode = "PyError::new(" + rustString(kind) + ", " + msg + ")"
	}
	g.throw(errCode, out)
}

// throw delivers an error value to whatever handles it.
func (g *generator) throw(code string, out *rust.Block) {
	ctx := g.fn
	if label := ctx.tryLabel(); label != "" {
		ctx.tries[len(ctx.tries)-1].used = true
		g.runFinals(ctx.tries[len(ctx.tries)-1].finals, out)
		out.Add(&rust.Semi{X: rust.R("break " + label + " Err(" + code + ")")})
		return
	}
	if ctx.errType != "" && ctx.closure == 0 {
		g.runFinals(0, out)
		if ctx.errType == types.ErrorTypeString {
			code = atomic(code) + ".message"
		}
		out.Add(&rust.Semi{X: rust.R("return Err(" + code + ")")})
		return
	}
	out.Add(&rust.Semi{X: rust.R(`panic!("{}", ` + code + `)`)})
}
