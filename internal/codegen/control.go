package codegen

import (
	"strings"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// ====== If ======

func (g *generator) ifStmt(s *hir.If, out *rust.Block) {
	ctx := g.fn
	if ctx.main && isMainGuard(s.Cond) && len(s.Else) == 0 {
		g.stmts(blockKey{s, slotBody}, s.Then, out)
		return
	}
	if len(s.Else) == 0 && hir.Terminates(s.Then) {
		if g.letElse(s.Cond, false, out, func() *rust.Block { return g.block(blockKey{s, slotBody}, s.Then) }) {
			return
		}
	}
	x := g.ifChain(s)
	g.flush(out)
	out.Add(&rust.ExprStmt{X: x})
}

// ifChain renders s and its elif branches. The condition's queued
// statements stay in ctx.pre for the caller.
func (g *generator) ifChain(s *hir.If) rust.Expr {
	if x := g.ifLet(s); x != nil {
		return x
	}
	cond := g.cond(s.Cond)
	then := g.block(blockKey{s, slotBody}, s.Then)
	return &rust.If{Cond: rust.R(cond), Then: then, Else: g.elseOf(s)}
}

func (g *generator) elseOf(s *hir.If) rust.Expr {
	ctx := g.fn
	if len(s.Else) == 0 {
		return nil
	}
	if elif, ok := s.Else[0].(*hir.If); ok && len(s.Else) == 1 && len(ctx.hoists[blockKey{s, slotElse}]) == 0 {
		saved := ctx.pre
		ctx.pre = nil
		x := g.ifChain(elif)
		pre := ctx.pre
		ctx.pre = saved
		if len(pre) == 0 {
			return x
		}
		b := rust.NewBlock(pre...)
		b.Add(&rust.ExprStmt{X: x})
		return b
	}
	return g.block(blockKey{s, slotElse}, s.Else)
}

// optionalTest recognizes a condition that is true exactly when a name
// holds a value (some) or exactly when it is None (!some).
func (g *generator) optionalTest(e hir.Expr) (n *hir.Name, some, ok bool) {
	switch c := e.(type) {
	case *hir.Compare:
		if len(c.Ops) != 1 {
			return nil, false, false
		}
		var other hir.Expr
		switch {
		case isNoneLit(c.Rights[0]):
			other = c.Left
		case isNoneLit(c.Left):
			other = c.Rights[0]
		default:
			return nil, false, false
		}
		n, ok = other.(*hir.Name)
		if !ok {
			return nil, false, false
		}
		switch c.Ops[0] {
		case "is not", "!=":
			return n, true, true
		case "is", "==":
			return n, false, true
		}
	case *hir.Name:
		if g.plainSome(c) {
			return c, true, true
		}
	case *hir.Unary:
		if x, isName := c.Operand.(*hir.Name); isName && c.Op == "not" && g.plainSome(x) {
			return x, false, true
		}
	}
	return nil, false, false
}

// plainSome reports whether the truth of n is exactly "is not None": an
// optional whose payload is always truthy.
func (g *generator) plainSome(n *hir.Name) bool {
	t := g.typeOf(n)
	if t.Kind != hir.KindOptional {
		return false
	}
	inner := t.Elem()
	return inner.Kind == hir.KindTuple && len(inner.Elems) > 0 || g.classOf(inner) != nil && g.findMethod(g.classOf(inner), "__bool__") == nil && g.findMethod(g.classOf(inner), "__len__") == nil
}

func isNoneLit(e hir.Expr) bool {
	l, ok := e.(*hir.Lit)
	return ok && l.Kind == hir.LitNone
}

// narrowable returns the optional local n for pattern binding.
func (g *generator) narrowable(n *hir.Name) (val, hir.Type, bool) {
	ctx := g.fn
	if _, ok := ctx.lookup(n.ID, true); ok {
		return val{}, hir.Unknown, false
	}
	if _, ok := g.globals[n.ID]; ok {
		return val{}, hir.Unknown, false
	}
	v := g.name(n)
	if v.t.Kind != hir.KindOptional || v.code != Sanitize(n.ID) {
		return val{}, hir.Unknown, false
	}
	return v, v.t.Elem(), true
}

// letElse binds the payload of an optional for the rest of the block when
// control only continues past test while the name holds a value.
func (g *generator) letElse(test hir.Expr, cont bool, out *rust.Block, orElse func() *rust.Block) bool {
	ctx := g.fn
	n, some, ok := g.optionalTest(test)
	if !ok || some != cont {
		return false
	}
	v, inner, ok := g.narrowable(n)
	if !ok {
		return false
	}
	if l := ctx.scope.Lookup(n.ID); l == nil || len(l.Versions) > 1 {
		return false
	}
	name := Sanitize(n.ID)
	value := v.code
	b := binding{code: name, t: inner, narrowed: true, owned: true}
	if !inner.IsCopy() && len(ctx.loops) > 0 && !bindsName(ctx.loops[len(ctx.loops)-1].body, n.ID) {
		value = "&" + v.code
		b.ref, b.owned = refShared, false
	}
	pat := name
	if b.ref == refNone && ctx.plan.Mutable(n.ID) {
		pat = "mut " + name
	}
	els := orElse()
	g.flush(out)
	out.Add(&rust.LetElse{Pattern: "Some(" + pat + ")", Value: rust.R(value), Else: els})
	ctx.bind(n.ID, b)
	return true
}

// bindsName reports whether b assigns name.
func bindsName(b hir.Block, name string) bool {
	return hir.BlockContains(b, func(n hir.Node) bool {
		switch s := n.(type) {
		case *hir.Assign:
			for _, t := range hir.Names(s.Target) {
				if t == name {
					return true
				}
			}
		case *hir.AugAssign:
			if t, ok := s.Target.(*hir.Name); ok && t.ID == name {
				return true
			}
		case *hir.Walrus:
			return s.Target.ID == name
		case *hir.For:
			for _, t := range hir.Names(s.Target) {
				if t == name {
					return true
				}
			}
		}
		return false
	})
}

// mutatesName reports whether b changes the value bound to name in place.
func (g *generator) mutatesName(b hir.Block, name string) bool {
	return hir.BlockContains(b, func(n hir.Node) bool {
		switch s := n.(type) {
		case *hir.MethodCall:
			if r, ok := s.Recv.(*hir.Name); ok && r.ID == name {
				return g.isMutatingCall(s)
			}
		case *hir.Assign:
			return subjectIs(s.Target, name)
		case *hir.AugAssign:
			return subjectIs(s.Target, name)
		case *hir.ContainerRemove:
			r, ok := s.Container.(*hir.Name)
			return ok && r.ID == name
		}
		return false
	})
}

// ifLet renders an if whose condition tests optionals or union members
// as a pattern match binding the narrowed values.
func (g *generator) ifLet(s *hir.If) rust.Expr {
	ctx := g.fn
	if x := g.ifInstance(s); x != nil {
		return x
	}
	conj := flattenAnd(s.Cond)
	type test struct {
		n     *hir.Name
		v     val
		inner hir.Type
	}
	var tests []test
	for len(conj) > 0 {
		n, some, ok := g.optionalTest(conj[0])
		if !ok || !some {
			break
		}
		v, inner, ok := g.narrowable(n)
		if !ok || bindsName(s.Then, n.ID) {
			break
		}
		tests = append(tests, test{n, v, inner})
		conj = conj[1:]
	}
	if len(tests) == 0 {
		if n, some, ok := g.optionalTest(s.Cond); ok && !some && len(s.Else) > 0 {
			// if x is None: a else: b
			if v, inner, ok := g.narrowable(n); ok && !bindsName(s.Else, n.ID) {
				pat, value, b := g.somePattern(n, v, inner, s.Else)
				els := g.blockWith(blockKey{s, slotElse}, s.Else, map[string]binding{n.ID: b})
				then := g.block(blockKey{s, slotBody}, s.Then)
				return &rust.IfLet{Pattern: pat, Value: rust.R(value), Then: els, Else: then}
			}
		}
		return nil
	}
	if len(conj) > 0 && len(s.Else) > 0 {
		return nil
	}
	binds := map[string]binding{}
	var pats, values []string
	for _, t := range tests {
		pat, value, b := g.somePattern(t.n, t.v, t.inner, s.Then)
		binds[t.n.ID] = b
		pats = append(pats, pat)
		values = append(values, value)
	}
	pattern, value := pats[0], values[0]
	if len(pats) > 1 {
		pattern = "(" + strings.Join(pats, ", ") + ")"
		value = "(" + strings.Join(values, ", ") + ")"
	}
	var then *rust.Block
	if len(conj) > 0 {
		ctx.push()
		for name, b := range binds {
			ctx.bind(name, b)
		}
		saved := ctx.pre
		ctx.pre = nil
		rest := make([]string, len(conj))
		for i, c := range conj {
			rest[i] = g.condPart(c, "&&")
		}
		inner := &rust.If{Cond: rust.R(strings.Join(rest, " && ")), Then: g.block(blockKey{s, slotBody}, s.Then)}
		then = rust.NewBlock(ctx.pre...)
		then.Add(&rust.ExprStmt{X: inner})
		ctx.pre = saved
		ctx.pop()
	} else {
		then = g.blockWith(blockKey{s, slotBody}, s.Then, binds)
	}
	return &rust.IfLet{Pattern: pattern, Value: rust.R(value), Then: then, Else: g.elseOf(s)}
}

// somePattern picks how `Some(x)` binds the payload of optional v.
func (g *generator) somePattern(n *hir.Name, v val, inner hir.Type, body hir.Block) (string, string, binding) {
	ctx := g.fn
	name := Sanitize(n.ID)
	b := binding{code: name, t: inner, narrowed: true}
	switch {
	case inner.IsCopy(), v.last:
		b.owned = true
		if ctx.plan.Mutable(n.ID) && g.mutatesName(body, n.ID) {
			return "Some(mut " + name + ")", v.code, b
		}
		return "Some(" + name + ")", v.code, b
	case g.mutatesName(body, n.ID):
		b.ref = refMut
		return "Some(" + name + ")", "&mut " + v.code, b
	}
	b.ref = refShared
	return "Some(" + name + ")", "&" + v.code, b
}

// ifInstance renders `if isinstance(x, T)` on a union as a match of the
// variant.
func (g *generator) ifInstance(s *hir.If) rust.Expr {
	call, ok := s.Cond.(*hir.Call)
	if !ok || len(call.Args) != 2 {
		return nil
	}
	if f, ok := call.Func.(*hir.Name); !ok || f.ID != "isinstance" {
		return nil
	}
	n, ok := call.Args[0].(*hir.Name)
	if !ok || bindsName(s.Then, n.ID) {
		return nil
	}
	if _, ok := g.fn.lookup(n.ID, true); ok {
		return nil
	}
	v := g.name(n)
	if v.t.Kind != hir.KindUnion || v.code != Sanitize(n.ID) {
		return nil
	}
	to, ok := g.narrowedIn(s.Then, n.ID, s)
	if !ok {
		return nil
	}
	vr, ok := g.variantOf(v.t, to)
	if !ok {
		return nil
	}
	b := binding{code: Sanitize(n.ID), t: vr.typ, ref: refShared, narrowed: true}
	then := g.blockWith(blockKey{s, slotBody}, s.Then, map[string]binding{n.ID: b})
	return &rust.IfLet{
		Pattern: g.unionEnum(v.t) + "::" + vr.name + "(" + Sanitize(n.ID) + ")",
		Value:   rust.R("&" + v.code),
		Then:    then,
		Else:    g.elseOf(s),
	}
}

// narrowedIn finds the type guard narrows name to inside b.
func (g *generator) narrowedIn(b hir.Block, name string, guard hir.Node) (hir.Type, bool) {
	var to hir.Type
	found := false
	hir.InspectBlock(b, func(n hir.Node) bool {
		if found {
			return false
		}
		if ref, ok := n.(*hir.Name); ok && ref.ID == name {
			if nar, ok := g.info.Narrowed[ref]; ok && nar.Guard == guard {
				to, found = nar.To, true
			}
		}
		return true
	})
	return to, found
}

func flattenAnd(e hir.Expr) []hir.Expr {
	if b, ok := e.(*hir.BinOp); ok && b.Op == "and" {
		return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
	}
	return []hir.Expr{e}
}

// ====== Loops ======

// loopLabel labels loops whose body holds a try block, since the try's
// labeled block needs break and continue to name their loop.
func (g *generator) loopLabel(body hir.Block) string {
	if hir.BlockContains(body, func(n hir.Node) bool {
		_, ok := n.(*hir.Try)
		return ok
	}) {
		return g.fn.names.label("loop")
	}
	return ""
}

func (g *generator) pushLoop(body, els hir.Block, out *rust.Block) *loopFrame {
	ctx := g.fn
	lf := &loopFrame{label: g.loopLabel(body), finals: len(ctx.finals), body: body}
	if len(els) > 0 && hir.BlockContains(body, func(n hir.Node) bool {
		_, ok := n.(*hir.Break)
		return ok
	}) {
		lf.didBreak = ctx.names.fresh("broke")
		out.Add(&rust.Let{Mut: true, Pattern: lf.didBreak, Value: rust.R("false")})
	}
	ctx.loops = append(ctx.loops, lf)
	return lf
}

func (g *generator) popLoop() { g.fn.loops = g.fn.loops[:len(g.fn.loops)-1] }

// loopElse emits the else clause, which runs when the loop ended without
// break.
func (g *generator) loopElse(owner hir.Node, lf *loopFrame, els hir.Block, out *rust.Block) {
	if len(els) == 0 {
		return
	}
	b := g.block(blockKey{owner, slotElse}, els)
	if lf.didBreak == "" {
		out.Add(&rust.ExprStmt{X: b})
		return
	}
	out.Add(&rust.ExprStmt{X: &rust.If{Cond: rust.R("!" + lf.didBreak), Then: b}})
}

func (g *generator) whileStmt(s *hir.While, out *rust.Block) {
	ctx := g.fn
	g.flush(out)
	infinite := isTrueLit(s.Cond)
	var cond string
	var pre []rust.Stmt
	if !infinite {
		cond = g.cond(s.Cond)
		pre, ctx.pre = ctx.pre, nil
	}
	lf := g.pushLoop(s.Body, s.Else, out)
	body := g.block(blockKey{s, slotBody}, s.Body)
	g.popLoop()
	switch {
	case infinite:
		out.Add(&rust.ExprStmt{X: &rust.Loop{Label: lf.label, Body: body}})
	case len(pre) > 0:
		b := rust.NewBlock(pre...)
		b.Add(&rust.ExprStmt{X: &rust.If{Cond: rust.R("!" + atomic(cond)), Then: rust.NewBlock(&rust.Semi{X: rust.R("break")})}})
		b.Add(body.Stmts...)
		out.Add(&rust.ExprStmt{X: &rust.Loop{Label: lf.label, Body: b}})
	default:
		out.Add(&rust.ExprStmt{X: &rust.While{Label: lf.label, Cond: rust.R(cond), Body: body}})
	}
	g.loopElse(s, lf, s.Else, out)
}

func isTrueLit(e hir.Expr) bool {
	l, ok := e.(*hir.Lit)
	return ok && (l.Kind == hir.LitBool && l.Bool || l.Kind == hir.LitInt && l.Int != 0)
}

func (g *generator) forStmt(s *hir.For, out *rust.Block) {
	ctx := g.fn
	src := g.iterSource(s.Iter, s.Body)
	g.flush(out)
	lf := g.pushLoop(s.Body, s.Else, out)
	ctx.push()
	body := rust.NewBlock()
	pattern := g.forTarget(s.Target, src, body)
	saved := ctx.pre
	ctx.pre = nil
	g.stmts(blockKey{s, slotBody}, s.Body, body)
	ctx.pre = saved
	ctx.pop()
	g.popLoop()
	out.Add(&rust.ExprStmt{X: &rust.For{Label: lf.label, Pattern: pattern, Iter: rust.R(src.code), Body: body}})
	g.loopElse(s, lf, s.Else, out)
}

// ====== Try ======

// tryStmt runs the body in a labeled block whose value is the first error
// raised in it, then dispatches that error over the handlers by kind.
func (g *generator) tryStmt(s *hir.Try, out *rust.Block) {
	ctx := g.fn
	g.helper("PyError")
	label := ctx.names.label("try")
	result := "__" + strings.TrimPrefix(label, "'")
	if len(s.Finally) > 0 {
		ctx.finals = append(ctx.finals, &finalFrame{owner: s, body: s.Finally})
	}
	tf := &tryFrame{label: label, closure: ctx.closure, finals: len(ctx.finals)}
	for _, h := range s.Handlers {
		if len(h.Types) == 0 {
			tf.kinds = append(tf.kinds, "Exception")
		}
		tf.kinds = append(tf.kinds, h.Types...)
	}
	ctx.tries = append(ctx.tries, tf)
	body := g.block(blockKey{s, slotBody}, s.Body)
	ctx.tries = ctx.tries[:len(ctx.tries)-1]
	terminates := hir.Terminates(s.Body)
	if !tf.used {
		// Nothing in the body can raise, so the handlers never run.
		if len(s.Finally) > 0 {
			ctx.finals = ctx.finals[:len(ctx.finals)-1]
		}
		out.Add(&rust.ExprStmt{X: body})
		if !terminates && len(s.Else) > 0 {
			out.Add(&rust.ExprStmt{X: g.block(blockKey{s, slotElse}, s.Else)})
		}
		if len(s.Finally) > 0 && !terminates {
			g.stmts(blockKey{s, slotFinally}, s.Finally, out)
		}
		return
	}
	if !terminates {
		body.Add(&rust.ExprStmt{X: rust.R("Ok(())")})
	}
	out.Add(&rust.Let{Pattern: result, Type: "Result<(), PyError>", Value: &rust.LabeledBlock{Label: label, Body: body}})

	errVar := ctx.names.fresh("e")
	okArm := rust.NewBlock()
	switch {
	case terminates:
		// The body only leaves normally through return or break.
		okArm = rust.NewBlock(&rust.ExprStmt{X: rust.R("unreachable!()")})
	case len(s.Else) > 0:
		okArm = g.block(blockKey{s, slotElse}, s.Else)
	}
	ctx.errs = append(ctx.errs, errVar)
	var chain rust.Expr
	var tail *rust.If
	attach := func(x rust.Expr) {
		if tail == nil {
			chain = x
		} else {
			tail.Else = x
		}
		if i, ok := x.(*rust.If); ok {
			tail = i
		}
	}
	caughtAll := false
	for i, h := range s.Handlers {
		cond := g.catches(h.Types, errVar)
		binds := map[string]binding{}
		if h.Name != "" {
			kind := "Exception"
			if len(h.Types) == 1 {
				kind = h.Types[0]
			}
			binds[h.Name] = binding{code: errVar, t: hir.NamedOf(kind)}
		}
		hb := g.blockWith(blockKey{s, slotHandler + i}, h.Body, binds)
		if cond == "" {
			attach(hb)
			caughtAll = true
			break
		}
		attach(&rust.If{Cond: rust.R(cond), Then: hb})
	}
	if !caughtAll {
		rethrow := rust.NewBlock()
		g.throw(errVar, rethrow)
		attach(rethrow)
	}
	ctx.errs = ctx.errs[:len(ctx.errs)-1]
	if len(s.Finally) > 0 {
		ctx.finals = ctx.finals[:len(ctx.finals)-1]
	}
	errArm := rust.NewBlock(&rust.ExprStmt{X: chain})
	if b, ok := chain.(*rust.Block); ok {
		errArm = b
	}
	out.Add(&rust.ExprStmt{X: &rust.Match{Value: rust.R(result), Arms: []rust.Arm{
		{Pattern: "Ok(())", Body: okArm},
		{Pattern: "Err(" + errVar + ")", Body: errArm},
	}}})
	exits := terminates || hir.Terminates(s.Else)
	for _, h := range s.Handlers {
		exits = exits && hir.Terminates(h.Body)
	}
	if len(s.Finally) > 0 && !exits {
		g.stmts(blockKey{s, slotFinally}, s.Finally, out)
	}
}

// catches renders the test of a handler, empty when it catches all.
func (g *generator) catches(kinds []string, errVar string) string {
	if len(kinds) == 0 {
		return ""
	}
	var parts []string
	for _, k := range kinds {
		if k == "Exception" || k == "BaseException" {
			return ""
		}
		parts = append(parts, errVar+".is_a("+rustString(k)+")")
	}
	return strings.Join(parts, " || ")
}

// ====== With ======

// withStmt scopes context managers to a block. A class manager gets
// __enter__ before the body and __exit__ on every way out of it.
func (g *generator) withStmt(s *hir.With, out *rust.Block) {
	ctx := g.fn
	g.flush(out)
	saved := ctx.pre
	ctx.pre = nil
	blk := rust.NewBlock()
	ctx.push()
	exits := 0
	for _, it := range s.Items {
		v := g.expr(it.Ctx)
		g.flush(blk)
		cl := g.classOf(v.t)
		if cl != nil && g.findMethod(cl, "__enter__") != nil {
			w := ctx.names.fresh("w")
			code := g.own(v)
			if v.place && !v.last {
				code = g.borrowMut(v)
			}
			blk.Add(&rust.Let{Mut: true, Pattern: w, Value: rust.R(code)})
			enter := g.findMethod(cl, "__enter__")
			call := w + ".__enter__()"
			if g.sigOf(enter).Fallible {
				call = g.propagate(call, it.Ctx, g.sigOf(enter).ErrorType, "")
			}
			if it.Target != nil {
				ev := val{code: call, t: g.sigOf(enter).Ret}
				if p := g.plan.Of(enter); p != nil && p.ReturnsBorrow {
					ev.ref = refMut
					ev.t = v.t
				}
				g.withTarget(it.Target, ev, blk)
			} else {
				g.flush(blk)
				blk.Add(&rust.Semi{X: rust.R(call)})
			}
			if exit := g.findMethod(cl, "__exit__"); exit != nil {
				ctx.finals = append(ctx.finals, &finalFrame{owner: s, code: g.exitCall(w, exit)})
				exits++
			}
			continue
		}
		if it.Target != nil {
			g.withTarget(it.Target, val{code: g.own(v), t: v.t}, blk)
			continue
		}
		blk.Add(&rust.Let{Pattern: ctx.names.fresh("guard"), Value: rust.R(g.own(v))})
	}
	g.stmts(blockKey{s, slotBody}, s.Body, blk)
	closing := ctx.finals[len(ctx.finals)-exits:]
	ctx.finals = ctx.finals[:len(ctx.finals)-exits]
	if !hir.Terminates(s.Body) {
		for i := len(closing) - 1; i >= 0; i-- {
			blk.Add(&rust.Semi{X: rust.R(closing[i].code)})
		}
	}
	ctx.pop()
	ctx.pre = saved
	out.Add(&rust.ExprStmt{X: blk})
}

// withTarget binds the `as` name of a with item.
func (g *generator) withTarget(target *hir.Name, v val, out *rust.Block) {
	ctx := g.fn
	d := ctx.decls[target.ID]
	if d != nil && !d.loopOnly {
		code := g.coerce(v, g.storeType(target))
		g.flush(out)
		g.store(target, code, out)
		return
	}
	name := Sanitize(target.ID)
	b := binding{code: name, t: v.t, ref: v.ref, owned: v.ref == refNone}
	g.flush(out)
	out.Add(&rust.Let{Mut: v.ref == refNone, Pattern: name, Value: rust.R(v.code)})
	ctx.bind(target.ID, b)
}

// exitCall renders __exit__ with no exception in flight.
func (g *generator) exitCall(w string, exit *hir.Function) string {
	sig := g.sigOf(exit)
	var args []string
	for i, p := range exit.Params {
		t := hir.Unknown
		if i < len(sig.Params) {
			t = sig.Params[i]
		}
		switch {
		case p.IsVararg:
			args = append(args, "Vec::<"+g.rustType(stdlib.ElementOf(t))+">::new()")
		case p.IsKwarg:
			g.use("std::collections::HashMap")
			args = append(args, "HashMap::new()")
		case t.Kind == hir.KindOptional, isValue(t):
			args = append(args, g.none(t))
		case byRef(t, g.paramPlan(exit, i).Mode):
			args = append(args, g.refOf("Default::default()", g.paramPlan(exit, i).Mode))
		default:
			args = append(args, "Default::default()")
		}
	}
	call := w + ".__exit__(" + strings.Join(args, ", ") + ")"
	if sig.Fallible || sig.Ret.Kind != hir.KindNone {
		return "let _ = " + call
	}
	return call
}
