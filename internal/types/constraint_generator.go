package types

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// block walks the statements of b in env.
func (c *Checker) block(b hir.Block, env *Env) {
	for _, s := range b {
		c.stmt(s, env)
	}
}

func (c *Checker) stmt(s hir.Stmt, env *Env) {
	switch s := s.(type) {
	case *hir.Assign:
		c.assign(s, env)
	case *hir.AugAssign:
		c.augAssign(s, env)
	case *hir.AnnDecl:
		env.Declare(s.Target.ID, s.Annotation, s.Target, s)
		c.record(s.Target, s.Annotation)
	case *hir.If:
		c.synth(s.Cond, env)
		then, els := env.Fork(), env.Fork()
		c.narrow(s.Cond, then, true, s)
		c.narrow(s.Cond, els, false, s)
		c.block(s.Then, then)
		c.block(s.Else, els)
		var live []*Env
		if !hir.Terminates(s.Then) {
			live = append(live, then)
		}
		if !hir.Terminates(s.Else) {
			live = append(live, els)
		}
		env.Join(live...)
	case *hir.While:
		c.synth(s.Cond, env)
		body := env.Fork()
		c.narrow(s.Cond, body, true, s)
		c.block(s.Body, body)
		env.Join(env, body)
		if !isTrue(s.Cond) {
			c.narrow(s.Cond, env, false, s)
		}
		c.block(s.Else, env)
	case *hir.For:
		it := c.synth(s.Iter, env)
		c.weakHint(it, weakIter)
		body := env.Fork()
		c.bindTarget(s.Target, c.elementOf(it), body, s, false)
		c.block(s.Body, body)
		env.Join(env, body)
		c.block(s.Else, env)
	case *hir.Try:
		c.try(s, env)
	case *hir.With:
		for _, item := range s.Items {
			t := c.synth(item.Ctx, env)
			if item.Target != nil {
				bt := c.enterType(t)
				env.Bind(item.Target.ID, bt, item.Target, s)
				c.record(item.Target, bt)
			}
		}
		c.block(s.Body, env)
	case *hir.Raise:
		if cl, ok := c.classes[s.Exc]; ok {
			c.construct(cl, s, s.Args, nil, env)
		} else {
			for _, a := range s.Args {
				c.synth(a, env)
			}
		}
		c.synth(s.Cause, env)
	case *hir.Return:
		if c.fn == nil {
			c.synth(s.Value, env)
			return
		}
		if c.fn.Func.Props.Generator {
			c.synth(s.Value, env)
			return
		}
		if s.Value == nil {
			c.sub(hir.None, c.fn.Ret, "return value of "+c.fn.Name, s.Span)
			return
		}
		t := c.checkExpr(s.Value, c.fn.Ret, env)
		c.sub(t, c.fn.Ret, "return value of "+c.fn.Name, s.Value.GetSpan())
	case *hir.FuncDef:
		c.nested[s.Func.Name] = s.Func
		c.walkBody(s.Func, env)
	case *hir.ExprStmt:
		c.synth(s.X, env)
	case *hir.ContainerRemove:
		ct := c.synth(s.Container, env)
		kt := c.synth(s.Key, env)
		switch ct.Kind {
		case hir.KindDict:
			c.sub(kt, ct.Elems[0], "dictionary key", s.Key.GetSpan())
		case hir.KindList:
			c.sub(kt, hir.Int, "list index", s.Key.GetSpan())
		case hir.KindVar:
			c.weakHint(ct, weakIter)
		}
	case *hir.DeleteVar:
		env.Delete(s.Name)
	case *hir.Assert:
		c.synth(s.Test, env)
		c.synth(s.Msg, env)
		c.narrow(s.Test, env, true, s)
	}
}

func isTrue(e hir.Expr) bool {
	lit, ok := e.(*hir.Lit)
	return ok && lit.Kind == hir.LitBool && lit.Bool
}

func (c *Checker) assign(s *hir.Assign, env *Env) {
	switch t := s.Target.(type) {
	case *hir.Name:
		if s.Annotation != nil {
			decl := *s.Annotation
			vt := c.checkExpr(s.Value, decl, env)
			c.sub(vt, decl, "assignment to "+t.ID, s.Value.GetSpan())
			env.Declare(t.ID, decl, t, s)
			c.record(t, decl)
			return
		}
		if loc := env.scope.Lookup(t.ID); loc != nil && loc.Declared {
			decl := loc.Type()
			vt := c.checkExpr(s.Value, decl, env)
			c.sub(vt, decl, "assignment to "+t.ID, s.Value.GetSpan())
			env.Bind(t.ID, decl, t, s)
			c.record(t, decl)
			return
		}
		vt := c.synth(s.Value, env)
		if copiesValue(s.Value) {
			c.bound(vt, "Clone")
		}
		env.Bind(t.ID, vt, t, s)
		bt, _, _, _ := env.Lookup(t.ID)
		c.record(t, bt)
	case *hir.Attribute:
		recv := c.synth(t.Value, env)
		slot, ok := c.attrSlot(recv, t.Attr)
		if !ok {
			vt := c.synth(s.Value, env)
			c.record(t, vt)
			return
		}
		vt := c.checkExpr(s.Value, slot, env)
		c.sub(vt, slot, "assignment to field "+t.Attr, s.Value.GetSpan())
		c.record(t, slot)
	case *hir.Index:
		recv := c.synth(t.Value, env)
		kt := c.synth(t.Index, env)
		switch recv.Kind {
		case hir.KindDict:
			vt := c.checkExpr(s.Value, recv.Elems[1], env)
			c.sub(kt, recv.Elems[0], "dictionary key", t.Index.GetSpan())
			c.sub(vt, recv.Elems[1], "dictionary value", s.Value.GetSpan())
			c.record(t, recv.Elems[1])
		case hir.KindList:
			vt := c.checkExpr(s.Value, recv.Elems[0], env)
			c.sub(kt, hir.Int, "list index", t.Index.GetSpan())
			c.sub(vt, recv.Elems[0], "list element", s.Value.GetSpan())
			c.record(t, recv.Elems[0])
		default:
			if recv.Kind == hir.KindVar {
				if kt.Kind == hir.KindString {
					c.weakHint(recv, weakIndexStr)
				} else {
					c.weakHint(recv, weakIndexInt)
				}
			}
			c.synth(s.Value, env)
			c.record(t, hir.Unknown)
		}
	default:
		vt := c.synth(s.Value, env)
		c.bindTarget(s.Target, vt, env, s, false)
	}
}

// copiesValue reports whether binding e duplicates a value that stays
// reachable through another path.
func copiesValue(e hir.Expr) bool {
	switch e.(type) {
	case *hir.Name, *hir.Attribute, *hir.Index:
		return true
	}
	return false
}

// attrSlot is the declared type of recv.attr for module classes.
func (c *Checker) attrSlot(recv hir.Type, attr string) (hir.Type, bool) {
	switch recv.Kind {
	case hir.KindVar:
		c.opaqueUse(recv)
	case hir.KindNamed:
		if _, ok := c.classes[recv.Name]; ok {
			return c.fieldType(recv.Name, attr)
		}
	}
	return hir.Unknown, false
}

func (c *Checker) augAssign(s *hir.AugAssign, env *Env) {
	vt := c.synth(s.Value, env)
	switch t := s.Target.(type) {
	case *hir.Name:
		cur := c.synth(t, env)
		res := c.arith(s.Op, cur, vt, s.Span)
		if loc := env.scope.Lookup(t.ID); loc != nil && loc.Declared {
			c.sub(res, loc.Type(), "assignment to "+t.ID, s.Span)
		}
		if res.IsUnknown() {
			res = cur
		}
		env.Bind(t.ID, res, t, s)
		bt, _, _, _ := env.Lookup(t.ID)
		c.record(t, bt)
	case *hir.Attribute:
		recv := c.synth(t.Value, env)
		slot, ok := c.attrSlot(recv, t.Attr)
		if !ok {
			c.record(t, hir.Unknown)
			return
		}
		res := c.arith(s.Op, slot, vt, s.Span)
		c.sub(res, slot, "assignment to field "+t.Attr, s.Span)
		c.record(t, slot)
	case *hir.Index:
		recv := c.synth(t.Value, env)
		kt := c.synth(t.Index, env)
		var cur hir.Type
		switch recv.Kind {
		case hir.KindDict:
			c.sub(kt, recv.Elems[0], "dictionary key", t.Index.GetSpan())
			cur = recv.Elems[1]
		case hir.KindList:
			c.sub(kt, hir.Int, "list index", t.Index.GetSpan())
			cur = recv.Elems[0]
		default:
			c.record(t, hir.Unknown)
			return
		}
		res := c.arith(s.Op, cur, vt, s.Span)
		c.sub(res, cur, "element update", s.Span)
		c.record(t, cur)
	}
}

// bindTarget binds an assignment, loop or comprehension target to t,
// destructuring tuples and lists.
func (c *Checker) bindTarget(target hir.Expr, t hir.Type, env *Env, at hir.Node, compLocal bool) {
	switch x := target.(type) {
	case *hir.Name:
		if compLocal {
			env.BindLocal(x.ID, t, at)
			c.info.Versions[x] = 0
			c.record(x, t)
			return
		}
		env.Bind(x.ID, t, x, at)
		bt, _, _, _ := env.Lookup(x.ID)
		c.record(x, bt)
	case *hir.TupleLit:
		c.bindElems(x.Elts, t, env, at, compLocal)
		c.record(x, t)
	case *hir.ListLit:
		c.bindElems(x.Elts, t, env, at, compLocal)
		c.record(x, t)
	case *hir.Starred:
		c.bindTarget(x.Value, hir.ListOf(c.elementOf(t)), env, at, compLocal)
		c.record(x, t)
	default:
		c.synth(target, env)
	}
}

func (c *Checker) bindElems(elts []hir.Expr, t hir.Type, env *Env, at hir.Node, compLocal bool) {
	if t.Kind == hir.KindVar {
		c.weakHint(t, weakIter)
	}
	for i, e := range elts {
		et := hir.Unknown
		switch {
		case t.Kind == hir.KindTuple && len(t.Elems) == len(elts):
			et = t.Elems[i]
		case t.Kind == hir.KindTuple:
			et = c.lat.Join(t.Elems)
		case !t.IsUnknown():
			et = c.elementOf(t)
		}
		if _, ok := e.(*hir.Starred); ok && t.Kind == hir.KindTuple {
			c.bindTarget(e, hir.ListOf(c.lat.Join(t.Elems)), env, at, compLocal)
			continue
		}
		c.bindTarget(e, et, env, at, compLocal)
	}
}

func (c *Checker) try(s *hir.Try, env *Env) {
	body := env.Fork()
	c.block(s.Body, body)
	c.block(s.Else, body)
	var live []*Env
	if !hir.Terminates(s.Body) && !hir.Terminates(s.Else) {
		live = append(live, body)
	}
	for _, h := range s.Handlers {
		henv := env.Fork()
		henv.Join(env, body)
		if h.Name != "" {
			henv.BindLocal(h.Name, exceptionType(h), s)
		}
		c.block(h.Body, henv)
		if !hir.Terminates(h.Body) {
			live = append(live, henv)
		}
	}
	env.Join(live...)
	c.block(s.Finally, env)
}

// exceptionType is the type a handler binds its name to.
func exceptionType(h hir.Handler) hir.Type {
	if len(h.Types) == 1 {
		return hir.NamedOf(h.Types[0])
	}
	return hir.NamedOf("Exception")
}

// enterType is the value a with statement binds: the result of
// __enter__ for module classes, the manager itself otherwise.
func (c *Checker) enterType(t hir.Type) hir.Type {
	if t.Kind == hir.KindNamed {
		if _, ok := c.classes[t.Name]; ok {
			if m := c.findMethod(t.Name, "__enter__"); m != nil {
				if ret := c.sigs[m].Ret; !ret.IsUnknown() && ret.Kind != hir.KindNone {
					return ret
				}
			}
		}
		if t.Name == stdlib.TypeFile {
			return t
		}
	}
	return t
}
