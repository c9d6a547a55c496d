package types

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// narrow applies what cond being truthy (or falsy) proves about the names
// it tests. guard is the node whose branch env belongs to.
func (c *Checker) narrow(cond hir.Expr, env *Env, truthy bool, guard hir.Node) {
	switch n := cond.(type) {
	case *hir.Unary:
		if n.Op == "not" {
			c.narrow(n.Operand, env, !truthy, guard)
		}
	case *hir.BinOp:
		switch {
		case n.Op == "and" && truthy, n.Op == "or" && !truthy:
			c.narrow(n.Left, env, truthy, guard)
			c.narrow(n.Right, env, truthy, guard)
		}
	case *hir.Compare:
		if len(n.Ops) == 1 {
			c.narrowCompare(n, env, truthy, guard)
		}
	case *hir.Call:
		if f, ok := n.Func.(*hir.Name); ok && f.ID == "isinstance" && len(n.Args) == 2 && !env.Has("isinstance") {
			c.narrowInstance(n, env, truthy, guard)
		}
	case *hir.Name:
		if truthy {
			c.stripNone(n.ID, env, guard)
		}
	case *hir.Walrus:
		if truthy {
			c.stripNone(n.Target.ID, env, guard)
		}
	}
}

func isNone(e hir.Expr) bool {
	lit, ok := e.(*hir.Lit)
	return ok && lit.Kind == hir.LitNone
}

func (c *Checker) narrowCompare(n *hir.Compare, env *Env, truthy bool, guard hir.Node) {
	var name *hir.Name
	switch {
	case isNone(n.Rights[0]):
		name, _ = n.Left.(*hir.Name)
	case isNone(n.Left):
		name, _ = n.Rights[0].(*hir.Name)
	}
	if name == nil {
		return
	}
	var toNone bool
	switch n.Ops[0] {
	case "is", "==":
		toNone = truthy
	case "is not", "!=":
		toNone = !truthy
	default:
		return
	}
	cur, _, _, ok := env.Lookup(name.ID)
	if !ok {
		return
	}
	if toNone {
		switch cur.Kind {
		case hir.KindOptional, hir.KindNone:
			c.applyNarrow(name.ID, hir.None, env, guard)
		case hir.KindVar:
			// A parameter compared with None can hold None.
			c.flow(name.ID, cur, hir.None, guard.GetSpan())
		}
		return
	}
	c.stripNone(name.ID, env, guard)
}

// stripNone narrows an optional name to its payload.
func (c *Checker) stripNone(name string, env *Env, guard hir.Node) {
	cur, _, _, ok := env.Lookup(name)
	if !ok {
		return
	}
	switch cur.Kind {
	case hir.KindOptional:
		c.applyNarrow(name, cur.Elems[0], env, guard)
	case hir.KindUnion:
		var rest []hir.Type
		for _, m := range cur.Elems {
			if m.Kind != hir.KindNone {
				rest = append(rest, m)
			}
		}
		if len(rest) < len(cur.Elems) {
			c.applyNarrow(name, hir.UnionOf(rest...), env, guard)
		}
	}
}

func (c *Checker) narrowInstance(n *hir.Call, env *Env, truthy bool, guard hir.Node) {
	name, ok := n.Args[0].(*hir.Name)
	if !ok {
		return
	}
	want := c.typeExpr(n.Args[1])
	if want.IsUnknown() {
		return
	}
	cur, _, _, ok := env.Lookup(name.ID)
	if !ok {
		return
	}
	if cur.Kind == hir.KindOptional {
		cur = hir.UnionOf(cur.Elems[0], hir.None)
	}
	members := []hir.Type{want}
	if want.Kind == hir.KindUnion {
		members = want.Elems
	}
	matches := func(t hir.Type) bool {
		for _, m := range members {
			if c.lat.IsSubtype(t, m) || sameShape(t, m) {
				return true
			}
		}
		return false
	}
	if truthy {
		switch cur.Kind {
		case hir.KindUnion:
			var keep []hir.Type
			for _, m := range cur.Elems {
				if matches(m) {
					keep = append(keep, m)
				}
			}
			if len(keep) > 0 {
				c.applyNarrow(name.ID, hir.UnionOf(keep...), env, guard)
				return
			}
		case hir.KindVar:
			return
		}
		c.applyNarrow(name.ID, want, env, guard)
		return
	}
	if cur.Kind == hir.KindUnion {
		var rest []hir.Type
		for _, m := range cur.Elems {
			if !matches(m) {
				rest = append(rest, m)
			}
		}
		if len(rest) > 0 && len(rest) < len(cur.Elems) {
			c.applyNarrow(name.ID, hir.UnionOf(rest...), env, guard)
		}
	}
}

// sameShape matches a container against the bare builtin type used in
// isinstance, such as list against List[int].
func sameShape(t, m hir.Type) bool {
	if t.Kind != m.Kind {
		return false
	}
	switch t.Kind {
	case hir.KindList, hir.KindDict, hir.KindSet, hir.KindTuple:
		return true
	}
	return false
}

func (c *Checker) applyNarrow(name string, to hir.Type, env *Env, guard hir.Node) {
	from, ok := env.Narrow(name, to, guard)
	if ok {
		c.flow(name, from, to, guard.GetSpan())
	}
}

// typeExpr reads the type an isinstance class argument denotes.
func (c *Checker) typeExpr(e hir.Expr) hir.Type {
	switch n := e.(type) {
	case *hir.Name:
		if t, ok := builtinTypes[n.ID]; ok {
			return t
		}
		if _, ok := c.classes[n.ID]; ok {
			return hir.NamedOf(n.ID)
		}
		if c.exceptions[n.ID] {
			return hir.NamedOf(n.ID)
		}
	case *hir.Qualified:
		if rc, ok := c.reg.Value(n.Path); ok {
			if t := rc.ResultType(hir.Unknown, nil); t.Kind == hir.KindNamed && t.Name == stdlib.TypeType && len(t.Elems) == 1 {
				return t.Elems[0]
			}
		}
	case *hir.TupleLit:
		var ts []hir.Type
		for _, x := range n.Elts {
			t := c.typeExpr(x)
			if t.IsUnknown() {
				return hir.Unknown
			}
			ts = append(ts, t)
		}
		return hir.UnionOf(ts...)
	}
	return hir.Unknown
}
