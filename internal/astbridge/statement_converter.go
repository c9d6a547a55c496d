package astbridge

import (
	"strings"

	"github.com/pyrite-lang/pyrite/internal/ast"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
)

func (c *converter) block(body []ast.Stmt) hir.Block {
	var out hir.Block
	for _, s := range body {
		out = append(out, c.stmt(s)...)
	}
	return out
}

// stmt lowers one statement. Assignments may expand to several.
func (c *converter) stmt(s ast.Stmt) []hir.Stmt {
	switch n := s.(type) {
	case *ast.ExprStmt:
		switch v := n.Value.(type) {
		case *ast.Constant:
			if v.Kind == ast.ConstStr {
				return one(&hir.Docstring{Span: n.Span, Text: v.Str})
			}
			if v.Kind == ast.ConstEllipsis {
				return one(&hir.Pass{Span: n.Span})
			}
		case *ast.Yield:
			return one(&hir.ExprStmt{Span: n.Span, X: &hir.Yield{Span: v.Span, Value: c.expr(v.Value)}})
		case *ast.YieldFrom:
			return one(&hir.ExprStmt{Span: n.Span, X: &hir.Yield{Span: v.Span, Value: c.expr(v.Value), From: true}})
		}
		return one(&hir.ExprStmt{Span: n.Span, X: c.expr(n.Value)})
	case *ast.Assign:
		return c.assign(n)
	case *ast.AugAssign:
		return one(&hir.AugAssign{Span: n.Span, Target: c.expr(n.Target), Op: n.Op, Value: c.expr(n.Value)})
	case *ast.AnnAssign:
		ann := c.annotationOf(n.Annotation)
		if n.Value == nil {
			if id, ok := n.Target.(*ast.Name); ok {
				return one(&hir.AnnDecl{Span: n.Span, Target: &hir.Name{Span: id.Span, ID: id.ID}, Annotation: ann.Type})
			}
			// self.x: int inside a method declares the field only.
			return one(&hir.Pass{Span: n.Span})
		}
		t := ann.Type
		return one(&hir.Assign{Span: n.Span, Target: c.expr(n.Target), Annotation: &t, Value: c.expr(n.Value)})
	case *ast.Return:
		return one(&hir.Return{Span: n.Span, Value: c.expr(n.Value)})
	case *ast.Delete:
		return c.delete(n)
	case *ast.If:
		return one(&hir.If{Span: n.Span, Cond: c.expr(n.Test), Then: c.block(n.Body), Else: c.block(n.OrElse)})
	case *ast.While:
		return one(&hir.While{Span: n.Span, Cond: c.expr(n.Test), Body: c.block(n.Body), Else: c.block(n.OrElse)})
	case *ast.For:
		iter := c.expr(n.Iter)
		c.bindLocals(targetNames(n.Target))
		return one(&hir.For{Span: n.Span, Target: c.expr(n.Target), Iter: iter, Body: c.block(n.Body), Else: c.block(n.OrElse)})
	case *ast.With:
		return one(c.with(n))
	case *ast.Raise:
		return one(c.raise(n))
	case *ast.Try:
		return one(c.try(n))
	case *ast.Assert:
		return one(&hir.Assert{Span: n.Span, Test: c.expr(n.Test), Msg: c.expr(n.Msg)})
	case *ast.Import, *ast.ImportFrom:
		return one(&hir.ImportStmt{Span: s.GetSpan(), Imports: c.imports(s)})
	case *ast.FunctionDef:
		return one(&hir.FuncDef{Span: n.Span, Func: c.function(n, nil)})
	case *ast.ClassDef:
		c.unsupported(n.Span, "nested class %s is not supported", n.Name)
		return one(&hir.StubStmt{Span: n.Span, Reason: "nested class " + n.Name})
	case *ast.Global:
		c.unsupported(n.Span, "global statement is not supported")
		return one(&hir.StubStmt{Span: n.Span, Reason: "global"})
	case *ast.Nonlocal:
		c.unsupported(n.Span, "nonlocal statement is not supported")
		return one(&hir.StubStmt{Span: n.Span, Reason: "nonlocal"})
	case *ast.Pass:
		return one(&hir.Pass{Span: n.Span})
	case *ast.Break:
		return one(&hir.Break{Span: n.Span})
	case *ast.Continue:
		return one(&hir.Continue{Span: n.Span})
	}
	c.unsupported(s.GetSpan(), "unsupported statement %T", s)
	return one(&hir.StubStmt{Span: s.GetSpan(), Reason: "unsupported statement"})
}

func one(s hir.Stmt) []hir.Stmt { return []hir.Stmt{s} }

// bindLocals marks names assigned in the current function so they shadow
// module import bindings.
func (c *converter) bindLocals(names []string) {
	if c.shadow == nil {
		return
	}
	for _, n := range names {
		if _, imported := c.bindings[n]; imported {
			c.shadow[n] = true
		}
	}
}

// assign splits multi-target and unpacking assignments into single-target
// assignments. The right-hand side is evaluated once.
func (c *converter) assign(n *ast.Assign) []hir.Stmt {
	value := c.expr(n.Value)
	for _, t := range n.Targets {
		c.bindLocals(targetNames(t))
	}
	if len(n.Targets) == 1 {
		return c.assignTarget(n.Span, n.Targets[0], value)
	}
	var out []hir.Stmt
	if isLiteralOnly(n.Value) {
		// Literals have no side effects; each target gets its own copy.
		for _, t := range n.Targets {
			out = append(out, c.assignTarget(n.Span, t, c.expr(n.Value))...)
		}
		return out
	}
	tmp := c.fresh("tmp")
	out = append(out, &hir.Assign{Span: n.Span, Target: &hir.Name{Span: n.Span, ID: tmp}, Value: value})
	for _, t := range n.Targets {
		out = append(out, c.assignTarget(n.Span, t, &hir.Name{Span: n.Span, ID: tmp})...)
	}
	return out
}

func (c *converter) assignTarget(span position.Span, target ast.Expr, value hir.Expr) []hir.Stmt {
	var elts []ast.Expr
	switch t := target.(type) {
	case *ast.Tuple:
		elts = t.Elts
	case *ast.List:
		elts = t.Elts
	case *ast.Starred:
		c.unsupported(t.Span, "starred assignment target outside a tuple")
		return one(&hir.StubStmt{Span: t.Span, Reason: "starred target"})
	default:
		return one(&hir.Assign{Span: span, Target: c.expr(target), Value: value})
	}
	return c.unpack(span, elts, value)
}

// unpack lowers "a, *rest, b = value" to a temporary and one assignment
// per target, indexing from the front before the star and from the back
// after it.
func (c *converter) unpack(span position.Span, elts []ast.Expr, value hir.Expr) []hir.Stmt {
	tmp := c.fresh("unpack")
	out := []hir.Stmt{&hir.Assign{Span: span, Target: &hir.Name{Span: span, ID: tmp}, Value: value}}
	star := -1
	for i, e := range elts {
		if _, ok := e.(*ast.Starred); ok {
			if star >= 0 {
				c.unsupported(e.GetSpan(), "multiple starred targets")
				return append(out, &hir.StubStmt{Span: e.GetSpan(), Reason: "multiple starred targets"})
			}
			star = i
		}
	}
	ref := func() hir.Expr { return &hir.Name{Span: span, ID: tmp} }
	intLit := func(v int64) hir.Expr { return &hir.Lit{Span: span, Kind: hir.LitInt, Int: v} }
	for i, e := range elts {
		var val hir.Expr
		switch {
		case i == star:
			var upper hir.Expr
			if after := len(elts) - star - 1; after > 0 {
				upper = intLit(-int64(after))
			}
			val = &hir.SliceExpr{Span: span, Value: ref(), Lower: intLit(int64(star)), Upper: upper}
			e = e.(*ast.Starred).Value
		case star >= 0 && i > star:
			val = &hir.Index{Span: span, Value: ref(), Index: intLit(-int64(len(elts) - i))}
		default:
			val = &hir.Index{Span: span, Value: ref(), Index: intLit(int64(i))}
		}
		out = append(out, c.assignTarget(span, e, val)...)
	}
	return out
}

// delete lowers del statements: subscripts to container removal, names
// to variable deletion.
func (c *converter) delete(n *ast.Delete) []hir.Stmt {
	var out []hir.Stmt
	for _, t := range n.Targets {
		switch x := t.(type) {
		case *ast.Subscript:
			if _, ok := x.Index.(*ast.Slice); ok {
				c.unsupported(x.Span, "slice deletion is not supported")
				out = append(out, &hir.StubStmt{Span: x.Span, Reason: "del slice"})
				continue
			}
			out = append(out, &hir.ContainerRemove{Span: n.Span, Container: c.expr(x.Value), Key: c.expr(x.Index)})
		case *ast.Name:
			out = append(out, &hir.DeleteVar{Span: n.Span, Name: x.ID})
		case *ast.Tuple:
			out = append(out, c.delete(&ast.Delete{Loc: n.Loc, Targets: x.Elts})...)
		default:
			c.unsupported(t.GetSpan(), "unsupported del target")
			out = append(out, &hir.StubStmt{Span: t.GetSpan(), Reason: "del target"})
		}
	}
	return out
}

func (c *converter) with(n *ast.With) hir.Stmt {
	out := &hir.With{Span: n.Span}
	for _, it := range n.Items {
		item := hir.WithItem{Ctx: c.expr(it.ContextExpr), Mutable: c.managerMutable(it.ContextExpr)}
		switch v := it.OptionalVars.(type) {
		case nil:
		case *ast.Name:
			c.bindLocals([]string{v.ID})
			item.Target = &hir.Name{Span: v.Span, ID: v.ID}
		default:
			c.unsupported(v.GetSpan(), "with target must be a single name")
		}
		out.Items = append(out.Items, item)
	}
	out.Body = c.block(n.Body)
	return out
}

// managerMutable decides whether a with target is bound mutably: module
// classes that assign to self outside __init__, and file handles.
func (c *converter) managerMutable(ctx ast.Expr) bool {
	call, ok := ctx.(*ast.Call)
	if !ok {
		return false
	}
	name := ast.DottedName(call.Func)
	if name == "open" {
		return true
	}
	return c.mutating[name]
}

func (c *converter) raise(n *ast.Raise) hir.Stmt {
	out := &hir.Raise{Span: n.Span, Cause: c.expr(n.Cause)}
	switch e := n.Exc.(type) {
	case nil:
		out.Reraise = true
	case *ast.Call:
		if name := c.exceptionName(e.Func); c.isExceptionName(name) {
			out.Exc = name
			out.Args = c.exprs(e.Args)
			for _, k := range e.Keywords {
				out.Args = append(out.Args, c.expr(k.Value))
			}
			break
		}
		out.Args = []hir.Expr{c.expr(e)}
	case *ast.Name, *ast.Attribute:
		if name := c.exceptionName(e); c.isExceptionName(name) {
			out.Exc = name
			break
		}
		// raise err re-raises a bound exception value.
		out.Args = []hir.Expr{c.expr(e)}
	default:
		out.Args = []hir.Expr{c.expr(e)}
	}
	return out
}

func (c *converter) try(n *ast.Try) hir.Stmt {
	out := &hir.Try{Span: n.Span, Body: c.block(n.Body)}
	for _, h := range n.Handlers {
		hh := hir.Handler{Span: h.Span, Name: h.Name}
		switch t := h.Type.(type) {
		case nil:
		case *ast.Tuple:
			for _, e := range t.Elts {
				hh.Types = append(hh.Types, c.exceptionName(e))
			}
		default:
			hh.Types = []string{c.exceptionName(t)}
		}
		if h.Name != "" {
			c.bindLocals([]string{h.Name})
		}
		hh.Body = c.block(h.Body)
		out.Handlers = append(out.Handlers, hh)
	}
	out.Else = c.block(n.OrElse)
	out.Finally = c.block(n.Finally)
	return out
}

// imports resolves import statements and registers their bindings.
func (c *converter) imports(s ast.Stmt) []hir.Import {
	var out []hir.Import
	switch n := s.(type) {
	case *ast.Import:
		for _, a := range n.Names {
			target, known := c.reg.ResolveImport(a.Name, "")
			im := hir.Import{Span: n.Span, Module: a.Name, Alias: a.AsName, Target: target, Known: known}
			if a.AsName != "" {
				c.bindings[a.AsName] = a.Name
			} else {
				// import os.path binds os.
				root := a.Name
				if i := strings.IndexByte(root, '.'); i >= 0 {
					root = root[:i]
				}
				c.bindings[root] = root
			}
			if !known {
				c.unknownImport(n.Span, a.Name)
			}
			out = append(out, im)
		}
	case *ast.ImportFrom:
		if n.Level > 0 {
			c.unsupported(n.Span, "relative import from %q", n.Module)
		}
		for _, a := range n.Names {
			if a.Name == "*" {
				c.unsupported(n.Span, "wildcard import from %s", n.Module)
				continue
			}
			target, known := c.reg.ResolveImport(n.Module, a.Name)
			im := hir.Import{Span: n.Span, Module: n.Module, Name: a.Name, Alias: a.AsName, Target: target, Known: known}
			c.bindings[im.Binding()] = im.Path()
			if !known {
				c.unknownImport(n.Span, n.Module+"."+a.Name)
			}
			out = append(out, im)
		}
	}
	return out
}
