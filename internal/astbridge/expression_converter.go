package astbridge

import (
	"github.com/pyrite-lang/pyrite/internal/ast"
	"github.com/pyrite-lang/pyrite/internal/hir"
)

// expr lowers one expression. It never returns nil for a non-nil input.
func (c *converter) expr(e ast.Expr) hir.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.Name:
		if path, ok := c.resolveDotted(n.ID); ok {
			return &hir.Qualified{Span: n.Span, Path: path}
		}
		return &hir.Name{Span: n.Span, ID: n.ID}
	case *ast.Constant:
		return literal(n)
	case *ast.BinOp:
		return &hir.BinOp{Span: n.Span, Op: n.Op, Left: c.expr(n.Left), Right: c.expr(n.Right)}
	case *ast.BoolOp:
		// a and b and c folds left: (a and b) and c.
		out := c.expr(n.Values[0])
		for _, v := range n.Values[1:] {
			out = &hir.BinOp{Span: n.Span, Op: n.Op, Left: out, Right: c.expr(v)}
		}
		return out
	case *ast.UnaryOp:
		return &hir.Unary{Span: n.Span, Op: n.Op, Operand: c.expr(n.Operand)}
	case *ast.Compare:
		return &hir.Compare{Span: n.Span, Left: c.expr(n.Left), Ops: append([]string{}, n.Ops...), Rights: c.exprs(n.Comparators)}
	case *ast.Call:
		return c.call(n)
	case *ast.Attribute:
		if path, ok := c.resolveDotted(ast.DottedName(n)); ok {
			return &hir.Qualified{Span: n.Span, Path: path}
		}
		return &hir.Attribute{Span: n.Span, Value: c.expr(n.Value), Attr: n.Attr}
	case *ast.Subscript:
		if sl, ok := n.Index.(*ast.Slice); ok {
			return &hir.SliceExpr{Span: n.Span, Value: c.expr(n.Value), Lower: c.expr(sl.Lower), Upper: c.expr(sl.Upper), Step: c.expr(sl.Step)}
		}
		return &hir.Index{Span: n.Span, Value: c.expr(n.Value), Index: c.expr(n.Index)}
	case *ast.List:
		return &hir.ListLit{Span: n.Span, Elts: c.exprs(n.Elts)}
	case *ast.Tuple:
		return &hir.TupleLit{Span: n.Span, Elts: c.exprs(n.Elts)}
	case *ast.Set:
		return &hir.SetLit{Span: n.Span, Elts: c.exprs(n.Elts)}
	case *ast.Dict:
		d := &hir.DictLit{Span: n.Span}
		for i := range n.Keys {
			d.Keys = append(d.Keys, c.expr(n.Keys[i]))
			d.Values = append(d.Values, c.expr(n.Values[i]))
		}
		return d
	case *ast.Comp:
		return c.comprehension(n)
	case *ast.Lambda:
		l := &hir.Lambda{Span: n.Span, Body: nil}
		saved := c.enterScope(nil)
		for _, p := range n.Params {
			l.Params = append(l.Params, p.Name)
			c.shadow[p.Name] = true
		}
		l.Body = c.expr(n.Body)
		c.shadow = saved
		return l
	case *ast.IfExp:
		return &hir.IfExpr{Span: n.Span, Cond: c.expr(n.Test), Then: c.expr(n.Body), Else: c.expr(n.OrElse)}
	case *ast.NamedExpr:
		return &hir.Walrus{Span: n.Span, Target: &hir.Name{Span: n.Target.Span, ID: n.Target.ID}, Value: c.expr(n.Value)}
	case *ast.JoinedStr:
		return c.fstring(n)
	case *ast.FormattedValue:
		return &hir.FString{Span: n.Span, Parts: []hir.FPart{{Expr: c.expr(n.Value), Conv: n.Conversion, Spec: n.FormatSpec}}}
	case *ast.Yield:
		c.unsupported(n.Span, "yield used as an expression value is not supported")
		return &hir.Stub{Span: n.Span, Reason: "yield expression"}
	case *ast.YieldFrom:
		c.unsupported(n.Span, "yield from used as an expression value is not supported")
		return &hir.Stub{Span: n.Span, Reason: "yield from expression"}
	case *ast.Await:
		return &hir.Await{Span: n.Span, Value: c.expr(n.Value)}
	case *ast.Starred:
		return &hir.Starred{Span: n.Span, Value: c.expr(n.Value)}
	case *ast.Slice:
		c.unsupported(n.Span, "slice outside a subscript")
		return &hir.Stub{Span: n.Span, Reason: "bare slice"}
	}
	c.unsupported(e.GetSpan(), "unsupported expression %T", e)
	return &hir.Stub{Span: e.GetSpan(), Reason: "unsupported expression"}
}

func (c *converter) exprs(es []ast.Expr) []hir.Expr {
	if len(es) == 0 {
		return nil
	}
	out := make([]hir.Expr, len(es))
	for i, e := range es {
		out[i] = c.expr(e)
	}
	return out
}

func literal(k *ast.Constant) hir.Expr {
	switch k.Kind {
	case ast.ConstNone:
		return &hir.Lit{Span: k.Span, Kind: hir.LitNone}
	case ast.ConstBool:
		return &hir.Lit{Span: k.Span, Kind: hir.LitBool, Bool: k.Bool}
	case ast.ConstInt:
		return &hir.Lit{Span: k.Span, Kind: hir.LitInt, Int: k.Int}
	case ast.ConstFloat:
		return &hir.Lit{Span: k.Span, Kind: hir.LitFloat, Float: k.Float}
	case ast.ConstBytes:
		return &hir.Lit{Span: k.Span, Kind: hir.LitBytes, Str: k.Str}
	case ast.ConstEllipsis:
		return &hir.Stub{Span: k.Span, Reason: "ellipsis"}
	}
	return &hir.Lit{Span: k.Span, Kind: hir.LitStr, Str: k.Str}
}

// call lowers calls. recv.m(args) on a value becomes MethodCall; dotted
// calls into an imported module become Call on a Qualified path.
func (c *converter) call(n *ast.Call) hir.Expr {
	if name, ok := n.Func.(*ast.Name); ok && !c.shadow[name.ID] {
		switch name.ID {
		case "eval", "exec", "compile", "globals", "locals":
			c.unsupported(n.Span, "%s() is not supported", name.ID)
			return &hir.Stub{Span: n.Span, Reason: name.ID}
		}
	}
	args := c.exprs(n.Args)
	kws := c.keywords(n.Keywords)
	if attr, ok := n.Func.(*ast.Attribute); ok {
		if path, ok := c.resolveDotted(ast.DottedName(attr)); ok {
			return &hir.Call{Span: n.Span, Func: &hir.Qualified{Span: attr.Span, Path: path}, Args: args, Keywords: kws}
		}
		if attr.Attr == "add_argument" {
			c.noteValidatorRefs(n)
		}
		return &hir.MethodCall{Span: n.Span, Recv: c.expr(attr.Value), Method: attr.Attr, Args: args, Keywords: kws}
	}
	return &hir.Call{Span: n.Span, Func: c.expr(n.Func), Args: args, Keywords: kws}
}

func (c *converter) keywords(kws []ast.Keyword) []hir.Keyword {
	if len(kws) == 0 {
		return nil
	}
	out := make([]hir.Keyword, len(kws))
	for i, k := range kws {
		out[i] = hir.Keyword{Name: k.Arg, Value: c.expr(k.Value)}
	}
	return out
}

// noteValidatorRefs records functions passed as type= to add_argument.
func (c *converter) noteValidatorRefs(n *ast.Call) {
	for _, k := range n.Keywords {
		if k.Arg != "type" {
			continue
		}
		if id, ok := k.Value.(*ast.Name); ok {
			c.validatorRefs = append(c.validatorRefs, id.ID)
		}
	}
}

// comprehension lowers every comprehension form to one node with its
// for/if fragments in source order.
func (c *converter) comprehension(n *ast.Comp) hir.Expr {
	out := &hir.Comprehension{Span: n.Span}
	switch n.Kind {
	case ast.ListComp:
		out.Kind = hir.CompList
	case ast.SetComp:
		out.Kind = hir.CompSet
	case ast.DictComp:
		out.Kind = hir.CompDict
	default:
		out.Kind = hir.CompGenerator
	}
	saved := c.enterScope(nil)
	for _, g := range n.Generators {
		// The iterable of a clause is evaluated before its target binds.
		iter := c.expr(g.Iter)
		for _, id := range targetNames(g.Target) {
			c.shadow[id] = true
		}
		out.Clauses = append(out.Clauses, hir.CompClause{Kind: hir.ClauseFor, Target: c.expr(g.Target), Iter: iter})
		for _, cond := range g.Ifs {
			out.Clauses = append(out.Clauses, hir.CompClause{Kind: hir.ClauseIf, Cond: c.expr(cond)})
		}
	}
	if n.Key != nil {
		out.Key = c.expr(n.Key)
	}
	out.Elt = c.expr(n.Elt)
	c.shadow = saved
	return out
}

func (c *converter) fstring(n *ast.JoinedStr) hir.Expr {
	out := &hir.FString{Span: n.Span}
	for _, v := range n.Values {
		switch p := v.(type) {
		case *ast.Constant:
			out.Parts = append(out.Parts, hir.FPart{Lit: p.Str})
		case *ast.FormattedValue:
			out.Parts = append(out.Parts, hir.FPart{Expr: c.expr(p.Value), Conv: p.Conversion, Spec: p.FormatSpec})
		default:
			out.Parts = append(out.Parts, hir.FPart{Expr: c.expr(v)})
		}
	}
	return out
}

// enterScope starts a nested shadowing scope seeded with the current one
// and the given names. It returns the previous scope for restoring.
func (c *converter) enterScope(names []string) map[string]bool {
	saved := c.shadow
	next := make(map[string]bool, len(saved)+len(names))
	for k, v := range saved {
		next[k] = v
	}
	for _, n := range names {
		next[n] = true
	}
	c.shadow = next
	return saved
}
