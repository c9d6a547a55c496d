package hir

// Inspect traverses node in depth-first order, calling f for every node
// before its children. If f returns false the children are skipped.
// Nested function bodies are visited through their FuncDef; return false
// for *FuncDef to stay within one function.
func Inspect(node Node, f func(Node) bool) {
	if node == nil || !f(node) {
		return
	}
	switch n := node.(type) {
	case *Name, *Lit, *Qualified, *Stub:
	case *BinOp:
		inspectExprs(f, n.Left, n.Right)
	case *Unary:
		inspectExprs(f, n.Operand)
	case *Compare:
		inspectExprs(f, n.Left)
		inspectExprs(f, n.Rights...)
	case *Call:
		inspectExprs(f, n.Func)
		inspectExprs(f, n.Args...)
		inspectKeywords(f, n.Keywords)
	case *MethodCall:
		inspectExprs(f, n.Recv)
		inspectExprs(f, n.Args...)
		inspectKeywords(f, n.Keywords)
	case *Attribute:
		inspectExprs(f, n.Value)
	case *Index:
		inspectExprs(f, n.Value, n.Index)
	case *SliceExpr:
		inspectExprs(f, n.Value, n.Lower, n.Upper, n.Step)
	case *ListLit:
		inspectExprs(f, n.Elts...)
	case *SetLit:
		inspectExprs(f, n.Elts...)
	case *TupleLit:
		inspectExprs(f, n.Elts...)
	case *DictLit:
		for i := range n.Keys {
			inspectExprs(f, n.Keys[i], n.Values[i])
		}
	case *Comprehension:
		for _, c := range n.Clauses {
			inspectExprs(f, c.Target, c.Iter, c.Cond)
		}
		inspectExprs(f, n.Key, n.Elt)
	case *Lambda:
		inspectExprs(f, n.Body)
	case *IfExpr:
		inspectExprs(f, n.Cond, n.Then, n.Else)
	case *Walrus:
		inspectExprs(f, n.Target, n.Value)
	case *FString:
		for _, p := range n.Parts {
			inspectExprs(f, p.Expr)
		}
	case *Yield:
		inspectExprs(f, n.Value)
	case *Await:
		inspectExprs(f, n.Value)
	case *Starred:
		inspectExprs(f, n.Value)

	case *Assign:
		inspectExprs(f, n.Target, n.Value)
	case *AugAssign:
		inspectExprs(f, n.Target, n.Value)
	case *AnnDecl:
		inspectExprs(f, n.Target)
	case *If:
		inspectExprs(f, n.Cond)
		InspectBlock(n.Then, f)
		InspectBlock(n.Else, f)
	case *While:
		inspectExprs(f, n.Cond)
		InspectBlock(n.Body, f)
		InspectBlock(n.Else, f)
	case *For:
		inspectExprs(f, n.Target, n.Iter)
		InspectBlock(n.Body, f)
		InspectBlock(n.Else, f)
	case *Try:
		InspectBlock(n.Body, f)
		for _, h := range n.Handlers {
			InspectBlock(h.Body, f)
		}
		InspectBlock(n.Else, f)
		InspectBlock(n.Finally, f)
	case *With:
		for _, it := range n.Items {
			inspectExprs(f, it.Ctx)
			if it.Target != nil {
				inspectExprs(f, it.Target)
			}
		}
		InspectBlock(n.Body, f)
	case *Raise:
		inspectExprs(f, n.Args...)
		inspectExprs(f, n.Cause)
	case *Return:
		inspectExprs(f, n.Value)
	case *FuncDef:
		for _, p := range n.Func.Params {
			inspectExprs(f, p.Default)
		}
		InspectBlock(n.Func.Body, f)
	case *ClassDef:
		for _, m := range n.Class.Methods {
			InspectBlock(m.Body, f)
		}
	case *ExprStmt:
		inspectExprs(f, n.X)
	case *ContainerRemove:
		inspectExprs(f, n.Container, n.Key)
	case *Assert:
		inspectExprs(f, n.Test, n.Msg)
	}
}

// InspectBlock runs Inspect over every statement of b.
func InspectBlock(b Block, f func(Node) bool) {
	for _, s := range b {
		Inspect(s, f)
	}
}

func inspectExprs(f func(Node) bool, exprs ...Expr) {
	for _, e := range exprs {
		if e != nil && !isNilName(e) {
			Inspect(e, f)
		}
	}
}

func inspectKeywords(f func(Node) bool, kws []Keyword) {
	for _, kw := range kws {
		inspectExprs(f, kw.Value)
	}
}

// isNilName guards against typed nil pointers stored in Expr fields.
func isNilName(e Expr) bool {
	n, ok := e.(*Name)
	return ok && n == nil
}

// Contains reports whether pred holds for root or any node under it. It
// never enters a function or class definition, root included: a nested
// def is tested itself but its body belongs to another function.
func Contains(root Node, pred func(Node) bool) bool {
	found := false
	Inspect(root, func(n Node) bool {
		if found {
			return false
		}
		if pred(n) {
			found = true
			return false
		}
		switch n.(type) {
		case *FuncDef, *ClassDef:
			return false
		}
		return true
	})
	return found
}

// BlockContains is Contains over a statement list.
func BlockContains(b Block, pred func(Node) bool) bool {
	for _, s := range b {
		if Contains(s, pred) {
			return true
		}
	}
	return false
}

// Names returns the identifiers bound by an assignment or loop target.
func Names(target Expr) []string {
	switch t := target.(type) {
	case *Name:
		return []string{t.ID}
	case *TupleLit:
		var out []string
		for _, e := range t.Elts {
			out = append(out, Names(e)...)
		}
		return out
	case *ListLit:
		var out []string
		for _, e := range t.Elts {
			out = append(out, Names(e)...)
		}
		return out
	case *Starred:
		return Names(t.Value)
	}
	return nil
}

// Terminates reports whether control never falls off the end of b: its
// last statement returns, raises, breaks or continues, or is an if whose
// branches all terminate.
func Terminates(b Block) bool {
	if len(b) == 0 {
		return false
	}
	switch s := b[len(b)-1].(type) {
	case *Return, *Raise, *Break, *Continue:
		return true
	case *If:
		return Terminates(s.Then) && Terminates(s.Else)
	case *Try:
		if Terminates(s.Finally) {
			return true
		}
		if !Terminates(s.Body) && !Terminates(s.Else) {
			return false
		}
		for _, h := range s.Handlers {
			if !Terminates(h.Body) {
				return false
			}
		}
		return true
	}
	return false
}
