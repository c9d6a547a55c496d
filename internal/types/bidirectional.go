package types

import (
	"github.com/pyrite-lang/pyrite/internal/astbridge"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// Synthesize infers the type of e in env. During the annotation walk the
// result is also recorded in Info.Types.
func (c *Checker) Synthesize(e hir.Expr, env *Env) hir.Type {
	return c.synth(e, env)
}

// Check verifies e against expected and reports whether the inferred
// type fits. Literals adopt the expected type where a widening applies,
// and empty containers take their element types from it.
func (c *Checker) Check(e hir.Expr, expected hir.Type, env *Env) bool {
	t := c.checkExpr(e, expected, env)
	return c.lat.Compatible(t, expected) || c.coercible(t, expected)
}

func (c *Checker) synth(e hir.Expr, env *Env) hir.Type {
	if e == nil {
		return hir.Unknown
	}
	return c.record(e, c.infer(e, env))
}

// checkExpr is the checking mode of the bidirectional pair. It returns
// the type it assigned to e.
func (c *Checker) checkExpr(e hir.Expr, expected hir.Type, env *Env) hir.Type {
	if e == nil {
		return hir.Unknown
	}
	switch n := e.(type) {
	case *hir.Lit:
		if n.Kind == hir.LitInt && expected.Kind == hir.KindFloat {
			return c.record(e, hir.Float)
		}
		if n.Kind == hir.LitInt && expected.Kind == hir.KindOptional && expected.Elems[0].Kind == hir.KindFloat {
			return c.record(e, hir.Float)
		}
	case *hir.ListLit:
		if expected.Kind == hir.KindList {
			if len(n.Elts) == 0 {
				c.eq(c.varFor(n, 0), expected.Elems[0], "empty list", n.Span)
				return c.record(e, expected)
			}
			if c.checkElems(n.Elts, expected.Elems[0], env) {
				return c.record(e, expected)
			}
			return c.record(e, c.infer(e, env))
		}
	case *hir.SetLit:
		if expected.Kind == hir.KindSet && c.checkElems(n.Elts, expected.Elems[0], env) {
			return c.record(e, expected)
		}
	case *hir.DictLit:
		if expected.Kind == hir.KindDict {
			if len(n.Keys) == 0 {
				c.eq(c.varFor(n, 0), expected.Elems[0], "empty dict", n.Span)
				c.eq(c.varFor(n, 1), expected.Elems[1], "empty dict", n.Span)
				return c.record(e, expected)
			}
			ok := !containsNil(n.Keys)
			if ok {
				ok = c.checkElems(n.Keys, expected.Elems[0], env) && c.checkElems(n.Values, expected.Elems[1], env)
			}
			if ok {
				return c.record(e, expected)
			}
			return c.record(e, c.infer(e, env))
		}
	case *hir.TupleLit:
		if expected.Kind == hir.KindTuple && len(expected.Elems) == len(n.Elts) {
			elems := make([]hir.Type, len(n.Elts))
			for i, x := range n.Elts {
				elems[i] = c.checkExpr(x, expected.Elems[i], env)
			}
			return c.record(e, hir.TupleOf(elems...))
		}
	case *hir.Call:
		// list(), dict() and set() take their element types from the slot.
		if f, ok := n.Func.(*hir.Name); ok && len(n.Args) == 0 && !env.Has(f.ID) {
			kinds := map[string]hir.Kind{"list": hir.KindList, "dict": hir.KindDict, "set": hir.KindSet}
			if k, ok := kinds[f.ID]; ok && expected.Kind == k {
				c.synth(f, env)
				return c.record(e, expected)
			}
		}
	case *hir.Lambda:
		if expected.Kind == hir.KindCallable {
			return c.record(e, c.lambda(n, expected, env))
		}
	case *hir.IfExpr:
		c.synth(n.Cond, env)
		tenv, eenv := env.Fork(), env.Fork()
		c.narrow(n.Cond, tenv, true, n)
		c.narrow(n.Cond, eenv, false, n)
		t := c.checkExpr(n.Then, expected, tenv)
		f := c.checkExpr(n.Else, expected, eenv)
		return c.record(e, c.lat.LUB(t, f))
	}
	return c.synth(e, env)
}

// checkElems checks every element against elem and reports whether all
// of them fit.
func (c *Checker) checkElems(es []hir.Expr, elem hir.Type, env *Env) bool {
	ok := true
	for _, x := range es {
		if s, isStar := x.(*hir.Starred); isStar {
			t := c.synth(s, env)
			if !c.lat.Compatible(c.elementOf(t), elem) {
				ok = false
			}
			continue
		}
		t := c.checkExpr(x, elem, env)
		if !c.lat.Compatible(t, elem) && !c.coercible(t, elem) {
			ok = false
		}
		c.sub(t, elem, "container element", x.GetSpan())
	}
	return ok
}

func containsNil(es []hir.Expr) bool {
	for _, e := range es {
		if e == nil {
			return true
		}
	}
	return false
}

func (c *Checker) infer(e hir.Expr, env *Env) hir.Type {
	switch n := e.(type) {
	case *hir.Lit:
		return litType(n)
	case *hir.Name:
		return c.name(n, env)
	case *hir.Qualified:
		return c.qualified(n)
	case *hir.BinOp:
		return c.binOp(n, env)
	case *hir.Unary:
		t := c.synth(n.Operand, env)
		switch n.Op {
		case "not":
			return hir.Bool
		case "~":
			c.hint(t, protoNumeric, hir.Int)
			return hir.Int
		}
		if t.Kind == hir.KindBool {
			return hir.Int
		}
		if t.Kind == hir.KindVar {
			c.weakHint(t, protoNumeric)
		}
		return t
	case *hir.Compare:
		return c.compare(n, env)
	case *hir.Call:
		return c.call(n, env)
	case *hir.MethodCall:
		return c.methodCall(n, env)
	case *hir.Attribute:
		return c.attribute(n, env)
	case *hir.Index:
		return c.index(n, env)
	case *hir.SliceExpr:
		v := c.synth(n.Value, env)
		for _, b := range []hir.Expr{n.Lower, n.Upper, n.Step} {
			if b != nil {
				c.sub(c.synth(b, env), hir.Int, "slice bound", b.GetSpan())
			}
		}
		switch v.Kind {
		case hir.KindList, hir.KindString:
			return v
		case hir.KindTuple:
			return hir.ListOf(stdlib.ElementOf(v))
		case hir.KindVar:
			c.weakHint(v, weakIter)
		}
		return hir.Unknown
	case *hir.ListLit:
		if len(n.Elts) == 0 {
			return hir.ListOf(c.varFor(n, 0))
		}
		return hir.ListOf(c.lat.Join(c.elemTypes(n.Elts, env)))
	case *hir.SetLit:
		if len(n.Elts) == 0 {
			return hir.SetOf(c.varFor(n, 0))
		}
		return hir.SetOf(c.lat.Join(c.elemTypes(n.Elts, env)))
	case *hir.TupleLit:
		elems := make([]hir.Type, len(n.Elts))
		for i, x := range n.Elts {
			elems[i] = c.synth(x, env)
		}
		return hir.TupleOf(elems...)
	case *hir.DictLit:
		return c.dictLit(n, env)
	case *hir.Comprehension:
		return c.comprehension(n, env)
	case *hir.Lambda:
		return c.lambda(n, hir.Unknown, env)
	case *hir.IfExpr:
		c.synth(n.Cond, env)
		tenv, eenv := env.Fork(), env.Fork()
		c.narrow(n.Cond, tenv, true, n)
		c.narrow(n.Cond, eenv, false, n)
		return c.lat.LUB(c.synth(n.Then, tenv), c.synth(n.Else, eenv))
	case *hir.Walrus:
		v := c.synth(n.Value, env)
		env.Bind(n.Target.ID, v, n.Target, n)
		t, _, _, _ := env.Lookup(n.Target.ID)
		c.record(n.Target, t)
		return v
	case *hir.FString:
		for _, p := range n.Parts {
			if p.Expr != nil {
				c.bound(c.synth(p.Expr, env), "Display")
			}
		}
		return hir.Str
	case *hir.Yield:
		v := hir.None
		if n.Value != nil {
			v = c.synth(n.Value, env)
		}
		if c.fn != nil {
			if n.From {
				c.sub(c.elementOf(v), c.fn.Yield, "value yielded by "+c.fn.Name, n.Span)
			} else {
				c.sub(v, c.fn.Yield, "value yielded by "+c.fn.Name, n.Span)
			}
		}
		return hir.None
	case *hir.Await:
		return c.synth(n.Value, env)
	case *hir.Starred:
		return c.synth(n.Value, env)
	case *hir.Stub:
		return hir.Unknown
	}
	return hir.Unknown
}

func litType(n *hir.Lit) hir.Type {
	switch n.Kind {
	case hir.LitNone:
		return hir.None
	case hir.LitBool:
		return hir.Bool
	case hir.LitInt:
		return hir.Int
	case hir.LitFloat:
		return hir.Float
	case hir.LitBytes:
		return hir.NamedOf(stdlib.TypeBytes)
	}
	return hir.Str
}

// elemTypes synthesizes container elements; a starred element
// contributes the elements of its operand.
func (c *Checker) elemTypes(es []hir.Expr, env *Env) []hir.Type {
	ts := make([]hir.Type, 0, len(es))
	for _, x := range es {
		t := c.synth(x, env)
		if _, ok := x.(*hir.Starred); ok {
			t = c.elementOf(t)
		}
		ts = append(ts, t)
	}
	return ts
}

func (c *Checker) dictLit(n *hir.DictLit, env *Env) hir.Type {
	if len(n.Keys) == 0 {
		return hir.DictOf(c.varFor(n, 0), c.varFor(n, 1))
	}
	var keys, vals []hir.Type
	for i := range n.Keys {
		v := c.synth(n.Values[i], env)
		if n.Keys[i] == nil {
			// {**other} spreads a mapping.
			if v.Kind == hir.KindDict {
				keys = append(keys, v.Elems[0])
				vals = append(vals, v.Elems[1])
			} else {
				keys = append(keys, hir.Unknown)
				vals = append(vals, hir.Unknown)
			}
			continue
		}
		keys = append(keys, c.synth(n.Keys[i], env))
		vals = append(vals, v)
	}
	return hir.DictOf(c.lat.Join(keys), c.lat.Join(vals))
}

// builtinTypes are the builtin names that denote types when used as
// values.
var builtinTypes = map[string]hir.Type{
	"int": hir.Int, "float": hir.Float, "str": hir.Str, "bool": hir.Bool,
	"list": hir.ListOf(hir.Unknown), "dict": hir.DictOf(hir.Unknown, hir.Unknown),
	"set": hir.SetOf(hir.Unknown), "tuple": hir.TupleOf(), "bytes": hir.NamedOf(stdlib.TypeBytes),
}

// builtinNames are builtins without a recipe that still resolve.
var builtinNames = map[string]bool{
	"super": true, "type": true, "object": true, "iter": true, "next": true, "map": true,
	"filter": true, "callable": true, "getattr": true, "setattr": true, "hasattr": true,
	"id": true, "hash": true, "format": true, "vars": true, "dir": true, "frozenset": true,
	"bytearray": true, "NotImplemented": true, "Ellipsis": true, "slice": true,
	"staticmethod": true, "classmethod": true, "property": true, "quit": true,
}

func (c *Checker) name(n *hir.Name, env *Env) hir.Type {
	if t, v, nar, ok := env.Lookup(n.ID); ok {
		c.info.Versions[n] = v
		if nar != nil && c.final {
			c.info.Narrowed[n] = *nar
		}
		return t
	}
	if f := c.nested[n.ID]; f != nil {
		return callableOf(c.sigs[f])
	}
	if f := c.mod.Function(n.ID); f != nil {
		return callableOf(c.sigs[f])
	}
	if cl, ok := c.classes[n.ID]; ok {
		return hir.NamedOf(stdlib.TypeType, hir.NamedOf(cl.Name))
	}
	if t, ok := c.info.Constants[n.ID]; ok {
		return t
	}
	if c.fn != nil {
		if l := c.info.Main.Lookup(n.ID); l != nil {
			return l.Type()
		}
	}
	switch n.ID {
	case "__name__", "__file__", "__doc__":
		return hir.Str
	}
	if t, ok := builtinTypes[n.ID]; ok {
		return hir.NamedOf(stdlib.TypeType, t)
	}
	if c.exceptions[n.ID] || astbridge.IsBuiltinException(n.ID) {
		return hir.NamedOf(stdlib.TypeType, hir.NamedOf(n.ID))
	}
	if c.reg.HasFunc(n.ID) || builtinNames[n.ID] {
		return hir.CallableOf(nil, hir.Unknown)
	}
	if c.mod.IsTypeVar(n.ID) {
		return hir.Unknown
	}
	for _, a := range c.mod.Aliases {
		if a.Name == n.ID {
			return hir.NamedOf(stdlib.TypeType, a.Type)
		}
	}
	c.errorf(diagnostic.CodeUnknownName, n.Span, "name %q is not defined", n.ID)
	return hir.Unknown
}

func callableOf(sig *Signature) hir.Type {
	if sig == nil {
		return hir.CallableOf(nil, hir.Unknown)
	}
	return hir.CallableOf(sig.Params, sig.Ret)
}

func (c *Checker) qualified(n *hir.Qualified) hir.Type {
	if rc, ok := c.reg.Value(n.Path); ok {
		return rc.ResultType(hir.Unknown, nil)
	}
	if c.reg.HasFunc(n.Path) {
		return hir.CallableOf(nil, hir.Unknown)
	}
	return hir.Unknown
}

func (c *Checker) binOp(n *hir.BinOp, env *Env) hir.Type {
	switch n.Op {
	case "and", "or":
		l := c.synth(n.Left, env)
		renv := env.Fork()
		c.narrow(n.Left, renv, n.Op == "and", n)
		r := c.synth(n.Right, renv)
		env.adopt(renv)
		if l.Kind == hir.KindBool && r.Kind == hir.KindBool {
			return hir.Bool
		}
		if n.Op == "or" && l.Kind == hir.KindOptional {
			return c.lat.LUB(l.Elems[0], r)
		}
		return c.lat.LUB(l, r)
	}
	l := c.synth(n.Left, env)
	r := c.synth(n.Right, env)
	return c.arith(n.Op, l, r, n.Span)
}

// arithTraits maps operators onto the trait a type parameter needs.
var arithTraits = map[string]string{"+": "Add", "-": "Sub", "*": "Mul", "/": "Div"}

// arith types a binary arithmetic, bitwise or sequence operator.
func (c *Checker) arith(op string, l, r hir.Type, span position.Span) hir.Type {
	lv, rv := l.Kind == hir.KindVar, r.Kind == hir.KindVar
	switch {
	case lv && rv:
		if trait, ok := arithTraits[op]; ok {
			c.eq(l, r, "operands of "+op, span)
			c.bound(l, trait)
			return l
		}
		return hir.Unknown
	case lv:
		c.arithHint(l, op, r)
		return withVarOperand(op, r)
	case rv:
		c.arithHint(r, op, l)
		return withVarOperand(op, l)
	case l.IsUnknown() || r.IsUnknown():
		return hir.Unknown
	}
	if l.Kind == hir.KindNamed && r.Kind == hir.KindNamed && l.Name == r.Name && c.isTypeParam(l.Name) {
		if trait, ok := arithTraits[op]; ok {
			c.bound(l, trait)
		}
		return l
	}
	if l.Kind == hir.KindBool && r.Kind == hir.KindBool && (op == "&" || op == "|" || op == "^") {
		return hir.Bool
	}
	ln, rn := numeric(l), numeric(r)
	switch {
	case ln.IsNumeric() && rn.IsNumeric():
		if op == "/" {
			return hir.Float
		}
		if ln.Kind == hir.KindFloat || rn.Kind == hir.KindFloat {
			return hir.Float
		}
		return hir.Int
	case l.Kind == hir.KindString:
		switch {
		case op == "+" && r.Kind == hir.KindString, op == "*" && rn.Kind == hir.KindInt, op == "%":
			return hir.Str
		}
	case ln.Kind == hir.KindInt && r.Kind == hir.KindString && op == "*":
		return hir.Str
	case l.Kind == hir.KindList:
		if op == "+" && r.Kind == hir.KindList {
			return hir.ListOf(c.lat.LUB(l.Elems[0], r.Elems[0]))
		}
		if op == "*" && rn.Kind == hir.KindInt {
			return l
		}
	case ln.Kind == hir.KindInt && r.Kind == hir.KindList && op == "*":
		return r
	case l.Kind == hir.KindTuple && r.Kind == hir.KindTuple && op == "+":
		return hir.TupleOf(append(append([]hir.Type{}, l.Elems...), r.Elems...)...)
	case l.Kind == hir.KindSet && r.Kind == hir.KindSet:
		switch op {
		case "|", "&", "-", "^":
			return hir.SetOf(c.lat.LUB(l.Elems[0], r.Elems[0]))
		}
	case l.Kind == hir.KindDict && r.Kind == hir.KindDict && op == "|":
		return c.lat.LUB(l, r)
	case l.Kind == hir.KindNamed:
		if t, ok := c.namedArith(op, l, r); ok {
			return t
		}
	}
	c.errorf(diagnostic.CodeTypeMismatch, span, "unsupported operand types for %s: %s and %s", op, l, r)
	return hir.Unknown
}

// namedArith covers datetime arithmetic and user classes defining the
// operator method.
func (c *Checker) namedArith(op string, l, r hir.Type) (hir.Type, bool) {
	dt, td := stdlib.TypeDatetime, stdlib.TypeDuration
	switch {
	case l.Name == dt && r.Kind == hir.KindNamed && r.Name == td && (op == "+" || op == "-"):
		return l, true
	case l.Name == dt && r.Kind == hir.KindNamed && r.Name == dt && op == "-":
		return hir.NamedOf(td), true
	case l.Name == td && r.Kind == hir.KindNamed && r.Name == td && (op == "+" || op == "-"):
		return l, true
	case l.Name == td && numeric(r).IsNumeric() && (op == "*" || op == "/"):
		return l, true
	}
	dunder := map[string]string{"+": "__add__", "-": "__sub__", "*": "__mul__", "/": "__truediv__",
		"//": "__floordiv__", "%": "__mod__", "@": "__matmul__"}
	if name, ok := dunder[op]; ok {
		if m := c.findMethod(l.Name, name); m != nil {
			return c.sigs[m].Ret, true
		}
	}
	if c.opaqueNamed(l) {
		return hir.Unknown, true
	}
	return hir.Unknown, false
}

func (c *Checker) isTypeParam(name string) bool {
	return c.mod.IsTypeVar(name) || c.isPromoted(name)
}

// numeric maps bool onto int for arithmetic.
func numeric(t hir.Type) hir.Type {
	if t.Kind == hir.KindBool {
		return hir.Int
	}
	return t
}

// arithHint records what arithmetic with a typed operand says about a
// parameter variable.
func (c *Checker) arithHint(v hir.Type, op string, other hir.Type) {
	switch other = numeric(other); other.Kind {
	case hir.KindInt, hir.KindFloat:
		c.hint(v, protoNumeric, other)
	case hir.KindString:
		if op == "+" {
			c.hint(v, protoStr, hir.Str)
		}
	case hir.KindList:
		if op == "+" {
			c.hint(v, protoList, other)
		}
	}
}

func withVarOperand(op string, other hir.Type) hir.Type {
	other = numeric(other)
	switch other.Kind {
	case hir.KindInt, hir.KindFloat:
		if op == "/" {
			return hir.Float
		}
		return other
	case hir.KindString, hir.KindList:
		if op == "+" {
			return other
		}
	}
	return hir.Unknown
}

func (c *Checker) compare(n *hir.Compare, env *Env) hir.Type {
	prev := c.synth(n.Left, env)
	for i, op := range n.Ops {
		r := c.synth(n.Rights[i], env)
		if op != "in" && op != "not in" && prev.Kind == hir.KindVar && r.Kind == hir.KindVar {
			c.eq(prev, r, "compared operands", n.Span)
		}
		switch op {
		case "<", ">", "<=", ">=":
			c.bound(prev, "PartialOrd")
			c.bound(r, "PartialOrd")
			c.compareHint(prev, r)
			c.compareHint(r, prev)
		case "==", "!=":
			c.bound(prev, "PartialEq")
			c.bound(r, "PartialEq")
			c.compareHint(prev, r)
			c.compareHint(r, prev)
		case "in", "not in":
			c.bound(prev, "PartialEq")
			c.bound(c.elementOf(r), "PartialEq")
			c.weakHint(r, weakIter)
			if prev.Kind == hir.KindVar && r.Kind == hir.KindString {
				c.hint(prev, protoStr, hir.Str)
			}
		}
		prev = r
	}
	return hir.Bool
}

func (c *Checker) compareHint(v, other hir.Type) {
	switch numeric(other).Kind {
	case hir.KindInt, hir.KindFloat:
		c.hint(v, protoNumeric, numeric(other))
	case hir.KindString:
		c.hint(v, protoStr, hir.Str)
	}
}

// elementOf is the type produced by iterating over t.
func (c *Checker) elementOf(t hir.Type) hir.Type {
	switch {
	case t.Kind == hir.KindVar:
		return hir.Unknown
	case t.Kind == hir.KindNamed && t.Name == stdlib.TypeFile:
		return hir.Str
	case t.Kind == hir.KindNamed && t.Name == stdlib.TypeBytes:
		return hir.Int
	}
	return stdlib.ElementOf(t)
}

func (c *Checker) comprehension(n *hir.Comprehension, env *Env) hir.Type {
	cenv := env.Fork()
	for _, cl := range n.Clauses {
		switch cl.Kind {
		case hir.ClauseFor:
			it := c.synth(cl.Iter, cenv)
			c.weakHint(it, weakIter)
			c.bindTarget(cl.Target, c.elementOf(it), cenv, n, true)
		case hir.ClauseIf:
			c.synth(cl.Cond, cenv)
			c.narrow(cl.Cond, cenv, true, n)
		}
	}
	var key hir.Type
	if n.Kind == hir.CompDict {
		key = c.synth(n.Key, cenv)
	}
	elt := c.synth(n.Elt, cenv)
	switch n.Kind {
	case hir.CompList:
		return hir.ListOf(elt)
	case hir.CompSet:
		return hir.SetOf(elt)
	case hir.CompDict:
		return hir.DictOf(key, elt)
	}
	return hir.NamedOf(stdlib.TypeIter, elt)
}

func (c *Checker) lambda(n *hir.Lambda, expected hir.Type, env *Env) hir.Type {
	lenv := env.Fork()
	params := make([]hir.Type, len(n.Params))
	want := expected.Params()
	for i, p := range n.Params {
		t := hir.Unknown
		if i < len(want) {
			t = want[i]
		}
		params[i] = t
		lenv.BindLocal(p, t, n)
	}
	return hir.CallableOf(params, c.synth(n.Body, lenv))
}

// call types a call of a user function, class, builtin or qualified
// module symbol.
func (c *Checker) call(n *hir.Call, env *Env) hir.Type {
	ft := c.synth(n.Func, env)
	if f, ok := n.Func.(*hir.Name); ok && !env.Has(f.ID) {
		if fn := c.nested[f.ID]; fn != nil {
			return c.applyCall(c.sigs[fn], n, n.Args, n.Keywords, env)
		}
		if fn := c.mod.Function(f.ID); fn != nil {
			return c.applyCall(c.sigs[fn], n, n.Args, n.Keywords, env)
		}
		if cl, ok := c.classes[f.ID]; ok {
			return c.construct(cl, n, n.Args, n.Keywords, env)
		}
		if f.ID == "super" {
			return c.superType()
		}
		if astbridge.IsBuiltinException(f.ID) {
			c.synthArgs(n.Args, n.Keywords, env)
			return hir.NamedOf(f.ID)
		}
		return c.builtinCall(f.ID, n, env)
	}
	if q, ok := n.Func.(*hir.Qualified); ok {
		return c.builtinCall(q.Path, n, env)
	}
	c.synthArgs(n.Args, n.Keywords, env)
	if ft.Kind == hir.KindCallable {
		return ft.Result()
	}
	if ft.Kind == hir.KindNamed && ft.Name == stdlib.TypeType && len(ft.Elems) == 1 {
		return ft.Elems[0]
	}
	c.opaqueUse(ft)
	return hir.Unknown
}

func (c *Checker) synthArgs(args []hir.Expr, kws []hir.Keyword, env *Env) []hir.Type {
	ts := make([]hir.Type, len(args))
	for i, a := range args {
		ts[i] = c.synth(a, env)
	}
	for _, k := range kws {
		c.synth(k.Value, env)
	}
	return ts
}

// builtinCall types a call through the stdlib registry.
func (c *Checker) builtinCall(path string, n *hir.Call, env *Env) hir.Type {
	args := make([]hir.Type, len(n.Args))
	for i, a := range n.Args {
		args[i] = c.synth(a, env)
	}
	for _, k := range n.Keywords {
		if k.Name == "key" && len(args) > 0 {
			c.checkExpr(k.Value, hir.CallableOf([]hir.Type{c.elementOf(args[0])}, hir.Unknown), env)
			continue
		}
		c.synth(k.Value, env)
	}
	switch path {
	case "len":
		for _, a := range args {
			c.weakHint(a, weakIter)
		}
	case "print", "str", "repr":
		for _, a := range args {
			c.bound(a, "Display")
		}
	case "sum":
		if len(args) > 0 {
			c.weakHint(args[0], weakIter)
		}
	case "sorted", "min", "max":
		if len(args) == 1 {
			c.weakHint(args[0], weakIter)
			c.bound(c.elementOf(args[0]), "PartialOrd")
			c.bound(c.elementOf(args[0]), "Clone")
		} else {
			for _, a := range args {
				c.bound(a, "PartialOrd")
			}
		}
	case "abs", "round":
		if len(args) > 0 {
			c.hint(args[0], protoNumeric, hir.Int)
		}
	case "list", "set", "tuple", "enumerate", "reversed", "any", "all":
		if len(args) > 0 {
			c.weakHint(args[0], weakIter)
		}
	}
	rc, ok := c.reg.Call(path, args)
	if !ok {
		return hir.Unknown
	}
	if c.final {
		c.recipes[n] = rc
	}
	return rc.ResultType(hir.Unknown, args)
}

// instantiate substitutes fresh per-call variables for the type
// parameters of sig: declared TypeVars first, then promoted ones.
func (c *Checker) instantiate(sig *Signature, node hir.Node) ([]hir.Type, hir.Type) {
	var names []string
	seen := map[string]bool{}
	collect := func(pred func(string) bool) {
		for _, t := range append(append([]hir.Type{}, sig.Params...), sig.Ret) {
			mapNamed(t, func(n hir.Type) {
				if n.Kind == hir.KindNamed && len(n.Elems) == 0 && !seen[n.Name] && pred(n.Name) {
					seen[n.Name] = true
					names = append(names, n.Name)
				}
			})
		}
	}
	collect(c.mod.IsTypeVar)
	collect(c.isPromoted)
	if len(names) == 0 {
		return sig.Params, sig.Ret
	}
	subst := make(map[string]hir.Type, len(names))
	for i, name := range names {
		subst[name] = c.varFor(node, i)
	}
	apply := func(t hir.Type) hir.Type {
		return t.Map(func(u hir.Type) hir.Type {
			if u.Kind == hir.KindNamed && len(u.Elems) == 0 {
				if v, ok := subst[u.Name]; ok {
					return v
				}
			}
			return u
		})
	}
	params := make([]hir.Type, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = apply(p)
	}
	return params, apply(sig.Ret)
}

// applyCall checks arguments against sig and returns its result type.
func (c *Checker) applyCall(sig *Signature, node hir.Node, args []hir.Expr, kws []hir.Keyword, env *Env) hir.Type {
	if sig == nil {
		c.synthArgs(args, kws, env)
		return hir.Unknown
	}
	if c.final {
		c.callees[node] = sig
	}
	params, ret := c.instantiate(sig, node)
	f := sig.Func
	var positional []int
	vararg, kwarg := -1, -1
	for i, p := range f.Params {
		switch {
		case p.IsVararg:
			vararg = i
		case p.IsKwarg:
			kwarg = i
		case !p.KeywordOnly && vararg < 0:
			positional = append(positional, i)
		}
	}
	for i, a := range args {
		if _, ok := a.(*hir.Starred); ok {
			c.synth(a, env)
			continue
		}
		var want hir.Type
		reason := ""
		switch {
		case i < len(positional):
			want = params[positional[i]]
			reason = "argument " + f.Params[positional[i]].Name + " of " + sig.Name
		case vararg >= 0:
			want = params[vararg].Elem()
			reason = "variadic argument of " + sig.Name
		default:
			c.synth(a, env)
			c.errorf(diagnostic.CodeTypeMismatch, a.GetSpan(), "too many arguments for %s", sig.Name)
			continue
		}
		t := c.checkExpr(a, want, env)
		c.sub(t, want, reason, a.GetSpan())
	}
	for _, k := range kws {
		idx := -1
		for i, p := range f.Params {
			if p.Name == k.Name && !p.IsVararg && !p.IsKwarg {
				idx = i
			}
		}
		switch {
		case idx >= 0:
			t := c.checkExpr(k.Value, params[idx], env)
			c.sub(t, params[idx], "argument "+k.Name+" of "+sig.Name, k.Value.GetSpan())
		case kwarg >= 0 && k.Name != "":
			t := c.synth(k.Value, env)
			c.sub(t, params[kwarg].ValueType(), "keyword argument "+k.Name+" of "+sig.Name, k.Value.GetSpan())
		default:
			c.synth(k.Value, env)
		}
	}
	return ret
}

// construct types a class instantiation.
func (c *Checker) construct(cl *hir.Class, node hir.Node, args []hir.Expr, kws []hir.Keyword, env *Env) hir.Type {
	if init := c.findMethod(cl.Name, "__init__"); init != nil {
		c.applyCall(c.sigs[init], node, args, kws, env)
		return hir.NamedOf(cl.Name)
	}
	if cl.IsDataclass {
		for i, a := range args {
			if i >= len(cl.Fields) {
				c.synth(a, env)
				continue
			}
			want, _ := c.fieldType(cl.Name, cl.Fields[i].Name)
			c.sub(c.checkExpr(a, want, env), want, "field "+cl.Fields[i].Name+" of "+cl.Name, a.GetSpan())
		}
		for _, k := range kws {
			want, ok := c.fieldType(cl.Name, k.Name)
			if !ok {
				c.synth(k.Value, env)
				continue
			}
			c.sub(c.checkExpr(k.Value, want, env), want, "field "+k.Name+" of "+cl.Name, k.Value.GetSpan())
		}
		return hir.NamedOf(cl.Name)
	}
	c.synthArgs(args, kws, env)
	return hir.NamedOf(cl.Name)
}

// superType is the type of super() inside a method: the first base
// declared in the module, or Unknown for builtin bases.
func (c *Checker) superType() hir.Type {
	if c.cls == nil {
		return hir.Unknown
	}
	for _, b := range c.cls.Bases {
		if _, ok := c.classes[b]; ok {
			return hir.NamedOf(b)
		}
	}
	return hir.Unknown
}

func (c *Checker) methodCall(n *hir.MethodCall, env *Env) hir.Type {
	recv := c.synth(n.Recv, env)
	class := ""
	switch {
	case recv.Kind == hir.KindNamed && len(recv.Elems) == 0:
		class = recv.Name
	case recv.Kind == hir.KindNamed && recv.Name == stdlib.TypeType && len(recv.Elems) == 1:
		class = recv.Elems[0].Name
	}
	if _, ok := c.classes[class]; ok {
		if m := c.findMethod(class, n.Method); m != nil {
			return c.applyCall(c.sigs[m], n, n.Args, n.Keywords, env)
		}
	}
	args := make([]hir.Type, len(n.Args))
	for i, a := range n.Args {
		want := c.slotOf(recv, n.Method, i)
		args[i] = c.checkExpr(a, want, env)
	}
	for _, k := range n.Keywords {
		if k.Name == "key" {
			c.checkExpr(k.Value, hir.CallableOf([]hir.Type{c.elementOf(recv)}, hir.Unknown), env)
			continue
		}
		c.synth(k.Value, env)
	}
	if recv.Kind == hir.KindVar {
		c.methodHint(recv, n.Method, args)
	}
	c.elementConstraints(recv, n, args)
	if n.Method == "__init__" && recv.IsUnknown() {
		return hir.None
	}
	if n.Method == "join" && recv.Kind == hir.KindString && len(args) == 1 {
		c.weakHint(args[0], weakIter)
	}
	rc, ok := c.reg.Method(recv, n.Method, len(args))
	if !ok {
		return hir.Unknown
	}
	if c.final {
		c.recipes[n] = rc
	}
	return rc.ResultType(recv, args)
}

// slotOf is the expected type of argument i of a container method, used
// so literals adopt the container's element type.
func (c *Checker) slotOf(recv hir.Type, method string, i int) hir.Type {
	switch recv.Kind {
	case hir.KindList:
		if (method == "append" && i == 0) || (method == "insert" && i == 1) {
			return recv.Elems[0]
		}
	case hir.KindSet:
		if method == "add" && i == 0 {
			return recv.Elems[0]
		}
	case hir.KindDict:
		if method == "setdefault" || method == "get" || method == "pop" {
			return recv.Elems[i%2]
		}
	}
	return hir.Unknown
}

// methodHint records which receiver protocol a method call on a
// parameter variable implies.
func (c *Checker) methodHint(v hir.Type, method string, args []hir.Type) {
	elem := hir.Unknown
	if len(args) > 0 && (method == "append" || method == "add") {
		elem = args[0]
	}
	candidates := []struct {
		proto string
		t     hir.Type
	}{
		{protoStr, hir.Str},
		{protoList, hir.ListOf(elem)},
		{protoDict, hir.DictOf(hir.Unknown, hir.Unknown)},
		{protoSet, hir.SetOf(elem)},
	}
	var matched []int
	for i, cand := range candidates {
		if rc, ok := c.reg.Method(cand.t, method, len(args)); ok && rc.On == stdlib.KindOf(cand.t) {
			matched = append(matched, i)
		}
	}
	switch len(matched) {
	case 0:
		c.opaqueUse(v)
	case 1:
		cand := candidates[matched[0]]
		c.hint(v, cand.proto, cand.t)
	default:
		c.weakHint(v, weakIter)
	}
}

// elementConstraints ties values stored through container methods to the
// container's element types.
func (c *Checker) elementConstraints(recv hir.Type, n *hir.MethodCall, args []hir.Type) {
	arg := func(i int) (hir.Type, position.Span, bool) {
		if i < len(args) {
			return args[i], n.Args[i].GetSpan(), true
		}
		return hir.Unknown, n.Span, false
	}
	switch recv.Kind {
	case hir.KindList:
		switch n.Method {
		case "append":
			if t, sp, ok := arg(0); ok {
				c.sub(t, recv.Elems[0], "element appended to list", sp)
			}
		case "insert":
			if t, sp, ok := arg(1); ok {
				c.sub(t, recv.Elems[0], "element inserted into list", sp)
			}
		case "extend":
			if t, sp, ok := arg(0); ok {
				c.weakHint(t, weakIter)
				c.sub(c.elementOf(t), recv.Elems[0], "elements extending list", sp)
			}
		}
	case hir.KindSet:
		switch n.Method {
		case "add":
			if t, sp, ok := arg(0); ok {
				c.sub(t, recv.Elems[0], "element added to set", sp)
			}
		case "update":
			if t, sp, ok := arg(0); ok {
				c.sub(c.elementOf(t), recv.Elems[0], "elements added to set", sp)
			}
		}
	case hir.KindDict:
		switch n.Method {
		case "setdefault":
			if t, sp, ok := arg(0); ok {
				c.sub(t, recv.Elems[0], "dictionary key", sp)
			}
			if t, sp, ok := arg(1); ok {
				c.sub(t, recv.Elems[1], "dictionary value", sp)
			}
		case "update":
			if t, sp, ok := arg(0); ok && t.Kind == hir.KindDict {
				c.sub(t.Elems[0], recv.Elems[0], "dictionary key", sp)
				c.sub(t.Elems[1], recv.Elems[1], "dictionary value", sp)
			}
		}
	case hir.KindNamed:
		if recv.Name == stdlib.TypeDeque && len(recv.Elems) == 1 && (n.Method == "append" || n.Method == "appendleft") {
			if t, sp, ok := arg(0); ok {
				c.sub(t, recv.Elems[0], "element appended to deque", sp)
			}
		}
	}
}

func (c *Checker) attribute(n *hir.Attribute, env *Env) hir.Type {
	recv := c.synth(n.Value, env)
	switch {
	case recv.Kind == hir.KindVar:
		c.opaqueUse(recv)
		return hir.Unknown
	case recv.Kind == hir.KindNamed && recv.Name == stdlib.TypeType && len(recv.Elems) == 1:
		if t, ok := c.fieldType(recv.Elems[0].Name, n.Attr); ok {
			return t
		}
		if m := c.findMethod(recv.Elems[0].Name, n.Attr); m != nil {
			return callableOf(c.sigs[m])
		}
		return hir.Unknown
	case recv.Kind == hir.KindNamed:
		if _, ok := c.classes[recv.Name]; ok {
			if t, ok := c.fieldType(recv.Name, n.Attr); ok {
				return t
			}
			if m := c.findMethod(recv.Name, n.Attr); m != nil {
				return callableOf(c.sigs[m])
			}
			return hir.Unknown
		}
	}
	if rc, ok := c.reg.Method(recv, "@"+n.Attr, 0); ok {
		return rc.ResultType(recv, nil)
	}
	return hir.Unknown
}

func (c *Checker) index(n *hir.Index, env *Env) hir.Type {
	v := c.synth(n.Value, env)
	i := c.synth(n.Index, env)
	switch v.Kind {
	case hir.KindList:
		c.sub(i, hir.Int, "list index", n.Index.GetSpan())
		c.bound(v.Elems[0], "Clone")
		return v.Elems[0]
	case hir.KindDict:
		c.sub(i, v.Elems[0], "dictionary key", n.Index.GetSpan())
		c.bound(v.Elems[1], "Clone")
		return v.Elems[1]
	case hir.KindString:
		return hir.Str
	case hir.KindTuple:
		if lit, ok := n.Index.(*hir.Lit); ok && lit.Kind == hir.LitInt {
			k := int(lit.Int)
			if k < 0 {
				k += len(v.Elems)
			}
			if k >= 0 && k < len(v.Elems) {
				return v.Elems[k]
			}
			c.errorf(diagnostic.CodeTypeMismatch, n.Span, "tuple index %d out of range for %s", lit.Int, v)
			return hir.Unknown
		}
		return c.lat.Join(v.Elems)
	case hir.KindNamed:
		switch v.Name {
		case stdlib.TypeDeque:
			return c.elementOf(v)
		case stdlib.TypeMatch:
			return hir.OptionalOf(hir.Str)
		}
	case hir.KindVar:
		switch i.Kind {
		case hir.KindInt, hir.KindBool:
			c.weakHint(v, weakIndexInt)
		case hir.KindString:
			c.weakHint(v, weakIndexStr)
		default:
			c.weakHint(v, weakIter)
		}
	}
	return hir.Unknown
}
