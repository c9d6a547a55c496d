package astbridge

import (
	"github.com/pyrite-lang/pyrite/internal/ast"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/parser"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// annotation is a converted type annotation. Final is set for Final[T]
// and bare Final.
type annotation struct {
	Type  hir.Type
	Final bool
}

// stdlibTypes maps dotted annotation names onto the named types the
// stdlib registry dispatches on.
var stdlibTypes = map[string]string{
	"re.Pattern":         stdlib.TypeRegex,
	"re.Match":           stdlib.TypeMatch,
	"typing.Pattern":     stdlib.TypeRegex,
	"typing.Match":       stdlib.TypeMatch,
	"datetime.datetime":  stdlib.TypeDatetime,
	"datetime.date":      stdlib.TypeDatetime,
	"datetime.timedelta": stdlib.TypeDuration,
	"argparse.Namespace": stdlib.TypeArgs,
	"collections.deque":  stdlib.TypeDeque,
	"typing.IO":          stdlib.TypeFile,
	"typing.TextIO":      stdlib.TypeFile,
}

// annotationOf converts an annotation expression. A nil expression is
// Unknown.
func (c *converter) annotationOf(e ast.Expr) annotation {
	if e == nil {
		return annotation{Type: hir.Unknown}
	}
	if sub, ok := e.(*ast.Subscript); ok && c.typingName(sub.Value) == "Final" {
		return annotation{Type: c.typeOf(sub.Index), Final: true}
	}
	if c.typingName(e) == "Final" {
		return annotation{Type: hir.Unknown, Final: true}
	}
	return annotation{Type: c.typeOf(e)}
}

// typingName returns the bare typing-level name of e: "List" for both
// List and typing.List, "list" for the builtin.
func (c *converter) typingName(e ast.Expr) string {
	dotted := ast.DottedName(e)
	if dotted == "" {
		return ""
	}
	if full, ok := c.resolveDotted(dotted); ok {
		dotted = full
	}
	for _, prefix := range []string{"typing.", "typing_extensions.", "collections.abc."} {
		if len(dotted) > len(prefix) && dotted[:len(prefix)] == prefix {
			return dotted[len(prefix):]
		}
	}
	return dotted
}

func (c *converter) typeOf(e ast.Expr) hir.Type {
	switch n := e.(type) {
	case nil:
		return hir.Unknown
	case *ast.Constant:
		switch n.Kind {
		case ast.ConstNone:
			return hir.None
		case ast.ConstStr:
			// Forward reference: "Node" or "List[Node]".
			inner, err := parser.ParseExpr(n.Str)
			if err != nil {
				c.warn(diagnostic.CodeUnknownType, diagnostic.CategoryType, n.Span, "cannot parse string annotation %q", n.Str)
				return hir.Unknown
			}
			return c.typeOf(inner)
		}
		return hir.Unknown
	case *ast.BinOp:
		if n.Op == "|" {
			return hir.UnionOf(c.typeOf(n.Left), c.typeOf(n.Right))
		}
	case *ast.Subscript:
		return c.genericOf(n)
	case *ast.Name, *ast.Attribute:
		return c.simpleType(e)
	}
	c.warn(diagnostic.CodeUnknownType, diagnostic.CategoryType, e.GetSpan(), "unsupported annotation form")
	return hir.Unknown
}

func (c *converter) simpleType(e ast.Expr) hir.Type {
	name := c.typingName(e)
	switch name {
	case "int":
		return hir.Int
	case "float":
		return hir.Float
	case "bool":
		return hir.Bool
	case "str":
		return hir.Str
	case "None":
		return hir.None
	case "bytes", "bytearray":
		return hir.NamedOf(stdlib.TypeBytes)
	case "Any", "object":
		return hir.Unknown
	case "list", "List", "Sequence", "Iterable", "MutableSequence":
		return hir.ListOf(hir.Unknown)
	case "dict", "Dict", "Mapping", "MutableMapping":
		return hir.DictOf(hir.Unknown, hir.Unknown)
	case "set", "Set", "FrozenSet", "frozenset":
		return hir.SetOf(hir.Unknown)
	case "tuple", "Tuple":
		return hir.TupleOf()
	case "Iterator", "Generator":
		return hir.NamedOf(stdlib.TypeIter, hir.Unknown)
	case "Callable":
		return hir.CallableOf(nil, hir.Unknown)
	case "Optional":
		return hir.OptionalOf(hir.Unknown)
	}
	if t, ok := stdlibTypes[name]; ok {
		return hir.NamedOf(t)
	}
	if c.typeVars[name] {
		return hir.NamedOf(name)
	}
	for _, a := range c.out.Aliases {
		if a.Name == name {
			return a.Type
		}
	}
	if _, ok := c.classes[name]; ok {
		return hir.NamedOf(name)
	}
	if name != "" {
		// Classes from unknown modules stay opaque named types.
		return hir.NamedOf(name)
	}
	return hir.Unknown
}

func (c *converter) typeArgs(index ast.Expr) []ast.Expr {
	if t, ok := index.(*ast.Tuple); ok {
		return t.Elts
	}
	return []ast.Expr{index}
}

func (c *converter) genericOf(n *ast.Subscript) hir.Type {
	args := c.typeArgs(n.Index)
	arg := func(i int) hir.Type {
		if i < len(args) {
			return c.typeOf(args[i])
		}
		return hir.Unknown
	}
	switch name := c.typingName(n.Value); name {
	case "list", "List", "Sequence", "Iterable", "MutableSequence":
		return hir.ListOf(arg(0))
	case "dict", "Dict", "Mapping", "MutableMapping", "DefaultDict", "defaultdict", "OrderedDict":
		return hir.DictOf(arg(0), arg(1))
	case "Counter":
		return hir.DictOf(arg(0), hir.Int)
	case "set", "Set", "FrozenSet", "frozenset":
		return hir.SetOf(arg(0))
	case "tuple", "Tuple":
		// Tuple[int, ...] is a homogeneous sequence.
		if len(args) == 2 {
			if k, ok := args[1].(*ast.Constant); ok && k.Kind == ast.ConstEllipsis {
				return hir.ListOf(arg(0))
			}
		}
		elems := make([]hir.Type, len(args))
		for i := range args {
			elems[i] = arg(i)
		}
		return hir.TupleOf(elems...)
	case "Optional":
		return hir.OptionalOf(arg(0))
	case "Union":
		members := make([]hir.Type, len(args))
		for i := range args {
			members[i] = arg(i)
		}
		return hir.UnionOf(members...)
	case "Callable":
		var params []hir.Type
		if len(args) > 0 {
			if l, ok := args[0].(*ast.List); ok {
				for _, p := range l.Elts {
					params = append(params, c.typeOf(p))
				}
			}
		}
		return hir.CallableOf(params, arg(1))
	case "Iterator", "Generator", "AsyncIterator":
		return hir.NamedOf(stdlib.TypeIter, arg(0))
	case "deque", "Deque":
		return hir.NamedOf(stdlib.TypeDeque, arg(0))
	case "Final":
		return arg(0)
	case "type", "Type":
		return hir.NamedOf(stdlib.TypeType, arg(0))
	case "Literal":
		if len(args) > 0 {
			if k, ok := args[0].(*ast.Constant); ok {
				return literalType(k)
			}
		}
		return hir.Unknown
	default:
		elems := make([]hir.Type, len(args))
		for i := range args {
			elems[i] = arg(i)
		}
		if name == "" {
			return hir.Unknown
		}
		return hir.NamedOf(name, elems...)
	}
}

// isTypeExpr reports whether a module-level right-hand side reads as a
// type alias definition.
func (c *converter) isTypeExpr(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.Subscript:
		switch c.typingName(n.Value) {
		case "List", "Dict", "Set", "Tuple", "Optional", "Union", "Callable", "FrozenSet",
			"list", "dict", "set", "tuple", "Iterable", "Sequence", "Mapping", "Iterator":
			return true
		}
	case *ast.BinOp:
		return n.Op == "|" && (c.isTypeExpr(n.Left) || c.isTypeName(n.Left))
	}
	return false
}

func (c *converter) isTypeName(e ast.Expr) bool {
	switch c.typingName(e) {
	case "int", "float", "str", "bool", "None", "bytes":
		return true
	}
	return false
}

// literalType is the type of a literal constant.
func literalType(k *ast.Constant) hir.Type {
	switch k.Kind {
	case ast.ConstInt:
		return hir.Int
	case ast.ConstFloat:
		return hir.Float
	case ast.ConstStr:
		return hir.Str
	case ast.ConstBool:
		return hir.Bool
	case ast.ConstNone:
		return hir.None
	case ast.ConstBytes:
		return hir.NamedOf(stdlib.TypeBytes)
	}
	return hir.Unknown
}

// literalExprType types a literal-only expression for constant seeding.
// Heterogeneous containers get Unknown elements.
func literalExprType(e ast.Expr) hir.Type {
	switch n := e.(type) {
	case *ast.Constant:
		return literalType(n)
	case *ast.UnaryOp:
		return literalExprType(n.Operand)
	case *ast.List:
		return hir.ListOf(commonType(n.Elts))
	case *ast.Set:
		return hir.SetOf(commonType(n.Elts))
	case *ast.Tuple:
		elems := make([]hir.Type, len(n.Elts))
		for i, x := range n.Elts {
			elems[i] = literalExprType(x)
		}
		return hir.TupleOf(elems...)
	case *ast.Dict:
		return hir.DictOf(commonType(n.Keys), commonType(n.Values))
	}
	return hir.Unknown
}

func commonType(es []ast.Expr) hir.Type {
	if len(es) == 0 {
		return hir.Unknown
	}
	t := literalExprType(es[0])
	for _, e := range es[1:] {
		u := literalExprType(e)
		switch {
		case u.Equal(t):
		case t.Kind == hir.KindInt && u.Kind == hir.KindFloat:
			t = hir.Float
		case t.Kind == hir.KindFloat && u.Kind == hir.KindInt:
		default:
			return hir.Unknown
		}
	}
	return t
}
