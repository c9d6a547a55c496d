package astbridge

import (
	"strings"

	"github.com/pyrite-lang/pyrite/internal/ast"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// classInfo carries the owning class of a function being converted.
type classInfo struct {
	name        string
	isException bool
}

// function lowers a def. cls is nil for free functions.
func (c *converter) function(fd *ast.FunctionDef, cls *classInfo) *hir.Function {
	f := &hir.Function{Span: fd.Span, Name: fd.Name}
	f.Props.Async = fd.IsAsync
	for _, d := range fd.Decorators {
		name := ast.DottedName(d)
		if call, ok := d.(*ast.Call); ok {
			name = ast.DottedName(call.Func)
		}
		switch name {
		case "staticmethod":
			f.Static = true
		case "classmethod":
			f.ClassMethod = true
		}
		if name != "" {
			f.Decorators = append(f.Decorators, name)
		}
	}
	params := fd.Params
	if cls != nil {
		f.Class = cls.name
		if !f.Static && len(params) > 0 {
			// self or cls
			params = params[1:]
		}
	}

	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	saved := c.enterScope(names)
	defer func() { c.shadow = saved }()

	for _, p := range params {
		f.Params = append(f.Params, c.param(p, cls))
	}
	if fd.Returns != nil {
		f.Ret = c.annotationOf(fd.Returns).Type
		f.HasRet = true
	}

	body := fd.Body
	if len(body) > 0 {
		if doc, ok := docstring(body[0]); ok {
			f.Doc = doc
			body = body[1:]
		}
	}
	f.Body = c.block(body)
	c.props(f)
	return f
}

func (c *converter) param(p ast.Param, cls *classInfo) hir.Param {
	out := hir.Param{Span: p.Span, Name: p.Name, Default: c.expr(p.Default)}
	ann := c.annotationOf(p.Annotation)
	out.Type = ann.Type
	out.Annotated = p.Annotation != nil
	if !out.Annotated && cls != nil && cls.isException {
		// Exception constructors take messages.
		out.Type = hir.Str
	}
	switch p.Kind {
	case ast.ParamVarArgs:
		out.IsVararg = true
		out.Type = hir.ListOf(out.Type)
	case ast.ParamKwArgs:
		out.IsKwarg = true
		out.Type = hir.DictOf(hir.Str, out.Type)
	case ast.ParamKeywordOnly:
		out.KeywordOnly = true
	}
	return out
}

// ioCalls are builtins and module prefixes whose calls perform IO.
var ioCalls = []string{"print", "input", "open", "os.", "sys.", "time.sleep", "random.", "subprocess.", "shutil."}

func isIOCall(path string) bool {
	for _, p := range ioCalls {
		if strings.HasSuffix(p, ".") && strings.HasPrefix(path, p) || path == p {
			return true
		}
	}
	return false
}

// props proves the function property flags from the lowered body.
func (c *converter) props(f *hir.Function) {
	params := make(map[string]bool, len(f.Params))
	for _, p := range f.Params {
		params[p.Name] = true
	}
	calleePath := func(e hir.Expr) string {
		switch fn := e.(type) {
		case *hir.Name:
			return fn.ID
		case *hir.Qualified:
			return fn.Path
		}
		return ""
	}
	rootName := func(e hir.Expr) string {
		for {
			switch x := e.(type) {
			case *hir.Name:
				return x.ID
			case *hir.Attribute:
				e = x.Value
			case *hir.Index:
				e = x.Value
			default:
				return ""
			}
		}
	}

	f.Props.Generator = hir.BlockContains(f.Body, func(n hir.Node) bool {
		_, ok := n.(*hir.Yield)
		return ok
	})
	f.Props.Raises = hir.BlockContains(f.Body, func(n hir.Node) bool {
		_, ok := n.(*hir.Raise)
		return ok
	})
	f.Props.Terminates = !hir.BlockContains(f.Body, func(n hir.Node) bool {
		switch x := n.(type) {
		case *hir.For, *hir.While:
			return true
		case *hir.Call:
			return calleePath(x.Func) == f.Name
		case *hir.MethodCall:
			return f.Class != "" && x.Method == f.Name
		}
		return false
	})
	f.Props.PanicFree = !hir.BlockContains(f.Body, func(n hir.Node) bool {
		switch x := n.(type) {
		case *hir.Index, *hir.Raise, *hir.Assert:
			return true
		case *hir.BinOp:
			return x.Op == "/" || x.Op == "//" || x.Op == "%"
		case *hir.AugAssign:
			return x.Op == "/" || x.Op == "//" || x.Op == "%"
		case *hir.Call:
			path := calleePath(x.Func)
			rc, ok := c.reg.Call(path, make([]hir.Type, len(x.Args)))
			return ok && rc.Fallible
		case *hir.MethodCall:
			return x.Method == "index" || x.Method == "pop" || x.Method == "remove"
		}
		return false
	})
	f.Props.Pure = !f.Props.Generator && !hir.BlockContains(f.Body, func(n hir.Node) bool {
		switch x := n.(type) {
		case *hir.StubStmt:
			return true
		case *hir.Call:
			return isIOCall(calleePath(x.Func))
		case *hir.MethodCall:
			return stdlib.IsMutating(x.Method) && params[rootName(x.Recv)]
		case *hir.Assign:
			_, plain := x.Target.(*hir.Name)
			return !plain && params[rootName(x.Target)]
		case *hir.AugAssign:
			_, plain := x.Target.(*hir.Name)
			return !plain && params[rootName(x.Target)]
		case *hir.ContainerRemove:
			return params[rootName(x.Container)]
		}
		return false
	})
	if f.IsMethod() {
		// Methods that touch self are not pure functions of their inputs.
		touches := hir.BlockContains(f.Body, func(n hir.Node) bool {
			switch x := n.(type) {
			case *hir.Assign:
				return rootName(x.Target) == "self"
			case *hir.AugAssign:
				return rootName(x.Target) == "self"
			case *hir.MethodCall:
				return stdlib.IsMutating(x.Method) && rootName(x.Recv) == "self"
			}
			return false
		})
		f.Props.Pure = f.Props.Pure && !touches
	}
}

// classDef lowers a module-level class; Protocol subclasses become
// protocols instead.
func (c *converter) classDef(cd *ast.ClassDef) {
	for _, b := range cd.Bases {
		if c.typingName(b) == "Protocol" {
			p := hir.Protocol{Span: cd.Span, Name: cd.Name}
			for _, s := range cd.Body {
				if fd, ok := s.(*ast.FunctionDef); ok {
					p.Methods = append(p.Methods, fd.Name)
				}
			}
			c.out.Protocols = append(c.out.Protocols, p)
			return
		}
	}
	for _, k := range cd.Keywords {
		if k.Arg == "metaclass" {
			c.unsupported(k.Span, "metaclass on %s is ignored", cd.Name)
		}
	}

	cl := &hir.Class{Span: cd.Span, Name: cd.Name, IsException: c.exception[cd.Name], MutatesSelf: c.mutating[cd.Name]}
	for _, b := range cd.Bases {
		if name := c.exceptionName(b); name != "" {
			cl.Bases = append(cl.Bases, name)
		} else if sub, ok := b.(*ast.Subscript); ok {
			cl.Bases = append(cl.Bases, c.typingName(sub.Value))
		}
	}
	for _, d := range cd.Decorators {
		name := ast.DottedName(d)
		if call, ok := d.(*ast.Call); ok {
			name = ast.DottedName(call.Func)
		}
		if name == "dataclass" || name == "dataclasses.dataclass" {
			cl.IsDataclass = true
		}
	}
	info := &classInfo{name: cd.Name, isException: cl.IsException}

	body := cd.Body
	if len(body) > 0 {
		if doc, ok := docstring(body[0]); ok {
			cl.Doc = doc
			body = body[1:]
		}
	}
	fields := newFieldSet()
	var methods []*ast.FunctionDef
	for _, s := range body {
		switch n := s.(type) {
		case *ast.AnnAssign:
			id, ok := n.Target.(*ast.Name)
			if !ok {
				continue
			}
			ann := c.annotationOf(n.Annotation)
			fields.declare(hir.Field{Span: n.Span, Name: id.ID, Type: ann.Type, Annotated: true, Default: c.expr(n.Value)})
		case *ast.Assign:
			for _, t := range n.Targets {
				if id, ok := t.(*ast.Name); ok {
					fields.add(hir.Field{Span: n.Span, Name: id.ID, Type: literalExprType(n.Value), Default: c.expr(n.Value)})
				}
			}
		case *ast.FunctionDef:
			methods = append(methods, n)
			cl.Methods = append(cl.Methods, c.function(n, info))
		case *ast.ClassDef:
			c.unsupported(n.Span, "nested class %s.%s is not supported", cd.Name, n.Name)
		case *ast.Pass:
		default:
			if _, ok := docstring(s); !ok {
				c.unsupported(s.GetSpan(), "unsupported statement in class body of %s", cd.Name)
			}
		}
	}
	// Fields assigned through self in any method, in first-assignment order.
	for i, m := range methods {
		c.selfFields(m, cl.Methods[i], fields)
	}
	cl.Fields = fields.list()
	c.out.Classes = append(c.out.Classes, cl)
}

// selfFields collects self.x assignments from one method.
func (c *converter) selfFields(m *ast.FunctionDef, lowered *hir.Function, fields *fieldSet) {
	paramTypes := make(map[string]hir.Type)
	for _, p := range lowered.Params {
		if p.Annotated || !p.Type.IsUnknown() {
			paramTypes[p.Name] = p.Type
		}
	}
	seed := func(value ast.Expr) hir.Type {
		switch v := value.(type) {
		case *ast.Name:
			if t, ok := paramTypes[v.ID]; ok {
				return t
			}
		case *ast.Constant, *ast.UnaryOp, *ast.List, *ast.Tuple, *ast.Set, *ast.Dict:
			if isLiteralOnly(value) {
				return literalExprType(value)
			}
		}
		return hir.Unknown
	}
	var visit func([]ast.Stmt)
	visit = func(body []ast.Stmt) {
		for _, s := range body {
			switch n := s.(type) {
			case *ast.Assign:
				for _, t := range n.Targets {
					if name, ok := selfAttr(t); ok {
						fields.add(hir.Field{Span: n.Span, Name: name, Type: seed(n.Value)})
					}
				}
			case *ast.AnnAssign:
				if name, ok := selfAttr(n.Target); ok {
					fields.declare(hir.Field{Span: n.Span, Name: name, Type: c.annotationOf(n.Annotation).Type, Annotated: true})
				}
			case *ast.AugAssign:
				if name, ok := selfAttr(n.Target); ok {
					fields.add(hir.Field{Span: n.Span, Name: name, Type: seed(n.Value)})
				}
			case *ast.If:
				visit(n.Body)
				visit(n.OrElse)
			case *ast.For:
				visit(n.Body)
				visit(n.OrElse)
			case *ast.While:
				visit(n.Body)
				visit(n.OrElse)
			case *ast.With:
				visit(n.Body)
			case *ast.Try:
				visit(n.Body)
				for _, h := range n.Handlers {
					visit(h.Body)
				}
				visit(n.OrElse)
				visit(n.Finally)
			}
		}
	}
	visit(m.Body)
}

func selfAttr(e ast.Expr) (string, bool) {
	a, ok := e.(*ast.Attribute)
	if !ok {
		return "", false
	}
	n, ok := a.Value.(*ast.Name)
	if !ok || n.ID != "self" {
		return "", false
	}
	return a.Attr, true
}

// fieldSet deduplicates fields by name in first-occurrence order. An
// explicit annotation replaces an inferred type without moving the field.
type fieldSet struct {
	order []string
	byKey map[string]*hir.Field
}

func newFieldSet() *fieldSet { return &fieldSet{byKey: make(map[string]*hir.Field)} }

func (s *fieldSet) add(f hir.Field) {
	if cur, ok := s.byKey[f.Name]; ok {
		if !cur.Annotated && cur.Type.IsUnknown() {
			cur.Type = f.Type
		}
		return
	}
	s.order = append(s.order, f.Name)
	s.byKey[f.Name] = &f
}

func (s *fieldSet) declare(f hir.Field) {
	if cur, ok := s.byKey[f.Name]; ok {
		if !cur.Annotated {
			cur.Type = f.Type
			cur.Annotated = true
		}
		if cur.Default == nil {
			cur.Default = f.Default
		}
		return
	}
	s.order = append(s.order, f.Name)
	s.byKey[f.Name] = &f
}

func (s *fieldSet) list() []hir.Field {
	out := make([]hir.Field, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, *s.byKey[n])
	}
	return out
}

// classMutatesSelf reports whether any method other than __init__
// assigns to self.* or calls a mutating method on a self attribute.
func classMutatesSelf(cd *ast.ClassDef) bool {
	var mutates func([]ast.Stmt) bool
	mutates = func(body []ast.Stmt) bool {
		for _, s := range body {
			switch n := s.(type) {
			case *ast.Assign:
				for _, t := range n.Targets {
					if selfRooted(t) {
						return true
					}
				}
			case *ast.AugAssign:
				if selfRooted(n.Target) {
					return true
				}
			case *ast.AnnAssign:
				if selfRooted(n.Target) {
					return true
				}
			case *ast.ExprStmt:
				if call, ok := n.Value.(*ast.Call); ok {
					if attr, ok := call.Func.(*ast.Attribute); ok && stdlib.IsMutating(attr.Attr) && selfRooted(attr.Value) {
						return true
					}
				}
			case *ast.If:
				if mutates(n.Body) || mutates(n.OrElse) {
					return true
				}
			case *ast.For:
				if mutates(n.Body) || mutates(n.OrElse) {
					return true
				}
			case *ast.While:
				if mutates(n.Body) || mutates(n.OrElse) {
					return true
				}
			case *ast.With:
				if mutates(n.Body) {
					return true
				}
			case *ast.Try:
				if mutates(n.Body) || mutates(n.OrElse) || mutates(n.Finally) {
					return true
				}
				for _, h := range n.Handlers {
					if mutates(h.Body) {
						return true
					}
				}
			}
		}
		return false
	}
	for _, s := range cd.Body {
		if fd, ok := s.(*ast.FunctionDef); ok && fd.Name != "__init__" && mutates(fd.Body) {
			return true
		}
	}
	return false
}

func selfRooted(e ast.Expr) bool {
	for {
		switch x := e.(type) {
		case *ast.Name:
			return x.ID == "self"
		case *ast.Attribute:
			e = x.Value
		case *ast.Subscript:
			e = x.Value
		default:
			return false
		}
	}
}

// moduleAssign handles module-level assignments that declare constants,
// type variables or type aliases. It reports false for ordinary
// statements, which belong to main.
func (c *converter) moduleAssign(n *ast.Assign) bool {
	if len(n.Targets) != 1 {
		return false
	}
	id, ok := n.Targets[0].(*ast.Name)
	if !ok {
		return false
	}
	if call, ok := n.Value.(*ast.Call); ok && c.typingName(call.Func) == "TypeVar" {
		c.typeVars[id.ID] = true
		c.out.TypeVars = append(c.out.TypeVars, id.ID)
		return true
	}
	if c.isTypeExpr(n.Value) {
		c.out.Aliases = append(c.out.Aliases, hir.TypeAlias{Span: n.Span, Name: id.ID, Type: c.typeOf(n.Value)})
		return true
	}
	if !isLiteralOnly(n.Value) || c.rebound[id.ID] {
		return false
	}
	c.constant(hir.Constant{Span: n.Span, Name: id.ID, Type: literalExprType(n.Value), Value: c.expr(n.Value)})
	return true
}

func (c *converter) moduleAnnAssign(n *ast.AnnAssign) bool {
	id, ok := n.Target.(*ast.Name)
	if !ok || n.Value == nil {
		return false
	}
	if c.typingName(n.Annotation) == "TypeAlias" {
		c.out.Aliases = append(c.out.Aliases, hir.TypeAlias{Span: n.Span, Name: id.ID, Type: c.typeOf(n.Value)})
		return true
	}
	if !isLiteralOnly(n.Value) || c.rebound[id.ID] {
		return false
	}
	ann := c.annotationOf(n.Annotation)
	t := ann.Type
	if t.IsUnknown() {
		t = literalExprType(n.Value)
	}
	c.constant(hir.Constant{Span: n.Span, Name: id.ID, Type: t, Value: c.expr(n.Value), Final: ann.Final})
	return true
}

// constant records k; a later declaration of the same name replaces the
// earlier one in place.
func (c *converter) constant(k hir.Constant) {
	for i := range c.out.Constants {
		if c.out.Constants[i].Name == k.Name {
			c.out.Constants[i] = k
			return
		}
	}
	c.out.Constants = append(c.out.Constants, k)
}

// markValidators flags argument-validator callbacks: functions passed as
// type= to add_argument and functions raising ArgumentTypeError.
func (c *converter) markValidators() {
	refs := make(map[string]bool, len(c.validatorRefs))
	for _, r := range c.validatorRefs {
		refs[r] = true
	}
	for _, f := range c.out.Functions {
		if refs[f.Name] {
			f.Props.Validator = true
			continue
		}
		f.Props.Validator = hir.BlockContains(f.Body, func(n hir.Node) bool {
			r, ok := n.(*hir.Raise)
			return ok && (r.Exc == "argparse.ArgumentTypeError" || r.Exc == "ArgumentTypeError")
		})
	}
}

func (c *converter) unknownImport(span position.Span, path string) {
	c.diags.Add(diagnostic.New(diagnostic.CodeUnknownImport).
		Warning().
		Category(diagnostic.CategoryImport).
		Span(span).
		Message("no mapping for import %s; the name stays opaque", path).
		Suggest("add a pattern override for the symbols used from this module").
		Build())
}

// isExceptionName reports whether a raise target names an exception
// type rather than a bound exception value.
func (c *converter) isExceptionName(name string) bool {
	if name == "" {
		return false
	}
	if builtinExceptions[name] || c.exception[name] {
		return true
	}
	base := name[strings.LastIndex(name, ".")+1:]
	return strings.HasSuffix(base, "Error") || strings.HasSuffix(base, "Exception")
}
