// Package astbridge lowers the parsed source tree into HIR.
//
// The bridge normalizes: every supported source construct maps to exactly
// one HIR shape. Imports are resolved against the stdlib registry, dotted
// module references become hir.Qualified paths, method calls become
// hir.MethodCall, comprehensions share one node, and multi-target or
// unpacking assignments are split into single-target assignments.
// Constructs outside the supported subset become stubs with a diagnostic;
// conversion of the rest of the module continues.
package astbridge

import (
	"fmt"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/ast"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// Options configures a conversion.
type Options struct {
	// Registry resolves imports. A default registry is used when nil.
	Registry *stdlib.Registry
	// ModuleName names the HIR module; defaults to the file stem.
	ModuleName string
}

// TypeSeed is the type environment implied by explicit annotations and
// declarations, handed to the type checker as its starting point.
type TypeSeed struct {
	// Globals maps module-level names to their declared types: constants,
	// functions (as callables) and classes (as named types).
	Globals map[string]hir.Type
	// Fields maps class name to field name to declared type.
	Fields map[string]map[string]hir.Type
	// Exceptions lists classes recognized as exception types.
	Exceptions map[string]bool
}

// builtinExceptions are the recognized exception bases.
var builtinExceptions = map[string]bool{
	"Exception": true, "BaseException": true, "ValueError": true, "TypeError": true,
	"KeyError": true, "IndexError": true, "RuntimeError": true, "OSError": true,
	"IOError": true, "FileNotFoundError": true, "PermissionError": true,
	"ZeroDivisionError": true, "AttributeError": true, "NotImplementedError": true,
	"StopIteration": true, "ArithmeticError": true, "LookupError": true,
	"AssertionError": true, "OverflowError": true, "UnicodeDecodeError": true,
	"SystemExit": true, "KeyboardInterrupt": true, "TimeoutError": true,
	"ConnectionError": true, "argparse.ArgumentTypeError": true, "json.JSONDecodeError": true,
}

// IsBuiltinException reports whether name is a recognized exception base.
func IsBuiltinException(name string) bool { return builtinExceptions[name] }

// Convert lowers mod to HIR. The returned diagnostics never contain
// errors for supported input; unsupported constructs produce warnings and
// stubs.
func Convert(mod *ast.Module, opts Options) (*hir.Module, *TypeSeed, diagnostic.List) {
	reg := opts.Registry
	if reg == nil {
		reg = stdlib.NewRegistry(stdlib.Options{})
	}
	name := opts.ModuleName
	if name == "" {
		name = moduleStem(mod.Filename)
	}
	c := &converter{
		reg:       reg,
		out:       &hir.Module{Name: name},
		bindings:  make(map[string]string),
		classes:   make(map[string]*ast.ClassDef),
		mutating:  make(map[string]bool),
		exception: make(map[string]bool),
		typeVars:  make(map[string]bool),
	}
	c.prepass(mod.Body)
	c.module(mod.Body)
	c.markValidators()
	return c.out, c.seed(), c.diags
}

// converter holds the state of one module conversion.
type converter struct {
	reg   *stdlib.Registry
	out   *hir.Module
	diags diagnostic.List

	// bindings maps import-bound local names to dotted source paths.
	bindings map[string]string
	// shadow holds the local names of the function being converted.
	shadow map[string]bool

	classes   map[string]*ast.ClassDef
	mutating  map[string]bool
	exception map[string]bool
	typeVars  map[string]bool
	// rebound lists module-level names that are reassigned with
	// non-literal values, so they cannot be constants.
	rebound map[string]bool
	// validatorRefs are function names passed as type= to add_argument.
	validatorRefs []string

	tmp int
}

func (c *converter) warn(code string, cat diagnostic.Category, span position.Span, format string, args ...interface{}) {
	c.diags.Addf(diagnostic.LevelWarning, cat, code, span, format, args...)
}

func (c *converter) unsupported(span position.Span, format string, args ...interface{}) {
	c.warn(diagnostic.CodeUnsupported, diagnostic.CategoryUnsupported, span, format, args...)
}

func (c *converter) fresh(prefix string) string {
	name := fmt.Sprintf("_%s%d", prefix, c.tmp)
	c.tmp++
	return name
}

// prepass records class facts needed before any body is converted:
// class names, exception classes, classes that mutate self, and module
// names that cannot become constants.
func (c *converter) prepass(body []ast.Stmt) {
	c.rebound = make(map[string]bool)
	literalSeen := make(map[string]bool)
	for _, s := range body {
		switch n := s.(type) {
		case *ast.ClassDef:
			c.classes[n.Name] = n
			c.mutating[n.Name] = classMutatesSelf(n)
		case *ast.Assign:
			for _, t := range n.Targets {
				if id, ok := t.(*ast.Name); ok {
					if isLiteralOnly(n.Value) && !literalSeen[id.ID] {
						literalSeen[id.ID] = true
					} else if !isLiteralOnly(n.Value) {
						c.rebound[id.ID] = true
					}
				}
			}
		case *ast.AugAssign:
			if id, ok := n.Target.(*ast.Name); ok {
				c.rebound[id.ID] = true
			}
		case *ast.For:
			for _, id := range targetNames(n.Target) {
				c.rebound[id] = true
			}
		}
	}
	// Exception classes may derive from each other in any order.
	for changed := true; changed; {
		changed = false
		for name, cd := range c.classes {
			if c.exception[name] {
				continue
			}
			for _, b := range cd.Bases {
				base := ast.DottedName(b)
				if builtinExceptions[base] || c.exception[base] {
					c.exception[name] = true
					changed = true
					break
				}
			}
		}
	}
}

// module converts the top-level statements.
func (c *converter) module(body []ast.Stmt) {
	for i, s := range body {
		if i == 0 {
			if doc, ok := docstring(s); ok {
				c.out.Doc = doc
				continue
			}
		}
		switch n := s.(type) {
		case *ast.Import, *ast.ImportFrom:
			c.out.Imports = append(c.out.Imports, c.imports(s)...)
		case *ast.FunctionDef:
			c.out.Functions = append(c.out.Functions, c.function(n, nil))
		case *ast.ClassDef:
			c.classDef(n)
		case *ast.Assign:
			if c.moduleAssign(n) {
				continue
			}
			c.out.Main = append(c.out.Main, c.stmt(s)...)
		case *ast.AnnAssign:
			if c.moduleAnnAssign(n) {
				continue
			}
			c.out.Main = append(c.out.Main, c.stmt(s)...)
		case *ast.If:
			if isMainGuard(n.Test) {
				c.out.Main = append(c.out.Main, c.block(n.Body)...)
				continue
			}
			c.out.Main = append(c.out.Main, c.stmt(s)...)
		default:
			c.out.Main = append(c.out.Main, c.stmt(s)...)
		}
	}
}

// seed builds the type environment from declarations.
func (c *converter) seed() *TypeSeed {
	ts := &TypeSeed{
		Globals:    make(map[string]hir.Type),
		Fields:     make(map[string]map[string]hir.Type),
		Exceptions: make(map[string]bool),
	}
	for _, k := range c.out.Constants {
		ts.Globals[k.Name] = k.Type
	}
	for _, f := range c.out.Functions {
		params := make([]hir.Type, 0, len(f.Params))
		for _, p := range f.Params {
			params = append(params, p.Type)
		}
		ts.Globals[f.Name] = hir.CallableOf(params, f.Ret)
	}
	for _, cl := range c.out.Classes {
		ts.Globals[cl.Name] = hir.NamedOf(cl.Name)
		fields := make(map[string]hir.Type, len(cl.Fields))
		for _, fd := range cl.Fields {
			fields[fd.Name] = fd.Type
		}
		ts.Fields[cl.Name] = fields
		if cl.IsException {
			ts.Exceptions[cl.Name] = true
		}
	}
	return ts
}

// resolveDotted maps a dotted source reference to its full module path
// when its root is an import binding that is not shadowed by a local.
func (c *converter) resolveDotted(dotted string) (string, bool) {
	if dotted == "" {
		return "", false
	}
	root, rest, hasRest := strings.Cut(dotted, ".")
	if c.shadow[root] {
		return "", false
	}
	path, ok := c.bindings[root]
	if !ok {
		return "", false
	}
	if hasRest {
		return path + "." + rest, true
	}
	return path, true
}

// exceptionName resolves an exception reference to the name used for
// matching: module paths for imported exceptions, bare names otherwise.
func (c *converter) exceptionName(e ast.Expr) string {
	dotted := ast.DottedName(e)
	if full, ok := c.resolveDotted(dotted); ok {
		return full
	}
	return dotted
}

func isMainGuard(test ast.Expr) bool {
	cmp, ok := test.(*ast.Compare)
	if !ok || len(cmp.Ops) != 1 || cmp.Ops[0] != "==" {
		return false
	}
	isName := func(e ast.Expr) bool {
		n, ok := e.(*ast.Name)
		return ok && n.ID == "__name__"
	}
	isMain := func(e ast.Expr) bool {
		k, ok := e.(*ast.Constant)
		return ok && k.Kind == ast.ConstStr && k.Str == "__main__"
	}
	l, r := cmp.Left, cmp.Comparators[0]
	return (isName(l) && isMain(r)) || (isMain(l) && isName(r))
}

func docstring(s ast.Stmt) (string, bool) {
	es, ok := s.(*ast.ExprStmt)
	if !ok {
		return "", false
	}
	k, ok := es.Value.(*ast.Constant)
	if !ok || k.Kind != ast.ConstStr {
		return "", false
	}
	return k.Str, true
}

func moduleStem(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".py")
	if base == "" {
		return "main"
	}
	return base
}

func targetNames(e ast.Expr) []string {
	switch t := e.(type) {
	case *ast.Name:
		return []string{t.ID}
	case *ast.Tuple:
		var out []string
		for _, x := range t.Elts {
			out = append(out, targetNames(x)...)
		}
		return out
	case *ast.List:
		var out []string
		for _, x := range t.Elts {
			out = append(out, targetNames(x)...)
		}
		return out
	case *ast.Starred:
		return targetNames(t.Value)
	}
	return nil
}

// isLiteralOnly reports whether e is built from literals alone.
func isLiteralOnly(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.Constant:
		return n.Kind != ast.ConstEllipsis
	case *ast.UnaryOp:
		k, ok := n.Operand.(*ast.Constant)
		return ok && (n.Op == "-" || n.Op == "+") && (k.Kind == ast.ConstInt || k.Kind == ast.ConstFloat)
	case *ast.List:
		return allLiteral(n.Elts)
	case *ast.Tuple:
		return allLiteral(n.Elts)
	case *ast.Set:
		return len(n.Elts) > 0 && allLiteral(n.Elts)
	case *ast.Dict:
		for i := range n.Keys {
			if n.Keys[i] == nil || !isLiteralOnly(n.Keys[i]) || !isLiteralOnly(n.Values[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func allLiteral(es []ast.Expr) bool {
	for _, e := range es {
		if !isLiteralOnly(e) {
			return false
		}
	}
	return true
}
