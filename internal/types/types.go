// Package types infers and checks the types of a HIR module.
//
// Checking runs in three steps: a generation walk emits Eq, Sub and Flow
// constraints over unification variables introduced for unannotated
// parameters, returns, fields and empty containers; a worklist solver
// computes variable bounds; an annotation walk then re-types every
// expression with the solved bindings. Results live in an Info side table
// keyed by HIR nodes, the way go/types.Info annotates go/ast. The HIR
// itself is never modified.
package types

import (
	"sort"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// ErrorTypePyError and ErrorTypeString name the error half of a fallible
// function's result. Validators use plain strings.
const (
	ErrorTypePyError = "PyError"
	ErrorTypeString  = "String"
)

// TypeParam is a generic parameter of an emitted function with the trait
// bounds its body requires.
type TypeParam struct {
	Name   string
	Bounds []string
}

// Signature is the resolved interface of a function.
type Signature struct {
	Name       string
	Func       *hir.Function
	Params     []hir.Type
	Ret        hir.Type
	TypeParams []TypeParam
	// Fallible functions return Result<Ret, ErrorType>.
	Fallible  bool
	ErrorType string
	// Raises lists the exception names the body lets escape.
	Raises []string
	// Yield is the element type of a generator.
	Yield hir.Type
}

// Param returns the type of the named parameter.
func (s *Signature) Param(name string) (hir.Type, bool) {
	for i, p := range s.Func.Params {
		if p.Name == name && i < len(s.Params) {
			return s.Params[i], true
		}
	}
	return hir.Unknown, false
}

// IsGeneric reports whether the function has type parameters.
func (s *Signature) IsGeneric() bool { return len(s.TypeParams) > 0 }

// Local is one variable of a function body. Versions holds the type of
// each SSA version in creation order; version 0 is the first binding.
type Local struct {
	Name     string
	Versions []hir.Type
	// First is the statement or expression that binds version 0.
	First hir.Node
	Param bool
	// Declared is set when an annotation fixed the type.
	Declared bool
}

// Type is the type of the latest version.
func (l *Local) Type() hir.Type {
	if len(l.Versions) == 0 {
		return hir.Unknown
	}
	return l.Versions[len(l.Versions)-1]
}

// Scope lists the locals of one function body in first-binding order.
type Scope struct {
	Locals map[string]*Local
	Order  []string
}

func newScope() *Scope {
	return &Scope{Locals: make(map[string]*Local)}
}

// Lookup returns the local called name, or nil.
func (s *Scope) Lookup(name string) *Local {
	if s == nil {
		return nil
	}
	return s.Locals[name]
}

func (s *Scope) add(name string, t hir.Type, first hir.Node) *Local {
	l := &Local{Name: name, Versions: []hir.Type{t}, First: first}
	s.Locals[name] = l
	s.Order = append(s.Order, name)
	return l
}

// Narrowing records that a name reference sees a narrower type than its
// binding because of a guard: an if, while, assert, conditional
// expression or short-circuit operator.
type Narrowing struct {
	From  hir.Type
	To    hir.Type
	Guard hir.Node
}

// Info holds the results of checking one module.
type Info struct {
	// Types maps every checked expression to its type. Unknown entries
	// degrade to the generic value sum in generated code.
	Types map[hir.Expr]hir.Type
	// Versions maps each name reference and binding target to the SSA
	// version it denotes.
	Versions map[*hir.Name]int
	// Defs holds the locals of every function body; Main holds those of
	// the module's top-level statements.
	Defs map[*hir.Function]*Scope
	Main *Scope
	// Signatures is keyed by qualified name: f, Class.method, and
	// outer.inner for nested functions.
	Signatures map[string]*Signature
	Funcs      map[*hir.Function]*Signature
	// Fields maps class name to field name to solved type.
	Fields    map[string]map[string]hir.Type
	Constants map[string]hir.Type
	Narrowed  map[*hir.Name]Narrowing
	// Fallible maps every call expression that can fail to the first
	// exception kind it raises, whether or not a handler catches it.
	Fallible map[hir.Expr]string
	// MainFallible is set when top-level code can raise uncaught.
	MainFallible bool
	// Callees resolves calls of module functions, methods and
	// constructors; Recipes resolves calls through the stdlib registry.
	Callees map[hir.Node]*Signature
	Recipes map[hir.Node]stdlib.Recipe
	// Bases maps each module class, and each protocol implementer, to its
	// direct bases.
	Bases   map[string][]string
	classes map[string]bool
}

func newInfo() *Info {
	return &Info{
		Types:      make(map[hir.Expr]hir.Type),
		Versions:   make(map[*hir.Name]int),
		Defs:       make(map[*hir.Function]*Scope),
		Main:       newScope(),
		Signatures: make(map[string]*Signature),
		Funcs:      make(map[*hir.Function]*Signature),
		Fields:     make(map[string]map[string]hir.Type),
		Constants:  make(map[string]hir.Type),
		Narrowed:   make(map[*hir.Name]Narrowing),
		Fallible:   make(map[hir.Expr]string),
		Callees:    make(map[hir.Node]*Signature),
		Recipes:    make(map[hir.Node]stdlib.Recipe),
		Bases:      make(map[string][]string),
		classes:    make(map[string]bool),
	}
}

// TypeOf returns the inferred type of e, Unknown when e was not checked.
func (info *Info) TypeOf(e hir.Expr) hir.Type {
	if info == nil || e == nil {
		return hir.Unknown
	}
	return info.Types[e]
}

// SignatureOf returns the signature of f, or nil.
func (info *Info) SignatureOf(f *hir.Function) *Signature {
	if info == nil {
		return nil
	}
	return info.Funcs[f]
}

// Field returns the solved type of class.field.
func (info *Info) Field(class, field string) (hir.Type, bool) {
	fs, ok := info.Fields[class]
	if !ok {
		return hir.Unknown, false
	}
	t, ok := fs[field]
	return t, ok
}

// ScopeOf returns the locals of f, or of the module's top level for nil.
func (info *Info) ScopeOf(f *hir.Function) *Scope {
	if f == nil {
		return info.Main
	}
	return info.Defs[f]
}

// IsA reports whether exception exc is target or derives from it.
// Exception names that are neither module classes nor builtins derive
// from Exception.
func (info *Info) IsA(exc, target string) bool {
	seen := map[string]bool{}
	for stack := []string{exc}; len(stack) > 0; {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, info.Bases[n]...)
		if p, ok := builtinParents[n]; ok {
			stack = append(stack, p)
		}
		if !info.classes[n] {
			if _, known := builtinParents[n]; !known && n != "BaseException" {
				stack = append(stack, "Exception")
			}
		}
	}
	return false
}

// Catches reports whether a handler naming types stops exc. A bare
// handler catches everything.
func (info *Info) Catches(types []string, exc string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if info.IsA(exc, t) {
			return true
		}
	}
	return false
}

// ExceptionParent is the first base of exc in the exception hierarchy,
// empty for BaseException.
func (info *Info) ExceptionParent(exc string) string {
	if bs := info.Bases[exc]; len(bs) > 0 {
		return bs[0]
	}
	if p, ok := builtinParents[exc]; ok {
		return p
	}
	if exc == "BaseException" {
		return ""
	}
	return "Exception"
}

// BuiltinExceptions lists the builtin exception names handlers can name.
func BuiltinExceptions() []string {
	out := make([]string, 0, len(builtinParents)+1)
	for n := range builtinParents {
		out = append(out, n)
	}
	out = append(out, "BaseException")
	sort.Strings(out)
	return out
}
