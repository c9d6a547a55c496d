package hir

import (
	"github.com/pyrite-lang/pyrite/internal/position"
)

// Param is one function parameter in source order.
type Param struct {
	Span        position.Span
	Name        string
	Type        Type
	Annotated   bool
	Default     Expr
	IsVararg    bool
	IsKwarg     bool
	KeywordOnly bool
}

// Props are facts the bridge proves about a function body.
type Props struct {
	Pure       bool // no global writes, no IO, no parameter mutation
	Terminates bool // no loops and no recursion
	PanicFree  bool // no indexing, division, raise or fallible calls
	Generator  bool
	Async      bool
	// Validator marks argument-validator callbacks, whose error type is a
	// plain String.
	Validator bool
	// Raises is set when the body contains a raise statement.
	Raises bool
}

// Function is a top-level function, a nested function or a method.
type Function struct {
	Span       position.Span
	Name       string
	Params     []Param
	Ret        Type
	HasRet     bool
	Body       Block
	Props      Props
	Decorators []string
	Doc        string

	// Class is the owning class name for methods.
	Class  string
	Static bool
	// ClassMethod is set for @classmethod; the first parameter is dropped.
	ClassMethod bool
}

// QualifiedName is Class.name for methods and name otherwise.
func (f *Function) QualifiedName() string {
	if f.Class != "" {
		return f.Class + "." + f.Name
	}
	return f.Name
}

// GetSpan lets a function stand as the binding site of its parameters.
func (f *Function) GetSpan() position.Span { return f.Span }

// IsMethod reports whether f takes self.
func (f *Function) IsMethod() bool { return f.Class != "" && !f.Static && !f.ClassMethod }

// Field is a class attribute discovered by the bridge.
type Field struct {
	Span      position.Span
	Name      string
	Type      Type
	Annotated bool
	Default   Expr
}

type Class struct {
	Span    position.Span
	Name    string
	Bases   []string
	Fields  []Field
	Methods []*Function
	Doc     string

	IsException bool
	IsDataclass bool
	// MutatesSelf is set when any method assigns to self.*.
	MutatesSelf bool
}

// Method returns the method called name, or nil.
func (c *Class) Method(name string) *Function {
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Field returns the field called name, or nil.
func (c *Class) Field(name string) *Field {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// Constant is a module-level name bound to a literal-only value.
type Constant struct {
	Span  position.Span
	Name  string
	Type  Type
	Value Expr
	Final bool
}

type TypeAlias struct {
	Span position.Span
	Name string
	Type Type
}

// Import is one imported binding. Target is the Rust path the bridge
// resolved it to; Known is false for modules outside the resolution
// table, whose bindings stay opaque.
type Import struct {
	Span   position.Span
	Module string
	Name   string
	Alias  string
	Target string
	Known  bool
}

// Binding is the local name the import introduces.
func (im Import) Binding() string {
	switch {
	case im.Alias != "":
		return im.Alias
	case im.Name != "":
		return im.Name
	}
	return im.Module
}

// Path is the dotted source path of the imported symbol.
func (im Import) Path() string {
	if im.Name == "" {
		return im.Module
	}
	return im.Module + "." + im.Name
}

// Protocol is a structural interface declared by subclassing Protocol.
type Protocol struct {
	Span    position.Span
	Name    string
	Methods []string
}

// Module is one translated source file.
type Module struct {
	Name      string
	Doc       string
	Functions []*Function
	Classes   []*Class
	Constants []Constant
	Aliases   []TypeAlias
	TypeVars  []string
	Imports   []Import
	Protocols []Protocol
	// Main holds top-level executable statements, including the body of an
	// `if __name__ == "__main__":` guard.
	Main Block
}

// Function returns the module-level function called name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Class returns the class called name, or nil.
func (m *Module) Class(name string) *Class {
	for _, c := range m.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Constant returns the constant called name, or nil.
func (m *Module) Constant(name string) *Constant {
	for i := range m.Constants {
		if m.Constants[i].Name == name {
			return &m.Constants[i]
		}
	}
	return nil
}

// IsTypeVar reports whether name was declared with TypeVar.
func (m *Module) IsTypeVar(name string) bool {
	for _, v := range m.TypeVars {
		if v == name {
			return true
		}
	}
	return false
}

// AllFunctions lists module functions followed by class methods, in
// declaration order.
func (m *Module) AllFunctions() []*Function {
	out := append([]*Function{}, m.Functions...)
	for _, c := range m.Classes {
		out = append(out, c.Methods...)
	}
	return out
}
