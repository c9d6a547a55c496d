// Package ownership decides how generated code passes and binds values:
// which parameters are borrowed, borrowed mutably, moved or cloned at
// entry, which locals need `mut`, which references are the last use of
// their variable, and which lifetime parameters a signature needs.
//
// The analysis reads the HIR and the types.Info side table and never
// modifies either. Running it twice yields the same Plan.
package ownership

import (
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// ====== Parameter modes ======

// Mode is how a function receives one parameter.
type Mode int

const (
	Moved        Mode = iota // T
	BorrowShared             // &T
	BorrowMut                // &mut T
	Cloned                   // &T, cloned into an owned local at entry
)

func (m Mode) String() string {
	switch m {
	case Moved:
		return "moved"
	case BorrowShared:
		return "borrowed"
	case BorrowMut:
		return "mut_borrowed"
	case Cloned:
		return "cloned"
	default:
		return "unknown"
	}
}

// IsBorrow reports whether callers pass a reference.
func (m Mode) IsBorrow() bool { return m != Moved }

// UseKind classifies one use of a variable.
type UseKind int

const (
	UseRead   UseKind = iota // read without consuming
	UseMutate                // mutating method, subscript or attribute store
	UseReturn                // returned to the caller
	UseStore                 // stored into a container, field or other binding
	UseMove                  // passed where the callee takes ownership
	UseRebind                // assigned a new value
)

func (k UseKind) String() string {
	switch k {
	case UseRead:
		return "read"
	case UseMutate:
		return "mutate"
	case UseReturn:
		return "return"
	case UseStore:
		return "store"
	case UseMove:
		return "move"
	case UseRebind:
		return "rebind"
	default:
		return "unknown"
	}
}

// SelfMode is the receiver form of a method.
type SelfMode int

const (
	SelfNone  SelfMode = iota // functions, constructors, static and class methods
	SelfRef                   // &self
	SelfMut                   // &mut self
	SelfValue                 // self
)

func (s SelfMode) String() string {
	switch s {
	case SelfNone:
		return "none"
	case SelfRef:
		return "&self"
	case SelfMut:
		return "&mut self"
	case SelfValue:
		return "self"
	default:
		return "unknown"
	}
}

// ====== Plans ======

// ParamPlan is the decision for one parameter.
type ParamPlan struct {
	Name string
	Mode Mode
	// Mutable is set when the owned binding needs `mut`.
	Mutable bool
	// Lifetime names the lifetime of a borrowed parameter that flows into
	// the result; empty when elided.
	Lifetime string
	Uses     []UseKind
}

// LocalPlan is the decision for one local variable.
type LocalPlan struct {
	Mutable bool
}

// FuncPlan holds the decisions for one function body.
type FuncPlan struct {
	Name   string
	Params []ParamPlan
	// ReturnsBorrow is set when the result borrows from a parameter, or
	// from self for __enter__.
	ReturnsBorrow bool
	Lifetimes     []string
	SelfMode      SelfMode
	Locals        map[string]LocalPlan
	// LastUse marks the references after which their variable is never
	// read again, so the value may be moved instead of cloned.
	LastUse map[*hir.Name]bool
}

// Param returns the plan of the named parameter.
func (fp *FuncPlan) Param(name string) (ParamPlan, bool) {
	if fp == nil {
		return ParamPlan{}, false
	}
	for _, p := range fp.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamPlan{}, false
}

// Mutable reports whether the binding of name needs `mut`.
func (fp *FuncPlan) Mutable(name string) bool {
	if fp == nil {
		return false
	}
	if p, ok := fp.Param(name); ok {
		return p.Mutable
	}
	return fp.Locals[name].Mutable
}

// IsLastUse reports whether ref is the final read of its variable.
func (fp *FuncPlan) IsLastUse(ref *hir.Name) bool {
	return fp != nil && fp.LastUse[ref]
}

// Plan is the ownership side table of a module.
type Plan struct {
	// Funcs is keyed by qualified name: f, Class.method, outer.inner.
	Funcs map[string]*FuncPlan
	Main  *FuncPlan
	// Diagnostics holds W-OWN-CLONE warnings for parameters that fell
	// back to cloning.
	Diagnostics diagnostic.List

	byFunc map[*hir.Function]*FuncPlan
}

// Func returns the plan of the function with the given qualified name.
func (p *Plan) Func(name string) *FuncPlan {
	if p == nil {
		return nil
	}
	return p.Funcs[name]
}

// Of returns the plan of f.
func (p *Plan) Of(f *hir.Function) *FuncPlan {
	if p == nil {
		return nil
	}
	if f == nil {
		return p.Main
	}
	return p.byFunc[f]
}

// Analyze computes the ownership plan of mod.
func Analyze(mod *hir.Module, info *types.Info) *Plan {
	a := newAnalyzer(mod, info)
	return a.run()
}
