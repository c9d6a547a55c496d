package ownership

import (
	"reflect"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// analyzer carries the state of one Analyze call.
type analyzer struct {
	mod  *hir.Module
	info *types.Info

	funcs   []*hir.Function
	parent  map[*hir.Function]*hir.Function
	nested  map[*hir.Function]map[string]*hir.Function // nil key: top level
	plans   map[*hir.Function]*FuncPlan
	facts   map[*hir.Function]*facts
	classes map[string]*hir.Class
}

func newAnalyzer(mod *hir.Module, info *types.Info) *analyzer {
	a := &analyzer{
		mod:     mod,
		info:    info,
		parent:  make(map[*hir.Function]*hir.Function),
		nested:  make(map[*hir.Function]map[string]*hir.Function),
		plans:   make(map[*hir.Function]*FuncPlan),
		facts:   make(map[*hir.Function]*facts),
		classes: make(map[string]*hir.Class),
	}
	for _, c := range mod.Classes {
		a.classes[c.Name] = c
	}
	for _, f := range mod.AllFunctions() {
		a.collect(f, nil)
	}
	a.collectNested(mod.Main, nil)
	return a
}

// collect registers f and, depth first, the functions defined in its body.
func (a *analyzer) collect(f *hir.Function, parent *hir.Function) {
	a.funcs = append(a.funcs, f)
	if parent != nil {
		a.parent[f] = parent
	}
	a.collectNested(f.Body, f)
}

func (a *analyzer) collectNested(b hir.Block, owner *hir.Function) {
	hir.InspectBlock(b, func(n hir.Node) bool {
		fd, ok := n.(*hir.FuncDef)
		if !ok {
			return true
		}
		if a.nested[owner] == nil {
			a.nested[owner] = make(map[string]*hir.Function)
		}
		a.nested[owner][fd.Func.Name] = fd.Func
		a.collect(fd.Func, owner)
		return false
	})
}

// nameOf is the qualified name types assigned to f.
func (a *analyzer) nameOf(f *hir.Function) string {
	if sig := a.info.SignatureOf(f); sig != nil {
		return sig.Name
	}
	return f.QualifiedName()
}

// run iterates the per-function decisions to a fixpoint: a parameter's
// mode depends on the modes of the callees it is passed to, and a
// method's receiver on the methods it calls on self.
func (a *analyzer) run() *Plan {
	for round := 0; round <= len(a.funcs)+1; round++ {
		changed := false
		for _, f := range a.funcs {
			ft := a.walk(f)
			fp := a.decide(f, ft)
			if prev := a.plans[f]; prev == nil || !samePlan(prev, fp) {
				changed = true
			}
			a.plans[f] = fp
			a.facts[f] = ft
		}
		if !changed {
			break
		}
	}

	plan := &Plan{
		Funcs:  make(map[string]*FuncPlan, len(a.funcs)),
		byFunc: make(map[*hir.Function]*FuncPlan, len(a.funcs)),
	}
	for _, f := range a.funcs {
		fp := a.plans[f]
		ft := a.facts[f]
		fp.Locals = a.locals(f, ft)
		fp.LastUse = lastUses(ft, a.isVariable(f))
		plan.Funcs[fp.Name] = fp
		plan.byFunc[f] = fp
		for _, p := range fp.Params {
			if p.Mode == Cloned && p.Mutable {
				plan.Diagnostics.Add(diagnostic.New(diagnostic.CodeOwnershipClone).
					Warning().
					Category(diagnostic.CategoryOwnership).
					Span(paramSpan(f, p.Name)).
					Message("parameter %s is both mutated and stored; it is cloned at entry", p.Name).
					Suggest("annotate the parameter or copy it explicitly").
					Build())
			}
		}
	}

	ft := a.walk(nil)
	plan.Main = &FuncPlan{
		Name:    "main",
		Locals:  a.locals(nil, ft),
		LastUse: lastUses(ft, a.isVariable(nil)),
	}
	plan.Diagnostics.Sort()
	return plan
}

// samePlan compares the parts of two plans that callers depend on.
func samePlan(x, y *FuncPlan) bool {
	if x.SelfMode != y.SelfMode || x.ReturnsBorrow != y.ReturnsBorrow || len(x.Params) != len(y.Params) {
		return false
	}
	for i := range x.Params {
		if x.Params[i].Mode != y.Params[i].Mode || !reflect.DeepEqual(x.Params[i].Uses, y.Params[i].Uses) {
			return false
		}
	}
	return true
}

func paramSpan(f *hir.Function, name string) position.Span {
	for _, p := range f.Params {
		if p.Name == name {
			return p.Span
		}
	}
	return f.Span
}

// isVariable reports whether an identifier names a local or parameter of
// f rather than a function, class or global.
func (a *analyzer) isVariable(f *hir.Function) func(string) bool {
	scope := a.info.ScopeOf(f)
	return func(id string) bool {
		if scope.Lookup(id) != nil {
			return true
		}
		if f == nil {
			return false
		}
		for _, p := range f.Params {
			if p.Name == id {
				return true
			}
		}
		return id == "self" && f.IsMethod()
	}
}

// ====== Callee resolution ======

// resolveFunc finds the function a bare name denotes inside f: a nested
// definition of f or of an enclosing function, then a module function.
func (a *analyzer) resolveFunc(f *hir.Function, id string) *hir.Function {
	if f != nil && a.isVariable(f)(id) {
		return nil
	}
	for cur := f; cur != nil; cur = a.parent[cur] {
		if g, ok := a.nested[cur][id]; ok {
			return g
		}
	}
	if g, ok := a.nested[nil][id]; ok {
		return g
	}
	return a.mod.Function(id)
}

// findMethod looks name up on class and its bases.
func (a *analyzer) findMethod(class, name string) *hir.Function {
	seen := map[string]bool{}
	for stack := []string{class}; len(stack) > 0; {
		c := stack[0]
		stack = stack[1:]
		if seen[c] {
			continue
		}
		seen[c] = true
		cl := a.classes[c]
		if cl == nil {
			continue
		}
		if m := cl.Method(name); m != nil {
			return m
		}
		stack = append(stack, cl.Bases...)
	}
	return nil
}

// methodOf resolves a method call on recv to a module class method.
func (a *analyzer) methodOf(recv hir.Expr, name string) *hir.Function {
	t := a.info.TypeOf(recv)
	if t.Kind != hir.KindNamed {
		return nil
	}
	if _, ok := a.classes[t.Name]; !ok {
		return nil
	}
	return a.findMethod(t.Name, name)
}

// paramMode is the current mode of the parameter an argument binds to.
// pos is the positional index, or -1 for a keyword argument named kw.
func (a *analyzer) paramMode(callee *hir.Function, pos int, kw string) Mode {
	fp := a.plans[callee]
	if fp == nil {
		return BorrowShared
	}
	idx := -1
	if pos >= 0 {
		i := 0
		for j, p := range callee.Params {
			if p.IsKwarg || p.KeywordOnly {
				break
			}
			if p.IsVararg {
				idx = j
				break
			}
			if i == pos {
				idx = j
				break
			}
			i++
		}
	} else {
		for j, p := range callee.Params {
			if p.Name == kw && !p.IsVararg {
				idx = j
				break
			}
		}
		if idx < 0 {
			for j, p := range callee.Params {
				if p.IsKwarg {
					idx = j
				}
			}
		}
	}
	if idx < 0 || idx >= len(fp.Params) {
		return BorrowShared
	}
	return fp.Params[idx].Mode
}

// selfMode is the current receiver mode of m.
func (a *analyzer) selfMode(m *hir.Function) SelfMode {
	if fp := a.plans[m]; fp != nil {
		return fp.SelfMode
	}
	return SelfRef
}
