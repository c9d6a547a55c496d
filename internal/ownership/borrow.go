package ownership

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// ====== Parameter classification ======

// decide turns the facts of one body into its plan.
func (a *analyzer) decide(f *hir.Function, ft *facts) *FuncPlan {
	sig := a.info.SignatureOf(f)
	fp := &FuncPlan{Name: a.nameOf(f)}
	for i, p := range f.Params {
		t := hir.Unknown
		if sig != nil && i < len(sig.Params) {
			t = sig.Params[i]
		}
		fp.Params = append(fp.Params, classify(p, t, ft))
	}
	borrowedResult(f, sig, ft, fp)
	fp.SelfMode = receiver(f, ft, fp)
	return fp
}

// classify picks the mode of one parameter from the ways the body uses it.
// Copy values are always taken by value. A parameter the body both
// mutates and keeps is cloned, since the caller would otherwise observe a
// value it no longer owns.
func classify(p hir.Param, t hir.Type, ft *facts) ParamPlan {
	pp := ParamPlan{Name: p.Name}
	if s := ft.uses[p.Name]; s != nil {
		pp.Uses = s.Slice()
	}
	has := func(k UseKind) bool { return ft.has(p.Name, k) }

	switch {
	case p.IsVararg || p.IsKwarg:
		pp.Mode = Moved
		pp.Mutable = has(UseMutate) || has(UseRebind)
	case t.IsCopy():
		pp.Mode = Moved
		pp.Mutable = has(UseRebind)
	case has(UseMutate) && has(UseStore):
		pp.Mode = Cloned
		pp.Mutable = true
	case has(UseRebind):
		pp.Mode = Moved
		pp.Mutable = true
	case has(UseReturn) && has(UseMutate):
		pp.Mode = Moved
		pp.Mutable = true
	case has(UseMutate):
		pp.Mode = BorrowMut
	case has(UseReturn), has(UseMove), has(UseStore):
		pp.Mode = Moved
	default:
		pp.Mode = BorrowShared
	}
	return pp
}

// ====== Lifetimes ======

// resultLifetime is the single lifetime shared by every parameter a
// borrowed result may come from.
const resultLifetime = "'a"

// borrowedResult lets a function return one of its parameters by
// reference. Every return must hand back a parameter unchanged (a
// conditional between parameters counts), the result must not be Copy,
// and those parameters must only be read. All of them share one lifetime.
func borrowedResult(f *hir.Function, sig *types.Signature, ft *facts, fp *FuncPlan) {
	if sig == nil || f.Props.Generator || f.Props.Async {
		return
	}
	if sig.Ret.IsUnknown() || sig.Ret.IsCopy() || ft.fallsThrough || ft.bareReturn || len(ft.returns) == 0 {
		return
	}
	var names []string
	for _, r := range ft.returns {
		ns, ok := returnedNames(r)
		if !ok {
			return
		}
		names = append(names, ns...)
	}
	idx := make(map[int]bool)
	for _, n := range names {
		i := paramIndex(f, n)
		if i < 0 {
			return
		}
		p := f.Params[i]
		if p.IsVararg || p.IsKwarg || i >= len(sig.Params) || !sig.Params[i].Equal(sig.Ret) {
			return
		}
		for _, k := range fp.Params[i].Uses {
			if k != UseRead && k != UseReturn {
				return
			}
		}
		idx[i] = true
	}
	for i := range idx {
		fp.Params[i].Mode = BorrowShared
		fp.Params[i].Lifetime = resultLifetime
	}
	fp.ReturnsBorrow = true
	fp.Lifetimes = []string{resultLifetime}
}

// returnedNames lists the variables a return value can be, or false when
// it can be anything else.
func returnedNames(e hir.Expr) ([]string, bool) {
	switch x := e.(type) {
	case *hir.Name:
		return []string{x.ID}, true
	case *hir.IfExpr:
		l, ok := returnedNames(x.Then)
		if !ok {
			return nil, false
		}
		r, ok := returnedNames(x.Else)
		if !ok {
			return nil, false
		}
		return append(l, r...), true
	}
	return nil, false
}

func paramIndex(f *hir.Function, name string) int {
	for i, p := range f.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// ====== Receivers ======

// receiver picks how a method takes self. A context manager whose
// __enter__ returns self lends itself mutably to the with body.
func receiver(f *hir.Function, ft *facts, fp *FuncPlan) SelfMode {
	if !f.IsMethod() || f.Name == "__init__" {
		return SelfNone
	}
	if ft.returnsSelf {
		if f.Name == "__enter__" {
			fp.ReturnsBorrow = true
			return SelfMut
		}
		return SelfValue
	}
	if ft.has("self", UseMutate) || ft.has("self", UseRebind) {
		return SelfMut
	}
	return SelfRef
}

// ====== Locals ======

// locals decides which locals need `mut`: those bound more than once at
// the same version, augmented, or mutated in place.
func (a *analyzer) locals(f *hir.Function, ft *facts) map[string]LocalPlan {
	out := make(map[string]LocalPlan)
	scope := a.info.ScopeOf(f)
	if scope != nil {
		for _, name := range scope.Order {
			if f != nil && paramIndex(f, name) >= 0 {
				continue
			}
			mut := ft.mutable[name] || ft.has(name, UseMutate)
			for _, n := range ft.assigns[name] {
				if n > 1 {
					mut = true
				}
			}
			out[name] = LocalPlan{Mutable: mut}
		}
	}
	if f != nil && f.IsMethod() {
		if fp := a.plans[f]; fp != nil && fp.SelfMode == SelfValue && ft.has("self", UseMutate) {
			out["self"] = LocalPlan{Mutable: true}
		}
	}
	return out
}
