package types

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// signature returns the signature of f, creating it with fresh
// variables for every unannotated parameter and return.
func (c *Checker) signature(f *hir.Function, parent *hir.Function) *Signature {
	if s, ok := c.sigs[f]; ok {
		return s
	}
	name := f.QualifiedName()
	if parent != nil {
		c.parents[f] = parent
		name = c.signature(parent, c.parents[parent]).Name + "." + f.Name
	}
	sig := &Signature{Name: name, Func: f, ErrorType: ErrorTypePyError, Yield: hir.None}
	if f.Props.Validator {
		sig.ErrorType = ErrorTypeString
	}
	for _, p := range f.Params {
		t := p.Type
		switch {
		case p.Annotated:
			if lit, ok := p.Default.(*hir.Lit); ok && lit.Kind == hir.LitNone {
				t = hir.OptionalOf(t)
			}
		case f.Name == "__exit__" && f.Class != "":
			// The exception in flight, if any.
			t = hir.OptionalOf(hir.NamedOf("Exception"))
			switch {
			case p.IsVararg:
				t = hir.ListOf(t)
			case p.IsKwarg:
				t = hir.DictOf(hir.Str, t)
			}
		case p.IsVararg:
			v := c.sol.Fresh()
			c.usage[v.Var] = &usage{param: p.Name, fn: name, span: p.Span}
			t = hir.ListOf(v)
		case p.IsKwarg:
			t = hir.DictOf(hir.Str, c.sol.Fresh())
		case t.IsUnknown():
			t = c.sol.Fresh()
			c.usage[t.Var] = &usage{param: p.Name, fn: name, span: p.Span}
		}
		sig.Params = append(sig.Params, t)
	}
	switch {
	case f.HasRet:
		sig.Ret = f.Ret
		if f.Props.Generator && f.Ret.Kind == hir.KindNamed && len(f.Ret.Elems) > 0 {
			sig.Yield = f.Ret.Elems[0]
		}
	case f.Props.Generator:
		y := c.sol.Fresh()
		sig.Yield = y
		sig.Ret = hir.NamedOf(stdlib.TypeIter, y)
	case f.Name == "__init__":
		sig.Ret = hir.None
	default:
		sig.Ret = c.sol.Fresh()
	}
	c.sigs[f] = sig
	c.info.Funcs[f] = sig
	c.info.Signatures[name] = sig
	return sig
}

// walkFunction checks a module function or method body.
func (c *Checker) walkFunction(f *hir.Function) {
	c.walkBody(f, nil)
}

// walkBody checks the body of f. outer is the environment of the
// enclosing body for nested functions, nil otherwise.
func (c *Checker) walkBody(f *hir.Function, outer *Env) {
	var parent *hir.Function
	if outer != nil && c.fn != nil {
		parent = c.fn.Func
	}
	sig := c.signature(f, parent)
	scope, ok := c.info.Defs[f]
	if !ok {
		scope = newScope()
		c.info.Defs[f] = scope
	}
	var env *Env
	if outer == nil {
		env = NewEnv(c.lat, scope)
	} else {
		env = outer.WithScope(scope)
	}
	env.record = c.info.Versions
	if c.final {
		env.replaying(c.versions)
	}

	savedFn, savedCls, savedNested := c.fn, c.cls, c.nested
	defer func() { c.fn, c.cls, c.nested = savedFn, savedCls, savedNested }()
	c.fn = sig
	c.cls = c.classes[f.Class]
	nested := make(map[string]*hir.Function, len(savedNested))
	for k, v := range savedNested {
		nested[k] = v
	}
	c.nested = nested

	switch {
	case f.IsMethod():
		env.BindLocal("self", hir.NamedOf(f.Class), f)
	case f.ClassMethod:
		env.BindLocal("cls", hir.NamedOf(stdlib.TypeType, hir.NamedOf(f.Class)), f)
	}
	for i, p := range f.Params {
		env.Param(p.Name, sig.Params[i], f)
		if p.Default != nil {
			dt := c.synth(p.Default, env)
			want := sig.Params[i]
			if p.IsVararg || p.IsKwarg {
				continue
			}
			c.sub(dt, want, "default value of parameter "+p.Name, p.Span)
		}
	}
	c.block(f.Body, env)
	if !f.Props.Generator && !f.HasRet && f.Name != "__init__" && !hir.Terminates(f.Body) {
		c.sub(hir.None, sig.Ret, "implicit return of "+sig.Name, f.Span)
	}
}

// walkMain checks the module's top-level statements.
func (c *Checker) walkMain() {
	env := NewEnv(c.lat, c.info.Main)
	env.record = c.info.Versions
	if c.final {
		env.replaying(c.versions)
	}
	c.fn, c.cls, c.nested = nil, nil, map[string]*hir.Function{}
	c.block(c.mod.Main, env)
}

// usage collects how the body of a function uses an unannotated
// parameter. Strong protocols pin a type; weak ones only suggest one.
type usage struct {
	param  string
	fn     string
	span   position.Span
	strong map[string]hir.Type
	weak   map[string]bool
	opaque bool
}

const (
	protoNumeric = "numeric"
	protoStr     = "str"
	protoList    = "list"
	protoDict    = "dict"
	protoSet     = "set"
	weakIter     = "iter"
	weakIndexInt = "int index"
	weakIndexStr = "str key"
)

// hint records a protocol use of t when t is a parameter variable.
func (c *Checker) hint(t hir.Type, proto string, as hir.Type) {
	if c.final || t.Kind != hir.KindVar {
		return
	}
	u, ok := c.usage[t.Var]
	if !ok {
		return
	}
	if u.strong == nil {
		u.strong = make(map[string]hir.Type)
	}
	if prev, ok := u.strong[proto]; ok {
		as = c.lat.LUB(prev, as)
	}
	u.strong[proto] = as
}

func (c *Checker) weakHint(t hir.Type, proto string) {
	if c.final || t.Kind != hir.KindVar {
		return
	}
	u, ok := c.usage[t.Var]
	if !ok {
		return
	}
	if u.weak == nil {
		u.weak = make(map[string]bool)
	}
	u.weak[proto] = true
}

// opaqueUse marks a parameter variable used in a way no protocol explains.
func (c *Checker) opaqueUse(t hir.Type) {
	if c.final || t.Kind != hir.KindVar {
		return
	}
	if u, ok := c.usage[t.Var]; ok {
		u.opaque = true
	}
}

// applyUsage pins parameter variables that no call site or annotation
// constrained from the protocols their bodies use.
func (c *Checker) applyUsage() {
	ids := make([]uint32, 0, len(c.usage))
	for id := range c.usage {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		u := c.usage[id]
		if _, ok := c.sol.Bound(id); ok {
			continue
		}
		protos := make([]string, 0, len(u.strong))
		for p := range u.strong {
			protos = append(protos, p)
		}
		sort.Strings(protos)
		var t hir.Type
		switch {
		case len(protos) > 1:
			c.protocolConflict(u, protos[0], protos[1])
			u.opaque = true
			continue
		case len(protos) == 1:
			t = u.strong[protos[0]]
			if u.weak[weakIndexStr] && protos[0] != protoDict {
				c.protocolConflict(u, protos[0], weakIndexStr)
				u.opaque = true
				continue
			}
			if u.weak[weakIndexInt] && (protos[0] == protoDict || protos[0] == protoSet || protos[0] == protoNumeric) {
				c.protocolConflict(u, protos[0], weakIndexInt)
				u.opaque = true
				continue
			}
		case u.weak[weakIndexStr] && u.weak[weakIndexInt]:
			c.protocolConflict(u, weakIndexInt, weakIndexStr)
			u.opaque = true
			continue
		case u.weak[weakIndexStr]:
			t = hir.DictOf(hir.Str, hir.Unknown)
		case u.weak[weakIndexInt], u.weak[weakIter]:
			t = hir.ListOf(hir.Unknown)
		default:
			continue
		}
		c.sol.Add(Constraint{Kind: Sub, Left: t, Right: hir.VarOf(id), Reason: "use of parameter " + u.param, Span: u.span})
	}
}

func (c *Checker) protocolConflict(u *usage, a, b string) {
	c.diags.Add(diagnostic.New(diagnostic.CodeProtocol).
		Warning().
		Category(diagnostic.CategoryType).
		Span(u.span).
		Message("parameter %q of %s is used both as %s and as %s; it keeps the generic value type", u.param, u.fn, a, b).
		Suggest("annotate the parameter").
		Build())
}

// bound records that a type parameter candidate needs a trait.
func (c *Checker) bound(t hir.Type, trait string) {
	if c.final {
		return
	}
	switch {
	case t.Kind == hir.KindVar:
		if c.varBound[t.Var] == nil {
			c.varBound[t.Var] = set.NewTreeSet[string](strings.Compare)
		}
		c.varBound[t.Var].Insert(trait)
	case t.Kind == hir.KindNamed && c.mod.IsTypeVar(t.Name):
		if c.tvBound[t.Name] == nil {
			c.tvBound[t.Name] = set.NewTreeSet[string](strings.Compare)
		}
		c.tvBound[t.Name].Insert(trait)
	}
}

// promote turns parameter variables that survived solving without
// evidence or opaque uses into type parameters of their function.
func (c *Checker) promote() {
	type cand struct {
		id  uint32
		fn  string
		idx int
	}
	var cands []cand
	for _, sig := range c.sigs {
		for i, p := range sig.Params {
			collectVars(p, func(id uint32) {
				if u, ok := c.usage[id]; ok && !u.opaque {
					cands = append(cands, cand{id: id, fn: sig.Name, idx: i})
				}
			})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].fn != cands[j].fn {
			return cands[i].fn < cands[j].fn
		}
		return cands[i].idx < cands[j].idx
	})
	used := map[string]map[string]bool{}
	for _, cd := range cands {
		root := c.sol.Root(cd.id)
		if _, ok := c.sol.Bound(root); ok {
			continue
		}
		if _, ok := c.promoted[root]; ok {
			continue
		}
		if used[cd.fn] == nil {
			used[cd.fn] = map[string]bool{}
		}
		c.promoted[root] = c.freshParamName(used[cd.fn])
	}
	// Unbound variables fed only by a type parameter share its name, so
	// `return x` makes the result T as well.
	for changed := true; changed; {
		changed = false
		for _, k := range c.sol.Constraints() {
			if k.Kind != Sub || k.Left.Kind != hir.KindVar || k.Right.Kind != hir.KindVar {
				continue
			}
			l, r := c.sol.Root(k.Left.Var), c.sol.Root(k.Right.Var)
			name, ok := c.promoted[l]
			if !ok {
				continue
			}
			if _, bound := c.sol.Bound(r); bound {
				continue
			}
			if _, done := c.promoted[r]; done {
				continue
			}
			c.promoted[r] = name
			changed = true
		}
	}
}

var paramNames = []string{"T", "U", "V", "W"}

func (c *Checker) freshParamName(used map[string]bool) string {
	for i := 0; ; i++ {
		name := ""
		if i < len(paramNames) {
			name = paramNames[i]
		} else {
			name = "T" + strconv.Itoa(i-len(paramNames)+1)
		}
		if !used[name] && !c.mod.IsTypeVar(name) {
			used[name] = true
			return name
		}
	}
}

// traitOrder fixes the order bounds are listed in.
var traitOrder = []string{"Clone", "PartialEq", "Eq", "Hash", "PartialOrd", "Display", "Add", "Sub", "Mul", "Div"}

// typeParams computes the type parameters of every signature from the
// declared type variables and promoted variables it mentions.
func (c *Checker) typeParams() {
	for _, sig := range c.sigs {
		seen := map[string]bool{}
		var names []string
		visit := func(t hir.Type) {
			mapNamed(t, func(n hir.Type) {
				if n.Kind != hir.KindNamed || seen[n.Name] {
					return
				}
				if c.mod.IsTypeVar(n.Name) || c.isPromoted(n.Name) {
					seen[n.Name] = true
					names = append(names, n.Name)
				}
			})
		}
		for _, p := range sig.Params {
			visit(p)
		}
		visit(sig.Ret)
		for _, name := range names {
			traits := map[string]bool{}
			if b := c.tvBound[name]; b != nil && c.mod.IsTypeVar(name) {
				for _, t := range b.Slice() {
					traits[t] = true
				}
			}
			for id, b := range c.varBound {
				if c.promoted[c.sol.Root(id)] == name && c.sigOwnsVar(sig, id) {
					for _, t := range b.Slice() {
						traits[t] = true
					}
				}
			}
			for _, p := range sig.Params {
				if keyed(p, name) {
					traits["Eq"], traits["Hash"] = true, true
				}
				if contained(p, name) && mentions(sig.Ret, name) {
					traits["Clone"] = true
				}
			}
			if traits["Eq"] || traits["PartialOrd"] {
				traits["PartialEq"] = true
			}
			tp := TypeParam{Name: name}
			for _, t := range traitOrder {
				if !traits[t] {
					continue
				}
				switch t {
				case "Add", "Sub", "Mul", "Div":
					tp.Bounds = append(tp.Bounds, "std::ops::"+t+"<Output = "+name+">")
				case "Display":
					tp.Bounds = append(tp.Bounds, "std::fmt::Display")
				default:
					tp.Bounds = append(tp.Bounds, t)
				}
			}
			sig.TypeParams = append(sig.TypeParams, tp)
		}
	}
}

// sigOwnsVar reports whether id was introduced by one of sig's
// parameters, so bounds of a shared root are not attributed elsewhere.
func (c *Checker) sigOwnsVar(sig *Signature, id uint32) bool {
	u, ok := c.usage[id]
	if !ok {
		// Variables unified with a parameter through arithmetic.
		return true
	}
	return u.fn == sig.Name
}

func mapNamed(t hir.Type, f func(hir.Type)) {
	f(t)
	for _, e := range t.Elems {
		mapNamed(e, f)
	}
}

func mentions(t hir.Type, name string) bool {
	found := false
	mapNamed(t, func(n hir.Type) {
		if n.Kind == hir.KindNamed && n.Name == name {
			found = true
		}
	})
	return found
}

// keyed reports whether name is a dict key or set element inside t.
func keyed(t hir.Type, name string) bool {
	switch t.Kind {
	case hir.KindDict:
		if mentions(t.Elems[0], name) {
			return true
		}
	case hir.KindSet:
		if mentions(t.Elems[0], name) {
			return true
		}
	}
	for _, e := range t.Elems {
		if keyed(e, name) {
			return true
		}
	}
	return false
}

// contained reports whether name appears inside a container in t.
func contained(t hir.Type, name string) bool {
	switch t.Kind {
	case hir.KindList, hir.KindDict, hir.KindSet, hir.KindTuple:
		return mentions(t, name)
	}
	return false
}
