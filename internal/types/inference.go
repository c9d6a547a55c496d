package types

import (
	"sort"

	"github.com/hashicorp/go-set/v3"

	"github.com/pyrite-lang/pyrite/internal/astbridge"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// Config carries the collaborators of a check.
type Config struct {
	Registry *stdlib.Registry
	// Seed is the annotation environment produced by the bridge. It may
	// be nil.
	Seed *astbridge.TypeSeed
}

// Checker holds the state of one module check. The generation walk runs
// with final unset and records constraints; the annotation walk runs
// with final set and records Info.
type Checker struct {
	mod   *hir.Module
	reg   *stdlib.Registry
	seed  *astbridge.TypeSeed
	lat   *Lattice
	sol   *Solver
	info  *Info
	diags diagnostic.List
	final bool

	classes    map[string]*hir.Class
	exceptions map[string]bool
	fields     map[string]map[string]hir.Type
	sigs       map[*hir.Function]*Signature
	// parents maps nested functions to their enclosing function.
	parents map[*hir.Function]*hir.Function

	nodeVars map[hir.Node][]hir.Type
	usage    map[uint32]*usage
	varBound map[uint32]*set.TreeSet[string]
	tvBound  map[string]*set.TreeSet[string]
	promoted map[uint32]string

	versions map[*hir.Name]int
	reported map[string]bool

	// callees and recipes resolve call nodes during the annotation walk.
	callees map[hir.Node]*Signature
	recipes map[hir.Node]stdlib.Recipe

	// Per-body state.
	fn     *Signature
	cls    *hir.Class
	nested map[string]*hir.Function
}

// Check infers the types of mod. Problems are reported as diagnostics;
// Check never fails.
func Check(mod *hir.Module, cfg Config) (*Info, diagnostic.List) {
	return NewChecker(mod, cfg).Run()
}

// NewChecker prepares a check of mod: class hierarchy, field tables and
// signatures are built, nothing is walked yet.
func NewChecker(mod *hir.Module, cfg Config) *Checker {
	reg := cfg.Registry
	if reg == nil {
		reg = stdlib.NewRegistry(stdlib.Options{})
	}
	c := &Checker{
		mod:        mod,
		reg:        reg,
		seed:       cfg.Seed,
		info:       newInfo(),
		classes:    make(map[string]*hir.Class),
		exceptions: make(map[string]bool),
		fields:     make(map[string]map[string]hir.Type),
		sigs:       make(map[*hir.Function]*Signature),
		parents:    make(map[*hir.Function]*hir.Function),
		nodeVars:   make(map[hir.Node][]hir.Type),
		usage:      make(map[uint32]*usage),
		varBound:   make(map[uint32]*set.TreeSet[string]),
		tvBound:    make(map[string]*set.TreeSet[string]),
		promoted:   make(map[uint32]string),
		reported:   make(map[string]bool),
		callees:    make(map[hir.Node]*Signature),
		recipes:    make(map[hir.Node]stdlib.Recipe),
	}
	c.setup()
	return c
}

// Run performs both walks and returns the results.
func (c *Checker) Run() (*Info, diagnostic.List) {
	mod := c.mod

	// Generation walk. Main first, so functions see module globals.
	c.walkMain()
	for _, f := range mod.AllFunctions() {
		c.walkFunction(f)
	}
	c.versions = c.info.Versions
	c.info.Versions = make(map[*hir.Name]int)

	c.sol.Solve()
	c.applyUsage()
	c.sol.Solve()
	c.promote()
	c.reportConflicts()
	c.resolveTables()
	c.typeParams()

	// Annotation walk.
	c.final = true
	c.walkMain()
	for _, f := range mod.AllFunctions() {
		c.walkFunction(f)
	}
	c.computeFallibility()
	c.info.Callees = c.callees
	c.info.Recipes = c.recipes
	c.reportUnknown()
	c.diags.Sort()
	return c.info, c.diags
}

// setup builds the class hierarchy, field tables and signatures.
func (c *Checker) setup() {
	bases := make(map[string][]string)
	for _, cl := range c.mod.Classes {
		c.classes[cl.Name] = cl
		bases[cl.Name] = append([]string{}, cl.Bases...)
		if cl.IsException {
			c.exceptions[cl.Name] = true
		}
	}
	if c.seed != nil {
		for name := range c.seed.Exceptions {
			c.exceptions[name] = true
		}
	}
	// Classes providing every method of a protocol implement it.
	for _, p := range c.mod.Protocols {
		for _, cl := range c.mod.Classes {
			if cl.Name == p.Name || len(p.Methods) == 0 {
				continue
			}
			ok := true
			for _, m := range p.Methods {
				if c.findMethod(cl.Name, m) == nil {
					ok = false
					break
				}
			}
			if ok {
				bases[cl.Name] = append(bases[cl.Name], p.Name)
			}
		}
	}
	c.info.Bases = bases
	for name := range c.classes {
		c.info.classes[name] = true
	}
	c.lat = NewLattice(bases)
	c.sol = NewSolver(c.lat)

	for _, cl := range c.mod.Classes {
		fs := make(map[string]hir.Type, len(cl.Fields))
		for _, f := range cl.Fields {
			if f.Annotated || !f.Type.IsUnknown() {
				fs[f.Name] = f.Type
			} else {
				fs[f.Name] = c.sol.Fresh()
			}
		}
		if c.seed != nil {
			for name, t := range c.seed.Fields[cl.Name] {
				if _, ok := fs[name]; !ok {
					fs[name] = t
				}
			}
		}
		c.fields[cl.Name] = fs
	}
	for _, k := range c.mod.Constants {
		t := k.Type
		if t.IsUnknown() && c.seed != nil {
			t = c.seed.Globals[k.Name]
		}
		c.info.Constants[k.Name] = t
	}
	for _, f := range c.mod.AllFunctions() {
		c.signature(f, nil)
	}
}

// varFor returns the i-th unification variable owned by node, creating
// it on first use. Both walks see the same variables.
func (c *Checker) varFor(node hir.Node, i int) hir.Type {
	vs := c.nodeVars[node]
	for len(vs) <= i {
		vs = append(vs, c.sol.Fresh())
	}
	c.nodeVars[node] = vs
	if c.final {
		return c.finalize(c.sol.Resolve(vs[i]))
	}
	return vs[i]
}

// finalize replaces unbound variables by their promoted type parameter,
// or Unknown.
func (c *Checker) finalize(t hir.Type) hir.Type {
	if t.IsGround() {
		return t
	}
	return t.Map(func(u hir.Type) hir.Type {
		if u.Kind != hir.KindVar {
			return u
		}
		if name, ok := c.promoted[c.sol.Root(u.Var)]; ok {
			return hir.NamedOf(name)
		}
		return hir.Unknown
	})
}

func (c *Checker) resolved(t hir.Type) hir.Type {
	return c.finalize(c.sol.Resolve(t))
}

// resolveTables substitutes the solution into every table the
// annotation walk reads.
func (c *Checker) resolveTables() {
	for _, sig := range c.sigs {
		for i := range sig.Params {
			sig.Params[i] = c.resolved(sig.Params[i])
		}
		sig.Ret = c.resolved(sig.Ret)
		sig.Yield = c.resolved(sig.Yield)
	}
	for cls, fs := range c.fields {
		out := make(map[string]hir.Type, len(fs))
		for name, t := range fs {
			out[name] = c.resolved(t)
			fs[name] = out[name]
		}
		c.info.Fields[cls] = out
	}
	for name, t := range c.info.Constants {
		c.info.Constants[name] = c.resolved(t)
	}
	resolveScope := func(s *Scope) {
		for _, l := range s.Locals {
			for i := range l.Versions {
				l.Versions[i] = c.resolved(l.Versions[i])
			}
		}
	}
	resolveScope(c.info.Main)
	for _, s := range c.info.Defs {
		resolveScope(s)
	}
}

// reportConflicts turns failed constraints into mismatch diagnostics.
func (c *Checker) reportConflicts() {
	for _, cf := range c.sol.Conflicts() {
		l, r := c.finalize(cf.Left), c.finalize(cf.Right)
		if !c.lat.Compatible(l, r) && !c.coercible(l, r) {
			c.diags.Add(diagnostic.New(diagnostic.CodeTypeMismatch).
				Error().
				Category(diagnostic.CategoryType).
				Span(cf.Constraint.Span).
				Message("%s: expected %s, found %s", cf.Constraint.Reason, r, l).
				Build())
		}
	}
}

// coercible admits the implicit conversions generated code performs on
// the way into a slot: bool to int, iterators and homogeneous tuples to
// lists, and values of types declared outside the module.
func (c *Checker) coercible(from, to hir.Type) bool {
	switch {
	case from.Kind == hir.KindBool && to.Kind == hir.KindInt:
		return true
	case from.Kind == hir.KindBool && to.Kind == hir.KindFloat:
		return true
	case from.Kind == hir.KindNamed && from.Name == stdlib.TypeIter && (to.Kind == hir.KindList || to.Kind == hir.KindSet):
		return len(from.Elems) == 0 || c.lat.Compatible(from.Elems[0], to.Elems[0]) || c.coercible(from.Elems[0], to.Elems[0])
	case from.Kind == hir.KindTuple && to.Kind == hir.KindList:
		el := stdlib.ElementOf(from)
		return el.IsUnknown() || c.lat.Compatible(el, to.Elems[0])
	case from.Kind == hir.KindList && to.Kind == hir.KindList:
		return c.coercible(from.Elems[0], to.Elems[0])
	case to.Kind == hir.KindOptional:
		return c.coercible(from, to.Elems[0])
	case from.Kind == hir.KindNamed && c.opaqueNamed(from):
		return true
	case to.Kind == hir.KindNamed && c.opaqueNamed(to):
		return true
	}
	return false
}

// opaqueNamed reports named types the checker knows nothing about:
// classes of unknown modules and type variables.
func (c *Checker) opaqueNamed(t hir.Type) bool {
	if _, ok := c.classes[t.Name]; ok {
		return false
	}
	if c.exceptions[t.Name] || astbridge.IsBuiltinException(t.Name) {
		return false
	}
	switch t.Name {
	case stdlib.TypeRegex, stdlib.TypeMatch, stdlib.TypeFile, stdlib.TypeDatetime, stdlib.TypeDuration,
		stdlib.TypeDeque, stdlib.TypeCounter, stdlib.TypeHash, stdlib.TypeParser, stdlib.TypeArgs,
		stdlib.TypeBytes, stdlib.TypeIter, stdlib.TypeType:
		return false
	}
	return !c.mod.IsTypeVar(t.Name) && !c.isPromoted(t.Name)
}

func (c *Checker) isPromoted(name string) bool {
	for _, n := range c.promoted {
		if n == name {
			return true
		}
	}
	return false
}

// reportUnknown warns about parameters and returns nothing constrained.
func (c *Checker) reportUnknown() {
	fns := make([]*Signature, 0, len(c.sigs))
	for _, s := range c.sigs {
		fns = append(fns, s)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name < fns[j].Name })
	for _, s := range fns {
		for i, p := range s.Func.Params {
			if i >= len(s.Params) || p.Annotated || !s.Params[i].IsUnknown() {
				continue
			}
			c.diags.Add(diagnostic.New(diagnostic.CodeUnknownType).
				Warning().
				Category(diagnostic.CategoryType).
				Span(p.Span).
				Message("cannot infer a type for parameter %q of %s; it uses the generic value type", p.Name, s.Name).
				Suggest("add a type annotation").
				Build())
		}
	}
}

// record stores the type of e during the annotation walk.
func (c *Checker) record(e hir.Expr, t hir.Type) hir.Type {
	if c.final && e != nil {
		c.info.Types[e] = t
	}
	return t
}

func (c *Checker) sub(l, r hir.Type, reason string, span position.Span) {
	if c.final {
		return
	}
	c.sol.Add(Constraint{Kind: Sub, Left: l, Right: r, Reason: reason, Span: span})
}

func (c *Checker) eq(l, r hir.Type, reason string, span position.Span) {
	if c.final {
		return
	}
	c.sol.Add(Constraint{Kind: Eq, Left: l, Right: r, Reason: reason, Span: span})
}

func (c *Checker) flow(name string, from, to hir.Type, span position.Span) {
	if c.final {
		return
	}
	c.sol.Add(Constraint{Kind: Flow, Var: name, Left: from, Right: to, Reason: "narrowing of " + name, Span: span})
}

// errorf reports a type error once per span during the annotation walk.
func (c *Checker) errorf(code string, span position.Span, format string, args ...interface{}) {
	if !c.final {
		return
	}
	key := code + span.String()
	if c.reported[key] {
		return
	}
	c.reported[key] = true
	level := diagnostic.LevelError
	if code[0] == 'W' {
		level = diagnostic.LevelWarning
	}
	c.diags.Addf(level, diagnostic.CategoryType, code, span, format, args...)
}

// findMethod looks name up on class and its bases.
func (c *Checker) findMethod(class, name string) *hir.Function {
	seen := map[string]bool{}
	for cur := []string{class}; len(cur) > 0; {
		next := []string{}
		for _, n := range cur {
			if seen[n] {
				continue
			}
			seen[n] = true
			cl, ok := c.classes[n]
			if !ok {
				continue
			}
			if m := cl.Method(name); m != nil {
				return m
			}
			next = append(next, cl.Bases...)
		}
		cur = next
	}
	return nil
}

// fieldType looks a field up on class and its bases.
func (c *Checker) fieldType(class, name string) (hir.Type, bool) {
	seen := map[string]bool{}
	for cur := []string{class}; len(cur) > 0; {
		next := []string{}
		for _, n := range cur {
			if seen[n] {
				continue
			}
			seen[n] = true
			if t, ok := c.fields[n][name]; ok {
				return t, true
			}
			if cl, ok := c.classes[n]; ok {
				next = append(next, cl.Bases...)
			}
		}
		cur = next
	}
	return hir.Unknown, false
}
