// Package codegen lowers a checked module to a Rust syntax tree.
//
// Generation reads three side tables: the type information from package
// types, the ownership plan from package ownership, and the stdlib
// registry whose recipes spell library calls. Everything it cannot map is
// reported as a diagnostic and emitted as a best-effort fallback, so the
// output always prints; the validators decide whether it compiles.
package codegen

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// Options tune emission.
type Options struct {
	// Header lines are written as comments above the crate attributes.
	Header []string
	// ForceClone lists parameters, as "qualified.param", that are cloned
	// at entry instead of borrowed.
	ForceClone []string
	// SliceParams spells read-only list parameters as &[T].
	SliceParams bool
	// CloneStrings passes read-only string parameters by value.
	CloneStrings bool
}

// Result describes what the emitted crate needs.
type Result struct {
	Crates      []string
	Helpers     []string
	Uses        []string
	HasMain     bool
	Diagnostics diagnostic.List
}

// crateAttrs silences the lints generated code trips by construction.
const crateAttrs = "#![allow(unused_mut, unused_variables, unused_assignments, unused_imports, dead_code, " +
	"unused_parens, non_snake_case, non_upper_case_globals, non_camel_case_types, unused_braces)]"

type generator struct {
	mod  *hir.Module
	info *types.Info
	plan *ownership.Plan
	reg  *stdlib.Registry
	opts Options

	uses    *set.TreeSet[string]
	crates  *set.TreeSet[string]
	helpers *set.TreeSet[string]
	diags   diagnostic.List

	classes    map[string]*hir.Class
	protocols  map[string]bool
	funcs      map[string]*hir.Function
	funcNames  map[string]string
	globals    map[string]*global
	mutConst   map[string]bool
	forceClone map[string]bool
	userMain   bool

	unions     map[string]hir.Type
	unionOrder []string
	typeParams map[string]bool

	fn *funcCtx
	// impl is the class whose impl block is being emitted.
	impl       *hir.Class
	superNeeds map[string][]*hir.Function
	raised     map[string]bool
	// closures are nested functions emitted as closures, whose
	// parameters are all taken by value.
	closures map[*hir.Function]bool
}

// Generate lowers mod. info and plan must come from checking and
// analyzing the same module.
func Generate(mod *hir.Module, info *types.Info, plan *ownership.Plan, reg *stdlib.Registry, opts Options) (*rust.File, *Result) {
	g := &generator{
		mod:        mod,
		info:       info,
		plan:       plan,
		reg:        reg,
		opts:       opts,
		uses:       set.NewTreeSet[string](strings.Compare),
		crates:     set.NewTreeSet[string](strings.Compare),
		helpers:    set.NewTreeSet[string](strings.Compare),
		classes:    make(map[string]*hir.Class),
		protocols:  make(map[string]bool),
		funcs:      make(map[string]*hir.Function),
		funcNames:  make(map[string]string),
		globals:    make(map[string]*global),
		mutConst:   make(map[string]bool),
		forceClone: make(map[string]bool),
		unions:     make(map[string]hir.Type),
		typeParams: make(map[string]bool),
		superNeeds: make(map[string][]*hir.Function),
		raised:     make(map[string]bool),
		closures:   make(map[*hir.Function]bool),
	}
	for _, fc := range opts.ForceClone {
		g.forceClone[fc] = true
	}
	file := g.module()
	res := &Result{
		Crates:      g.crates.Slice(),
		Helpers:     g.helpers.Slice(),
		Uses:        g.uses.Slice(),
		HasMain:     true,
		Diagnostics: g.diags,
	}
	return file, res
}

// ====== Registration ======

func (g *generator) use(path string) { g.uses.Insert(path) }

func (g *generator) crate(name string) { g.crates.Insert(name) }

// helper requests a prelude item together with what it depends on.
func (g *generator) helper(name string) {
	if g.helpers.Contains(name) {
		return
	}
	g.helpers.Insert(name)
	if h, ok := preludeItems[name]; ok {
		for _, d := range h.deps {
			g.helper(d)
		}
		for _, c := range h.crates {
			g.crate(c)
		}
	}
}

func (g *generator) recipe(rc stdlib.Recipe) {
	for _, u := range rc.Imports {
		g.use(u)
	}
	for _, c := range rc.Crates {
		g.crate(c)
	}
	for _, h := range rc.Helpers {
		g.helper(h)
	}
}

func (g *generator) warnf(code string, span position.Span, format string, args ...interface{}) {
	g.diags.Addf(diagnostic.LevelWarning, diagnostic.CategoryCodegen, code, span, format, args...)
}

func (g *generator) unsupported(span position.Span, format string, args ...interface{}) {
	g.diags.Addf(diagnostic.LevelError, diagnostic.CategoryCodegen, diagnostic.CodeGenUnsupported, span, format, args...)
}

// ====== Module lookups ======

func (g *generator) isException(name string) bool {
	if cl, ok := g.classes[name]; ok {
		return cl.IsException
	}
	for _, b := range types.BuiltinExceptions() {
		if b == name {
			return true
		}
	}
	return name == "Exception" || name == "BaseException"
}

func (g *generator) isProtocol(name string) bool { return g.protocols[name] }

// exceptionStruct renders a user exception class as a message-carrying
// struct. Raising still travels as PyError, which the struct converts to.
func (g *generator) exceptionStruct(cl *hir.Class) rust.Item {
	g.helper("PyError")
	name := typeName(cl.Name)
	text := "#[derive(Debug, Clone, PartialEq)]\n" +
		"pub struct " + name + " {\n    pub message: String,\n}\n\n" +
		"impl " + name + " {\n" +
		"    pub fn new(message: String) -> Self {\n        " + name + " { message }\n    }\n}\n\n" +
		"impl std::fmt::Display for " + name + " {\n" +
		"    fn fmt(&self, f: &mut std::fmt::Formatter) -> std::fmt::Result {\n" +
		"        write!(f, \"{}\", self.message)\n    }\n}\n\n" +
		"impl std::error::Error for " + name + " {}\n\n" +
		"impl From<" + name + "> for PyError {\n" +
		"    fn from(e: " + name + ") -> Self {\n" +
		"        PyError::new(" + rustString(cl.Name) + ", e.message)\n    }\n}\n"
	return &rust.RawItem{Text: text}
}

type fieldInfo struct {
	name string
	typ  hir.Type
	def  hir.Expr
}

// fieldsOf lists the fields of cl's struct: inherited fields first, in
// declaration order.
func (g *generator) fieldsOf(cl *hir.Class) []fieldInfo {
	var out []fieldInfo
	seen := map[string]bool{}
	var walk func(c *hir.Class, depth int)
	walk = func(c *hir.Class, depth int) {
		if depth > 16 {
			return
		}
		for _, b := range c.Bases {
			if base, ok := g.classes[b]; ok && !base.IsException {
				walk(base, depth+1)
			}
		}
		for _, f := range c.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			t, ok := g.info.Field(cl.Name, f.Name)
			if !ok {
				if t, ok = g.info.Field(c.Name, f.Name); !ok {
					t = f.Type
				}
			}
			out = append(out, fieldInfo{name: f.Name, typ: t, def: f.Default})
		}
	}
	walk(cl, 0)
	return out
}

// findMethod looks name up on cl and its bases.
func (g *generator) findMethod(cl *hir.Class, name string) *hir.Function {
	for depth := 0; cl != nil && depth < 16; depth++ {
		if m := cl.Method(name); m != nil {
			return m
		}
		var next *hir.Class
		for _, b := range cl.Bases {
			if base, ok := g.classes[b]; ok {
				next = base
				break
			}
		}
		cl = next
	}
	return nil
}

// superOf is the first module base of cl.
func (g *generator) superOf(cl *hir.Class) *hir.Class {
	if cl == nil {
		return nil
	}
	for _, b := range cl.Bases {
		if base, ok := g.classes[b]; ok {
			return base
		}
	}
	return nil
}

func (g *generator) classOf(t hir.Type) *hir.Class {
	if t.Kind != hir.KindNamed {
		return nil
	}
	cl := g.classes[t.Name]
	if cl == nil || cl.IsException {
		return nil
	}
	return cl
}

// fnName is the Rust name of a module function.
func (g *generator) fnName(name string) string {
	if n, ok := g.funcNames[name]; ok {
		return n
	}
	return Sanitize(name)
}

// ====== Module emission ======

func (g *generator) module() *rust.File {
	for _, cl := range g.mod.Classes {
		g.classes[cl.Name] = cl
	}
	for _, p := range g.mod.Protocols {
		g.protocols[p.Name] = true
	}
	funcs := g.dedupFunctions()
	g.userMain = g.detectMain()
	for _, f := range funcs {
		g.funcNames[f.Name] = Sanitize(f.Name)
	}
	if main, ok := g.funcs["main"]; ok {
		switch {
		case g.userMain && g.sigOf(main).Fallible:
			g.funcNames["main"] = "py_main"
		case g.userMain:
			g.funcNames["main"] = "main"
		default:
			g.funcNames["main"] = "main_"
		}
	}
	g.findGlobals()

	file := &rust.File{Header: g.header()}
	var consts, classes, fns []rust.Item
	for _, c := range g.dedupConstants() {
		consts = append(consts, g.constant(c))
	}
	for _, name := range g.globalOrder() {
		consts = append(consts, g.static(g.globals[name]))
	}
	for _, cl := range g.mod.Classes {
		if cl.IsException {
			g.raised[cl.Name] = true
			classes = append(classes, g.exceptionStruct(cl))
			continue
		}
		classes = append(classes, g.class(cl)...)
	}
	for _, f := range funcs {
		fns = append(fns, g.function(f, nil))
	}
	if !g.userMain {
		fns = append(fns, g.mainItems()...)
	} else if g.sigOf(g.funcs["main"]).Fallible {
		fns = append(fns, g.mainWrapper("py_main"))
	}

	file.Items = append(file.Items, consts...)
	file.Items = append(file.Items, g.unionItems()...)
	file.Items = append(file.Items, classes...)
	file.Items = append(file.Items, fns...)
	file.Items = append(file.Items, g.prelude()...)
	for _, u := range g.uses.Slice() {
		file.Uses = append(file.Uses, rust.Use{Path: u})
	}
	return file
}

func (g *generator) header() []string {
	var out []string
	for _, h := range g.opts.Header {
		out = append(out, "// "+h)
	}
	return append(out, crateAttrs)
}

// dedupFunctions keeps the last definition of each module function.
func (g *generator) dedupFunctions() []*hir.Function {
	last := map[string]int{}
	for i, f := range g.mod.Functions {
		last[f.Name] = i
	}
	var out []*hir.Function
	for i, f := range g.mod.Functions {
		if last[f.Name] != i {
			g.warnf(diagnostic.CodeDuplicate, f.Span, "function %s is redefined later; the last definition wins", f.Name)
			continue
		}
		g.funcs[f.Name] = f
		out = append(out, f)
	}
	return out
}

func (g *generator) dedupConstants() []hir.Constant {
	last := map[string]int{}
	for i, c := range g.mod.Constants {
		last[c.Name] = i
	}
	var out []hir.Constant
	for i, c := range g.mod.Constants {
		if last[c.Name] != i {
			g.warnf(diagnostic.CodeDuplicate, c.Span, "constant %s is redefined later; the last definition wins", c.Name)
			continue
		}
		out = append(out, c)
	}
	return out
}

// detectMain reports whether the top level only calls a parameterless
// main, which then becomes the Rust entry point.
func (g *generator) detectMain() bool {
	main, ok := g.funcs["main"]
	if !ok || len(main.Params) > 0 {
		return false
	}
	body := g.mod.Main
	if len(body) == 1 {
		if s, ok := body[0].(*hir.If); ok && isMainGuard(s.Cond) && len(s.Else) == 0 {
			body = s.Then
		}
	}
	if len(body) != 1 {
		return false
	}
	es, ok := body[0].(*hir.ExprStmt)
	if !ok {
		return false
	}
	call, ok := es.X.(*hir.Call)
	if !ok || len(call.Args) > 0 || len(call.Keywords) > 0 {
		return false
	}
	n, ok := call.Func.(*hir.Name)
	return ok && n.ID == "main"
}

func isMainGuard(e hir.Expr) bool {
	c, ok := e.(*hir.Compare)
	if !ok || len(c.Ops) != 1 || c.Ops[0] != "==" {
		return false
	}
	n, ok := c.Left.(*hir.Name)
	return ok && n.ID == "__name__"
}

func (g *generator) sigOf(f *hir.Function) *types.Signature {
	if sig := g.info.SignatureOf(f); sig != nil {
		return sig
	}
	return &types.Signature{Name: f.QualifiedName(), Func: f, Ret: hir.None, ErrorType: types.ErrorTypePyError}
}

// ====== Constants ======

func (g *generator) constant(c hir.Constant) rust.Item {
	t, ok := g.info.Constants[c.Name]
	if !ok {
		t = c.Type
	}
	g.fn = g.staticCtx()
	defer func() { g.fn = nil }()
	name := upper(c.Name)
	switch {
	case t.Kind == hir.KindString:
		if lit, ok := c.Value.(*hir.Lit); ok && lit.Kind == hir.LitStr {
			return &rust.Const{Name: name, Type: "&str", Value: rust.R(rustString(lit.Str))}
		}
	case t.IsCopy() && t.Kind != hir.KindNone:
		return &rust.Const{Name: name, Type: g.rustType(t), Value: rust.R(g.exprAs(c.Value, t))}
	}
	if g.constMutated(c.Name) {
		return &rust.Static{Name: name, Type: "std::sync::Mutex<" + g.rustType(t) + ">",
			Init: rust.R("std::sync::Mutex::new(" + g.exprAs(c.Value, t) + ")")}
	}
	return &rust.Static{Name: name, Type: g.rustType(t), Init: rust.R(g.exprAs(c.Value, t))}
}

// constMutated reports whether a literal container bound at module level
// is changed in place somewhere, so its static needs a lock.
func (g *generator) constMutated(name string) bool {
	if m, ok := g.mutConst[name]; ok {
		return m
	}
	m := g.mutated(name)
	g.mutConst[name] = m
	return m
}

// constVal is how a reference to a module constant reads.
func (g *generator) constVal(name string) (val, bool) {
	c := g.mod.Constant(name)
	if c == nil {
		return val{}, false
	}
	t, ok := g.info.Constants[name]
	if !ok {
		t = c.Type
	}
	code := upper(name)
	switch {
	case t.Kind == hir.KindString:
		if lit, ok := c.Value.(*hir.Lit); ok && lit.Kind == hir.LitStr {
			return val{code: code, t: t, lit: true}, true
		}
	case t.IsCopy() && t.Kind != hir.KindNone:
		return val{code: code, t: t}, true
	}
	if g.constMutated(name) {
		return val{code: "(*" + code + ".lock().unwrap())", t: t, place: true}, true
	}
	return val{code: "(*" + code + ")", t: t, place: true}, true
}

// ====== Module-level variables ======

// global is a top-level variable that functions read or mutate. It lives
// in a lazily initialized static; one that is never mutated is read
// directly, others sit behind a mutex.
type global struct {
	name  string
	code  string
	t     hir.Type
	mutex bool
	init  *hir.Assign
	order int
}

func (g *generator) globalOrder() []string {
	names := make([]string, 0, len(g.globals))
	for n := range g.globals {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return g.globals[names[i]].order < g.globals[names[j]].order })
	return names
}

// findGlobals marks top-level variables referenced from function bodies.
func (g *generator) findGlobals() {
	mainScope := g.info.Main
	if mainScope == nil {
		return
	}
	order := map[string]int{}
	for i, n := range mainScope.Order {
		order[n] = i
	}
	for _, fc := range g.allFunctions() {
		bound := compBound(fc.f.Body)
		hir.InspectBlock(fc.f.Body, func(n hir.Node) bool {
			switch n := n.(type) {
			case *hir.FuncDef, *hir.ClassDef:
				return false
			case *hir.Name:
				if bound[n.ID] || n.ID == "self" || n.ID == "cls" {
					return true
				}
				if g.boundIn(fc, n.ID) {
					return true
				}
				if g.funcs[n.ID] != nil || g.classes[n.ID] != nil || g.mod.Constant(n.ID) != nil {
					return true
				}
				if l := mainScope.Lookup(n.ID); l != nil && g.globals[n.ID] == nil {
					g.globals[n.ID] = &global{name: n.ID, code: upper(n.ID), t: l.Type(), order: order[n.ID]}
				}
			}
			return true
		})
	}
	for name, gl := range g.globals {
		gl.init = g.soleInit(name)
		gl.mutex = gl.init == nil || g.mutated(name)
		if gl.mutex {
			continue
		}
		if hir.Contains(gl.init.Value, func(n hir.Node) bool {
			ref, ok := n.(*hir.Name)
			return ok && mainScope.Lookup(ref.ID) != nil && g.globals[ref.ID] == nil
		}) {
			gl.mutex = true
		}
	}
	for _, gl := range g.globals {
		if gl.mutex {
			gl.code = "(*" + gl.code + ".lock().unwrap())"
		} else {
			gl.code = "(*" + gl.code + ")"
		}
	}
}

type funcRef struct {
	f       *hir.Function
	parents []*hir.Function
}

// allFunctions lists every function body: module functions, methods and
// nested definitions, each with its enclosing functions.
func (g *generator) allFunctions() []funcRef {
	var out []funcRef
	var nested func(b hir.Block, parents []*hir.Function)
	add := func(f *hir.Function, parents []*hir.Function) {
		out = append(out, funcRef{f: f, parents: parents})
		nested(f.Body, append(append([]*hir.Function(nil), parents...), f))
	}
	nested = func(b hir.Block, parents []*hir.Function) {
		hir.InspectBlock(b, func(n hir.Node) bool {
			if fd, ok := n.(*hir.FuncDef); ok {
				add(fd.Func, parents)
				return false
			}
			return true
		})
	}
	for _, f := range g.mod.AllFunctions() {
		add(f, nil)
	}
	nested(g.mod.Main, nil)
	return out
}

// boundIn reports whether name is a parameter or local of fc's function
// or of an enclosing one.
func (g *generator) boundIn(fc funcRef, name string) bool {
	chain := append([]*hir.Function{fc.f}, fc.parents...)
	for _, f := range chain {
		for _, p := range f.Params {
			if p.Name == name {
				return true
			}
		}
		if g.info.ScopeOf(f).Lookup(name) != nil {
			return true
		}
		found := false
		hir.InspectBlock(f.Body, func(n hir.Node) bool {
			if fd, ok := n.(*hir.FuncDef); ok {
				if fd.Func.Name == name {
					found = true
				}
				return false
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// compBound collects the names bound by comprehensions and lambdas.
func compBound(b hir.Block) map[string]bool {
	out := map[string]bool{}
	hir.InspectBlock(b, func(n hir.Node) bool {
		switch n := n.(type) {
		case *hir.FuncDef:
			return false
		case *hir.Comprehension:
			for _, c := range n.Clauses {
				if c.Kind == hir.ClauseFor {
					for _, name := range hir.Names(c.Target) {
						out[name] = true
					}
				}
			}
		case *hir.Lambda:
			for _, p := range n.Params {
				out[p] = true
			}
		}
		return true
	})
	return out
}

// soleInit returns the single top-level assignment of name when it is the
// variable's only binding.
func (g *generator) soleInit(name string) *hir.Assign {
	var init *hir.Assign
	bindings := 0
	hir.InspectBlock(g.mod.Main, func(n hir.Node) bool {
		switch n := n.(type) {
		case *hir.FuncDef, *hir.ClassDef:
			return false
		case *hir.Assign:
			for _, t := range hir.Names(n.Target) {
				if t == name {
					bindings++
				}
			}
		case *hir.AugAssign:
			if t, ok := n.Target.(*hir.Name); ok && t.ID == name {
				bindings++
			}
		case *hir.For:
			for _, t := range hir.Names(n.Target) {
				if t == name {
					bindings++
				}
			}
		case *hir.With:
			for _, it := range n.Items {
				if it.Target != nil && it.Target.ID == name {
					bindings++
				}
			}
		case *hir.Walrus:
			if n.Target.ID == name {
				bindings++
			}
		case *hir.AnnDecl:
			if n.Target.ID == name {
				bindings++
			}
		}
		return true
	})
	if bindings != 1 {
		return nil
	}
	for _, s := range g.mod.Main {
		if a, ok := s.(*hir.Assign); ok {
			if t, ok := a.Target.(*hir.Name); ok && t.ID == name && a.Value != nil {
				init = a
			}
		}
	}
	return init
}

// mutated reports whether any code mutates the value bound to name in
// place.
func (g *generator) mutated(name string) bool {
	if g.plan != nil && g.plan.Main != nil && g.plan.Main.Mutable(name) {
		return true
	}
	isName := func(e hir.Expr) bool {
		n, ok := e.(*hir.Name)
		return ok && n.ID == name
	}
	check := func(n hir.Node) bool {
		switch n := n.(type) {
		case *hir.MethodCall:
			if isName(n.Recv) {
				if stdlib.IsMutating(n.Method) {
					return true
				}
				if rc, ok := g.info.Recipes[n]; ok && rc.Mutates {
					return true
				}
				if sig, ok := g.info.Callees[n]; ok && g.plan.Of(sig.Func) != nil && g.plan.Of(sig.Func).SelfMode == ownership.SelfMut {
					return true
				}
			}
		case *hir.Assign:
			return subjectIs(n.Target, name)
		case *hir.AugAssign:
			return subjectIs(n.Target, name)
		case *hir.ContainerRemove:
			return isName(n.Container)
		}
		if sig, ok := g.info.Callees[n]; ok && sig.Func != nil {
			return g.passesMut(sig.Func, n, name)
		}
		return false
	}
	if hir.BlockContains(g.mod.Main, check) {
		return true
	}
	for _, fc := range g.allFunctions() {
		if hir.BlockContains(fc.f.Body, check) {
			return true
		}
	}
	return false
}

// passesMut reports whether call hands the variable name to a parameter
// of f that is borrowed mutably.
func (g *generator) passesMut(f *hir.Function, call hir.Node, name string) bool {
	var args []hir.Expr
	var kws []hir.Keyword
	switch c := call.(type) {
	case *hir.Call:
		args, kws = c.Args, c.Keywords
	case *hir.MethodCall:
		args, kws = c.Args, c.Keywords
	default:
		return false
	}
	mut := func(i int, e hir.Expr) bool {
		n, ok := e.(*hir.Name)
		return ok && n.ID == name && i < len(f.Params) && g.paramPlan(f, i).Mode == ownership.BorrowMut
	}
	for i, a := range args {
		if mut(i, a) {
			return true
		}
	}
	for _, kw := range kws {
		for i, p := range f.Params {
			if p.Name == kw.Name && mut(i, kw.Value) {
				return true
			}
		}
	}
	return false
}

// subjectIs reports whether an index or attribute store writes into the
// variable name.
func subjectIs(target hir.Expr, name string) bool {
	for {
		switch t := target.(type) {
		case *hir.Index:
			target = t.Value
		case *hir.Attribute:
			target = t.Value
		case *hir.SliceExpr:
			target = t.Value
		default:
			return false
		}
		if n, ok := target.(*hir.Name); ok {
			return n.ID == name
		}
	}
}

func (g *generator) static(gl *global) rust.Item {
	name := upper(gl.name)
	if gl.mutex {
		return &rust.Static{Name: name, Type: "std::sync::Mutex<" + g.rustType(gl.t) + ">",
			Init: rust.R("std::sync::Mutex::new(" + g.zero(gl.t) + ")")}
	}
	g.fn = g.staticCtx()
	defer func() { g.fn = nil }()
	return &rust.Static{Name: name, Type: g.rustType(gl.t), Init: rust.R(g.exprAs(gl.init.Value, gl.t))}
}

// zero is the starting value of a mutex global before the top level
// assigns it.
func (g *generator) zero(t hir.Type) string {
	if g.defaultable(t) {
		return "Default::default()"
	}
	g.unsupported(position.Span{}, "module-level variable of type %s needs a default value", t)
	return "unreachable!()"
}

// ====== Union enums ======

func (g *generator) unionItems() []rust.Item {
	var out []rust.Item
	// Emitting a variant can register nested unions.
	for i := 0; i < len(g.unionOrder); i++ {
		name := g.unionOrder[i]
		t := g.unions[name]
		en := &rust.Enum{Name: name}
		tr := g.traitsOf(t, map[string]bool{})
		tr.dflt = false
		en.Derives = derives(tr)
		for _, v := range g.unionVariants(t) {
			en.Variants = append(en.Variants, rust.Variant{Name: v.name, Fields: []string{g.rustType(v.typ)}})
		}
		out = append(out, en)
		out = append(out, g.unionDisplay(name, t))
	}
	return out
}

func (g *generator) unionDisplay(name string, t hir.Type) rust.Item {
	var arms []string
	for _, v := range g.unionVariants(t) {
		ph, arg := g.display(val{code: "v", t: v.typ, ref: refShared})
		if arg == "" {
			arms = append(arms, "            "+name+"::"+v.name+"(_) => write!(f, "+rustString(ph)+"),")
			continue
		}
		arms = append(arms, "            "+name+"::"+v.name+"(v) => write!(f, "+rustString(ph)+", "+arg+"),")
	}
	text := "impl std::fmt::Display for " + name + " {\n" +
		"    fn fmt(&self, f: &mut std::fmt::Formatter<'_>) -> std::fmt::Result {\n" +
		"        match self {\n" + strings.Join(arms, "\n") + "\n        }\n    }\n}"
	return &rust.RawItem{Text: text}
}
