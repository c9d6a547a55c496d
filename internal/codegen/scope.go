package codegen

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// funcCtx is the state of one function body being emitted.
type funcCtx struct {
	parent *funcCtx
	fn     *hir.Function
	class  *hir.Class
	sig    *types.Signature
	plan   *ownership.FuncPlan
	scope  *types.Scope
	names  *namer

	frames []*frame
	decls  map[string]*decl
	hoists map[blockKey][]string
	pre    []rust.Stmt

	loops  []*loopFrame
	tries  []*tryFrame
	finals []*finalFrame
	errs   []string

	errType   string
	retType   hir.Type
	generator bool
	ctor      ctorForm
	selfCode  string
	selfRef   refKind
	fields    map[string]string
	static    bool
	closure   int
	// comp counts enclosing comprehensions, whose targets are always
	// fresh locals.
	comp int
	main bool
}

type ctorForm int

const (
	ctorNone ctorForm = iota
	// ctorDefault builds on Self::default() held in `this`.
	ctorDefault
	// ctorFields collects field values in locals and builds Self at the end.
	ctorFields
)

// frame is one lexical block of generated bindings that shadow source
// names: loop and pattern variables, handler names and narrowed views.
type frame struct {
	vars map[string]binding
}

type binding struct {
	code     string
	t        hir.Type
	ref      refKind
	narrowed bool
	owned    bool
}

// decl says where a local is declared.
type decl struct {
	key      blockKey
	hoist    bool
	loopOnly bool
	declared int
	typ      hir.Type
}

type loopFrame struct {
	label    string
	didBreak string
	finals   int
	body     hir.Block
}

type tryFrame struct {
	label   string
	closure int
	// kinds are the exception names the handlers catch.
	kinds  []string
	finals int
	// used is set once something breaks out to the label.
	used bool
}

// finalFrame is cleanup that every exit from its region runs: a finally
// body or a context manager's __exit__ call.
type finalFrame struct {
	owner hir.Node
	body  hir.Block
	code  string
}

// blockKey identifies one statement list of the source.
type blockKey struct {
	owner interface{}
	slot  int
}

const (
	slotBody = iota
	slotElse
	slotFinally
	slotHandler
)

func (g *generator) staticCtx() *funcCtx {
	return &funcCtx{names: &namer{}, static: true, decls: map[string]*decl{}, hoists: map[blockKey][]string{}, retType: hir.None}
}

func (c *funcCtx) push() { c.frames = append(c.frames, &frame{vars: map[string]binding{}}) }

func (c *funcCtx) pop() { c.frames = c.frames[:len(c.frames)-1] }

func (c *funcCtx) bind(name string, b binding) {
	if len(c.frames) == 0 {
		c.push()
	}
	c.frames[len(c.frames)-1].vars[name] = b
}

func (c *funcCtx) lookup(name string, narrowed bool) (binding, bool) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		b, ok := c.frames[i].vars[name]
		if !ok {
			continue
		}
		if b.narrowed && !narrowed {
			continue
		}
		return b, true
	}
	return binding{}, false
}

// tryLabel is the label of the innermost try body a raise can break out
// of, empty inside closures.
func (c *funcCtx) tryLabel() string {
	if len(c.tries) == 0 {
		return ""
	}
	t := c.tries[len(c.tries)-1]
	if t.closure != c.closure {
		return ""
	}
	return t.label
}

// catcher is the label of the innermost try whose handlers catch kind.
func (g *generator) catcher(kind string) string {
	c := g.fn
	if c == nil {
		return ""
	}
	label := c.tryLabel()
	if label == "" {
		return ""
	}
	for _, k := range c.tries[len(c.tries)-1].kinds {
		if k == "Exception" || k == "BaseException" || g.info.IsA(kind, k) {
			return label
		}
	}
	return ""
}

// ====== Names ======

// name renders a variable reference.
func (g *generator) name(n *hir.Name) val {
	ctx := g.fn
	nar, narrowed := g.info.Narrowed[n]
	for c := ctx; c != nil; c = c.parent {
		if b, ok := c.lookup(n.ID, narrowed); ok {
			v := val{code: b.code, t: b.t, ref: b.ref, place: true}
			if narrowed && !b.narrowed {
				return g.narrowFallback(v, nar)
			}
			if b.owned && c == ctx {
				v.last = ctx.plan.IsLastUse(n)
			}
			return v
		}
		v, ok := g.localName(c, n)
		if ok {
			if narrowed {
				return g.narrowFallback(v, nar)
			}
			return v
		}
	}
	if gl, ok := g.globals[n.ID]; ok {
		v := val{code: gl.code, t: gl.t, place: true}
		if narrowed {
			return g.narrowFallback(v, nar)
		}
		return v
	}
	if v, ok := g.constVal(n.ID); ok {
		return v
	}
	if f, ok := g.funcs[n.ID]; ok {
		return val{code: g.fnName(f.Name), t: g.info.TypeOf(n), fn: true}
	}
	if cl, ok := g.classes[n.ID]; ok {
		return val{code: typeName(cl.Name), t: g.info.TypeOf(n)}
	}
	switch n.ID {
	case "__name__":
		return val{code: `"__main__"`, t: hir.Str, lit: true}
	case "__file__":
		return val{code: `file!()`, t: hir.Str, lit: true}
	}
	return val{code: Sanitize(n.ID), t: g.info.TypeOf(n), place: true}
}

// localName resolves n against the parameters and locals of c.
func (g *generator) localName(c *funcCtx, n *hir.Name) (val, bool) {
	if c.static {
		return val{}, false
	}
	if c.fn != nil && c.class != nil && (n.ID == "self" && c.fn.IsMethod() || n.ID == "cls" && c.fn.ClassMethod) {
		if n.ID == "cls" {
			return val{code: "Self", t: hir.NamedOf(c.class.Name)}, true
		}
		return val{code: c.selfCode, t: hir.NamedOf(c.class.Name), ref: c.selfRef, place: true}, true
	}
	if c.fn != nil {
		for i, p := range c.fn.Params {
			if p.Name != n.ID {
				continue
			}
			t := hir.Unknown
			if c.sig != nil && i < len(c.sig.Params) {
				t = c.sig.Params[i]
			}
			pp := g.paramPlan(c.fn, i)
			v := val{code: Sanitize(p.Name), t: t, place: true}
			switch {
			case t.Kind == hir.KindCallable:
				v.fn = true
			case pp.Mode == ownership.Cloned:
			case byRef(t, pp.Mode) && pp.Mode == ownership.BorrowMut:
				v.ref = refMut
			case byRef(t, pp.Mode):
				v.ref = refShared
				if g.opts.SliceParams && t.Kind == hir.KindList && pp.Lifetime == "" {
					v.slice = true
				}
			}
			if v.ref == refNone && c == g.fn {
				v.last = c.plan.IsLastUse(n)
			}
			return v, true
		}
	}
	if c.main {
		if _, ok := g.globals[n.ID]; ok {
			return val{}, false
		}
	}
	if l := c.scope.Lookup(n.ID); l != nil {
		t := g.localType(c, n, l)
		v := val{code: Sanitize(n.ID), t: t, place: true}
		if c == g.fn {
			v.last = c.plan.IsLastUse(n)
		}
		if t.Kind == hir.KindCallable {
			v.fn = false
		}
		return v, true
	}
	if c.fn != nil && !c.main {
		var found bool
		hir.InspectBlock(c.fn.Body, func(x hir.Node) bool {
			if fd, ok := x.(*hir.FuncDef); ok {
				if fd.Func.Name == n.ID {
					found = true
				}
				return false
			}
			return !found
		})
		if found {
			return val{code: Sanitize(n.ID), t: g.info.TypeOf(n), fn: true}, true
		}
	}
	return val{}, false
}

// localType is the type a reference sees: the version it names, or the
// narrowed source type.
func (g *generator) localType(c *funcCtx, n *hir.Name, l *types.Local) hir.Type {
	if nar, ok := g.info.Narrowed[n]; ok {
		return nar.From
	}
	if ver, ok := g.info.Versions[n]; ok && ver < len(l.Versions) {
		return l.Versions[ver]
	}
	if t, ok := g.info.Types[n]; ok {
		return t
	}
	return l.Type()
}

// narrowFallback reads a narrowed reference that no pattern binding
// covers: optionals unwrap, unions and values convert.
func (g *generator) narrowFallback(v val, nar types.Narrowing) val {
	from, to := v.t, nar.To
	if to.Kind == hir.KindNone {
		return v
	}
	if from.Kind == hir.KindNone || from.IsUnknown() && !isValue(to) {
		v.t = to
		return v
	}
	switch {
	case from.Kind == hir.KindOptional:
		inner := from.Elem()
		if inner.IsCopy() {
			return val{code: atomic(num(v)) + ".unwrap()", t: inner}
		}
		out := val{code: atomic(v.code) + ".as_ref().unwrap()", t: inner, ref: refShared}
		if inner.Kind == hir.KindUnion && to.Kind != hir.KindUnion {
			return g.narrowFallback(out, types.Narrowing{From: inner, To: to})
		}
		return out
	case from.Kind == hir.KindUnion:
		if vr, ok := g.variantOf(from, to); ok {
			code := "match " + g.borrow(v) + " { " + g.unionEnum(from) + "::" + vr.name + "(x) => x, _ => unreachable!() }"
			return val{code: code, t: vr.typ, ref: refShared}
		}
	case isValue(from) && !isValue(to):
		return val{code: g.fromValue(v, to), t: to}
	}
	v.t = to
	return v
}

// ====== Declarations ======

// occurrence is one mention of a local inside a function body.
type occurrence struct {
	path    []blockKey
	binding bool
}

// planDecls decides where every local of the current body is declared:
// at its first binding when all mentions follow it in the same block or
// below, otherwise hoisted to the top of the innermost block enclosing
// every mention. A name mentioned only inside for or with bodies that bind
// it is bound by each pattern.
func (g *generator) planDecls(root blockKey, body hir.Block) {
	ctx := g.fn
	isLocal := func(name string) bool {
		if ctx.scope.Lookup(name) == nil {
			return false
		}
		if ctx.fn != nil {
			for _, p := range ctx.fn.Params {
				if p.Name == name {
					return false
				}
			}
		}
		if ctx.main {
			if _, ok := g.globals[name]; ok {
				return false
			}
		}
		return true
	}
	w := &declWalker{isLocal: isLocal, first: map[string]occurrence{}, all: map[string][][]blockKey{}, bodies: map[string]map[blockKey]bool{}}
	w.block(root, body, nil)
	for _, name := range ctx.scope.Order {
		paths, ok := w.all[name]
		if !ok || !isLocal(name) {
			continue
		}
		l := ctx.scope.Lookup(name)
		d := &decl{declared: -1, typ: l.Versions[0]}
		ctx.decls[name] = d
		if bodies := w.bodies[name]; len(bodies) > 0 && everyInside(paths, bodies) {
			d.loopOnly = true
			continue
		}
		prefix := paths[0]
		for _, p := range paths[1:] {
			prefix = commonPrefix(prefix, p)
		}
		d.key = prefix[len(prefix)-1]
		first := w.first[name]
		if first.binding && len(first.path) == len(prefix) {
			continue
		}
		d.hoist = true
		ctx.hoists[d.key] = append(ctx.hoists[d.key], name)
	}
}

func everyInside(paths [][]blockKey, bodies map[blockKey]bool) bool {
	for _, p := range paths {
		in := false
		for _, k := range p {
			if bodies[k] {
				in = true
				break
			}
		}
		if !in {
			return false
		}
	}
	return true
}

func commonPrefix(a, b []blockKey) []blockKey {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	if n == 0 {
		return a[:1]
	}
	return a[:n]
}

type declWalker struct {
	isLocal func(string) bool
	first   map[string]occurrence
	all     map[string][][]blockKey
	// bodies maps a name to the for and with bodies whose targets bind it.
	bodies map[string]map[blockKey]bool
}

func (w *declWalker) note(name string, path []blockKey, binding bool) {
	if !w.isLocal(name) {
		return
	}
	p := append([]blockKey(nil), path...)
	if _, ok := w.first[name]; !ok {
		w.first[name] = occurrence{path: p, binding: binding}
	}
	w.all[name] = append(w.all[name], p)
}

func (w *declWalker) block(key blockKey, b hir.Block, path []blockKey) {
	path = append(append([]blockKey(nil), path...), key)
	for _, s := range b {
		w.stmt(s, path)
	}
}

func (w *declWalker) stmt(s hir.Stmt, path []blockKey) {
	switch s := s.(type) {
	case *hir.Assign:
		w.exprs(path, s.Value)
		bound := map[string]bool{}
		if t, ok := s.Target.(*hir.Name); ok {
			bound[t.ID] = true
		} else if isTupleTarget(s.Target) {
			for _, n := range hir.Names(s.Target) {
				bound[n] = true
			}
		}
		w.target(s.Target, path, bound)
	case *hir.AugAssign:
		w.exprs(path, s.Value, s.Target)
	case *hir.AnnDecl:
		w.note(s.Target.ID, path, true)
	case *hir.If:
		w.exprs(path, s.Cond)
		w.block(blockKey{s, slotBody}, s.Then, path)
		w.block(blockKey{s, slotElse}, s.Else, path)
	case *hir.While:
		body := blockKey{s, slotBody}
		w.exprs(append(append([]blockKey(nil), path...), body), s.Cond)
		w.block(body, s.Body, path)
		w.block(blockKey{s, slotElse}, s.Else, path)
	case *hir.For:
		w.exprs(path, s.Iter)
		body := blockKey{s, slotBody}
		bodyPath := append(append([]blockKey(nil), path...), body)
		for _, n := range hir.Names(s.Target) {
			if w.bodies[n] == nil {
				w.bodies[n] = map[blockKey]bool{}
			}
			w.bodies[n][body] = true
			w.note(n, bodyPath, true)
		}
		w.block(body, s.Body, path)
		w.block(blockKey{s, slotElse}, s.Else, path)
	case *hir.With:
		body := blockKey{s, slotBody}
		bodyPath := append(append([]blockKey(nil), path...), body)
		for _, it := range s.Items {
			w.exprs(path, it.Ctx)
			if it.Target != nil {
				if w.bodies[it.Target.ID] == nil {
					w.bodies[it.Target.ID] = map[blockKey]bool{}
				}
				w.bodies[it.Target.ID][body] = true
				w.note(it.Target.ID, bodyPath, true)
			}
		}
		w.block(body, s.Body, path)
	case *hir.Try:
		w.block(blockKey{s, slotBody}, s.Body, path)
		for i, h := range s.Handlers {
			w.block(blockKey{s, slotHandler + i}, h.Body, path)
		}
		w.block(blockKey{s, slotElse}, s.Else, path)
		w.block(blockKey{s, slotFinally}, s.Finally, path)
	case *hir.Return:
		w.exprs(path, s.Value)
	case *hir.Raise:
		w.exprs(path, s.Args...)
		w.exprs(path, s.Cause)
	case *hir.ExprStmt:
		w.exprs(path, s.X)
	case *hir.Assert:
		w.exprs(path, s.Test, s.Msg)
	case *hir.ContainerRemove:
		w.exprs(path, s.Container, s.Key)
	case *hir.FuncDef:
		// Captured names count as mentions where the closure is defined.
		hir.InspectBlock(s.Func.Body, func(n hir.Node) bool {
			if ref, ok := n.(*hir.Name); ok {
				w.note(ref.ID, path, false)
			}
			return true
		})
	}
}

// target notes the names an assignment writes; names in bound are
// declared by this statement.
func (w *declWalker) target(t hir.Expr, path []blockKey, bound map[string]bool) {
	switch t := t.(type) {
	case *hir.Name:
		w.note(t.ID, path, bound[t.ID])
	case *hir.TupleLit:
		for _, e := range t.Elts {
			w.target(e, path, bound)
		}
	case *hir.ListLit:
		for _, e := range t.Elts {
			w.target(e, path, bound)
		}
	default:
		w.exprs(path, t)
	}
}

// exprs notes the names mentioned by expressions, skipping names bound by
// comprehensions and lambdas inside them.
func (w *declWalker) exprs(path []blockKey, es ...hir.Expr) {
	for _, e := range es {
		if e == nil {
			continue
		}
		w.expr(e, path, nil)
	}
}

func (w *declWalker) expr(e hir.Expr, path []blockKey, hidden map[string]bool) {
	hir.Inspect(e, func(n hir.Node) bool {
		switch n := n.(type) {
		case *hir.Comprehension:
			inner := copyHidden(hidden)
			for _, c := range n.Clauses {
				if c.Kind == hir.ClauseFor {
					w.expr(c.Iter, path, inner)
					for _, name := range hir.Names(c.Target) {
						inner[name] = true
					}
				} else {
					w.expr(c.Cond, path, inner)
				}
			}
			if n.Key != nil {
				w.expr(n.Key, path, inner)
			}
			w.expr(n.Elt, path, inner)
			return false
		case *hir.Lambda:
			inner := copyHidden(hidden)
			for _, p := range n.Params {
				inner[p] = true
			}
			w.expr(n.Body, path, inner)
			return false
		case *hir.Walrus:
			if !hidden[n.Target.ID] {
				w.note(n.Target.ID, path, true)
			}
			w.expr(n.Value, path, hidden)
			return false
		case *hir.Name:
			if !hidden[n.ID] {
				w.note(n.ID, path, false)
			}
		}
		return true
	})
}

func copyHidden(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isTupleTarget(e hir.Expr) bool {
	switch t := e.(type) {
	case *hir.TupleLit:
		for _, x := range t.Elts {
			if _, ok := x.(*hir.Name); !ok {
				return false
			}
		}
		return true
	case *hir.ListLit:
		for _, x := range t.Elts {
			if _, ok := x.(*hir.Name); !ok {
				return false
			}
		}
		return true
	}
	return false
}

// hoisted emits the declarations placed at the top of block key.
func (g *generator) hoisted(key blockKey, out *rust.Block) {
	ctx := g.fn
	for _, name := range ctx.hoists[key] {
		d := ctx.decls[name]
		d.declared = 0
		ty := g.rustType(d.typ)
		if g.defaultable(d.typ) {
			out.Add(&rust.Let{Mut: true, Pattern: Sanitize(name), Type: ty, Value: rust.R("Default::default()")})
			continue
		}
		out.Add(&rust.Let{Mut: true, Pattern: Sanitize(name), Type: ty})
	}
}
