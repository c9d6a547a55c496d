package ownership

import (
	"cmp"

	"github.com/hashicorp/go-set/v3"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// ====== Program points ======

type stepKind int

const (
	stepBranch  stepKind = iota // arms of if and conditional expressions
	stepHandler                 // try body (arm 0) and its handlers
	stepLoop                    // while, for and comprehension bodies
	stepClosure                 // lambda bodies
)

// step is one enclosing construct of a reference.
type step struct {
	node hir.Node
	arm  int
	kind stepKind
}

// ref is one read or write of a variable, numbered in evaluation order.
type ref struct {
	id   string
	name *hir.Name
	seq  int
	path []step
	// stmt is the enclosing return or raise statement.
	stmt hir.Node
}

// facts is what one walk of a body learns.
type facts struct {
	uses    map[string]*set.TreeSet[UseKind]
	assigns map[string]map[int]int // name -> version -> binding count
	mutable map[string]bool
	// captured names are referenced from a lambda or nested function.
	captured map[string]bool

	reads  []ref
	writes []ref

	returns      []hir.Expr
	bareReturn   bool
	fallsThrough bool
	returnsSelf  bool
}

func newFacts() *facts {
	return &facts{
		uses:     make(map[string]*set.TreeSet[UseKind]),
		assigns:  make(map[string]map[int]int),
		mutable:  make(map[string]bool),
		captured: make(map[string]bool),
	}
}

func (ft *facts) has(id string, k UseKind) bool {
	s := ft.uses[id]
	return s != nil && s.Contains(k)
}

// ====== Walker ======

// use says how the value of an expression is consumed.
type use int

const (
	asRead use = iota
	asStore
	asReturn
	asMove
)

func (u use) kind() UseKind {
	switch u {
	case asStore:
		return UseStore
	case asReturn:
		return UseReturn
	case asMove:
		return UseMove
	}
	return UseRead
}

type walker struct {
	a     *analyzer
	fn    *hir.Function
	ft    *facts
	isVar func(string) bool
	seq   int
	path  []step
	stmt  hir.Node
}

// walk collects the uses of every variable in the body of f, or of the
// module's top-level statements for nil.
func (a *analyzer) walk(f *hir.Function) *facts {
	w := &walker{a: a, fn: f, ft: newFacts(), isVar: a.isVariable(f)}
	if f == nil {
		w.block(a.mod.Main)
		return w.ft
	}
	w.ft.fallsThrough = !hir.Terminates(f.Body)
	w.block(f.Body)
	return w.ft
}

func (w *walker) note(id string, k UseKind) {
	s, ok := w.ft.uses[id]
	if !ok {
		s = set.NewTreeSet[UseKind](cmp.Compare[UseKind])
		w.ft.uses[id] = s
	}
	s.Insert(k)
}

func (w *walker) here() []step {
	return append([]step(nil), w.path...)
}

func (w *walker) push(n hir.Node, arm int, k stepKind) {
	w.path = append(w.path, step{node: n, arm: arm, kind: k})
}

func (w *walker) pop() { w.path = w.path[:len(w.path)-1] }

func (w *walker) read(n *hir.Name) {
	w.seq++
	w.ft.reads = append(w.ft.reads, ref{id: n.ID, name: n, seq: w.seq, path: w.here(), stmt: w.stmt})
}

func (w *walker) write(n *hir.Name) {
	w.seq++
	w.ft.writes = append(w.ft.writes, ref{id: n.ID, name: n, seq: w.seq, path: w.here()})
}

// bind records an assignment that may need a mutable binding.
func (w *walker) bind(n *hir.Name) {
	w.write(n)
	v := w.a.info.Versions[n]
	if w.ft.assigns[n.ID] == nil {
		w.ft.assigns[n.ID] = make(map[int]int)
	}
	w.ft.assigns[n.ID][v]++
	if w.isParam(n.ID) {
		w.note(n.ID, UseRebind)
	}
}

func (w *walker) isParam(id string) bool {
	if w.fn == nil {
		return false
	}
	for _, p := range w.fn.Params {
		if p.Name == id {
			return true
		}
	}
	return false
}

// rootName is the variable an attribute or subscript chain starts from.
func rootName(e hir.Expr) *hir.Name {
	for {
		switch x := e.(type) {
		case *hir.Name:
			return x
		case *hir.Attribute:
			e = x.Value
		case *hir.Index:
			e = x.Value
		default:
			return nil
		}
	}
}

func (w *walker) mutate(e hir.Expr) {
	if r := rootName(e); r != nil {
		w.note(r.ID, UseMutate)
	}
}

func (w *walker) block(b hir.Block) {
	for _, s := range b {
		w.stmtNode(s)
	}
}

func (w *walker) stmtNode(s hir.Stmt) {
	switch s := s.(type) {
	case *hir.Assign:
		w.expr(s.Value, asStore)
		w.target(s.Target)
	case *hir.AugAssign:
		switch t := s.Target.(type) {
		case *hir.Name:
			w.expr(t, asRead)
			w.expr(s.Value, asRead)
			w.bind(t)
			w.ft.mutable[t.ID] = true
		default:
			w.mutate(t)
			w.expr(t, asRead)
			w.expr(s.Value, asRead)
		}
	case *hir.If:
		w.expr(s.Cond, asRead)
		w.push(s, 0, stepBranch)
		w.block(s.Then)
		w.pop()
		w.push(s, 1, stepBranch)
		w.block(s.Else)
		w.pop()
	case *hir.While:
		w.push(s, 0, stepLoop)
		w.expr(s.Cond, asRead)
		w.block(s.Body)
		w.pop()
		w.block(s.Else)
	case *hir.For:
		w.expr(s.Iter, asRead)
		w.push(s, 0, stepLoop)
		w.loopTarget(s.Target)
		w.block(s.Body)
		w.pop()
		w.block(s.Else)
	case *hir.Try:
		w.push(s, 0, stepHandler)
		w.block(s.Body)
		w.block(s.Else)
		w.pop()
		for i, h := range s.Handlers {
			w.push(s, i+1, stepHandler)
			w.block(h.Body)
			w.pop()
		}
		w.block(s.Finally)
	case *hir.With:
		for _, item := range s.Items {
			w.expr(item.Ctx, asRead)
			if item.Target != nil {
				w.bind(item.Target)
				if item.Mutable {
					w.ft.mutable[item.Target.ID] = true
				}
			}
		}
		w.block(s.Body)
	case *hir.Raise:
		w.stmt = s
		for _, arg := range s.Args {
			w.expr(arg, asRead)
		}
		w.expr(s.Cause, asRead)
		w.stmt = nil
	case *hir.Return:
		w.stmt = s
		if s.Value == nil {
			w.ft.bareReturn = true
		} else {
			w.ft.returns = append(w.ft.returns, s.Value)
			if n, ok := s.Value.(*hir.Name); ok && n.ID == "self" && w.fn != nil && w.fn.IsMethod() {
				w.ft.returnsSelf = true
			}
			w.expr(s.Value, asReturn)
		}
		w.stmt = nil
	case *hir.FuncDef:
		w.capture(s.Func)
	case *hir.ExprStmt:
		w.expr(s.X, asRead)
	case *hir.ContainerRemove:
		w.mutate(s.Container)
		w.expr(s.Container, asRead)
		w.expr(s.Key, asRead)
	case *hir.Assert:
		w.expr(s.Test, asRead)
		w.expr(s.Msg, asRead)
	}
}

// capture marks the variables a nested function closes over.
func (w *walker) capture(f *hir.Function) {
	own := w.a.isVariable(f)
	hir.InspectBlock(f.Body, func(n hir.Node) bool {
		if x, ok := n.(*hir.Name); ok && w.isVar(x.ID) && !own(x.ID) {
			w.ft.captured[x.ID] = true
		}
		return true
	})
}

func (w *walker) target(t hir.Expr) {
	switch x := t.(type) {
	case *hir.Name:
		w.bind(x)
	case *hir.Attribute:
		w.mutate(x)
		w.expr(x.Value, asRead)
	case *hir.Index:
		w.mutate(x)
		w.expr(x.Value, asRead)
		w.expr(x.Index, asRead)
	case *hir.TupleLit:
		for _, e := range x.Elts {
			w.target(e)
		}
	case *hir.ListLit:
		for _, e := range x.Elts {
			w.target(e)
		}
	case *hir.Starred:
		w.target(x.Value)
	}
}

// loopTarget binds a for or comprehension target. The loop header binds
// afresh on every iteration, so these writes never force `mut`.
func (w *walker) loopTarget(t hir.Expr) {
	switch x := t.(type) {
	case *hir.Name:
		w.write(x)
		if w.isParam(x.ID) {
			w.note(x.ID, UseRebind)
		}
	case *hir.TupleLit:
		for _, e := range x.Elts {
			w.loopTarget(e)
		}
	case *hir.ListLit:
		for _, e := range x.Elts {
			w.loopTarget(e)
		}
	case *hir.Starred:
		w.loopTarget(x.Value)
	default:
		w.target(t)
	}
}

func (w *walker) expr(e hir.Expr, u use) {
	switch x := e.(type) {
	case nil:
	case *hir.Name:
		w.read(x)
		w.note(x.ID, u.kind())
	case *hir.BinOp:
		w.expr(x.Left, asRead)
		w.expr(x.Right, asRead)
	case *hir.Unary:
		w.expr(x.Operand, asRead)
	case *hir.Compare:
		w.expr(x.Left, asRead)
		for _, r := range x.Rights {
			w.expr(r, asRead)
		}
	case *hir.Call:
		w.call(x)
	case *hir.MethodCall:
		w.methodCall(x)
	case *hir.Attribute:
		w.expr(x.Value, asRead)
	case *hir.Index:
		w.expr(x.Value, asRead)
		w.expr(x.Index, asRead)
	case *hir.SliceExpr:
		w.expr(x.Value, asRead)
		w.expr(x.Lower, asRead)
		w.expr(x.Upper, asRead)
		w.expr(x.Step, asRead)
	case *hir.ListLit:
		for _, el := range x.Elts {
			w.expr(el, u)
		}
	case *hir.SetLit:
		for _, el := range x.Elts {
			w.expr(el, u)
		}
	case *hir.TupleLit:
		for _, el := range x.Elts {
			w.expr(el, u)
		}
	case *hir.DictLit:
		for i := range x.Keys {
			w.expr(x.Keys[i], u)
			w.expr(x.Values[i], u)
		}
	case *hir.Comprehension:
		w.comprehension(x, u)
	case *hir.Lambda:
		w.push(x, 0, stepClosure)
		hir.Inspect(x.Body, func(n hir.Node) bool {
			if n, ok := n.(*hir.Name); ok && w.isVar(n.ID) && !lambdaParam(x, n.ID) {
				w.ft.captured[n.ID] = true
			}
			return true
		})
		w.expr(x.Body, asRead)
		w.pop()
	case *hir.IfExpr:
		w.expr(x.Cond, asRead)
		w.push(x, 0, stepBranch)
		w.expr(x.Then, u)
		w.pop()
		w.push(x, 1, stepBranch)
		w.expr(x.Else, u)
		w.pop()
	case *hir.Walrus:
		w.expr(x.Value, asStore)
		w.bind(x.Target)
	case *hir.FString:
		for _, p := range x.Parts {
			w.expr(p.Expr, asRead)
		}
	case *hir.Yield:
		if x.From {
			w.expr(x.Value, asRead)
		} else {
			w.expr(x.Value, asStore)
		}
	case *hir.Await:
		w.expr(x.Value, u)
	case *hir.Starred:
		w.expr(x.Value, u)
	}
}

func lambdaParam(l *hir.Lambda, id string) bool {
	for _, p := range l.Params {
		if p == id {
			return true
		}
	}
	return false
}

func (w *walker) comprehension(c *hir.Comprehension, u use) {
	if u == asRead {
		u = asStore
	}
	// The outermost iterable is evaluated once, outside the loop.
	if len(c.Clauses) > 0 && c.Clauses[0].Kind == hir.ClauseFor {
		w.expr(c.Clauses[0].Iter, asRead)
	}
	w.push(c, 0, stepLoop)
	for i, cl := range c.Clauses {
		switch cl.Kind {
		case hir.ClauseFor:
			if i > 0 {
				w.expr(cl.Iter, asRead)
			}
			w.loopTarget(cl.Target)
		case hir.ClauseIf:
			w.expr(cl.Cond, asRead)
		}
	}
	w.expr(c.Key, u)
	w.expr(c.Elt, u)
	w.pop()
}

// ====== Calls ======

func (w *walker) call(c *hir.Call) {
	fn, ok := c.Func.(*hir.Name)
	if !ok || w.isVar(fn.ID) {
		w.expr(c.Func, asRead)
		w.plainArgs(c.Args, c.Keywords)
		return
	}
	if callee := w.a.resolveFunc(w.fn, fn.ID); callee != nil {
		w.args(callee, c.Args, c.Keywords)
		return
	}
	if cl, ok := w.a.classes[fn.ID]; ok {
		if init := w.a.findMethod(cl.Name, "__init__"); init != nil {
			w.args(init, c.Args, c.Keywords)
			return
		}
		for _, arg := range c.Args {
			w.expr(arg, asStore)
		}
		for _, kw := range c.Keywords {
			w.expr(kw.Value, asStore)
		}
		return
	}
	w.plainArgs(c.Args, c.Keywords)
}

func (w *walker) plainArgs(args []hir.Expr, kws []hir.Keyword) {
	for _, arg := range args {
		w.expr(arg, asRead)
	}
	for _, kw := range kws {
		w.expr(kw.Value, asRead)
	}
}

// args walks the arguments of a call to a module function, consuming each
// the way the matching parameter is received.
func (w *walker) args(callee *hir.Function, args []hir.Expr, kws []hir.Keyword) {
	for i, arg := range args {
		if st, ok := arg.(*hir.Starred); ok {
			w.expr(st.Value, asMove)
			continue
		}
		w.arg(arg, w.a.paramMode(callee, i, ""))
	}
	for _, kw := range kws {
		if kw.Name == "" {
			w.expr(kw.Value, asRead)
			continue
		}
		w.arg(kw.Value, w.a.paramMode(callee, -1, kw.Name))
	}
}

func (w *walker) arg(e hir.Expr, m Mode) {
	switch m {
	case Moved:
		w.expr(e, asMove)
	case BorrowMut:
		w.mutate(e)
		w.expr(e, asRead)
	default:
		w.expr(e, asRead)
	}
}

// storedArgs lists the positional arguments a container method keeps.
var storedArgs = map[string][]int{
	"append":     {0},
	"appendleft": {0},
	"add":        {0},
	"insert":     {1},
	"setdefault": {0, 1},
	"put":        {0},
}

func (w *walker) methodCall(c *hir.MethodCall) {
	if m := w.userMethod(c); m != nil {
		if m.IsMethod() {
			switch w.a.selfMode(m) {
			case SelfMut:
				w.mutate(c.Recv)
				w.expr(c.Recv, asRead)
			case SelfValue:
				w.expr(c.Recv, asMove)
			default:
				w.expr(c.Recv, asRead)
			}
		}
		w.args(m, c.Args, c.Keywords)
		return
	}
	if w.mutates(c) {
		w.mutate(c.Recv)
	}
	w.expr(c.Recv, asRead)
	stored := storedArgs[c.Method]
	for i, arg := range c.Args {
		u := asRead
		for _, j := range stored {
			if i == j {
				u = asStore
			}
		}
		w.expr(arg, u)
	}
	for _, kw := range c.Keywords {
		w.expr(kw.Value, asRead)
	}
}

// userMethod resolves a call on an instance, or on a class name for
// static and class methods.
func (w *walker) userMethod(c *hir.MethodCall) *hir.Function {
	if n, ok := c.Recv.(*hir.Name); ok && !w.isVar(n.ID) {
		if _, ok := w.a.classes[n.ID]; ok {
			return w.a.findMethod(n.ID, c.Method)
		}
	}
	return w.a.methodOf(c.Recv, c.Method)
}

// mutates reports whether a library method changes its receiver.
func (w *walker) mutates(c *hir.MethodCall) bool {
	if !stdlib.IsMutating(c.Method) {
		return false
	}
	switch w.a.info.TypeOf(c.Recv).Kind {
	case hir.KindString, hir.KindInt, hir.KindFloat, hir.KindBool, hir.KindNone, hir.KindTuple:
		return false
	}
	return true
}
