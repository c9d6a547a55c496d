// Package hir defines the high-level intermediate representation that sits
// between the parsed source tree and the emitted Rust program.
//
// HIR nodes are built once by the bridge and are not modified afterwards.
// Later passes record what they learn in side tables keyed by node pointer
// (types.Info, ownership.Plan), so expression nodes are always pointers and
// their identity is significant.
package hir

import (
	"github.com/pyrite-lang/pyrite/internal/position"
)

// Node is implemented by every HIR expression and statement.
type Node interface {
	GetSpan() position.Span
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Block is an ordered statement sequence. A nil Block is an empty clause.
type Block []Stmt

// ====== Expressions ======

// Name references a local, parameter, constant, function or class.
type Name struct {
	Span position.Span
	ID   string
}

// LitKind enumerates literal kinds.
type LitKind int

const (
	LitNone LitKind = iota
	LitBool
	LitInt
	LitFloat
	LitStr
	LitBytes
)

// Lit is a literal value.
type Lit struct {
	Span  position.Span
	Kind  LitKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// BinOp covers arithmetic, bitwise and the short-circuit operators
// "and" and "or".
type BinOp struct {
	Span  position.Span
	Op    string
	Left  Expr
	Right Expr
}

// Unary is "-", "+", "~" or "not".
type Unary struct {
	Span    position.Span
	Op      string
	Operand Expr
}

// Compare is a comparison chain: Left Ops[0] Rights[0] Ops[1] Rights[1] ...
type Compare struct {
	Span   position.Span
	Left   Expr
	Ops    []string
	Rights []Expr
}

// Keyword is a named call argument. An empty Name is a **mapping spread.
type Keyword struct {
	Name  string
	Value Expr
}

// Call invokes a function, class constructor or qualified module symbol.
type Call struct {
	Span     position.Span
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// MethodCall is recv.method(args).
type MethodCall struct {
	Span     position.Span
	Recv     Expr
	Method   string
	Args     []Expr
	Keywords []Keyword
}

// Qualified is a dotted reference into an imported module, resolved by
// the bridge: os.path.exists, math.pi, re.compile.
type Qualified struct {
	Span position.Span
	Path string
}

// Attribute is value.attr for non-module values.
type Attribute struct {
	Span  position.Span
	Value Expr
	Attr  string
}

// Index is value[index].
type Index struct {
	Span  position.Span
	Value Expr
	Index Expr
}

// SliceExpr is value[lower:upper:step]; absent bounds are nil.
type SliceExpr struct {
	Span  position.Span
	Value Expr
	Lower Expr
	Upper Expr
	Step  Expr
}

type ListLit struct {
	Span position.Span
	Elts []Expr
}

type SetLit struct {
	Span position.Span
	Elts []Expr
}

type TupleLit struct {
	Span position.Span
	Elts []Expr
}

type DictLit struct {
	Span   position.Span
	Keys   []Expr
	Values []Expr
}

// CompKind selects the collection a comprehension builds.
type CompKind int

const (
	CompList CompKind = iota
	CompSet
	CompDict
	CompGenerator
)

func (k CompKind) String() string {
	switch k {
	case CompList:
		return "list"
	case CompSet:
		return "set"
	case CompDict:
		return "dict"
	}
	return "generator"
}

// ClauseKind distinguishes the fragments of a comprehension.
type ClauseKind int

const (
	ClauseFor ClauseKind = iota
	ClauseIf
)

// CompClause is one "for target in iter" or "if cond" fragment. Clauses
// are kept in source order; a second for clause nests inside the first.
type CompClause struct {
	Kind   ClauseKind
	Target Expr
	Iter   Expr
	Cond   Expr
}

// Comprehension is the single lowered form of list, set and dict
// comprehensions and generator expressions. Key is set only for CompDict.
type Comprehension struct {
	Span    position.Span
	Kind    CompKind
	Key     Expr
	Elt     Expr
	Clauses []CompClause
}

type Lambda struct {
	Span   position.Span
	Params []string
	Body   Expr
}

// IfExpr is "Then if Cond else Else".
type IfExpr struct {
	Span position.Span
	Cond Expr
	Then Expr
	Else Expr
}

// Walrus binds Target and yields Value.
type Walrus struct {
	Span   position.Span
	Target *Name
	Value  Expr
}

// FPart is one piece of an f-string: either literal text or an
// interpolated expression with optional conversion and format spec.
type FPart struct {
	Lit  string
	Expr Expr
	Conv rune
	Spec string
}

type FString struct {
	Span  position.Span
	Parts []FPart
}

// Yield is "yield value" or, with From set, "yield from value".
type Yield struct {
	Span  position.Span
	Value Expr
	From  bool
}

type Await struct {
	Span  position.Span
	Value Expr
}

type Starred struct {
	Span  position.Span
	Value Expr
}

// Stub stands in for an expression outside the supported subset.
type Stub struct {
	Span   position.Span
	Reason string
}

// ====== Statements ======

// Assign binds Target (a Name, Attribute or Index) to Value. Annotation is
// nil when the source carried none.
type Assign struct {
	Span       position.Span
	Target     Expr
	Annotation *Type
	Value      Expr
}

type AugAssign struct {
	Span   position.Span
	Target Expr
	Op     string
	Value  Expr
}

// AnnDecl is an annotation without a value: "x: int".
type AnnDecl struct {
	Span       position.Span
	Target     *Name
	Annotation Type
}

type If struct {
	Span position.Span
	Cond Expr
	Then Block
	Else Block
}

type While struct {
	Span position.Span
	Cond Expr
	Body Block
	Else Block
}

type For struct {
	Span   position.Span
	Target Expr
	Iter   Expr
	Body   Block
	Else   Block
}

// Handler is one except clause. An empty Types list catches everything.
type Handler struct {
	Span  position.Span
	Types []string
	Name  string
	Body  Block
}

type Try struct {
	Span     position.Span
	Body     Block
	Handlers []Handler
	Else     Block
	Finally  Block
}

// WithItem is one scoped resource. Mutable is set when the manager's class
// assigns to self in any method.
type WithItem struct {
	Ctx     Expr
	Target  *Name
	Mutable bool
}

type With struct {
	Span  position.Span
	Items []WithItem
	Body  Block
}

// Raise constructs an error of type Exc. Args are the constructor
// arguments; Reraise marks a bare "raise" inside a handler.
type Raise struct {
	Span    position.Span
	Exc     string
	Args    []Expr
	Cause   Expr
	Reraise bool
}

type Return struct {
	Span  position.Span
	Value Expr
}

type Break struct{ Span position.Span }

type Continue struct{ Span position.Span }

type Pass struct{ Span position.Span }

// ImportStmt is an import that appears inside a function body.
type ImportStmt struct {
	Span    position.Span
	Imports []Import
}

// FuncDef is a nested function definition.
type FuncDef struct {
	Span position.Span
	Func *Function
}

// ClassDef is a class definition appearing in statement position. The
// bridge hoists module-level ones into Module.Classes.
type ClassDef struct {
	Span  position.Span
	Class *Class
}

type Docstring struct {
	Span position.Span
	Text string
}

type ExprStmt struct {
	Span position.Span
	X    Expr
}

// ContainerRemove is "del container[key]".
type ContainerRemove struct {
	Span      position.Span
	Container Expr
	Key       Expr
}

// DeleteVar is "del name".
type DeleteVar struct {
	Span position.Span
	Name string
}

type Assert struct {
	Span position.Span
	Test Expr
	Msg  Expr
}

// StubStmt stands in for a statement outside the supported subset.
type StubStmt struct {
	Span   position.Span
	Reason string
}

func (e *Name) GetSpan() position.Span          { return e.Span }
func (e *Lit) GetSpan() position.Span           { return e.Span }
func (e *BinOp) GetSpan() position.Span         { return e.Span }
func (e *Unary) GetSpan() position.Span         { return e.Span }
func (e *Compare) GetSpan() position.Span       { return e.Span }
func (e *Call) GetSpan() position.Span          { return e.Span }
func (e *MethodCall) GetSpan() position.Span    { return e.Span }
func (e *Qualified) GetSpan() position.Span     { return e.Span }
func (e *Attribute) GetSpan() position.Span     { return e.Span }
func (e *Index) GetSpan() position.Span         { return e.Span }
func (e *SliceExpr) GetSpan() position.Span     { return e.Span }
func (e *ListLit) GetSpan() position.Span       { return e.Span }
func (e *SetLit) GetSpan() position.Span        { return e.Span }
func (e *TupleLit) GetSpan() position.Span      { return e.Span }
func (e *DictLit) GetSpan() position.Span       { return e.Span }
func (e *Comprehension) GetSpan() position.Span { return e.Span }
func (e *Lambda) GetSpan() position.Span        { return e.Span }
func (e *IfExpr) GetSpan() position.Span        { return e.Span }
func (e *Walrus) GetSpan() position.Span        { return e.Span }
func (e *FString) GetSpan() position.Span       { return e.Span }
func (e *Yield) GetSpan() position.Span         { return e.Span }
func (e *Await) GetSpan() position.Span         { return e.Span }
func (e *Starred) GetSpan() position.Span       { return e.Span }
func (e *Stub) GetSpan() position.Span          { return e.Span }

func (*Name) exprNode()          {}
func (*Lit) exprNode()           {}
func (*BinOp) exprNode()         {}
func (*Unary) exprNode()         {}
func (*Compare) exprNode()       {}
func (*Call) exprNode()          {}
func (*MethodCall) exprNode()    {}
func (*Qualified) exprNode()     {}
func (*Attribute) exprNode()     {}
func (*Index) exprNode()         {}
func (*SliceExpr) exprNode()     {}
func (*ListLit) exprNode()       {}
func (*SetLit) exprNode()        {}
func (*TupleLit) exprNode()      {}
func (*DictLit) exprNode()       {}
func (*Comprehension) exprNode() {}
func (*Lambda) exprNode()        {}
func (*IfExpr) exprNode()        {}
func (*Walrus) exprNode()        {}
func (*FString) exprNode()       {}
func (*Yield) exprNode()         {}
func (*Await) exprNode()         {}
func (*Starred) exprNode()       {}
func (*Stub) exprNode()          {}

func (s *Assign) GetSpan() position.Span          { return s.Span }
func (s *AugAssign) GetSpan() position.Span       { return s.Span }
func (s *AnnDecl) GetSpan() position.Span         { return s.Span }
func (s *If) GetSpan() position.Span              { return s.Span }
func (s *While) GetSpan() position.Span           { return s.Span }
func (s *For) GetSpan() position.Span             { return s.Span }
func (s *Try) GetSpan() position.Span             { return s.Span }
func (s *With) GetSpan() position.Span            { return s.Span }
func (s *Raise) GetSpan() position.Span           { return s.Span }
func (s *Return) GetSpan() position.Span          { return s.Span }
func (s *Break) GetSpan() position.Span           { return s.Span }
func (s *Continue) GetSpan() position.Span        { return s.Span }
func (s *Pass) GetSpan() position.Span            { return s.Span }
func (s *ImportStmt) GetSpan() position.Span      { return s.Span }
func (s *FuncDef) GetSpan() position.Span         { return s.Span }
func (s *ClassDef) GetSpan() position.Span        { return s.Span }
func (s *Docstring) GetSpan() position.Span       { return s.Span }
func (s *ExprStmt) GetSpan() position.Span        { return s.Span }
func (s *ContainerRemove) GetSpan() position.Span { return s.Span }
func (s *DeleteVar) GetSpan() position.Span       { return s.Span }
func (s *Assert) GetSpan() position.Span          { return s.Span }
func (s *StubStmt) GetSpan() position.Span        { return s.Span }

func (*Assign) stmtNode()          {}
func (*AugAssign) stmtNode()       {}
func (*AnnDecl) stmtNode()         {}
func (*If) stmtNode()              {}
func (*While) stmtNode()           {}
func (*For) stmtNode()             {}
func (*Try) stmtNode()             {}
func (*With) stmtNode()            {}
func (*Raise) stmtNode()           {}
func (*Return) stmtNode()          {}
func (*Break) stmtNode()           {}
func (*Continue) stmtNode()        {}
func (*Pass) stmtNode()            {}
func (*ImportStmt) stmtNode()      {}
func (*FuncDef) stmtNode()         {}
func (*ClassDef) stmtNode()        {}
func (*Docstring) stmtNode()       {}
func (*ExprStmt) stmtNode()        {}
func (*ContainerRemove) stmtNode() {}
func (*DeleteVar) stmtNode()       {}
func (*Assert) stmtNode()          {}
func (*StubStmt) stmtNode()        {}
