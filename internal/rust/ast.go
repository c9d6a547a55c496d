// Package rust is the target syntax tree emitted by codegen and its
// printer.
//
// The tree is deliberately shallow. Items, statements and the control
// flow expressions that carry blocks are nodes; leaf expressions are
// kept as rendered text (Raw), since codegen builds them from recipe
// templates anyway. Printing is deterministic: the same tree always
// produces the same bytes.
package rust

// File is one generated source file.
type File struct {
	// Header lines are emitted verbatim first: comments and inner
	// attributes such as #![allow(...)].
	Header []string
	Uses   []Use
	Items  []Item
}

// ====== Items ======

// Item is a top-level or impl-level declaration.
type Item interface {
	itemNode()
}

// Use is a use declaration; Path excludes the keyword and semicolon.
type Use struct {
	Path string
}

// Param is a function parameter. For receivers Name is "self" and Type is
// one of "&self", "&mut self" or "self".
type Param struct {
	Name string
	Type string
	Mut  bool
}

// Fn is a function or method.
type Fn struct {
	Doc      []string
	Attrs    []string
	Pub      bool
	Name     string
	Generics []string
	Params   []Param
	Ret      string
	Body     *Block
}

// Field is a named struct field.
type Field struct {
	Name string
	Type string
	Pub  bool
}

type Struct struct {
	Doc     []string
	Derives []string
	Pub     bool
	Name    string
	Fields  []Field
}

// Variant is an enum variant with optional tuple fields.
type Variant struct {
	Name   string
	Fields []string
}

type Enum struct {
	Doc      []string
	Derives  []string
	Pub      bool
	Name     string
	Variants []Variant
}

// Impl is an inherent impl when Trait is empty.
type Impl struct {
	Generics []string
	Trait    string
	Type     string
	Items    []Item
}

// Const is a compile-time constant.
type Const struct {
	Pub   bool
	Name  string
	Type  string
	Value Expr
}

// Static is a lazily initialized static.
type Static struct {
	Pub  bool
	Name string
	Type string
	Init Expr
}

// RawItem is an item emitted as written, such as a prelude helper.
type RawItem struct {
	Text string
}

func (*Use) itemNode()     {}
func (*Fn) itemNode()      {}
func (*Struct) itemNode()  {}
func (*Enum) itemNode()    {}
func (*Impl) itemNode()    {}
func (*Const) itemNode()   {}
func (*Static) itemNode()  {}
func (*RawItem) itemNode() {}

// ====== Statements ======

// Stmt is a statement inside a block.
type Stmt interface {
	stmtNode()
}

// Let is `let [mut] pattern[: Type] [= value];`.
type Let struct {
	Mut     bool
	Pattern string
	Type    string
	Value   Expr
}

// LetElse is `let pattern = value else { ... };`.
type LetElse struct {
	Pattern string
	Value   Expr
	Else    *Block
}

// ExprStmt is an expression without a trailing semicolon: the tail of a
// block, or a block-like expression in statement position.
type ExprStmt struct {
	X Expr
}

// Semi is an expression followed by a semicolon.
type Semi struct {
	X Expr
}

// Comment is a line comment.
type Comment struct {
	Text string
}

func (*Let) stmtNode()      {}
func (*LetElse) stmtNode()  {}
func (*ExprStmt) stmtNode() {}
func (*Semi) stmtNode()     {}
func (*Comment) stmtNode()  {}

// ====== Expressions ======

// Expr is a target expression.
type Expr interface {
	exprNode()
}

// Raw is a leaf expression already rendered to text.
type Raw struct {
	Code string
}

// Block is `{ stmts }`. Unsafe and labels are not needed by codegen.
type Block struct {
	Stmts []Stmt
}

// If is `if cond { then } [else ...]`. Else is a *Block or an *If.
type If struct {
	Cond Expr
	Then *Block
	Else Expr
}

// IfLet is `if let pattern = value { then } [else ...]`.
type IfLet struct {
	Pattern string
	Value   Expr
	Then    *Block
	Else    Expr
}

// Arm is one match arm.
type Arm struct {
	Pattern string
	Guard   string
	Body    Expr
}

type Match struct {
	Value Expr
	Arms  []Arm
}

// Loop is `['label:] loop { body }`.
type Loop struct {
	Label string
	Body  *Block
}

type While struct {
	Label string
	Cond  Expr
	Body  *Block
}

type For struct {
	Label   string
	Pattern string
	Iter    Expr
	Body    *Block
}

// LabeledBlock is `'label: { body }`.
type LabeledBlock struct {
	Label string
	Body  *Block
}

// Closure is `[move] |params| body`.
type Closure struct {
	Move   bool
	Params []string
	Body   Expr
}

func (*Raw) exprNode()          {}
func (*Block) exprNode()        {}
func (*If) exprNode()           {}
func (*IfLet) exprNode()        {}
func (*Match) exprNode()        {}
func (*Loop) exprNode()         {}
func (*While) exprNode()        {}
func (*For) exprNode()          {}
func (*LabeledBlock) exprNode() {}
func (*Closure) exprNode()      {}

// ====== Constructors ======

// R wraps rendered code.
func R(code string) *Raw { return &Raw{Code: code} }

// NewBlock builds a block from statements.
func NewBlock(stmts ...Stmt) *Block { return &Block{Stmts: stmts} }

// Add appends statements.
func (b *Block) Add(stmts ...Stmt) { b.Stmts = append(b.Stmts, stmts...) }

// Empty reports whether the block has no statements.
func (b *Block) Empty() bool { return b == nil || len(b.Stmts) == 0 }

// IsBlockLike reports whether e ends in a brace, so in statement position
// it needs no semicolon.
func IsBlockLike(e Expr) bool {
	switch e.(type) {
	case *Block, *If, *IfLet, *Match, *Loop, *While, *For, *LabeledBlock:
		return true
	}
	return false
}
