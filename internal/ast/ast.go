// Package ast defines the syntax tree for the supported Python subset.
//
// The tree is produced by internal/parser and consumed once by the HIR
// bridge; it is a faithful, unnormalized picture of the source. Every node
// carries the span it was parsed from.
package ast

import (
	"github.com/pyrite-lang/pyrite/internal/position"
)

// Node is the base interface for all AST nodes
type Node interface {
	GetSpan() position.Span
}

// Expr represents all expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt represents all statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Loc is embedded in every node to carry its span.
type Loc struct {
	Span position.Span
}

func (l Loc) GetSpan() position.Span { return l.Span }

// Module is a parsed source file.
type Module struct {
	Loc
	Filename string
	Body     []Stmt
}

// ---------------------------------------------------------------------------
// Expressions

// ConstKind tags literal constants.
type ConstKind int

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstStr
	ConstBytes
	ConstEllipsis
)

type (
	Name struct {
		Loc
		ID string
	}

	Constant struct {
		Loc
		Kind  ConstKind
		Int   int64
		Float float64
		Str   string
		Bool  bool
		// Raw is the literal as written, used for diagnostics.
		Raw string
	}

	// BinOp covers arithmetic and bitwise operators ("+", "//", "**", "@", ...).
	BinOp struct {
		Loc
		Left  Expr
		Op    string
		Right Expr
	}

	// BoolOp is "and" / "or" over two or more operands.
	BoolOp struct {
		Loc
		Op     string
		Values []Expr
	}

	UnaryOp struct {
		Loc
		Op      string // "not", "-", "+", "~"
		Operand Expr
	}

	// Compare is a comparison chain: Left Ops[0] Comparators[0] Ops[1] ...
	Compare struct {
		Loc
		Left        Expr
		Ops         []string
		Comparators []Expr
	}

	Keyword struct {
		Loc
		Arg   string // "" for **kwargs
		Value Expr
	}

	Call struct {
		Loc
		Func     Expr
		Args     []Expr
		Keywords []Keyword
	}

	Attribute struct {
		Loc
		Value Expr
		Attr  string
	}

	Subscript struct {
		Loc
		Value Expr
		Index Expr
	}

	Slice struct {
		Loc
		Lower, Upper, Step Expr
	}

	List struct {
		Loc
		Elts []Expr
	}

	Tuple struct {
		Loc
		Elts []Expr
	}

	Set struct {
		Loc
		Elts []Expr
	}

	// Dict keys are nil for **spread entries.
	Dict struct {
		Loc
		Keys   []Expr
		Values []Expr
	}

	Comprehension struct {
		Loc
		Target Expr
		Iter   Expr
		Ifs    []Expr
	}

	// Comp is a list/set/dict comprehension or generator expression. For
	// dict comprehensions Key holds the key expression and Elt the value.
	Comp struct {
		Loc
		Kind       CompKind
		Key        Expr
		Elt        Expr
		Generators []Comprehension
	}

	Lambda struct {
		Loc
		Params []Param
		Body   Expr
	}

	IfExp struct {
		Loc
		Test, Body, OrElse Expr
	}

	NamedExpr struct {
		Loc
		Target *Name
		Value  Expr
	}

	// JoinedStr is an f-string; parts are *Constant or *FormattedValue.
	JoinedStr struct {
		Loc
		Values []Expr
	}

	FormattedValue struct {
		Loc
		Value      Expr
		Conversion rune // 0, 'r', 's', 'a'
		FormatSpec string
	}

	Yield struct {
		Loc
		Value Expr
	}

	YieldFrom struct {
		Loc
		Value Expr
	}

	Await struct {
		Loc
		Value Expr
	}

	Starred struct {
		Loc
		Value Expr
		// Double marks a **mapping unpack inside a call or dict display.
		Double bool
	}
)

// CompKind distinguishes comprehension forms.
type CompKind int

const (
	ListComp CompKind = iota
	SetComp
	DictComp
	GenExp
)

func (*Name) exprNode()           {}
func (*Constant) exprNode()       {}
func (*BinOp) exprNode()          {}
func (*BoolOp) exprNode()         {}
func (*UnaryOp) exprNode()        {}
func (*Compare) exprNode()        {}
func (*Call) exprNode()           {}
func (*Attribute) exprNode()      {}
func (*Subscript) exprNode()      {}
func (*Slice) exprNode()          {}
func (*List) exprNode()           {}
func (*Tuple) exprNode()          {}
func (*Set) exprNode()            {}
func (*Dict) exprNode()           {}
func (*Comp) exprNode()           {}
func (*Lambda) exprNode()         {}
func (*IfExp) exprNode()          {}
func (*NamedExpr) exprNode()      {}
func (*JoinedStr) exprNode()      {}
func (*FormattedValue) exprNode() {}
func (*Yield) exprNode()          {}
func (*YieldFrom) exprNode()      {}
func (*Await) exprNode()          {}
func (*Starred) exprNode()        {}

// ---------------------------------------------------------------------------
// Statements

// ParamKind classifies a function parameter.
type ParamKind int

const (
	ParamPositional ParamKind = iota
	ParamPositionalOnly
	ParamVarArgs
	ParamKeywordOnly
	ParamKwArgs
)

type Param struct {
	Loc
	Name       string
	Annotation Expr
	Default    Expr
	Kind       ParamKind
}

type WithItem struct {
	ContextExpr  Expr
	OptionalVars Expr
}

type ExceptHandler struct {
	Loc
	Type Expr // nil for a bare except
	Name string
	Body []Stmt
}

type Alias struct {
	Name   string
	AsName string
}

type (
	FunctionDef struct {
		Loc
		Name       string
		Params     []Param
		Returns    Expr
		Body       []Stmt
		Decorators []Expr
		IsAsync    bool
	}

	ClassDef struct {
		Loc
		Name       string
		Bases      []Expr
		Keywords   []Keyword
		Body       []Stmt
		Decorators []Expr
	}

	Return struct {
		Loc
		Value Expr
	}

	Delete struct {
		Loc
		Targets []Expr
	}

	Assign struct {
		Loc
		Targets []Expr
		Value   Expr
	}

	AugAssign struct {
		Loc
		Target Expr
		Op     string // "+", "-", ... without '='
		Value  Expr
	}

	AnnAssign struct {
		Loc
		Target     Expr
		Annotation Expr
		Value      Expr
	}

	For struct {
		Loc
		Target Expr
		Iter   Expr
		Body   []Stmt
		OrElse []Stmt
	}

	While struct {
		Loc
		Test   Expr
		Body   []Stmt
		OrElse []Stmt
	}

	If struct {
		Loc
		Test   Expr
		Body   []Stmt
		OrElse []Stmt
	}

	With struct {
		Loc
		Items []WithItem
		Body  []Stmt
	}

	Raise struct {
		Loc
		Exc   Expr
		Cause Expr
	}

	Try struct {
		Loc
		Body     []Stmt
		Handlers []ExceptHandler
		OrElse   []Stmt
		Finally  []Stmt
	}

	Assert struct {
		Loc
		Test Expr
		Msg  Expr
	}

	Import struct {
		Loc
		Names []Alias
	}

	ImportFrom struct {
		Loc
		Module string
		Names  []Alias
		Level  int
	}

	Global struct {
		Loc
		Names []string
	}

	Nonlocal struct {
		Loc
		Names []string
	}

	ExprStmt struct {
		Loc
		Value Expr
	}

	Pass struct{ Loc }

	Break struct{ Loc }

	Continue struct{ Loc }
)

func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Delete) stmtNode()      {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*AnnAssign) stmtNode()   {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*If) stmtNode()          {}
func (*With) stmtNode()        {}
func (*Raise) stmtNode()       {}
func (*Try) stmtNode()         {}
func (*Assert) stmtNode()      {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*ExprStmt) stmtNode()    {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}

// DottedName flattens a Name/Attribute chain ("os.path.join"). It returns
// "" for any other expression.
func DottedName(e Expr) string {
	switch n := e.(type) {
	case *Name:
		return n.ID
	case *Attribute:
		if base := DottedName(n.Value); base != "" {
			return base + "." + n.Attr
		}
	}
	return ""
}
