package hir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Print renders a canonical, span-free dump of a HIR value. It accepts a
// *Module, *Class, *Function, Block, Stmt or Expr. Two values print the
// same exactly when they are structurally equal.
func Print(v any) string {
	p := &printer{}
	p.value(v)
	return p.b.String()
}

// Fingerprint returns the hex sha256 of Print(v).
func Fingerprint(v any) string {
	sum := sha256.Sum256([]byte(Print(v)))
	return hex.EncodeToString(sum[:])
}

// Equal reports structural equality, ignoring source spans.
func Equal(a, b any) bool { return Print(a) == Print(b) }

type printer struct {
	b      strings.Builder
	indent int
}

func (p *printer) line(format string, args ...any) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(&p.b, format, args...)
	p.b.WriteByte('\n')
}

func (p *printer) value(v any) {
	switch n := v.(type) {
	case *Module:
		p.module(n)
	case *Class:
		p.class(n)
	case *Function:
		p.function(n)
	case Block:
		p.block("", n)
	case Stmt:
		p.stmt(n)
	case Expr:
		p.line("%s", p.expr(n))
	case nil:
		p.line("<nil>")
	default:
		p.line("<%T>", v)
	}
}

func (p *printer) module(m *Module) {
	p.line("module %s", m.Name)
	p.indent++
	if m.Doc != "" {
		p.line("doc %q", m.Doc)
	}
	for _, im := range m.Imports {
		p.line("import %s as %s -> %s known=%t", im.Path(), im.Binding(), im.Target, im.Known)
	}
	for _, v := range m.TypeVars {
		p.line("typevar %s", v)
	}
	for _, a := range m.Aliases {
		p.line("alias %s = %s", a.Name, a.Type)
	}
	for _, pr := range m.Protocols {
		p.line("protocol %s %v", pr.Name, pr.Methods)
	}
	for _, c := range m.Constants {
		p.line("const %s: %s = %s final=%t", c.Name, c.Type, p.expr(c.Value), c.Final)
	}
	for _, c := range m.Classes {
		p.class(c)
	}
	for _, f := range m.Functions {
		p.function(f)
	}
	p.block("main", m.Main)
	p.indent--
}

func (p *printer) class(c *Class) {
	p.line("class %s(%s) exception=%t dataclass=%t mutates=%t", c.Name, strings.Join(c.Bases, ", "),
		c.IsException, c.IsDataclass, c.MutatesSelf)
	p.indent++
	if c.Doc != "" {
		p.line("doc %q", c.Doc)
	}
	for _, f := range c.Fields {
		p.line("field %s: %s annotated=%t default=%s", f.Name, f.Type, f.Annotated, p.expr(f.Default))
	}
	for _, m := range c.Methods {
		p.function(m)
	}
	p.indent--
}

func (p *printer) function(f *Function) {
	var params []string
	for _, prm := range f.Params {
		s := prm.Name + ": " + prm.Type.String()
		switch {
		case prm.IsVararg:
			s = "*" + s
		case prm.IsKwarg:
			s = "**" + s
		case prm.KeywordOnly:
			s = "kw " + s
		}
		if prm.Default != nil {
			s += " = " + p.expr(prm.Default)
		}
		params = append(params, s)
	}
	ret := "-"
	if f.HasRet {
		ret = f.Ret.String()
	}
	p.line("def %s(%s) -> %s %+v static=%t classmethod=%t decorators=%v",
		f.QualifiedName(), strings.Join(params, ", "), ret, f.Props, f.Static, f.ClassMethod, f.Decorators)
	p.indent++
	if f.Doc != "" {
		p.line("doc %q", f.Doc)
	}
	for _, s := range f.Body {
		p.stmt(s)
	}
	p.indent--
}

func (p *printer) block(label string, b Block) {
	if label != "" {
		p.line("%s:", label)
	}
	p.indent++
	for _, s := range b {
		p.stmt(s)
	}
	p.indent--
}

func (p *printer) stmt(s Stmt) {
	switch n := s.(type) {
	case *Assign:
		ann := ""
		if n.Annotation != nil {
			ann = ": " + n.Annotation.String()
		}
		p.line("assign %s%s = %s", p.expr(n.Target), ann, p.expr(n.Value))
	case *AugAssign:
		p.line("augassign %s %s= %s", p.expr(n.Target), n.Op, p.expr(n.Value))
	case *AnnDecl:
		p.line("decl %s: %s", n.Target.ID, n.Annotation)
	case *If:
		p.line("if %s", p.expr(n.Cond))
		p.block("", n.Then)
		p.block("else", n.Else)
	case *While:
		p.line("while %s", p.expr(n.Cond))
		p.block("", n.Body)
		p.block("else", n.Else)
	case *For:
		p.line("for %s in %s", p.expr(n.Target), p.expr(n.Iter))
		p.block("", n.Body)
		p.block("else", n.Else)
	case *Try:
		p.line("try")
		p.block("", n.Body)
		for _, h := range n.Handlers {
			p.line("except %v as %q", h.Types, h.Name)
			p.block("", h.Body)
		}
		p.block("else", n.Else)
		p.block("finally", n.Finally)
	case *With:
		var items []string
		for _, it := range n.Items {
			s := p.expr(it.Ctx)
			if it.Target != nil {
				s += " as " + it.Target.ID
				if it.Mutable {
					s += " mut"
				}
			}
			items = append(items, s)
		}
		p.line("with %s", strings.Join(items, ", "))
		p.block("", n.Body)
	case *Raise:
		if n.Reraise {
			p.line("reraise")
			return
		}
		p.line("raise %s(%s) from %s", n.Exc, p.exprs(n.Args), p.expr(n.Cause))
	case *Return:
		p.line("return %s", p.expr(n.Value))
	case *Break:
		p.line("break")
	case *Continue:
		p.line("continue")
	case *Pass:
		p.line("pass")
	case *ImportStmt:
		for _, im := range n.Imports {
			p.line("import %s as %s -> %s", im.Path(), im.Binding(), im.Target)
		}
	case *FuncDef:
		p.function(n.Func)
	case *ClassDef:
		p.class(n.Class)
	case *Docstring:
		p.line("docstring %q", n.Text)
	case *ExprStmt:
		p.line("expr %s", p.expr(n.X))
	case *ContainerRemove:
		p.line("remove %s[%s]", p.expr(n.Container), p.expr(n.Key))
	case *DeleteVar:
		p.line("del %s", n.Name)
	case *Assert:
		p.line("assert %s, %s", p.expr(n.Test), p.expr(n.Msg))
	case *StubStmt:
		p.line("stub %q", n.Reason)
	default:
		p.line("<%T>", s)
	}
}

func (p *printer) exprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = p.expr(e)
	}
	return strings.Join(parts, ", ")
}

func (p *printer) keywords(kws []Keyword) string {
	var b strings.Builder
	for _, kw := range kws {
		fmt.Fprintf(&b, ", %s=%s", kw.Name, p.expr(kw.Value))
	}
	return b.String()
}

func (p *printer) expr(e Expr) string {
	if e == nil || isNilName(e) {
		return "_"
	}
	switch n := e.(type) {
	case *Name:
		return n.ID
	case *Lit:
		switch n.Kind {
		case LitNone:
			return "None"
		case LitBool:
			return strconv.FormatBool(n.Bool)
		case LitInt:
			return strconv.FormatInt(n.Int, 10)
		case LitFloat:
			return strconv.FormatFloat(n.Float, 'g', -1, 64) + "f"
		case LitBytes:
			return "b" + strconv.Quote(n.Str)
		}
		return strconv.Quote(n.Str)
	case *BinOp:
		return "(" + p.expr(n.Left) + " " + n.Op + " " + p.expr(n.Right) + ")"
	case *Unary:
		return "(" + n.Op + " " + p.expr(n.Operand) + ")"
	case *Compare:
		s := p.expr(n.Left)
		for i, op := range n.Ops {
			s += " " + op + " " + p.expr(n.Rights[i])
		}
		return "(" + s + ")"
	case *Call:
		return p.expr(n.Func) + "(" + p.exprs(n.Args) + p.keywords(n.Keywords) + ")"
	case *MethodCall:
		return p.expr(n.Recv) + "." + n.Method + "(" + p.exprs(n.Args) + p.keywords(n.Keywords) + ")"
	case *Qualified:
		return "@" + n.Path
	case *Attribute:
		return p.expr(n.Value) + "." + n.Attr
	case *Index:
		return p.expr(n.Value) + "[" + p.expr(n.Index) + "]"
	case *SliceExpr:
		return p.expr(n.Value) + "[" + p.expr(n.Lower) + ":" + p.expr(n.Upper) + ":" + p.expr(n.Step) + "]"
	case *ListLit:
		return "[" + p.exprs(n.Elts) + "]"
	case *SetLit:
		return "{" + p.exprs(n.Elts) + "}"
	case *TupleLit:
		return "(" + p.exprs(n.Elts) + ",)"
	case *DictLit:
		parts := make([]string, len(n.Keys))
		for i := range n.Keys {
			parts[i] = p.expr(n.Keys[i]) + ": " + p.expr(n.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Comprehension:
		var b strings.Builder
		b.WriteString(n.Kind.String() + "comp[")
		if n.Key != nil {
			b.WriteString(p.expr(n.Key) + ": ")
		}
		b.WriteString(p.expr(n.Elt))
		for _, c := range n.Clauses {
			if c.Kind == ClauseFor {
				b.WriteString(" for " + p.expr(c.Target) + " in " + p.expr(c.Iter))
			} else {
				b.WriteString(" if " + p.expr(c.Cond))
			}
		}
		b.WriteString("]")
		return b.String()
	case *Lambda:
		return "lambda " + strings.Join(n.Params, ", ") + ": " + p.expr(n.Body)
	case *IfExpr:
		return "(" + p.expr(n.Then) + " if " + p.expr(n.Cond) + " else " + p.expr(n.Else) + ")"
	case *Walrus:
		return "(" + n.Target.ID + " := " + p.expr(n.Value) + ")"
	case *FString:
		var b strings.Builder
		b.WriteString("f\"")
		for _, part := range n.Parts {
			if part.Expr == nil {
				b.WriteString(part.Lit)
				continue
			}
			b.WriteString("{" + p.expr(part.Expr))
			if part.Conv != 0 {
				b.WriteString("!" + string(part.Conv))
			}
			if part.Spec != "" {
				b.WriteString(":" + part.Spec)
			}
			b.WriteString("}")
		}
		b.WriteString("\"")
		return b.String()
	case *Yield:
		if n.From {
			return "(yield from " + p.expr(n.Value) + ")"
		}
		return "(yield " + p.expr(n.Value) + ")"
	case *Await:
		return "(await " + p.expr(n.Value) + ")"
	case *Starred:
		return "*" + p.expr(n.Value)
	case *Stub:
		return "<stub " + strconv.Quote(n.Reason) + ">"
	}
	return fmt.Sprintf("<%T>", e)
}
