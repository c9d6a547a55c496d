package rust

import (
	"strings"
)

const indentUnit = "    "

// printer writes the tree with four-space indentation.
type printer struct {
	b      strings.Builder
	indent int
}

// Print renders a file.
func Print(f *File) string {
	p := &printer{}
	for _, h := range f.Header {
		p.line(h)
	}
	if len(f.Header) > 0 && (len(f.Uses) > 0 || len(f.Items) > 0) {
		p.blank()
	}
	for _, u := range f.Uses {
		p.line("use " + u.Path + ";")
	}
	if len(f.Uses) > 0 && len(f.Items) > 0 {
		p.blank()
	}
	for i, it := range f.Items {
		if i > 0 {
			p.blank()
		}
		p.item(it)
	}
	return p.b.String()
}

// PrintItem renders one item at column zero.
func PrintItem(it Item) string {
	p := &printer{}
	p.item(it)
	return p.b.String()
}

// ExprString renders an expression at column zero. Block-like expressions
// span several lines; callers embedding the result in a Raw keep their
// line structure, and the printer re-indents continuation lines.
func ExprString(e Expr) string {
	p := &printer{}
	p.expr(e)
	return p.b.String()
}

func (p *printer) pad() {
	for i := 0; i < p.indent; i++ {
		p.b.WriteString(indentUnit)
	}
}

func (p *printer) line(s string) {
	p.pad()
	p.write(s)
	p.b.WriteByte('\n')
}

func (p *printer) blank() { p.b.WriteByte('\n') }

// write emits text at the current position. Embedded newlines are
// followed by the current indentation.
func (p *printer) write(s string) {
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			p.b.WriteString(s)
			return
		}
		p.b.WriteString(s[:i+1])
		if rest := s[i+1:]; rest != "" && rest[0] != '\n' {
			p.pad()
		}
		s = s[i+1:]
	}
}

// ====== Items ======

func (p *printer) item(it Item) {
	switch n := it.(type) {
	case *Use:
		p.line("use " + n.Path + ";")
	case *Fn:
		p.fn(n)
	case *Struct:
		p.docs(n.Doc)
		p.derives(n.Derives)
		head := vis(n.Pub) + "struct " + n.Name
		if len(n.Fields) == 0 {
			p.line(head + ";")
			return
		}
		p.line(head + " {")
		p.indent++
		for _, f := range n.Fields {
			p.line(vis(f.Pub) + f.Name + ": " + f.Type + ",")
		}
		p.indent--
		p.line("}")
	case *Enum:
		p.docs(n.Doc)
		p.derives(n.Derives)
		p.line(vis(n.Pub) + "enum " + n.Name + " {")
		p.indent++
		for _, v := range n.Variants {
			if len(v.Fields) == 0 {
				p.line(v.Name + ",")
				continue
			}
			p.line(v.Name + "(" + strings.Join(v.Fields, ", ") + "),")
		}
		p.indent--
		p.line("}")
	case *Impl:
		head := "impl" + generics(n.Generics) + " "
		if n.Trait != "" {
			head += n.Trait + " for "
		}
		p.line(head + n.Type + " {")
		p.indent++
		for i, inner := range n.Items {
			if i > 0 {
				p.blank()
			}
			p.item(inner)
		}
		p.indent--
		p.line("}")
	case *Const:
		p.pad()
		p.write(vis(n.Pub) + "const " + n.Name + ": " + n.Type + " = ")
		p.expr(n.Value)
		p.write(";\n")
	case *Static:
		p.pad()
		p.write(vis(n.Pub) + "static " + n.Name + ": std::sync::LazyLock<" + n.Type + "> = std::sync::LazyLock::new(|| ")
		p.expr(n.Init)
		p.write(");\n")
	case *RawItem:
		for _, ln := range strings.Split(strings.TrimRight(n.Text, "\n"), "\n") {
			if ln == "" {
				p.blank()
				continue
			}
			p.line(ln)
		}
	}
}

func (p *printer) fn(n *Fn) {
	p.docs(n.Doc)
	for _, a := range n.Attrs {
		p.line(a)
	}
	params := make([]string, len(n.Params))
	for i, pr := range n.Params {
		switch {
		case pr.Name == "self":
			params[i] = pr.Type
			if pr.Mut && pr.Type == "self" {
				params[i] = "mut self"
			}
		case pr.Mut:
			params[i] = "mut " + pr.Name + ": " + pr.Type
		default:
			params[i] = pr.Name + ": " + pr.Type
		}
	}
	head := vis(n.Pub) + "fn " + n.Name + generics(n.Generics) + "(" + strings.Join(params, ", ") + ")"
	if n.Ret != "" && n.Ret != "()" {
		head += " -> " + n.Ret
	}
	p.pad()
	p.write(head + " ")
	p.block(n.Body)
	p.b.WriteByte('\n')
}

func (p *printer) docs(lines []string) {
	for _, d := range lines {
		if d == "" {
			p.line("///")
			continue
		}
		p.line("/// " + d)
	}
}

func (p *printer) derives(ds []string) {
	if len(ds) > 0 {
		p.line("#[derive(" + strings.Join(ds, ", ") + ")]")
	}
}

func vis(pub bool) string {
	if pub {
		return "pub "
	}
	return ""
}

func generics(gs []string) string {
	if len(gs) == 0 {
		return ""
	}
	return "<" + strings.Join(gs, ", ") + ">"
}

// ====== Statements ======

// block writes `{ ... }` starting at the current position and leaves the
// cursor after the closing brace.
func (p *printer) block(b *Block) {
	if b.Empty() {
		p.write("{}")
		return
	}
	p.write("{\n")
	p.indent++
	for _, s := range b.Stmts {
		p.stmt(s)
	}
	p.indent--
	p.pad()
	p.write("}")
}

func (p *printer) stmt(s Stmt) {
	switch n := s.(type) {
	case *Let:
		p.pad()
		head := "let "
		if n.Mut {
			head += "mut "
		}
		head += n.Pattern
		if n.Type != "" {
			head += ": " + n.Type
		}
		if n.Value == nil {
			p.write(head + ";\n")
			return
		}
		p.write(head + " = ")
		p.expr(n.Value)
		p.write(";\n")
	case *LetElse:
		p.pad()
		p.write("let " + n.Pattern + " = ")
		p.expr(n.Value)
		p.write(" else ")
		p.block(n.Else)
		p.write(";\n")
	case *ExprStmt:
		p.pad()
		p.expr(n.X)
		p.b.WriteByte('\n')
	case *Semi:
		p.pad()
		p.expr(n.X)
		if !IsBlockLike(n.X) {
			p.b.WriteByte(';')
		}
		p.b.WriteByte('\n')
	case *Comment:
		p.line("// " + n.Text)
	}
}

// ====== Expressions ======

func (p *printer) expr(e Expr) {
	switch n := e.(type) {
	case nil:
		p.write("()")
	case *Raw:
		p.write(n.Code)
	case *Block:
		p.block(n)
	case *If:
		p.write("if ")
		p.expr(n.Cond)
		p.write(" ")
		p.block(n.Then)
		p.elseBranch(n.Else)
	case *IfLet:
		p.write("if let " + n.Pattern + " = ")
		p.expr(n.Value)
		p.write(" ")
		p.block(n.Then)
		p.elseBranch(n.Else)
	case *Match:
		p.write("match ")
		p.expr(n.Value)
		p.write(" {\n")
		p.indent++
		for _, a := range n.Arms {
			p.pad()
			p.write(a.Pattern)
			if a.Guard != "" {
				p.write(" if " + a.Guard)
			}
			p.write(" => ")
			p.expr(a.Body)
			if !IsBlockLike(a.Body) {
				p.b.WriteByte(',')
			}
			p.b.WriteByte('\n')
		}
		p.indent--
		p.pad()
		p.write("}")
	case *Loop:
		p.write(label(n.Label) + "loop ")
		p.block(n.Body)
	case *While:
		p.write(label(n.Label) + "while ")
		p.expr(n.Cond)
		p.write(" ")
		p.block(n.Body)
	case *For:
		p.write(label(n.Label) + "for " + n.Pattern + " in ")
		p.expr(n.Iter)
		p.write(" ")
		p.block(n.Body)
	case *LabeledBlock:
		p.write(label(n.Label))
		p.block(n.Body)
	case *Closure:
		if n.Move {
			p.write("move ")
		}
		p.write("|" + strings.Join(n.Params, ", ") + "| ")
		p.expr(n.Body)
	}
}

func (p *printer) elseBranch(e Expr) {
	switch n := e.(type) {
	case nil:
	case *Block:
		if n.Empty() {
			return
		}
		p.write(" else ")
		p.block(n)
	default:
		p.write(" else ")
		p.expr(n)
	}
}

func label(l string) string {
	if l == "" {
		return ""
	}
	return l + ": "
}
