// Package parser builds an ast.Module from source text.
//
// It is a hand-written recursive-descent parser for the statically typable
// Python subset the translator accepts. Parsing stops at the first error;
// the error carries the offending position.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/ast"
	"github.com/pyrite-lang/pyrite/internal/lexer"
	"github.com/pyrite-lang/pyrite/internal/position"
)

// ParseError represents a syntax error.
type ParseError struct {
	Pos     position.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: syntax error: %s", e.Pos, e.Message)
}

type bailout struct{ err *ParseError }

// Parser holds the token stream for one source file.
type Parser struct {
	toks []lexer.Token
	pos  int
}

// ParseFile parses a whole module.
func ParseFile(filename, src string) (mod *ast.Module, err error) {
	p, err := newParser(src, filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			mod, err = nil, b.err
		}
	}()
	return p.parseModule(filename), nil
}

// ParseExpr parses a single expression (a bare tuple is allowed).
func ParseExpr(src string) (expr ast.Expr, err error) {
	p, err := newParser("("+src+")", "<expr>")
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			expr, err = nil, b.err
		}
	}()
	expr = p.parseTestListStar()
	for p.cur().Type == lexer.TokenNewline {
		p.nextToken()
	}
	if p.cur().Type != lexer.TokenEOF {
		p.errorf(p.cur(), "unexpected %s after expression", p.cur())
	}
	return expr, nil
}

func newParser(src, filename string) (*Parser, error) {
	toks, err := lexer.New(src, filename).Tokenize()
	if err != nil {
		var le *lexer.Error
		if errors.As(err, &le) {
			return nil, &ParseError{Pos: le.Pos, Message: le.Message}
		}
		return nil, err
	}
	return &Parser{toks: toks}, nil
}

// ---------------------------------------------------------------------------
// token helpers

func (p *Parser) cur() lexer.Token { return p.toks[p.pos] }

func (p *Parser) peek() lexer.Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) prev() lexer.Token {
	if p.pos == 0 {
		return p.toks[0]
	}
	return p.toks[p.pos-1]
}

func (p *Parser) nextToken() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) is(lit string) bool { return p.cur().Is(lit) }

func (p *Parser) accept(lit string) bool {
	if p.is(lit) {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) expect(lit string) lexer.Token {
	if !p.is(lit) {
		p.errorf(p.cur(), "expected %q, found %s", lit, p.cur())
	}
	return p.nextToken()
}

func (p *Parser) expectName() string {
	if p.cur().Type != lexer.TokenName {
		p.errorf(p.cur(), "expected identifier, found %s", p.cur())
	}
	return p.nextToken().Literal
}

func (p *Parser) errorf(tok lexer.Token, format string, args ...interface{}) {
	panic(bailout{&ParseError{Pos: tok.Span.Start, Message: fmt.Sprintf(format, args...)}})
}

func (p *Parser) loc(start lexer.Token) ast.Loc {
	return ast.Loc{Span: position.Span{Start: start.Span.Start, End: p.prev().Span.End}}
}

func (p *Parser) atStmtEnd() bool {
	switch p.cur().Type {
	case lexer.TokenNewline, lexer.TokenEOF, lexer.TokenDedent:
		return true
	}
	return p.is(";")
}

// canStartExpr reports whether the current token may begin an expression.
func (p *Parser) canStartExpr() bool {
	t := p.cur()
	switch t.Type {
	case lexer.TokenName, lexer.TokenInt, lexer.TokenFloat, lexer.TokenString:
		return true
	case lexer.TokenKeyword:
		switch t.Literal {
		case "None", "True", "False", "not", "lambda", "await", "yield":
			return true
		}
	case lexer.TokenOp:
		switch t.Literal {
		case "(", "[", "{", "-", "+", "~", "*", "...":
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// statements

func (p *Parser) parseModule(filename string) *ast.Module {
	start := p.cur()
	var body []ast.Stmt
	for p.cur().Type != lexer.TokenEOF {
		if p.cur().Type == lexer.TokenNewline {
			p.nextToken()
			continue
		}
		body = append(body, p.parseStatement()...)
	}
	return &ast.Module{Loc: p.loc(start), Filename: filename, Body: body}
}

func (p *Parser) parseStatement() []ast.Stmt {
	tok := p.cur()
	switch {
	case tok.Type == lexer.TokenIndent:
		p.errorf(tok, "unexpected indent")
	case tok.Is("def"):
		return []ast.Stmt{p.parseFunctionDef(tok, nil, false)}
	case tok.Is("class"):
		return []ast.Stmt{p.parseClassDef(tok, nil)}
	case tok.Is("@"):
		return []ast.Stmt{p.parseDecorated()}
	case tok.Is("if"):
		return []ast.Stmt{p.parseIf()}
	case tok.Is("while"):
		return []ast.Stmt{p.parseWhile()}
	case tok.Is("for"):
		return []ast.Stmt{p.parseFor(tok)}
	case tok.Is("try"):
		return []ast.Stmt{p.parseTry()}
	case tok.Is("with"):
		return []ast.Stmt{p.parseWith(tok)}
	case tok.Is("async"):
		p.nextToken()
		switch {
		case p.is("def"):
			return []ast.Stmt{p.parseFunctionDef(tok, nil, true)}
		case p.is("for"):
			return []ast.Stmt{p.parseFor(tok)}
		case p.is("with"):
			return []ast.Stmt{p.parseWith(tok)}
		}
		p.errorf(p.cur(), "expected def, for or with after async")
	}
	return p.parseSimpleStatements()
}

func (p *Parser) parseBlock() []ast.Stmt {
	p.expect(":")
	if p.cur().Type != lexer.TokenNewline {
		return p.parseSimpleStatements()
	}
	p.nextToken()
	if p.cur().Type != lexer.TokenIndent {
		p.errorf(p.cur(), "expected an indented block")
	}
	p.nextToken()
	var body []ast.Stmt
	for p.cur().Type != lexer.TokenDedent && p.cur().Type != lexer.TokenEOF {
		if p.cur().Type == lexer.TokenNewline {
			p.nextToken()
			continue
		}
		body = append(body, p.parseStatement()...)
	}
	if p.cur().Type == lexer.TokenDedent {
		p.nextToken()
	}
	return body
}

func (p *Parser) parseDecorated() ast.Stmt {
	start := p.cur()
	var decorators []ast.Expr
	for p.accept("@") {
		decorators = append(decorators, p.parseNamedExpr())
		if p.cur().Type != lexer.TokenNewline {
			p.errorf(p.cur(), "expected newline after decorator")
		}
		p.nextToken()
	}
	switch {
	case p.is("def"):
		return p.parseFunctionDef(start, decorators, false)
	case p.is("class"):
		return p.parseClassDef(start, decorators)
	case p.is("async"):
		p.nextToken()
		return p.parseFunctionDef(start, decorators, true)
	}
	p.errorf(p.cur(), "expected def or class after decorator")
	return nil
}

func (p *Parser) parseFunctionDef(start lexer.Token, decorators []ast.Expr, async bool) *ast.FunctionDef {
	p.expect("def")
	name := p.expectName()
	p.expect("(")
	params := p.parseParams(")", true)
	p.expect(")")
	var returns ast.Expr
	if p.accept("->") {
		returns = p.parseTest()
	}
	body := p.parseBlock()
	return &ast.FunctionDef{
		Loc:        p.loc(start),
		Name:       name,
		Params:     params,
		Returns:    returns,
		Body:       body,
		Decorators: decorators,
		IsAsync:    async,
	}
}

// parseParams parses a parameter list up to (not including) end.
func (p *Parser) parseParams(end string, annotations bool) []ast.Param {
	var params []ast.Param
	kind := ast.ParamPositional
	for !p.is(end) {
		start := p.cur()
		switch {
		case p.accept("/"):
			for i := range params {
				if params[i].Kind == ast.ParamPositional {
					params[i].Kind = ast.ParamPositionalOnly
				}
			}
		case p.accept("**"):
			param := ast.Param{Name: p.expectName(), Kind: ast.ParamKwArgs}
			if annotations && p.accept(":") {
				param.Annotation = p.parseTest()
			}
			param.Loc = p.loc(start)
			params = append(params, param)
		case p.accept("*"):
			kind = ast.ParamKeywordOnly
			if p.is(",") || p.is(end) {
				break
			}
			param := ast.Param{Name: p.expectName(), Kind: ast.ParamVarArgs}
			if annotations && p.accept(":") {
				param.Annotation = p.parseTest()
			}
			param.Loc = p.loc(start)
			params = append(params, param)
		default:
			param := ast.Param{Name: p.expectName(), Kind: kind}
			if annotations && p.accept(":") {
				param.Annotation = p.parseTest()
			}
			if p.accept("=") {
				param.Default = p.parseTest()
			}
			param.Loc = p.loc(start)
			params = append(params, param)
		}
		if !p.accept(",") {
			break
		}
	}
	return params
}

func (p *Parser) parseClassDef(start lexer.Token, decorators []ast.Expr) *ast.ClassDef {
	p.expect("class")
	cls := &ast.ClassDef{Name: p.expectName(), Decorators: decorators}
	if p.accept("(") {
		cls.Bases, cls.Keywords = p.parseCallArgs()
		p.expect(")")
	}
	cls.Body = p.parseBlock()
	cls.Loc = p.loc(start)
	return cls
}

func (p *Parser) parseIf() *ast.If {
	start := p.nextToken() // if / elif
	test := p.parseNamedExpr()
	body := p.parseBlock()
	var orelse []ast.Stmt
	switch {
	case p.is("elif"):
		orelse = []ast.Stmt{p.parseIf()}
	case p.accept("else"):
		orelse = p.parseBlock()
	}
	return &ast.If{Loc: p.loc(start), Test: test, Body: body, OrElse: orelse}
}

func (p *Parser) parseWhile() *ast.While {
	start := p.expect("while")
	test := p.parseNamedExpr()
	body := p.parseBlock()
	var orelse []ast.Stmt
	if p.accept("else") {
		orelse = p.parseBlock()
	}
	return &ast.While{Loc: p.loc(start), Test: test, Body: body, OrElse: orelse}
}

func (p *Parser) parseFor(start lexer.Token) *ast.For {
	p.expect("for")
	target := p.parseTargetList()
	p.expect("in")
	iter := p.parseTestListStar()
	body := p.parseBlock()
	var orelse []ast.Stmt
	if p.accept("else") {
		orelse = p.parseBlock()
	}
	return &ast.For{Loc: p.loc(start), Target: target, Iter: iter, Body: body, OrElse: orelse}
}

func (p *Parser) parseTry() *ast.Try {
	start := p.expect("try")
	try := &ast.Try{Body: p.parseBlock()}
	for p.is("except") {
		hstart := p.nextToken()
		var h ast.ExceptHandler
		if !p.is(":") {
			h.Type = p.parseTest()
			if p.accept("as") {
				h.Name = p.expectName()
			}
		}
		h.Body = p.parseBlock()
		h.Loc = p.loc(hstart)
		try.Handlers = append(try.Handlers, h)
	}
	if p.accept("else") {
		try.OrElse = p.parseBlock()
	}
	if p.accept("finally") {
		try.Finally = p.parseBlock()
	}
	if len(try.Handlers) == 0 && try.Finally == nil {
		p.errorf(start, "try statement needs an except or finally clause")
	}
	try.Loc = p.loc(start)
	return try
}

func (p *Parser) parseWith(start lexer.Token) *ast.With {
	p.expect("with")
	var items []ast.WithItem
	for {
		item := ast.WithItem{ContextExpr: p.parseTest()}
		if p.accept("as") {
			item.OptionalVars = p.parseTarget()
		}
		items = append(items, item)
		if !p.accept(",") {
			break
		}
	}
	body := p.parseBlock()
	return &ast.With{Loc: p.loc(start), Items: items, Body: body}
}

func (p *Parser) parseSimpleStatements() []ast.Stmt {
	var out []ast.Stmt
	for {
		out = append(out, p.parseSmallStatement())
		if !p.accept(";") || p.atStmtEnd() {
			break
		}
	}
	switch p.cur().Type {
	case lexer.TokenNewline:
		p.nextToken()
	case lexer.TokenEOF, lexer.TokenDedent:
	default:
		p.errorf(p.cur(), "invalid syntax near %s", p.cur())
	}
	return out
}

var augOps = map[string]bool{
	"+=": true, "-=": true, "*=": true, "/=": true, "//=": true, "%=": true,
	"**=": true, ">>=": true, "<<=": true, "&=": true, "|=": true, "^=": true, "@=": true,
}

func (p *Parser) parseSmallStatement() ast.Stmt {
	start := p.cur()
	switch {
	case p.accept("pass"):
		return &ast.Pass{Loc: p.loc(start)}
	case p.accept("break"):
		return &ast.Break{Loc: p.loc(start)}
	case p.accept("continue"):
		return &ast.Continue{Loc: p.loc(start)}
	case p.accept("return"):
		var value ast.Expr
		if !p.atStmtEnd() {
			value = p.parseTestListStar()
		}
		return &ast.Return{Loc: p.loc(start), Value: value}
	case p.accept("raise"):
		r := &ast.Raise{}
		if !p.atStmtEnd() {
			r.Exc = p.parseTest()
			if p.accept("from") {
				r.Cause = p.parseTest()
			}
		}
		r.Loc = p.loc(start)
		return r
	case p.accept("global"):
		return &ast.Global{Names: p.parseNameList(), Loc: p.loc(start)}
	case p.accept("nonlocal"):
		return &ast.Nonlocal{Names: p.parseNameList(), Loc: p.loc(start)}
	case p.accept("del"):
		targets := p.parseTargetList()
		if tup, ok := targets.(*ast.Tuple); ok {
			return &ast.Delete{Loc: p.loc(start), Targets: tup.Elts}
		}
		return &ast.Delete{Loc: p.loc(start), Targets: []ast.Expr{targets}}
	case p.accept("assert"):
		a := &ast.Assert{Test: p.parseTest()}
		if p.accept(",") {
			a.Msg = p.parseTest()
		}
		a.Loc = p.loc(start)
		return a
	case p.accept("import"):
		var names []ast.Alias
		for {
			alias := ast.Alias{Name: p.parseDottedName()}
			if p.accept("as") {
				alias.AsName = p.expectName()
			}
			names = append(names, alias)
			if !p.accept(",") {
				break
			}
		}
		return &ast.Import{Loc: p.loc(start), Names: names}
	case p.accept("from"):
		return p.parseImportFrom(start)
	}
	return p.parseExprStatement()
}

func (p *Parser) parseNameList() []string {
	names := []string{p.expectName()}
	for p.accept(",") {
		names = append(names, p.expectName())
	}
	return names
}

func (p *Parser) parseDottedName() string {
	name := p.expectName()
	for p.accept(".") {
		name += "." + p.expectName()
	}
	return name
}

func (p *Parser) parseImportFrom(start lexer.Token) ast.Stmt {
	imp := &ast.ImportFrom{}
	for {
		if p.accept(".") {
			imp.Level++
		} else if p.accept("...") {
			imp.Level += 3
		} else {
			break
		}
	}
	if !p.is("import") {
		imp.Module = p.parseDottedName()
	}
	p.expect("import")
	if p.accept("*") {
		imp.Names = []ast.Alias{{Name: "*"}}
		imp.Loc = p.loc(start)
		return imp
	}
	paren := p.accept("(")
	for {
		if paren && p.is(")") {
			break
		}
		alias := ast.Alias{Name: p.expectName()}
		if p.accept("as") {
			alias.AsName = p.expectName()
		}
		imp.Names = append(imp.Names, alias)
		if !p.accept(",") {
			break
		}
	}
	if paren {
		p.expect(")")
	}
	imp.Loc = p.loc(start)
	return imp
}

func (p *Parser) parseExprStatement() ast.Stmt {
	start := p.cur()
	var e ast.Expr
	if p.is("yield") {
		e = p.parseYield()
	} else {
		e = p.parseTestListStar()
	}

	switch {
	case p.is(":"):
		p.nextToken()
		ann := &ast.AnnAssign{Target: e, Annotation: p.parseTest()}
		if p.accept("=") {
			ann.Value = p.parseAssignValue()
		}
		ann.Loc = p.loc(start)
		return ann
	case p.cur().Type == lexer.TokenOp && augOps[p.cur().Literal]:
		op := strings.TrimSuffix(p.nextToken().Literal, "=")
		value := p.parseAssignValue()
		return &ast.AugAssign{Loc: p.loc(start), Target: e, Op: op, Value: value}
	case p.is("="):
		exprs := []ast.Expr{e}
		for p.accept("=") {
			exprs = append(exprs, p.parseAssignValue())
		}
		return &ast.Assign{
			Loc:     p.loc(start),
			Targets: exprs[:len(exprs)-1],
			Value:   exprs[len(exprs)-1],
		}
	}
	return &ast.ExprStmt{Loc: p.loc(start), Value: e}
}

func (p *Parser) parseAssignValue() ast.Expr {
	if p.is("yield") {
		return p.parseYield()
	}
	return p.parseTestListStar()
}

func (p *Parser) parseYield() ast.Expr {
	start := p.expect("yield")
	if p.accept("from") {
		v := p.parseTest()
		return &ast.YieldFrom{Loc: p.loc(start), Value: v}
	}
	var v ast.Expr
	if p.canStartExpr() {
		v = p.parseTestListStar()
	}
	return &ast.Yield{Loc: p.loc(start), Value: v}
}
