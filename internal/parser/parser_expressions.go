package parser

import (
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/ast"
	"github.com/pyrite-lang/pyrite/internal/lexer"
)

// parseTestListStar parses a comma-separated expression list; more than
// one element (or a trailing comma) yields a tuple.
func (p *Parser) parseTestListStar() ast.Expr {
	start := p.cur()
	first := p.parseStarOr(p.parseNamedExpr)
	if !p.is(",") {
		return first
	}
	elts := []ast.Expr{first}
	for p.accept(",") {
		if !p.canStartExpr() {
			break
		}
		elts = append(elts, p.parseStarOr(p.parseNamedExpr))
	}
	return &ast.Tuple{Loc: p.loc(start), Elts: elts}
}

// parseTargetList parses assignment targets for for-loops, del and
// comprehensions. Elements are parsed below the comparison level so that
// "in" terminates the list.
func (p *Parser) parseTargetList() ast.Expr {
	start := p.cur()
	first := p.parseTarget()
	if !p.is(",") {
		return first
	}
	elts := []ast.Expr{first}
	for p.accept(",") {
		if !p.canStartExpr() {
			break
		}
		elts = append(elts, p.parseTarget())
	}
	return &ast.Tuple{Loc: p.loc(start), Elts: elts}
}

func (p *Parser) parseTarget() ast.Expr {
	return p.parseStarOr(func() ast.Expr { return p.parseBinary(0) })
}

func (p *Parser) parseStarOr(next func() ast.Expr) ast.Expr {
	start := p.cur()
	if p.accept("*") {
		v := p.parseBinary(0)
		return &ast.Starred{Loc: p.loc(start), Value: v}
	}
	return next()
}

func (p *Parser) parseNamedExpr() ast.Expr {
	if p.cur().Type == lexer.TokenName && p.peek().Is(":=") {
		start := p.nextToken()
		name := &ast.Name{Loc: ast.Loc{Span: start.Span}, ID: start.Literal}
		p.expect(":=")
		value := p.parseTest()
		return &ast.NamedExpr{Loc: p.loc(start), Target: name, Value: value}
	}
	return p.parseTest()
}

func (p *Parser) parseTest() ast.Expr {
	if p.is("lambda") {
		return p.parseLambda()
	}
	start := p.cur()
	e := p.parseOrTest()
	if p.accept("if") {
		cond := p.parseOrTest()
		p.expect("else")
		other := p.parseTest()
		return &ast.IfExp{Loc: p.loc(start), Test: cond, Body: e, OrElse: other}
	}
	return e
}

func (p *Parser) parseLambda() ast.Expr {
	start := p.expect("lambda")
	params := p.parseParams(":", false)
	p.expect(":")
	body := p.parseTest()
	return &ast.Lambda{Loc: p.loc(start), Params: params, Body: body}
}

func (p *Parser) parseOrTest() ast.Expr {
	return p.parseBoolOp("or", p.parseAndTest)
}

func (p *Parser) parseAndTest() ast.Expr {
	return p.parseBoolOp("and", p.parseNotTest)
}

func (p *Parser) parseBoolOp(op string, next func() ast.Expr) ast.Expr {
	start := p.cur()
	first := next()
	if !p.is(op) {
		return first
	}
	values := []ast.Expr{first}
	for p.accept(op) {
		values = append(values, next())
	}
	return &ast.BoolOp{Loc: p.loc(start), Op: op, Values: values}
}

func (p *Parser) parseNotTest() ast.Expr {
	start := p.cur()
	if p.accept("not") {
		operand := p.parseNotTest()
		return &ast.UnaryOp{Loc: p.loc(start), Op: "not", Operand: operand}
	}
	return p.parseComparison()
}

func (p *Parser) compOp() (string, bool) {
	t := p.cur()
	switch {
	case t.Type == lexer.TokenOp:
		switch t.Literal {
		case "<", ">", "==", ">=", "<=", "!=":
			p.nextToken()
			return t.Literal, true
		}
	case t.Is("in"):
		p.nextToken()
		return "in", true
	case t.Is("not") && p.peek().Is("in"):
		p.nextToken()
		p.nextToken()
		return "not in", true
	case t.Is("is"):
		p.nextToken()
		if p.accept("not") {
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *Parser) parseComparison() ast.Expr {
	start := p.cur()
	left := p.parseBinary(0)
	var ops []string
	var comps []ast.Expr
	for {
		op, ok := p.compOp()
		if !ok {
			break
		}
		ops = append(ops, op)
		comps = append(comps, p.parseBinary(0))
	}
	if len(ops) == 0 {
		return left
	}
	return &ast.Compare{Loc: p.loc(start), Left: left, Ops: ops, Comparators: comps}
}

// binaryLevels lists binary operators from loosest to tightest binding.
var binaryLevels = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "//", "%", "@"},
}

func (p *Parser) parseBinary(level int) ast.Expr {
	if level >= len(binaryLevels) {
		return p.parseFactor()
	}
	start := p.cur()
	left := p.parseBinary(level + 1)
	for {
		t := p.cur()
		if t.Type != lexer.TokenOp || !contains(binaryLevels[level], t.Literal) {
			return left
		}
		p.nextToken()
		right := p.parseBinary(level + 1)
		left = &ast.BinOp{Loc: p.loc(start), Left: left, Op: t.Literal, Right: right}
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (p *Parser) parseFactor() ast.Expr {
	start := p.cur()
	if p.is("-") || p.is("+") || p.is("~") {
		op := p.nextToken().Literal
		operand := p.parseFactor()
		return &ast.UnaryOp{Loc: p.loc(start), Op: op, Operand: operand}
	}
	return p.parsePower()
}

func (p *Parser) parsePower() ast.Expr {
	start := p.cur()
	var base ast.Expr
	if p.accept("await") {
		v := p.parsePrimary()
		base = &ast.Await{Loc: p.loc(start), Value: v}
	} else {
		base = p.parsePrimary()
	}
	if p.accept("**") {
		exp := p.parseFactor()
		return &ast.BinOp{Loc: p.loc(start), Left: base, Op: "**", Right: exp}
	}
	return base
}

func (p *Parser) parsePrimary() ast.Expr {
	start := p.cur()
	e := p.parseAtom()
	for {
		switch {
		case p.accept("("):
			args, kws := p.parseCallArgs()
			p.expect(")")
			e = &ast.Call{Loc: p.loc(start), Func: e, Args: args, Keywords: kws}
		case p.accept("["):
			idx := p.parseSubscript()
			p.expect("]")
			e = &ast.Subscript{Loc: p.loc(start), Value: e, Index: idx}
		case p.accept("."):
			attr := p.expectName()
			e = &ast.Attribute{Loc: p.loc(start), Value: e, Attr: attr}
		default:
			return e
		}
	}
}

// parseCallArgs parses arguments up to the closing parenthesis.
func (p *Parser) parseCallArgs() ([]ast.Expr, []ast.Keyword) {
	var args []ast.Expr
	var kws []ast.Keyword
	for !p.is(")") {
		start := p.cur()
		switch {
		case p.accept("**"):
			v := p.parseTest()
			kws = append(kws, ast.Keyword{Loc: p.loc(start), Value: v})
		case p.accept("*"):
			v := p.parseTest()
			args = append(args, &ast.Starred{Loc: p.loc(start), Value: v})
		case p.cur().Type == lexer.TokenName && p.peek().Is("="):
			name := p.nextToken().Literal
			p.expect("=")
			v := p.parseTest()
			kws = append(kws, ast.Keyword{Loc: p.loc(start), Arg: name, Value: v})
		default:
			e := p.parseNamedExpr()
			if p.is("for") || (p.is("async") && p.peek().Is("for")) {
				gens := p.parseCompFor()
				e = &ast.Comp{Loc: p.loc(start), Kind: ast.GenExp, Elt: e, Generators: gens}
			}
			args = append(args, e)
		}
		if !p.accept(",") {
			break
		}
	}
	return args, kws
}

func (p *Parser) parseSubscript() ast.Expr {
	start := p.cur()
	first := p.parseSliceItem()
	if !p.is(",") {
		return first
	}
	elts := []ast.Expr{first}
	for p.accept(",") {
		if p.is("]") {
			break
		}
		elts = append(elts, p.parseSliceItem())
	}
	return &ast.Tuple{Loc: p.loc(start), Elts: elts}
}

func (p *Parser) parseSliceItem() ast.Expr {
	start := p.cur()
	var lower ast.Expr
	if !p.is(":") {
		lower = p.parseStarOr(p.parseNamedExpr)
		if !p.is(":") {
			return lower
		}
	}
	p.expect(":")
	s := &ast.Slice{Lower: lower}
	if !p.is(":") && !p.is("]") && !p.is(",") {
		s.Upper = p.parseTest()
	}
	if p.accept(":") && !p.is("]") && !p.is(",") {
		s.Step = p.parseTest()
	}
	s.Loc = p.loc(start)
	return s
}

func (p *Parser) parseCompFor() []ast.Comprehension {
	var gens []ast.Comprehension
	for p.is("for") || (p.is("async") && p.peek().Is("for")) {
		start := p.cur()
		p.accept("async")
		p.expect("for")
		target := p.parseTargetList()
		p.expect("in")
		iter := p.parseOrTest()
		var ifs []ast.Expr
		for p.accept("if") {
			ifs = append(ifs, p.parseOrTest())
		}
		gens = append(gens, ast.Comprehension{Loc: p.loc(start), Target: target, Iter: iter, Ifs: ifs})
	}
	return gens
}

func (p *Parser) parseAtom() ast.Expr {
	start := p.cur()
	switch start.Type {
	case lexer.TokenName:
		p.nextToken()
		return &ast.Name{Loc: p.loc(start), ID: start.Literal}
	case lexer.TokenInt:
		p.nextToken()
		base := 10
		if len(start.Literal) > 1 && start.Literal[0] == '0' {
			base = 0
		}
		v, err := strconv.ParseInt(start.Literal, base, 64)
		if err != nil {
			p.errorf(start, "invalid integer literal %s", start.Literal)
		}
		return &ast.Constant{Loc: p.loc(start), Kind: ast.ConstInt, Int: v, Raw: start.Literal}
	case lexer.TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(start.Literal, 64)
		if err != nil {
			p.errorf(start, "invalid float literal %s", start.Literal)
		}
		return &ast.Constant{Loc: p.loc(start), Kind: ast.ConstFloat, Float: v, Raw: start.Literal}
	case lexer.TokenString:
		return p.parseStrings()
	}

	switch {
	case p.accept("None"):
		return &ast.Constant{Loc: p.loc(start), Kind: ast.ConstNone, Raw: "None"}
	case p.accept("True"):
		return &ast.Constant{Loc: p.loc(start), Kind: ast.ConstBool, Bool: true, Raw: "True"}
	case p.accept("False"):
		return &ast.Constant{Loc: p.loc(start), Kind: ast.ConstBool, Raw: "False"}
	case p.accept("..."):
		return &ast.Constant{Loc: p.loc(start), Kind: ast.ConstEllipsis, Raw: "..."}
	case p.accept("("):
		return p.parseParenthesized(start)
	case p.accept("["):
		return p.parseListDisplay(start)
	case p.accept("{"):
		return p.parseBraceDisplay(start)
	}
	p.errorf(start, "unexpected %s", start)
	return nil
}

func (p *Parser) parseParenthesized(start lexer.Token) ast.Expr {
	if p.accept(")") {
		return &ast.Tuple{Loc: p.loc(start)}
	}
	if p.is("yield") {
		y := p.parseYield()
		p.expect(")")
		return y
	}
	first := p.parseStarOr(p.parseNamedExpr)
	if p.is("for") || (p.is("async") && p.peek().Is("for")) {
		gens := p.parseCompFor()
		p.expect(")")
		return &ast.Comp{Loc: p.loc(start), Kind: ast.GenExp, Elt: first, Generators: gens}
	}
	if p.accept(")") {
		return first
	}
	elts := []ast.Expr{first}
	for p.accept(",") {
		if p.is(")") {
			break
		}
		elts = append(elts, p.parseStarOr(p.parseNamedExpr))
	}
	p.expect(")")
	return &ast.Tuple{Loc: p.loc(start), Elts: elts}
}

func (p *Parser) parseListDisplay(start lexer.Token) ast.Expr {
	if p.accept("]") {
		return &ast.List{Loc: p.loc(start)}
	}
	first := p.parseStarOr(p.parseNamedExpr)
	if p.is("for") || (p.is("async") && p.peek().Is("for")) {
		gens := p.parseCompFor()
		p.expect("]")
		return &ast.Comp{Loc: p.loc(start), Kind: ast.ListComp, Elt: first, Generators: gens}
	}
	elts := []ast.Expr{first}
	for p.accept(",") {
		if p.is("]") {
			break
		}
		elts = append(elts, p.parseStarOr(p.parseNamedExpr))
	}
	p.expect("]")
	return &ast.List{Loc: p.loc(start), Elts: elts}
}

func (p *Parser) parseBraceDisplay(start lexer.Token) ast.Expr {
	if p.accept("}") {
		return &ast.Dict{Loc: p.loc(start)}
	}

	var keys, values []ast.Expr
	entry := func() {
		estart := p.cur()
		if p.accept("**") {
			v := p.parseBinary(0)
			keys = append(keys, nil)
			values = append(values, &ast.Starred{Loc: p.loc(estart), Value: v, Double: true})
			return
		}
		k := p.parseTest()
		p.expect(":")
		keys = append(keys, k)
		values = append(values, p.parseTest())
	}

	if p.is("**") {
		entry()
	} else {
		first := p.parseStarOr(p.parseNamedExpr)
		if !p.accept(":") {
			// set display or set comprehension
			if p.is("for") || (p.is("async") && p.peek().Is("for")) {
				gens := p.parseCompFor()
				p.expect("}")
				return &ast.Comp{Loc: p.loc(start), Kind: ast.SetComp, Elt: first, Generators: gens}
			}
			elts := []ast.Expr{first}
			for p.accept(",") {
				if p.is("}") {
					break
				}
				elts = append(elts, p.parseStarOr(p.parseNamedExpr))
			}
			p.expect("}")
			return &ast.Set{Loc: p.loc(start), Elts: elts}
		}
		value := p.parseTest()
		if p.is("for") || (p.is("async") && p.peek().Is("for")) {
			gens := p.parseCompFor()
			p.expect("}")
			return &ast.Comp{Loc: p.loc(start), Kind: ast.DictComp, Key: first, Elt: value, Generators: gens}
		}
		keys = append(keys, first)
		values = append(values, value)
	}
	for p.accept(",") {
		if p.is("}") {
			break
		}
		entry()
	}
	p.expect("}")
	return &ast.Dict{Loc: p.loc(start), Keys: keys, Values: values}
}

// parseStrings concatenates adjacent string literals. Any f-string part
// turns the result into a JoinedStr.
func (p *Parser) parseStrings() ast.Expr {
	start := p.cur()
	var parts []ast.Expr
	var lit strings.Builder
	isF, isBytes := false, false
	litStart := start

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &ast.Constant{Loc: ast.Loc{Span: litStart.Span}, Kind: ast.ConstStr, Str: lit.String()})
			lit.Reset()
		}
	}

	for p.cur().Type == lexer.TokenString {
		tok := p.nextToken()
		if strings.Contains(tok.Prefix, "b") {
			isBytes = true
		}
		if strings.Contains(tok.Prefix, "f") {
			isF = true
			flush()
			parts = append(parts, p.parseFString(tok)...)
			continue
		}
		if lit.Len() == 0 {
			litStart = tok
		}
		lit.WriteString(tok.Literal)
	}

	if !isF {
		kind := ast.ConstStr
		if isBytes {
			kind = ast.ConstBytes
		}
		return &ast.Constant{Loc: p.loc(start), Kind: kind, Str: lit.String()}
	}
	flush()
	return &ast.JoinedStr{Loc: p.loc(start), Values: mergeConstants(parts)}
}

func mergeConstants(parts []ast.Expr) []ast.Expr {
	var out []ast.Expr
	for _, part := range parts {
		c, ok := part.(*ast.Constant)
		if ok && len(out) > 0 {
			if prev, ok := out[len(out)-1].(*ast.Constant); ok {
				out[len(out)-1] = &ast.Constant{Loc: prev.Loc, Kind: ast.ConstStr, Str: prev.Str + c.Str}
				continue
			}
		}
		out = append(out, part)
	}
	return out
}

// parseFString splits an f-string body into literal and replacement
// fields. Replacement expressions are parsed with ParseExpr.
func (p *Parser) parseFString(tok lexer.Token) []ast.Expr {
	body := tok.Literal
	raw := strings.Contains(tok.Prefix, "r")
	loc := ast.Loc{Span: tok.Span}
	var parts []ast.Expr
	var lit strings.Builder

	flush := func() {
		if lit.Len() == 0 {
			return
		}
		s := lit.String()
		if !raw {
			decoded, err := lexer.Unescape(s)
			if err != nil {
				p.errorf(tok, "f-string: %v", err)
			}
			s = decoded
		}
		parts = append(parts, &ast.Constant{Loc: loc, Kind: ast.ConstStr, Str: s})
		lit.Reset()
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '{' && i+1 < len(body) && body[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(body) && body[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := matchBrace(body, i)
			if end < 0 {
				p.errorf(tok, "f-string: expecting '}'")
			}
			flush()
			parts = append(parts, p.parseReplacementField(tok, body[i+1:end])...)
			i = end
		case c == '}':
			p.errorf(tok, "f-string: single '}' is not allowed")
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return parts
}

// matchBrace returns the index of the '}' closing the '{' at open.
func matchBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
			if depth == 0 {
				if c != '}' {
					return -1
				}
				return i
			}
		}
	}
	return -1
}

func (p *Parser) parseReplacementField(tok lexer.Token, inner string) []ast.Expr {
	loc := ast.Loc{Span: tok.Span}
	split := len(inner)
	depth := 0
	var quote byte
scan:
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case '!':
			if depth == 0 && (i+1 >= len(inner) || inner[i+1] != '=') {
				split = i
				break scan
			}
		case ':':
			if depth == 0 {
				split = i
				break scan
			}
		}
	}

	exprText, rest := inner[:split], inner[split:]
	fv := &ast.FormattedValue{Loc: loc}
	if strings.HasPrefix(rest, "!") {
		if len(rest) < 2 {
			p.errorf(tok, "f-string: missing conversion character")
		}
		fv.Conversion = rune(rest[1])
		rest = rest[2:]
	}
	if strings.HasPrefix(rest, ":") {
		fv.FormatSpec = rest[1:]
	}

	var parts []ast.Expr
	trimmed := strings.TrimRight(exprText, " ")
	if strings.HasSuffix(trimmed, "=") && !hasAnySuffix(trimmed, "==", "!=", "<=", ">=") {
		parts = append(parts, &ast.Constant{Loc: loc, Kind: ast.ConstStr, Str: exprText})
		exprText = trimmed[:len(trimmed)-1]
		if fv.Conversion == 0 && fv.FormatSpec == "" {
			fv.Conversion = 'r'
		}
	}
	if strings.TrimSpace(exprText) == "" {
		p.errorf(tok, "f-string: empty expression not allowed")
	}
	e, err := ParseExpr(exprText)
	if err != nil {
		p.errorf(tok, "f-string: %v", err)
	}
	fv.Value = e
	return append(parts, fv)
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
