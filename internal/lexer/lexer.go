// Package lexer implements the tokenizer for the supported Python subset.
//
// Indentation is turned into INDENT/DEDENT tokens; newlines inside
// brackets and after a backslash are joined. String literals are decoded
// here except f-strings, whose raw body is handed to the parser.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pyrite-lang/pyrite/internal/position"
)

// TokenType represents the type of a token
type TokenType int

// String returns a string representation of the token type
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(tt))
}

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenIndent
	TokenDedent
	TokenName
	TokenKeyword
	TokenInt
	TokenFloat
	TokenString
	TokenOp
)

var tokenNames = map[TokenType]string{
	TokenEOF:     "EOF",
	TokenNewline: "NEWLINE",
	TokenIndent:  "INDENT",
	TokenDedent:  "DEDENT",
	TokenName:    "NAME",
	TokenKeyword: "KEYWORD",
	TokenInt:     "INT",
	TokenFloat:   "FLOAT",
	TokenString:  "STRING",
	TokenOp:      "OP",
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true, "elif": true,
	"else": true, "except": true, "finally": true, "for": true, "from": true,
	"global": true, "if": true, "import": true, "in": true, "is": true,
	"lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true,
	"yield": true,
}

// IsKeyword reports whether s is a reserved word.
func IsKeyword(s string) bool { return keywords[s] }

// operators ordered longest first for maximal munch.
var operators = []string{
	"**=", "//=", ">>=", "<<=", "...",
	"->", ":=", "**", "//", "<<", ">>", "<=", ">=", "==", "!=",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
	"+", "-", "*", "/", "%", "@", "&", "|", "^", "~", "<", ">",
	"(", ")", "[", "]", "{", "}", ",", ":", ".", ";", "=",
}

// Token is a lexical token.
type Token struct {
	Type TokenType
	// Literal is the source text (identifier, operator, number) or the
	// decoded value for strings.
	Literal string
	// Prefix holds lowercase string prefix letters ("f", "rb", ...).
	Prefix string
	Span   position.Span
}

func (t Token) String() string {
	switch t.Type {
	case TokenNewline, TokenIndent, TokenDedent, TokenEOF:
		return t.Type.String()
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Is reports whether t is the operator or keyword lit.
func (t Token) Is(lit string) bool {
	return (t.Type == TokenOp || t.Type == TokenKeyword) && t.Literal == lit
}

// Error is a tokenization failure.
type Error struct {
	Pos     position.Position
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Lexer tokenizes a source file.
type Lexer struct {
	src     *position.SourceFile
	input   string
	pos     int
	depth   int
	indents []int
	atBOL   bool
	pending []Token
	done    bool
	// inLine is set once the current logical line produced a token.
	inLine bool
}

// New creates a lexer over input.
func New(input, filename string) *Lexer {
	return &Lexer{
		src:     position.NewSourceFile(filename, input),
		input:   input,
		indents: []int{0},
		atBOL:   true,
	}
}

// Source returns the file the lexer reads.
func (l *Lexer) Source() *position.SourceFile { return l.src }

// Tokenize returns every token up to and including EOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var toks []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks, nil
		}
	}
}

func (l *Lexer) errorf(offset int, format string, args ...interface{}) error {
	return &Error{Pos: l.src.PositionFor(offset), Message: fmt.Sprintf(format, args...)}
}

func (l *Lexer) token(tt TokenType, lit string, start int) Token {
	return Token{
		Type:    tt,
		Literal: lit,
		Span:    position.Span{Start: l.src.PositionFor(start), End: l.src.PositionFor(l.pos)},
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() (Token, error) {
	tok, err := l.next()
	if err == nil {
		switch tok.Type {
		case TokenNewline:
			l.inLine = false
		case TokenIndent, TokenDedent, TokenEOF:
		default:
			l.inLine = true
		}
	}
	return tok, err
}

func (l *Lexer) next() (Token, error) {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok, nil
	}
	if l.done {
		return l.token(TokenEOF, "", l.pos), nil
	}

	if l.atBOL && l.depth == 0 {
		l.atBOL = false
		if err := l.readIndentation(); err != nil {
			return Token{}, err
		}
		if len(l.pending) > 0 {
			return l.next()
		}
	}

	l.skipSpaces()
	if l.pos >= len(l.input) {
		return l.finish(), nil
	}

	ch := l.input[l.pos]
	start := l.pos
	switch {
	case ch == '\n':
		l.pos++
		if l.depth > 0 {
			return l.next()
		}
		l.atBOL = true
		return l.token(TokenNewline, "", start), nil
	case ch == '#':
		for l.pos < len(l.input) && l.input[l.pos] != '\n' {
			l.pos++
		}
		return l.next()
	case isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])):
		return l.readNumber()
	case isIdentStart(l.peekRune()):
		ident := l.readIdentifier()
		if q := l.stringQuoteAfter(ident); q {
			return l.readString(strings.ToLower(ident), start)
		}
		if keywords[ident] {
			return l.token(TokenKeyword, ident, start), nil
		}
		return l.token(TokenName, ident, start), nil
	case ch == '"' || ch == '\'':
		return l.readString("", start)
	}

	for _, op := range operators {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			switch op {
			case "(", "[", "{":
				l.depth++
			case ")", "]", "}":
				if l.depth > 0 {
					l.depth--
				}
			}
			return l.token(TokenOp, op, start), nil
		}
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return Token{}, l.errorf(l.pos, "unexpected character %q", r)
}

// finish emits the trailing NEWLINE, DEDENTs and EOF.
func (l *Lexer) finish() Token {
	l.done = true
	var toks []Token
	if l.inLine {
		toks = append(toks, l.token(TokenNewline, "", l.pos))
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		toks = append(toks, l.token(TokenDedent, "", l.pos))
	}
	toks = append(toks, l.token(TokenEOF, "", l.pos))
	l.pending = append(l.pending, toks[1:]...)
	return toks[0]
}

// readIndentation measures the indentation of the next logical line and
// queues INDENT/DEDENT tokens. Blank and comment-only lines are skipped.
func (l *Lexer) readIndentation() error {
	for {
		width, i := 0, l.pos
	scan:
		for ; i < len(l.input); i++ {
			switch l.input[i] {
			case ' ':
				width++
			case '\t':
				width = (width/8 + 1) * 8
			case '\f':
				width = 0
			default:
				break scan
			}
		}
		if i >= len(l.input) {
			l.pos = i
			return nil
		}
		switch l.input[i] {
		case '\n':
			l.pos = i + 1
			continue
		case '\r':
			if i+1 < len(l.input) && l.input[i+1] == '\n' {
				l.pos = i + 2
				continue
			}
		case '#':
			for i < len(l.input) && l.input[i] != '\n' {
				i++
			}
			l.pos = i
			if l.pos < len(l.input) {
				l.pos++
			}
			continue
		}
		l.pos = i
		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			l.pending = append(l.pending, l.token(TokenIndent, "", i))
		case width < top:
			for width < l.indents[len(l.indents)-1] {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, l.token(TokenDedent, "", i))
			}
			if width != l.indents[len(l.indents)-1] {
				return l.errorf(i, "unindent does not match any outer indentation level")
			}
		}
		return nil
	}
}

func (l *Lexer) skipSpaces() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\f', '\r':
			l.pos++
		case '\\':
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\n' {
				l.pos += 2
				continue
			}
			if strings.HasPrefix(l.input[l.pos+1:], "\r\n") {
				l.pos += 3
				continue
			}
			return
		default:
			return
		}
	}
}

func (l *Lexer) peekRune() rune {
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	return l.input[start:l.pos]
}

// stringQuoteAfter reports whether ident is a string prefix immediately
// followed by a quote.
func (l *Lexer) stringQuoteAfter(ident string) bool {
	if l.pos >= len(l.input) || (l.input[l.pos] != '"' && l.input[l.pos] != '\'') {
		return false
	}
	switch strings.ToLower(ident) {
	case "r", "b", "f", "u", "rb", "br", "fr", "rf":
		return true
	}
	return false
}

func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	if l.input[l.pos] == '0' && l.pos+1 < len(l.input) && strings.ContainsRune("xXoObB", rune(l.input[l.pos+1])) {
		l.pos += 2
		for l.pos < len(l.input) && (isHexDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
			l.pos++
		}
		text := strings.ReplaceAll(l.input[start:l.pos], "_", "")
		if _, err := strconv.ParseInt(text, 0, 64); err != nil {
			return Token{}, l.errorf(start, "invalid integer literal %q", l.input[start:l.pos])
		}
		return l.token(TokenInt, text, start), nil
	}

	isFloat := false
	l.digits()
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		isFloat = true
		l.pos++
		l.digits()
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			isFloat = true
			l.digits()
		} else {
			l.pos = save
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'j' || l.input[l.pos] == 'J') {
		return Token{}, l.errorf(start, "complex literals are not supported")
	}
	text := strings.ReplaceAll(l.input[start:l.pos], "_", "")
	if isFloat {
		return l.token(TokenFloat, text, start), nil
	}
	if _, err := strconv.ParseInt(text, 10, 64); err != nil {
		return Token{}, l.errorf(start, "integer literal %s overflows 64 bits", text)
	}
	return l.token(TokenInt, text, start), nil
}

func (l *Lexer) digits() {
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
		l.pos++
	}
}

func (l *Lexer) readString(prefix string, start int) (Token, error) {
	quote := l.input[l.pos]
	triple := strings.HasPrefix(l.input[l.pos:], strings.Repeat(string(quote), 3))
	delim := string(quote)
	if triple {
		delim = strings.Repeat(string(quote), 3)
	}
	l.pos += len(delim)
	bodyStart := l.pos
	for {
		if l.pos >= len(l.input) {
			return Token{}, l.errorf(start, "unterminated string literal")
		}
		c := l.input[l.pos]
		if c == '\\' {
			l.pos += 2
			continue
		}
		if c == '\n' && !triple {
			return Token{}, l.errorf(start, "unterminated string literal")
		}
		if strings.HasPrefix(l.input[l.pos:], delim) {
			break
		}
		l.pos++
	}
	body := l.input[bodyStart:l.pos]
	l.pos += len(delim)

	raw := strings.Contains(prefix, "r")
	value := body
	if !raw && !strings.Contains(prefix, "f") {
		decoded, err := Unescape(body)
		if err != nil {
			return Token{}, l.errorf(start, "%v", err)
		}
		value = decoded
	}
	tok := l.token(TokenString, value, start)
	tok.Prefix = strings.ReplaceAll(prefix, "u", "")
	return tok, nil
}

// Unescape decodes backslash escapes in a non-raw string body.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, "\\") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
		case '\\', '\'', '"':
			b.WriteByte(e)
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'x', 'u', 'U':
			n := map[byte]int{'x': 2, 'u': 4, 'U': 8}[e]
			if i+1+n > len(s) {
				return "", fmt.Errorf("truncated \\%c escape", e)
			}
			v, err := strconv.ParseUint(s[i+1:i+1+n], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid \\%c escape", e)
			}
			b.WriteRune(rune(v))
			i += n
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String(), nil
}

func isDigit(ch byte) bool    { return '0' <= ch && ch <= '9' }
func isHexDigit(ch byte) bool { return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F') }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentPart(r rune) bool  { return isIdentStart(r) || unicode.IsDigit(r) }
