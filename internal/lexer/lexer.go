package lexer

import "github.com/slate-lang/slate/internal/token"

// Lexer converts source text into a stream of tokens on demand.
type Lexer struct {
	input string
	start int // start of the token being scanned
	pos   int // current position in bytes

	line      int
	column    int
	startLine int
	startCol  int
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	return &Lexer{
		input:  input,
		line:   1,
		column: 1,
	}
}

// Scan returns the next token from the input. After EOF it keeps
// returning EOF.
func (l *Lexer) Scan() token.Token {
	l.skipWhitespace()

	l.start = l.pos
	l.startLine = l.line
	l.startCol = l.column

	if l.atEnd() {
		return l.makeToken(token.EOF)
	}

	c := l.advance()

	if isAlpha(c) {
		return l.identifier()
	}
	if isDigit(c) {
		return l.number()
	}

	switch c {
	case '(':
		return l.makeToken(token.LeftParen)
	case ')':
		return l.makeToken(token.RightParen)
	case '{':
		return l.makeToken(token.LeftBrace)
	case '}':
		return l.makeToken(token.RightBrace)
	case '[':
		return l.makeToken(token.LeftBracket)
	case ']':
		return l.makeToken(token.RightBracket)
	case ',':
		return l.makeToken(token.Comma)
	case '.':
		return l.makeToken(token.Dot)
	case ':':
		return l.makeToken(token.Colon)
	case ';':
		return l.makeToken(token.Semicolon)
	case '-':
		return l.makeToken(token.Minus)
	case '+':
		return l.makeToken(token.Plus)
	case '/':
		return l.makeToken(token.Slash)
	case '*':
		return l.makeToken(token.Star)
	case '!':
		if l.match('=') {
			return l.makeToken(token.BangEqual)
		}
		return l.makeToken(token.Bang)
	case '=':
		if l.match('=') {
			return l.makeToken(token.EqualEqual)
		}
		return l.makeToken(token.Equal)
	case '<':
		if l.match('=') {
			return l.makeToken(token.LessEqual)
		}
		return l.makeToken(token.Less)
	case '>':
		if l.match('=') {
			return l.makeToken(token.GreaterEqual)
		}
		return l.makeToken(token.Greater)
	case '"':
		return l.stringToken()
	}

	return l.errorToken("Unexpected character.")
}

func (l *Lexer) skipWhitespace() {
	for {
		switch l.peek() {
		case ' ', '\r', '\t':
			l.advance()
		case '\n':
			l.advance()
		case '/':
			if l.peekNext() == '/' {
				for l.peek() != '\n' && !l.atEnd() {
					l.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) identifier() token.Token {
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	return l.makeToken(token.LookupIdent(l.input[l.start:l.pos]))
}

func (l *Lexer) number() token.Token {
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	return l.makeToken(token.Number)
}

func (l *Lexer) stringToken() token.Token {
	for l.peek() != '"' && !l.atEnd() {
		l.advance()
	}
	if l.atEnd() {
		return l.errorToken("Unterminated string.")
	}
	l.advance() // closing quote
	return l.makeToken(token.String)
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) advance() byte {
	c := l.input[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return c
}

func (l *Lexer) match(expected byte) bool {
	if l.atEnd() || l.input[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) makeToken(typ token.Type) token.Token {
	return token.Token{
		Type:   typ,
		Lexeme: l.input[l.start:l.pos],
		Line:   l.startLine,
		Column: l.startCol,
	}
}

func (l *Lexer) errorToken(message string) token.Token {
	return token.Token{
		Type:   token.Error,
		Lexeme: message,
		Line:   l.startLine,
		Column: l.startCol,
	}
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
