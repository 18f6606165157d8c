package asm

// Lexer tokenizes textual VIR.
type Lexer struct {
	source string
	pos    int
	line   int
	column int
	start  int
	startC int
	tokens []Token
}

// NewLexer creates a new lexer for the given source.
func NewLexer(source string) *Lexer {
	return &Lexer{
		source: source,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, len(source)/3+1),
	}
}

// Tokenize returns all tokens from the source. Invalid characters become
// TokenError tokens for the parser to report.
func (l *Lexer) Tokenize() []Token {
	for !l.isAtEnd() {
		l.start = l.pos
		l.startC = l.column
		l.scanToken()
	}
	l.tokens = append(l.tokens, Token{Kind: TokenEOF, Line: l.line, Column: l.column})
	return l.tokens
}

func (l *Lexer) scanToken() {
	c := l.advance()

	switch c {
	case ' ', '\t', '\r':
	case '\n':
		l.addToken(TokenNewline)
		l.line++
		l.column = 1
	case '#':
		for l.peek() != '\n' && !l.isAtEnd() {
			l.advance()
		}
	case '=':
		l.addToken(TokenEqual)
	case ',':
		l.addToken(TokenComma)
	case '.':
		l.addToken(TokenDot)
	case ':':
		l.addToken(TokenColon)
	case '[':
		l.addToken(TokenLBracket)
	case ']':
		l.addToken(TokenRBracket)
	case '-':
		if isDigit(l.peek()) {
			l.advance()
			l.number()
		} else {
			l.addToken(TokenMinus)
		}
	default:
		switch {
		case isDigit(c):
			l.number()
		case isAlpha(c):
			for isAlpha(l.peek()) || isDigit(l.peek()) {
				l.advance()
			}
			l.addToken(TokenIdent)
		default:
			l.addToken(TokenError)
		}
	}
}

func (l *Lexer) number() {
	if l.source[l.pos-1] == '0' && (l.peek() == 'x' || l.peek() == 'X') {
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
		l.addToken(TokenInt)
		return
	}

	for isDigit(l.peek()) {
		l.advance()
	}
	// "5.abs" is an integer with an unpack modifier.
	if l.peek() != '.' || !isDigit(l.peekNext()) {
		l.addToken(TokenInt)
		return
	}

	l.advance()
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	l.addToken(TokenFloat)
}

func (l *Lexer) addToken(kind TokenKind) {
	l.tokens = append(l.tokens, Token{
		Kind:   kind,
		Lexeme: l.source[l.start:l.pos],
		Line:   l.line,
		Column: l.startC,
	})
}

func (l *Lexer) advance() byte {
	c := l.source[l.pos]
	l.pos++
	l.column++
	return c
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
