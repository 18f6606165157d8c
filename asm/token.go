// Package asm parses textual VIR into a shader the v3d backend can compile.
//
// The syntax is line oriented, one instruction per line:
//
//	.stage fragment
//	    x = eidx
//	    y = fadd.pushz x.abs, 0.5
//	    c0, c1 = tmuload y
//	    br.anya done
//	body:
//	    tlb = mov c0
//	done:
//	    tlb = fmov c1
//
// Destinations and sources are value names, physical registers (rf3),
// magic registers (tlb, tmud, r0) or "-" for none. Integer and float
// literals are loaded as constant uniforms. Blocks fall through to the
// next label unless they end in an unconditional branch. Results of
// tmuload are collected automatically before their first use and at the
// end of each block.
package asm

import "fmt"

// TokenKind represents the type of token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenError
	TokenNewline

	// Literals
	TokenIdent
	TokenInt
	TokenFloat

	// Punctuation
	TokenEqual    // =
	TokenComma    // ,
	TokenDot      // .
	TokenColon    // :
	TokenMinus    // -
	TokenLBracket // [
	TokenRBracket // ]
)

var tokenNames = [...]string{
	TokenEOF:      "end of file",
	TokenError:    "invalid character",
	TokenNewline:  "end of line",
	TokenIdent:    "identifier",
	TokenInt:      "integer",
	TokenFloat:    "float",
	TokenEqual:    "'='",
	TokenComma:    "','",
	TokenDot:      "'.'",
	TokenColon:    "':'",
	TokenMinus:    "'-'",
	TokenLBracket: "'['",
	TokenRBracket: "']'",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("token(%d)", uint8(k))
}

// Token represents a lexical token.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Line   int
	Column int
}

// Position represents a position in source code.
type Position struct {
	Line   int
	Column int
}

func (t Token) pos() Position { return Position{Line: t.Line, Column: t.Column} }
