package asm

import "testing"

func TestLexer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenKind
		lex   []string
	}{
		{
			"instruction",
			"t2 = fadd t0.abs, -0x10 # comment\n",
			[]TokenKind{TokenIdent, TokenEqual, TokenIdent, TokenIdent, TokenDot, TokenIdent,
				TokenComma, TokenInt, TokenNewline, TokenEOF},
			[]string{"t2", "=", "fadd", "t0", ".", "abs", ",", "-0x10", "\n", ""},
		},
		{
			"float and unpacked int",
			"0.5 5.abs -2.25e1",
			[]TokenKind{TokenFloat, TokenInt, TokenDot, TokenIdent, TokenFloat, TokenEOF},
			[]string{"0.5", "5", ".", "abs", "-2.25e1", ""},
		},
		{
			"label and uniform",
			"b1:\n[const 7]",
			[]TokenKind{TokenIdent, TokenColon, TokenNewline, TokenLBracket, TokenIdent, TokenInt,
				TokenRBracket, TokenEOF},
			[]string{"b1", ":", "\n", "[", "const", "7", "]", ""},
		},
		{
			"null and invalid",
			"- $",
			[]TokenKind{TokenMinus, TokenError, TokenEOF},
			[]string{"-", "$", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := NewLexer(tt.input).Tokenize()
			if len(tokens) != len(tt.want) {
				t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(tt.want), tokens)
			}
			for i, tok := range tokens {
				if tok.Kind != tt.want[i] || tok.Lexeme != tt.lex[i] {
					t.Errorf("token %d = %v %q, want %v %q", i, tok.Kind, tok.Lexeme, tt.want[i], tt.lex[i])
				}
			}
		})
	}
}

func TestLexerPositions(t *testing.T) {
	tokens := NewLexer("x = eidx\n  tlb = mov x").Tokenize()
	tlb := tokens[4]
	if tlb.Lexeme != "tlb" || tlb.Line != 2 || tlb.Column != 3 {
		t.Errorf("tlb at %d:%d (%q), want 2:3", tlb.Line, tlb.Column, tlb.Lexeme)
	}
}
