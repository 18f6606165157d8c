package asm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

// sigMnemonics are the instructions written by the signal they raise.
var sigMnemonics = map[string]func(*qpu.Sig){
	"nop":       func(*qpu.Sig) {},
	"ldunif":    func(s *qpu.Sig) { s.Ldunif = true },
	"ldunifrf":  func(s *qpu.Sig) { s.Ldunifrf = true },
	"ldunifa":   func(s *qpu.Sig) { s.Ldunifa = true },
	"ldunifarf": func(s *qpu.Sig) { s.Ldunifarf = true },
	"ldtmu":     func(s *qpu.Sig) { s.Ldtmu = true },
	"ldvary":    func(s *qpu.Sig) { s.Ldvary = true },
	"ldvpm":     func(s *qpu.Sig) { s.Ldvpm = true },
	"ldtlb":     func(s *qpu.Sig) { s.Ldtlb = true },
	"ldtlbu":    func(s *qpu.Sig) { s.Ldtlbu = true },
}

// extraSigMods are the signals accepted as instruction modifiers.
var extraSigMods = map[string]func(*qpu.Sig){
	"thrsw":  func(s *qpu.Sig) { s.Thrsw = true },
	"ldtmu":  func(s *qpu.Sig) { s.Ldtmu = true },
	"ldvary": func(s *qpu.Sig) { s.Ldvary = true },
	"wrtmuc": func(s *qpu.Sig) { s.Wrtmuc = true },
	"ucb":    func(s *qpu.Sig) { s.Ucb = true },
	"rot":    func(s *qpu.Sig) { s.Rotate = true },
}

// Parse parses textual VIR. The name labels error messages.
func Parse(name, source string) (*Program, error) {
	p := &parser{
		name:    name,
		source:  source,
		tokens:  NewLexer(source).Tokenize(),
		labels:  make(map[string]bool),
		defined: make(map[string]bool),
		prog:    &Program{Name: name, stage: vir.StageFragment},
	}
	p.cur = &Block{Pos: Position{Line: 1, Column: 1}}
	p.prog.Blocks = append(p.prog.Blocks, p.cur)

	for !p.check(TokenEOF) {
		p.line()
	}
	p.resolveLabels()

	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return p.prog, nil
}

type labelRef struct {
	name string
	pos  Position
}

type parser struct {
	name   string
	source string
	tokens []Token
	pos    int
	errs   SourceErrors

	prog *Program
	cur  *Block

	labels  map[string]bool
	refs    []labelRef
	defined map[string]bool
}

// errLine is panicked to abandon the current line.
type errLine struct{}

func (p *parser) errorf(pos Position, format string, args ...any) {
	p.errs = append(p.errs, &SourceError{
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
		File:    p.name,
		Source:  p.source,
	})
}

// fail records an error and abandons the line.
func (p *parser) fail(pos Position, format string, args ...any) {
	p.errorf(pos, format, args...)
	panic(errLine{})
}

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) check(kind TokenKind) bool { return p.peek().Kind == kind }

func (p *parser) advance() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) match(kind TokenKind) bool {
	if p.check(kind) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(kind TokenKind, what string) Token {
	t := p.peek()
	if t.Kind != kind {
		if t.Kind == TokenError {
			p.fail(t.pos(), "unexpected character %q", t.Lexeme)
		}
		p.fail(t.pos(), "expected %s, found %v", what, t.Kind)
	}
	return p.advance()
}

func (p *parser) skipLine() {
	for !p.check(TokenNewline) && !p.check(TokenEOF) {
		p.advance()
	}
	p.match(TokenNewline)
}

func (p *parser) endLine() {
	if !p.check(TokenNewline) && !p.check(TokenEOF) {
		t := p.peek()
		p.fail(t.pos(), "unexpected %v at end of instruction", t.Kind)
	}
	p.match(TokenNewline)
}

// line parses one line, recovering at the next one on error.
func (p *parser) line() {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(errLine); !ok {
				panic(r)
			}
			p.skipLine()
		}
	}()

	switch {
	case p.match(TokenNewline):
	case p.check(TokenDot):
		p.directive()
	case p.check(TokenIdent) && p.peekAt(1).Kind == TokenColon:
		p.label()
	default:
		p.statement()
	}
}

func (p *parser) directive() {
	p.advance()
	name := p.expect(TokenIdent, "directive name")
	switch name.Lexeme {
	case "stage":
		t := p.expect(TokenIdent, "stage name")
		stage, ok := vir.ParseStage(t.Lexeme)
		if !ok {
			p.fail(t.pos(), "unknown stage %q", t.Lexeme)
		}
		p.prog.stage = stage
	case "threads":
		t := p.expect(TokenInt, "thread count")
		n, err := strconv.Atoi(t.Lexeme)
		if err != nil || (n != 1 && n != 2 && n != 4) {
			p.fail(t.pos(), "invalid thread count %s", t.Lexeme)
		}
		p.prog.Threads = n
	default:
		p.fail(name.pos(), "unknown directive .%s", name.Lexeme)
	}
	p.endLine()
}

func (p *parser) label() {
	t := p.advance()
	p.advance()
	if p.labels[t.Lexeme] {
		p.fail(t.pos(), "label %q redefined", t.Lexeme)
	}
	p.labels[t.Lexeme] = true

	if p.cur.Label == "" && len(p.cur.Stmts) == 0 && len(p.prog.Blocks) == 1 {
		p.cur.Label = t.Lexeme
		p.cur.Pos = t.pos()
	} else {
		p.cur = &Block{Label: t.Lexeme, Pos: t.pos()}
		p.prog.Blocks = append(p.prog.Blocks, p.cur)
	}
	p.endLine()
}

func (p *parser) resolveLabels() {
	for _, r := range p.refs {
		if !p.labels[r.name] {
			p.errorf(r.pos, "undefined label %q", r.name)
		}
	}
}

// hasAssignment reports whether the current line contains '='.
func (p *parser) hasAssignment() bool {
	for i := p.pos; i < len(p.tokens); i++ {
		switch p.tokens[i].Kind {
		case TokenEqual:
			return true
		case TokenNewline, TokenEOF:
			return false
		}
	}
	return false
}

func (p *parser) statement() {
	start := p.peek().pos()
	if last := p.cur.last(); last != nil && last.Kind == StmtBranch {
		p.fail(start, "instruction after branch; start a new block with a label")
	}

	var s Stmt
	if p.hasAssignment() {
		for {
			s.Dsts = append(s.Dsts, p.dst())
			if !p.match(TokenComma) {
				break
			}
		}
		p.expect(TokenEqual, "'='")
	}
	s.Pos = p.peek().pos()

	op := p.expect(TokenIdent, "operation")
	var mods []Token
	for p.match(TokenDot) {
		mods = append(mods, p.expect(TokenIdent, "modifier"))
	}

	switch op.Lexeme {
	case "br":
		p.branch(&s, mods)
	case "flush":
		s.Kind = StmtFlush
		p.noMods(mods)
		p.wantDsts(&s, op, 0, 0)
	case "tmuload":
		s.Kind = StmtTMULoad
		p.noMods(mods)
		p.wantDsts(&s, op, 1, 4)
		s.Srcs = p.srcs()
		p.wantSrcs(&s, op, 1, 1)
	case "tmustore":
		s.Kind = StmtTMUStore
		p.noMods(mods)
		p.wantDsts(&s, op, 0, 0)
		s.Srcs = p.srcs()
		p.wantSrcs(&s, op, 2, 5)
	case "uniform":
		s.Kind = StmtUniform
		p.noMods(mods)
		p.wantDsts(&s, op, 1, 1)
		s.HasUniform = true
		s.Uniform = p.uniformSlot()
	default:
		p.instruction(&s, op, mods)
	}
	p.endLine()

	p.checkValues(&s)
	p.cur.Stmts = append(p.cur.Stmts, s)
}

func (p *parser) branch(s *Stmt, mods []Token) {
	s.Kind = StmtBranch
	if len(s.Dsts) > 0 {
		p.fail(s.Dsts[0].Pos, "branch has no destination")
	}
	for i, m := range mods {
		cond, ok := qpu.ParseBranchCond(m.Lexeme)
		if !ok || i > 0 {
			p.fail(m.pos(), "invalid branch condition %q", m.Lexeme)
		}
		s.BranchCond = cond
	}
	t := p.expect(TokenIdent, "branch target")
	s.Target = t.Lexeme
	p.refs = append(p.refs, labelRef{name: t.Lexeme, pos: t.pos()})
}

func (p *parser) instruction(s *Stmt, op Token, mods []Token) {
	if set, ok := sigMnemonics[op.Lexeme]; ok {
		s.Kind = StmtSig
		set(&s.Sig)
		for _, m := range mods {
			p.extraSig(s, m)
		}
		if op.Lexeme == "nop" {
			p.wantDsts(s, op, 0, 0)
		} else {
			p.wantDsts(s, op, 0, 1)
		}
		if p.check(TokenLBracket) {
			s.HasUniform = true
			s.Uniform = p.uniformSlot()
		}
		if (s.Sig.Ldunif || s.Sig.Ldunifrf) && !s.HasUniform {
			p.fail(op.pos(), "%s needs a uniform: %s [contents data]", op.Lexeme, op.Lexeme)
		}
		return
	}

	s.Kind = StmtALU
	nsrc, hasDst := 0, false
	if a, ok := qpu.ParseAddOp(op.Lexeme); ok {
		s.AddOp = a
		nsrc, hasDst = a.NumSrc(), a.HasDst()
	} else if m, ok := qpu.ParseMulOp(op.Lexeme); ok {
		s.IsMul = true
		s.MulOp = m
		nsrc, hasDst = m.NumSrc(), m.HasDst()
	} else {
		p.fail(op.pos(), "unknown operation %q", op.Lexeme)
	}

	for _, m := range mods {
		p.aluMod(s, m)
	}
	if hasDst {
		p.wantDsts(s, op, 0, 1)
	} else {
		p.wantDsts(s, op, 0, 0)
	}

	if !p.check(TokenNewline) && !p.check(TokenEOF) && !p.check(TokenLBracket) {
		s.Srcs = p.srcs()
	}
	p.wantSrcs(s, op, nsrc, nsrc)
	if p.check(TokenLBracket) {
		s.HasUniform = true
		s.Uniform = p.uniformSlot()
	}
}

func (p *parser) aluMod(s *Stmt, m Token) {
	dup := func(set bool) {
		if set {
			p.fail(m.pos(), "duplicate modifier %q", m.Lexeme)
		}
	}
	if c, ok := qpu.ParseCond(m.Lexeme); ok {
		dup(s.Cond != qpu.CondNone)
		s.Cond = c
	} else if pf, ok := qpu.ParsePF(m.Lexeme); ok {
		dup(s.PF != qpu.PFNone || s.UF != qpu.UFNone)
		s.PF = pf
	} else if uf, ok := qpu.ParseUF(m.Lexeme); ok {
		dup(s.PF != qpu.PFNone || s.UF != qpu.UFNone)
		s.UF = uf
	} else if pk, ok := qpu.ParsePack(m.Lexeme); ok {
		dup(s.Pack != qpu.PackNone)
		s.Pack = pk
	} else {
		p.extraSig(s, m)
	}
}

func (p *parser) extraSig(s *Stmt, m Token) {
	set, ok := extraSigMods[m.Lexeme]
	if !ok {
		p.fail(m.pos(), "unknown modifier %q", m.Lexeme)
	}
	set(&s.Sig)
}

func (p *parser) noMods(mods []Token) {
	if len(mods) > 0 {
		p.fail(mods[0].pos(), "unexpected modifier %q", mods[0].Lexeme)
	}
}

func (p *parser) wantDsts(s *Stmt, op Token, lo, hi int) {
	n := len(s.Dsts)
	switch {
	case n >= lo && n <= hi:
		return
	case hi == 0:
		p.fail(op.pos(), "%s has no destination", op.Lexeme)
	case lo == hi:
		p.fail(op.pos(), "%s takes %d destination(s), got %d", op.Lexeme, lo, n)
	default:
		p.fail(op.pos(), "%s takes %d to %d destinations, got %d", op.Lexeme, lo, hi, n)
	}
}

func (p *parser) wantSrcs(s *Stmt, op Token, lo, hi int) {
	n := len(s.Srcs)
	switch {
	case n >= lo && n <= hi:
		return
	case lo == hi:
		p.fail(op.pos(), "%s takes %d source(s), got %d", op.Lexeme, lo, n)
	default:
		p.fail(op.pos(), "%s takes %d to %d sources, got %d", op.Lexeme, lo, hi, n)
	}
}

// checkValues enforces that every value is written before it is read, in
// source order, and that macros defining values get fresh names.
func (p *parser) checkValues(s *Stmt) {
	for _, src := range s.Srcs {
		if src.Kind == OperandValue && !p.defined[src.Name] {
			p.errorf(src.Pos, "value %q used before it is written", src.Name)
		}
	}
	for _, d := range s.Dsts {
		if d.Kind != OperandValue {
			if s.Kind == StmtTMULoad || s.Kind == StmtUniform {
				p.errorf(d.Pos, "destination must be a value name")
			}
			continue
		}
		if (s.Kind == StmtTMULoad || s.Kind == StmtUniform) && p.defined[d.Name] {
			p.errorf(d.Pos, "value %q already written", d.Name)
		}
		p.defined[d.Name] = true
	}
}

func (p *parser) srcs() []Operand {
	var out []Operand
	for {
		out = append(out, p.src())
		if !p.match(TokenComma) {
			return out
		}
	}
}

func (p *parser) src() Operand {
	o := p.operand()
	if p.match(TokenDot) {
		t := p.expect(TokenIdent, "unpack modifier")
		u, ok := qpu.ParseUnpack(t.Lexeme)
		if !ok {
			p.fail(t.pos(), "unknown unpack modifier %q", t.Lexeme)
		}
		o.Unpack = u
	}
	return o
}

func (p *parser) dst() Operand {
	o := p.operand()
	if o.Kind == OperandImm {
		p.fail(o.Pos, "cannot write to a literal")
	}
	return o
}

func (p *parser) operand() Operand {
	t := p.peek()
	o := Operand{Pos: t.pos()}
	switch t.Kind {
	case TokenMinus:
		p.advance()
	case TokenInt, TokenFloat:
		o.Kind = OperandImm
		o.Index = p.literal()
	case TokenIdent:
		p.advance()
		if n, ok := physReg(t.Lexeme); ok {
			o.Kind, o.Index = OperandPhys, n
		} else if w, ok := qpu.ParseWaddr(t.Lexeme); ok {
			o.Kind, o.Index = OperandMagic, uint32(w)
		} else {
			o.Kind, o.Name = OperandValue, t.Lexeme
		}
	default:
		p.expect(TokenIdent, "operand")
	}
	return o
}

func physReg(name string) (uint32, bool) {
	rest, ok := strings.CutPrefix(name, "rf")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 8)
	if err != nil || n >= qpu.PhysCount {
		return 0, false
	}
	return uint32(n), true
}

// literal parses an integer or float literal into its 32-bit pattern.
func (p *parser) literal() uint32 {
	t := p.advance()
	switch t.Kind {
	case TokenInt:
		v, err := strconv.ParseInt(t.Lexeme, 0, 64)
		if err != nil || v < math.MinInt32 || v > math.MaxUint32 {
			p.fail(t.pos(), "integer %s out of range", t.Lexeme)
		}
		return uint32(v)
	case TokenFloat:
		f, err := strconv.ParseFloat(t.Lexeme, 32)
		if err != nil {
			p.fail(t.pos(), "invalid float %s", t.Lexeme)
		}
		return math.Float32bits(float32(f))
	}
	p.fail(t.pos(), "expected a number, found %v", t.Kind)
	return 0
}

// uniformSlot parses "[contents data]", or "contents data" after the
// uniform macro.
func (p *parser) uniformSlot() vir.UniformSlot {
	bracket := p.match(TokenLBracket)
	t := p.expect(TokenIdent, "uniform contents")
	contents, ok := vir.ParseUniformContents(t.Lexeme)
	if !ok {
		p.fail(t.pos(), "unknown uniform contents %q", t.Lexeme)
	}
	data := p.literal()
	if bracket {
		p.expect(TokenRBracket, "']'")
	}
	return vir.UniformSlot{Contents: contents, Data: data}
}
