// Package compiler lowers source text straight into bytecode in a single
// pass, Pratt-style. There is no AST; expression nesting is carried by the
// call stack and statement emission happens as tokens are consumed.
package compiler

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/lexer"
	"github.com/slate-lang/slate/internal/object"
	"github.com/slate-lang/slate/internal/token"
	"github.com/slate-lang/slate/internal/value"
)

// ErrCompile is returned when any diagnostic was reported. No partial
// function is returned alongside it.
var ErrCompile = errors.New("compile error")

// MaxLocals bounds the locals of one function, including the reserved
// slot 0 for the callee.
const MaxLocals = 256

const maxJump = 0xFFFF

// Compile turns src into a top-level script function (arity 0, no name).
// Diagnostics go to errw.
func Compile(heap *object.Heap, source *bytecode.Source, src string, errw io.Writer) (*object.Function, error) {
	p := &parser{
		lex:    lexer.New(src),
		heap:   heap,
		source: source,
		errw:   errw,
	}
	p.fc = newFuncCompiler(nil, typeScript, source)

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	fn := p.endCompiler()

	if p.hadError {
		return nil, ErrCompile
	}
	return fn, nil
}

type parser struct {
	lex    *lexer.Lexer
	heap   *object.Heap
	source *bytecode.Source
	errw   io.Writer

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool

	fc *funcCompiler
}

type funcType uint8

const (
	typeScript funcType = iota
	typeFunction
)

type local struct {
	name  token.Token
	depth int // -1: declared but not yet initialized
}

type funcCompiler struct {
	enclosing  *funcCompiler
	function   *object.Function
	ftype      funcType
	locals     [MaxLocals]local
	localCount int
	scopeDepth int
}

func newFuncCompiler(enclosing *funcCompiler, ftype funcType, source *bytecode.Source) *funcCompiler {
	fc := &funcCompiler{
		enclosing: enclosing,
		function:  &object.Function{Chunk: bytecode.NewChunk(source)},
		ftype:     ftype,
	}
	// Slot 0 holds the callee and is never resolvable by name.
	fc.locals[0] = local{depth: 0}
	fc.localCount = 1
	return fc
}

// ---- precedence & rules ----------------------------------------------

type precedence int

const (
	precNone precedence = iota
	precAssignment // =
	precOr         // or
	precAnd        // and
	precEquality   // == !=
	precComparison // < > <= >=
	precTerm       // + -
	precFactor     // * /
	precUnary      // ! -
	precCall       // . () []
	precPrimary
)

type parseFn func(p *parser, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

var rules map[token.Type]parseRule

func init() {
	rules = map[token.Type]parseRule{
		token.LeftParen:    {prefix: grouping, infix: call, prec: precCall},
		token.LeftBrace:    {prefix: mapLiteral},
		token.LeftBracket:  {infix: index, prec: precCall},
		token.Dot:          {infix: dot, prec: precCall},
		token.Minus:        {prefix: unary, infix: binary, prec: precTerm},
		token.Plus:         {infix: binary, prec: precTerm},
		token.Slash:        {infix: binary, prec: precFactor},
		token.Star:         {infix: binary, prec: precFactor},
		token.Bang:         {prefix: unary},
		token.BangEqual:    {infix: binary, prec: precEquality},
		token.EqualEqual:   {infix: binary, prec: precEquality},
		token.Greater:      {infix: binary, prec: precComparison},
		token.GreaterEqual: {infix: binary, prec: precComparison},
		token.Less:         {infix: binary, prec: precComparison},
		token.LessEqual:    {infix: binary, prec: precComparison},
		token.Identifier:   {prefix: variable},
		token.String:       {prefix: stringLiteral},
		token.Number:       {prefix: number},
		token.And:          {infix: andOp, prec: precAnd},
		token.Or:           {infix: orOp, prec: precOr},
		token.False:        {prefix: literal},
		token.True:         {prefix: literal},
		token.Nil:          {prefix: literal},
	}
}

func (p *parser) parsePrecedence(prec precedence) {
	p.advance()
	prefix := rules[p.previous.Type].prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(p, canAssign)

	for prec <= rules[p.current.Type].prec {
		p.advance()
		rules[p.previous.Type].infix(p, canAssign)
	}

	if canAssign && p.match(token.Equal) {
		p.error("Invalid assignment target.")
	}
}

func (p *parser) expression() {
	p.parsePrecedence(precAssignment)
}

// ---- declarations & statements ---------------------------------------

func (p *parser) declaration() {
	switch {
	case p.match(token.Fun):
		p.funDeclaration()
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.statement()
	}

	if p.panicMode {
		p.synchronize()
	}
}

func (p *parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")

	if p.match(token.Equal) {
		p.expression()
	} else {
		p.emitByte(bytecode.OpNil)
	}
	p.consume(token.Semicolon, "Expect ';' after variable declaration.")

	p.defineVariable(global)
}

func (p *parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	p.markInitialized()
	p.function(p.previous.Lexeme)
	p.defineVariable(global)
}

func (p *parser) function(name string) {
	p.fc = newFuncCompiler(p.fc, typeFunction, p.source)
	p.fc.function.Name = name
	p.beginScope()

	p.consume(token.LeftParen, "Expect '(' after function name.")
	if !p.check(token.RightParen) {
		for {
			p.fc.function.Arity++
			if p.fc.function.Arity > 255 {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			param := p.parseVariable("Expect parameter name.")
			p.defineVariable(param)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightParen, "Expect ')' after parameters.")
	p.consume(token.LeftBrace, "Expect '{' before function body.")
	p.block()

	fn := p.endCompiler()
	p.emitConstant(value.ObjVal(p.heap.NewFunction(fn)))
}

func (p *parser) statement() {
	switch {
	case p.match(token.Print):
		p.printStatement()
	case p.match(token.Return):
		p.returnStatement()
	case p.match(token.If):
		p.ifStatement()
	case p.match(token.LeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *parser) printStatement() {
	count := 1
	p.expression()
	for p.match(token.Comma) {
		p.expression()
		count++
	}
	if count > 255 {
		p.error("Can't print more than 255 values.")
	}
	p.consume(token.Semicolon, "Expect ';' after value.")
	p.emitBytes(bytecode.OpPrint, byte(count))
}

func (p *parser) returnStatement() {
	if p.fc.ftype == typeScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(token.Semicolon) {
		p.emitReturn()
		return
	}
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after return value.")
	p.emitByte(bytecode.OpRet)
}

func (p *parser) ifStatement() {
	p.consume(token.LeftParen, "Expect '(' after 'if'.")
	p.expression()
	p.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := p.emitJump(bytecode.OpJmpF)
	p.emitByte(bytecode.OpPop)
	p.statement()
	elseJump := p.emitJump(bytecode.OpJmp)

	p.patchJump(thenJump)
	p.emitByte(bytecode.OpPop)
	if p.match(token.Else) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) block() {
	for !p.check(token.RightBrace) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RightBrace, "Expect '}' after block.")
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after expression.")
	p.emitByte(bytecode.OpPop)
}

// synchronize discards tokens until a statement boundary, then resumes
// normal reporting.
func (p *parser) synchronize() {
	p.panicMode = false

	for p.current.Type != token.EOF {
		if p.previous.Type == token.Semicolon {
			return
		}
		switch p.current.Type {
		case token.Class, token.Fun, token.Var, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}
		p.advance()
	}
}

// ---- variables & scope -----------------------------------------------

func (p *parser) parseVariable(message string) int {
	p.consume(token.Identifier, message)

	p.declareVariable()
	if p.fc.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(p.previous)
}

func (p *parser) declareVariable() {
	if p.fc.scopeDepth == 0 {
		return
	}

	name := p.previous
	for i := p.fc.localCount - 1; i >= 0; i-- {
		l := &p.fc.locals[i]
		if l.depth != -1 && l.depth < p.fc.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *parser) addLocal(name token.Token) {
	if p.fc.localCount == MaxLocals {
		p.error("Too many local variables in function.")
		return
	}
	p.fc.locals[p.fc.localCount] = local{name: name, depth: -1}
	p.fc.localCount++
}

func (p *parser) markInitialized() {
	if p.fc.scopeDepth == 0 {
		return
	}
	p.fc.locals[p.fc.localCount-1].depth = p.fc.scopeDepth
}

func (p *parser) defineVariable(global int) {
	if p.fc.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitVarOp(bytecode.OpDef, bytecode.OpDefL, global)
}

func (p *parser) resolveLocal(name token.Token) int {
	for i := p.fc.localCount - 1; i >= 0; i-- {
		l := &p.fc.locals[i]
		if l.name.Lexeme == name.Lexeme && l.name.Lexeme != "" {
			if l.depth == -1 {
				p.error("Cannot read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (p *parser) namedVariable(name token.Token, canAssign bool) {
	var getShort, getLong, setShort, setLong byte

	arg := p.resolveLocal(name)
	if arg != -1 {
		getShort, getLong = bytecode.OpLd, bytecode.OpLdL
		setShort, setLong = bytecode.OpSt, bytecode.OpStL
	} else {
		arg = p.identifierConstant(name)
		getShort, getLong = bytecode.OpGld, bytecode.OpGldL
		setShort, setLong = bytecode.OpGst, bytecode.OpGstL
	}

	if canAssign && p.match(token.Equal) {
		p.expression()
		p.emitVarOp(setShort, setLong, arg)
	} else {
		p.emitVarOp(getShort, getLong, arg)
	}
}

func (p *parser) identifierConstant(name token.Token) int {
	return p.makeConstant(value.ObjVal(p.heap.Intern(name.Lexeme)))
}

func (p *parser) beginScope() {
	p.fc.scopeDepth++
}

func (p *parser) endScope() {
	p.fc.scopeDepth--
	for p.fc.localCount > 0 && p.fc.locals[p.fc.localCount-1].depth > p.fc.scopeDepth {
		p.emitByte(bytecode.OpPop)
		p.fc.localCount--
	}
}

// ---- expression rules ------------------------------------------------

func grouping(p *parser, _ bool) {
	p.expression()
	p.consume(token.RightParen, "Expect ')' after expression.")
}

func number(p *parser, _ bool) {
	n, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("Invalid number.")
		return
	}
	p.emitConstant(value.NumVal(n))
}

func stringLiteral(p *parser, _ bool) {
	chars := p.previous.Lexeme[1 : len(p.previous.Lexeme)-1]
	p.emitConstant(value.ObjVal(p.heap.Intern(chars)))
}

func literal(p *parser, _ bool) {
	switch p.previous.Type {
	case token.False:
		p.emitByte(bytecode.OpFalse)
	case token.True:
		p.emitByte(bytecode.OpTrue)
	case token.Nil:
		p.emitByte(bytecode.OpNil)
	}
}

func variable(p *parser, canAssign bool) {
	p.namedVariable(p.previous, canAssign)
}

func unary(p *parser, _ bool) {
	op := p.previous.Type

	p.parsePrecedence(precUnary)

	switch op {
	case token.Minus:
		p.emitByte(bytecode.OpNeg)
	case token.Bang:
		p.emitByte(bytecode.OpNot)
	}
}

func binary(p *parser, _ bool) {
	op := p.previous.Type
	p.parsePrecedence(rules[op].prec + 1)

	switch op {
	case token.Plus:
		p.emitByte(bytecode.OpAdd)
	case token.Minus:
		p.emitByte(bytecode.OpSub)
	case token.Star:
		p.emitByte(bytecode.OpMul)
	case token.Slash:
		p.emitByte(bytecode.OpDiv)
	case token.EqualEqual:
		p.emitByte(bytecode.OpEq)
	case token.BangEqual:
		p.emitBytes(bytecode.OpEq, bytecode.OpNot)
	case token.Less:
		p.emitByte(bytecode.OpLt)
	case token.LessEqual:
		p.emitByte(bytecode.OpLe)
	case token.Greater:
		p.emitBytes(bytecode.OpLe, bytecode.OpNot)
	case token.GreaterEqual:
		p.emitBytes(bytecode.OpLt, bytecode.OpNot)
	}
}

func andOp(p *parser, _ bool) {
	endJump := p.emitJump(bytecode.OpJmpF)
	p.emitByte(bytecode.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func orOp(p *parser, _ bool) {
	elseJump := p.emitJump(bytecode.OpJmpF)
	endJump := p.emitJump(bytecode.OpJmp)

	p.patchJump(elseJump)
	p.emitByte(bytecode.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func call(p *parser, _ bool) {
	argc := p.argumentList()
	p.emitBytes(bytecode.OpCall, byte(argc))
}

func (p *parser) argumentList() int {
	argc := 0
	if !p.check(token.RightParen) {
		for {
			p.expression()
			if argc == 255 {
				p.error("Can't have more than 255 arguments.")
			}
			argc++
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightParen, "Expect ')' after arguments.")
	return argc
}

func dot(p *parser, canAssign bool) {
	p.consume(token.Identifier, "Expect property name after '.'.")
	idx := p.identifierConstant(p.previous)
	if idx > 0xFF {
		p.error("Too many constants in one chunk.")
		idx = 0
	}

	if canAssign && p.match(token.Equal) {
		p.expression()
		p.emitBytes(bytecode.OpSet, byte(idx))
	} else {
		p.emitBytes(bytecode.OpGet, byte(idx))
	}
}

func index(p *parser, canAssign bool) {
	p.expression()
	p.consume(token.RightBracket, "Expect ']' after index.")

	if canAssign && p.match(token.Equal) {
		p.expression()
		p.emitByte(bytecode.OpSetI)
	} else {
		p.emitByte(bytecode.OpGetI)
	}
}

func mapLiteral(p *parser, _ bool) {
	count := 0
	if !p.check(token.RightBrace) {
		for {
			p.mapKey()
			p.consume(token.Colon, "Expect ':' after map key.")
			p.expression()
			if count == 255 {
				p.error("Too many entries in map literal.")
			}
			count++
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightBrace, "Expect '}' after map literal.")
	p.emitBytes(bytecode.OpMap, byte(count))
}

func (p *parser) mapKey() {
	switch {
	case p.match(token.Identifier):
		p.emitConstant(value.ObjVal(p.heap.Intern(p.previous.Lexeme)))
	case p.match(token.String):
		stringLiteral(p, false)
	case p.match(token.Number):
		number(p, false)
	default:
		p.errorAtCurrent("Expect map key.")
	}
}

// ---- emission --------------------------------------------------------

func (p *parser) currentChunk() *bytecode.Chunk {
	return p.fc.function.Chunk
}

func (p *parser) emitByte(b byte) {
	p.currentChunk().Write(b, p.previous.Line, p.previous.Column)
}

func (p *parser) emitBytes(b1, b2 byte) {
	p.emitByte(b1)
	p.emitByte(b2)
}

func (p *parser) emitReturn() {
	p.emitByte(bytecode.OpNil)
	p.emitByte(bytecode.OpRet)
}

func (p *parser) makeConstant(v value.Value) int {
	idx := p.currentChunk().AddConstant(v, false)
	if idx >= bytecode.MaxConstants {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return idx
}

func (p *parser) emitConstant(v value.Value) {
	idx := p.makeConstant(v)
	if idx > 0xFF {
		p.emitByte(bytecode.OpConstL)
		p.emitBytes(byte(idx>>8), byte(idx))
		return
	}
	p.emitBytes(bytecode.OpConst, byte(idx))
}

func (p *parser) emitVarOp(short, long byte, operand int) {
	if operand > 0xFF {
		p.emitByte(long)
		p.emitBytes(byte(operand>>8), byte(operand))
		return
	}
	p.emitBytes(short, byte(operand))
}

func (p *parser) emitJump(op byte) int {
	p.emitByte(op)
	p.emitByte(0xFF)
	p.emitByte(0xFF)
	return len(p.currentChunk().Code) - 2
}

func (p *parser) patchJump(pos int) {
	// -2 accounts for the operand itself.
	jump := len(p.currentChunk().Code) - pos - 2
	if jump > maxJump {
		p.error("Too much code to jump over.")
	}
	p.currentChunk().Code[pos] = byte(jump >> 8)
	p.currentChunk().Code[pos+1] = byte(jump)
}

func (p *parser) endCompiler() *object.Function {
	p.emitReturn()
	fn := p.fc.function
	p.fc = p.fc.enclosing
	return fn
}

// ---- token plumbing & errors -----------------------------------------

func (p *parser) advance() {
	p.previous = p.current

	for {
		p.current = p.lex.Scan()
		if p.current.Type != token.Error {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) consume(typ token.Type, message string) {
	if p.current.Type == typ {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *parser) check(typ token.Type) bool {
	return p.current.Type == typ
}

func (p *parser) match(typ token.Type) bool {
	if !p.check(typ) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *parser) errorAt(t token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	fmt.Fprintf(p.errw, "[line %d] Error", t.Line)
	switch t.Type {
	case token.EOF:
		fmt.Fprint(p.errw, " at end")
	case token.Error:
		// nothing
	default:
		fmt.Fprintf(p.errw, " at '%s'", t.Lexeme)
	}
	fmt.Fprintf(p.errw, ": %s\n", message)

	p.hadError = true
}
