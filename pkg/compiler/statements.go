package compiler

import (
	"github.com/kristofer/tater/pkg/lexer"
	"github.com/kristofer/tater/pkg/value"
)

func (c *Compiler) declaration() {
	switch {
	case c.matchTok(lexer.TokenLet):
		c.varDeclaration()
	case c.matchTok(lexer.TokenFn):
		c.fnDeclaration()
	case c.matchTok(lexer.TokenTypeKeyword):
		c.typeDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("expected variable name")
	if c.matchTok(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(value.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after variable declaration")
	c.defineVariable(global)
}

func (c *Compiler) fnDeclaration() {
	global := c.parseVariable("expected function name")
	c.markInitialized()
	c.function(TypeFunction, c.previous.Lexeme)
	c.defineVariable(global)
}

// function compiles a parameter list and body into a brand new
// funcState, then emits OP_CLOSURE (with one (isLocal, index) operand
// pair per captured upvalue) into the enclosing chunk.
func (c *Compiler) function(fnType FunctionType, name string) {
	c.pushFunc(fnType, name)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "expected '(' after function name")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.fs.function.Arity++
			if c.fs.function.Arity > 255 {
				c.error("can't have more than 255 parameters")
			}
			c.consume(lexer.TokenIdentifier, "expected parameter name")
			c.declareVariable(c.previous)
			c.markInitialized()
			if !c.matchTok(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "expected ')' after parameters")
	c.consume(lexer.TokenLeftBrace, "expected '{' before function body")
	c.block()

	upvalues := append([]upvalueDesc(nil), c.fs.upvalues...)
	fn := c.endFunc()

	idx := c.currentChunk().AddConstant(value.Obj(fn))
	if idx > 0xFF {
		c.error("too many constants in one chunk")
		idx = 0
	}
	c.emitOpByte(value.OpClosure, byte(idx))
	for _, uv := range upvalues {
		if uv.IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.Index)
	}
}

func (c *Compiler) typeDeclaration() {
	c.consume(lexer.TokenIdentifier, "expected type name")
	nameTok := c.previous
	nameIdx := c.identifierConstant(nameTok)
	c.declareVariable(nameTok)

	c.emitNameOperand(value.OpType, nameIdx)
	c.defineVariable(nameIdx)

	cls := &classState{enclosing: c.cls}
	c.cls = cls

	if c.matchTok(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "expected super type name")
		if c.previous.Lexeme == nameTok.Lexeme {
			c.error("a type can't inherit from itself")
		}
		c.variable(false)

		c.beginScope()
		c.addLocal(lexer.Token{Lexeme: "super"})
		c.markInitialized()

		c.namedVariable(nameTok, false)
		c.emitOp(value.OpInherit)
		cls.hasSuper = true
	}

	c.namedVariable(nameTok, false)
	c.consume(lexer.TokenLeftBrace, "expected '{' before type body")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		if c.matchTok(lexer.TokenLet) {
			c.consume(lexer.TokenIdentifier, "expected field name")
			fieldIdx := c.identifierConstant(c.previous)
			if c.matchTok(lexer.TokenEqual) {
				c.expression()
			} else {
				c.emitOp(value.OpNil)
			}
			c.consume(lexer.TokenSemicolon, "expected ';' after field declaration")
			c.emitNameOperand(value.OpField, fieldIdx)
		} else {
			c.method()
		}
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after type body")
	c.emitOp(value.OpPop) // the type itself

	if cls.hasSuper {
		c.endScope()
	}
	c.cls = cls.enclosing
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "expected method name")
	name := c.previous.Lexeme
	nameIdx := c.identifierConstant(c.previous)

	fnType := TypeMethod
	if name == "init" {
		fnType = TypeInitializer
	}
	c.function(fnType, name)
	c.emitNameOperand(value.OpMethod, nameIdx)
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after block")
}

func (c *Compiler) statement() {
	switch {
	case c.matchTok(lexer.TokenPrint):
		c.printStatement()
	case c.matchTok(lexer.TokenIf):
		c.ifStatement()
	case c.matchTok(lexer.TokenWhile):
		c.whileStatement()
	case c.matchTok(lexer.TokenFor):
		c.forStatement()
	case c.matchTok(lexer.TokenSwitch):
		c.switchStatement()
	case c.matchTok(lexer.TokenReturn):
		c.returnStatement()
	case c.matchTok(lexer.TokenBreak):
		c.breakStatement()
	case c.matchTok(lexer.TokenContinue):
		c.continueStatement()
	case c.matchTok(lexer.TokenAssert):
		c.assertStatement()
	case c.matchTok(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after value")
	c.emitOp(value.OpPrint)
}

func (c *Compiler) assertStatement() {
	c.expression()
	if c.matchTok(lexer.TokenComma) {
		c.expression()
	} else {
		c.emitConstant(value.Obj(c.heap.InternString("")))
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after assert statement")
	c.emitOp(value.OpAssert)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after expression")
	c.emitOp(value.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "expected '(' after 'if'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after condition")

	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	if c.matchTok(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)

	c.consume(lexer.TokenLeftParen, "expected '(' after 'while'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after condition")

	c.loop = &loopState{enclosing: c.loop, scopeDepth: c.fs.scopeDepth, continueTo: loopStart}

	exitJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(value.OpPop)
	c.patchBreaks()
	c.loop = c.loop.enclosing
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "expected '(' after 'for'")

	switch {
	case c.matchTok(lexer.TokenSemicolon):
		// no initializer
	case c.matchTok(lexer.TokenLet):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.matchTok(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "expected ';' after loop condition")
		exitJump = c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)
	}

	if !c.check(lexer.TokenRightParen) {
		bodyJump := c.emitJump(value.OpJump)
		incrStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(value.OpPop)
		c.consume(lexer.TokenRightParen, "expected ')' after for clauses")

		c.emitLoop(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	} else {
		c.consume(lexer.TokenRightParen, "expected ')' after for clauses")
	}

	c.loop = &loopState{enclosing: c.loop, scopeDepth: c.fs.scopeDepth, continueTo: loopStart}
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(value.OpPop)
	}
	c.patchBreaks()
	c.loop = c.loop.enclosing
	c.endScope()
}

func (c *Compiler) patchBreaks() {
	for _, j := range c.loop.breakJumps {
		c.patchJump(j)
	}
}

// discardLocalsAbove emits the pops/close-upvalues needed to unwind
// every local declared deeper than depth, without touching fs.locals
// itself — used by break/continue, which jump out of a scope the
// enclosing while/for statement will still formally end.
func (c *Compiler) discardLocalsAbove(depth int) {
	popped := 0
	for i := len(c.fs.locals) - 1; i >= 0 && c.fs.locals[i].Depth > depth; i-- {
		if c.fs.locals[i].IsCaptured {
			if popped > 0 {
				c.emitOpByte(value.OpPopN, byte(popped))
				popped = 0
			}
			c.emitOp(value.OpCloseUpvalue)
		} else {
			popped++
		}
	}
	if popped > 0 {
		c.emitOpByte(value.OpPopN, byte(popped))
	}
}

func (c *Compiler) breakStatement() {
	if c.loop == nil {
		c.error("can't use 'break' outside of a loop")
		return
	}
	c.discardLocalsAbove(c.loop.scopeDepth)
	c.consume(lexer.TokenSemicolon, "expected ';' after 'break'")
	jump := c.emitJump(value.OpJump)
	c.loop.breakJumps = append(c.loop.breakJumps, jump)
}

func (c *Compiler) continueStatement() {
	if c.loop == nil {
		c.error("can't use 'continue' outside of a loop")
		return
	}
	c.discardLocalsAbove(c.loop.scopeDepth)
	c.consume(lexer.TokenSemicolon, "expected ';' after 'continue'")
	c.emitLoop(c.loop.continueTo)
}

func (c *Compiler) returnStatement() {
	if c.fs.fnType == TypeScript {
		c.error("can't return from top-level code")
	}
	if c.matchTok(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.fs.fnType == TypeInitializer {
		c.error("can't return a value from an initializer")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after return value")
	c.emitOp(value.OpReturn)
}

// switchStatement desugars into a chain of duplicate-compare-jump
// blocks: the switch subject is evaluated once and kept on the stack
// until a case matches (or the default runs).
func (c *Compiler) switchStatement() {
	c.consume(lexer.TokenLeftParen, "expected '(' after 'switch'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after switch subject")
	c.consume(lexer.TokenLeftBrace, "expected '{' before switch body")

	var caseEnds []int
	sawDefault := false

	for c.check(lexer.TokenCase) {
		c.advance()
		c.emitOp(value.OpDup)
		c.expression()
		c.consume(lexer.TokenColon, "expected ':' after case value")
		c.emitOp(value.OpEqual)
		caseJump := c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop) // bool
		c.emitOp(value.OpPop) // subject, no longer needed once matched
		for !c.check(lexer.TokenCase) && !c.check(lexer.TokenDefault) && !c.check(lexer.TokenRightBrace) {
			c.statement()
		}
		caseEnds = append(caseEnds, c.emitJump(value.OpJump))
		c.patchJump(caseJump)
		c.emitOp(value.OpPop) // bool, false case
	}

	if c.matchTok(lexer.TokenDefault) {
		sawDefault = true
		c.consume(lexer.TokenColon, "expected ':' after 'default'")
		c.emitOp(value.OpPop) // subject
		for !c.check(lexer.TokenRightBrace) {
			c.statement()
		}
	}
	if !sawDefault {
		c.emitOp(value.OpPop) // subject, nothing matched
	}

	c.consume(lexer.TokenRightBrace, "expected '}' after switch body")
	for _, end := range caseEnds {
		c.patchJump(end)
	}
}
