package compiler

import (
	"strconv"

	"github.com/kristofer/tater/pkg/lexer"
	"github.com/kristofer/tater/pkg/value"
)

func (c *Compiler) numberLit(canAssign bool) {
	n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.error("invalid number literal")
		return
	}
	c.emitConstant(value.Number(n))
}

func (c *Compiler) stringLit(canAssign bool) {
	s := c.heap.InternString(c.previous.StringValue())
	c.emitConstant(value.Obj(s))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case lexer.TokenTrue:
		c.emitOp(value.OpTrue)
	case lexer.TokenFalse:
		c.emitOp(value.OpFalse)
	case lexer.TokenNil:
		c.emitOp(value.OpNil)
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after expression")
}

func (c *Compiler) unary(canAssign bool) {
	opType := c.previous.Type
	c.parsePrecedence(PrecUnary)
	switch opType {
	case lexer.TokenMinus:
		c.emitOp(value.OpNegate)
	case lexer.TokenBang:
		c.emitOp(value.OpNot)
	case lexer.TokenTilde:
		c.emitOp(value.OpBitNot)
	}
}

func (c *Compiler) binary(canAssign bool) {
	opType := c.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case lexer.TokenPlus:
		c.emitOp(value.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(value.OpSub)
	case lexer.TokenStar:
		c.emitOp(value.OpMul)
	case lexer.TokenSlash:
		c.emitOp(value.OpDiv)
	case lexer.TokenPercent:
		c.emitOp(value.OpMod)
	case lexer.TokenAmp:
		c.emitOp(value.OpBitAnd)
	case lexer.TokenPipe:
		c.emitOp(value.OpBitOr)
	case lexer.TokenCaret:
		c.emitOp(value.OpBitXor)
	case lexer.TokenLessLess:
		c.emitOp(value.OpShiftLeft)
	case lexer.TokenGreaterGreater:
		c.emitOp(value.OpShiftRight)
	case lexer.TokenBangEqual:
		c.emitOp(value.OpEqual)
		c.emitOp(value.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(value.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(value.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(value.OpLess)
		c.emitOp(value.OpNot)
	case lexer.TokenLess:
		c.emitOp(value.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(value.OpGreater)
		c.emitOp(value.OpNot)
	}
}

func (c *Compiler) and_(canAssign bool) {
	endJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(canAssign bool) {
	elseJump := c.emitJump(value.OpJumpIfFalse)
	endJump := c.emitJump(value.OpJump)
	c.patchJump(elseJump)
	c.emitOp(value.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

// argumentList parses a parenthesized call argument list and returns
// the argument count.
func (c *Compiler) argumentList() int {
	argCount := 0
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if argCount == 255 {
				c.error("can't pass more than 255 arguments")
			}
			argCount++
			if !c.matchTok(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "expected ')' after arguments")
	return argCount
}

func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emitOpByte(value.OpCall, byte(argCount))
}

// dot compiles `.name`, `.name(...)`, `.name = value`, and the
// compound-assignment forms `.name += value` etc.
func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.TokenIdentifier, "expected property name after '.'")
	nameIdx := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.matchTok(lexer.TokenEqual):
		c.expression()
		c.emitNameOperand(value.OpSetProperty, nameIdx)
	case canAssign && c.matchCompoundAssign():
		op := c.previous.Type
		c.emitOp(value.OpDup) // keep the receiver for OP_SET_PROPERTY
		c.emitNameOperand(value.OpGetProperty, nameIdx)
		c.expression()
		c.emitCompoundOp(op)
		c.emitNameOperand(value.OpSetProperty, nameIdx)
	case c.matchTok(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpByte(value.OpInvoke, byte(nameIdx))
		c.emitByte(byte(argCount))
	default:
		c.emitNameOperand(value.OpGetProperty, nameIdx)
	}
}

// matchCompoundAssign consumes and reports whether the current token
// is one of += -= *= /=.
func (c *Compiler) matchCompoundAssign() bool {
	switch c.current.Type {
	case lexer.TokenPlusEqual, lexer.TokenMinusEqual, lexer.TokenStarEqual, lexer.TokenSlashEqual:
		c.advance()
		return true
	}
	return false
}

func (c *Compiler) emitCompoundOp(t lexer.TokenType) {
	switch t {
	case lexer.TokenPlusEqual:
		c.emitOp(value.OpAdd)
	case lexer.TokenMinusEqual:
		c.emitOp(value.OpSub)
	case lexer.TokenStarEqual:
		c.emitOp(value.OpMul)
	case lexer.TokenSlashEqual:
		c.emitOp(value.OpDiv)
	}
}

// subscript compiles `a[i]`, `a[i] = v`, and `a[i] += v` etc, desugared
// into invocations of the synthetic "subscript"/"subscript_set"
// methods every indexable builtin (String, List, Map) implements.
func (c *Compiler) subscript(canAssign bool) {
	c.expression() // index
	c.consume(lexer.TokenRightBracket, "expected ']' after index")

	getIdx := c.identifierConstant(lexer.Token{Lexeme: "subscript"})
	setIdx := c.identifierConstant(lexer.Token{Lexeme: "subscript_set"})

	switch {
	case canAssign && c.matchTok(lexer.TokenEqual):
		c.expression()
		c.emitOpByte(value.OpInvoke, byte(setIdx))
		c.emitByte(2)
	case canAssign && c.matchCompoundAssign():
		op := c.previous.Type
		c.emitOp(value.OpDup2)
		c.emitOpByte(value.OpInvoke, byte(getIdx))
		c.emitByte(1)
		c.expression()
		c.emitCompoundOp(op)
		c.emitOpByte(value.OpInvoke, byte(setIdx))
		c.emitByte(2)
	default:
		c.emitOpByte(value.OpInvoke, byte(getIdx))
		c.emitByte(1)
	}
}

func (c *Compiler) listLiteral(canAssign bool) {
	count := 0
	if !c.check(lexer.TokenRightBracket) {
		for {
			if c.check(lexer.TokenRightBracket) {
				break
			}
			c.expression()
			count++
			if !c.matchTok(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightBracket, "expected ']' after list elements")
	if count > 0xFF {
		c.error("too many elements in list literal")
		count = 0xFF
	}
	c.emitOpByte(value.OpNewList, byte(count))
}

func (c *Compiler) mapLiteral(canAssign bool) {
	count := 0
	if !c.check(lexer.TokenRightBrace) {
		for {
			if c.check(lexer.TokenRightBrace) {
				break
			}
			c.expression()
			c.consume(lexer.TokenColon, "expected ':' after map key")
			c.expression()
			count++
			if !c.matchTok(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after map entries")
	if count > 0xFF {
		c.error("too many entries in map literal")
		count = 0xFF
	}
	c.emitOpByte(value.OpNewMap, byte(count))
}

func (c *Compiler) namedVariable(name lexer.Token, canAssign bool) {
	var getOp, setOp value.OpCode
	var arg int
	slot := resolveLocal(c.fs, name)
	if slot == -2 {
		c.error("can't read local variable '" + name.Lexeme + "' in its own initializer")
		slot = 0
	}
	if slot != -1 {
		getOp, setOp, arg = value.OpGetLocal, value.OpSetLocal, slot
	} else if up := resolveUpvalue(c.fs, name); up != -1 {
		getOp, setOp, arg = value.OpGetUpvalue, value.OpSetUpvalue, up
	} else {
		getOp, setOp, arg = value.OpGetGlobal, value.OpSetGlobal, c.identifierConstant(name)
	}

	switch {
	case canAssign && c.matchTok(lexer.TokenEqual):
		c.expression()
		c.emitNameOperand(setOp, arg)
	case canAssign && c.matchCompoundAssign():
		op := c.previous.Type
		c.emitNameOperand(getOp, arg)
		c.expression()
		c.emitCompoundOp(op)
		c.emitNameOperand(setOp, arg)
	case canAssign && (c.check(lexer.TokenPlusPlus) || c.check(lexer.TokenMinusMinus)):
		isInc := c.current.Type == lexer.TokenPlusPlus
		c.advance()
		c.emitNameOperand(getOp, arg)
		c.emitConstant(value.Number(1))
		if isInc {
			c.emitOp(value.OpAdd)
		} else {
			c.emitOp(value.OpSub)
		}
		c.emitNameOperand(setOp, arg)
	default:
		c.emitNameOperand(getOp, arg)
	}
}

func (c *Compiler) variable(canAssign bool) { c.namedVariable(c.previous, canAssign) }

func (c *Compiler) self(canAssign bool) {
	if c.cls == nil {
		c.error("can't use 'self' outside of a type's method")
		return
	}
	c.variable(false)
}

func (c *Compiler) super(canAssign bool) {
	if c.cls == nil {
		c.error("can't use 'super' outside of a type")
		return
	} else if !c.cls.hasSuper {
		c.error("can't use 'super' in a type with no super type")
	}
	c.consume(lexer.TokenDot, "expected '.' after 'super'")
	c.consume(lexer.TokenIdentifier, "expected super method name")
	nameIdx := c.identifierConstant(c.previous)

	c.namedVariable(lexer.Token{Lexeme: "self"}, false)
	if c.matchTok(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable(lexer.Token{Lexeme: "super"}, false)
		c.emitOpByte(value.OpSuperInvoke, byte(nameIdx))
		c.emitByte(byte(argCount))
	} else {
		c.namedVariable(lexer.Token{Lexeme: "super"}, false)
		c.emitNameOperand(value.OpGetSuper, nameIdx)
	}
}

// lambda compiles an anonymous `fn(params) { body }` expression.
func (c *Compiler) lambda(canAssign bool) {
	c.function(TypeFunction, "")
}
