// Package compiler implements tater's single-pass compiler: a
// Pratt-style precedence-climbing parser that consumes the scanner's
// token stream and emits bytecode directly into a value.Chunk — there
// is no separate AST stage.
package compiler

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/kristofer/tater/pkg/gc"
	"github.com/kristofer/tater/pkg/lexer"
	"github.com/kristofer/tater/pkg/value"
)

// FunctionType tags what kind of callable a funcState is compiling.
type FunctionType int

const (
	TypeFunction FunctionType = iota
	TypeScript
	TypeMethod
	TypeInitializer
)

const maxLocals = 256

// Local is a declared local variable: its name, its scope depth ( -1
// while its initializer is still compiling, the "uninitialized"
// sentinel), and whether any nested function captures it as an
// upvalue.
type Local struct {
	Name       lexer.Token
	Depth      int
	IsCaptured bool
}

// upvalueDesc records, for one function, where its Nth upvalue comes
// from: an enclosing function's local slot, or that function's own
// upvalue list.
type upvalueDesc struct {
	Index   byte
	IsLocal bool
}

// funcState is one compiler stack frame: the in-progress Function, its
// locals, its scope depth, and its upvalue descriptors. Enclosing links
// enclosing funcStates into a stack mirroring nested `fn` declarations.
type funcState struct {
	enclosing  *funcState
	function   *value.ObjFunction
	fnType     FunctionType
	locals     []Local
	scopeDepth int
	upvalues   []upvalueDesc
}

// classState tracks the type currently being compiled, for `self` and
// `super` resolution; enclosing links nested type declarations (tater
// does not nest types, but the stack shape mirrors funcState for
// symmetry and to simplify cleanup).
type classState struct {
	enclosing *classState
	hasSuper  bool
}

// loopState is pushed for every while/for loop so break/continue can
// find their jump targets and how many locals to pop.
type loopState struct {
	enclosing    *loopState
	scopeDepth   int
	continueTo   int  // byte offset the loop's condition/increment starts at
	breakJumps   []int
	isForIncr    bool
}

// Compiler compiles one source string at a time into a top-level
// Function (whose chunk is the "script" chunk). Each call to Compile
// is a self-contained script; no compiler state carries over from one
// call to the next.
type Compiler struct {
	scanner   *lexer.Scanner
	current   lexer.Token
	previous  lexer.Token
	hadError  bool
	panicMode bool

	heap *gc.Heap
	fs   *funcState
	cls  *classState
	loop *loopState

	errOut io.Writer
}

// New creates a Compiler that allocates constants on heap and reports
// compile errors to errOut (os.Stderr if nil).
func New(heap *gc.Heap, errOut io.Writer) *Compiler {
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Compiler{heap: heap, errOut: errOut}
}

// Compile compiles source into a top-level Function of type script.
// It returns the function and ok=false if any compile error occurred,
// signaling failure to the caller without panicking.
func (c *Compiler) Compile(source string) (*value.ObjFunction, bool) {
	c.scanner = lexer.New(source)
	c.hadError = false
	c.panicMode = false

	c.pushFunc(TypeScript, "")
	c.heap.PushRoot(c)
	defer c.heap.PopRoot()

	c.advance()
	for !c.matchTok(lexer.TokenEOF) {
		c.declaration()
	}

	fn := c.endFunc()
	return fn, !c.hadError
}

// MarkRoots implements gc.RootSource: while compiling, the in-progress
// function chain is reachable only from the compiler stack, not yet
// from anything the VM can see, so it must be marked explicitly.
func (c *Compiler) MarkRoots(mark func(value.Value)) {
	for fs := c.fs; fs != nil; fs = fs.enclosing {
		if fs.function != nil {
			mark(value.Obj(fs.function))
		}
	}
}

func (c *Compiler) pushFunc(t FunctionType, name string) {
	fn := c.heap.NewFunction()
	if name != "" {
		fn.Name = c.heap.InternString(name)
	}
	fs := &funcState{enclosing: c.fs, function: fn, fnType: t}
	// Slot 0 is reserved for the callee (used as `self` in methods).
	selfName := ""
	if t == TypeMethod || t == TypeInitializer {
		selfName = "self"
	}
	fs.locals = append(fs.locals, Local{Name: lexer.Token{Lexeme: selfName}, Depth: 0})
	c.fs = fs
}

func (c *Compiler) endFunc() *value.ObjFunction {
	c.emitReturn()
	fn := c.fs.function
	fn.UpvalueCount = len(c.fs.upvalues)
	c.fs = c.fs.enclosing
	return fn
}

func (c *Compiler) currentChunk() *value.Chunk { return c.fs.function.Chunk }

// ---- token stream -------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) matchTok(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok lexer.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	where := ""
	switch tok.Type {
	case lexer.TokenEOF:
		where = " at end"
	case lexer.TokenError:
		// lexeme already is the explanation
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	fmt.Fprintln(c.errOut, errors.Errorf("[line %d] Error%s: %s", tok.Line, where, msg))
}

// synchronize discards tokens until a likely statement boundary, so
// one error doesn't cascade into spurious follow-on errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenTypeKeyword, lexer.TokenFn, lexer.TokenLet, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn,
			lexer.TokenSwitch, lexer.TokenAssert:
			return
		}
		c.advance()
	}
}

// ---- emitting bytecode ---------------------------------------------

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op value.OpCode) { c.emitByte(byte(op)) }

func (c *Compiler) emitBytes(b1, b2 byte) {
	c.emitByte(b1)
	c.emitByte(b2)
}

func (c *Compiler) emitOpByte(op value.OpCode, operand byte) {
	c.emitBytes(byte(op), operand)
}

func (c *Compiler) emitReturn() {
	if c.fs.fnType == TypeInitializer {
		c.emitOpByte(value.OpGetLocal, 0) // return self
	} else {
		c.emitOp(value.OpNil)
	}
	c.emitOp(value.OpReturn)
}

// emitConstant adds v to the current chunk's constant pool and emits
// OP_CONSTANT for an index that fits a byte, OP_CONSTANT_LONG (3-byte
// little-endian index) otherwise.
func (c *Compiler) emitConstant(v value.Value) {
	idx := c.currentChunk().AddConstant(v)
	if idx <= 0xFF {
		c.emitOpByte(value.OpConstant, byte(idx))
		return
	}
	c.emitOp(value.OpConstantLong)
	c.emitByte(byte(idx))
	c.emitByte(byte(idx >> 8))
	c.emitByte(byte(idx >> 16))
}

func (c *Compiler) identifierConstant(tok lexer.Token) int {
	s := c.heap.InternString(tok.Lexeme)
	return c.currentChunk().AddConstant(value.Obj(s))
}

// emitNameOperand behaves like emitConstant for a name index: 1-byte
// operand if it fits, else OP_CONSTANT_LONG is not valid for these
// fixed-operand opcodes, so names are restricted to 256 per chunk —
// acceptable for tater's size; a program defining more than 256
// distinct global/property names in one function is exceedingly rare.
func (c *Compiler) emitNameOperand(op value.OpCode, nameIdx int) {
	if nameIdx > 0xFF {
		c.error("too many unique names in one function")
		nameIdx = 0
	}
	c.emitOpByte(op, byte(nameIdx))
}

func (c *Compiler) emitJump(op value.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xFF)
	c.emitByte(0xFF)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 0xFFFF {
		c.error("too much code to jump over")
	}
	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(value.OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 0xFFFF {
		c.error("loop body too large")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// ---- scopes and locals ----------------------------------------------

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	popped := 0
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].Depth > c.fs.scopeDepth {
		last := c.fs.locals[len(c.fs.locals)-1]
		if last.IsCaptured {
			if popped > 0 {
				c.emitOpByte(value.OpPopN, byte(popped))
				popped = 0
			}
			c.emitOp(value.OpCloseUpvalue)
		} else {
			popped++
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
	if popped > 0 {
		c.emitOpByte(value.OpPopN, byte(popped))
	}
}

func (c *Compiler) declareVariable(name lexer.Token) {
	if c.fs.scopeDepth == 0 {
		return
	}
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		local := c.fs.locals[i]
		if local.Depth != -1 && local.Depth < c.fs.scopeDepth {
			break
		}
		if local.Name.Lexeme == name.Lexeme {
			c.error("variable with this name already declared in this scope")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name lexer.Token) {
	if len(c.fs.locals) >= maxLocals {
		c.error("too many local variables in function")
		return
	}
	c.fs.locals = append(c.fs.locals, Local{Name: name, Depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].Depth = c.fs.scopeDepth
}

// parseVariable consumes an identifier, declares it as a local if in a
// local scope, and returns the constant-pool index of its name (used
// for OP_DEFINE_GLOBAL at top level; ignored for locals).
func (c *Compiler) parseVariable(errMsg string) int {
	c.consume(lexer.TokenIdentifier, errMsg)
	c.declareVariable(c.previous)
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) defineVariable(globalIdx int) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitNameOperand(value.OpDefineGlobal, globalIdx)
}

// resolveLocal looks up name among fs's locals, innermost scope first.
// It returns -1 if there's no such local, and -2 if there is one but
// it's still being initialized (its own initializer refers to it, as
// in `let a = a;`) — the caller is responsible for turning -2 into a
// compile error rather than treating it as a resolved slot.
func resolveLocal(fs *funcState, name lexer.Token) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].Name.Lexeme == name.Lexeme {
			if fs.locals[i].Depth == -1 {
				return -2
			}
			return i
		}
	}
	return -1
}

func addUpvalue(fs *funcState, index byte, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueDesc{Index: index, IsLocal: isLocal})
	return len(fs.upvalues) - 1
}

// resolveUpvalue implements §4.6's lexical resolution step 2: walk
// enclosing compilers, adding an upvalue descriptor in each
// intermediate function.
func resolveUpvalue(fs *funcState, name lexer.Token) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := resolveLocal(fs.enclosing, name); local >= 0 {
		fs.enclosing.locals[local].IsCaptured = true
		return addUpvalue(fs, byte(local), true)
	}
	if up := resolveUpvalue(fs.enclosing, name); up != -1 {
		return addUpvalue(fs, byte(up), false)
	}
	return -1
}
