package value

import "sort"

// OpCode is a single bytecode instruction tag.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpConstantLong
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpPopN
	OpDup
	OpDup2
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpSetGlobal
	OpDefineGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpSuperInvoke
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShiftLeft
	OpShiftRight
	OpBitNot
	OpNot
	OpNegate
	OpPrint
	OpError
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpExit
	OpType
	OpInherit
	OpMethod
	OpField
	OpAssert
	OpNewList
	OpNewMap
)

var opcodeNames = [...]string{
	OpConstant:      "OP_CONSTANT",
	OpConstantLong:  "OP_CONSTANT_LONG",
	OpNil:           "OP_NIL",
	OpTrue:          "OP_TRUE",
	OpFalse:         "OP_FALSE",
	OpPop:           "OP_POP",
	OpPopN:          "OP_POPN",
	OpDup:           "OP_DUP",
	OpDup2:          "OP_DUP2",
	OpGetLocal:      "OP_GET_LOCAL",
	OpSetLocal:      "OP_SET_LOCAL",
	OpGetGlobal:     "OP_GET_GLOBAL",
	OpSetGlobal:     "OP_SET_GLOBAL",
	OpDefineGlobal:  "OP_DEFINE_GLOBAL",
	OpGetUpvalue:    "OP_GET_UPVALUE",
	OpSetUpvalue:    "OP_SET_UPVALUE",
	OpGetProperty:   "OP_GET_PROPERTY",
	OpSetProperty:   "OP_SET_PROPERTY",
	OpGetSuper:      "OP_GET_SUPER",
	OpSuperInvoke:   "OP_SUPER_INVOKE",
	OpEqual:         "OP_EQUAL",
	OpGreater:       "OP_GREATER",
	OpLess:          "OP_LESS",
	OpAdd:           "OP_ADD",
	OpSub:           "OP_SUB",
	OpMul:           "OP_MUL",
	OpDiv:           "OP_DIV",
	OpMod:           "OP_MOD",
	OpBitAnd:        "OP_BITWISE_AND",
	OpBitOr:         "OP_BITWISE_OR",
	OpBitXor:        "OP_BITWISE_XOR",
	OpShiftLeft:     "OP_SHIFT_LEFT",
	OpShiftRight:    "OP_SHIFT_RIGHT",
	OpBitNot:        "OP_BITWISE_NOT",
	OpNot:           "OP_NOT",
	OpNegate:        "OP_NEGATE",
	OpPrint:         "OP_PRINT",
	OpError:         "OP_ERROR",
	OpJump:          "OP_JUMP",
	OpJumpIfFalse:   "OP_JUMP_IF_FALSE",
	OpLoop:          "OP_LOOP",
	OpCall:          "OP_CALL",
	OpInvoke:        "OP_INVOKE",
	OpClosure:       "OP_CLOSURE",
	OpCloseUpvalue:  "OP_CLOSE_UPVALUE",
	OpReturn:        "OP_RETURN",
	OpExit:          "OP_EXIT",
	OpType:          "OP_TYPE",
	OpInherit:       "OP_INHERIT",
	OpMethod:        "OP_METHOD",
	OpField:         "OP_FIELD",
	OpAssert:        "OP_ASSERT",
	OpNewList:       "OP_NEW_LIST",
	OpNewMap:        "OP_NEW_MAP",
}

func (op OpCode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "OP_UNKNOWN"
}

// LineRun is one entry of the chunk's run-length line table: the byte
// offset at which source line Line begins.
type LineRun struct {
	Offset int
	Line   int
}

// Chunk is a function's bytecode: a byte buffer, a constant pool, and a
// run-length-encoded line table.
type Chunk struct {
	Code      []byte
	Constants []Value
	lines     []LineRun
}

// Write appends one instruction byte at the given source line.
func (c *Chunk) Write(b byte, line int) {
	if len(c.lines) == 0 || c.lines[len(c.lines)-1].Line != line {
		c.lines = append(c.lines, LineRun{Offset: len(c.Code), Line: line})
	}
	c.Code = append(c.Code, b)
}

// Lines returns the chunk's run-length line table, for serialization.
func (c *Chunk) Lines() []LineRun { return c.lines }

// SetLines replaces the chunk's run-length line table, used when
// reconstructing a Chunk from a serialized form.
func (c *Chunk) SetLines(lines []LineRun) { c.lines = lines }

// AddConstant appends v to the constant pool and returns its index.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// GetLine returns the source line of the latest Write whose byte offset
// is <= offset, found by binary search over the run-length table.
func (c *Chunk) GetLine(offset int) int {
	i := sort.Search(len(c.lines), func(i int) bool {
		return c.lines[i].Offset > offset
	})
	if i == 0 {
		return 0
	}
	return c.lines[i-1].Line
}
