// Package vm implements tater's stack-based bytecode interpreter: a
// fixed-size call-frame array, a fixed-capacity value stack (so
// captured-upvalue pointers into it never dangle across a reallocation),
// a globals table, and a dispatch loop over every value.OpCode.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/kristofer/tater/pkg/compiler"
	"github.com/kristofer/tater/pkg/gc"
	"github.com/kristofer/tater/pkg/value"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// InterpretResult reports how Interpret finished.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// Exit codes: 0 on normal completion, 65 on a compile error, 70 on an
// unrecovered runtime error, or whatever numeric value a program
// passes to exit().
const (
	ExitOK           = 0
	ExitCompileError = 65
	ExitRuntimeError = 70
)

type callFrame struct {
	closure   *value.ObjClosure
	ip        int
	slotsBase int
}

type openUpvalue struct {
	index int
	up    *value.ObjUpvalue
}

// VM is one interpreter instance. It is not safe for concurrent use.
type VM struct {
	frames     [framesMax]callFrame
	frameCount int

	stack []value.Value

	globals value.Table
	heap    *gc.Heap

	openUpvalues []openUpvalue

	strMethods map[string]value.NativeMethodFn
	listMethods map[string]value.NativeMethodFn
	mapMethods map[string]value.NativeMethodFn

	out    io.Writer
	errOut io.Writer
	log    zerolog.Logger

	argv []string

	trace    bool
	exitCode int
	exited   bool
}

// New creates a VM writing program output to out and runtime
// diagnostics to errOut (both default to os/Stdout/Stderr if nil).
func New(heap *gc.Heap, out, errOut io.Writer, log zerolog.Logger) *VM {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	vm := &VM{
		heap:   heap,
		out:    out,
		errOut: errOut,
		log:    log,
		stack:  make([]value.Value, 0, stackMax),
	}
	heap.PushRoot(vm)
	vm.registerNatives()
	return vm
}

// SetTrace enables per-instruction tracing to errOut (the --trace CLI
// flag): before each instruction executes, the value stack and the
// function name, offset and opcode name are written. Operands are not
// shown.
func (vm *VM) SetTrace(on bool) { vm.trace = on }

// SetArgv makes argv visible to scripts through the "argv" global.
func (vm *VM) SetArgv(args []string) {
	vm.argv = args
	elems := make([]value.Value, len(args))
	for i, a := range args {
		elems[i] = value.Obj(vm.heap.InternString(a))
	}
	vm.globals.Set(value.Obj(vm.heap.InternString("argv")), value.Obj(vm.heap.NewList(elems)))
}

// Heap implements value.NativeVM.
func (vm *VM) Heap() value.Allocator { return vm.heap }

// Push implements value.NativeVM: natives and bound native methods push
// their one return value through this.
func (vm *VM) Push(v value.Value) { vm.push(v) }

// Exit implements value.NativeVM for the "exit" native: it requests
// that the run loop stop after the current native call returns,
// reporting code as the process's exit status.
func (vm *VM) Exit(code int) {
	vm.exitCode = code
	vm.exited = true
}

func (vm *VM) push(v value.Value) {
	if len(vm.stack) == cap(vm.stack) {
		vm.RuntimeError("stack overflow")
		return
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// MarkRoots implements gc.RootSource: the value stack, every frame's
// closure, every open upvalue, and the globals table are all GC roots.
func (vm *VM) MarkRoots(mark func(value.Value)) {
	for _, v := range vm.stack {
		mark(v)
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(value.Obj(vm.frames[i].closure))
	}
	for _, ou := range vm.openUpvalues {
		mark(value.Obj(ou.up))
	}
	vm.globals.MarkEntries(mark)
}

// Interpret compiles and runs source, returning an exit code.
func (vm *VM) Interpret(source string) int {
	c := compiler.New(vm.heap, vm.errOut)
	fn, ok := c.Compile(source)
	if !ok {
		return ExitCompileError
	}

	closure := vm.heap.NewClosure(fn)
	vm.push(value.Obj(closure))
	vm.callClosure(closure, 0)

	vm.exited = false
	vm.exitCode = ExitOK
	result := vm.run()
	if result == InterpretRuntimeError {
		return ExitRuntimeError
	}
	return vm.exitCode
}

// InterpretFunction runs an already-compiled top-level function in a
// fresh call frame against this VM's existing globals.
func (vm *VM) InterpretFunction(fn *value.ObjFunction) InterpretResult {
	closure := vm.heap.NewClosure(fn)
	vm.push(value.Obj(closure))
	if !vm.callClosure(closure, 0) {
		return InterpretRuntimeError
	}
	return vm.run()
}

// InterpretCompiled runs a Function loaded from a serialized .taterc
// chunk (package bytecode), skipping the scan/compile stage entirely.
// The exit-code contract matches Interpret.
func (vm *VM) InterpretCompiled(fn *value.ObjFunction) int {
	closure := vm.heap.NewClosure(fn)
	vm.push(value.Obj(closure))
	vm.callClosure(closure, 0)

	vm.exited = false
	vm.exitCode = ExitOK
	result := vm.run()
	if result == InterpretRuntimeError {
		return ExitRuntimeError
	}
	return vm.exitCode
}

func (vm *VM) runtimeErrorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(vm.errOut, msg)
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := fn.Chunk.GetLine(frame.ip - 1)
		name := "<script>"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		fmt.Fprintf(vm.errOut, "[line %d] in %s\n", line, name)
	}
	vm.frameCount = 0
	vm.stack = vm.stack[:0]
}

// RuntimeError implements value.NativeVM; it reports err and always
// returns false so native implementations can `return vm.RuntimeError(...)`.
func (vm *VM) RuntimeError(format string, args ...interface{}) bool {
	vm.runtimeErrorf(format, args...)
	return false
}

func (vm *VM) run() InterpretResult {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value {
		idx := int(readByte())
		return frame.closure.Function.Chunk.Constants[idx]
	}
	readConstantLong := func() value.Value {
		b0 := int(readByte())
		b1 := int(readByte())
		b2 := int(readByte())
		idx := b0 | b1<<8 | b2<<16
		return frame.closure.Function.Chunk.Constants[idx]
	}
	readString := func() *value.ObjString { return readConstant().AsString() }

	for {
		if vm.trace {
			vm.traceInstruction(frame)
		}

		op := value.OpCode(readByte())
		switch op {
		case value.OpConstant:
			vm.push(readConstant())
		case value.OpConstantLong:
			vm.push(readConstantLong())
		case value.OpNil:
			vm.push(value.Nil)
		case value.OpTrue:
			vm.push(value.True)
		case value.OpFalse:
			vm.push(value.False)
		case value.OpPop:
			vm.pop()
		case value.OpPopN:
			n := int(readByte())
			vm.stack = vm.stack[:len(vm.stack)-n]
		case value.OpDup:
			vm.push(vm.peek(0))
		case value.OpDup2:
			a, b := vm.peek(1), vm.peek(0)
			vm.push(a)
			vm.push(b)

		case value.OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[frame.slotsBase+slot])
		case value.OpSetLocal:
			slot := int(readByte())
			vm.stack[frame.slotsBase+slot] = vm.peek(0)

		case value.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(value.Obj(name))
			if !ok {
				vm.runtimeErrorf("undefined variable '%s'", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(v)
		case value.OpSetGlobal:
			name := readString()
			if vm.globals.Set(value.Obj(name), vm.peek(0)) {
				vm.globals.Delete(value.Obj(name))
				vm.runtimeErrorf("undefined variable '%s'", name.Chars)
				return InterpretRuntimeError
			}
		case value.OpDefineGlobal:
			name := readString()
			vm.globals.Set(value.Obj(name), vm.peek(0))
			vm.pop()

		case value.OpGetUpvalue:
			slot := int(readByte())
			vm.push(*frame.closure.Upvalues[slot].Location)
		case value.OpSetUpvalue:
			slot := int(readByte())
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case value.OpGetProperty:
			if !vm.getProperty(readString()) {
				return InterpretRuntimeError
			}
		case value.OpSetProperty:
			if !vm.setProperty(readString()) {
				return InterpretRuntimeError
			}
		case value.OpGetSuper:
			name := readString()
			super := vm.pop().AsType()
			if !vm.bindMethod(super, name) {
				return InterpretRuntimeError
			}

		case value.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool_(value.Equal(a, b)))
		case value.OpGreater, value.OpLess:
			if !vm.numericCompare(op) {
				return InterpretRuntimeError
			}

		case value.OpAdd:
			if !vm.add() {
				return InterpretRuntimeError
			}
		case value.OpSub, value.OpMul, value.OpDiv, value.OpMod:
			if !vm.arithmetic(op) {
				return InterpretRuntimeError
			}
		case value.OpBitAnd, value.OpBitOr, value.OpBitXor, value.OpShiftLeft, value.OpShiftRight:
			if !vm.bitwise(op) {
				return InterpretRuntimeError
			}
		case value.OpBitNot:
			if !vm.peek(0).IsNumber() {
				vm.runtimeErrorf("operand must be a number")
				return InterpretRuntimeError
			}
			n := vm.pop()
			vm.push(value.Number(float64(^int64(n.Number))))
		case value.OpNot:
			vm.push(value.Bool_(vm.pop().IsFalsey()))
		case value.OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.runtimeErrorf("operand must be a number")
				return InterpretRuntimeError
			}
			n := vm.pop()
			vm.push(value.Number(-n.Number))

		case value.OpPrint:
			fmt.Fprintln(vm.out, value.Print(vm.pop()))

		case value.OpAssert:
			msg := vm.pop()
			cond := vm.pop()
			if cond.IsFalsey() {
				text := value.Print(msg)
				if text == "" {
					vm.runtimeErrorf("assertion failed")
				} else {
					vm.runtimeErrorf("assertion failed: %s", text)
				}
				return InterpretRuntimeError
			}

		case value.OpError:
			vm.runtimeErrorf("internal error: reached OP_ERROR")
			return InterpretRuntimeError

		case value.OpJump:
			offset := readShort()
			frame.ip += offset
		case value.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case value.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case value.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]
		case value.OpInvoke:
			nameIdx := int(readByte())
			argCount := int(readByte())
			name := frame.closure.Function.Chunk.Constants[nameIdx].AsString()
			if !vm.invoke(name, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]
		case value.OpSuperInvoke:
			nameIdx := int(readByte())
			argCount := int(readByte())
			name := frame.closure.Function.Chunk.Constants[nameIdx].AsString()
			super := vm.pop().AsType()
			if !vm.invokeFromType(super, name, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case value.OpClosure:
			fn := readConstant().AsFunction()
			closure := vm.heap.NewClosure(fn)
			vm.push(value.Obj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotsBase + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
		case value.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK
			}
			vm.stack = vm.stack[:frame.slotsBase]
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case value.OpExit:
			code := vm.pop()
			if !code.IsNumber() {
				vm.runtimeErrorf("exit code must be a number")
				return InterpretRuntimeError
			}
			vm.exitCode = int(code.Number)
			vm.exited = true
			return InterpretOK

		case value.OpType:
			name := readString()
			vm.push(value.Obj(vm.heap.NewUserType(name)))
		case value.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsType() {
				vm.runtimeErrorf("super type must be a type")
				return InterpretRuntimeError
			}
			subclass := vm.pop().AsType()
			super := superVal.AsType()
			subclass.Super = super
			super.Methods.CopyTo(subclass.Methods)
		case value.OpMethod:
			name := readString()
			method := vm.pop()
			typ := vm.peek(0).AsType()
			typ.Methods.Set(value.Obj(name), method)
		case value.OpField:
			name := readString()
			val := vm.pop()
			typ := vm.peek(0).AsType()
			typ.Fields.Set(value.Obj(name), val)

		case value.OpNewList:
			count := int(readByte())
			elems := append([]value.Value(nil), vm.stack[len(vm.stack)-count:]...)
			vm.stack = vm.stack[:len(vm.stack)-count]
			vm.push(value.Obj(vm.heap.NewList(elems)))
		case value.OpNewMap:
			count := int(readByte())
			m := vm.heap.NewMap()
			base := len(vm.stack) - count*2
			for i := 0; i < count; i++ {
				k := vm.stack[base+i*2]
				v := vm.stack[base+i*2+1]
				m.Table.Set(k, v)
			}
			vm.stack = vm.stack[:base]
			vm.push(value.Obj(m))

		default:
			vm.runtimeErrorf("internal error: unknown opcode %d", op)
			return InterpretRuntimeError
		}

		if vm.exited {
			return InterpretOK
		}
	}
}

func (vm *VM) numericCompare(op value.OpCode) bool {
	b := vm.pop()
	a := vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		vm.runtimeErrorf("operands must be numbers")
		return false
	}
	if op == value.OpGreater {
		vm.push(value.Bool_(a.Number > b.Number))
	} else {
		vm.push(value.Bool_(a.Number < b.Number))
	}
	return true
}

func (vm *VM) add() bool {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.Number + b.Number))
	case a.IsString() && b.IsString():
		vm.pop()
		vm.pop()
		vm.push(value.Obj(vm.heap.InternString(a.AsString().Chars + b.AsString().Chars)))
	default:
		vm.runtimeErrorf("operands must be two numbers or two strings")
		return false
	}
	return true
}

func (vm *VM) arithmetic(op value.OpCode) bool {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		vm.runtimeErrorf("operands must be numbers")
		return false
	}
	vm.pop()
	vm.pop()
	switch op {
	case value.OpSub:
		vm.push(value.Number(a.Number - b.Number))
	case value.OpMul:
		vm.push(value.Number(a.Number * b.Number))
	case value.OpDiv:
		if b.Number == 0 {
			vm.runtimeErrorf("division by zero")
			return false
		}
		vm.push(value.Number(a.Number / b.Number))
	case value.OpMod:
		if b.Number == 0 {
			vm.runtimeErrorf("division by zero")
			return false
		}
		ai, bi := int64(a.Number), int64(b.Number)
		vm.push(value.Number(float64(ai % bi)))
	}
	return true
}

func (vm *VM) bitwise(op value.OpCode) bool {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		vm.runtimeErrorf("operands must be numbers")
		return false
	}
	vm.pop()
	vm.pop()
	ai, bi := int64(a.Number), int64(b.Number)
	switch op {
	case value.OpBitAnd:
		vm.push(value.Number(float64(ai & bi)))
	case value.OpBitOr:
		vm.push(value.Number(float64(ai | bi)))
	case value.OpBitXor:
		vm.push(value.Number(float64(ai ^ bi)))
	case value.OpShiftLeft:
		vm.push(value.Number(float64(ai << uint64(bi))))
	case value.OpShiftRight:
		vm.push(value.Number(float64(ai >> uint64(bi))))
	}
	return true
}

func (vm *VM) getProperty(name *value.ObjString) bool {
	receiver := vm.peek(0)
	if !receiver.IsObject() {
		vm.runtimeErrorf("only instances and built-in collections have properties")
		return false
	}
	switch receiver.ObjKind() {
	case value.ObjKindInstance:
		inst := receiver.AsInstance()
		if v, ok := inst.Fields.Get(value.Obj(name)); ok {
			vm.pop()
			vm.push(v)
			return true
		}
		return vm.bindMethod(inst.Type, name)
	case value.ObjKindString, value.ObjKindList, value.ObjKindMap:
		return vm.bindBuiltinMethod(receiver, name)
	case value.ObjKindUserType:
		return vm.getTypeField(receiver.AsType(), name)
	default:
		vm.runtimeErrorf("only instances and built-in collections have properties")
		return false
	}
}

// bindBuiltinMethod turns a bare `s.len` (no immediate call) into a
// bound native method value, so it can be passed around and invoked
// later just like a bound user-type method.
func (vm *VM) bindBuiltinMethod(receiver value.Value, name *value.ObjString) bool {
	var table map[string]value.NativeMethodFn
	switch receiver.ObjKind() {
	case value.ObjKindString:
		table = vm.strMethods
	case value.ObjKindList:
		table = vm.listMethods
	case value.ObjKindMap:
		table = vm.mapMethods
	}
	fn, ok := table[name.Chars]
	if !ok {
		vm.runtimeErrorf("undefined method '%s'", name.Chars)
		return false
	}
	bound := vm.heap.NewBoundNativeMethod(receiver, name.Chars, fn)
	vm.pop()
	vm.push(value.Obj(bound))
	return true
}

// getTypeField exposes a type's declared fields as read-only values on
// the type itself (e.g. a default or class-level constant), distinct
// from per-instance fields which live on ObjInstance.
func (vm *VM) getTypeField(typ *value.ObjUserType, name *value.ObjString) bool {
	if v, ok := typ.Fields.Get(value.Obj(name)); ok {
		vm.pop()
		vm.push(v)
		return true
	}
	vm.runtimeErrorf("undefined property '%s'", name.Chars)
	return false
}

func (vm *VM) setProperty(name *value.ObjString) bool {
	receiver := vm.peek(1)
	if !receiver.IsInstance() {
		vm.runtimeErrorf("only instances have fields")
		return false
	}
	inst := receiver.AsInstance()
	val := vm.peek(0)
	inst.Fields.Set(value.Obj(name), val)
	vm.pop()
	vm.pop()
	vm.push(val)
	return true
}

func (vm *VM) bindMethod(typ *value.ObjUserType, name *value.ObjString) bool {
	method, ok := typ.Methods.Get(value.Obj(name))
	if !ok {
		vm.runtimeErrorf("undefined property '%s'", name.Chars)
		return false
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsClosure())
	vm.pop()
	vm.push(value.Obj(bound))
	return true
}

func (vm *VM) traceInstruction(frame *callFrame) {
	name := "<script>"
	if frame.closure.Function.Name != nil {
		name = frame.closure.Function.Name.Chars
	}
	fmt.Fprint(vm.errOut, "            ")
	for _, v := range vm.stack {
		fmt.Fprintf(vm.errOut, "[ %s ]", value.Print(v))
	}
	fmt.Fprintln(vm.errOut)
	op := value.OpCode(frame.closure.Function.Chunk.Code[frame.ip])
	fmt.Fprintf(vm.errOut, "%-12s %04d %s\n", name, frame.ip, op)
}
