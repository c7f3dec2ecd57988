package vm

import "github.com/kristofer/tater/pkg/value"

// callValue dispatches a value in call position: closures, natives,
// bound methods (both user and built-in), and types used as
// constructors.
func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if !callee.IsObject() {
		vm.runtimeErrorf("can only call functions and types")
		return false
	}
	switch callee.ObjKind() {
	case value.ObjKindClosure:
		return vm.callClosure(callee.AsClosure(), argCount)
	case value.ObjKindNative:
		return vm.callNative(callee.AsNative(), argCount)
	case value.ObjKindBoundMethod:
		bm := callee.AsBoundMethod()
		vm.stack[len(vm.stack)-argCount-1] = bm.Receiver
		return vm.callClosure(bm.Method, argCount)
	case value.ObjKindBoundNativeMethod:
		bnm := callee.AsBoundNativeMethod()
		return vm.callNativeMethod(bnm.Dispatch, bnm.Receiver, argCount)
	case value.ObjKindUserType:
		return vm.instantiate(callee.AsType(), argCount)
	default:
		vm.runtimeErrorf("can only call functions and types")
		return false
	}
}

func (vm *VM) instantiate(typ *value.ObjUserType, argCount int) bool {
	inst := vm.heap.NewInstance(typ)
	vm.stack[len(vm.stack)-argCount-1] = value.Obj(inst)
	if initializer, ok := typ.Methods.Get(value.Obj(vm.heap.InitString())); ok {
		return vm.callClosure(initializer.AsClosure(), argCount)
	}
	if argCount != 0 {
		vm.runtimeErrorf("expected 0 arguments but got %d", argCount)
		return false
	}
	return true
}

func (vm *VM) callClosure(closure *value.ObjClosure, argCount int) bool {
	arity := closure.Function.Arity
	if arity >= 0 && argCount != arity {
		vm.runtimeErrorf("expected %d arguments but got %d", arity, argCount)
		return false
	}
	if vm.frameCount == framesMax {
		vm.runtimeErrorf("stack overflow")
		return false
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = len(vm.stack) - argCount - 1
	return true
}

func (vm *VM) callNative(native *value.ObjNative, argCount int) bool {
	if native.Arity >= 0 && argCount != native.Arity {
		vm.runtimeErrorf("expected %d arguments but got %d", native.Arity, argCount)
		return false
	}
	args := vm.stack[len(vm.stack)-argCount:]
	before := len(vm.stack)
	if !native.Fn(vm, args) {
		return false
	}
	result := vm.stack[len(vm.stack)-1]
	if len(vm.stack) != before+1 {
		vm.runtimeErrorf("internal error: native '%s' did not push exactly one result", native.Name)
		return false
	}
	vm.stack = vm.stack[:before-argCount-1]
	vm.push(result)
	return true
}

func (vm *VM) callNativeMethod(dispatch value.NativeMethodFn, receiver value.Value, argCount int) bool {
	args := vm.stack[len(vm.stack)-argCount:]
	before := len(vm.stack)
	if !dispatch(vm, receiver, args) {
		return false
	}
	result := vm.stack[len(vm.stack)-1]
	if len(vm.stack) != before+1 {
		vm.runtimeErrorf("internal error: bound method did not push exactly one result")
		return false
	}
	vm.stack = vm.stack[:before-argCount-1]
	vm.push(result)
	return true
}

// invoke implements OP_INVOKE: a fused get-property-then-call that
// skips materializing an intermediate ObjBoundMethod for the common
// case of calling a method by name.
func (vm *VM) invoke(name *value.ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if !receiver.IsObject() {
		vm.runtimeErrorf("only instances and built-in collections have methods")
		return false
	}
	switch receiver.ObjKind() {
	case value.ObjKindInstance:
		inst := receiver.AsInstance()
		if field, ok := inst.Fields.Get(value.Obj(name)); ok {
			vm.stack[len(vm.stack)-argCount-1] = field
			return vm.callValue(field, argCount)
		}
		return vm.invokeFromType(inst.Type, name, argCount)
	case value.ObjKindString, value.ObjKindList, value.ObjKindMap:
		return vm.invokeBuiltinMethod(receiver, name, argCount)
	default:
		vm.runtimeErrorf("only instances and built-in collections have methods")
		return false
	}
}

func (vm *VM) invokeFromType(typ *value.ObjUserType, name *value.ObjString, argCount int) bool {
	method, ok := typ.Methods.Get(value.Obj(name))
	if !ok {
		vm.runtimeErrorf("undefined property '%s'", name.Chars)
		return false
	}
	return vm.callClosure(method.AsClosure(), argCount)
}

func (vm *VM) invokeBuiltinMethod(receiver value.Value, name *value.ObjString, argCount int) bool {
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
	return vm.callNativeMethod(fn, receiver, argCount)
}

// captureUpvalue returns the open upvalue for absolute stack index slot,
// reusing an existing one if any closure already captured that slot.
func (vm *VM) captureUpvalue(slot int) *value.ObjUpvalue {
	for _, ou := range vm.openUpvalues {
		if ou.index == slot {
			return ou.up
		}
	}
	up := vm.heap.NewUpvalue(&vm.stack[slot])
	vm.openUpvalues = append(vm.openUpvalues, openUpvalue{index: slot, up: up})
	return up
}

// closeUpvalues closes every open upvalue at or above absolute stack
// index from, copying its value out of the stack before the slot is
// popped or overwritten.
func (vm *VM) closeUpvalues(from int) {
	kept := vm.openUpvalues[:0]
	for _, ou := range vm.openUpvalues {
		if ou.index >= from {
			ou.up.Closed = *ou.up.Location
			ou.up.Location = &ou.up.Closed
		} else {
			kept = append(kept, ou)
		}
	}
	vm.openUpvalues = kept
}
