package vm

import (
	"strconv"
	"time"

	"github.com/kristofer/tater/pkg/value"
)

// registerNatives installs the fixed set of global native functions
// and the built-in String/List/Map method tables used by OP_INVOKE's
// built-in-collection path.
func (vm *VM) registerNatives() {
	vm.defineNative("clock", 0, natClock)
	vm.defineNative("has_field", 2, natHasField)
	vm.defineNative("is", 2, natIs)
	vm.defineNative("sys_version", 0, natSysVersion)
	vm.defineNative("get_field", 2, natGetField)
	vm.defineNative("set_field", 3, natSetField)
	vm.defineNative("str", 1, natStr)
	vm.defineNative("list", -1, natList)
	vm.defineNative("map", -1, natMap)
	vm.defineNative("number", 1, natNumber)
	vm.defineNative("exit", 1, natExit)

	vm.strMethods = map[string]value.NativeMethodFn{
		"len":           strLen,
		"substr":        strSubstr,
		"subscript":     strSubscript,
		"subscript_set": strSubscriptSet,
	}
	vm.listMethods = map[string]value.NativeMethodFn{
		"len":           listLen,
		"get":           listGet,
		"set":           listSet,
		"clear":         listClear,
		"append":        listAppend,
		"remove":        listRemove,
		"subscript":     listGet,
		"subscript_set": listSet,
	}
	vm.mapMethods = map[string]value.NativeMethodFn{
		"len":           mapLen,
		"get":           mapGet,
		"set":           mapSet,
		"keys":          mapKeys,
		"values":        mapValues,
		"remove":        mapRemove,
		"subscript":     mapGet,
		"subscript_set": mapSet,
	}
}

func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	native := vm.heap.NewNative(name, arity, fn)
	vm.globals.Set(value.Obj(vm.heap.InternString(name)), value.Obj(native))
}

const taterVersion = "0.1.0"

func natClock(nvm value.NativeVM, args []value.Value) bool {
	nvm.Push(value.Number(float64(time.Now().UnixNano()) / 1e9))
	return true
}

func natSysVersion(nvm value.NativeVM, args []value.Value) bool {
	nvm.Push(value.Obj(nvm.Heap().InternString(taterVersion)))
	return true
}

func natHasField(nvm value.NativeVM, args []value.Value) bool {
	if !args[0].IsInstance() || !args[1].IsString() {
		return nvm.RuntimeError("has_field expects (instance, name)")
	}
	_, ok := args[0].AsInstance().Fields.Get(value.Obj(args[1].AsString()))
	nvm.Push(value.Bool_(ok))
	return true
}

func natGetField(nvm value.NativeVM, args []value.Value) bool {
	if !args[0].IsInstance() || !args[1].IsString() {
		return nvm.RuntimeError("get_field expects (instance, name)")
	}
	v, ok := args[0].AsInstance().Fields.Get(value.Obj(args[1].AsString()))
	if !ok {
		nvm.Push(value.Nil)
		return true
	}
	nvm.Push(v)
	return true
}

func natSetField(nvm value.NativeVM, args []value.Value) bool {
	if !args[0].IsInstance() || !args[1].IsString() {
		return nvm.RuntimeError("set_field expects (instance, name, value)")
	}
	args[0].AsInstance().Fields.Set(value.Obj(args[1].AsString()), args[2])
	nvm.Push(value.Nil)
	return true
}

// natIs implements tater's pseudo-type predicate: `is(v, "number")` for
// the built-in kinds, or `is(v, SomeType)` which walks v's instance
// type chain looking for SomeType.
func natIs(nvm value.NativeVM, args []value.Value) bool {
	v, designator := args[0], args[1]
	if designator.IsType() {
		if !v.IsInstance() {
			nvm.Push(value.False)
			return true
		}
		for t := v.AsInstance().Type; t != nil; t = t.Super {
			if t == designator.AsType() {
				nvm.Push(value.True)
				return true
			}
		}
		nvm.Push(value.False)
		return true
	}
	if !designator.IsString() {
		return nvm.RuntimeError("is() expects a type name string or a type")
	}
	var match bool
	switch designator.AsString().Chars {
	case "nil":
		match = v.IsNil()
	case "bool":
		match = v.IsBool()
	case "number":
		match = v.IsNumber()
	case "string":
		match = v.IsString()
	case "list":
		match = v.IsList()
	case "map":
		match = v.IsMap()
	case "function":
		match = v.IsClosure() || v.IsNative() || v.IsBoundMethod() || v.IsBoundNativeMethod()
	case "instance":
		match = v.IsInstance()
	case "type":
		match = v.IsType()
	default:
		return nvm.RuntimeError("unknown type name '%s'", designator.AsString().Chars)
	}
	nvm.Push(value.Bool_(match))
	return true
}

func natStr(nvm value.NativeVM, args []value.Value) bool {
	nvm.Push(value.Obj(value.ToString(nvm.Heap(), args[0])))
	return true
}

// natList builds a list from its arguments, except when called with a
// single existing list: list(L) copies L (same length and elements)
// rather than wrapping it as a one-element list.
func natList(nvm value.NativeVM, args []value.Value) bool {
	if len(args) == 1 && args[0].IsList() {
		nvm.Push(value.Obj(nvm.Heap().NewList(args[0].AsList().Elements)))
		return true
	}
	nvm.Push(value.Obj(nvm.Heap().NewList(args)))
	return true
}

// natMap builds a map from (key, value, key, value, ...) arguments,
// except when called with a single existing map: map(M) copies M's
// entries rather than treating M itself as a key.
func natMap(nvm value.NativeVM, args []value.Value) bool {
	if len(args) == 1 && args[0].IsMap() {
		m := nvm.Heap().NewMap()
		args[0].AsMap().Table.CopyTo(m.Table)
		nvm.Push(value.Obj(m))
		return true
	}
	if len(args)%2 != 0 {
		return nvm.RuntimeError("map expects (existingMap) or an even number of key/value arguments")
	}
	m := nvm.Heap().NewMap()
	for i := 0; i < len(args); i += 2 {
		m.Table.Set(args[i], args[i+1])
	}
	nvm.Push(value.Obj(m))
	return true
}

// natExit implements the "exit" native: termination is reached through
// a regular function call rather than a dedicated statement form, so
// exit composes like any other builtin (it can appear mid-expression).
func natExit(nvm value.NativeVM, args []value.Value) bool {
	if !args[0].IsNumber() {
		return nvm.RuntimeError("exit expects a numeric exit code")
	}
	nvm.Exit(int(args[0].Number))
	nvm.Push(value.Nil)
	return true
}

func natNumber(nvm value.NativeVM, args []value.Value) bool {
	switch {
	case args[0].IsNil():
		nvm.Push(value.Number(0))
	case args[0].IsNumber():
		nvm.Push(args[0])
	case args[0].IsString():
		n, err := strconv.ParseFloat(args[0].AsString().Chars, 64)
		if err != nil {
			return nvm.RuntimeError("cannot convert '%s' to a number", args[0].AsString().Chars)
		}
		nvm.Push(value.Number(n))
	case args[0].IsBool():
		if args[0].Bool {
			nvm.Push(value.Number(1))
		} else {
			nvm.Push(value.Number(0))
		}
	default:
		return nvm.RuntimeError("cannot convert value to a number")
	}
	return true
}

// resolveIndex turns a user-supplied index (possibly negative, meaning
// "from the end") into an in-bounds offset, or reports a runtime error.
func resolveIndex(nvm value.NativeVM, idx value.Value, length int) (int, bool) {
	if !idx.IsNumber() {
		return 0, nvm.RuntimeError("index must be a number")
	}
	i := int(idx.Number)
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, nvm.RuntimeError("index out of bounds")
	}
	return i, true
}

func strLen(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	nvm.Push(value.Number(float64(len(receiver.AsString().Chars))))
	return true
}

func strSubstr(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	chars := receiver.AsString().Chars
	if len(args) != 2 || !args[0].IsNumber() || !args[1].IsNumber() {
		return nvm.RuntimeError("substr expects (start, end)")
	}
	start, end := int(args[0].Number), int(args[1].Number)
	if start < 0 {
		start += len(chars)
	}
	if end < 0 {
		end += len(chars)
	}
	if start < 0 || end > len(chars) || start > end {
		return nvm.RuntimeError("substr range out of bounds")
	}
	nvm.Push(value.Obj(nvm.Heap().InternString(chars[start:end])))
	return true
}

func strSubscript(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	chars := receiver.AsString().Chars
	i, ok := resolveIndex(nvm, args[0], len(chars))
	if !ok {
		return false
	}
	nvm.Push(value.Obj(nvm.Heap().InternString(string(chars[i]))))
	return true
}

func strSubscriptSet(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	return nvm.RuntimeError("strings are immutable")
}

func listLen(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	nvm.Push(value.Number(float64(len(receiver.AsList().Elements))))
	return true
}

func listGet(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	l := receiver.AsList()
	i, ok := resolveIndex(nvm, args[0], len(l.Elements))
	if !ok {
		return false
	}
	nvm.Push(l.Elements[i])
	return true
}

func listSet(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	l := receiver.AsList()
	i, ok := resolveIndex(nvm, args[0], len(l.Elements))
	if !ok {
		return false
	}
	l.Elements[i] = args[1]
	nvm.Push(args[1])
	return true
}

func listClear(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	receiver.AsList().Elements = nil
	nvm.Push(value.Nil)
	return true
}

func listAppend(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	l := receiver.AsList()
	l.Elements = append(l.Elements, args[0])
	nvm.Push(value.Nil)
	return true
}

func listRemove(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	l := receiver.AsList()
	i, ok := resolveIndex(nvm, args[0], len(l.Elements))
	if !ok {
		return false
	}
	removed := l.Elements[i]
	l.Elements = append(l.Elements[:i], l.Elements[i+1:]...)
	nvm.Push(removed)
	return true
}

func mapLen(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	nvm.Push(value.Number(float64(receiver.AsMap().Table.Len())))
	return true
}

func mapGet(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	v, ok := receiver.AsMap().Table.Get(args[0])
	if !ok {
		nvm.Push(value.Nil)
		return true
	}
	nvm.Push(v)
	return true
}

func mapSet(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	receiver.AsMap().Table.Set(args[0], args[1])
	nvm.Push(args[1])
	return true
}

func mapKeys(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	var keys []value.Value
	receiver.AsMap().Table.Each(func(k, v value.Value) { keys = append(keys, k) })
	nvm.Push(value.Obj(nvm.Heap().NewList(keys)))
	return true
}

func mapValues(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	var vals []value.Value
	receiver.AsMap().Table.Each(func(k, v value.Value) { vals = append(vals, v) })
	nvm.Push(value.Obj(nvm.Heap().NewList(vals)))
	return true
}

func mapRemove(nvm value.NativeVM, receiver value.Value, args []value.Value) bool {
	existed := receiver.AsMap().Table.Delete(args[0])
	nvm.Push(value.Bool_(existed))
	return true
}
