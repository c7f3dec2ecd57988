package gc

import "github.com/kristofer/tater/pkg/value"

// Approximate accounting sizes. Exact byte counts don't matter — only
// that bigger objects push bytesAllocated toward nextGC faster than
// small ones, the way clox's sizeof(Obj*) bookkeeping does.
const (
	baseObjSize = 48
)

// objRoot roots a single freshly built object for the span of its own
// track() call. track() may itself trigger a stress-GC cycle, and at
// that point the object is linked into the heap's sweep list but not
// yet reachable from any stack, frame, or global the collector would
// otherwise find — without this it would be swept as garbage in the
// same call that created it.
type objRoot struct{ v value.Value }

func (r objRoot) MarkRoots(mark func(value.Value)) { mark(r.v) }

// trackRooted is track, but with o held live across the call so a GC
// cycle triggered by this very allocation can't unlink it.
func (h *Heap) trackRooted(o value.Object, size int64) {
	h.PushRoot(objRoot{value.Obj(o)})
	h.track(o, size)
	h.PopRoot()
}

// InternString returns the unique ObjString with the given bytes,
// allocating and interning a new one only if none already exists.
func (h *Heap) InternString(s string) *value.ObjString {
	hash := value.FNV1a32(s)
	if existing := h.strings.FindString(s, hash); existing != nil {
		return existing
	}
	str := &value.ObjString{Chars: s, Hash: hash}
	str.Header.Kind = value.ObjKindString
	h.trackRooted(str, int64(baseObjSize+len(s)))
	h.strings.Set(value.Obj(str), value.True)
	return str
}

// NewFunction allocates an empty, unnamed Function with its own chunk.
func (h *Heap) NewFunction() *value.ObjFunction {
	fn := &value.ObjFunction{Chunk: &value.Chunk{}}
	fn.Header.Kind = value.ObjKindFunction
	h.trackRooted(fn, baseObjSize)
	return fn
}

// NewNative wraps a host function as a callable Native object.
func (h *Heap) NewNative(name string, arity int, fn value.NativeFn) *value.ObjNative {
	n := &value.ObjNative{Fn: fn, Arity: arity, Name: name}
	n.Header.Kind = value.ObjKindNative
	h.trackRooted(n, baseObjSize)
	return n
}

// NewClosure wraps fn with a fresh, nil-filled upvalue array sized to
// fn.UpvalueCount. Callers fill it in via OP_CLOSURE's operand pairs.
func (h *Heap) NewClosure(fn *value.ObjFunction) *value.ObjClosure {
	c := &value.ObjClosure{Function: fn, Upvalues: make([]*value.ObjUpvalue, fn.UpvalueCount)}
	c.Header.Kind = value.ObjKindClosure
	h.trackRooted(c, int64(baseObjSize+8*fn.UpvalueCount))
	return c
}

// NewUpvalue allocates an open upvalue pointing at slot.
func (h *Heap) NewUpvalue(slot *value.Value) *value.ObjUpvalue {
	u := &value.ObjUpvalue{Location: slot}
	u.Header.Kind = value.ObjKindUpvalue
	h.trackRooted(u, baseObjSize)
	return u
}

// NewUserType allocates a Type with empty field-default and method
// tables and no superclass.
func (h *Heap) NewUserType(name *value.ObjString) *value.ObjUserType {
	t := &value.ObjUserType{Name: name, Fields: &value.Table{}, Methods: &value.Table{}}
	t.Header.Kind = value.ObjKindUserType
	h.trackRooted(t, baseObjSize)
	return t
}

// NewInstance allocates an Instance of typ, copying its default field
// values.
func (h *Heap) NewInstance(typ *value.ObjUserType) *value.ObjInstance {
	inst := &value.ObjInstance{Type: typ, Fields: &value.Table{}}
	inst.Header.Kind = value.ObjKindInstance
	typ.Fields.CopyTo(inst.Fields)
	h.trackRooted(inst, int64(baseObjSize+16*typ.Fields.Len()))
	return inst
}

// NewBoundMethod pairs receiver with method.
func (h *Heap) NewBoundMethod(receiver value.Value, method *value.ObjClosure) *value.ObjBoundMethod {
	b := &value.ObjBoundMethod{Receiver: receiver, Method: method}
	b.Header.Kind = value.ObjKindBoundMethod
	h.trackRooted(b, baseObjSize)
	return b
}

// NewBoundNativeMethod pairs receiver with one of the fixed str/list/map
// method implementations.
func (h *Heap) NewBoundNativeMethod(receiver value.Value, name string, dispatch value.NativeMethodFn) *value.ObjBoundNativeMethod {
	b := &value.ObjBoundNativeMethod{Receiver: receiver, Name: name, Dispatch: dispatch}
	b.Header.Kind = value.ObjKindBoundNativeMethod
	h.trackRooted(b, baseObjSize)
	return b
}

// NewList allocates a List with the given initial elements (the slice
// is copied, not aliased).
func (h *Heap) NewList(elements []value.Value) *value.ObjList {
	l := &value.ObjList{Elements: append([]value.Value(nil), elements...)}
	l.Header.Kind = value.ObjKindList
	h.trackRooted(l, int64(baseObjSize+16*len(elements)))
	return l
}

// NewMap allocates an empty Map.
func (h *Heap) NewMap() *value.ObjMap {
	m := &value.ObjMap{Table: &value.Table{}}
	m.Header.Kind = value.ObjKindMap
	h.trackRooted(m, baseObjSize)
	return m
}
