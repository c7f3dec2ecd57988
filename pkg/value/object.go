package value

import "reflect"

// ObjKind discriminates the heap object variants.
type ObjKind uint8

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindNative
	ObjKindClosure
	ObjKindUpvalue
	ObjKindUserType
	ObjKindInstance
	ObjKindBoundMethod
	ObjKindBoundNativeMethod
	ObjKindList
	ObjKindMap
)

const objKindInvalid ObjKind = 0xFF

func (k ObjKind) String() string {
	switch k {
	case ObjKindString:
		return "string"
	case ObjKindFunction:
		return "function"
	case ObjKindNative:
		return "native"
	case ObjKindClosure:
		return "closure"
	case ObjKindUpvalue:
		return "upvalue"
	case ObjKindUserType:
		return "type"
	case ObjKindInstance:
		return "instance"
	case ObjKindBoundMethod:
		return "bound method"
	case ObjKindBoundNativeMethod:
		return "bound native method"
	case ObjKindList:
		return "list"
	case ObjKindMap:
		return "map"
	default:
		return "object"
	}
}

// Object is the interface every heap-allocated value implements. Every
// concrete Obj* type embeds Header and so satisfies it automatically.
type Object interface {
	header() *Header
}

// Header is the common object prefix: {type-tag, is_marked, next}. next
// links all live objects into a singly-linked list so the collector can
// sweep them; see package gc.
type Header struct {
	Kind     ObjKind
	IsMarked bool
	Next     Object
}

func (h *Header) header() *Header { return h }

// Marked/SetMarked/NextObj/SetNext give the GC uniform access to any
// Object's header without a type switch.
func Marked(o Object) bool       { return o.header().IsMarked }
func SetMarked(o Object, m bool) { o.header().IsMarked = m }
func NextObj(o Object) Object    { return o.header().Next }
func SetNext(o Object, n Object) { o.header().Next = n }
func KindOf(o Object) ObjKind    { return o.header().Kind }

func hashPointer(o Object) uint32 {
	p := reflect.ValueOf(o).Pointer()
	return uint32(p) ^ uint32(p>>32)
}

// ObjString is an interned, immutable byte sequence with a precomputed
// FNV-1a hash. No two live strings with identical bytes exist (§3).
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

// FNV1a32 computes the 32-bit FNV-1a hash used for string interning.
func FNV1a32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ObjFunction is a compiled function: its arity, upvalue count, owned
// chunk, and optional name. Negative arity means variadic (any argument
// count accepted).
type ObjFunction struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *ObjString
}

// NativeFn matches the native ABI: on success it pushes
// exactly one value via the VM and returns true; on failure it reports
// a runtime error and returns false.
type NativeFn func(vm NativeVM, args []Value) bool

// NativeVM is the narrow surface a native function needs from the VM:
// pushing its result, raising a runtime error, allocating, and (for
// the "exit" native) requesting process termination with a given code.
type NativeVM interface {
	Push(Value)
	RuntimeError(format string, args ...interface{}) bool
	Heap() Allocator
	Exit(code int)
}

// ObjNative wraps a host function pointer with its declared arity
// (negative = variadic) and name.
type ObjNative struct {
	Header
	Fn    NativeFn
	Arity int
	Name  string
}

// ObjUpvalue is either open (Location points into a live stack slot) or
// closed (it owns Closed). The VM indexes open upvalues by stack slot
// rather than threading them through a pointer-ordered list.
type ObjUpvalue struct {
	Header
	Location *Value
	Closed   Value
}

func (u *ObjUpvalue) IsOpen() bool { return u.Location != &u.Closed }

// ObjClosure pairs a Function with its captured upvalues.
type ObjClosure struct {
	Header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

// ObjUserType is a user-defined reference type: name, default field
// values, a method table, and an optional super type. Spec vocabulary
// calls this "Type"; it is named ObjUserType here to avoid colliding
// with Go's own type keyword.
type ObjUserType struct {
	Header
	Name    *ObjString
	Fields  *Table // field name -> default Value
	Methods *Table // method name -> Value wrapping *ObjClosure
	Super   *ObjUserType
}

// ObjInstance is a live instance of a user Type: the type plus its
// own field values.
type ObjInstance struct {
	Header
	Type   *ObjUserType
	Fields *Table
}

// ObjBoundMethod pairs a receiver value with the Closure implementing
// the method it was bound from.
type ObjBoundMethod struct {
	Header
	Receiver Value
	Method   *ObjClosure
}

// NativeMethodFn implements a built-in method dispatched through
// ObjBoundNativeMethod (str/list/map methods).
type NativeMethodFn func(vm NativeVM, receiver Value, args []Value) bool

// ObjBoundNativeMethod binds a receiver to one of the fixed str/list/map
// method names; Dispatch performs the actual operation.
type ObjBoundNativeMethod struct {
	Header
	Receiver Value
	Name     string
	Dispatch NativeMethodFn
}

// ObjList is a dynamic, 0-indexed sequence of Values.
type ObjList struct {
	Header
	Elements []Value
}

// ObjMap wraps a Table as a user-visible object; keys may be any Value.
type ObjMap struct {
	Header
	Table *Table
}
