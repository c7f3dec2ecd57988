// Package value defines the tagged Value union and the heap Object model
// shared by the compiler and the VM.
//
// A Value is a small, copyable struct: nil, bool, number, the internal
// "empty" sentinel, or a reference to a heap Object. Heap objects (strings,
// functions, closures, upvalues, types, instances, lists, maps, bound
// methods) are allocated through NewHeap and linked into a single list so
// the garbage collector can sweep them; see package gc.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the payload a Value currently holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	// KindEmpty is the key-absent marker used only inside Table. User code
	// never observes it.
	KindEmpty
	KindObject
)

// Value is tater's tagged union: {nil, bool, number, empty, object}.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Obj    Object
}

var (
	Nil   = Value{Kind: KindNil}
	True  = Value{Kind: KindBool, Bool: true}
	False = Value{Kind: KindBool, Bool: false}
	Empty = Value{Kind: KindEmpty}
)

func Bool_(b bool) Value {
	if b {
		return True
	}
	return False
}

func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

func Obj(o Object) Value { return Value{Kind: KindObject, Obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsEmpty() bool  { return v.Kind == KindEmpty }
func (v Value) IsObject() bool { return v.Kind == KindObject }

func (v Value) ObjKind() ObjKind {
	if v.Kind != KindObject || v.Obj == nil {
		return objKindInvalid
	}
	return v.Obj.header().Kind
}

func (v Value) IsString() bool            { return v.ObjKind() == ObjKindString }
func (v Value) IsList() bool              { return v.ObjKind() == ObjKindList }
func (v Value) IsMap() bool               { return v.ObjKind() == ObjKindMap }
func (v Value) IsInstance() bool          { return v.ObjKind() == ObjKindInstance }
func (v Value) IsType() bool              { return v.ObjKind() == ObjKindUserType }
func (v Value) IsClosure() bool           { return v.ObjKind() == ObjKindClosure }
func (v Value) IsFunction() bool          { return v.ObjKind() == ObjKindFunction }
func (v Value) IsNative() bool            { return v.ObjKind() == ObjKindNative }
func (v Value) IsBoundMethod() bool       { return v.ObjKind() == ObjKindBoundMethod }
func (v Value) IsBoundNativeMethod() bool { return v.ObjKind() == ObjKindBoundNativeMethod }

func (v Value) AsString() *ObjString     { return v.Obj.(*ObjString) }
func (v Value) AsList() *ObjList         { return v.Obj.(*ObjList) }
func (v Value) AsMap() *ObjMap           { return v.Obj.(*ObjMap) }
func (v Value) AsInstance() *ObjInstance { return v.Obj.(*ObjInstance) }
func (v Value) AsType() *ObjUserType     { return v.Obj.(*ObjUserType) }
func (v Value) AsClosure() *ObjClosure   { return v.Obj.(*ObjClosure) }
func (v Value) AsFunction() *ObjFunction { return v.Obj.(*ObjFunction) }
func (v Value) AsNative() *ObjNative     { return v.Obj.(*ObjNative) }
func (v Value) AsBoundMethod() *ObjBoundMethod { return v.Obj.(*ObjBoundMethod) }
func (v Value) AsBoundNativeMethod() *ObjBoundNativeMethod {
	return v.Obj.(*ObjBoundNativeMethod)
}

// IsFalsey reports whether v is considered false in a boolean context.
//
// nil, false, and numeric zero are falsey; everything else — including
// the empty string and empty list/map — is truthy. This is a deliberate
// deviation from classical Lox, kept per the language's test suite.
func (v Value) IsFalsey() bool {
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return !v.Bool
	case KindNumber:
		return v.Number == 0
	default:
		return false
	}
}

// Equal implements tag-first value equality: numbers compare with ==,
// object values compare by reference identity (interning makes string
// equality equivalent to identity).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil, KindEmpty:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Number == b.Number
	case KindObject:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// Hash implements §4.2: booleans map to fixed constants, numbers use a
// bit-mix of v+1.0, strings use their precomputed FNV-1a hash, everything
// else hashes by identity.
func Hash(v Value) uint32 {
	switch v.Kind {
	case KindNil:
		return 7
	case KindEmpty:
		return 0
	case KindBool:
		if v.Bool {
			return 3
		}
		return 5
	case KindNumber:
		bits := math.Float64bits(v.Number + 1.0)
		return uint32(bits) + uint32(bits>>32)
	case KindObject:
		if s, ok := v.Obj.(*ObjString); ok {
			return s.Hash
		}
		// Identity-keyed: fold the pointer bits of the object header.
		return hashPointer(v.Obj)
	default:
		return 0
	}
}

// ToString returns an interned String for v. Never prints.
func ToString(heap Allocator, v Value) *ObjString {
	return heap.InternString(Print(v))
}

// Print produces tater's canonical textual form for v. Lists and maps
// below ListMapPrintThreshold elements print their contents recursively;
// larger ones print a compact "<list N>" / "<map N>" summary.
const ListMapPrintThreshold = 64

func Print(v Value) string {
	var b strings.Builder
	writeValue(&b, v, make(map[Object]bool))
	return b.String()
}

func writeValue(b *strings.Builder, v Value, seen map[Object]bool) {
	switch v.Kind {
	case KindNil:
		b.WriteString("nil")
	case KindBool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNumber:
		b.WriteString(formatNumber(v.Number))
	case KindEmpty:
		b.WriteString("<empty>")
	case KindObject:
		writeObject(b, v.Obj, seen)
	}
}

func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if math.IsNaN(n) {
		return "nan"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func writeObject(b *strings.Builder, o Object, seen map[Object]bool) {
	switch obj := o.(type) {
	case *ObjString:
		b.WriteString(obj.Chars)
	case *ObjFunction:
		if obj.Name == nil {
			b.WriteString("<script>")
		} else {
			fmt.Fprintf(b, "<fn %s>", obj.Name.Chars)
		}
	case *ObjNative:
		fmt.Fprintf(b, "<native %s>", obj.Name)
	case *ObjClosure:
		writeObject(b, obj.Function, seen)
	case *ObjUpvalue:
		b.WriteString("<upvalue>")
	case *ObjUserType:
		fmt.Fprintf(b, "<type %s>", obj.Name.Chars)
	case *ObjInstance:
		fmt.Fprintf(b, "<instance %s>", obj.Type.Name.Chars)
	case *ObjBoundMethod:
		writeObject(b, obj.Method.Function, seen)
	case *ObjBoundNativeMethod:
		fmt.Fprintf(b, "<bound-method %s>", obj.Name)
	case *ObjList:
		if seen[o] {
			b.WriteString("<list ...>")
			return
		}
		if len(obj.Elements) > ListMapPrintThreshold {
			fmt.Fprintf(b, "<list %d>", len(obj.Elements))
			return
		}
		seen[o] = true
		b.WriteByte('[')
		for i, e := range obj.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			if e.IsString() {
				fmt.Fprintf(b, "%q", e.AsString().Chars)
			} else {
				writeValue(b, e, seen)
			}
		}
		b.WriteByte(']')
		delete(seen, o)
	case *ObjMap:
		if seen[o] {
			b.WriteString("<map ...>")
			return
		}
		if obj.Table.Count() > ListMapPrintThreshold {
			fmt.Fprintf(b, "<map %d>", obj.Table.Count())
			return
		}
		seen[o] = true
		b.WriteByte('{')
		first := true
		obj.Table.Each(func(k, v Value) {
			if !first {
				b.WriteString(", ")
			}
			first = false
			writeValue(b, k, seen)
			b.WriteString(": ")
			writeValue(b, v, seen)
		})
		b.WriteByte('}')
		delete(seen, o)
	default:
		b.WriteString("<object>")
	}
}

// Allocator is the narrow view of the heap that value package helpers
// and native functions need, satisfied by *gc.Heap. Kept here (rather
// than importing gc) to avoid an import cycle between value and gc.
type Allocator interface {
	InternString(s string) *ObjString
	NewList(elements []Value) *ObjList
	NewMap() *ObjMap
}
