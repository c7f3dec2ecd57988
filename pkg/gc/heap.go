// Package gc implements tater's allocator and tracing garbage collector.
//
// Every heap object (strings, functions, closures, upvalues, types,
// instances, lists, maps, bound methods) is created through a Heap. The
// Heap tracks bytes_allocated and triggers a tri-color mark-sweep cycle
// either when a debug "stress" flag is set or when the threshold set by
// the previous cycle is exceeded.
//
// The collector needs to see live references it does not itself own:
// the VM's value stack, call frames, open upvalues, globals table, and
// the compiler's in-progress function chain. Those owners register
// themselves as a RootSource; Collect asks every registered source to
// mark its roots before tracing.
package gc

import (
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/kristofer/tater/pkg/value"
)

// RootSource is implemented by anything that can hold live references
// the collector would otherwise see as garbage: the VM (stack, frames,
// open upvalues, globals) and the compiler (in-progress functions).
type RootSource interface {
	MarkRoots(mark func(value.Value))
}

// Heap owns every object and runs the collector.
type Heap struct {
	head           value.Object
	bytesAllocated int64
	nextGC         int64
	strings        value.Table
	initString     *value.ObjString
	stressGC       bool
	gcActive       bool
	grayStack      []value.Object
	roots          []RootSource
	log            zerolog.Logger
	heapGrowFactor int64
	cycles         int
}

const defaultNextGC = 1 << 20 // 1 MiB

// NewHeap creates an empty heap. The "init" string is interned eagerly
// since the compiler and VM both need a stable constant for initializer
// method lookup.
func NewHeap(log zerolog.Logger) *Heap {
	h := &Heap{nextGC: defaultNextGC, log: log, heapGrowFactor: 2}
	h.initString = h.InternString("init")
	return h
}

// InitString returns the interned "init" constant used to recognize
// type initializer methods.
func (h *Heap) InitString() *value.ObjString { return h.initString }

// SetStressGC forces a collection cycle on every allocation; used by
// --gc-stress and by GC correctness tests.
func (h *Heap) SetStressGC(on bool) { h.stressGC = on }

// SetHeapGrowFactor overrides the default 2x next-threshold multiplier.
func (h *Heap) SetHeapGrowFactor(f int64) {
	if f > 0 {
		h.heapGrowFactor = f
	}
}

// PushRoot registers r as a root source until PopRoot removes it. The
// compiler pushes itself while compiling nested functions so partially
// built Function objects are not swept before OP_CLOSURE completes.
func (h *Heap) PushRoot(r RootSource) { h.roots = append(h.roots, r) }

// PopRoot removes the most recently pushed root source.
func (h *Heap) PopRoot() {
	if n := len(h.roots); n > 0 {
		h.roots = h.roots[:n-1]
	}
}

// BytesAllocated reports the heap's current accounted size.
func (h *Heap) BytesAllocated() int64 { return h.bytesAllocated }

// NextGCThreshold reports the byte count that triggers the next cycle.
func (h *Heap) NextGCThreshold() int64 { return h.nextGC }

func (h *Heap) track(o value.Object, size int64) {
	if h.gcActive {
		panic("gc: allocation attempted while collection is active")
	}
	value.SetNext(o, h.head)
	h.head = o
	h.bytesAllocated += size
	if h.stressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
}

// Collect runs one full mark-sweep cycle.
func (h *Heap) Collect() {
	h.gcActive = true
	before := h.bytesAllocated

	h.markRoots()
	h.traceReferences()
	h.sweepStrings()
	h.sweep()

	h.nextGC = h.bytesAllocated * h.heapGrowFactor
	if h.nextGC < defaultNextGC {
		h.nextGC = defaultNextGC
	}
	h.cycles++
	h.gcActive = false

	h.log.Debug().
		Str("before", humanize.Bytes(uint64(before))).
		Str("after", humanize.Bytes(uint64(h.bytesAllocated))).
		Str("next_threshold", humanize.Bytes(uint64(h.nextGC))).
		Int("cycle", h.cycles).
		Msg("gc cycle")
}

func (h *Heap) markRoots() {
	for _, r := range h.roots {
		r.MarkRoots(h.markValue)
	}
	if h.initString != nil {
		h.markObject(h.initString)
	}
}

func (h *Heap) markValue(v value.Value) {
	if v.Kind == value.KindObject && v.Obj != nil {
		h.markObject(v.Obj)
	}
}

func (h *Heap) markObject(o value.Object) {
	if o == nil || value.Marked(o) {
		return
	}
	value.SetMarked(o, true)
	h.grayStack = append(h.grayStack, o)
}

func (h *Heap) traceReferences() {
	for len(h.grayStack) > 0 {
		n := len(h.grayStack) - 1
		o := h.grayStack[n]
		h.grayStack = h.grayStack[:n]
		h.blacken(o)
	}
}

// blacken marks every outgoing reference of o: BoundMethod ->
// receiver+method; Type -> name+super+fields+methods; Closure ->
// function+upvalues; Function -> name+chunk.constants; Instance ->
// type+fields; List -> elements; Map -> table; Upvalue -> closed
// value; Native and String -> nothing (a Native's name is a Go string,
// not a heap object).
func (h *Heap) blacken(o value.Object) {
	switch obj := o.(type) {
	case *value.ObjBoundMethod:
		h.markValue(obj.Receiver)
		h.markObject(obj.Method)
	case *value.ObjBoundNativeMethod:
		h.markValue(obj.Receiver)
	case *value.ObjUserType:
		h.markObject(obj.Name)
		if obj.Super != nil {
			h.markObject(obj.Super)
		}
		obj.Fields.MarkEntries(h.markValue)
		obj.Methods.MarkEntries(h.markValue)
	case *value.ObjClosure:
		h.markObject(obj.Function)
		for _, u := range obj.Upvalues {
			if u != nil {
				h.markObject(u)
			}
		}
	case *value.ObjFunction:
		if obj.Name != nil {
			h.markObject(obj.Name)
		}
		if obj.Chunk != nil {
			for _, c := range obj.Chunk.Constants {
				h.markValue(c)
			}
		}
	case *value.ObjInstance:
		h.markObject(obj.Type)
		obj.Fields.MarkEntries(h.markValue)
	case *value.ObjList:
		for _, e := range obj.Elements {
			h.markValue(e)
		}
	case *value.ObjMap:
		obj.Table.MarkEntries(h.markValue)
	case *value.ObjUpvalue:
		h.markValue(obj.Closed)
	case *value.ObjNative, *value.ObjString:
		// No outgoing references.
	}
}

func (h *Heap) sweepStrings() {
	h.strings.RemoveUnmarkedStrings(func(s *value.ObjString) bool {
		return value.Marked(s)
	})
}

func (h *Heap) sweep() {
	var prev value.Object
	obj := h.head
	for obj != nil {
		if value.Marked(obj) {
			value.SetMarked(obj, false)
			prev = obj
			obj = value.NextObj(obj)
			continue
		}
		unreached := obj
		obj = value.NextObj(obj)
		if prev != nil {
			value.SetNext(prev, obj)
		} else {
			h.head = obj
		}
		value.SetNext(unreached, nil)
	}
}
