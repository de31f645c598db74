// Package object implements the heap. Objects live in a per-VM arena and
// are addressed by stable handles; the interning table and every value
// table hold handles, never objects.
package object

import (
	"hash/fnv"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/value"
)

// Kind discriminates heap object variants.
type Kind uint8

const (
	KindString Kind = iota
	KindFunction
	KindNative
	KindMap
)

// Native is a host callback invoked by the CALL instruction. It receives
// the heap so it can construct result objects.
type Native func(heap *Heap, args []value.Value) (value.Value, error)

// Function is a compiled callable: a chunk plus its arity. The top-level
// script is a Function with arity 0 and an empty name.
type Function struct {
	Arity int
	Chunk *bytecode.Chunk
	Name  string
}

// Map is a dual-index container: interned-string-keyed fields plus a
// raw-64-bit-keyed index for numeric keys. Which side an instruction
// consults is decided by the key kind.
type Map struct {
	Fields Table
	Index  RawTable
}

// Object is one heap cell. Exactly one variant field is live per Kind.
type Object struct {
	Kind   Kind
	Str    string
	Hash   uint32
	Fn     *Function
	Native Native
	Map    *Map
}

// Heap owns every object of a VM. Clones share the heap wholesale.
type Heap struct {
	objects map[value.Handle]*Object
	strings map[string]value.Handle // interning table
	next    value.Handle
}

func NewHeap() *Heap {
	return &Heap{
		objects: make(map[value.Handle]*Object),
		strings: make(map[string]value.Handle),
		next:    1,
	}
}

func (h *Heap) alloc(o *Object) value.Handle {
	handle := h.next
	h.next++
	h.objects[handle] = o
	return handle
}

// Get resolves a handle. It returns nil for a dangling or zero handle.
func (h *Heap) Get(handle value.Handle) *Object {
	return h.objects[handle]
}

// Intern returns the canonical handle for the given string content,
// allocating a String object on first sight. Strings are never constructed
// any other way, so equal content implies equal handle.
func (h *Heap) Intern(s string) value.Handle {
	if handle, ok := h.strings[s]; ok {
		return handle
	}
	hasher := fnv.New32a()
	hasher.Write([]byte(s))
	handle := h.alloc(&Object{Kind: KindString, Str: s, Hash: hasher.Sum32()})
	h.strings[s] = handle
	return handle
}

// NewFunction places a compiled function on the heap.
func (h *Heap) NewFunction(fn *Function) value.Handle {
	return h.alloc(&Object{Kind: KindFunction, Fn: fn})
}

// NewNative places a host callback on the heap.
func (h *Heap) NewNative(fn Native) value.Handle {
	return h.alloc(&Object{Kind: KindNative, Native: fn})
}

// NewMap allocates an empty map.
func (h *Heap) NewMap() value.Handle {
	return h.alloc(&Object{Kind: KindMap, Map: &Map{
		Fields: NewTable(),
		Index:  NewRawTable(),
	}})
}

// IsString reports whether v refers to a live String object.
func (h *Heap) IsString(v value.Value) bool {
	if !v.IsObj() {
		return false
	}
	o := h.Get(v.AsObj())
	return o != nil && o.Kind == KindString
}

// IsMap reports whether v refers to a live Map object.
func (h *Heap) IsMap(v value.Value) bool {
	if !v.IsObj() {
		return false
	}
	o := h.Get(v.AsObj())
	return o != nil && o.Kind == KindMap
}

// StringChars returns the character content behind a string value.
func (h *Heap) StringChars(v value.Value) string {
	return h.Get(v.AsObj()).Str
}

// Concat interns the concatenation of two string values.
func (h *Heap) Concat(a, b value.Value) value.Handle {
	return h.Intern(h.StringChars(a) + h.StringChars(b))
}

// Len reports the number of live objects, for tests and diagnostics.
func (h *Heap) Len() int {
	return len(h.objects)
}

// Close drops every object regardless of reachability.
func (h *Heap) Close() {
	h.objects = make(map[value.Handle]*Object)
	h.strings = make(map[string]value.Handle)
	h.next = 1
}
