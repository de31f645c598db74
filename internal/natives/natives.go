// Package natives holds the host functions installed into every new VM.
// Natives self-register at package init; the VM pulls the registry once at
// creation time.
package natives

import (
	"errors"
	"time"

	"github.com/slate-lang/slate/internal/object"
	"github.com/slate-lang/slate/internal/value"
)

// Entry binds a global name to a native implementation.
type Entry struct {
	Name string
	Fn   object.Native
}

var registry []Entry

func register(name string, fn object.Native) {
	registry = append(registry, Entry{Name: name, Fn: fn})
}

// All returns the registered natives in registration order.
func All() []Entry {
	return registry
}

var processStart = time.Now()

func init() {
	register("clock", clockNative)
	register("len", lenNative)
	register("str", strNative)
	register("has", hasNative)
}

// clock() returns seconds elapsed since process start.
func clockNative(_ *object.Heap, _ []value.Value) (value.Value, error) {
	return value.NumVal(time.Since(processStart).Seconds()), nil
}

// len(v) returns the length of a string or the entry count of a map.
func lenNative(heap *object.Heap, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.NilVal, errors.New("len expects one argument.")
	}
	if v := args[0]; v.IsObj() {
		switch o := heap.Get(v.AsObj()); o.Kind {
		case object.KindString:
			return value.NumVal(float64(len(o.Str))), nil
		case object.KindMap:
			return value.NumVal(float64(o.Map.Fields.Len() + o.Map.Index.Len())), nil
		}
	}
	return value.NilVal, errors.New("len expects a string or map.")
}

// str(v) renders any value as an interned string.
func strNative(heap *object.Heap, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.NilVal, errors.New("str expects one argument.")
	}
	return value.ObjVal(heap.Intern(heap.Format(args[0]))), nil
}

// has(map, key) tests key presence on either side of the map.
func hasNative(heap *object.Heap, args []value.Value) (value.Value, error) {
	if len(args) != 2 || !heap.IsMap(args[0]) {
		return value.NilVal, errors.New("has expects a map and a key.")
	}
	m := heap.Get(args[0].AsObj()).Map
	key := args[1]
	switch {
	case key.IsNum():
		_, ok := m.Index.Get(key.Raw())
		return value.BoolVal(ok), nil
	case heap.IsString(key):
		_, ok := m.Fields.Get(key.AsObj())
		return value.BoolVal(ok), nil
	}
	return value.BoolVal(false), nil
}
