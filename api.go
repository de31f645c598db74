// Package slate embeds the slate interpreter in Go programs. It wraps the
// internal compiler and VM behind a marshaling facade: Go values cross into
// the interpreter as slate values, script results come back as Value
// handles with typed accessors.
package slate

import (
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sync"

	"github.com/slate-lang/slate/internal/cache"
	"github.com/slate-lang/slate/internal/object"
	"github.com/slate-lang/slate/internal/value"
	"github.com/slate-lang/slate/internal/vm"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ErrCompile is returned when a script fails to compile. Per-line
// diagnostics go to the VM's diagnostics writer.
var ErrCompile = errors.New("slate: compile error")

// ValueKind mirrors the slate runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueMap
	ValueFunction
	ValueNative
)

func kindName(k ValueKind) string {
	switch k {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "boolean"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueMap:
		return "map"
	case ValueFunction:
		return "function"
	case ValueNative:
		return "native function"
	default:
		return "unknown"
	}
}

// ArgError represents a typed argument validation error for host functions.
type ArgError struct {
	Name string
	Want string
	Got  string
}

func (e ArgError) Error() string {
	switch {
	case e.Name != "" && e.Want != "" && e.Got != "":
		return fmt.Sprintf("argument %q: want %s, got %s", e.Name, e.Want, e.Got)
	case e.Name != "" && e.Want != "":
		return fmt.Sprintf("argument %q: want %s", e.Name, e.Want)
	case e.Want != "" && e.Got != "":
		return fmt.Sprintf("want %s, got %s", e.Want, e.Got)
	default:
		return "argument error"
	}
}

// FrameTrace describes one frame in a runtime error trace, innermost first.
type FrameTrace struct {
	Function string
	Source   string
	Line     int
	Column   int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Trace   []FrameTrace
}

func (e *RuntimeError) Error() string {
	if len(e.Trace) == 0 {
		return e.Message
	}
	f := e.Trace[0]
	where := f.Function
	if where == "" {
		where = "script"
	}
	return fmt.Sprintf("%s:%d:%d: in %s: %s", f.Source, f.Line, f.Column, where, e.Message)
}

func convertRuntimeError(rte *vm.RuntimeError) *RuntimeError {
	out := &RuntimeError{Message: rte.Message}
	for _, fr := range rte.Trace {
		out.Trace = append(out.Trace, FrameTrace{
			Function: fr.Function,
			Source:   fr.Source,
			Line:     fr.Line,
			Column:   fr.Column,
		})
	}
	return out
}

// Value is a slate value held by a particular VM. String and map contents
// live on the owning VM's heap, so a Value must not outlive its owner.
type Value struct {
	v     value.Value
	owner *VM
}

// Kind reports the underlying value kind.
func (v Value) Kind() ValueKind {
	switch v.v.T {
	case value.Nil:
		return ValueNil
	case value.Bool:
		return ValueBool
	case value.Num:
		return ValueNumber
	case value.Obj:
		switch o := v.owner.core.Heap().Get(v.v.AsObj()); o.Kind {
		case object.KindString:
			return ValueString
		case object.KindMap:
			return ValueMap
		case object.KindFunction:
			return ValueFunction
		case object.KindNative:
			return ValueNative
		}
	}
	return ValueNil
}

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool {
	return v.v.T == value.Nil
}

// Bool returns the boolean value when the kind matches.
func (v Value) Bool() (bool, bool) {
	if v.v.T != value.Bool {
		return false, false
	}
	return v.v.AsBool(), true
}

// Number returns the numeric value when the kind matches.
func (v Value) Number() (float64, bool) {
	if v.v.T != value.Num {
		return 0, false
	}
	return v.v.AsNum(), true
}

// String returns the string content when the kind matches.
func (v Value) String() (string, bool) {
	if v.Kind() != ValueString {
		return "", false
	}
	return v.owner.core.Heap().StringChars(v.v), true
}

// Fields unwraps the string-keyed side of a map value.
func (v Value) Fields() (map[string]Value, bool) {
	if v.Kind() != ValueMap {
		return nil, false
	}
	heap := v.owner.core.Heap()
	m := heap.Get(v.v.AsObj()).Map
	out := make(map[string]Value, m.Fields.Len())
	for _, key := range m.Fields.Keys() {
		el, _ := m.Fields.Get(key)
		out[heap.Get(key).Str] = Value{v: el, owner: v.owner}
	}
	return out, true
}

// Index unwraps the numeric-keyed side of a map value.
func (v Value) Index() (map[float64]Value, bool) {
	if v.Kind() != ValueMap {
		return nil, false
	}
	m := v.owner.core.Heap().Get(v.v.AsObj()).Map
	out := make(map[float64]Value, m.Index.Len())
	for _, key := range m.Index.Keys() {
		el, _ := m.Index.Get(key)
		out[math.Float64frombits(key)] = Value{v: el, owner: v.owner}
	}
	return out, true
}

// Raw returns a plain Go representation of the value. Maps become
// map[string]any of their string-keyed fields with numeric keys rendered
// through fmt; when a numeric key renders to the same text as a string
// field (m[1] next to m["1"]), the string field wins. Function values
// are not convertible.
func (v Value) Raw() (any, error) {
	return unmarshalToGo(v)
}

func unmarshalToGo(v Value) (any, error) {
	switch v.Kind() {
	case ValueNil:
		return nil, nil
	case ValueBool:
		b, _ := v.Bool()
		return b, nil
	case ValueNumber:
		n, _ := v.Number()
		return n, nil
	case ValueString:
		s, _ := v.String()
		return s, nil
	case ValueMap:
		fields, _ := v.Fields()
		index, _ := v.Index()
		out := make(map[string]any, len(fields)+len(index))
		for k, el := range fields {
			raw, err := unmarshalToGo(el)
			if err != nil {
				return nil, err
			}
			out[k] = raw
		}
		for k, el := range index {
			key := fmt.Sprint(k)
			if _, taken := out[key]; taken {
				// A string field already renders to this text.
				continue
			}
			raw, err := unmarshalToGo(el)
			if err != nil {
				return nil, err
			}
			out[key] = raw
		}
		return out, nil
	default:
		return nil, fmt.Errorf("Raw() not supported on %s values", kindName(v.Kind()))
	}
}

// VM embeds one interpreter instance. Methods are not safe for concurrent
// use with a running script; Execute and ExecuteFile guard against
// re-entrant runs.
type VM struct {
	core *vm.VM

	mu    sync.Mutex
	busy  bool
	store *cache.Store
}

// NewVM constructs a fresh interpreter with the builtin natives installed.
func NewVM() *VM {
	return &VM{core: vm.New()}
}

// Duplicate clones the interpreter: the copy shares the heap and global
// bindings but has independent execution state.
func (m *VM) Duplicate() (*VM, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return nil, errors.New("VM is busy; cannot duplicate while running")
	}
	return &VM{core: m.core.Clone(), store: m.store}, nil
}

// Close releases the interpreter and its cache store, if any.
func (m *VM) Close() error {
	m.core.Close()
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// SetOutput redirects print output (default os.Stdout).
func (m *VM) SetOutput(w io.Writer) { m.core.SetOutput(w) }

// SetDiagnostics redirects compile and runtime diagnostics (default
// os.Stderr).
func (m *VM) SetDiagnostics(w io.Writer) { m.core.SetDiagnostics(w) }

// EnableCache attaches a compiled-chunk cache at the given database path.
func (m *VM) EnableCache(path string) error {
	store, err := cache.OpenStore(path)
	if err != nil {
		return err
	}
	m.store = store
	m.core.SetStore(store)
	return nil
}

func (m *VM) enter() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return errors.New("VM is busy; concurrent execution not allowed")
	}
	m.busy = true
	return nil
}

func (m *VM) leave() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// Execute compiles and runs source text. The name labels diagnostics.
// Compile failures return ErrCompile; runtime failures return a
// *RuntimeError carrying the frame trace.
func (m *VM) Execute(name, src string) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	return m.resultError(m.core.Interpret(name, src))
}

// ExecuteFile runs a script from the filesystem, consulting the cache
// store when one is attached.
func (m *VM) ExecuteFile(path string) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	return m.resultError(m.core.DoFile(path))
}

func (m *VM) resultError(res vm.Result) error {
	switch res {
	case vm.ResultOK:
		return nil
	case vm.ResultCompileError:
		return ErrCompile
	default:
		if rte := m.core.LastError(); rte != nil {
			return convertRuntimeError(rte)
		}
		return errors.New("slate: runtime error")
	}
}

// Global fetches a global binding left behind by executed scripts.
func (m *VM) Global(name string) (Value, bool) {
	v, ok := m.core.GetGlobal(name)
	if !ok {
		return Value{}, false
	}
	return Value{v: v, owner: m}, true
}

// SetGlobal marshals a Go value and binds it as a global.
func (m *VM) SetGlobal(name string, val any) error {
	v, err := m.marshal(val)
	if err != nil {
		return err
	}
	m.core.SetGlobal(name, v)
	return nil
}

// SetGlobalFunction binds a Go function as a callable global. Supported
// signatures take bool, numeric, string, or Value parameters and return
// nothing, T, error, or (T, error) where T marshals via SetGlobal rules.
func (m *VM) SetGlobalFunction(name string, fn any) error {
	native, err := m.nativeFromFunc(name, fn)
	if err != nil {
		return err
	}
	m.core.DefineNative(name, native)
	return nil
}

// marshal converts common Go types into slate values on this VM's heap.
func (m *VM) marshal(val any) (value.Value, error) {
	heap := m.core.Heap()
	switch v := val.(type) {
	case Value:
		if v.owner != nil && v.owner.core.Heap() != heap {
			return value.NilVal, errors.New("value belongs to a different VM")
		}
		return v.v, nil
	case nil:
		return value.NilVal, nil
	case bool:
		return value.BoolVal(v), nil
	case float64:
		return value.NumVal(v), nil
	case string:
		return value.ObjVal(heap.Intern(v)), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return value.NilVal, nil
		}
		return m.marshal(rv.Elem().Interface())
	case reflect.Bool:
		return value.BoolVal(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.NumVal(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return value.NumVal(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return value.NumVal(rv.Float()), nil
	case reflect.String:
		return value.ObjVal(heap.Intern(rv.String())), nil
	case reflect.Slice, reflect.Array:
		handle := heap.NewMap()
		mp := heap.Get(handle).Map
		for i := 0; i < rv.Len(); i++ {
			el, err := m.marshal(rv.Index(i).Interface())
			if err != nil {
				return value.NilVal, err
			}
			mp.Index.Set(value.NumVal(float64(i)).Raw(), el)
		}
		return value.ObjVal(handle), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value.NilVal, fmt.Errorf("map keys must be string, have %s", rv.Type().Key())
		}
		handle := heap.NewMap()
		mp := heap.Get(handle).Map
		iter := rv.MapRange()
		for iter.Next() {
			el, err := m.marshal(iter.Value().Interface())
			if err != nil {
				return value.NilVal, err
			}
			mp.Fields.Set(heap.Intern(iter.Key().String()), el)
		}
		return value.ObjVal(handle), nil
	case reflect.Struct:
		handle := heap.NewMap()
		mp := heap.Get(handle).Map
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			if field.PkgPath != "" { // unexported
				continue
			}
			el, err := m.marshal(rv.Field(i).Interface())
			if err != nil {
				return value.NilVal, err
			}
			mp.Fields.Set(heap.Intern(field.Name), el)
		}
		return value.ObjVal(handle), nil
	}
	return value.NilVal, fmt.Errorf("unsupported value type %T", val)
}

func (m *VM) nativeFromFunc(name string, fn any) (object.Native, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, fmt.Errorf("value of %s is not a function", name)
	}
	if rt.IsVariadic() {
		return nil, fmt.Errorf("function %s must not be variadic", name)
	}
	if rt.NumOut() > 2 {
		return nil, fmt.Errorf("function %s has too many return values (max 2)", name)
	}
	retValIndex := -1
	retErrIndex := -1
	switch rt.NumOut() {
	case 1:
		if rt.Out(0) == errorType {
			retErrIndex = 0
		} else {
			retValIndex = 0
		}
	case 2:
		if rt.Out(1) != errorType {
			return nil, fmt.Errorf("function %s second return value must be error", name)
		}
		retValIndex = 0
		retErrIndex = 1
	}

	return func(heap *object.Heap, args []value.Value) (value.Value, error) {
		if len(args) != rt.NumIn() {
			return value.NilVal, fmt.Errorf("%s expects %d arguments, got %d", name, rt.NumIn(), len(args))
		}
		inputs := make([]reflect.Value, rt.NumIn())
		for i := range inputs {
			in, err := m.convertArg(args[i], rt.In(i))
			if err != nil {
				return value.NilVal, fmt.Errorf("%s argument %d: %w", name, i, err)
			}
			inputs[i] = in
		}
		results := rv.Call(inputs)
		if retErrIndex >= 0 && !results[retErrIndex].IsNil() {
			return value.NilVal, results[retErrIndex].Interface().(error)
		}
		if retValIndex >= 0 {
			return m.marshal(results[retValIndex].Interface())
		}
		return value.NilVal, nil
	}, nil
}

var valueType = reflect.TypeOf(Value{})

func (m *VM) convertArg(src value.Value, targetType reflect.Type) (reflect.Value, error) {
	if targetType == valueType {
		return reflect.ValueOf(Value{v: src, owner: m}), nil
	}
	wrapped := Value{v: src, owner: m}
	switch targetType.Kind() {
	case reflect.Bool:
		b, ok := wrapped.Bool()
		if !ok {
			return reflect.Value{}, ArgError{Want: "boolean", Got: kindName(wrapped.Kind())}
		}
		return reflect.ValueOf(b), nil
	case reflect.Float64:
		n, ok := wrapped.Number()
		if !ok {
			return reflect.Value{}, ArgError{Want: "number", Got: kindName(wrapped.Kind())}
		}
		return reflect.ValueOf(n), nil
	case reflect.Int, reflect.Int64:
		n, ok := wrapped.Number()
		if !ok {
			return reflect.Value{}, ArgError{Want: "number", Got: kindName(wrapped.Kind())}
		}
		out := reflect.New(targetType).Elem()
		out.SetInt(int64(n))
		return out, nil
	case reflect.String:
		s, ok := wrapped.String()
		if !ok {
			return reflect.Value{}, ArgError{Want: "string", Got: kindName(wrapped.Kind())}
		}
		return reflect.ValueOf(s), nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported parameter type %s", targetType)
}
