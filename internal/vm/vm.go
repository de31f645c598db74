// Package vm executes compiled chunks on a stack machine with call
// frames, a shared heap, and a global table.
package vm

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/cache"
	"github.com/slate-lang/slate/internal/compiler"
	"github.com/slate-lang/slate/internal/natives"
	"github.com/slate-lang/slate/internal/object"
	"github.com/slate-lang/slate/internal/value"
)

const (
	// FramesMax bounds call depth; StackMax gives every frame the full
	// 256 local slots in the worst case.
	FramesMax = 64
	StackMax  = FramesMax * 256
)

// Result reports how an interpretation round ended.
type Result int

const (
	ResultOK Result = iota
	ResultCompileError
	ResultRuntimeError
)

// Frame is one active invocation: the callee, its next instruction, and
// the stack offset of slot 0 (the callee itself).
type frame struct {
	fn    *object.Function
	ip    int
	slots int
}

// VM is a single-threaded interpreter instance. Clones share the heap,
// interning table, and globals of their parent; everything else is
// private, so concurrent execution of clones requires external
// serialization.
type VM struct {
	id      uuid.UUID
	heap    *object.Heap
	globals object.Table

	stack      []value.Value
	top        int
	frames     [FramesMax]frame
	frameCount int

	stdout  io.Writer
	stderr  io.Writer
	store   *cache.Store
	lastErr *RuntimeError
}

// New creates a VM with a fresh heap and the standard natives installed.
func New() *VM {
	vm := &VM{
		id:      uuid.New(),
		heap:    object.NewHeap(),
		globals: object.NewTable(),
		stack:   make([]value.Value, StackMax),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, e := range natives.All() {
		vm.DefineNative(e.Name, e.Fn)
	}
	return vm
}

// Clone creates a VM sharing this one's heap, interning table, and
// globals, with private value and frame stacks.
func (vm *VM) Clone() *VM {
	return &VM{
		id:      uuid.New(),
		heap:    vm.heap,
		globals: vm.globals,
		stack:   make([]value.Value, StackMax),
		stdout:  vm.stdout,
		stderr:  vm.stderr,
		store:   vm.store,
	}
}

// Close releases every heap object regardless of reachability. The VM
// must not be used afterwards.
func (vm *VM) Close() {
	vm.heap.Close()
	vm.resetStack()
}

// ID returns this instance's identity, used in logs and the cache store.
func (vm *VM) ID() string {
	return vm.id.String()
}

// Heap exposes the heap for natives and embedding helpers.
func (vm *VM) Heap() *object.Heap {
	return vm.heap
}

// SetOutput redirects PRINT output.
func (vm *VM) SetOutput(w io.Writer) { vm.stdout = w }

// SetDiagnostics redirects compile and runtime error reporting.
func (vm *VM) SetDiagnostics(w io.Writer) { vm.stderr = w }

// SetStore attaches a compile cache consulted by DoFile.
func (vm *VM) SetStore(s *cache.Store) { vm.store = s }

// LastError returns the most recent runtime error, if any.
func (vm *VM) LastError() *RuntimeError { return vm.lastErr }

// StackDepth reports the live value stack size, for tests.
func (vm *VM) StackDepth() int { return vm.top }

// Push places a value on the stack, for native-call trampolines.
func (vm *VM) Push(v value.Value) {
	vm.stack[vm.top] = v
	vm.top++
}

// Pop removes and returns the top of the stack.
func (vm *VM) Pop() value.Value {
	vm.top--
	return vm.stack[vm.top]
}

func (vm *VM) popN(n int) {
	vm.top -= n
}

func (vm *VM) peek(i int) value.Value {
	return vm.stack[vm.top-1-i]
}

func (vm *VM) resetStack() {
	vm.top = 0
	vm.frameCount = 0
}

// DefineNative installs a host function under the given global name.
func (vm *VM) DefineNative(name string, fn object.Native) {
	gname := vm.heap.Intern(name)
	vm.globals.Set(gname, value.ObjVal(vm.heap.NewNative(fn)))
}

// SetGlobal installs a host value under the given global name.
func (vm *VM) SetGlobal(name string, v value.Value) {
	vm.globals.Set(vm.heap.Intern(name), v)
}

// GetGlobal looks up a global by name.
func (vm *VM) GetGlobal(name string) (value.Value, bool) {
	return vm.globals.Get(vm.heap.Intern(name))
}

// Interpret compiles and runs source text under the given name.
func (vm *VM) Interpret(name, src string) Result {
	source := &bytecode.Source{Name: name}
	fn, err := compiler.Compile(vm.heap, source, src, vm.stderr)
	if err != nil {
		return ResultCompileError
	}
	return vm.runScript(fn)
}

// Compile compiles without running, for disassembly and tests.
func (vm *VM) Compile(name, src string) (*object.Function, error) {
	source := &bytecode.Source{Name: name}
	return compiler.Compile(vm.heap, source, src, vm.stderr)
}

// DoFile loads, compiles (or fetches from the cache), and runs a script
// file.
func (vm *VM) DoFile(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		io.WriteString(vm.stderr, "Could not open file \""+path+"\".\n")
		return ResultCompileError
	}
	src := string(data)
	source := &bytecode.Source{Name: path}

	if vm.store != nil {
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		hash := cache.HashSource(src)
		if blob, ok := vm.store.Get(key, hash); ok {
			if fn, err := cache.Decode(vm.heap, blob, source); err == nil {
				return vm.runScript(fn)
			}
			// Corrupt entry: fall through to a clean compile.
		}
		fn, err := compiler.Compile(vm.heap, source, src, vm.stderr)
		if err != nil {
			return ResultCompileError
		}
		if blob, err := cache.Encode(vm.heap, fn); err == nil {
			vm.store.Put(key, hash, blob)
		}
		return vm.runScript(fn)
	}

	fn, err := compiler.Compile(vm.heap, source, src, vm.stderr)
	if err != nil {
		return ResultCompileError
	}
	return vm.runScript(fn)
}

func (vm *VM) runScript(fn *object.Function) Result {
	script := value.ObjVal(vm.heap.NewFunction(fn))
	vm.Push(script)
	if !vm.callValue(script, 0) {
		return ResultRuntimeError
	}
	return vm.execute()
}

// Disassemble renders a compiled function with heap-aware constants.
func (vm *VM) Disassemble(fn *object.Function, name string) string {
	return bytecode.Disassemble(fn.Chunk, name, vm.heap.Format)
}
