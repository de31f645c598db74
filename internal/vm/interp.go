package vm

import (
	"strings"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/object"
	"github.com/slate-lang/slate/internal/value"
)

// coerce converts an arithmetic operand to a double: numbers pass
// through, booleans become 0/1, everything else refuses.
func coerce(v value.Value) (float64, bool) {
	switch v.T {
	case value.Num:
		return v.AsNum(), true
	case value.Bool:
		if v.AsBool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// callValue dispatches CALL on a function or native. The caller's frame
// must have its ip stored before calling.
func (vm *VM) callValue(callee value.Value, argc int) bool {
	if callee.IsObj() {
		switch o := vm.heap.Get(callee.AsObj()); o.Kind {
		case object.KindFunction:
			return vm.call(o.Fn, argc)
		case object.KindNative:
			args := vm.stack[vm.top-argc : vm.top]
			result, err := o.Native(vm.heap, args)
			if err != nil {
				vm.runtimeError("%s", err.Error())
				return false
			}
			vm.top -= argc + 1
			vm.Push(result)
			return true
		}
	}
	vm.runtimeError("Can only call functions and classes.")
	return false
}

func (vm *VM) call(fn *object.Function, argc int) bool {
	if argc != fn.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argc)
		return false
	}
	if vm.frameCount == FramesMax {
		vm.runtimeError("Stack overflow.")
		return false
	}

	f := &vm.frames[vm.frameCount]
	vm.frameCount++
	f.fn = fn
	f.ip = 0
	// Slot 0 is the callee itself.
	f.slots = vm.top - argc - 1
	return true
}

// execute runs the current frame until the frame stack empties. The
// instruction pointer, code, constants, and slot base are cached in
// locals and stored back to the frame only around calls and errors.
func (vm *VM) execute() Result {
	f := &vm.frames[vm.frameCount-1]
	code := f.fn.Chunk.Code
	consts := f.fn.Chunk.Consts
	slots := f.slots
	ip := f.ip

	// fail reports a runtime error at the instruction being executed.
	fail := func(format string, args ...interface{}) Result {
		f.ip = ip
		vm.runtimeError(format, args...)
		return ResultRuntimeError
	}

	for {
		op := code[ip]
		ip++

		switch op {
		case bytecode.OpNil:
			vm.Push(value.NilVal)

		case bytecode.OpTrue:
			vm.Push(value.BoolVal(true))

		case bytecode.OpFalse:
			vm.Push(value.BoolVal(false))

		case bytecode.OpConst:
			vm.Push(consts[code[ip]])
			ip++

		case bytecode.OpConstL:
			idx := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			vm.Push(consts[idx])

		case bytecode.OpPop:
			vm.Pop()

		case bytecode.OpPrint:
			count := int(code[ip])
			ip++
			var b strings.Builder
			for i := count - 1; i >= 0; i-- {
				b.WriteString(vm.heap.Format(vm.peek(i)))
				if i > 0 {
					b.WriteByte('\t')
				}
			}
			b.WriteByte('\n')
			vm.stdout.Write([]byte(b.String()))
			vm.popN(count)

		case bytecode.OpDef, bytecode.OpDefL:
			var idx int
			if op == bytecode.OpDef {
				idx = int(code[ip])
				ip++
			} else {
				idx = int(code[ip])<<8 | int(code[ip+1])
				ip += 2
			}
			name := consts[idx].AsObj()
			vm.globals.Set(name, vm.peek(0))
			vm.Pop()

		case bytecode.OpGld, bytecode.OpGldL:
			var idx int
			if op == bytecode.OpGld {
				idx = int(code[ip])
				ip++
			} else {
				idx = int(code[ip])<<8 | int(code[ip+1])
				ip += 2
			}
			name := consts[idx].AsObj()
			v, ok := vm.globals.Get(name)
			if !ok {
				return fail("Undefined variable '%s'.", vm.heap.Get(name).Str)
			}
			vm.Push(v)

		case bytecode.OpGst, bytecode.OpGstL:
			var idx int
			if op == bytecode.OpGst {
				idx = int(code[ip])
				ip++
			} else {
				idx = int(code[ip])<<8 | int(code[ip+1])
				ip += 2
			}
			name := consts[idx].AsObj()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return fail("Undefined variable '%s'.", vm.heap.Get(name).Str)
			}

		case bytecode.OpLd:
			vm.Push(vm.stack[slots+int(code[ip])])
			ip++

		case bytecode.OpLdL:
			slot := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			vm.Push(vm.stack[slots+slot])

		case bytecode.OpSt:
			vm.stack[slots+int(code[ip])] = vm.peek(0)
			ip++

		case bytecode.OpStL:
			slot := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			vm.stack[slots+slot] = vm.peek(0)

		case bytecode.OpNeg:
			n, ok := coerce(vm.peek(0))
			if !ok {
				return fail("Operands must be a number/boolean.")
			}
			vm.Pop()
			vm.Push(value.NumVal(-n))

		case bytecode.OpNot:
			vm.Push(value.BoolVal(value.IsFalsey(vm.Pop())))

		case bytecode.OpEq:
			b := vm.Pop()
			a := vm.Pop()
			vm.Push(value.BoolVal(value.Equal(a, b)))

		case bytecode.OpLt, bytecode.OpLe:
			b, bok := coerce(vm.peek(0))
			a, aok := coerce(vm.peek(1))
			if !aok || !bok {
				return fail("Operands must be two numbers/booleans.")
			}
			vm.popN(2)
			if op == bytecode.OpLt {
				vm.Push(value.BoolVal(a < b))
			} else {
				vm.Push(value.BoolVal(a <= b))
			}

		case bytecode.OpAdd:
			b, bok := coerce(vm.peek(0))
			a, aok := coerce(vm.peek(1))
			if aok && bok {
				vm.popN(2)
				vm.Push(value.NumVal(a + b))
				break
			}
			if vm.heap.IsString(vm.peek(0)) && vm.heap.IsString(vm.peek(1)) {
				sb := vm.Pop()
				sa := vm.Pop()
				vm.Push(value.ObjVal(vm.heap.Concat(sa, sb)))
				break
			}
			return fail("Operands must be two numbers/booleans/strings.")

		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv:
			b, bok := coerce(vm.peek(0))
			a, aok := coerce(vm.peek(1))
			if !aok || !bok {
				return fail("Operands must be two numbers/booleans.")
			}
			vm.popN(2)
			switch op {
			case bytecode.OpSub:
				vm.Push(value.NumVal(a - b))
			case bytecode.OpMul:
				vm.Push(value.NumVal(a * b))
			default:
				vm.Push(value.NumVal(a / b))
			}

		case bytecode.OpJmp:
			offset := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			ip += offset

		case bytecode.OpJmpF:
			offset := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			if value.IsFalsey(vm.peek(0)) {
				ip += offset
			}

		case bytecode.OpCall:
			argc := int(code[ip])
			ip++
			f.ip = ip
			if !vm.callValue(vm.peek(argc), argc) {
				return ResultRuntimeError
			}
			f = &vm.frames[vm.frameCount-1]
			code = f.fn.Chunk.Code
			consts = f.fn.Chunk.Consts
			slots = f.slots
			ip = f.ip

		case bytecode.OpRet:
			result := vm.Pop()
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.Pop() // the script itself
				return ResultOK
			}
			vm.top = f.slots
			vm.Push(result)
			f = &vm.frames[vm.frameCount-1]
			code = f.fn.Chunk.Code
			consts = f.fn.Chunk.Consts
			slots = f.slots
			ip = f.ip

		case bytecode.OpMap:
			pairs := int(code[ip])
			ip++
			handle := vm.heap.NewMap()
			m := vm.heap.Get(handle).Map
			// Insert in reverse so the first occurrence of a
			// duplicate key wins.
			for pair := pairs - 1; pair >= 0; pair-- {
				keyDepth := 2*(pairs-1-pair) + 1
				key := vm.peek(keyDepth)
				val := vm.peek(keyDepth - 1)
				switch {
				case key.IsNum():
					m.Index.Set(key.Raw(), val)
				case vm.heap.IsString(key):
					m.Fields.Set(key.AsObj(), val)
				default:
					return fail("Operands must be a number or string.")
				}
			}
			vm.popN(2 * pairs)
			vm.Push(value.ObjVal(handle))

		case bytecode.OpGet:
			idx := int(code[ip])
			ip++
			if !vm.heap.IsMap(vm.peek(0)) {
				return fail("Operands must be a map.")
			}
			m := vm.heap.Get(vm.peek(0).AsObj()).Map
			v, _ := m.Fields.Get(consts[idx].AsObj())
			vm.Pop()
			vm.Push(v)

		case bytecode.OpSet:
			idx := int(code[ip])
			ip++
			if !vm.heap.IsMap(vm.peek(1)) {
				return fail("Operands must be a map.")
			}
			m := vm.heap.Get(vm.peek(1).AsObj()).Map
			v := vm.peek(0)
			m.Fields.Set(consts[idx].AsObj(), v)
			vm.popN(2)
			vm.Push(v)

		case bytecode.OpGetI:
			if !vm.heap.IsMap(vm.peek(1)) {
				return fail("Operands must be a map.")
			}
			m := vm.heap.Get(vm.peek(1).AsObj()).Map
			key := vm.peek(0)
			var v value.Value
			switch {
			case key.IsNum():
				v, _ = m.Index.Get(key.Raw())
			case vm.heap.IsString(key):
				v, _ = m.Fields.Get(key.AsObj())
			default:
				return fail("Operands must be a number or string.")
			}
			vm.popN(2)
			vm.Push(v)

		case bytecode.OpSetI:
			if !vm.heap.IsMap(vm.peek(2)) {
				return fail("Operands must be a map.")
			}
			m := vm.heap.Get(vm.peek(2).AsObj()).Map
			key := vm.peek(1)
			switch {
			case key.IsNum():
				v := vm.Pop()
				m.Index.Set(key.Raw(), v)
				vm.popN(2)
				vm.Push(v)
			case vm.heap.IsString(key):
				v := vm.Pop()
				m.Fields.Set(key.AsObj(), v)
				vm.popN(2)
				vm.Push(v)
			default:
				return fail("Operands must be a number or string.")
			}

		default:
			return fail("Bad opcode, got %d!", op)
		}
	}
}
