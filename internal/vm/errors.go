package vm

import (
	"fmt"
	"strings"
)

// FrameInfo captures one call frame at the time of a runtime error.
type FrameInfo struct {
	Source   string
	Line     int
	Column   int
	Function string // empty for the top-level script
}

// RuntimeError carries the message and call chain of a VM failure, top
// frame first.
type RuntimeError struct {
	Message string
	Trace   []FrameInfo
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", e.Message)
	for _, fi := range e.Trace {
		fmt.Fprintf(&b, "[%s:%d:%d] in %s\n", fi.Source, fi.Line, fi.Column, frameName(fi))
	}
	return b.String()
}

func frameName(fi FrameInfo) string {
	if fi.Function == "" {
		return "script"
	}
	return fi.Function + "()"
}

// runtimeError reports a fatal error for the current execution: it prints
// the message and stack trace to the diagnostic stream, records the
// structured error, and resets the stacks. The VM remains usable.
func (vm *VM) runtimeError(format string, args ...interface{}) {
	e := &RuntimeError{Message: fmt.Sprintf(format, args...)}

	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		// The stored ip sits one past the instruction that failed.
		instr := f.ip - 1
		e.Trace = append(e.Trace, FrameInfo{
			Source:   f.fn.Chunk.SourceName(),
			Line:     f.fn.Chunk.Line(instr),
			Column:   f.fn.Chunk.Column(instr),
			Function: f.fn.Name,
		})
	}

	fmt.Fprint(vm.stderr, e.Error())
	vm.lastErr = e
	vm.resetStack()
}
