package compiler_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/compiler"
	"github.com/slate-lang/slate/internal/object"
)

func compile(t *testing.T, src string) (*object.Function, *object.Heap) {
	t.Helper()
	heap := object.NewHeap()
	var errw bytes.Buffer
	fn, err := compiler.Compile(heap, &bytecode.Source{Name: "test"}, src, &errw)
	if err != nil {
		t.Fatalf("compile error: %v\n%s", err, errw.String())
	}
	return fn, heap
}

func compileError(t *testing.T, src string) string {
	t.Helper()
	heap := object.NewHeap()
	var errw bytes.Buffer
	_, err := compiler.Compile(heap, &bytecode.Source{Name: "test"}, src, &errw)
	if err == nil {
		t.Fatalf("expected compile error for %q", src)
	}
	if !errors.Is(err, compiler.ErrCompile) {
		t.Fatalf("expected ErrCompile, got %v", err)
	}
	return errw.String()
}

func TestExpressionConstantsAppendOrdered(t *testing.T) {
	fn, _ := compile(t, "print 1 + 2 * 3;")
	want := []float64{1, 2, 3}
	if len(fn.Chunk.Consts) != len(want) {
		t.Fatalf("expected %d constants, got %d", len(want), len(fn.Chunk.Consts))
	}
	for i, n := range want {
		if got := fn.Chunk.Consts[i].AsNum(); got != n {
			t.Errorf("constant %d = %v, want %v", i, got, n)
		}
	}
	// Precedence: MUL before ADD, then the print.
	code := fn.Chunk.Code
	mul := bytes.IndexByte(code, bytecode.OpMul)
	add := bytes.IndexByte(code, bytecode.OpAdd)
	if mul < 0 || add < 0 || mul > add {
		t.Fatalf("expected MUL before ADD in %v", code)
	}
}

func TestScriptEndsWithNilReturn(t *testing.T) {
	fn, _ := compile(t, "1;")
	code := fn.Chunk.Code
	if len(code) < 2 {
		t.Fatalf("short chunk: %v", code)
	}
	if code[len(code)-2] != bytecode.OpNil || code[len(code)-1] != bytecode.OpRet {
		t.Fatalf("chunk must end NIL RET, got %v", code)
	}
}

func TestGlobalDefinitionUsesInternedName(t *testing.T) {
	fn, heap := compile(t, "var x = 1;")
	if len(fn.Chunk.Consts) < 1 {
		t.Fatal("missing name constant")
	}
	name := fn.Chunk.Consts[0]
	if !heap.IsString(name) {
		t.Fatalf("first constant should be the variable name, got %#v", name)
	}
	if name.AsObj() != heap.Intern("x") {
		t.Fatal("name constant must be the interned handle")
	}
	if !bytes.Contains(fn.Chunk.Code, []byte{bytecode.OpDef, 0}) {
		t.Fatalf("expected DEF 0 in %v", fn.Chunk.Code)
	}
}

func TestLocalsUseSlotOps(t *testing.T) {
	fn, _ := compile(t, "{ var a = 1; print a; }")
	code := fn.Chunk.Code
	if !bytes.Contains(code, []byte{bytecode.OpLd, 1}) {
		t.Fatalf("expected LD 1 for the local, got %v", code)
	}
	if bytes.IndexByte(code, bytecode.OpDef) >= 0 {
		t.Fatalf("block-scoped variable must not define a global: %v", code)
	}
	// Leaving the scope pops the local.
	if bytes.IndexByte(code, bytecode.OpPop) < 0 {
		t.Fatalf("expected POP at scope exit: %v", code)
	}
}

func TestFunctionDeclaration(t *testing.T) {
	fn, heap := compile(t, "fun add(a, b) { return a + b; }")
	var inner *object.Function
	for _, c := range fn.Chunk.Consts {
		if c.IsObj() {
			if o := heap.Get(c.AsObj()); o.Kind == object.KindFunction {
				inner = o.Fn
			}
		}
	}
	if inner == nil {
		t.Fatal("expected a function constant")
	}
	if inner.Arity != 2 || inner.Name != "add" {
		t.Fatalf("got arity %d name %q", inner.Arity, inner.Name)
	}
	if bytes.IndexByte(inner.Chunk.Code, bytecode.OpRet) < 0 {
		t.Fatal("function body missing RET")
	}
}

func TestIfJumpsArePatched(t *testing.T) {
	fn, _ := compile(t, "if (true) { print 1; } else { print 2; }")
	code := fn.Chunk.Code
	for i := 0; i < len(code); {
		op := code[i]
		if op == bytecode.OpJmp || op == bytecode.OpJmpF {
			offset := int(code[i+1])<<8 | int(code[i+2])
			target := i + 3 + offset
			if offset == 0xFFFF || target > len(code) {
				t.Fatalf("unpatched or out-of-range jump at %d -> %d", i, target)
			}
			i += 3
			continue
		}
		var b strings.Builder
		i = bytecode.DisassembleInstruction(&b, fn.Chunk, i, nil)
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"1 = 2;", "Invalid assignment target."},
		{"var a = ;", "Expect expression."},
		{"return 1;", "Can't return from top-level code."},
		{"{ var a = 1; var a = 2; }", "Already a variable with this name in this scope."},
		{"{ var a = a; }", "Cannot read local variable in its own initializer."},
		{"print 1", "Expect ';' after value."},
		{`"open`, "Unterminated string."},
	}
	for _, tc := range cases {
		out := compileError(t, tc.src)
		if !strings.Contains(out, tc.want) {
			t.Errorf("%q: diagnostics %q missing %q", tc.src, out, tc.want)
		}
		if !strings.Contains(out, "[line ") {
			t.Errorf("%q: diagnostics should carry a line prefix: %q", tc.src, out)
		}
	}
}

func TestSynchronizeRecoversPerStatement(t *testing.T) {
	out := compileError(t, "var a = ;\nvar b = ;")
	if got := strings.Count(out, "Expect expression."); got != 2 {
		t.Fatalf("expected 2 reported errors, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "[line 1]") || !strings.Contains(out, "[line 2]") {
		t.Fatalf("errors should be attributed to both lines:\n%s", out)
	}
}

func TestGlobalShadowingCompiles(t *testing.T) {
	// Globals may be redefined freely; only locals conflict.
	fn, _ := compile(t, "var a = 1; var a = 2;")
	if n := bytes.Count(fn.Chunk.Code, []byte{bytecode.OpDef}); n < 1 {
		t.Fatalf("expected DEF ops, got code %v", fn.Chunk.Code)
	}
}

func TestMapLiteral(t *testing.T) {
	fn, _ := compile(t, `var m = {name: "x", 1: "one"};`)
	code := fn.Chunk.Code
	idx := bytes.IndexByte(code, bytecode.OpMap)
	if idx < 0 || idx+1 >= len(code) {
		t.Fatalf("expected MAP in %v", code)
	}
	if code[idx+1] != 2 {
		t.Fatalf("MAP operand should count pairs, got %d", code[idx+1])
	}
}
