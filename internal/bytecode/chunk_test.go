package bytecode_test

import (
	"strings"
	"testing"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/value"
)

func TestWriteTracksLineAndColumn(t *testing.T) {
	c := bytecode.NewChunk(&bytecode.Source{Name: "test"})
	c.Write(bytecode.OpNil, 1, 1)
	c.Write(bytecode.OpPop, 12, 34)
	c.Write(bytecode.OpRet, 65535, 65535)

	coords := []struct{ line, col int }{{1, 1}, {12, 34}, {65535, 65535}}
	for i, w := range coords {
		if c.Line(i) != w.line || c.Column(i) != w.col {
			t.Errorf("byte %d: got %d:%d, want %d:%d", i, c.Line(i), c.Column(i), w.line, w.col)
		}
	}
	if c.Line(-1) != 0 || c.Line(99) != 0 {
		t.Error("out-of-range offsets should report line 0")
	}
	if len(c.Code) != len(c.Lines) {
		t.Fatalf("code/lines out of sync: %d vs %d", len(c.Code), len(c.Lines))
	}
}

func TestAddConstant(t *testing.T) {
	c := bytecode.NewChunk(nil)
	a := c.AddConstant(value.NumVal(1), false)
	b := c.AddConstant(value.NumVal(1), false)
	if a == b {
		t.Fatal("without dedup the same constant must get a fresh index")
	}
	d := c.AddConstant(value.NumVal(1), true)
	if d != a {
		t.Fatalf("with dedup expected index %d, got %d", a, d)
	}
	if c.AddConstant(value.NumVal(2), true) == a {
		t.Fatal("dedup must not collapse distinct constants")
	}
}

func TestDisassembleFormats(t *testing.T) {
	c := bytecode.NewChunk(&bytecode.Source{Name: "test"})
	idx := c.AddConstant(value.NumVal(7), false)
	c.Write(bytecode.OpConst, 1, 1)
	c.Write(byte(idx), 1, 1)
	c.Write(bytecode.OpJmpF, 1, 3)
	c.Write(0, 1, 3)
	c.Write(2, 1, 3)
	c.Write(bytecode.OpPop, 2, 1)
	c.Write(bytecode.OpRet, 2, 1)

	out := bytecode.Disassemble(c, "test", nil)
	if !strings.HasPrefix(out, "== test ==\n") {
		t.Fatalf("missing header:\n%s", out)
	}
	for _, want := range []string{"CONST", "'7'", "JMPF", "-> 7", "POP", "RET"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestOpName(t *testing.T) {
	if got := bytecode.OpName(bytecode.OpAdd); got != "ADD" {
		t.Fatalf("OpName(OpAdd) = %q", got)
	}
	if got := bytecode.OpName(bytecode.OpCount); got != "?" {
		t.Fatalf("OpName out of range = %q", got)
	}
}
