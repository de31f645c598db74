package bytecode

import (
	"fmt"
	"strings"

	"github.com/slate-lang/slate/internal/value"
)

// ConstFormatter renders a constant for disassembly. The VM supplies a
// heap-aware formatter; the fallback prints object handles numerically.
type ConstFormatter func(value.Value) string

func defaultFormat(v value.Value) string {
	switch v.T {
	case value.Nil:
		return "nil"
	case value.Bool:
		return fmt.Sprintf("%t", v.AsBool())
	case value.Num:
		return fmt.Sprintf("%g", v.AsNum())
	default:
		return fmt.Sprintf("obj#%d", v.AsObj())
	}
}

// Disassemble renders an entire chunk with a header line.
func Disassemble(c *Chunk, name string, format ConstFormatter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = DisassembleInstruction(&b, c, offset, format)
	}
	return b.String()
}

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the next instruction.
func DisassembleInstruction(b *strings.Builder, c *Chunk, offset int, format ConstFormatter) int {
	if format == nil {
		format = defaultFormat
	}
	fmt.Fprintf(b, "%04d %4d:%-3d ", offset, c.Line(offset), c.Column(offset))

	op := c.Code[offset]
	switch op {
	case OpConst, OpDef, OpGld, OpGst, OpGet, OpSet:
		idx := int(c.Code[offset+1])
		fmt.Fprintf(b, "%-6s %4d '%s'\n", OpName(op), idx, format(c.Consts[idx]))
		return offset + 2
	case OpConstL, OpDefL, OpGldL, OpGstL:
		idx := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		fmt.Fprintf(b, "%-6s %4d '%s'\n", OpName(op), idx, format(c.Consts[idx]))
		return offset + 3
	case OpLd, OpSt, OpCall, OpPrint, OpMap:
		fmt.Fprintf(b, "%-6s %4d\n", OpName(op), c.Code[offset+1])
		return offset + 2
	case OpLdL, OpStL:
		slot := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		fmt.Fprintf(b, "%-6s %4d\n", OpName(op), slot)
		return offset + 3
	case OpJmp, OpJmpF:
		jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		fmt.Fprintf(b, "%-6s %4d -> %d\n", OpName(op), offset, offset+3+jump)
		return offset + 3
	default:
		fmt.Fprintf(b, "%s\n", OpName(op))
		return offset + 1
	}
}
