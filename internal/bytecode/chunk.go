package bytecode

import "github.com/slate-lang/slate/internal/value"

// MaxConstants bounds the constant pool of a single chunk; indices up to
// this fit the 16-bit long-form operand.
const MaxConstants = 1 << 16

// Source describes the origin of a chunk for diagnostics.
type Source struct {
	Name string
}

// Chunk is an append-only instruction buffer. Every code byte has a
// parallel packed line<<16|column entry, and the chunk owns its constant
// pool. Constant indices are stable for the lifetime of the chunk.
type Chunk struct {
	Code   []byte
	Lines  []uint32
	Consts []value.Value
	Source *Source
}

func NewChunk(source *Source) *Chunk {
	return &Chunk{Source: source}
}

// Write appends one byte together with its source coordinate.
func (c *Chunk) Write(b byte, line, col int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, uint32(line&0xFFFF)<<16|uint32(col&0xFFFF))
}

// AddConstant appends v to the pool and returns its index. With dedup set
// an existing equal constant is reused instead; the compiler always passes
// false so that emitted indices are append-ordered.
func (c *Chunk) AddConstant(v value.Value, dedup bool) int {
	if dedup {
		for i, existing := range c.Consts {
			if value.Equal(existing, v) {
				return i
			}
		}
	}
	c.Consts = append(c.Consts, v)
	return len(c.Consts) - 1
}

// Line returns the 1-based source line for the code byte at offset i.
func (c *Chunk) Line(i int) int {
	if i < 0 || i >= len(c.Lines) {
		return 0
	}
	return int(c.Lines[i] >> 16)
}

// Column returns the 1-based source column for the code byte at offset i.
func (c *Chunk) Column(i int) int {
	if i < 0 || i >= len(c.Lines) {
		return 0
	}
	return int(c.Lines[i] & 0xFFFF)
}

// SourceName returns the name of the originating source, if known.
func (c *Chunk) SourceName() string {
	if c.Source == nil {
		return ""
	}
	return c.Source.Name
}
