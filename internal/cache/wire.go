// Package cache persists compiled chunks so unchanged scripts skip the
// compiler. The wire format is canonical CBOR; the store is a sqlite
// database keyed by source path and content hash.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/compiler"
	"github.com/slate-lang/slate/internal/object"
	"github.com/slate-lang/slate/internal/value"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Constant kinds on the wire. Object constants are flattened: strings by
// content, functions recursively; nothing else ever reaches a constant
// pool.
const (
	wireNil uint8 = iota
	wireBool
	wireNum
	wireStr
	wireFn
)

type wireConst struct {
	Kind uint8         `cbor:"1,keyasint"`
	Bool bool          `cbor:"2,keyasint,omitempty"`
	Num  float64       `cbor:"3,keyasint,omitempty"`
	Str  string        `cbor:"4,keyasint,omitempty"`
	Fn   *wireFunction `cbor:"5,keyasint,omitempty"`
}

type wireChunk struct {
	Code   []byte      `cbor:"1,keyasint"`
	Lines  []uint32    `cbor:"2,keyasint"`
	Consts []wireConst `cbor:"3,keyasint"`
}

type wireFunction struct {
	Arity int       `cbor:"1,keyasint"`
	Name  string    `cbor:"2,keyasint,omitempty"`
	Chunk wireChunk `cbor:"3,keyasint"`
}

// HashSource returns the cache key component for source text.
func HashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Encode serializes a compiled function to canonical CBOR.
func Encode(heap *object.Heap, fn *object.Function) ([]byte, error) {
	w, err := flattenFunction(heap, fn)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// Decode rebuilds a function from CBOR bytes, re-interning every string
// constant so interned identity holds for cached chunks too.
func Decode(heap *object.Heap, data []byte, source *bytecode.Source) (*object.Function, error) {
	var w wireFunction
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("cache: unmarshal function: %w", err)
	}
	return buildFunction(heap, &w, source)
}

func flattenFunction(heap *object.Heap, fn *object.Function) (*wireFunction, error) {
	w := &wireFunction{
		Arity: fn.Arity,
		Name:  fn.Name,
		Chunk: wireChunk{
			Code:  fn.Chunk.Code,
			Lines: fn.Chunk.Lines,
		},
	}
	for _, c := range fn.Chunk.Consts {
		wc, err := flattenConst(heap, c)
		if err != nil {
			return nil, err
		}
		w.Chunk.Consts = append(w.Chunk.Consts, wc)
	}
	return w, nil
}

func flattenConst(heap *object.Heap, v value.Value) (wireConst, error) {
	switch v.T {
	case value.Nil:
		return wireConst{Kind: wireNil}, nil
	case value.Bool:
		return wireConst{Kind: wireBool, Bool: v.AsBool()}, nil
	case value.Num:
		return wireConst{Kind: wireNum, Num: v.AsNum()}, nil
	case value.Obj:
		switch o := heap.Get(v.AsObj()); o.Kind {
		case object.KindString:
			return wireConst{Kind: wireStr, Str: o.Str}, nil
		case object.KindFunction:
			fn, err := flattenFunction(heap, o.Fn)
			if err != nil {
				return wireConst{}, err
			}
			return wireConst{Kind: wireFn, Fn: fn}, nil
		}
	}
	return wireConst{}, fmt.Errorf("cache: constant kind not serializable")
}

func buildFunction(heap *object.Heap, w *wireFunction, source *bytecode.Source) (*object.Function, error) {
	if len(w.Chunk.Code) != len(w.Chunk.Lines) {
		return nil, fmt.Errorf("cache: code/lines length mismatch")
	}
	chunk := bytecode.NewChunk(source)
	chunk.Code = w.Chunk.Code
	chunk.Lines = w.Chunk.Lines

	for _, wc := range w.Chunk.Consts {
		v, err := buildConst(heap, wc, source)
		if err != nil {
			return nil, err
		}
		// dedup=false keeps the constant indices byte-for-byte.
		chunk.AddConstant(v, false)
	}
	if err := verifyCode(heap, chunk); err != nil {
		return nil, err
	}

	return &object.Function{Arity: w.Arity, Name: w.Name, Chunk: chunk}, nil
}

// verifyCode checks a decoded instruction stream before it reaches the
// interpreter. The interpreter trusts compiler output and indexes
// constants, locals, and jump targets unchecked, so a blob that decodes
// as CBOR but carries malformed bytecode must be rejected here; the
// caller then treats the entry as a cache miss and recompiles.
func verifyCode(heap *object.Heap, chunk *bytecode.Chunk) error {
	code := chunk.Code
	consts := chunk.Consts
	if len(code) == 0 {
		return fmt.Errorf("cache: empty code")
	}

	constant := func(idx int, name bool) error {
		if idx >= len(consts) {
			return fmt.Errorf("cache: constant index %d out of range", idx)
		}
		if name && !heap.IsString(consts[idx]) {
			return fmt.Errorf("cache: name constant %d is not a string", idx)
		}
		return nil
	}

	starts := make(map[int]bool, len(code))
	var targets []int
	last := byte(bytecode.OpCount)

	for ip := 0; ip < len(code); {
		starts[ip] = true
		op := code[ip]
		last = op
		ip++

		var width int
		switch op {
		case bytecode.OpNil, bytecode.OpTrue, bytecode.OpFalse, bytecode.OpPop,
			bytecode.OpNeg, bytecode.OpNot, bytecode.OpEq, bytecode.OpLt,
			bytecode.OpLe, bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul,
			bytecode.OpDiv, bytecode.OpRet, bytecode.OpGetI, bytecode.OpSetI:
			width = 0
		case bytecode.OpConst, bytecode.OpPrint, bytecode.OpDef, bytecode.OpGld,
			bytecode.OpGst, bytecode.OpLd, bytecode.OpSt, bytecode.OpCall,
			bytecode.OpMap, bytecode.OpGet, bytecode.OpSet:
			width = 1
		case bytecode.OpConstL, bytecode.OpDefL, bytecode.OpGldL, bytecode.OpGstL,
			bytecode.OpLdL, bytecode.OpStL, bytecode.OpJmp, bytecode.OpJmpF:
			width = 2
		default:
			return fmt.Errorf("cache: unknown opcode %d at offset %d", op, ip-1)
		}
		if ip+width > len(code) {
			return fmt.Errorf("cache: truncated %s at offset %d", bytecode.OpName(op), ip-1)
		}

		switch op {
		case bytecode.OpConst:
			if err := constant(int(code[ip]), false); err != nil {
				return err
			}
		case bytecode.OpConstL:
			if err := constant(int(code[ip])<<8|int(code[ip+1]), false); err != nil {
				return err
			}
		case bytecode.OpDef, bytecode.OpGld, bytecode.OpGst, bytecode.OpGet, bytecode.OpSet:
			if err := constant(int(code[ip]), true); err != nil {
				return err
			}
		case bytecode.OpDefL, bytecode.OpGldL, bytecode.OpGstL:
			if err := constant(int(code[ip])<<8|int(code[ip+1]), true); err != nil {
				return err
			}
		case bytecode.OpLd, bytecode.OpSt:
			if int(code[ip]) >= compiler.MaxLocals {
				return fmt.Errorf("cache: local slot %d out of range", code[ip])
			}
		case bytecode.OpLdL, bytecode.OpStL:
			if slot := int(code[ip])<<8 | int(code[ip+1]); slot >= compiler.MaxLocals {
				return fmt.Errorf("cache: local slot %d out of range", slot)
			}
		case bytecode.OpJmp, bytecode.OpJmpF:
			offset := int(code[ip])<<8 | int(code[ip+1])
			targets = append(targets, ip+2+offset)
		}
		ip += width
	}

	for _, target := range targets {
		if !starts[target] {
			return fmt.Errorf("cache: jump target %d is not an instruction boundary", target)
		}
	}
	if last != bytecode.OpRet {
		return fmt.Errorf("cache: code does not end in RET")
	}
	return nil
}

func buildConst(heap *object.Heap, wc wireConst, source *bytecode.Source) (value.Value, error) {
	switch wc.Kind {
	case wireNil:
		return value.NilVal, nil
	case wireBool:
		return value.BoolVal(wc.Bool), nil
	case wireNum:
		return value.NumVal(wc.Num), nil
	case wireStr:
		return value.ObjVal(heap.Intern(wc.Str)), nil
	case wireFn:
		if wc.Fn == nil {
			return value.NilVal, fmt.Errorf("cache: missing function body")
		}
		fn, err := buildFunction(heap, wc.Fn, source)
		if err != nil {
			return value.NilVal, err
		}
		return value.ObjVal(heap.NewFunction(fn)), nil
	}
	return value.NilVal, fmt.Errorf("cache: unknown constant kind %d", wc.Kind)
}
