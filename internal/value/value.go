// Package value defines the tagged value representation shared by the
// compiler and the virtual machine.
package value

import "math"

// Type discriminates the value variants.
type Type uint8

const (
	Nil Type = iota
	Bool
	Num
	Obj
)

// Handle identifies a heap object. Handles are allocated by the object
// package and are never zero for a live object.
type Handle uint64

// Value is a tagged 64-bit payload. Bits holds the bool as 0/1, the
// number as its IEEE-754 bit pattern, or the object handle. Keeping a
// uniform raw view makes truthiness and map keying a single comparison.
type Value struct {
	T    Type
	Bits uint64
}

// NilVal is the nil value; its payload is zero.
var NilVal = Value{T: Nil}

func BoolVal(b bool) Value {
	if b {
		return Value{T: Bool, Bits: 1}
	}
	return Value{T: Bool, Bits: 0}
}

func NumVal(n float64) Value {
	return Value{T: Num, Bits: math.Float64bits(n)}
}

func ObjVal(h Handle) Value {
	return Value{T: Obj, Bits: uint64(h)}
}

func (v Value) IsNil() bool  { return v.T == Nil }
func (v Value) IsBool() bool { return v.T == Bool }
func (v Value) IsNum() bool  { return v.T == Num }
func (v Value) IsObj() bool  { return v.T == Obj }

func (v Value) AsBool() bool   { return v.Bits != 0 }
func (v Value) AsNum() float64 { return math.Float64frombits(v.Bits) }
func (v Value) AsObj() Handle  { return Handle(v.Bits) }

// Raw exposes the 64-bit payload, used for the numeric side of map keys.
func (v Value) Raw() uint64 { return v.Bits }

// IsFalsey reports whether v is one of nil, false, or the number 0.0 —
// exactly the values whose raw payload is zero.
func IsFalsey(v Value) bool {
	return v.Bits == 0
}

// Equal reports value equality: tags must match and payloads must match.
// Numbers compare by IEEE equality, so NaN != NaN and -0.0 == 0.0.
// Object handles compare directly; interning makes that content equality
// for strings and identity for everything else.
func Equal(a, b Value) bool {
	if a.T != b.T {
		return false
	}
	if a.T == Num {
		return a.AsNum() == b.AsNum()
	}
	return a.Bits == b.Bits
}
