package value_test

import (
	"math"
	"testing"

	"github.com/slate-lang/slate/internal/value"
)

func TestFalsey(t *testing.T) {
	cases := []struct {
		name   string
		v      value.Value
		falsey bool
	}{
		{"nil", value.NilVal, true},
		{"false", value.BoolVal(false), true},
		{"zero", value.NumVal(0), true},
		{"true", value.BoolVal(true), false},
		{"one", value.NumVal(1), false},
		// -0.0 and NaN have non-zero payloads, so they are truthy.
		{"negative zero", value.NumVal(math.Copysign(0, -1)), false},
		{"NaN", value.NumVal(math.NaN()), false},
		{"object", value.ObjVal(1), false},
	}
	for _, tc := range cases {
		if got := value.IsFalsey(tc.v); got != tc.falsey {
			t.Errorf("%s: IsFalsey = %v, want %v", tc.name, got, tc.falsey)
		}
	}
}

func TestEqualNumbers(t *testing.T) {
	if !value.Equal(value.NumVal(1.5), value.NumVal(1.5)) {
		t.Error("1.5 should equal 1.5")
	}
	if value.Equal(value.NumVal(math.NaN()), value.NumVal(math.NaN())) {
		t.Error("NaN should not equal NaN")
	}
	if !value.Equal(value.NumVal(0), value.NumVal(math.Copysign(0, -1))) {
		t.Error("0.0 should equal -0.0 despite differing payloads")
	}
	inf := math.Inf(1)
	if !value.Equal(value.NumVal(inf), value.NumVal(inf)) {
		t.Error("+Inf should equal +Inf")
	}
}

func TestEqualAcrossTags(t *testing.T) {
	// nil, false, and 0.0 share an all-zero payload but differ by tag.
	if value.Equal(value.NilVal, value.BoolVal(false)) {
		t.Error("nil should not equal false")
	}
	if value.Equal(value.BoolVal(false), value.NumVal(0)) {
		t.Error("false should not equal 0")
	}
	if value.Equal(value.BoolVal(true), value.NumVal(1)) {
		t.Error("true should not equal 1")
	}
}

func TestEqualObjects(t *testing.T) {
	if !value.Equal(value.ObjVal(7), value.ObjVal(7)) {
		t.Error("same handle should be equal")
	}
	if value.Equal(value.ObjVal(7), value.ObjVal(8)) {
		t.Error("different handles should differ")
	}
}

func TestNumRoundTrip(t *testing.T) {
	for _, n := range []float64{0, 1, -1, 0.5, math.MaxFloat64, math.Inf(-1)} {
		if got := value.NumVal(n).AsNum(); got != n {
			t.Errorf("NumVal(%v).AsNum() = %v", n, got)
		}
	}
}
