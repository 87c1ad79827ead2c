package stackvm

import (
	"math"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

// TestWidthPromotedLoadRoundTrip covers spec.md §8 invariant 6: store_i8(v);
// load_i8_u yields v&0xFF, load_i8_s yields the sign-extended value.
func TestWidthPromotedLoadRoundTrip(t *testing.T) {
	buf := make([]byte, 16)

	writeI8(buf, 0, 0xFE) // -2 as int8
	assert(t, readI8U(buf, 0) == 0xFE, "unsigned byte round-trip")
	assert(t, readI8S(buf, 0) == -2, "signed byte round-trip, got %d", readI8S(buf, 0))

	writeI16(buf, 0, 0x8001)
	assert(t, readI16U(buf, 0) == 0x8001, "unsigned halfword round-trip")
	assert(t, readI16S(buf, 0) == -32767, "signed halfword round-trip")

	writeI32(buf, 0, 0xFFFFFFFE)
	assert(t, readI32U(buf, 0) == 0xFFFFFFFE, "unsigned word round-trip")
	assert(t, readI32S(buf, 0) == -2, "signed word round-trip, got %d", readI32S(buf, 0))

	writeI64(buf, 0, -7)
	assert(t, readI64(buf, 0) == -7, "i64 round-trip, got %d", readI64(buf, 0))
}

// TestFloatValidityRejectsNaNInfNegZero covers invariant 7: every bit
// pattern in {NaN, +Inf, -Inf, -0.0} fails f32/f64 reads with
// errUnsupportedFloatVariant.
func TestFloatValidityRejectsNaNInfNegZero(t *testing.T) {
	f32Bad := []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.Copysign(0, -1))}
	for _, v := range f32Bad {
		buf := make([]byte, 4)
		writeF32(buf, 0, v)
		_, err := readF32(buf, 0)
		assert(t, err == errUnsupportedFloatVariant, "expected rejection for f32 %v, got %v", v, err)
	}

	f64Bad := []float64{math.NaN(), math.Inf(1), math.Inf(-1), math.Copysign(0, -1)}
	for _, v := range f64Bad {
		buf := make([]byte, 8)
		writeF64(buf, 0, v)
		_, err := readF64(buf, 0)
		assert(t, err == errUnsupportedFloatVariant, "expected rejection for f64 %v, got %v", v, err)
	}
}

// TestFloatValidityAcceptsFiniteAndPositiveZero makes sure the gate isn't
// overbroad: finite normals, subnormals and +0.0 must all load cleanly.
func TestFloatValidityAcceptsFiniteAndPositiveZero(t *testing.T) {
	good := []float32{0, 1.5, -1.5, math.SmallestNonzeroFloat32, 1e30}
	for _, v := range good {
		buf := make([]byte, 4)
		writeF32(buf, 0, v)
		got, err := readF32(buf, 0)
		assert(t, err == nil, "unexpected rejection for valid f32 %v: %v", v, err)
		assert(t, got == v, "round-trip mismatch: want %v got %v", v, got)
	}
}
