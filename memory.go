package stackvm

import (
	"encoding/binary"
	"errors"
	"math"
)

// memory.go implements the typed byte-memory primitive from spec.md §4.1:
// width-specialized little-endian reads/writes at a byte offset into an
// arbitrary backing buffer, plus the floating-point validity gate. The
// Stack (stack.go) and the three DataAccessor variants (dataobject.go) are
// both just byte slices underneath, so they share these free functions
// rather than each rolling their own encode/decode logic — the same shape
// gvm/vm/vm.go uses for uint32FromBytes/uint32ToBytes/float32FromBytes.

const negZeroBits32 = uint32(1) << 31
const negZeroBits64 = uint64(1) << 63

func validateF32Bits(bits uint32) error {
	f := math.Float32frombits(bits)
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) || bits == negZeroBits32 {
		return errUnsupportedFloatVariant
	}
	return nil
}

func validateF64Bits(bits uint64) error {
	f := math.Float64frombits(bits)
	if math.IsNaN(f) || math.IsInf(f, 0) || bits == negZeroBits64 {
		return errUnsupportedFloatVariant
	}
	return nil
}

// errUnsupportedFloatVariant is the recoverable error a validity-gated
// float read returns; handlers translate it into TerminateUnsupportedFloatingPointVariant.
var errUnsupportedFloatVariant = errors.New("unsupported floating point variant")

// readI64 reads 8 bytes at o verbatim.
func readI64(b []byte, o uint32) int64 {
	return int64(binary.LittleEndian.Uint64(b[o : o+8]))
}

func readI32S(b []byte, o uint32) int32 {
	return int32(binary.LittleEndian.Uint32(b[o : o+4]))
}

func readI32U(b []byte, o uint32) uint32 {
	return binary.LittleEndian.Uint32(b[o : o+4])
}

func readI16S(b []byte, o uint32) int16 {
	return int16(binary.LittleEndian.Uint16(b[o : o+2]))
}

func readI16U(b []byte, o uint32) uint16 {
	return binary.LittleEndian.Uint16(b[o : o+2])
}

func readI8S(b []byte, o uint32) int8 {
	return int8(b[o])
}

func readI8U(b []byte, o uint32) uint8 {
	return b[o]
}

// readF32 returns the 4-byte float at o, failing if its bit pattern is
// NaN, +-Infinity, or -0.0 (spec.md §4.1).
func readF32(b []byte, o uint32) (float32, error) {
	bits := binary.LittleEndian.Uint32(b[o : o+4])
	if err := validateF32Bits(bits); err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func readF64(b []byte, o uint32) (float64, error) {
	bits := binary.LittleEndian.Uint64(b[o : o+8])
	if err := validateF64Bits(bits); err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func writeI64(b []byte, o uint32, v int64) {
	binary.LittleEndian.PutUint64(b[o:o+8], uint64(v))
}

func writeI32(b []byte, o uint32, v uint32) {
	binary.LittleEndian.PutUint32(b[o:o+4], v)
}

func writeI16(b []byte, o uint32, v uint16) {
	binary.LittleEndian.PutUint16(b[o:o+2], v)
}

func writeI8(b []byte, o uint32, v uint8) {
	b[o] = v
}

// writeF32/writeF64 are not revalidated on write: producers (arithmetic
// handlers, the loader) are responsible for only ever storing valid bit
// patterns; spec.md §4.1 explicitly scopes validation to loads only.
func writeF32(b []byte, o uint32, v float32) {
	binary.LittleEndian.PutUint32(b[o:o+4], math.Float32bits(v))
}

func writeF64(b []byte, o uint32, v float64) {
	binary.LittleEndian.PutUint64(b[o:o+8], math.Float64bits(v))
}
