package stackvm_test

// scenarios_test.go exercises the core end to end through internal/asmtest,
// the way gvm/vm/vm_test.go drives whole programs through CompileSource
// rather than poking at individual opcodes in isolation.

import (
	"encoding/binary"
	"math"
	"testing"

	"stackvm"
	"stackvm/internal/asmtest"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

// TestArithmeticRoundTrip (S1): two i32 arguments loaded and added.
func TestArithmeticRoundTrip(t *testing.T) {
	mb := asmtest.NewModuleBuilder()
	typ := mb.AddType([]stackvm.ValueType{stackvm.ValueI32, stackvm.ValueI32}, []stackvm.ValueType{stackvm.ValueI32})
	locals := mb.AddLocalList(asmtest.ArgLocals(2), 16)
	fb := mb.AddFunction(typ, locals)
	fb.LocalLoadI32S(0, 0, 0)
	fb.LocalLoadI32S(0, 1, 0)
	fb.AddI32()
	fb.End()
	mod := mb.Build()

	ctx := stackvm.NewThreadContext(stackvm.DefaultConfig(), []*stackvm.ModuleInstance{mod}, nil)
	results, term := ctx.ExecuteFunction(0, fb.InternalIndex(), []int64{10, 20})
	assert(t, term.IsOK(), "unexpected termination: %v", term)
	assert(t, len(results) == 1 && results[0] == 30, "got %v, want [30]", results)
}

// TestBlockValuePassing (S2): a block pushes a value that becomes the
// enclosing function's own result once the block's frame is removed by end.
func TestBlockValuePassing(t *testing.T) {
	mb := asmtest.NewModuleBuilder()
	blockType := mb.AddType([]stackvm.ValueType{stackvm.ValueI32}, []stackvm.ValueType{stackvm.ValueI32})
	blockLocals := mb.AddLocalList(asmtest.ArgLocals(1), 8)
	outerType := mb.AddType(nil, []stackvm.ValueType{stackvm.ValueI32})
	outerLocals := mb.AddLocalList(asmtest.ArgLocals(0), 0)

	fb := mb.AddFunction(outerType, outerLocals)
	fb.I32Imm(5)
	fb.Block(blockType, blockLocals)
	fb.LocalLoadI32S(0, 0, 0)
	fb.I32Imm(37)
	fb.AddI32()
	fb.End()
	fb.End()
	mod := mb.Build()

	ctx := stackvm.NewThreadContext(stackvm.DefaultConfig(), []*stackvm.ModuleInstance{mod}, nil)
	results, term := ctx.ExecuteFunction(0, fb.InternalIndex(), nil)
	assert(t, term.IsOK(), "unexpected termination: %v", term)
	assert(t, len(results) == 1 && results[0] == 42, "got %v, want [42]", results)
}

// TestBreakAcrossNestedBlocks (S3): break(layers=1) from the inner block
// unwinds both nested block frames at once, skipping the dead code left
// behind in each.
func TestBreakAcrossNestedBlocks(t *testing.T) {
	mb := asmtest.NewModuleBuilder()
	blockType := mb.AddType(nil, []stackvm.ValueType{stackvm.ValueI32})
	blockLocals := mb.AddLocalList(asmtest.ArgLocals(0), 0)
	outerType := mb.AddType(nil, []stackvm.ValueType{stackvm.ValueI32})
	outerLocals := mb.AddLocalList(asmtest.ArgLocals(0), 0)

	fb := mb.AddFunction(outerType, outerLocals)
	fb.Block(blockType, blockLocals) // A
	fb.Block(blockType, blockLocals) // B
	fb.I32Imm(99)
	fb.Break(1, 20) // delta covers: this 8-byte break + dead I32Imm(8) + End + End = 20
	fb.I32Imm(999)  // dead
	fb.End()        // B, dead
	fb.End()        // A, dead
	fb.End()        // function
	mod := mb.Build()

	ctx := stackvm.NewThreadContext(stackvm.DefaultConfig(), []*stackvm.ModuleInstance{mod}, nil)
	results, term := ctx.ExecuteFunction(0, fb.InternalIndex(), nil)
	assert(t, term.IsOK(), "unexpected termination: %v", term)
	assert(t, len(results) == 1 && results[0] == 99, "got %v, want [99]", results)
}

// TestTailRecursiveAccumulator (S4): sum(n, acc) implemented with recur/
// break_nez as a loop instead of growing the call stack.
func TestTailRecursiveAccumulator(t *testing.T) {
	mb := asmtest.NewModuleBuilder()
	typ := mb.AddType([]stackvm.ValueType{stackvm.ValueI32, stackvm.ValueI32}, []stackvm.ValueType{stackvm.ValueI32})
	locals := mb.AddLocalList(asmtest.ArgLocals(2), 16)
	fb := mb.AddFunction(typ, locals)

	fb.LocalLoadI32S(0, 1, 0) // acc
	fb.LocalLoadI32S(0, 0, 0) // n
	fb.EqzI32()
	fb.BreakNez(0, 0) // n == 0: return acc, already on the stack
	fb.LocalLoadI32S(0, 0, 0)
	fb.I32Imm(1)
	fb.SubI32() // n-1
	fb.LocalLoadI32S(0, 1, 0)
	fb.LocalLoadI32S(0, 0, 0)
	fb.AddI32()           // acc+n
	fb.Recur(0, 0)        // loop back with (n-1, acc+n)
	mod := mb.Build()

	ctx := stackvm.NewThreadContext(stackvm.DefaultConfig(), []*stackvm.ModuleInstance{mod}, nil)
	results, term := ctx.ExecuteFunction(0, fb.InternalIndex(), []int64{5, 0})
	assert(t, term.IsOK(), "unexpected termination: %v", term)
	assert(t, len(results) == 1 && results[0] == 15, "got %v, want [15] (1+2+3+4+5)", results)
}

// TestDataStoreLoadAcrossWidths (S5): narrow stores at overlapping offsets
// followed by a wide load observe every narrow write.
func TestDataStoreLoadAcrossWidths(t *testing.T) {
	items := []stackvm.DataItemDescriptor{{Offset: 0, Length: 8, Align: 8}}
	buf := make([]byte, 8)
	accessor := stackvm.NewReadWriteDataSection(buf, items)

	mb := asmtest.NewModuleBuilder()
	base := mb.AddDataSection(stackvm.DataSectionReadWrite, accessor, items)
	pub := mb.ExposeData(base)

	typ := mb.AddType(nil, []stackvm.ValueType{stackvm.ValueI64})
	locals := mb.AddLocalList(asmtest.ArgLocals(0), 0)
	fb := mb.AddFunction(typ, locals)
	fb.I32Imm(-2)
	fb.DataStoreI8(pub, 0)
	fb.I32Imm(0x1234)
	fb.DataStoreI16(pub, 2)
	fb.I32Imm(-1)
	fb.DataStoreI32(pub, 4)
	fb.DataLoadI64(pub, 0)
	fb.End()
	mod := mb.Build()

	ctx := stackvm.NewThreadContext(stackvm.DefaultConfig(), []*stackvm.ModuleInstance{mod}, nil)
	results, term := ctx.ExecuteFunction(0, fb.InternalIndex(), nil)
	assert(t, term.IsOK(), "unexpected termination: %v", term)

	want := int64(binary.LittleEndian.Uint64([]byte{0xFE, 0x00, 0x34, 0x12, 0xFF, 0xFF, 0xFF, 0xFF}))
	assert(t, len(results) == 1 && results[0] == want, "got %v, want [%d]", results, want)
}

// TestFloatLoadRejectsNaN (S6): loading a data object that holds a NaN bit
// pattern terminates the program instead of handing back an unusable value.
func TestFloatLoadRejectsNaN(t *testing.T) {
	items := []stackvm.DataItemDescriptor{{Offset: 0, Length: 4, Align: 4}}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(math.NaN())))
	accessor := stackvm.NewReadOnlyDataSection(buf, items)

	mb := asmtest.NewModuleBuilder()
	base := mb.AddDataSection(stackvm.DataSectionReadOnly, accessor, items)
	pub := mb.ExposeData(base)

	typ := mb.AddType(nil, nil)
	locals := mb.AddLocalList(asmtest.ArgLocals(0), 0)
	fb := mb.AddFunction(typ, locals)
	fb.DataLoadF32(pub, 0)
	mod := mb.Build()

	ctx := stackvm.NewThreadContext(stackvm.DefaultConfig(), []*stackvm.ModuleInstance{mod}, nil)
	_, term := ctx.ExecuteFunction(0, fb.InternalIndex(), nil)
	assert(t, !term.IsOK(), "expected termination loading a NaN bit pattern")
	assert(t, term.Code == stackvm.TerminateUnsupportedFloatingPointVariant, "got %v, want TerminateUnsupportedFloatingPointVariant", term.Code)
}
