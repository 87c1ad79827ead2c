package stackvm

import "testing"

func testConfig() Config {
	cfg := DefaultConfig()
	// Small buffers so growth actually exercises Stack.grow in these tests.
	cfg.InitStackSizeInBytes = 256
	cfg.StackFrameEnsureFreeSizeInBytes = 64
	cfg.StackFrameIncrementSizeInBytes = 256
	return cfg
}

// TestCreateThenRemoveFrameRoundTrip covers spec.md §8 invariant 4: create_frame(p,r,...)
// immediately followed by remove_frames(0) with exactly r operands on the
// stack restores sp to preSp-p*8+r*8, restores fp, and returns the supplied
// return PC.
func TestCreateThenRemoveFrameRoundTrip(t *testing.T) {
	s := NewStack(testConfig())

	s.PushI64(1)
	s.PushI64(2)
	preSP := s.SP()
	preFP := s.FP()

	ret := ReturnPC{ModuleIndex: 3, FunctionInternalIndex: 7, InstructionAddress: 42}
	if err := s.CreateFrame(2, 1, 0, 24, &ret); err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}
	assert(t, s.SP() == s.FP()+frameInfoSize+24, "post-create sp, got %d want %d", s.SP(), s.FP()+frameInfoSize+24)

	s.PushI64(99) // the single declared result

	rpc, err := s.RemoveFrames(0)
	assert(t, err == nil, "RemoveFrames: %v", err)
	assert(t, rpc != nil, "expected a function-frame return PC")
	assert(t, *rpc == ret, "return PC mismatch: got %+v want %+v", *rpc, ret)
	assert(t, s.FP() == preFP, "fp not restored: got %d want %d", s.FP(), preFP)
	assert(t, s.SP() == preSP-2*8+1*8, "sp mismatch: got %d want %d", s.SP(), preSP-2*8+1*8)

	v, err := s.PeekI64(0)
	assert(t, err == nil, "PeekI64: %v", err)
	assert(t, v == 99, "result value lost across frame removal: got %d", v)
}

// TestBlockFrameInheritsFunctionFrameAddress covers invariant 2: a block
// frame's function_frame_address points to an enclosing frame that is its
// own function-frame marker.
func TestBlockFrameInheritsFunctionFrameAddress(t *testing.T) {
	s := NewStack(testConfig())

	ret := ReturnPC{ModuleIndex: 0, FunctionInternalIndex: 0, InstructionAddress: 0}
	if err := s.CreateFrame(0, 0, 0, 0, &ret); err != nil {
		t.Fatalf("CreateFrame (function): %v", err)
	}
	funcAddr := s.FP()

	if err := s.CreateFrame(0, 0, 0, 0, nil); err != nil {
		t.Fatalf("CreateFrame (block): %v", err)
	}
	blockAddr := s.FP()

	cur, err := s.GetFramePack(0)
	assert(t, err == nil, "GetFramePack: %v", err)
	assert(t, !cur.Info.IsFunctionFrame(blockAddr), "block frame should not be its own function-frame marker")
	assert(t, cur.Info.FunctionFrameAddress == funcAddr, "block frame's function_frame_address should point at the enclosing function frame")

	fn, err := s.GetFunctionFramePack()
	assert(t, err == nil, "GetFunctionFramePack: %v", err)
	assert(t, fn.Address == funcAddr, "GetFunctionFramePack returned wrong address")
	assert(t, fn.Info.IsFunctionFrame(fn.Address), "function frame must be its own marker")
}

// TestFrameChainAcyclicAndTerminatesAtZero covers invariant 3.
func TestFrameChainAcyclicAndTerminatesAtZero(t *testing.T) {
	s := NewStack(testConfig())
	ret := ReturnPC{}
	for i := 0; i < 5; i++ {
		if err := s.CreateFrame(0, 0, 0, 8, &ret); err != nil {
			t.Fatalf("CreateFrame #%d: %v", i, err)
		}
	}
	assert(t, s.validateFrameChain(), "frame chain should be acyclic and terminate at 0")
}

// TestResetFramesFastPathMatchesRemoveThenCreate covers invariant 5:
// reset_frames(0) on a frame with arguments freshly pushed on top produces
// the same observable state as remove_frames(0) followed by create_frame
// with identical arguments.
func TestResetFramesFastPathMatchesRemoveThenCreate(t *testing.T) {
	build := func() *Stack {
		s := NewStack(testConfig())
		s.PushI64(100)
		s.PushI64(200)
		ret := ReturnPC{ModuleIndex: 1, FunctionInternalIndex: 2, InstructionAddress: 3}
		if err := s.CreateFrame(2, 2, 0, 24, &ret); err != nil {
			t.Fatalf("CreateFrame: %v", err)
		}
		s.PushI64(300)
		s.PushI64(400)
		return s
	}

	viaReset := build()
	isFn, err := viaReset.ResetFrames(0)
	assert(t, err == nil, "ResetFrames: %v", err)
	assert(t, isFn, "target should be a function frame")

	viaRemoveCreate := build()
	ret := ReturnPC{ModuleIndex: 1, FunctionInternalIndex: 2, InstructionAddress: 3}
	_, err = viaRemoveCreate.RemoveFrames(0)
	assert(t, err == nil, "RemoveFrames: %v", err)
	if err := viaRemoveCreate.CreateFrame(2, 2, 0, 24, &ret); err != nil {
		t.Fatalf("CreateFrame (second): %v", err)
	}

	assert(t, viaReset.FP() == viaRemoveCreate.FP(), "fp mismatch: reset=%d removeCreate=%d", viaReset.FP(), viaRemoveCreate.FP())
	assert(t, viaReset.SP() == viaRemoveCreate.SP(), "sp mismatch: reset=%d removeCreate=%d", viaReset.SP(), viaRemoveCreate.SP())

	argsStart := viaReset.FP() + frameInfoSize
	for i := uint32(0); i < 16; i++ {
		assert(t, viaReset.data[argsStart+i] == viaRemoveCreate.data[argsStart+i],
			"arg byte %d mismatch: reset=%d removeCreate=%d", i, viaReset.data[argsStart+i], viaRemoveCreate.data[argsStart+i])
	}
	assert(t, readI64(viaReset.data, argsStart) == 300, "first new arg not in place, got %d", readI64(viaReset.data, argsStart))
	assert(t, readI64(viaReset.data, argsStart+8) == 400, "second new arg not in place, got %d", readI64(viaReset.data, argsStart+8))
}

// TestResetFramesGeneralPathZeroesLocals exercises the non-fast-path branch
// (operands above the frame besides the fresh arguments) and confirms pure
// locals are zeroed.
func TestResetFramesGeneralPathZeroesLocals(t *testing.T) {
	s := NewStack(testConfig())
	s.PushI64(1)
	ret := ReturnPC{}
	if err := s.CreateFrame(1, 0, 0, 16, &ret); err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}
	s.WriteLocalI64(s.FP()+frameInfoSize+8, 0xDEAD)
	s.PushI64(77) // extra operand besides the new arg
	s.PushI64(5)  // new argument value

	isFn, err := s.ResetFrames(0)
	assert(t, err == nil, "ResetFrames: %v", err)
	assert(t, isFn, "expected function frame")
	assert(t, readI64(s.data, s.FP()+frameInfoSize) == 5, "argument not updated")
	assert(t, readI64(s.data, s.FP()+frameInfoSize+8) == 0, "pure local not zeroed, got %d", readI64(s.data, s.FP()+frameInfoSize+8))
}

// TestOperandUnderflowAtFrameFloor covers invariant 8/spec.md §4.2's pop/peek
// bounds contract: popping past the current frame's declared local area
// fails, and is skipped entirely when there is no frame.
func TestOperandUnderflowAtFrameFloor(t *testing.T) {
	s := NewStack(testConfig())
	ret := ReturnPC{}
	if err := s.CreateFrame(0, 0, 0, 8, &ret); err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}
	_, err := s.PopI64()
	assert(t, err == errOperandUnderflow, "expected operand underflow popping past frame floor, got %v", err)

	// With no frame at all, bounds checks are skipped (fp == 0).
	bare := NewStack(testConfig())
	bare.PushI64(1)
	_, err = bare.PopI64()
	assert(t, err == nil, "unexpected error popping with no frame: %v", err)
}

// TestEnsureFreeSpaceGrowsStack exercises the dynamic growth policy
// (spec.md §3/§4.2): capacity grows once headroom falls under the guard.
func TestEnsureFreeSpaceGrowsStack(t *testing.T) {
	s := NewStack(testConfig())
	before := len(s.data)
	s.sp = uint32(before) - 8 // leave less than the 64-byte guard free
	s.EnsureFreeSpace()
	assert(t, len(s.data) > before, "expected stack to grow, stayed at %d bytes", before)
	assert(t, uint32(len(s.data))-s.sp >= s.cfg.StackFrameEnsureFreeSizeInBytes, "guard not satisfied after growth")
}

// TestDuplicateAndSwap exercises the simple stack-shuffle primitives.
func TestDuplicateAndSwap(t *testing.T) {
	s := NewStack(testConfig())
	s.PushI64(11)
	s.PushI64(22)
	if err := s.Swap(); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	top, _ := s.PeekI64(0)
	assert(t, top == 11, "swap did not exchange top two operands, got %d", top)

	if err := s.Duplicate(); err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	top, _ = s.PeekI64(0)
	second, _ := s.PeekI64(1)
	assert(t, top == second, "duplicate should copy the top operand, got %d and %d", top, second)
}
