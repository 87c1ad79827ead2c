package stackvm

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// stack.go implements the combined info+locals+operands stack from
// spec.md §3/§4.2. The shape — one contiguous byte buffer plus a parallel
// swap buffer and two cursors — follows gvm/vm/vm.go's single
// []byte-backed stack (there addressed through *vm.sp into vm.stack), made
// dynamic (growable) and frame-aware per the spec.

const (
	// stackBaseOffset reserves the first 8 bytes of the buffer as permanently
	// unaddressable padding. Without it, a frame created on an otherwise
	// empty stack (the normal case for the outermost function call: sp
	// starts at 0 and create_frame's step 1 drives it back down to 0 before
	// writing the frame) would land at address 0 — indistinguishable from
	// fp's own "no frame" sentinel. Reserving this padding keeps every real
	// frame address nonzero so GetFramePack/operandFloor's fp==0 check stays
	// unambiguous.
	stackBaseOffset = 8

	// frameInfoSize is sizeof(FrameInfo): 4+4+2+2+4+4+4+4+4, already
	// 8-byte aligned so frame boundaries stay 8-byte aligned per spec.md §3.
	frameInfoSize = 32

	offPrevFrameAddr     = 0
	offFuncFrameAddr     = 4
	offParamsCount       = 8
	offResultsCount      = 10
	offLocalListIndex    = 12
	offLocalAllocBytes   = 16
	offReturnModuleIndex = 20
	offReturnFuncIndex   = 24
	offReturnInstrAddr   = 28
)

// FrameInfo is the fixed-size record written in place at a frame's address.
// It is never held onto independent of the stack buffer it was read from;
// callers treat it as a value snapshot.
type FrameInfo struct {
	PreviousFrameAddress        uint32
	FunctionFrameAddress        uint32
	ParamsCount                 uint16
	ResultsCount                uint16
	LocalListIndex              uint32
	LocalVariablesAllocateBytes uint32
	ReturnModuleIndex           uint32
	ReturnFunctionInternalIndex uint32
	ReturnInstructionAddress    uint32
}

// IsFunctionFrame reports whether this frame is its own function-frame
// marker (spec.md §3: "function_frame_address points to a frame whose
// function_frame_address equals its own address").
func (fi FrameInfo) IsFunctionFrame(selfAddress uint32) bool {
	return fi.FunctionFrameAddress == selfAddress
}

func readFrameInfo(b []byte, addr uint32) FrameInfo {
	w := b[addr : addr+frameInfoSize]
	return FrameInfo{
		PreviousFrameAddress:        binary.LittleEndian.Uint32(w[offPrevFrameAddr:]),
		FunctionFrameAddress:        binary.LittleEndian.Uint32(w[offFuncFrameAddr:]),
		ParamsCount:                 binary.LittleEndian.Uint16(w[offParamsCount:]),
		ResultsCount:                binary.LittleEndian.Uint16(w[offResultsCount:]),
		LocalListIndex:              binary.LittleEndian.Uint32(w[offLocalListIndex:]),
		LocalVariablesAllocateBytes: binary.LittleEndian.Uint32(w[offLocalAllocBytes:]),
		ReturnModuleIndex:           binary.LittleEndian.Uint32(w[offReturnModuleIndex:]),
		ReturnFunctionInternalIndex: binary.LittleEndian.Uint32(w[offReturnFuncIndex:]),
		ReturnInstructionAddress:    binary.LittleEndian.Uint32(w[offReturnInstrAddr:]),
	}
}

func writeFrameInfo(b []byte, addr uint32, fi FrameInfo) {
	w := b[addr : addr+frameInfoSize]
	binary.LittleEndian.PutUint32(w[offPrevFrameAddr:], fi.PreviousFrameAddress)
	binary.LittleEndian.PutUint32(w[offFuncFrameAddr:], fi.FunctionFrameAddress)
	binary.LittleEndian.PutUint16(w[offParamsCount:], fi.ParamsCount)
	binary.LittleEndian.PutUint16(w[offResultsCount:], fi.ResultsCount)
	binary.LittleEndian.PutUint32(w[offLocalListIndex:], fi.LocalListIndex)
	binary.LittleEndian.PutUint32(w[offLocalAllocBytes:], fi.LocalVariablesAllocateBytes)
	binary.LittleEndian.PutUint32(w[offReturnModuleIndex:], fi.ReturnModuleIndex)
	binary.LittleEndian.PutUint32(w[offReturnFuncIndex:], fi.ReturnFunctionInternalIndex)
	binary.LittleEndian.PutUint32(w[offReturnInstrAddr:], fi.ReturnInstructionAddress)
}

// FramePack bundles a frame's address with the info record read from it.
type FramePack struct {
	Address uint32
	Info    FrameInfo
}

// ReturnPC is the trio a function frame carries for resuming its caller.
// It doubles as the callback re-entry marker: EXIT_CURRENT_HANDLER_LOOP_BIT
// is packed into ModuleIndex's high bit (spec.md §4.8/§9).
type ReturnPC struct {
	ModuleIndex           uint32
	FunctionInternalIndex uint32
	InstructionAddress    uint32
}

const exitCurrentHandlerLoopBit uint32 = 1 << 31

// HasExitBit reports whether the nested-dispatch-loop-exit marker is set.
func (r ReturnPC) HasExitBit() bool {
	return r.ModuleIndex&exitCurrentHandlerLoopBit != 0
}

// WithExitBit returns r with the marker set.
func (r ReturnPC) WithExitBit() ReturnPC {
	r.ModuleIndex |= exitCurrentHandlerLoopBit
	return r
}

// WithoutExitBit returns r with the marker cleared.
func (r ReturnPC) WithoutExitBit() ReturnPC {
	r.ModuleIndex &^= exitCurrentHandlerLoopBit
	return r
}

// Stack is the thread-local three-region stack: combined frame-info,
// locals and operand storage in `data`, a same-sized scratch area `swap`
// used only to shuffle arguments/results across a frame boundary, `sp`
// (next free byte) and `fp` (innermost frame's address).
//
// swap is reused across every create/remove/reset call. That's only safe
// because each of those calls fully drains whatever it copied into swap
// before returning — none of them call each other mid-copy (see
// SPEC_FULL.md "Swap-area reentrancy").
type Stack struct {
	cfg  Config
	data []byte
	swap []byte
	sp   uint32
	fp   uint32
}

// NewStack allocates a stack per cfg's sizing knobs. fp is 0, meaning
// "no frame" (bounds checks on pop/peek are skipped per spec.md §4.2 until
// the first CreateFrame).
func NewStack(cfg Config) *Stack {
	size := cfg.InitStackSizeInBytes
	if size < stackBaseOffset {
		size = stackBaseOffset
	}
	return &Stack{
		cfg:  cfg,
		data: make([]byte, size),
		swap: make([]byte, size),
		sp:   stackBaseOffset,
		fp:   0,
	}
}

// Reset logically truncates the stack back to empty without releasing the
// backing arrays (spec.md §3 "Lifecycles": "reset to zero length logically,
// not physically").
func (s *Stack) Reset() {
	s.sp = stackBaseOffset
	s.fp = 0
}

func (s *Stack) SP() uint32 { return s.sp }
func (s *Stack) FP() uint32 { return s.fp }

// operandFloor is the lowest sp may fall to without popping/peeking past
// the current frame's local-variable area. When fp == 0 there is no frame
// and the floor is 0 (bounds checks are skipped entirely in that case).
func (s *Stack) operandFloor() uint32 {
	if s.fp == 0 {
		return 0
	}
	fi := readFrameInfo(s.data, s.fp)
	return s.fp + frameInfoSize + fi.LocalVariablesAllocateBytes
}

// EnsureFreeSpace grows data/swap so that capacity-sp is at least
// FrameEnsureFreeSizeInBytes, per spec.md §3's dynamically resized growth
// policy.
func (s *Stack) EnsureFreeSpace() {
	for uint32(len(s.data))-s.sp < s.cfg.StackFrameEnsureFreeSizeInBytes {
		s.grow()
	}
}

func (s *Stack) grow() {
	newSize := uint32(len(s.data)) + s.cfg.StackFrameIncrementSizeInBytes
	newData := make([]byte, newSize)
	copy(newData, s.data[:s.sp])
	newSwap := make([]byte, newSize)
	copy(newSwap, s.swap)
	s.data = newData
	s.swap = newSwap
}

// checkOperandBounds returns errOperandUnderflow if popping/peeking n bytes
// would reach below the current frame's operand floor. Skipped entirely
// when fp == 0 ("undefined"), per spec.md §4.2.
func (s *Stack) checkOperandBounds(n uint32) error {
	if !s.cfg.EnableBoundsCheck || s.fp == 0 {
		return nil
	}
	if s.sp < s.operandFloor()+n {
		return errOperandUnderflow
	}
	return nil
}

// reserve grows data/swap if needed and advances sp by n, returning the
// start offset of the new slot. Unlike EnsureFreeSpace (the explicit
// guard-triggered growth spec.md §3 wires into frame creation), this grows
// by exactly as many increments as a single push ever needs, so an
// operand push deep inside an expression never indexes past len(data).
func (s *Stack) reserve(n uint32) uint32 {
	for uint32(len(s.data))-s.sp < n {
		s.grow()
	}
	o := s.sp
	s.sp += n
	return o
}

func (s *Stack) PushI64(v int64) {
	o := s.reserve(8)
	writeI64(s.data, o, v)
}

// PushI32S sign-extends v into the full 8-byte slot (spec.md §4.1 "width-
// promoted load contract").
func (s *Stack) PushI32S(v int32) {
	o := s.reserve(8)
	writeI64(s.data, o, int64(v))
}

// PushI32U zero-extends v into the full 8-byte slot.
func (s *Stack) PushI32U(v uint32) {
	o := s.reserve(8)
	writeI64(s.data, o, int64(v))
}

func (s *Stack) PushI16S(v int16) {
	o := s.reserve(8)
	writeI64(s.data, o, int64(v))
}

func (s *Stack) PushI16U(v uint16) {
	o := s.reserve(8)
	writeI64(s.data, o, int64(v))
}

func (s *Stack) PushI8S(v int8) {
	o := s.reserve(8)
	writeI64(s.data, o, int64(v))
}

func (s *Stack) PushI8U(v uint8) {
	o := s.reserve(8)
	writeI64(s.data, o, int64(v))
}

func (s *Stack) PushF32(v float32) {
	o := s.reserve(8)
	writeF32(s.data, o, v)
}

func (s *Stack) PushF64(v float64) {
	s.reserve(8)
	writeF64(s.data, s.sp-8, v)
}

func (s *Stack) popSlot() (uint32, error) {
	if err := s.checkOperandBounds(8); err != nil {
		return 0, err
	}
	s.sp -= 8
	return s.sp, nil
}

func (s *Stack) peekSlotOffset(depth uint32) (uint32, error) {
	if err := s.checkOperandBounds(8 * (depth + 1)); err != nil {
		return 0, err
	}
	return s.sp - 8*(depth+1), nil
}

func (s *Stack) PopI64() (int64, error) {
	o, err := s.popSlot()
	if err != nil {
		return 0, err
	}
	return readI64(s.data, o), nil
}

func (s *Stack) PopI32S() (int32, error) {
	v, err := s.PopI64()
	return int32(v), err
}

func (s *Stack) PopI32U() (uint32, error) {
	v, err := s.PopI64()
	return uint32(v), err
}

func (s *Stack) PopF32() (float32, error) {
	o, err := s.popSlot()
	if err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint32(s.data[o : o+4])
	return math.Float32frombits(bits), nil
}

func (s *Stack) PopF64() (float64, error) {
	o, err := s.popSlot()
	if err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(s.data[o : o+8])
	return math.Float64frombits(bits), nil
}

// PeekI64 reads the slot `depth` below the top without popping (depth 0 ==
// current top).
func (s *Stack) PeekI64(depth uint32) (int64, error) {
	o, err := s.peekSlotOffset(depth)
	if err != nil {
		return 0, err
	}
	return readI64(s.data, o), nil
}

func (s *Stack) PeekI32U(depth uint32) (uint32, error) {
	v, err := s.PeekI64(depth)
	return uint32(v), err
}

func (s *Stack) PeekI32S(depth uint32) (int32, error) {
	v, err := s.PeekI64(depth)
	return int32(v), err
}

// PokeI64 overwrites the slot `depth` below the top in place.
func (s *Stack) PokeI64(depth uint32, v int64) error {
	o, err := s.peekSlotOffset(depth)
	if err != nil {
		return err
	}
	writeI64(s.data, o, v)
	return nil
}

// Drop discards the top operand.
func (s *Stack) Drop() error {
	_, err := s.popSlot()
	return err
}

// Duplicate copies the top 8 bytes onto a new top slot.
func (s *Stack) Duplicate() error {
	o, err := s.peekSlotOffset(0)
	if err != nil {
		return err
	}
	v := readI64(s.data, o)
	s.PushI64(v)
	return nil
}

// Swap exchanges the top two 8-byte operands in place.
func (s *Stack) Swap() error {
	if err := s.checkOperandBounds(16); err != nil {
		return err
	}
	top := s.sp - 8
	second := s.sp - 16
	a := readI64(s.data, top)
	b := readI64(s.data, second)
	writeI64(s.data, top, b)
	writeI64(s.data, second, a)
	return nil
}

// PushOperandFromMemory reserves one 8-byte slot and returns a pointer the
// caller must fill with exactly 8 bytes (spec.md §4.2). The load handlers
// in this package do not use it; they push through PushI64/PushI32S/...
func (s *Stack) PushOperandFromMemory() unsafe.Pointer {
	s.reserve(8)
	return unsafe.Pointer(&s.data[s.sp-8])
}

// PopOperandToMemory decrements sp and returns a pointer to the 8 bytes the
// caller must consume (e.g. write out to a data object) before the next
// stack mutation invalidates it.
func (s *Stack) PopOperandToMemory() (unsafe.Pointer, error) {
	o, err := s.popSlot()
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(&s.data[o]), nil
}

// RawBytesAt returns a slice view directly into the stack's backing array
// starting at addr. Used by host_addr_local to hand a raw pointer out to
// native code (spec.md §4.8); callers must respect the documented
// lifetime caveat (invalid once the owning frame pops or the stack grows).
func (s *Stack) RawBytesAt(addr uint32) []byte {
	return s.data[addr:]
}

// --- absolute-address local access, used by the local load/store
// handlers via ThreadContext.getLocalVariableAddress ---

func (s *Stack) ReadLocalI64(addr uint32) int64     { return readI64(s.data, addr) }
func (s *Stack) ReadLocalI32S(addr uint32) int32     { return readI32S(s.data, addr) }
func (s *Stack) ReadLocalI32U(addr uint32) uint32    { return readI32U(s.data, addr) }
func (s *Stack) ReadLocalI16S(addr uint32) int16     { return readI16S(s.data, addr) }
func (s *Stack) ReadLocalI16U(addr uint32) uint16    { return readI16U(s.data, addr) }
func (s *Stack) ReadLocalI8S(addr uint32) int8       { return readI8S(s.data, addr) }
func (s *Stack) ReadLocalI8U(addr uint32) uint8      { return readI8U(s.data, addr) }
func (s *Stack) ReadLocalF32(addr uint32) (float32, error) { return readF32(s.data, addr) }
func (s *Stack) ReadLocalF64(addr uint32) (float64, error) { return readF64(s.data, addr) }

func (s *Stack) WriteLocalI64(addr uint32, v int64)     { writeI64(s.data, addr, v) }
func (s *Stack) WriteLocalI32(addr uint32, v uint32)    { writeI32(s.data, addr, v) }
func (s *Stack) WriteLocalI16(addr uint32, v uint16)    { writeI16(s.data, addr, v) }
func (s *Stack) WriteLocalI8(addr uint32, v uint8)      { writeI8(s.data, addr, v) }
func (s *Stack) WriteLocalF32(addr uint32, v float32)   { writeF32(s.data, addr, v) }
func (s *Stack) WriteLocalF64(addr uint32, v float64)   { writeF64(s.data, addr, v) }

// --- frame navigation ---

// GetFramePack walks the previous-frame-address chain reversedIndex times
// from fp and returns the frame found there.
func (s *Stack) GetFramePack(reversedIndex uint32) (FramePack, error) {
	addr := s.fp
	if addr == 0 {
		return FramePack{}, errFrameIndexOutOfBounds
	}
	for i := uint32(0); i < reversedIndex; i++ {
		fi := readFrameInfo(s.data, addr)
		if fi.PreviousFrameAddress == 0 {
			return FramePack{}, errFrameIndexOutOfBounds
		}
		addr = fi.PreviousFrameAddress
	}
	return FramePack{Address: addr, Info: readFrameInfo(s.data, addr)}, nil
}

// GetFunctionFramePack returns the function frame owning the current
// (innermost) frame — itself, if the current frame already is one.
func (s *Stack) GetFunctionFramePack() (FramePack, error) {
	cur, err := s.GetFramePack(0)
	if err != nil {
		return FramePack{}, err
	}
	addr := cur.Info.FunctionFrameAddress
	return FramePack{Address: addr, Info: readFrameInfo(s.data, addr)}, nil
}

// GetLocalVariablesStartAddress returns the byte address where the target
// frame's argument/local area begins.
func (s *Stack) GetLocalVariablesStartAddress(reversedIndex uint32) (uint32, error) {
	fp, err := s.GetFramePack(reversedIndex)
	if err != nil {
		return 0, err
	}
	return fp.Address + frameInfoSize, nil
}

// --- frame creation / removal / reset (spec.md §4.2 algorithms) ---

// CreateFrame implements the frame-creation algorithm. opt_return is nil
// for a block frame; non-nil marks a function frame.
func (s *Stack) CreateFrame(params, results uint16, localListIndex uint32, localAllocBytes uint32, optReturn *ReturnPC) error {
	paramBytes := uint32(params) * 8

	// Step 1: move top params*8 bytes from data to swap.
	if err := s.checkOperandBounds(paramBytes); err != nil {
		return err
	}
	s.sp -= paramBytes
	copy(s.swap[:paramBytes], s.data[s.sp:s.sp+paramBytes])

	// Step 2: determine function_frame_address.
	var functionFrameAddress uint32
	if optReturn != nil {
		s.EnsureFreeSpace()
		functionFrameAddress = s.sp
	} else {
		if s.fp == 0 {
			return errFrameIndexOutOfBounds
		}
		cur := readFrameInfo(s.data, s.fp)
		functionFrameAddress = cur.FunctionFrameAddress
	}

	newFP := s.sp
	fi := FrameInfo{
		PreviousFrameAddress:        s.fp,
		FunctionFrameAddress:        functionFrameAddress,
		ParamsCount:                 params,
		ResultsCount:                results,
		LocalListIndex:              localListIndex,
		LocalVariablesAllocateBytes: localAllocBytes,
	}
	if optReturn != nil {
		fi.ReturnModuleIndex = optReturn.ModuleIndex
		fi.ReturnFunctionInternalIndex = optReturn.FunctionInternalIndex
		fi.ReturnInstructionAddress = optReturn.InstructionAddress
	}

	// Step 3: write FrameInfo at new fp.
	writeFrameInfo(s.data, newFP, fi)
	s.fp = newFP
	s.sp = newFP + frameInfoSize

	// Step 4: copy params back from swap to the start of the locals area.
	copy(s.data[s.sp:s.sp+paramBytes], s.swap[:paramBytes])
	s.sp += paramBytes

	// Step 5: zero-fill the remaining pure-local bytes.
	pureLocalBytes := localAllocBytes - paramBytes
	zeroRange(s.data[s.sp : s.sp+pureLocalBytes])
	s.sp += pureLocalBytes

	return nil
}

// RemoveFrames implements the frame-removal algorithm and returns the
// popped frame's return PC iff it was a function frame.
func (s *Stack) RemoveFrames(reversedIndex uint32) (*ReturnPC, error) {
	target, err := s.GetFramePack(reversedIndex)
	if err != nil {
		return nil, err
	}

	resultsBytes := uint32(target.Info.ResultsCount) * 8
	if err := s.checkOperandBounds(resultsBytes); err != nil {
		return nil, err
	}
	s.sp -= resultsBytes
	copy(s.swap[:resultsBytes], s.data[s.sp:s.sp+resultsBytes])

	s.sp = target.Address
	s.fp = target.Info.PreviousFrameAddress

	copy(s.data[s.sp:s.sp+resultsBytes], s.swap[:resultsBytes])
	s.sp += resultsBytes

	isFunctionFrame := target.Info.IsFunctionFrame(target.Address)
	if !isFunctionFrame {
		return nil, nil
	}
	rpc := ReturnPC{
		ModuleIndex:           target.Info.ReturnModuleIndex,
		FunctionInternalIndex: target.Info.ReturnFunctionInternalIndex,
		InstructionAddress:    target.Info.ReturnInstructionAddress,
	}
	return &rpc, nil
}

// ResetFrames implements the recur/TCO primitive and returns whether the
// target was a function frame.
func (s *Stack) ResetFrames(reversedIndex uint32) (bool, error) {
	target, err := s.GetFramePack(reversedIndex)
	if err != nil {
		return false, err
	}

	params := uint32(target.Info.ParamsCount)
	paramBytes := params * 8
	localAlloc := target.Info.LocalVariablesAllocateBytes
	argsStart := target.Address + frameInfoSize
	argsEnd := argsStart + paramBytes

	// Fast path: reversedIndex == 0 and the only thing above the frame's
	// declared locals is exactly the new argument values.
	if reversedIndex == 0 && s.sp == target.Address+frameInfoSize+localAlloc+paramBytes {
		newValuesStart := s.sp - paramBytes
		// Directional (ascending, source > destination) copy, per spec.md
		// §9's "Recur fast-path correctness" note. newValuesStart is
		// argsStart+localAlloc and localAlloc >= paramBytes, so the two
		// ranges at most touch end to end; the ascending copy would stay
		// correct even if they overlapped.
		copyOverlapAscending(s.data, argsStart, newValuesStart, paramBytes)
		s.sp -= paramBytes
		zeroRange(s.data[argsEnd : argsEnd+(localAlloc-paramBytes)])
		return target.Info.IsFunctionFrame(target.Address), nil
	}

	// General path.
	if err := s.checkOperandBounds(paramBytes); err != nil {
		return false, err
	}
	s.sp -= paramBytes
	copy(s.swap[:paramBytes], s.data[s.sp:s.sp+paramBytes])

	s.fp = target.Address
	s.sp = target.Address + frameInfoSize

	copy(s.data[s.sp:s.sp+paramBytes], s.swap[:paramBytes])
	s.sp += paramBytes

	zeroRange(s.data[s.sp : s.sp+(localAlloc-paramBytes)])
	s.sp += localAlloc - paramBytes

	return target.Info.IsFunctionFrame(target.Address), nil
}

// validateFrameChain walks the previous-frame-address chain from fp and
// reports whether it is acyclic and terminates at 0 — a debug-only
// invariant check (spec.md §8 invariant 3), used from tests only.
func (s *Stack) validateFrameChain() bool {
	seen := make(map[uint32]bool)
	addr := s.fp
	for addr != 0 {
		if seen[addr] {
			return false
		}
		seen[addr] = true
		fi := readFrameInfo(s.data, addr)
		addr = fi.PreviousFrameAddress
	}
	return true
}

func zeroRange(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// copyOverlapAscending copies n bytes from src to dst. When src > dst it
// copies byte by byte in ascending order (safe for forward overlap, see
// spec.md §9); otherwise it falls back to the built-in copy, which also
// handles overlapping ranges.
func copyOverlapAscending(b []byte, dst, src, n uint32) {
	if src <= dst || n == 0 {
		copy(b[dst:dst+n], b[src:src+n])
		return
	}
	for i := uint32(0); i < n; i++ {
		b[dst+i] = b[src+i]
	}
}
