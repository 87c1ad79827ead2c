package stackvm

// thread.go implements the per-execution-context state from spec.md §4.4:
// program counter, parameter decoding, local/data resolution with bounds
// checking, the heap, and the bridge-function table. One ThreadContext is
// driven by exactly one goroutine at a time (spec.md §5); nothing here
// takes a lock, matching gvm/vm/vm.go's single-owner *VM.

import "encoding/binary"

// ProgramCounter names one instruction: which module, which function
// (for bridge re-entry bookkeeping) and the byte address of the next
// instruction to execute within that module's Code blob.
type ProgramCounter struct {
	ModuleIndex        uint32
	FunctionIndex      uint32
	InstructionAddress uint32
}

// Heap is the VM's byte-addressable scratch region, distinct from the
// frame/operand stack, backing host_addr_heap and the host_copy_*
// handlers. It only grows; there is no instruction in this core's scope
// that shrinks or pages it (see SPEC_FULL.md "Heap growth").
type Heap struct {
	data []byte
}

// NewHeap allocates a heap of the given initial size, zero-filled.
func NewHeap(initialSize uint32) *Heap {
	return &Heap{data: make([]byte, initialSize)}
}

// Grow extends the heap by deltaBytes, preserving existing contents.
func (h *Heap) Grow(deltaBytes uint32) {
	h.data = append(h.data, make([]byte, deltaBytes)...)
}

func (h *Heap) Len() uint32 { return uint32(len(h.data)) }

// bridgeKey is the canonical (module_index, function_internal_index) pair
// keying the bridge-function table (spec.md §9 "Bridge-table keying").
type bridgeKey struct {
	ModuleIndex   uint32
	InternalIndex uint32
}

// ThreadContext owns everything one executing VM thread needs: the
// operand/frame stack, the heap, loaded modules, the native-callback
// bridge table and the current PC.
type ThreadContext struct {
	PC       ProgramCounter
	Stack    *Stack
	Heap     *Heap
	Modules  []*ModuleInstance
	Bridge   BridgeFunctionTable
	bridgeFn map[bridgeKey]uintptr
}

// NewThreadContext constructs a ThreadContext ready to execute modules[0]
// from the start of its first function; callers of internal test helpers
// set ctx.PC explicitly to start elsewhere.
func NewThreadContext(cfg Config, modules []*ModuleInstance, bridge BridgeFunctionTable) *ThreadContext {
	return &ThreadContext{
		Stack:    NewStack(cfg),
		Heap:     NewHeap(defaultInitStackSize),
		Modules:  modules,
		Bridge:   bridge,
		bridgeFn: make(map[bridgeKey]uintptr),
	}
}

func (ctx *ThreadContext) module(index uint32) *ModuleInstance {
	return ctx.Modules[index]
}

// CurrentOpcode reports the opcode at the current PC without dispatching
// it, for cmd/stackvm-demo's -debug stepper to print before calling Step.
func (ctx *ThreadContext) CurrentOpcode() Opcode {
	mod := ctx.module(ctx.PC.ModuleIndex)
	return readOpcode(mod.Code, ctx.PC.InstructionAddress)
}

// ExecuteFunction is the top-level entry point embedders (tests,
// cmd/stackvm-demo) use to run a VM function directly, as opposed to
// native code invoking one through a bridge trampoline. It reuses the
// same exit-bit convention processCallbackFunctionCall relies on: the
// synthetic return PC it builds has EXIT_CURRENT_HANDLER_LOOP_BIT set, so
// the dispatch loop stops (via End) the moment the function's own frame
// is removed, rather than trying to Jump to a caller that does not exist.
func (ctx *ThreadContext) ExecuteFunction(moduleIndex, funcInternalIndex uint32, args []int64) ([]int64, TerminateResult) {
	mod := ctx.module(moduleIndex)
	fn := mod.Functions[funcInternalIndex]
	typ := mod.Types[fn.TypeIndex]

	ctx.PC = ProgramCounter{ModuleIndex: moduleIndex, FunctionIndex: funcInternalIndex, InstructionAddress: fn.CodeOffset}

	for _, v := range args {
		ctx.Stack.PushI64(v)
	}

	ret := ReturnPC{ModuleIndex: exitCurrentHandlerLoopBit}
	localAlloc := mod.LocalVariableLists[fn.LocalListIndex].AllocateBytes
	if err := ctx.Stack.CreateFrame(typ.ParamsCount(), typ.ResultsCount(), fn.LocalListIndex, localAlloc, &ret); err != nil {
		return nil, TerminateResult{Code: TerminateStackOverflow}
	}

	result := ctx.Run()
	if !result.IsOK() {
		return nil, result
	}

	n := len(typ.Results)
	results := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := ctx.Stack.PopI64()
		if err != nil {
			return nil, TerminateResult{Code: TerminateOperandUnderflow, Err: err}
		}
		results[n-1-i] = v
	}
	return results, result
}

// --- embedded parameter decoding (spec.md §4.4) ---
//
// Each get_param_* reads its tuple starting immediately after the 2-byte
// opcode at the current instruction address; none of them move the PC —
// the calling handler computes its own Move delta separately, per
// spec.md §4.5's "handlers... compute their own PC delta".

func (ctx *ThreadContext) instrBytes(n uint32) []byte {
	mod := ctx.module(ctx.PC.ModuleIndex)
	addr := ctx.PC.InstructionAddress
	return mod.Code[addr : addr+n]
}

// paramI16 reads the 32-bit-shape single u16 parameter at bytes [2:4].
func (ctx *ThreadContext) paramI16() uint16 {
	return binary.LittleEndian.Uint16(ctx.instrBytes(4)[2:4])
}

// paramI32 reads the 64-bit-shape single u32 parameter at bytes [4:8]
// (bytes [2:4] are padding).
func (ctx *ThreadContext) paramI32() uint32 {
	return binary.LittleEndian.Uint32(ctx.instrBytes(8)[4:8])
}

// paramI16I32 reads a u16 at [2:4] followed by a u32 at [4:8].
func (ctx *ThreadContext) paramI16I32() (uint16, uint32) {
	b := ctx.instrBytes(8)
	return binary.LittleEndian.Uint16(b[2:4]), binary.LittleEndian.Uint32(b[4:8])
}

// paramI32I32 reads two u32 parameters at [4:8] and [8:12] (bytes [2:4]
// are padding).
func (ctx *ThreadContext) paramI32I32() (uint32, uint32) {
	b := ctx.instrBytes(12)
	return binary.LittleEndian.Uint32(b[4:8]), binary.LittleEndian.Uint32(b[8:12])
}

// paramI16I16I16 reads three consecutive u16 parameters at [2:4], [4:6],
// [6:8].
func (ctx *ThreadContext) paramI16I16I16() (uint16, uint16, uint16) {
	b := ctx.instrBytes(8)
	return binary.LittleEndian.Uint16(b[2:4]), binary.LittleEndian.Uint16(b[4:6]), binary.LittleEndian.Uint16(b[6:8])
}

// paramI16I32I32 reads a u16 at [2:4] followed by two u32s at [4:8] and
// [8:12].
func (ctx *ThreadContext) paramI16I32I32() (uint16, uint32, uint32) {
	b := ctx.instrBytes(12)
	return binary.LittleEndian.Uint16(b[2:4]), binary.LittleEndian.Uint32(b[4:8]), binary.LittleEndian.Uint32(b[8:12])
}

// paramI32I32I32 reads three consecutive u32 parameters at [4:8], [8:12],
// [12:16] (bytes [2:4] are padding).
func (ctx *ThreadContext) paramI32I32I32() (uint32, uint32, uint32) {
	b := ctx.instrBytes(16)
	return binary.LittleEndian.Uint32(b[4:8]), binary.LittleEndian.Uint32(b[8:12]), binary.LittleEndian.Uint32(b[12:16])
}

// --- local / data resolution (spec.md §4.4) ---

// getLocalVariableAddress translates (frame depth, local slot index,
// intra-slot offset) to a byte address in the stack buffer, bounds
// checked against the slot's declared length.
func (ctx *ThreadContext) getLocalVariableAddress(reversedIndex uint32, localVariableIndex uint32, accessOffset uint32, accessLength uint32) (uint32, error) {
	fp, err := ctx.Stack.GetFramePack(reversedIndex)
	if err != nil {
		return 0, err
	}
	list := ctx.module(ctx.PC.ModuleIndex).LocalVariableLists[fp.Info.LocalListIndex]
	if int(localVariableIndex) >= len(list.Descriptors) {
		return 0, errOutOfBounds
	}
	desc := list.Descriptors[localVariableIndex]
	if accessOffset+accessLength > desc.Length {
		return 0, errOutOfBounds
	}
	start := fp.Address + frameInfoSize + desc.Offset
	return start + accessOffset, nil
}

// getTargetDataObject resolves a public data index (possibly belonging to
// an imported module) down to the defining module's accessor and the
// item's internal index within it, bounds-checked against the item's
// declared length.
func (ctx *ThreadContext) getTargetDataObject(moduleIndex uint32, dataPublicIndex uint32, offset uint32, accessLength uint32) (DataAccessor, uint32, uint32, error) {
	mod := ctx.module(moduleIndex)
	if int(dataPublicIndex) >= len(mod.DataPublicIndex) {
		return nil, 0, 0, errOutOfBounds
	}
	entry := mod.DataPublicIndex[dataPublicIndex]
	target := ctx.module(entry.TargetModuleIndex)
	sec, itemIndex, ok := target.resolveDataInternalIndex(entry.InternalIndex)
	if !ok {
		return nil, 0, 0, errOutOfBounds
	}
	item := sec.Items[itemIndex]
	if offset+accessLength > item.Length {
		return nil, 0, 0, errOutOfBounds
	}
	return sec.Accessor, entry.TargetModuleIndex, itemIndex, nil
}

// --- bridge-function table (spec.md §4.4, §4.8) ---

func (ctx *ThreadContext) findCallbackFunction(moduleIndex, funcInternalIndex uint32) (uintptr, bool) {
	p, ok := ctx.bridgeFn[bridgeKey{moduleIndex, funcInternalIndex}]
	return p, ok
}

func (ctx *ThreadContext) insertCallbackFunction(moduleIndex, funcInternalIndex uint32, nativeAddr uintptr) {
	ctx.bridgeFn[bridgeKey{moduleIndex, funcInternalIndex}] = nativeAddr
}
