package stackvm

import "unsafe"

// handlers_host.go implements the host-address-exposure and heap-copy
// opcodes; host_addr_func and the callback re-entry path live in
// bridge.go since they need the bridge table and the JIT collaborator's
// build_bridge hook.

func handleHostAddrLocal(ctx *ThreadContext) HandleResult {
	reversedIndex, localIndex := ctx.paramI16I16I16WideIndex()
	offset, err := ctx.Stack.PopI32U()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	addr, err := ctx.getLocalVariableAddress(reversedIndex, localIndex, offset, 0)
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	ptr := unsafe.Pointer(&ctx.Stack.RawBytesAt(addr)[0])
	ctx.Stack.PushI64(int64(uintptr(ptr)))
	return Move(8)
}

// paramI16I16I16WideIndex reads the host_addr_local shape
// [opcode:u16][reversed_index:u16][local_var_index:u16] and widens both
// to uint32 for the shared local-resolution helpers.
func (ctx *ThreadContext) paramI16I16I16WideIndex() (uint32, uint32) {
	b := ctx.instrBytes(8)
	reversedIndex := uint16(b[2]) | uint16(b[3])<<8
	localVarIndex := uint16(b[4]) | uint16(b[5])<<8
	return uint32(reversedIndex), uint32(localVarIndex)
}

func handleHostAddrData(ctx *ThreadContext) HandleResult {
	publicIndex := ctx.paramI32()
	offset, err := ctx.Stack.PopI32U()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	accessor, _, item, err := ctx.getTargetDataObject(ctx.PC.ModuleIndex, publicIndex, offset, 0)
	if err != nil {
		return terminate(TerminateOutOfBounds)
	}
	// All three section variants, read-only included, hand out a raw
	// buffer pointer here; host_addr_data itself never stores through it.
	ptr := dataAccessorBufferPointer(accessor, item, offset)
	ctx.Stack.PushI64(int64(uintptr(ptr)))
	return Move(8)
}

// dataAccessorBufferPointer reaches into a DataAccessor's backing buffer
// for host_addr_data. It type-switches on the three concrete variants
// rather than widening DataAccessor's interface with a pointer-yielding
// method every load/store caller would otherwise have to implement.
func dataAccessorBufferPointer(a DataAccessor, item, offset uint32) unsafe.Pointer {
	switch v := a.(type) {
	case *ReadOnlyDataSection:
		return unsafe.Pointer(&v.buffer[v.abs(item, offset)])
	case *ReadWriteDataSection:
		return unsafe.Pointer(&v.buffer[v.abs(item, offset)])
	case *UninitializedDataSection:
		return unsafe.Pointer(&v.buffer[v.abs(item, offset)])
	default:
		return nil
	}
}

func handleHostAddrHeap(ctx *ThreadContext) HandleResult {
	heapAddr, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	if heapAddr < 0 || uint32(heapAddr) >= ctx.Heap.Len() {
		return terminate(TerminateOutOfBounds)
	}
	ptr := unsafe.Pointer(&ctx.Heap.data[heapAddr])
	ctx.Stack.PushI64(int64(uintptr(ptr)))
	return Move(2)
}

func handleHostCopyFromHeap(ctx *ThreadContext) HandleResult {
	length, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	srcHeapAddr, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	dstHostPtr, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	if srcHeapAddr < 0 || length < 0 || uint64(srcHeapAddr)+uint64(length) > uint64(ctx.Heap.Len()) {
		return terminate(TerminateOutOfBounds)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(dstHostPtr))), length)
	copy(dst, ctx.Heap.data[srcHeapAddr:srcHeapAddr+length])
	return Move(2)
}

func handleHostCopyToHeap(ctx *ThreadContext) HandleResult {
	length, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	srcHostPtr, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	dstHeapAddr, err := ctx.Stack.PopI64()
	if err != nil {
		return terminate(TerminateOperandUnderflow)
	}
	if dstHeapAddr < 0 || length < 0 || uint64(dstHeapAddr)+uint64(length) > uint64(ctx.Heap.Len()) {
		return terminate(TerminateOutOfBounds)
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(srcHostPtr))), length)
	copy(ctx.Heap.data[dstHeapAddr:dstHeapAddr+length], src)
	return Move(2)
}
