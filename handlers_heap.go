package stackvm

// handlers_heap.go implements the heap-access load/store family
// (spec.md §6's "heap" prefix — the original implementation's comment for
// these opcodes reads "heap (thread-local memory) loading and storing",
// which is the "memory" spec.md's combined opcode list also names; there
// is no second, distinct opcode prefix beyond heap_*). The heap address is
// popped from the stack; width/sign/FP-validity semantics are identical to
// handlers_data.go's data family, just addressed against ctx.Heap.data
// instead of a DataAccessor buffer.

func heapLoad(ctx *ThreadContext, addr uint64, width opWidth, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, widthBytes(width)) {
		return terminate(TerminateOutOfBounds)
	}
	o := uint32(addr)
	switch width {
	case widthI64:
		ctx.Stack.PushI64(readI64(ctx.Heap.data, o))
	case widthF32:
		v, err := readF32(ctx.Heap.data, o)
		if err != nil {
			return terminate(TerminateUnsupportedFloatingPointVariant)
		}
		ctx.Stack.PushF32(v)
	case widthF64:
		v, err := readF64(ctx.Heap.data, o)
		if err != nil {
			return terminate(TerminateUnsupportedFloatingPointVariant)
		}
		ctx.Stack.PushF64(v)
	}
	return Move(int32(instrLen))
}

func heapLoadSigned(ctx *ThreadContext, addr uint64, width opWidth, signed bool, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, widthBytes(width)) {
		return terminate(TerminateOutOfBounds)
	}
	o := uint32(addr)
	switch width {
	case widthI32:
		if signed {
			ctx.Stack.PushI32S(readI32S(ctx.Heap.data, o))
		} else {
			ctx.Stack.PushI32U(readI32U(ctx.Heap.data, o))
		}
	case widthI16:
		if signed {
			ctx.Stack.PushI16S(readI16S(ctx.Heap.data, o))
		} else {
			ctx.Stack.PushI16U(readI16U(ctx.Heap.data, o))
		}
	case widthI8:
		if signed {
			ctx.Stack.PushI8S(readI8S(ctx.Heap.data, o))
		} else {
			ctx.Stack.PushI8U(readI8U(ctx.Heap.data, o))
		}
	}
	return Move(int32(instrLen))
}

// heapStore's caller has already popped the value (the top-of-stack operand,
// pushed after heap_addr per the original instruction's
// "(operand heap_addr:i64 number:i64)" ordering) before resolving addr, so
// this only needs to bounds-check and write.
func heapStoreI64(ctx *ThreadContext, addr uint64, v int64, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, 8) {
		return terminate(TerminateOutOfBounds)
	}
	writeI64(ctx.Heap.data, uint32(addr), v)
	return Move(int32(instrLen))
}

func heapStoreI32(ctx *ThreadContext, addr uint64, v uint32, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, 4) {
		return terminate(TerminateOutOfBounds)
	}
	writeI32(ctx.Heap.data, uint32(addr), v)
	return Move(int32(instrLen))
}

func heapStoreI16(ctx *ThreadContext, addr uint64, v uint32, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, 2) {
		return terminate(TerminateOutOfBounds)
	}
	writeI16(ctx.Heap.data, uint32(addr), uint16(v))
	return Move(int32(instrLen))
}

func heapStoreI8(ctx *ThreadContext, addr uint64, v uint32, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, 1) {
		return terminate(TerminateOutOfBounds)
	}
	writeI8(ctx.Heap.data, uint32(addr), uint8(v))
	return Move(int32(instrLen))
}

func heapStoreF32(ctx *ThreadContext, addr uint64, v float32, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, 4) {
		return terminate(TerminateOutOfBounds)
	}
	writeF32(ctx.Heap.data, uint32(addr), v)
	return Move(int32(instrLen))
}

func heapStoreF64(ctx *ThreadContext, addr uint64, v float64, instrLen uint32) HandleResult {
	if !heapBoundsOK(ctx, addr, 8) {
		return terminate(TerminateOutOfBounds)
	}
	writeF64(ctx.Heap.data, uint32(addr), v)
	return Move(int32(instrLen))
}

func heapBoundsOK(ctx *ThreadContext, addr uint64, accessLength uint32) bool {
	end := addr + uint64(accessLength)
	return end <= uint64(ctx.Heap.Len())
}

// popHeapAddr pops the heap address operand and reports which of the two
// distinct failures occurred: no operand above the current frame's floor
// (underflow) versus a negative
// address (out of bounds), so callers terminate with the right code.
func popHeapAddr(ctx *ThreadContext) (addr uint64, underflow, outOfBounds bool) {
	v, err := ctx.Stack.PopI64()
	if err != nil {
		return 0, true, false
	}
	if v < 0 {
		return 0, false, true
	}
	return uint64(v), false, false
}

func registerHeapHandlers() {
	registerHeapLoad(OpHeapLoadI64, widthI64, true)
	registerHeapLoad(OpHeapLoadI32S, widthI32, true)
	registerHeapLoad(OpHeapLoadI32U, widthI32, false)
	registerHeapLoad(OpHeapLoadI16S, widthI16, true)
	registerHeapLoad(OpHeapLoadI16U, widthI16, false)
	registerHeapLoad(OpHeapLoadI8S, widthI8, true)
	registerHeapLoad(OpHeapLoadI8U, widthI8, false)
	registerHeapLoad(OpHeapLoadF32, widthF32, true)
	registerHeapLoad(OpHeapLoadF64, widthF64, true)

	registerHeapStore(OpHeapStoreI64, widthI64)
	registerHeapStore(OpHeapStoreI32, widthI32)
	registerHeapStore(OpHeapStoreI16, widthI16)
	registerHeapStore(OpHeapStoreI8, widthI8)
	registerHeapStore(OpHeapStoreF32, widthF32)
	registerHeapStore(OpHeapStoreF64, widthF64)
}

func registerHeapLoad(op Opcode, width opWidth, signed bool) {
	register(op, func(ctx *ThreadContext) HandleResult {
		addr, underflow, outOfBounds := popHeapAddr(ctx)
		if underflow {
			return terminate(TerminateOperandUnderflow)
		}
		if outOfBounds {
			return terminate(TerminateOutOfBounds)
		}
		if width == widthI32 || width == widthI16 || width == widthI8 {
			return heapLoadSigned(ctx, addr, width, signed, 2)
		}
		return heapLoad(ctx, addr, width, 2)
	})
}

// registerHeapStore pops the value first, since it's pushed on top of
// heap_addr, then the address, then writes it at that address.
func registerHeapStore(op Opcode, width opWidth) {
	switch width {
	case widthI64:
		register(op, func(ctx *ThreadContext) HandleResult {
			v, err := ctx.Stack.PopI64()
			if err != nil {
				return terminate(TerminateOperandUnderflow)
			}
			addr, underflow, outOfBounds := popHeapAddr(ctx)
			if underflow {
				return terminate(TerminateOperandUnderflow)
			}
			if outOfBounds {
				return terminate(TerminateOutOfBounds)
			}
			return heapStoreI64(ctx, addr, v, 2)
		})
	case widthI32:
		register(op, func(ctx *ThreadContext) HandleResult {
			v, err := ctx.Stack.PopI32U()
			if err != nil {
				return terminate(TerminateOperandUnderflow)
			}
			addr, underflow, outOfBounds := popHeapAddr(ctx)
			if underflow {
				return terminate(TerminateOperandUnderflow)
			}
			if outOfBounds {
				return terminate(TerminateOutOfBounds)
			}
			return heapStoreI32(ctx, addr, v, 2)
		})
	case widthI16:
		register(op, func(ctx *ThreadContext) HandleResult {
			v, err := ctx.Stack.PopI32U()
			if err != nil {
				return terminate(TerminateOperandUnderflow)
			}
			addr, underflow, outOfBounds := popHeapAddr(ctx)
			if underflow {
				return terminate(TerminateOperandUnderflow)
			}
			if outOfBounds {
				return terminate(TerminateOutOfBounds)
			}
			return heapStoreI16(ctx, addr, v, 2)
		})
	case widthI8:
		register(op, func(ctx *ThreadContext) HandleResult {
			v, err := ctx.Stack.PopI32U()
			if err != nil {
				return terminate(TerminateOperandUnderflow)
			}
			addr, underflow, outOfBounds := popHeapAddr(ctx)
			if underflow {
				return terminate(TerminateOperandUnderflow)
			}
			if outOfBounds {
				return terminate(TerminateOutOfBounds)
			}
			return heapStoreI8(ctx, addr, v, 2)
		})
	case widthF32:
		register(op, func(ctx *ThreadContext) HandleResult {
			v, err := ctx.Stack.PopF32()
			if err != nil {
				return terminate(TerminateOperandUnderflow)
			}
			addr, underflow, outOfBounds := popHeapAddr(ctx)
			if underflow {
				return terminate(TerminateOperandUnderflow)
			}
			if outOfBounds {
				return terminate(TerminateOutOfBounds)
			}
			return heapStoreF32(ctx, addr, v, 2)
		})
	case widthF64:
		register(op, func(ctx *ThreadContext) HandleResult {
			v, err := ctx.Stack.PopF64()
			if err != nil {
				return terminate(TerminateOperandUnderflow)
			}
			addr, underflow, outOfBounds := popHeapAddr(ctx)
			if underflow {
				return terminate(TerminateOperandUnderflow)
			}
			if outOfBounds {
				return terminate(TerminateOutOfBounds)
			}
			return heapStoreF64(ctx, addr, v, 2)
		})
	}
}
